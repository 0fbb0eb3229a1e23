package handler

import (
	"context"
	"net"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/nuhmanudheent/hosp-connect-hospital/internal/domain"
	"github.com/nuhmanudheent/hosp-connect-hospital/internal/service"
)

func dialScheduling(t *testing.T, f *fixture) *grpc.ClientConn {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	logger := quietLogger()
	server := grpc.NewServer(grpc.ChainUnaryInterceptor(
		LoggingInterceptor(logger),
		AuthInterceptor(f.tokens),
	))
	RegisterSchedulingServer(server, NewSchedulingServer(f.svc, logger))
	go server.Serve(lis)
	t.Cleanup(server.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func call(ctx context.Context, conn *grpc.ClientConn, method string, req map[string]interface{}) (*structpb.Struct, error) {
	in, err := structpb.NewStruct(req)
	if err != nil {
		return nil, err
	}
	out := &structpb.Struct{}
	err = conn.Invoke(ctx, "/hospital.v1.SchedulingService/"+method, in, out)
	return out, err
}

func withToken(t *testing.T, f *fixture, a domain.Actor) context.Context {
	return metadata.AppendToOutgoingContext(context.Background(), "authorization", "Bearer "+f.token(t, a))
}

func expectCode(t *testing.T, err error, code codes.Code, prefix string) {
	t.Helper()
	st, ok := status.FromError(err)
	if !ok {
		t.Fatalf("expected status error, got %v", err)
	}
	if st.Code() != code {
		t.Fatalf("expected %s, got %s (%s)", code, st.Code(), st.Message())
	}
	if prefix != "" && !strings.HasPrefix(st.Message(), prefix) {
		t.Fatalf("expected message starting with %q, got %q", prefix, st.Message())
	}
}

func TestGRPCRequiresToken(t *testing.T) {
	f := newFixture(t, 0)
	conn := dialScheduling(t, f)

	_, err := call(context.Background(), conn, "AvailableSlots", map[string]interface{}{
		"doctor_id": float64(f.doctor.ProfileID), "date": "2026-10-15",
	})
	expectCode(t, err, codes.Unauthenticated, "")

	ctx := metadata.AppendToOutgoingContext(context.Background(), "authorization", "Bearer garbage")
	_, err = call(ctx, conn, "AvailableSlots", map[string]interface{}{
		"doctor_id": float64(f.doctor.ProfileID), "date": "2026-10-15",
	})
	expectCode(t, err, codes.Unauthenticated, "")
}

func TestGRPCBookingFlow(t *testing.T) {
	f := newFixture(t, 0)
	conn := dialScheduling(t, f)
	ctx := withToken(t, f, f.patient)

	req := map[string]interface{}{
		"doctor_id":        float64(f.doctor.ProfileID),
		"appointment_date": "2026-10-15",
		"appointment_time": "14:30",
		"reason":           "Recurring lower back pain",
	}
	out, err := call(ctx, conn, "BookAppointment", req)
	if err != nil {
		t.Fatal(err)
	}
	if out.Fields["status"].GetStringValue() != string(domain.StatusScheduled) {
		t.Fatalf("unexpected response %v", out)
	}
	id := out.Fields["id"].GetNumberValue()

	_, err = call(ctx, conn, "BookAppointment", req)
	expectCode(t, err, codes.AlreadyExists, domain.CodeSlotConflict+":")

	req["appointment_time"] = "14:10"
	_, err = call(ctx, conn, "BookAppointment", req)
	expectCode(t, err, codes.InvalidArgument, domain.CodeValidation+":")

	slots, err := call(ctx, conn, "AvailableSlots", map[string]interface{}{
		"doctor_id": float64(f.doctor.ProfileID), "date": "2026-10-15",
	})
	if err != nil {
		t.Fatal(err)
	}
	if n := len(slots.Fields["slots"].GetListValue().GetValues()); n != 15 {
		t.Fatalf("expected 15 free slots, got %d", n)
	}

	_, err = call(ctx, conn, "UpdateAppointmentStatus", map[string]interface{}{
		"appointment_id": id, "status": "COMPLETED",
	})
	expectCode(t, err, codes.PermissionDenied, domain.CodePermissionDenied+":")

	out, err = call(withToken(t, f, f.doctor), conn, "UpdateAppointmentStatus", map[string]interface{}{
		"appointment_id": id, "status": "COMPLETED", "notes": "Prescribed physiotherapy",
	})
	if err != nil {
		t.Fatal(err)
	}
	if out.Fields["status"].GetStringValue() != string(domain.StatusCompleted) {
		t.Fatalf("unexpected status %v", out.Fields["status"])
	}

	_, err = call(ctx, conn, "UpdateAppointmentStatus", map[string]interface{}{
		"appointment_id": id, "status": "CANCELLED",
	})
	expectCode(t, err, codes.FailedPrecondition, domain.CodeInvalidTransition+":")
}

func TestGRPCApplyPayment(t *testing.T) {
	f := newFixture(t, 0)
	conn := dialScheduling(t, f)
	ctx := context.Background()

	appointment, err := f.svc.Appointments.Book(ctx, f.patient, service.BookingRequest{
		DoctorID: f.doctor.ProfileID,
		Date:     domain.NewDate(2026, 10, 15),
		Time:     domain.NewClockTime(9, 0),
		Reason:   "Skin rash on both arms",
	})
	if err != nil {
		t.Fatal(err)
	}
	amount := decimal.NewFromInt(300)
	bill, err := f.svc.Billing.CreateBill(ctx, f.employee, service.BillRequest{AppointmentID: appointment.ID, Amount: &amount})
	if err != nil {
		t.Fatal(err)
	}

	ectx := withToken(t, f, f.employee)
	out, err := call(ectx, conn, "ApplyPayment", map[string]interface{}{
		"bill_id": float64(bill.ID), "amount": 100.5, "method": "upi",
	})
	if err != nil {
		t.Fatal(err)
	}
	if out.Fields["payment_status"].GetStringValue() != string(domain.PaymentPartial) ||
		out.Fields["outstanding"].GetStringValue() != "199.50" {
		t.Fatalf("unexpected response %v", out)
	}

	_, err = call(ectx, conn, "ApplyPayment", map[string]interface{}{
		"bill_id": float64(bill.ID), "amount": "500", "method": "CASH",
	})
	expectCode(t, err, codes.FailedPrecondition, domain.CodeOverpayment+":")

	_, err = call(ectx, conn, "ApplyPayment", map[string]interface{}{
		"bill_id": float64(bill.ID), "amount": "ten", "method": "CASH",
	})
	expectCode(t, err, codes.InvalidArgument, "")

	_, err = call(ectx, conn, "ApplyPayment", map[string]interface{}{
		"bill_id": float64(9999), "amount": "1", "method": "CASH",
	})
	expectCode(t, err, codes.NotFound, domain.CodeNotFound+":")
}
