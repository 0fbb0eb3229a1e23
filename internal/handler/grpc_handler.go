package handler

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/nuhmanudheent/hosp-connect-hospital/internal/auth"
	"github.com/nuhmanudheent/hosp-connect-hospital/internal/domain"
	"github.com/nuhmanudheent/hosp-connect-hospital/internal/service"
)

const schedulingServiceName = "hospital.v1.SchedulingService"

// SchedulingServer is the gRPC face of the scheduling and billing core.
// Messages are google.protobuf.Struct so callers need no generated stubs.
type SchedulingServer interface {
	AvailableSlots(context.Context, *structpb.Struct) (*structpb.Struct, error)
	BookAppointment(context.Context, *structpb.Struct) (*structpb.Struct, error)
	UpdateAppointmentStatus(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ApplyPayment(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

func unaryMethod(name string, call func(SchedulingServer, context.Context, *structpb.Struct) (*structpb.Struct, error)) grpc.MethodDesc {
	fullMethod := "/" + schedulingServiceName + "/" + name
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(SchedulingServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
			handler := func(ctx context.Context, req interface{}) (interface{}, error) {
				return call(srv.(SchedulingServer), ctx, req.(*structpb.Struct))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

// SchedulingServiceDesc registers a SchedulingServer on a grpc.Server.
var SchedulingServiceDesc = grpc.ServiceDesc{
	ServiceName: schedulingServiceName,
	HandlerType: (*SchedulingServer)(nil),
	Methods: []grpc.MethodDesc{
		unaryMethod("AvailableSlots", SchedulingServer.AvailableSlots),
		unaryMethod("BookAppointment", SchedulingServer.BookAppointment),
		unaryMethod("UpdateAppointmentStatus", SchedulingServer.UpdateAppointmentStatus),
		unaryMethod("ApplyPayment", SchedulingServer.ApplyPayment),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "hospital/v1/scheduling.proto",
}

type SchedulingServiceServer struct {
	svc    Services
	Logger *logrus.Logger
}

func NewSchedulingServer(svc Services, logger *logrus.Logger) *SchedulingServiceServer {
	return &SchedulingServiceServer{svc: svc, Logger: logger}
}

// AuthInterceptor reads the bearer token from the authorization metadata and
// stores the caller on the context.
func AuthInterceptor(tokens *auth.TokenManager) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		if !strings.HasPrefix(info.FullMethod, "/"+schedulingServiceName+"/") {
			return handler(ctx, req)
		}
		md, _ := metadata.FromIncomingContext(ctx)
		values := md.Get("authorization")
		if len(values) == 0 {
			return nil, status.Error(codes.Unauthenticated, "authorization token required")
		}
		raw, ok := auth.BearerToken(values[0])
		if !ok {
			return nil, status.Error(codes.Unauthenticated, "authorization must be a bearer token")
		}
		actor, err := tokens.Parse(raw)
		if err != nil {
			return nil, status.Error(codes.Unauthenticated, err.Error())
		}
		return handler(domain.WithActor(ctx, actor), req)
	}
}

// LoggingInterceptor logs every call with its outcome code.
func LoggingInterceptor(logger *logrus.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		resp, err := handler(ctx, req)
		logger.WithFields(logrus.Fields{
			"Method": info.FullMethod,
			"Code":   status.Code(err).String(),
		}).Info("gRPC request")
		return resp, err
	}
}

// grpcError converts a core error into a status carrying the domain code.
func (s *SchedulingServiceServer) grpcError(function string, err error) error {
	de := domain.AsError(err)
	var code codes.Code
	switch de.Kind {
	case domain.KindValidation:
		code = codes.InvalidArgument
	case domain.KindConflict:
		if de.Code == domain.CodeSlotConflict || de.Code == domain.CodeDuplicate {
			code = codes.AlreadyExists
		} else {
			code = codes.FailedPrecondition
		}
	case domain.KindPermission:
		code = codes.PermissionDenied
		if de.Code == domain.CodeRateLimited {
			code = codes.ResourceExhausted
		}
	case domain.KindNotFound:
		code = codes.NotFound
	case domain.KindState:
		code = codes.FailedPrecondition
	default:
		s.Logger.WithFields(logrus.Fields{
			"Function": function,
			"Error":    err,
		}).Error("gRPC request failed")
		return status.Error(codes.Internal, "internal error")
	}
	return status.Error(code, de.Code+": "+de.Message)
}

func callerFrom(ctx context.Context) (domain.Actor, error) {
	actor, ok := domain.ActorFrom(ctx)
	if !ok {
		return domain.Actor{}, status.Error(codes.Unauthenticated, "authorization token required")
	}
	return actor, nil
}

func field(in *structpb.Struct, name string) (*structpb.Value, bool) {
	v, ok := in.GetFields()[name]
	if !ok || v == nil {
		return nil, false
	}
	if _, isNull := v.GetKind().(*structpb.Value_NullValue); isNull {
		return nil, false
	}
	return v, true
}

func stringField(in *structpb.Struct, name string) string {
	v, ok := field(in, name)
	if !ok {
		return ""
	}
	return v.GetStringValue()
}

func idField(in *structpb.Struct, name string, required bool) (uint, error) {
	v, ok := field(in, name)
	if !ok {
		if required {
			return 0, domain.NewValidationError(name, name+" is required")
		}
		return 0, nil
	}
	n := v.GetNumberValue()
	if n <= 0 || n != math.Trunc(n) || n > math.MaxUint32 {
		return 0, domain.NewValidationError(name, name+" must be a positive integer")
	}
	return uint(n), nil
}

func dateField(in *structpb.Struct, name string) (domain.Date, error) {
	d, err := domain.ParseDate(stringField(in, name))
	if err != nil {
		return domain.Date{}, domain.NewValidationError(name, err.Error())
	}
	return d, nil
}

// amountField accepts a number or a decimal string.
func amountField(in *structpb.Struct, name string) (decimal.Decimal, error) {
	v, ok := field(in, name)
	if !ok {
		return decimal.Zero, domain.NewValidationError(name, name+" is required")
	}
	switch k := v.GetKind().(type) {
	case *structpb.Value_NumberValue:
		return decimal.NewFromFloat(k.NumberValue), nil
	case *structpb.Value_StringValue:
		d, err := decimal.NewFromString(k.StringValue)
		if err != nil {
			return decimal.Zero, domain.NewValidationError(name, fmt.Sprintf("%s must be a decimal number", name))
		}
		return d, nil
	}
	return decimal.Zero, domain.NewValidationError(name, fmt.Sprintf("%s must be a decimal number", name))
}

func appointmentStruct(a *domain.Appointment) (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]interface{}{
		"id":               a.ID,
		"patient_id":       a.PatientID,
		"doctor_id":        a.DoctorID,
		"appointment_date": a.Date.String(),
		"appointment_time": a.Time.String(),
		"duration_minutes": a.DurationMinutes,
		"status":           string(a.Status),
		"reason":           a.Reason,
		"notes":            a.Notes,
	})
}

func (s *SchedulingServiceServer) AvailableSlots(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if _, err := callerFrom(ctx); err != nil {
		return nil, err
	}
	doctorID, err := idField(req, "doctor_id", true)
	if err != nil {
		return nil, s.grpcError("AvailableSlots", err)
	}
	date, err := dateField(req, "date")
	if err != nil {
		return nil, s.grpcError("AvailableSlots", err)
	}
	slots, err := s.svc.Appointments.AvailableSlots(ctx, doctorID, date)
	if err != nil {
		return nil, s.grpcError("AvailableSlots", err)
	}
	return structpb.NewStruct(map[string]interface{}{
		"doctor_id": doctorID,
		"date":      date.String(),
		"slots":     lo.Map(slots, func(c domain.ClockTime, _ int) interface{} { return c.String() }),
	})
}

func (s *SchedulingServiceServer) BookAppointment(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	actor, err := callerFrom(ctx)
	if err != nil {
		return nil, err
	}
	doctorID, err := idField(req, "doctor_id", true)
	if err != nil {
		return nil, s.grpcError("BookAppointment", err)
	}
	patientID, err := idField(req, "patient_id", false)
	if err != nil {
		return nil, s.grpcError("BookAppointment", err)
	}
	date, err := dateField(req, "appointment_date")
	if err != nil {
		return nil, s.grpcError("BookAppointment", err)
	}
	at, err := domain.ParseClockTime(stringField(req, "appointment_time"))
	if err != nil {
		return nil, s.grpcError("BookAppointment", domain.NewValidationError("appointment_time", err.Error()))
	}

	appointment, err := s.svc.Appointments.Book(ctx, actor, service.BookingRequest{
		DoctorID:  doctorID,
		PatientID: patientID,
		Date:      date,
		Time:      at,
		Reason:    stringField(req, "reason"),
	})
	if err != nil {
		return nil, s.grpcError("BookAppointment", err)
	}
	return appointmentStruct(appointment)
}

func (s *SchedulingServiceServer) UpdateAppointmentStatus(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	actor, err := callerFrom(ctx)
	if err != nil {
		return nil, err
	}
	id, err := idField(req, "appointment_id", true)
	if err != nil {
		return nil, s.grpcError("UpdateAppointmentStatus", err)
	}
	next, err := domain.ParseAppointmentStatus(stringField(req, "status"))
	if err != nil {
		return nil, s.grpcError("UpdateAppointmentStatus", domain.NewValidationError("status", err.Error()))
	}
	appointment, err := s.svc.Appointments.UpdateStatus(ctx, actor, id, next, stringField(req, "notes"))
	if err != nil {
		return nil, s.grpcError("UpdateAppointmentStatus", err)
	}
	return appointmentStruct(appointment)
}

func (s *SchedulingServiceServer) ApplyPayment(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	actor, err := callerFrom(ctx)
	if err != nil {
		return nil, err
	}
	billID, err := idField(req, "bill_id", true)
	if err != nil {
		return nil, s.grpcError("ApplyPayment", err)
	}
	amount, err := amountField(req, "amount")
	if err != nil {
		return nil, s.grpcError("ApplyPayment", err)
	}
	bill, err := s.svc.Billing.ApplyPayment(ctx, actor, billID, amount, domain.PaymentMethod(strings.ToUpper(stringField(req, "method"))))
	if err != nil {
		return nil, s.grpcError("ApplyPayment", err)
	}
	return structpb.NewStruct(map[string]interface{}{
		"bill_id":        bill.ID,
		"amount":         bill.Amount.StringFixed(2),
		"paid_amount":    bill.PaidAmount.StringFixed(2),
		"outstanding":    bill.Outstanding().StringFixed(2),
		"payment_status": string(bill.PaymentStatus),
		"paid":           bill.Paid,
		"due_date":       bill.DueDate.String(),
	})
}

// RegisterSchedulingServer attaches srv to s.
func RegisterSchedulingServer(s grpc.ServiceRegistrar, srv SchedulingServer) {
	s.RegisterService(&SchedulingServiceDesc, srv)
}
