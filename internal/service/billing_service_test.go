package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/nuhmanudheent/hosp-connect-hospital/internal/domain"
	"github.com/nuhmanudheent/hosp-connect-hospital/internal/repository"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func (e *env) bill(t *testing.T, at string) *domain.Bill {
	t.Helper()
	a := e.book(t, at)
	amount := dec("100")
	b, err := e.billing.CreateBill(context.Background(), e.employee, BillRequest{AppointmentID: a.ID, Amount: &amount})
	if err != nil {
		t.Fatal(err)
	}
	return b
}

func TestCreateBillDefaults(t *testing.T) {
	e := newEnv(t)
	a := e.book(t, "09:00")

	b, err := e.billing.CreateBill(context.Background(), e.admin, BillRequest{AppointmentID: a.ID, Description: "Consultation"})
	if err != nil {
		t.Fatal(err)
	}
	if !b.Amount.Equal(dec("500")) {
		t.Fatalf("amount should default to the consultation fee, got %s", b.Amount)
	}
	if !b.DueDate.Equal(today.AddDays(30)) {
		t.Fatalf("unexpected due date %s", b.DueDate)
	}
	if b.PaymentStatus != domain.PaymentPending || b.Paid || !b.PaidAmount.IsZero() {
		t.Fatalf("new bill should be pending, got %+v", b)
	}
	if b.PatientID != e.patient.ProfileID {
		t.Fatalf("bill should belong to the appointment's patient, got %d", b.PatientID)
	}
	types := e.events.types()
	if types[len(types)-1] != domain.EventBillCreated {
		t.Fatalf("expected bill.created event, got %v", types)
	}
}

func TestCreateBillRejections(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	a := e.book(t, "09:00")

	_, err := e.billing.CreateBill(ctx, e.patient, BillRequest{AppointmentID: a.ID})
	expectKind(t, err, domain.KindPermission)
	_, err = e.billing.CreateBill(ctx, e.doctor, BillRequest{AppointmentID: a.ID})
	expectKind(t, err, domain.KindPermission)

	zero := decimal.Zero
	_, err = e.billing.CreateBill(ctx, e.employee, BillRequest{AppointmentID: a.ID, Amount: &zero})
	expectKind(t, err, domain.KindValidation)
	fraction := dec("0.004")
	_, err = e.billing.CreateBill(ctx, e.employee, BillRequest{AppointmentID: a.ID, Amount: &fraction})
	expectKind(t, err, domain.KindValidation)

	_, err = e.billing.CreateBill(ctx, e.employee, BillRequest{AppointmentID: 999})
	expectKind(t, err, domain.KindNotFound)

	if _, err := e.billing.CreateBill(ctx, e.employee, BillRequest{AppointmentID: a.ID}); err != nil {
		t.Fatal(err)
	}
	_, err = e.billing.CreateBill(ctx, e.employee, BillRequest{AppointmentID: a.ID})
	if !errors.Is(err, domain.ErrDuplicate) {
		t.Fatalf("expected one bill per appointment, got %v", err)
	}

	cancelled := e.book(t, "10:00")
	if _, err := e.appts.UpdateStatus(ctx, e.employee, cancelled.ID, domain.StatusCancelled, ""); err != nil {
		t.Fatal(err)
	}
	_, err = e.billing.CreateBill(ctx, e.employee, BillRequest{AppointmentID: cancelled.ID})
	if !errors.Is(err, domain.ErrNotBillable) {
		t.Fatalf("expected cancelled appointment to be unbillable, got %v", err)
	}
	expectKind(t, err, domain.KindState)
}

func TestApplyPayment(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	b := e.bill(t, "09:00")

	got, err := e.billing.ApplyPayment(ctx, e.employee, b.ID, dec("40"), domain.MethodCash)
	if err != nil {
		t.Fatal(err)
	}
	if got.PaymentStatus != domain.PaymentPartial || got.Paid {
		t.Fatalf("expected partial, got %s paid=%v", got.PaymentStatus, got.Paid)
	}

	_, err = e.billing.ApplyPayment(ctx, e.employee, b.ID, dec("70"), domain.MethodCard)
	if !errors.Is(err, domain.ErrOverpayment) {
		t.Fatalf("expected overpayment, got %v", err)
	}
	expectKind(t, err, domain.KindConflict)
	stored, _, err := e.billing.GetBill(ctx, e.employee, b.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !stored.PaidAmount.Equal(dec("40")) {
		t.Fatalf("failed payment must not change paid amount, got %s", stored.PaidAmount)
	}

	got, err = e.billing.ApplyPayment(ctx, e.admin, b.ID, dec("60"), domain.MethodUPI)
	if err != nil {
		t.Fatal(err)
	}
	if got.PaymentStatus != domain.PaymentPaid || !got.Paid || got.PaymentDate == nil {
		t.Fatalf("expected paid bill with payment date, got %+v", got)
	}

	_, payments, err := e.billing.GetBill(ctx, e.patient, b.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(payments) != 2 {
		t.Fatalf("expected two payments, got %d", len(payments))
	}
	var snap map[string]any
	if err := json.Unmarshal(payments[1].Snapshot, &snap); err != nil {
		t.Fatal(err)
	}
	if snap["payment_status"] != "PAID" || snap["outstanding"] != "0.00" {
		t.Fatalf("unexpected snapshot %v", snap)
	}
}

func TestApplyPaymentValidation(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	b := e.bill(t, "09:00")

	cases := []struct {
		name   string
		actor  domain.Actor
		amount decimal.Decimal
		method domain.PaymentMethod
		kind   domain.Kind
	}{
		{"patient", e.patient, dec("10"), domain.MethodCash, domain.KindPermission},
		{"doctor", e.doctor, dec("10"), domain.MethodCash, domain.KindPermission},
		{"zero", e.employee, decimal.Zero, domain.MethodCash, domain.KindValidation},
		{"negative", e.employee, dec("-5"), domain.MethodCash, domain.KindValidation},
		{"sub cent", e.employee, dec("99.996"), domain.MethodCash, domain.KindValidation},
		{"method", e.employee, dec("10"), domain.PaymentMethod("BITCOIN"), domain.KindValidation},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			_, err := e.billing.ApplyPayment(ctx, c.actor, b.ID, c.amount, c.method)
			expectKind(t, err, c.kind)
		})
	}

	_, err := e.billing.ApplyPayment(ctx, e.employee, 999, dec("1"), domain.MethodCash)
	expectKind(t, err, domain.KindNotFound)

	stored, payments, err := e.billing.GetBill(ctx, e.employee, b.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !stored.PaidAmount.IsZero() || stored.PaymentStatus != domain.PaymentPending || len(payments) != 0 {
		t.Fatalf("rejected payments must leave the bill untouched: %+v", stored)
	}
}

func TestDueDateDrivesOverdue(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	a := e.book(t, "09:00")
	yesterday := today.AddDays(-1)

	b, err := e.billing.CreateBill(ctx, e.employee, BillRequest{AppointmentID: a.ID, DueDate: &yesterday})
	if err != nil {
		t.Fatal(err)
	}
	if b.PaymentStatus != domain.PaymentOverdue {
		t.Fatalf("expected overdue at creation, got %s", b.PaymentStatus)
	}

	b, err = e.billing.UpdateDueDate(ctx, e.employee, b.ID, tomorrow)
	if err != nil {
		t.Fatal(err)
	}
	if b.PaymentStatus != domain.PaymentPending {
		t.Fatalf("expected pending after extending due date, got %s", b.PaymentStatus)
	}

	b, err = e.billing.UpdateDueDate(ctx, e.employee, b.ID, yesterday)
	if err != nil {
		t.Fatal(err)
	}
	stored, _, _ := e.billing.GetBill(ctx, e.employee, b.ID)
	if stored.PaymentStatus != domain.PaymentOverdue {
		t.Fatalf("stored status should be recomputed on write, got %s", stored.PaymentStatus)
	}

	paid, err := e.billing.ApplyPayment(ctx, e.employee, b.ID, b.Amount, domain.MethodInsurance)
	if err != nil {
		t.Fatal(err)
	}
	if paid.PaymentStatus != domain.PaymentPaid {
		t.Fatalf("full payment wins over overdue, got %s", paid.PaymentStatus)
	}

	_, err = e.billing.UpdateDueDate(ctx, e.patient, b.ID, tomorrow)
	expectKind(t, err, domain.KindPermission)
}

func TestStatusIsStoredNotDerivedOnRead(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	b := e.bill(t, "09:00")

	later := e.settings
	later.Now = func() time.Time { return fixedNow.AddDate(0, 0, 45) }
	billing := NewBillingService(repository.NewBillRepository(e.db), e.apptRepo, e.userRepo, nil, later, quietLogger())

	got, _, err := billing.GetBill(ctx, e.employee, b.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.PaymentStatus != domain.PaymentPending {
		t.Fatalf("reads return the stored status, got %s", got.PaymentStatus)
	}

	got, err = billing.UpdateDueDate(ctx, e.employee, b.ID, got.DueDate)
	if err != nil {
		t.Fatal(err)
	}
	if got.PaymentStatus != domain.PaymentOverdue {
		t.Fatalf("the next write should store overdue, got %s", got.PaymentStatus)
	}
}

func TestConcurrentPaymentsKeepEveryUpdate(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	b := e.bill(t, "09:00")

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := e.billing.ApplyPayment(ctx, e.employee, b.ID, dec("10"), domain.MethodCash); err != nil {
				t.Error(err)
			}
		}()
	}
	wg.Wait()

	stored, payments, err := e.billing.GetBill(ctx, e.employee, b.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !stored.PaidAmount.Equal(dec("100")) || stored.PaymentStatus != domain.PaymentPaid {
		t.Fatalf("lost update: paid %s status %s", stored.PaidAmount, stored.PaymentStatus)
	}
	if len(payments) != 10 {
		t.Fatalf("expected ten payment rows, got %d", len(payments))
	}
}

func TestListBills(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.bill(t, "09:00")
	e.bill(t, "09:30")

	bills, err := e.billing.ListBills(ctx, e.patient, e.patient.ProfileID)
	if err != nil {
		t.Fatal(err)
	}
	if len(bills) != 2 {
		t.Fatalf("expected two bills, got %d", len(bills))
	}
	other := domain.Actor{UserID: 77, Role: domain.RolePatient, ProfileID: e.patient.ProfileID + 1}
	_, err = e.billing.ListBills(ctx, other, e.patient.ProfileID)
	expectKind(t, err, domain.KindPermission)
	_, _, err = e.billing.GetBill(ctx, other, bills[0].ID)
	expectKind(t, err, domain.KindPermission)
}
