package service

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"

	"github.com/nuhmanudheent/hosp-connect-hospital/internal/domain"
	"github.com/nuhmanudheent/hosp-connect-hospital/internal/repository"
	"github.com/nuhmanudheent/hosp-connect-hospital/internal/validation"
)

type BillRequest struct {
	AppointmentID uint
	// Amount defaults to the doctor's consultation fee.
	Amount *decimal.Decimal
	// DueDate defaults to today plus the configured number of days.
	DueDate     *domain.Date
	Description string
}

type BillingService interface {
	CreateBill(ctx context.Context, actor domain.Actor, req BillRequest) (*domain.Bill, error)
	ApplyPayment(ctx context.Context, actor domain.Actor, billID uint, amount decimal.Decimal, method domain.PaymentMethod) (*domain.Bill, error)
	UpdateDueDate(ctx context.Context, actor domain.Actor, billID uint, due domain.Date) (*domain.Bill, error)
	GetBill(ctx context.Context, actor domain.Actor, billID uint) (*domain.Bill, []domain.Payment, error)
	ListBills(ctx context.Context, actor domain.Actor, patientID uint) ([]domain.Bill, error)
}

type billingService struct {
	bills        repository.BillRepository
	appointments repository.AppointmentRepository
	users        repository.UserRepository
	publisher    EventPublisher
	settings     Settings
	Logger       *logrus.Logger
}

func NewBillingService(bills repository.BillRepository, appointments repository.AppointmentRepository, users repository.UserRepository, publisher EventPublisher, settings Settings, logger *logrus.Logger) BillingService {
	if publisher == nil {
		publisher = NopPublisher{}
	}
	return &billingService{
		bills:        bills,
		appointments: appointments,
		users:        users,
		publisher:    publisher,
		settings:     settings.withDefaults(),
		Logger:       logger,
	}
}

func requireBillingStaff(actor domain.Actor) error {
	if actor.Is(domain.RoleEmployee, domain.RoleAdmin) {
		return nil
	}
	return domain.ErrPermissionDenied.WithMessage("only employees and admins can manage bills")
}

func (s *billingService) event(t domain.EventType, b *domain.Bill) domain.AppointmentEvent {
	return domain.AppointmentEvent{
		ID:            uuid.New(),
		Type:          t,
		AppointmentID: b.AppointmentID,
		PatientID:     b.PatientID,
		BillID:        b.ID,
		PaymentStatus: b.PaymentStatus,
		Amount:        b.PaidAmount.StringFixed(2),
		OccurredAt:    s.settings.Now(),
	}
}

func (s *billingService) CreateBill(ctx context.Context, actor domain.Actor, req BillRequest) (*domain.Bill, error) {
	s.Logger.WithFields(logrus.Fields{
		"Function":      "CreateBill",
		"AppointmentID": req.AppointmentID,
	}).Info("Creating bill")

	if err := requireBillingStaff(actor); err != nil {
		return nil, err
	}
	appointment, err := s.appointments.GetByID(ctx, req.AppointmentID)
	if err != nil {
		return nil, failure(s.Logger, "CreateBill", logrus.Fields{"AppointmentID": req.AppointmentID}, err)
	}
	if appointment.Status == domain.StatusCancelled {
		return nil, domain.ErrNotBillable.WithDetail("appointment_id", appointment.ID)
	}

	var amount decimal.Decimal
	if req.Amount != nil {
		amount = *req.Amount
	} else {
		doctor, err := s.users.GetDoctor(ctx, appointment.DoctorID)
		if err != nil {
			return nil, failure(s.Logger, "CreateBill", logrus.Fields{"DoctorID": appointment.DoctorID}, err)
		}
		amount = doctor.ConsultationFee
	}
	if err := validation.Amount("amount", amount); err != nil {
		return nil, err
	}

	today := s.settings.today()
	due := today.AddDays(s.settings.BillDueDays)
	if req.DueDate != nil {
		due = *req.DueDate
	}

	bill := &domain.Bill{
		PatientID:     appointment.PatientID,
		AppointmentID: appointment.ID,
		Amount:        amount.Round(2),
		PaidAmount:    decimal.Zero,
		DueDate:       due,
		Description:   req.Description,
	}
	bill.Recompute(today, s.settings.Now())
	if err := s.bills.Create(ctx, bill); err != nil {
		return nil, failure(s.Logger, "CreateBill", logrus.Fields{"AppointmentID": req.AppointmentID}, err)
	}

	s.Logger.WithFields(logrus.Fields{
		"Function": "CreateBill",
		"BillID":   bill.ID,
		"Amount":   bill.Amount.StringFixed(2),
	}).Info("Bill created successfully")

	publish(ctx, s.publisher, s.Logger, s.event(domain.EventBillCreated, bill))
	return bill, nil
}

type paymentSnapshot struct {
	Amount        string               `json:"amount"`
	PaidAmount    string               `json:"paid_amount"`
	Outstanding   string               `json:"outstanding"`
	PaymentStatus domain.PaymentStatus `json:"payment_status"`
	DueDate       string               `json:"due_date"`
	Version       int                  `json:"version"`
}

func snapshotOf(b *domain.Bill) (datatypes.JSON, error) {
	raw, err := json.Marshal(paymentSnapshot{
		Amount:        b.Amount.StringFixed(2),
		PaidAmount:    b.PaidAmount.StringFixed(2),
		Outstanding:   b.Outstanding().StringFixed(2),
		PaymentStatus: b.PaymentStatus,
		DueDate:       b.DueDate.String(),
		Version:       b.Version + 1,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal payment snapshot: %w", err)
	}
	return datatypes.JSON(raw), nil
}

// ApplyPayment adds amount to the bill. A payment that would take the bill past
// its total fails with ErrOverpayment and changes nothing.
func (s *billingService) ApplyPayment(ctx context.Context, actor domain.Actor, billID uint, amount decimal.Decimal, method domain.PaymentMethod) (*domain.Bill, error) {
	s.Logger.WithFields(logrus.Fields{
		"Function": "ApplyPayment",
		"BillID":   billID,
		"Amount":   amount.String(),
		"Method":   method,
	}).Info("Applying payment")

	if err := requireBillingStaff(actor); err != nil {
		return nil, err
	}
	if err := validation.Amount("amount", amount); err != nil {
		return nil, err
	}
	if _, err := domain.ParsePaymentMethod(string(method)); err != nil {
		return nil, domain.NewValidationError("method", "Payment method must be one of CASH, CARD, UPI, INSURANCE, ONLINE")
	}

	today := s.settings.today()
	bill, err := s.bills.Update(ctx, billID, func(b *domain.Bill) (*domain.Payment, error) {
		next := b.PaidAmount.Add(amount)
		if next.GreaterThan(b.Amount) {
			return nil, domain.ErrOverpayment.
				WithDetail("outstanding", b.Outstanding().StringFixed(2)).
				WithDetail("attempted", amount.StringFixed(2))
		}
		b.PaidAmount = next
		b.Recompute(today, s.settings.Now())
		snapshot, err := snapshotOf(b)
		if err != nil {
			return nil, err
		}
		return &domain.Payment{Amount: amount, Method: method, Snapshot: snapshot}, nil
	})
	if err != nil {
		return nil, failure(s.Logger, "ApplyPayment", logrus.Fields{"BillID": billID}, err)
	}

	s.Logger.WithFields(logrus.Fields{
		"Function":      "ApplyPayment",
		"BillID":        bill.ID,
		"PaidAmount":    bill.PaidAmount.StringFixed(2),
		"PaymentStatus": bill.PaymentStatus,
	}).Info("Payment applied successfully")

	publish(ctx, s.publisher, s.Logger, s.event(domain.EventPaymentApplied, bill))
	return bill, nil
}

func (s *billingService) UpdateDueDate(ctx context.Context, actor domain.Actor, billID uint, due domain.Date) (*domain.Bill, error) {
	s.Logger.WithFields(logrus.Fields{
		"Function": "UpdateDueDate",
		"BillID":   billID,
		"DueDate":  due.String(),
	}).Info("Updating bill due date")

	if err := requireBillingStaff(actor); err != nil {
		return nil, err
	}
	if due.IsZero() {
		return nil, domain.NewValidationError("due_date", "Due date is required")
	}
	today := s.settings.today()
	bill, err := s.bills.Update(ctx, billID, func(b *domain.Bill) (*domain.Payment, error) {
		b.DueDate = due
		b.Recompute(today, s.settings.Now())
		return nil, nil
	})
	if err != nil {
		return nil, failure(s.Logger, "UpdateDueDate", logrus.Fields{"BillID": billID}, err)
	}
	return bill, nil
}

func canSeeBill(actor domain.Actor, patientID uint) error {
	if actor.Role.Staff() {
		return nil
	}
	if actor.Role == domain.RolePatient && actor.ProfileID == patientID {
		return nil
	}
	return domain.ErrPermissionDenied.WithMessage("patients can only view their own bills")
}

// GetBill returns the bill with its payment history. Status is the value stored
// by the last write.
func (s *billingService) GetBill(ctx context.Context, actor domain.Actor, billID uint) (*domain.Bill, []domain.Payment, error) {
	bill, err := s.bills.GetByID(ctx, billID)
	if err != nil {
		return nil, nil, failure(s.Logger, "GetBill", logrus.Fields{"BillID": billID}, err)
	}
	if err := canSeeBill(actor, bill.PatientID); err != nil {
		return nil, nil, err
	}
	payments, err := s.bills.Payments(ctx, billID)
	if err != nil {
		return nil, nil, failure(s.Logger, "GetBill", logrus.Fields{"BillID": billID}, err)
	}
	return bill, payments, nil
}

func (s *billingService) ListBills(ctx context.Context, actor domain.Actor, patientID uint) ([]domain.Bill, error) {
	if err := canSeeBill(actor, patientID); err != nil {
		return nil, err
	}
	bills, err := s.bills.ListByPatient(ctx, patientID)
	if err != nil {
		return nil, failure(s.Logger, "ListBills", logrus.Fields{"PatientID": patientID}, err)
	}
	return bills, nil
}
