package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/nuhmanudheent/hosp-connect-hospital/internal/domain"
)

// MaxUpdateAttempts bounds optimistic retries on a contended bill.
const MaxUpdateAttempts = 5

var errStale = errors.New("stale row version")

// BillMutation changes a loaded bill and optionally returns the payment that caused it.
type BillMutation func(bill *domain.Bill) (*domain.Payment, error)

type BillRepository interface {
	Create(ctx context.Context, bill *domain.Bill) error
	GetByID(ctx context.Context, id uint) (*domain.Bill, error)
	ListByPatient(ctx context.Context, patientID uint) ([]domain.Bill, error)
	Payments(ctx context.Context, billID uint) ([]domain.Payment, error)
	Update(ctx context.Context, id uint, mutate BillMutation) (*domain.Bill, error)
}

type billRepository struct {
	db *gorm.DB
}

func NewBillRepository(db *gorm.DB) BillRepository {
	return &billRepository{db: db}
}

func (r *billRepository) Create(ctx context.Context, bill *domain.Bill) error {
	err := r.db.WithContext(ctx).Create(bill).Error
	if isUniqueViolation(err) {
		return domain.ErrDuplicate.WithMessage("a bill already exists for this appointment").
			WithDetail("appointment_id", bill.AppointmentID)
	}
	return err
}

func (r *billRepository) GetByID(ctx context.Context, id uint) (*domain.Bill, error) {
	var bill domain.Bill
	if err := r.db.WithContext(ctx).First(&bill, id).Error; err != nil {
		return nil, notFound(err, "bill")
	}
	return &bill, nil
}

func (r *billRepository) ListByPatient(ctx context.Context, patientID uint) ([]domain.Bill, error) {
	var bills []domain.Bill
	if err := r.db.WithContext(ctx).Where("patient_id = ?", patientID).Order("id DESC").Find(&bills).Error; err != nil {
		return nil, err
	}
	return bills, nil
}

func (r *billRepository) Payments(ctx context.Context, billID uint) ([]domain.Payment, error) {
	var payments []domain.Payment
	if err := r.db.WithContext(ctx).Where("bill_id = ?", billID).Order("id ASC").Find(&payments).Error; err != nil {
		return nil, err
	}
	return payments, nil
}

// Update applies mutate under optimistic concurrency. The write succeeds only
// when version still matches what was read; otherwise the bill is reloaded and
// mutate runs again, up to MaxUpdateAttempts times.
func (r *billRepository) Update(ctx context.Context, id uint, mutate BillMutation) (*domain.Bill, error) {
	for attempt := 1; attempt <= MaxUpdateAttempts; attempt++ {
		var bill domain.Bill
		err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := tx.First(&bill, id).Error; err != nil {
				return notFound(err, "bill")
			}
			version := bill.Version
			payment, err := mutate(&bill)
			if err != nil {
				return err
			}

			res := tx.Model(&domain.Bill{}).
				Where("id = ? AND version = ?", id, version).
				Updates(map[string]any{
					"paid_amount":    bill.PaidAmount,
					"due_date":       bill.DueDate,
					"payment_status": bill.PaymentStatus,
					"paid":           bill.Paid,
					"payment_date":   bill.PaymentDate,
					"version":        gorm.Expr("version + 1"),
				})
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return errStale
			}
			bill.Version = version + 1

			if payment != nil {
				payment.BillID = bill.ID
				if err := tx.Create(payment).Error; err != nil {
					return err
				}
			}
			return nil
		})
		if errors.Is(err, errStale) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return &bill, nil
	}
	return nil, domain.Internal(fmt.Errorf("bill %d: %w after %d attempts", id, errStale, MaxUpdateAttempts))
}
