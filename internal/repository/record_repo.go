package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/nuhmanudheent/hosp-connect-hospital/internal/domain"
)

// RecordRepository is append-only: records are never edited or removed.
type RecordRepository interface {
	Create(ctx context.Context, record *domain.MedicalRecord) error
	ListByPatient(ctx context.Context, patientID uint) ([]domain.MedicalRecord, error)
	ListByPatientAndDoctor(ctx context.Context, patientID, doctorID uint) ([]domain.MedicalRecord, error)
	ListByDoctor(ctx context.Context, doctorID uint) ([]domain.MedicalRecord, error)
}

type recordRepository struct {
	db *gorm.DB
}

func NewRecordRepository(db *gorm.DB) RecordRepository {
	return &recordRepository{db: db}
}

func (r *recordRepository) Create(ctx context.Context, record *domain.MedicalRecord) error {
	return r.db.WithContext(ctx).Create(record).Error
}

// newestFirst runs the filtered listing shared by every record query.
func (r *recordRepository) newestFirst(ctx context.Context, query string, args ...any) ([]domain.MedicalRecord, error) {
	var records []domain.MedicalRecord
	err := r.db.WithContext(ctx).Where(query, args...).Order("created_at DESC").Find(&records).Error
	if err != nil {
		return nil, err
	}
	return records, nil
}

func (r *recordRepository) ListByPatient(ctx context.Context, patientID uint) ([]domain.MedicalRecord, error) {
	return r.newestFirst(ctx, "patient_id = ?", patientID)
}

// ListByPatientAndDoctor returns the records doctorID wrote for patientID.
func (r *recordRepository) ListByPatientAndDoctor(ctx context.Context, patientID, doctorID uint) ([]domain.MedicalRecord, error) {
	return r.newestFirst(ctx, "patient_id = ? AND doctor_id = ?", patientID, doctorID)
}

func (r *recordRepository) ListByDoctor(ctx context.Context, doctorID uint) ([]domain.MedicalRecord, error) {
	return r.newestFirst(ctx, "doctor_id = ?", doctorID)
}
