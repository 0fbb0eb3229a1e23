package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/nuhmanudheent/hosp-connect-hospital/internal/domain"
)

type AppointmentRepository interface {
	TakenSlots(ctx context.Context, doctorID uint, date domain.Date) ([]domain.ClockTime, error)
	Book(ctx context.Context, appointment *domain.Appointment) error
	GetByID(ctx context.Context, id uint) (*domain.Appointment, error)
	ListByPatient(ctx context.Context, patientID uint) ([]domain.Appointment, error)
	RecentByPatient(ctx context.Context, patientID uint, limit int) ([]domain.Appointment, error)
	PatientsOfDoctor(ctx context.Context, doctorID uint) ([]domain.Patient, error)
	ListByDoctorOnDate(ctx context.Context, doctorID uint, date domain.Date) ([]domain.Appointment, error)
	UpdateStatus(ctx context.Context, id uint, apply func(*domain.Appointment) error) (*domain.Appointment, error)
}

type appointmentRepository struct {
	db *gorm.DB
}

func NewAppointmentRepository(db *gorm.DB) AppointmentRepository {
	return &appointmentRepository{
		db: db,
	}
}

func activeSlots(db *gorm.DB, doctorID uint, date domain.Date) ([]domain.ClockTime, error) {
	var taken []domain.ClockTime
	err := db.Model(&domain.Appointment{}).
		Where("doctor_id = ? AND appointment_date = ? AND status <> ?", doctorID, date, domain.StatusCancelled).
		Order("appointment_time ASC").
		Pluck("appointment_time", &taken).Error
	return taken, err
}

// TakenSlots lists the start times held by active appointments of the doctor on date.
func (r *appointmentRepository) TakenSlots(ctx context.Context, doctorID uint, date domain.Date) ([]domain.ClockTime, error) {
	return activeSlots(r.db.WithContext(ctx), doctorID, date)
}

// Book checks the doctor and the slot, then inserts the appointment, all in one
// transaction. The partial unique index decides races the pre-check cannot see.
func (r *appointmentRepository) Book(ctx context.Context, appointment *domain.Appointment) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var doctor domain.Doctor
		if err := tx.First(&doctor, appointment.DoctorID).Error; err != nil {
			return notFound(err, "doctor")
		}
		if !doctor.IsAvailable {
			return domain.ErrDoctorUnavailable
		}

		var patients int64
		if err := tx.Model(&domain.Patient{}).Where("id = ?", appointment.PatientID).Count(&patients).Error; err != nil {
			return err
		}
		if patients == 0 {
			return domain.NotFound("patient")
		}

		var clashes int64
		err := tx.Model(&domain.Appointment{}).
			Where("doctor_id = ? AND appointment_date = ? AND appointment_time = ? AND status <> ?",
				appointment.DoctorID, appointment.Date, appointment.Time, domain.StatusCancelled).
			Count(&clashes).Error
		if err != nil {
			return err
		}
		if clashes > 0 {
			return domain.ErrSlotConflict
		}
		return tx.Create(appointment).Error
	})
	if isUniqueViolation(err) {
		return domain.ErrSlotConflict
	}
	return err
}

func (r *appointmentRepository) GetByID(ctx context.Context, id uint) (*domain.Appointment, error) {
	var appointment domain.Appointment
	if err := r.db.WithContext(ctx).First(&appointment, id).Error; err != nil {
		return nil, notFound(err, "appointment")
	}
	return &appointment, nil
}

func (r *appointmentRepository) ListByPatient(ctx context.Context, patientID uint) ([]domain.Appointment, error) {
	var appointments []domain.Appointment
	err := r.db.WithContext(ctx).Where("patient_id = ?", patientID).
		Order("appointment_date ASC, appointment_time ASC").
		Find(&appointments).Error
	if err != nil {
		return nil, err
	}
	return appointments, nil
}

// RecentByPatient returns the latest appointments of the patient, newest day first.
func (r *appointmentRepository) RecentByPatient(ctx context.Context, patientID uint, limit int) ([]domain.Appointment, error) {
	var appointments []domain.Appointment
	err := r.db.WithContext(ctx).Where("patient_id = ?", patientID).
		Order("appointment_date DESC, appointment_time DESC").
		Limit(limit).
		Find(&appointments).Error
	if err != nil {
		return nil, err
	}
	return appointments, nil
}

// PatientsOfDoctor lists each patient that has ever had an appointment with the doctor, once.
func (r *appointmentRepository) PatientsOfDoctor(ctx context.Context, doctorID uint) ([]domain.Patient, error) {
	db := r.db.WithContext(ctx)
	seen := db.Model(&domain.Appointment{}).Select("patient_id").Where("doctor_id = ?", doctorID)
	var patients []domain.Patient
	if err := db.Where("id IN (?)", seen).Order("id ASC").Find(&patients).Error; err != nil {
		return nil, err
	}
	return patients, nil
}

func (r *appointmentRepository) ListByDoctorOnDate(ctx context.Context, doctorID uint, date domain.Date) ([]domain.Appointment, error) {
	var appointments []domain.Appointment
	err := r.db.WithContext(ctx).Where("doctor_id = ? AND appointment_date = ?", doctorID, date).
		Order("appointment_time ASC").
		Find(&appointments).Error
	if err != nil {
		return nil, err
	}
	return appointments, nil
}

// UpdateStatus loads the appointment, lets apply change it, and writes the new
// status only if nobody moved it in the meantime.
func (r *appointmentRepository) UpdateStatus(ctx context.Context, id uint, apply func(*domain.Appointment) error) (*domain.Appointment, error) {
	var updated domain.Appointment
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&updated, id).Error; err != nil {
			return notFound(err, "appointment")
		}
		from := updated.Status
		if err := apply(&updated); err != nil {
			return err
		}
		res := tx.Model(&domain.Appointment{}).
			Where("id = ? AND status = ?", id, from).
			Updates(map[string]any{"status": updated.Status, "notes": updated.Notes})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return errStale
		}
		return nil
	})
	if errors.Is(err, errStale) {
		return nil, domain.ErrInvalidTransition.WithMessage("appointment status changed concurrently, reload and retry")
	}
	if err != nil {
		return nil, err
	}
	return &updated, nil
}
