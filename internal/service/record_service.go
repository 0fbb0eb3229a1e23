package service

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/nuhmanudheent/hosp-connect-hospital/internal/domain"
	"github.com/nuhmanudheent/hosp-connect-hospital/internal/repository"
	"github.com/nuhmanudheent/hosp-connect-hospital/internal/validation"
)

type RecordInput struct {
	PatientID     uint
	AppointmentID *uint
	Diagnosis     string
	Prescription  string
	Notes         string
	FollowUpDate  *domain.Date
}

type RecordService interface {
	AddRecord(ctx context.Context, actor domain.Actor, in RecordInput) (*domain.MedicalRecord, error)
	ListForPatient(ctx context.Context, actor domain.Actor, patientID uint) ([]domain.MedicalRecord, error)
	ListForDoctor(ctx context.Context, actor domain.Actor, doctorID uint) ([]domain.MedicalRecord, error)
}

type recordService struct {
	records      repository.RecordRepository
	appointments repository.AppointmentRepository
	users        repository.UserRepository
	settings     Settings
	Logger       *logrus.Logger
}

func NewRecordService(records repository.RecordRepository, appointments repository.AppointmentRepository, users repository.UserRepository, settings Settings, logger *logrus.Logger) RecordService {
	return &recordService{
		records:      records,
		appointments: appointments,
		users:        users,
		settings:     settings.withDefaults(),
		Logger:       logger,
	}
}

// AddRecord appends a record written by the calling doctor.
func (s *recordService) AddRecord(ctx context.Context, actor domain.Actor, in RecordInput) (*domain.MedicalRecord, error) {
	s.Logger.WithFields(logrus.Fields{
		"Function":  "AddRecord",
		"PatientID": in.PatientID,
		"DoctorID":  actor.ProfileID,
	}).Info("Adding medical record")

	if actor.Role != domain.RoleDoctor {
		return nil, domain.ErrPermissionDenied.WithMessage("only doctors can add medical records")
	}
	err := validation.First(
		validation.Diagnosis(in.Diagnosis),
		validation.Prescription(in.Prescription),
		validation.Notes(in.Notes),
	)
	if err != nil {
		return nil, err
	}
	if in.FollowUpDate != nil && in.FollowUpDate.Before(s.settings.today()) {
		return nil, domain.NewValidationError("follow_up_date", "Follow-up date cannot be in the past")
	}
	if _, err := s.users.GetPatient(ctx, in.PatientID); err != nil {
		return nil, failure(s.Logger, "AddRecord", logrus.Fields{"PatientID": in.PatientID}, err)
	}
	if in.AppointmentID != nil {
		a, err := s.appointments.GetByID(ctx, *in.AppointmentID)
		if err != nil {
			return nil, failure(s.Logger, "AddRecord", logrus.Fields{"AppointmentID": *in.AppointmentID}, err)
		}
		if a.PatientID != in.PatientID || a.DoctorID != actor.ProfileID {
			return nil, domain.NewValidationError("appointment_id", "Appointment does not belong to this patient and doctor")
		}
	}

	record := &domain.MedicalRecord{
		PatientID:     in.PatientID,
		DoctorID:      actor.ProfileID,
		AppointmentID: in.AppointmentID,
		Diagnosis:     in.Diagnosis,
		Prescription:  in.Prescription,
		Notes:         in.Notes,
		FollowUpDate:  in.FollowUpDate,
	}
	if err := s.records.Create(ctx, record); err != nil {
		return nil, failure(s.Logger, "AddRecord", logrus.Fields{"PatientID": in.PatientID}, err)
	}
	return record, nil
}

// ListForPatient returns the patient's records. Doctors only see the records
// they wrote themselves.
func (s *recordService) ListForPatient(ctx context.Context, actor domain.Actor, patientID uint) ([]domain.MedicalRecord, error) {
	var (
		records []domain.MedicalRecord
		err     error
	)
	switch {
	case actor.Role == domain.RolePatient && actor.ProfileID != patientID:
		return nil, domain.ErrPermissionDenied.WithMessage("patients can only view their own records")
	case actor.Role == domain.RoleDoctor:
		records, err = s.records.ListByPatientAndDoctor(ctx, patientID, actor.ProfileID)
	default:
		records, err = s.records.ListByPatient(ctx, patientID)
	}
	if err != nil {
		return nil, failure(s.Logger, "ListForPatient", logrus.Fields{"PatientID": patientID}, err)
	}
	return records, nil
}

// ListForDoctor returns every record the doctor wrote, newest first.
func (s *recordService) ListForDoctor(ctx context.Context, actor domain.Actor, doctorID uint) ([]domain.MedicalRecord, error) {
	if !(actor.Role == domain.RoleDoctor && actor.ProfileID == doctorID) && actor.Role != domain.RoleAdmin {
		return nil, domain.ErrPermissionDenied.WithMessage("only the authoring doctor can list these records")
	}
	records, err := s.records.ListByDoctor(ctx, doctorID)
	if err != nil {
		return nil, failure(s.Logger, "ListForDoctor", logrus.Fields{"DoctorID": doctorID}, err)
	}
	return records, nil
}
