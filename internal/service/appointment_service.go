package service

import (
	"context"
	"errors"

	"github.com/samber/lo"
	"github.com/sirupsen/logrus"

	"github.com/nuhmanudheent/hosp-connect-hospital/internal/domain"
	"github.com/nuhmanudheent/hosp-connect-hospital/internal/repository"
	"github.com/nuhmanudheent/hosp-connect-hospital/internal/validation"
)

type BookingRequest struct {
	DoctorID  uint
	PatientID uint
	Date      domain.Date
	Time      domain.ClockTime
	Reason    string
}

type AppointmentService interface {
	AvailableSlots(ctx context.Context, doctorID uint, date domain.Date) ([]domain.ClockTime, error)
	Book(ctx context.Context, actor domain.Actor, req BookingRequest) (*domain.Appointment, error)
	UpdateStatus(ctx context.Context, actor domain.Actor, appointmentID uint, status domain.AppointmentStatus, notes string) (*domain.Appointment, error)
	Get(ctx context.Context, actor domain.Actor, appointmentID uint) (*domain.Appointment, error)
	ListForPatient(ctx context.Context, actor domain.Actor, patientID uint) ([]domain.Appointment, error)
	ListForDoctor(ctx context.Context, actor domain.Actor, doctorID uint, date domain.Date) ([]domain.Appointment, error)
	ListPatientsForDoctor(ctx context.Context, actor domain.Actor, doctorID uint) ([]domain.Patient, error)
}

type appointmentService struct {
	repo      repository.AppointmentRepository
	users     repository.UserRepository
	publisher EventPublisher
	settings  Settings
	Logger    *logrus.Logger
}

func NewAppointmentService(repo repository.AppointmentRepository, users repository.UserRepository, publisher EventPublisher, settings Settings, logger *logrus.Logger) AppointmentService {
	if publisher == nil {
		publisher = NopPublisher{}
	}
	return &appointmentService{
		repo:      repo,
		users:     users,
		publisher: publisher,
		settings:  settings.withDefaults(),
		Logger:    logger,
	}
}

// AvailableSlots returns the doctor's free slot starts on date in order.
func (s *appointmentService) AvailableSlots(ctx context.Context, doctorID uint, date domain.Date) ([]domain.ClockTime, error) {
	s.Logger.WithFields(logrus.Fields{
		"Function": "AvailableSlots",
		"DoctorID": doctorID,
		"Date":     date.String(),
	}).Info("Computing available slots")

	if date.IsZero() {
		return nil, domain.NewValidationError("date", "Date is required")
	}
	if _, err := s.users.GetDoctor(ctx, doctorID); err != nil {
		return nil, failure(s.Logger, "AvailableSlots", logrus.Fields{"DoctorID": doctorID}, err)
	}
	taken, err := s.repo.TakenSlots(ctx, doctorID, date)
	if err != nil {
		return nil, failure(s.Logger, "AvailableSlots", logrus.Fields{"DoctorID": doctorID}, err)
	}
	return s.settings.Hours.Free(taken), nil
}

func (s *appointmentService) Book(ctx context.Context, actor domain.Actor, req BookingRequest) (*domain.Appointment, error) {
	s.Logger.WithFields(logrus.Fields{
		"Function":        "Book",
		"DoctorID":        req.DoctorID,
		"PatientID":       req.PatientID,
		"AppointmentDate": req.Date.String(),
		"AppointmentTime": req.Time.String(),
	}).Info("Starting appointment booking")

	switch actor.Role {
	case domain.RolePatient:
		if req.PatientID == 0 {
			req.PatientID = actor.ProfileID
		}
		if req.PatientID != actor.ProfileID {
			return nil, domain.ErrPermissionDenied.WithMessage("patients can only book for themselves")
		}
	case domain.RoleEmployee, domain.RoleAdmin:
		if req.PatientID == 0 {
			return nil, domain.NewValidationError("patient_id", "patient_id is required")
		}
	default:
		return nil, domain.ErrPermissionDenied.WithMessage("your role cannot book appointments")
	}

	err := validation.First(
		validation.Reason(req.Reason),
		validation.AppointmentTime(req.Time, s.settings.Hours),
		validation.AppointmentDate(req.Date, s.settings.today()),
	)
	if err != nil {
		return nil, err
	}

	appointment := &domain.Appointment{
		PatientID:       req.PatientID,
		DoctorID:        req.DoctorID,
		Date:            req.Date,
		Time:            req.Time,
		DurationMinutes: int(s.settings.Hours.Slot.Minutes()),
		Status:          domain.StatusScheduled,
		Reason:          req.Reason,
	}
	if err := s.repo.Book(ctx, appointment); err != nil {
		if errors.Is(err, domain.ErrSlotConflict) {
			s.Logger.WithFields(logrus.Fields{
				"Function": "Book",
				"DoctorID": req.DoctorID,
				"Time":     req.Time.String(),
			}).Info("Requested slot is already taken")
			return nil, s.withSuggestion(ctx, req)
		}
		return nil, failure(s.Logger, "Book", logrus.Fields{"DoctorID": req.DoctorID}, err)
	}

	s.Logger.WithFields(logrus.Fields{
		"Function":      "Book",
		"AppointmentID": appointment.ID,
	}).Info("Appointment booked successfully")

	publish(ctx, s.publisher, s.Logger, domain.NewAppointmentEvent(domain.EventAppointmentBooked, *appointment, s.settings.Now()))
	return appointment, nil
}

// withSuggestion builds the slot conflict error carrying the next free slot of
// the same day, or the first free one when nothing later is open.
func (s *appointmentService) withSuggestion(ctx context.Context, req BookingRequest) error {
	conflict := domain.ErrSlotConflict
	taken, err := s.repo.TakenSlots(ctx, req.DoctorID, req.Date)
	if err != nil {
		return conflict
	}
	free := s.settings.Hours.Free(taken)
	next, ok := lo.Find(free, func(c domain.ClockTime) bool { return c > req.Time })
	if !ok && len(free) > 0 {
		next, ok = free[0], true
	}
	if !ok {
		return conflict.WithMessage("no free slots remain on this day")
	}
	return conflict.WithMessage("this time is already booked, next free slot is "+next.String()).
		WithDetail("suggested_time", next.String())
}

func (s *appointmentService) UpdateStatus(ctx context.Context, actor domain.Actor, appointmentID uint, status domain.AppointmentStatus, notes string) (*domain.Appointment, error) {
	s.Logger.WithFields(logrus.Fields{
		"Function":      "UpdateStatus",
		"AppointmentID": appointmentID,
		"Status":        status,
		"Role":          actor.Role,
	}).Info("Updating appointment status")

	if err := validation.Notes(notes); err != nil {
		return nil, err
	}
	today := s.settings.today()
	updated, err := s.repo.UpdateStatus(ctx, appointmentID, func(a *domain.Appointment) error {
		if err := canChangeStatus(actor, a, status, today); err != nil {
			return err
		}
		if err := a.Status.Transition(status); err != nil {
			return err
		}
		a.Status = status
		if notes != "" {
			a.Notes = notes
		}
		return nil
	})
	if err != nil {
		return nil, failure(s.Logger, "UpdateStatus", logrus.Fields{"AppointmentID": appointmentID}, err)
	}

	s.Logger.WithFields(logrus.Fields{
		"Function":      "UpdateStatus",
		"AppointmentID": appointmentID,
		"Status":        updated.Status,
	}).Info("Appointment status updated")

	publish(ctx, s.publisher, s.Logger, domain.NewAppointmentEvent(domain.EventAppointmentStatusChanged, *updated, s.settings.Now()))
	return updated, nil
}

func canChangeStatus(actor domain.Actor, a *domain.Appointment, next domain.AppointmentStatus, today domain.Date) error {
	switch actor.Role {
	case domain.RoleEmployee, domain.RoleAdmin:
		return nil
	case domain.RoleDoctor:
		if a.DoctorID == actor.ProfileID {
			return nil
		}
		return domain.ErrPermissionDenied.WithMessage("doctors can only update their own appointments")
	case domain.RolePatient:
		if a.PatientID != actor.ProfileID {
			return domain.ErrPermissionDenied.WithMessage("patients can only manage their own appointments")
		}
		if next != domain.StatusCancelled {
			return domain.ErrPermissionDenied.WithMessage("patients can only cancel appointments")
		}
		if a.Date.Before(today) {
			return domain.ErrPermissionDenied.WithMessage("past appointments cannot be cancelled")
		}
		return nil
	}
	return domain.ErrPermissionDenied
}

func (s *appointmentService) Get(ctx context.Context, actor domain.Actor, appointmentID uint) (*domain.Appointment, error) {
	a, err := s.repo.GetByID(ctx, appointmentID)
	if err != nil {
		return nil, failure(s.Logger, "Get", logrus.Fields{"AppointmentID": appointmentID}, err)
	}
	switch {
	case actor.Is(domain.RoleEmployee, domain.RoleAdmin):
	case actor.Role == domain.RoleDoctor && a.DoctorID == actor.ProfileID:
	case actor.Role == domain.RolePatient && a.PatientID == actor.ProfileID:
	default:
		return nil, domain.ErrPermissionDenied
	}
	return a, nil
}

func (s *appointmentService) ListForPatient(ctx context.Context, actor domain.Actor, patientID uint) ([]domain.Appointment, error) {
	if actor.Role == domain.RolePatient && actor.ProfileID != patientID {
		return nil, domain.ErrPermissionDenied.WithMessage("patients can only view their own appointments")
	}
	appointments, err := s.repo.ListByPatient(ctx, patientID)
	if err != nil {
		return nil, failure(s.Logger, "ListForPatient", logrus.Fields{"PatientID": patientID}, err)
	}
	return appointments, nil
}

func (s *appointmentService) ListForDoctor(ctx context.Context, actor domain.Actor, doctorID uint, date domain.Date) ([]domain.Appointment, error) {
	switch {
	case actor.Is(domain.RoleEmployee, domain.RoleAdmin):
	case actor.Role == domain.RoleDoctor && actor.ProfileID == doctorID:
	default:
		return nil, domain.ErrPermissionDenied.WithMessage("only the doctor or staff can view this schedule")
	}
	if date.IsZero() {
		date = s.settings.today()
	}
	appointments, err := s.repo.ListByDoctorOnDate(ctx, doctorID, date)
	if err != nil {
		return nil, failure(s.Logger, "ListForDoctor", logrus.Fields{"DoctorID": doctorID}, err)
	}
	return appointments, nil
}

// ListPatientsForDoctor returns the distinct patients the doctor has seen or is due to see.
func (s *appointmentService) ListPatientsForDoctor(ctx context.Context, actor domain.Actor, doctorID uint) ([]domain.Patient, error) {
	switch {
	case actor.Is(domain.RoleEmployee, domain.RoleAdmin):
	case actor.Role == domain.RoleDoctor && actor.ProfileID == doctorID:
	default:
		return nil, domain.ErrPermissionDenied.WithMessage("only the doctor or staff can list the doctor's patients")
	}
	patients, err := s.repo.PatientsOfDoctor(ctx, doctorID)
	if err != nil {
		return nil, failure(s.Logger, "ListPatientsForDoctor", logrus.Fields{"DoctorID": doctorID}, err)
	}
	return patients, nil
}
