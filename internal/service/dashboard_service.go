package service

import (
	"context"

	"github.com/samber/lo"
	"github.com/sirupsen/logrus"

	"github.com/nuhmanudheent/hosp-connect-hospital/internal/domain"
	"github.com/nuhmanudheent/hosp-connect-hospital/internal/repository"
)

// dashboardItems caps each recent-activity list on a patient's dashboard.
const dashboardItems = 5

// Dashboard is the landing summary for the caller. Patients get their recent
// activity, doctors get today's schedule and their patient count.
type Dashboard struct {
	Role              domain.Role            `json:"role"`
	Appointments      []domain.Appointment   `json:"appointments,omitempty"`
	MedicalRecords    []domain.MedicalRecord `json:"medical_records,omitempty"`
	Bills             []domain.Bill          `json:"bills,omitempty"`
	TodayAppointments []domain.Appointment   `json:"today_appointments,omitempty"`
	TotalPatients     *int                   `json:"total_patients,omitempty"`
}

type DashboardService interface {
	Dashboard(ctx context.Context, actor domain.Actor) (*Dashboard, error)
}

type dashboardService struct {
	appointments repository.AppointmentRepository
	records      repository.RecordRepository
	bills        repository.BillRepository
	settings     Settings
	Logger       *logrus.Logger
}

func NewDashboardService(appointments repository.AppointmentRepository, records repository.RecordRepository, bills repository.BillRepository, settings Settings, logger *logrus.Logger) DashboardService {
	return &dashboardService{
		appointments: appointments,
		records:      records,
		bills:        bills,
		settings:     settings.withDefaults(),
		Logger:       logger,
	}
}

func (s *dashboardService) Dashboard(ctx context.Context, actor domain.Actor) (*Dashboard, error) {
	fields := logrus.Fields{"Role": actor.Role, "ProfileID": actor.ProfileID}
	d := &Dashboard{Role: actor.Role}

	switch actor.Role {
	case domain.RolePatient:
		appointments, err := s.appointments.RecentByPatient(ctx, actor.ProfileID, dashboardItems)
		if err != nil {
			return nil, failure(s.Logger, "Dashboard", fields, err)
		}
		records, err := s.records.ListByPatient(ctx, actor.ProfileID)
		if err != nil {
			return nil, failure(s.Logger, "Dashboard", fields, err)
		}
		bills, err := s.bills.ListByPatient(ctx, actor.ProfileID)
		if err != nil {
			return nil, failure(s.Logger, "Dashboard", fields, err)
		}
		d.Appointments = appointments
		d.MedicalRecords = lo.Subset(records, 0, dashboardItems)
		d.Bills = lo.Subset(bills, 0, dashboardItems)

	case domain.RoleDoctor:
		today, err := s.appointments.ListByDoctorOnDate(ctx, actor.ProfileID, s.settings.today())
		if err != nil {
			return nil, failure(s.Logger, "Dashboard", fields, err)
		}
		patients, err := s.appointments.PatientsOfDoctor(ctx, actor.ProfileID)
		if err != nil {
			return nil, failure(s.Logger, "Dashboard", fields, err)
		}
		d.TodayAppointments = today
		d.TotalPatients = lo.ToPtr(len(patients))
	}
	return d, nil
}
