package service

import (
	"context"
	"testing"

	"github.com/nuhmanudheent/hosp-connect-hospital/internal/domain"
	"github.com/nuhmanudheent/hosp-connect-hospital/internal/storetest"
)

func TestPatientDashboardShowsRecentActivity(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	times := []string{"09:00", "09:30", "10:00", "10:30", "11:00", "11:30", "12:00"}
	for _, at := range times {
		a := e.book(t, at)
		if _, err := e.billing.CreateBill(ctx, e.employee, BillRequest{AppointmentID: a.ID}); err != nil {
			t.Fatal(err)
		}
		if _, err := e.records.AddRecord(ctx, e.doctor, validRecord(e.patient.ProfileID)); err != nil {
			t.Fatal(err)
		}
	}

	d, err := e.dashboard.Dashboard(ctx, e.patient)
	if err != nil {
		t.Fatal(err)
	}
	if d.Role != domain.RolePatient {
		t.Fatalf("unexpected role %s", d.Role)
	}
	if len(d.Appointments) != 5 || len(d.MedicalRecords) != 5 || len(d.Bills) != 5 {
		t.Fatalf("expected five of each, got %d appointments %d records %d bills",
			len(d.Appointments), len(d.MedicalRecords), len(d.Bills))
	}
	if got := d.Appointments[0].Time.String(); got != "12:00" {
		t.Fatalf("latest appointment should come first, got %s", got)
	}
	if d.TotalPatients != nil || d.TodayAppointments != nil {
		t.Fatalf("patient dashboard should not carry doctor figures: %+v", d)
	}
}

func TestDoctorDashboardCountsPatients(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.book(t, "09:00")
	e.book(t, "09:30")

	other := actorOf(t, storetest.SeedPatient(t, e.db, "mallory"))
	if _, err := e.appts.Book(ctx, other, BookingRequest{
		DoctorID: e.doctor.ProfileID,
		Date:     today,
		Time:     clock(t, "15:00"),
		Reason:   "Sore throat and mild fever",
	}); err != nil {
		t.Fatal(err)
	}

	d, err := e.dashboard.Dashboard(ctx, e.doctor)
	if err != nil {
		t.Fatal(err)
	}
	if d.TotalPatients == nil || *d.TotalPatients != 2 {
		t.Fatalf("expected two distinct patients, got %v", d.TotalPatients)
	}
	if len(d.TodayAppointments) != 1 || d.TodayAppointments[0].PatientID != other.ProfileID {
		t.Fatalf("expected only today's appointment, got %+v", d.TodayAppointments)
	}
	if d.Appointments != nil || d.Bills != nil {
		t.Fatalf("doctor dashboard should not carry patient lists: %+v", d)
	}

	staff, err := e.dashboard.Dashboard(ctx, e.employee)
	if err != nil {
		t.Fatal(err)
	}
	if staff.Role != domain.RoleEmployee || staff.TotalPatients != nil {
		t.Fatalf("unexpected staff dashboard %+v", staff)
	}
}
