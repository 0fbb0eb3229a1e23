package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/nuhmanudheent/hosp-connect-hospital/internal/domain"
	"github.com/nuhmanudheent/hosp-connect-hospital/internal/storetest"
)

func TestAvailableSlots(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	slots, err := e.appts.AvailableSlots(ctx, e.doctor.ProfileID, tomorrow)
	if err != nil {
		t.Fatal(err)
	}
	if len(slots) != 16 || slots[0].String() != "09:00" || slots[15].String() != "16:30" {
		t.Fatalf("unexpected slots %v", slots)
	}

	booked := e.book(t, "09:00")
	e.book(t, "16:30")
	slots, _ = e.appts.AvailableSlots(ctx, e.doctor.ProfileID, tomorrow)
	if len(slots) != 14 || slots[0].String() != "09:30" || slots[13].String() != "16:00" {
		t.Fatalf("booked slots should be excluded, got %v", slots)
	}

	if _, err := e.appts.UpdateStatus(ctx, e.patient, booked.ID, domain.StatusCancelled, ""); err != nil {
		t.Fatal(err)
	}
	slots, _ = e.appts.AvailableSlots(ctx, e.doctor.ProfileID, tomorrow)
	if len(slots) != 15 || slots[0].String() != "09:00" {
		t.Fatalf("cancelled slot should be free again, got %v", slots)
	}

	_, err = e.appts.AvailableSlots(ctx, 999, tomorrow)
	expectKind(t, err, domain.KindNotFound)
}

func TestBookSlotConflictSuggestsNextSlot(t *testing.T) {
	e := newEnv(t)
	e.book(t, "10:00")
	e.book(t, "10:30")

	_, err := e.appts.Book(context.Background(), e.patient, BookingRequest{
		DoctorID: e.doctor.ProfileID, Date: tomorrow, Time: clock(t, "10:00"), Reason: "Second opinion on results",
	})
	if !errors.Is(err, domain.ErrSlotConflict) {
		t.Fatalf("expected slot conflict, got %v", err)
	}
	expectKind(t, err, domain.KindConflict)
	if got := domain.AsError(err).Details["suggested_time"]; got != "11:00" {
		t.Fatalf("expected suggestion 11:00, got %v", got)
	}
}

func TestBookValidation(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	base := BookingRequest{DoctorID: e.doctor.ProfileID, Date: tomorrow, Time: clock(t, "11:00"), Reason: "Annual physical examination"}

	cases := []struct {
		name   string
		mutate func(*BookingRequest)
		target error
		kind   domain.Kind
	}{
		{"past date", func(r *BookingRequest) { r.Date = today.AddDays(-1) }, domain.ErrPastDate, domain.KindValidation},
		{"short reason", func(r *BookingRequest) { r.Reason = "pain" }, nil, domain.KindValidation},
		{"off boundary", func(r *BookingRequest) { r.Time = clock(t, "11:15") }, nil, domain.KindValidation},
		{"after hours", func(r *BookingRequest) { r.Time = clock(t, "17:00") }, nil, domain.KindValidation},
		{"unknown doctor", func(r *BookingRequest) { r.DoctorID = 999 }, domain.ErrNotFound, domain.KindNotFound},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			req := base
			c.mutate(&req)
			_, err := e.appts.Book(ctx, e.patient, req)
			expectKind(t, err, c.kind)
			if c.target != nil && !errors.Is(err, c.target) {
				t.Fatalf("expected %v, got %v", c.target, err)
			}
		})
	}

	// today itself is bookable
	req := base
	req.Date = today
	if _, err := e.appts.Book(ctx, e.patient, req); err != nil {
		t.Fatal(err)
	}
}

func TestBookDoctorUnavailable(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	if err := e.users.SetDoctorAvailability(ctx, e.doctor, e.doctor.ProfileID, false); err != nil {
		t.Fatal(err)
	}
	_, err := e.appts.Book(ctx, e.patient, BookingRequest{
		DoctorID: e.doctor.ProfileID, Date: tomorrow, Time: clock(t, "09:00"), Reason: "Routine blood pressure check",
	})
	if !errors.Is(err, domain.ErrDoctorUnavailable) {
		t.Fatalf("expected doctor unavailable, got %v", err)
	}
}

func TestBookPermissions(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	req := BookingRequest{DoctorID: e.doctor.ProfileID, Date: tomorrow, Time: clock(t, "09:00"), Reason: "Routine blood pressure check"}

	_, err := e.appts.Book(ctx, e.doctor, req)
	expectKind(t, err, domain.KindPermission)

	other := req
	other.PatientID = e.patient.ProfileID + 100
	_, err = e.appts.Book(ctx, e.patient, other)
	expectKind(t, err, domain.KindPermission)

	_, err = e.appts.Book(ctx, e.employee, req)
	expectKind(t, err, domain.KindValidation)

	staff := req
	staff.PatientID = e.patient.ProfileID
	a, err := e.appts.Book(ctx, e.employee, staff)
	if err != nil {
		t.Fatal(err)
	}
	if a.Status != domain.StatusScheduled || a.DurationMinutes != 30 {
		t.Fatalf("unexpected appointment %+v", a)
	}
}

func TestConcurrentBookingExactlyOneWins(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	const n = 8
	at := clock(t, "14:00")
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		wins      int
		conflicts int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := e.appts.Book(ctx, e.patient, BookingRequest{
				DoctorID: e.doctor.ProfileID, Date: tomorrow, Time: at, Reason: "Concurrent booking attempt",
			})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				wins++
			case errors.Is(err, domain.ErrSlotConflict):
				conflicts++
			default:
				t.Errorf("unexpected error %v", err)
			}
		}()
	}
	wg.Wait()
	if wins != 1 || conflicts != n-1 {
		t.Fatalf("expected exactly one winner, got %d wins %d conflicts", wins, conflicts)
	}
}

func TestStatusWorkflow(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	a := e.book(t, "09:00")
	done, err := e.appts.UpdateStatus(ctx, e.doctor, a.ID, domain.StatusCompleted, "Prescribed rest")
	if err != nil {
		t.Fatal(err)
	}
	if done.Status != domain.StatusCompleted || done.Notes != "Prescribed rest" {
		t.Fatalf("unexpected appointment %+v", done)
	}

	for _, next := range []domain.AppointmentStatus{domain.StatusCancelled, domain.StatusScheduled, domain.StatusNoShow} {
		_, err := e.appts.UpdateStatus(ctx, e.admin, a.ID, next, "")
		if !errors.Is(err, domain.ErrInvalidTransition) {
			t.Fatalf("COMPLETED -> %s: expected invalid transition, got %v", next, err)
		}
		expectKind(t, err, domain.KindState)
	}

	b := e.book(t, "09:30")
	if _, err := e.appts.UpdateStatus(ctx, e.employee, b.ID, domain.StatusCancelled, ""); err != nil {
		t.Fatal(err)
	}
	if _, err := e.appts.UpdateStatus(ctx, e.employee, b.ID, domain.StatusCompleted, ""); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("CANCELLED -> COMPLETED: expected invalid transition, got %v", err)
	}

	got := e.events.types()
	want := []domain.EventType{
		domain.EventAppointmentBooked, domain.EventAppointmentStatusChanged,
		domain.EventAppointmentBooked, domain.EventAppointmentStatusChanged,
	}
	if len(got) != len(want) {
		t.Fatalf("expected events %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected events %v, got %v", want, got)
		}
	}
}

func TestStatusPermissions(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	a := e.book(t, "10:00")

	_, err := e.appts.UpdateStatus(ctx, e.patient, a.ID, domain.StatusCompleted, "")
	expectKind(t, err, domain.KindPermission)

	otherDoctor := domain.Actor{UserID: 99, Role: domain.RoleDoctor, ProfileID: e.doctor.ProfileID + 50}
	_, err = e.appts.UpdateStatus(ctx, otherDoctor, a.ID, domain.StatusNoShow, "")
	expectKind(t, err, domain.KindPermission)

	otherPatient := domain.Actor{UserID: 98, Role: domain.RolePatient, ProfileID: e.patient.ProfileID + 50}
	_, err = e.appts.UpdateStatus(ctx, otherPatient, a.ID, domain.StatusCancelled, "")
	expectKind(t, err, domain.KindPermission)

	stored, _ := e.apptRepo.GetByID(ctx, a.ID)
	if stored.Status != domain.StatusScheduled {
		t.Fatalf("denied requests must not change status, got %s", stored.Status)
	}

	if _, err := e.appts.UpdateStatus(ctx, e.patient, a.ID, domain.StatusCancelled, ""); err != nil {
		t.Fatalf("patient should cancel own upcoming appointment: %v", err)
	}
}

func TestPatientCannotCancelPastAppointment(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	past := &domain.Appointment{
		PatientID: e.patient.ProfileID, DoctorID: e.doctor.ProfileID,
		Date: today.AddDays(-3), Time: clock(t, "09:00"), DurationMinutes: 30,
		Status: domain.StatusScheduled, Reason: "Booked before today",
	}
	if err := e.db.Create(past).Error; err != nil {
		t.Fatal(err)
	}
	_, err := e.appts.UpdateStatus(ctx, e.patient, past.ID, domain.StatusCancelled, "")
	expectKind(t, err, domain.KindPermission)
	if _, err := e.appts.UpdateStatus(ctx, e.employee, past.ID, domain.StatusNoShow, ""); err != nil {
		t.Fatal(err)
	}
}

func TestListings(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.book(t, "11:00")
	e.book(t, "09:00")

	mine, err := e.appts.ListForPatient(ctx, e.patient, e.patient.ProfileID)
	if err != nil {
		t.Fatal(err)
	}
	if len(mine) != 2 || mine[0].Time.String() != "09:00" {
		t.Fatalf("unexpected list %+v", mine)
	}
	_, err = e.appts.ListForPatient(ctx, e.patient, e.patient.ProfileID+1)
	expectKind(t, err, domain.KindPermission)

	schedule, err := e.appts.ListForDoctor(ctx, e.doctor, e.doctor.ProfileID, tomorrow)
	if err != nil {
		t.Fatal(err)
	}
	if len(schedule) != 2 {
		t.Fatalf("expected two appointments on the schedule, got %d", len(schedule))
	}
	_, err = e.appts.ListForDoctor(ctx, e.patient, e.doctor.ProfileID, tomorrow)
	expectKind(t, err, domain.KindPermission)

	_, err = e.appts.Get(ctx, domain.Actor{Role: domain.RolePatient, ProfileID: 12345}, mine[0].ID)
	expectKind(t, err, domain.KindPermission)
}

func TestListPatientsForDoctor(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.book(t, "09:00")
	e.book(t, "10:00")
	other := actorOf(t, storetest.SeedPatient(t, e.db, "mallory"))
	if _, err := e.appts.Book(ctx, other, BookingRequest{
		DoctorID: e.doctor.ProfileID,
		Date:     tomorrow,
		Time:     clock(t, "11:00"),
		Reason:   "Sore throat and mild fever",
	}); err != nil {
		t.Fatal(err)
	}

	for _, actor := range []domain.Actor{e.doctor, e.employee, e.admin} {
		patients, err := e.appts.ListPatientsForDoctor(ctx, actor, e.doctor.ProfileID)
		if err != nil {
			t.Fatalf("%s: %v", actor.Role, err)
		}
		if len(patients) != 2 || patients[0].ID != e.patient.ProfileID || patients[1].ID != other.ProfileID {
			t.Fatalf("expected each patient once, got %+v", patients)
		}
	}

	_, err := e.appts.ListPatientsForDoctor(ctx, e.patient, e.doctor.ProfileID)
	expectKind(t, err, domain.KindPermission)
	otherDoctor := domain.Actor{UserID: 88, Role: domain.RoleDoctor, ProfileID: e.doctor.ProfileID + 1}
	_, err = e.appts.ListPatientsForDoctor(ctx, otherDoctor, e.doctor.ProfileID)
	expectKind(t, err, domain.KindPermission)
}
