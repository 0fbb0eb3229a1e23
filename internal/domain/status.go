package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type AppointmentStatus string

const (
	StatusScheduled AppointmentStatus = "SCHEDULED"
	StatusCompleted AppointmentStatus = "COMPLETED"
	StatusCancelled AppointmentStatus = "CANCELLED"
	StatusNoShow    AppointmentStatus = "NO_SHOW"
)

// transitions lists the legal successors of each status. Terminal statuses have none.
var transitions = map[AppointmentStatus][]AppointmentStatus{
	StatusScheduled: {StatusCompleted, StatusCancelled, StatusNoShow},
}

// ParseAppointmentStatus accepts the current statuses and the legacy PENDING and
// CONFIRMED values, both of which mean SCHEDULED.
func ParseAppointmentStatus(s string) (AppointmentStatus, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "SCHEDULED", "PENDING", "CONFIRMED":
		return StatusScheduled, nil
	case "COMPLETED":
		return StatusCompleted, nil
	case "CANCELLED", "CANCELED":
		return StatusCancelled, nil
	case "NO_SHOW", "NOSHOW":
		return StatusNoShow, nil
	}
	return "", fmt.Errorf("unknown appointment status %q", s)
}

// Active reports whether the appointment still occupies its slot.
func (s AppointmentStatus) Active() bool { return s != StatusCancelled }

func (s AppointmentStatus) Terminal() bool { return len(transitions[s]) == 0 }

func (s AppointmentStatus) CanTransitionTo(next AppointmentStatus) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Transition validates moving from s to next.
func (s AppointmentStatus) Transition(next AppointmentStatus) error {
	if s.CanTransitionTo(next) {
		return nil
	}
	if s.Terminal() {
		return ErrInvalidTransition.WithMessage(fmt.Sprintf("appointment is %s and can no longer change", s)).
			WithDetail("from", string(s)).WithDetail("to", string(next))
	}
	return ErrInvalidTransition.WithMessage(fmt.Sprintf("cannot move appointment from %s to %s", s, next)).
		WithDetail("from", string(s)).WithDetail("to", string(next))
}

type PaymentStatus string

const (
	PaymentPending PaymentStatus = "PENDING"
	PaymentPartial PaymentStatus = "PARTIAL"
	PaymentPaid    PaymentStatus = "PAID"
	PaymentOverdue PaymentStatus = "OVERDUE"
)

// DerivePaymentStatus classifies a bill. A fully paid bill is PAID even after its due date.
func DerivePaymentStatus(amount, paid decimal.Decimal, due, today Date) PaymentStatus {
	switch {
	case paid.GreaterThanOrEqual(amount):
		return PaymentPaid
	case paid.IsPositive():
		return PaymentPartial
	case !due.IsZero() && due.Before(today):
		return PaymentOverdue
	default:
		return PaymentPending
	}
}

type PaymentMethod string

const (
	MethodCash      PaymentMethod = "CASH"
	MethodCard      PaymentMethod = "CARD"
	MethodUPI       PaymentMethod = "UPI"
	MethodInsurance PaymentMethod = "INSURANCE"
	MethodOnline    PaymentMethod = "ONLINE"
)

func ParsePaymentMethod(s string) (PaymentMethod, error) {
	m := PaymentMethod(strings.ToUpper(strings.TrimSpace(s)))
	switch m {
	case MethodCash, MethodCard, MethodUPI, MethodInsurance, MethodOnline:
		return m, nil
	}
	return "", fmt.Errorf("unknown payment method %q", s)
}

// WorkingHours is a doctor's bookable window split into fixed slots.
type WorkingHours struct {
	Open  ClockTime
	Close ClockTime
	Slot  time.Duration
}

// DefaultWorkingHours is 09:00-17:00 in 30 minute slots.
var DefaultWorkingHours = WorkingHours{
	Open:  NewClockTime(9, 0),
	Close: NewClockTime(17, 0),
	Slot:  30 * time.Minute,
}

// Slots returns every slot start in [Open, Close).
func (w WorkingHours) Slots() []ClockTime {
	step := ClockTime(w.Slot / time.Minute)
	if step <= 0 {
		return nil
	}
	out := make([]ClockTime, 0, int((w.Close-w.Open)/step))
	for c := w.Open; c+step <= w.Close; c += step {
		out = append(out, c)
	}
	return out
}

// IsSlotStart reports whether c is a legal slot start.
func (w WorkingHours) IsSlotStart(c ClockTime) bool {
	step := ClockTime(w.Slot / time.Minute)
	if step <= 0 || c < w.Open || c+step > w.Close {
		return false
	}
	return (c-w.Open)%step == 0
}

// Free removes taken slot starts from Slots, keeping order.
func (w WorkingHours) Free(taken []ClockTime) []ClockTime {
	busy := make(map[ClockTime]struct{}, len(taken))
	for _, t := range taken {
		busy[t] = struct{}{}
	}
	free := make([]ClockTime, 0)
	for _, s := range w.Slots() {
		if _, ok := busy[s]; !ok {
			free = append(free, s)
		}
	}
	return free
}
