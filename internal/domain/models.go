package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Role string

const (
	RolePatient  Role = "PATIENT"
	RoleDoctor   Role = "DOCTOR"
	RoleEmployee Role = "EMPLOYEE"
	RoleAdmin    Role = "ADMIN"
)

func ParseRole(s string) (Role, error) {
	r := Role(strings.ToUpper(strings.TrimSpace(s)))
	switch r {
	case RolePatient, RoleDoctor, RoleEmployee, RoleAdmin:
		return r, nil
	}
	return "", fmt.Errorf("unknown role %q", s)
}

// Staff reports whether the role may manage appointments and bills.
func (r Role) Staff() bool {
	switch r {
	case RoleDoctor, RoleEmployee, RoleAdmin:
		return true
	case RolePatient:
		return false
	}
	return false
}

// User is the identity. Exactly one profile matching Role is attached.
type User struct {
	gorm.Model
	Username     string `gorm:"size:50;uniqueIndex;not null"`
	Email        string `gorm:"size:254"`
	FirstName    string `gorm:"size:50"`
	LastName     string `gorm:"size:50"`
	PasswordHash string `gorm:"not null" json:"-"`
	Role         Role   `gorm:"size:20;not null;index"`

	Patient  *Patient      `gorm:"constraint:OnDelete:CASCADE"`
	Doctor   *Doctor       `gorm:"constraint:OnDelete:CASCADE"`
	Employee *Employee     `gorm:"constraint:OnDelete:CASCADE"`
	Admin    *AdminProfile `gorm:"constraint:OnDelete:CASCADE"`
}

func (u User) FullName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

type Patient struct {
	gorm.Model
	UserID         uint   `gorm:"uniqueIndex;not null"`
	Phone          string `gorm:"size:15"`
	Address        string
	DateOfBirth    Date
	BloodGroup     string `gorm:"size:5"`
	IsAdmitted     bool
	Room           string `gorm:"size:20"`
	Bed            string `gorm:"size:20"`
	MedicalHistory string
}

type Doctor struct {
	gorm.Model
	UserID          uint   `gorm:"uniqueIndex;not null"`
	Specialization  string `gorm:"size:100"`
	Phone           string `gorm:"size:15"`
	Address         string
	Experience      int
	IsAvailable     bool
	ConsultationFee decimal.Decimal `gorm:"type:numeric(10,2)"`
}

type Employee struct {
	gorm.Model
	UserID   uint   `gorm:"uniqueIndex;not null"`
	Position string `gorm:"size:100"`
	Phone    string `gorm:"size:15"`
	Address  string
}

type AdminProfile struct {
	gorm.Model
	UserID       uint   `gorm:"uniqueIndex;not null"`
	Phone        string `gorm:"size:15"`
	Address      string
	IsSuperAdmin bool
}

type Appointment struct {
	gorm.Model
	PatientID       uint              `gorm:"not null;index"`
	DoctorID        uint              `gorm:"not null;index"`
	Date            Date              `gorm:"column:appointment_date;not null"`
	Time            ClockTime         `gorm:"column:appointment_time;not null"`
	DurationMinutes int               `gorm:"not null"`
	Status          AppointmentStatus `gorm:"size:20;not null"`
	Reason          string
	Notes           string
}

type Bill struct {
	gorm.Model
	PatientID     uint            `gorm:"not null;index"`
	AppointmentID uint            `gorm:"not null;uniqueIndex"`
	Amount        decimal.Decimal `gorm:"type:numeric(10,2);not null"`
	PaidAmount    decimal.Decimal `gorm:"type:numeric(10,2);not null"`
	DueDate       Date
	PaymentStatus PaymentStatus `gorm:"size:20;not null"`
	Paid          bool
	PaymentDate   *time.Time
	Description   string
	Version       int `gorm:"not null;default:0"`
}

// Outstanding is what is still owed on the bill.
func (b Bill) Outstanding() decimal.Decimal {
	return b.Amount.Sub(b.PaidAmount)
}

// Recompute refreshes the derived payment fields from the stored amounts.
func (b *Bill) Recompute(today Date, now time.Time) {
	b.PaymentStatus = DerivePaymentStatus(b.Amount, b.PaidAmount, b.DueDate, today)
	b.Paid = b.PaymentStatus == PaymentPaid
	switch {
	case b.Paid && b.PaymentDate == nil:
		t := now
		b.PaymentDate = &t
	case !b.Paid:
		b.PaymentDate = nil
	}
}

type Payment struct {
	gorm.Model
	BillID   uint            `gorm:"not null;index"`
	Amount   decimal.Decimal `gorm:"type:numeric(10,2);not null"`
	Method   PaymentMethod   `gorm:"size:20;not null"`
	Snapshot datatypes.JSON
}

type MedicalRecord struct {
	gorm.Model
	PatientID     uint `gorm:"not null;index"`
	DoctorID      uint `gorm:"not null;index"`
	AppointmentID *uint
	Diagnosis     string `gorm:"not null"`
	Prescription  string `gorm:"not null"`
	Notes         string
	FollowUpDate  *Date
}

type EventType string

const (
	EventAppointmentBooked        EventType = "appointment.booked"
	EventAppointmentStatusChanged EventType = "appointment.status_changed"
	EventBillCreated              EventType = "bill.created"
	EventPaymentApplied           EventType = "bill.payment_applied"
)

// AppointmentEvent is published after a committed change.
type AppointmentEvent struct {
	ID              uuid.UUID         `json:"id"`
	Type            EventType         `json:"type"`
	AppointmentID   uint              `json:"appointment_id"`
	PatientID       uint              `json:"patient_id"`
	DoctorID        uint              `json:"doctor_id"`
	AppointmentDate string            `json:"appointment_date,omitempty"`
	AppointmentTime string            `json:"appointment_time,omitempty"`
	Status          AppointmentStatus `json:"status,omitempty"`
	BillID          uint              `json:"bill_id,omitempty"`
	PaymentStatus   PaymentStatus     `json:"payment_status,omitempty"`
	Amount          string            `json:"amount,omitempty"`
	OccurredAt      time.Time         `json:"occurred_at"`
}

// NewAppointmentEvent fills the identifying fields from a.
func NewAppointmentEvent(t EventType, a Appointment, at time.Time) AppointmentEvent {
	return AppointmentEvent{
		ID:              uuid.New(),
		Type:            t,
		AppointmentID:   a.ID,
		PatientID:       a.PatientID,
		DoctorID:        a.DoctorID,
		AppointmentDate: a.Date.String(),
		AppointmentTime: a.Time.String(),
		Status:          a.Status,
		OccurredAt:      at,
	}
}
