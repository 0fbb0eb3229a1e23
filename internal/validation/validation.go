// Package validation holds the input rules shared by registration, profile
// updates, booking and billing. Each rule returns nil or a validation
// *domain.Error whose message is the reason shown to the user.
package validation

import (
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/nuhmanudheent/hosp-connect-hospital/internal/domain"
	"github.com/shopspring/decimal"
)

const (
	minPhoneDigits = 10
	maxPhoneDigits = 15
)

var (
	digitsOnly = regexp.MustCompile(`^[0-9]+$`)
	emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)
)

// PasswordPolicy describes password strength requirements.
type PasswordPolicy struct {
	MinLength      int
	MaxLength      int
	RequireSpecial bool
}

var (
	StandardPasswordPolicy = PasswordPolicy{MinLength: 8, MaxLength: 128}
	StrictPasswordPolicy   = PasswordPolicy{MinLength: 8, MaxLength: 128, RequireSpecial: true}
)

// PolicyByName maps a configuration value to a policy. Unknown names get the standard policy.
func PolicyByName(name string) PasswordPolicy {
	if strings.EqualFold(strings.TrimSpace(name), "strict") {
		return StrictPasswordPolicy
	}
	return StandardPasswordPolicy
}

func Phone(phone string) error {
	if !digitsOnly.MatchString(phone) {
		return domain.NewValidationError("phone", "Phone number must contain digits only")
	}
	if len(phone) < minPhoneDigits {
		return domain.NewValidationError("phone", "Phone number must be at least 10 digits")
	}
	if len(phone) > maxPhoneDigits {
		return domain.NewValidationError("phone", "Phone number must be at most 15 digits")
	}
	return nil
}

func Email(email string) error {
	if !emailRegex.MatchString(email) {
		return domain.NewValidationError("email", "Please provide a valid email address")
	}
	return nil
}

func (p PasswordPolicy) Check(password string) error {
	n := utf8.RuneCountInString(password)
	if n < p.MinLength {
		return domain.NewValidationError("password", fmt.Sprintf("Password must be at least %d characters long", p.MinLength))
	}
	if p.MaxLength > 0 && n > p.MaxLength {
		return domain.NewValidationError("password", fmt.Sprintf("Password must be at most %d characters long", p.MaxLength))
	}

	var upper, lower, digit, special bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			special = true
		}
	}
	switch {
	case !upper:
		return domain.NewValidationError("password", "Password must contain at least one uppercase letter")
	case !lower:
		return domain.NewValidationError("password", "Password must contain at least one lowercase letter")
	case !digit:
		return domain.NewValidationError("password", "Password must contain at least one number")
	case p.RequireSpecial && !special:
		return domain.NewValidationError("password", "Password must contain at least one special character")
	}
	return nil
}

func DateOfBirth(dob, today domain.Date) error {
	if dob.IsZero() {
		return domain.NewValidationError("date_of_birth", "Date of birth is required")
	}
	if dob.After(today) {
		return domain.NewValidationError("date_of_birth", "Date of birth cannot be in the future")
	}
	return nil
}

// AppointmentDate rejects days before today with the past-date sentinel.
func AppointmentDate(date, today domain.Date) error {
	if date.IsZero() {
		return domain.NewValidationError("appointment_date", "Appointment date is required")
	}
	if date.Before(today) {
		return domain.ErrPastDate.WithDetail("field", "appointment_date")
	}
	return nil
}

// AppointmentTime rejects times that are not a slot start within working hours.
func AppointmentTime(c domain.ClockTime, hours domain.WorkingHours) error {
	if !hours.IsSlotStart(c) {
		return domain.NewValidationError("appointment_time", fmt.Sprintf(
			"Appointment time must be a %d-minute slot between %s and %s", int(hours.Slot/time.Minute), hours.Open, hours.Close))
	}
	return nil
}

func Reason(reason string) error {
	return textLength("reason", reason, 10, 500)
}

func Diagnosis(s string) error {
	return textLength("diagnosis", s, 10, 1000)
}

func Prescription(s string) error {
	return textLength("prescription", s, 10, 1000)
}

func Notes(s string) error {
	return textLength("notes", s, 0, 1000)
}

// Amount accepts positive values that fit a numeric(10,2) column without rounding.
func Amount(field string, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return domain.NewValidationError(field, "Amount must be greater than zero")
	}
	if !amount.Equal(amount.Round(2)) {
		return domain.NewValidationError(field, "Amount must have at most two decimal places")
	}
	return nil
}

func Experience(years int) error {
	if years < 0 || years > 50 {
		return domain.NewValidationError("experience", "Experience must be between 0 and 50 years")
	}
	return nil
}

// Length bounds a value by rune count.
func Length(field, value string, min, max int) error {
	return textLength(field, value, min, max)
}

func textLength(field, value string, min, max int) error {
	n := utf8.RuneCountInString(strings.TrimSpace(value))
	if n < min {
		return domain.NewValidationError(field, fmt.Sprintf("%s must be at least %d characters", field, min))
	}
	if max > 0 && n > max {
		return domain.NewValidationError(field, fmt.Sprintf("%s must be at most %d characters", field, max))
	}
	return nil
}

// First returns the first non-nil error.
func First(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
