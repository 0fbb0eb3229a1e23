package service

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/nuhmanudheent/hosp-connect-hospital/internal/domain"
	"github.com/nuhmanudheent/hosp-connect-hospital/internal/validation"
)

// Settings carries clinic policy shared by the services.
type Settings struct {
	Location       *time.Location
	Hours          domain.WorkingHours
	BillDueDays    int
	PasswordPolicy validation.PasswordPolicy
	Now            func() time.Time
}

func (s Settings) withDefaults() Settings {
	if s.Location == nil {
		s.Location = time.UTC
	}
	if s.Hours.Slot == 0 {
		s.Hours = domain.DefaultWorkingHours
	}
	if s.PasswordPolicy.MinLength == 0 {
		s.PasswordPolicy = validation.StandardPasswordPolicy
	}
	if s.Now == nil {
		s.Now = time.Now
	}
	return s
}

func (s Settings) today() domain.Date {
	return domain.Today(s.Now(), s.Location)
}

// EventPublisher delivers committed changes to other services.
type EventPublisher interface {
	Publish(ctx context.Context, event domain.AppointmentEvent) error
}

// NopPublisher drops every event.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, domain.AppointmentEvent) error { return nil }

// publish sends event after the change is committed. Failures are logged only.
func publish(ctx context.Context, p EventPublisher, logger *logrus.Logger, event domain.AppointmentEvent) {
	if err := p.Publish(ctx, event); err != nil {
		logger.WithFields(logrus.Fields{
			"Function":      "publish",
			"EventType":     event.Type,
			"AppointmentID": event.AppointmentID,
			"Error":         err,
		}).Error("Failed to publish event")
	}
}

// failure logs err when it is not an expected domain outcome and converts it
// to a typed error for the caller.
func failure(logger *logrus.Logger, function string, fields logrus.Fields, err error) error {
	if domain.KindOf(err) != domain.KindInternal {
		return err
	}
	entry := logger.WithFields(fields).WithField("Function", function).WithField("Error", err)
	entry.Error("Unexpected failure")
	return domain.AsError(err)
}
