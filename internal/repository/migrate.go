package repository

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/nuhmanudheent/hosp-connect-hospital/internal/domain"
)

// activeSlotIndex makes the store refuse a second live booking of the same doctor slot.
const activeSlotIndex = `CREATE UNIQUE INDEX IF NOT EXISTS idx_appointments_active_slot
ON appointments (doctor_id, appointment_date, appointment_time)
WHERE status <> 'CANCELLED' AND deleted_at IS NULL`

// Migrate creates or updates every table the service owns.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&domain.User{},
		&domain.Patient{},
		&domain.Doctor{},
		&domain.Employee{},
		&domain.AdminProfile{},
		&domain.Appointment{},
		&domain.Bill{},
		&domain.Payment{},
		&domain.MedicalRecord{},
	); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	if err := db.Exec(activeSlotIndex).Error; err != nil {
		return fmt.Errorf("create slot index: %w", err)
	}
	return nil
}
