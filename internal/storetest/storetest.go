// Package storetest opens throwaway SQLite databases with the production schema
// and seeds the rows most tests need.
package storetest

import (
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/nuhmanudheent/hosp-connect-hospital/internal/domain"
	"github.com/nuhmanudheent/hosp-connect-hospital/internal/repository"
)

var seq atomic.Int64

// NewDB returns a migrated in-memory database private to t.
func NewDB(t testing.TB) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:storetest%d?mode=memory&cache=shared&_pragma=foreign_keys(1)", seq.Add(1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatal(err)
	}
	// one connection serializes writers the way a single sqlite file does
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	if err := repository.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

// SeedDoctor inserts an available doctor with the given fee.
func SeedDoctor(t testing.TB, db *gorm.DB, username string, fee string) *domain.User {
	t.Helper()
	user := &domain.User{
		Username:     username,
		FirstName:    "Dr",
		LastName:     username,
		PasswordHash: "x",
		Role:         domain.RoleDoctor,
		Doctor: &domain.Doctor{
			Specialization:  "General",
			Phone:           "9876543210",
			IsAvailable:     true,
			ConsultationFee: decimal.RequireFromString(fee),
		},
	}
	if err := db.Create(user).Error; err != nil {
		t.Fatalf("seed doctor: %v", err)
	}
	return user
}

func SeedPatient(t testing.TB, db *gorm.DB, username string) *domain.User {
	t.Helper()
	user := &domain.User{
		Username:     username,
		FirstName:    "Pat",
		LastName:     username,
		PasswordHash: "x",
		Role:         domain.RolePatient,
		Patient: &domain.Patient{
			Phone:       "9876543210",
			DateOfBirth: domain.NewDate(1990, 1, 1),
		},
	}
	if err := db.Create(user).Error; err != nil {
		t.Fatalf("seed patient: %v", err)
	}
	return user
}

func SeedEmployee(t testing.TB, db *gorm.DB, username string) *domain.User {
	t.Helper()
	user := &domain.User{
		Username:     username,
		PasswordHash: "x",
		Role:         domain.RoleEmployee,
		Employee:     &domain.Employee{Position: "Reception", Phone: "9876543210"},
	}
	if err := db.Create(user).Error; err != nil {
		t.Fatalf("seed employee: %v", err)
	}
	return user
}

func SeedAdmin(t testing.TB, db *gorm.DB, username string) *domain.User {
	t.Helper()
	user := &domain.User{
		Username:     username,
		PasswordHash: "x",
		Role:         domain.RoleAdmin,
		Admin:        &domain.AdminProfile{Phone: "9876543210", IsSuperAdmin: true},
	}
	if err := db.Create(user).Error; err != nil {
		t.Fatalf("seed admin: %v", err)
	}
	return user
}
