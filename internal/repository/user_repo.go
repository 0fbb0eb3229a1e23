package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/nuhmanudheent/hosp-connect-hospital/internal/domain"
)

type UserRepository interface {
	CreateWithProfile(ctx context.Context, user *domain.User) error
	GetByID(ctx context.Context, id uint) (*domain.User, error)
	GetByUsername(ctx context.Context, username string) (*domain.User, error)
	UpdateProfile(ctx context.Context, user *domain.User) error
	GetDoctor(ctx context.Context, id uint) (*domain.Doctor, error)
	GetPatient(ctx context.Context, id uint) (*domain.Patient, error)
	ListDoctors(ctx context.Context, onlyAvailable bool) ([]domain.Doctor, error)
	SetDoctorAvailability(ctx context.Context, doctorID uint, available bool) error
}

type userRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) UserRepository {
	return &userRepository{db: db}
}

func (r *userRepository) withProfiles(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).
		Preload("Patient").Preload("Doctor").Preload("Employee").Preload("Admin")
}

// profileOf returns the profile row matching the user's role.
func profileOf(user *domain.User) (any, error) {
	switch user.Role {
	case domain.RolePatient:
		if user.Patient != nil {
			return user.Patient, nil
		}
	case domain.RoleDoctor:
		if user.Doctor != nil {
			return user.Doctor, nil
		}
	case domain.RoleEmployee:
		if user.Employee != nil {
			return user.Employee, nil
		}
	case domain.RoleAdmin:
		if user.Admin != nil {
			return user.Admin, nil
		}
	}
	return nil, fmt.Errorf("user %q has no %s profile", user.Username, user.Role)
}

func setProfileOwner(profile any, userID uint) {
	switch p := profile.(type) {
	case *domain.Patient:
		p.UserID = userID
	case *domain.Doctor:
		p.UserID = userID
	case *domain.Employee:
		p.UserID = userID
	case *domain.AdminProfile:
		p.UserID = userID
	}
}

// CreateWithProfile inserts the user and its role profile atomically. A failure
// on either insert leaves neither row behind.
func (r *userRepository) CreateWithProfile(ctx context.Context, user *domain.User) error {
	profile, err := profileOf(user)
	if err != nil {
		return err
	}
	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit(clause.Associations).Create(user).Error; err != nil {
			return err
		}
		setProfileOwner(profile, user.ID)
		return tx.Create(profile).Error
	})
	if isUniqueViolation(err) {
		return domain.ErrDuplicate.WithMessage("username is already taken").WithDetail("field", "username")
	}
	return err
}

func (r *userRepository) GetByID(ctx context.Context, id uint) (*domain.User, error) {
	var user domain.User
	if err := r.withProfiles(ctx).First(&user, id).Error; err != nil {
		return nil, notFound(err, "user")
	}
	return &user, nil
}

func (r *userRepository) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	var user domain.User
	if err := r.withProfiles(ctx).Where("username = ?", username).First(&user).Error; err != nil {
		return nil, notFound(err, "user")
	}
	return &user, nil
}

// UpdateProfile saves the user's own columns and its role profile together.
func (r *userRepository) UpdateProfile(ctx context.Context, user *domain.User) error {
	profile, err := profileOf(user)
	if err != nil {
		return err
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit(clause.Associations).Save(user).Error; err != nil {
			return err
		}
		return tx.Save(profile).Error
	})
}

func (r *userRepository) GetDoctor(ctx context.Context, id uint) (*domain.Doctor, error) {
	var doctor domain.Doctor
	if err := r.db.WithContext(ctx).First(&doctor, id).Error; err != nil {
		return nil, notFound(err, "doctor")
	}
	return &doctor, nil
}

func (r *userRepository) GetPatient(ctx context.Context, id uint) (*domain.Patient, error) {
	var patient domain.Patient
	if err := r.db.WithContext(ctx).First(&patient, id).Error; err != nil {
		return nil, notFound(err, "patient")
	}
	return &patient, nil
}

func (r *userRepository) ListDoctors(ctx context.Context, onlyAvailable bool) ([]domain.Doctor, error) {
	q := r.db.WithContext(ctx).Order("id ASC")
	if onlyAvailable {
		q = q.Where("is_available = ?", true)
	}
	var doctors []domain.Doctor
	if err := q.Find(&doctors).Error; err != nil {
		return nil, err
	}
	return doctors, nil
}

func (r *userRepository) SetDoctorAvailability(ctx context.Context, doctorID uint, available bool) error {
	res := r.db.WithContext(ctx).Model(&domain.Doctor{}).Where("id = ?", doctorID).Update("is_available", available)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.NotFound("doctor")
	}
	return nil
}
