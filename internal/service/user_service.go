package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"github.com/nuhmanudheent/hosp-connect-hospital/internal/domain"
	"github.com/nuhmanudheent/hosp-connect-hospital/internal/repository"
	"github.com/nuhmanudheent/hosp-connect-hospital/internal/validation"
)

type RegistrationInput struct {
	Username  string
	Email     string
	Password  string
	FirstName string
	LastName  string
	Role      domain.Role

	Phone       string
	Address     string
	DateOfBirth domain.Date
	BloodGroup  string

	Specialization  string
	Experience      int
	ConsultationFee decimal.Decimal

	Position string
}

// ProfileUpdate changes only the fields that are set.
type ProfileUpdate struct {
	Email     *string
	FirstName *string
	LastName  *string
	Password  *string

	Phone       *string
	Address     *string
	DateOfBirth *domain.Date
	BloodGroup  *string

	Specialization  *string
	Experience      *int
	ConsultationFee *decimal.Decimal

	Position *string
}

type UserService interface {
	Register(ctx context.Context, actor *domain.Actor, in RegistrationInput) (*domain.User, error)
	UpdateProfile(ctx context.Context, actor domain.Actor, userID uint, in ProfileUpdate) (*domain.User, error)
	Authenticate(ctx context.Context, username, password string) (*domain.User, domain.Actor, error)
	GetUser(ctx context.Context, actor domain.Actor, userID uint) (*domain.User, error)
	ListDoctors(ctx context.Context, onlyAvailable bool) ([]domain.Doctor, error)
	SetDoctorAvailability(ctx context.Context, actor domain.Actor, doctorID uint, available bool) error
}

type userService struct {
	repo     repository.UserRepository
	settings Settings
	Logger   *logrus.Logger
}

func NewUserService(repo repository.UserRepository, settings Settings, logger *logrus.Logger) UserService {
	return &userService{repo: repo, settings: settings.withDefaults(), Logger: logger}
}

// identityRules are the checks shared by registration and profile updates.
// Empty pointers skip a check.
func (s *userService) identityRules(phone, password *string, dob *domain.Date) error {
	var errs []error
	if phone != nil {
		errs = append(errs, validation.Phone(*phone))
	}
	if password != nil {
		errs = append(errs, s.settings.PasswordPolicy.Check(*password))
	}
	if dob != nil {
		errs = append(errs, validation.DateOfBirth(*dob, s.settings.today()))
	}
	return validation.First(errs...)
}

func (s *userService) Register(ctx context.Context, actor *domain.Actor, in RegistrationInput) (*domain.User, error) {
	s.Logger.WithFields(logrus.Fields{
		"Function": "Register",
		"Username": in.Username,
		"Role":     in.Role,
	}).Info("Registering user")

	role, err := domain.ParseRole(string(in.Role))
	if err != nil {
		return nil, domain.NewValidationError("role", "Role must be one of PATIENT, DOCTOR, EMPLOYEE, ADMIN")
	}
	if role == domain.RoleEmployee || role == domain.RoleAdmin {
		if actor == nil || actor.Role != domain.RoleAdmin {
			return nil, domain.ErrPermissionDenied.WithMessage("only admins can register staff accounts")
		}
	}

	in.Username = strings.TrimSpace(in.Username)
	if err := validation.Length("username", in.Username, 3, 50); err != nil {
		return nil, err
	}
	if in.Email != "" {
		if err := validation.Email(in.Email); err != nil {
			return nil, err
		}
	}
	var dob *domain.Date
	if role == domain.RolePatient {
		dob = &in.DateOfBirth
	}
	if err := s.identityRules(&in.Phone, &in.Password, dob); err != nil {
		return nil, err
	}
	if role == domain.RoleDoctor {
		if err := validation.Experience(in.Experience); err != nil {
			return nil, err
		}
		if in.ConsultationFee.IsNegative() {
			return nil, domain.NewValidationError("consultation_fee", "Consultation fee cannot be negative")
		}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, failure(s.Logger, "Register", logrus.Fields{"Username": in.Username}, fmt.Errorf("hash password: %w", err))
	}

	user := &domain.User{
		Username:     in.Username,
		Email:        in.Email,
		FirstName:    in.FirstName,
		LastName:     in.LastName,
		PasswordHash: string(hash),
		Role:         role,
	}
	switch role {
	case domain.RolePatient:
		user.Patient = &domain.Patient{Phone: in.Phone, Address: in.Address, DateOfBirth: in.DateOfBirth, BloodGroup: in.BloodGroup}
	case domain.RoleDoctor:
		user.Doctor = &domain.Doctor{
			Specialization:  in.Specialization,
			Phone:           in.Phone,
			Address:         in.Address,
			Experience:      in.Experience,
			IsAvailable:     true,
			ConsultationFee: in.ConsultationFee,
		}
	case domain.RoleEmployee:
		user.Employee = &domain.Employee{Position: in.Position, Phone: in.Phone, Address: in.Address}
	case domain.RoleAdmin:
		user.Admin = &domain.AdminProfile{Phone: in.Phone, Address: in.Address}
	}

	if err := s.repo.CreateWithProfile(ctx, user); err != nil {
		return nil, failure(s.Logger, "Register", logrus.Fields{"Username": in.Username}, err)
	}

	s.Logger.WithFields(logrus.Fields{
		"Function": "Register",
		"UserID":   user.ID,
		"Role":     role,
	}).Info("User registered successfully")
	return user, nil
}

func (s *userService) UpdateProfile(ctx context.Context, actor domain.Actor, userID uint, in ProfileUpdate) (*domain.User, error) {
	s.Logger.WithFields(logrus.Fields{
		"Function": "UpdateProfile",
		"UserID":   userID,
	}).Info("Updating profile")

	if actor.UserID != userID && actor.Role != domain.RoleAdmin {
		return nil, domain.ErrPermissionDenied.WithMessage("you can only update your own profile")
	}
	if err := s.identityRules(in.Phone, in.Password, in.DateOfBirth); err != nil {
		return nil, err
	}
	if in.Email != nil && *in.Email != "" {
		if err := validation.Email(*in.Email); err != nil {
			return nil, err
		}
	}
	if in.Experience != nil {
		if err := validation.Experience(*in.Experience); err != nil {
			return nil, err
		}
	}
	if in.ConsultationFee != nil && in.ConsultationFee.IsNegative() {
		return nil, domain.NewValidationError("consultation_fee", "Consultation fee cannot be negative")
	}

	user, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		return nil, failure(s.Logger, "UpdateProfile", logrus.Fields{"UserID": userID}, err)
	}
	set(&user.Email, in.Email)
	set(&user.FirstName, in.FirstName)
	set(&user.LastName, in.LastName)
	if in.Password != nil {
		hash, err := bcrypt.GenerateFromPassword([]byte(*in.Password), bcrypt.DefaultCost)
		if err != nil {
			return nil, failure(s.Logger, "UpdateProfile", logrus.Fields{"UserID": userID}, fmt.Errorf("hash password: %w", err))
		}
		user.PasswordHash = string(hash)
	}

	switch user.Role {
	case domain.RolePatient:
		if p := user.Patient; p != nil {
			set(&p.Phone, in.Phone)
			set(&p.Address, in.Address)
			set(&p.DateOfBirth, in.DateOfBirth)
			set(&p.BloodGroup, in.BloodGroup)
		}
	case domain.RoleDoctor:
		if d := user.Doctor; d != nil {
			set(&d.Phone, in.Phone)
			set(&d.Address, in.Address)
			set(&d.Specialization, in.Specialization)
			set(&d.Experience, in.Experience)
			set(&d.ConsultationFee, in.ConsultationFee)
		}
	case domain.RoleEmployee:
		if e := user.Employee; e != nil {
			set(&e.Phone, in.Phone)
			set(&e.Address, in.Address)
			set(&e.Position, in.Position)
		}
	case domain.RoleAdmin:
		if a := user.Admin; a != nil {
			set(&a.Phone, in.Phone)
			set(&a.Address, in.Address)
		}
	}

	if err := s.repo.UpdateProfile(ctx, user); err != nil {
		return nil, failure(s.Logger, "UpdateProfile", logrus.Fields{"UserID": userID}, err)
	}
	return user, nil
}

func set[T any](dst *T, src *T) {
	if src != nil {
		*dst = *src
	}
}

// Authenticate checks the password and returns the user with the actor to put in its token.
func (s *userService) Authenticate(ctx context.Context, username, password string) (*domain.User, domain.Actor, error) {
	user, err := s.repo.GetByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		if domain.KindOf(err) == domain.KindNotFound {
			return nil, domain.Actor{}, domain.ErrBadCredentials
		}
		return nil, domain.Actor{}, failure(s.Logger, "Authenticate", logrus.Fields{"Username": username}, err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		s.Logger.WithFields(logrus.Fields{
			"Function": "Authenticate",
			"Username": username,
		}).Warn("Password mismatch")
		return nil, domain.Actor{}, domain.ErrBadCredentials
	}
	actor, err := ActorFor(user)
	if err != nil {
		return nil, domain.Actor{}, failure(s.Logger, "Authenticate", logrus.Fields{"Username": username}, err)
	}
	return user, actor, nil
}

// ActorFor derives the caller identity from a user with its profile loaded.
func ActorFor(user *domain.User) (domain.Actor, error) {
	a := domain.Actor{UserID: user.ID, Role: user.Role}
	switch {
	case user.Role == domain.RolePatient && user.Patient != nil:
		a.ProfileID = user.Patient.ID
	case user.Role == domain.RoleDoctor && user.Doctor != nil:
		a.ProfileID = user.Doctor.ID
	case user.Role == domain.RoleEmployee && user.Employee != nil:
		a.ProfileID = user.Employee.ID
	case user.Role == domain.RoleAdmin && user.Admin != nil:
		a.ProfileID = user.Admin.ID
	default:
		return domain.Actor{}, errors.New("user has no profile for its role")
	}
	return a, nil
}

func (s *userService) GetUser(ctx context.Context, actor domain.Actor, userID uint) (*domain.User, error) {
	if actor.UserID != userID && !actor.Is(domain.RoleEmployee, domain.RoleAdmin) {
		return nil, domain.ErrPermissionDenied
	}
	user, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		return nil, failure(s.Logger, "GetUser", logrus.Fields{"UserID": userID}, err)
	}
	return user, nil
}

func (s *userService) ListDoctors(ctx context.Context, onlyAvailable bool) ([]domain.Doctor, error) {
	doctors, err := s.repo.ListDoctors(ctx, onlyAvailable)
	if err != nil {
		return nil, failure(s.Logger, "ListDoctors", nil, err)
	}
	return doctors, nil
}

func (s *userService) SetDoctorAvailability(ctx context.Context, actor domain.Actor, doctorID uint, available bool) error {
	s.Logger.WithFields(logrus.Fields{
		"Function":  "SetDoctorAvailability",
		"DoctorID":  doctorID,
		"Available": available,
	}).Info("Changing doctor availability")

	switch {
	case actor.Is(domain.RoleEmployee, domain.RoleAdmin):
	case actor.Role == domain.RoleDoctor && actor.ProfileID == doctorID:
	default:
		return domain.ErrPermissionDenied.WithMessage("only the doctor or staff can change availability")
	}
	if err := s.repo.SetDoctorAvailability(ctx, doctorID, available); err != nil {
		return failure(s.Logger, "SetDoctorAvailability", logrus.Fields{"DoctorID": doctorID}, err)
	}
	return nil
}
