package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/nuhmanudheent/hosp-connect-hospital/internal/auth"
	"github.com/nuhmanudheent/hosp-connect-hospital/internal/domain"
	"github.com/nuhmanudheent/hosp-connect-hospital/internal/ratelimit"
	"github.com/nuhmanudheent/hosp-connect-hospital/internal/service"
)

// Services groups the core operations exposed over HTTP and gRPC.
type Services struct {
	Appointments service.AppointmentService
	Billing      service.BillingService
	Users        service.UserService
	Records      service.RecordService
	Dashboard    service.DashboardService
}

type HTTPHandler struct {
	svc     Services
	tokens  *auth.TokenManager
	limiter ratelimit.Limiter
	Logger  *logrus.Logger
}

func NewHTTPHandler(svc Services, tokens *auth.TokenManager, limiter ratelimit.Limiter, logger *logrus.Logger) *HTTPHandler {
	if limiter == nil {
		limiter = ratelimit.NewMemory(ratelimit.Options{})
	}
	return &HTTPHandler{svc: svc, tokens: tokens, limiter: limiter, Logger: logger}
}

// Router builds the gin engine with every route under /api/v1.
func (h *HTTPHandler) Router() *gin.Engine {
	r := gin.New()
	r.Use(RequestLogger(h.Logger), gin.Recovery())
	r.GET("/health", h.Health)

	api := r.Group("/api/v1")
	api.POST("/auth/register", OptionalAuth(h.tokens), h.Register)
	api.POST("/auth/login", RateLimit(h.limiter, h.Logger, "login", byActorOrIP), h.Login)
	api.GET("/doctors", h.ListDoctors)
	api.GET("/doctors/:id/slots", h.AvailableSlots)

	authed := api.Group("", AuthMiddleware(h.tokens))
	{
		authed.GET("/dashboard", h.Dashboard)
		authed.GET("/users/:id", h.GetUser)
		authed.PATCH("/users/:id", h.UpdateProfile)

		authed.PUT("/doctors/:id/availability", RequireRole(domain.RoleDoctor, domain.RoleEmployee, domain.RoleAdmin), h.SetAvailability)
		authed.GET("/doctors/:id/appointments", RequireRole(domain.RoleDoctor, domain.RoleEmployee, domain.RoleAdmin), h.DoctorSchedule)
		authed.GET("/doctors/:id/patients", RequireRole(domain.RoleDoctor, domain.RoleEmployee, domain.RoleAdmin), h.DoctorPatients)
		authed.GET("/doctors/:id/records", RequireRole(domain.RoleDoctor, domain.RoleAdmin), h.DoctorRecords)

		authed.POST("/appointments", RateLimit(h.limiter, h.Logger, "book", byActorOrIP), h.BookAppointment)
		authed.GET("/appointments/:id", h.GetAppointment)
		authed.PATCH("/appointments/:id/status", h.UpdateAppointmentStatus)
		authed.GET("/patients/:id/appointments", h.PatientAppointments)

		authed.POST("/bills", RequireRole(domain.RoleEmployee, domain.RoleAdmin), h.CreateBill)
		authed.GET("/bills/:id", h.GetBill)
		authed.POST("/bills/:id/payments", RequireRole(domain.RoleEmployee, domain.RoleAdmin), h.ApplyPayment)
		authed.PATCH("/bills/:id/due-date", RequireRole(domain.RoleEmployee, domain.RoleAdmin), h.UpdateDueDate)
		authed.GET("/patients/:id/bills", h.PatientBills)

		authed.POST("/records", RequireRole(domain.RoleDoctor), h.AddRecord)
		authed.GET("/patients/:id/records", h.PatientRecords)
	}
	return r
}

func (h *HTTPHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "time": time.Now().UTC()})
}

func uintString(v uint) string {
	return strconv.FormatUint(uint64(v), 10)
}

func pathID(c *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		SendValidationError(c, "Invalid "+name, gin.H{"field": name})
		return 0, false
	}
	return uint(id), true
}

func queryDate(c *gin.Context, name string, required bool) (domain.Date, bool) {
	raw := c.Query(name)
	if raw == "" {
		if required {
			SendValidationError(c, name+" is required", gin.H{"field": name})
			return domain.Date{}, false
		}
		return domain.Date{}, true
	}
	d, err := domain.ParseDate(raw)
	if err != nil {
		SendValidationError(c, err.Error(), gin.H{"field": name})
		return domain.Date{}, false
	}
	return d, true
}

func optionalDate(c *gin.Context, field string, raw *string) (*domain.Date, bool) {
	if raw == nil || *raw == "" {
		return nil, true
	}
	d, err := domain.ParseDate(*raw)
	if err != nil {
		SendValidationError(c, err.Error(), gin.H{"field": field})
		return nil, false
	}
	return &d, true
}

func mustActor(c *gin.Context) domain.Actor {
	actor, _ := currentActor(c)
	return actor
}

type RegisterInput struct {
	Username        string           `json:"username" binding:"required"`
	Email           string           `json:"email"`
	Password        string           `json:"password" binding:"required"`
	FirstName       string           `json:"first_name"`
	LastName        string           `json:"last_name"`
	Role            string           `json:"role" binding:"required"`
	Phone           string           `json:"phone"`
	Address         string           `json:"address"`
	DateOfBirth     string           `json:"date_of_birth"`
	BloodGroup      string           `json:"blood_group"`
	Specialization  string           `json:"specialization"`
	Experience      int              `json:"experience"`
	ConsultationFee *decimal.Decimal `json:"consultation_fee"`
	Position        string           `json:"position"`
}

func (h *HTTPHandler) Register(c *gin.Context) {
	var input RegisterInput
	if err := c.ShouldBindJSON(&input); err != nil {
		SendValidationError(c, "Invalid input data", err.Error())
		return
	}
	dob, ok := optionalDate(c, "date_of_birth", &input.DateOfBirth)
	if !ok {
		return
	}
	in := service.RegistrationInput{
		Username:        input.Username,
		Email:           input.Email,
		Password:        input.Password,
		FirstName:       input.FirstName,
		LastName:        input.LastName,
		Role:            domain.Role(input.Role),
		Phone:           input.Phone,
		Address:         input.Address,
		BloodGroup:      input.BloodGroup,
		Specialization:  input.Specialization,
		Experience:      input.Experience,
		ConsultationFee: lo.FromPtr(input.ConsultationFee),
		Position:        input.Position,
	}
	if dob != nil {
		in.DateOfBirth = *dob
	}

	var caller *domain.Actor
	if actor, ok := currentActor(c); ok {
		caller = &actor
	}
	user, err := h.svc.Users.Register(c.Request.Context(), caller, in)
	if err != nil {
		sendDomainError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "Registration successful", "user": user})
}

type LoginInput struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (h *HTTPHandler) Login(c *gin.Context) {
	var input LoginInput
	if err := c.ShouldBindJSON(&input); err != nil {
		SendValidationError(c, "Invalid input data", err.Error())
		return
	}
	user, actor, err := h.svc.Users.Authenticate(c.Request.Context(), input.Username, input.Password)
	if err != nil {
		sendDomainError(c, h.Logger, err)
		return
	}
	token, exp, err := h.tokens.Issue(actor)
	if err != nil {
		sendDomainError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"access_token": token,
		"token_type":   "Bearer",
		"expires_at":   exp.UTC(),
		"user":         user,
		"profile_id":   actor.ProfileID,
	})
}

func (h *HTTPHandler) GetUser(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	user, err := h.svc.Users.GetUser(c.Request.Context(), mustActor(c), id)
	if err != nil {
		sendDomainError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

type ProfileInput struct {
	Email           *string          `json:"email"`
	FirstName       *string          `json:"first_name"`
	LastName        *string          `json:"last_name"`
	Password        *string          `json:"password"`
	Phone           *string          `json:"phone"`
	Address         *string          `json:"address"`
	DateOfBirth     *string          `json:"date_of_birth"`
	BloodGroup      *string          `json:"blood_group"`
	Specialization  *string          `json:"specialization"`
	Experience      *int             `json:"experience"`
	ConsultationFee *decimal.Decimal `json:"consultation_fee"`
	Position        *string          `json:"position"`
}

func (h *HTTPHandler) UpdateProfile(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var input ProfileInput
	if err := c.ShouldBindJSON(&input); err != nil {
		SendValidationError(c, "Invalid input data", err.Error())
		return
	}
	dob, ok := optionalDate(c, "date_of_birth", input.DateOfBirth)
	if !ok {
		return
	}
	user, err := h.svc.Users.UpdateProfile(c.Request.Context(), mustActor(c), id, service.ProfileUpdate{
		Email:           input.Email,
		FirstName:       input.FirstName,
		LastName:        input.LastName,
		Password:        input.Password,
		Phone:           input.Phone,
		Address:         input.Address,
		DateOfBirth:     dob,
		BloodGroup:      input.BloodGroup,
		Specialization:  input.Specialization,
		Experience:      input.Experience,
		ConsultationFee: input.ConsultationFee,
		Position:        input.Position,
	})
	if err != nil {
		sendDomainError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

func (h *HTTPHandler) ListDoctors(c *gin.Context) {
	onlyAvailable := c.Query("available") == "true"
	doctors, err := h.svc.Users.ListDoctors(c.Request.Context(), onlyAvailable)
	if err != nil {
		sendDomainError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"doctors": doctors})
}

type AvailabilityInput struct {
	Available *bool `json:"available" binding:"required"`
}

func (h *HTTPHandler) SetAvailability(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var input AvailabilityInput
	if err := c.ShouldBindJSON(&input); err != nil {
		SendValidationError(c, "Invalid input data", err.Error())
		return
	}
	if err := h.svc.Users.SetDoctorAvailability(c.Request.Context(), mustActor(c), id, *input.Available); err != nil {
		sendDomainError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"doctor_id": id, "is_available": *input.Available})
}

func (h *HTTPHandler) AvailableSlots(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	date, ok := queryDate(c, "date", true)
	if !ok {
		return
	}
	slots, err := h.svc.Appointments.AvailableSlots(c.Request.Context(), id, date)
	if err != nil {
		sendDomainError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"doctor_id": id,
		"date":      date,
		"slots":     lo.Map(slots, func(s domain.ClockTime, _ int) string { return s.String() }),
	})
}

func (h *HTTPHandler) DoctorSchedule(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	date, ok := queryDate(c, "date", false)
	if !ok {
		return
	}
	appointments, err := h.svc.Appointments.ListForDoctor(c.Request.Context(), mustActor(c), id, date)
	if err != nil {
		sendDomainError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"appointments": appointments})
}

func (h *HTTPHandler) DoctorPatients(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	patients, err := h.svc.Appointments.ListPatientsForDoctor(c.Request.Context(), mustActor(c), id)
	if err != nil {
		sendDomainError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"patients": patients, "total": len(patients)})
}

func (h *HTTPHandler) DoctorRecords(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	records, err := h.svc.Records.ListForDoctor(c.Request.Context(), mustActor(c), id)
	if err != nil {
		sendDomainError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"records": records})
}

func (h *HTTPHandler) Dashboard(c *gin.Context) {
	dashboard, err := h.svc.Dashboard.Dashboard(c.Request.Context(), mustActor(c))
	if err != nil {
		sendDomainError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusOK, dashboard)
}

type BookInput struct {
	DoctorID        uint   `json:"doctor_id" binding:"required"`
	PatientID       uint   `json:"patient_id"`
	AppointmentDate string `json:"appointment_date" binding:"required"`
	AppointmentTime string `json:"appointment_time" binding:"required"`
	Reason          string `json:"reason"`
}

func (h *HTTPHandler) BookAppointment(c *gin.Context) {
	var input BookInput
	if err := c.ShouldBindJSON(&input); err != nil {
		SendValidationError(c, "Invalid input data", err.Error())
		return
	}
	date, err := domain.ParseDate(input.AppointmentDate)
	if err != nil {
		SendValidationError(c, err.Error(), gin.H{"field": "appointment_date"})
		return
	}
	at, err := domain.ParseClockTime(input.AppointmentTime)
	if err != nil {
		SendValidationError(c, err.Error(), gin.H{"field": "appointment_time"})
		return
	}
	appointment, err := h.svc.Appointments.Book(c.Request.Context(), mustActor(c), service.BookingRequest{
		DoctorID:  input.DoctorID,
		PatientID: input.PatientID,
		Date:      date,
		Time:      at,
		Reason:    input.Reason,
	})
	if err != nil {
		sendDomainError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusCreated, appointment)
}

func (h *HTTPHandler) GetAppointment(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	appointment, err := h.svc.Appointments.Get(c.Request.Context(), mustActor(c), id)
	if err != nil {
		sendDomainError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusOK, appointment)
}

type StatusInput struct {
	Status string `json:"status" binding:"required"`
	Notes  string `json:"notes"`
}

func (h *HTTPHandler) UpdateAppointmentStatus(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var input StatusInput
	if err := c.ShouldBindJSON(&input); err != nil {
		SendValidationError(c, "Invalid input data", err.Error())
		return
	}
	status, err := domain.ParseAppointmentStatus(input.Status)
	if err != nil {
		SendValidationError(c, err.Error(), gin.H{"field": "status"})
		return
	}
	appointment, err := h.svc.Appointments.UpdateStatus(c.Request.Context(), mustActor(c), id, status, input.Notes)
	if err != nil {
		sendDomainError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusOK, appointment)
}

func (h *HTTPHandler) PatientAppointments(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	appointments, err := h.svc.Appointments.ListForPatient(c.Request.Context(), mustActor(c), id)
	if err != nil {
		sendDomainError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"appointments": appointments})
}

type BillInput struct {
	AppointmentID uint             `json:"appointment_id" binding:"required"`
	Amount        *decimal.Decimal `json:"amount"`
	DueDate       *string          `json:"due_date"`
	Description   string           `json:"description"`
}

func (h *HTTPHandler) CreateBill(c *gin.Context) {
	var input BillInput
	if err := c.ShouldBindJSON(&input); err != nil {
		SendValidationError(c, "Invalid input data", err.Error())
		return
	}
	due, ok := optionalDate(c, "due_date", input.DueDate)
	if !ok {
		return
	}
	bill, err := h.svc.Billing.CreateBill(c.Request.Context(), mustActor(c), service.BillRequest{
		AppointmentID: input.AppointmentID,
		Amount:        input.Amount,
		DueDate:       due,
		Description:   input.Description,
	})
	if err != nil {
		sendDomainError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusCreated, bill)
}

func (h *HTTPHandler) GetBill(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	bill, payments, err := h.svc.Billing.GetBill(c.Request.Context(), mustActor(c), id)
	if err != nil {
		sendDomainError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"bill": bill, "payments": payments})
}

type PaymentInput struct {
	Amount decimal.Decimal `json:"amount"`
	Method string          `json:"method" binding:"required"`
}

func (h *HTTPHandler) ApplyPayment(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var input PaymentInput
	if err := c.ShouldBindJSON(&input); err != nil {
		SendValidationError(c, "Invalid input data", err.Error())
		return
	}
	bill, err := h.svc.Billing.ApplyPayment(c.Request.Context(), mustActor(c), id, input.Amount, domain.PaymentMethod(input.Method))
	if err != nil {
		sendDomainError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusOK, bill)
}

type DueDateInput struct {
	DueDate string `json:"due_date" binding:"required"`
}

func (h *HTTPHandler) UpdateDueDate(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var input DueDateInput
	if err := c.ShouldBindJSON(&input); err != nil {
		SendValidationError(c, "Invalid input data", err.Error())
		return
	}
	due, err := domain.ParseDate(input.DueDate)
	if err != nil {
		SendValidationError(c, err.Error(), gin.H{"field": "due_date"})
		return
	}
	bill, err := h.svc.Billing.UpdateDueDate(c.Request.Context(), mustActor(c), id, due)
	if err != nil {
		sendDomainError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusOK, bill)
}

func (h *HTTPHandler) PatientBills(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	bills, err := h.svc.Billing.ListBills(c.Request.Context(), mustActor(c), id)
	if err != nil {
		sendDomainError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"bills": bills})
}

type RecordInput struct {
	PatientID     uint    `json:"patient_id" binding:"required"`
	AppointmentID *uint   `json:"appointment_id"`
	Diagnosis     string  `json:"diagnosis"`
	Prescription  string  `json:"prescription"`
	Notes         string  `json:"notes"`
	FollowUpDate  *string `json:"follow_up_date"`
}

func (h *HTTPHandler) AddRecord(c *gin.Context) {
	var input RecordInput
	if err := c.ShouldBindJSON(&input); err != nil {
		SendValidationError(c, "Invalid input data", err.Error())
		return
	}
	followUp, ok := optionalDate(c, "follow_up_date", input.FollowUpDate)
	if !ok {
		return
	}
	record, err := h.svc.Records.AddRecord(c.Request.Context(), mustActor(c), service.RecordInput{
		PatientID:     input.PatientID,
		AppointmentID: input.AppointmentID,
		Diagnosis:     input.Diagnosis,
		Prescription:  input.Prescription,
		Notes:         input.Notes,
		FollowUpDate:  followUp,
	})
	if err != nil {
		sendDomainError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusCreated, record)
}

func (h *HTTPHandler) PatientRecords(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	records, err := h.svc.Records.ListForPatient(c.Request.Context(), mustActor(c), id)
	if err != nil {
		sendDomainError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"records": records})
}
