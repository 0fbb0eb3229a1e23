package di

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
	"gorm.io/gorm"

	"github.com/nuhmanudheent/hosp-connect-hospital/internal/auth"
	"github.com/nuhmanudheent/hosp-connect-hospital/internal/config"
	"github.com/nuhmanudheent/hosp-connect-hospital/internal/handler"
	"github.com/nuhmanudheent/hosp-connect-hospital/internal/ratelimit"
	"github.com/nuhmanudheent/hosp-connect-hospital/internal/repository"
	"github.com/nuhmanudheent/hosp-connect-hospital/internal/service"
	"github.com/nuhmanudheent/hosp-connect-hospital/internal/validation"
)

// App holds the wired servers and the resources they share.
type App struct {
	cfg    *config.Config
	Logger *logrus.Logger

	HTTP   *http.Server
	GRPC   *grpc.Server
	Health *health.Server

	closers []func() error
}

// Settings turns clinic configuration into service policy.
func Settings(cfg *config.Config) (service.Settings, error) {
	loc, err := cfg.Location()
	if err != nil {
		return service.Settings{}, err
	}
	return service.Settings{
		Location:       loc,
		BillDueDays:    cfg.Clinic.BillDueDays,
		PasswordPolicy: validation.PolicyByName(cfg.Clinic.PasswordPolicy),
	}, nil
}

// NewServices builds repositories and services over db.
func NewServices(db *gorm.DB, publisher service.EventPublisher, settings service.Settings, logger *logrus.Logger) handler.Services {
	appointmentRepo := repository.NewAppointmentRepository(db)
	userRepo := repository.NewUserRepository(db)
	billRepo := repository.NewBillRepository(db)
	recordRepo := repository.NewRecordRepository(db)

	return handler.Services{
		Appointments: service.NewAppointmentService(appointmentRepo, userRepo, publisher, settings, logger),
		Billing:      service.NewBillingService(billRepo, appointmentRepo, userRepo, publisher, settings, logger),
		Users:        service.NewUserService(userRepo, settings, logger),
		Records:      service.NewRecordService(recordRepo, appointmentRepo, userRepo, settings, logger),
		Dashboard:    service.NewDashboardService(appointmentRepo, recordRepo, billRepo, settings, logger),
	}
}

// GRPCSetup creates the gRPC server with the scheduling service, health and reflection.
func GRPCSetup(svc handler.Services, tokens *auth.TokenManager, logger *logrus.Logger) (*grpc.Server, *health.Server) {
	server := grpc.NewServer(grpc.ChainUnaryInterceptor(
		handler.LoggingInterceptor(logger),
		handler.AuthInterceptor(tokens),
	))
	handler.RegisterSchedulingServer(server, handler.NewSchedulingServer(svc, logger))

	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(server, healthServer)
	healthServer.SetServingStatus(handler.SchedulingServiceDesc.ServiceName, healthpb.HealthCheckResponse_SERVING)

	reflection.Register(server)
	return server, healthServer
}

func newLimiter(cfg *config.Config, logger *logrus.Logger) (ratelimit.Limiter, func() error) {
	opts := ratelimit.Options{Limit: cfg.RateLimit.Limit, Window: cfg.RateLimitWindow()}
	if cfg.Redis.Addr == "" {
		return ratelimit.NewMemory(opts), nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	logger.WithFields(logrus.Fields{"Function": "newLimiter", "Addr": cfg.Redis.Addr}).Info("Using redis rate limiter")
	return ratelimit.NewRedis(client, opts), client.Close
}

func newPublisher(cfg *config.Config, logger *logrus.Logger) (service.EventPublisher, func() error) {
	if !cfg.Kafka.Enabled {
		return service.NopPublisher{}, nil
	}
	brokers := cfg.KafkaBrokers()
	if len(brokers) > 0 {
		if err := EnsureTopicExists(brokers[0], cfg.Kafka.Topic); err != nil {
			logger.WithFields(logrus.Fields{
				"Function": "newPublisher",
				"Topic":    cfg.Kafka.Topic,
				"Error":    err,
			}).Warn("Could not ensure kafka topic")
		}
	}
	producer := NewKafkaProducer(brokers, cfg.Kafka.Topic, logger)
	return producer, producer.Close
}

// NewApp connects to the database and wires every component from cfg.
func NewApp(cfg *config.Config, logger *logrus.Logger) (*App, error) {
	settings, err := Settings(cfg)
	if err != nil {
		return nil, err
	}
	db, err := config.InitDatabase(cfg, logger)
	if err != nil {
		return nil, err
	}
	if err := repository.Migrate(db); err != nil {
		return nil, err
	}

	app := &App{cfg: cfg, Logger: logger}
	if sqlDB, err := db.DB(); err == nil {
		app.closers = append(app.closers, sqlDB.Close)
	}

	limiter, closeLimiter := newLimiter(cfg, logger)
	publisher, closePublisher := newPublisher(cfg, logger)
	for _, c := range []func() error{closeLimiter, closePublisher} {
		if c != nil {
			app.closers = append(app.closers, c)
		}
	}

	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.TokenTTL())
	svc := NewServices(db, publisher, settings, logger)

	app.GRPC, app.Health = GRPCSetup(svc, tokens, logger)
	app.HTTP = &http.Server{
		Addr:              ":" + cfg.Server.HTTPPort,
		Handler:           handler.NewHTTPHandler(svc, tokens, limiter, logger).Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return app, nil
}

// Run serves HTTP and gRPC until ctx is cancelled, then drains both.
func (a *App) Run(ctx context.Context) error {
	listener, err := net.Listen("tcp", ":"+a.cfg.Server.GRPCPort)
	if err != nil {
		return fmt.Errorf("failed to listen on port %s: %w", a.cfg.Server.GRPCPort, err)
	}

	errs := make(chan error, 2)
	go func() {
		a.Logger.WithField("Port", a.cfg.Server.GRPCPort).Info("gRPC server is running")
		if err := a.GRPC.Serve(listener); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			errs <- fmt.Errorf("grpc serve: %w", err)
		}
	}()
	go func() {
		a.Logger.WithField("Port", a.cfg.Server.HTTPPort).Info("HTTP server is running")
		if err := a.HTTP.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errs <- fmt.Errorf("http serve: %w", err)
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errs:
	}

	a.Logger.Info("Shutting down")
	a.Health.Shutdown()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout())
	defer cancel()
	if err := a.HTTP.Shutdown(shutdownCtx); err != nil {
		a.Logger.WithError(err).Error("HTTP server forced to shutdown")
	}
	a.GRPC.GracefulStop()

	for _, c := range a.closers {
		if err := c(); err != nil {
			a.Logger.WithError(err).Warn("Failed to release resource")
		}
	}
	return runErr
}
