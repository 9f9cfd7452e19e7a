// Package di provides dependency injection container for managing service lifecycle and dependencies.
package di

import (
	"context"
	"database/sql"
	"sync"

	"feedbackapp/internal/config"
	"feedbackapp/internal/database"
	"feedbackapp/internal/observability"
	"feedbackapp/internal/services"
	contextutils "feedbackapp/internal/utils"
)

// ServiceContainerInterface defines the interface for service containers
type ServiceContainerInterface interface {
	GetService(name string) (interface{}, error)
	GetUserService() (services.UserServiceInterface, error)
	GetQuestionService() (services.QuestionServiceInterface, error)
	GetFeedbackService() (services.FeedbackServiceInterface, error)
	GetTargetingService() (services.TargetingServiceInterface, error)
	GetEligibilityService() (services.EligibilityServiceInterface, error)
	GetSubmissionService() (services.SubmissionServiceInterface, error)
	GetSessionService() (services.SessionServiceInterface, error)
	GetEmailService() (services.EmailServiceInterface, error)
	GetCleanupService() (*services.CleanupService, error)
	GetDatabase() *sql.DB
	GetConfig() *config.Config
	GetLogger() *observability.Logger
	Initialize(ctx context.Context) error
	Shutdown(ctx context.Context) error
	EnsureAdminUser(ctx context.Context) error
}

// ServiceContainer manages all service dependencies and lifecycle
type ServiceContainer struct {
	cfg           *config.Config
	logger        *observability.Logger
	dbManager     *database.Manager
	db            *sql.DB
	services      map[string]interface{}
	mu            sync.RWMutex
	shutdownFuncs []func(context.Context) error
}

// NewServiceContainer creates a new dependency injection container
func NewServiceContainer(cfg *config.Config, logger *observability.Logger) *ServiceContainer {
	return &ServiceContainer{
		cfg:      cfg,
		logger:   logger,
		services: make(map[string]interface{}),
	}
}

// Initialize sets up all services and their dependencies
func (sc *ServiceContainer) Initialize(ctx context.Context) error {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	// Initialize database
	sc.dbManager = database.NewManager(sc.logger)
	db, err := sc.dbManager.InitDBWithConfig(sc.cfg.Database)
	if err != nil {
		return contextutils.WrapErrorf(err, "failed to initialize database")
	}
	sc.db = db
	sc.shutdownFuncs = append(sc.shutdownFuncs, func(_ context.Context) error {
		return db.Close()
	})

	// Initialize core services
	sc.initializeServices(ctx)

	// Startup lifecycle services
	if err := sc.startupServices(ctx); err != nil {
		// Cleanup on failure
		_ = sc.cleanup(ctx)
		return contextutils.WrapErrorf(err, "failed to startup services")
	}

	return nil
}

// GetService retrieves a service by name with type assertion
func (sc *ServiceContainer) GetService(name string) (interface{}, error) {
	sc.mu.RLock()
	defer sc.mu.RUnlock()

	service, exists := sc.services[name]
	if !exists {
		return nil, contextutils.ErrorWithContextf("service %s not found", name)
	}
	return service, nil
}

// GetServiceAs performs type-safe service retrieval
func GetServiceAs[T any](sc *ServiceContainer, name string) (T, error) {
	var zero T
	service, err := sc.GetService(name)
	if err != nil {
		return zero, err
	}

	typed, ok := service.(T)
	if !ok {
		return zero, contextutils.ErrorWithContextf("service %s is not of expected type %T", name, zero)
	}
	return typed, nil
}

// GetUserService returns the user service
func (sc *ServiceContainer) GetUserService() (services.UserServiceInterface, error) {
	return GetServiceAs[services.UserServiceInterface](sc, "user")
}

// GetQuestionService returns the question service
func (sc *ServiceContainer) GetQuestionService() (services.QuestionServiceInterface, error) {
	return GetServiceAs[services.QuestionServiceInterface](sc, "question")
}

// GetFeedbackService returns the feedback service
func (sc *ServiceContainer) GetFeedbackService() (services.FeedbackServiceInterface, error) {
	return GetServiceAs[services.FeedbackServiceInterface](sc, "feedback")
}

// GetTargetingService returns the targeting service
func (sc *ServiceContainer) GetTargetingService() (services.TargetingServiceInterface, error) {
	return GetServiceAs[services.TargetingServiceInterface](sc, "targeting")
}

// GetEligibilityService returns the eligibility service
func (sc *ServiceContainer) GetEligibilityService() (services.EligibilityServiceInterface, error) {
	return GetServiceAs[services.EligibilityServiceInterface](sc, "eligibility")
}

// GetSubmissionService returns the submission service
func (sc *ServiceContainer) GetSubmissionService() (services.SubmissionServiceInterface, error) {
	return GetServiceAs[services.SubmissionServiceInterface](sc, "submission")
}

// GetSessionService returns the submission session service
func (sc *ServiceContainer) GetSessionService() (services.SessionServiceInterface, error) {
	return GetServiceAs[services.SessionServiceInterface](sc, "session")
}

// GetEmailService returns the email service
func (sc *ServiceContainer) GetEmailService() (services.EmailServiceInterface, error) {
	return GetServiceAs[services.EmailServiceInterface](sc, "email")
}

// GetCleanupService returns the cleanup service
func (sc *ServiceContainer) GetCleanupService() (*services.CleanupService, error) {
	return GetServiceAs[*services.CleanupService](sc, "cleanup")
}

// GetDatabase returns the database instance
func (sc *ServiceContainer) GetDatabase() *sql.DB {
	return sc.db
}

// GetConfig returns the configuration
func (sc *ServiceContainer) GetConfig() *config.Config {
	return sc.cfg
}

// GetLogger returns the logger
func (sc *ServiceContainer) GetLogger() *observability.Logger {
	return sc.logger
}

// Shutdown gracefully shuts down all services
func (sc *ServiceContainer) Shutdown(ctx context.Context) error {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	return sc.cleanup(ctx)
}

// startupServices starts all services that implement the Lifecycle interface
func (sc *ServiceContainer) startupServices(ctx context.Context) error {
	// Check each service to see if it implements Lifecycle interface
	for name, service := range sc.services {
		if lifecycleService, ok := service.(interface{ Startup(context.Context) error }); ok {
			sc.logger.Info(ctx, "Starting service", map[string]interface{}{"service": name})
			if err := lifecycleService.Startup(ctx); err != nil {
				return contextutils.WrapErrorf(err, "failed to startup service %s", name)
			}
			sc.logger.Info(ctx, "Service started successfully", map[string]interface{}{"service": name})
		}
	}
	return nil
}

// cleanup handles shutdown of all services
func (sc *ServiceContainer) cleanup(ctx context.Context) error {
	var errors []error

	// Shutdown lifecycle services first (in reverse order)
	for name := range sc.services {
		if lifecycleService, ok := sc.services[name].(interface{ Shutdown(context.Context) error }); ok {
			sc.logger.Info(ctx, "Shutting down service", map[string]interface{}{"service": name})
			if err := lifecycleService.Shutdown(ctx); err != nil {
				sc.logger.Error(ctx, "Failed to shutdown service", err, map[string]interface{}{"service": name})
				errors = append(errors, contextutils.WrapErrorf(err, "service %s shutdown failed", name))
			} else {
				sc.logger.Info(ctx, "Service shutdown successfully", map[string]interface{}{"service": name})
			}
		}
	}

	// Shutdown services in reverse order of initialization
	for i := len(sc.shutdownFuncs) - 1; i >= 0; i-- {
		if err := sc.shutdownFuncs[i](ctx); err != nil {
			errors = append(errors, err)
		}
	}

	if len(errors) > 0 {
		return contextutils.ErrorWithContextf("shutdown errors: %v", errors)
	}
	return nil
}

// initializeServices sets up all service dependencies
func (sc *ServiceContainer) initializeServices(_ context.Context) {
	// Core services that don't depend on other services
	userService := services.NewUserService(sc.db, sc.cfg, sc.logger)
	sc.services["user"] = userService

	questionService := services.NewQuestionService(sc.db, sc.logger)
	sc.services["question"] = questionService

	feedbackService := services.NewFeedbackService(sc.db, sc.logger)
	sc.services["feedback"] = feedbackService

	// Targeting depends on feedback and user services
	targetingService := services.NewTargetingService(sc.db, feedbackService, userService, sc.logger)
	sc.services["targeting"] = targetingService

	// Eligibility combines feedback state with targeting
	eligibilityService := services.NewEligibilityService(sc.db, feedbackService, targetingService, sc.logger)
	sc.services["eligibility"] = eligibilityService

	sessionService := services.NewSessionService(sc.db, sc.logger)
	sc.services["session"] = sessionService

	// Submission recorder re-runs eligibility and optionally links sessions
	submissionService := services.NewSubmissionService(sc.db, sc.cfg, eligibilityService, sessionService, userService, sc.logger)
	sc.services["submission"] = submissionService

	emailService := services.CreateEmailServiceWithDB(sc.cfg, sc.logger, sc.db)
	sc.services["email"] = emailService

	cleanupService := services.NewCleanupServiceWithLogger(sc.db, sc.logger)
	sc.services["cleanup"] = cleanupService
}

// EnsureAdminUser creates the admin user if it doesn't exist
func (sc *ServiceContainer) EnsureAdminUser(ctx context.Context) error {
	userService, err := sc.GetUserService()
	if err != nil {
		return contextutils.WrapErrorf(err, "failed to get user service")
	}

	if _, err := userService.EnsureAdminUser(ctx, sc.cfg.Server.AdminUsername, sc.cfg.Server.AdminPassword); err != nil {
		return contextutils.WrapErrorf(err, "failed to ensure admin user")
	}
	return nil
}
