package handlers

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/secure"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"

	"feedbackapp/internal/config"
	"feedbackapp/internal/middleware"
	"feedbackapp/internal/observability"
	"feedbackapp/internal/services"
	"feedbackapp/internal/version"
)

// NewRouter creates a new router factory with all the necessary middleware and routes
func NewRouter(
	cfg *config.Config,
	userService services.UserServiceInterface,
	questionService services.QuestionServiceInterface,
	feedbackService services.FeedbackServiceInterface,
	targetingService services.TargetingServiceInterface,
	eligibilityService services.EligibilityServiceInterface,
	submissionService services.SubmissionServiceInterface,
	sessionService services.SessionServiceInterface,
	emailService services.EmailServiceInterface,
	logger *observability.Logger,
) *gin.Engine {
	// Setup Gin router
	router := gin.New()
	router.Use(middleware.ErrorRecoveryMiddleware(logger, nil))

	// Add HTTP request logging middleware using our observability logger
	router.Use(func(c *gin.Context) {
		start := time.Now()

		// Process request
		c.Next()

		// Log request details using our observability logger
		latency := time.Since(start)
		statusCode := c.Writer.Status()
		clientIP := c.ClientIP()
		method := c.Request.Method
		path := c.Request.URL.Path

		// Create structured log entry
		fields := map[string]interface{}{
			"http.method":      method,
			"http.path":        path,
			"http.status_code": statusCode,
			"http.latency_ms":  latency.Milliseconds(),
			"http.client_ip":   clientIP,
			"http.user_agent":  c.Request.UserAgent(),
		}

		// Add error message if present
		if len(c.Errors) > 0 {
			fields["http.error"] = c.Errors.String()
		}

		if statusCode >= 400 {
			if c.Writer.Size() > 0 {
				fields["http.response_size"] = c.Writer.Size()
			}
			if statusCode >= 500 {
				fields["http.error_type"] = "server_error"
			} else {
				fields["http.error_type"] = "client_error"
			}
		}

		// Log using our observability logger (goes to both stdout and OTLP)
		if statusCode >= 500 {
			logger.Error(c.Request.Context(), "HTTP request failed", nil, fields)
		} else if statusCode >= 400 {
			logger.Warn(c.Request.Context(), "HTTP request warning", fields)
		} else {
			logger.Info(c.Request.Context(), "HTTP request", fields)
		}
	})

	// Health check endpoint (defined before any middleware)
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "backend"})
	})

	// Add OpenTelemetry middleware for HTTP tracing and context propagation with automatic error attributes
	router.Use(observability.GinMiddlewareWithErrorHandling("feedback-backend"))

	// Disable automatic redirection for trailing slashes, which is better for APIs
	router.RedirectTrailingSlash = false

	// Setup CORS middleware
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = cfg.Server.CORSOrigins
	corsConfig.AllowCredentials = true
	corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization", "X-Requested-With"}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	router.Use(cors.New(corsConfig))

	// Setup session middleware
	store := cookie.NewStore([]byte(cfg.Server.SessionSecret))
	sessionOpts := sessions.Options{
		Path:     config.SessionPath,
		MaxAge:   int(config.SessionMaxAge.Seconds()),
		HttpOnly: config.SessionHTTPOnly,
		Secure:   config.SessionSecure, // Set to true in production with HTTPS
	}
	if cfg.Server.Debug {
		sessionOpts.SameSite = http.SameSiteDefaultMode
	} else {
		sessionOpts.SameSite = http.SameSiteLaxMode
		sessionOpts.Secure = true
	}
	store.Options(sessionOpts)
	router.Use(sessions.Sessions(config.SessionName, store))

	// Setup Gin mode
	gin.SetMode(gin.ReleaseMode)
	if cfg.Server.Debug {
		gin.SetMode(gin.DebugMode)
	}

	// Security middleware
	secureConfig := secure.DefaultConfig()
	secureConfig.SSLRedirect = false
	secureConfig.ContentSecurityPolicy = config.DefaultCSP
	router.Use(secure.New(secureConfig))

	// Initialize handlers
	authHandler := NewAuthHandler(userService, cfg, logger)
	questionHandler := NewQuestionHandler(questionService, logger)
	feedbackHandler := NewFeedbackHandler(feedbackService, eligibilityService, targetingService, userService, emailService, logger)
	submissionHandler := NewSubmissionHandler(submissionService, logger)
	sessionHandler := NewSessionHandler(sessionService, logger)

	// V1 routes
	v1 := router.Group("/v1")
	{
		// Version endpoint (no auth)
		v1.GET("/version", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{
				"service":   "backend",
				"version":   version.Version,
				"commit":    version.Commit,
				"buildTime": version.BuildTime,
			})
		})

		auth := v1.Group("/auth")
		{
			auth.POST("/login", authHandler.Login)
			auth.POST("/logout", authHandler.Logout)
			auth.GET("/status", authHandler.Status)
			auth.GET("/check", middleware.RequireAuth(), authHandler.Check)
		}

		// Feedback round read endpoints
		feedbacks := v1.Group("/feedbacks")
		feedbacks.Use(middleware.RequireAuth())
		{
			feedbacks.GET("", feedbackHandler.ListFeedbacks)
			feedbacks.GET("/:id", feedbackHandler.GetFeedback)
			feedbacks.GET("/:id/eligibility", feedbackHandler.CheckEligibility)
		}

		// Question bank read endpoints
		questions := v1.Group("/questions")
		questions.Use(middleware.RequireAuth())
		{
			questions.GET("", questionHandler.ListQuestions)
			questions.GET("/:id", questionHandler.GetQuestion)
		}

		// Submission endpoints
		submissions := v1.Group("/submissions")
		submissions.Use(middleware.RequireAuth())
		{
			submissions.POST("", submissionHandler.CreateSubmission)
			submissions.GET("", submissionHandler.ListMySubmissions)
			submissions.GET("/:id", submissionHandler.GetSubmission)
		}

		// Submission session timing endpoints
		sessionz := v1.Group("/sessions")
		sessionz.Use(middleware.RequireAuth())
		{
			sessionz.POST("/start", sessionHandler.StartSession)
			sessionz.POST("/stop", sessionHandler.StopSession)
			sessionz.GET("/current", sessionHandler.GetCurrentSession)
			sessionz.GET("/monthly", sessionHandler.GetMonthlyTotal)
		}

		// Admin endpoints
		admin := v1.Group("/admin")
		admin.Use(middleware.RequireAdmin(userService))
		{
			admin.POST("/feedbacks", feedbackHandler.CreateFeedback)
			admin.PUT("/feedbacks/:id", feedbackHandler.UpdateFeedback)
			admin.POST("/feedbacks/:id/activate", feedbackHandler.Activate)
			admin.POST("/feedbacks/:id/deactivate", feedbackHandler.Deactivate)
			admin.POST("/feedbacks/:id/questions", feedbackHandler.AddQuestion)
			admin.DELETE("/feedbacks/:id/questions/:qid", feedbackHandler.RemoveQuestion)
			admin.POST("/feedbacks/:id/target-users", feedbackHandler.AddTargetUser)
			admin.DELETE("/feedbacks/:id/target-users/:uid", feedbackHandler.RemoveTargetUser)
			admin.POST("/feedbacks/:id/target-departments", feedbackHandler.AddTargetDepartment)
			admin.DELETE("/feedbacks/:id/target-departments/:did", feedbackHandler.RemoveTargetDepartment)
			admin.GET("/feedbacks/:id/eligible-users", feedbackHandler.ListEligibleUsers)
			admin.GET("/feedbacks/:id/submissions", submissionHandler.ListFeedbackSubmissions)
			admin.GET("/feedbacks/stats", feedbackHandler.GetStatistics)

			admin.POST("/questions", questionHandler.CreateQuestion)

			admin.GET("/sessions/monthly", sessionHandler.GetMonthlyTotalAdmin)
		}
	}

	// Automatic route listing at root path
	routeListing := NewRouteListingHandler("Backend")
	routeListing.CollectRoutes(router)

	// Root path shows all available routes
	router.GET("/", func(c *gin.Context) {
		if c.Query("json") == "true" {
			routeListing.GetRouteListingJSON(c)
		} else {
			routeListing.GetRouteListingPage(c)
		}
	})

	return router
}
