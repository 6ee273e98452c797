package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/course-enroll-api/api/swagger"
	"github.com/noah-isme/course-enroll-api/internal/handler"
	"github.com/noah-isme/course-enroll-api/internal/middleware"
	"github.com/noah-isme/course-enroll-api/internal/repository"
	"github.com/noah-isme/course-enroll-api/internal/service"
	"github.com/noah-isme/course-enroll-api/pkg/cache"
	"github.com/noah-isme/course-enroll-api/pkg/config"
	"github.com/noah-isme/course-enroll-api/pkg/database"
	"github.com/noah-isme/course-enroll-api/pkg/jobs"
	"github.com/noah-isme/course-enroll-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/course-enroll-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/course-enroll-api/pkg/middleware/requestid"
	"github.com/noah-isme/course-enroll-api/pkg/storage"
)

// @title Course Enrollment API
// @version 1.0.0
// @description Internal administration API for corporate training enrollments
// @BasePath /api/v1
// @schemes http

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		// The API keeps working without Redis; summaries just skip the cache.
		logr.Sugar().Warnw("redis unavailable, summary caching disabled", "error", err)
		redisClient = nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	studentRepo := repository.NewStudentRepository(db)
	courseRepo := repository.NewCourseRepository(db)
	enrollmentRepo := repository.NewEnrollmentRepository(db)
	incomingRepo := repository.NewIncomingEnrollmentRepository(db)
	reportRepo := repository.NewReportRepository(db)

	validate := validator.New()

	metricsSvc := service.NewMetricsService()
	eligibilitySvc := service.NewEligibilityService(enrollmentRepo, courseRepo, logr)
	enrollmentSvc := service.NewEnrollmentService(enrollmentRepo, studentRepo, courseRepo, eligibilitySvc, validate, logr).WithMetrics(metricsSvc)
	courseSvc := service.NewCourseService(courseRepo, validate, logr)
	studentSvc := service.NewStudentService(studentRepo, enrollmentRepo, validate, logr)
	importSvc := service.NewImportService(incomingRepo, studentRepo, courseRepo, enrollmentRepo, eligibilitySvc, validate, cfg.Imports.MaxRecords, logr)
	authSvc := service.NewAuthService(validate, logr, service.AuthConfig{
		Username:       cfg.Admin.Username,
		PasswordHash:   cfg.Admin.PasswordHash,
		Password:       cfg.Admin.Password,
		AllowPlaintext: cfg.Env != config.EnvProduction,
		TokenSecret:    cfg.JWT.Secret,
		TokenExpiry:    cfg.JWT.Expiration,
		Issuer:         "course-enroll-api",
	})

	reportStore, err := storage.NewLocalStorage(cfg.Reports.StorageDir)
	if err != nil {
		logr.Sugar().Fatalw("failed to prepare report storage", "error", err)
	}
	signer := storage.NewSignedURLSigner(cfg.Reports.SignedURLSecret, cfg.Reports.SignedURLTTL)
	exportSvc := service.NewExportService(
		enrollmentRepo, courseRepo, studentRepo, reportRepo,
		reportStore, signer,
		service.ExportConfig{APIPrefix: cfg.APIPrefix, ResultTTL: cfg.Reports.SignedURLTTL},
		logr,
		nil, nil,
	)

	reportWorker := service.NewReportWorker(reportRepo, exportSvc, cfg.Reports.WorkerRetries, logr)
	reportQueue := jobs.NewQueue("reports", reportWorker.Handle, jobs.QueueConfig{
		Workers:    cfg.Reports.WorkerConcurrency,
		MaxRetries: cfg.Reports.WorkerRetries,
		Logger:     logr,
	})
	reportQueue.Start(ctx)
	defer reportQueue.Stop()

	reportSvc := service.NewReportService(reportRepo, redisClient, reportQueue, exportSvc, logr, service.ReportServiceConfig{
		SummaryCacheTTL: cfg.Reports.SummaryCacheTTL,
		ResultTTL:       cfg.Reports.SignedURLTTL,
		Metrics:         metricsSvc,
	})
	reportSvc.RecoverPendingJobs(ctx)
	go reportSvc.StartCleanup(ctx)

	go archiveEndedCourses(ctx, courseRepo, cfg.Courses.ArchiveInterval, logr)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	authHandler := handler.NewAuthHandler(authSvc)
	studentHandler := handler.NewStudentHandler(studentSvc)
	courseHandler := handler.NewCourseHandler(courseSvc)
	enrollmentHandler := handler.NewEnrollmentHandler(enrollmentSvc, cfg.Imports.MaxFileSizeByte, cfg.Imports.MaxRecords)
	importHandler := handler.NewImportHandler(importSvc, cfg.Imports.MaxFileSizeByte, cfg.Imports.MaxRecords)
	reportHandler := handler.NewReportHandler(reportSvc)
	metricsHandler := handler.NewMetricsHandler(metricsSvc)

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	api.POST("/auth/login", authHandler.Login)
	// Download links are pre-signed, so they skip the JWT check.
	api.GET("/reports/download/:token", reportHandler.Download)

	protected := api.Group("")
	protected.Use(middleware.JWT(authSvc))
	{
		protected.GET("/auth/me", authHandler.Me)

		protected.GET("/students", studentHandler.List)
		protected.POST("/students", studentHandler.Create)
		protected.GET("/students/:id", studentHandler.Get)
		protected.PUT("/students/:id", studentHandler.Update)
		protected.DELETE("/students/:id", studentHandler.Delete)
		protected.GET("/students/:id/history", studentHandler.History)

		protected.GET("/courses", courseHandler.List)
		protected.POST("/courses", courseHandler.Create)
		protected.GET("/courses/:id", courseHandler.Get)
		protected.PUT("/courses/:id", courseHandler.Update)
		protected.POST("/courses/:id/archive", courseHandler.Archive)
		protected.DELETE("/courses/:id", courseHandler.Delete)

		protected.GET("/enrollments", enrollmentHandler.List)
		protected.POST("/enrollments", enrollmentHandler.Create)
		protected.POST("/enrollments/bulk-approve", enrollmentHandler.BulkApprove)
		protected.POST("/enrollments/bulk-reject", enrollmentHandler.BulkReject)
		protected.PUT("/enrollments/completions", enrollmentHandler.RecordCompletions)
		protected.POST("/enrollments/completions/upload", enrollmentHandler.UploadCompletions)
		protected.GET("/enrollments/:id", enrollmentHandler.Get)
		protected.POST("/enrollments/:id/approve", enrollmentHandler.Approve)
		protected.POST("/enrollments/:id/reject", enrollmentHandler.Reject)
		protected.POST("/enrollments/:id/withdraw", enrollmentHandler.Withdraw)
		protected.POST("/enrollments/:id/reapprove", enrollmentHandler.Reapprove)
		protected.PUT("/enrollments/:id/completion", enrollmentHandler.RecordCompletion)

		protected.POST("/imports", importHandler.Upload)
		protected.GET("/imports/audit", importHandler.Audit)
		protected.GET("/imports/status", importHandler.SyncStatus)

		protected.GET("/reports/summary", reportHandler.Summary)
		protected.POST("/reports/jobs", reportHandler.CreateJob)
		protected.GET("/reports/jobs/:id", reportHandler.JobStatus)

		protected.GET("/metrics/system", metricsHandler.Snapshot)
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Sugar().Infow("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Warnw("graceful shutdown failed", "error", err)
	}
}

// archiveEndedCourses periodically flags courses whose end date has passed.
func archiveEndedCourses(ctx context.Context, repo *repository.CourseRepository, interval time.Duration, logr *zap.Logger) {
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			archived, err := repo.ArchivePastEndDate(ctx, time.Now().UTC())
			if err != nil {
				logr.Sugar().Warnw("course auto-archive failed", "error", err)
				continue
			}
			if archived > 0 {
				logr.Sugar().Infow("archived ended courses", "count", archived)
			}
		}
	}
}
