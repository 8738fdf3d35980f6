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

	_ "github.com/noah-isme/gradebook-api/api/swagger"
	"github.com/noah-isme/gradebook-api/internal/handler"
	"github.com/noah-isme/gradebook-api/internal/importer"
	"github.com/noah-isme/gradebook-api/internal/middleware"
	"github.com/noah-isme/gradebook-api/internal/models"
	"github.com/noah-isme/gradebook-api/internal/repository"
	"github.com/noah-isme/gradebook-api/internal/service"
	"github.com/noah-isme/gradebook-api/pkg/cache"
	"github.com/noah-isme/gradebook-api/pkg/config"
	"github.com/noah-isme/gradebook-api/pkg/database"
	"github.com/noah-isme/gradebook-api/pkg/export"
	"github.com/noah-isme/gradebook-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/gradebook-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/gradebook-api/pkg/middleware/requestid"
)

// @title Gradebook API
// @version 1.0.0
// @description Bulk roster import and grade entry
// @BasePath /api/v1
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

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

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer db.Close()

	if cfg.MigrateOnStart {
		if err := database.RunMigrations(db.DB, logr); err != nil {
			logr.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	redisClient, err := cache.NewRedis(ctx, cfg.Redis)
	if err != nil {
		logr.Fatal("failed to connect to redis", zap.Error(err))
	}

	validate := validator.New()
	var metricsSvc *service.MetricsService
	if cfg.Metrics.Enabled {
		metricsSvc = service.NewMetricsService()
	}

	teacherRepo := repository.NewTeacherRepository(db)
	userRepo := repository.NewUserRepository(db)
	groupRepo := repository.NewGroupRepository(db)
	studentRepo := repository.NewStudentRepository(db)
	subjectRepo := repository.NewSubjectRepository(db)
	enrollmentRepo := repository.NewEnrollmentRepository(db)
	reportRepo := repository.NewImportReportRepository(redisClient, cfg.Import.ReportTTL, logr)
	defer reportRepo.Close() //nolint:errcheck

	layout := importer.LayoutFor(cfg.Import.Locale)
	authSvc := service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret: cfg.JWT.Secret,
		AccessTokenExpiry: cfg.JWT.Expiration,
		Issuer:            cfg.JWT.Issuer,
	})
	importSvc := service.NewImportService(service.ImportRepositories{
		Teachers: teacherRepo,
		Users:    userRepo,
		Groups:   groupRepo,
		Students: studentRepo,
		Subjects: subjectRepo,
	}, importer.NewNormalizer(layout, cfg.Import.MaxRows, cfg.Import.DefaultYear), cfg.Import.BcryptCost, validate, metricsSvc, logr)
	jobSvc := service.NewImportJobService(importSvc, reportRepo, layout, service.ImportJobConfig{
		AsyncEnabled: cfg.Import.AsyncEnabled,
		MaxAttempts:  cfg.Import.WorkerRetries + 1,
		RetryDelay:   5 * time.Second,
	}, metricsSvc, logr)
	gradeSvc := service.NewGradeService(subjectRepo, enrollmentRepo, validate, metricsSvc, logr)
	subjectSvc := service.NewSubjectService(subjectRepo, logr)
	exportSvc := service.NewExportService(gradeSvc, export.NewCSVExporter(true), export.NewPDFExporter(cfg.Export.PDFFontPath), logr)

	jobSvc.Start(ctx)
	defer jobSvc.Stop()

	authHandler := handler.NewAuthHandler(authSvc)
	importHandler := handler.NewImportHandler(importSvc, jobSvc, 0)
	gradeHandler := handler.NewGradeHandler(gradeSvc, exportSvc)
	subjectHandler := handler.NewSubjectHandler(subjectSvc)
	metricsHandler := handler.NewMetricsHandler(metricsSvc, db)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	if cfg.Metrics.Enabled {
		r.GET("/metrics", metricsHandler.Prometheus)
	}
	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	api.POST("/auth/login", authHandler.Login)

	secured := api.Group("")
	secured.Use(middleware.JWT(authSvc))
	secured.GET("/auth/me", authHandler.Me)

	imports := secured.Group("/imports")
	imports.Use(middleware.RequireRoles(models.RoleAdmin))
	imports.POST("/workbook", importHandler.ImportWorkbook)
	imports.POST("/teachers", importHandler.ImportTeachers)
	imports.POST("/students", importHandler.ImportStudents)
	imports.POST("/subjects", importHandler.ImportSubjects)
	imports.GET("/:id", importHandler.ImportReport)
	imports.GET("/:id/report.csv", importHandler.ImportReportCSV)

	secured.GET("/subjects", middleware.RequireRoles(models.RoleAdmin, models.RoleGeneral), subjectHandler.List)

	grades := secured.Group("/subjects/:id/grades")
	grades.Use(middleware.RequireRoles(models.RoleAdmin, models.RoleGeneral))
	grades.GET("", gradeHandler.Sheet)
	grades.PUT("", gradeHandler.Upsert)
	grades.GET("/export", gradeHandler.Export)

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
	logr.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Warn("graceful shutdown failed", zap.Error(err))
	}
}
