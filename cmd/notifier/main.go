package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/timetable-notifier/api/swagger"
	"github.com/noah-isme/timetable-notifier/internal/handler"
	internalmiddleware "github.com/noah-isme/timetable-notifier/internal/middleware"
	"github.com/noah-isme/timetable-notifier/internal/models"
	"github.com/noah-isme/timetable-notifier/internal/repository"
	"github.com/noah-isme/timetable-notifier/internal/scheduler"
	"github.com/noah-isme/timetable-notifier/internal/service"
	"github.com/noah-isme/timetable-notifier/pkg/cache"
	"github.com/noah-isme/timetable-notifier/pkg/config"
	"github.com/noah-isme/timetable-notifier/pkg/database"
	"github.com/noah-isme/timetable-notifier/pkg/jobs"
	"github.com/noah-isme/timetable-notifier/pkg/logger"
	reqidmiddleware "github.com/noah-isme/timetable-notifier/pkg/middleware/requestid"
	"github.com/noah-isme/timetable-notifier/pkg/notify"
	"github.com/noah-isme/timetable-notifier/pkg/portal"
	"github.com/noah-isme/timetable-notifier/pkg/timetable"
	"github.com/noah-isme/timetable-notifier/pkg/vault"
)

// @title Timetable Notifier API
// @version 1.0.0
// @description Portal timetable sync, homework tracking and lesson notifications.
// @BasePath /api/v1
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	printToken := flag.Bool("print-service-token", false, "print a non-expiring service token for the chat front-end and exit")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	authService := service.NewAuthService(logr, service.AuthConfig{Secret: cfg.JWT.Secret, Issuer: cfg.JWT.Issuer})
	if *printToken {
		token, err := authService.IssueToken("chat-frontend", models.ScopeService, 0)
		if err != nil {
			logr.Sugar().Fatalw("issue service token", "error", err)
		}
		fmt.Println(token)
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("database connection failed", "error", err)
	}
	defer db.Close() //nolint:errcheck
	if err := database.EnsureSchema(ctx, db); err != nil {
		logr.Sugar().Fatalw("schema migration failed", "error", err)
	}

	location := cfg.Location()
	metricsService := service.NewMetricsService()
	validate := validator.New()

	var redisClient *redis.Client
	if cfg.Cache.Enabled {
		redisClient, err = cache.NewRedis(cfg.Redis)
		if err != nil {
			logr.Sugar().Warnw("redis unavailable, lesson cache disabled", "error", err)
			redisClient = nil
		}
	}
	cacheRepo := repository.NewCacheRepository(redisClient, logr)
	defer cacheRepo.Close() //nolint:errcheck
	cacheService := service.NewCacheService(cacheRepo, metricsService, cfg.Cache.LessonTTL, logr, redisClient != nil)

	sealer, err := vault.New(cfg.Vault.Secret)
	if err != nil {
		logr.Sugar().Fatalw("vault init failed", "error", err)
	}

	portalClient := portal.NewClient(portal.Config{
		LoginURL:        cfg.Portal.LoginURL,
		ScheduleURL:     cfg.Portal.ScheduleURL,
		ProbeURL:        cfg.Portal.ProbeURL,
		Origin:          cfg.Portal.Origin,
		UserAgent:       cfg.Portal.UserAgent,
		Timeout:         cfg.Portal.Timeout,
		ScheduleType:    cfg.Portal.ScheduleType,
		ScheduleDetails: cfg.Portal.ScheduleDetails,
	}, logr.Named("portal"), metricsService)

	lessonRepo := repository.NewLessonRepository(db)
	homeworkRepo := repository.NewHomeworkRepository(db)
	sessionRepo := repository.NewSessionRepository(db)
	credentialRepo := repository.NewCredentialRepository(db)

	sessionService := service.NewSessionService(portalClient, sessionRepo, credentialRepo, sealer, validate, logr, service.SessionConfig{TTL: cfg.Portal.SessionTTL})
	scheduleService := service.NewScheduleService(lessonRepo, sessionService, portalClient, timetable.NewClTblParser(logr.Named("parser")), cacheService, metricsService, location, logr)
	archiveService := service.NewArchiveService(homeworkRepo, location, logr)

	syncQueue := jobs.NewQueue("portal-sync", scheduleService.HandleSyncJob, jobs.QueueConfig{
		Workers:    cfg.Sync.Workers,
		MaxRetries: cfg.Sync.Retries,
		RetryDelay: 30 * time.Second,
		Logger:     logr,
	})
	syncQueue.Start(ctx)
	defer syncQueue.Stop()

	notifier := newNotifier(cfg.Notifier, logr)
	sched := scheduler.New(scheduler.Config{
		UnifiedCheckSpec:    cfg.Scheduler.UnifiedCheckSpec,
		DigestSpec:          cfg.Scheduler.DigestSpec,
		ArchiveSpec:         cfg.Scheduler.ArchiveSpec,
		ReminderRefreshSpec: cfg.Scheduler.ReminderRefresh,
		UpcomingLead:        cfg.Scheduler.UpcomingLeadTime,
		UpcomingTolerance:   cfg.Scheduler.UpcomingTolerance,
		Location:            location,
	}, lessonRepo, homeworkRepo, archiveService, notifier, metricsService, logr.Named("scheduler"))

	var homeworkService *service.HomeworkService
	if cfg.Scheduler.Enabled {
		if err := sched.Start(ctx); err != nil {
			logr.Sugar().Fatalw("scheduler start failed", "error", err)
		}
		homeworkService = service.NewHomeworkService(homeworkRepo, lessonRepo, sched, validate, location, logr)
	} else {
		logr.Info("scheduler disabled")
		homeworkService = service.NewHomeworkService(homeworkRepo, lessonRepo, nil, validate, location, logr)
	}

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(internalmiddleware.Metrics(metricsService))

	metricsHandler := handler.NewMetricsHandler(metricsService, db)
	r.GET("/health", metricsHandler.Health)
	r.GET("/metrics", metricsHandler.Prometheus)
	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	sessionHandler := handler.NewSessionHandler(sessionService, syncQueue)
	scheduleHandler := handler.NewScheduleHandler(scheduleService, syncQueue)
	homeworkHandler := handler.NewHomeworkHandler(homeworkService)
	archiveHandler := handler.NewArchiveHandler(archiveService)
	schedulerHandler := handler.NewSchedulerHandler(sched)

	api := r.Group(cfg.APIPrefix)
	api.GET("/scheduler/jobs", internalmiddleware.JWT(authService), internalmiddleware.ServiceOnly(), schedulerHandler.Jobs)
	owner := api.Group("/users/:"+internalmiddleware.OwnerParam, internalmiddleware.JWT(authService), internalmiddleware.OwnerAccess())
	{
		owner.POST("/session", sessionHandler.Login)
		owner.GET("/session/status", sessionHandler.Status)
		owner.POST("/schedule/sync", scheduleHandler.Sync)
		owner.POST("/schedule/import", scheduleHandler.Import)
		owner.GET("/lessons", scheduleHandler.Lessons)
		owner.GET("/lessons/export", scheduleHandler.Export)
		owner.POST("/homeworks", homeworkHandler.Create)
		owner.GET("/homeworks", homeworkHandler.List)
		owner.POST("/homeworks/:id/done", homeworkHandler.MarkDone)
		owner.GET("/archive", archiveHandler.Week)
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env, "timezone", location.String())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Warnw("http shutdown incomplete", "error", err)
	}
	sched.Stop(shutdownCtx)
}

func newNotifier(cfg config.NotifierConfig, logr *zap.Logger) notify.Notifier {
	switch cfg.Driver {
	case "webhook":
		if cfg.WebhookURL == "" {
			logr.Warn("webhook notifier selected without NOTIFIER_WEBHOOK_URL, falling back to log")
			break
		}
		return notify.NewWebhookNotifier(cfg.WebhookURL, cfg.Timeout)
	case "", "log":
	default:
		logr.Sugar().Warnw("unknown notifier driver, using log", "driver", cfg.Driver)
	}
	return notify.NewLogNotifier(logr)
}
