package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/jwalitptl/therapy-scheduler/internal/config"
	appointmentHandler "github.com/jwalitptl/therapy-scheduler/internal/handler/appointment"
	auditHandler "github.com/jwalitptl/therapy-scheduler/internal/handler/audit"
	dashboardHandler "github.com/jwalitptl/therapy-scheduler/internal/handler/dashboard"
	"github.com/jwalitptl/therapy-scheduler/internal/handler/health"
	promhandler "github.com/jwalitptl/therapy-scheduler/internal/handler/prometheus"
	"github.com/jwalitptl/therapy-scheduler/internal/middleware"
	"github.com/jwalitptl/therapy-scheduler/internal/repository/postgres"
	"github.com/jwalitptl/therapy-scheduler/internal/router"
	"github.com/jwalitptl/therapy-scheduler/internal/service/access"
	appointmentService "github.com/jwalitptl/therapy-scheduler/internal/service/appointment"
	"github.com/jwalitptl/therapy-scheduler/internal/service/audit"
	dashboardService "github.com/jwalitptl/therapy-scheduler/internal/service/dashboard"
	"github.com/jwalitptl/therapy-scheduler/internal/service/rbac"
	"github.com/jwalitptl/therapy-scheduler/internal/service/relation"
	"github.com/jwalitptl/therapy-scheduler/internal/timewindow"
	"github.com/jwalitptl/therapy-scheduler/pkg/auth"
	"github.com/jwalitptl/therapy-scheduler/pkg/cache"
	"github.com/jwalitptl/therapy-scheduler/pkg/clock"
	"github.com/jwalitptl/therapy-scheduler/pkg/logger"
	"github.com/jwalitptl/therapy-scheduler/pkg/metrics"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	logger.Init(&logger.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})

	if err := middleware.SetupValidation(); err != nil {
		log.Fatal().Err(err).Msg("failed to register validators")
	}

	db, err := postgres.NewDB(cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg, "therapy_scheduler")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Dashboard results are cached only when redis is configured.
	var dashboardCache cache.Cache = cache.Noop{}
	if cfg.Redis.Enabled {
		cacheCfg := cache.Config{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
			TTL:      cfg.Cache.DashboardTTL,
		}
		client, err := cache.NewRedisClient(ctx, cacheCfg)
		if err != nil {
			log.Warn().Err(err).Msg("redis unavailable, dashboard cache disabled")
		} else {
			defer client.Close()
			dashboardCache = cache.NewRedisCache(client, cacheCfg, m)
		}
	}

	clk := clock.New()

	// Repositories
	appointmentRepo := postgres.NewAppointmentRepository(db)
	branchRepo := postgres.NewBranchRepository(db)
	userRepo := postgres.NewUserRepository(db)
	tx := postgres.NewTransactor(db)

	if cfg.Seed.Enabled {
		if err := rbac.NewSeeder(postgres.NewRBACRepository(db), tx).Seed(ctx); err != nil {
			log.Fatal().Err(err).Msg("failed to seed roles and permissions")
		}
	}

	// Services
	relations := relation.NewValidator(relation.Repositories{
		Branches:        branchRepo,
		Patients:        postgres.NewPatientRepository(db),
		TeamMembers:     postgres.NewTeamMemberRepository(db),
		Departments:     postgres.NewDepartmentRepository(db),
		Specializations: postgres.NewSpecializationRepository(db),
	})
	auditSvc := audit.NewService(postgres.NewAuditRepository(db), clk)

	appointmentSvc := appointmentService.NewService(appointmentService.Deps{
		Appointments: appointmentRepo,
		Relations:    relations,
		Tx:           tx,
		Audit:        auditSvc,
		Cache:        dashboardCache,
		Metrics:      m,
		Clock:        clk,
	})

	dashboardSvc := dashboardService.NewService(dashboardService.Deps{
		Dashboard:           postgres.NewDashboardRepository(db),
		Branches:            branchRepo,
		Access:              access.NewResolver(branchRepo, userRepo, cfg.Cache.AccessTTL),
		Windows:             timewindow.NewResolver(clk),
		Cache:               dashboardCache,
		Metrics:             m,
		Clock:               clk,
		InsightsConcurrency: cfg.Dashboard.InsightsConcurrency,
	})

	// HTTP
	authMiddleware := middleware.NewAuthMiddleware(auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.Issuer))
	metricsH := promhandler.New(reg, m)

	r := router.NewRouter(
		authMiddleware,
		health.NewHandler(db, metricsH.Handler()),
		metricsH,
		router.RouterConfig{
			Mode:             cfg.Server.Mode,
			RateLimitEnabled: cfg.RateLimit.Enabled,
			RateLimit:        rate.Limit(cfg.RateLimit.RequestsPerSecond),
			RateBurst:        cfg.RateLimit.Burst,
			CORSConfig:       middleware.DefaultCORSConfig(cfg.CORS.AllowedOrigins),
		},
		appointmentHandler.NewHandler(appointmentSvc),
		dashboardHandler.NewHandler(dashboardSvc),
		auditHandler.NewHandler(auditSvc),
	)
	r.Setup()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r.Engine(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		log.Info().Int("port", cfg.Server.Port).Msg("starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server exited properly")
}
