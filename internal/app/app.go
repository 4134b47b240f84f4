package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"

	"github.com/pulsoria/social-sync/internal/apiclient"
	"github.com/pulsoria/social-sync/internal/config"
	"github.com/pulsoria/social-sync/internal/connector"
	"github.com/pulsoria/social-sync/internal/handler"
	"github.com/pulsoria/social-sync/internal/oauthstate"
	"github.com/pulsoria/social-sync/internal/ratelimit"
	"github.com/pulsoria/social-sync/internal/repository"
	"github.com/pulsoria/social-sync/internal/store"
	"github.com/pulsoria/social-sync/internal/syncer"
	"github.com/pulsoria/social-sync/internal/tokenvault"
	"github.com/pulsoria/social-sync/pkg/observability"
)

const shutdownTimeout = 5 * time.Second

type App struct {
	infra     Infrastructure
	config    *config.Config
	router    *gin.Engine
	server    *http.Server
	scheduler *Scheduler
}

func NewApp(infra Infrastructure, cfg *config.Config) (*App, error) {
	logger := infra.Logger()
	repos := repository.NewRepositories(infra.Postgres())

	limits, err := ratelimit.ParseOverrides(cfg.RateLimit.Overrides)
	if err != nil {
		return nil, fmt.Errorf("invalid rate limit overrides: %w", err)
	}

	sharedStore := store.NewRedis(infra.Redis(), "social-sync")
	limiter := ratelimit.NewLimiter(limits, sharedStore, logger)
	executor := apiclient.NewExecutor(limiter, logger, cfg.Sync.RequestTimeout.Duration)

	cipher, err := tokenvault.NewCipher(cfg.Crypto.TokenKey)
	if err != nil {
		return nil, fmt.Errorf("invalid token key: %w", err)
	}
	vault := tokenvault.NewVault(repos.SocialAccount, cipher, executor, cfg.OAuth, logger)

	registry := connector.NewRegistry(connector.Options{
		Executor:           executor,
		Logger:             logger,
		MaxPages:           cfg.Sync.MaxPages,
		InsightConcurrency: cfg.Sync.InsightConcurrency,
	})
	orchestrator := syncer.NewOrchestrator(repos, vault, registry, logger, cfg.Sync.AccountConcurrency)

	stateCodec := oauthstate.NewCodec(cfg.Crypto.StateSecret)
	verifiers := oauthstate.NewVerifierStore(sharedStore)
	oauthFlow := connector.NewOAuthFlow(executor)

	oauthHandler := handler.NewOAuthHandler(cfg, stateCodec, verifiers, oauthFlow, vault, logger)
	syncHandler := handler.NewSyncHandler(orchestrator, repos.SyncRun, logger)
	insightsHandler := handler.NewInsightsHandler(repos.SocialAccount, repos.DailyMetric, repos.PostMetric, logger)
	healthChecker := NewHealthChecker(infra)

	syncMetrics, err := observability.NewSyncMetrics()
	if err != nil {
		return nil, fmt.Errorf("failed to register sync metrics: %w", err)
	}
	scheduler := NewScheduler(orchestrator, vault, syncMetrics, logger, cfg.Sync)

	router := gin.Default()
	router.Use(otelgin.Middleware("social-sync"))
	router.Use(handler.LoggerMiddleware(logger))

	setupRoutes(router, oauthHandler, syncHandler, insightsHandler, healthChecker, infra.MetricsHandler())

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout.Duration,
		WriteTimeout: cfg.Server.WriteTimeout.Duration,
	}

	return &App{
		infra:     infra,
		config:    cfg,
		router:    router,
		server:    srv,
		scheduler: scheduler,
	}, nil
}

func (a *App) Router() *gin.Engine {
	return a.router
}

func setupRoutes(
	router *gin.Engine,
	oauthHandler *handler.OAuthHandler,
	syncHandler *handler.SyncHandler,
	insightsHandler *handler.InsightsHandler,
	healthChecker *HealthChecker,
	metricsHandler http.Handler,
) {
	router.GET("/metrics", observability.PrometheusHandler(metricsHandler))
	router.GET("/health", healthChecker.Handler)

	api := router.Group("/api/v1")
	{
		oauth := api.Group("/oauth")
		{
			oauth.GET("/:platform/connect", oauthHandler.Connect)
			oauth.GET("/:platform/callback", oauthHandler.Callback)
		}

		sync := api.Group("/sync")
		{
			sync.POST("/run", syncHandler.Run)
			sync.GET("/status", syncHandler.Status)
		}

		insights := api.Group("/insights")
		{
			insights.GET("/top-posts", insightsHandler.TopPosts)
			insights.GET("/follower-trend", insightsHandler.FollowerTrend)
		}
	}
}

func (a *App) Run(ctx context.Context) error {
	schedulerCtx, stopScheduler := context.WithCancel(ctx)
	defer stopScheduler()
	a.scheduler.Start(schedulerCtx)

	errChan := make(chan error, 1)

	go func() {
		a.infra.Logger().Info("Application starting",
			zap.String("host", a.config.Server.Host),
			zap.String("port", a.config.Server.Port),
		)

		if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.infra.Logger().Error("Server error", zap.Error(err))
			errChan <- err
		}
	}()

	var serverErr error
	select {
	case err := <-errChan:
		a.infra.Logger().Error("Application failed to start", zap.Error(err))
		serverErr = err
	case <-ctx.Done():
		a.infra.Logger().Info("Application stopped by context")
	}

	stopScheduler()
	a.scheduler.Wait()

	if err := a.Shutdown(); err != nil {
		a.infra.Logger().Error("Shutdown error", zap.Error(err))
		if serverErr != nil {
			return errors.Join(serverErr, err)
		}
		return err
	}

	return serverErr
}

func (a *App) Shutdown() error {
	a.infra.Logger().Info("Application shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	errs := make(chan error, 2)

	go func() {
		errs <- a.server.Shutdown(ctx)
	}()

	go func() {
		errs <- a.infra.Shutdown(ctx)
	}()

	err := errors.Join(<-errs, <-errs)
	if err != nil {
		a.infra.Logger().Error("Shutdown failed", zap.Error(err))
		return err
	}

	a.infra.Logger().Info("Application exited successfully")
	return nil
}
