// Package app wires configuration, storage, services, and handlers into a
// runnable application.
package app

import (
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/fabrica/internal/common"
	"github.com/ternarybob/fabrica/internal/handlers"
	"github.com/ternarybob/fabrica/internal/interfaces"
	"github.com/ternarybob/fabrica/internal/services/cache"
	"github.com/ternarybob/fabrica/internal/services/events"
	"github.com/ternarybob/fabrica/internal/services/lifecycle"
	"github.com/ternarybob/fabrica/internal/services/notify"
	"github.com/ternarybob/fabrica/internal/services/pipeline"
	"github.com/ternarybob/fabrica/internal/services/promotion"
	"github.com/ternarybob/fabrica/internal/storage/badger"
)

// App holds all application components and dependencies
type App struct {
	Config         *common.Config
	Logger         arbor.ILogger
	StorageManager interfaces.StorageManager

	// Shared TTL cache for per-client rate limiters
	Limiters *cache.Cache

	// Core services
	EventService     *events.Service
	NotifyService    *notify.Service
	RoleResolver     *lifecycle.RoleResolver
	PipelineService  *pipeline.Service
	LifecycleService *lifecycle.Service
	Coordinator      *promotion.Coordinator
	Sweeper          *pipeline.Sweeper

	// HTTP handlers
	ProjectHandler      *handlers.ProjectHandler
	ArtifactHandler     *handlers.ArtifactHandler
	JobHandler          *handlers.JobHandler
	PromotionHandler    *handlers.PromotionHandler
	TrendHandler        *handlers.TrendHandler
	NotificationHandler *handlers.NotificationHandler
	StatusHandler       *handlers.StatusHandler
	WSHandler           *handlers.WebSocketHandler
}

// New initializes the application with all dependencies
func New(cfg *common.Config, logger arbor.ILogger) (*App, error) {
	app := &App{
		Config: cfg,
		Logger: logger,
	}

	// Storage
	manager, err := badger.NewManager(logger, &cfg.Storage.Badger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	app.StorageManager = manager

	cacheTTL, err := cfg.CacheTTL()
	if err != nil {
		manager.Close()
		return nil, err
	}
	app.Limiters = cache.New(cacheTTL, nil)

	// Side-effect services first; the core services publish through them.
	app.EventService = events.NewService(logger)
	app.NotifyService = notify.NewService(manager.Notifications(), manager.Memberships(), logger)
	app.RoleResolver = lifecycle.NewRoleResolver(manager.Memberships(), cacheTTL, logger)

	blueprints, err := lifecycle.LoadBlueprints(cfg.Blueprints.Path)
	if err != nil {
		manager.Close()
		return nil, fmt.Errorf("failed to load blueprints: %w", err)
	}

	// Pipeline and lifecycle reference each other; hooks are injected after
	// both exist.
	app.PipelineService = pipeline.NewService(manager.Jobs(), app.NotifyService, app.EventService, cfg, logger)
	app.LifecycleService = lifecycle.NewService(
		manager.Projects(), manager.Artifacts(), manager.Memberships(), manager.Notifications(),
		app.PipelineService, app.RoleResolver, app.NotifyService, app.EventService, blueprints, logger)
	app.PipelineService.SetHooks(app.LifecycleService)

	app.Coordinator = promotion.NewCoordinator(
		manager.Projects(), manager.Artifacts(), manager.Memberships(), manager.References(), manager.Trends(),
		app.PipelineService, app.NotifyService, app.EventService, cfg, logger)

	app.Sweeper, err = pipeline.NewSweeper(app.PipelineService, cfg, logger)
	if err != nil {
		manager.Close()
		return nil, err
	}

	// Handlers
	app.ProjectHandler = handlers.NewProjectHandler(app.LifecycleService, app.PipelineService, logger)
	app.ArtifactHandler = handlers.NewArtifactHandler(app.LifecycleService, logger)
	app.JobHandler = handlers.NewJobHandler(app.PipelineService, logger)
	app.PromotionHandler = handlers.NewPromotionHandler(app.Coordinator, logger)
	app.TrendHandler = handlers.NewTrendHandler(manager.Trends(), logger)
	app.NotificationHandler = handlers.NewNotificationHandler(manager.Notifications(), logger)
	app.StatusHandler = handlers.NewStatusHandler(manager.Jobs(), logger)
	app.WSHandler = handlers.NewWebSocketHandler(app.EventService, logger)

	logger.Info().
		Str("environment", cfg.Environment).
		Str("storage", cfg.Storage.Badger.Path).
		Msg("Application initialized")

	return app, nil
}

// Start launches background workers.
func (a *App) Start() {
	a.Sweeper.Start()
}

// Close stops background workers and releases resources.
func (a *App) Close() error {
	a.Sweeper.Stop()
	a.Limiters.Purge()
	if err := a.StorageManager.Close(); err != nil {
		return fmt.Errorf("failed to close storage: %w", err)
	}
	a.Logger.Info().Msg("Application stopped")
	return nil
}
