package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aussiebroadwan/tabgate/internal/gateway/credential"
	"github.com/aussiebroadwan/tabgate/internal/gateway/handlers"
	httpapi "github.com/aussiebroadwan/tabgate/internal/gateway/http"
	"github.com/aussiebroadwan/tabgate/internal/gateway/hub"
	"github.com/aussiebroadwan/tabgate/internal/gateway/kv"
	"github.com/aussiebroadwan/tabgate/internal/gateway/policy"
	"github.com/aussiebroadwan/tabgate/internal/gateway/ratelimit"
	"github.com/aussiebroadwan/tabgate/internal/gateway/service"
	"github.com/aussiebroadwan/tabgate/internal/gateway/store"
	"github.com/aussiebroadwan/tabgate/internal/gateway/store/drivers/sqlite"
	"github.com/aussiebroadwan/tabgate/pkg/cryptox"
	"github.com/aussiebroadwan/tabgate/pkg/jwtx"
	"github.com/aussiebroadwan/tabgate/pkg/slogx"
)

const (
	// BuildVersion is overridden at build time via ldflags.
	BuildVersion = "v0.1.0"

	redisKeyPrefix = "tabgate:"
)

// Application wires the gateway and its HTTP surface together.
type Application struct {
	cfg    Config
	logger *slog.Logger

	// Core dependencies
	db          store.Store
	kv          kv.Store
	keyManager  *jwtx.KeyManager
	credentials *credential.Manager
	engine      *policy.Engine
	limiter     *ratelimit.Limiter
	handlers    *handlers.Registry
	gateway     *hub.Gateway

	// Services
	loginService        *service.LoginService
	usersService        *service.UsersService
	rulesService        *service.RulesService
	housekeepingService *service.HousekeepingService
	rulesWatcher        *RulesWatcher

	// HTTP server
	server *http.Server
	router *httpapi.Router

	cancel context.CancelFunc
}

// New creates an Application with every dependency initialized. Nothing
// runs until Run or Start is called.
func New(cfg Config) (*Application, error) {
	app := &Application{
		cfg: cfg,
		logger: slogx.New(slogx.Config{
			Version: BuildVersion,
			Env:     cfg.Env,
			Level:   cfg.LogLevel,
			Format:  cfg.LogFormat,
		}),
	}

	ctx := slogx.WithContext(context.Background(), app.logger)

	if err := app.initDatabase(); err != nil {
		return nil, err
	}
	if err := app.initKV(ctx); err != nil {
		_ = app.db.Close()
		return nil, err
	}
	if err := app.initCredentials(ctx); err != nil {
		app.closeStores()
		return nil, err
	}
	if err := app.initGateway(); err != nil {
		app.closeStores()
		return nil, err
	}
	app.initServices()
	if err := app.initRules(ctx); err != nil {
		app.closeStores()
		return nil, err
	}
	if err := app.bootstrapAdmin(ctx); err != nil {
		app.closeStores()
		return nil, err
	}
	app.initHTTP()

	return app, nil
}

// Handler is the root HTTP handler.
func (app *Application) Handler() http.Handler { return app.router }

// Start launches the background workers without the HTTP listener.
func (app *Application) Start() {
	ctx, cancel := context.WithCancel(slogx.WithContext(context.Background(), app.logger))
	app.cancel = cancel

	app.housekeepingService.Start()
	if app.rulesWatcher != nil {
		app.rulesWatcher.Start(ctx)
	}
}

// Run starts the application and blocks until shutdown is requested.
func (app *Application) Run() error {
	app.Start()

	app.logger.Info("gateway starting", "port", app.cfg.Port, "version", BuildVersion)

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- app.server.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
	case sig := <-shutdown:
		app.logger.Info("shutdown signal received", "signal", sig)

		if err := app.Shutdown(); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
	}

	return nil
}

// Shutdown closes live connections with 1001, drains the HTTP server and
// releases the stores.
func (app *Application) Shutdown() error {
	app.logger.Info("shutting down gateway...")

	ctx, cancel := context.WithTimeout(context.Background(), app.cfg.ShutdownGracePeriod)
	defer cancel()

	// Hijacked websocket connections are invisible to http.Server.Shutdown.
	if err := app.gateway.Shutdown(ctx); err != nil {
		app.logger.Warn("connections did not close in time", "error", err)
	}

	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("graceful server shutdown failed", "error", err)
		if err := app.server.Close(); err != nil {
			app.logger.Error("error closing server", "error", err)
		}
	}

	if app.cancel != nil {
		app.cancel()
		app.housekeepingService.Stop()
	}
	if app.rulesWatcher != nil {
		if err := app.rulesWatcher.Stop(); err != nil {
			app.logger.Warn("error stopping rules watcher", "error", err)
		}
	}

	if err := app.closeStores(); err != nil {
		return err
	}

	app.logger.Info("gateway stopped")
	return nil
}

func (app *Application) closeStores() error {
	var errs []error
	if app.kv != nil {
		if err := app.kv.Close(); err != nil {
			app.logger.Error("error closing kv store", "error", err)
			errs = append(errs, err)
		}
	}
	if err := app.db.Close(); err != nil {
		app.logger.Error("error closing database", "error", err)
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (app *Application) initDatabase() error {
	db, err := sqlite.NewStore(sqlite.FileDSN(app.cfg.DatabaseFile))
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	app.db = db

	if err := db.ApplyMigrations(); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to apply database migrations: %w", err)
	}

	app.logger.Info("database migrations applied successfully")
	return nil
}

func (app *Application) initKV(ctx context.Context) error {
	switch app.cfg.KVDriver {
	case "redis":
		if app.cfg.RedisURL == "" {
			return errors.New("GATEWAY_REDIS_URL is required when GATEWAY_KV_DRIVER=redis")
		}
		client, err := kv.Connect(app.cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("failed to configure redis: %w", err)
		}
		r := kv.NewRedis(client, redisKeyPrefix)
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := r.Ping(pingCtx); err != nil {
			_ = r.Close()
			return fmt.Errorf("failed to reach redis: %w", err)
		}
		app.kv = r
		app.logger.Info("using redis kv store", "prefix", redisKeyPrefix)
	case "memory", "":
		app.kv = kv.NewMemory(time.Now)
		app.logger.Info("using in-memory kv store, revocations and lockouts are per process")
	default:
		return fmt.Errorf("unknown kv driver %q (supported: memory, redis)", app.cfg.KVDriver)
	}
	return nil
}

func (app *Application) initCredentials(ctx context.Context) error {
	pepper, err := cryptox.LoadOrCreatePepper(app.cfg.PepperFile)
	if err != nil {
		return fmt.Errorf("failed to load pepper: %w", err)
	}

	km, err := InitSigningKeys(ctx, app.cfg, app.db, app.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize signing keys: %w", err)
	}
	app.keyManager = km

	app.credentials, err = credential.NewManager(credential.Config{
		Keys:             km,
		Hasher:           cryptox.NewHasher(pepper, cryptox.DefaultParams),
		KV:               app.kv,
		Issuer:           app.cfg.Issuer,
		AccessTTL:        app.cfg.AccessTTL,
		RefreshTTL:       app.cfg.RefreshTTL,
		MaxLoginFailures: app.cfg.MaxLoginFailures,
		LockoutDuration:  app.cfg.LockoutDuration,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize credential manager: %w", err)
	}
	return nil
}

func (app *Application) initGateway() error {
	app.engine = policy.NewEngine(nil)
	app.limiter = ratelimit.New(time.Now)
	app.handlers = handlers.NewRegistry()

	gw, err := hub.New(hub.Config{
		Credentials: app.credentials,
		Policy:      app.engine,
		Limiter:     app.limiter,
		Handlers:    app.handlers,
		MaxMessages: app.cfg.MaxMessages,
		RateWindow:  app.cfg.RateWindow,
		SendQueue:   app.cfg.SendQueue,
		Logger:      app.logger,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize gateway: %w", err)
	}
	app.gateway = gw
	return nil
}

func (app *Application) initServices() {
	app.loginService = &service.LoginService{Store: app.db, Credentials: app.credentials}
	app.usersService = &service.UsersService{
		Store:       app.db,
		Credentials: app.credentials,
		TOTPIssuer:  app.cfg.Issuer,
	}
	app.rulesService = &service.RulesService{Store: app.db, Engine: app.engine}

	handlers.Register(app.handlers, handlers.Deps{
		Broadcaster: app.gateway,
		Rules:       app.rulesService,
	})

	app.housekeepingService = service.NewHousekeepingService(
		app.db,
		app.kv,
		app.gateway,
		app.logger,
		app.cfg.HousekeepingInterval,
		app.cfg.ReapInterval,
		app.cfg.IdleTimeout,
	)
}

// initRules loads the stored table, then overlays the rules file when one
// is configured.
func (app *Application) initRules(ctx context.Context) error {
	if err := app.rulesService.Load(ctx); err != nil {
		return fmt.Errorf("failed to load permission rules: %w", err)
	}
	if app.cfg.RulesFile == "" {
		return nil
	}

	w, err := NewRulesWatcher(app.cfg.RulesFile, app.rulesService, app.logger, 0)
	if err != nil {
		return fmt.Errorf("failed to watch rules file: %w", err)
	}
	if err := w.Load(ctx); err != nil {
		_ = w.Stop()
		return err
	}
	app.rulesWatcher = w
	return nil
}

// bootstrapAdmin creates the configured admin on an empty user table.
func (app *Application) bootstrapAdmin(ctx context.Context) error {
	if app.cfg.BootstrapAdmin == "" {
		return nil
	}
	done, err := app.usersService.IsBootstrapped(ctx)
	if err != nil {
		return fmt.Errorf("failed to check users: %w", err)
	}
	if done {
		return nil
	}
	if _, err := app.usersService.Bootstrap(ctx, app.cfg.BootstrapAdmin, app.cfg.BootstrapPassword); err != nil {
		return fmt.Errorf("failed to create bootstrap admin: %w", err)
	}
	return nil
}

func (app *Application) initHTTP() {
	router := httpapi.NewRouter(
		app.keyManager.KeySet,
		BuildVersion,
		app.db,
		app.kv,
		app.logger,
	)

	router.Credentials = app.credentials
	router.Gateway = app.gateway
	router.LoginService = app.loginService
	router.UsersService = app.usersService
	router.RulesService = app.rulesService
	router.BootstrapToken = app.cfg.BootstrapToken
	router.AllowedOrigins = app.cfg.AllowedOrigins
	router.ApplyRoutes()

	app.router = router

	app.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", app.cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 3 * time.Second,
	}
}
