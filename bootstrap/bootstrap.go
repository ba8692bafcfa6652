// Package bootstrap wires all dependencies and starts the bot:
// database, services, scheduler, Discord gateway, and admin server.
package bootstrap

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/himawari-bot/himawari/adapters/clock"
	"github.com/himawari-bot/himawari/adapters/discord"
	adapterhttp "github.com/himawari-bot/himawari/adapters/http"
	"github.com/himawari-bot/himawari/adapters/idgen"
	"github.com/himawari-bot/himawari/adapters/mathimg"
	"github.com/himawari-bot/himawari/adapters/metrics"
	"github.com/himawari-bot/himawari/adapters/openai"
	"github.com/himawari-bot/himawari/adapters/sqlite"
	"github.com/himawari-bot/himawari/app"
	"github.com/himawari-bot/himawari/config"
)

// Version is stamped at build time via -ldflags.
var Version = "dev"

// App represents the running application.
type App struct {
	Config  *config.Config
	Logger  zerolog.Logger
	DB      *sqlite.DB
	Metrics *metrics.Collector

	Usage      *app.UsageService
	Aggregator *app.AggregationService
	Scheduler  *app.Scheduler
	Dispatcher *app.Dispatcher

	Gateway    *discord.Gateway
	HTTPServer *http.Server

	archive *sqlite.Archive
}

// New creates and initializes the application from configuration.
func New(cfg *config.Config) (*App, error) {
	logger := setupLogger(cfg.Logging)
	logger.Info().Str("version", Version).Msg("initializing himawari")

	a := &App{
		Config:  cfg,
		Logger:  logger,
		Metrics: metrics.New(),
	}

	if err := a.initDatabase(); err != nil {
		return nil, fmt.Errorf("init database: %w", err)
	}

	a.initServices()
	a.initHTTPServer()

	if err := a.initGateway(); err != nil {
		a.DB.Close()
		return nil, fmt.Errorf("init gateway: %w", err)
	}

	return a, nil
}

func (a *App) initDatabase() error {
	db, err := sqlite.Open(a.Config.Database.Path)
	if err != nil {
		return err
	}

	if err := db.Migrate(); err != nil {
		db.Close()
		return fmt.Errorf("migrate: %w", err)
	}

	a.DB = db
	a.Logger.Info().Str("path", a.Config.Database.Path).Msg("database initialized")
	return nil
}

func (a *App) initServices() {
	cl := clock.Real{}

	store := sqlite.NewUsageStore(a.DB)
	a.Usage = app.NewUsageService(store, cl, a.Logger)

	a.archive = sqlite.NewArchive(a.DB, a.Config.Archive.Dir)
	a.Aggregator = app.NewAggregationService(a.archive, idgen.UUID{}, a.Logger)

	a.Scheduler = app.NewScheduler(a.Aggregator, cl, a.Logger)
	a.Scheduler.OnRun = func(usageDate string, rows int64, err error) {
		if err != nil {
			a.Metrics.AggregationRuns.WithLabelValues("error").Inc()
			return
		}
		a.Metrics.AggregationRuns.WithLabelValues("ok").Inc()
		a.Metrics.AggregationRows.Set(float64(rows))
		a.Metrics.AggregationLastRun.SetToCurrentTime()
	}

	a.Dispatcher = app.NewDispatcher(a.Usage, a.Config.Budget.DailyTokenLimit, a.Logger)
	a.Dispatcher.SetObserver(&metricsObserver{collector: a.Metrics})
}

func (a *App) initGateway() error {
	generator := openai.NewGenerator(openai.Config{
		APIKey:  a.Config.OpenAI.APIKey,
		BaseURL: a.Config.OpenAI.BaseURL,
		Timeout: a.Config.OpenAI.Timeout,
	})
	renderer := mathimg.NewRenderer(0, 0)

	handlers := []app.Handler{
		app.NewChatCommand(generator),
		app.NewTalkCommand(generator),
		app.NewTexCommand(renderer),
		app.NewUsageCommand(a.Usage, a.Config.Budget.DailyTokenLimit),
		// help reads the registry, so it goes in last
		app.NewHelpCommand(a.Dispatcher),
	}
	for _, h := range handlers {
		if err := a.Dispatcher.Register(h); err != nil {
			return err
		}
	}

	thread := app.NewThreadTalk(generator, a.Usage, a.Config.Budget.DailyTokenLimit, a.Logger)
	thread.SetObserver(&metricsObserver{collector: a.Metrics})

	gateway, err := discord.New(a.Config.Discord.Token, a.Config.Discord.GuildID, a.Dispatcher, thread, a.Logger)
	if err != nil {
		return err
	}
	a.Gateway = gateway
	return nil
}

func (a *App) initHTTPServer() {
	var metricsHandler http.Handler
	if a.Config.Metrics.Enabled {
		metricsHandler = promhttp.Handler()
	}

	router := adapterhttp.NewRouter(adapterhttp.Deps{
		Usage:       a.Usage,
		Aggregator:  a.Aggregator,
		Archive:     a.archive,
		DailyLimit:  a.Config.Budget.DailyTokenLimit,
		Metrics:     metricsHandler,
		MetricsPath: a.Config.Metrics.Path,
		Version:     Version,
		Logger:      a.Logger,
	})

	a.HTTPServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", a.Config.Admin.Host, a.Config.Admin.Port),
		Handler:      router,
		ReadTimeout:  a.Config.Admin.ReadTimeout,
		WriteTimeout: a.Config.Admin.WriteTimeout,
	}
}

// Run starts everything and blocks until a signal or a fatal server
// error, then shuts down gracefully.
func (a *App) Run() error {
	a.Scheduler.Start()

	if err := a.Gateway.Start(); err != nil {
		a.Scheduler.Stop()
		return fmt.Errorf("start gateway: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		a.Logger.Info().Str("addr", a.HTTPServer.Addr).Msg("starting admin server")
		if err := a.HTTPServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		a.Shutdown()
		return fmt.Errorf("admin server error: %w", err)
	case sig := <-quit:
		a.Logger.Info().Str("signal", sig.String()).Msg("shutting down")
	}

	return a.Shutdown()
}

// Shutdown gracefully stops the application.
func (a *App) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if a.Gateway != nil {
		if err := a.Gateway.Stop(); err != nil {
			a.Logger.Error().Err(err).Msg("gateway close error")
		}
	}

	if a.Scheduler != nil {
		a.Scheduler.Stop()
	}

	if a.HTTPServer != nil {
		if err := a.HTTPServer.Shutdown(ctx); err != nil {
			a.Logger.Error().Err(err).Msg("admin server shutdown error")
		}
	}

	if a.DB != nil {
		if err := a.DB.Close(); err != nil {
			a.Logger.Error().Err(err).Msg("database close error")
		}
	}

	a.Logger.Info().Msg("shutdown complete")
	return nil
}

func setupLogger(cfg config.LoggingConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.Format == "console" {
		output := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
		return zerolog.New(output).With().Timestamp().Logger()
	}

	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}
