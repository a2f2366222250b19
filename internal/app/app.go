package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/abdulachik/littlebird/internal/config"
	"github.com/abdulachik/littlebird/internal/db"
	"github.com/abdulachik/littlebird/internal/detect"
	"github.com/abdulachik/littlebird/internal/metrics"
	"github.com/abdulachik/littlebird/internal/monitor"
	"github.com/abdulachik/littlebird/internal/notify"
	"github.com/abdulachik/littlebird/internal/scheduler"
	"github.com/abdulachik/littlebird/internal/state"
	"github.com/abdulachik/littlebird/internal/twitter"
)

// Source keys.
const (
	SourceNews    = "news"
	SourceWeather = "weather"
)

// Options adjust how the application is assembled.
type Options struct {
	// DryRun logs notifications instead of sending direct messages.
	DryRun bool
}

// App is the main application container holding all dependencies.
type App struct {
	Config   *config.Config
	Client   *twitter.Client
	DB       *db.Store // nil unless the sqlite backend is used
	Store    state.Store
	Notifier notify.Notifier
	Metrics  *metrics.Recorder
	Tasks    []*scheduler.Task

	history scheduler.History
}

// New assembles the application. Missing credentials and a failed
// authentication handshake are returned before any source is polled.
func New(ctx context.Context, cfg *config.Config, opts Options) (*App, error) {
	creds, err := config.LoadCredentials(cfg.CredentialsPath)
	if err != nil {
		return nil, fmt.Errorf("load credentials: %w", err)
	}

	client := twitter.New(twitter.Config{
		Credentials: twitter.Credentials{
			ConsumerKey:       creds.ConsumerKey,
			ConsumerSecret:    creds.ConsumerSecret,
			AccessToken:       creds.AccessToken,
			AccessTokenSecret: creds.AccessTokenSecret,
		},
		BaseURL:     cfg.TwitterAPIURL,
		Timeout:     cfg.FetchTimeout,
		MinInterval: cfg.TwitterRateLimit,
	})

	me, err := client.VerifyCredentials(ctx)
	if err != nil {
		return nil, fmt.Errorf("authenticate: %w", err)
	}
	slog.Info("authenticated", "screen_name", me.ScreenName)

	a := &App{
		Config:  cfg,
		Client:  client,
		Metrics: metrics.NewRecorder(),
	}

	if err := a.openStore(ctx); err != nil {
		return nil, err
	}

	if err := a.buildNotifier(ctx, opts); err != nil {
		a.Close()
		return nil, err
	}

	if err := a.buildTasks(); err != nil {
		a.Close()
		return nil, err
	}

	return a, nil
}

func (a *App) openStore(ctx context.Context) error {
	cfg := a.Config
	switch cfg.StateBackend {
	case config.BackendFile:
		fs, err := state.NewFileStore(cfg.StateDir)
		if err != nil {
			return err
		}
		a.Store = fs

	case config.BackendMemory:
		a.Store = state.NewMemoryStore()

	default:
		store, err := db.NewStore(ctx, db.Config{
			Path:        cfg.DatabasePath,
			BusyTimeout: cfg.DBBusyTimeout,
		})
		if err != nil {
			return fmt.Errorf("connect to database: %w", err)
		}
		if err := store.Migrate(ctx); err != nil {
			store.Close()
			return fmt.Errorf("run migrations: %w", err)
		}
		sqlStore := state.NewSQLiteStore(store)
		a.DB = store
		a.Store = sqlStore
		a.history = sqlStore
	}

	slog.Info("state store ready", "backend", cfg.StateBackend, "dir", cfg.StateDir)
	return nil
}

func (a *App) buildNotifier(ctx context.Context, opts Options) error {
	if opts.DryRun {
		a.Notifier = notify.NewLogNotifier(a.Config.NotifyScreenName)
		return nil
	}

	dm, err := notify.NewDirectMessageNotifier(notify.DirectMessageConfig{
		Client:     a.Client,
		ScreenName: a.Config.NotifyScreenName,
	})
	if err != nil {
		return err
	}
	if _, err := dm.Resolve(ctx); err != nil {
		return err
	}
	a.Notifier = dm
	return nil
}

func (a *App) buildTasks() error {
	cfg := a.Config

	filter, err := monitor.NewFilter(monitor.FilterConfig{Pattern: cfg.TimelinePattern})
	if err != nil {
		return err
	}
	timeline, err := monitor.NewTimelineFetcher(monitor.TimelineConfig{
		Name:    SourceNews,
		Reader:  a.Client,
		Account: cfg.TimelineAccount,
		Count:   cfg.TimelineCount,
		Filter:  filter,
	})
	if err != nil {
		return err
	}

	weather, err := monitor.NewWeatherFetcher(monitor.WeatherConfig{
		Name:     SourceWeather,
		BaseURL:  cfg.WeatherAPIURL,
		Location: cfg.WeatherLocation,
		Timeout:  cfg.FetchTimeout,
	})
	if err != nil {
		return err
	}

	news, err := scheduler.NewTask(scheduler.TaskConfig{
		Fetcher:  timeline,
		Strategy: detect.Equality,
		Notifier: a.Notifier,
		Store:    a.Store,
		History:  a.history,
		Interval: cfg.TimelineInterval,
		Timeout:  cfg.FetchTimeout,
		Metrics:  a.Metrics,
	})
	if err != nil {
		return err
	}

	rain, err := scheduler.NewTask(scheduler.TaskConfig{
		Fetcher:  weather,
		Strategy: detect.LexicallyGreater,
		Notifier: a.Notifier,
		Store:    a.Store,
		History:  a.history,
		Interval: cfg.WeatherInterval,
		Timeout:  cfg.FetchTimeout,
		Metrics:  a.Metrics,
	})
	if err != nil {
		return err
	}

	a.Tasks = []*scheduler.Task{news, rain}
	return nil
}

// Task returns the task for a source key, or nil.
func (a *App) Task(key string) *scheduler.Task {
	for _, t := range a.Tasks {
		if t.Key() == key {
			return t
		}
	}
	return nil
}

// Close closes all resources.
func (a *App) Close() error {
	if a.DB != nil {
		return a.DB.Close()
	}
	return nil
}
