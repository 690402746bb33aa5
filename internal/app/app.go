package app

import (
	"context"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"spreadwatch/internal/alerting"
	"spreadwatch/internal/cache"
	"spreadwatch/internal/config"
	"spreadwatch/internal/fetcher"
	"spreadwatch/internal/logging"
	"spreadwatch/internal/metrics"
	"spreadwatch/internal/series"
	"spreadwatch/internal/service"
	"spreadwatch/internal/storage"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config  *config.Config
	Logger  zerolog.Logger
	Out     io.Writer
	Metrics *metrics.Metrics
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{
		Config:  cfg,
		Logger:  logging.Component(logger, "app"),
		Out:     os.Stdout,
		Metrics: metrics.New(),
	}
}

func (a *App) newClient() *fetcher.Client {
	return fetcher.NewClient(fetcher.ClientOptions{
		BaseURL:           a.Config.API.BaseURL,
		UserAgent:         a.Config.API.UserAgent,
		Timeout:           a.Config.API.Timeout,
		RequestsPerSecond: a.Config.API.RequestsPerSecond,
		Burst:             a.Config.API.Burst,
	}, a.Logger)
}

func (a *App) newNotifier() alerting.Notifier {
	var notifiers alerting.Multi
	if a.Config.Alerting.Telegram.Enabled {
		cfg := a.Config.Alerting.Telegram
		notifiers = append(notifiers, alerting.NewTelegramNotifier(cfg.BotToken, cfg.ChatID, cfg.APIBase, 10*time.Second, a.Logger))
	}
	for _, ch := range a.Config.Alerting.Channels {
		if strings.EqualFold(strings.TrimSpace(ch), "log") {
			notifiers = append(notifiers, alerting.NewLogNotifier(a.Logger))
			break
		}
	}
	switch len(notifiers) {
	case 0:
		return nil
	case 1:
		return notifiers[0]
	default:
		return notifiers
	}
}

func (a *App) newMonitor() *alerting.Monitor {
	if !a.Config.Alerting.Enabled {
		return nil
	}
	notifier := a.newNotifier()
	if notifier == nil {
		a.Logger.Warn().Msg("alerting enabled but no channel configured")
		return nil
	}
	cfg := a.Config.Alerting
	return alerting.NewMonitor(notifier, cfg.ThresholdPct, cfg.Cooldown, cfg.Channels)
}

// openStore opens the configured medium and wraps it in the quota-aware cache.
func (a *App) openStore(ctx context.Context) (*cache.Store, func(), error) {
	medium, err := storage.Open(ctx, a.Config.Storage, a.Config.Cache.Namespace)
	if err != nil {
		return nil, nil, err
	}
	return a.newStore(medium), a.closer(medium), nil
}

// openScratchStore returns a cache that is discarded when the command ends.
func (a *App) openScratchStore() (*cache.Store, func()) {
	medium := storage.NewMemory()
	return a.newStore(medium), a.closer(medium)
}

func (a *App) newStore(medium storage.Medium) *cache.Store {
	return cache.NewStore(medium, cache.OptionsFromConfig(a.Config.Cache), a.Logger, cache.WithMetrics(a.Metrics))
}

func (a *App) closer(medium storage.Medium) func() {
	return func() {
		if err := medium.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("close storage")
		}
	}
}

func (a *App) newService(f fetcher.SampleFetcher, store *cache.Store, monitor *alerting.Monitor, report service.ReportFunc) (*service.Service, error) {
	return service.New(service.Options{
		Fetcher: f,
		Cache:   store,
		Policy:  a.Config.Series,
		Monitor: monitor,
		Report:  report,
		Metrics: a.Metrics,
	}, a.Logger)
}

// WatchOptions configure the watch command.
type WatchOptions struct {
	Key series.Key
}

// ShowOptions configure the show command.
type ShowOptions struct {
	Key   series.Key
	Limit int
}

// ExportOptions hold parameters for exporting the sample set of one key.
type ExportOptions struct {
	Key       series.Key
	PNGPath   string
	CSVPath   string
	MaxPoints int
}

// WarmOptions configure the warm job.
type WarmOptions struct {
	Symbol     string
	Pair       string
	TimeFrames []series.TimeFrame
	DryRun     bool
}

// SimulateOptions configure simulate-alert.
type SimulateOptions struct {
	Key       series.Key
	SpreadPct float64
}
