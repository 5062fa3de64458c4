package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/spendmon/spendmon/internal/config"
	"github.com/spendmon/spendmon/internal/core"
	"github.com/spendmon/spendmon/internal/daemon"
	"github.com/spendmon/spendmon/internal/history"
	"github.com/spendmon/spendmon/internal/logmine"
	"github.com/spendmon/spendmon/internal/notify"
	"github.com/spendmon/spendmon/internal/providers"
)

const historyRetention = 90 * 24 * time.Hour

type daemonOptions struct {
	SocketPath      string
	HistoryDBPath   string
	IntervalSeconds int
	Verbose         bool
}

func newDaemonCommand() *cobra.Command {
	var opts daemonOptions

	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Run the spending aggregation daemon",
		Long:  "Poll every configured provider on an interval, serve the aggregate snapshot over a unix socket, and record spending history.",
		RunE: func(_ *cobra.Command, _ []string) error {
			return runDaemon(opts)
		},
	}

	cmd.Flags().StringVar(&opts.SocketPath, "socket", defaultSocketPath(), "unix socket for the snapshot API")
	cmd.Flags().StringVar(&opts.HistoryDBPath, "history-db", defaultHistoryDBPath(), "sqlite file for spending history")
	cmd.Flags().IntVar(&opts.IntervalSeconds, "interval", 0, "refresh interval in seconds (0 uses settings)")
	cmd.Flags().BoolVar(&opts.Verbose, "verbose", false, "enable daemon logs")
	return cmd
}

func runDaemon(opts daemonOptions) error {
	if opts.Verbose {
		log.SetOutput(os.Stderr)
	}

	settings, err := config.Load()
	if err != nil {
		log.Printf("[daemon] settings unreadable, using defaults: %v", err)
		settings = config.DefaultSettings()
	}

	interval := time.Duration(settings.RefreshIntervalSeconds) * time.Second
	if opts.IntervalSeconds > 0 {
		interval = time.Duration(opts.IntervalSeconds) * time.Second
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	engine := buildEngine(interval)

	sinks := notify.Sinks{notify.LogSink{}}
	if settings.DesktopNotifications {
		sinks = append(sinks, notify.NewDesktopSink())
	}
	engine.SetNotifier(sinks)

	if store, err := history.Open(opts.HistoryDBPath); err != nil {
		log.Printf("[daemon] history store unavailable: %v", err)
	} else {
		defer store.Close()
		engine.OnUpdate(func(snap core.AggregateSnapshot) {
			recordCtx, recordCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer recordCancel()
			if err := store.RecordSnapshot(recordCtx, snap); err != nil {
				log.Printf("[daemon] recording history: %v", err)
			}
		})
		go runHistoryPruneLoop(ctx, store)
	}

	srv := daemon.NewServer(daemon.Config{
		SocketPath:      opts.SocketPath,
		RefreshInterval: interval,
		Verbose:         opts.Verbose,
	}, engine)
	if err := srv.Start(ctx); err != nil {
		return err
	}

	logDir := settings.LogDir
	if logDir == "" {
		logDir = config.DefaultLogDir()
	}
	if _, statErr := os.Stat(logDir); statErr == nil {
		watcher := logmine.NewWatcher(logDir, func() {
			engine.RefreshNow("logs-changed")
		})
		go func() {
			if err := watcher.Run(ctx); err != nil && ctx.Err() == nil {
				log.Printf("[daemon] log watcher stopped: %v", err)
			}
		}()
	}

	log.Printf("[daemon] serving on %s (interval %s)", opts.SocketPath, interval)
	engine.Run(ctx)
	return nil
}

// buildEngine wires provider adapters and a config source that re-reads
// settings and credentials each cycle, so `spendmon connect` and limit edits
// apply without a restart.
func buildEngine(interval time.Duration) *core.Engine {
	engine := core.NewEngine(interval)

	settings, _ := config.Load()
	messages, tokens := config.TierQuota(settings.AccountTier)
	for _, p := range providers.AllProviders(logmine.WindowQuota{Messages: messages, Tokens: tokens}) {
		engine.RegisterProvider(p)
	}

	engine.SetConfigSource(func() []core.ProviderConfig {
		current, err := config.Load()
		if err != nil {
			current = config.DefaultSettings()
		}
		engine.SetPolicy(core.ThresholdPolicy{
			WarningLimit: current.WarningLimit,
			UpperLimit:   current.UpperLimit,
			CurrencyCode: current.CurrencyCode,
			Rates:        current.ExchangeRates,
		})
		return resolveProviderConfigs(current)
	})

	return engine
}

// resolveProviderConfigs stamps stored credentials and the shared log dir
// onto the configured provider set.
func resolveProviderConfigs(settings config.Settings) []core.ProviderConfig {
	creds, err := config.LoadCredentials()
	if err != nil {
		log.Printf("[daemon] credentials unreadable: %v", err)
	}

	configs := make([]core.ProviderConfig, 0, len(settings.Providers))
	for _, cfg := range settings.Providers {
		if cfg.Token == "" {
			cfg.Token = creds.Token(cfg.ID)
		}
		if cfg.LogDir == "" {
			cfg.LogDir = settings.LogDir
		}
		configs = append(configs, cfg)
	}
	return configs
}

func runHistoryPruneLoop(ctx context.Context, store *history.Store) {
	prune := func() {
		pruneCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		if err := store.Prune(pruneCtx, historyRetention); err != nil {
			log.Printf("[daemon] pruning history: %v", err)
		}
	}

	prune()
	ticker := time.NewTicker(12 * time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			prune()
		}
	}
}

func defaultSocketPath() string {
	return daemon.DefaultSocketPath()
}

func defaultHistoryDBPath() string {
	return filepath.Join(config.ConfigDir(), "history.db")
}
