package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/dmarcwatch/dmarcwatch/internal/alerting"
	"github.com/dmarcwatch/dmarcwatch/internal/api"
	"github.com/dmarcwatch/dmarcwatch/internal/api/health"
	"github.com/dmarcwatch/dmarcwatch/internal/metrics"
	"github.com/dmarcwatch/dmarcwatch/internal/notifier"
	"github.com/dmarcwatch/dmarcwatch/internal/storage"
	"github.com/dmarcwatch/dmarcwatch/pkg/config"
)

var (
	configFile string
	httpAddr   string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "dmarcwatch-server",
	Short: "DMARCWatch Server - DMARC compliance alert engine",
	Long: `DMARCWatch Server evaluates alert rules against DMARC metric
snapshots, manages the alert lifecycle, and fans out notifications.`,
	RunE: runServer,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("dmarcwatch-server %s\n", config.Version)
		fmt.Printf("  commit: %s\n", config.Commit)
		fmt.Printf("  built:  %s\n", config.BuildTime)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file path (optional)")
	rootCmd.PersistentFlags().StringVarP(&httpAddr, "address", "a", "", "HTTP listen address")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runServer(cmd *cobra.Command, args []string) error {
	var cfg *Config

	// Load configuration from file if provided
	if configFile != "" {
		var err error
		cfg, err = LoadConfig(configFile)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
	} else {
		cfg = DefaultConfig()
	}

	// Override with CLI flags
	if httpAddr != "" {
		cfg.Server.Address = httpAddr
	}
	cfg.Verbose = verbose

	// Auto-create data directory
	dbDir := filepath.Dir(cfg.Database.Path)
	if err := os.MkdirAll(dbDir, 0750); err != nil {
		return fmt.Errorf("create data directory: %w", err)
	}

	// Initialize storage
	store := storage.NewSQLiteStorage(cfg.Database.Path)
	if err := store.Open(); err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer store.Close()

	if err := store.Migrate(); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}

	log.Printf("database initialized at %s", cfg.Database.Path)

	// Build the notification dispatcher
	dispatcher, err := buildDispatcher(cfg)
	if err != nil {
		return fmt.Errorf("configure notifiers: %w", err)
	}
	defer dispatcher.Close()

	manager := alerting.NewManager(store, dispatcher)
	evaluator := alerting.NewEvaluator(manager)

	// Setup signal handling
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		log.Printf("received signal %v, shutting down...", sig)
		cancel()
	}()

	// Seed rules and suppressions
	if cfg.Seed.Path != "" {
		if err := alerting.SeedFromFile(ctx, store, cfg.Seed.Path); err != nil {
			return fmt.Errorf("seed rules: %w", err)
		}
		if cfg.Seed.Watch {
			if err := watchSeedFile(ctx, store, cfg.Seed.Path); err != nil {
				return fmt.Errorf("watch seed file: %w", err)
			}
		}
	}

	// Build API server
	srv, err := api.New(&api.Config{
		Address:        cfg.Server.Address,
		RateLimitPerIP: cfg.Server.RateLimitPerIP,
		QueryTimeout:   cfg.queryTimeout(),
		Verbose:        cfg.Verbose,
	}, manager, evaluator)
	if err != nil {
		return fmt.Errorf("create API server: %w", err)
	}
	srv.RegisterHealthChecker(health.NewSQLiteChecker(store.DB()))
	srv.RegisterHealthChecker(health.NewDispatcherChecker(dispatcher.Channels))

	// Optional dedicated metrics port
	if cfg.Server.MetricsAddress != "" {
		metricsSrv := metrics.NewServer(cfg.Server.MetricsAddress)
		go func() {
			if err := metricsSrv.Start(); err != nil {
				log.Printf("warning: %v", err)
			}
		}()
		defer func() {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			metricsSrv.Shutdown(shutdownCtx)
		}()
	}

	metrics.SetBuildInfo(config.Version, config.Commit, config.BuildTime)

	log.Printf("starting dmarcwatch-server %s", config.Version)
	log.Printf("notification channels: %v", dispatcher.Channels())

	if err := srv.Run(ctx); err != nil {
		return fmt.Errorf("run server: %w", err)
	}

	log.Printf("server stopped")
	return nil
}

// buildDispatcher registers every channel that has configuration.
func buildDispatcher(cfg *Config) (*notifier.Dispatcher, error) {
	dispatcher := notifier.NewDispatcherWithOptions(notifier.RateLimitConfig{
		MaxPerWindow: cfg.Dispatch.RateLimitPerMin,
		Window:       time.Minute,
		Enabled:      cfg.rateLimitEnabled(),
	}, cfg.channelTimeout())

	if cfg.Notifiers.Teams.WebhookURL != "" {
		n, err := notifier.NewTeamsNotifier(notifier.TeamsConfig{
			WebhookURL: cfg.Notifiers.Teams.WebhookURL,
		})
		if err != nil {
			return nil, fmt.Errorf("teams: %w", err)
		}
		dispatcher.Register(n)
	}

	if cfg.Notifiers.Email.Host != "" {
		n, err := notifier.NewEmailNotifier(notifier.EmailConfig{
			Host:       cfg.Notifiers.Email.Host,
			Port:       cfg.Notifiers.Email.Port,
			Username:   cfg.Notifiers.Email.Username,
			Password:   cfg.Notifiers.Email.Password,
			From:       cfg.Notifiers.Email.From,
			Recipients: cfg.Notifiers.Email.Recipients,
		})
		if err != nil {
			return nil, fmt.Errorf("email: %w", err)
		}
		dispatcher.Register(n)
	}

	if cfg.Notifiers.Slack.WebhookURL != "" {
		n, err := notifier.NewSlackNotifier(notifier.SlackConfig{
			WebhookURL: cfg.Notifiers.Slack.WebhookURL,
		})
		if err != nil {
			return nil, fmt.Errorf("slack: %w", err)
		}
		dispatcher.Register(n)
	}

	if cfg.Notifiers.Webhook.URL != "" {
		n, err := notifier.NewWebhookNotifier(notifier.WebhookConfig{
			URL:     cfg.Notifiers.Webhook.URL,
			Headers: cfg.Notifiers.Webhook.Headers,
		})
		if err != nil {
			return nil, fmt.Errorf("webhook: %w", err)
		}
		dispatcher.Register(n)
	}

	return dispatcher, nil
}

// watchSeedFile re-seeds rules and suppressions when the file changes.
// Editors often replace the file, so the parent directory is watched and
// events are filtered to the seed path.
func watchSeedFile(ctx context.Context, store storage.Storage, path string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		watcher.Close()
		return err
	}
	if err := watcher.Add(filepath.Dir(absPath)); err != nil {
		watcher.Close()
		return err
	}

	go func() {
		defer watcher.Close()

		// Debounce: editors fire bursts of events per save.
		var pending *time.Timer
		reseed := func() {
			if err := alerting.SeedFromFile(ctx, store, path); err != nil {
				log.Printf("warning: re-seed rules: %v", err)
				return
			}
			log.Printf("seed file reloaded: %s", path)
		}

		for {
			select {
			case <-ctx.Done():
				if pending != nil {
					pending.Stop()
				}
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != absPath {
					continue
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
					continue
				}
				if pending != nil {
					pending.Stop()
				}
				pending = time.AfterFunc(250*time.Millisecond, reseed)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Printf("warning: seed file watcher: %v", err)
			}
		}
	}()

	return nil
}
