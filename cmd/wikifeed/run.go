package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cuemby/wikifeed/pkg/api"
	"github.com/cuemby/wikifeed/pkg/deliver"
	"github.com/cuemby/wikifeed/pkg/dispatch"
	"github.com/cuemby/wikifeed/pkg/errors"
	"github.com/cuemby/wikifeed/pkg/events"
	"github.com/cuemby/wikifeed/pkg/health"
	"github.com/cuemby/wikifeed/pkg/ingest"
	"github.com/cuemby/wikifeed/pkg/log"
	"github.com/cuemby/wikifeed/pkg/metrics"
	"github.com/cuemby/wikifeed/pkg/registry"
	"github.com/cuemby/wikifeed/pkg/storage"
	"github.com/cuemby/wikifeed/pkg/stream"
	"github.com/cuemby/wikifeed/pkg/watch"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Follow the event stream and deliver notifications",
	Long: `Connect to the recent-change stream and deliver every matching change
to its subscribers until interrupted.

Subscriptions come from the database in --data-dir or from a YAML file
given with --subscriptions, which is reloaded whenever it changes. With a
file, the admin API serves subscriptions read-only and PUT or DELETE on
/subscriptions/{id} answers 409 Conflict.`,
	RunE: runEngine,
}

func init() {
	runCmd.Flags().String("stream-url", "", "Event stream URL")
	runCmd.Flags().String("api-addr", "", "Admin API listen address (empty string disables)")
	runCmd.Flags().String("subscriptions", "", "YAML subscriptions file")
	runCmd.Flags().String("webhook-url", "", "POST every delivery to this URL")
	runCmd.Flags().Float64("rate-limit", 0, "Maximum events dispatched per second (0 = unlimited)")
}

// applyRunFlags lets explicit flags override the loaded configuration
func applyRunFlags(cmd *cobra.Command) {
	flags := cmd.Flags()
	if flags.Changed("stream-url") {
		cfg.Stream.URL, _ = flags.GetString("stream-url")
	}
	if flags.Changed("api-addr") {
		cfg.API.Addr, _ = flags.GetString("api-addr")
	}
	if flags.Changed("subscriptions") {
		cfg.Subscriptions.File, _ = flags.GetString("subscriptions")
	}
	if flags.Changed("webhook-url") {
		cfg.Webhook.URL, _ = flags.GetString("webhook-url")
	}
	if flags.Changed("rate-limit") {
		cfg.Ingest.RateLimit, _ = flags.GetFloat64("rate-limit")
	}
}

func runEngine(cmd *cobra.Command, args []string) error {
	applyRunFlags(cmd)
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := log.WithComponent("main")
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metrics.SetVersion(Version)

	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()

	collector := metrics.NewCollector(broker)
	collector.Start()
	defer collector.Stop()

	reg := registry.New()
	reg.OnChange(func(count int) {
		metrics.SubscriptionsTotal.Set(float64(count))
	})

	// Subscription source: database or file
	var store storage.Store
	var watcher *watch.Watcher
	switch {
	case cfg.Store.DataDir != "":
		if err := os.MkdirAll(cfg.Store.DataDir, 0o755); err != nil {
			return fmt.Errorf("failed to create data directory: %w", err)
		}
		bs, err := storage.NewBoltStore(cfg.Store.DataDir)
		if err != nil {
			return err
		}
		defer bs.Close()
		store = bs

		n, err := storage.Load(store, reg)
		if err != nil {
			return err
		}
		metrics.RegisterComponent(metrics.ComponentStorage, true, "ok")
		metrics.SetCriticalComponents(metrics.ComponentStream, metrics.ComponentStorage)
		logger.Info().Int("subscriptions", n).Str("data_dir", cfg.Store.DataDir).Msg("Loaded subscriptions from database")

	case cfg.Subscriptions.File != "":
		watcher = watch.NewWatcher(cfg.Subscriptions.File, reg)
		n, err := watcher.Load()
		if err != nil {
			return err
		}
		logger.Info().Int("subscriptions", n).Str("file", cfg.Subscriptions.File).Msg("Loaded subscriptions from file")

	default:
		logger.Warn().Msg("No subscription source configured; subscriptions can be added through the API")
	}

	deliverers := deliver.Multi{deliver.NewLogDeliverer()}
	if cfg.Webhook.URL != "" {
		deliverers = append(deliverers, deliver.NewWebhookDeliverer(cfg.Webhook.URL).WithTimeout(cfg.Webhook.Timeout))
	}

	var monitor *health.Monitor
	if cfg.Webhook.URL != "" && cfg.Webhook.ProbeInterval > 0 {
		var checker health.Checker
		if cfg.Webhook.HealthURL != "" {
			checker = health.NewHTTPChecker(cfg.Webhook.HealthURL)
		} else {
			tcp, err := health.TCPCheckerForURL(cfg.Webhook.URL)
			if err != nil {
				return err
			}
			checker = tcp
		}
		monitor = health.NewMonitor(metrics.ComponentWebhook, checker, health.Config{
			Interval: cfg.Webhook.ProbeInterval,
			Timeout:  cfg.Webhook.Timeout,
		})
	}

	dispatcher := dispatch.New(reg, deliverers,
		dispatch.WithDeliveryTimeout(cfg.Dispatch.DeliveryTimeout),
		dispatch.WithMaxConcurrency(cfg.Dispatch.MaxConcurrency),
	)

	engine := ingest.New(ingest.Config{
		Stream: stream.Config{
			URL:            cfg.Stream.URL,
			ReconnectDelay: cfg.Stream.ReconnectDelay,
			ConnectTimeout: cfg.Stream.ConnectTimeout,
			IdleTimeout:    cfg.Stream.IdleTimeout,
			UserAgent:      cfg.Stream.UserAgent,
		},
		RateLimit: cfg.Ingest.RateLimit,
		Burst:     cfg.Ingest.Burst,
	}, dispatcher, broker)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return engine.Run(gctx)
	})

	if watcher != nil && cfg.Subscriptions.Watch {
		g.Go(func() error {
			return watcher.Run(gctx)
		})
	}

	if monitor != nil {
		g.Go(func() error {
			return monitor.Run(gctx)
		})
	}

	if cfg.API.Addr != "" {
		server := api.NewServer(api.Options{
			Registry: reg,
			Store:    store,
			Stats:    engine,
			Broker:   broker,
			Version:  Version,

			SubscriptionsFile: cfg.Subscriptions.File,
		})
		g.Go(func() error {
			if err := server.Start(cfg.API.Addr); err != nil {
				return fmt.Errorf("API server error: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return server.Shutdown(shutdownCtx)
		})
	}

	logger.Info().
		Str("version", Version).
		Str("stream", cfg.Stream.URL).
		Int("subscriptions", reg.Len()).
		Msg("wikifeed running, press Ctrl+C to stop")

	err := g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	stats := engine.Stats()
	logger.Info().
		Uint64("records", stats.Records).
		Uint64("malformed", stats.Malformed).
		Uint64("delivered", stats.Delivered).
		Uint64("failed", stats.Failed).
		Msg("Shutdown complete")
	return nil
}
