// Command wakeguardd runs the wake lock engine as a standalone daemon
// over the simulated platform, exposing the control API, the SSE event
// stream and Prometheus metrics.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/wakeguard/wakeguard/pkg/config"
	"github.com/wakeguard/wakeguard/pkg/monitor"
	"github.com/wakeguard/wakeguard/pkg/notify"
	"github.com/wakeguard/wakeguard/pkg/observability/logger"
	"github.com/wakeguard/wakeguard/pkg/permission"
	"github.com/wakeguard/wakeguard/pkg/platform"
	"github.com/wakeguard/wakeguard/pkg/platform/simulated"
	"github.com/wakeguard/wakeguard/pkg/server"
	"github.com/wakeguard/wakeguard/pkg/strategy"
	"github.com/wakeguard/wakeguard/pkg/version"
	"github.com/wakeguard/wakeguard/pkg/wakelock"
)

const (
	serviceName = "wakeguardd"
	envPrefix   = "WAKEGUARD"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var cfgPath string

	rootCmd := &cobra.Command{
		Use:   serviceName,
		Short: "Wake lock orchestration daemon",
	}
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config-file", "c", "", "config file path")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.NewViperLoader(cfgPath, envPrefix).
				WithFlags(cmd.Flags()).
				Load()
			if err != nil {
				return err
			}
			return runServer(cmd.Context(), cfg)
		},
	}
	serveCmd.Flags().Int("port", 0, "HTTP port override")
	serveCmd.Flags().String("log-level", "", "log level override (debug|info|warn|error)")
	serveCmd.Flags().String("log-format", "", "log format override (json|text)")
	rootCmd.AddCommand(serveCmd)
	rootCmd.RunE = serveCmd.RunE

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			info := version.Current(serviceName)
			fmt.Printf("Service:    %s\n", info.Service)
			fmt.Printf("Version:    %s\n", info.Version)
			fmt.Printf("Commit:     %s\n", info.Commit)
			fmt.Printf("Build Time: %s\n", info.BuildTime)
		},
	})

	return rootCmd
}

func runServer(ctx context.Context, cfg *config.Config) error {
	level, err := logger.ParseLogLevel(cfg.Log.Level)
	if err != nil {
		return err
	}
	format, err := logger.ParseLogFormat(cfg.Log.Format)
	if err != nil {
		return err
	}
	log, err := logger.NewZapLogger(logger.Config{Level: level, Format: format})
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	runCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	// The daemon has no host display to keep awake, so it runs against the
	// simulated platform. Embedders wire real capabilities instead.
	world := simulated.New(simulated.Config{
		BackgroundTicker: true,
		Permissions: map[string]platform.PermissionState{
			"screen-wake-lock": platform.PermissionGranted,
			"system-wake-lock": platform.PermissionGranted,
		},
		Battery: platform.BatteryState{Level: 1, Charging: true},
	})
	provider := world.Provider()

	hub := notify.NewHub()
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	store, err := buildPermissionStore(cfg.PermissionCache)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	perms := permission.NewManager(provider, store, log).WithCacheTTL(cfg.PermissionCache.TTL)
	defer func() { _ = perms.Close() }()

	var sampler monitor.Sampler
	if hostSampler, err := monitor.NewHostSampler(); err != nil {
		log.Warn("host sampler unavailable, CPU/memory sampling disabled", "error", err)
	} else {
		sampler = hostSampler
	}
	mon := monitor.New(monitor.Config{
		SampleInterval:   cfg.Monitor.SampleInterval,
		BatteryThreshold: cfg.Monitor.BatteryThreshold,
		CPUThreshold:     cfg.Monitor.CPUThreshold,
	}, provider, sampler, hub, log, reg)

	strategies := []strategy.Strategy{
		strategy.NewNative(provider, log),
		strategy.NewMedia(provider, log),
		strategy.NewAudio(provider, log),
		strategy.NewTimer(provider, log),
	}

	orch, err := wakelock.New(wakelock.Config{
		DefaultKind:           strategy.Kind(cfg.Lock.DefaultKind),
		DefaultPassive:        cfg.Lock.Passive,
		RequestTimeout:        cfg.Lock.RequestTimeout,
		RetryAttempts:         cfg.Lock.RetryAttempts,
		BatteryOptimization:   cfg.Lock.BatteryOptimization,
		PerformanceMonitoring: cfg.Lock.PerformanceMonitoring,
		Debug:                 cfg.Lock.Debug,
	}, provider, strategies, perms, mon, hub, log, reg)
	if err != nil {
		return err
	}

	srv, err := server.New(server.Config{
		Port:              cfg.HTTP.Port,
		ReadTimeout:       cfg.HTTP.ReadTimeout,
		WriteTimeout:      cfg.HTTP.WriteTimeout,
		IdleTimeout:       cfg.HTTP.IdleTimeout,
		HeartbeatInterval: cfg.HTTP.HeartbeatInterval,
	}, orch, hub, log, reg)
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	log.Info("wakeguardd started",
		"service", cfg.Service.Name,
		"environment", cfg.Service.Environment,
		"port", cfg.HTTP.Port,
		"strategies", orch.SupportedStrategies())

	select {
	case err := <-errCh:
		orch.Destroy(context.Background())
		return err
	case <-runCtx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	orch.Destroy(shutdownCtx)
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}

func buildPermissionStore(cfg config.PermissionCacheConfig) (permission.Store, error) {
	switch cfg.Store {
	case "redis":
		return permission.NewRedisStore(permission.RedisStoreConfig{
			URL:              cfg.Redis.URL,
			Prefix:           cfg.Redis.Prefix,
			MaxConns:         cfg.Redis.MaxConns,
			OperationTimeout: cfg.Redis.OperationTimeout,
		})
	default:
		return permission.NewMemoryStore(), nil
	}
}
