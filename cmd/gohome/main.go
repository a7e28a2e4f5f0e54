package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-logr/logr"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/joshp123/gohome-fireboard/internal/config"
	"github.com/joshp123/gohome-fireboard/internal/core"
	"github.com/joshp123/gohome-fireboard/internal/logging"
	"github.com/joshp123/gohome-fireboard/internal/plugins"
	"github.com/joshp123/gohome-fireboard/internal/router"
	"github.com/joshp123/gohome-fireboard/internal/server"
	"github.com/joshp123/gohome-fireboard/plugins/fireboard"
)

func main() {
	configPath := flag.String("config", envOrDefault("GOHOME_CONFIG", config.DefaultPath), "path to config.yaml")
	check := flag.Bool("check", false, "verify FireBoard credentials and exit")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	logger := logging.Stderr(cfg.Log.Level)

	httpClient := &http.Client{Transport: http.DefaultTransport.(*http.Transport).Clone()}
	compiled := plugins.Compiled(cfg, plugins.Env{Logger: logger, HTTPClient: httpClient})
	enabled := config.EnabledPlugins(cfg)
	if err := core.ValidateEnabledPlugins(compiled, enabled, false); err != nil {
		fatal(logger, "plugins", err)
	}
	active := core.FilterPlugins(compiled, enabled, false)
	if err := core.ValidatePlugins(active); err != nil {
		fatal(logger, "plugins", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *check {
		if err := checkCredentials(ctx, active); err != nil {
			fatal(logger, "check credentials", err)
		}
		logger.Info("fireboard credentials ok")
		return
	}

	if err := run(ctx, cfg, active, logger); err != nil {
		fatal(logger, "gohome", err)
	}
}

func run(ctx context.Context, cfg *config.Config, active []core.Plugin, logger logr.Logger) error {
	for _, plugin := range active {
		if plugin.Health() == core.HealthError {
			logger.Info("plugin unhealthy at startup", "plugin", plugin.ID(), "message", plugin.HealthMessage())
		}
	}

	if err := core.WriteDashboards(cfg.Core.DashboardDir, active); err != nil {
		logger.Error(err, "write dashboards", "dir", cfg.Core.DashboardDir)
	}

	grpcServer, err := server.NewGRPCServer(cfg.Core.GRPCAddr, logger)
	if err != nil {
		return fmt.Errorf("grpc listen: %w", err)
	}
	router.RegisterPlugins(grpcServer.Server, active)

	metricsRegistry := core.MetricsRegistry(active)
	metricsRegistry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "gohome_build_info",
		Help: "Build information",
	}, func() float64 { return 1 }))

	httpMux := http.NewServeMux()
	httpMux.HandleFunc("/health", server.HealthHandler(active))
	httpMux.Handle("/metrics", server.MetricsHandler(metricsRegistry))
	httpMux.Handle("/dashboards/", server.DashboardsHandler(core.DashboardsMap(active)))
	for _, plugin := range active {
		if registrant, ok := plugin.(core.HTTPRegistrant); ok {
			registrant.RegisterHTTP(httpMux)
		}
	}
	httpServer := server.NewHTTPServer(cfg.Core.HTTPAddr, httpMux)

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		logger.Info("http listening", "addr", cfg.Core.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http serve: %w", err)
		}
		return nil
	})
	group.Go(func() error {
		logger.Info("grpc listening", "addr", cfg.Core.GRPCAddr)
		if err := grpcServer.Serve(); err != nil {
			return fmt.Errorf("grpc serve: %w", err)
		}
		return nil
	})
	group.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		grpcServer.Server.GracefulStop()
		return httpServer.Shutdown(shutdownCtx)
	})

	for _, plugin := range active {
		if runner, ok := plugin.(core.Runner); ok {
			group.Go(func() error {
				return runner.Run(ctx)
			})
		}
	}

	if cfg.MQTT != nil {
		if err := startBridge(ctx, group, cfg.MQTT, active, logger); err != nil {
			return err
		}
	}

	return group.Wait()
}

func startBridge(ctx context.Context, group *errgroup.Group, cfg *config.MQTTConfig, active []core.Plugin, logger logr.Logger) error {
	for _, plugin := range active {
		fb, ok := plugin.(fireboard.Plugin)
		if !ok || fb.Instances() == nil {
			continue
		}
		password, err := config.ReadSecret("", cfg.PasswordFile)
		if err != nil {
			return fmt.Errorf("mqtt password: %w", err)
		}
		client, err := fireboard.NewMQTTClient(fireboard.MQTTConfig{
			Broker:   cfg.Broker,
			Username: cfg.Username,
			Password: password,
		})
		if err != nil {
			return fmt.Errorf("mqtt connect: %w", err)
		}
		bridge := fireboard.NewBridge(client, cfg.TopicPrefix, fb.Instances(), logger)
		group.Go(func() error {
			defer client.Close()
			return bridge.Run(ctx)
		})
		logger.Info("mqtt bridge started", "broker", cfg.Broker, "prefix", cfg.TopicPrefix)
	}
	return nil
}

func checkCredentials(ctx context.Context, active []core.Plugin) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	for _, plugin := range active {
		fb, ok := plugin.(fireboard.Plugin)
		if !ok {
			continue
		}
		if fb.Instances() == nil {
			return errors.New(fb.HealthMessage())
		}
		for _, coordinator := range fb.Instances().All() {
			if err := coordinator.Client().Authenticate(ctx); err != nil {
				return fmt.Errorf("%s: %w", coordinator.EntryID(), err)
			}
		}
	}
	return nil
}

func envOrDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func fatal(logger logr.Logger, action string, err error) {
	logger.Error(err, action)
	os.Exit(1)
}
