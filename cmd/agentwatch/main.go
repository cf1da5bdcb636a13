package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/obsidianstack/agentwatch/internal/api"
	"github.com/obsidianstack/agentwatch/internal/auth"
	"github.com/obsidianstack/agentwatch/internal/collector"
	"github.com/obsidianstack/agentwatch/internal/config"
	"github.com/obsidianstack/agentwatch/internal/export"
	"github.com/obsidianstack/agentwatch/internal/notify"
	"github.com/obsidianstack/agentwatch/internal/source"
	"github.com/obsidianstack/agentwatch/internal/telemetry"
	"github.com/obsidianstack/agentwatch/internal/ws"
	"github.com/obsidianstack/agentwatch/pkg/monitor"
	"github.com/obsidianstack/agentwatch/pkg/types"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file; empty runs with built-in defaults")
	importPath := flag.String("import", "", "restore state from an export document on startup")
	exportPath := flag.String("export", "", "write an export document here on shutdown")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	level := slog.LevelInfo
	if *debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	slog.Info("agentwatch starting", "config", *configPath)

	cfg := config.Default()
	if *configPath != "" {
		var err error
		if cfg, err = config.Load(*configPath); err != nil {
			slog.Error("failed to load config", "err", err)
			os.Exit(1)
		}
	}
	slog.Info("config loaded",
		"sources", len(cfg.Sources),
		"thresholds", len(cfg.Thresholds),
		"http_port", cfg.HTTP.Port,
		"auth_mode", cfg.HTTP.AuthMode,
	)

	monCfg, err := monitor.ConfigFrom(cfg)
	if err != nil {
		slog.Error("invalid monitor config", "err", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	metrics := telemetry.New()

	dispatcher := notify.NewDispatcher(notify.WithMetrics(metrics))
	registerChannels(dispatcher, cfg)

	mon := monitor.New(
		monitor.WithConfig(monCfg),
		monitor.WithDispatcher(dispatcher),
		monitor.WithLogger(logger),
		monitor.WithMetrics(metrics),
	)

	if *importPath != "" {
		if err := importState(mon, *importPath); err != nil {
			slog.Error("failed to import state", "path", *importPath, "err", err)
			os.Exit(1)
		}
	}

	// Sources feed the monitor; one that cannot be built is skipped.
	var sources []source.Source
	for _, src := range cfg.Sources {
		s, err := source.New(src, cfg.Monitor.MetricsInterval)
		if err != nil {
			slog.Error("skipping source, could not build it", "source", src.ID, "err", err)
			continue
		}
		sources = append(sources, s)
		slog.Info("registered source", "id", src.ID, "type", src.Type, "endpoint", src.Endpoint)
	}
	if len(sources) == 0 {
		slog.Warn("no sources configured, metrics arrive through the API only")
	}
	coll := collector.New(sources, collector.WithSink(mon), collector.WithMetrics(metrics))

	// Hot reload swaps thresholds, escalation and channels. Sources and loop
	// intervals need a restart.
	if *configPath != "" {
		go func() {
			if err := config.Watch(ctx, *configPath, func(updated *config.Config) {
				next, err := monitor.ConfigFrom(updated)
				if err != nil {
					slog.Error("config reload rejected", "err", err)
					return
				}
				registerChannels(dispatcher, updated)
				if err := mon.ApplyConfig(next); err != nil {
					slog.Error("config reload rejected", "err", err)
					return
				}
				slog.Info("config hot-reloaded", "thresholds", len(updated.Thresholds))
			}); err != nil {
				slog.Error("config watcher stopped", "err", err)
			}
		}()
	}

	// Optional Redis export of every pass.
	if cfg.Export.RedisAddr != "" {
		rdb := export.NewRedisClient(cfg.Export.RedisAddr, cfg.Export.Password())
		defer rdb.Close()
		pub := export.NewPublisher(rdb, export.PublisherConfig{
			Key:        cfg.Export.Key,
			Channel:    cfg.Export.Channel,
			TTL:        cfg.Export.TTL,
			BufferSize: cfg.Export.BufferSize,
		})
		go pub.Run(ctx)
		mon.Subscribe(func(map[string]*types.HealthSnapshot, []*types.HealthAlert) {
			if err := pub.Publish(mon.Export()); err != nil {
				slog.Error("export publish failed", "err", err)
			}
		})
		slog.Info("redis export enabled", "addr", cfg.Export.RedisAddr, "key", cfg.Export.Key)
	}

	// WebSocket hub: periodic state plus a push after every monitor pass.
	hub := ws.New(mon, cfg.HTTP.BroadcastInterval)
	go hub.Run(ctx)
	mon.Subscribe(hub.Push)

	mux := http.NewServeMux()
	mux.Handle("/api/", auth.APIKey(cfg.HTTP.AuthMode, cfg.HTTP.EffectiveHeader(), cfg.HTTP.Key(), api.New(mon)))
	mux.Handle("/ws/stream", auth.APIKey(cfg.HTTP.AuthMode, cfg.HTTP.EffectiveHeader(), cfg.HTTP.Key(), hub))
	mux.Handle("/metrics", metrics.Handler())

	httpSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		slog.Info("HTTP server listening", "port", cfg.HTTP.Port)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server stopped", "err", err)
			cancel()
		}
	}()

	mon.Start()
	if err := coll.Start(ctx); err != nil {
		slog.Error("failed to start collector", "err", err)
		os.Exit(1)
	}

	<-ctx.Done()
	slog.Info("agentwatch shutting down")

	coll.Shutdown()

	shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
	defer stop()
	httpSrv.Shutdown(shutdownCtx) //nolint:errcheck

	mon.Stop()

	if *exportPath != "" {
		if err := exportState(mon, *exportPath); err != nil {
			slog.Error("failed to export state", "path", *exportPath, "err", err)
		} else {
			slog.Info("state exported", "path", *exportPath)
		}
	}
}

// registerChannels installs the EMAIL and SLACK backends described by cfg.
// Without credentials EMAIL falls back to logging and SLACK to a no-op post.
func registerChannels(d *notify.Dispatcher, cfg *config.Config) {
	if ch, ok := cfg.Channel(types.ChannelEmail); ok {
		var mailer notify.Mailer = notify.LogMailer{}
		if mg := notify.NewMailgunMailer(ch.Domain, ch.APIKey(), ch.From); mg != nil {
			mailer = mg
		} else {
			slog.Warn("email channel has no mailgun credentials, logging instead")
		}
		d.Register(notify.NewEmail(mailer))
	}
	if ch, ok := cfg.Channel(types.ChannelSlack); ok {
		url := ch.WebhookURL()
		if url == "" {
			slog.Warn("slack channel has no webhook url", "env", ch.WebhookURLEnv)
		}
		d.Register(notify.NewSlack(url, ch.RatePerMinute))
	}
}

func importState(mon *monitor.Monitor, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	doc, err := export.Read(f)
	if err != nil {
		return err
	}
	return mon.Import(doc)
}

func exportState(mon *monitor.Monitor, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := export.Write(f, mon.Export()); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
