// Command peacemusic is the main entry point for the PeaceMusic Discord bot.
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

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Akinara666/PeaceMusic/internal/chat"
	"github.com/Akinara666/PeaceMusic/internal/config"
	discordbot "github.com/Akinara666/PeaceMusic/internal/discord"
	"github.com/Akinara666/PeaceMusic/internal/health"
	"github.com/Akinara666/PeaceMusic/internal/history"
	"github.com/Akinara666/PeaceMusic/internal/observe"
	"github.com/Akinara666/PeaceMusic/internal/player"
	"github.com/Akinara666/PeaceMusic/internal/tools"
	"github.com/Akinara666/PeaceMusic/pkg/media/ytdlp"
	"github.com/Akinara666/PeaceMusic/pkg/provider/model/gemini"
)

const shutdownTimeout = 15 * time.Second

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "peacemusic: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "peacemusic: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	logLevel := new(slog.LevelVar)
	logLevel.Set(slogLevel(cfg.Server.LogLevel))
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))

	slog.Info("peacemusic starting",
		"config", *configPath,
		"log_level", cfg.Server.LogLevel,
		"storage", cfg.Storage.Backend,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceName: "peacemusic"})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	metrics := observe.DefaultMetrics()

	// ── History store ─────────────────────────────────────────────────────────
	backend, backendCheck, err := newHistoryBackend(ctx, cfg.Storage)
	if err != nil {
		slog.Error("failed to open history backend", "err", err)
		return 1
	}
	store := history.NewStore(cfg.Chat.HistoryLimit, backend)
	store.Load(ctx)

	// ── Model provider ────────────────────────────────────────────────────────
	var geminiOpts []gemini.Option
	if cfg.Gemini.Model != "" {
		geminiOpts = append(geminiOpts, gemini.WithModel(cfg.Gemini.Model))
	}
	provider, err := gemini.New(ctx, cfg.Gemini.APIKey, geminiOpts...)
	if err != nil {
		slog.Error("failed to create model provider", "err", err)
		return 1
	}

	// ── Media resolver ────────────────────────────────────────────────────────
	var ytdlpOpts []ytdlp.Option
	if cfg.Player.CookiesFile != "" {
		ytdlpOpts = append(ytdlpOpts, ytdlp.WithCookiesFile(cfg.Player.CookiesFile))
	}
	resolver, err := ytdlp.New(cfg.Player.MusicDir, ytdlpOpts...)
	if err != nil {
		slog.Error("failed to create media resolver", "err", err)
		return 1
	}

	// ── Discord bot ───────────────────────────────────────────────────────────
	bot, err := discordbot.New(ctx, cfg.Discord)
	if err != nil {
		slog.Error("failed to create Discord bot", "err", err)
		return 1
	}

	// ── Player ────────────────────────────────────────────────────────────────
	registry := player.NewRegistry(player.SessionConfig{
		Resolver:  resolver,
		Connector: discordbot.NewGatewayConnector(bot.Session()),
		Notifier:  bot,
		Metrics:   metrics,
	})
	registry.Start(ctx)

	// ── Chat pipeline ─────────────────────────────────────────────────────────
	dispatcher := tools.NewDispatcher(registry, bot, metrics)
	engine := chat.NewEngine(chat.EngineConfig{
		Provider:          provider,
		SystemInstruction: cfg.Chat.SystemPrompt,
		Styles:            cfg.Chat.Styles,
		Tools:             tools.Declarations(),
		Temperature:       cfg.Chat.Temperature,
		MaxTemperature:    cfg.Chat.MaxTemperature,
		RampStart:         cfg.Chat.RampStart,
		RampWindow:        cfg.Chat.RampWindow,
		Metrics:           metrics,
	})
	bot.AttachChat(store, engine, dispatcher, discordbot.NewAttachmentResolver(provider))

	// ── Config hot reload ─────────────────────────────────────────────────────
	watcher, err := config.NewWatcher(*configPath, func(old, new *config.Config) {
		applyConfigChange(old, new, logLevel, engine)
	})
	if err != nil {
		slog.Error("failed to start config watcher", "err", err)
		return 1
	}
	defer watcher.Stop()

	// ── Ops endpoints ─────────────────────────────────────────────────────────
	var opsServer *http.Server
	if cfg.Server.OpsListenAddr != "" {
		opsServer = newOpsServer(cfg.Server.OpsListenAddr, metrics, backendCheck)
		go func() {
			if err := opsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("ops server error", "err", err)
			}
		}()
		slog.Info("ops endpoints listening", "addr", cfg.Server.OpsListenAddr)
	}

	slog.Info("bot ready — press Ctrl+C to shut down")
	if err := bot.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	slog.Info("shutdown signal received, stopping…")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	registry.Shutdown()
	if err := store.Persist(shutdownCtx); err != nil {
		slog.Warn("final history persist failed", "err", err)
	}
	if err := bot.Close(); err != nil {
		slog.Warn("discord bot close error", "err", err)
	}
	if opsServer != nil {
		if err := opsServer.Shutdown(shutdownCtx); err != nil {
			slog.Warn("ops server shutdown error", "err", err)
		}
	}
	if err := otelShutdown(shutdownCtx); err != nil {
		slog.Warn("telemetry shutdown error", "err", err)
	}

	slog.Info("goodbye")
	return 0
}

// newHistoryBackend opens the configured persistence backend and returns it
// together with a readiness check for the ops endpoints.
func newHistoryBackend(ctx context.Context, cfg config.StorageConfig) (history.Backend, health.Checker, error) {
	switch cfg.Backend {
	case config.StoragePostgres:
		pool, err := pgxpool.New(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, health.Checker{}, fmt.Errorf("connect postgres: %w", err)
		}
		backend := history.NewPostgresBackend(pool)
		if err := backend.Migrate(ctx); err != nil {
			return nil, health.Checker{}, fmt.Errorf("migrate postgres: %w", err)
		}
		check := health.Checker{Name: "storage", Check: pool.Ping}
		return backend, check, nil
	default:
		backend, err := history.NewFileBackend(cfg.FilePath)
		if err != nil {
			return nil, health.Checker{}, err
		}
		check := health.Checker{Name: "storage", Check: func(context.Context) error { return nil }}
		return backend, check, nil
	}
}

// newOpsServer assembles the /healthz, /readyz, and /metrics endpoints.
func newOpsServer(addr string, metrics *observe.Metrics, checkers ...health.Checker) *http.Server {
	mux := http.NewServeMux()
	health.New(checkers...).Register(mux)
	return &http.Server{
		Addr:    addr,
		Handler: observe.Middleware(metrics)(mux),
	}
}

// applyConfigChange applies the hot-reloadable parts of a config edit.
func applyConfigChange(old, new *config.Config, logLevel *slog.LevelVar, engine *chat.Engine) {
	diff := config.Compare(old, new)
	if diff.LogLevelChanged {
		logLevel.Set(slogLevel(diff.NewLogLevel))
		slog.Info("log level changed", "level", diff.NewLogLevel)
	}
	if diff.ChatChanged {
		engine.UpdateTuning(chat.Tuning{
			SystemInstruction: new.Chat.SystemPrompt,
			Styles:            new.Chat.Styles,
			Temperature:       new.Chat.Temperature,
			MaxTemperature:    new.Chat.MaxTemperature,
			RampStart:         new.Chat.RampStart,
			RampWindow:        new.Chat.RampWindow,
		})
		slog.Info("chat tuning reloaded")
	}
	if diff.RestartRequired {
		slog.Warn("config change needs a restart to take effect")
	}
}

func slogLevel(level config.LogLevel) slog.Level {
	switch level {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
