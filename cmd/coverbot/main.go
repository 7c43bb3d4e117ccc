package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/p-shah256/coverbot/internal/api"
	"github.com/p-shah256/coverbot/internal/bot"
	"github.com/p-shah256/coverbot/internal/chat"
	"github.com/p-shah256/coverbot/internal/config"
	"github.com/p-shah256/coverbot/internal/extraction"
	"github.com/p-shah256/coverbot/internal/llm"
	"github.com/p-shah256/coverbot/internal/metrics"
	"github.com/p-shah256/coverbot/internal/session"
	"github.com/p-shah256/coverbot/internal/telegram"
	"github.com/p-shah256/coverbot/pkg/logger"
)

func main() {
	configPath := flag.String("config", config.DefaultPath, "path to the YAML config file")
	flag.Parse()

	logger.Setup("info", "color")

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}
	logger.Setup(cfg.Log.Level, cfg.Log.Format)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		slog.Error("Shutting down with error", "error", err)
		os.Exit(1)
	}
	slog.Info("Shut down cleanly")
}

func run(ctx context.Context, cfg *config.Config) error {
	slog.Info("Starting cover letter bot...",
		"transport", cfg.Transport,
		"llm_provider", cfg.LLM.Provider,
		"accept_docx", cfg.Documents.AcceptDocx,
	)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	provider, closeProvider, err := newProvider(ctx, cfg.LLM)
	if err != nil {
		return err
	}
	defer closeProvider()

	writer := llm.NewWriter(
		llm.NewLimited(provider, cfg.LLM.RequestsPerMinute),
		llm.WithTimeout(cfg.LLM.Timeout),
		llm.WithMetrics(m),
	)
	controller := session.NewController(
		extraction.New(cfg.Documents.AcceptDocx),
		writer,
		session.WithDocx(cfg.Documents.AcceptDocx),
		session.WithChoiceAttempts(cfg.Session.ChoiceAttempts),
		session.WithMetrics(m),
	)
	registry := session.NewRegistry(controller, m)

	transport, limit, err := newTransport(cfg)
	if err != nil {
		return err
	}
	hub := chat.NewHub(transport, registry,
		chat.WithAskTimeout(cfg.Session.AskTimeout),
		chat.WithMessageLimit(limit),
	)
	server := api.NewServer(cfg.API.Port, registry, reg)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := transport.Run(ctx, hub)
		hub.Wait()
		return err
	})
	g.Go(func() error {
		return server.Start(ctx)
	})
	g.Go(func() error {
		ticker := time.NewTicker(cfg.Session.PruneInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				if n := registry.Prune(cfg.Session.IdleTimeout); n > 0 {
					slog.Info("Pruned idle sessions", "count", n)
				}
			}
		}
	})
	return g.Wait()
}

func newProvider(ctx context.Context, cfg config.LLMConfig) (llm.Provider, func(), error) {
	switch cfg.Provider {
	case config.ProviderOpenAI:
		return llm.NewOpenAI(cfg.OpenAIKey, cfg.OpenAIBaseURL, cfg.Model, cfg.Temperature), func() {}, nil
	default:
		g, err := llm.NewGemini(ctx, cfg.GeminiKey, cfg.Model, cfg.Temperature)
		if err != nil {
			return nil, nil, err
		}
		return g, func() {
			if err := g.Close(); err != nil {
				slog.Warn("failed to close Gemini client", "error", err)
			}
		}, nil
	}
}

func newTransport(cfg *config.Config) (chat.Runner, int, error) {
	switch cfg.Transport {
	case config.TransportTelegram:
		b, err := telegram.NewBot(cfg.Telegram.Token, cfg.Documents.DownloadDir, cfg.Documents.MaxUploadBytes)
		if err != nil {
			return nil, 0, err
		}
		return b, telegram.MessageLimit, nil
	case config.TransportDiscord:
		b, err := bot.New(cfg.Discord.Token, cfg.Documents.DownloadDir, cfg.Documents.MaxUploadBytes)
		if err != nil {
			return nil, 0, err
		}
		return b, bot.MessageLimit, nil
	default:
		return nil, 0, fmt.Errorf("unknown transport %q", cfg.Transport)
	}
}
