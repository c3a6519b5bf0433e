// Command secondbrain runs the assistant backend: the webhook and JSON
// API, plus the reminder scheduler.
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
	"path/filepath"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"secondbrain/internal/assistant"
	"secondbrain/internal/auth"
	"secondbrain/internal/chunker"
	"secondbrain/internal/config"
	"secondbrain/internal/domain"
	"secondbrain/internal/embedding"
	"secondbrain/internal/granite"
	"secondbrain/internal/index"
	"secondbrain/internal/log"
	"secondbrain/internal/prompt"
	"secondbrain/internal/retriever"
	"secondbrain/internal/scheduler"
	"secondbrain/internal/server"
	"secondbrain/internal/store"
	"secondbrain/internal/summarizer"
	"secondbrain/internal/whatsapp"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintln(os.Stderr, "secondbrain:", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger := log.New(log.Config{Level: parseLevel(cfg.Log.Level), JSON: cfg.Log.JSON})

	embedder, err := buildEmbedder(cfg)
	if err != nil {
		return err
	}
	idx, err := index.New(embedder.Dimension())
	if err != nil {
		return err
	}
	if err := idx.Load(cfg.Index.Path); err != nil {
		logger.Warn("index load failed, starting empty", "path", cfg.Index.Path, "error", err)
	} else {
		logger.Info("index loaded", "path", cfg.Index.Path, "chunks", idx.Len())
	}

	for _, dir := range []string{cfg.Index.Path, cfg.Store.Path} {
		if err := os.MkdirAll(filepath.Dir(dir), 0o755); err != nil {
			return err
		}
	}
	taskStore, err := store.Open(cfg.Store.Path)
	if err != nil {
		return err
	}
	defer taskStore.Close()

	tokens := auth.NewManager(auth.Config{
		APIKey:   cfg.Granite.APIKey(),
		TokenURL: cfg.Granite.TokenURL,
	}, logger)
	model := granite.NewClient(granite.Config{
		BaseURL:           cfg.Granite.BaseURL,
		ModelID:           cfg.Granite.ModelID,
		ProjectID:         cfg.Granite.ProjectID,
		Timeout:           time.Duration(cfg.Granite.TimeoutSecs) * time.Second,
		RequestsPerSecond: cfg.Granite.RequestsPerSecond,
	}, tokens, logger)

	retr := retriever.New(embedder, idx, logger)
	svc := assistant.New(assistant.Config{
		IndexPath:    cfg.Index.Path,
		MaxChunks:    cfg.Retrieval.MaxChunks,
		MinScore:     cfg.Retrieval.MinScore,
		MaxPromptLen: cfg.Retrieval.MaxPromptLen,
	},
		chunker.NewSentenceChunker(cfg.Chunker.TargetSize, cfg.Chunker.Overlap),
		embedder, idx, retr,
		prompt.NewAssembler(cfg.Retrieval.SystemPrompt),
		model, summarizer.NewFrequency(), taskStore, logger,
	)

	messenger := whatsapp.NewClient(whatsapp.Config{
		AccountSID: cfg.Twilio.AccountSID(),
		AuthToken:  cfg.Twilio.AuthToken(),
		From:       cfg.Twilio.From,
		BaseURL:    cfg.Twilio.BaseURL,
	}, logger)
	sched := scheduler.New(scheduler.Config{
		PollInterval:   time.Duration(cfg.Scheduler.PollIntervalSecs) * time.Second,
		DigestSchedule: cfg.Scheduler.DigestSchedule,
		DigestOwners:   cfg.Scheduler.DigestOwners,
	}, taskStore, messenger, logger)

	httpServer := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: server.New(svc, taskStore, retr, idx, logger).Handler(),
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		logger.Info("listening", "addr", cfg.Server.Addr)
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		if err := sched.Run(ctx); !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout())
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	err = group.Wait()
	if saveErr := idx.Save(cfg.Index.Path); saveErr != nil {
		logger.Error("final index save failed", "error", saveErr)
	}
	return err
}

func buildEmbedder(cfg *config.AppConfig) (domain.Embedder, error) {
	switch cfg.Embedder.Type {
	case "", "hash":
		return embedding.NewHashEmbedder(cfg.Embedder.Dimension), nil
	case "remote":
		return embedding.NewRemoteClient(embedding.RemoteConfig{
			BaseURL:   cfg.Embedder.BaseURL,
			APIKey:    os.Getenv(cfg.Embedder.APIKeyEnv),
			Model:     cfg.Embedder.Model,
			Dimension: cfg.Embedder.Dimension,
			Timeout:   time.Duration(cfg.Embedder.TimeoutSecs) * time.Second,
		})
	default:
		return nil, fmt.Errorf("unknown embedder type %q", cfg.Embedder.Type)
	}
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
