// Command secondbrain-console runs the assistant in a terminal chat, with
// the same pipeline and stores as the backend but no HTTP surface.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"secondbrain/internal/assistant"
	"secondbrain/internal/auth"
	"secondbrain/internal/chunker"
	"secondbrain/internal/config"
	"secondbrain/internal/embedding"
	"secondbrain/internal/granite"
	"secondbrain/internal/index"
	"secondbrain/internal/log"
	"secondbrain/internal/prompt"
	"secondbrain/internal/retriever"
	"secondbrain/internal/store"
	"secondbrain/internal/summarizer"
	"secondbrain/internal/tui"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	owner := flag.String("owner", "console", "user the session belongs to")
	flag.Parse()

	if err := run(*configPath, *owner); err != nil {
		fmt.Fprintln(os.Stderr, "secondbrain-console:", err)
		os.Exit(1)
	}
}

func run(configPath, owner string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	// the terminal owns stdout; keep logs out of the way
	logger := log.New(log.Config{Level: slog.LevelError, JSON: cfg.Log.JSON})

	embedder := embedding.NewHashEmbedder(cfg.Embedder.Dimension)
	idx, err := index.New(embedder.Dimension())
	if err != nil {
		return err
	}
	if err := idx.Load(cfg.Index.Path); err != nil {
		logger.Warn("index load failed, starting empty", "path", cfg.Index.Path, "error", err)
	}

	for _, path := range []string{cfg.Index.Path, cfg.Store.Path} {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
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

	svc := assistant.New(assistant.Config{
		IndexPath:    cfg.Index.Path,
		MaxChunks:    cfg.Retrieval.MaxChunks,
		MinScore:     cfg.Retrieval.MinScore,
		MaxPromptLen: cfg.Retrieval.MaxPromptLen,
	},
		chunker.NewSentenceChunker(cfg.Chunker.TargetSize, cfg.Chunker.Overlap),
		embedder, idx,
		retriever.New(embedder, idx, logger),
		prompt.NewAssembler(cfg.Retrieval.SystemPrompt),
		model, summarizer.NewFrequency(), taskStore, logger,
	)

	program := tea.NewProgram(tui.New(svc, owner), tea.WithAltScreen())
	if _, err := program.Run(); err != nil {
		return err
	}
	if err := idx.Save(cfg.Index.Path); err != nil {
		logger.Error("index save failed", "error", err)
	}
	return nil
}
