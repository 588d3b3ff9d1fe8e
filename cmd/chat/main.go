// Package main implements an interactive console chat: it ingests the
// configured subreddit once at startup, then answers questions from stdin
// against the built index in a single conversation session.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"

	"github.com/threadsage/threadsage/engine/chat"
	"github.com/threadsage/threadsage/engine/domain"
	"github.com/threadsage/threadsage/engine/pipeline"
	"github.com/threadsage/threadsage/engine/source"
	"github.com/threadsage/threadsage/pkg/ollama"
	"github.com/threadsage/threadsage/pkg/status"
)

func main() {
	cfg := domain.DefaultConfig()
	var (
		ollamaURL   = flag.String("ollama", "http://localhost:11434", "Ollama base URL")
		subreddit   = flag.String("subreddit", cfg.Subreddit, "subreddit to index")
		timeFilter  = flag.String("filter", string(cfg.TimeFilter), "recency filter: day|week|month|year|all")
		limit       = flag.Int("limit", 100, "maximum posts to fetch")
		granularity = flag.String("granularity", string(cfg.Granularity), "document granularity: post|comment")
		embedModel  = flag.String("embed-model", cfg.EmbedModel, "embedding model")
		chatModel   = flag.String("chat-model", cfg.ChatModel, "chat model")
		verbose     = flag.Bool("v", false, "debug logging")
	)
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	cfg.Subreddit = *subreddit
	cfg.TimeFilter = domain.TimeFilter(*timeFilter)
	cfg.ItemLimit = *limit
	cfg.Granularity = domain.Granularity(*granularity)
	cfg.EmbedModel = *embedModel
	cfg.ChatModel = *chatModel

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, cfg, *ollamaURL, logger); err != nil {
		logger.Error("chat exited with error", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg domain.Config, ollamaURL string, logger *slog.Logger) error {
	embedder := ollama.NewEmbedClient(ollamaURL, cfg.EmbedModel)
	generator := ollama.NewChatClient(ollamaURL, cfg.ChatModel)
	src := source.NewClient(logger)

	pipe, err := pipeline.New(cfg, src, embedder, status.LogEmitter(logger), nil, logger)
	if err != nil {
		return err
	}

	fmt.Printf("Indexing r/%s (filter=%s, limit=%d)...\n", cfg.Subreddit, cfg.TimeFilter, cfg.ItemLimit)
	stats, err := pipe.Run(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("Indexed %d posts -> %d documents, %d parents, %d children (%s)\n\n",
		stats.Items, stats.Documents, stats.Parents, stats.Children, stats.Duration.Round(1e7))

	svc := chat.New(pipe, generator, chat.Options{HistoryWindow: cfg.HistoryWindow}, logger)
	sess := chat.NewSession()

	fmt.Println(`Ask questions about the indexed threads ("exit" to quit).`)
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		question := strings.TrimSpace(scanner.Text())
		if question == "" {
			continue
		}
		if question == "exit" || question == "quit" {
			break
		}

		answer, err := svc.Ask(ctx, sess, question)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				break
			}
			// The session stays usable; report and prompt again.
			fmt.Printf("error (%s): %v\n", domain.KindOf(err), err)
			continue
		}
		fmt.Println(answer)
		fmt.Println()
	}
	return scanner.Err()
}
