package chat

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/threadsage/threadsage/engine/domain"
	"github.com/threadsage/threadsage/engine/retrieve"
)

// ContextRetriever supplies passages relevant to a question.
type ContextRetriever interface {
	Retrieve(ctx context.Context, query string) (retrieve.RetrievalResult, error)
}

// Generator produces a text response for an assembled prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Options configures the ask loop.
type Options struct {
	// HistoryWindow bounds how many recent turns enter the prompt.
	HistoryWindow int
	SystemPrompt  string
}

const defaultSystemPrompt = `You are a helpful assistant answering questions about a set of indexed Reddit threads.
Answer using ONLY the provided context and the conversation so far. If the
context does not contain enough information, say so honestly. Cite source
posts using their [id] when you rely on them.`

// noContextMarker tells the model explicitly that retrieval found nothing,
// instead of leaving an empty context block open to hallucination.
const noContextMarker = "No relevant context was found in the indexed threads for this question."

// DefaultOptions returns sensible defaults.
func DefaultOptions() Options {
	return Options{
		HistoryWindow: 10,
		SystemPrompt:  defaultSystemPrompt,
	}
}

// Service runs the conversational query loop.
type Service struct {
	retriever ContextRetriever
	generator Generator
	opts      Options
	logger    *slog.Logger
}

// New creates a chat Service.
func New(retriever ContextRetriever, generator Generator, opts Options, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.SystemPrompt == "" {
		opts.SystemPrompt = defaultSystemPrompt
	}
	return &Service{retriever: retriever, generator: generator, opts: opts, logger: logger}
}

// Ask answers question within sess, appending the user and assistant turns
// on success. On any failure no turns are appended, so the session remains
// usable for the next question. A second concurrent Ask on the same
// session returns domain.ErrSessionBusy.
func (s *Service) Ask(ctx context.Context, sess *Session, question string) (string, error) {
	if !sess.flight.TryLock() {
		return "", domain.ErrSessionBusy
	}
	defer sess.flight.Unlock()

	passages, err := s.retriever.Retrieve(ctx, question)
	if err != nil {
		return "", err
	}

	prompt := s.buildPrompt(sess.window(s.opts.HistoryWindow), passages, question)
	s.logger.Debug("chat: prompt assembled", "session", sess.ID(), "passages", len(passages), "prompt_len", len(prompt))

	answer, err := s.generator.Generate(ctx, prompt)
	if err != nil {
		return "", domain.E(domain.KindGeneration, "generate answer", err)
	}

	sess.append(
		Turn{Role: RoleUser, Text: question},
		Turn{Role: RoleAssistant, Text: answer},
	)
	return answer, nil
}

// buildPrompt combines the system instruction, the recent history window,
// the retrieved passages tagged with provenance, and the new question.
func (s *Service) buildPrompt(history []Turn, passages retrieve.RetrievalResult, question string) string {
	var b strings.Builder
	b.WriteString(s.opts.SystemPrompt)
	b.WriteString("\n\n")

	if len(history) > 0 {
		b.WriteString("Conversation so far:\n")
		for _, t := range history {
			switch t.Role {
			case RoleAssistant:
				fmt.Fprintf(&b, "Assistant: %s\n", t.Text)
			default:
				fmt.Fprintf(&b, "User: %s\n", t.Text)
			}
		}
		b.WriteString("\n")
	}

	if len(passages) == 0 {
		b.WriteString(noContextMarker)
		b.WriteString("\n\n")
	} else {
		b.WriteString("Context from indexed threads:\n")
		for _, p := range passages {
			src := p.Meta["source_id"]
			if src == "" {
				src = p.ParentID
			}
			fmt.Fprintf(&b, "[%s] (score: %.3f)\n%s\n\n", src, p.Score, p.Text)
		}
	}

	fmt.Fprintf(&b, "User question: %s", question)
	return b.String()
}
