package usecase

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tmc/langchaingo/llms"

	"RegIngest/internal/domain"
)

// stubEnricher answers from a function and tracks how many calls overlap.
type stubEnricher struct {
	fn       func(p domain.Provision) (domain.Enrichment, error)
	delay    time.Duration
	inFlight atomic.Int32
	peak     atomic.Int32
	calls    atomic.Int32
}

func (s *stubEnricher) Enrich(ctx context.Context, p domain.Provision, _ string) (domain.Enrichment, error) {
	s.calls.Add(1)
	n := s.inFlight.Add(1)
	defer s.inFlight.Add(-1)
	for {
		peak := s.peak.Load()
		if n <= peak || s.peak.CompareAndSwap(peak, n) {
			break
		}
	}
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return domain.Enrichment{}, ctx.Err()
		}
	}
	return s.fn(p)
}

func enrichOK(p domain.Provision) (domain.Enrichment, error) {
	return domain.Enrichment{
		Provision: domain.EnrichedProvision{
			Provision:   p,
			AISummary:   "summary of " + p.Number,
			RiskLevel:   domain.RiskMedium,
			Obligations: []domain.ObligationDraft{{Title: "T", Description: "D"}},
			SystemTypes: []string{},
		},
		Usage: domain.Usage{InputTokens: 100, OutputTokens: 20},
	}, nil
}

func makeProvisions(n int) []domain.Provision {
	out := make([]domain.Provision, n)
	for i := range out {
		number := strconv.Itoa(i + 1)
		out[i] = domain.Provision{
			ID:           domain.ProvisionID("reg", number),
			RegulationID: "reg",
			Number:       number,
			FullText:     "Body " + number,
		}
	}
	return out
}

// routedModel answers each prompt by the first route whose key appears in the user message.
type routedModel struct {
	mu     sync.Mutex
	routes map[string]string
	calls  int
}

func (m *routedModel) GenerateContent(_ context.Context, messages []llms.MessageContent, _ ...llms.CallOption) (*llms.ContentResponse, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()

	var prompt strings.Builder
	for _, msg := range messages {
		if msg.Role != llms.ChatMessageTypeHuman {
			continue
		}
		for _, part := range msg.Parts {
			if text, ok := part.(llms.TextContent); ok {
				prompt.WriteString(text.Text)
			}
		}
	}

	for key, answer := range m.routes {
		if strings.Contains(prompt.String(), key) {
			return &llms.ContentResponse{Choices: []*llms.ContentChoice{{
				Content:        answer,
				GenerationInfo: map[string]any{"PromptTokens": 50, "CompletionTokens": 10},
			}}}, nil
		}
	}
	return nil, errors.New("no route for prompt")
}

func (m *routedModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, m, prompt, options...)
}

// recordingNotifier keeps every published summary.
type recordingNotifier struct {
	mu        sync.Mutex
	summaries []string
	err       error
}

func (n *recordingNotifier) PublishJobSummary(_ context.Context, summary string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.summaries = append(n.summaries, summary)
	return n.err
}

func (n *recordingNotifier) all() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.summaries...)
}
