package llm

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/tmc/langchaingo/llms"

	"RegIngest/internal/domain"
	"RegIngest/internal/ports"
)

// ClientOptions tunes a single enrichment call.
type ClientOptions struct {
	MaxTokens      int
	JSONMode       bool
	MaxRetries     int
	RetryBaseDelay time.Duration
}

// EnrichmentClient asks a text-generation model to analyse one provision.
// The model handle is built once by the caller and shared across goroutines.
type EnrichmentClient struct {
	model  llms.Model
	opts   ClientOptions
	logger *slog.Logger
}

var _ ports.Enricher = (*EnrichmentClient)(nil)

// NewEnrichmentClient wraps a langchaingo model.
func NewEnrichmentClient(model llms.Model, opts ClientOptions, log *slog.Logger) *EnrichmentClient {
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = 1024
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.RetryBaseDelay <= 0 {
		opts.RetryBaseDelay = 500 * time.Millisecond
	}
	if log == nil {
		log = slog.Default()
	}
	return &EnrichmentClient{model: model, opts: opts, logger: log}
}

// Enrich returns the enriched provision with token usage, or a *domain.EnrichmentError.
// Transient transport errors are retried with backoff. Context errors,
// rejected requests and empty or malformed answers are not.
func (c *EnrichmentClient) Enrich(ctx context.Context, provision domain.Provision, regulationName string) (domain.Enrichment, error) {
	messages := buildMessages(provision, regulationName)
	callOpts := []llms.CallOption{
		llms.WithTemperature(0),
		llms.WithMaxTokens(c.opts.MaxTokens),
	}
	if c.opts.JSONMode {
		callOpts = append(callOpts, llms.WithJSONMode())
	}

	var resp *llms.ContentResponse
	err := retryWithBackoff(ctx, c.opts.MaxRetries+1, c.opts.RetryBaseDelay, func() error {
		var callErr error
		resp, callErr = c.model.GenerateContent(ctx, messages, callOpts...)
		if callErr == nil {
			return nil
		}
		c.logger.Debug("enrichment call failed", "provision", provision.ID, "err", callErr)
		if !retryable(callErr) {
			return permanent(callErr)
		}
		return callErr
	})
	if err != nil {
		return domain.Enrichment{}, &domain.EnrichmentError{
			ProvisionID: provision.ID,
			Kind:        domain.EnrichmentTransport,
			Err:         err,
		}
	}

	text, usage := firstChoice(resp)
	if strings.TrimSpace(text) == "" {
		return domain.Enrichment{}, &domain.EnrichmentError{
			ProvisionID: provision.ID,
			Kind:        domain.EnrichmentEmptyResponse,
		}
	}

	analysis, parseErr := ParseAnalysis(text)
	if parseErr != nil {
		c.logger.Warn("malformed enrichment response", "provision", provision.ID, "err", parseErr.Err)
		return domain.Enrichment{}, &domain.EnrichmentError{
			ProvisionID: provision.ID,
			Kind:        domain.EnrichmentMalformed,
			Raw:         parseErr.Raw,
			Err:         parseErr,
		}
	}
	if !analysis.KnownRisk {
		c.logger.Warn("risk level outside taxonomy", "provision", provision.ID, "risk_level", analysis.RiskLevel)
	}

	return domain.Enrichment{
		Provision: domain.EnrichedProvision{
			Provision:   provision,
			AISummary:   analysis.Summary,
			RiskLevel:   analysis.RiskLevel,
			Obligations: analysis.Obligations,
			SystemTypes: analysis.SystemTypes,
		},
		Usage: usage,
	}, nil
}

func firstChoice(resp *llms.ContentResponse) (string, domain.Usage) {
	if resp == nil || len(resp.Choices) == 0 || resp.Choices[0] == nil {
		return "", domain.Usage{}
	}
	choice := resp.Choices[0]
	return choice.Content, usageFromInfo(choice.GenerationInfo)
}

// usageFromInfo reads token counts from provider-specific generation info keys.
func usageFromInfo(info map[string]any) domain.Usage {
	return domain.Usage{
		InputTokens:  firstInt(info, "PromptTokens", "InputTokens", "prompt_tokens", "input_tokens"),
		OutputTokens: firstInt(info, "CompletionTokens", "OutputTokens", "completion_tokens", "output_tokens"),
	}
}

func firstInt(info map[string]any, keys ...string) int {
	for _, key := range keys {
		switch v := info[key].(type) {
		case int:
			return v
		case int32:
			return int(v)
		case int64:
			return int(v)
		case float64:
			return int(v)
		}
	}
	return 0
}
