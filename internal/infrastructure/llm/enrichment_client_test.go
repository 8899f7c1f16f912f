package llm

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"

	"RegIngest/internal/domain"
)

var testProvision = domain.Provision{
	ID:           "gdpr-art-30",
	RegulationID: "gdpr",
	Number:       "30",
	SectionTitle: "CHAPTER IV",
	FullText:     "Each controller shall maintain a record of processing activities.",
}

func fastOptions() ClientOptions {
	return ClientOptions{MaxRetries: 2, RetryBaseDelay: time.Millisecond}
}

func TestEnrichSuccess(t *testing.T) {
	t.Parallel()

	model := &fakeModel{responses: []fakeResponse{{
		content: `{"summary":"Keep a record.","riskLevel":"high","obligations":[{"title":"Maintain ROPA","description":"Record processing"}],"systemTypes":["crm"]}`,
		info:    map[string]any{"PromptTokens": 120, "CompletionTokens": 40},
	}}}

	client := NewEnrichmentClient(model, fastOptions(), nil)
	got, err := client.Enrich(context.Background(), testProvision, "GDPR")
	require.NoError(t, err)

	assert.Equal(t, testProvision, got.Provision.Provision)
	assert.Equal(t, "Keep a record.", got.Provision.AISummary)
	assert.Equal(t, domain.RiskHigh, got.Provision.RiskLevel)
	assert.Equal(t, []domain.ObligationDraft{{Title: "Maintain ROPA", Description: "Record processing"}}, got.Provision.Obligations)
	assert.Equal(t, []string{"crm"}, got.Provision.SystemTypes)
	assert.Equal(t, domain.Usage{InputTokens: 120, OutputTokens: 40}, got.Usage)

	require.Len(t, model.messages, 1)
	msgs := model.messages[0]
	require.Len(t, msgs, 2)
	assert.Equal(t, llms.ChatMessageTypeSystem, msgs[0].Role)
	assert.Equal(t, llms.ChatMessageTypeHuman, msgs[1].Role)

	user, ok := msgs[1].Parts[0].(llms.TextContent)
	require.True(t, ok)
	assert.Contains(t, user.Text, "Regulation: GDPR")
	assert.Contains(t, user.Text, "Article 30")
	assert.Contains(t, user.Text, "Section: CHAPTER IV")
	assert.Contains(t, user.Text, testProvision.FullText)
}

func TestEnrichReadsAnthropicUsageKeys(t *testing.T) {
	t.Parallel()

	model := &fakeModel{responses: []fakeResponse{{
		content: `{"summary":"s","riskLevel":"low"}`,
		info:    map[string]any{"InputTokens": int64(7), "OutputTokens": float64(3)},
	}}}

	got, err := NewEnrichmentClient(model, fastOptions(), nil).Enrich(context.Background(), testProvision, "GDPR")
	require.NoError(t, err)
	assert.Equal(t, domain.Usage{InputTokens: 7, OutputTokens: 3}, got.Usage)
}

func TestEnrichRetriesTransportErrors(t *testing.T) {
	t.Parallel()

	model := &fakeModel{responses: []fakeResponse{
		{err: errors.New("connection reset")},
		{err: errors.New("429 too many requests")},
		{content: `{"summary":"s","riskLevel":"medium"}`},
	}}

	got, err := NewEnrichmentClient(model, fastOptions(), nil).Enrich(context.Background(), testProvision, "GDPR")
	require.NoError(t, err)
	assert.Equal(t, domain.RiskMedium, got.Provision.RiskLevel)
	assert.Equal(t, 3, model.callCount())
}

func TestEnrichTransportFailureAfterRetries(t *testing.T) {
	t.Parallel()

	model := &fakeModel{responses: []fakeResponse{{err: errors.New("service unavailable")}}}

	_, err := NewEnrichmentClient(model, fastOptions(), nil).Enrich(context.Background(), testProvision, "GDPR")

	var enrichErr *domain.EnrichmentError
	require.ErrorAs(t, err, &enrichErr)
	assert.Equal(t, domain.EnrichmentTransport, enrichErr.Kind)
	assert.Equal(t, testProvision.ID, enrichErr.ProvisionID)
	assert.Equal(t, 3, model.callCount())
}

func TestEnrichDoesNotRetryRejectedRequests(t *testing.T) {
	t.Parallel()

	for name, callErr := range map[string]error{
		"unauthorized":   errors.New("API returned unexpected status code: 401: invalid x-api-key"),
		"unknown model":  errors.New(`error, status code: 404, message: {"code":"model_not_found"}`),
		"deadline":       context.DeadlineExceeded,
		"wrapped cancel": fmt.Errorf("send request: %w", context.Canceled),
	} {
		callErr := callErr
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			model := &fakeModel{responses: []fakeResponse{{err: callErr}}}

			_, err := NewEnrichmentClient(model, fastOptions(), nil).Enrich(context.Background(), testProvision, "GDPR")

			var enrichErr *domain.EnrichmentError
			require.ErrorAs(t, err, &enrichErr)
			assert.Equal(t, domain.EnrichmentTransport, enrichErr.Kind)
			assert.ErrorIs(t, err, callErr)
			assert.Equal(t, 1, model.callCount())
		})
	}
}

func TestEnrichRetriesRateLimitStatus(t *testing.T) {
	t.Parallel()

	model := &fakeModel{responses: []fakeResponse{
		{err: errors.New("API returned unexpected status code: 429: rate limited")},
		{err: errors.New("API returned unexpected status code: 503")},
		{content: `{"summary":"s","riskLevel":"low"}`},
	}}

	_, err := NewEnrichmentClient(model, fastOptions(), nil).Enrich(context.Background(), testProvision, "GDPR")
	require.NoError(t, err)
	assert.Equal(t, 3, model.callCount())
}

func TestEnrichEmptyResponse(t *testing.T) {
	t.Parallel()

	for name, resp := range map[string]fakeResponse{
		"no choices": {empty: true},
		"blank text": {content: "   "},
	} {
		resp := resp
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			model := &fakeModel{responses: []fakeResponse{resp}}

			_, err := NewEnrichmentClient(model, fastOptions(), nil).Enrich(context.Background(), testProvision, "GDPR")

			var enrichErr *domain.EnrichmentError
			require.ErrorAs(t, err, &enrichErr)
			assert.Equal(t, domain.EnrichmentEmptyResponse, enrichErr.Kind)
			assert.Equal(t, 1, model.callCount())
		})
	}
}

func TestEnrichMalformedResponseIsNotRetried(t *testing.T) {
	t.Parallel()

	model := &fakeModel{responses: []fakeResponse{{content: "Sorry, I can't produce JSON today."}}}

	_, err := NewEnrichmentClient(model, fastOptions(), nil).Enrich(context.Background(), testProvision, "GDPR")

	var enrichErr *domain.EnrichmentError
	require.ErrorAs(t, err, &enrichErr)
	assert.Equal(t, domain.EnrichmentMalformed, enrichErr.Kind)
	assert.Equal(t, "Sorry, I can't produce JSON today.", enrichErr.Raw)

	var parseErr *domain.ParseError
	assert.ErrorAs(t, err, &parseErr)
	assert.Equal(t, 1, model.callCount())
}

func TestEnrichStopsOnCancelledContext(t *testing.T) {
	t.Parallel()

	model := &fakeModel{responses: []fakeResponse{{err: errors.New("timeout")}}}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewEnrichmentClient(model, fastOptions(), nil).Enrich(ctx, testProvision, "GDPR")
	require.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, model.callCount())
}
