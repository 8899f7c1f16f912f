package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"RegIngest/internal/domain"
	"RegIngest/internal/infrastructure/storage"
)

func provenance(job string) domain.ProvenanceOptions {
	return domain.ProvenanceOptions{
		IngestJobID:    job,
		OrganizationID: "org-a",
		Timestamp:      time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC),
	}
}

func enriched(number, text string, obligations ...string) domain.EnrichedProvision {
	ep := domain.EnrichedProvision{
		Provision: domain.Provision{
			ID:           domain.ProvisionID("gdpr", number),
			RegulationID: "gdpr",
			Number:       number,
			FullText:     text,
		},
		AISummary:   "summary",
		RiskLevel:   domain.RiskLow,
		SystemTypes: []string{"crm"},
	}
	for _, title := range obligations {
		ep.Obligations = append(ep.Obligations, domain.ObligationDraft{Title: title, Description: title + " desc"})
	}
	return ep
}

func seededGateway(t *testing.T) (*PersistenceGateway, *storage.MemoryStore) {
	t.Helper()
	store := storage.NewMemoryStore(nil)
	g := NewPersistenceGateway(store, nil)
	inserted, err := g.UpsertRegulation(context.Background(), domain.Regulation{ID: "gdpr", Name: "GDPR"}, provenance("job-1"))
	require.NoError(t, err)
	require.True(t, inserted)
	return g, store
}

func TestUpsertRegulationUpdatesProvenance(t *testing.T) {
	g, store := seededGateway(t)

	inserted, err := g.UpsertRegulation(context.Background(), domain.Regulation{ID: "gdpr", Name: "GDPR v2"}, provenance("job-2"))
	require.NoError(t, err)
	assert.False(t, inserted)

	reg, found, err := store.FindRegulation(context.Background(), "org-a", "gdpr")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "GDPR v2", reg.Name)
	assert.Equal(t, "job-2", reg.IngestJobID)
	assert.Equal(t, "org-a", reg.OrganizationID)
}

func TestUpsertArticleIsIdempotent(t *testing.T) {
	g, store := seededGateway(t)
	ctx := context.Background()
	ep := enriched("5", "Personal data shall be processed lawfully.", "Keep records", "Appoint DPO")

	res, err := g.UpsertArticle(ctx, ep, provenance("job-1"))
	require.NoError(t, err)
	assert.True(t, res.Inserted)
	assert.Equal(t, 2, res.ObligationsInserted)

	res, err = g.UpsertArticle(ctx, ep, provenance("job-2"))
	require.NoError(t, err)
	assert.True(t, res.Unchanged)
	assert.Zero(t, res.ObligationsInserted)

	articles := store.Articles("org-a")
	require.Len(t, articles, 1)
	assert.Equal(t, "job-1", articles[0].IngestJobID, "unchanged content is not rewritten")
	assert.Len(t, store.Obligations("org-a"), 2)
}

// flakyObligationStore fails the first obligation insert.
type flakyObligationStore struct {
	*storage.MemoryStore
	failures int
}

func (s *flakyObligationStore) InsertObligation(ctx context.Context, obl domain.Obligation) (bool, error) {
	if s.failures > 0 {
		s.failures--
		return false, errors.New("connection lost")
	}
	return s.MemoryStore.InsertObligation(ctx, obl)
}

func TestUpsertArticleHealsMissingObligations(t *testing.T) {
	mem := storage.NewMemoryStore(nil)
	store := &flakyObligationStore{MemoryStore: mem, failures: 1}
	g := NewPersistenceGateway(store, nil)
	ctx := context.Background()

	_, err := g.UpsertRegulation(ctx, domain.Regulation{ID: "gdpr", Name: "GDPR"}, provenance("job-1"))
	require.NoError(t, err)

	ep := enriched("5", "Personal data shall be processed lawfully.", "Keep records")
	_, err = g.UpsertArticle(ctx, ep, provenance("job-1"))
	var perr *domain.PersistenceError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "obligation", perr.Entity)
	require.Len(t, mem.Articles("org-a"), 1)
	assert.Empty(t, mem.Obligations("org-a"))

	res, err := g.UpsertArticle(ctx, ep, provenance("job-2"))
	require.NoError(t, err)
	assert.True(t, res.Unchanged)
	assert.Equal(t, 1, res.ObligationsInserted)

	obligations := mem.Obligations("org-a")
	require.Len(t, obligations, 1)
	assert.Equal(t, "OBL-gdpr-art-5-001", obligations[0].ID)
	assert.Equal(t, "job-1", mem.Articles("org-a")[0].IngestJobID)
}

func TestUpsertArticleChecksumChangeUpdates(t *testing.T) {
	g, store := seededGateway(t)
	ctx := context.Background()

	_, err := g.UpsertArticle(ctx, enriched("5", "Text A", "First"), provenance("job-1"))
	require.NoError(t, err)

	res, err := g.UpsertArticle(ctx, enriched("5", "Text B", "Renamed", "Second"), provenance("job-2"))
	require.NoError(t, err)
	assert.True(t, res.Updated)
	assert.Equal(t, 1, res.ObligationsInserted, "only the new index is created")

	articles := store.Articles("org-a")
	require.Len(t, articles, 1)
	assert.Equal(t, "Text B", articles[0].RawText)
	assert.Equal(t, domain.Checksum("Text B", ""), articles[0].Checksum)
	assert.Equal(t, "job-2", articles[0].IngestJobID)

	obligations := store.Obligations("org-a")
	require.Len(t, obligations, 2)
	assert.Equal(t, "OBL-gdpr-art-5-001", obligations[0].ID)
	assert.Equal(t, "First", obligations[0].Title, "existing obligations are never updated")
	assert.Equal(t, "OBL-gdpr-art-5-002", obligations[1].ID)
	assert.Equal(t, domain.ObligationPending, obligations[1].Status)
}

func TestBatchUpsertArticlesAggregates(t *testing.T) {
	g, _ := seededGateway(t)
	ctx := context.Background()

	_, err := g.UpsertArticle(ctx, enriched("1", "same", "A"), provenance("job-1"))
	require.NoError(t, err)
	_, err = g.UpsertArticle(ctx, enriched("2", "old", "B"), provenance("job-1"))
	require.NoError(t, err)

	var progress []int
	stats, err := g.BatchUpsertArticles(ctx, []domain.EnrichedProvision{
		enriched("1", "same", "A"),
		enriched("2", "new", "B", "C"),
		enriched("3", "fresh", "D"),
	}, provenance("job-2"), func(done, total int) {
		assert.Equal(t, 3, total)
		progress = append(progress, done)
	})
	require.NoError(t, err)

	assert.Equal(t, domain.PersistStats{
		ArticlesInserted:    1,
		ArticlesUpdated:     1,
		ArticlesUnchanged:   1,
		ObligationsInserted: 2,
	}, stats)
	assert.Equal(t, []int{1, 2, 3}, progress)
}

func TestBatchUpsertArticlesWrapsStoreFailures(t *testing.T) {
	g := NewPersistenceGateway(storage.NewMemoryStore(nil), nil)

	_, err := g.BatchUpsertArticles(context.Background(), []domain.EnrichedProvision{enriched("1", "x")}, provenance("job-1"), nil)
	require.Error(t, err)

	var perr *domain.PersistenceError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, "insert", perr.Op)
	assert.Equal(t, "article", perr.Entity)
	assert.Equal(t, "gdpr-art-1", perr.ID)
}
