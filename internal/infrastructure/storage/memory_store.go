package storage

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"RegIngest/internal/domain"
	"RegIngest/internal/ports"
)

type orgKey struct {
	org string
	id  string
}

// MemoryStore keeps everything in process memory. It backs dry runs and tests.
type MemoryStore struct {
	mu          sync.RWMutex
	regulations map[orgKey]domain.Regulation
	articles    map[orgKey]domain.Article
	obligations map[orgKey]domain.Obligation
	jobs        map[string]domain.IngestJob
	logger      *slog.Logger
}

var _ ports.Store = (*MemoryStore)(nil)

// NewMemoryStore returns an empty store.
func NewMemoryStore(log *slog.Logger) *MemoryStore {
	return &MemoryStore{
		regulations: make(map[orgKey]domain.Regulation),
		articles:    make(map[orgKey]domain.Article),
		obligations: make(map[orgKey]domain.Obligation),
		jobs:        make(map[string]domain.IngestJob),
		logger:      log,
	}
}

// Close is a no-op; the store lives as long as the process.
func (m *MemoryStore) Close() error { return nil }

// FindRegulation looks a regulation up by id within an organization.
func (m *MemoryStore) FindRegulation(_ context.Context, organizationID, id string) (domain.Regulation, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	reg, ok := m.regulations[orgKey{organizationID, id}]
	return reg, ok, nil
}

// InsertRegulation stores a new regulation and rejects duplicate ids.
func (m *MemoryStore) InsertRegulation(_ context.Context, reg domain.Regulation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := orgKey{reg.OrganizationID, reg.ID}
	if _, ok := m.regulations[key]; ok {
		return fmt.Errorf("insert regulation %s: duplicate key", reg.ID)
	}
	m.regulations[key] = reg
	return nil
}

// UpdateRegulation overwrites an existing regulation.
func (m *MemoryStore) UpdateRegulation(_ context.Context, reg domain.Regulation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := orgKey{reg.OrganizationID, reg.ID}
	if _, ok := m.regulations[key]; !ok {
		return fmt.Errorf("update regulation %s: not found", reg.ID)
	}
	m.regulations[key] = reg
	return nil
}

// FindArticle looks an article up by id within an organization.
func (m *MemoryStore) FindArticle(_ context.Context, organizationID, id string) (domain.Article, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	art, ok := m.articles[orgKey{organizationID, id}]
	if ok {
		art.SystemTypes = append([]string(nil), art.SystemTypes...)
	}
	return art, ok, nil
}

// InsertArticle stores a new article. Its regulation must already exist.
func (m *MemoryStore) InsertArticle(_ context.Context, art domain.Article) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.regulations[orgKey{art.OrganizationID, art.RegulationID}]; !ok {
		return fmt.Errorf("insert article %s: regulation %s does not exist", art.ID, art.RegulationID)
	}
	key := orgKey{art.OrganizationID, art.ID}
	if _, ok := m.articles[key]; ok {
		return fmt.Errorf("insert article %s: duplicate key", art.ID)
	}
	art.SystemTypes = append([]string(nil), art.SystemTypes...)
	m.articles[key] = art
	return nil
}

// UpdateArticle overwrites content, checksum and provenance of an existing article.
func (m *MemoryStore) UpdateArticle(_ context.Context, art domain.Article) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := orgKey{art.OrganizationID, art.ID}
	if _, ok := m.articles[key]; !ok {
		return fmt.Errorf("update article %s: not found", art.ID)
	}
	art.SystemTypes = append([]string(nil), art.SystemTypes...)
	m.articles[key] = art
	return nil
}

// ObligationExists reports whether an obligation id is already stored.
func (m *MemoryStore) ObligationExists(_ context.Context, organizationID, id string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.obligations[orgKey{organizationID, id}]
	return ok, nil
}

// InsertObligation stores the obligation unless its id exists; existing entries are never touched.
func (m *MemoryStore) InsertObligation(_ context.Context, obl domain.Obligation) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.articles[orgKey{obl.OrganizationID, obl.ArticleID}]; !ok {
		return false, fmt.Errorf("insert obligation %s: article %s does not exist", obl.ID, obl.ArticleID)
	}
	key := orgKey{obl.OrganizationID, obl.ID}
	if _, ok := m.obligations[key]; ok {
		return false, nil
	}
	m.obligations[key] = obl
	return true, nil
}

// CreateJob records a new job.
func (m *MemoryStore) CreateJob(_ context.Context, job domain.IngestJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.jobs[job.ID]; ok {
		return fmt.Errorf("insert job %s: duplicate key", job.ID)
	}
	m.jobs[job.ID] = job
	return nil
}

// FinishJob moves a running job into its terminal state.
func (m *MemoryStore) FinishJob(_ context.Context, job domain.IngestJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.jobs[job.ID]
	if !ok || stored.OrganizationID != job.OrganizationID || stored.Status != domain.JobRunning {
		return fmt.Errorf("finish job %s: %w", job.ID, ErrJobNotRunning)
	}
	stored.Status = job.Status
	stored.FinishedAt = job.FinishedAt
	stored.Log = job.Log
	stored.ErrorMessage = job.ErrorMessage
	m.jobs[job.ID] = stored
	return nil
}

// GetJob returns the status view of one job.
func (m *MemoryStore) GetJob(_ context.Context, organizationID, id string) (domain.JobStatusView, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	job, ok := m.jobs[id]
	if !ok || job.OrganizationID != organizationID {
		return domain.JobStatusView{}, false, nil
	}
	return job.View(), true, nil
}

// ListJobs returns the most recent jobs of an organization, newest first.
func (m *MemoryStore) ListJobs(_ context.Context, organizationID string, limit int) ([]domain.JobStatusView, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var views []domain.JobStatusView
	for _, job := range m.jobs {
		if job.OrganizationID == organizationID {
			views = append(views, job.View())
		}
	}
	sort.Slice(views, func(i, j int) bool {
		if views[i].StartedAt.Equal(views[j].StartedAt) {
			return views[i].ID > views[j].ID
		}
		return views[i].StartedAt.After(views[j].StartedAt)
	})
	if limit > 0 && len(views) > limit {
		views = views[:limit]
	}
	return views, nil
}

// FailStaleJobs marks running jobs started before the cutoff as failed.
func (m *MemoryStore) FailStaleJobs(_ context.Context, startedBefore time.Time, message string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().UTC()
	failed := 0
	for id, job := range m.jobs {
		if job.Status != domain.JobRunning || !job.StartedAt.Before(startedBefore) {
			continue
		}
		job.Status = domain.JobFailed
		job.FinishedAt = &now
		job.ErrorMessage = message
		m.jobs[id] = job
		failed++
	}
	return failed, nil
}

// Job returns the full job record, including its log.
func (m *MemoryStore) Job(id string) (domain.IngestJob, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	job, ok := m.jobs[id]
	return job, ok
}

// Articles lists the articles of an organization ordered by id.
func (m *MemoryStore) Articles(organizationID string) []domain.Article {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []domain.Article
	for key, art := range m.articles {
		if key.org == organizationID {
			out = append(out, art)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Obligations lists the obligations of an organization ordered by id.
func (m *MemoryStore) Obligations(organizationID string) []domain.Obligation {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []domain.Obligation
	for key, obl := range m.obligations {
		if key.org == organizationID {
			out = append(out, obl)
		}
	}
	sort.Slice(out, func(i, j int) bool { return strings.Compare(out[i].ID, out[j].ID) < 0 })
	return out
}
