package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"RegIngest/internal/domain"
	"RegIngest/internal/ports"
)

var (
	regulationColumns = []string{
		"id", "organization_id", "name", "full_title", "jurisdiction",
		"effective_date", "source_url", "ingest_job_id", "ingest_timestamp",
	}
	articleColumns = []string{
		"id", "organization_id", "regulation_id", "article_number", "section_title",
		"raw_text", "ai_summary", "risk_level", "system_types", "checksum",
		"ingest_job_id", "ingest_timestamp",
	}
	jobViewColumns = []string{"id", "organization_id", "source", "status", "started_at", "finished_at"}
)

// ErrJobNotRunning is returned when finishing a job that is not in the running state.
var ErrJobNotRunning = errors.New("ingest job is not running")

// SQLStore persists regulations, articles, obligations and jobs in Postgres or SQLite.
type SQLStore struct {
	db     *sql.DB
	sb     sq.StatementBuilderType
	logger *slog.Logger
}

var _ ports.Store = (*SQLStore)(nil)

// NewSQLStore wraps an open database. placeholder must match the driver:
// sq.Dollar for Postgres, sq.Question for SQLite.
func NewSQLStore(db *sql.DB, placeholder sq.PlaceholderFormat, log *slog.Logger) *SQLStore {
	return &SQLStore{
		db:     db,
		sb:     sq.StatementBuilder.PlaceholderFormat(placeholder),
		logger: log,
	}
}

// OpenPostgres connects through lib/pq and bootstraps the schema.
func OpenPostgres(ctx context.Context, dsn string, log *slog.Logger) (*SQLStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if err := ensureSchema(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return NewSQLStore(db, sq.Dollar, log), nil
}

// OpenSQLite opens a SQLite database file with foreign keys enabled.
func OpenSQLite(ctx context.Context, path string, log *slog.Logger) (*SQLStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// Writes within a job are sequential; one connection keeps PRAGMAs in effect.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA foreign_keys=ON"} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("sqlite %s: %w", pragma, err)
		}
	}
	if err := ensureSchema(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return NewSQLStore(db, sq.Question, log), nil
}

// Close releases the underlying connection pool.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

// FindRegulation looks a regulation up by id within an organization.
func (s *SQLStore) FindRegulation(ctx context.Context, organizationID, id string) (domain.Regulation, bool, error) {
	query, args, err := s.sb.Select(regulationColumns...).
		From("regulations").
		Where(sq.Eq{"organization_id": organizationID, "id": id}).
		ToSql()
	if err != nil {
		return domain.Regulation{}, false, fmt.Errorf("build regulation query: %w", err)
	}

	var (
		reg       domain.Regulation
		effective sql.NullTime
	)
	err = s.db.QueryRowContext(ctx, query, args...).Scan(
		&reg.ID, &reg.OrganizationID, &reg.Name, &reg.FullTitle, &reg.Jurisdiction,
		&effective, &reg.SourceURL, &reg.IngestJobID, &reg.IngestTime,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Regulation{}, false, nil
	}
	if err != nil {
		return domain.Regulation{}, false, fmt.Errorf("find regulation: %w", err)
	}
	if effective.Valid {
		t := effective.Time.UTC()
		reg.EffectiveDate = &t
	}
	reg.IngestTime = reg.IngestTime.UTC()
	return reg, true, nil
}

// InsertRegulation inserts a new regulation row.
func (s *SQLStore) InsertRegulation(ctx context.Context, reg domain.Regulation) error {
	query, args, err := s.sb.Insert("regulations").
		Columns(regulationColumns...).
		Values(reg.ID, reg.OrganizationID, reg.Name, reg.FullTitle, reg.Jurisdiction,
			nullTime(reg.EffectiveDate), reg.SourceURL, reg.IngestJobID, reg.IngestTime.UTC()).
		ToSql()
	if err != nil {
		return fmt.Errorf("build regulation insert: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("insert regulation: %w", err)
	}
	return nil
}

// UpdateRegulation overwrites content and provenance of an existing regulation.
func (s *SQLStore) UpdateRegulation(ctx context.Context, reg domain.Regulation) error {
	query, args, err := s.sb.Update("regulations").
		SetMap(map[string]interface{}{
			"name":             reg.Name,
			"full_title":       reg.FullTitle,
			"jurisdiction":     reg.Jurisdiction,
			"effective_date":   nullTime(reg.EffectiveDate),
			"source_url":       reg.SourceURL,
			"ingest_job_id":    reg.IngestJobID,
			"ingest_timestamp": reg.IngestTime.UTC(),
		}).
		Where(sq.Eq{"organization_id": reg.OrganizationID, "id": reg.ID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build regulation update: %w", err)
	}
	return s.execOne(ctx, "update regulation", query, args)
}

// FindArticle looks an article up by id within an organization.
func (s *SQLStore) FindArticle(ctx context.Context, organizationID, id string) (domain.Article, bool, error) {
	query, args, err := s.sb.Select(articleColumns...).
		From("articles").
		Where(sq.Eq{"organization_id": organizationID, "id": id}).
		ToSql()
	if err != nil {
		return domain.Article{}, false, fmt.Errorf("build article query: %w", err)
	}

	var (
		art         domain.Article
		risk        string
		systemTypes string
	)
	err = s.db.QueryRowContext(ctx, query, args...).Scan(
		&art.ID, &art.OrganizationID, &art.RegulationID, &art.ArticleNumber, &art.SectionTitle,
		&art.RawText, &art.AISummary, &risk, &systemTypes, &art.Checksum,
		&art.IngestJobID, &art.IngestTime,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Article{}, false, nil
	}
	if err != nil {
		return domain.Article{}, false, fmt.Errorf("find article: %w", err)
	}

	art.RiskLevel = domain.RiskLevel(risk)
	art.IngestTime = art.IngestTime.UTC()
	if err := json.Unmarshal([]byte(systemTypes), &art.SystemTypes); err != nil {
		return domain.Article{}, false, fmt.Errorf("decode system types of %s: %w", id, err)
	}
	return art, true, nil
}

// InsertArticle inserts a new article row.
func (s *SQLStore) InsertArticle(ctx context.Context, art domain.Article) error {
	systemTypes, err := encodeStrings(art.SystemTypes)
	if err != nil {
		return err
	}
	query, args, err := s.sb.Insert("articles").
		Columns(articleColumns...).
		Values(art.ID, art.OrganizationID, art.RegulationID, art.ArticleNumber, art.SectionTitle,
			art.RawText, art.AISummary, string(art.RiskLevel), systemTypes, art.Checksum,
			art.IngestJobID, art.IngestTime.UTC()).
		ToSql()
	if err != nil {
		return fmt.Errorf("build article insert: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("insert article: %w", err)
	}
	return nil
}

// UpdateArticle overwrites content, checksum and provenance of an existing article.
func (s *SQLStore) UpdateArticle(ctx context.Context, art domain.Article) error {
	systemTypes, err := encodeStrings(art.SystemTypes)
	if err != nil {
		return err
	}
	query, args, err := s.sb.Update("articles").
		SetMap(map[string]interface{}{
			"regulation_id":    art.RegulationID,
			"article_number":   art.ArticleNumber,
			"section_title":    art.SectionTitle,
			"raw_text":         art.RawText,
			"ai_summary":       art.AISummary,
			"risk_level":       string(art.RiskLevel),
			"system_types":     systemTypes,
			"checksum":         art.Checksum,
			"ingest_job_id":    art.IngestJobID,
			"ingest_timestamp": art.IngestTime.UTC(),
		}).
		Where(sq.Eq{"organization_id": art.OrganizationID, "id": art.ID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build article update: %w", err)
	}
	return s.execOne(ctx, "update article", query, args)
}

// ObligationExists reports whether an obligation id is already stored.
func (s *SQLStore) ObligationExists(ctx context.Context, organizationID, id string) (bool, error) {
	query, args, err := s.sb.Select("1").
		From("obligations").
		Where(sq.Eq{"organization_id": organizationID, "id": id}).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build obligation query: %w", err)
	}

	var one int
	err = s.db.QueryRowContext(ctx, query, args...).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("find obligation: %w", err)
	}
	return true, nil
}

// InsertObligation inserts the obligation unless its id exists; existing rows are never touched.
func (s *SQLStore) InsertObligation(ctx context.Context, obl domain.Obligation) (bool, error) {
	query, args, err := s.sb.Insert("obligations").
		Columns("id", "organization_id", "article_id", "title", "summary", "status").
		Values(obl.ID, obl.OrganizationID, obl.ArticleID, obl.Title, obl.Summary, string(obl.Status)).
		Suffix("ON CONFLICT (organization_id, id) DO NOTHING").
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build obligation insert: %w", err)
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("insert obligation: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert obligation rows affected: %w", err)
	}
	return n == 1, nil
}

// CreateJob inserts a job record.
func (s *SQLStore) CreateJob(ctx context.Context, job domain.IngestJob) error {
	query, args, err := s.sb.Insert("ingest_jobs").
		Columns("id", "organization_id", "source", "source_url", "status", "started_at", "finished_at", "log", "error_message").
		Values(job.ID, job.OrganizationID, job.Source, job.SourceURL, string(job.Status),
			job.StartedAt.UTC(), nullTime(job.FinishedAt), job.Log, job.ErrorMessage).
		ToSql()
	if err != nil {
		return fmt.Errorf("build job insert: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

// FinishJob moves a running job into its terminal state.
func (s *SQLStore) FinishJob(ctx context.Context, job domain.IngestJob) error {
	query, args, err := s.sb.Update("ingest_jobs").
		SetMap(map[string]interface{}{
			"status":        string(job.Status),
			"finished_at":   nullTime(job.FinishedAt),
			"log":           job.Log,
			"error_message": job.ErrorMessage,
		}).
		Where(sq.Eq{"id": job.ID, "organization_id": job.OrganizationID, "status": string(domain.JobRunning)}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build job update: %w", err)
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("finish job: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("finish job rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("finish job %s: %w", job.ID, ErrJobNotRunning)
	}
	return nil
}

// GetJob returns the status view of one job.
func (s *SQLStore) GetJob(ctx context.Context, organizationID, id string) (domain.JobStatusView, bool, error) {
	query, args, err := s.sb.Select(jobViewColumns...).
		From("ingest_jobs").
		Where(sq.Eq{"organization_id": organizationID, "id": id}).
		ToSql()
	if err != nil {
		return domain.JobStatusView{}, false, fmt.Errorf("build job query: %w", err)
	}

	view, err := scanJobView(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.JobStatusView{}, false, nil
	}
	if err != nil {
		return domain.JobStatusView{}, false, fmt.Errorf("get job: %w", err)
	}
	return view, true, nil
}

// ListJobs returns the most recent jobs of an organization, newest first.
func (s *SQLStore) ListJobs(ctx context.Context, organizationID string, limit int) ([]domain.JobStatusView, error) {
	builder := s.sb.Select(jobViewColumns...).
		From("ingest_jobs").
		Where(sq.Eq{"organization_id": organizationID}).
		OrderBy("started_at DESC", "id DESC")
	if limit > 0 {
		builder = builder.Limit(uint64(limit))
	}
	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build job list: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var views []domain.JobStatusView
	for rows.Next() {
		view, err := scanJobView(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		views = append(views, view)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return views, nil
}

// FailStaleJobs marks running jobs started before the cutoff as failed.
func (s *SQLStore) FailStaleJobs(ctx context.Context, startedBefore time.Time, message string) (int, error) {
	query, args, err := s.sb.Select("id", "organization_id", "started_at").
		From("ingest_jobs").
		Where(sq.Eq{"status": string(domain.JobRunning)}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build stale job query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("query running jobs: %w", err)
	}

	var stale []domain.IngestJob
	for rows.Next() {
		var job domain.IngestJob
		if err := rows.Scan(&job.ID, &job.OrganizationID, &job.StartedAt); err != nil {
			_ = rows.Close()
			return 0, fmt.Errorf("scan running job: %w", err)
		}
		if job.StartedAt.Before(startedBefore) {
			stale = append(stale, job)
		}
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return 0, fmt.Errorf("rows iteration: %w", err)
	}
	if err := rows.Close(); err != nil {
		return 0, fmt.Errorf("close rows: %w", err)
	}

	now := time.Now().UTC()
	failed := 0
	for _, job := range stale {
		job.Status = domain.JobFailed
		job.FinishedAt = &now
		job.ErrorMessage = message
		if err := s.FinishJob(ctx, job); err != nil {
			if errors.Is(err, ErrJobNotRunning) {
				continue
			}
			return failed, err
		}
		failed++
	}

	if failed > 0 && s.logger != nil {
		s.logger.Info("failed stale jobs", "count", failed, "started_before", startedBefore)
	}
	return failed, nil
}

func (s *SQLStore) execOne(ctx context.Context, op, query string, args []interface{}) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows affected: %w", op, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", op, sql.ErrNoRows)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJobView(row rowScanner) (domain.JobStatusView, error) {
	var (
		view     domain.JobStatusView
		status   string
		finished sql.NullTime
	)
	if err := row.Scan(&view.ID, &view.OrganizationID, &view.Source, &status, &view.StartedAt, &finished); err != nil {
		return domain.JobStatusView{}, err
	}
	view.Status = domain.JobStatus(status)
	view.StartedAt = view.StartedAt.UTC()
	if finished.Valid {
		t := finished.Time.UTC()
		view.FinishedAt = &t
	}
	return view, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func encodeStrings(values []string) (string, error) {
	if values == nil {
		values = []string{}
	}
	raw, err := json.Marshal(values)
	if err != nil {
		return "", fmt.Errorf("encode system types: %w", err)
	}
	return string(raw), nil
}
