package reports

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/anchordesk/backend/internal/models"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

const reportColumns = `id, title, speaker, source_language, meeting_time, summary_raw,
	script_draft, script_final, highlights_draft, highlights_final,
	reflections_final, questions_final, question_persona,
	auto_play_enabled, status, published_at, created_at, updated_at`

// Repository handles report persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a report repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func jsonArray(values []string) string {
	if values == nil {
		values = []string{}
	}
	b, _ := json.Marshal(values)
	return string(b)
}

func scanReport(row pgx.Row) (*models.Report, error) {
	var (
		r                                        models.Report
		hlDraft, hlFinal, reflections, questions []byte
	)
	err := row.Scan(&r.ID, &r.Title, &r.Speaker, &r.SourceLanguage, &r.MeetingTime, &r.SummaryRaw,
		&r.ScriptDraft, &r.ScriptFinal, &hlDraft, &hlFinal,
		&reflections, &questions, &r.QuestionPersona,
		&r.AutoPlayEnabled, &r.Status, &r.PublishedAt, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		return nil, err
	}
	_ = json.Unmarshal(hlDraft, &r.HighlightsDraft)
	_ = json.Unmarshal(hlFinal, &r.HighlightsFinal)
	_ = json.Unmarshal(reflections, &r.Reflections)
	_ = json.Unmarshal(questions, &r.Questions)
	return &r, nil
}

// Create inserts a new report.
func (r *Repository) Create(ctx context.Context, rep *models.Report) error {
	const q = `INSERT INTO reports (title, speaker, source_language, meeting_time, summary_raw,
			script_draft, script_final, highlights_draft, highlights_final,
			reflections_final, questions_final, question_persona, auto_play_enabled, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8::jsonb, $9::jsonb, $10::jsonb, $11::jsonb, $12, $13, $14)
		RETURNING id, created_at, updated_at`
	return r.pool.QueryRow(ctx, q,
		rep.Title, rep.Speaker, rep.SourceLanguage, rep.MeetingTime, rep.SummaryRaw,
		rep.ScriptDraft, rep.ScriptFinal, jsonArray(rep.HighlightsDraft), jsonArray(rep.HighlightsFinal),
		jsonArray(rep.Reflections), jsonArray(rep.Questions), rep.QuestionPersona,
		rep.AutoPlayEnabled, rep.Status,
	).Scan(&rep.ID, &rep.CreatedAt, &rep.UpdatedAt)
}

// GetByID returns a report by ID.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Report, error) {
	q := fmt.Sprintf(`SELECT %s FROM reports WHERE id = $1`, reportColumns)
	return scanReport(r.pool.QueryRow(ctx, q, id))
}

// List returns a page of reports ordered by meeting time descending,
// optionally filtered by lifecycle status, plus the total match count.
func (r *Repository) List(ctx context.Context, page, pageSize int, status string) ([]models.Report, int, error) {
	countQ := psql.Select("COUNT(*)").From("reports")
	listQ := psql.Select(reportColumns).From("reports").
		OrderBy("meeting_time DESC, created_at DESC").
		Limit(uint64(pageSize)).
		Offset(uint64((page - 1) * pageSize))
	if status != "" {
		countQ = countQ.Where(sq.Eq{"status": status})
		listQ = listQ.Where(sq.Eq{"status": status})
	}

	sqlStr, args, err := countQ.ToSql()
	if err != nil {
		return nil, 0, err
	}
	var total int
	if err := r.pool.QueryRow(ctx, sqlStr, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	sqlStr, args, err = listQ.ToSql()
	if err != nil {
		return nil, 0, err
	}
	rows, err := r.pool.Query(ctx, sqlStr, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var list []models.Report
	for rows.Next() {
		rep, err := scanReport(rows)
		if err != nil {
			return nil, 0, err
		}
		list = append(list, *rep)
	}
	return list, total, rows.Err()
}

// ListPublished returns all published reports ordered by meeting time
// descending. This is the eligibility set for the playback queue.
func (r *Repository) ListPublished(ctx context.Context) ([]models.Report, error) {
	q := fmt.Sprintf(`SELECT %s FROM reports WHERE status = $1 ORDER BY meeting_time DESC, created_at DESC`, reportColumns)
	rows, err := r.pool.Query(ctx, q, models.ReportStatusPublished)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []models.Report
	for rows.Next() {
		rep, err := scanReport(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *rep)
	}
	return list, rows.Err()
}

// LatestPublished returns the most recently published report.
func (r *Repository) LatestPublished(ctx context.Context) (*models.Report, error) {
	q := fmt.Sprintf(`SELECT %s FROM reports WHERE status = $1 ORDER BY published_at DESC NULLS LAST, created_at DESC LIMIT 1`, reportColumns)
	return scanReport(r.pool.QueryRow(ctx, q, models.ReportStatusPublished))
}

// Update writes all mutable report fields.
func (r *Repository) Update(ctx context.Context, rep *models.Report) error {
	const q = `UPDATE reports SET title = $1, speaker = $2, source_language = $3, meeting_time = $4,
			summary_raw = $5, script_draft = $6, script_final = $7,
			highlights_draft = $8::jsonb, highlights_final = $9::jsonb,
			reflections_final = $10::jsonb, questions_final = $11::jsonb,
			question_persona = $12, auto_play_enabled = $13, updated_at = NOW()
		WHERE id = $14
		RETURNING updated_at`
	err := r.pool.QueryRow(ctx, q,
		rep.Title, rep.Speaker, rep.SourceLanguage, rep.MeetingTime,
		rep.SummaryRaw, rep.ScriptDraft, rep.ScriptFinal,
		jsonArray(rep.HighlightsDraft), jsonArray(rep.HighlightsFinal),
		jsonArray(rep.Reflections), jsonArray(rep.Questions),
		rep.QuestionPersona, rep.AutoPlayEnabled, rep.ID,
	).Scan(&rep.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.ErrNotFound
	}
	return err
}

// SetStatus moves the lifecycle status; publishedAt is set when moving to
// published and cleared when regressing.
func (r *Repository) SetStatus(ctx context.Context, id uuid.UUID, status string, publishedAt *time.Time) error {
	const q = `UPDATE reports SET status = $1, published_at = $2, updated_at = NOW() WHERE id = $3`
	tag, err := r.pool.Exec(ctx, q, status, publishedAt, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// Delete removes a report; variants and reflection audio cascade.
func (r *Repository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM reports WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}
