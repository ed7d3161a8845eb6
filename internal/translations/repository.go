package translations

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/anchordesk/backend/internal/models"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

const variantColumns = `report_id, language_key, title, script_final, highlights_final,
	reflections_final, questions_final, question_persona, render_mode, status, error,
	reviewed, reviewed_at, source_hash, audio_ready, audio_key, audio_text_hash, updated_at`

// Repository persists language variants.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a language variant repository.
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

func scanVariant(row pgx.Row) (*models.LanguageVariant, error) {
	var (
		v                                  models.LanguageVariant
		highlights, reflections, questions []byte
	)
	err := row.Scan(&v.ReportID, &v.LanguageKey, &v.Title, &v.ScriptFinal, &highlights,
		&reflections, &questions, &v.QuestionPersona, &v.RenderMode, &v.Status, &v.Error,
		&v.Reviewed, &v.ReviewedAt, &v.SourceHash, &v.AudioReady, &v.AudioKey, &v.AudioTextHash, &v.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		return nil, err
	}
	_ = json.Unmarshal(highlights, &v.HighlightsFinal)
	_ = json.Unmarshal(reflections, &v.Reflections)
	_ = json.Unmarshal(questions, &v.Questions)
	return &v, nil
}

// Get returns the variant for one (report, language) pair.
// models.ErrNotFound means the pair has never been translated.
func (r *Repository) Get(ctx context.Context, reportID uuid.UUID, languageKey string) (*models.LanguageVariant, error) {
	q := fmt.Sprintf(`SELECT %s FROM language_variants WHERE report_id = $1 AND language_key = $2`, variantColumns)
	return scanVariant(r.pool.QueryRow(ctx, q, reportID, languageKey))
}

// ListByReport returns all stored variants for a report.
func (r *Repository) ListByReport(ctx context.Context, reportID uuid.UUID) ([]models.LanguageVariant, error) {
	q := fmt.Sprintf(`SELECT %s FROM language_variants WHERE report_id = $1 ORDER BY language_key`, variantColumns)
	rows, err := r.pool.Query(ctx, q, reportID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []models.LanguageVariant
	for rows.Next() {
		v, err := scanVariant(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *v)
	}
	return list, rows.Err()
}

// Upsert writes the full variant row, creating it on first translation.
func (r *Repository) Upsert(ctx context.Context, v *models.LanguageVariant) error {
	const q = `INSERT INTO language_variants (report_id, language_key, title, script_final,
			highlights_final, reflections_final, questions_final, question_persona, render_mode,
			status, error, reviewed, reviewed_at, source_hash, audio_ready, audio_key, audio_text_hash, updated_at)
		VALUES ($1, $2, $3, $4, $5::jsonb, $6::jsonb, $7::jsonb, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, NOW())
		ON CONFLICT (report_id, language_key) DO UPDATE SET
			title = EXCLUDED.title,
			script_final = EXCLUDED.script_final,
			highlights_final = EXCLUDED.highlights_final,
			reflections_final = EXCLUDED.reflections_final,
			questions_final = EXCLUDED.questions_final,
			question_persona = EXCLUDED.question_persona,
			render_mode = EXCLUDED.render_mode,
			status = EXCLUDED.status,
			error = EXCLUDED.error,
			reviewed = EXCLUDED.reviewed,
			reviewed_at = EXCLUDED.reviewed_at,
			source_hash = EXCLUDED.source_hash,
			audio_ready = EXCLUDED.audio_ready,
			audio_key = EXCLUDED.audio_key,
			audio_text_hash = EXCLUDED.audio_text_hash,
			updated_at = NOW()
		RETURNING updated_at`
	return r.pool.QueryRow(ctx, q,
		v.ReportID, v.LanguageKey, v.Title, v.ScriptFinal,
		jsonArray(v.HighlightsFinal), jsonArray(v.Reflections), jsonArray(v.Questions),
		v.QuestionPersona, v.RenderMode, v.Status, v.Error, v.Reviewed, v.ReviewedAt,
		v.SourceHash, v.AudioReady, v.AudioKey, v.AudioTextHash,
	).Scan(&v.UpdatedAt)
}

// SetStatus records a status change on an existing row (e.g. a failure kept
// alongside stale text). Missing rows are created as skeletons so the
// failure is visible after a restart.
func (r *Repository) SetStatus(ctx context.Context, reportID uuid.UUID, languageKey, status, errMsg string) error {
	const q = `INSERT INTO language_variants (report_id, language_key, render_mode, status, error, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		ON CONFLICT (report_id, language_key) DO UPDATE SET
			status = EXCLUDED.status, error = EXCLUDED.error, updated_at = NOW()`
	_, err := r.pool.Exec(ctx, q, reportID, languageKey, models.ResolveRenderMode(languageKey), status, errMsg)
	return err
}

// UpdateAudio records synthesized audio bookkeeping for a pair. Dynamic SET
// list so callers can set or clear independently.
func (r *Repository) UpdateAudio(ctx context.Context, reportID uuid.UUID, languageKey, audioKey, audioTextHash string, ready bool) error {
	update := psql.Update("language_variants").
		Set("audio_ready", ready).
		Set("audio_key", audioKey).
		Set("audio_text_hash", audioTextHash).
		Set("updated_at", sq.Expr("NOW()")).
		Where(sq.Eq{"report_id": reportID, "language_key": languageKey})
	if ready {
		update = update.Set("render_mode", models.RenderModeAudio)
	}
	sqlStr, args, err := update.ToSql()
	if err != nil {
		return err
	}
	tag, err := r.pool.Exec(ctx, sqlStr, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}
