package synthesis

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/anchordesk/backend/internal/models"
)

// Repository persists the reflection audio cache.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a reflection audio repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Get returns one cached reflection audio entry.
func (r *Repository) Get(ctx context.Context, reportID uuid.UUID, seq int, languageKey string) (*models.ReflectionAudio, error) {
	const q = `SELECT report_id, seq, language_key, text_hash, audio_key, updated_at
		FROM reflection_audios WHERE report_id = $1 AND seq = $2 AND language_key = $3`
	var a models.ReflectionAudio
	err := r.pool.QueryRow(ctx, q, reportID, seq, languageKey).
		Scan(&a.ReportID, &a.Seq, &a.LanguageKey, &a.TextHash, &a.AudioKey, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		return nil, err
	}
	return &a, nil
}

// ListByLanguage returns the cached entries for one report and language,
// ordered by sequence.
func (r *Repository) ListByLanguage(ctx context.Context, reportID uuid.UUID, languageKey string) ([]models.ReflectionAudio, error) {
	const q = `SELECT report_id, seq, language_key, text_hash, audio_key, updated_at
		FROM reflection_audios WHERE report_id = $1 AND language_key = $2 ORDER BY seq`
	rows, err := r.pool.Query(ctx, q, reportID, languageKey)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []models.ReflectionAudio
	for rows.Next() {
		var a models.ReflectionAudio
		if err := rows.Scan(&a.ReportID, &a.Seq, &a.LanguageKey, &a.TextHash, &a.AudioKey, &a.UpdatedAt); err != nil {
			return nil, err
		}
		list = append(list, a)
	}
	return list, rows.Err()
}

// Upsert writes one cache entry, replacing any stale audio for the slot.
func (r *Repository) Upsert(ctx context.Context, a *models.ReflectionAudio) error {
	const q = `INSERT INTO reflection_audios (report_id, seq, language_key, text_hash, audio_key, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		ON CONFLICT (report_id, seq, language_key) DO UPDATE SET
			text_hash = EXCLUDED.text_hash, audio_key = EXCLUDED.audio_key, updated_at = NOW()
		RETURNING updated_at`
	return r.pool.QueryRow(ctx, q, a.ReportID, a.Seq, a.LanguageKey, a.TextHash, a.AudioKey).Scan(&a.UpdatedAt)
}

// PruneAbove removes cache entries whose sequence no longer exists after
// the reflection list shrank.
func (r *Repository) PruneAbove(ctx context.Context, reportID uuid.UUID, maxSeq int) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM reflection_audios WHERE report_id = $1 AND seq >= $2`, reportID, maxSeq)
	return err
}
