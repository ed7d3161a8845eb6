package playback

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/anchordesk/backend/internal/models"
)

// Repository persists the playback mode singleton row.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a playback mode repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Get reads the current playback mode.
func (r *Repository) Get(ctx context.Context) (*models.PlaybackMode, error) {
	const q = `SELECT mode, carousel_scope, selected_report_id, updated_at FROM playback_modes WHERE id = 1`
	var m models.PlaybackMode
	err := r.pool.QueryRow(ctx, q).Scan(&m.Mode, &m.CarouselScope, &m.SelectedReportID, &m.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		return nil, err
	}
	return &m, nil
}

// Save overwrites the singleton row. Last write wins.
func (r *Repository) Save(ctx context.Context, m *models.PlaybackMode) error {
	const q = `INSERT INTO playback_modes (id, mode, carousel_scope, selected_report_id, updated_at)
		VALUES (1, $1, $2, $3, NOW())
		ON CONFLICT (id) DO UPDATE SET
			mode = EXCLUDED.mode,
			carousel_scope = EXCLUDED.carousel_scope,
			selected_report_id = EXCLUDED.selected_report_id,
			updated_at = NOW()
		RETURNING updated_at`
	return r.pool.QueryRow(ctx, q, m.Mode, m.CarouselScope, m.SelectedReportID).Scan(&m.UpdatedAt)
}
