package repository

import (
	"context"
	"fmt"
	"time"

	"plutocrat/database"
	"plutocrat/models"

	"github.com/jackc/pgx/v5"
)

// MotionRepository implements the MotionRepository interface
type MotionRepository struct {
	q queryable
}

// NewMotionRepository creates a new motion repository
func NewMotionRepository(db *database.DB) *MotionRepository {
	return &MotionRepository{q: db.Pool}
}

// newMotionRepositoryWithTx creates a new motion repository with a transaction
func newMotionRepositoryWithTx(tx queryable) *MotionRepository {
	return &MotionRepository{q: tx}
}

const motionColumns = `
	id, command_message_id, bot_message_id, motion_text, motioned_at,
	last_result_change, is_super, announcement_message_id, needs_update, motioned_by
`

// Create assigns the next id from the permanent motion_ids sequence and
// inserts the motion row. The sequence row is never deleted, so ids are
// never reused.
func (r *MotionRepository) Create(ctx context.Context, motion *models.Motion) error {
	var id int64
	err := r.q.QueryRow(ctx, `INSERT INTO motion_ids DEFAULT VALUES RETURNING id`).Scan(&id)
	if err != nil {
		return fmt.Errorf("failed to allocate motion id: %w", err)
	}

	query := `
		INSERT INTO motions
		(id, command_message_id, bot_message_id, motion_text, is_super, needs_update, motioned_by)
		VALUES ($1, $2, $3, $4, $5, TRUE, $6)
		RETURNING motioned_at, last_result_change
	`

	err = r.q.QueryRow(ctx, query,
		id,
		motion.CommandMessageID,
		motion.BotMessageID,
		motion.Text,
		motion.IsSuper,
		motion.MotionedBy,
	).Scan(&motion.MotionedAt, &motion.LastResultChange)

	if err != nil {
		return fmt.Errorf("failed to insert motion: %w", err)
	}

	motion.ID = id
	motion.NeedsUpdate = true

	return nil
}

// GetByID retrieves a motion by id
func (r *MotionRepository) GetByID(ctx context.Context, id int64) (*models.Motion, error) {
	query := `SELECT ` + motionColumns + ` FROM motions WHERE id = $1`

	motion, err := scanMotion(r.q.QueryRow(ctx, query, id))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get motion %d: %w", id, err)
	}

	return motion, nil
}

// List returns all motions, unresolved first, newest first
func (r *MotionRepository) List(ctx context.Context) ([]*models.Motion, error) {
	query := `
		SELECT ` + motionColumns + `
		FROM motions
		ORDER BY (announcement_message_id IS NULL) DESC, id DESC
	`

	rows, err := r.q.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list motions: %w", err)
	}
	defer rows.Close()

	return scanMotions(rows)
}

// GetExpiredUnresolved returns motions whose voting window closed at or
// before cutoff and that have not been resolved. The cutoff is the
// latest creation time that is already past its window.
func (r *MotionRepository) GetExpiredUnresolved(ctx context.Context, cutoff time.Time) ([]*models.Motion, error) {
	query := `
		SELECT ` + motionColumns + `
		FROM motions
		WHERE announcement_message_id IS NULL AND motioned_at <= $1
		ORDER BY id
	`

	rows, err := r.q.Query(ctx, query, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to get expired motions: %w", err)
	}
	defer rows.Close()

	return scanMotions(rows)
}

// MarkResolved performs the one-shot null-to-non-null transition on
// announcement_message_id. Exactly one concurrent caller sees true.
func (r *MotionRepository) MarkResolved(ctx context.Context, id int64, announcementMessageID int64) (bool, error) {
	query := `
		UPDATE motions
		SET announcement_message_id = $2, needs_update = FALSE
		WHERE id = $1 AND announcement_message_id IS NULL
	`

	tag, err := r.q.Exec(ctx, query, id, announcementMessageID)
	if err != nil {
		return false, fmt.Errorf("failed to mark motion %d resolved: %w", id, err)
	}

	return tag.RowsAffected() == 1, nil
}

// RecordResultChange stamps last_result_change and raises needs_update
func (r *MotionRepository) RecordResultChange(ctx context.Context, id int64, at time.Time) error {
	query := `
		UPDATE motions
		SET last_result_change = $2, needs_update = TRUE
		WHERE id = $1
	`

	_, err := r.q.Exec(ctx, query, id, at)
	if err != nil {
		return fmt.Errorf("failed to record result change for motion %d: %w", id, err)
	}

	return nil
}

// ListNeedingUpdate returns motions flagged for a status rebroadcast
func (r *MotionRepository) ListNeedingUpdate(ctx context.Context) ([]*models.Motion, error) {
	query := `
		SELECT ` + motionColumns + `
		FROM motions
		WHERE needs_update
		ORDER BY id
	`

	rows, err := r.q.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list motions needing update: %w", err)
	}
	defer rows.Close()

	return scanMotions(rows)
}

// ClearNeedsUpdate lowers the needs_update flag
func (r *MotionRepository) ClearNeedsUpdate(ctx context.Context, id int64) error {
	_, err := r.q.Exec(ctx, `UPDATE motions SET needs_update = FALSE WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to clear needs_update for motion %d: %w", id, err)
	}

	return nil
}

func scanMotion(row pgx.Row) (*models.Motion, error) {
	var m models.Motion
	err := row.Scan(
		&m.ID,
		&m.CommandMessageID,
		&m.BotMessageID,
		&m.Text,
		&m.MotionedAt,
		&m.LastResultChange,
		&m.IsSuper,
		&m.AnnouncementMessageID,
		&m.NeedsUpdate,
		&m.MotionedBy,
	)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func scanMotions(rows pgx.Rows) ([]*models.Motion, error) {
	var motions []*models.Motion
	for rows.Next() {
		motion, err := scanMotion(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan motion: %w", err)
		}
		motions = append(motions, motion)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate motions: %w", err)
	}

	return motions, nil
}
