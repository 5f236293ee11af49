package repository

import (
	"context"
	"fmt"

	"plutocrat/database"
	"plutocrat/models"

	"github.com/jackc/pgx/v5"
)

// MotionVoteRepository implements the MotionVoteRepository interface
type MotionVoteRepository struct {
	q queryable
}

// NewMotionVoteRepository creates a new motion vote repository
func NewMotionVoteRepository(db *database.DB) *MotionVoteRepository {
	return &MotionVoteRepository{q: db.Pool}
}

// newMotionVoteRepositoryWithTx creates a new motion vote repository with a transaction
func newMotionVoteRepositoryWithTx(tx queryable) *MotionVoteRepository {
	return &MotionVoteRepository{q: tx}
}

// LockForVoting takes the transaction-scoped advisory lock for a
// motion's vote state. Row locks only serialize re-votes by the same
// user; concurrent casts by different users touch different rows and
// could each tally a before state missing the other's vote, so every
// cast locks the motion first.
func (r *MotionVoteRepository) LockForVoting(ctx context.Context, motion int64) error {
	_, err := r.q.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended('motion_votes', $1))`, motion)
	if err != nil {
		return fmt.Errorf("failed to lock motion %d for voting: %w", motion, err)
	}
	return nil
}

// GetForUpdate reads a user's current vote with a row lock so the
// re-vote reconciliation cannot race another cast by the same user
func (r *MotionVoteRepository) GetForUpdate(ctx context.Context, user, motion int64) (*models.MotionVote, error) {
	query := `
		SELECT "user", motion, direction, amount
		FROM motion_votes
		WHERE "user" = $1 AND motion = $2
		FOR UPDATE
	`

	var vote models.MotionVote
	err := r.q.QueryRow(ctx, query, user, motion).Scan(
		&vote.User,
		&vote.Motion,
		&vote.Direction,
		&vote.Amount,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get vote for user %d on motion %d: %w", user, motion, err)
	}

	return &vote, nil
}

// Upsert replaces the (user, motion) vote row
func (r *MotionVoteRepository) Upsert(ctx context.Context, vote *models.MotionVote) error {
	query := `
		INSERT INTO motion_votes ("user", motion, direction, amount)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT ("user", motion)
		DO UPDATE SET
			direction = EXCLUDED.direction,
			amount = EXCLUDED.amount
	`

	_, err := r.q.Exec(ctx, query, vote.User, vote.Motion, vote.Direction, vote.Amount)
	if err != nil {
		return fmt.Errorf("failed to upsert vote for user %d on motion %d: %w", vote.User, vote.Motion, err)
	}

	return nil
}

// Tally returns the summed stake per direction
func (r *MotionVoteRepository) Tally(ctx context.Context, motion int64) (int64, int64, error) {
	query := `
		SELECT
			COALESCE(SUM(amount) FILTER (WHERE direction), 0),
			COALESCE(SUM(amount) FILTER (WHERE NOT direction), 0)
		FROM motion_votes
		WHERE motion = $1
	`

	var yes, no int64
	err := r.q.QueryRow(ctx, query, motion).Scan(&yes, &no)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to tally motion %d: %w", motion, err)
	}

	return yes, no, nil
}

// ListByMotion returns all votes on a motion
func (r *MotionVoteRepository) ListByMotion(ctx context.Context, motion int64) ([]*models.MotionVote, error) {
	query := `
		SELECT "user", motion, direction, amount
		FROM motion_votes
		WHERE motion = $1
		ORDER BY amount DESC, "user"
	`

	rows, err := r.q.Query(ctx, query, motion)
	if err != nil {
		return nil, fmt.Errorf("failed to list votes for motion %d: %w", motion, err)
	}
	defer rows.Close()

	var votes []*models.MotionVote
	for rows.Next() {
		var vote models.MotionVote
		if err := rows.Scan(&vote.User, &vote.Motion, &vote.Direction, &vote.Amount); err != nil {
			return nil, fmt.Errorf("failed to scan vote: %w", err)
		}
		votes = append(votes, &vote)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate votes: %w", err)
	}

	return votes, nil
}
