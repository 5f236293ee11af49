package repository

import (
	"context"
	"fmt"
	"time"

	"plutocrat/database"
	"plutocrat/models"
)

// GenerationControlRepository implements the GenerationControlRepository
// interface over the single-row generation_control table.
type GenerationControlRepository struct {
	q queryable
}

// NewGenerationControlRepository creates a new generation control repository
func NewGenerationControlRepository(db *database.DB) *GenerationControlRepository {
	return &GenerationControlRepository{q: db.Pool}
}

// newGenerationControlRepositoryWithTx creates a new generation control repository with a transaction
func newGenerationControlRepositoryWithTx(tx queryable) *GenerationControlRepository {
	return &GenerationControlRepository{q: tx}
}

// GetForUpdate reads the control row under an exclusive row lock. Every
// generation cycle goes through this read, so concurrent cycles (other
// processes included) queue on the row and observe each other's commits.
func (r *GenerationControlRepository) GetForUpdate(ctx context.Context) (*models.GenerationControl, error) {
	query := `
		SELECT last_gen
		FROM generation_control
		WHERE enforce_single_row
		FOR UPDATE
	`

	var control models.GenerationControl
	if err := r.q.QueryRow(ctx, query).Scan(&control.LastGen); err != nil {
		return nil, fmt.Errorf("failed to get generation control row: %w", err)
	}

	return &control, nil
}

// SetLastGen records the completion time of a generation cycle
func (r *GenerationControlRepository) SetLastGen(ctx context.Context, t time.Time) error {
	query := `
		UPDATE generation_control
		SET last_gen = $1
		WHERE enforce_single_row
	`

	tag, err := r.q.Exec(ctx, query, t)
	if err != nil {
		return fmt.Errorf("failed to update generation control row: %w", err)
	}
	if tag.RowsAffected() != 1 {
		return fmt.Errorf("generation control row missing")
	}

	return nil
}
