package repository

import (
	"context"
	"fmt"
	"time"

	"plutocrat/database"
	"plutocrat/models"
	"plutocrat/service"

	"github.com/jackc/pgx/v5"
)

// TransferRepository implements the TransferRepository interface over
// the append-only transfers table and the balance_history view.
type TransferRepository struct {
	q queryable
}

// NewTransferRepository creates a new transfer repository
func NewTransferRepository(db *database.DB) *TransferRepository {
	return &TransferRepository{q: db.Pool}
}

// newTransferRepositoryWithTx creates a new transfer repository with a transaction
func newTransferRepositoryWithTx(tx queryable) *TransferRepository {
	return &TransferRepository{q: tx}
}

// LockBalance takes the transaction-scoped advisory lock for the
// (user, item type) balance slot. Every writer of that slot takes this
// lock before reading the latest snapshot, so snapshot computation
// never sees a stale balance.
func (r *TransferRepository) LockBalance(ctx context.Context, user int64, itemType string) error {
	_, err := r.q.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, $2))`, itemType, user)
	if err != nil {
		return fmt.Errorf("failed to lock balance slot for user %d %s: %w", user, itemType, err)
	}
	return nil
}

// CurrentBalance returns the latest balance snapshot for a user and
// item type, 0 if the user has no history. Snapshot order is transfer
// id, never happened_at: ids are assigned while the slot's advisory
// lock is held, so id order is commit order per slot, while happened_at
// is the transaction start time and can run backwards under contention.
func (r *TransferRepository) CurrentBalance(ctx context.Context, user int64, itemType string) (int64, error) {
	query := `
		SELECT balance
		FROM balance_history
		WHERE "user" = $1 AND item_type = $2
		ORDER BY transfer_id DESC
		LIMIT 1
	`

	var balance int64
	err := r.q.QueryRow(ctx, query, user, itemType).Scan(&balance)
	if err == pgx.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get balance for user %d %s: %w", user, itemType, err)
	}

	return balance, nil
}

// Balances returns the latest snapshot per item type for a user
func (r *TransferRepository) Balances(ctx context.Context, user int64) (map[string]int64, error) {
	query := `
		SELECT DISTINCT ON (item_type) item_type, balance
		FROM balance_history
		WHERE "user" = $1
		ORDER BY item_type, transfer_id DESC
	`

	rows, err := r.q.Query(ctx, query, user)
	if err != nil {
		return nil, fmt.Errorf("failed to get balances for user %d: %w", user, err)
	}
	defer rows.Close()

	balances := make(map[string]int64)
	for rows.Next() {
		var itemType string
		var balance int64
		if err := rows.Scan(&itemType, &balance); err != nil {
			return nil, fmt.Errorf("failed to scan balance: %w", err)
		}
		balances[itemType] = balance
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate balances: %w", err)
	}

	return balances, nil
}

// Insert appends a transfer and assigns its monotonic id
func (r *TransferRepository) Insert(ctx context.Context, transfer *models.Transfer) error {
	query := `
		INSERT INTO transfers
		(transfer_kind, item_type, from_user, to_user, quantity, from_balance, to_balance,
		 message_id, to_motion, vote_count, comment)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id, happened_at
	`

	err := r.q.QueryRow(ctx, query,
		transfer.Kind,
		transfer.ItemType,
		transfer.FromUser,
		transfer.ToUser,
		transfer.Quantity,
		transfer.FromBalance,
		transfer.ToBalance,
		transfer.MessageID,
		transfer.ToMotion,
		transfer.VoteCount,
		transfer.Comment,
	).Scan(&transfer.ID, &transfer.HappenedAt)

	if err != nil {
		return fmt.Errorf("failed to insert transfer: %w", err)
	}

	return nil
}

const balanceEntryColumns = `
	transfer_id, "user", item_type, balance, quantity, sign, happened_at,
	transfer_kind, other_party, to_motion, vote_count, message_id, comment
`

// History returns balance entries for a user, newest first
func (r *TransferRepository) History(ctx context.Context, q service.HistoryQuery) ([]*models.BalanceEntry, error) {
	query := `
		SELECT ` + balanceEntryColumns + `
		FROM balance_history
		WHERE "user" = $1
		  AND ($2::text IS NULL OR item_type = $2)
		  AND ($3::timestamptz IS NULL OR happened_at < $3)
		  AND (NOT $4 OR transfer_kind <> 'generated')
		ORDER BY happened_at DESC, transfer_id DESC
		LIMIT $5
	`

	rows, err := r.q.Query(ctx, query, q.User, q.ItemType, q.Before, q.ExcludeGenerated, q.Limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get history for user %d: %w", q.User, err)
	}
	defer rows.Close()

	return scanBalanceEntries(rows)
}

// GeneratedAfter returns the user's generation entries newer than after,
// newest first
func (r *TransferRepository) GeneratedAfter(ctx context.Context, q service.HistoryQuery, after time.Time) ([]*models.BalanceEntry, error) {
	query := `
		SELECT ` + balanceEntryColumns + `
		FROM balance_history
		WHERE "user" = $1
		  AND ($2::text IS NULL OR item_type = $2)
		  AND ($3::timestamptz IS NULL OR happened_at < $3)
		  AND happened_at > $4
		  AND transfer_kind = 'generated'
		ORDER BY happened_at DESC, transfer_id DESC
	`

	rows, err := r.q.Query(ctx, query, q.User, q.ItemType, q.Before, after)
	if err != nil {
		return nil, fmt.Errorf("failed to get generation entries for user %d: %w", q.User, err)
	}
	defer rows.Close()

	return scanBalanceEntries(rows)
}

// UsersWithHistory returns the distinct users with any balance history
// in the given item type
func (r *TransferRepository) UsersWithHistory(ctx context.Context, itemType string) ([]int64, error) {
	query := `
		SELECT DISTINCT "user"
		FROM balance_history
		WHERE item_type = $1
		ORDER BY "user"
	`

	rows, err := r.q.Query(ctx, query, itemType)
	if err != nil {
		return nil, fmt.Errorf("failed to get users with %s history: %w", itemType, err)
	}
	defer rows.Close()

	var users []int64
	for rows.Next() {
		var user int64
		if err := rows.Scan(&user); err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, user)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate users: %w", err)
	}

	return users, nil
}

func scanBalanceEntries(rows pgx.Rows) ([]*models.BalanceEntry, error) {
	var entries []*models.BalanceEntry
	for rows.Next() {
		var e models.BalanceEntry
		err := rows.Scan(
			&e.TransferID,
			&e.User,
			&e.ItemType,
			&e.Balance,
			&e.Quantity,
			&e.Sign,
			&e.HappenedAt,
			&e.Kind,
			&e.OtherParty,
			&e.ToMotion,
			&e.VoteCount,
			&e.MessageID,
			&e.Comment,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan balance entry: %w", err)
		}
		entries = append(entries, &e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate balance entries: %w", err)
	}

	return entries, nil
}
