package service

import (
	"context"
	"time"

	"plutocrat/events"
	"plutocrat/models"
)

// ItemTypeRepository defines the interface for currency definitions
type ItemTypeRepository interface {
	// GetAll returns every defined item type
	GetAll(ctx context.Context) ([]*models.ItemType, error)

	// GetByName retrieves an item type by canonical name, nil if absent
	GetByName(ctx context.Context, name string) (*models.ItemType, error)

	// ResolveName maps a name or alias to the canonical item type name.
	// Returns "" if nothing matches.
	ResolveName(ctx context.Context, name string) (string, error)

	// Create defines a new item type
	Create(ctx context.Context, itemType *models.ItemType) error

	// CreateAlias maps an alternate name to a canonical item type
	CreateAlias(ctx context.Context, alias, name string) error
}

// HistoryQuery selects a page of a user's balance history.
type HistoryQuery struct {
	User             int64
	ItemType         *string    // nil = all currencies
	Before           *time.Time // nil = from the latest entry
	Limit            int
	ExcludeGenerated bool
}

// TransferRepository defines the interface for the append-only transfer
// log and the balance_history projection derived from it
type TransferRepository interface {
	// LockBalance serializes writers of the (user, item type) balance
	// slot for the remainder of the enclosing transaction
	LockBalance(ctx context.Context, user int64, itemType string) error

	// CurrentBalance returns the latest balance snapshot, 0 if none
	CurrentBalance(ctx context.Context, user int64, itemType string) (int64, error)

	// Balances returns the latest snapshot per item type for a user
	Balances(ctx context.Context, user int64) (map[string]int64, error)

	// Insert appends a transfer, assigning its monotonic id
	Insert(ctx context.Context, transfer *models.Transfer) error

	// History returns balance entries for a user, newest first
	History(ctx context.Context, q HistoryQuery) ([]*models.BalanceEntry, error)

	// GeneratedAfter returns the user's generation entries newer than
	// after (and older than q.Before, if set), newest first
	GeneratedAfter(ctx context.Context, q HistoryQuery, after time.Time) ([]*models.BalanceEntry, error)

	// UsersWithHistory returns the distinct users that have any balance
	// history in the given item type
	UsersWithHistory(ctx context.Context, itemType string) ([]int64, error)
}

// MotionRepository defines the interface for motion data access
type MotionRepository interface {
	// Create assigns the next id from the permanent sequence and
	// inserts the motion row
	Create(ctx context.Context, motion *models.Motion) error

	// GetByID retrieves a motion, nil if absent
	GetByID(ctx context.Context, id int64) (*models.Motion, error)

	// List returns all motions, unresolved first, newest first
	List(ctx context.Context) ([]*models.Motion, error)

	// GetExpiredUnresolved returns motions whose voting window closed
	// at or before cutoff and that have not been resolved
	GetExpiredUnresolved(ctx context.Context, cutoff time.Time) ([]*models.Motion, error)

	// MarkResolved finalizes the motion by setting the announcement
	// message id, only if it is still null. Returns whether this
	// caller won the transition.
	MarkResolved(ctx context.Context, id int64, announcementMessageID int64) (bool, error)

	// RecordResultChange stamps last_result_change and raises
	// needs_update after an outcome flip
	RecordResultChange(ctx context.Context, id int64, at time.Time) error

	// ListNeedingUpdate returns motions flagged for a status rebroadcast
	ListNeedingUpdate(ctx context.Context) ([]*models.Motion, error)

	// ClearNeedsUpdate lowers the needs_update flag
	ClearNeedsUpdate(ctx context.Context, id int64) error
}

// MotionVoteRepository defines the interface for vote state access
type MotionVoteRepository interface {
	// LockForVoting serializes all casts on a motion for the remainder
	// of the enclosing transaction, so outcome-flip detection sees
	// every committed vote
	LockForVoting(ctx context.Context, motion int64) error

	// GetForUpdate reads a user's current vote with a row lock, nil if
	// the user has not voted
	GetForUpdate(ctx context.Context, user, motion int64) (*models.MotionVote, error)

	// Upsert replaces the (user, motion) vote row
	Upsert(ctx context.Context, vote *models.MotionVote) error

	// Tally returns the summed stake per direction
	Tally(ctx context.Context, motion int64) (yes int64, no int64, err error)

	// ListByMotion returns all votes on a motion
	ListByMotion(ctx context.Context, motion int64) ([]*models.MotionVote, error)
}

// GenerationControlRepository defines the interface for the singleton
// generation control row
type GenerationControlRepository interface {
	// GetForUpdate reads the control row under an exclusive lock,
	// serializing concurrent generation cycles
	GetForUpdate(ctx context.Context) (*models.GenerationControl, error)

	// SetLastGen records the completion time of a generation cycle
	SetLastGen(ctx context.Context, t time.Time) error
}

// EventPublisher defines the interface for publishing events within a
// unit of work; events are delivered only after commit
type EventPublisher interface {
	Publish(event events.Event)
}

// UnitOfWork represents one atomic set of repository operations
type UnitOfWork interface {
	Begin(ctx context.Context) error
	Commit() error
	Rollback() error

	ItemTypeRepository() ItemTypeRepository
	TransferRepository() TransferRepository
	MotionRepository() MotionRepository
	MotionVoteRepository() MotionVoteRepository
	GenerationControlRepository() GenerationControlRepository
	EventBus() EventPublisher
}

// UnitOfWorkFactory creates units of work
type UnitOfWorkFactory interface {
	Create() UnitOfWork
}

// TransferRequest describes a transfer to be recorded
type TransferRequest struct {
	Kind      models.TransferKind
	ItemType  string
	From      *int64
	To        *int64
	Quantity  int64
	MessageID *int64
	ToMotion  *int64
	VoteCount *int64
	Comment   *string
}

// StatementEntry is one line of the collapsed statement view: either a
// single non-generation ledger entry, or a rollup of the generation
// mints that happened between two non-generation entries.
type StatementEntry struct {
	// Entry is nil for generation rollups
	Entry *models.BalanceEntry

	// GeneratedAmount and Balance describe a rollup: total minted and
	// the balance snapshot after the last mint in the run
	GeneratedAmount int64
	Balance         int64
}

// Statement is a page of the collapsed history view.
type Statement struct {
	Entries []StatementEntry
	HasMore bool
}

// LedgerService defines the interface for ledger operations
type LedgerService interface {
	// RecordTransfer atomically validates, snapshots and appends a
	// transfer
	RecordTransfer(ctx context.Context, req TransferRequest) (*models.Transfer, error)

	// Balance returns a user's current balance, 0 without history
	Balance(ctx context.Context, user int64, itemType string) (int64, error)

	// Balances returns a user's current balance per item type
	Balances(ctx context.Context, user int64) (map[string]int64, error)

	// History returns a page of raw balance entries, newest first
	History(ctx context.Context, q HistoryQuery) ([]*models.BalanceEntry, error)

	// Statement returns a page of history with consecutive generation
	// mints collapsed into synthetic rollup lines
	Statement(ctx context.Context, q HistoryQuery) (*Statement, error)

	// ResolveItemType maps user input to a canonical item type name
	ResolveItemType(ctx context.Context, name string) (string, error)
}

// MotionListFilter selects which motions a listing returns.
type MotionListFilter string

const (
	MotionFilterAll           MotionListFilter = "all"
	MotionFilterPassed        MotionListFilter = "passed"
	MotionFilterFailed        MotionListFilter = "failed"
	MotionFilterFinished      MotionListFilter = "finished"
	MotionFilterPending       MotionListFilter = "pending"
	MotionFilterPendingPassed MotionListFilter = "pending_passed"
)

// VoteResult describes the effect of a cast vote.
type VoteResult struct {
	Motion *models.MotionWithTally

	// NetCharge is the currency movement this cast produced: positive
	// charged the voter, negative refunded
	NetCharge int64

	// NewBalance is the voter's vote-currency balance afterwards
	NewBalance int64
}

// Announcer publishes a motion result to the outside world and returns
// the message reference of the announcement. Provided by the excluded
// presentation layer; the engine only stores the returned reference.
type Announcer interface {
	AnnounceResult(ctx context.Context, motion *models.MotionWithTally) (int64, error)
}

// VotingService defines the interface for the motion lifecycle
type VotingService interface {
	// CreateMotion opens a new motion, charging the creator the
	// configured stake which seeds their initial "for" vote
	CreateMotion(ctx context.Context, text string, isSuper bool, creator int64, commandMessageID, botMessageID int64) (*models.MotionWithTally, error)

	// CastVote replaces the user's vote on an open motion, reconciling
	// the stake delta against their balance as one net transfer
	CastVote(ctx context.Context, user, motionID int64, direction bool, amount int64) (*VoteResult, error)

	// Tally returns the current totals and whether yes is winning
	Tally(ctx context.Context, motionID int64) (yes int64, no int64, isWinning bool, err error)

	// GetMotion returns a motion with its live tally, nil if absent
	GetMotion(ctx context.Context, motionID int64) (*models.MotionWithTally, error)

	// GetMotionByPublicID is GetMotion keyed by checksummed public id
	GetMotionByPublicID(ctx context.Context, publicID string) (*models.MotionWithTally, error)

	// ListMotions returns motions matching the filter, pending first
	ListMotions(ctx context.Context, filter MotionListFilter) ([]*models.MotionWithTally, error)

	// Resolve finalizes a motion past its deadline. Exactly one
	// concurrent caller succeeds; the rest get ErrAlreadyResolved.
	Resolve(ctx context.Context, motionID int64, announcementMessageID int64) (*models.MotionWithTally, error)

	// ResolveDue announces and resolves every motion whose window has
	// closed, returning how many were finalized
	ResolveDue(ctx context.Context, now time.Time) (int, error)

	// MarkUpdateHandled clears a motion's needs_update flag after the
	// presentation layer has rebroadcast its status
	MarkUpdateHandled(ctx context.Context, motionID int64) error
}

// GenerationResult summarizes one generation cycle.
type GenerationResult struct {
	Intervals   int64
	UsersPaid   int
	TotalMinted int64
}

// GenerationService defines the interface for passive income minting
type GenerationService interface {
	// RunGenerationCycle mints for every whole interval elapsed since
	// the last committed run. Safe to call concurrently and after
	// crashes; at most one caller mints for a given interval.
	RunGenerationCycle(ctx context.Context, now time.Time) (*GenerationResult, error)
}
