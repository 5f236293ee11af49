package service

import (
	"context"
	"fmt"
	"sort"

	"plutocrat/events"
	"plutocrat/models"

	log "github.com/sirupsen/logrus"
)

type ledgerService struct {
	uowFactory UnitOfWorkFactory
}

// NewLedgerService creates a new ledger service
func NewLedgerService(uowFactory UnitOfWorkFactory) LedgerService {
	return &ledgerService{
		uowFactory: uowFactory,
	}
}

func (s *ledgerService) RecordTransfer(ctx context.Context, req TransferRequest) (*models.Transfer, error) {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback() // No-op if already committed

	transfer, err := recordTransfer(ctx, uow, req)
	if err != nil {
		return nil, err
	}

	if err := uow.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	log.WithFields(log.Fields{
		"transferID": transfer.ID,
		"kind":       transfer.Kind,
		"itemType":   transfer.ItemType,
		"quantity":   transfer.Quantity,
	}).Info("Recorded transfer")

	return transfer, nil
}

// recordTransfer validates, snapshots and appends one transfer inside
// an already-begun unit of work. Every currency movement in the system
// (direct gives, vote stakes, fabrications, generation) funnels through
// here so the snapshot chain has a single writer path.
func recordTransfer(ctx context.Context, uow UnitOfWork, req TransferRequest) (*models.Transfer, error) {
	if err := validateTransferShape(req); err != nil {
		return nil, err
	}

	itemType, err := uow.ItemTypeRepository().GetByName(ctx, req.ItemType)
	if err != nil {
		return nil, fmt.Errorf("failed to look up item type: %w", err)
	}
	if itemType == nil {
		return nil, validationErrorf("unknown currency %q", req.ItemType)
	}

	// Serialize every balance slot this transfer touches. Lock order is
	// ascending user id so concurrent transfers cannot deadlock.
	for _, user := range lockOrder(req.From, req.To) {
		if err := uow.TransferRepository().LockBalance(ctx, user, req.ItemType); err != nil {
			return nil, err
		}
	}

	transfer := &models.Transfer{
		Kind:      req.Kind,
		ItemType:  req.ItemType,
		FromUser:  req.From,
		ToUser:    req.To,
		Quantity:  req.Quantity,
		MessageID: req.MessageID,
		ToMotion:  req.ToMotion,
		VoteCount: req.VoteCount,
		Comment:   req.Comment,
	}

	if req.From != nil {
		balance, err := uow.TransferRepository().CurrentBalance(ctx, *req.From, req.ItemType)
		if err != nil {
			return nil, fmt.Errorf("failed to read source balance: %w", err)
		}
		if balance < req.Quantity {
			return nil, &InsufficientBalanceError{
				User:     *req.From,
				ItemType: req.ItemType,
				Have:     balance,
				Need:     req.Quantity,
			}
		}
		newBalance := balance - req.Quantity
		transfer.FromBalance = &newBalance
	}

	if req.To != nil {
		balance, err := uow.TransferRepository().CurrentBalance(ctx, *req.To, req.ItemType)
		if err != nil {
			return nil, fmt.Errorf("failed to read destination balance: %w", err)
		}
		newBalance := balance + req.Quantity
		transfer.ToBalance = &newBalance
	}

	if err := uow.TransferRepository().Insert(ctx, transfer); err != nil {
		return nil, err
	}

	if transfer.FromBalance != nil {
		uow.EventBus().Publish(events.BalanceChangeEvent{
			UserID:     *req.From,
			ItemType:   req.ItemType,
			NewBalance: *transfer.FromBalance,
			Delta:      -req.Quantity,
			Kind:       req.Kind,
			TransferID: transfer.ID,
		})
	}
	if transfer.ToBalance != nil {
		uow.EventBus().Publish(events.BalanceChangeEvent{
			UserID:     *req.To,
			ItemType:   req.ItemType,
			NewBalance: *transfer.ToBalance,
			Delta:      req.Quantity,
			Kind:       req.Kind,
			TransferID: transfer.ID,
		})
	}

	return transfer, nil
}

// validateTransferShape enforces which sides each transfer kind may
// carry. Minting kinds have no source; kinds with no destination burn.
func validateTransferShape(req TransferRequest) error {
	if req.Quantity <= 0 {
		return validationErrorf("transfer quantity must be positive, got %d", req.Quantity)
	}
	if !req.Kind.Valid() {
		return validationErrorf("unknown transfer kind %q", req.Kind)
	}
	if req.From != nil && req.To != nil && *req.From == *req.To {
		return validationErrorf("cannot transfer to yourself")
	}

	switch req.Kind {
	case models.TransferKindGive, models.TransferKindAdminGive:
		if req.From == nil || req.To == nil {
			return validationErrorf("%s requires both a source and a destination", req.Kind)
		}
	case models.TransferKindAdminFabricate, models.TransferKindCommandFabricate, models.TransferKindGenerated:
		if req.From != nil {
			return validationErrorf("%s mints currency and cannot have a source", req.Kind)
		}
		if req.To == nil {
			return validationErrorf("%s requires a destination", req.Kind)
		}
	case models.TransferKindMotionCreate:
		if req.From == nil || req.To != nil {
			return validationErrorf("%s burns the creator's stake: source only", req.Kind)
		}
		if req.ToMotion == nil {
			return validationErrorf("%s requires a motion reference", req.Kind)
		}
	case models.TransferKindMotionVote:
		if (req.From == nil) == (req.To == nil) {
			return validationErrorf("%s moves stake one way: exactly one side", req.Kind)
		}
		if req.ToMotion == nil || req.VoteCount == nil {
			return validationErrorf("%s requires a motion reference and vote count", req.Kind)
		}
	}

	return nil
}

func lockOrder(users ...*int64) []int64 {
	var order []int64
	for _, user := range users {
		if user == nil {
			continue
		}
		order = append(order, *user)
	}
	sort.Slice(order, func(i, j int) bool { return order[i] < order[j] })
	// Drop duplicates; locking the same slot twice is harmless but noisy
	out := order[:0]
	for i, user := range order {
		if i == 0 || user != order[i-1] {
			out = append(out, user)
		}
	}
	return out
}

func (s *ledgerService) Balance(ctx context.Context, user int64, itemType string) (int64, error) {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	return uow.TransferRepository().CurrentBalance(ctx, user, itemType)
}

func (s *ledgerService) Balances(ctx context.Context, user int64) (map[string]int64, error) {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	return uow.TransferRepository().Balances(ctx, user)
}

func (s *ledgerService) History(ctx context.Context, q HistoryQuery) ([]*models.BalanceEntry, error) {
	if q.Limit <= 0 {
		return nil, validationErrorf("history limit must be positive, got %d", q.Limit)
	}

	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	return uow.TransferRepository().History(ctx, q)
}

func (s *ledgerService) Statement(ctx context.Context, q HistoryQuery) (*Statement, error) {
	if q.Limit <= 0 {
		return nil, validationErrorf("statement limit must be positive, got %d", q.Limit)
	}

	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	// Fetch one extra non-generation entry to detect a further page.
	probe := q
	probe.ExcludeGenerated = true
	probe.Limit = q.Limit + 1
	entries, err := uow.TransferRepository().History(ctx, probe)
	if err != nil {
		return nil, err
	}

	hasMore := len(entries) == q.Limit+1

	// Generation entries are only fetched back to the oldest fetched
	// non-generation entry; anything older belongs to the next page.
	var generated []*models.BalanceEntry
	if len(entries) > 0 {
		oldest := entries[len(entries)-1]
		generated, err = uow.TransferRepository().GeneratedAfter(ctx, q, oldest.HappenedAt)
		if err != nil {
			return nil, err
		}
	}

	shown := entries
	if hasMore {
		shown = entries[:len(entries)-1]
	}

	return &Statement{
		Entries: collapseGenerated(shown, generated),
		HasMore: hasMore,
	}, nil
}

// collapseGenerated interleaves generation entries into the
// non-generation sequence, rolling each run of consecutive generation
// mints into one synthetic entry whose amount is the run's sum and
// whose balance is the snapshot after the run's newest mint. Both
// inputs are newest first; the result is newest first.
func collapseGenerated(entries, generated []*models.BalanceEntry) []StatementEntry {
	var out []StatementEntry

	// Walk oldest to newest, consuming generation entries (oldest at
	// the tail) that precede each non-generation entry.
	for i := len(entries) - 1; i >= 0; i-- {
		entry := entries[i]
		var amount, balance int64
		for len(generated) > 0 && generated[len(generated)-1].HappenedAt.Before(entry.HappenedAt) {
			g := generated[len(generated)-1]
			generated = generated[:len(generated)-1]
			amount += g.Quantity
			balance = g.Balance
		}
		if amount > 0 {
			out = append(out, StatementEntry{GeneratedAmount: amount, Balance: balance})
		}
		out = append(out, StatementEntry{Entry: entry})
	}

	// Whatever remains is newer than every non-generation entry.
	var amount, balance int64
	for len(generated) > 0 {
		g := generated[len(generated)-1]
		generated = generated[:len(generated)-1]
		amount += g.Quantity
		balance = g.Balance
	}
	if amount > 0 {
		out = append(out, StatementEntry{GeneratedAmount: amount, Balance: balance})
	}

	// Back to newest first.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}

	return out
}

func (s *ledgerService) ResolveItemType(ctx context.Context, name string) (string, error) {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	canonical, err := uow.ItemTypeRepository().ResolveName(ctx, name)
	if err != nil {
		return "", err
	}
	if canonical == "" {
		return "", validationErrorf("unknown currency %q", name)
	}

	return canonical, nil
}
