package repository

import (
	"context"
	"fmt"

	"plutocrat/database"
	"plutocrat/events"
	"plutocrat/service"

	"github.com/jackc/pgx/v5"
)

// unitOfWork implements the UnitOfWork interface
type unitOfWork struct {
	db               *database.DB
	tx               pgx.Tx
	ctx              context.Context
	transactionalBus *events.TransactionalBus
	itemTypeRepo     service.ItemTypeRepository
	transferRepo     service.TransferRepository
	motionRepo       service.MotionRepository
	motionVoteRepo   service.MotionVoteRepository
	genControlRepo   service.GenerationControlRepository
}

type unitOfWorkFactory struct {
	db       *database.DB
	eventBus *events.Bus
}

// NewUnitOfWorkFactory creates a new UnitOfWork factory
func NewUnitOfWorkFactory(db *database.DB, eventBus *events.Bus) service.UnitOfWorkFactory {
	return &unitOfWorkFactory{
		db:       db,
		eventBus: eventBus,
	}
}

func (f *unitOfWorkFactory) Create() service.UnitOfWork {
	return &unitOfWork{
		db:               f.db,
		transactionalBus: events.NewTransactionalBus(f.eventBus),
	}
}

// Begin starts a new transaction
func (u *unitOfWork) Begin(ctx context.Context) error {
	if u.tx != nil {
		return fmt.Errorf("transaction already started")
	}

	tx, err := u.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	u.tx = tx
	u.ctx = ctx

	// Create repositories bound to the transaction
	u.itemTypeRepo = newItemTypeRepositoryWithTx(tx)
	u.transferRepo = newTransferRepositoryWithTx(tx)
	u.motionRepo = newMotionRepositoryWithTx(tx)
	u.motionVoteRepo = newMotionVoteRepositoryWithTx(tx)
	u.genControlRepo = newGenerationControlRepositoryWithTx(tx)

	return nil
}

// Commit commits the transaction and flushes pending events
func (u *unitOfWork) Commit() error {
	if u.tx == nil {
		return fmt.Errorf("no transaction to commit")
	}

	if err := u.tx.Commit(u.ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	u.tx = nil

	if u.transactionalBus != nil {
		u.transactionalBus.Flush(u.ctx)
	}

	return nil
}

// Rollback rolls back the transaction and discards pending events
func (u *unitOfWork) Rollback() error {
	if u.tx == nil {
		return nil // Nothing to rollback
	}

	err := u.tx.Rollback(u.ctx)
	if err != nil && err != pgx.ErrTxClosed {
		return fmt.Errorf("failed to rollback transaction: %w", err)
	}

	u.tx = nil

	if u.transactionalBus != nil {
		u.transactionalBus.Discard()
	}

	return nil
}

// ItemTypeRepository returns the item type repository for this unit of work
func (u *unitOfWork) ItemTypeRepository() service.ItemTypeRepository {
	if u.itemTypeRepo == nil {
		panic("unit of work not started - call Begin() first")
	}
	return u.itemTypeRepo
}

// TransferRepository returns the transfer repository for this unit of work
func (u *unitOfWork) TransferRepository() service.TransferRepository {
	if u.transferRepo == nil {
		panic("unit of work not started - call Begin() first")
	}
	return u.transferRepo
}

// MotionRepository returns the motion repository for this unit of work
func (u *unitOfWork) MotionRepository() service.MotionRepository {
	if u.motionRepo == nil {
		panic("unit of work not started - call Begin() first")
	}
	return u.motionRepo
}

// MotionVoteRepository returns the motion vote repository for this unit of work
func (u *unitOfWork) MotionVoteRepository() service.MotionVoteRepository {
	if u.motionVoteRepo == nil {
		panic("unit of work not started - call Begin() first")
	}
	return u.motionVoteRepo
}

// GenerationControlRepository returns the generation control repository for this unit of work
func (u *unitOfWork) GenerationControlRepository() service.GenerationControlRepository {
	if u.genControlRepo == nil {
		panic("unit of work not started - call Begin() first")
	}
	return u.genControlRepo
}

// EventBus returns the transactional event bus for this unit of work
func (u *unitOfWork) EventBus() service.EventPublisher {
	if u.transactionalBus == nil {
		panic("unit of work not started - call Begin() first")
	}
	return u.transactionalBus
}
