package service

import (
	"context"
	"sync"
	"time"

	"plutocrat/events"
	"plutocrat/models"

	"github.com/stretchr/testify/mock"
)

// MockItemTypeRepository is a mock implementation of ItemTypeRepository
type MockItemTypeRepository struct {
	mock.Mock
}

func (m *MockItemTypeRepository) GetAll(ctx context.Context) ([]*models.ItemType, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.ItemType), args.Error(1)
}

func (m *MockItemTypeRepository) GetByName(ctx context.Context, name string) (*models.ItemType, error) {
	args := m.Called(ctx, name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ItemType), args.Error(1)
}

func (m *MockItemTypeRepository) ResolveName(ctx context.Context, name string) (string, error) {
	args := m.Called(ctx, name)
	return args.String(0), args.Error(1)
}

func (m *MockItemTypeRepository) Create(ctx context.Context, itemType *models.ItemType) error {
	args := m.Called(ctx, itemType)
	return args.Error(0)
}

func (m *MockItemTypeRepository) CreateAlias(ctx context.Context, alias, name string) error {
	args := m.Called(ctx, alias, name)
	return args.Error(0)
}

// MockTransferRepository is a mock implementation of TransferRepository
type MockTransferRepository struct {
	mock.Mock
}

func (m *MockTransferRepository) LockBalance(ctx context.Context, user int64, itemType string) error {
	args := m.Called(ctx, user, itemType)
	return args.Error(0)
}

func (m *MockTransferRepository) CurrentBalance(ctx context.Context, user int64, itemType string) (int64, error) {
	args := m.Called(ctx, user, itemType)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockTransferRepository) Balances(ctx context.Context, user int64) (map[string]int64, error) {
	args := m.Called(ctx, user)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]int64), args.Error(1)
}

func (m *MockTransferRepository) Insert(ctx context.Context, transfer *models.Transfer) error {
	args := m.Called(ctx, transfer)
	return args.Error(0)
}

func (m *MockTransferRepository) History(ctx context.Context, q HistoryQuery) ([]*models.BalanceEntry, error) {
	args := m.Called(ctx, q)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.BalanceEntry), args.Error(1)
}

func (m *MockTransferRepository) GeneratedAfter(ctx context.Context, q HistoryQuery, after time.Time) ([]*models.BalanceEntry, error) {
	args := m.Called(ctx, q, after)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.BalanceEntry), args.Error(1)
}

func (m *MockTransferRepository) UsersWithHistory(ctx context.Context, itemType string) ([]int64, error) {
	args := m.Called(ctx, itemType)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]int64), args.Error(1)
}

// MockMotionRepository is a mock implementation of MotionRepository
type MockMotionRepository struct {
	mock.Mock
}

func (m *MockMotionRepository) Create(ctx context.Context, motion *models.Motion) error {
	args := m.Called(ctx, motion)
	return args.Error(0)
}

func (m *MockMotionRepository) GetByID(ctx context.Context, id int64) (*models.Motion, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Motion), args.Error(1)
}

func (m *MockMotionRepository) List(ctx context.Context) ([]*models.Motion, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Motion), args.Error(1)
}

func (m *MockMotionRepository) GetExpiredUnresolved(ctx context.Context, cutoff time.Time) ([]*models.Motion, error) {
	args := m.Called(ctx, cutoff)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Motion), args.Error(1)
}

func (m *MockMotionRepository) MarkResolved(ctx context.Context, id int64, announcementMessageID int64) (bool, error) {
	args := m.Called(ctx, id, announcementMessageID)
	return args.Bool(0), args.Error(1)
}

func (m *MockMotionRepository) RecordResultChange(ctx context.Context, id int64, at time.Time) error {
	args := m.Called(ctx, id, at)
	return args.Error(0)
}

func (m *MockMotionRepository) ListNeedingUpdate(ctx context.Context) ([]*models.Motion, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Motion), args.Error(1)
}

func (m *MockMotionRepository) ClearNeedsUpdate(ctx context.Context, id int64) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

// MockMotionVoteRepository is a mock implementation of MotionVoteRepository
type MockMotionVoteRepository struct {
	mock.Mock
}

func (m *MockMotionVoteRepository) LockForVoting(ctx context.Context, motion int64) error {
	args := m.Called(ctx, motion)
	return args.Error(0)
}

func (m *MockMotionVoteRepository) GetForUpdate(ctx context.Context, user, motion int64) (*models.MotionVote, error) {
	args := m.Called(ctx, user, motion)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.MotionVote), args.Error(1)
}

func (m *MockMotionVoteRepository) Upsert(ctx context.Context, vote *models.MotionVote) error {
	args := m.Called(ctx, vote)
	return args.Error(0)
}

func (m *MockMotionVoteRepository) Tally(ctx context.Context, motion int64) (int64, int64, error) {
	args := m.Called(ctx, motion)
	return args.Get(0).(int64), args.Get(1).(int64), args.Error(2)
}

func (m *MockMotionVoteRepository) ListByMotion(ctx context.Context, motion int64) ([]*models.MotionVote, error) {
	args := m.Called(ctx, motion)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.MotionVote), args.Error(1)
}

// MockGenerationControlRepository is a mock implementation of GenerationControlRepository
type MockGenerationControlRepository struct {
	mock.Mock
}

func (m *MockGenerationControlRepository) GetForUpdate(ctx context.Context) (*models.GenerationControl, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.GenerationControl), args.Error(1)
}

func (m *MockGenerationControlRepository) SetLastGen(ctx context.Context, t time.Time) error {
	args := m.Called(ctx, t)
	return args.Error(0)
}

// RecordingEventBus captures published events for assertions. Events are
// kept in publish order; nothing is delivered anywhere.
type RecordingEventBus struct {
	mu     sync.Mutex
	Events []events.Event
}

func (b *RecordingEventBus) Publish(event events.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Events = append(b.Events, event)
}

// MockUnitOfWork is a mock implementation of UnitOfWork. Begin, Commit
// and Rollback go through testify expectations; the repository accessors
// return whatever SetRepositories installed.
type MockUnitOfWork struct {
	mock.Mock

	itemTypeRepo          ItemTypeRepository
	transferRepo          TransferRepository
	motionRepo            MotionRepository
	motionVoteRepo        MotionVoteRepository
	generationControlRepo GenerationControlRepository
	eventBus              *RecordingEventBus
}

// SetRepositories installs the repository mocks this unit of work hands out
func (m *MockUnitOfWork) SetRepositories(
	itemTypeRepo ItemTypeRepository,
	transferRepo TransferRepository,
	motionRepo MotionRepository,
	motionVoteRepo MotionVoteRepository,
	generationControlRepo GenerationControlRepository,
) {
	m.itemTypeRepo = itemTypeRepo
	m.transferRepo = transferRepo
	m.motionRepo = motionRepo
	m.motionVoteRepo = motionVoteRepo
	m.generationControlRepo = generationControlRepo
	m.eventBus = &RecordingEventBus{}
}

func (m *MockUnitOfWork) Begin(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockUnitOfWork) Commit() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockUnitOfWork) Rollback() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockUnitOfWork) ItemTypeRepository() ItemTypeRepository {
	return m.itemTypeRepo
}

func (m *MockUnitOfWork) TransferRepository() TransferRepository {
	return m.transferRepo
}

func (m *MockUnitOfWork) MotionRepository() MotionRepository {
	return m.motionRepo
}

func (m *MockUnitOfWork) MotionVoteRepository() MotionVoteRepository {
	return m.motionVoteRepo
}

func (m *MockUnitOfWork) GenerationControlRepository() GenerationControlRepository {
	return m.generationControlRepo
}

func (m *MockUnitOfWork) EventBus() EventPublisher {
	return m.eventBus
}

// PublishedEvents returns the events published into this unit of work
func (m *MockUnitOfWork) PublishedEvents() []events.Event {
	if m.eventBus == nil {
		return nil
	}
	return m.eventBus.Events
}

// MockUnitOfWorkFactory is a mock implementation of UnitOfWorkFactory
type MockUnitOfWorkFactory struct {
	mock.Mock
}

func (m *MockUnitOfWorkFactory) Create() UnitOfWork {
	args := m.Called()
	return args.Get(0).(UnitOfWork)
}
