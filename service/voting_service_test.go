package service

import (
	"context"
	"testing"
	"time"

	"plutocrat/config"
	"plutocrat/damm"
	"plutocrat/events"
	"plutocrat/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

func votingTestConfig() *config.Config {
	return &config.Config{
		VoteCurrency:     "pc",
		VotingWindow:     48 * time.Hour,
		SupermajorityNum: 2,
		MotionCreateCost: 1,
	}
}

type votingMocks struct {
	uow          *MockUnitOfWork
	factory      *MockUnitOfWorkFactory
	itemTypeRepo *MockItemTypeRepository
	transferRepo *MockTransferRepository
	motionRepo   *MockMotionRepository
	voteRepo     *MockMotionVoteRepository
}

func setupVotingMocks() votingMocks {
	m := votingMocks{
		uow:          new(MockUnitOfWork),
		factory:      new(MockUnitOfWorkFactory),
		itemTypeRepo: new(MockItemTypeRepository),
		transferRepo: new(MockTransferRepository),
		motionRepo:   new(MockMotionRepository),
		voteRepo:     new(MockMotionVoteRepository),
	}
	m.uow.SetRepositories(
		m.itemTypeRepo,
		m.transferRepo,
		m.motionRepo,
		m.voteRepo,
		new(MockGenerationControlRepository),
	)
	m.factory.On("Create").Return(m.uow)
	return m
}

func openMotion(id int64) *models.Motion {
	return &models.Motion{
		ID:         id,
		Text:       "nationalize the banana stand",
		MotionedAt: time.Now().Add(-time.Hour),
		MotionedBy: 1,
	}
}

func TestVotingService_CreateMotion(t *testing.T) {
	ctx := context.Background()

	m := setupVotingMocks()
	service := NewVotingService(m.factory, votingTestConfig(), NewLogAnnouncer())

	m.uow.On("Begin", ctx).Return(nil)
	m.uow.On("Commit").Return(nil)
	m.uow.On("Rollback").Return(nil)

	m.motionRepo.On("Create", ctx, mock.MatchedBy(func(motion *models.Motion) bool {
		return motion.Text == "free banana fridays" && !motion.IsSuper && motion.MotionedBy == 7
	})).Return(nil).Run(func(args mock.Arguments) {
		motion := args.Get(1).(*models.Motion)
		motion.ID = 42
		motion.MotionedAt = time.Now()
	})

	// The creation charge seeds the creator's opening vote
	m.itemTypeRepo.On("GetByName", ctx, "pc").Return(&models.ItemType{Name: "pc"}, nil)
	m.transferRepo.On("LockBalance", ctx, int64(7), "pc").Return(nil)
	m.transferRepo.On("CurrentBalance", ctx, int64(7), "pc").Return(int64(10), nil)
	m.transferRepo.On("Insert", ctx, mock.MatchedBy(func(tr *models.Transfer) bool {
		return tr.Kind == models.TransferKindMotionCreate &&
			*tr.FromUser == 7 &&
			tr.ToUser == nil &&
			tr.Quantity == 1 &&
			*tr.ToMotion == 42
	})).Return(nil)
	m.voteRepo.On("Upsert", ctx, mock.MatchedBy(func(vote *models.MotionVote) bool {
		return vote.User == 7 && vote.Motion == 42 && vote.Direction && vote.Amount == 1
	})).Return(nil)

	motion, err := service.CreateMotion(ctx, "free banana fridays", false, 7, 1001, 1002)

	assert.NoError(t, err)
	assert.Equal(t, int64(42), motion.ID)
	assert.Equal(t, "427", motion.PublicID())
	assert.Equal(t, int64(1), motion.YesTotal)
	assert.Equal(t, int64(0), motion.NoTotal)
	assert.True(t, motion.IsWinning)

	m.motionRepo.AssertExpectations(t)
	m.voteRepo.AssertExpectations(t)
	m.uow.AssertExpectations(t)
}

func TestVotingService_CreateMotion_EmptyText(t *testing.T) {
	m := setupVotingMocks()
	service := NewVotingService(m.factory, votingTestConfig(), NewLogAnnouncer())

	motion, err := service.CreateMotion(context.Background(), "", false, 7, 1, 2)

	assert.Nil(t, motion)
	var validation *ValidationError
	assert.ErrorAs(t, err, &validation)
}

func TestVotingService_CastVote_LowerStakeRefundsDifference(t *testing.T) {
	ctx := context.Background()

	m := setupVotingMocks()
	service := NewVotingService(m.factory, votingTestConfig(), NewLogAnnouncer())

	m.uow.On("Begin", ctx).Return(nil)
	m.uow.On("Commit").Return(nil)
	m.uow.On("Rollback").Return(nil)

	m.motionRepo.On("GetByID", ctx, int64(42)).Return(openMotion(42), nil)
	m.voteRepo.On("LockForVoting", ctx, int64(42)).Return(nil)
	m.voteRepo.On("GetForUpdate", ctx, int64(7), int64(42)).
		Return(&models.MotionVote{User: 7, Motion: 42, Direction: true, Amount: 5}, nil)
	m.voteRepo.On("Tally", ctx, int64(42)).Return(int64(5), int64(0), nil)

	// Re-voting 5 -> 2 refunds 3 to the voter as one net transfer
	m.itemTypeRepo.On("GetByName", ctx, "pc").Return(&models.ItemType{Name: "pc"}, nil)
	m.transferRepo.On("LockBalance", ctx, int64(7), "pc").Return(nil)
	m.transferRepo.On("CurrentBalance", ctx, int64(7), "pc").Return(int64(5), nil).Once()
	m.transferRepo.On("Insert", ctx, mock.MatchedBy(func(tr *models.Transfer) bool {
		return tr.Kind == models.TransferKindMotionVote &&
			tr.FromUser == nil &&
			*tr.ToUser == 7 &&
			tr.Quantity == 3 &&
			*tr.VoteCount == 2
	})).Return(nil)
	m.voteRepo.On("Upsert", ctx, mock.MatchedBy(func(vote *models.MotionVote) bool {
		return vote.User == 7 && vote.Direction && vote.Amount == 2
	})).Return(nil)
	m.transferRepo.On("CurrentBalance", ctx, int64(7), "pc").Return(int64(8), nil)

	result, err := service.CastVote(ctx, 7, 42, true, 2)

	assert.NoError(t, err)
	assert.Equal(t, int64(-3), result.NetCharge)
	assert.Equal(t, int64(8), result.NewBalance)
	assert.Equal(t, int64(2), result.Motion.YesTotal)
	assert.Equal(t, int64(0), result.Motion.NoTotal)

	m.transferRepo.AssertExpectations(t)
	m.voteRepo.AssertExpectations(t)
}

func TestVotingService_CastVote_SameStakeMovesNothing(t *testing.T) {
	ctx := context.Background()

	m := setupVotingMocks()
	service := NewVotingService(m.factory, votingTestConfig(), NewLogAnnouncer())

	m.uow.On("Begin", ctx).Return(nil)
	m.uow.On("Commit").Return(nil)
	m.uow.On("Rollback").Return(nil)

	m.motionRepo.On("GetByID", ctx, int64(42)).Return(openMotion(42), nil)
	m.voteRepo.On("LockForVoting", ctx, int64(42)).Return(nil)
	m.voteRepo.On("GetForUpdate", ctx, int64(7), int64(42)).
		Return(&models.MotionVote{User: 7, Motion: 42, Direction: true, Amount: 5}, nil)
	m.voteRepo.On("Tally", ctx, int64(42)).Return(int64(5), int64(0), nil)

	// Direction flips but the stake is unchanged: tally moves, currency does not
	m.voteRepo.On("Upsert", ctx, mock.MatchedBy(func(vote *models.MotionVote) bool {
		return !vote.Direction && vote.Amount == 5
	})).Return(nil)
	m.motionRepo.On("RecordResultChange", ctx, int64(42), mock.AnythingOfType("time.Time")).Return(nil)
	m.transferRepo.On("CurrentBalance", ctx, int64(7), "pc").Return(int64(5), nil)

	result, err := service.CastVote(ctx, 7, 42, false, 5)

	assert.NoError(t, err)
	assert.Equal(t, int64(0), result.NetCharge)
	assert.Equal(t, int64(0), result.Motion.YesTotal)
	assert.Equal(t, int64(5), result.Motion.NoTotal)
	assert.False(t, result.Motion.IsWinning)

	// No transfer was recorded
	m.transferRepo.AssertNotCalled(t, "Insert", mock.Anything, mock.Anything)
}

func TestVotingService_CastVote_DirectionFlipWithHigherStake(t *testing.T) {
	ctx := context.Background()

	m := setupVotingMocks()
	service := NewVotingService(m.factory, votingTestConfig(), NewLogAnnouncer())

	m.uow.On("Begin", ctx).Return(nil)
	m.uow.On("Commit").Return(nil)
	m.uow.On("Rollback").Return(nil)

	m.motionRepo.On("GetByID", ctx, int64(42)).Return(openMotion(42), nil)
	m.voteRepo.On("LockForVoting", ctx, int64(42)).Return(nil)
	m.voteRepo.On("GetForUpdate", ctx, int64(7), int64(42)).
		Return(&models.MotionVote{User: 7, Motion: 42, Direction: true, Amount: 2}, nil)
	m.voteRepo.On("Tally", ctx, int64(42)).Return(int64(2), int64(0), nil)

	// Switching "for 2" to "against 5" charges only the stake increase,
	// even though the whole stake changes sides in the tally.
	m.itemTypeRepo.On("GetByName", ctx, "pc").Return(&models.ItemType{Name: "pc"}, nil)
	m.transferRepo.On("LockBalance", ctx, int64(7), "pc").Return(nil)
	m.transferRepo.On("CurrentBalance", ctx, int64(7), "pc").Return(int64(8), nil).Once()
	m.transferRepo.On("Insert", ctx, mock.MatchedBy(func(tr *models.Transfer) bool {
		return tr.Kind == models.TransferKindMotionVote &&
			*tr.FromUser == 7 &&
			tr.ToUser == nil &&
			tr.Quantity == 3 &&
			*tr.VoteCount == 5
	})).Return(nil)
	m.voteRepo.On("Upsert", ctx, mock.MatchedBy(func(vote *models.MotionVote) bool {
		return !vote.Direction && vote.Amount == 5
	})).Return(nil)
	m.motionRepo.On("RecordResultChange", ctx, int64(42), mock.AnythingOfType("time.Time")).Return(nil)
	m.transferRepo.On("CurrentBalance", ctx, int64(7), "pc").Return(int64(5), nil)

	result, err := service.CastVote(ctx, 7, 42, false, 5)

	assert.NoError(t, err)
	assert.Equal(t, int64(3), result.NetCharge)
	assert.Equal(t, int64(5), result.NewBalance)
	assert.Equal(t, int64(0), result.Motion.YesTotal)
	assert.Equal(t, int64(5), result.Motion.NoTotal)
	assert.False(t, result.Motion.IsWinning)

	m.transferRepo.AssertExpectations(t)
	m.voteRepo.AssertExpectations(t)
}

func TestVotingService_CastVote_OutcomeFlipRaisesNeedsUpdate(t *testing.T) {
	ctx := context.Background()

	m := setupVotingMocks()
	service := NewVotingService(m.factory, votingTestConfig(), NewLogAnnouncer())

	m.uow.On("Begin", ctx).Return(nil)
	m.uow.On("Commit").Return(nil)
	m.uow.On("Rollback").Return(nil)

	m.motionRepo.On("GetByID", ctx, int64(42)).Return(openMotion(42), nil)
	m.voteRepo.On("LockForVoting", ctx, int64(42)).Return(nil)
	m.voteRepo.On("GetForUpdate", ctx, int64(7), int64(42)).Return(nil, nil)
	m.voteRepo.On("Tally", ctx, int64(42)).Return(int64(0), int64(5), nil)

	m.itemTypeRepo.On("GetByName", ctx, "pc").Return(&models.ItemType{Name: "pc"}, nil)
	m.transferRepo.On("LockBalance", ctx, int64(7), "pc").Return(nil)
	m.transferRepo.On("CurrentBalance", ctx, int64(7), "pc").Return(int64(10), nil).Once()
	m.transferRepo.On("Insert", ctx, mock.Anything).Return(nil)
	m.voteRepo.On("Upsert", ctx, mock.Anything).Return(nil)
	m.motionRepo.On("RecordResultChange", ctx, int64(42), mock.AnythingOfType("time.Time")).Return(nil)
	m.transferRepo.On("CurrentBalance", ctx, int64(7), "pc").Return(int64(4), nil)

	result, err := service.CastVote(ctx, 7, 42, true, 6)

	assert.NoError(t, err)
	assert.True(t, result.Motion.IsWinning)
	assert.True(t, result.Motion.NeedsUpdate)

	var flip *events.MotionOutcomeChangedEvent
	for _, ev := range m.uow.PublishedEvents() {
		if e, ok := ev.(events.MotionOutcomeChangedEvent); ok {
			flip = &e
		}
	}
	assert.NotNil(t, flip)
	assert.Equal(t, int64(6), flip.YesTotal)
	assert.Equal(t, int64(5), flip.NoTotal)
	assert.True(t, flip.IsWinning)

	m.motionRepo.AssertExpectations(t)
}

func TestVotingService_CastVote_ClosedMotion(t *testing.T) {
	ctx := context.Background()

	m := setupVotingMocks()
	service := NewVotingService(m.factory, votingTestConfig(), NewLogAnnouncer())

	m.uow.On("Begin", ctx).Return(nil)
	m.uow.On("Rollback").Return(nil)

	expired := openMotion(42)
	expired.MotionedAt = time.Now().Add(-49 * time.Hour)
	m.motionRepo.On("GetByID", ctx, int64(42)).Return(expired, nil)

	result, err := service.CastVote(ctx, 7, 42, true, 1)

	assert.Nil(t, result)
	assert.ErrorIs(t, err, ErrMotionClosed)
}

func TestVotingService_CastVote_ResolvedMotion(t *testing.T) {
	ctx := context.Background()

	m := setupVotingMocks()
	service := NewVotingService(m.factory, votingTestConfig(), NewLogAnnouncer())

	m.uow.On("Begin", ctx).Return(nil)
	m.uow.On("Rollback").Return(nil)

	resolved := openMotion(42)
	resolved.AnnouncementMessageID = ptr(int64(900))
	m.motionRepo.On("GetByID", ctx, int64(42)).Return(resolved, nil)

	result, err := service.CastVote(ctx, 7, 42, true, 1)

	assert.Nil(t, result)
	assert.ErrorIs(t, err, ErrMotionClosed)
}

func TestVotingService_CastVote_NotFound(t *testing.T) {
	ctx := context.Background()

	m := setupVotingMocks()
	service := NewVotingService(m.factory, votingTestConfig(), NewLogAnnouncer())

	m.uow.On("Begin", ctx).Return(nil)
	m.uow.On("Rollback").Return(nil)
	m.motionRepo.On("GetByID", ctx, int64(999)).Return(nil, nil)

	result, err := service.CastVote(ctx, 7, 999, true, 1)

	assert.Nil(t, result)
	assert.ErrorIs(t, err, ErrMotionNotFound)
}

func TestVotingService_CastVote_NegativeAmount(t *testing.T) {
	m := setupVotingMocks()
	service := NewVotingService(m.factory, votingTestConfig(), NewLogAnnouncer())

	result, err := service.CastVote(context.Background(), 7, 42, true, -1)

	assert.Nil(t, result)
	var validation *ValidationError
	assert.ErrorAs(t, err, &validation)
}

func TestVotingService_Tally_Thresholds(t *testing.T) {
	tests := []struct {
		name    string
		yes     int64
		no      int64
		isSuper bool
		winning bool
	}{
		{"simple majority passes", 3, 2, false, true},
		{"simple tie fails", 2, 2, false, false},
		{"super needs double", 3, 2, true, false},
		{"super passes above double", 5, 2, true, true},
		{"super exactly double fails", 4, 2, true, false},
		{"zero votes fail", 0, 0, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()

			m := setupVotingMocks()
			service := NewVotingService(m.factory, votingTestConfig(), NewLogAnnouncer())

			m.uow.On("Begin", ctx).Return(nil)
			m.uow.On("Rollback").Return(nil)

			motion := openMotion(42)
			motion.IsSuper = tt.isSuper
			m.motionRepo.On("GetByID", ctx, int64(42)).Return(motion, nil)
			m.voteRepo.On("Tally", ctx, int64(42)).Return(tt.yes, tt.no, nil)

			yes, no, winning, err := service.Tally(ctx, 42)

			assert.NoError(t, err)
			assert.Equal(t, tt.yes, yes)
			assert.Equal(t, tt.no, no)
			assert.Equal(t, tt.winning, winning)
		})
	}
}

func TestVotingService_GetMotionByPublicID_BadChecksum(t *testing.T) {
	m := setupVotingMocks()
	service := NewVotingService(m.factory, votingTestConfig(), NewLogAnnouncer())

	motion, err := service.GetMotionByPublicID(context.Background(), "428")

	assert.Nil(t, motion)
	assert.ErrorIs(t, err, damm.ErrInvalidChecksum)
}

func TestVotingService_Resolve_StillOpen(t *testing.T) {
	ctx := context.Background()

	m := setupVotingMocks()
	service := NewVotingService(m.factory, votingTestConfig(), NewLogAnnouncer())

	m.uow.On("Begin", ctx).Return(nil)
	m.uow.On("Rollback").Return(nil)
	m.motionRepo.On("GetByID", ctx, int64(42)).Return(openMotion(42), nil)

	result, err := service.Resolve(ctx, 42, 900)

	assert.Nil(t, result)
	assert.ErrorIs(t, err, ErrMotionStillOpen)
}

func TestVotingService_Resolve_Expired(t *testing.T) {
	ctx := context.Background()

	m := setupVotingMocks()
	service := NewVotingService(m.factory, votingTestConfig(), NewLogAnnouncer())

	m.uow.On("Begin", ctx).Return(nil)
	m.uow.On("Commit").Return(nil)
	m.uow.On("Rollback").Return(nil)

	expired := openMotion(42)
	expired.MotionedAt = time.Now().Add(-50 * time.Hour)
	m.motionRepo.On("GetByID", ctx, int64(42)).Return(expired, nil)
	m.motionRepo.On("MarkResolved", ctx, int64(42), int64(900)).Return(true, nil)
	m.voteRepo.On("Tally", ctx, int64(42)).Return(int64(3), int64(1), nil)

	result, err := service.Resolve(ctx, 42, 900)

	assert.NoError(t, err)
	assert.True(t, result.IsResolved())
	assert.Equal(t, int64(900), *result.AnnouncementMessageID)
	assert.True(t, result.IsWinning)
	assert.False(t, result.NeedsUpdate)

	var resolvedEvent *events.MotionResolvedEvent
	for _, ev := range m.uow.PublishedEvents() {
		if e, ok := ev.(events.MotionResolvedEvent); ok {
			resolvedEvent = &e
		}
	}
	assert.NotNil(t, resolvedEvent)
	assert.True(t, resolvedEvent.Passed)
}

func TestVotingService_Resolve_LostRace(t *testing.T) {
	ctx := context.Background()

	m := setupVotingMocks()
	service := NewVotingService(m.factory, votingTestConfig(), NewLogAnnouncer())

	m.uow.On("Begin", ctx).Return(nil)
	m.uow.On("Rollback").Return(nil)

	expired := openMotion(42)
	expired.MotionedAt = time.Now().Add(-50 * time.Hour)
	m.motionRepo.On("GetByID", ctx, int64(42)).Return(expired, nil)
	m.motionRepo.On("MarkResolved", ctx, int64(42), int64(900)).Return(false, nil)

	result, err := service.Resolve(ctx, 42, 900)

	assert.Nil(t, result)
	assert.ErrorIs(t, err, ErrAlreadyResolved)
	m.uow.AssertNotCalled(t, "Commit")
}

func TestVotingService_Resolve_AlreadyResolved(t *testing.T) {
	ctx := context.Background()

	m := setupVotingMocks()
	service := NewVotingService(m.factory, votingTestConfig(), NewLogAnnouncer())

	m.uow.On("Begin", ctx).Return(nil)
	m.uow.On("Rollback").Return(nil)

	resolved := openMotion(42)
	resolved.MotionedAt = time.Now().Add(-50 * time.Hour)
	resolved.AnnouncementMessageID = ptr(int64(800))
	m.motionRepo.On("GetByID", ctx, int64(42)).Return(resolved, nil)

	result, err := service.Resolve(ctx, 42, 900)

	assert.Nil(t, result)
	assert.ErrorIs(t, err, ErrAlreadyResolved)
}

func TestVotingService_ListMotions_Filters(t *testing.T) {
	ctx := context.Background()

	m := setupVotingMocks()
	service := NewVotingService(m.factory, votingTestConfig(), NewLogAnnouncer())

	m.uow.On("Begin", ctx).Return(nil)
	m.uow.On("Rollback").Return(nil)

	passed := openMotion(1)
	passed.AnnouncementMessageID = ptr(int64(801))
	failed := openMotion(2)
	failed.AnnouncementMessageID = ptr(int64(802))
	pending := openMotion(3)

	m.motionRepo.On("List", ctx).Return([]*models.Motion{pending, passed, failed}, nil)
	m.voteRepo.On("Tally", ctx, int64(1)).Return(int64(5), int64(1), nil)
	m.voteRepo.On("Tally", ctx, int64(2)).Return(int64(1), int64(5), nil)
	m.voteRepo.On("Tally", ctx, int64(3)).Return(int64(0), int64(0), nil)

	all, err := service.ListMotions(ctx, MotionFilterAll)
	assert.NoError(t, err)
	assert.Len(t, all, 3)

	passedOnly, err := service.ListMotions(ctx, MotionFilterPassed)
	assert.NoError(t, err)
	assert.Len(t, passedOnly, 1)
	assert.Equal(t, int64(1), passedOnly[0].ID)

	failedOnly, err := service.ListMotions(ctx, MotionFilterFailed)
	assert.NoError(t, err)
	assert.Len(t, failedOnly, 1)
	assert.Equal(t, int64(2), failedOnly[0].ID)

	pendingOnly, err := service.ListMotions(ctx, MotionFilterPending)
	assert.NoError(t, err)
	assert.Len(t, pendingOnly, 1)
	assert.Equal(t, int64(3), pendingOnly[0].ID)

	pendingPassed, err := service.ListMotions(ctx, MotionFilterPendingPassed)
	assert.NoError(t, err)
	assert.Len(t, pendingPassed, 2)

	_, err = service.ListMotions(ctx, MotionListFilter("bogus"))
	var validation *ValidationError
	assert.ErrorAs(t, err, &validation)
}
