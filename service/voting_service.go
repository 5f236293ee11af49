package service

import (
	"context"
	"fmt"
	"time"

	"plutocrat/config"
	"plutocrat/damm"
	"plutocrat/events"
	"plutocrat/models"

	log "github.com/sirupsen/logrus"
)

type votingService struct {
	uowFactory UnitOfWorkFactory
	cfg        *config.Config
	announcer  Announcer
}

// NewVotingService creates a new voting service
func NewVotingService(uowFactory UnitOfWorkFactory, cfg *config.Config, announcer Announcer) VotingService {
	return &votingService{
		uowFactory: uowFactory,
		cfg:        cfg,
		announcer:  announcer,
	}
}

func (s *votingService) CreateMotion(ctx context.Context, text string, isSuper bool, creator int64, commandMessageID, botMessageID int64) (*models.MotionWithTally, error) {
	if text == "" {
		return nil, validationErrorf("motion text must not be empty")
	}

	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	motion := &models.Motion{
		CommandMessageID: commandMessageID,
		BotMessageID:     botMessageID,
		Text:             text,
		IsSuper:          isSuper,
		MotionedBy:       creator,
	}
	if err := uow.MotionRepository().Create(ctx, motion); err != nil {
		return nil, err
	}

	// Creating a motion costs a stake of vote currency, which becomes
	// the creator's opening "for" vote.
	cost := s.cfg.MotionCreateCost
	if cost > 0 {
		_, err := recordTransfer(ctx, uow, TransferRequest{
			Kind:      models.TransferKindMotionCreate,
			ItemType:  s.cfg.VoteCurrency,
			From:      &creator,
			Quantity:  cost,
			MessageID: &commandMessageID,
			ToMotion:  &motion.ID,
			VoteCount: &cost,
		})
		if err != nil {
			return nil, err
		}

		vote := &models.MotionVote{
			User:      creator,
			Motion:    motion.ID,
			Direction: true,
			Amount:    cost,
		}
		if err := uow.MotionVoteRepository().Upsert(ctx, vote); err != nil {
			return nil, err
		}
	}

	uow.EventBus().Publish(events.MotionCreatedEvent{
		MotionID:   motion.ID,
		PublicID:   motion.PublicID(),
		MotionedBy: creator,
		IsSuper:    isSuper,
		EndsAt:     motion.EndsAt(s.cfg.VotingWindow),
	})

	if err := uow.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	log.WithFields(log.Fields{
		"motionID": motion.ID,
		"publicID": motion.PublicID(),
		"isSuper":  isSuper,
		"creator":  creator,
	}).Info("Motion created")

	return &models.MotionWithTally{
		Motion:    *motion,
		YesTotal:  cost,
		NoTotal:   0,
		IsWinning: models.Winning(cost, 0, isSuper, s.cfg.SupermajorityNum),
	}, nil
}

func (s *votingService) CastVote(ctx context.Context, user, motionID int64, direction bool, amount int64) (*VoteResult, error) {
	if amount < 0 {
		return nil, validationErrorf("vote amount must not be negative, got %d", amount)
	}

	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	motion, err := uow.MotionRepository().GetByID(ctx, motionID)
	if err != nil {
		return nil, err
	}
	if motion == nil {
		return nil, ErrMotionNotFound
	}

	now := time.Now()
	if motion.IsResolved() || !now.Before(motion.EndsAt(s.cfg.VotingWindow)) {
		return nil, ErrMotionClosed
	}

	// Serialize against every other cast on this motion: the flip
	// check below compares tallies before and after this cast, which
	// is only sound if no other cast commits in between.
	if err := uow.MotionVoteRepository().LockForVoting(ctx, motionID); err != nil {
		return nil, err
	}

	existing, err := uow.MotionVoteRepository().GetForUpdate(ctx, user, motionID)
	if err != nil {
		return nil, err
	}

	yesBefore, noBefore, err := uow.MotionVoteRepository().Tally(ctx, motionID)
	if err != nil {
		return nil, err
	}

	var oldAmount int64
	if existing != nil {
		oldAmount = existing.Amount
	}

	// Re-voting replaces the stake, so the currency movement is the
	// net difference regardless of direction: the old stake is
	// refunded and the new one charged in a single transfer.
	netCharge := amount - oldAmount
	if netCharge != 0 {
		req := TransferRequest{
			Kind:      models.TransferKindMotionVote,
			ItemType:  s.cfg.VoteCurrency,
			ToMotion:  &motionID,
			VoteCount: &amount,
		}
		if netCharge > 0 {
			req.From = &user
			req.Quantity = netCharge
		} else {
			req.To = &user
			req.Quantity = -netCharge
		}
		if _, err := recordTransfer(ctx, uow, req); err != nil {
			return nil, err
		}
	}

	vote := &models.MotionVote{
		User:      user,
		Motion:    motionID,
		Direction: direction,
		Amount:    amount,
	}
	if err := uow.MotionVoteRepository().Upsert(ctx, vote); err != nil {
		return nil, err
	}

	yesAfter, noAfter := yesBefore, noBefore
	if existing != nil {
		if existing.Direction {
			yesAfter -= oldAmount
		} else {
			noAfter -= oldAmount
		}
	}
	if direction {
		yesAfter += amount
	} else {
		noAfter += amount
	}

	wasWinning := models.Winning(yesBefore, noBefore, motion.IsSuper, s.cfg.SupermajorityNum)
	isWinning := models.Winning(yesAfter, noAfter, motion.IsSuper, s.cfg.SupermajorityNum)
	if wasWinning != isWinning {
		if err := uow.MotionRepository().RecordResultChange(ctx, motionID, now); err != nil {
			return nil, err
		}
		motion.LastResultChange = now
		motion.NeedsUpdate = true

		uow.EventBus().Publish(events.MotionOutcomeChangedEvent{
			MotionID:  motionID,
			PublicID:  motion.PublicID(),
			YesTotal:  yesAfter,
			NoTotal:   noAfter,
			IsWinning: isWinning,
		})
	}

	newBalance, err := uow.TransferRepository().CurrentBalance(ctx, user, s.cfg.VoteCurrency)
	if err != nil {
		return nil, err
	}

	if err := uow.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	log.WithFields(log.Fields{
		"motionID":  motionID,
		"user":      user,
		"direction": direction,
		"amount":    amount,
		"netCharge": netCharge,
	}).Info("Vote cast")

	return &VoteResult{
		Motion: &models.MotionWithTally{
			Motion:    *motion,
			YesTotal:  yesAfter,
			NoTotal:   noAfter,
			IsWinning: isWinning,
		},
		NetCharge:  netCharge,
		NewBalance: newBalance,
	}, nil
}

func (s *votingService) Tally(ctx context.Context, motionID int64) (int64, int64, bool, error) {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return 0, 0, false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	motion, err := uow.MotionRepository().GetByID(ctx, motionID)
	if err != nil {
		return 0, 0, false, err
	}
	if motion == nil {
		return 0, 0, false, ErrMotionNotFound
	}

	yes, no, err := uow.MotionVoteRepository().Tally(ctx, motionID)
	if err != nil {
		return 0, 0, false, err
	}

	return yes, no, models.Winning(yes, no, motion.IsSuper, s.cfg.SupermajorityNum), nil
}

func (s *votingService) GetMotion(ctx context.Context, motionID int64) (*models.MotionWithTally, error) {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	motion, err := uow.MotionRepository().GetByID(ctx, motionID)
	if err != nil {
		return nil, err
	}
	if motion == nil {
		return nil, nil
	}

	return s.withTally(ctx, uow, motion)
}

func (s *votingService) GetMotionByPublicID(ctx context.Context, publicID string) (*models.MotionWithTally, error) {
	id, err := damm.Decode(publicID)
	if err != nil {
		return nil, err
	}
	return s.GetMotion(ctx, id)
}

func (s *votingService) ListMotions(ctx context.Context, filter MotionListFilter) ([]*models.MotionWithTally, error) {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	motions, err := uow.MotionRepository().List(ctx)
	if err != nil {
		return nil, err
	}

	var out []*models.MotionWithTally
	for _, motion := range motions {
		mt, err := s.withTally(ctx, uow, motion)
		if err != nil {
			return nil, err
		}

		keep := false
		switch filter {
		case MotionFilterAll, "":
			keep = true
		case MotionFilterPassed:
			keep = mt.IsResolved() && mt.IsWinning
		case MotionFilterFailed:
			keep = mt.IsResolved() && !mt.IsWinning
		case MotionFilterFinished:
			keep = mt.IsResolved()
		case MotionFilterPending:
			keep = !mt.IsResolved()
		case MotionFilterPendingPassed:
			keep = !mt.IsResolved() || mt.IsWinning
		default:
			return nil, validationErrorf("unknown motion filter %q", filter)
		}
		if keep {
			out = append(out, mt)
		}
	}

	return out, nil
}

func (s *votingService) Resolve(ctx context.Context, motionID int64, announcementMessageID int64) (*models.MotionWithTally, error) {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	motion, err := uow.MotionRepository().GetByID(ctx, motionID)
	if err != nil {
		return nil, err
	}
	if motion == nil {
		return nil, ErrMotionNotFound
	}
	if motion.IsResolved() {
		return nil, ErrAlreadyResolved
	}
	if time.Now().Before(motion.EndsAt(s.cfg.VotingWindow)) {
		return nil, ErrMotionStillOpen
	}

	won, err := uow.MotionRepository().MarkResolved(ctx, motionID, announcementMessageID)
	if err != nil {
		return nil, err
	}
	if !won {
		// Another caller finalized between our read and the update.
		return nil, ErrAlreadyResolved
	}

	motion.AnnouncementMessageID = &announcementMessageID
	motion.NeedsUpdate = false

	mt, err := s.withTally(ctx, uow, motion)
	if err != nil {
		return nil, err
	}

	uow.EventBus().Publish(events.MotionResolvedEvent{
		MotionID: motionID,
		PublicID: motion.PublicID(),
		Passed:   mt.IsWinning,
		YesTotal: mt.YesTotal,
		NoTotal:  mt.NoTotal,
	})

	if err := uow.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	log.WithFields(log.Fields{
		"motionID": motionID,
		"publicID": motion.PublicID(),
		"passed":   mt.IsWinning,
		"yes":      mt.YesTotal,
		"no":       mt.NoTotal,
	}).Info("Motion resolved")

	return mt, nil
}

func (s *votingService) ResolveDue(ctx context.Context, now time.Time) (int, error) {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}

	cutoff := now.Add(-s.cfg.VotingWindow)
	due, err := uow.MotionRepository().GetExpiredUnresolved(ctx, cutoff)
	uow.Rollback()
	if err != nil {
		return 0, err
	}

	resolved := 0
	for _, motion := range due {
		mt, err := s.GetMotion(ctx, motion.ID)
		if err != nil || mt == nil {
			continue
		}

		messageID, err := s.announcer.AnnounceResult(ctx, mt)
		if err != nil {
			log.WithFields(log.Fields{
				"motionID": motion.ID,
				"error":    err,
			}).Warn("Failed to announce motion result, will retry next sweep")
			continue
		}

		_, err = s.Resolve(ctx, motion.ID, messageID)
		if err == ErrAlreadyResolved {
			continue
		}
		if err != nil {
			return resolved, err
		}
		resolved++
	}

	return resolved, nil
}

func (s *votingService) MarkUpdateHandled(ctx context.Context, motionID int64) error {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	if err := uow.MotionRepository().ClearNeedsUpdate(ctx, motionID); err != nil {
		return err
	}

	return uow.Commit()
}

func (s *votingService) withTally(ctx context.Context, uow UnitOfWork, motion *models.Motion) (*models.MotionWithTally, error) {
	yes, no, err := uow.MotionVoteRepository().Tally(ctx, motion.ID)
	if err != nil {
		return nil, err
	}

	return &models.MotionWithTally{
		Motion:    *motion,
		YesTotal:  yes,
		NoTotal:   no,
		IsWinning: models.Winning(yes, no, motion.IsSuper, s.cfg.SupermajorityNum),
	}, nil
}

// logAnnouncer is the fallback announcer used when no presentation
// layer is attached: it logs the outcome and reuses the motion's echo
// message as the announcement reference.
type logAnnouncer struct{}

// NewLogAnnouncer creates an announcer that only logs results.
func NewLogAnnouncer() Announcer {
	return logAnnouncer{}
}

func (logAnnouncer) AnnounceResult(ctx context.Context, motion *models.MotionWithTally) (int64, error) {
	outcome := "failed"
	if motion.IsWinning {
		outcome = "passed"
	}
	log.WithFields(log.Fields{
		"motionID": motion.ID,
		"publicID": motion.PublicID(),
		"outcome":  outcome,
		"yes":      motion.YesTotal,
		"no":       motion.NoTotal,
	}).Info("Announcing motion result")
	return motion.BotMessageID, nil
}
