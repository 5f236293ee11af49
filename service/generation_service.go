package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"plutocrat/config"
	"plutocrat/events"
	"plutocrat/models"

	log "github.com/sirupsen/logrus"
)

type generationService struct {
	uowFactory UnitOfWorkFactory
	cfg        *config.Config
}

// NewGenerationService creates a new generation service
func NewGenerationService(uowFactory UnitOfWorkFactory, cfg *config.Config) GenerationService {
	return &generationService{
		uowFactory: uowFactory,
		cfg:        cfg,
	}
}

// RunGenerationCycle mints passive income for every whole interval that
// has elapsed since the last committed run. The control row is read
// under FOR UPDATE, so of any number of concurrent callers exactly one
// proceeds; the rest block and then observe the advanced timestamp and
// mint nothing. A crash before commit rolls back both the mints and the
// timestamp together, so a retry never double-pays.
func (s *generationService) RunGenerationCycle(ctx context.Context, now time.Time) (*GenerationResult, error) {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	control, err := uow.GenerationControlRepository().GetForUpdate(ctx)
	if err != nil {
		return nil, err
	}

	intervals := int64(now.Sub(control.LastGen) / s.cfg.GenerationInterval)
	if intervals <= 0 {
		return &GenerationResult{}, nil
	}

	result := &GenerationResult{Intervals: intervals}

	// Deterministic currency order keeps lock acquisition stable across
	// concurrent processes.
	currencies := make([]string, 0, len(s.cfg.GenerationRates))
	for currency := range s.cfg.GenerationRates {
		currencies = append(currencies, currency)
	}
	sort.Strings(currencies)

	paid := make(map[int64]bool)
	for _, currency := range currencies {
		rate := s.cfg.GenerationRates[currency]
		if rate <= 0 {
			continue
		}

		users, err := uow.TransferRepository().UsersWithHistory(ctx, currency)
		if err != nil {
			return nil, err
		}

		amount := rate * intervals
		for _, user := range users {
			user := user
			_, err := recordTransfer(ctx, uow, TransferRequest{
				Kind:     models.TransferKindGenerated,
				ItemType: currency,
				To:       &user,
				Quantity: amount,
			})
			if err != nil {
				return nil, err
			}
			result.TotalMinted += amount
			paid[user] = true
		}
	}
	result.UsersPaid = len(paid)

	if err := uow.GenerationControlRepository().SetLastGen(ctx, now); err != nil {
		return nil, err
	}

	uow.EventBus().Publish(events.GenerationCompletedEvent{
		Intervals:   intervals,
		UsersPaid:   result.UsersPaid,
		TotalMinted: result.TotalMinted,
		GeneratedAt: now,
	})

	if err := uow.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	log.WithFields(log.Fields{
		"intervals":   intervals,
		"usersPaid":   result.UsersPaid,
		"totalMinted": result.TotalMinted,
	}).Info("Generation cycle completed")

	return result, nil
}
