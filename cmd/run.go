package cmd

import (
	"context"
	"fmt"
	"log"
	"time"

	"plutocrat/config"
	"plutocrat/database"
	"plutocrat/events"
	"plutocrat/models"
	"plutocrat/repository"
	"plutocrat/service"

	"github.com/robfig/cron/v3"
)

// Run initializes and starts the application
func Run(ctx context.Context) error {
	log.Println("Starting plutocrat engine...")

	// Load configuration
	cfg := config.Get()

	// Initialize database connection
	log.Println("Connecting to database...")
	db, err := database.NewConnection(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	log.Println("Database connection established successfully")

	// Initialize event bus
	eventBus := events.NewBus()
	subscribeLogging(eventBus)

	// Initialize unit of work factory
	uowFactory := repository.NewUnitOfWorkFactory(db, eventBus)

	// Every configured currency must exist before transfers reference it
	if err := ensureItemTypes(ctx, uowFactory, cfg); err != nil {
		return fmt.Errorf("failed to ensure item types: %w", err)
	}

	// Initialize services
	log.Println("Initializing services...")
	votingService := service.NewVotingService(uowFactory, cfg, service.NewLogAnnouncer())
	generationService := service.NewGenerationService(uowFactory, cfg)
	log.Println("Services initialized successfully")

	// Background sweeps: resolve expired motions and run generation on
	// the configured schedule. Both are idempotent, so an overlapping or
	// missed tick is harmless.
	scheduler := cron.New()
	_, err = scheduler.AddFunc(cfg.SweepSchedule, func() {
		sweepCtx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()

		if resolved, err := votingService.ResolveDue(sweepCtx, time.Now()); err != nil {
			log.Printf("Motion resolution sweep failed: %v", err)
		} else if resolved > 0 {
			log.Printf("Resolved %d motions", resolved)
		}

		if _, err := generationService.RunGenerationCycle(sweepCtx, time.Now()); err != nil {
			log.Printf("Generation cycle failed: %v", err)
		}
	})
	if err != nil {
		return fmt.Errorf("failed to schedule sweeps: %w", err)
	}
	scheduler.Start()
	log.Printf("Sweeps scheduled (%s)", cfg.SweepSchedule)

	// Wait for context cancellation
	log.Printf("Engine is running in %s mode...", cfg.Environment)
	<-ctx.Done()

	// Cleanup resources
	log.Println("Shutting down...")

	// Let an in-flight sweep finish before closing the pool
	stopCtx := scheduler.Stop()
	select {
	case <-stopCtx.Done():
	case <-time.After(10 * time.Second):
		log.Println("Timed out waiting for sweeps to stop")
	}

	log.Println("Closing database connection...")
	db.Close()

	log.Println("Shutdown completed")
	return nil
}

// ensureItemTypes creates the vote currency and every generation
// currency that does not exist yet
func ensureItemTypes(ctx context.Context, uowFactory service.UnitOfWorkFactory, cfg *config.Config) error {
	names := map[string]bool{cfg.VoteCurrency: true}
	for currency := range cfg.GenerationRates {
		names[currency] = true
	}

	uow := uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return err
	}
	defer uow.Rollback()

	for name := range names {
		existing, err := uow.ItemTypeRepository().GetByName(ctx, name)
		if err != nil {
			return err
		}
		if existing != nil {
			continue
		}
		err = uow.ItemTypeRepository().Create(ctx, &models.ItemType{
			Name:              name,
			LongNamePlural:    name,
			LongNameAmbiguous: name,
		})
		if err != nil {
			return err
		}
		log.Printf("Created item type %q", name)
	}

	return uow.Commit()
}

func subscribeLogging(bus *events.Bus) {
	bus.Subscribe(events.EventTypeMotionResolved, func(ctx context.Context, event events.Event) {
		e := event.(events.MotionResolvedEvent)
		log.Printf("Motion %s resolved (passed=%v, %d for / %d against)",
			e.PublicID, e.Passed, e.YesTotal, e.NoTotal)
	})
	bus.Subscribe(events.EventTypeGenerationCompleted, func(ctx context.Context, event events.Event) {
		e := event.(events.GenerationCompletedEvent)
		log.Printf("Generation minted %d across %d users (%d intervals)",
			e.TotalMinted, e.UsersPaid, e.Intervals)
	})
}
