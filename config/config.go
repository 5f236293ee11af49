package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Config holds all application configuration
type Config struct {
	// Database configuration
	DatabaseURL string

	// Voting configuration
	VoteCurrency     string        // item type spent as voting power
	VotingWindow     time.Duration // how long a motion accepts votes
	SupermajorityNum int64         // N in the N:1 supermajority threshold
	MotionCreateCost int64         // vote currency charged to create a motion

	// Generation configuration
	GenerationInterval time.Duration    // minimum elapsed time between mints
	GenerationRates    map[string]int64 // item type -> amount minted per interval per user

	// How often background sweeps run (resolution + generation)
	SweepSchedule string // cron spec

	// Environment
	Environment string // "development", "production" or "test"
}

var (
	instance *Config
	once     sync.Once
)

// Get returns the global configuration instance
func Get() *Config {
	once.Do(func() {
		var err error
		instance, err = load()
		if err != nil {
			panic(fmt.Sprintf("failed to load config: %v", err))
		}
	})
	return instance
}

// load loads configuration from environment variables
func load() (*Config, error) {
	config := &Config{
		DatabaseURL: os.Getenv("DATABASE_URL"),

		// Voting defaults
		VoteCurrency:     "pc",
		VotingWindow:     48 * time.Hour,
		SupermajorityNum: 2,
		MotionCreateCost: 1,

		// Generation defaults: 1 pc per user per day
		GenerationInterval: 24 * time.Hour,
		GenerationRates:    map[string]int64{"pc": 1},

		SweepSchedule: "@every 1m",

		Environment: os.Getenv("ENVIRONMENT"),
	}

	if currency := os.Getenv("VOTE_CURRENCY"); currency != "" {
		config.VoteCurrency = currency
	}
	if window := os.Getenv("VOTING_WINDOW"); window != "" {
		parsed, err := time.ParseDuration(window)
		if err != nil {
			return nil, fmt.Errorf("invalid VOTING_WINDOW: %w", err)
		}
		if parsed <= 0 {
			return nil, fmt.Errorf("VOTING_WINDOW must be positive: %q", window)
		}
		config.VotingWindow = parsed
	}
	if ratio := os.Getenv("SUPERMAJORITY_RATIO"); ratio != "" {
		parsed, err := strconv.ParseInt(ratio, 10, 64)
		if err != nil || parsed < 1 {
			return nil, fmt.Errorf("invalid SUPERMAJORITY_RATIO: %q", ratio)
		}
		config.SupermajorityNum = parsed
	}
	if cost := os.Getenv("MOTION_CREATE_COST"); cost != "" {
		parsed, err := strconv.ParseInt(cost, 10, 64)
		if err != nil || parsed < 0 {
			return nil, fmt.Errorf("invalid MOTION_CREATE_COST: %q", cost)
		}
		config.MotionCreateCost = parsed
	}
	if interval := os.Getenv("GENERATION_INTERVAL"); interval != "" {
		parsed, err := time.ParseDuration(interval)
		if err != nil {
			return nil, fmt.Errorf("invalid GENERATION_INTERVAL: %w", err)
		}
		// Zero would divide by zero in the interval arithmetic
		if parsed <= 0 {
			return nil, fmt.Errorf("GENERATION_INTERVAL must be positive: %q", interval)
		}
		config.GenerationInterval = parsed
	}
	if rates := os.Getenv("GENERATION_RATES"); rates != "" {
		parsed, err := parseRates(rates)
		if err != nil {
			return nil, err
		}
		config.GenerationRates = parsed
	}
	if schedule := os.Getenv("SWEEP_SCHEDULE"); schedule != "" {
		config.SweepSchedule = schedule
	}

	if config.Environment == "" {
		config.Environment = "development"
	}

	if config.Environment != "test" {
		if config.DatabaseURL == "" {
			return nil, fmt.Errorf("DATABASE_URL is required")
		}
	}

	return config, nil
}

// parseRates parses "pc=1,karma=5" into a rate map.
func parseRates(raw string) (map[string]int64, error) {
	rates := make(map[string]int64)
	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		parts := strings.SplitN(pair, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid GENERATION_RATES entry: %q", pair)
		}
		rate, err := strconv.ParseInt(strings.TrimSpace(parts[1]), 10, 64)
		if err != nil || rate < 0 {
			return nil, fmt.Errorf("invalid GENERATION_RATES rate: %q", pair)
		}
		rates[strings.TrimSpace(parts[0])] = rate
	}
	return rates, nil
}
