package app

import (
	"context"
	"log"
	"time"
)

// Sweeper drives the time-based transitions: offer expiry, listing expiry,
// deposit timeouts, and buyer-confirmation timeouts. Every pass is just a set
// of ordinary transition attempts under per-entity locks, so sweeps are safe
// to run concurrently with live requests (and with each other).
type Sweeper struct {
	offers    *OfferService
	contracts *ContractService
	listings  *ListingService
	logger    *log.Logger

	interval  time.Duration
	batchSize int
}

const (
	defaultSweepInterval = time.Minute
	defaultSweepBatch    = 100
)

func NewSweeper(offers *OfferService, contracts *ContractService, listings *ListingService, logger *log.Logger, opts ...SweeperOption) *Sweeper {
	if logger == nil {
		logger = log.Default()
	}
	s := &Sweeper{
		offers:    offers,
		contracts: contracts,
		listings:  listings,
		logger:    logger,
		interval:  defaultSweepInterval,
		batchSize: defaultSweepBatch,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type SweeperOption func(*Sweeper)

// WithSweepInterval overrides the pass interval.
func WithSweepInterval(d time.Duration) SweeperOption {
	return func(s *Sweeper) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithSweepBatch overrides how many due entities a single pass picks up.
func WithSweepBatch(n int) SweeperOption {
	return func(s *Sweeper) {
		if n > 0 {
			s.batchSize = n
		}
	}
}

// Run sweeps on the configured interval until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce executes a single pass. Errors are logged, never fatal: a failed
// transition stays due and is retried on the next pass.
func (s *Sweeper) RunOnce(ctx context.Context) {
	if n, err := s.offers.ExpireDue(ctx, s.batchSize); err != nil {
		s.logger.Printf("sweep offers error=%v", err)
	} else if n > 0 {
		s.logger.Printf("sweep offers expired=%d", n)
	}

	if n, err := s.contracts.CancelOverdueDeposits(ctx, s.batchSize); err != nil {
		s.logger.Printf("sweep deposits error=%v", err)
	} else if n > 0 {
		s.logger.Printf("sweep deposits cancelled=%d", n)
	}

	if n, err := s.contracts.CompleteOverdueConfirmations(ctx, s.batchSize); err != nil {
		s.logger.Printf("sweep confirmations error=%v", err)
	} else if n > 0 {
		s.logger.Printf("sweep confirmations completed=%d", n)
	}

	if n, err := s.listings.ExpireReady(ctx); err != nil {
		s.logger.Printf("sweep listings error=%v", err)
	} else if n > 0 {
		s.logger.Printf("sweep listings expired=%d", n)
	}
}
