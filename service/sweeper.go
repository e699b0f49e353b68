package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/layer-3/tessera/ports"
	"github.com/robfig/cron/v3"
)

// DefaultSweepInterval is how often expired ledger entries are dropped
const DefaultSweepInterval = time.Minute

// Sweeper periodically removes expired entries from the revocation ledger.
// Verification never waits on it.
type Sweeper struct {
	ledger   ports.RevocationLedger
	interval time.Duration
	cron     *cron.Cron
	opts     options
}

// NewSweeper creates a new ledger sweeper
func NewSweeper(ledger ports.RevocationLedger, interval time.Duration, opts ...Option) (*Sweeper, error) {
	if interval == 0 {
		interval = DefaultSweepInterval
	}
	if interval < 0 {
		return nil, errors.New("sweep interval must be positive")
	}
	return &Sweeper{
		ledger:   ledger,
		interval: interval,
		cron:     cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		opts:     newOptions(opts),
	}, nil
}

// SweepOnce drops ledger entries that expired at or before now
func (s *Sweeper) SweepOnce(ctx context.Context) (int, error) {
	removed, err := s.ledger.Sweep(ctx, s.opts.now())
	if err != nil {
		return 0, fmt.Errorf("failed to sweep ledger: %w", err)
	}
	s.opts.metrics.LedgerSwept(removed)
	if removed > 0 {
		s.opts.logger.Info(ctx, "ledger swept", "removed", removed)
	}
	return removed, nil
}

// Run schedules the sweep and blocks until ctx is done
func (s *Sweeper) Run(ctx context.Context) error {
	_, err := s.cron.AddFunc(fmt.Sprintf("@every %s", s.interval), func() {
		if _, err := s.SweepOnce(ctx); err != nil {
			s.opts.logger.Warn(ctx, "ledger sweep failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("failed to schedule sweep: %w", err)
	}

	s.cron.Start()
	s.opts.logger.Info(ctx, "ledger sweeper started", "interval", s.interval.String())

	<-ctx.Done()
	<-s.cron.Stop().Done()
	s.opts.logger.Info(context.Background(), "ledger sweeper stopped")
	return nil
}
