// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Blockstranding Contributors

package delegation

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/nrdxhq/blockstranding/internal/player"
	"github.com/nrdxhq/blockstranding/pkg/errutil"
)

// DefaultSweepInterval is how often the sweeper scans delegated entities.
const DefaultSweepInterval = 5 * time.Second

// SweeperConfig holds dependencies for Sweeper.
type SweeperConfig struct {
	Store      player.Store
	Controller *Controller
	Reconciler *Reconciler
	Interval   time.Duration
	Logger     *slog.Logger
}

// Sweeper drives delegations forward without a caller: it resumes
// checkpoints left by an interrupted operation, commits delegated state on
// schedule, and reclaims expired delegations.
type Sweeper struct {
	store      player.Store
	controller *Controller
	reconciler *Reconciler
	interval   time.Duration
	logger     *slog.Logger
	clock      func() time.Time

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewSweeper creates a sweeper.
func NewSweeper(cfg SweeperConfig) *Sweeper {
	interval := cfg.Interval
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{
		store:      cfg.Store,
		controller: cfg.Controller,
		reconciler: cfg.Reconciler,
		interval:   interval,
		logger:     logger,
		clock:      time.Now,
	}
}

// SweepResult counts what one sweep did.
type SweepResult struct {
	Resumed   int
	Committed int
	Reclaimed int
	Failed    int
}

// RunOnce executes a single sweep. Every entity is attempted even if earlier
// ones fail; errors are combined.
func (s *Sweeper) RunOnce(ctx context.Context) (SweepResult, error) {
	var res SweepResult
	ents, err := s.store.ListByAuthority(ctx, player.Delegating, player.DelegatedOwned, player.Reconciling)
	if err != nil {
		return res, err
	}

	now := s.clock()
	var errs []error
	for _, ent := range ents {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
		if err := s.sweep(ctx, ent, now, &res); err != nil {
			res.Failed++
			errutil.LogError(s.logger.With("address", ent.Address.String(), "authority", ent.Authority.String()),
				"sweep failed", err)
			errs = append(errs, err)
		}
	}
	return res, errors.Join(errs...)
}

func (s *Sweeper) sweep(ctx context.Context, ent *player.Entity, now time.Time, res *SweepResult) error {
	switch ent.Authority {
	case player.Delegating:
		ok, err := s.controller.Resume(ctx, ent.Address)
		if ok {
			res.Resumed++
		}
		return err
	case player.Reconciling:
		ok, err := s.reconciler.Resume(ctx, ent.Address)
		if ok {
			res.Resumed++
		}
		return err
	case player.DelegatedOwned:
		if ent.Descriptor == nil {
			return nil
		}
		if ent.Descriptor.Expired(now) {
			_, err := s.reconciler.Reclaim(ctx, ent.Address)
			if errors.Is(err, player.ErrNotDelegated) {
				// Undelegated since the listing.
				return nil
			}
			if err != nil {
				return err
			}
			res.Reclaimed++
			return nil
		}
		if ent.Descriptor.CommitDue(now) {
			ok, err := s.reconciler.Commit(ctx, ent.Address)
			if ok {
				res.Committed++
			}
			if errors.Is(err, player.ErrNotDelegated) {
				return nil
			}
			return err
		}
	}
	return nil
}

// Start begins periodic sweeping in the background.
func (s *Sweeper) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.Run(ctx)
	}()
}

// Stop stops the sweeper and waits for the current sweep to finish.
func (s *Sweeper) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

// Run sweeps immediately and then every interval until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.runOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runOnce(ctx)
		}
	}
}

func (s *Sweeper) runOnce(ctx context.Context) {
	res, err := s.RunOnce(ctx)
	if err != nil && ctx.Err() == nil {
		s.logger.Error("sweep cycle had failures", "failed", res.Failed, "error", err)
	}
	if res.Resumed+res.Committed+res.Reclaimed > 0 {
		s.logger.Info("sweep cycle complete",
			"resumed", res.Resumed, "committed", res.Committed, "reclaimed", res.Reclaimed)
	}
}
