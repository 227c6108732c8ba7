package worker

import (
	"context"
	"sync"
	"time"

	"github.com/wolfinder/badges/internal/domain/model"
	"github.com/wolfinder/badges/pkg/logger"
)

// HolderLister lists professionals holding at least one active award.
type HolderLister interface {
	ProfessionalsWithActiveAwards(ctx context.Context) ([]int64, error)
}

// Submitter accepts jobs.
type Submitter interface {
	Submit(ctx context.Context, job model.Job) error
}

// Sweeper periodically enqueues a decay sweep for every award holder.
type Sweeper struct {
	holders  HolderLister
	jobs     Submitter
	interval time.Duration
	logger   logger.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewSweeper creates a sweeper that ticks every interval.
func NewSweeper(holders HolderLister, jobs Submitter, interval time.Duration, l logger.Logger) *Sweeper {
	if l == nil {
		l = logger.Named("decay-sweeper")
	}
	return &Sweeper{holders: holders, jobs: jobs, interval: interval, logger: l}
}

// RunOnce enqueues one decay sweep per award holder and returns how many
// jobs were accepted and rejected.
func (s *Sweeper) RunOnce(ctx context.Context) (enqueued, rejected int, err error) {
	ids, err := s.holders.ProfessionalsWithActiveAwards(ctx)
	if err != nil {
		return 0, 0, err
	}
	now := time.Now()
	for _, id := range ids {
		if err := s.jobs.Submit(ctx, model.Job{Kind: model.JobDecaySweep, ProfessionalID: id, RequestedAt: now}); err != nil {
			rejected++
			continue
		}
		enqueued++
	}
	return enqueued, rejected, nil
}

// Start runs the sweep loop in the background. A non-positive interval
// disables it.
func (s *Sweeper) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.interval <= 0 || s.cancel != nil {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	go s.loop(ctx, s.done)
}

func (s *Sweeper) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			enqueued, rejected, err := s.RunOnce(ctx)
			if err != nil {
				s.logger.Error(ctx, "decay sweep failed", logger.Error(err))
				continue
			}
			s.logger.Debug(ctx, "decay sweep enqueued",
				logger.Int("enqueued", enqueued),
				logger.Int("rejected", rejected),
			)
		}
	}
}

// Stop ends the loop and waits for it to exit.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}
