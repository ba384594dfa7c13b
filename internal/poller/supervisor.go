// internal/poller/supervisor.go
package poller

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	appErrors "github.com/unclebandit/campaign-engine/internal/errors"
	"github.com/unclebandit/campaign-engine/internal/remote"
)

// StatusFetcher is the slice of the remote client a poller needs.
type StatusFetcher interface {
	GetStatus(ctx context.Context, jobID string) (remote.JobStatusSnapshot, error)
}

// Reconciler is implemented by the lifecycle controller. The supervisor
// never touches campaign state directly.
type Reconciler interface {
	// PollTarget reports whether the campaign should still be polled and,
	// if so, which remote job to ask about.
	PollTarget(id string) (jobID string, ok bool)
	// ApplySnapshot merges one successful snapshot into local state and
	// reports whether the campaign is still in progress.
	ApplySnapshot(id string, snap remote.JobStatusSnapshot) bool
	// MarkJobGone records that the backend no longer knows the job.
	MarkJobGone(id string)
}

type handle struct {
	cancel context.CancelFunc
}

// Supervisor runs exactly one recurring status poll per in-progress
// campaign. Starting a poller for an id that already has one cancels the
// old one first; stopping never waits for an in-flight request.
type Supervisor struct {
	mu       sync.Mutex
	pollers  map[string]*handle
	interval time.Duration
	fetcher  StatusFetcher
	rec      Reconciler
	logger   *zap.Logger
	wg       sync.WaitGroup
}

func NewSupervisor(fetcher StatusFetcher, rec Reconciler, interval time.Duration, logger *zap.Logger) *Supervisor {
	return &Supervisor{
		pollers:  make(map[string]*handle),
		interval: interval,
		fetcher:  fetcher,
		rec:      rec,
		logger:   logger,
	}
}

// Start registers a poller for the campaign, replacing any existing one.
func (s *Supervisor) Start(id string) {
	s.mu.Lock()
	if old, ok := s.pollers[id]; ok {
		old.cancel()
	}
	ctx, cancel := context.WithCancel(context.Background())
	h := &handle{cancel: cancel}
	s.pollers[id] = h
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.deregister(id, h)
		s.run(ctx, id)
	}()
}

// Stop cancels and deregisters the campaign's poller, if any. It returns
// immediately; a response already in flight is discarded by the poller.
func (s *Supervisor) Stop(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if h, ok := s.pollers[id]; ok {
		h.cancel()
		delete(s.pollers, id)
	}
}

// Active reports whether a live poller is registered for the campaign.
func (s *Supervisor) Active(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.pollers[id]
	return ok
}

// Len returns the number of registered pollers.
func (s *Supervisor) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pollers)
}

// Shutdown cancels all pollers and waits for their goroutines to drain.
func (s *Supervisor) Shutdown() {
	s.mu.Lock()
	for id, h := range s.pollers {
		h.cancel()
		delete(s.pollers, id)
	}
	s.mu.Unlock()
	s.wg.Wait()
}

// deregister releases the slot, but only if it still belongs to this
// poller; a successor registered after Stop+Start must not be removed.
func (s *Supervisor) deregister(id string, h *handle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pollers[id] == h {
		delete(s.pollers, id)
	}
}

func (s *Supervisor) run(ctx context.Context, id string) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		jobID, ok := s.rec.PollTarget(id)
		if !ok {
			return
		}

		snap, err := s.fetcher.GetStatus(ctx, jobID)
		if ctx.Err() != nil {
			// Cancelled while the request was in flight; the response,
			// success or not, is stale.
			return
		}
		if err != nil {
			if appErrors.IsNotFound(err) {
				s.logger.Warn("remote job vanished, finishing campaign",
					zap.String("campaign_id", id), zap.String("job_id", jobID))
				s.rec.MarkJobGone(id)
				return
			}
			// Transient failure: skip this tick, keep the poller alive.
			s.logger.Warn("status poll failed",
				zap.String("campaign_id", id), zap.String("job_id", jobID), zap.Error(err))
			continue
		}

		if !s.rec.ApplySnapshot(id, snap) {
			return
		}
	}
}
