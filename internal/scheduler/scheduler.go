package scheduler

import (
	"container/heap"
	"context"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"github.com/SiliconLion/sumi/internal/config"
	"github.com/SiliconLion/sumi/internal/state"
	"github.com/SiliconLion/sumi/pkg/timeutil"
)

/*
Scheduler

Holds the in-memory priority frontier, the per-domain state map, and
the global concurrency semaphore. NextURL is the only suspension point
and suspends only during the pacing sleep; every other method is
synchronous and non-blocking.

Ordering: entries are scanned in ascending priority order, ties broken
by URL string ascending, and the first entry whose domain is ready is
dispatched. An entry whose domain is not yet ready is buffered during
the scan and re-pushed afterwards, so a ready lower-priority entry may
dispatch ahead of it.
*/

const (
	// maxScanWait caps the pacing active-wait per NextURL call.
	maxScanWait = 30 * time.Second
	// defaultWait is the fallback pacing sleep when no domain advertises
	// a shorter readiness time.
	defaultWait = 100 * time.Millisecond
	// minWait floors the pacing sleep for domains without state.
	minWait = 10 * time.Millisecond
	// waitBuffer pads the computed sleep so the domain is definitely
	// ready on the next scan.
	waitBuffer = 10 * time.Millisecond
)

// ScheduledFetch is one dispatched URL carrying its concurrency permit.
// Release must be called exactly once when the pipeline finishes.
type ScheduledFetch struct {
	URL     QueuedURL
	release func()
}

// Release frees the global concurrency slot held by this fetch.
func (s *ScheduledFetch) Release() {
	if s.release != nil {
		s.release()
		s.release = nil
	}
}

// Scheduler owns the frontier heap and the domain-state map. It has a
// single owner (the coordinator); methods are non-reentrant.
type Scheduler struct {
	sem      *semaphore.Weighted
	frontier frontierHeap
	domains  map[string]*state.DomainState
	cfg      config.Crawler
	sleeper  timeutil.Sleeper
	now      func() time.Time
	logger   zerolog.Logger
}

// New creates a Scheduler seeded with an initial frontier and the
// domain states loaded from storage.
func New(
	cfg config.Crawler,
	initialFrontier []QueuedURL,
	initialDomainStates map[string]*state.DomainState,
	logger zerolog.Logger,
) *Scheduler {
	if initialDomainStates == nil {
		initialDomainStates = make(map[string]*state.DomainState)
	}
	s := &Scheduler{
		sem:     semaphore.NewWeighted(int64(cfg.MaxConcurrentPagesOpen)),
		domains: initialDomainStates,
		cfg:     cfg,
		sleeper: timeutil.NewRealSleeper(),
		now:     time.Now,
		logger:  logger.With().Str("component", "scheduler").Logger(),
	}
	s.frontier = append(s.frontier, initialFrontier...)
	heap.Init(&s.frontier)
	return s
}

// SetSleeper replaces the pacing sleeper. This is useful for testing.
func (s *Scheduler) SetSleeper(sleeper timeutil.Sleeper) {
	s.sleeper = sleeper
}

// SetNowFunc replaces the clock. This is useful for testing.
func (s *Scheduler) SetNowFunc(now func() time.Time) {
	s.now = now
}

// NextURL returns the next dispatchable URL, or nil when the frontier
// is empty or no domain became ready within the scan cap.
//
//  1. Empty frontier returns nil, terminating the crawl loop.
//  2. One permit is acquired from the global semaphore; the returned
//     fetch carries it until Release.
//  3. Entries are popped in priority order and tested against their
//     domain's pacing gate; the first ready entry wins. Entries that
//     fail the gate are buffered and re-pushed after the scan.
//  4. When no entry is ready, the scheduler sleeps the minimum
//     readiness time over all frontier domains, then rescans.
//  5. Exceeding the 30s cap logs a warning and returns nil.
func (s *Scheduler) NextURL(ctx context.Context) *ScheduledFetch {
	if s.frontier.Len() == 0 {
		return nil
	}

	if err := s.sem.Acquire(ctx, 1); err != nil {
		return nil
	}

	startWaiting := s.now()

	for {
		if s.now().Sub(startWaiting) > maxScanWait {
			s.logger.Warn().
				Dur("max_wait", maxScanWait).
				Int("frontier_size", s.frontier.Len()).
				Msg("exceeded maximum wait time while waiting for domains")
			s.sem.Release(1)
			return nil
		}

		now := s.now()
		var notReady []QueuedURL
		var found *QueuedURL

		for s.frontier.Len() > 0 {
			queued := heap.Pop(&s.frontier).(QueuedURL)
			ds := s.domainState(queued.Domain)

			if ds.CanRequest(s.cfg, now) {
				found = &queued
				break
			}
			notReady = append(notReady, queued)
		}

		for _, queued := range notReady {
			heap.Push(&s.frontier, queued)
		}

		if found != nil {
			s.logger.Debug().Str("url", found.URL).Int("priority", found.Priority).Msg("dispatching URL")
			return &ScheduledFetch{
				URL:     *found,
				release: func() { s.sem.Release(1) },
			}
		}

		wait := s.minimumWaitTime(now)
		s.logger.Debug().
			Dur("wait", wait).
			Int("frontier_size", s.frontier.Len()).
			Msg("no domains ready, pacing")
		s.sleeper.Sleep(wait)

		if s.frontier.Len() == 0 {
			s.sem.Release(1)
			return nil
		}
	}
}

// minimumWaitTime computes how long to sleep before some frontier
// domain becomes ready.
func (s *Scheduler) minimumWaitTime(now time.Time) time.Duration {
	wait := defaultWait

	for _, queued := range s.frontier {
		ds, ok := s.domains[queued.Domain]
		if !ok {
			// No state yet means the domain is ready immediately.
			return minWait
		}
		remaining, waiting := ds.TimeUntilNextRequest(s.cfg, now)
		if !waiting {
			return minWait
		}
		if remaining < wait {
			wait = remaining
		}
	}

	return wait + waitBuffer
}

// AddToFrontier pushes a URL onto the in-memory frontier.
func (s *Scheduler) AddToFrontier(queued QueuedURL) {
	heap.Push(&s.frontier, queued)
}

// RecordRequest stamps a request against the domain's pacing state.
func (s *Scheduler) RecordRequest(domain string) {
	s.domainState(domain).RecordRequest(s.now())
}

// MarkRateLimited stickily flags a domain for the rest of the run.
func (s *Scheduler) MarkRateLimited(domain string) {
	s.domainState(domain).MarkRateLimited()
}

// DomainState returns the state for a domain, creating it lazily.
func (s *Scheduler) DomainState(domain string) *state.DomainState {
	return s.domainState(domain)
}

// AllDomainStates exposes the live domain-state map for persistence.
func (s *Scheduler) AllDomainStates() map[string]*state.DomainState {
	return s.domains
}

// FrontierSize returns the number of queued URLs.
func (s *Scheduler) FrontierSize() int {
	return s.frontier.Len()
}

// IsEmpty reports whether the frontier has no entries.
func (s *Scheduler) IsEmpty() bool {
	return s.frontier.Len() == 0
}

func (s *Scheduler) domainState(domain string) *state.DomainState {
	ds, ok := s.domains[domain]
	if !ok {
		ds = state.NewDomainState()
		s.domains[domain] = ds
	}
	return ds
}
