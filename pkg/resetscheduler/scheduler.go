// Package resetscheduler implements the rate-limit reset scheduler: a
// single long-running goroutine holding a delay-ordered priority queue
// of (key_id, fires_at) entries, fed by a bounded command channel.
// Reset delays are per-key and arbitrary rather than periodic, so the
// queue is a container/heap min-heap driven by a single re-armed timer
// instead of a ticker.
package resetscheduler

import (
	"container/heap"
	"context"
	"log/slog"
	"time"

	"aperturegw/gateway/pkg/gatewaydb"
	"aperturegw/gateway/pkg/telemetry/metrics"
)

// CommandCapacity bounds the Schedule command channel.
const CommandCapacity = 128

// Resetter performs the delayed-validation reset when an entry fires.
// Implemented by *health.Service in production.
type Resetter interface {
	MarkHealthyIfStillRateLimited(ctx context.Context, keyID string) error
}

type resetEntry struct {
	keyID   string
	firesAt time.Time
	seq     uint64 // insertion order, used to break firesAt ties
	index   int    // heap.Interface bookkeeping
}

type resetHeap []*resetEntry

func (h resetHeap) Len() int { return len(h) }
func (h resetHeap) Less(i, j int) bool {
	if h[i].firesAt.Equal(h[j].firesAt) {
		return h[i].seq < h[j].seq
	}
	return h[i].firesAt.Before(h[j].firesAt)
}
func (h resetHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}
func (h *resetHeap) Push(x any) {
	e := x.(*resetEntry)
	e.index = len(*h)
	*h = append(*h, e)
}
func (h *resetHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*h = old[:n-1]
	return e
}

// scheduleCmd is sent over the bounded command channel.
type scheduleCmd struct {
	keyID   string
	firesAt time.Time
}

// Scheduler owns the reset queue; its goroutine is the only one
// permitted to mutate it, all other callers go through the command
// channel.
type Scheduler struct {
	// FireTimeout bounds a single delayed-validation reset callback.
	// Set before Start; zero means 5s.
	FireTimeout time.Duration

	store    gatewaydb.Store
	resetter Resetter
	metrics  *metrics.Collector
	logger   *slog.Logger

	commands chan scheduleCmd
	stop     chan struct{}
	done     chan struct{}

	byKey   map[string]*resetEntry
	queue   resetHeap
	nextSeq uint64
}

// New constructs a Scheduler. collector may be nil. Call Start to begin
// its goroutine.
func New(store gatewaydb.Store, resetter Resetter, collector *metrics.Collector) *Scheduler {
	return &Scheduler{
		store:    store,
		resetter: resetter,
		metrics:  collector,
		logger:   slog.Default().With("component", "resetscheduler"),
		commands: make(chan scheduleCmd, CommandCapacity),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
		byKey:    make(map[string]*resetEntry),
	}
}

// Schedule enqueues (or idempotently replaces) a reset event for keyID
// at firesAt. It is safe to call concurrently from request-handling
// goroutines.
func (s *Scheduler) Schedule(ctx context.Context, keyID string, firesAt time.Time) {
	select {
	case s.commands <- scheduleCmd{keyID: keyID, firesAt: firesAt}:
	case <-ctx.Done():
	case <-s.stop:
	}
}

// Start reloads still-rate-limited keys from the store (crash recovery)
// and begins the scheduler's single goroutine.
func (s *Scheduler) Start(ctx context.Context) error {
	keys, err := s.store.ListRateLimitedKeys(ctx)
	if err != nil {
		return err
	}

	now := time.Now()
	for _, k := range keys {
		if k.RateLimitResetsAt == nil {
			continue
		}
		if k.RateLimitResetsAt.After(now) {
			s.push(k.ID, *k.RateLimitResetsAt)
		} else {
			// Past-due: reset immediately in a detached task.
			go s.fire(k.ID)
		}
	}

	go s.run()
	return nil
}

// Stop signals the scheduler's goroutine to exit and waits for it.
func (s *Scheduler) Stop() {
	close(s.stop)
	<-s.done
}

func (s *Scheduler) run() {
	defer close(s.done)

	timer := time.NewTimer(time.Hour)
	if !timer.Stop() {
		<-timer.C
	}
	timerActive := false

	armNext := func() {
		if timerActive && !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timerActive = false
		if len(s.queue) == 0 {
			return
		}
		d := time.Until(s.queue[0].firesAt)
		if d < 0 {
			d = 0
		}
		timer.Reset(d)
		timerActive = true
	}

	armNext()

	for {
		select {
		case <-s.stop:
			return

		case cmd := <-s.commands:
			s.replace(cmd.keyID, cmd.firesAt)
			armNext()

		case <-timer.C:
			timerActive = false
			now := time.Now()
			for len(s.queue) > 0 && !s.queue[0].firesAt.After(now) {
				e := heap.Pop(&s.queue).(*resetEntry)
				delete(s.byKey, e.keyID)
				go s.fire(e.keyID)
			}
			armNext()
		}
	}
}

func (s *Scheduler) fire(keyID string) {
	timeout := s.FireTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := s.resetter.MarkHealthyIfStillRateLimited(ctx, keyID); err != nil {
		s.logger.Warn("reset fire failed", "key_id", keyID, "error", err)
		return
	}
	s.metrics.RecordRateLimitReset()
}

// replace implements the idempotent re-Schedule semantics: a second
// Schedule for the same key replaces its heap entry rather than adding
// a duplicate.
func (s *Scheduler) replace(keyID string, firesAt time.Time) {
	if existing, ok := s.byKey[keyID]; ok {
		heap.Remove(&s.queue, existing.index)
		delete(s.byKey, keyID)
	}
	s.push(keyID, firesAt)
}

func (s *Scheduler) push(keyID string, firesAt time.Time) {
	e := &resetEntry{keyID: keyID, firesAt: firesAt, seq: s.nextSeq}
	s.nextSeq++
	heap.Push(&s.queue, e)
	s.byKey[keyID] = e
}
