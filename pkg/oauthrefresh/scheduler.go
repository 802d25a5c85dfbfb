// Package oauthrefresh implements the OAuth refresh scheduler: an
// in-memory min-heap keyed by next_refresh_at, a command channel
// (Enqueue/Remove), per-session mutexes, and bounded concurrent
// refreshes. Refreshes are due at per-session times, not on a shared
// period, so the due-time queue is a container/heap min-heap driven by
// a single re-armed timer rather than a ticker.
package oauthrefresh

import (
	"container/heap"
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"aperturegw/gateway/pkg/gatewaydb"
	"aperturegw/gateway/pkg/oauthclient"
	"aperturegw/gateway/pkg/telemetry/metrics"
)

// DefaultSkew is subtracted from expires_at to compute next_refresh_at.
const DefaultSkew = 5 * time.Minute

// DefaultMaxConcurrent bounds parallel in-flight refreshes across
// sessions.
const DefaultMaxConcurrent = 8

// DefaultMaxRetries is the number of transient-failure retries before
// a single session's refresh is escalated.
const DefaultMaxRetries = 3

// DefaultBackoffBase is the first retry delay; subsequent retries
// double it, capped by Config.BackoffCap.
const DefaultBackoffBase = 1 * time.Second

// TaskState is the scheduler's coarse lifecycle state.
type TaskState string

const (
	StateNotStarted TaskState = "not_started"
	StateRunning    TaskState = "running"
	StatePaused     TaskState = "paused"
	StateStopping   TaskState = "stopping"
	StateStopped    TaskState = "stopped"
	StateError      TaskState = "error"
)

// Stats accumulates refresh outcomes for operator visibility.
type Stats struct {
	TotalExecutions     int64
	SuccessfulRefreshes int64
	FailedRefreshes     int64
	ConsecutiveErrors   int64
	LastError           string
	LastExecutionTime   time.Time
}

// ClientFor resolves the OAuth client to use for a given ProviderType,
// since each provider type carries its own authorize/token endpoints.
type ClientFor func(providerTypeID string) (*oauthclient.Client, error)

type heapEntry struct {
	sessionID     string
	nextRefreshAt time.Time
	index         int
}

type refreshHeap []*heapEntry

func (h refreshHeap) Len() int            { return len(h) }
func (h refreshHeap) Less(i, j int) bool  { return h[i].nextRefreshAt.Before(h[j].nextRefreshAt) }
func (h refreshHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i]; h[i].index = i; h[j].index = j }
func (h *refreshHeap) Push(x any)         { e := x.(*heapEntry); e.index = len(*h); *h = append(*h, e) }
func (h *refreshHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*h = old[:n-1]
	return e
}

type command struct {
	enqueue       bool
	sessionID     string
	nextRefreshAt time.Time
}

// Config tunes the scheduler's concurrency and retry behavior.
type Config struct {
	Skew          time.Duration
	MaxConcurrent int
	MaxRetries    int
	BackoffBase   time.Duration
	BackoffCap    time.Duration

	// Metrics receives refresh-outcome instrumentation. Nil disables it.
	Metrics *metrics.Collector
}

// DefaultConfig returns the scheduler's documented defaults.
func DefaultConfig() Config {
	return Config{
		Skew:          DefaultSkew,
		MaxConcurrent: DefaultMaxConcurrent,
		MaxRetries:    DefaultMaxRetries,
		BackoffBase:   DefaultBackoffBase,
		BackoffCap:    30 * time.Second,
	}
}

// Scheduler is the OAuth refresh scheduler.
type Scheduler struct {
	store     gatewaydb.Store
	clientFor ClientFor
	config    Config
	logger    *slog.Logger

	commands chan command
	stop     chan struct{}
	done     chan struct{}

	sem chan struct{} // bounds concurrent in-flight refreshes

	byID  map[string]*heapEntry
	queue refreshHeap

	sessionLocksMu sync.Mutex
	sessionLocks   map[string]*sync.Mutex

	mu     sync.Mutex
	state  TaskState
	stats  Stats
	paused bool
}

// New constructs a Scheduler. Call Start to begin its goroutine.
func New(store gatewaydb.Store, clientFor ClientFor, config Config) *Scheduler {
	if config.MaxConcurrent <= 0 {
		config.MaxConcurrent = DefaultMaxConcurrent
	}
	if config.MaxRetries <= 0 {
		config.MaxRetries = DefaultMaxRetries
	}
	if config.BackoffBase <= 0 {
		config.BackoffBase = DefaultBackoffBase
	}
	if config.BackoffCap <= 0 {
		config.BackoffCap = DefaultConfig().BackoffCap
	}
	if config.Skew <= 0 {
		config.Skew = DefaultSkew
	}

	return &Scheduler{
		store:        store,
		clientFor:    clientFor,
		config:       config,
		logger:       slog.Default().With("component", "oauthrefresh"),
		commands:     make(chan command, 128),
		stop:         make(chan struct{}),
		done:         make(chan struct{}),
		sem:          make(chan struct{}, config.MaxConcurrent),
		byID:         make(map[string]*heapEntry),
		sessionLocks: make(map[string]*sync.Mutex),
		state:        StateNotStarted,
	}
}

// Enqueue schedules (or replaces) a refresh due-time for sessionID.
func (s *Scheduler) Enqueue(sessionID string, nextRefreshAt time.Time) {
	select {
	case s.commands <- command{enqueue: true, sessionID: sessionID, nextRefreshAt: nextRefreshAt}:
	case <-s.stop:
	}
}

// Remove cancels a pending refresh for sessionID, if any.
func (s *Scheduler) Remove(sessionID string) {
	select {
	case s.commands <- command{sessionID: sessionID}:
	case <-s.stop:
	}
}

// lockFor returns the per-session mutex for sessionID, lazily
// creating it.
func (s *Scheduler) lockFor(sessionID string) *sync.Mutex {
	s.sessionLocksMu.Lock()
	defer s.sessionLocksMu.Unlock()
	m, ok := s.sessionLocks[sessionID]
	if !ok {
		m = &sync.Mutex{}
		s.sessionLocks[sessionID] = m
	}
	return m
}

// RefreshNowLocked performs an on-demand refresh for sessionID,
// acquiring the same per-session mutex the scheduler's own loop uses,
// so the opportunistic request-time path and the proactive loop never
// refresh one session concurrently.
func (s *Scheduler) RefreshNowLocked(ctx context.Context, sessionID string) error {
	lock := s.lockFor(sessionID)
	lock.Lock()
	defer lock.Unlock()
	return s.refreshOnce(ctx, sessionID)
}

// Start reloads authorized sessions owned by active OAuth keys and
// begins the scheduler's goroutine.
func (s *Scheduler) Start(ctx context.Context, initial []Seed) {
	now := time.Now()
	for _, seed := range initial {
		if seed.NextRefreshAt.After(now) {
			s.push(seed.SessionID, seed.NextRefreshAt)
		} else {
			go s.attemptWithRetry(seed.SessionID, 0)
		}
	}

	s.mu.Lock()
	s.state = StateRunning
	s.mu.Unlock()

	go s.run()
}

// Seed is one session due for reload at scheduler startup.
type Seed struct {
	SessionID     string
	NextRefreshAt time.Time
}

// Stop drains in-flight refreshes up to the given grace period and
// stops the scheduler's goroutine.
func (s *Scheduler) Stop(grace time.Duration) {
	s.mu.Lock()
	s.state = StateStopping
	s.mu.Unlock()

	close(s.stop)

	select {
	case <-s.done:
	case <-time.After(grace):
	}

	s.mu.Lock()
	s.state = StateStopped
	s.mu.Unlock()
}

// Pause and Resume are the operator control surface; a paused
// scheduler keeps accepting commands but fires no refreshes.
func (s *Scheduler) Pause() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paused = true
	s.state = StatePaused
}

func (s *Scheduler) Resume() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paused = false
	s.state = StateRunning
}

// State returns the scheduler's current TaskState.
func (s *Scheduler) State() TaskState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// StatsSnapshot returns a copy of the scheduler's accumulated stats.
func (s *Scheduler) StatsSnapshot() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

func (s *Scheduler) run() {
	defer close(s.done)

	timer := time.NewTimer(time.Hour)
	if !timer.Stop() {
		<-timer.C
	}
	active := false

	armNext := func() {
		if active && !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		active = false
		if len(s.queue) == 0 {
			return
		}
		d := time.Until(s.queue[0].nextRefreshAt)
		if d < 0 {
			d = 0
		}
		timer.Reset(d)
		active = true
	}

	armNext()

	for {
		select {
		case <-s.stop:
			return

		case cmd := <-s.commands:
			if cmd.enqueue {
				s.replace(cmd.sessionID, cmd.nextRefreshAt)
			} else {
				s.removeEntry(cmd.sessionID)
			}
			armNext()

		case <-timer.C:
			active = false
			s.mu.Lock()
			paused := s.paused
			s.mu.Unlock()

			if !paused {
				now := time.Now()
				for len(s.queue) > 0 && !s.queue[0].nextRefreshAt.After(now) {
					e := heap.Pop(&s.queue).(*heapEntry)
					delete(s.byID, e.sessionID)
					go s.attemptWithRetry(e.sessionID, 0)
				}
			}
			armNext()
		}
	}
}

// attemptWithRetry performs one refresh attempt, retrying transient
// failures with exponential backoff (base 1s, capped, up to
// config.MaxRetries retries) before escalating the session to error
// status.
func (s *Scheduler) attemptWithRetry(sessionID string, attempt int) {
	select {
	case s.sem <- struct{}{}:
		defer func() { <-s.sem }()
	case <-s.stop:
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	lock := s.lockFor(sessionID)
	lock.Lock()
	err := s.refreshOnce(ctx, sessionID)
	lock.Unlock()

	s.recordExecution(err)

	if err == nil {
		s.config.Metrics.RecordOAuthRefresh("success")
		return
	}

	var oe *oauthclient.OAuthError
	if errors.As(err, &oe) && oe.IsPermanent() {
		s.config.Metrics.RecordOAuthRefresh("permanent_error")
		// Permanent failure: session already transitioned to error by
		// refreshOnce; nothing left to retry.
		return
	}

	s.config.Metrics.RecordOAuthRefresh("transient_error")

	if attempt >= s.config.MaxRetries {
		s.logger.Warn("oauth refresh exhausted retries, escalating",
			"session_id", sessionID, "attempts", attempt+1)
		s.failSession(ctx, sessionID, err)
		return
	}

	backoff := s.config.BackoffBase << attempt
	if backoff > s.config.BackoffCap {
		backoff = s.config.BackoffCap
	}
	time.AfterFunc(backoff, func() {
		s.attemptWithRetry(sessionID, attempt+1)
	})
}

// refreshOnce reloads the session, skips if not authorized, calls the
// refresh endpoint, and persists the result.
func (s *Scheduler) refreshOnce(ctx context.Context, sessionID string) error {
	sess, err := s.store.LoadOAuthSession(ctx, sessionID)
	if err != nil {
		return err
	}
	if sess.Status != gatewaydb.OAuthAuthorized {
		return nil
	}

	client, err := s.clientFor(sess.ProviderTypeID)
	if err != nil {
		return err
	}

	tok, err := client.Refresh(ctx, sess.RefreshToken)
	if err != nil {
		var oe *oauthclient.OAuthError
		if errors.As(err, &oe) && oe.IsPermanent() {
			s.failSession(ctx, sessionID, err)
		}
		return err
	}

	if err := s.store.PersistOAuthTokens(ctx, sessionID, tok.AccessToken, tok.RefreshToken, tok.IDToken, tok.ExpiresAt); err != nil {
		return err
	}

	if tok.ExpiresAt != nil {
		s.Enqueue(sessionID, tok.ExpiresAt.Add(-s.config.Skew))
	}
	return nil
}

func (s *Scheduler) failSession(ctx context.Context, sessionID string, cause error) {
	// Best-effort: a session whose store write fails here will simply
	// be retried at its next natural refresh attempt or surfaced as an
	// ineligible key at SELECT_KEY time regardless.
	_ = s.store.MarkOAuthSessionError(ctx, sessionID, cause.Error())
	s.logger.Error("oauth session refresh failed permanently", "session_id", sessionID, "error", cause)
}

func (s *Scheduler) recordExecution(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stats.TotalExecutions++
	s.stats.LastExecutionTime = time.Now()
	if err == nil {
		s.stats.SuccessfulRefreshes++
		s.stats.ConsecutiveErrors = 0
		if s.state == StateError {
			s.paused = false
			s.state = StateRunning
		}
		return
	}

	s.stats.FailedRefreshes++
	s.stats.ConsecutiveErrors++
	s.stats.LastError = err.Error()

	if int(s.stats.ConsecutiveErrors) >= s.config.MaxRetries {
		// Auto-pause on sustained failure; an operator (or a later
		// successful on-demand refresh) resumes it.
		s.paused = true
		s.state = StateError
	}
}

// ExecuteNow triggers an immediate refresh for sessionID regardless of
// its queued due-time, the TaskControl surface's manual trigger.
func (s *Scheduler) ExecuteNow(sessionID string) {
	go s.attemptWithRetry(sessionID, 0)
}

func (s *Scheduler) replace(sessionID string, nextRefreshAt time.Time) {
	if existing, ok := s.byID[sessionID]; ok {
		heap.Remove(&s.queue, existing.index)
		delete(s.byID, sessionID)
	}
	s.push(sessionID, nextRefreshAt)
}

func (s *Scheduler) removeEntry(sessionID string) {
	if existing, ok := s.byID[sessionID]; ok {
		heap.Remove(&s.queue, existing.index)
		delete(s.byID, sessionID)
	}
}

func (s *Scheduler) push(sessionID string, nextRefreshAt time.Time) {
	e := &heapEntry{sessionID: sessionID, nextRefreshAt: nextRefreshAt}
	heap.Push(&s.queue, e)
	s.byID[sessionID] = e
}
