// Package sweeper runs the periodic overdue scan.
package sweeper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"libtrack/pkg/apperr"
	"libtrack/pkg/circuitbreaker"
	"libtrack/pkg/clock"
	"libtrack/pkg/lifecycle"
	"libtrack/pkg/models"
	"libtrack/pkg/telemetry"
)

// ErrSkipped is returned by Tick when another tick is still running.
var ErrSkipped = errors.New("previous sweep still in flight")

// OverdueLister finds the candidates of a tick.
type OverdueLister interface {
	ListOverdue(ctx context.Context, now time.Time) ([]models.Borrowing, error)
}

// Marker flags a single borrowing; *lifecycle.Manager implements it.
type Marker interface {
	MarkOverdue(ctx context.Context, borrowingID string) (lifecycle.OverdueResult, error)
}

// Flusher is the event dispatcher retry queue, flushed once per tick.
type Flusher interface {
	Flush(ctx context.Context) (delivered, dropped int)
}

type Result struct {
	Scanned  int
	Flagged  int
	Notified int
	Failed   int
}

type Sweeper struct {
	lister   OverdueLister
	marker   Marker
	flusher  Flusher
	breaker  *circuitbreaker.CircuitBreaker
	clock    clock.Clock
	logger   *slog.Logger
	tel      *telemetry.Telemetry
	interval time.Duration

	running atomic.Bool

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

type Option func(*Sweeper)

func WithClock(c clock.Clock) Option {
	return func(s *Sweeper) { s.clock = c }
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Sweeper) { s.logger = logger }
}

func WithTelemetry(tel *telemetry.Telemetry) Option {
	return func(s *Sweeper) { s.tel = tel }
}

func WithFlusher(f Flusher) Option {
	return func(s *Sweeper) { s.flusher = f }
}

// WithBreaker replaces the default breaker guarding the overdue listing.
func WithBreaker(cb *circuitbreaker.CircuitBreaker) Option {
	return func(s *Sweeper) { s.breaker = cb }
}

func New(lister OverdueLister, marker Marker, interval time.Duration, opts ...Option) *Sweeper {
	s := &Sweeper{
		lister:   lister,
		marker:   marker,
		clock:    clock.System{},
		logger:   slog.Default(),
		tel:      telemetry.Noop(),
		interval: interval,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.breaker == nil {
		s.breaker = circuitbreaker.NewCircuitBreaker(3, 10*time.Minute, circuitbreaker.WithClock(s.clock))
	}
	return s
}

// Start launches the sweep loop on a wall-clock ticker. The first tick fires
// immediately.
func (s *Sweeper) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}

	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})

	ticks := make(chan time.Time, 1)
	ticks <- s.clock.Now()
	go func() {
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case t := <-ticker.C:
				select {
				case ticks <- t:
				default:
				}
			}
		}
	}()

	go func() {
		defer close(s.done)
		s.Run(ctx, ticks)
	}()
	s.logger.Info("overdue sweeper started", "interval", s.interval)
}

// Stop cancels the loop and waits for an in-flight tick to finish.
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
	s.logger.Info("overdue sweeper stopped")
}

// Run sweeps once per value received from ticks until ctx is cancelled or
// ticks is closed. Tick failures are logged; the loop keeps going.
func (s *Sweeper) Run(ctx context.Context, ticks <-chan time.Time) {
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-ticks:
			if !ok {
				return
			}
			if _, err := s.Tick(ctx); err != nil && !errors.Is(err, ErrSkipped) {
				s.logger.Error("overdue sweep failed", "error", err)
			}
		}
	}
}

// Tick performs one sweep. It returns ErrSkipped without doing anything if
// a tick is already running, and circuitbreaker.ErrOpen while the store is
// considered down.
func (s *Sweeper) Tick(ctx context.Context) (res Result, err error) {
	if !s.running.CompareAndSwap(false, true) {
		s.logger.Warn("overdue sweep skipped, previous tick still running")
		return Result{}, ErrSkipped
	}
	defer s.running.Store(false)

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("overdue sweep panicked: %v", r)
		}
	}()

	ctx, span := s.tel.Start(ctx, "sweeper.Tick")
	defer func() { s.tel.End(ctx, span, "sweep", err) }()

	if s.flusher != nil {
		s.flusher.Flush(ctx)
	}

	now := s.clock.Now()
	var due []models.Borrowing
	err = s.breaker.Execute(func() error {
		var listErr error
		due, listErr = s.lister.ListOverdue(ctx, now)
		return listErr
	}, nil)
	if err != nil {
		return Result{}, err
	}

	res.Scanned = len(due)
	for i := range due {
		s.sweepOne(ctx, &due[i], &res)
	}

	s.tel.CountSweep(ctx, "flagged", res.Flagged)
	s.tel.CountSweep(ctx, "notified", res.Notified)
	s.tel.CountSweep(ctx, "failed", res.Failed)
	s.logger.Info("overdue sweep finished",
		"scanned", res.Scanned, "flagged", res.Flagged, "notified", res.Notified, "failed", res.Failed)
	return res, nil
}

func (s *Sweeper) sweepOne(ctx context.Context, b *models.Borrowing, res *Result) {
	defer func() {
		if r := recover(); r != nil {
			res.Failed++
			s.logger.Error("overdue check panicked", "borrowing_id", b.ID, "panic", r)
		}
	}()

	out, err := s.marker.MarkOverdue(ctx, b.ID)
	if err != nil {
		res.Failed++
		level := slog.LevelError
		if apperr.Retryable(err) {
			level = slog.LevelWarn
		}
		s.logger.Log(ctx, level, "overdue check failed, retrying next tick",
			"borrowing_id", b.ID, "user_id", b.UserID, "book_id", b.BookID, "error", err)
		return
	}
	if out.Flagged {
		res.Flagged++
	}
	if out.Notified {
		res.Notified++
	}
}
