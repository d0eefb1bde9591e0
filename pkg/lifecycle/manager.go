// Package lifecycle decides when a book may be borrowed, returned, extended
// or flagged overdue, and applies each decision together with its copy
// counter change in one store transaction.
//
// Audit and notification events are emitted only after the transaction
// commits, so a rolled back operation leaves no trace besides its log line.
package lifecycle

import (
	"context"
	"log/slog"

	"libtrack/pkg/clock"
	"libtrack/pkg/events"
	"libtrack/pkg/models"
	"libtrack/pkg/store"
	"libtrack/pkg/telemetry"
)

// Actor is the authenticated caller of an operation.
type Actor struct {
	ID   string
	Role models.Role
}

// SystemActor performs scheduled and operator-triggered work.
var SystemActor = Actor{ID: "system", Role: models.RoleAdmin}

// CanActFor reports whether the actor may touch records owned by userID.
func (a Actor) CanActFor(userID string) bool {
	return a.ID == userID || a.Role.Elevated()
}

// Emitter receives events once the originating transaction has committed.
// *events.Dispatcher is the production implementation.
type Emitter interface {
	Audit(ctx context.Context, e events.AuditEvent)
	Notify(ctx context.Context, e events.NotificationEvent)
}

type Config struct {
	MaxBorrowDays   int
	MaxBooksPerUser int
}

type Manager struct {
	store   store.EntityStore
	emitter Emitter
	cfg     Config
	clock   clock.Clock
	logger  *slog.Logger
	tel     *telemetry.Telemetry
}

type Option func(*Manager)

func WithClock(c clock.Clock) Option {
	return func(m *Manager) { m.clock = c }
}

func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) { m.logger = logger }
}

func WithTelemetry(tel *telemetry.Telemetry) Option {
	return func(m *Manager) { m.tel = tel }
}

func New(s store.EntityStore, emitter Emitter, cfg Config, opts ...Option) *Manager {
	m := &Manager{
		store:   s,
		emitter: emitter,
		cfg:     cfg,
		clock:   clock.System{},
		logger:  slog.Default(),
		tel:     telemetry.Noop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Manager) Config() Config {
	return m.cfg
}
