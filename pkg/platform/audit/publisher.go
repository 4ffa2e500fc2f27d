// Package audit provides the event model and a fail-open publisher for the
// security and compliance trail.
//
// The publisher never propagates storage errors to the caller: a data
// operation that succeeded must not be rolled back because its audit record
// could not be written. Failed writes fall back to structured logging so the
// event is not silently lost.
package audit

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Publisher emits audit events with fail-open semantics. By default writes
// are synchronous; WithAsyncBuffer switches to a buffered channel drained by
// a background goroutine, dropping events when the buffer is full.
type Publisher struct {
	store  Store
	logger *slog.Logger
	now    func() time.Time
	sink   SecuritySink

	inbox chan Event
	done  chan struct{}
	once  sync.Once
}

// SecuritySink receives high-severity events for external shipping, in
// addition to the regular store write. Enqueue must not block.
type SecuritySink interface {
	Enqueue(event Event)
}

// Option configures the Publisher.
type Option func(*Publisher)

// WithLogger sets the fallback logger used when persistence fails.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) { p.logger = logger }
}

// WithAsyncBuffer enables asynchronous emission with the given buffer size.
func WithAsyncBuffer(size int) Option {
	return func(p *Publisher) {
		if size > 0 {
			p.inbox = make(chan Event, size)
		}
	}
}

// WithSecuritySink forwards high and critical severity events to an
// external sink on top of the store write.
func WithSecuritySink(sink SecuritySink) Option {
	return func(p *Publisher) { p.sink = sink }
}

// WithClock overrides the timestamp source, for tests.
func WithClock(now func() time.Time) Option {
	return func(p *Publisher) { p.now = now }
}

// NewPublisher creates a publisher over the given store.
func NewPublisher(store Store, opts ...Option) *Publisher {
	p := &Publisher{
		store:  store,
		logger: slog.New(slog.DiscardHandler),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.inbox != nil {
		p.done = make(chan struct{})
		go p.drain()
	}
	return p
}

// Emit records an audit event. Missing ID, timestamp, and category are filled
// in. Storage failures are logged and swallowed.
func (p *Publisher) Emit(ctx context.Context, event Event) {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = p.now().UTC()
	}
	if event.Category == "" {
		event.Category = CategoryOf(event.Action)
	}
	if event.Severity == "" {
		event.Severity = SeverityLow
	}

	if p.sink != nil && (event.Severity == SeverityHigh || event.Severity == SeverityCritical) {
		p.sink.Enqueue(event)
	}

	if p.inbox != nil {
		select {
		case p.inbox <- event:
		default:
			p.logger.Warn("audit buffer full, event dropped",
				"action", event.Action,
				"profile_id", event.ProfileID,
			)
		}
		return
	}

	p.persist(ctx, event)
}

func (p *Publisher) persist(ctx context.Context, event Event) {
	if err := p.store.Append(ctx, event); err != nil {
		p.logger.ErrorContext(ctx, "audit event not persisted",
			"action", event.Action,
			"category", event.Category,
			"profile_id", event.ProfileID,
			"decision", event.Decision,
			"reason", event.Reason,
			"error", err,
		)
	}
}

func (p *Publisher) drain() {
	defer close(p.done)
	for event := range p.inbox {
		p.persist(context.Background(), event)
	}
}

// Close drains any buffered events and stops the background goroutine.
func (p *Publisher) Close() error {
	if p.inbox == nil {
		return nil
	}
	p.once.Do(func() {
		close(p.inbox)
		<-p.done
	})
	return nil
}
