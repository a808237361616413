// Package service holds the domain services: the fee ledger, transaction
// reconciliation, equipment reservations, event registration and the
// member register. Services own transaction boundaries and locking; the
// repositories below them only run statements.
package service

import (
	"context"
	"database/sql"
	"log"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/stw-baltyk/baltyk-manager/internal/model"
	"github.com/stw-baltyk/baltyk-manager/internal/queue"
)

var tracer = otel.Tracer("baltyk-manager/service")

// EventPublisher delivers domain events after commit. *queue.Publisher
// implements it.
type EventPublisher interface {
	Publish(ctx context.Context, ev queue.Event) error
}

// Clock anchors "now" and "today". Today is the calendar day in the
// association's time zone.
type Clock struct {
	Now func() time.Time
	Loc *time.Location
}

// NewClock returns a wall clock for loc.
func NewClock(loc *time.Location) Clock {
	if loc == nil {
		loc = time.UTC
	}
	return Clock{Now: time.Now, Loc: loc}
}

// Today returns the current calendar day as midnight UTC.
func (c Clock) Today() time.Time {
	return model.DateOf(c.now().In(c.location()))
}

func (c Clock) now() time.Time {
	if c.Now == nil {
		return time.Now()
	}
	return c.Now()
}

func (c Clock) location() *time.Location {
	if c.Loc == nil {
		return time.UTC
	}
	return c.Loc
}

// withTx runs fn inside a transaction, committing when fn returns nil.
func withTx(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}

// startSpan opens a span named after the service operation.
func startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

// endSpan records err on the span and ends it.
func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// publish sends a domain event. Failures are logged; the state change that
// caused the event is already committed.
func publish(ctx context.Context, pub EventPublisher, typ string, payload any, at time.Time) {
	if pub == nil {
		return
	}
	ev, err := queue.NewEvent(typ, payload, at)
	if err != nil {
		log.Printf("events: build %s: %v", typ, err)
		return
	}
	if err := pub.Publish(context.WithoutCancel(ctx), ev); err != nil {
		log.Printf("events: publish %s %s: %v", typ, ev.ID, err)
	}
}

func idAttr(key string, id uint64) attribute.KeyValue {
	return attribute.Int64(key, int64(id))
}
