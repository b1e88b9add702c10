package domain

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for domain-level error discrimination.
// Services wrap these so handlers can map to HTTP status codes without leaking infrastructure details.
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrBadRequest   = errors.New("bad request")
)

// StateTransitionError reports an attempt to move a notification along an
// edge that is not in the lifecycle table. It names both states so the
// offending caller can be identified from logs.
type StateTransitionError struct {
	From Status
	To   Status
}

func (e *StateTransitionError) Error() string {
	return fmt.Sprintf("illegal state transition from %q to %q", e.From, e.To)
}

// InvalidScheduleError rejects a scheduled_at that is not in the future.
type InvalidScheduleError struct {
	ScheduledAt time.Time
}

func (e *InvalidScheduleError) Error() string {
	return fmt.Sprintf("scheduled_at %s is in the past", e.ScheduledAt.Format(time.RFC3339))
}

// UnknownTemplateError is returned by the template resolver for an event type
// with no registered template. Resolution fails closed rather than emitting a
// blank notification.
type UnknownTemplateError struct {
	EventType string
}

func (e *UnknownTemplateError) Error() string {
	return fmt.Sprintf("no template registered for event type %q", e.EventType)
}
