// Package sources holds the live-data collaborators of a tracking session:
// where vehicle reports, delays and the viewport come from.
package sources

import (
	"context"
	"errors"
	"fmt"

	"transit-tracker/internal/geo"
	"transit-tracker/internal/tracking"
)

// VehicleSource supplies vehicle reports for a set of route numbers. It is
// called once per live tick.
type VehicleSource interface {
	Vehicles(ctx context.Context, routes []int32) ([]tracking.VehicleReport, error)
}

// DelaySource supplies the delay in seconds for a (trip, stop) pair. The bool
// is false when the source has no value for the pair.
type DelaySource interface {
	Delay(ctx context.Context, tripID, stopID string) (int, bool, error)
}

// ViewportProvider supplies the visible map region and announces changes.
type ViewportProvider interface {
	Current() geo.Rect
	Changes() <-chan geo.Rect
}

var (
	ErrTransport = errors.New("transport failure")
	ErrDecode    = errors.New("decode failure")
)

// FetchError wraps a failed fetch from a named source. Err wraps ErrTransport
// or ErrDecode together with the underlying cause.
type FetchError struct {
	Source string
	Op     string
	Err    error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Source, e.Op, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

func transportError(source, op string, err error) error {
	return &FetchError{Source: source, Op: op, Err: fmt.Errorf("%w: %w", ErrTransport, err)}
}

func decodeError(source, op string, err error) error {
	return &FetchError{Source: source, Op: op, Err: fmt.Errorf("%w: %w", ErrDecode, err)}
}
