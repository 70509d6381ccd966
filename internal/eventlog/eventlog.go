// Package eventlog provides the raw event sources a scan session reads from.
// The event log itself is an external collaborator; this package only adapts
// exported event data into the pipeline's RawEvent stream.
package eventlog

import (
	"context"
	"io"

	"github.com/ptnguyen/devsentry/internal/model"
)

// Source yields raw events one at a time. Implementations return io.EOF when
// the source is exhausted; the scan cap may stop reading earlier.
type Source interface {
	Next(ctx context.Context) (model.RawEvent, error)
}

// SliceSource serves a fixed in-memory event sequence. Used by tests and by
// callers that already hold the events.
type SliceSource struct {
	events []model.RawEvent
	pos    int
}

// NewSliceSource wraps events in a Source that yields them in order.
func NewSliceSource(events []model.RawEvent) *SliceSource {
	return &SliceSource{events: events}
}

// Next returns the next event or io.EOF.
func (s *SliceSource) Next(ctx context.Context) (model.RawEvent, error) {
	if err := ctx.Err(); err != nil {
		return model.RawEvent{}, err
	}
	if s.pos >= len(s.events) {
		return model.RawEvent{}, io.EOF
	}
	ev := s.events[s.pos]
	s.pos++
	return ev, nil
}
