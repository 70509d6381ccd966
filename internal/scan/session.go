package scan

import (
	"fmt"
	"time"

	"github.com/ptnguyen/devsentry/internal/model"
)

// State is the lifecycle phase of a scan session.
type State int

const (
	// StateCollecting: raw events are being examined and matched.
	StateCollecting State = iota
	// StateAggregated: collection ended (cap hit or source exhausted).
	StateAggregated
	// StateNoClassificationNeeded: terminal, the gate declined.
	StateNoClassificationNeeded
	// StateSummarizing: the gate fired, a digest is being built.
	StateSummarizing
	// StateAwaitingResponse: the classifier call is in flight.
	StateAwaitingResponse
	// StateClassified: terminal, a result (success or erred) is recorded.
	StateClassified
)

func (s State) String() string {
	switch s {
	case StateCollecting:
		return "collecting"
	case StateAggregated:
		return "aggregated"
	case StateNoClassificationNeeded:
		return "no_classification_needed"
	case StateSummarizing:
		return "summarizing"
	case StateAwaitingResponse:
		return "awaiting_response"
	case StateClassified:
		return "classified"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Session owns the mutable state of one bounded pass over the event log.
// It is not safe for concurrent use; concurrent scans each get their own
// Session, so the at-most-one-classification invariant is scoped per session.
//
// Transitions only move forward: Collecting -> Aggregated -> either
// NoClassificationNeeded or Summarizing -> AwaitingResponse -> Classified.
// No transition skips Aggregated and a session never re-enters Collecting.
type Session struct {
	startedAt  time.Time
	filter     *SourceFilter
	agg        *Aggregator
	state      State
	classified bool
	result     *model.ClassificationResult
}

// NewSession starts a scan session with the given filter and examined-events
// cap. The session begins in StateCollecting.
func NewSession(filter *SourceFilter, maxEventsToRead int) *Session {
	return &Session{
		startedAt: time.Now(),
		filter:    filter,
		agg:       NewAggregator(maxEventsToRead),
		state:     StateCollecting,
	}
}

// StartedAt returns the session start time.
func (s *Session) StartedAt() time.Time { return s.startedAt }

// State returns the current lifecycle phase.
func (s *Session) State() State { return s.state }

// Offer examines one raw event, recording it if it matches the filter.
// It returns false when the session can take no more events, either because
// the examined-events cap was just reached or because collection already
// ended. Callers stop feeding the session on the first false.
func (s *Session) Offer(ev model.RawEvent) bool {
	if s.state != StateCollecting {
		return false
	}
	room := s.agg.MarkExamined()
	if s.filter.Match(ev) {
		s.agg.Record(ev)
	}
	return room
}

// Finish ends collection and moves the session to StateAggregated. Calling
// Finish more than once is a no-op.
func (s *Session) Finish() {
	if s.state == StateCollecting {
		s.state = StateAggregated
	}
}

// Evaluate applies the threshold gate. It must be called in StateAggregated.
// When the gate fires the session moves to StateSummarizing and Evaluate
// returns true; otherwise the session terminates in
// StateNoClassificationNeeded.
func (s *Session) Evaluate(threshold int, llmEnabled bool) bool {
	if s.state != StateAggregated {
		return false
	}
	if ShouldClassify(s.agg.Count(), threshold, s.classified, llmEnabled) {
		s.state = StateSummarizing
		return true
	}
	s.state = StateNoClassificationNeeded
	return false
}

// AwaitResponse marks the classifier call as in flight.
func (s *Session) AwaitResponse() {
	if s.state == StateSummarizing {
		s.state = StateAwaitingResponse
	}
}

// SetResult records the session's single ClassificationResult and terminates
// the session in StateClassified. A second call is ignored: at most one
// result is ever kept per session.
func (s *Session) SetResult(res model.ClassificationResult) {
	if s.classified {
		return
	}
	if s.state != StateSummarizing && s.state != StateAwaitingResponse {
		return
	}
	r := res
	s.result = &r
	s.classified = true
	s.state = StateClassified
}

// Result returns the session's classification result, or nil if the gate
// never fired or no call completed.
func (s *Session) Result() *model.ClassificationResult { return s.result }

// Classified reports whether a classification result has been recorded.
func (s *Session) Classified() bool { return s.classified }

// MatchCount returns the number of matched events.
func (s *Session) MatchCount() int { return s.agg.Count() }

// Matched returns the matched events in insertion order.
func (s *Session) Matched() []model.RawEvent { return s.agg.Matched() }

// Examined returns the number of raw events examined.
func (s *Session) Examined() int { return s.agg.Examined() }

// CapReached reports whether collection stopped at the examined-events cap.
func (s *Session) CapReached() bool { return s.agg.CapReached() }
