package scan

import "github.com/ptnguyen/devsentry/internal/model"

// Aggregator maintains the ordered sequence of matched events for one scan
// session, plus the count of raw events examined against the scan cap.
//
// The cap applies to events examined, not events matched: once limit raw
// events have been looked at the session ends regardless of how few matched.
// Reaching the cap is an informational condition, never an error.
type Aggregator struct {
	limit    int
	examined int
	matched  []model.RawEvent
}

// NewAggregator creates an aggregator with the given examined-events cap.
func NewAggregator(limit int) *Aggregator {
	return &Aggregator{limit: limit}
}

// Record appends one matched event. It is the only mutator of the matched
// sequence; insertion order is preserved.
func (a *Aggregator) Record(ev model.RawEvent) {
	a.matched = append(a.matched, ev)
}

// Count returns the number of matched events recorded so far.
func (a *Aggregator) Count() int {
	return len(a.matched)
}

// Matched returns the matched events in insertion order. The returned slice
// is the aggregator's own; callers must not mutate it.
func (a *Aggregator) Matched() []model.RawEvent {
	return a.matched
}

// MarkExamined counts one raw event against the scan cap and reports whether
// there is room to examine more.
func (a *Aggregator) MarkExamined() bool {
	a.examined++
	return a.examined < a.limit
}

// Examined returns the number of raw events examined so far.
func (a *Aggregator) Examined() int {
	return a.examined
}

// CapReached reports whether the examined-events cap has been hit.
func (a *Aggregator) CapReached() bool {
	return a.examined >= a.limit
}
