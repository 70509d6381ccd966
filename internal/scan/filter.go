// Package scan implements the detection core of DevSentry: event filtering,
// match aggregation, threshold gating, and the per-session state machine.
package scan

import "github.com/ptnguyen/devsentry/internal/model"

// SourceFilter matches raw events against the configured source names and
// numeric event IDs. An event matches only when its source is in the allowed
// source set AND its ID is in the allowed ID set.
//
// An empty source set or an empty ID set matches nothing. That is a valid
// configuration which disables detection, not an error.
type SourceFilter struct {
	sources map[string]struct{}
	ids     map[int]struct{}
}

// NewSourceFilter builds a filter from the configured source and ID lists.
// Duplicates collapse; order is irrelevant.
func NewSourceFilter(sources []string, ids []int) *SourceFilter {
	f := &SourceFilter{
		sources: make(map[string]struct{}, len(sources)),
		ids:     make(map[int]struct{}, len(ids)),
	}
	for _, s := range sources {
		f.sources[s] = struct{}{}
	}
	for _, id := range ids {
		f.ids[id] = struct{}{}
	}
	return f
}

// Match reports whether ev passes the filter. No side effects; O(1) per event.
func (f *SourceFilter) Match(ev model.RawEvent) bool {
	if len(f.sources) == 0 || len(f.ids) == 0 {
		return false
	}
	if _, ok := f.sources[ev.Source]; !ok {
		return false
	}
	_, ok := f.ids[ev.EventID]
	return ok
}

// Empty reports whether the filter can never match. Useful for warning the
// operator that detection is effectively disabled.
func (f *SourceFilter) Empty() bool {
	return len(f.sources) == 0 || len(f.ids) == 0
}
