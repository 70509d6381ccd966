// Package summarize turns matched events into the compact, deterministic
// digest sent to the anomaly classifier.
//
// Determinism matters here: for the same matched-event sequence and size cap
// the digest text is byte-identical across runs. There is no "now", no map
// iteration, and no locale-dependent formatting, so the digest can key a
// response cache and tests can compare exact bytes.
package summarize

import (
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/ptnguyen/devsentry/internal/model"
)

// maxMessageRunes bounds the per-line message excerpt. Long messages are cut
// with an explicit marker, never silently dropped.
const maxMessageRunes = 200

const truncationMarker = " [truncated]"

// timeLayout renders event timestamps in UTC for digest lines.
const timeLayout = "2006-01-02 15:04:05"

// Digest is the size-bounded textual representation of matched events.
// Immutable once built; it belongs to the single classification request that
// produced it.
type Digest struct {
	EventLines []string
	Truncated  bool
	Omitted    int
	total      int
}

// Build produces a digest of at most maxEvents of the most recent matched
// events, rendered oldest-to-newest. If more events matched than fit,
// Truncated is set and the digest text states how many older events were
// omitted.
func Build(events []model.RawEvent, maxEvents int) Digest {
	if maxEvents < 0 {
		maxEvents = 0
	}

	// Sort a copy chronologically; the stable sort keeps insertion order for
	// equal timestamps so repeated builds stay byte-identical.
	ordered := make([]model.RawEvent, len(events))
	copy(ordered, events)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Timestamp.Before(ordered[j].Timestamp)
	})

	d := Digest{total: len(ordered)}
	if len(ordered) > maxEvents {
		d.Truncated = true
		d.Omitted = len(ordered) - maxEvents
		ordered = ordered[len(ordered)-maxEvents:]
	}

	d.EventLines = make([]string, 0, len(ordered))
	for _, ev := range ordered {
		d.EventLines = append(d.EventLines, renderLine(ev))
	}
	return d
}

// Text returns the full digest text, header included.
func (d Digest) Text() string {
	var b strings.Builder
	if d.total == 0 {
		b.WriteString("no matching events were recorded in this scan session\n")
		return b.String()
	}

	if d.Truncated {
		fmt.Fprintf(&b, "%d matching events total; showing the %d most recent, %d older events omitted\n",
			d.total, len(d.EventLines), d.Omitted)
	} else {
		fmt.Fprintf(&b, "%d matching events total\n", d.total)
	}
	for _, line := range d.EventLines {
		b.WriteString(line)
		b.WriteByte('\n')
	}
	return b.String()
}

// Empty reports whether the digest carries no event lines.
func (d Digest) Empty() bool {
	return d.total == 0
}

func renderLine(ev model.RawEvent) string {
	msg := excerpt(ev.Message, maxMessageRunes)
	return fmt.Sprintf("time=%s source=%s id=%d message=%s",
		ev.Timestamp.UTC().Format(timeLayout), ev.Source, ev.EventID, msg)
}

// excerpt collapses newlines and cuts the message at max runes, appending an
// explicit truncation marker when anything was removed.
func excerpt(s string, max int) string {
	s = strings.Join(strings.Fields(s), " ")
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	rs := []rune(s)
	return string(rs[:max]) + truncationMarker
}
