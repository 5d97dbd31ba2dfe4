package check

import "sync"

// Kind classifies an inconsistency.
type Kind string

const (
	// KindNotFound marks a record with zero matches on the other side.
	KindNotFound Kind = "not_found"

	// KindMultipleFound marks a record with more than one match.
	KindMultipleFound Kind = "multiple_found"

	// KindLongUnanswered marks an agency with stale unanswered sessions.
	KindLongUnanswered Kind = "long_unanswered"

	// KindTeamAgency marks an agency incorrectly flagged as a team
	// agency.
	KindTeamAgency Kind = "team_agency"

	// KindLowEventVolume marks an event kind below its expected volume.
	KindLowEventVolume Kind = "low_event_volume"
)

// Result is one recorded inconsistency.
type Result struct {
	Kind    Kind
	Message string

	// Payload carries the check-specific record; each check documents
	// its payload type.
	Payload any
}

// ResultList is the concurrency-safe result accumulator. Scanner chunks
// append findings concurrently; the repair engine removes entries after
// a confirmed deletion.
type ResultList struct {
	mu    sync.Mutex
	items []Result
}

// Append adds a result.
func (l *ResultList) Append(r Result) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.items = append(l.items, r)
}

// Len returns the number of results.
func (l *ResultList) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.items)
}

// Snapshot returns a copy of the current results.
func (l *ResultList) Snapshot() []Result {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Result, len(l.items))
	copy(out, l.items)
	return out
}

// CountKind returns the number of results of one kind.
func (l *ResultList) CountKind(k Kind) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, r := range l.items {
		if r.Kind == k {
			n++
		}
	}
	return n
}

// RemoveWhere deletes all results matching fn and returns how many were
// removed. Order of the remaining results is preserved.
func (l *ResultList) RemoveWhere(fn func(Result) bool) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	kept := l.items[:0]
	removed := 0
	for _, r := range l.items {
		if fn(r) {
			removed++
			continue
		}
		kept = append(kept, r)
	}
	l.items = kept
	return removed
}
