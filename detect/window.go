package detect

import (
	"time"
)

// compactThreshold is the minimum dead prefix before the backing slice is compacted
const compactThreshold = 64

type windowEntry[T any] struct {
	ts  time.Time
	val T
}

// Window is a time-ordered sliding buffer of observations bounded by a horizon.
// Entries are appended in arrival order and evicted from the front by age.
// A Window is owned by a single analyzer and is not safe for concurrent use.
type Window[T any] struct {
	horizon time.Duration
	entries []windowEntry[T]
	head    int
}

// NewWindow creates an empty window with the given horizon
func NewWindow[T any](horizon time.Duration) *Window[T] {
	return &Window[T]{horizon: horizon}
}

// Horizon returns the configured horizon
func (w *Window[T]) Horizon() time.Duration {
	return w.horizon
}

// Append adds an observation at the back of the window
func (w *Window[T]) Append(ts time.Time, val T) {
	w.entries = append(w.entries, windowEntry[T]{ts: ts, val: val})
}

// EvictOlderThan removes entries from the front while the oldest is strictly
// older than cutoff. It returns the number of evicted entries.
func (w *Window[T]) EvictOlderThan(cutoff time.Time) int {
	evicted := 0
	for w.head < len(w.entries) && w.entries[w.head].ts.Before(cutoff) {
		var zero windowEntry[T]
		w.entries[w.head] = zero
		w.head++
		evicted++
	}
	w.compact()
	return evicted
}

// Advance evicts everything older than now minus the horizon
func (w *Window[T]) Advance(now time.Time) int {
	return w.EvictOlderThan(now.Add(-w.horizon))
}

func (w *Window[T]) compact() {
	if w.head == len(w.entries) {
		w.entries = w.entries[:0]
		w.head = 0
		return
	}
	if w.head < compactThreshold || w.head < len(w.entries)/2 {
		return
	}
	n := copy(w.entries, w.entries[w.head:])
	clear(w.entries[n:])
	w.entries = w.entries[:n]
	w.head = 0
}

// Len returns the number of live entries
func (w *Window[T]) Len() int {
	return len(w.entries) - w.head
}

// Oldest returns the timestamp of the oldest live entry
func (w *Window[T]) Oldest() (time.Time, bool) {
	if w.Len() == 0 {
		return time.Time{}, false
	}
	return w.entries[w.head].ts, true
}

// Count returns the number of live entries whose payload satisfies pred
func (w *Window[T]) Count(pred func(T) bool) int {
	n := 0
	for _, e := range w.entries[w.head:] {
		if pred == nil || pred(e.val) {
			n++
		}
	}
	return n
}

// Distinct returns the set of keys among live entries whose payload satisfies pred
func Distinct[T any, K comparable](w *Window[T], pred func(T) bool, key func(T) K) map[K]struct{} {
	set := make(map[K]struct{})
	for _, e := range w.entries[w.head:] {
		if pred == nil || pred(e.val) {
			set[key(e.val)] = struct{}{}
		}
	}
	return set
}
