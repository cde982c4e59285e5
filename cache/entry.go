package cache

import "time"

// Status describes the fetch lifecycle of a cache entry.
type Status int

const (
	// StatusIdle marks an entry that has never been fetched, or was reset.
	StatusIdle Status = iota
	// StatusFetching marks an entry with a fetch in flight. Previous data,
	// if any, is retained for stale-while-revalidate reads.
	StatusFetching
	// StatusSuccess marks an entry holding data from a completed fetch.
	StatusSuccess
	// StatusError marks an entry whose last fetch failed after retries.
	// Data from an earlier success is retained.
	StatusError
)

// String implements fmt.Stringer for log output.
func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusFetching:
		return "fetching"
	case StatusSuccess:
		return "success"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}

// Entry is the value snapshot of a cache slot handed to subscribers and
// returned by Store reads. It is a copy; mutating it has no effect on the
// store.
type Entry struct {
	Key         Key
	Data        any
	Status      Status
	Err         error
	FetchedAt   time.Time
	StaleAfter  time.Duration
	GCAfter     time.Duration
	Subscribers int
	Generation  uint64
	// Invalidated is set when the entry was force-marked stale after a
	// mutation and has not been refetched since.
	Invalidated bool
}

// HasData reports whether the entry holds any servable data.
func (e Entry) HasData() bool {
	return e.Data != nil
}

// StaleAt reports whether the entry's data is stale at the given instant:
// either it was force-invalidated, or its freshness window has elapsed.
// Entries without a successful fetch are never "stale", they are absent.
func (e Entry) StaleAt(now time.Time) bool {
	if e.Invalidated {
		return true
	}
	if e.FetchedAt.IsZero() {
		return false
	}
	return now.Sub(e.FetchedAt) > e.StaleAfter
}

// FreshAt reports whether the entry can be served without a refetch.
func (e Entry) FreshAt(now time.Time) bool {
	return e.Status == StatusSuccess && !e.StaleAt(now)
}

// Snapshot captures the restorable state of an entry before an optimistic
// patch is applied. Existed distinguishes a pre-patch Idle entry created on
// demand from one that was live before the mutation.
type Snapshot struct {
	Key         Key
	Data        any
	Status      Status
	Err         error
	FetchedAt   time.Time
	Invalidated bool
	Existed     bool
}
