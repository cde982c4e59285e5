package cache

import (
	"fmt"
	"sort"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// RetryPolicy controls how the fetch coordinator retries transient read
// failures. Writes are never retried.
type RetryPolicy struct {
	// MaxAttempts is the total number of attempts, including the first.
	MaxAttempts int

	// BaseDelay is the wait before the first retry; each subsequent retry
	// multiplies the previous delay by Factor.
	BaseDelay time.Duration

	// Factor is the exponential backoff multiplier. Must be >= 1.
	Factor float64
}

// Policy holds the per-resource cache behavior knobs.
type Policy struct {
	// StaleAfter is the freshness window. Data older than this is servable
	// but scheduled for background refresh.
	StaleAfter time.Duration

	// GCAfter is how long an entry may remain without subscribers before it
	// is evicted.
	GCAfter time.Duration

	// PollInterval, when positive, re-fetches the resource on a fixed
	// interval while it has subscribers. Zero disables polling.
	PollInterval time.Duration

	// Retry is the read retry policy for this resource.
	Retry RetryPolicy
}

// DefaultRetryPolicy returns the standard read retry policy: three attempts
// with exponential backoff starting at one second.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, BaseDelay: time.Second, Factor: 2}
}

// DefaultPolicy returns a Policy with sensible defaults for resources
// without an explicit entry.
func DefaultPolicy() Policy {
	return Policy{
		StaleAfter: 30 * time.Second,
		GCAfter:    5 * time.Minute,
		Retry:      DefaultRetryPolicy(),
	}
}

// Validate checks whether the retry policy values are valid.
func (r RetryPolicy) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.MaxAttempts, validation.Required, validation.Min(1)),
		validation.Field(&r.BaseDelay, validation.Min(time.Duration(0))),
		validation.Field(&r.Factor, validation.Required, validation.Min(1.0)),
	)
}

// Validate checks whether the policy values are valid.
func (p Policy) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.StaleAfter, validation.Required, validation.Min(time.Millisecond)),
		validation.Field(&p.GCAfter, validation.Required, validation.Min(time.Millisecond)),
		validation.Field(&p.PollInterval, validation.Min(time.Duration(0))),
		validation.Field(&p.Retry),
	)
}

// PolicySet maps resource names to their cache policies. Lookup resolves an
// exact resource name first, then the longest matching wildcard pattern
// ("agents/*" covers "agents/42"), then the fallback policy.
//
// A PolicySet is populated during wiring and read-only afterwards; Set must
// not be called concurrently with For.
type PolicySet struct {
	fallback  Policy
	resources map[string]Policy
}

// NewPolicySet creates a PolicySet with the given fallback policy.
func NewPolicySet(fallback Policy) *PolicySet {
	return &PolicySet{
		fallback:  fallback,
		resources: make(map[string]Policy),
	}
}

// Set registers the policy for a resource name or wildcard pattern.
func (ps *PolicySet) Set(resource string, p Policy) *PolicySet {
	ps.resources[resource] = p
	return ps
}

// For returns the policy governing the given resource name.
func (ps *PolicySet) For(resource string) Policy {
	if p, ok := ps.resources[resource]; ok {
		return p
	}

	bestLen := -1
	best := ps.fallback
	for pattern, p := range ps.resources {
		if !strings.HasSuffix(pattern, "*") {
			continue
		}
		stem := pattern[:len(pattern)-1]
		if strings.HasPrefix(resource, stem) && len(stem) > bestLen {
			bestLen = len(stem)
			best = p
		}
	}
	return best
}

// Fallback returns the policy used when no resource entry matches.
func (ps *PolicySet) Fallback() Policy {
	return ps.fallback
}

// Resources returns the registered resource names and patterns, sorted.
func (ps *PolicySet) Resources() []string {
	names := make([]string, 0, len(ps.resources))
	for name := range ps.resources {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Validate checks the fallback policy and every registered resource policy.
func (ps *PolicySet) Validate() error {
	if err := ps.fallback.Validate(); err != nil {
		return fmt.Errorf("fallback policy: %w", err)
	}
	for _, name := range ps.Resources() {
		if err := ps.resources[name].Validate(); err != nil {
			return fmt.Errorf("policy %q: %w", name, err)
		}
	}
	return nil
}
