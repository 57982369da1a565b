package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
)

// DefaultStaleness is how long an entry for the current data year stays fresh.
const DefaultStaleness = 24 * time.Hour

// Validity is the outcome of validating a cache entry.
type Validity int

const (
	Missing Validity = iota
	Expired
	Fresh
)

func (v Validity) String() string {
	switch v {
	case Fresh:
		return "fresh"
	case Expired:
		return "expired"
	}
	return "missing"
}

// Policy decides whether cached entries are still usable.
//
// Entries for a data year are only re-expired while that year is still the
// year they were last written in: once the year has closed the entry holds
// the complete year and never goes stale. Normal-year entries never expire.
type Policy struct {
	clock     clockwork.Clock
	staleness time.Duration
}

// NewPolicy creates a policy with the default staleness window.
func NewPolicy(clock clockwork.Clock) *Policy {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Policy{clock: clock, staleness: DefaultStaleness}
}

// Expired reports whether an entry for dataYear last written at updated
// must be refreshed. A nil updated means the entry does not exist.
func (p *Policy) Expired(updated *time.Time, dataYear int) bool {
	if updated == nil {
		return true
	}
	limit := p.clock.Now().Add(-p.staleness)
	return dataYear == updated.UTC().Year() && limit.After(*updated)
}

// Validate checks the entry at key. Year-bound entries (normalYear false)
// that have expired are evicted.
func (p *Policy) Validate(ctx context.Context, store Store, key string, dataYear int, normalYear bool) (Validity, error) {
	if normalYear {
		exists, err := store.KeyExists(ctx, key)
		if err != nil {
			return Missing, err
		}
		if exists {
			return Fresh, nil
		}
		return Missing, nil
	}

	updated, err := store.KeyUpdated(ctx, key)
	if err != nil {
		return Missing, err
	}
	if updated == nil {
		return Missing, nil
	}
	if p.Expired(updated, dataYear) {
		if err := store.Clear(ctx, key); err != nil {
			return Expired, fmt.Errorf("evict %s: %w", key, err)
		}
		return Expired, nil
	}
	return Fresh, nil
}
