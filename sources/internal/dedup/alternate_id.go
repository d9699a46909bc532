package dedup

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/thingflow/thingflow/common/eventstore"
	"github.com/thingflow/thingflow/common/model"
)

const defaultCacheTTL = 24 * time.Hour

// AlternateID is the alternate-id deduplication policy: a request carrying
// an alternate id is a duplicate when an event with the same id was already
// stored. Requests without an alternate id always pass through.
//
// A Redis read-through cache in front of the event-store lookup keeps the
// hot path off the store for retransmission-heavy devices. Only positive
// store lookups are cached, so the cache can never make a first occurrence
// look like a duplicate.
type AlternateID struct {
	events eventstore.AlternateIDLookup
	cache  *redis.Client
	prefix string
	ttl    time.Duration
}

// NewAlternateID builds the policy over the given event lookup. cache may
// be nil to disable caching.
func NewAlternateID(events eventstore.AlternateIDLookup, cache *redis.Client, tenant string) *AlternateID {
	return &AlternateID{
		events: events,
		cache:  cache,
		prefix: "thingflow:dedup:" + tenant + ":",
		ttl:    defaultCacheTTL,
	}
}

// IsDuplicate implements Deduplicator.
func (d *AlternateID) IsDuplicate(ctx context.Context, req *model.DecodedDeviceRequest) (bool, error) {
	alternateID := req.AlternateID()
	if alternateID == "" {
		return false, nil
	}

	if d.cache != nil {
		hit, err := d.cache.Exists(ctx, d.prefix+alternateID).Result()
		if err == nil && hit > 0 {
			return true, nil
		}
		// Cache errors fall through to the store lookup.
	}

	event, err := d.events.GetDeviceEventByAlternateID(ctx, alternateID)
	if err != nil {
		return false, &DuplicateDetectionError{Err: err}
	}
	if event == nil {
		return false, nil
	}

	if d.cache != nil {
		// Best effort; a failed write only costs a store lookup next time.
		d.cache.Set(ctx, d.prefix+alternateID, event.ID.String(), d.ttl)
	}
	return true, nil
}
