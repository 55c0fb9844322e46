package broker

import (
	"context"
	"time"

	"github.com/hyperbroker/hyperbroker/pkg/cache"
	"github.com/hyperbroker/hyperbroker/pkg/hyperliquid"
)

// spotMetaTTL bounds how long spot metadata is served from cache. Token
// listings change rarely; a minute keeps repeated collateral
// estimations off the wire without risking stale pair indexes for long.
const spotMetaTTL = time.Minute

const spotMetaKey = "spotMeta"

// metaCachingVenue decorates a Venue with a TTL cache over spot
// metadata. Every other call passes straight through.
type metaCachingVenue struct {
	Venue
	snapshots *cache.SnapshotCache
}

func newMetaCachingVenue(v Venue, snapshots *cache.SnapshotCache) *metaCachingVenue {
	return &metaCachingVenue{Venue: v, snapshots: snapshots}
}

func (m *metaCachingVenue) SpotMeta(ctx context.Context) (*hyperliquid.SpotMeta, error) {
	if cached, ok := m.snapshots.Get(spotMetaKey); ok {
		return cached.(*hyperliquid.SpotMeta), nil
	}
	meta, err := m.Venue.SpotMeta(ctx)
	if err != nil {
		return nil, err
	}
	m.snapshots.Set(spotMetaKey, meta, spotMetaTTL)
	return meta, nil
}
