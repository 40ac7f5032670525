package service

import (
	"github.com/google/uuid"
	"github.com/hadlocna/PaperDrop/config"
	"github.com/hadlocna/PaperDrop/internal/domain/event"
	lru "github.com/hashicorp/golang-lru/v2"
)

// ActivityReader is the read side used by the HTTP API.
type ActivityReader interface {
	// Recent returns up to limit events, newest first. A nil deviceID
	// matches every device.
	Recent(limit int, deviceID uuid.UUID) []event.Record
}

// ActivityRecorder is fed by the event consumer.
type ActivityRecorder interface {
	Record(rec event.Record)
}

// ActivityFeed keeps the most recent delivery and presence events.
type ActivityFeed struct {
	// [MEMORY_MANAGEMENT] Bounded LRU keyed by event id; a redelivered
	// event refreshes its slot instead of growing the feed.
	cache *lru.Cache[string, event.Record]
}

var (
	_ ActivityReader   = (*ActivityFeed)(nil)
	_ ActivityRecorder = (*ActivityFeed)(nil)
)

func NewActivityFeed(cfg *config.Config) (*ActivityFeed, error) {
	cache, err := lru.New[string, event.Record](cfg.Activity.Size)
	if err != nil {
		return nil, err
	}
	return &ActivityFeed{cache: cache}, nil
}

func (f *ActivityFeed) Record(rec event.Record) {
	f.cache.Add(rec.ID, rec)
}

func (f *ActivityFeed) Recent(limit int, deviceID uuid.UUID) []event.Record {
	keys := f.cache.Keys() // oldest first
	if limit <= 0 || limit > len(keys) {
		limit = len(keys)
	}

	out := make([]event.Record, 0, limit)
	for i := len(keys) - 1; i >= 0 && len(out) < limit; i-- {
		rec, ok := f.cache.Peek(keys[i])
		if !ok {
			continue // evicted since Keys()
		}
		if deviceID != uuid.Nil && rec.DeviceID != deviceID {
			continue
		}
		out = append(out, rec)
	}
	return out
}

func (f *ActivityFeed) Len() int { return f.cache.Len() }
