package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// DetectionTTL bounds staleness of the cached snapshot: a consumer
	// reading an entry older than this should treat the feed as down.
	DetectionTTL = 10 * time.Second

	detectionKey = "aegis:detection:latest"
)

// DetectionCache stores the latest per-frame detection snapshot in
// Redis so the UI poll path never touches the pipeline thread.
type DetectionCache struct {
	rdb *redis.Client
}

func NewDetectionCache(rdb *redis.Client) *DetectionCache {
	return &DetectionCache{rdb: rdb}
}

// Publish implements Publisher; only detection snapshots are cached.
func (c *DetectionCache) Publish(ev Event) error {
	if ev.Detection == nil {
		return nil
	}
	data, err := json.Marshal(ev.Detection)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	return c.rdb.Set(ctx, detectionKey, data, DetectionTTL).Err()
}

// Latest returns the cached snapshot, or nil if none is fresh.
func (c *DetectionCache) Latest(ctx context.Context) (*DetectionUpdate, error) {
	data, err := c.rdb.Get(ctx, detectionKey).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var upd DetectionUpdate
	if err := json.Unmarshal([]byte(data), &upd); err != nil {
		return nil, err
	}
	return &upd, nil
}
