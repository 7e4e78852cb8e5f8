package events

import (
	"fmt"
	"math"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/technosupport/ts-aegis/internal/tamper"
)

// Dedup suppresses repeat incident-update events inside a one-second
// bucket so a 30 Hz active incident does not publish thirty identical
// rows downstream. Opens, reopens and closes always pass; detection
// snapshots always pass.
type Dedup struct {
	cache *lru.Cache[string, struct{}]
}

func NewDedup(maxKeys int) *Dedup {
	c, _ := lru.New[string, struct{}](maxKeys)
	return &Dedup{cache: c}
}

// Admit reports whether the event should be dispatched.
func (d *Dedup) Admit(ev Event) bool {
	if ev.Transition == nil || ev.Transition.Type != tamper.IncidentUpdated {
		return true
	}
	key := buildKey(ev.Transition)
	if _, ok := d.cache.Get(key); ok {
		return false
	}
	d.cache.Add(key, struct{}{})
	return true
}

func buildKey(tr *tamper.Transition) string {
	// Bucket to whole seconds; micro-timing differences between frames
	// of the same incident collapse onto one key.
	return fmt.Sprintf("%s|%s|%d", tr.Incident.ID, tr.Type, int64(math.Floor(tr.TS)))
}
