package events

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/technosupport/ts-aegis/internal/detect"
	"github.com/technosupport/ts-aegis/internal/tamper"
)

type capturePublisher struct {
	mu     sync.Mutex
	events []Event
}

func (p *capturePublisher) Publish(ev Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func (p *capturePublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.events)
}

func detectionEvent(ts float64) Event {
	return Event{
		Type: "detection",
		TS:   ts,
		Detection: &DetectionUpdate{
			TS: ts,
			Signals: map[detect.Kind]detect.Signal{
				detect.KindBlur: {Kind: detect.KindBlur, Metric: 42},
			},
		},
	}
}

func updateEvent(id uuid.UUID, ts float64) Event {
	return Event{
		Type: "incident",
		TS:   ts,
		Transition: &tamper.Transition{
			Type:     tamper.IncidentUpdated,
			TS:       ts,
			Incident: tamper.Incident{ID: id, Kind: detect.KindBlur},
		},
	}
}

func TestSink_DeliversInOrder(t *testing.T) {
	pub := &capturePublisher{}
	s := NewSink(16, nil, pub)

	ctx, cancel := context.WithCancel(context.Background())
	go s.Run(ctx)

	for i := 0; i < 5; i++ {
		s.Push(detectionEvent(float64(i)))
	}

	assert.Eventually(t, func() bool { return pub.count() == 5 }, time.Second, 5*time.Millisecond)
	cancel()
	s.Wait()

	for i, ev := range pub.events {
		assert.Equal(t, float64(i), ev.TS)
	}
}

func TestSink_DropsOldestWhenFull(t *testing.T) {
	// No consumer running: the queue fills and the oldest entries give
	// way. Capacity 4, push 6 -> 2 dropped, survivors are the newest.
	s := NewSink(4, nil)
	for i := 0; i < 6; i++ {
		s.Push(detectionEvent(float64(i)))
	}
	assert.Equal(t, uint64(2), s.Dropped())
	assert.Equal(t, 4, s.QueueDepth())
}

func TestSink_DrainsOnShutdown(t *testing.T) {
	pub := &capturePublisher{}
	s := NewSink(16, nil, pub)

	for i := 0; i < 8; i++ {
		s.Push(detectionEvent(float64(i)))
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel() // canceled before Run: everything moves through the drain
	s.Run(ctx)
	s.Wait()

	assert.Equal(t, 8, pub.count())
}

func TestDedup_CollapsesUpdatesPerSecond(t *testing.T) {
	d := NewDedup(128)
	id := uuid.New()

	// Thirty updates inside one second collapse to one.
	admitted := 0
	for i := 0; i < 30; i++ {
		if d.Admit(updateEvent(id, 10.0+float64(i)/30)) {
			admitted++
		}
	}
	assert.Equal(t, 1, admitted)

	// Next second admits again.
	assert.True(t, d.Admit(updateEvent(id, 11.0)))
}

func TestDedup_PassesOpensAndCloses(t *testing.T) {
	d := NewDedup(128)
	id := uuid.New()

	open := Event{Type: "incident", Transition: &tamper.Transition{
		Type: tamper.IncidentOpened, TS: 1, Incident: tamper.Incident{ID: id}}}
	assert.True(t, d.Admit(open))
	assert.True(t, d.Admit(open)) // never deduped

	assert.True(t, d.Admit(detectionEvent(1)))
}

func TestDetectionCache_RoundTrip(t *testing.T) {
	mini := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mini.Addr()})
	cache := NewDetectionCache(rdb)

	require.NoError(t, cache.Publish(detectionEvent(99)))

	got, err := cache.Latest(context.Background())
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 99.0, got.TS)
	assert.InDelta(t, 42.0, got.Signals[detect.KindBlur].Metric, 1e-9)
}

func TestDetectionCache_TTLExpiry(t *testing.T) {
	mini := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mini.Addr()})
	cache := NewDetectionCache(rdb)

	require.NoError(t, cache.Publish(detectionEvent(1)))
	mini.FastForward(DetectionTTL + time.Second)

	got, err := cache.Latest(context.Background())
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestDetectionCache_IgnoresIncidents(t *testing.T) {
	mini := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mini.Addr()})
	cache := NewDetectionCache(rdb)

	require.NoError(t, cache.Publish(updateEvent(uuid.New(), 1)))
	got, err := cache.Latest(context.Background())
	require.NoError(t, err)
	assert.Nil(t, got)
}
