package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
)

// NATSPublisher pushes sink events onto a subject per event type:
// <prefix>.detection and <prefix>.incident.
type NATSPublisher struct {
	conn       *nats.Conn
	prefix     string
	maxRetries int
}

func NewNATSPublisher(conn *nats.Conn, prefix string, maxRetries int) *NATSPublisher {
	return &NATSPublisher{conn: conn, prefix: prefix, maxRetries: maxRetries}
}

func (p *NATSPublisher) Publish(ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal error: %w", err)
	}

	subject := p.prefix + "." + ev.Type

	for i := 0; i <= p.maxRetries; i++ {
		err = p.conn.Publish(subject, data)
		if err == nil {
			return nil
		}
		// Backoff
		time.Sleep(time.Duration(i*100) * time.Millisecond)
	}

	return fmt.Errorf("publish failed after %d retries: %w", p.maxRetries, err)
}
