package data

import (
	"context"
	"log"
	"time"

	"github.com/technosupport/ts-aegis/internal/events"
)

// IncidentRecorder subscribes to the event sink and writes incident
// transitions through to Postgres. Writes are best-effort: a failure is
// logged and the pipeline never stalls; the upsert reconciles on the
// next successful transition of the same incident.
type IncidentRecorder struct {
	Incidents IncidentModel
	Timeout   time.Duration
}

func NewIncidentRecorder(db DBTX) *IncidentRecorder {
	return &IncidentRecorder{
		Incidents: IncidentModel{DB: db},
		Timeout:   2 * time.Second,
	}
}

func (r *IncidentRecorder) Publish(ev events.Event) error {
	if ev.Transition == nil {
		return nil
	}
	inc := ev.Transition.Incident

	row := &IncidentRow{
		ID:          inc.ID,
		Kind:        string(inc.Kind),
		Subtype:     inc.Subtype,
		Timestamp:   inc.LastSeenTime(),
		Count:       inc.Count,
		Description: inc.Description,
		CreatedAt:   inc.FirstSeenTime(),
	}

	ctx, cancel := context.WithTimeout(context.Background(), r.Timeout)
	defer cancel()

	if err := r.Incidents.Upsert(ctx, row); err != nil {
		log.Printf("data: incident upsert failed for %s: %v", inc.ID, err)
	}
	return nil // never propagate; persistence is best-effort
}
