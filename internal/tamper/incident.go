// Package tamper turns per-frame detector signals into persistent
// incidents: debounced, grouped, and capped in memory. It owns the
// per-detector state machines; detectors themselves stay stateless with
// respect to time.
package tamper

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/technosupport/ts-aegis/internal/detect"
)

// Incident is a persistent detection: a detector kind that stayed
// tripped through its sustain window. Frames are referenced logically by
// timestamp, never by pointer.
type Incident struct {
	ID          uuid.UUID   `json:"id"`
	Kind        detect.Kind `json:"kind"`
	Subtype     string      `json:"subtype,omitempty"`
	FirstSeen   float64     `json:"first_seen_ts"`
	LastSeen    float64     `json:"last_seen_ts"`
	Count       int         `json:"count"`
	Description string      `json:"description"`
}

// FirstSeenTime converts the wall-clock seconds to time.Time for the
// persistence layer.
func (i *Incident) FirstSeenTime() time.Time {
	return time.Unix(0, int64(i.FirstSeen*float64(time.Second)))
}

func (i *Incident) LastSeenTime() time.Time {
	return time.Unix(0, int64(i.LastSeen*float64(time.Second)))
}

// TransitionType labels the lifecycle events the aggregator emits.
type TransitionType string

const (
	IncidentOpened   TransitionType = "opened"
	IncidentUpdated  TransitionType = "updated"
	IncidentReopened TransitionType = "reopened"
	IncidentClosed   TransitionType = "closed"
)

// Transition carries an incident snapshot to the event sink.
type Transition struct {
	Type     TransitionType `json:"type"`
	Incident Incident       `json:"incident"`
	TS       float64        `json:"ts"`
}

func describe(sig detect.Signal) string {
	switch sig.Kind {
	case detect.KindBlur:
		return fmt.Sprintf("lens obscuration: laplacian variance %.1f", sig.Metric)
	case detect.KindShake:
		return fmt.Sprintf("mechanical disturbance: mean flow magnitude %.1f", sig.Metric)
	case detect.KindGlare:
		return fmt.Sprintf("high-intensity washout: %.1f%% blown highlights", sig.Metric)
	case detect.KindReposition:
		dir, _ := sig.Aux["direction"].(string)
		return fmt.Sprintf("viewpoint change %s: shift magnitude %.1f", dir, sig.Metric)
	case detect.KindFrozen:
		return fmt.Sprintf("feed stasis: frame difference %.2f", sig.Metric)
	case detect.KindBlackout:
		return fmt.Sprintf("blackout: mean brightness %.1f", sig.Metric)
	case detect.KindMajorTamper:
		return fmt.Sprintf("scene replacement: frame difference %.1f", sig.Metric)
	case detect.KindCaptureLost:
		return "capture source lost"
	}
	return string(sig.Kind)
}

func subtypeOf(sig detect.Signal) string {
	if sig.Kind == detect.KindReposition {
		if path, ok := sig.Aux["path"].(string); ok {
			return path
		}
	}
	return ""
}
