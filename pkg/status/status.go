// Package status defines the narrow event surface the pipeline reports
// progress through. The core emits synchronously and has no idea what is
// listening; presentation layers subscribe by providing an Emitter.
package status

import (
	"log/slog"
	"time"
)

// EventKind enumerates the emitted event types.
type EventKind string

const (
	PhaseStarted  EventKind = "phase_started"
	Progress      EventKind = "progress"
	PhaseComplete EventKind = "phase_complete"
	PhaseError    EventKind = "error"
)

// Event is one status report from the pipeline.
type Event struct {
	Kind  EventKind `json:"kind"`
	Phase string    `json:"phase"`
	Count int       `json:"count,omitempty"`
	Total int       `json:"total,omitempty"`
	Err   string    `json:"error,omitempty"`
	At    time.Time `json:"at"`
}

// Emitter receives events. Emit is called synchronously from the pipeline
// and must not block for long.
type Emitter interface {
	Emit(Event)
}

// EmitterFunc adapts a function to an Emitter.
type EmitterFunc func(Event)

func (f EmitterFunc) Emit(e Event) { f(e) }

// Nop discards all events.
var Nop Emitter = EmitterFunc(func(Event) {})

// LogEmitter reports events through a slog.Logger.
func LogEmitter(log *slog.Logger) Emitter {
	if log == nil {
		log = slog.Default()
	}
	return EmitterFunc(func(e Event) {
		switch e.Kind {
		case PhaseError:
			log.Error("pipeline status", "phase", e.Phase, "error", e.Err)
		case Progress:
			log.Info("pipeline status", "phase", e.Phase, "count", e.Count, "total", e.Total)
		default:
			log.Info("pipeline status", "phase", e.Phase, "kind", e.Kind)
		}
	})
}

// Multi fans one event out to several emitters in order.
func Multi(emitters ...Emitter) Emitter {
	return EmitterFunc(func(e Event) {
		for _, em := range emitters {
			em.Emit(e)
		}
	})
}
