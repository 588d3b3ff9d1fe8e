package status

import (
	"encoding/json"
	"log/slog"

	"github.com/nats-io/nats.go"
)

// DefaultSubject is the subject status events are broadcast on.
const DefaultSubject = "threadsage.status"

// NATSEmitter broadcasts events as JSON over a NATS connection so
// out-of-process presentation layers can follow a build without polling.
// Publish failures are logged and dropped; status delivery is best-effort
// and never fails the pipeline.
type NATSEmitter struct {
	nc      *nats.Conn
	subject string
	logger  *slog.Logger
}

// NewNATSEmitter creates an emitter publishing to subject (DefaultSubject
// if empty).
func NewNATSEmitter(nc *nats.Conn, subject string, logger *slog.Logger) *NATSEmitter {
	if subject == "" {
		subject = DefaultSubject
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &NATSEmitter{nc: nc, subject: subject, logger: logger}
}

// Emit implements Emitter.
func (e *NATSEmitter) Emit(ev Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		e.logger.Warn("status: marshal event", "err", err)
		return
	}
	if err := e.nc.Publish(e.subject, data); err != nil {
		e.logger.Warn("status: publish event", "subject", e.subject, "err", err)
	}
}
