// Package events forwards in-process domain events to an AMQP topic exchange.
package events

import "time"

type Envelope struct {
	Meta Meta `json:"meta"`
	Data any  `json:"data"`
}

type Meta struct {
	// Unique event ID
	ID string `json:"id"`
	// Trace / request correlation ID
	CorrelationID string `json:"correlation_id,omitempty"`
	// Emitting service
	Producer string `json:"producer,omitempty"`
	// Timestamp when the event was emitted
	Time time.Time `json:"time"`
	// Event name and version, e.g. batch.committed.v1
	Type string `json:"type"`
}
