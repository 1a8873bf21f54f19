package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/propagation"
)

var propagator = propagation.NewCompositeTextMapPropagator(
	propagation.TraceContext{},
	propagation.Baggage{},
)

// ObservabilityMetadata travels alongside every stream payload: W3C trace
// context plus producer identity and produce time.
type ObservabilityMetadata struct {
	Traceparent     string `json:"traceparent,omitempty"`
	Tracestate      string `json:"tracestate,omitempty"`
	Baggage         string `json:"baggage,omitempty"`
	ProducerService string `json:"producer_service,omitempty"`
	ProducedAt      string `json:"produced_at,omitempty"`
}

// Extract returns ctx with the metadata's trace context restored, so consumer
// spans join the producer's trace.
func (m ObservabilityMetadata) Extract(ctx context.Context) context.Context {
	carrier := propagation.MapCarrier{}
	if m.Traceparent != "" {
		carrier["traceparent"] = m.Traceparent
	}
	if m.Tracestate != "" {
		carrier["tracestate"] = m.Tracestate
	}
	if m.Baggage != "" {
		carrier["baggage"] = m.Baggage
	}
	return propagator.Extract(ctx, carrier)
}

// Envelope pairs a JSON-encoded payload with its observability metadata. The
// stream assigns ids; consumers only ever acknowledge by id.
type Envelope struct {
	Payload  string
	Metadata ObservabilityMetadata
}

// Message is one entry read from a stream.
type Message struct {
	ID       string
	Envelope Envelope
}

// NewEnvelope marshals payload and stamps metadata from the current trace
// context.
func NewEnvelope(ctx context.Context, payload interface{}, producerService string, now time.Time) (Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("encode payload: %w", err)
	}

	carrier := propagation.MapCarrier{}
	propagator.Inject(ctx, carrier)

	return Envelope{
		Payload: string(raw),
		Metadata: ObservabilityMetadata{
			Traceparent:     carrier["traceparent"],
			Tracestate:      carrier["tracestate"],
			Baggage:         carrier["baggage"],
			ProducerService: producerService,
			ProducedAt:      now.UTC().Format(time.RFC3339Nano),
		},
	}, nil
}

// Fields flattens the envelope into stream entry fields. Empty metadata
// fields are omitted.
func (e Envelope) Fields() map[string]interface{} {
	fields := map[string]interface{}{"payload": e.Payload}
	if e.Metadata.Traceparent != "" {
		fields["traceparent"] = e.Metadata.Traceparent
	}
	if e.Metadata.Tracestate != "" {
		fields["tracestate"] = e.Metadata.Tracestate
	}
	if e.Metadata.Baggage != "" {
		fields["baggage"] = e.Metadata.Baggage
	}
	if e.Metadata.ProducerService != "" {
		fields["producer_service"] = e.Metadata.ProducerService
	}
	if e.Metadata.ProducedAt != "" {
		fields["produced_at"] = e.Metadata.ProducedAt
	}
	return fields
}

// EnvelopeFromFields rebuilds an envelope from stream entry fields. A missing
// payload field is an error; metadata fields are best-effort.
func EnvelopeFromFields(fields map[string]interface{}) (Envelope, error) {
	payload, ok := stringField(fields, "payload")
	if !ok {
		return Envelope{}, errors.New("stream entry has no payload field")
	}
	return Envelope{
		Payload: payload,
		Metadata: ObservabilityMetadata{
			Traceparent:     stringFieldOr(fields, "traceparent"),
			Tracestate:      stringFieldOr(fields, "tracestate"),
			Baggage:         stringFieldOr(fields, "baggage"),
			ProducerService: stringFieldOr(fields, "producer_service"),
			ProducedAt:      stringFieldOr(fields, "produced_at"),
		},
	}, nil
}

// DLQEntry records a message that failed normal processing, kept verbatim for
// offline inspection.
type DLQEntry struct {
	SourceStream    string                `json:"sourceStream"`
	DLQStream       string                `json:"dlqStream"`
	FailedMessageID string                `json:"failedMessageId"`
	Payload         string                `json:"payload"`
	Metadata        ObservabilityMetadata `json:"metadata,omitempty"`
	Error           string                `json:"error"`
	FailedAt        time.Time             `json:"failedAt"`
}

func stringField(fields map[string]interface{}, name string) (string, bool) {
	value, ok := fields[name]
	if !ok {
		return "", false
	}
	s, ok := value.(string)
	return s, ok
}

func stringFieldOr(fields map[string]interface{}, name string) string {
	s, _ := stringField(fields, name)
	return s
}
