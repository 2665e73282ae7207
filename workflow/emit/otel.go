package emit

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// OTelEmitter turns every bus event into a short-lived OpenTelemetry
// span, named after the event's Kind, carrying workflow_id/seq plus
// the event's payload as attributes. It is the Bus sink cmd/shannon
// wires when OTEL_ENABLED is set (spec §6).
type OTelEmitter struct {
	tracer trace.Tracer
}

// NewOTelEmitter wraps tracer, typically otel.Tracer("shannon").
func NewOTelEmitter(tracer trace.Tracer) *OTelEmitter {
	return &OTelEmitter{tracer: tracer}
}

func (o *OTelEmitter) Emit(event Event) {
	_, span := o.tracer.Start(context.Background(), event.Kind)
	defer span.End()
	o.annotate(span, event)
}

func (o *OTelEmitter) EmitBatch(ctx context.Context, events []Event) error {
	for _, event := range events {
		_, span := o.tracer.Start(ctx, event.Kind)
		o.annotate(span, event)
		span.End()
	}
	return nil
}

// Flush force-flushes the registered tracer provider, if it supports it.
func (o *OTelEmitter) Flush(ctx context.Context) error {
	type flusher interface {
		ForceFlush(context.Context) error
	}
	if f, ok := otel.GetTracerProvider().(flusher); ok {
		return f.ForceFlush(ctx)
	}
	return nil
}

// annotate sets span attributes from an event's identity and payload,
// mapping known cost/latency keys onto conventional attribute names
// and recording an error status when the payload carries one.
func (o *OTelEmitter) annotate(span trace.Span, event Event) {
	span.SetAttributes(
		attribute.String("shannon.workflow_id", event.WorkflowID),
		attribute.Int("shannon.seq", event.Seq),
	)

	for key, value := range event.Payload {
		attrKey := key
		switch key {
		case "input_tokens":
			attrKey = "shannon.llm.input_tokens"
		case "output_tokens":
			attrKey = "shannon.llm.output_tokens"
		case "cost_usd":
			attrKey = "shannon.llm.cost_usd"
		case "duration_ms":
			attrKey = "shannon.duration_ms"
		case "model":
			attrKey = "shannon.llm.model"
		}

		switch v := value.(type) {
		case string:
			span.SetAttributes(attribute.String(attrKey, v))
		case int:
			span.SetAttributes(attribute.Int(attrKey, v))
		case int64:
			span.SetAttributes(attribute.Int64(attrKey, v))
		case float64:
			span.SetAttributes(attribute.Float64(attrKey, v))
		case bool:
			span.SetAttributes(attribute.Bool(attrKey, v))
		case time.Duration:
			span.SetAttributes(attribute.Int64(attrKey, int64(v/time.Millisecond)))
		default:
			span.SetAttributes(attribute.String(attrKey, fmt.Sprintf("%v", v)))
		}
	}

	if errMsg, ok := event.Payload["error"].(string); ok {
		span.SetStatus(codes.Error, errMsg)
		span.RecordError(fmt.Errorf("%s", errMsg))
	}
}
