package otel

import (
	"context"
	"time"

	otellog "go.opentelemetry.io/otel/log"
	sdklog "go.opentelemetry.io/otel/sdk/log"

	"commerce-auth/backend/internal/telemetry"
)

const loggerName = "commerce-auth.security"

// RecordEmitter is the part of an OTel logger the emitter needs.
type RecordEmitter interface {
	Emit(ctx context.Context, record otellog.Record)
}

// NewEventEmitter returns an EventEmitter that sends events as OTel log records via the given LoggerProvider.
// If provider is nil, returns a no-op emitter.
func NewEventEmitter(provider *sdklog.LoggerProvider) telemetry.EventEmitter {
	if provider == nil {
		return noopEmitter{}
	}
	return NewEventEmitterWithLogger(provider.Logger(loggerName))
}

// NewEventEmitterWithLogger returns an EventEmitter writing to logger.
func NewEventEmitterWithLogger(logger RecordEmitter) telemetry.EventEmitter {
	return &otelEmitter{logger: logger}
}

type noopEmitter struct{}

func (noopEmitter) Emit(context.Context, *telemetry.Event) error { return nil }

type otelEmitter struct {
	logger RecordEmitter
}

// Emit converts the event to an OTel log record. Empty fields are not added as attributes.
func (e *otelEmitter) Emit(ctx context.Context, event *telemetry.Event) error {
	if event == nil {
		return nil
	}
	rec := otellog.Record{}
	rec.SetEventName(event.Type)
	rec.SetBody(otellog.StringValue(event.Type))
	if event.Reason != "" {
		rec.SetSeverity(otellog.SeverityWarn)
	} else {
		rec.SetSeverity(otellog.SeverityInfo)
	}
	ts := event.At
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	rec.SetTimestamp(ts)

	for _, kv := range []struct{ key, value string }{
		{"event_type", event.Type},
		{"principal_type", event.PrincipalType},
		{"subject_id", event.SubjectID},
		{"session_id", event.SessionID},
		{"device_id", event.DeviceID},
		{"client_ip", event.IP},
		{"reason", event.Reason},
	} {
		if kv.value != "" {
			rec.AddAttributes(otellog.String(kv.key, kv.value))
		}
	}
	if event.Count > 0 {
		rec.AddAttributes(otellog.Int64("count", event.Count))
	}
	e.logger.Emit(ctx, rec)
	return nil
}
