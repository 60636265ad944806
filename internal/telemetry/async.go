package telemetry

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// emitTimeout bounds one background emit.
const emitTimeout = 5 * time.Second

// ShutdownDrainDuration is the pause between stopping the listeners and closing exporters.
// It covers one emitTimeout so security events raised by the last requests still go out.
const ShutdownDrainDuration = emitTimeout

// EmitAsync publishes event off the request path. A nil emitter or event is a no-op.
// The emit keeps ctx values (trace ids) but not its cancellation; failures are logged on zap.L().
func EmitAsync(emitter EventEmitter, ctx context.Context, event *Event) {
	if emitter == nil || event == nil {
		return
	}
	if event.At.IsZero() {
		event.At = time.Now().UTC()
	}
	go func() {
		emitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), emitTimeout)
		defer cancel()
		if err := emitter.Emit(emitCtx, event); err != nil {
			zap.L().Warn("security event dropped", zap.String("event_type", event.Type), zap.Error(err))
		}
	}()
}
