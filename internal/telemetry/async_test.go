package telemetry

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// mockEventEmitter implements EventEmitter for tests.
type mockEventEmitter struct {
	mu      sync.Mutex
	events  []*Event
	emitErr error
	done    chan struct{}
}

func newMockEmitter(buffer int) *mockEventEmitter {
	return &mockEventEmitter{done: make(chan struct{}, buffer)}
}

func (m *mockEventEmitter) Emit(ctx context.Context, event *Event) error {
	m.mu.Lock()
	m.events = append(m.events, event)
	m.mu.Unlock()
	if m.done != nil {
		m.done <- struct{}{}
	}
	return m.emitErr
}

func (m *mockEventEmitter) getEvents() []*Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*Event(nil), m.events...)
}

func waitFor(t *testing.T, ch <-chan struct{}, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-ch:
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for emit %d of %d", i+1, n)
		}
	}
}

func TestEmitAsync_NilEmitterOrEvent(t *testing.T) {
	EmitAsync(nil, context.Background(), &Event{Type: EventLoginSucceeded})

	emitter := newMockEmitter(1)
	EmitAsync(emitter, context.Background(), nil)
	time.Sleep(10 * time.Millisecond)
	if n := len(emitter.getEvents()); n != 0 {
		t.Errorf("expected 0 events, got %d", n)
	}
}

func TestEmitAsync_SuccessfulEmit(t *testing.T) {
	emitter := newMockEmitter(1)
	EmitAsync(emitter, context.Background(), &Event{
		Type:          EventLoginSucceeded,
		PrincipalType: "customer",
		SubjectID:     "c1",
		SessionID:     "s1",
	})
	waitFor(t, emitter.done, 1)

	events := emitter.getEvents()
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if events[0].SubjectID != "c1" || events[0].Type != EventLoginSucceeded {
		t.Errorf("event = %+v", events[0])
	}
	if events[0].At.IsZero() {
		t.Error("EmitAsync should stamp the event time")
	}
}

func TestEmitAsync_IgnoresRequestCancellation(t *testing.T) {
	emitter := newMockEmitter(1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	EmitAsync(emitter, ctx, &Event{Type: EventLogout})
	waitFor(t, emitter.done, 1)
}

func TestEmitAsync_ErrorDoesNotPanic(t *testing.T) {
	emitter := newMockEmitter(1)
	emitter.emitErr = context.DeadlineExceeded
	EmitAsync(emitter, context.Background(), &Event{Type: EventLogout})
	waitFor(t, emitter.done, 1)
}

func TestEmitAsync_Concurrent(t *testing.T) {
	emitter := newMockEmitter(10)
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			EmitAsync(emitter, context.Background(), &Event{Type: EventTokenRefreshed})
		}()
	}
	wg.Wait()
	waitFor(t, emitter.done, 10)
	if n := len(emitter.getEvents()); n != 10 {
		t.Errorf("expected 10 events, got %d", n)
	}
}

func TestFanout(t *testing.T) {
	a, b := newMockEmitter(1), newMockEmitter(1)
	b.emitErr = errors.New("kafka down")
	err := Fanout(a, nil, b).Emit(context.Background(), &Event{Type: EventSessionRevoked})
	if err == nil || err.Error() != "kafka down" {
		t.Errorf("Fanout err = %v", err)
	}
	if len(a.getEvents()) != 1 || len(b.getEvents()) != 1 {
		t.Error("every emitter should receive the event")
	}
	if err := Fanout().Emit(context.Background(), &Event{}); err != nil {
		t.Errorf("empty Fanout: %v", err)
	}
}
