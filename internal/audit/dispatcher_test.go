package audit

import (
	"context"
	"sync"
	"testing"
	"time"
)

type gatedSink struct {
	mu       sync.Mutex
	received []Event
	started  chan struct{}
	release  chan struct{}
	once     sync.Once
}

func newGatedSink() *gatedSink {
	return &gatedSink{
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
}

func (s *gatedSink) Emit(_ context.Context, event Event) {
	s.once.Do(func() { close(s.started) })
	<-s.release

	s.mu.Lock()
	s.received = append(s.received, event)
	s.mu.Unlock()
}

func (s *gatedSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.received)
}

func event(id string) Event {
	return Event{
		Timestamp:     time.Now(),
		EventType:     TypeRateLimitViolation,
		CorrelationID: id,
	}
}

func TestDisabledDispatcherIsNil(t *testing.T) {
	d := NewDispatcher(Config{Enabled: false}, NoOpSink{})
	if d != nil {
		t.Fatal("disabled dispatcher is not nil")
	}

	// Every method is safe on the nil dispatcher.
	d.Emit(context.Background(), event("x"))
	if d.Dropped() != 0 {
		t.Error("nil dispatcher reported drops")
	}
	d.Close()
}

func TestCloseDrainsBufferedEvents(t *testing.T) {
	sink := NewChannelSink(16)
	d := NewDispatcher(Config{Enabled: true, BufferSize: 8}, sink)

	for i := 0; i < 5; i++ {
		d.Emit(context.Background(), event("drain"))
	}
	d.Close()

	for i := 0; i < 5; i++ {
		select {
		case <-sink.Events():
		default:
			t.Fatalf("event %d not delivered before Close returned", i)
		}
	}
}

func TestDropIfFullNeverBlocks(t *testing.T) {
	sink := newGatedSink()
	d := NewDispatcher(Config{Enabled: true, BufferSize: 1, DropIfFull: true}, sink)

	// First event is held inside the sink, second fills the buffer, third has
	// nowhere to go.
	d.Emit(context.Background(), event("a"))
	<-sink.started
	d.Emit(context.Background(), event("b"))

	done := make(chan struct{})
	go func() {
		d.Emit(context.Background(), event("c"))
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Emit blocked with DropIfFull set")
	}

	if got := d.Dropped(); got != 1 {
		t.Errorf("dropped = %d, want 1", got)
	}

	close(sink.release)
	d.Close()

	if got := sink.count(); got != 2 {
		t.Errorf("delivered = %d, want 2", got)
	}
}

func TestEmitAfterCloseIsIgnored(t *testing.T) {
	sink := NewChannelSink(4)
	d := NewDispatcher(Config{Enabled: true, BufferSize: 4}, sink)
	d.Close()

	d.Emit(context.Background(), event("late"))

	select {
	case got := <-sink.Events():
		t.Errorf("event delivered after Close: %+v", got)
	default:
	}
}

type faultySink struct {
	delivered []Event
}

func (s *faultySink) Emit(_ context.Context, event Event) {
	if event.CorrelationID == "boom" {
		panic("sink failure")
	}
	s.delivered = append(s.delivered, event)
}

func TestSinkFailureLosesOnlyItsEvent(t *testing.T) {
	sink := &faultySink{}
	d := NewDispatcher(Config{Enabled: true, BufferSize: 4}, sink)

	d.Emit(context.Background(), event("boom"))
	d.Emit(context.Background(), event("after"))
	d.Close()

	if len(sink.delivered) != 1 || sink.delivered[0].CorrelationID != "after" {
		t.Fatalf("delivered = %+v, want only the event after the failure", sink.delivered)
	}
	if got := d.Dropped(); got != 1 {
		t.Errorf("dropped = %d, want 1", got)
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	d := NewDispatcher(Config{Enabled: true, BufferSize: 1}, NoOpSink{})
	d.Close()
	d.Close()
}
