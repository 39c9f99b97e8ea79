package relay

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imranansari/fork-deploy/activities"
)

type fakeFetcher struct {
	calls atomic.Int32
	fail  func(n int32) error
}

func (f *fakeFetcher) FetchLogs(ctx context.Context, serviceID string, limit int) (*activities.LogBatch, error) {
	n := f.calls.Add(1)
	if f.fail != nil {
		if err := f.fail(n); err != nil {
			return nil, err
		}
	}
	return &activities.LogBatch{Logs: []json.RawMessage{json.RawMessage(`{"message":"line"}`)}}, nil
}

type chanSink struct {
	events chan Event
	err    error
}

func (s *chanSink) Send(e Event) error {
	if s.err != nil {
		return s.err
	}
	s.events <- e
	return nil
}

// manualTicker lets tests decide exactly when a tick fires
type manualTicker struct {
	ch      chan time.Time
	mu      sync.Mutex
	stopped int
}

func (m *manualTicker) install(r *Relay) {
	r.newTicker = func(time.Duration) (<-chan time.Time, func()) {
		return m.ch, func() {
			m.mu.Lock()
			m.stopped++
			m.mu.Unlock()
		}
	}
}

func (m *manualTicker) stopCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stopped
}

func receive(t *testing.T, events <-chan Event) Event {
	t.Helper()
	select {
	case e := <-events:
		return e
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}

func TestRun_OneEventPerTickIncludingFirst(t *testing.T) {
	fetcher := &fakeFetcher{}
	r := New(fetcher, time.Hour, 100)
	ticker := &manualTicker{ch: make(chan time.Time)}
	ticker.install(r)

	sink := &chanSink{events: make(chan Event)}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx, "srv-1", sink) }()

	first := receive(t, sink.events)
	assert.True(t, first.OK)
	assert.Len(t, first.Logs, 1)
	assert.Equal(t, int32(1), fetcher.calls.Load())

	for i := 2; i <= 4; i++ {
		ticker.ch <- time.Now()
		e := receive(t, sink.events)
		assert.True(t, e.OK)
		assert.Equal(t, int32(i), fetcher.calls.Load())
	}

	cancel()
	require.NoError(t, <-done)
	assert.Equal(t, 1, ticker.stopCount())

	select {
	case e := <-sink.events:
		t.Fatalf("unexpected event after close: %+v", e)
	case <-time.After(50 * time.Millisecond):
	}
	assert.Equal(t, int32(4), fetcher.calls.Load())
}

func TestRun_RealTickerStopsOnCancel(t *testing.T) {
	fetcher := &fakeFetcher{}
	r := New(fetcher, 10*time.Millisecond, 5)
	sink := &chanSink{events: make(chan Event, 64)}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx, "srv-1", sink) }()

	receive(t, sink.events)
	receive(t, sink.events)
	cancel()
	require.NoError(t, <-done)

	after := fetcher.calls.Load()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, after, fetcher.calls.Load(), "poll fired after close")
}

func TestRun_PollFailureKeepsStreaming(t *testing.T) {
	fetcher := &fakeFetcher{fail: func(n int32) error {
		if n == 1 {
			return &activities.RemoteCallError{
				Op:      "fetch logs",
				Payload: json.RawMessage(`{"message":"rate limited"}`),
				Err:     errors.New("429"),
			}
		}
		return nil
	}}
	r := New(fetcher, time.Hour, 100)
	ticker := &manualTicker{ch: make(chan time.Time)}
	ticker.install(r)

	sink := &chanSink{events: make(chan Event)}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx, "srv-1", sink) }()

	failed := receive(t, sink.events)
	assert.False(t, failed.OK)
	assert.Contains(t, failed.Error, "429")
	assert.JSONEq(t, `{"message":"rate limited"}`, string(failed.Detail))

	ticker.ch <- time.Now()
	recovered := receive(t, sink.events)
	assert.True(t, recovered.OK)

	cancel()
	require.NoError(t, <-done)
}

func TestRun_SendFailureCloses(t *testing.T) {
	fetcher := &fakeFetcher{}
	r := New(fetcher, time.Hour, 100)
	ticker := &manualTicker{ch: make(chan time.Time)}
	ticker.install(r)

	sink := &chanSink{err: errors.New("broken pipe")}
	err := r.Run(context.Background(), "srv-1", sink)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken pipe")
	assert.Equal(t, int32(1), fetcher.calls.Load())
	assert.Equal(t, 1, ticker.stopCount())
}

func TestRun_NoEventWhenCancelledDuringPoll(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	fetcher := &fakeFetcher{fail: func(int32) error {
		cancel()
		return context.Canceled
	}}
	r := New(fetcher, time.Hour, 100)
	ticker := &manualTicker{ch: make(chan time.Time)}
	ticker.install(r)

	sink := &chanSink{events: make(chan Event, 1)}
	require.NoError(t, r.Run(ctx, "srv-1", sink))
	assert.Empty(t, sink.events)
}

func TestRun_RequiresServiceID(t *testing.T) {
	fetcher := &fakeFetcher{}
	err := New(fetcher, time.Second, 1).Run(context.Background(), "", &chanSink{})
	require.Error(t, err)
	assert.Equal(t, int32(0), fetcher.calls.Load())
}

func TestEvent_JSONShape(t *testing.T) {
	ok, err := json.Marshal(Event{OK: true, Logs: []json.RawMessage{json.RawMessage(`{"a":1}`)}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok":true,"logs":[{"a":1}]}`, string(ok))

	failed, err := json.Marshal(Event{Error: "boom", Detail: json.RawMessage(`"x"`)})
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok":false,"logs":null,"error":"boom","detail":"x"}`, string(failed))
}
