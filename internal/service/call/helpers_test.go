package call

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"rtc-coordinator/internal/domain"
)

// fakeChannel records every frame sent to it
type fakeChannel struct {
	mu      sync.Mutex
	open    bool
	sendErr error
	frames  [][]byte
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{open: true}
}

func (f *fakeChannel) Send(data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.frames = append(f.frames, append([]byte(nil), data...))
	return nil
}

func (f *fakeChannel) IsOpen() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.open
}

func (f *fakeChannel) close() {
	f.mu.Lock()
	f.open = false
	f.mu.Unlock()
}

func (f *fakeChannel) reset() {
	f.mu.Lock()
	f.frames = nil
	f.mu.Unlock()
}

// messages decodes every recorded frame
func (f *fakeChannel) messages(t *testing.T) []map[string]any {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]map[string]any, 0, len(f.frames))
	for _, frame := range f.frames {
		var m map[string]any
		require.NoError(t, json.Unmarshal(frame, &m))
		out = append(out, m)
	}
	return out
}

// direct returns top-level messages of the given type
func (f *fakeChannel) direct(t *testing.T, msgType string) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, m := range f.messages(t) {
		if m["type"] == msgType {
			out = append(out, m)
		}
	}
	return out
}

// roomEvents unwraps room_broadcast envelopes carrying eventType
func (f *fakeChannel) roomEvents(t *testing.T, eventType string) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, m := range f.messages(t) {
		if m["type"] != EventRoomBroadcast {
			continue
		}
		event, ok := m["event"].(map[string]any)
		require.True(t, ok, "room_broadcast without event")
		if event["type"] == eventType {
			out = append(out, event)
		}
	}
	return out
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type recordingSink struct {
	mu      sync.Mutex
	err     error
	samples []*domain.QualitySample
}

func (r *recordingSink) RecordSample(_ context.Context, sample *domain.QualitySample) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.samples = append(r.samples, sample)
	return r.err
}

func (r *recordingSink) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.samples)
}

var errSinkDown = errors.New("sink unavailable")

type fixture struct {
	svc      *Service
	store    *SessionStore
	registry *Registry
	clock    *fakeClock
	sink     *recordingSink
	channels map[int64]*fakeChannel
}

// newFixture builds a service with a fake clock and a registered channel per user
func newFixture(t *testing.T, users ...int64) *fixture {
	t.Helper()
	store := NewSessionStore()
	registry := NewRegistry(nil)
	sink := &recordingSink{}
	svc := NewService(store, registry, sink, DefaultOptions())
	clock := &fakeClock{now: time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)}
	svc.now = clock.Now

	f := &fixture{
		svc:      svc,
		store:    store,
		registry: registry,
		clock:    clock,
		sink:     sink,
		channels: make(map[int64]*fakeChannel),
	}
	for _, u := range users {
		f.connect(u)
	}
	return f
}

func (f *fixture) connect(userID int64) *fakeChannel {
	ch := newFakeChannel()
	f.registry.Register(context.Background(), userID, ch)
	f.channels[userID] = ch
	return ch
}

func (f *fixture) send(userID int64, msgType, roomID string) {
	f.svc.HandleMessage(context.Background(), userID, &SignalingMessage{Type: msgType, RoomID: roomID})
}

func (f *fixture) resetFrames() {
	for _, ch := range f.channels {
		ch.reset()
	}
}
