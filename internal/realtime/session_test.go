package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
)

type received struct {
	event string
	body  []byte
}

type fakeSession struct {
	id string

	mu     sync.Mutex
	got    []received
	closed bool
}

func newFakeSession(id string) *fakeSession {
	return &fakeSession{id: id}
}

func (s *fakeSession) ID() string { return s.id }

func (s *fakeSession) Emit(event string, body []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errors.New("closed")
	}
	s.got = append(s.got, received{event: event, body: append([]byte(nil), body...)})
	return nil
}

func (s *fakeSession) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
}

func (s *fakeSession) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *fakeSession) events(event string) [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out [][]byte
	for _, r := range s.got {
		if r.event == event {
			out = append(out, r.body)
		}
	}
	return out
}

// only 解析唯一一条 event 事件
func (s *fakeSession) only(t *testing.T, event string, v interface{}) {
	t.Helper()
	bodies := s.events(event)
	if len(bodies) != 1 {
		t.Fatalf("session %s: expected one %s event, got %d", s.id, event, len(bodies))
	}
	if err := json.Unmarshal(bodies[0], v); err != nil {
		t.Fatalf("session %s: decode %s: %v", s.id, event, err)
	}
}

type presenceCall struct {
	userID int64
	online bool
}

type fakePresence struct {
	mu    sync.Mutex
	calls []presenceCall
}

func (p *fakePresence) SetOnline(_ context.Context, userID int64) error {
	p.record(userID, true)
	return nil
}

func (p *fakePresence) SetOffline(_ context.Context, userID int64) error {
	p.record(userID, false)
	return nil
}

func (p *fakePresence) record(userID int64, online bool) {
	p.mu.Lock()
	p.calls = append(p.calls, presenceCall{userID: userID, online: online})
	p.mu.Unlock()
}

func (p *fakePresence) snapshot() []presenceCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]presenceCall(nil), p.calls...)
}
