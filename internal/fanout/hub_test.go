// Watchgate - Incident Lifecycle & Watchlist Synchronization Engine
// Copyright 2026 Vigilant Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vigilant-labs/watchgate

package fanout

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/vigilant-labs/watchgate/internal/apperr"
	"github.com/vigilant-labs/watchgate/internal/config"
)

// fakeSubscriber hands out channels per subject and records lifecycle.
type fakeSubscriber struct {
	mu         sync.Mutex
	subs       map[string]chan []byte
	subscribes int
	cancels    int
}

func newFakeSubscriber() *fakeSubscriber {
	return &fakeSubscriber{subs: make(map[string]chan []byte)}
}

func (s *fakeSubscriber) Subscribe(subject string) (<-chan []byte, func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch := make(chan []byte, 16)
	s.subs[subject] = ch
	s.subscribes++
	return ch, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.cancels++
		close(ch)
		delete(s.subs, subject)
	}, nil
}

func (s *fakeSubscriber) push(t *testing.T, subject string, payload []byte) {
	t.Helper()
	s.mu.Lock()
	ch, ok := s.subs[subject]
	s.mu.Unlock()
	if !ok {
		t.Fatalf("no subscription for %s", subject)
	}
	ch <- payload
}

func (s *fakeSubscriber) counts() (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.subscribes, s.cancels
}

func testClient(hub *Hub, subject string, kind ChannelKind) *Client {
	return NewClient(hub, nil, subject, kind, &config.FanoutConfig{SendBuffer: 8})
}

// receive waits for a payload on the client's send channel.
func receive(t *testing.T, c *Client) []byte {
	t.Helper()
	select {
	case payload, ok := <-c.send:
		if !ok {
			t.Fatal("send channel closed")
		}
		return payload
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for payload")
		return nil
	}
}

func TestHubSubscribesOncePerSubject(t *testing.T) {
	sub := newFakeSubscriber()
	hub := NewHub(sub, &config.FanoutConfig{})

	a := testClient(hub, SubjectUser(1), ChannelUser)
	b := testClient(hub, SubjectUser(1), ChannelUser)
	if err := hub.Register(a); err != nil {
		t.Fatalf("register a: %v", err)
	}
	if err := hub.Register(b); err != nil {
		t.Fatalf("register b: %v", err)
	}

	if subs, _ := sub.counts(); subs != 1 {
		t.Errorf("expected 1 subscription, got %d", subs)
	}

	sub.push(t, SubjectUser(1), []byte(`{"action":"add"}`))
	if got := string(receive(t, a)); got != `{"action":"add"}` {
		t.Errorf("client a got %q", got)
	}
	if got := string(receive(t, b)); got != `{"action":"add"}` {
		t.Errorf("client b got %q", got)
	}
}

func TestHubUnsubscribesWhenLastClientLeaves(t *testing.T) {
	sub := newFakeSubscriber()
	hub := NewHub(sub, &config.FanoutConfig{})

	a := testClient(hub, SubjectUser(1), ChannelUser)
	b := testClient(hub, SubjectUser(1), ChannelUser)
	_ = hub.Register(a)
	_ = hub.Register(b)

	hub.Unregister(a)
	if _, cancels := sub.counts(); cancels != 0 {
		t.Error("unsubscribed while a client remained")
	}
	hub.Unregister(b)
	if _, cancels := sub.counts(); cancels != 1 {
		t.Error("last client leaving did not unsubscribe")
	}
	if hub.ClientCount(SubjectUser(1)) != 0 {
		t.Error("clients remain after unregister")
	}
}

func TestHubBranchLastWinsDisplaces(t *testing.T) {
	sub := newFakeSubscriber()
	hub := NewHub(sub, &config.FanoutConfig{BranchPolicy: PolicyLastWins})

	first := testClient(hub, SubjectBranch("branch-1"), ChannelBranch)
	second := testClient(hub, SubjectBranch("branch-1"), ChannelBranch)
	if err := hub.Register(first); err != nil {
		t.Fatalf("register first: %v", err)
	}
	if err := hub.Register(second); err != nil {
		t.Fatalf("register second: %v", err)
	}

	if _, ok := <-first.send; ok {
		t.Error("displaced client's send channel still open")
	}
	if hub.ClientCount(SubjectBranch("branch-1")) != 1 {
		t.Errorf("expected 1 client after displacement, got %d", hub.ClientCount(SubjectBranch("branch-1")))
	}

	// The subject stayed subscribed throughout.
	sub.push(t, SubjectBranch("branch-1"), []byte(`{}`))
	receive(t, second)
}

func TestHubBranchRejectPolicy(t *testing.T) {
	sub := newFakeSubscriber()
	hub := NewHub(sub, &config.FanoutConfig{BranchPolicy: PolicyReject})

	first := testClient(hub, SubjectBranch("branch-1"), ChannelBranch)
	second := testClient(hub, SubjectBranch("branch-1"), ChannelBranch)
	if err := hub.Register(first); err != nil {
		t.Fatalf("register first: %v", err)
	}
	if err := hub.Register(second); !apperr.IsConflict(err) {
		t.Errorf("got %v, want conflict", err)
	}

	// The holder is unaffected.
	sub.push(t, SubjectBranch("branch-1"), []byte(`{}`))
	receive(t, first)
}

func TestHubDropsSlowClient(t *testing.T) {
	sub := newFakeSubscriber()
	hub := NewHub(sub, &config.FanoutConfig{})

	slow := NewClient(hub, nil, SubjectUser(1), ChannelUser, &config.FanoutConfig{SendBuffer: 1})
	_ = hub.Register(slow)

	sub.push(t, SubjectUser(1), []byte(`{"n":1}`))
	sub.push(t, SubjectUser(1), []byte(`{"n":2}`))

	// The second payload overflows the buffer and evicts the client; its
	// send channel ends up closed after draining the first payload.
	deadline := time.Now().Add(time.Second)
	for hub.ClientCount(SubjectUser(1)) != 0 {
		if time.Now().After(deadline) {
			t.Fatal("slow client was not dropped")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestHubServeClosesEverything(t *testing.T) {
	sub := newFakeSubscriber()
	hub := NewHub(sub, &config.FanoutConfig{})

	a := testClient(hub, SubjectUser(1), ChannelUser)
	_ = hub.Register(a)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- hub.Serve(ctx) }()
	cancel()

	select {
	case err := <-done:
		if err == nil {
			t.Error("Serve returned nil after cancel")
		}
	case <-time.After(time.Second):
		t.Fatal("Serve did not return after cancel")
	}

	if _, ok := <-a.send; ok {
		t.Error("client channel still open after shutdown")
	}
	if err := hub.Register(testClient(hub, SubjectUser(2), ChannelUser)); !apperr.IsUnavailable(err) {
		t.Errorf("register after shutdown: got %v, want unavailable", err)
	}
}
