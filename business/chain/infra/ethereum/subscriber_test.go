package ethereum

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/fd1az/chainprobe/business/chain/app"
	"github.com/fd1az/chainprobe/business/chain/domain"
)

func receive(t *testing.T, sub app.Subscription) *domain.Header {
	t.Helper()
	select {
	case h := <-sub.Headers():
		return h
	case err := <-sub.Err():
		t.Fatalf("subscription error: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for header")
	}
	return nil
}

func TestNewSubscriber_RequiresEndpoint(t *testing.T) {
	if _, err := NewSubscriber(SubscriberConfig{}, testLogger()); err == nil {
		t.Fatal("expected error without endpoints")
	}
}

func TestSubscriber_WebSocket(t *testing.T) {
	fake := newFakeEth()
	srv := newRPCServer(t, fake)
	ts := httptest.NewServer(srv.WebsocketHandler([]string{"*"}))
	defer ts.Close()

	cfg := DefaultSubscriberConfig("ws://"+strings.TrimPrefix(ts.URL, "http://"), "")
	s, err := NewSubscriber(cfg, testLogger())
	if err != nil {
		t.Fatalf("NewSubscriber: %v", err)
	}
	if s.State() != domain.StateDisconnected {
		t.Fatalf("initial state = %s", s.State())
	}

	sub, err := s.Subscribe(context.Background())
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	if s.State() != domain.StateConnected {
		t.Errorf("state = %s, want connected", s.State())
	}

	chain := fake.extend(3)
	for _, h := range chain {
		fake.heads <- h
	}
	for i, want := range chain {
		got := receive(t, sub)
		if got.Hash != want.Hash() {
			t.Fatalf("header %d = %s, want %s", i, got.Hash, want.Hash())
		}
	}

	sub.Unsubscribe()
	sub.Unsubscribe()
	if s.State() != domain.StateDisconnected {
		t.Errorf("state after unsubscribe = %s", s.State())
	}
}

func TestSubscriber_PollingFillsGaps(t *testing.T) {
	fake := newFakeEth()
	first := fake.extend(4)
	ts := httptest.NewServer(newRPCServer(t, fake))
	defer ts.Close()

	cfg := DefaultSubscriberConfig("", ts.URL)
	cfg.PollInterval = 20 * time.Millisecond
	s, err := NewSubscriber(cfg, testLogger())
	if err != nil {
		t.Fatalf("NewSubscriber: %v", err)
	}

	sub, err := s.Subscribe(context.Background())
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer sub.Unsubscribe()

	if got := receive(t, sub); got.Hash != first[3].Hash() {
		t.Fatalf("first header = %d, want latest %d", got.Number, 3)
	}

	next := fake.extend(3)
	for _, want := range next {
		got := receive(t, sub)
		if got.Hash != want.Hash() {
			t.Fatalf("got #%d %s, want #%d", got.Number, got.Hash, want.Number.Uint64())
		}
	}
}

func TestSubscriber_PollingErrorEndsStream(t *testing.T) {
	fake := newFakeEth()
	fake.extend(1)
	ts := httptest.NewServer(newRPCServer(t, fake))
	defer ts.Close()

	cfg := DefaultSubscriberConfig("", ts.URL)
	cfg.PollInterval = 10 * time.Millisecond
	s, err := NewSubscriber(cfg, testLogger())
	if err != nil {
		t.Fatalf("NewSubscriber: %v", err)
	}
	sub, err := s.Subscribe(context.Background())
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer sub.Unsubscribe()

	receive(t, sub)
	fake.setErr(errBackend)

	select {
	case err := <-sub.Err():
		if err == nil {
			t.Fatal("nil error")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("expected stream error")
	}
}
