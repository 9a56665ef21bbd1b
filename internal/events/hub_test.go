package events

import (
	"net/http"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestShouldBroadcast(t *testing.T) {
	hub := NewHub(&HubConfig{
		BroadcastRuleFires:     true,
		BroadcastCancellations: false,
		BroadcastVerdicts:      true,
	}, zap.NewNop())

	cases := []struct {
		eventType EventType
		want      bool
	}{
		{EventTypeRuleFire, true},
		{EventTypeCancellation, false},
		{EventTypeOracleVerdict, true},
		{EventTypeConnection, true},
		{EventType("unknown"), false},
	}

	for _, tc := range cases {
		if got := hub.shouldBroadcast(tc.eventType); got != tc.want {
			t.Errorf("shouldBroadcast(%s): expected %v, got %v", tc.eventType, tc.want, got)
		}
	}

	t.Run("NilConfigBroadcastsNothing", func(t *testing.T) {
		hub := NewHub(nil, zap.NewNop())
		if hub.shouldBroadcast(EventTypeRuleFire) {
			t.Error("nil config should suppress all broadcasts")
		}
	})
}

func TestBroadcastEventNeverBlocks(t *testing.T) {
	// The hub loop is deliberately not running here: a full broadcast
	// channel must drop events instead of stalling the caller.
	hub := NewHub(&HubConfig{BroadcastRuleFires: true}, zap.NewNop())

	done := make(chan struct{})
	go func() {
		for i := 0; i < cap(hub.broadcast)+10; i++ {
			hub.BroadcastEvent(Event{Type: EventTypeRuleFire, Timestamp: time.Now()})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("BroadcastEvent blocked on a full channel")
	}
}

func TestCheckOrigin(t *testing.T) {
	newRequest := func(origin string) *http.Request {
		req, _ := http.NewRequest(http.MethodGet, "/ws", nil)
		if origin != "" {
			req.Header.Set("Origin", origin)
		}
		return req
	}

	t.Run("Wildcard", func(t *testing.T) {
		hub := NewHub(&HubConfig{AllowedOrigins: []string{"*"}}, zap.NewNop())
		if !hub.checkOrigin(newRequest("http://anywhere.example")) {
			t.Error("wildcard should allow any origin")
		}
	})

	t.Run("ExactMatch", func(t *testing.T) {
		hub := NewHub(&HubConfig{AllowedOrigins: []string{"http://ops.example"}}, zap.NewNop())
		if !hub.checkOrigin(newRequest("http://ops.example")) {
			t.Error("expected listed origin to be allowed")
		}
		if hub.checkOrigin(newRequest("http://evil.example")) {
			t.Error("expected unlisted origin to be refused")
		}
	})

	t.Run("EmptyListRefusesAll", func(t *testing.T) {
		hub := NewHub(&HubConfig{}, zap.NewNop())
		if hub.checkOrigin(newRequest("http://ops.example")) {
			t.Error("empty allow list should refuse everything")
		}
	})
}

func TestConnectionEventsBroadcast(t *testing.T) {
	hub := NewHub(&HubConfig{}, zap.NewNop())

	watcher := &Client{ID: "watcher", send: make(chan Event, 4), connectedAt: time.Now()}
	hub.registerClient(watcher)

	next := func(t *testing.T) Event {
		t.Helper()
		select {
		case ev := <-watcher.send:
			return ev
		default:
			t.Fatal("expected a queued event")
			return Event{}
		}
	}

	// The watcher sees its own arrival first.
	ev := next(t)
	if ev.Type != EventTypeConnection {
		t.Fatalf("expected connection event, got %s", ev.Type)
	}

	peer := &Client{
		ID:          "peer",
		send:        make(chan Event, 4),
		remoteAddr:  "10.0.0.9:4242",
		connectedAt: time.Now(),
	}
	hub.registerClient(peer)

	ev = next(t)
	data, ok := ev.Data.(ConnectionEvent)
	if !ok {
		t.Fatalf("expected ConnectionEvent data, got %T", ev.Data)
	}
	if data.Action != "connected" || data.ClientID != "peer" || data.ClientIP != "10.0.0.9:4242" {
		t.Errorf("unexpected connected event: %+v", data)
	}

	hub.unregisterClient(peer)

	ev = next(t)
	data, ok = ev.Data.(ConnectionEvent)
	if !ok {
		t.Fatalf("expected ConnectionEvent data, got %T", ev.Data)
	}
	if data.Action != "disconnected" || data.ClientID != "peer" {
		t.Errorf("unexpected disconnected event: %+v", data)
	}

	// Unregistering a client the hub never saw stays silent.
	hub.unregisterClient(&Client{ID: "stranger", send: make(chan Event, 1)})
	select {
	case ev := <-watcher.send:
		t.Errorf("unexpected event %+v", ev)
	default:
	}
}

func TestActiveConnections(t *testing.T) {
	hub := NewHub(&HubConfig{}, zap.NewNop())
	if got := hub.ActiveConnections(); got != 0 {
		t.Errorf("expected 0 connections, got %d", got)
	}

	client := &Client{ID: "c1", send: make(chan Event, 1)}
	hub.registerClient(client)
	if got := hub.ActiveConnections(); got != 1 {
		t.Errorf("expected 1 connection, got %d", got)
	}

	hub.unregisterClient(client)
	if got := hub.ActiveConnections(); got != 0 {
		t.Errorf("expected 0 connections after unregister, got %d", got)
	}
}
