package artifacts

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func TestWatcher_ReceivesUpdates(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()

		// A version-less announcement is ignored, then a real one.
		conn.WriteJSON(map[string]string{"note": "no version here"})
		conn.WriteJSON(map[string]string{"version": "v9"})

		// Hold the connection open until the client goes away.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	updates := make(chan string, 2)
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	w := NewWatcher(wsURL, func(version string) {
		updates <- version
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- w.Watch(ctx) }()

	select {
	case v := <-updates:
		if v != "v9" {
			t.Errorf("got version %q, want v9", v)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for update callback")
	}

	select {
	case v := <-updates:
		t.Errorf("version-less announcement should not trigger the callback, got %q", v)
	default:
	}

	cancel()
	select {
	case err := <-done:
		if err != context.Canceled {
			t.Errorf("Watch should end with context.Canceled, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Watch did not stop after cancellation")
	}
}

func TestWatcher_ReconnectsAfterDrop(t *testing.T) {
	upgrader := websocket.Upgrader{}
	var conns int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		conns++
		if conns == 1 {
			// First connection drops immediately to force a reconnect.
			conn.Close()
			return
		}
		defer conn.Close()
		conn.WriteJSON(map[string]string{"version": "v2"})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	updates := make(chan string, 1)
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	w := NewWatcher(wsURL, func(version string) { updates <- version })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Watch(ctx)

	select {
	case v := <-updates:
		if v != "v2" {
			t.Errorf("got version %q, want v2", v)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("watcher did not reconnect after the dropped connection")
	}
}
