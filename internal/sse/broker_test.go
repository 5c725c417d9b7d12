package sse

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func drain(ch chan []byte) []string {
	var out []string
	for {
		select {
		case msg := <-ch:
			out = append(out, string(msg))
		default:
			return out
		}
	}
}

func TestSubscribeUnsubscribe(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	defer b.Close()
	if b.ClientCount() != 0 {
		t.Fatalf("expected 0 clients")
	}
	ch := b.Subscribe()
	if b.ClientCount() != 1 {
		t.Fatalf("expected 1 client")
	}
	b.Unsubscribe(ch)
	if b.ClientCount() != 0 {
		t.Fatalf("expected 0 clients after unsub")
	}
}

func TestPublishRefreshed(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	b.PublishRefreshed(Refreshed{Snapshot: "01J", Skills: 12, Categories: 3})

	select {
	case msg := <-ch:
		s := string(msg)
		if !strings.Contains(s, "event: "+TypeIndexRefreshed) {
			t.Errorf("missing event type in %q", s)
		}
		if !strings.Contains(s, `"snapshot":"01J"`) || !strings.Contains(s, `"skills":12`) {
			t.Errorf("missing data in %q", s)
		}
		if strings.Contains(s, "CategoriesChanged") {
			t.Errorf("internal flag leaked into %q", s)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for message")
	}

	// Unchanged categories never produce categories.updated.
	time.Sleep(50 * time.Millisecond)
	for _, m := range drain(ch) {
		if strings.Contains(m, TypeCategoriesUpdated) {
			t.Errorf("unexpected %q", m)
		}
	}
}

func TestPublishRefreshed_CategoriesThrottle(t *testing.T) {
	b := NewBroker(500 * time.Millisecond)
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	b.PublishRefreshed(Refreshed{Snapshot: "a", CategoriesChanged: true, Categories: 2})
	b.PublishRefreshed(Refreshed{Snapshot: "b", CategoriesChanged: true, Categories: 3})

	time.Sleep(50 * time.Millisecond)
	refreshed, categories := 0, 0
	for _, m := range drain(ch) {
		switch {
		case strings.Contains(m, "event: "+TypeCategoriesUpdated):
			categories++
			if !strings.Contains(m, `"categories":2`) {
				t.Errorf("categories payload = %q", m)
			}
		case strings.Contains(m, "event: "+TypeIndexRefreshed):
			refreshed++
		}
	}

	if refreshed != 2 {
		t.Errorf("refreshed events = %d, want 2", refreshed)
	}
	if categories != 1 {
		t.Errorf("categories events = %d, want 1 (throttled)", categories)
	}
}

func TestPublishRefreshFailed(t *testing.T) {
	b := NewBroker(time.Second)
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	b.PublishRefreshFailed(RefreshFailed{Source: "git:acme", Stage: "pull", Error: "exit status 128"})

	select {
	case msg := <-ch:
		s := string(msg)
		if !strings.Contains(s, "event: "+TypeRefreshFailed) || !strings.Contains(s, `"stage":"pull"`) {
			t.Errorf("unexpected message %q", s)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for message")
	}
}

func TestSSEHandler(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	req := httptest.NewRequest(http.MethodGet, "/api/events", nil)
	req = req.WithContext(ctx)
	w := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		b.ServeHTTP(w, req)
		close(done)
	}()

	// Give handler time to subscribe.
	time.Sleep(50 * time.Millisecond)
	if b.ClientCount() != 1 {
		t.Fatalf("expected 1 client from handler")
	}

	b.PublishRefreshed(Refreshed{Snapshot: "x", Skills: 1})
	time.Sleep(50 * time.Millisecond)

	cancel()
	<-done

	body := w.Body.String()
	if !strings.Contains(body, "event: index.refreshed") {
		t.Errorf("handler output missing event: %q", body)
	}
	if ct := w.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("content type = %q", ct)
	}

	time.Sleep(50 * time.Millisecond)
	if b.ClientCount() != 0 {
		t.Errorf("client not cleaned up after disconnect")
	}
}

func TestPublishDropsOnFullBuffer(t *testing.T) {
	b := NewBroker(time.Second)
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	// Capacity is 64; the extra events are dropped instead of blocking.
	for i := 0; i < 70; i++ {
		b.Publish(Event{Type: "test", Data: map[string]int{"i": i}})
	}
}

func TestCloseClosesSubscribersAndStopsOperations(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	ch := b.Subscribe()
	if b.ClientCount() != 1 {
		t.Fatalf("expected 1 client")
	}

	b.Close()

	select {
	case _, ok := <-ch:
		if ok {
			t.Fatal("expected subscriber channel to be closed")
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for channel close")
	}

	if b.ClientCount() != 0 {
		t.Fatalf("expected 0 clients after close")
	}

	// No-ops after close.
	b.PublishRefreshed(Refreshed{Snapshot: "x"})
	b.PublishRefreshFailed(RefreshFailed{Source: "s"})
	if sub := b.Subscribe(); sub == nil {
		t.Fatal("subscribe after close returned nil")
	}
}
