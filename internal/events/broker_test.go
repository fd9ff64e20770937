package events

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestSubscribeUnsubscribe(t *testing.T) {
	b := NewBroker()
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

func TestPublishDelivery(t *testing.T) {
	b := NewBroker()
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	b.Publish("sync.create", map[string]string{"name": "001-demo"})

	select {
	case msg := <-ch:
		s := string(msg)
		if !strings.Contains(s, "event: sync.create") {
			t.Errorf("missing event type in %q", s)
		}
		if !strings.Contains(s, `"name":"001-demo"`) {
			t.Errorf("missing data in %q", s)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for message")
	}
}

func TestPublishAfterClose(t *testing.T) {
	b := NewBroker()
	b.Close()
	// Must not panic or block.
	b.Publish("sync.finished", nil)
	if b.ClientCount() != 0 {
		t.Fatal("closed broker must report 0 clients")
	}
}

func TestSSEHandler(t *testing.T) {
	b := NewBroker()
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

	// Give the handler time to subscribe.
	time.Sleep(50 * time.Millisecond)
	if b.ClientCount() != 1 {
		t.Fatalf("expected 1 client from handler")
	}

	b.Publish("sync.update", map[string]string{"name": "001-demo"})
	time.Sleep(50 * time.Millisecond)

	cancel()
	<-done

	body := w.Body.String()
	if !strings.Contains(body, "event: sync.update") {
		t.Errorf("stream missing event: %q", body)
	}
	if !strings.Contains(body, "data: ") {
		t.Errorf("stream missing data frame: %q", body)
	}
}
