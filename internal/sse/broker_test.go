package sse

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/starford/neno/internal/noteservice"
	"github.com/starford/neno/internal/testutil"
)

func newBroker(t *testing.T, throttle time.Duration) *Broker {
	t.Helper()
	b := NewBroker(throttle, testutil.Logger())
	t.Cleanup(b.Close)
	return b
}

func receive(t *testing.T, ch chan []byte) string {
	t.Helper()
	select {
	case msg := <-ch:
		return string(msg)
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
		return ""
	}
}

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
	b := newBroker(t, 100*time.Millisecond)
	if n := b.ClientCount(); n != 0 {
		t.Fatalf("ClientCount = %d, want 0", n)
	}
	ch := b.Subscribe()
	if n := b.ClientCount(); n != 1 {
		t.Fatalf("ClientCount = %d, want 1", n)
	}
	b.Unsubscribe(ch)
	if n := b.ClientCount(); n != 0 {
		t.Fatalf("ClientCount after unsubscribe = %d, want 0", n)
	}
}

func TestGraphEvicted(t *testing.T) {
	b := newBroker(t, 100*time.Millisecond)
	ch := b.Subscribe()

	b.GraphEvicted([]string{"a.subtext", "graph.json"})

	got := receive(t, ch)
	want := "event: graph.evicted\ndata: {\"objects\":[\"a.subtext\",\"graph.json\"]}\n\n"
	if got != want {
		t.Errorf("event = %q, want %q", got, want)
	}
}

func TestNoteChanged_ThrottlesGraphEvents(t *testing.T) {
	b := newBroker(t, time.Hour)
	ch := b.Subscribe()

	b.NoteChanged(noteservice.ChangeSaved, "a")
	b.NoteChanged(noteservice.ChangeRemoved, "b")
	b.NoteChanged("renamed", "c")

	want := []string{
		"event: note.saved\ndata: {\"slug\":\"a\"}\n\n",
		"event: graph.changed\ndata: {}\n\n",
		"event: note.removed\ndata: {\"slug\":\"b\"}\n\n",
	}
	for i := range want {
		if got := receive(t, ch); got != want[i] {
			t.Errorf("event %d = %q, want %q", i, got, want[i])
		}
	}
	time.Sleep(20 * time.Millisecond)
	if extra := drain(ch); len(extra) != 0 {
		t.Errorf("unexpected events %q", extra)
	}
}

func TestNoteServiceListener(t *testing.T) {
	b := newBroker(t, time.Hour)
	ch := b.Subscribe()

	e, _ := testutil.MemoryEngine(t)
	svc := noteservice.New(e,
		noteservice.WithLogger(testutil.Logger()),
		noteservice.WithChangeListener(b.NoteChanged))
	if _, err := svc.Put(context.Background(), noteservice.PutRequest{Slug: "fresh", Content: "hi"}); err != nil {
		t.Fatal(err)
	}

	if got := receive(t, ch); !strings.Contains(got, `"slug":"fresh"`) {
		t.Errorf("event = %q, want the saved slug", got)
	}
}

func TestServeHTTP(t *testing.T) {
	b := newBroker(t, 100*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/events", nil).WithContext(ctx)
	w := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		b.ServeHTTP(w, req)
		close(done)
	}()

	deadline := time.Now().Add(time.Second)
	for b.ClientCount() != 1 {
		if time.Now().After(deadline) {
			t.Fatal("handler did not subscribe")
		}
		time.Sleep(5 * time.Millisecond)
	}

	b.NoteChanged(noteservice.ChangeSaved, "x")
	time.Sleep(50 * time.Millisecond)
	cancel()
	<-done

	if ct := w.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q", ct)
	}
	if body := w.Body.String(); !strings.Contains(body, "event: note.saved") {
		t.Errorf("body missing event: %q", body)
	}
	if n := b.ClientCount(); n != 0 {
		t.Errorf("ClientCount after disconnect = %d, want 0", n)
	}
}

func TestSlowClientDoesNotBlock(t *testing.T) {
	b := newBroker(t, time.Second)
	b.Subscribe()
	for range clientBuffer + 10 {
		b.Publish(Event{Type: "test", Data: map[string]int{"n": 1}})
	}
	if n := b.ClientCount(); n != 1 {
		t.Fatalf("ClientCount = %d, want 1", n)
	}
}

func TestClose(t *testing.T) {
	b := NewBroker(100*time.Millisecond, testutil.Logger())
	ch := b.Subscribe()
	b.Close()

	select {
	case _, ok := <-ch:
		if ok {
			t.Fatal("subscriber channel still open")
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for channel close")
	}
	if n := b.ClientCount(); n != 0 {
		t.Fatalf("ClientCount after close = %d, want 0", n)
	}
	b.Publish(Event{Type: "late"})
	b.NoteChanged(noteservice.ChangeSaved, "late")
	b.Close()
}
