// Package sse streams graph change notifications to HTTP clients as
// Server-Sent Events.
package sse

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/starford/neno/internal/noteservice"
)

// Event types.
const (
	TypeNoteSaved    = "note.saved"
	TypeNoteRemoved  = "note.removed"
	TypeGraphChanged = "graph.changed"
	TypeGraphEvicted = "graph.evicted"
)

const (
	clientBuffer = 64
	keepAlive    = 25 * time.Second
)

// Event is one message sent to every client.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// NoteData is the payload of note events.
type NoteData struct {
	Slug string `json:"slug"`
}

// EvictionData is the payload of graph.evicted.
type EvictionData struct {
	Objects []string `json:"objects"`
}

type noteChange struct {
	kind string
	slug string
}

// Broker fans events out to subscribers. One goroutine owns the client set
// and the throttle state; the public methods talk to it over channels.
type Broker struct {
	graphThrottle time.Duration
	logger        *slog.Logger

	subscribeCh   chan chan []byte
	unsubscribeCh chan chan []byte
	publishCh     chan Event
	changeCh      chan noteChange
	countCh       chan chan int

	stopCh  chan struct{}
	stopped chan struct{}
	closed  atomic.Bool
}

// NewBroker starts a broker. graph.changed is sent at most once per
// graphThrottle, however many notes change.
func NewBroker(graphThrottle time.Duration, logger *slog.Logger) *Broker {
	if graphThrottle <= 0 {
		graphThrottle = 2 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	b := &Broker{
		graphThrottle: graphThrottle,
		logger:        logger,
		subscribeCh:   make(chan chan []byte),
		unsubscribeCh: make(chan chan []byte),
		publishCh:     make(chan Event, 256),
		changeCh:      make(chan noteChange, 256),
		countCh:       make(chan chan int),
		stopCh:        make(chan struct{}),
		stopped:       make(chan struct{}),
	}
	go b.loop()
	return b
}

// encode renders e in the text/event-stream wire format.
func encode(e Event) ([]byte, error) {
	payload, err := json.Marshal(e.Data)
	if err != nil {
		return nil, err
	}
	return []byte(fmt.Sprintf("event: %s\ndata: %s\n\n", e.Type, payload)), nil
}

func (b *Broker) loop() {
	defer close(b.stopped)

	clients := make(map[chan []byte]struct{})
	var lastGraph time.Time

	send := func(e Event) {
		msg, err := encode(e)
		if err != nil {
			b.logger.Warn("sse: encode event", slog.String("type", e.Type), slog.String("error", err.Error()))
			return
		}
		for ch := range clients {
			select {
			case ch <- msg:
			default:
				// Slow client; the event is dropped for it.
			}
		}
	}

	for {
		select {
		case <-b.stopCh:
			for ch := range clients {
				close(ch)
			}
			return

		case ch := <-b.subscribeCh:
			clients[ch] = struct{}{}

		case ch := <-b.unsubscribeCh:
			if _, ok := clients[ch]; ok {
				delete(clients, ch)
				close(ch)
			}

		case e := <-b.publishCh:
			send(e)

		case c := <-b.changeCh:
			send(Event{Type: c.kind, Data: NoteData{Slug: c.slug}})
			if now := time.Now(); now.Sub(lastGraph) >= b.graphThrottle {
				lastGraph = now
				send(Event{Type: TypeGraphChanged, Data: struct{}{}})
			}

		case resp := <-b.countCh:
			resp <- len(clients)
		}
	}
}

// Close stops the broker and closes every subscriber channel.
func (b *Broker) Close() {
	if b.closed.CompareAndSwap(false, true) {
		close(b.stopCh)
	}
	<-b.stopped
}

// Subscribe registers a client. The channel is closed on Unsubscribe or Close.
func (b *Broker) Subscribe() chan []byte {
	ch := make(chan []byte, clientBuffer)
	if b.closed.Load() {
		close(ch)
		return ch
	}
	select {
	case b.subscribeCh <- ch:
	case <-b.stopped:
		close(ch)
	}
	return ch
}

// Unsubscribe removes a client.
func (b *Broker) Unsubscribe(ch chan []byte) {
	if b.closed.Load() {
		return
	}
	select {
	case b.unsubscribeCh <- ch:
	case <-b.stopped:
	}
}

// ClientCount returns the number of subscribers.
func (b *Broker) ClientCount() int {
	if b.closed.Load() {
		return 0
	}
	resp := make(chan int, 1)
	select {
	case b.countCh <- resp:
	case <-b.stopped:
		return 0
	}
	select {
	case n := <-resp:
		return n
	case <-b.stopped:
		return 0
	}
}

// Publish sends e to every subscriber.
func (b *Broker) Publish(e Event) {
	if b.closed.Load() {
		return
	}
	select {
	case b.publishCh <- e:
	case <-b.stopped:
	}
}

// NoteChanged publishes a note event for a noteservice change kind. Other
// kinds are ignored.
func (b *Broker) NoteChanged(kind, slug string) {
	var typ string
	switch kind {
	case noteservice.ChangeSaved:
		typ = TypeNoteSaved
	case noteservice.ChangeRemoved:
		typ = TypeNoteRemoved
	default:
		return
	}
	if b.closed.Load() {
		return
	}
	select {
	case b.changeCh <- noteChange{kind: typ, slug: slug}:
	case <-b.stopped:
	}
}

// GraphEvicted publishes that the graph was reloaded after external edits
// to objects.
func (b *Broker) GraphEvicted(objects []string) {
	b.Publish(Event{Type: TypeGraphEvicted, Data: EvictionData{Objects: objects}})
}

// ServeHTTP streams events until the client disconnects or the broker closes.
func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	ticker := time.NewTicker(keepAlive)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			_, _ = w.Write([]byte(": ping\n\n"))
			flusher.Flush()
		case msg, ok := <-ch:
			if !ok {
				return
			}
			_, _ = w.Write(msg)
			flusher.Flush()
		}
	}
}
