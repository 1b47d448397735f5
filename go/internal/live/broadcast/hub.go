package broadcast

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/quizlive/go/internal/live/events"
)

// ErrTransportUnavailable means the target connection is gone or cannot keep up.
// It is a missed delivery, never retried.
var ErrTransportUnavailable = errors.New("transport unavailable")

// Sink is a live connection that can receive encoded events.
type Sink interface {
	ID() string
	// Enqueue queues data without blocking. It returns false if the sink cannot accept it.
	Enqueue(data []byte) bool
}

// Broadcaster delivers events to room members and to single connections.
type Broadcaster interface {
	Broadcast(ctx context.Context, pin string, recipients []string, event *events.Outbound) error
	Send(ctx context.Context, connectionID string, event *events.Outbound) error
}

// Report counts the outcome of one fan-out.
type Report struct {
	Delivered int
	Missed    int
}

// Hub fans events out to the sinks connected to this process.
type Hub struct {
	mu    sync.RWMutex
	sinks map[string]Sink
}

// NewHub creates an empty hub
func NewHub() *Hub {
	return &Hub{sinks: make(map[string]Sink)}
}

var _ Broadcaster = (*Hub)(nil)

// Register makes sink reachable by its id.
func (h *Hub) Register(sink Sink) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sinks[sink.ID()] = sink

	log.Debug().Str("connection_id", sink.ID()).Int("total_sinks", len(h.sinks)).Msg("sink registered")
}

// Unregister removes the sink with id.
func (h *Hub) Unregister(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.sinks, id)
}

// Has reports whether the connection is attached to this process.
func (h *Hub) Has(id string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.sinks[id]
	return ok
}

// Len returns the number of registered sinks.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sinks)
}

// Deliver enqueues data to every recipient connected here. Recipients that are
// not connected to this process are skipped without counting as missed.
func (h *Hub) Deliver(recipients []string, data []byte) Report {
	h.mu.RLock()
	targets := make([]Sink, 0, len(recipients))
	for _, id := range recipients {
		if sink, ok := h.sinks[id]; ok {
			targets = append(targets, sink)
		}
	}
	h.mu.RUnlock()

	var report Report
	for _, sink := range targets {
		if sink.Enqueue(data) {
			report.Delivered++
			continue
		}
		report.Missed++
		log.Debug().Str("connection_id", sink.ID()).Msg("missed delivery, transport unavailable")
	}
	return report
}

// Broadcast encodes event once and delivers it to recipients.
func (h *Hub) Broadcast(ctx context.Context, pin string, recipients []string, event *events.Outbound) error {
	data, err := event.Encode()
	if err != nil {
		return fmt.Errorf("encode %s event: %w", event.Event, err)
	}

	report := h.Deliver(recipients, data)

	log.Debug().
		Str("event", string(event.Event)).
		Str("pin", pin).
		Int("recipients", len(recipients)).
		Int("delivered", report.Delivered).
		Int("missed", report.Missed).
		Msg("event broadcasted")
	return nil
}

// Send delivers event to a single connection.
func (h *Hub) Send(ctx context.Context, connectionID string, event *events.Outbound) error {
	data, err := event.Encode()
	if err != nil {
		return fmt.Errorf("encode %s event: %w", event.Event, err)
	}

	h.mu.RLock()
	sink, ok := h.sinks[connectionID]
	h.mu.RUnlock()

	if !ok || !sink.Enqueue(data) {
		return ErrTransportUnavailable
	}
	return nil
}
