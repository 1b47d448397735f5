package broadcast

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/quizlive/go/internal/live/events"
)

// NATSConfig holds configuration for the cross-instance bus
type NATSConfig struct {
	URL           string
	SubjectPrefix string // e.g. "quiz.rooms"
	InstanceID    string
	MaxReconnects int
	ReconnectWait time.Duration
}

// DefaultNATSConfig returns default bus configuration
func DefaultNATSConfig() NATSConfig {
	return NATSConfig{
		URL:           nats.DefaultURL,
		SubjectPrefix: "quiz.rooms",
		MaxReconnects: -1, // Infinite
		ReconnectWait: 2 * time.Second,
	}
}

// BusConn is the subset of *nats.Conn used by the bus.
type BusConn interface {
	Publish(subject string, data []byte) error
	Subscribe(subject string, cb nats.MsgHandler) (*nats.Subscription, error)
	Drain() error
}

// busMessage is an encoded event travelling between instances.
type busMessage struct {
	Origin     string          `json:"origin"`
	PIN        string          `json:"pin,omitempty"`
	Recipients []string        `json:"recipients"`
	Event      json.RawMessage `json:"event"`
}

// Forwarded is a client event relayed to the instance that owns its room.
// Disconnect carries no message and drops the connection from every room there.
type Forwarded struct {
	Origin       string          `json:"origin"`
	ConnectionID string          `json:"connection_id"`
	Message      json.RawMessage `json:"message,omitempty"`
	Disconnect   bool            `json:"disconnect,omitempty"`
}

// ForwardHandler processes events forwarded from other instances.
type ForwardHandler func(ctx context.Context, fwd Forwarded)

// NATSBus delivers locally through a Hub and reaches connections attached to
// other instances over core NATS. Delivery is fire-and-forget, like the hub.
//
// Subjects:
//
//	<prefix>.<pin>             room broadcasts
//	<prefix>.direct            single connection sends
//	<prefix>.inbox.<instance>  client events forwarded to the room owner
type NATSBus struct {
	hub    *Hub
	conn   BusConn
	config NATSConfig

	mu        sync.Mutex
	subs      []*nats.Subscription
	onForward ForwardHandler
}

var _ Broadcaster = (*NATSBus)(nil)

// NewNATSBus connects to NATS and returns a bus bound to hub.
func NewNATSBus(hub *Hub, config NATSConfig) (*NATSBus, error) {
	config.InstanceID = instanceID(config)

	opts := []nats.Option{
		nats.Name("quizlive-" + config.InstanceID),
		nats.MaxReconnects(config.MaxReconnects),
		nats.ReconnectWait(config.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Error().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			log.Error().Err(err).Msg("NATS error")
		}),
	}

	nc, err := nats.Connect(config.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	return NewNATSBusWithConn(hub, nc, config), nil
}

// NewNATSBusWithConn returns a bus on an existing connection.
func NewNATSBusWithConn(hub *Hub, conn BusConn, config NATSConfig) *NATSBus {
	config.InstanceID = instanceID(config)
	if config.SubjectPrefix == "" {
		config.SubjectPrefix = DefaultNATSConfig().SubjectPrefix
	}
	return &NATSBus{hub: hub, conn: conn, config: config}
}

func instanceID(config NATSConfig) string {
	if config.InstanceID != "" {
		return config.InstanceID
	}
	return uuid.New().String()[:8]
}

// InstanceID identifies this process on the bus.
func (b *NATSBus) InstanceID() string {
	return b.config.InstanceID
}

func (b *NATSBus) roomSubject(pin string) string {
	return b.config.SubjectPrefix + "." + pin
}

func (b *NATSBus) directSubject() string {
	return b.config.SubjectPrefix + ".direct"
}

func (b *NATSBus) inboxSubject(instance string) string {
	return b.config.SubjectPrefix + ".inbox." + instance
}

// OnForward sets the handler for events forwarded to this instance. It must be
// called before Start.
func (b *NATSBus) OnForward(fn ForwardHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onForward = fn
}

// Start subscribes to events published by other instances. Room broadcasts and
// direct sends share one subscription so they arrive in publish order.
func (b *NATSBus) Start(ctx context.Context) error {
	roomSub, err := b.conn.Subscribe(b.config.SubjectPrefix+".*", func(msg *nats.Msg) {
		b.handleMessage(msg.Data)
	})
	if err != nil {
		return fmt.Errorf("subscribe to room events: %w", err)
	}
	inboxSub, err := b.conn.Subscribe(b.inboxSubject(b.config.InstanceID), func(msg *nats.Msg) {
		b.handleForward(msg.Data)
	})
	if err != nil {
		return fmt.Errorf("subscribe to forwarded events: %w", err)
	}

	b.mu.Lock()
	b.subs = append(b.subs, roomSub, inboxSub)
	b.mu.Unlock()

	log.Info().
		Str("subject", b.config.SubjectPrefix+".*").
		Str("inbox", b.inboxSubject(b.config.InstanceID)).
		Str("instance", b.config.InstanceID).
		Msg("room event bus started")
	return nil
}

// Stop drains the connection so in-flight messages are delivered.
func (b *NATSBus) Stop() error {
	log.Info().Str("instance", b.config.InstanceID).Msg("stopping room event bus")
	return b.conn.Drain()
}

// Broadcast delivers to local recipients and publishes for remote ones.
func (b *NATSBus) Broadcast(ctx context.Context, pin string, recipients []string, event *events.Outbound) error {
	data, err := event.Encode()
	if err != nil {
		return fmt.Errorf("encode %s event: %w", event.Event, err)
	}

	report := b.hub.Deliver(recipients, data)
	if report.Delivered+report.Missed == len(recipients) {
		// every recipient is connected here
		return nil
	}
	return b.publish(b.roomSubject(pin), busMessage{
		Origin:     b.config.InstanceID,
		PIN:        pin,
		Recipients: recipients,
		Event:      data,
	})
}

// Send delivers to a local connection, or publishes for the instance holding it.
func (b *NATSBus) Send(ctx context.Context, connectionID string, event *events.Outbound) error {
	if b.hub.Has(connectionID) {
		return b.hub.Send(ctx, connectionID, event)
	}

	data, err := event.Encode()
	if err != nil {
		return fmt.Errorf("encode %s event: %w", event.Event, err)
	}
	return b.publish(b.directSubject(), busMessage{
		Origin:     b.config.InstanceID,
		PIN:        event.PIN,
		Recipients: []string{connectionID},
		Event:      data,
	})
}

// Forward relays a client event to the instance that owns its room.
func (b *NATSBus) Forward(ctx context.Context, instance string, fwd Forwarded) error {
	fwd.Origin = b.config.InstanceID
	data, err := json.Marshal(fwd)
	if err != nil {
		return fmt.Errorf("marshal forwarded event: %w", err)
	}
	if err := b.conn.Publish(b.inboxSubject(instance), data); err != nil {
		return fmt.Errorf("forward to %s: %w", instance, err)
	}
	return nil
}

func (b *NATSBus) publish(subject string, msg busMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal bus message: %w", err)
	}
	if err := b.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("publish room event: %w", err)
	}
	return nil
}

func (b *NATSBus) handleMessage(data []byte) {
	var msg busMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		log.Error().Err(err).Msg("failed to decode room event from bus")
		return
	}
	if msg.Origin == b.config.InstanceID {
		return
	}

	report := b.hub.Deliver(msg.Recipients, msg.Event)

	log.Debug().
		Str("pin", msg.PIN).
		Str("origin", msg.Origin).
		Int("delivered", report.Delivered).
		Msg("remote event delivered")
}

func (b *NATSBus) handleForward(data []byte) {
	var fwd Forwarded
	if err := json.Unmarshal(data, &fwd); err != nil {
		log.Error().Err(err).Msg("failed to decode forwarded event")
		return
	}

	b.mu.Lock()
	fn := b.onForward
	b.mu.Unlock()

	if fn == nil {
		log.Warn().Str("origin", fwd.Origin).Msg("no handler for forwarded event")
		return
	}
	fn(context.Background(), fwd)
}
