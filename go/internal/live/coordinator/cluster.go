package coordinator

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/quizlive/go/internal/live/broadcast"
	"github.com/mcdev12/quizlive/go/internal/live/events"
	"github.com/mcdev12/quizlive/go/internal/live/room"
)

// Ownership records which instance owns each room.
type Ownership interface {
	// Claim makes instance the owner of pin unless another instance already
	// is, and returns the owner.
	Claim(ctx context.Context, pin, instance string) (string, error)
	// Owner returns the owner of pin, or "" when the room is unclaimed.
	Owner(ctx context.Context, pin string) (string, error)
}

// Forwarder relays client events to the instance that owns their room.
type Forwarder interface {
	InstanceID() string
	Forward(ctx context.Context, instance string, fwd broadcast.Forwarded) error
}

// EnableCluster makes the coordinator route events for rooms owned by other
// instances to their owner. A room belongs to the instance whose client
// created it; every later event for it is handled there.
func (c *Coordinator) EnableCluster(owners Ownership, forwarder Forwarder) {
	c.remoteMu.Lock()
	defer c.remoteMu.Unlock()
	c.owners = owners
	c.forwarder = forwarder
	c.remote = make(map[string]map[string]string)
}

// HandleForwarded runs an event that another instance received for a room
// owned here.
func (c *Coordinator) HandleForwarded(ctx context.Context, fwd broadcast.Forwarded) {
	if fwd.Disconnect {
		c.leaveAll(ctx, fwd.ConnectionID)
		return
	}

	var msg events.Inbound
	if err := json.Unmarshal(fwd.Message, &msg); err != nil {
		log.Error().Err(err).Str("origin", fwd.Origin).Msg("dropping malformed forwarded event")
		return
	}
	log.Debug().
		Str("origin", fwd.Origin).
		Str("connection_id", fwd.ConnectionID).
		Str("event", string(msg.Event)).
		Msg("handling forwarded event")
	c.dispatch(ctx, fwd.ConnectionID, msg)
}

// forwardIfRemote sends msg to the owner of its room when that is another
// instance. It reports whether msg was taken care of.
func (c *Coordinator) forwardIfRemote(ctx context.Context, connectionID string, msg events.Inbound) bool {
	owners, forwarder := c.cluster()
	if owners == nil {
		return false
	}
	pin := events.PeekPIN(msg.Data)
	if !room.ValidPIN(pin) {
		return false
	}
	if _, err := c.registry.Find(pin); err == nil {
		return false
	}

	self := forwarder.InstanceID()
	var owner string
	var err error
	if msg.Event == events.JoinGame {
		owner, err = owners.Claim(ctx, pin, self)
	} else {
		owner, err = owners.Owner(ctx, pin)
	}
	if err != nil {
		// without the owner record the room is served locally
		log.Warn().Err(err).Str("pin", pin).Msg("room owner lookup failed")
		return false
	}
	if owner == "" || owner == self {
		return false
	}

	raw, err := json.Marshal(msg)
	if err != nil {
		log.Error().Err(err).Msg("failed to encode forwarded event")
		c.replyError(ctx, connectionID, msg.Event, CodeInternal, "internal error")
		return true
	}
	if err := forwarder.Forward(ctx, owner, broadcast.Forwarded{ConnectionID: connectionID, Message: raw}); err != nil {
		log.Error().Err(err).Str("pin", pin).Str("owner", owner).Msg("failed to forward event")
		c.replyError(ctx, connectionID, msg.Event, CodeInternal, "internal error")
		return true
	}

	switch msg.Event {
	case events.JoinGame:
		c.trackRemote(connectionID, pin, owner)
	case events.LeaveGame:
		c.untrackRemote(connectionID, pin)
	}
	return true
}

func (c *Coordinator) cluster() (Ownership, Forwarder) {
	c.remoteMu.Lock()
	defer c.remoteMu.Unlock()
	return c.owners, c.forwarder
}

func (c *Coordinator) trackRemote(connectionID, pin, owner string) {
	c.remoteMu.Lock()
	defer c.remoteMu.Unlock()
	rooms, ok := c.remote[connectionID]
	if !ok {
		rooms = make(map[string]string)
		c.remote[connectionID] = rooms
	}
	rooms[pin] = owner
}

func (c *Coordinator) untrackRemote(connectionID, pin string) {
	c.remoteMu.Lock()
	defer c.remoteMu.Unlock()
	delete(c.remote[connectionID], pin)
}

// forwardDisconnect tells every owner of a room connectionID joined through
// this instance that it is gone.
func (c *Coordinator) forwardDisconnect(ctx context.Context, connectionID string) {
	c.remoteMu.Lock()
	forwarder := c.forwarder
	owners := make(map[string]struct{})
	for _, owner := range c.remote[connectionID] {
		owners[owner] = struct{}{}
	}
	delete(c.remote, connectionID)
	c.remoteMu.Unlock()

	for owner := range owners {
		if err := forwarder.Forward(ctx, owner, broadcast.Forwarded{ConnectionID: connectionID, Disconnect: true}); err != nil {
			log.Warn().Err(err).Str("connection_id", connectionID).Str("owner", owner).Msg("failed to forward disconnect")
		}
	}
}
