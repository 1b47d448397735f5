// Package bustest provides an in-memory NATS stand-in for tests that run
// several bus instances in one process.
package bustest

import (
	"strings"
	"sync"

	"github.com/nats-io/nats.go"
)

type subscription struct {
	pattern string
	cb      nats.MsgHandler
}

// Network delivers every publish synchronously to the matching subscriptions
// of all connections created from it.
type Network struct {
	mu        sync.Mutex
	subs      []subscription
	published int
}

// NewNetwork creates an empty network
func NewNetwork() *Network {
	return &Network{}
}

// Conn returns a new connection on the network.
func (n *Network) Conn() *Conn {
	return &Conn{network: n}
}

// Published returns how many messages have been published.
func (n *Network) Published() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.published
}

// Conn satisfies broadcast.BusConn.
type Conn struct {
	network *Network

	mu      sync.Mutex
	drained bool
}

// Publish hands data to every matching subscriber before returning.
func (c *Conn) Publish(subject string, data []byte) error {
	c.network.mu.Lock()
	c.network.published++
	var targets []nats.MsgHandler
	for _, sub := range c.network.subs {
		if Matches(sub.pattern, subject) {
			targets = append(targets, sub.cb)
		}
	}
	c.network.mu.Unlock()

	for _, cb := range targets {
		cb(&nats.Msg{Subject: subject, Data: data})
	}
	return nil
}

// Subscribe registers cb for subject, which may contain * and > wildcards.
func (c *Conn) Subscribe(subject string, cb nats.MsgHandler) (*nats.Subscription, error) {
	c.network.mu.Lock()
	defer c.network.mu.Unlock()
	c.network.subs = append(c.network.subs, subscription{pattern: subject, cb: cb})
	return nil, nil
}

// Drain marks the connection drained.
func (c *Conn) Drain() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.drained = true
	return nil
}

// Drained reports whether Drain was called.
func (c *Conn) Drained() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.drained
}

// Matches applies NATS subject wildcard rules.
func Matches(pattern, subject string) bool {
	p := strings.Split(pattern, ".")
	s := strings.Split(subject, ".")
	for i, tok := range p {
		if tok == ">" {
			return len(s) > i
		}
		if i >= len(s) {
			return false
		}
		if tok != "*" && tok != s[i] {
			return false
		}
	}
	return len(p) == len(s)
}
