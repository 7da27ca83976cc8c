// Package mesh provides the broadcast channel the node gossips over. The
// delivery contract is deliberately weak: unordered, possibly duplicated,
// best effort. Everything above this package must tolerate that.
package mesh

import "errors"

var (
	// ErrTransportUnavailable marks a publish that could not be delivered,
	// e.g. no broker connection. This is an expected condition: publishing is
	// fire-and-forget and the next periodic event re-attempts naturally, so
	// callers log it and move on.
	ErrTransportUnavailable = errors.New("mesh: transport unavailable")

	// ErrDialUnsupported is returned by transports that have no notion of
	// per-peer connections.
	ErrDialUnsupported = errors.New("mesh: transport does not dial peers directly")
)

// Handler receives raw payloads delivered to a subscribed topic. It is called
// from the transport's delivery goroutine and must not block.
type Handler func(topic string, payload []byte)

// Transport is the broadcast channel contract. Implementations provide
// best-effort, unordered delivery of byte payloads to a named topic with no
// exactly-once guarantee.
type Transport interface {
	Subscribe(topic string, h Handler) error
	Publish(topic string, payload []byte) error
	// Peers lists currently known peer identifiers, where the transport can
	// tell. Broker-mediated transports return nil.
	Peers() []string
	// Dial asks the transport to establish a connection to the address.
	// Best effort; ErrDialUnsupported where connections are broker-mediated.
	Dial(address string) error
	// LocalAddresses returns addresses other peers can use to reach this
	// node's mesh, advertised in heartbeats.
	LocalAddresses() []string
	Close()
}
