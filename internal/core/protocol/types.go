package protocol

import (
	"fmt"
	"strconv"
)

// PeerID identifies a participant of a session. The host is always ServerPeerID.
type PeerID uint64

// ServerPeerID is the id of the hosting peer, the single server authority.
const ServerPeerID PeerID = 0

func (p PeerID) String() string {
	return strconv.FormatUint(uint64(p), 10)
}

// ObjectID names a networked object, e.g. "ball" or "score".
type ObjectID string

// MethodID is the wire id of an RPC method, see MethodHash.
type MethodID uint64

// TargetKind selects the recipients of an envelope.
type TargetKind uint8

const (
	// TargetServer delivers to the host only.
	TargetServer TargetKind = iota
	// TargetEveryone delivers to every peer, the sender included.
	TargetEveryone
	// TargetOthers delivers to every peer except the sender.
	TargetOthers
	// TargetPeer delivers to a single peer.
	TargetPeer
)

func (k TargetKind) String() string {
	switch k {
	case TargetServer:
		return "server"
	case TargetEveryone:
		return "everyone"
	case TargetOthers:
		return "others"
	case TargetPeer:
		return "peer"
	default:
		return "unknown"
	}
}

// Target is the routing field carried by every envelope.
type Target struct {
	Kind TargetKind `json:"kind"`
	Peer PeerID     `json:"peer,omitempty"`
}

func Server() Target        { return Target{Kind: TargetServer} }
func Everyone() Target      { return Target{Kind: TargetEveryone} }
func Others() Target        { return Target{Kind: TargetOthers} }
func Peer(id PeerID) Target { return Target{Kind: TargetPeer, Peer: id} }

// Includes reports whether peer is a recipient of a message sent by sender.
func (t Target) Includes(peer, sender PeerID) bool {
	switch t.Kind {
	case TargetServer:
		return peer == ServerPeerID
	case TargetEveryone:
		return true
	case TargetOthers:
		return peer != sender
	case TargetPeer:
		return peer == t.Peer
	default:
		return false
	}
}

// Remote reports whether anyone other than sender receives the message.
func (t Target) Remote(sender PeerID) bool {
	switch t.Kind {
	case TargetServer:
		return sender != ServerPeerID
	case TargetPeer:
		return t.Peer != sender
	default:
		return true
	}
}

func (t Target) String() string {
	if t.Kind == TargetPeer {
		return fmt.Sprintf("peer(%d)", t.Peer)
	}
	return t.Kind.String()
}

// MessageKind defines what an envelope carries.
type MessageKind uint8

const (
	// KindRPC invokes a registered method on an object.
	KindRPC MessageKind = iota + 1
	// KindValue replicates a new value of a replicated field.
	KindValue
	// KindWriteRequest asks the writer of a replicated field to apply a value.
	KindWriteRequest
	// KindHello is sent by the host to assign the joining peer its id.
	KindHello
	KindPing
	KindPong
)

func (k MessageKind) String() string {
	switch k {
	case KindRPC:
		return "rpc"
	case KindValue:
		return "value"
	case KindWriteRequest:
		return "write_request"
	case KindHello:
		return "hello"
	case KindPing:
		return "ping"
	case KindPong:
		return "pong"
	default:
		return "unknown"
	}
}
