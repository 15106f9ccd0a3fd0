package ownership

import (
	"errors"

	"github.com/zeusync/courtsync/internal/core/protocol"
)

var (
	ErrTransferBlocked = errors.New("ownership transfer blocked")
	ErrNotServer       = errors.New("only the host grants ownership")
	ErrNotOwner        = errors.New("local peer does not own the object")
)

// State of the per-object ownership machine as seen by the local peer.
type State uint8

const (
	Idle State = iota
	TransferRequested
	Interacting
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case TransferRequested:
		return "transfer_requested"
	case Interacting:
		return "interacting"
	default:
		return "unknown"
	}
}

// Reason tells the coordinator why a transfer is requested. Grab requests
// bypass the guards that the grab itself lifts.
type Reason uint8

const (
	ReasonCollision Reason = iota
	ReasonGrab
)

func (r Reason) String() string {
	if r == ReasonGrab {
		return "grab"
	}
	return "collision"
}

// Transition is reported to observers on every state change.
type Transition struct {
	From  State
	To    State
	Owner protocol.PeerID
}
