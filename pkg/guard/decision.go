package guard

import (
	"github.com/grendel/clipseal/pkg/crypto"
	"github.com/grendel/clipseal/pkg/protocol"
)

// Action is the outcome of a copy or paste handler
type Action uint8

const (
	// Passthrough lets the native action proceed untouched
	Passthrough Action = iota
	// Allow replaces the native action with the canonical content
	Allow
	// Block refuses the action
	Block
)

var actionNames = [...]string{
	Passthrough: "passthrough",
	Allow:       "allow",
	Block:       "block",
}

func (a Action) String() string {
	if int(a) < len(actionNames) {
		return actionNames[a]
	}
	return "unknown"
}

func (a Action) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// Decision is what a handler did with an event
type Decision struct {
	Action      Action          `json:"action"`
	Reason      protocol.Reason `json:"reason,omitempty"`
	Message     string          `json:"message,omitempty"`
	Content     string          `json:"content,omitempty"`
	Chain       crypto.ChainTag `json:"-"`
	Fingerprint string          `json:"fingerprint,omitempty"`

	// Degraded is set when the binding could not reach the side channel
	Degraded bool  `json:"degraded,omitempty"`
	Err      error `json:"-"`
}

func passthrough() Decision {
	return Decision{Action: Passthrough, Reason: protocol.ReasonNotAnAddress}
}

func blocked(err error) Decision {
	reason := protocol.ReasonFor(err)
	if !reason.Blocks() {
		reason = protocol.ReasonIntegrityCheckFailed
	}
	return Decision{
		Action:  Block,
		Reason:  reason,
		Message: reason.Message(),
		Err:     err,
	}
}
