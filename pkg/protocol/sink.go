package protocol

import "github.com/grendel/clipseal/pkg/crypto"

// Sink receives the three user-facing events. Implementations render; the
// core never does.
type Sink interface {
	// Locked reports a new binding with its short fingerprint
	Locked(short string, chain crypto.ChainTag)

	// Blocked reports a refused action or a tamper warning
	Blocked(reason Reason, message string)

	// Invalidated reports a previously trusted target that was altered
	Invalidated(targetID string, message string)
}

// NopSink discards all events
type NopSink struct{}

func (NopSink) Locked(string, crypto.ChainTag) {}
func (NopSink) Blocked(Reason, string)         {}
func (NopSink) Invalidated(string, string)     {}

// MultiSink fans events out to every sink in order
type MultiSink []Sink

func (m MultiSink) Locked(short string, chain crypto.ChainTag) {
	for _, s := range m {
		s.Locked(short, chain)
	}
}

func (m MultiSink) Blocked(reason Reason, message string) {
	for _, s := range m {
		s.Blocked(reason, message)
	}
}

func (m MultiSink) Invalidated(targetID, message string) {
	for _, s := range m {
		s.Invalidated(targetID, message)
	}
}
