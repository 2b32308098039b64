package ui

import (
	"io"
	"sync"

	"github.com/grendel/clipseal/pkg/crypto"
	"github.com/grendel/clipseal/pkg/protocol"
)

// ConsoleSink renders sink events as colored terminal lines
type ConsoleSink struct {
	mu sync.Mutex
	w  io.Writer
	cs *ColorScheme
}

// NewConsoleSink creates a ConsoleSink. A nil scheme uses the default.
func NewConsoleSink(w io.Writer, cs *ColorScheme) *ConsoleSink {
	if cs == nil {
		cs = DefaultColorScheme()
	}
	return &ConsoleSink{w: w, cs: cs}
}

func (s *ConsoleSink) Locked(short string, chain crypto.ChainTag) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cs.Success.Fprint(s.w, "LOCKED  ")
	s.cs.Chain.Fprintf(s.w, "%-11s ", chain)
	s.cs.Normal.Fprint(s.w, "fingerprint ")
	s.cs.Fingerprint.Fprintln(s.w, short)
}

func (s *ConsoleSink) Blocked(reason protocol.Reason, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	label := s.cs.Error
	if reason == protocol.ReasonSeedPhrase {
		label = s.cs.Warning
	}
	label.Fprint(s.w, "BLOCKED ")
	s.cs.Param.Fprintf(s.w, "%-11s ", reason)
	s.cs.Normal.Fprintln(s.w, message)
}

func (s *ConsoleSink) Invalidated(targetID, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cs.Error.Fprint(s.w, "INVALID ")
	s.cs.Param.Fprintf(s.w, "%-11s ", targetID)
	s.cs.Normal.Fprintln(s.w, message)
}
