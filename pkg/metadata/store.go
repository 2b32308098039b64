package metadata

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/lightningnetwork/lnd/clock"

	"github.com/grendel/clipseal/pkg/protocol"
)

// DefaultTTL bounds how long a binding stays live
const DefaultTTL = 60 * time.Second

// Options tunes the store.
type Options struct {
	// TTL is the binding lifetime. Default: 60s.
	TTL time.Duration
	// Clock drives staleness checks. Default: wall clock.
	Clock clock.Clock
	// Channel is the side channel. Nil means memory only.
	Channel Channel
	// Logger overrides the default slog logger.
	Logger *slog.Logger
}

func (o *Options) defaults() {
	if o.TTL <= 0 {
		o.TTL = DefaultTTL
	}
	if o.Clock == nil {
		o.Clock = clock.NewDefaultClock()
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

// Store holds the single live binding. The last Bind wins.
type Store struct {
	opts Options

	mu  sync.Mutex
	mem *Binding
}

// New creates a Store
func New(opts Options) *Store {
	opts.defaults()
	return &Store{opts: opts}
}

// TTL returns the binding lifetime
func (s *Store) TTL() time.Duration { return s.opts.TTL }

// Now returns the store clock's current time
func (s *Store) Now() time.Time { return s.opts.Clock.Now() }

// Bind records b in memory and writes it to the side channel. The memory
// copy always succeeds; a channel failure is returned wrapped in
// ErrClipboardAccessDenied and leaves the store in memory-only mode for this
// binding.
func (s *Store) Bind(ctx context.Context, b Binding) error {
	if b.BoundAt.IsZero() {
		b.BoundAt = s.opts.Clock.Now()
	}

	s.mu.Lock()
	s.mem = &b
	s.mu.Unlock()

	if s.opts.Channel == nil {
		return nil
	}

	data, err := Encode(b)
	if err != nil {
		return fmt.Errorf("encode binding: %w", err)
	}
	if err := s.opts.Channel.WriteBinding(ctx, b.Canonical, data); err != nil {
		s.opts.Logger.Warn("metadata: side channel write failed, memory only",
			"chain", b.Chain, "error", err)
		return fmt.Errorf("%w: %v", protocol.ErrClipboardAccessDenied, err)
	}
	return nil
}

// Live returns the binding a paste must be checked against. The event
// payload is preferred, then the side channel, then memory. Expired
// bindings are ignored wherever they come from.
func (s *Store) Live(ctx context.Context, eventPayload []byte) (Binding, error) {
	now := s.opts.Clock.Now()
	log := s.opts.Logger

	raw := eventPayload
	if len(raw) == 0 && s.opts.Channel != nil {
		data, err := s.opts.Channel.ReadBinding(ctx)
		switch {
		case err == nil:
			raw = data
		case errors.Is(err, ErrNoPayload):
		default:
			log.Debug("metadata: side channel read failed", "error", err)
		}
	}

	var malformed error
	if len(raw) > 0 {
		b, err := Decode(raw)
		switch {
		case err != nil:
			log.Debug("metadata: payload rejected", "error", err)
			malformed = err
		case s.fresh(b, now):
			return b, nil
		}
	}

	s.mu.Lock()
	mem := s.mem
	s.mu.Unlock()

	if mem != nil && s.fresh(*mem, now) {
		return *mem, nil
	}
	if malformed != nil {
		return Binding{}, malformed
	}
	return Binding{}, protocol.ErrNoBinding
}

// Clear drops the live binding from memory and, when supported, from the
// side channel
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	s.mem = nil
	s.mu.Unlock()

	if c, ok := s.opts.Channel.(Clearer); ok {
		if err := c.ClearBinding(ctx); err != nil {
			return fmt.Errorf("%w: %v", protocol.ErrClipboardAccessDenied, err)
		}
	}
	return nil
}

// Fresh reports whether b is still live at the store clock's current time
func (s *Store) Fresh(b Binding) bool {
	return s.fresh(b, s.opts.Clock.Now())
}

// fresh rejects bindings from the future as well as expired ones
func (s *Store) fresh(b Binding, now time.Time) bool {
	age := now.Sub(b.BoundAt)
	return age >= 0 && age < s.opts.TTL
}
