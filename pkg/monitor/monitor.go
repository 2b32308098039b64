// Package monitor polls the clipboard for addresses that were not copied
// through a protected path and watches editable targets after a verified
// paste, invalidating any target whose address is later rewritten.
package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lightningnetwork/lnd/ticker"

	"github.com/grendel/clipseal/pkg/common"
	"github.com/grendel/clipseal/pkg/crypto"
	"github.com/grendel/clipseal/pkg/metadata"
	"github.com/grendel/clipseal/pkg/metrics"
	"github.com/grendel/clipseal/pkg/protocol"
	"github.com/grendel/clipseal/pkg/verify"
)

// DefaultQuarantineText replaces a suspicious clipboard when quarantine is on
const DefaultQuarantineText = "[clipseal] clipboard quarantined: address was not copied from a protected source"

// TextSource reads the current clipboard text
type TextSource interface {
	ReadText(ctx context.Context) (string, error)
}

// TextWriter overwrites the clipboard text
type TextWriter interface {
	WriteText(ctx context.Context, text string) error
}

// PollFunc performs one clipboard check
type PollFunc func(ctx context.Context) error

// Options tunes the monitor.
type Options struct {
	// Source is the polled clipboard. Nil disables polling.
	Source TextSource
	// Writer receives the quarantine text. Required when Quarantine is set.
	Writer TextWriter
	// Quarantine overwrites the clipboard after a tamper warning.
	Quarantine bool
	// QuarantineText overrides DefaultQuarantineText.
	QuarantineText string
	// Logger overrides the default slog logger.
	Logger *slog.Logger
}

func (o *Options) defaults() {
	if o.QuarantineText == "" {
		o.QuarantineText = DefaultQuarantineText
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

type watched struct {
	target  protocol.Editable
	binding metadata.Binding
}

// Monitor is the integrity monitor. It is safe for concurrent use.
type Monitor struct {
	verifier *verify.Verifier
	store    *metadata.Store
	sink     protocol.Sink
	opts     Options

	mu       sync.Mutex
	lastText string
	targets  map[string]watched

	polls         atomic.Int64
	changes       atomic.Int64
	warnings      atomic.Int64
	invalidations atomic.Int64
	errors        atomic.Int64
}

// Stats are point-in-time counters.
type Stats struct {
	Polls         int64 `json:"polls"`
	Changes       int64 `json:"changes"`
	Warnings      int64 `json:"warnings"`
	Invalidations int64 `json:"invalidations"`
	Errors        int64 `json:"errors"`
	Watched       int   `json:"watched"`
}

// New creates a Monitor
func New(verifier *verify.Verifier, store *metadata.Store, sink protocol.Sink, opts Options) *Monitor {
	opts.defaults()
	if sink == nil {
		sink = protocol.NopSink{}
	}
	return &Monitor{
		verifier: verifier,
		store:    store,
		sink:     sink,
		opts:     opts,
		targets:  make(map[string]watched),
	}
}

// Stats returns the current counters.
func (m *Monitor) Stats() Stats {
	m.mu.Lock()
	n := len(m.targets)
	m.mu.Unlock()

	return Stats{
		Polls:         m.polls.Load(),
		Changes:       m.changes.Load(),
		Warnings:      m.warnings.Load(),
		Invalidations: m.invalidations.Load(),
		Errors:        m.errors.Load(),
		Watched:       n,
	}
}

// Poll reads the clipboard once. Unchanged text is not re-examined. A
// protected address that is unbound or does not match the live binding
// raises a tamper warning, as does a BIP-39 seed phrase.
func (m *Monitor) Poll(ctx context.Context) error {
	if m.opts.Source == nil {
		return nil
	}
	start := time.Now()
	defer func() { metrics.PollLatency.Observe(time.Since(start).Seconds()) }()

	m.polls.Add(1)
	m.pruneExpired()

	text, err := m.opts.Source.ReadText(ctx)
	if err != nil {
		m.errors.Add(1)
		return fmt.Errorf("%w: %v", protocol.ErrClipboardAccessDenied, err)
	}

	m.mu.Lock()
	if text == m.lastText {
		m.mu.Unlock()
		return nil
	}
	m.lastText = text
	m.mu.Unlock()
	m.changes.Add(1)

	if crypto.ValidateBIP39SeedPhrase(text) {
		m.warn(ctx, "poll", protocol.ReasonSeedPhrase, protocol.ReasonSeedPhrase.Message(), false)
		return nil
	}

	det := m.verifier.Detect(text)
	if det.IsNone() {
		return nil
	}
	detection := det.UnsafeFromSome()

	// Long opaque tokens are copied all the time; only chain addresses warn
	if detection.Chain == crypto.ChainGeneric {
		return nil
	}

	resolved, err := m.verifier.Resolve(detection)
	if err != nil {
		reason := protocol.ReasonFor(err)
		m.warn(ctx, "poll", reason, fmt.Sprintf("%s: %s", reason.Message(), describe(detection.Chain, detection.Raw)), true)
		return nil
	}

	binding, err := m.store.Live(ctx, nil)
	if err == nil {
		err = m.verifier.Match(resolved, binding)
	}
	if err != nil {
		reason := protocol.ReasonFor(err)
		m.warn(ctx, "poll", reason, fmt.Sprintf("%s: %s", reason.Message(), describe(detection.Chain, resolved.Canonical)), true)
		return nil
	}

	m.opts.Logger.Debug("monitor: clipboard holds bound address",
		"chain", detection.Chain, "fingerprint", resolved.Fingerprint.Short)
	return nil
}

func (m *Monitor) warn(ctx context.Context, source string, reason protocol.Reason, message string, quarantine bool) {
	m.warnings.Add(1)
	metrics.TamperWarnings.WithLabelValues(source, string(reason)).Inc()
	m.opts.Logger.Warn("monitor: tamper warning", "source", source, "reason", reason)
	m.sink.Blocked(reason, message)

	if !quarantine || !m.opts.Quarantine || m.opts.Writer == nil {
		return
	}
	if err := m.opts.Writer.WriteText(ctx, m.opts.QuarantineText); err != nil {
		m.errors.Add(1)
		m.opts.Logger.Warn("monitor: quarantine failed", "error", err)
		return
	}

	m.mu.Lock()
	m.lastText = m.opts.QuarantineText
	m.mu.Unlock()
}

// Run polls on every tick until ctx is cancelled. A nil poll uses m.Poll;
// callers that serialise handlers pass their own.
func (m *Monitor) Run(ctx context.Context, t ticker.Ticker, poll PollFunc) {
	if poll == nil {
		poll = m.Poll
	}
	log := m.opts.Logger

	t.Resume()
	defer t.Stop()

	log.Info("monitor: started")
	for {
		select {
		case <-ctx.Done():
			log.Info("monitor: stopped")
			return

		case <-t.Ticks():
			if err := poll(ctx); err != nil {
				log.Debug("monitor: poll failed", "error", err)
			}
		}
	}
}

// Watch places target under mutation watch against binding
func (m *Monitor) Watch(target protocol.Editable, binding metadata.Binding) {
	m.mu.Lock()
	m.targets[target.ID()] = watched{target: target, binding: binding}
	n := len(m.targets)
	m.mu.Unlock()

	metrics.WatchedTargets.Set(float64(n))
}

// Unwatch removes target from mutation watch
func (m *Monitor) Unwatch(targetID string) {
	m.mu.Lock()
	delete(m.targets, targetID)
	n := len(m.targets)
	m.mu.Unlock()

	metrics.WatchedTargets.Set(float64(n))
}

// Watching reports whether the target is under mutation watch
func (m *Monitor) Watching(targetID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.targets[targetID]
	return ok
}

// Mutated re-checks a watched target after its content changed. A target
// whose address disappeared or no longer matches its binding is disabled,
// reported and unwatched. It returns true when the target was invalidated.
func (m *Monitor) Mutated(ctx context.Context, target protocol.Editable) bool {
	m.mu.Lock()
	w, ok := m.targets[target.ID()]
	m.mu.Unlock()
	if !ok {
		return false
	}

	if !m.store.Fresh(w.binding) {
		m.Unwatch(target.ID())
		return false
	}

	det := m.verifier.Detect(target.Value())
	if det.IsNone() {
		m.invalidate(target, protocol.ReasonNotAnAddress, "trusted address was removed from the field")
		return true
	}

	resolved, err := m.verifier.Resolve(det.UnsafeFromSome())
	if err == nil {
		err = m.verifier.Match(resolved, w.binding)
	}
	if err != nil {
		reason := protocol.ReasonFor(err)
		m.invalidate(target, reason, fmt.Sprintf("field content changed after paste: %s", reason.Message()))
		return true
	}
	return false
}

func (m *Monitor) invalidate(target protocol.Editable, reason protocol.Reason, message string) {
	m.invalidations.Add(1)
	metrics.TamperWarnings.WithLabelValues("mutation", string(reason)).Inc()
	m.opts.Logger.Warn("monitor: target invalidated", "target", target.ID())

	target.Disable(message)
	m.sink.Invalidated(target.ID(), message)
	m.Unwatch(target.ID())
}

func (m *Monitor) pruneExpired() {
	m.mu.Lock()
	for id, w := range m.targets {
		if !m.store.Fresh(w.binding) {
			delete(m.targets, id)
		}
	}
	n := len(m.targets)
	m.mu.Unlock()

	metrics.WatchedTargets.Set(float64(n))
}

func describe(chain crypto.ChainTag, address string) string {
	return fmt.Sprintf("%s %s", chain, common.Truncate(address, 20))
}
