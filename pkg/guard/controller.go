// Package guard implements the copy/paste controller. Every handler runs in
// two phases: a synchronous phase that detects an address and suppresses the
// native action, and a continuation that canonicalizes, binds or verifies and
// re-applies the decision. Any failure resolves to a block.
package guard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/lightningnetwork/lnd/ticker"

	"github.com/grendel/clipseal/pkg/common"
	"github.com/grendel/clipseal/pkg/matcher"
	"github.com/grendel/clipseal/pkg/metadata"
	"github.com/grendel/clipseal/pkg/metrics"
	"github.com/grendel/clipseal/pkg/monitor"
	"github.com/grendel/clipseal/pkg/protocol"
	"github.com/grendel/clipseal/pkg/verify"
)

// Controller serialises copy, paste, poll and mutation handling so that
// only one event is in flight at a time
type Controller struct {
	verifier *verify.Verifier
	store    *metadata.Store
	monitor  *monitor.Monitor
	sink     protocol.Sink
	log      *slog.Logger

	mu sync.Mutex
}

// New creates a Controller. A nil sink discards events and a nil logger
// uses slog.Default.
func New(verifier *verify.Verifier, store *metadata.Store, mon *monitor.Monitor,
	sink protocol.Sink, log *slog.Logger) *Controller {

	if sink == nil {
		sink = protocol.NopSink{}
	}
	if log == nil {
		log = slog.Default()
	}
	return &Controller{
		verifier: verifier,
		store:    store,
		monitor:  mon,
		sink:     sink,
		log:      log,
	}
}

// HandleCopy processes a copy event. Text without an address passes
// through; an address is replaced by its canonical form and bound to a
// fingerprint.
func (c *Controller) HandleCopy(ctx context.Context, ev protocol.CopyEvent) (d Decision) {
	c.mu.Lock()
	defer c.mu.Unlock()

	defer func() {
		metrics.CopyDecisions.WithLabelValues(d.Action.String(), string(d.Reason)).Inc()
	}()
	defer c.failClosed("copy", ev.PreventDefault, &d)

	det := c.verifier.Detect(ev.Text())
	if det.IsNone() {
		return passthrough()
	}
	ev.PreventDefault()

	return c.completeCopy(ctx, ev, det.UnsafeFromSome())
}

func (c *Controller) completeCopy(ctx context.Context, ev protocol.CopyEvent, det matcher.Detection) Decision {
	resolved, err := c.verifier.Resolve(det)
	if err != nil {
		return c.block("copy", err)
	}

	live, err := c.store.Live(ctx, nil)
	switch {
	case err == nil:
		if live.Chain != det.Chain || live.Canonical != resolved.Canonical {
			return c.block("copy", fmt.Errorf("%w: %s bound until %s",
				protocol.ErrBindingConflict, live.Chain,
				live.BoundAt.Add(c.store.TTL()).Format("15:04:05")))
		}
	case errors.Is(err, protocol.ErrNoBinding):
	default:
		return c.block("copy", err)
	}

	binding := resolved.Binding()
	binding.BoundAt = c.store.Now()

	d := Decision{
		Action:      Allow,
		Content:     resolved.Canonical,
		Chain:       det.Chain,
		Fingerprint: resolved.Fingerprint.Short,
	}

	if err := c.store.Bind(ctx, binding); err != nil {
		if !errors.Is(err, protocol.ErrClipboardAccessDenied) {
			return c.block("copy", err)
		}
		c.log.Warn("guard: binding kept in memory only", "chain", det.Chain, "error", err)
		metrics.ChannelDegraded.Inc()
		d.Degraded = true
		d.Reason = protocol.ReasonClipboardAccessDenied
	}
	metrics.BindingsTotal.WithLabelValues(det.Chain.String()).Inc()

	ev.Commit(resolved.Canonical)
	c.sink.Locked(resolved.Fingerprint.Short, det.Chain)
	c.log.Info("guard: address locked", "chain", det.Chain, "fingerprint", resolved.Fingerprint.Short)

	return d
}

// HandlePaste processes a paste event. Text carrying invisible characters
// is refused outright. An address is accepted only when it matches the live
// binding, and is then inserted in canonical form at the target selection.
func (c *Controller) HandlePaste(ctx context.Context, ev protocol.PasteEvent) (d Decision) {
	c.mu.Lock()
	defer c.mu.Unlock()

	defer func() {
		metrics.PasteDecisions.WithLabelValues(d.Action.String(), string(d.Reason)).Inc()
	}()
	defer c.failClosed("paste", ev.PreventDefault, &d)

	text := ev.Text()
	if common.ContainsInvisible(text) {
		ev.PreventDefault()
		return c.block("paste", protocol.ErrInvisibleCharacter)
	}

	det := c.verifier.Detect(text)
	if det.IsNone() {
		return passthrough()
	}
	ev.PreventDefault()

	return c.completePaste(ctx, ev, det.UnsafeFromSome())
}

func (c *Controller) completePaste(ctx context.Context, ev protocol.PasteEvent, det matcher.Detection) Decision {
	resolved, err := c.verifier.Resolve(det)
	if err != nil {
		return c.block("paste", err)
	}

	binding, err := c.store.Live(ctx, ev.Payload())
	if err != nil {
		return c.block("paste", err)
	}
	if err := c.verifier.Match(resolved, binding); err != nil {
		return c.block("paste", err)
	}

	if target := ev.Target(); target != nil {
		start, end := target.Selection()
		value, cursor := protocol.Splice(target.Value(), start, end, resolved.Canonical)
		target.SetValue(value, cursor)
		c.monitor.Watch(target, binding)
	}

	c.log.Info("guard: paste verified", "chain", det.Chain, "fingerprint", resolved.Fingerprint.Short)
	return Decision{
		Action:      Allow,
		Content:     resolved.Canonical,
		Chain:       det.Chain,
		Fingerprint: resolved.Fingerprint.Short,
	}
}

// Release drops the live binding
func (c *Controller) Release(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store.Clear(ctx)
}

// Live returns the current binding, if any
func (c *Controller) Live(ctx context.Context) (metadata.Binding, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store.Live(ctx, nil)
}

// TTL returns how long a binding stays live
func (c *Controller) TTL() time.Duration { return c.store.TTL() }

// Poll runs one clipboard integrity check
func (c *Controller) Poll(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.monitor.Poll(ctx)
}

// Mutated re-checks a watched target after its content changed
func (c *Controller) Mutated(ctx context.Context, target protocol.Editable) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.monitor.Mutated(ctx, target)
}

// Watching reports whether the target is still under mutation watch
func (c *Controller) Watching(targetID string) bool { return c.monitor.Watching(targetID) }

// Stats returns the monitor counters
func (c *Controller) Stats() monitor.Stats { return c.monitor.Stats() }

// RunMonitor polls the clipboard on every tick until ctx is cancelled
func (c *Controller) RunMonitor(ctx context.Context, t ticker.Ticker) {
	c.monitor.Run(ctx, t, c.Poll)
}

func (c *Controller) block(op string, err error) Decision {
	d := blocked(err)
	c.log.Warn("guard: "+op+" blocked", "reason", d.Reason, "error", err)
	c.sink.Blocked(d.Reason, d.Message)
	return d
}

// failClosed turns a panic in a handler into a block
func (c *Controller) failClosed(op string, prevent func(), d *Decision) {
	r := recover()
	if r == nil {
		return
	}

	c.log.Error("guard: "+op+" handler panicked", "panic", r)
	func() {
		defer func() { _ = recover() }()
		prevent()
	}()
	*d = c.block(op, fmt.Errorf("%w: %v", protocol.ErrIntegrityCheckFailed, r))
}
