// Package agent assembles the clipboard protection stack from configuration
// and runs the integrity monitor alongside the local bridge.
package agent

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/lightningnetwork/lnd/clock"
	"github.com/lightningnetwork/lnd/ticker"
	"golang.org/x/sync/errgroup"

	"github.com/grendel/clipseal/internal/bridge"
	"github.com/grendel/clipseal/internal/config"
	"github.com/grendel/clipseal/pkg/audit"
	"github.com/grendel/clipseal/pkg/crypto"
	"github.com/grendel/clipseal/pkg/guard"
	"github.com/grendel/clipseal/pkg/matcher"
	"github.com/grendel/clipseal/pkg/metadata"
	"github.com/grendel/clipseal/pkg/monitor"
	"github.com/grendel/clipseal/pkg/protocol"
	"github.com/grendel/clipseal/pkg/session"
	"github.com/grendel/clipseal/pkg/ui"
	"github.com/grendel/clipseal/pkg/verify"
)

// Agent is a fully wired protection stack
type Agent struct {
	Session    *session.Session
	Verifier   *verify.Verifier
	Controller *guard.Controller
	Bridge     *bridge.Server
	Clipboard  Clipboard

	cfg   *config.AppConfig
	audit *audit.Log
	log   *slog.Logger
}

// Deps overrides parts of the stack, mostly for tests. Zero values select
// the production implementation.
type Deps struct {
	Clipboard Clipboard
	Clock     clock.Clock
	Session   *session.Session
}

// NewVerifier builds the detection and fingerprint pipeline from cfg
func NewVerifier(cfg *config.AppConfig, sess *session.Session) (*verify.Verifier, error) {
	keccak, err := crypto.KeccakByName(cfg.Detector.Keccak)
	if err != nil {
		return nil, err
	}
	registry := crypto.NewAddressRegistry(keccak)
	engine, err := crypto.NewFingerprintEngine(cfg.Fingerprint.Length)
	if err != nil {
		return nil, err
	}
	detector := matcher.NewAddressDetector(registry, cfg.Detector.GenericMinLength)
	return verify.New(detector, registry, engine, sess), nil
}

// Build wires the stack. Events are printed to out and, when configured,
// appended to the audit log.
func Build(cfg *config.AppConfig, out io.Writer, log *slog.Logger, deps Deps) (*Agent, error) {
	if log == nil {
		log = slog.Default()
	}

	sess := deps.Session
	if sess == nil {
		var err error
		if sess, err = session.New(cfg.Session.ExecContext); err != nil {
			return nil, fmt.Errorf("create session: %w", err)
		}
	}

	verifier, err := NewVerifier(cfg, sess)
	if err != nil {
		return nil, err
	}

	cb := deps.Clipboard
	if cb == nil {
		if SystemClipboardSupported() {
			cb = NewSystemClipboard(cfg.Metadata.PayloadFile)
		} else {
			log.Warn("agent: no system clipboard utility found, bindings stay in memory")
			cb = &metadata.MemoryChannel{}
		}
	}

	store := metadata.New(metadata.Options{
		TTL:     cfg.Metadata.TTL,
		Clock:   deps.Clock,
		Channel: cb,
		Logger:  log,
	})

	a := &Agent{
		Session:   sess,
		Verifier:  verifier,
		Clipboard: cb,
		cfg:       cfg,
		log:       log,
	}

	sinks := protocol.MultiSink{ui.NewConsoleSink(out, ui.DefaultColorScheme())}
	if cfg.Audit.Path != "" {
		auditLog, err := audit.Open(cfg.Audit.Path)
		if err != nil {
			return nil, fmt.Errorf("open audit log: %w", err)
		}
		a.audit = auditLog
		sinks = append(sinks, audit.NewRecorder(auditLog, sess.ID, log))
	}

	mon := monitor.New(verifier, store, sinks, monitor.Options{
		Source:     cb,
		Writer:     cb,
		Quarantine: cfg.Monitor.Quarantine,
		Logger:     log,
	})
	a.Controller = guard.New(verifier, store, mon, sinks, log)

	a.Bridge, err = bridge.New(a.Controller, bridge.Options{
		Addr:      cfg.Bridge.Addr,
		TokenFile: cfg.Bridge.TokenFile,
		PortFile:  cfg.Bridge.PortFile,
		Logger:    log,
	})
	if err != nil {
		a.Close()
		return nil, err
	}

	return a, nil
}

// Run polls the clipboard and serves the bridge until ctx is cancelled or
// the bridge fails
func (a *Agent) Run(ctx context.Context) error {
	defer a.Close()

	a.log.Info("agent: started",
		"session", a.Session.ID,
		"ttl", a.cfg.Metadata.TTL,
		"poll_interval", a.cfg.Monitor.PollInterval,
		"quarantine", a.cfg.Monitor.Quarantine,
		"audit", a.cfg.Audit.Path != "")

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.Controller.RunMonitor(ctx, ticker.New(a.cfg.Monitor.PollInterval))
		return nil
	})
	g.Go(func() error {
		return a.Bridge.Serve(ctx)
	})

	err := g.Wait()
	a.log.Info("agent: stopped")
	return err
}

// Close drops the clipboard payload sidecar, so a restarted agent never
// reads back a binding from an earlier session, and releases the audit log
func (a *Agent) Close() {
	if sc, ok := a.Clipboard.(*SystemClipboard); ok {
		if err := sc.ClearBinding(context.Background()); err != nil {
			a.log.Warn("agent: remove clipboard payload", "error", err)
		}
	}

	if a.audit == nil {
		return
	}
	a.log.Debug("agent: closing audit log", "head", a.audit.Head())
	if err := a.audit.Close(); err != nil {
		a.log.Warn("agent: close audit log", "error", err)
	}
	a.audit = nil
}
