package guard

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	gethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/lightningnetwork/lnd/clock"
	"github.com/stretchr/testify/require"

	"github.com/grendel/clipseal/pkg/crypto"
	"github.com/grendel/clipseal/pkg/matcher"
	"github.com/grendel/clipseal/pkg/metadata"
	"github.com/grendel/clipseal/pkg/monitor"
	"github.com/grendel/clipseal/pkg/patterns"
	"github.com/grendel/clipseal/pkg/protocol"
	"github.com/grendel/clipseal/pkg/session"
	"github.com/grendel/clipseal/pkg/verify"
)

const (
	trusted  = "0xde709f2102306220921060314715629080e2fb77"
	attacker = "0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaed"
)

var startTime = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

type sinkEvent struct {
	kind   string
	reason protocol.Reason
	detail string
}

type recordingSink struct {
	mu     sync.Mutex
	events []sinkEvent
}

func (r *recordingSink) Locked(short string, chain crypto.ChainTag) {
	r.add(sinkEvent{kind: "locked", detail: short + "/" + chain.String()})
}

func (r *recordingSink) Blocked(reason protocol.Reason, message string) {
	r.add(sinkEvent{kind: "blocked", reason: reason, detail: message})
}

func (r *recordingSink) Invalidated(targetID, message string) {
	r.add(sinkEvent{kind: "invalidated", detail: targetID})
}

func (r *recordingSink) add(e sinkEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recordingSink) last() sinkEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.events) == 0 {
		return sinkEvent{}
	}
	return r.events[len(r.events)-1]
}

type failingChannel struct{}

func (failingChannel) WriteBinding(context.Context, string, []byte) error {
	return errors.New("clipboard locked by another process")
}

func (failingChannel) ReadBinding(context.Context) ([]byte, error) {
	return nil, metadata.ErrNoPayload
}

type harness struct {
	ctrl    *Controller
	channel metadata.Channel
	clock   *clock.TestClock
	sink    *recordingSink
	monitor *monitor.Monitor
}

type harnessOpt func(*harnessConfig)

type harnessConfig struct {
	keccak  crypto.DigestFunc
	channel metadata.Channel
}

func withoutKeccak() harnessOpt {
	return func(c *harnessConfig) { c.keccak = nil }
}

func withChannel(ch metadata.Channel) harnessOpt {
	return func(c *harnessConfig) { c.channel = ch }
}

func newHarness(t *testing.T, opts ...harnessOpt) *harness {
	t.Helper()

	cfg := harnessConfig{keccak: crypto.DefaultKeccak, channel: &metadata.MemoryChannel{}}
	for _, o := range opts {
		o(&cfg)
	}

	registry := crypto.NewAddressRegistry(cfg.keccak)
	engine, err := crypto.NewFingerprintEngine(0)
	require.NoError(t, err)
	sess := &session.Session{
		DeviceSalt:  "00112233445566778899aabbccddeeff",
		Nonce:       "0102030405060708",
		ExecContext: "agent|test",
	}
	verifier := verify.New(matcher.NewAddressDetector(registry, patterns.DefaultGenericMinLength), registry, engine, sess)

	h := &harness{
		channel: cfg.channel,
		clock:   clock.NewTestClock(startTime),
		sink:    &recordingSink{},
	}
	store := metadata.New(metadata.Options{Clock: h.clock, Channel: cfg.channel})
	h.monitor = monitor.New(verifier, store, h.sink, monitor.Options{})
	h.ctrl = New(verifier, store, h.monitor, h.sink, nil)
	return h
}

func (h *harness) copy(t *testing.T, text string) (*protocol.Copy, Decision) {
	t.Helper()
	ev := &protocol.Copy{Content: text}
	return ev, h.ctrl.HandleCopy(context.Background(), ev)
}

func (h *harness) payload(t *testing.T) []byte {
	t.Helper()
	data, err := h.channel.ReadBinding(context.Background())
	require.NoError(t, err)
	return data
}

func (h *harness) forgedPayload(t *testing.T, mutate func(*metadata.Binding)) []byte {
	t.Helper()
	b, err := metadata.Decode(h.payload(t))
	require.NoError(t, err)
	mutate(&b)
	data, err := metadata.Encode(b)
	require.NoError(t, err)
	return data
}

func TestCopyBindsFingerprint(t *testing.T) {
	h := newHarness(t)

	ev, d := h.copy(t, "send to "+trusted)
	require.Equal(t, Allow, d.Action)
	require.True(t, ev.Prevented)
	require.True(t, ev.WasCommitted())

	checksummed := gethcommon.HexToAddress(trusted).Hex()
	require.Equal(t, checksummed, ev.Committed)
	require.Equal(t, checksummed, d.Content)
	require.Len(t, d.Fingerprint, crypto.DefaultFingerprintLength)

	require.Equal(t, sinkEvent{kind: "locked", detail: d.Fingerprint + "/eth"}, h.sink.last())

	live, err := h.ctrl.Live(context.Background())
	require.NoError(t, err)
	require.Equal(t, crypto.ChainEVM, live.Chain)
	require.Equal(t, d.Fingerprint, live.Fingerprint.Short)
}

func TestPasteAcceptedInsertsCanonical(t *testing.T) {
	h := newHarness(t)
	h.copy(t, trusted)

	field := protocol.NewTextField("recipient", "to: ")
	ev := &protocol.Paste{Content: trusted, Meta: h.payload(t), Field: field}
	d := h.ctrl.HandlePaste(context.Background(), ev)

	require.Equal(t, Allow, d.Action, d.Message)
	require.True(t, ev.Prevented)
	require.Equal(t, "to: "+gethcommon.HexToAddress(trusted).Hex(), field.Value())
	require.True(t, h.monitor.Watching("recipient"))
}

func TestPasteReplacesSelection(t *testing.T) {
	h := newHarness(t)
	h.copy(t, trusted)

	field := protocol.NewTextField("recipient", "to: PLACEHOLDER!")
	field.Select(4, 15)
	d := h.ctrl.HandlePaste(context.Background(), &protocol.Paste{Content: "0x"+strings.ToUpper(trusted[2:]), Field: field})

	require.Equal(t, Allow, d.Action, d.Message)
	require.Equal(t, "to: "+gethcommon.HexToAddress(trusted).Hex()+"!", field.Value())
}

func TestPasteChainMismatch(t *testing.T) {
	h := newHarness(t)
	h.copy(t, trusted)

	meta := h.forgedPayload(t, func(b *metadata.Binding) { b.Chain = crypto.ChainBTCBech32 })
	ev := &protocol.Paste{Content: trusted, Meta: meta, Field: protocol.NewTextField("f", "")}
	d := h.ctrl.HandlePaste(context.Background(), ev)

	require.Equal(t, Block, d.Action)
	require.Equal(t, protocol.ReasonChainMismatch, d.Reason)
	require.True(t, ev.Prevented)
	require.Equal(t, "", ev.Field.Value())
	require.Equal(t, protocol.ReasonChainMismatch, h.sink.last().reason)
}

func TestPasteFingerprintMismatch(t *testing.T) {
	h := newHarness(t)
	h.copy(t, trusted)

	meta := h.forgedPayload(t, func(b *metadata.Binding) {
		b.Fingerprint = crypto.Fingerprint{Short: "00000000deadbeef"}
	})
	d := h.ctrl.HandlePaste(context.Background(), &protocol.Paste{Content: trusted, Meta: meta})

	require.Equal(t, Block, d.Action)
	require.Equal(t, protocol.ReasonFingerprintMismatch, d.Reason)
}

func TestPasteSwappedAddress(t *testing.T) {
	h := newHarness(t)
	h.copy(t, trusted)

	d := h.ctrl.HandlePaste(context.Background(), &protocol.Paste{Content: attacker, Meta: h.payload(t)})
	require.Equal(t, Block, d.Action)
	require.Equal(t, protocol.ReasonFingerprintMismatch, d.Reason)
}

func TestPasteInvisibleCharacterFirst(t *testing.T) {
	h := newHarness(t)
	h.copy(t, trusted)

	for _, text := range []string{
		trusted[:10] + "\u200b" + trusted[10:],
		"hello\u202eworld",
	} {
		ev := &protocol.Paste{Content: text, Meta: h.payload(t)}
		d := h.ctrl.HandlePaste(context.Background(), ev)

		require.Equal(t, Block, d.Action)
		require.Equal(t, protocol.ReasonInvisibleCharacter, d.Reason)
		require.True(t, ev.Prevented)
	}
}

func TestPasteWithoutBinding(t *testing.T) {
	h := newHarness(t)

	d := h.ctrl.HandlePaste(context.Background(), &protocol.Paste{Content: trusted})
	require.Equal(t, Block, d.Action)
	require.Equal(t, protocol.ReasonNoBinding, d.Reason)
}

func TestPasteMalformedMetadata(t *testing.T) {
	h := newHarness(t)

	d := h.ctrl.HandlePaste(context.Background(), &protocol.Paste{Content: trusted, Meta: []byte(`{"meta_version":7}`)})
	require.Equal(t, Block, d.Action)
	require.Equal(t, protocol.ReasonMalformedMetadata, d.Reason)
}

func TestPasteAfterExpiry(t *testing.T) {
	h := newHarness(t)
	h.copy(t, trusted)
	meta := h.payload(t)

	h.clock.SetTime(startTime.Add(metadata.DefaultTTL + time.Second))
	d := h.ctrl.HandlePaste(context.Background(), &protocol.Paste{Content: trusted, Meta: meta})
	require.Equal(t, Block, d.Action)
	require.Equal(t, protocol.ReasonNoBinding, d.Reason)
}

func TestPasteInvalidChecksum(t *testing.T) {
	h := newHarness(t)

	d := h.ctrl.HandlePaste(context.Background(), &protocol.Paste{Content: "1A1zP1eP5QGefi2DMPTfTL5SLmv7DivfNb"})
	require.Equal(t, Block, d.Action)
	require.Equal(t, protocol.ReasonInvalidAddress, d.Reason)
}

func TestChecksumIndeterminateFailsClosed(t *testing.T) {
	h := newHarness(t, withoutKeccak())

	ev, d := h.copy(t, trusted)
	require.Equal(t, Block, d.Action)
	require.Equal(t, protocol.ReasonChecksumIndeterminate, d.Reason)
	require.True(t, ev.Prevented)
	require.False(t, ev.WasCommitted())

	d = h.ctrl.HandlePaste(context.Background(), &protocol.Paste{Content: trusted})
	require.Equal(t, protocol.ReasonChecksumIndeterminate, d.Reason)
}

func TestPassthrough(t *testing.T) {
	h := newHarness(t)

	ev, d := h.copy(t, "see you at lunch")
	require.Equal(t, Passthrough, d.Action)
	require.False(t, ev.Prevented)
	require.False(t, ev.WasCommitted())

	paste := &protocol.Paste{Content: "see you at lunch"}
	d = h.ctrl.HandlePaste(context.Background(), paste)
	require.Equal(t, Passthrough, d.Action)
	require.False(t, paste.Prevented)
}

func TestCopyBindingConflict(t *testing.T) {
	h := newHarness(t)
	h.copy(t, trusted)

	// Re-copying the same address in another casing is fine
	_, d := h.copy(t, "0x"+strings.ToUpper(trusted[2:]))
	require.Equal(t, Allow, d.Action)

	ev, d := h.copy(t, attacker)
	require.Equal(t, Block, d.Action)
	require.Equal(t, protocol.ReasonBindingConflict, d.Reason)
	require.False(t, ev.WasCommitted())

	require.NoError(t, h.ctrl.Release(context.Background()))
	_, d = h.copy(t, attacker)
	require.Equal(t, Allow, d.Action)
}

func TestCopyDegradesToMemory(t *testing.T) {
	h := newHarness(t, withChannel(failingChannel{}))

	ev, d := h.copy(t, trusted)
	require.Equal(t, Allow, d.Action)
	require.True(t, d.Degraded)
	require.Equal(t, protocol.ReasonClipboardAccessDenied, d.Reason)
	require.True(t, ev.WasCommitted())

	d = h.ctrl.HandlePaste(context.Background(), &protocol.Paste{Content: trusted})
	require.Equal(t, Allow, d.Action)
}

type panickyField struct{ *protocol.TextField }

func (panickyField) Selection() (int, int) { panic("selection unavailable") }

func TestPanicFailsClosed(t *testing.T) {
	h := newHarness(t)
	h.copy(t, trusted)

	ev := &protocol.Paste{Content: trusted, Field: panickyField{protocol.NewTextField("f", "")}}
	d := h.ctrl.HandlePaste(context.Background(), ev)

	require.Equal(t, Block, d.Action)
	require.Equal(t, protocol.ReasonIntegrityCheckFailed, d.Reason)
	require.True(t, ev.Prevented)
	require.Equal(t, protocol.ReasonIntegrityCheckFailed, h.sink.last().reason)
}

func TestMutationAfterPaste(t *testing.T) {
	h := newHarness(t)
	h.copy(t, trusted)

	field := protocol.NewTextField("recipient", "")
	d := h.ctrl.HandlePaste(context.Background(), &protocol.Paste{Content: trusted, Field: field})
	require.Equal(t, Allow, d.Action)

	field.SetValue(attacker, len(attacker))
	require.True(t, h.ctrl.Mutated(context.Background(), field))

	disabled, _ := field.Disabled()
	require.True(t, disabled)
	require.Equal(t, sinkEvent{kind: "invalidated", detail: "recipient"}, h.sink.last())
}

func TestDecisionActionNames(t *testing.T) {
	require.Equal(t, "passthrough", Passthrough.String())
	require.Equal(t, "allow", Allow.String())
	require.Equal(t, "block", Block.String())
	require.Equal(t, "unknown", Action(9).String())
}
