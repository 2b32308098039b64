package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	gethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/lightningnetwork/lnd/clock"
	"github.com/stretchr/testify/require"

	"github.com/grendel/clipseal/pkg/crypto"
	"github.com/grendel/clipseal/pkg/guard"
	"github.com/grendel/clipseal/pkg/matcher"
	"github.com/grendel/clipseal/pkg/metadata"
	"github.com/grendel/clipseal/pkg/monitor"
	"github.com/grendel/clipseal/pkg/patterns"
	"github.com/grendel/clipseal/pkg/protocol"
	"github.com/grendel/clipseal/pkg/session"
	"github.com/grendel/clipseal/pkg/verify"
)

const (
	testToken = "0123456789abcdef0123456789abcdef"
	trusted   = "0xde709f2102306220921060314715629080e2fb77"
	attacker  = "0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaed"
)

func newController(t *testing.T) (*guard.Controller, *metadata.MemoryChannel) {
	t.Helper()

	registry := crypto.NewAddressRegistry(crypto.DefaultKeccak)
	engine, err := crypto.NewFingerprintEngine(0)
	require.NoError(t, err)
	sess, err := session.New("bridge|test")
	require.NoError(t, err)

	verifier := verify.New(matcher.NewAddressDetector(registry, patterns.DefaultGenericMinLength), registry, engine, sess)
	channel := &metadata.MemoryChannel{}
	store := metadata.New(metadata.Options{
		Clock:   clock.NewTestClock(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)),
		Channel: channel,
	})
	mon := monitor.New(verifier, store, protocol.NopSink{}, monitor.Options{})
	return guard.New(verifier, store, mon, nil, nil), channel
}

func newServer(t *testing.T) (*Server, *metadata.MemoryChannel) {
	t.Helper()
	ctrl, channel := newController(t)
	srv, err := New(ctrl, Options{Token: testToken})
	require.NoError(t, err)
	return srv, channel
}

func do(t *testing.T, srv *Server, method, path string, body any, token string) *httptest.ResponseRecorder {
	t.Helper()

	var r io.Reader = http.NoBody
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, r)
	if token != "" {
		req.Header.Set(TokenHeader, token)
	}
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func decision(t *testing.T, rec *httptest.ResponseRecorder) DecisionResponse {
	t.Helper()
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp DecisionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestTokenRequired(t *testing.T) {
	srv, _ := newServer(t)

	for _, token := range []string{"", "wrong", testToken + "0"} {
		rec := do(t, srv, http.MethodGet, "/status", nil, token)
		require.Equal(t, http.StatusUnauthorized, rec.Code, "token %q", token)
	}

	rec := do(t, srv, http.MethodGet, "/status", nil, testToken)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestCopyThenPaste(t *testing.T) {
	srv, channel := newServer(t)
	checksummed := gethcommon.HexToAddress(trusted).Hex()

	copied := decision(t, do(t, srv, http.MethodPost, "/copy", CopyRequest{Text: trusted}, testToken))
	require.Equal(t, "allow", copied.Action)
	require.Equal(t, checksummed, copied.Content)
	require.Equal(t, "eth", copied.Chain)
	require.NotEmpty(t, copied.Fingerprint)

	payload, err := channel.ReadBinding(context.Background())
	require.NoError(t, err)

	value := "pay "
	pasted := decision(t, do(t, srv, http.MethodPost, "/paste", PasteRequest{
		Text:    trusted,
		Payload: payload,
		Value:   &value,
	}, testToken))
	require.Equal(t, "allow", pasted.Action, pasted.Message)
	require.NotNil(t, pasted.Value)
	require.Equal(t, "pay "+checksummed, *pasted.Value)
	require.Equal(t, len([]rune("pay "+checksummed)), *pasted.Cursor)
}

func TestPastePayloadAsString(t *testing.T) {
	srv, channel := newServer(t)
	decision(t, do(t, srv, http.MethodPost, "/copy", CopyRequest{Text: trusted}, testToken))

	payload, err := channel.ReadBinding(context.Background())
	require.NoError(t, err)
	quoted, err := json.Marshal(string(payload))
	require.NoError(t, err)

	pasted := decision(t, do(t, srv, http.MethodPost, "/paste", PasteRequest{
		Text:    trusted,
		Payload: quoted,
	}, testToken))
	require.Equal(t, "allow", pasted.Action, pasted.Message)
	require.Nil(t, pasted.Value)
}

func TestPasteSwappedAddressBlocked(t *testing.T) {
	srv, _ := newServer(t)
	decision(t, do(t, srv, http.MethodPost, "/copy", CopyRequest{Text: trusted}, testToken))

	value := ""
	pasted := decision(t, do(t, srv, http.MethodPost, "/paste", PasteRequest{
		Text:  attacker,
		Value: &value,
	}, testToken))
	require.Equal(t, "block", pasted.Action)
	require.Equal(t, protocol.ReasonFingerprintMismatch, pasted.Reason)
	require.Nil(t, pasted.Value)
}

func TestMutatedInvalidatesOverwrittenField(t *testing.T) {
	srv, channel := newServer(t)
	decision(t, do(t, srv, http.MethodPost, "/copy", CopyRequest{Text: trusted}, testToken))
	payload, err := channel.ReadBinding(context.Background())
	require.NoError(t, err)

	rec := do(t, srv, http.MethodPost, "/mutated", MutatedRequest{TargetID: "recipient", Value: attacker}, testToken)
	require.Equal(t, http.StatusNotFound, rec.Code)

	value := ""
	pasted := decision(t, do(t, srv, http.MethodPost, "/paste", PasteRequest{
		Text:     trusted,
		Payload:  payload,
		TargetID: "recipient",
		Value:    &value,
	}, testToken))
	require.Equal(t, "allow", pasted.Action, pasted.Message)

	var status StatusResponse
	rec = do(t, srv, http.MethodGet, "/status", nil, testToken)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	require.Equal(t, 1, status.Monitor.Watched)

	// an edit that keeps the address intact is fine
	kept := decision(t, do(t, srv, http.MethodPost, "/mutated", MutatedRequest{
		TargetID: "recipient",
		Value:    *pasted.Value + " ",
	}, testToken))
	require.Equal(t, "allow", kept.Action)

	swapped := decision(t, do(t, srv, http.MethodPost, "/mutated", MutatedRequest{
		TargetID: "recipient",
		Value:    attacker,
	}, testToken))
	require.Equal(t, "invalidated", swapped.Action)
	require.NotEmpty(t, swapped.Message)

	rec = do(t, srv, http.MethodPost, "/mutated", MutatedRequest{TargetID: "recipient", Value: trusted}, testToken)
	require.Equal(t, http.StatusNotFound, rec.Code)

	status = StatusResponse{}
	rec = do(t, srv, http.MethodGet, "/status", nil, testToken)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	require.Equal(t, 0, status.Monitor.Watched)
	require.Equal(t, int64(1), status.Monitor.Invalidations)
}

func TestStatusAndUnbind(t *testing.T) {
	srv, _ := newServer(t)

	var status StatusResponse
	rec := do(t, srv, http.MethodGet, "/status", nil, testToken)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	require.False(t, status.Bound)
	require.Empty(t, status.Reason)

	copied := decision(t, do(t, srv, http.MethodPost, "/copy", CopyRequest{Text: trusted}, testToken))

	rec = do(t, srv, http.MethodGet, "/status", nil, testToken)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	require.True(t, status.Bound)
	require.Equal(t, "eth", status.Chain)
	require.Equal(t, copied.Content, status.Address)
	require.Equal(t, copied.Fingerprint, status.Fingerprint)
	require.Equal(t, time.Date(2025, 3, 1, 12, 1, 0, 0, time.UTC), status.ExpiresAt.UTC())

	rec = do(t, srv, http.MethodPost, "/unbind", nil, testToken)
	require.Equal(t, http.StatusOK, rec.Code)

	status = StatusResponse{}
	rec = do(t, srv, http.MethodGet, "/status", nil, testToken)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	require.False(t, status.Bound)
}

func TestBadBody(t *testing.T) {
	srv, _ := newServer(t)

	req := httptest.NewRequest(http.MethodPost, "/copy", bytes.NewBufferString("{"))
	req.Header.Set(TokenHeader, testToken)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServePublishesEndpoint(t *testing.T) {
	ctrl, _ := newController(t)
	dir := t.TempDir()
	tokenFile := filepath.Join(dir, "run", "clipseal_token")
	portFile := filepath.Join(dir, "run", "clipseal_port")

	srv, err := New(ctrl, Options{TokenFile: tokenFile, PortFile: portFile})
	require.NoError(t, err)
	require.Len(t, srv.Token(), 32)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx) }()

	require.Eventually(t, func() bool {
		_, err := os.Stat(portFile)
		return err == nil
	}, 5*time.Second, 10*time.Millisecond)

	info, err := os.Stat(tokenFile)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	token, port, err := ReadEndpoint(tokenFile, portFile)
	require.NoError(t, err)
	require.Equal(t, srv.Token(), token)

	req, err := http.NewRequest(http.MethodGet, fmt.Sprintf("http://127.0.0.1:%d/status", port), nil)
	require.NoError(t, err)
	req.Header.Set(TokenHeader, token)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	require.NoError(t, <-done)

	_, err = os.Stat(tokenFile)
	require.True(t, os.IsNotExist(err))
}

func TestServeRejectsNonLoopback(t *testing.T) {
	ctrl, _ := newController(t)
	srv, err := New(ctrl, Options{Addr: "0.0.0.0:0"})
	require.NoError(t, err)
	require.Error(t, srv.Serve(context.Background()))
}

func TestClient(t *testing.T) {
	srv, _ := newServer(t)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	ctx := context.Background()
	c := &Client{BaseURL: ts.URL, Token: testToken, HTTP: ts.Client()}

	copied, err := c.Copy(ctx, "pay "+trusted)
	require.NoError(t, err)
	require.Equal(t, "allow", copied.Action)

	status, err := c.Status(ctx)
	require.NoError(t, err)
	require.True(t, status.Bound)
	require.Equal(t, copied.Fingerprint, status.Fingerprint)

	value := ""
	pasted, err := c.Paste(ctx, PasteRequest{Text: trusted, TargetID: "to", Value: &value})
	require.NoError(t, err)
	require.Equal(t, "allow", pasted.Action, pasted.Message)

	mutated, err := c.Mutated(ctx, "to", attacker)
	require.NoError(t, err)
	require.Equal(t, "invalidated", mutated.Action)

	_, err = c.Mutated(ctx, "to", attacker)
	require.ErrorContains(t, err, "target not watched")

	pasted, err = c.Paste(ctx, PasteRequest{Text: attacker})
	require.NoError(t, err)
	require.Equal(t, "block", pasted.Action)

	require.NoError(t, c.Unbind(ctx))
	status, err = c.Status(ctx)
	require.NoError(t, err)
	require.False(t, status.Bound)

	bad := &Client{BaseURL: ts.URL, Token: "nope", HTTP: ts.Client()}
	_, err = bad.Status(ctx)
	require.ErrorContains(t, err, "missing or invalid token")
}
