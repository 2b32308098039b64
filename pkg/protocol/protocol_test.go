package protocol

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/grendel/clipseal/pkg/crypto"
)

func TestReasonFor(t *testing.T) {
	cases := []struct {
		err  error
		want Reason
	}{
		{nil, ReasonNone},
		{ErrNotAnAddress, ReasonNotAnAddress},
		{fmt.Errorf("load: %w", ErrNoBinding), ReasonNoBinding},
		{ErrChainMismatch, ReasonChainMismatch},
		{ErrFingerprintMismatch, ReasonFingerprintMismatch},
		{fmt.Errorf("decode: %w", ErrMalformedMetadata), ReasonMalformedMetadata},
		{ErrInvisibleCharacter, ReasonInvisibleCharacter},
		{ErrClipboardAccessDenied, ReasonClipboardAccessDenied},
		{ErrBindingConflict, ReasonBindingConflict},
		{ErrSeedPhrase, ReasonSeedPhrase},
		{fmt.Errorf("canonicalize eth: %w", crypto.ErrChecksumIndeterminate), ReasonChecksumIndeterminate},
		{fmt.Errorf("canonicalize btc_base58: %w", crypto.ErrInvalidAddress), ReasonInvalidAddress},
		{crypto.ErrUnknownChain, ReasonInvalidAddress},
		{errors.New("boom"), ReasonIntegrityCheckFailed},
	}

	for _, tc := range cases {
		require.Equal(t, tc.want, ReasonFor(tc.err), "%v", tc.err)
	}
}

func TestReasonBlocks(t *testing.T) {
	require.False(t, ReasonNotAnAddress.Blocks())
	require.False(t, ReasonClipboardAccessDenied.Blocks())
	require.True(t, ReasonNoBinding.Blocks())
	require.True(t, ReasonIntegrityCheckFailed.Blocks())
	require.True(t, Reason("whatever").Blocks())
	require.Equal(t, ReasonIntegrityCheckFailed.Message(), Reason("whatever").Message())
}

func TestSplice(t *testing.T) {
	cases := []struct {
		name       string
		value      string
		start, end int
		insert     string
		want       string
		cursor     int
	}{
		{"empty", "", 0, 0, "abc", "abc", 3},
		{"append", "to: ", 4, 4, "abc", "to: abc", 7},
		{"replace selection", "to: XXXX!", 4, 8, "abc", "to: abc!", 7},
		{"reversed selection", "to: XXXX!", 8, 4, "abc", "to: abc!", 7},
		{"clamped", "hi", -3, 99, "abc", "abc", 3},
		{"runes not bytes", "éé|", 2, 2, "x", "ééx|", 3},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, cursor := Splice(tc.value, tc.start, tc.end, tc.insert)
			require.Equal(t, tc.want, got)
			require.Equal(t, tc.cursor, cursor)
		})
	}
}

func TestTextFieldDisable(t *testing.T) {
	f := NewTextField("recipient", "ab")
	start, end := f.Selection()
	require.Equal(t, 2, start)
	require.Equal(t, 2, end)

	f.SetValue("abc", 3)
	f.Disable("tampered")
	f.SetValue("evil", 4)

	require.Equal(t, "abc", f.Value())
	disabled, reason := f.Disabled()
	require.True(t, disabled)
	require.Equal(t, "tampered", reason)
}

type countingSink struct{ locked, blocked, invalidated int }

func (c *countingSink) Locked(string, crypto.ChainTag) { c.locked++ }
func (c *countingSink) Blocked(Reason, string)         { c.blocked++ }
func (c *countingSink) Invalidated(string, string)     { c.invalidated++ }

func TestMultiSink(t *testing.T) {
	a, b := &countingSink{}, &countingSink{}
	sink := MultiSink{a, NopSink{}, b}

	sink.Locked("abcd", crypto.ChainEVM)
	sink.Blocked(ReasonNoBinding, "x")
	sink.Invalidated("f", "y")

	require.Equal(t, countingSink{1, 1, 1}, *a)
	require.Equal(t, countingSink{1, 1, 1}, *b)
}
