// Package protocol holds the contract shared by the copy/paste controller,
// the integrity monitor and their hosts: reason codes, sentinel errors, the
// UI sink and the editable target abstraction.
package protocol

import (
	"errors"

	"github.com/grendel/clipseal/pkg/crypto"
)

// Reason is a machine-readable code explaining a decision
type Reason string

const (
	ReasonNone                  Reason = ""
	ReasonNotAnAddress          Reason = "NotAnAddress"
	ReasonNoBinding             Reason = "NoBinding"
	ReasonChainMismatch         Reason = "ChainMismatch"
	ReasonFingerprintMismatch   Reason = "FingerprintMismatch"
	ReasonMalformedMetadata     Reason = "MalformedMetadata"
	ReasonChecksumIndeterminate Reason = "ChecksumIndeterminate"
	ReasonInvisibleCharacter    Reason = "InvisibleCharacterDetected"
	ReasonClipboardAccessDenied Reason = "ClipboardAccessDenied"
	ReasonIntegrityCheckFailed  Reason = "IntegrityCheckFailed"
	ReasonInvalidAddress        Reason = "InvalidAddress"
	ReasonBindingConflict       Reason = "BindingConflict"
	ReasonSeedPhrase            Reason = "SeedPhraseOnClipboard"
)

var reasonMessages = map[Reason]string{
	ReasonNotAnAddress:          "no address detected",
	ReasonNoBinding:             "address was not copied from a protected source",
	ReasonChainMismatch:         "address belongs to a different chain than the one copied",
	ReasonFingerprintMismatch:   "address fingerprint does not match the copied address",
	ReasonMalformedMetadata:     "clipboard metadata is malformed",
	ReasonChecksumIndeterminate: "address checksum cannot be verified",
	ReasonInvisibleCharacter:    "pasted text contains invisible characters",
	ReasonClipboardAccessDenied: "clipboard unavailable, binding kept in memory only",
	ReasonIntegrityCheckFailed:  "integrity check failed",
	ReasonInvalidAddress:        "address checksum is invalid",
	ReasonBindingConflict:       "a different address is already bound",
	ReasonSeedPhrase:            "seed phrase detected on clipboard",
}

// Message returns the human-readable text for the reason
func (r Reason) Message() string {
	if msg, ok := reasonMessages[r]; ok {
		return msg
	}
	return reasonMessages[ReasonIntegrityCheckFailed]
}

// Blocks reports whether the reason refuses the action
func (r Reason) Blocks() bool {
	switch r {
	case ReasonNone, ReasonNotAnAddress, ReasonClipboardAccessDenied:
		return false
	}
	return true
}

var (
	ErrNotAnAddress          = errors.New("not an address")
	ErrNoBinding             = errors.New("no live binding")
	ErrChainMismatch         = errors.New("chain mismatch")
	ErrFingerprintMismatch   = errors.New("fingerprint mismatch")
	ErrMalformedMetadata     = errors.New("malformed metadata")
	ErrInvisibleCharacter    = errors.New("invisible character detected")
	ErrClipboardAccessDenied = errors.New("clipboard access denied")
	ErrIntegrityCheckFailed  = errors.New("integrity check failed")
	ErrBindingConflict       = errors.New("binding conflict")
	ErrSeedPhrase            = errors.New("seed phrase on clipboard")
)

// ReasonFor maps an error to its reason code. Anything unrecognised fails
// closed as IntegrityCheckFailed.
func ReasonFor(err error) Reason {
	switch {
	case err == nil:
		return ReasonNone
	case errors.Is(err, ErrNotAnAddress):
		return ReasonNotAnAddress
	case errors.Is(err, ErrInvisibleCharacter):
		return ReasonInvisibleCharacter
	case errors.Is(err, ErrNoBinding):
		return ReasonNoBinding
	case errors.Is(err, ErrChainMismatch):
		return ReasonChainMismatch
	case errors.Is(err, ErrFingerprintMismatch):
		return ReasonFingerprintMismatch
	case errors.Is(err, ErrMalformedMetadata):
		return ReasonMalformedMetadata
	case errors.Is(err, ErrBindingConflict):
		return ReasonBindingConflict
	case errors.Is(err, ErrSeedPhrase):
		return ReasonSeedPhrase
	case errors.Is(err, ErrClipboardAccessDenied):
		return ReasonClipboardAccessDenied
	case errors.Is(err, crypto.ErrChecksumIndeterminate):
		return ReasonChecksumIndeterminate
	case errors.Is(err, crypto.ErrInvalidAddress), errors.Is(err, crypto.ErrUnknownChain):
		return ReasonInvalidAddress
	}
	return ReasonIntegrityCheckFailed
}
