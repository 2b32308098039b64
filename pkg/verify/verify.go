// Package verify resolves detected addresses to their canonical form and
// fingerprint and checks them against a binding.
package verify

import (
	"crypto/subtle"
	"fmt"

	"github.com/lightningnetwork/lnd/fn/v2"

	"github.com/grendel/clipseal/pkg/crypto"
	"github.com/grendel/clipseal/pkg/matcher"
	"github.com/grendel/clipseal/pkg/metadata"
	"github.com/grendel/clipseal/pkg/protocol"
	"github.com/grendel/clipseal/pkg/session"
)

// Resolved is a detection with its canonical form and fingerprint
type Resolved struct {
	Detection   matcher.Detection
	Canonical   string
	Fingerprint crypto.Fingerprint
}

// Binding converts the resolved address into a binding
func (r Resolved) Binding() metadata.Binding {
	return metadata.Binding{
		Chain:       r.Detection.Chain,
		Canonical:   r.Canonical,
		Fingerprint: r.Fingerprint,
	}
}

// Verifier ties detection, canonicalization and fingerprinting to one
// session
type Verifier struct {
	detector *matcher.AddressDetector
	registry *crypto.AddressRegistry
	engine   *crypto.FingerprintEngine
	session  *session.Session
}

// New creates a Verifier
func New(detector *matcher.AddressDetector, registry *crypto.AddressRegistry,
	engine *crypto.FingerprintEngine, sess *session.Session) *Verifier {

	return &Verifier{
		detector: detector,
		registry: registry,
		engine:   engine,
		session:  sess,
	}
}

// Detect finds the best address candidate in text
func (v *Verifier) Detect(text string) fn.Option[matcher.Detection] {
	return v.detector.Detect(text)
}

// Resolve canonicalizes a detection and fingerprints the result
func (v *Verifier) Resolve(det matcher.Detection) (Resolved, error) {
	canonical, err := v.registry.Canonicalize(det.Raw, det.Chain)
	if err != nil {
		return Resolved{}, err
	}
	return Resolved{
		Detection:   det,
		Canonical:   canonical,
		Fingerprint: v.engine.Fingerprint(canonical, v.session),
	}, nil
}

// Match requires r to equal the binding in chain, canonical string and
// fingerprint
func (v *Verifier) Match(r Resolved, b metadata.Binding) error {
	if r.Detection.Chain != b.Chain {
		return fmt.Errorf("%w: pasted %s, bound %s", protocol.ErrChainMismatch,
			r.Detection.Chain, b.Chain)
	}
	if subtle.ConstantTimeCompare([]byte(r.Canonical), []byte(b.Canonical)) != 1 {
		return fmt.Errorf("%w: address differs", protocol.ErrFingerprintMismatch)
	}
	if !crypto.FingerprintsEqual(r.Fingerprint, b.Fingerprint) {
		return fmt.Errorf("%w: %s != %s", protocol.ErrFingerprintMismatch,
			r.Fingerprint.Short, b.Fingerprint.Short)
	}
	return nil
}
