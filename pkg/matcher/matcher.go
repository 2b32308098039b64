package matcher

import (
	"github.com/lightningnetwork/lnd/fn/v2"

	"github.com/grendel/clipseal/pkg/crypto"
	"github.com/grendel/clipseal/pkg/patterns"
)

// Detection is the single best address candidate found in a text
type Detection struct {
	Chain  crypto.ChainTag
	Raw    string
	Offset int // byte offset of Raw in the scanned text
}

// AddressDetector classifies free text using ordered chain patterns
type AddressDetector struct {
	patterns []patterns.AddressPattern
	registry *crypto.AddressRegistry
}

// NewAddressDetector creates a detector. The registry confirms matches for
// patterns that require it; genericMinLength tunes the generic fallback.
func NewAddressDetector(registry *crypto.AddressRegistry, genericMinLength int) *AddressDetector {
	return &AddressDetector{
		patterns: patterns.GetAddressPatterns(genericMinLength),
		registry: registry,
	}
}

// Detect returns at most one candidate. Patterns are tried in order and the
// first pattern with a qualifying match decides; within a pattern the
// longest match wins, ties going to the earliest. Detect has no side effects.
func (d *AddressDetector) Detect(text string) fn.Option[Detection] {
	for _, p := range d.patterns {
		if best, ok := d.longestMatch(p, text); ok {
			return fn.Some(best)
		}
	}
	return fn.None[Detection]()
}

func (d *AddressDetector) longestMatch(p patterns.AddressPattern, text string) (Detection, bool) {
	var (
		best  Detection
		found bool
	)

	for _, loc := range p.Regex.FindAllStringIndex(text, -1) {
		candidate := text[loc[0]:loc[1]]
		if len(candidate) < p.MinLength {
			continue
		}
		// Strictly longer only, so the first of equal-length matches is kept
		if found && len(candidate) <= len(best.Raw) {
			continue
		}
		if p.Confirm && d.registry.Validate(candidate, p.Chain) != crypto.Valid {
			continue
		}

		best = Detection{Chain: p.Chain, Raw: candidate, Offset: loc[0]}
		found = true
	}

	return best, found
}
