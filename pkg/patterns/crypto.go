package patterns

import (
	"regexp"

	"github.com/grendel/clipseal/pkg/crypto"
)

// DefaultGenericMinLength is the shortest alphanumeric run accepted by the
// generic fallback
const DefaultGenericMinLength = 32

// AddressPattern matches candidate addresses of one chain
type AddressPattern struct {
	Chain crypto.ChainTag
	Regex *regexp.Regexp

	// MinLength discards shorter matches
	MinLength int

	// Confirm requires the chain validator to accept a match before it
	// counts. Set for formats whose alphabets overlap so a Solana key is
	// not claimed by the Dogecoin pattern.
	Confirm bool
}

// GetAddressPatterns returns the ordered address patterns, most specific
// first: Bech32, legacy Base58, EVM hex, Lightning, chain Base58 variants,
// then the generic fallback.
func GetAddressPatterns(genericMinLength int) []AddressPattern {
	if genericMinLength <= 0 {
		genericMinLength = DefaultGenericMinLength
	}

	return []AddressPattern{
		// Bitcoin SegWit: bc1/tb1 followed by Bech32 data characters
		{Chain: crypto.ChainBTCBech32, Regex: regexp.MustCompile(`(?i)\b(?:bc|tb)1[qpzry9x8gf2tvdw0s3jn54khce6mua7l]{25,87}\b`)},

		// Litecoin SegWit
		{Chain: crypto.ChainLTCBech32, Regex: regexp.MustCompile(`(?i)\bltc1[qpzry9x8gf2tvdw0s3jn54khce6mua7l]{25,86}\b`)},

		// Bitcoin legacy P2PKH (1) and P2SH (3)
		{Chain: crypto.ChainBTCBase58, Regex: regexp.MustCompile(`\b[13][1-9A-HJ-NP-Za-km-z]{25,34}\b`)},

		// EVM: 0x followed by 40 hex digits
		{Chain: crypto.ChainEVM, Regex: regexp.MustCompile(`\b0x[0-9a-fA-F]{40}\b`)},

		// Lightning BOLT-11 invoices on mainnet, testnet and regtest
		{Chain: crypto.ChainLightning, Regex: regexp.MustCompile(`(?i)\bln(?:bcrt|bc|tb)[0-9a-z]{20,}\b`)},

		// Litecoin legacy
		{Chain: crypto.ChainLTC, Regex: regexp.MustCompile(`\b[LM][1-9A-HJ-NP-Za-km-z]{26,33}\b`), Confirm: true},

		// Dogecoin
		{Chain: crypto.ChainDOGE, Regex: regexp.MustCompile(`\b[DA][1-9A-HJ-NP-Za-km-z]{25,33}\b`), Confirm: true},

		// Solana: 32-byte keys are 32 to 44 Base58 characters
		{Chain: crypto.ChainSOL, Regex: regexp.MustCompile(`\b[1-9A-HJ-NP-Za-km-z]{32,44}\b`), Confirm: true},

		// Generic fallback: long alphanumeric run
		{Chain: crypto.ChainGeneric, Regex: regexp.MustCompile(`\b[a-zA-Z0-9]{26,128}\b`), MinLength: genericMinLength},
	}
}
