package crypto

import (
	"strings"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
)

// Bech32Charset is the 32-character data alphabet from BIP-173
const Bech32Charset = "qpzry9x8gf2tvdw0s3jn54khce6mua7l"

const (
	bech32MaxLength    = 90
	bech32MinLength    = 8
	bech32ChecksumSize = 6
)

var bech32Generator = [5]uint32{0x3b6a57b2, 0x26508e6d, 0x1ea119fa, 0x3d4233dd, 0x2a1462b3}

// Lightning invoice human-readable prefixes
var lightningPrefixes = []string{"lnbcrt", "lnbc", "lntb"}

func bech32Polymod(values []byte) uint32 {
	chk := uint32(1)
	for _, v := range values {
		top := chk >> 25
		chk = (chk&0x1ffffff)<<5 ^ uint32(v)
		for i := 0; i < 5; i++ {
			if (top>>uint(i))&1 == 1 {
				chk ^= bech32Generator[i]
			}
		}
	}
	return chk
}

// bech32HRPExpand returns the high bits of each HRP character, a zero
// separator, then the low bits.
func bech32HRPExpand(hrp string) []byte {
	out := make([]byte, 0, len(hrp)*2+1)
	for i := 0; i < len(hrp); i++ {
		out = append(out, hrp[i]>>5)
	}
	out = append(out, 0)
	for i := 0; i < len(hrp); i++ {
		out = append(out, hrp[i]&31)
	}
	return out
}

// decodeBech32 splits and checksums a Bech32 string. It returns the lower
// case HRP and the 5-bit data values without the checksum. A maxLength of
// zero disables the length limit.
func decodeBech32(candidate string, maxLength int) (string, []byte, bool) {
	if len(candidate) < bech32MinLength {
		return "", nil, false
	}
	if maxLength > 0 && len(candidate) > maxLength {
		return "", nil, false
	}

	// Mixed case is invalid even if each folded variant would checksum
	lower := strings.ToLower(candidate)
	if candidate != lower && candidate != strings.ToUpper(candidate) {
		return "", nil, false
	}

	for i := 0; i < len(lower); i++ {
		if lower[i] < 33 || lower[i] > 126 {
			return "", nil, false
		}
	}

	sep := strings.LastIndexByte(lower, '1')
	if sep < 1 || sep+bech32ChecksumSize+1 > len(lower) {
		return "", nil, false
	}

	hrp := lower[:sep]
	data := make([]byte, 0, len(lower)-sep-1)
	for i := sep + 1; i < len(lower); i++ {
		idx := strings.IndexByte(Bech32Charset, lower[i])
		if idx < 0 {
			return "", nil, false
		}
		data = append(data, byte(idx))
	}

	if bech32Polymod(append(bech32HRPExpand(hrp), data...)) != 1 {
		return "", nil, false
	}

	return hrp, data[:len(data)-bech32ChecksumSize], true
}

// IsValidBech32 validates a BIP-173 string of at most 90 characters
func IsValidBech32(candidate string) bool {
	_, _, ok := decodeBech32(candidate, bech32MaxLength)
	return ok
}

// IsValidBech32NoLimit validates a BIP-173 checksum without the 90
// character limit. Lightning invoices routinely exceed it.
func IsValidBech32NoLimit(candidate string) bool {
	_, _, ok := decodeBech32(candidate, 0)
	return ok
}

// segwitParams picks the network whose HRP prefixes the address
func segwitParams(lower string) *chaincfg.Params {
	switch {
	case strings.HasPrefix(lower, chaincfg.MainNetParams.Bech32HRPSegwit+"1"):
		return &chaincfg.MainNetParams
	case strings.HasPrefix(lower, chaincfg.TestNet3Params.Bech32HRPSegwit+"1"):
		return &chaincfg.TestNet3Params
	}
	return nil
}

// IsValidSegwitAddress validates a Bitcoin native SegWit address. Witness v0
// programs must also carry a BIP-173 checksum; Taproot programs use bech32m
// and are validated by btcutil alone.
func IsValidSegwitAddress(candidate string) bool {
	if candidate == "" || (candidate != strings.ToLower(candidate) && candidate != strings.ToUpper(candidate)) {
		return false
	}

	lower := strings.ToLower(candidate)
	params := segwitParams(lower)
	if params == nil {
		return false
	}

	addr, err := btcutil.DecodeAddress(lower, params)
	if err != nil {
		return false
	}

	switch addr.(type) {
	case *btcutil.AddressWitnessPubKeyHash, *btcutil.AddressWitnessScriptHash:
		return IsValidBech32(candidate)
	case *btcutil.AddressTaproot:
		return true
	default:
		return false
	}
}

// IsValidLitecoinBech32 validates a Bech32 string with the ltc HRP
func IsValidLitecoinBech32(candidate string) bool {
	hrp, _, ok := decodeBech32(candidate, bech32MaxLength)
	return ok && hrp == "ltc"
}

// IsValidLightningInvoice validates the checksum of a BOLT-11 invoice and
// its network prefix. The amount and tagged fields are not parsed.
func IsValidLightningInvoice(candidate string) bool {
	hrp, _, ok := decodeBech32(candidate, 0)
	if !ok {
		return false
	}
	for _, prefix := range lightningPrefixes {
		if strings.HasPrefix(hrp, prefix) {
			return true
		}
	}
	return false
}
