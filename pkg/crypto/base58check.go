package crypto

import (
	"bytes"
	"strings"

	"github.com/btcsuite/btcd/btcutil/base58"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// Prefix sets for Base58Check chains that share Bitcoin's encoding
const (
	litecoinPrefixes = "LM3"
	dogecoinPrefixes = "DA"
)

// solanaKeyLength is the size of an ed25519 public key
const solanaKeyLength = 32

// decodeBase58 decodes s after checking every character is in the alphabet.
// base58.Decode signals bad input with an empty slice, which is ambiguous
// for an all-zero payload, so the alphabet is checked up front.
func decodeBase58(s string) ([]byte, bool) {
	if s == "" {
		return nil, false
	}
	for i := 0; i < len(s); i++ {
		if strings.IndexByte(Base58Alphabet, s[i]) < 0 {
			return nil, false
		}
	}
	return base58.Decode(s), true
}

// IsValidBase58Check verifies the trailing 4-byte double-SHA256 checksum of a
// Base58Check string. Leading '1' characters decode to leading zero bytes.
func IsValidBase58Check(candidate string) bool {
	raw, ok := decodeBase58(candidate)
	if !ok || len(raw) < 5 {
		return false
	}

	payload, checksum := raw[:len(raw)-4], raw[len(raw)-4:]
	return bytes.Equal(checksum, CalculateDoubleSha256(payload)[:4])
}

// CalculateDoubleSha256 returns SHA256(SHA256(data))
func CalculateDoubleSha256(data []byte) []byte {
	return chainhash.DoubleHashB(data)
}

// IsValidLitecoinBase58 requires an L, M or 3 prefix on a valid Base58Check string
func IsValidLitecoinBase58(candidate string) bool {
	return hasPrefixIn(candidate, litecoinPrefixes) && IsValidBase58Check(candidate)
}

// IsValidDogecoinBase58 requires a D or A prefix on a valid Base58Check string
func IsValidDogecoinBase58(candidate string) bool {
	return hasPrefixIn(candidate, dogecoinPrefixes) && IsValidBase58Check(candidate)
}

// IsValidBitcoinBase58 requires a 1 or 3 prefix on a valid Base58Check string
func IsValidBitcoinBase58(candidate string) bool {
	return hasPrefixIn(candidate, "13") && IsValidBase58Check(candidate)
}

// IsValidSolanaAddress checks that the candidate decodes to a 32-byte key.
// Solana addresses carry no checksum.
func IsValidSolanaAddress(candidate string) bool {
	raw, ok := decodeBase58(candidate)
	return ok && len(raw) == solanaKeyLength
}

func hasPrefixIn(s, prefixes string) bool {
	return s != "" && strings.IndexByte(prefixes, s[0]) >= 0
}
