package crypto

import (
	"fmt"
	"strings"

	gethcommon "github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"golang.org/x/crypto/sha3"

	"github.com/grendel/clipseal/pkg/common"
)

// DigestFunc hashes the concatenation of its inputs. It matches the
// signature of go-ethereum's crypto.Keccak256.
type DigestFunc func(data ...[]byte) []byte

// Validity is the tri-state outcome of a checksum validation
type Validity uint8

const (
	Invalid Validity = iota
	Valid
	// Indeterminate means the digest primitive was unavailable. Callers
	// must treat it as invalid.
	Indeterminate
)

// String returns a lower-case label for the validity
func (v Validity) String() string {
	switch v {
	case Valid:
		return "valid"
	case Indeterminate:
		return "indeterminate"
	default:
		return "invalid"
	}
}

const evmHexLength = 40

// DefaultKeccak is the Keccak-256 primitive used for EIP-55
var DefaultKeccak DigestFunc = ethcrypto.Keccak256

// LegacyKeccak is Keccak-256 built directly on x/crypto/sha3
func LegacyKeccak(data ...[]byte) []byte {
	h := sha3.NewLegacyKeccak256()
	for _, b := range data {
		h.Write(b)
	}
	return h.Sum(nil)
}

// Keccak implementation names accepted by KeccakByName
const (
	KeccakGeth = "geth"
	KeccakSHA3 = "sha3"
)

// KeccakByName selects the EIP-55 digest. The empty name selects
// DefaultKeccak.
func KeccakByName(name string) (DigestFunc, error) {
	switch name {
	case "", KeccakGeth:
		return DefaultKeccak, nil
	case KeccakSHA3:
		return LegacyKeccak, nil
	default:
		return nil, fmt.Errorf("unknown keccak implementation %q", name)
	}
}

// splitEVMAddress strips an optional 0x prefix and checks for 40 hex digits
func splitEVMAddress(s string) (string, bool) {
	hexPart := strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	if len(hexPart) != evmHexLength || !common.IsHex(hexPart) {
		return "", false
	}
	return hexPart, gethcommon.IsHexAddress("0x" + hexPart)
}

// ChecksumHex applies EIP-55 casing to a 40-digit hex string. A letter is
// upper-cased when the matching nibble of Keccak-256(lowercase hex) is >= 8.
func ChecksumHex(hexPart string, keccak DigestFunc) (string, error) {
	if keccak == nil {
		return "", ErrChecksumIndeterminate
	}

	lower := strings.ToLower(hexPart)
	hash := keccak([]byte(lower))
	out := []byte(lower)
	for i, c := range out {
		if c < 'a' || c > 'f' {
			continue
		}
		nibble := hash[i/2]
		if i%2 == 0 {
			nibble >>= 4
		} else {
			nibble &= 0x0f
		}
		if nibble >= 8 {
			out[i] = c - ('a' - 'A')
		}
	}
	return string(out), nil
}

// ValidateEIP55 validates a 0x-prefixed EVM address. All-lowercase and
// all-uppercase forms carry no checksum and are accepted; mixed case must
// match the EIP-55 casing exactly.
func ValidateEIP55(candidate string, keccak DigestFunc) Validity {
	if !strings.HasPrefix(candidate, "0x") {
		return Invalid
	}
	hexPart, ok := splitEVMAddress(candidate)
	if !ok {
		return Invalid
	}
	if !common.HasMixedCase(hexPart) {
		return Valid
	}

	checksummed, err := ChecksumHex(hexPart, keccak)
	if err != nil {
		return Indeterminate
	}
	if checksummed != hexPart {
		return Invalid
	}
	return Valid
}
