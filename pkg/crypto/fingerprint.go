package crypto

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/grendel/clipseal/pkg/session"
)

const (
	// DefaultFingerprintLength is the number of hex characters shown to users
	DefaultFingerprintLength = 16

	MinFingerprintLength = 8
	MaxFingerprintLength = sha256.Size * 2

	fieldSeparator = "||"
)

// Fingerprint is a session-bound digest of a canonical address
type Fingerprint struct {
	Digest string // full 64-character hex SHA-256
	Short  string // truncated prefix of Digest
}

// FingerprintEngine derives fingerprints for canonical addresses
type FingerprintEngine struct {
	length int
}

// NewFingerprintEngine creates an engine truncating to length hex characters
func NewFingerprintEngine(length int) (*FingerprintEngine, error) {
	if length == 0 {
		length = DefaultFingerprintLength
	}
	if length < MinFingerprintLength || length > MaxFingerprintLength {
		return nil, fmt.Errorf("fingerprint length %d out of range [%d, %d]",
			length, MinFingerprintLength, MaxFingerprintLength)
	}
	return &FingerprintEngine{length: length}, nil
}

// Fingerprint hashes the canonical address with the session's execution
// context, device salt and nonce
func (e *FingerprintEngine) Fingerprint(canonical string, sess *session.Session) Fingerprint {
	sum := sha256.Sum256([]byte(composite(canonical, sess.ExecContext, sess.DeviceSalt, sess.Nonce)))
	digest := hex.EncodeToString(sum[:])
	return Fingerprint{
		Digest: digest,
		Short:  digest[:e.length],
	}
}

// composite frames every field with its byte length before joining, so a
// separator inside a field cannot shift the boundary between fields.
func composite(fields ...string) string {
	var b strings.Builder
	for i, f := range fields {
		if i > 0 {
			b.WriteString(fieldSeparator)
		}
		b.WriteString(strconv.Itoa(len(f)))
		b.WriteByte(':')
		b.WriteString(f)
	}
	return b.String()
}

// FingerprintsEqual compares two fingerprints in constant time. When both
// sides carry a full digest the digests are compared, otherwise the short
// forms are.
func FingerprintsEqual(a, b Fingerprint) bool {
	if a.Digest != "" && b.Digest != "" {
		return subtle.ConstantTimeCompare([]byte(a.Digest), []byte(b.Digest)) == 1
	}
	if a.Short == "" || b.Short == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a.Short), []byte(b.Short)) == 1
}
