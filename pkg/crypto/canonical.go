package crypto

import (
	"strings"

	"github.com/grendel/clipseal/pkg/common"
)

// evmRule returns the EIP-55 checksummed form, never a lower or upper case guess
type evmRule struct {
	keccak DigestFunc
}

func (r *evmRule) Validate(candidate string) Validity {
	return ValidateEIP55(candidate, r.keccak)
}

func (r *evmRule) Canonicalize(raw string) (string, error) {
	hexPart, ok := splitEVMAddress(strings.TrimSpace(raw))
	if !ok {
		return "", ErrInvalidAddress
	}

	switch ValidateEIP55("0x"+hexPart, r.keccak) {
	case Invalid:
		return "", ErrInvalidAddress
	case Indeterminate:
		return "", ErrChecksumIndeterminate
	}

	checksummed, err := ChecksumHex(hexPart, r.keccak)
	if err != nil {
		return "", err
	}
	return "0x" + checksummed, nil
}

// bech32Rule strips whitespace and invisible characters and lower-cases.
// Validation runs before lower-casing so that mixed case is rejected.
type bech32Rule struct {
	validate func(string) bool
}

func (r *bech32Rule) Validate(candidate string) Validity {
	if r.validate(candidate) {
		return Valid
	}
	return Invalid
}

func (r *bech32Rule) Canonicalize(raw string) (string, error) {
	stripped := common.StripSpaceAndInvisible(raw)
	if !r.validate(stripped) {
		return "", ErrInvalidAddress
	}
	return strings.ToLower(stripped), nil
}

// base58Rule strips whitespace and invisible characters; case is significant
type base58Rule struct {
	validate func(string) bool
}

func (r *base58Rule) Validate(candidate string) Validity {
	if r.validate(candidate) {
		return Valid
	}
	return Invalid
}

func (r *base58Rule) Canonicalize(raw string) (string, error) {
	stripped := common.StripSpaceAndInvisible(raw)
	if !r.validate(stripped) {
		return "", ErrInvalidAddress
	}
	return stripped, nil
}

// genericRule trims and collapses whitespace. Case is never normalized
// because it cannot be assumed insignificant for an unknown format.
type genericRule struct{}

func (genericRule) Validate(candidate string) Validity {
	if strings.TrimSpace(candidate) == "" {
		return Invalid
	}
	return Valid
}

func (genericRule) Canonicalize(raw string) (string, error) {
	collapsed := common.CollapseSpace(raw)
	if collapsed == "" {
		return "", ErrInvalidAddress
	}
	return collapsed, nil
}
