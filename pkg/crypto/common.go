package crypto

// common.go - Contains common definitions used across the crypto package
// This file defines the chain tags, their families and the sentinel errors
// returned by validators and canonicalization rules.

import (
	"errors"
	"fmt"
	"strings"
)

// ChainTag identifies the address format a detected string belongs to
type ChainTag uint8

// Supported chain tags. ChainUnknown is never registered.
const (
	ChainUnknown ChainTag = iota
	ChainEVM
	ChainBTCBech32
	ChainBTCBase58
	ChainLTC
	ChainLTCBech32
	ChainDOGE
	ChainSOL
	ChainLightning
	ChainGeneric
)

// Family groups chains that share a canonicalization rule
type Family uint8

const (
	FamilyUnknown Family = iota
	FamilyEVM
	FamilyBech32
	FamilyBase58
	FamilyGeneric
)

var chainNames = map[ChainTag]string{
	ChainEVM:       "eth",
	ChainBTCBech32: "btc_bech32",
	ChainBTCBase58: "btc_base58",
	ChainLTC:       "ltc",
	ChainLTCBech32: "ltc_bech32",
	ChainDOGE:      "doge",
	ChainSOL:       "sol",
	ChainLightning: "ln_invoice",
	ChainGeneric:   "generic",
}

var chainFamilies = map[ChainTag]Family{
	ChainEVM:       FamilyEVM,
	ChainBTCBech32: FamilyBech32,
	ChainLTCBech32: FamilyBech32,
	ChainLightning: FamilyBech32,
	ChainBTCBase58: FamilyBase58,
	ChainLTC:       FamilyBase58,
	ChainDOGE:      FamilyBase58,
	ChainSOL:       FamilyBase58,
	ChainGeneric:   FamilyGeneric,
}

// chainAliases maps wrapped-token and network names onto the chain whose
// address format they share.
var chainAliases = map[string]ChainTag{
	"evm":  ChainEVM,
	"weth": ChainEVM,
	"wbtc": ChainEVM,
}

// AllChains returns every registered chain tag in declaration order
func AllChains() []ChainTag {
	return []ChainTag{
		ChainEVM, ChainBTCBech32, ChainBTCBase58, ChainLTC, ChainLTCBech32,
		ChainDOGE, ChainSOL, ChainLightning, ChainGeneric,
	}
}

// String returns the wire name of the chain
func (c ChainTag) String() string {
	if name, ok := chainNames[c]; ok {
		return name
	}
	return fmt.Sprintf("unknown(%d)", uint8(c))
}

// Family returns the canonicalization family of the chain
func (c ChainTag) Family() Family {
	return chainFamilies[c]
}

// MarshalText implements encoding.TextMarshaler
func (c ChainTag) MarshalText() ([]byte, error) {
	name, ok := chainNames[c]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownChain, uint8(c))
	}
	return []byte(name), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (c *ChainTag) UnmarshalText(text []byte) error {
	tag, err := ParseChainTag(string(text))
	if err != nil {
		return err
	}
	*c = tag
	return nil
}

// ParseChainTag resolves a wire name or alias to its chain tag
func ParseChainTag(name string) (ChainTag, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if tag, ok := chainAliases[name]; ok {
		return tag, nil
	}
	for tag, n := range chainNames {
		if n == name {
			return tag, nil
		}
	}
	return ChainUnknown, fmt.Errorf("%w: %q", ErrUnknownChain, name)
}

// Base58Alphabet defines the standard Base58 alphabet used by most cryptocurrencies
const Base58Alphabet = "123456789ABCDEFGHJKLMNPQRSTUVWXYZabcdefghijkmnopqrstuvwxyz"

var (
	// ErrUnknownChain is returned for tags with no registered rule
	ErrUnknownChain = errors.New("unknown chain")

	// ErrInvalidAddress is returned when a candidate fails its chain's
	// structural or checksum validation
	ErrInvalidAddress = errors.New("invalid address")

	// ErrChecksumIndeterminate is returned when the Keccak-256 primitive
	// needed for EIP-55 is unavailable
	ErrChecksumIndeterminate = errors.New("checksum indeterminate: keccak-256 unavailable")
)
