package crypto

import (
	"fmt"
)

// AddressRule validates and canonicalizes addresses of one chain
type AddressRule interface {
	// Validate reports the structural validity of an already-normalized candidate
	Validate(candidate string) Validity

	// Canonicalize maps a raw match to the exact string that is fingerprinted and inserted
	Canonicalize(raw string) (string, error)
}

// AddressRegistry maps every chain tag to its rule
type AddressRegistry struct {
	rules map[ChainTag]AddressRule
}

// NewAddressRegistry creates a registry with a rule for every tag in
// AllChains. keccak may be nil, in which case mixed-case EVM addresses
// validate as Indeterminate and EVM canonicalization fails.
func NewAddressRegistry(keccak DigestFunc) *AddressRegistry {
	registry := &AddressRegistry{
		rules: map[ChainTag]AddressRule{
			ChainEVM:       &evmRule{keccak: keccak},
			ChainBTCBech32: &bech32Rule{validate: IsValidSegwitAddress},
			ChainLTCBech32: &bech32Rule{validate: IsValidLitecoinBech32},
			ChainLightning: &bech32Rule{validate: IsValidLightningInvoice},
			ChainBTCBase58: &base58Rule{validate: IsValidBitcoinBase58},
			ChainLTC:       &base58Rule{validate: IsValidLitecoinBase58},
			ChainDOGE:      &base58Rule{validate: IsValidDogecoinBase58},
			ChainSOL:       &base58Rule{validate: IsValidSolanaAddress},
			ChainGeneric:   &genericRule{},
		},
	}

	if missing := registry.Missing(); len(missing) > 0 {
		panic(fmt.Sprintf("crypto: no address rule for chains %v", missing))
	}

	return registry
}

// Missing returns the chains in AllChains that have no rule
func (r *AddressRegistry) Missing() []ChainTag {
	var missing []ChainTag
	for _, chain := range AllChains() {
		if _, ok := r.rules[chain]; !ok {
			missing = append(missing, chain)
		}
	}
	return missing
}

// GetRule returns the rule for a specific chain
func (r *AddressRegistry) GetRule(chain ChainTag) (AddressRule, bool) {
	rule, exists := r.rules[chain]
	return rule, exists
}

// Validate validates a candidate for a chain. Unknown chains are invalid.
func (r *AddressRegistry) Validate(candidate string, chain ChainTag) Validity {
	rule, exists := r.GetRule(chain)
	if !exists {
		return Invalid
	}
	return rule.Validate(candidate)
}

// Canonicalize maps a raw match to its canonical form. Unknown chains fail
// with ErrUnknownChain rather than passing the input through.
func (r *AddressRegistry) Canonicalize(raw string, chain ChainTag) (string, error) {
	rule, exists := r.GetRule(chain)
	if !exists {
		return "", fmt.Errorf("%w: %s", ErrUnknownChain, chain)
	}

	canonical, err := rule.Canonicalize(raw)
	if err != nil {
		return "", fmt.Errorf("canonicalize %s: %w", chain, err)
	}
	return canonical, nil
}
