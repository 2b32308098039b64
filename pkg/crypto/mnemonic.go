package crypto

import (
	"strings"

	"github.com/tyler-smith/go-bip39"
)

// ValidateBIP39SeedPhrase reports whether text is exactly a BIP-39 mnemonic
// of 12, 15, 18, 21 or 24 words with a valid checksum
func ValidateBIP39SeedPhrase(text string) bool {
	words := strings.Fields(strings.ToLower(text))
	switch len(words) {
	case 12, 15, 18, 21, 24:
	default:
		return false
	}
	return bip39.IsMnemonicValid(strings.Join(words, " "))
}
