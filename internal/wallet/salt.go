package wallet

import (
	"fmt"
	"strings"

	"github.com/tyler-smith/go-bip39"
)

// SaltEntropyBits is the entropy of a generated salt (24 words).
const SaltEntropyBits = 256

// GenerateSalt returns a new random 24-word salt phrase. Any non-empty
// string is a valid salt; the phrase form only makes backups readable.
func GenerateSalt() (string, error) {
	entropy, err := bip39.NewEntropy(SaltEntropyBits)
	if err != nil {
		return "", fmt.Errorf("generate entropy: %w", err)
	}
	phrase, err := bip39.NewMnemonic(entropy)
	if err != nil {
		return "", fmt.Errorf("generate salt phrase: %w", err)
	}
	return phrase, nil
}

// IsSaltPhrase reports whether salt is a checksummed phrase as produced by
// GenerateSalt.
func IsSaltPhrase(salt string) bool {
	return bip39.IsMnemonicValid(salt)
}

// ValidateSalt rejects salts that would make every account's wallets
// trivially guessable.
func ValidateSalt(salt string) error {
	if strings.TrimSpace(salt) == "" {
		return ErrEmptySalt
	}
	if salt != strings.TrimSpace(salt) {
		return fmt.Errorf("wallet: salt has leading or trailing whitespace")
	}
	return nil
}
