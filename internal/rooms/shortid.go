package rooms

import (
	"crypto/rand"
	"fmt"
	"io"
	"strings"
)

const (
	shortIDAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	// ShortIDLength is the number of characters in a generated short ID.
	ShortIDLength = 6
	// shortIDRejectionBound is the largest multiple of the alphabet size that fits in a byte.
	shortIDRejectionBound = 256 - 256%len(shortIDAlphabet)
	// maxShortReferenceLength is the longest reference that is tried as a short ID before a room ID.
	maxShortReferenceLength = 8
)

// ShortIDGenerator produces candidate short IDs. Uniqueness is checked by the caller.
type ShortIDGenerator interface {
	NewShortID() (string, error)
}

type randomShortIDGenerator struct {
	entropy io.Reader
}

// NewRandomShortIDGenerator returns a generator drawing uppercase base-36 characters from crypto/rand.
func NewRandomShortIDGenerator() ShortIDGenerator {
	return randomShortIDGenerator{entropy: rand.Reader}
}

// NewShortID maps random bytes onto the alphabet, discarding bytes at or above
// shortIDRejectionBound so every character is equally likely.
func (g randomShortIDGenerator) NewShortID() (string, error) {
	shortID := make([]byte, 0, ShortIDLength)
	buffer := make([]byte, ShortIDLength*2)
	for len(shortID) < ShortIDLength {
		if _, err := io.ReadFull(g.entropy, buffer); err != nil {
			return "", fmt.Errorf("short id entropy: %w", err)
		}
		for _, value := range buffer {
			if int(value) >= shortIDRejectionBound {
				continue
			}
			shortID = append(shortID, shortIDAlphabet[int(value)%len(shortIDAlphabet)])
			if len(shortID) == ShortIDLength {
				break
			}
		}
	}
	return string(shortID), nil
}

// NormalizeShortID trims and upper-cases user input so pasted codes resolve regardless of case.
func NormalizeShortID(raw string) string {
	return strings.ToUpper(strings.TrimSpace(raw))
}
