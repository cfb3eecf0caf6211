package adapter

import (
	"crypto/rand"
	"math/big"
	"strings"
)

const (
	layerIDAlphabet = "123456789ABCDEFGHJKLMNPQRSTUVWXYZabcdefghijkmnopqrstuvwxyz"
	layerIDPrefix   = "L"
	layerIDLength   = 12
)

var alphabetSize = big.NewInt(int64(len(layerIDAlphabet)))

// NewLayerID returns a fresh 12-character layer identifier starting with "L".
// The alphabet leaves out characters that are easy to confuse (0, O, I, l).
func NewLayerID() string {
	var b strings.Builder
	b.Grow(layerIDLength)
	b.WriteString(layerIDPrefix)
	for b.Len() < layerIDLength {
		n, err := rand.Int(rand.Reader, alphabetSize)
		if err != nil {
			panic("adapter: crypto/rand failed: " + err.Error())
		}
		b.WriteByte(layerIDAlphabet[n.Int64()])
	}
	return b.String()
}

// IsLayerID reports whether s has the shape of a generated layer identifier.
func IsLayerID(s string) bool {
	if len(s) != layerIDLength || !strings.HasPrefix(s, layerIDPrefix) {
		return false
	}
	for i := len(layerIDPrefix); i < len(s); i++ {
		if !strings.ContainsRune(layerIDAlphabet, rune(s[i])) {
			return false
		}
	}
	return true
}
