package app

import (
	"crypto/rand"
	"math/big"

	"quiz-engine/internal/domain"
)

// PINGenerator returns a candidate join PIN. Uniqueness is checked by the store.
type PINGenerator func() (string, error)

var pinSpace = big.NewInt(1_000_000)

// RandomPIN draws a zero-padded six digit PIN from crypto/rand.
func RandomPIN() (string, error) {
	n, err := rand.Int(rand.Reader, pinSpace)
	if err != nil {
		return "", err
	}
	buf := []byte("000000")
	s := n.String()
	copy(buf[domain.PINLength-len(s):], s)
	return string(buf), nil
}
