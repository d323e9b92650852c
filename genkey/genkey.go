// Package genkey generates the 10-character base-62 player keys that are
// the only credential a player ever sees.
//
// Grounded on db_manager.py's alphanum_uuid: a uuid4 reduced to base 62 so
// that KeyLen characters give a keyspace wide enough (62^10 ≈ 8.4e17) that
// collisions are negligible.
package genkey

import (
	"crypto/rand"
	"math/big"
)

// KeyLen is the length in characters of a generated player key.
const KeyLen = 10

const alphanum = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

// New returns a fresh random player key of length KeyLen, drawn from a
// cryptographically secure source. Collisions are handled by the caller
// (spec treats a colliding insert as a fatal programmer error: retry once,
// then fail).
func New() (string, error) {
	buf := make([]byte, KeyLen)
	base := big.NewInt(int64(len(alphanum)))

	for i := range buf {
		n, err := rand.Int(rand.Reader, base)
		if err != nil {
			return "", err
		}
		buf[i] = alphanum[n.Int64()]
	}

	return string(buf), nil
}

// NewSecret returns a fresh random AI secret, also base-62 but a distinct
// length from player keys so the two can never be confused by a human
// reading a log line.
func NewSecret() (string, error) {
	const secretLen = 16
	buf := make([]byte, secretLen)
	base := big.NewInt(int64(len(alphanum)))

	for i := range buf {
		n, err := rand.Int(rand.Reader, base)
		if err != nil {
			return "", err
		}
		buf[i] = alphanum[n.Int64()]
	}

	return string(buf), nil
}
