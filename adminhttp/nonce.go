package adminhttp

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"
	"time"
)

// nonceManager mints and validates the single-use XSRF tokens gating
// POST /start. Adapted from business/nonce.go's NonceManager: this
// caller is a machine, not a browser, so there is no IP/user-agent to
// bind the token to, and the lifetime is short since the GET/POST pair
// happens back-to-back from the same process.
type nonceManager struct {
	mu     sync.Mutex
	tokens map[string]time.Time // token -> expiry
}

func newNonceManager() *nonceManager {
	nm := &nonceManager{tokens: make(map[string]time.Time)}
	go nm.sweep()
	return nm
}

func (nm *nonceManager) issue() (string, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("generating xsrf token: %w", err)
	}
	token := hex.EncodeToString(raw)

	nm.mu.Lock()
	defer nm.mu.Unlock()
	nm.tokens[token] = time.Now().Add(5 * time.Minute)
	return token, nil
}

func (nm *nonceManager) validate(token string) error {
	nm.mu.Lock()
	defer nm.mu.Unlock()

	expiry, ok := nm.tokens[token]
	if !ok {
		return fmt.Errorf("invalid or expired xsrf token")
	}
	delete(nm.tokens, token)

	if time.Now().After(expiry) {
		return fmt.Errorf("xsrf token expired")
	}
	return nil
}

func (nm *nonceManager) sweep() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for range ticker.C {
		nm.mu.Lock()
		now := time.Now()
		for token, expiry := range nm.tokens {
			if now.After(expiry) {
				delete(nm.tokens, token)
			}
		}
		nm.mu.Unlock()
	}
}
