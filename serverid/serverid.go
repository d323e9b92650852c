// Package serverid derives the stable, process-reboot-persistent identifier
// written into player_key.managed_by to assert per-server ownership.
//
// Grounded on db_manager.py's DbManager.__init__, which hashes the contents
// of /etc/machine-id with SHA-256 to mimic sd_id128_get_machine_app_specific.
// The raw machine id must never leave this process.
package serverid

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"strings"
)

// Derive reads the host-stable secret at path and returns its SHA-256 hex
// digest. Startup must refuse to proceed if path is missing, per spec.
func Derive(path string) (string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading machine id secret at %s: %w", path, err)
	}

	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" {
		return "", fmt.Errorf("machine id secret at %s is empty", path)
	}

	sum := sha256.Sum256([]byte(trimmed))
	return hex.EncodeToString(sum[:]), nil
}
