package packerconf

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
)

const credentialBytes = 18

// NewBuildCredential generates the per-run provisioning password.
// It is consumed only within the same run: baked into the rendered
// seed data and discarded with the working directory.
func NewBuildCredential() (string, error) {
	buf := make([]byte, credentialBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate build credential: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// WriteCredentialFile stores the credential under the run directory with
// owner-only permissions, for operators debugging a wedged build VM.
func WriteCredentialFile(workDir, credential string) (string, error) {
	path := filepath.Join(workDir, "build-credential")
	if err := os.WriteFile(path, []byte(credential+"\n"), 0o600); err != nil {
		return "", fmt.Errorf("failed to write credential file: %w", err)
	}
	return path, nil
}
