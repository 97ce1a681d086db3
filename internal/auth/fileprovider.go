package auth

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// tokenEnvVar is where the host deposits a freshly granted token for the
// interactive flow. The extension runs the actual browser grant; the
// coordinator only consumes the result.
const tokenEnvVar = "AUTH_TOKEN"

// FileProvider caches the granted token on disk so a restarted
// coordinator can rehydrate its credential without a new interactive
// grant.
type FileProvider struct {
	path string
}

// NewFileProvider creates a provider caching tokens at path
func NewFileProvider(path string) *FileProvider {
	return &FileProvider{path: path}
}

// Acquire picks up the token the host deposited and caches it
func (p *FileProvider) Acquire(ctx context.Context) (string, error) {
	token := strings.TrimSpace(os.Getenv(tokenEnvVar))
	if token == "" {
		return "", fmt.Errorf("no token available: set %s", tokenEnvVar)
	}

	if err := os.MkdirAll(filepath.Dir(p.path), 0o700); err != nil {
		return "", fmt.Errorf("create credential dir: %w", err)
	}
	if err := os.WriteFile(p.path, []byte(token), 0o600); err != nil {
		return "", fmt.Errorf("cache credential: %w", err)
	}
	return token, nil
}

// AcquireSilent returns the cached token, if any
func (p *FileProvider) AcquireSilent(ctx context.Context) (string, error) {
	data, err := os.ReadFile(p.path)
	if err != nil {
		return "", fmt.Errorf("no cached credential: %w", err)
	}
	token := strings.TrimSpace(string(data))
	if token == "" {
		return "", fmt.Errorf("cached credential is empty")
	}
	return token, nil
}
