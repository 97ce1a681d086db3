package dispatch

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
)

// pendingTable is the in-flight request table. At most one request per
// dedup key; the slot is held from acceptance until the remote call
// finishes, success or failure.
type pendingTable struct {
	mu   sync.Mutex
	keys map[string]struct{}
}

func newPendingTable() *pendingTable {
	return &pendingTable{keys: make(map[string]struct{})}
}

// acquire claims the slot for key, returning false when a request with
// the same key is already in flight
func (t *pendingTable) acquire(key string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.keys[key]; ok {
		return false
	}
	t.keys[key] = struct{}{}
	return true
}

// release frees the slot. Safe to call for keys that were never held.
func (t *pendingTable) release(key string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.keys, key)
}

// size returns the number of in-flight requests
func (t *pendingTable) size() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.keys)
}

// fingerprint hashes request content so the dedup key depends on what
// is being analyzed, not on who asked
func fingerprint(parts ...string) string {
	h := sha256.New()
	for _, p := range parts {
		h.Write([]byte(p))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))[:16]
}

// dedupKey builds the (contextId, requestKind, contentFingerprint) tuple
func dedupKey(contextID, kind, contentFingerprint string) string {
	return fmt.Sprintf("%s|%s|%s", contextID, kind, contentFingerprint)
}
