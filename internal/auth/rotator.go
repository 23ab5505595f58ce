package auth

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/omnirelay/llm-gateway/internal/utils"
)

// KeyRotator cycles a fixed list of static API keys round-robin across
// requests. The cursor lives in a file shared by all gateway processes;
// every advance runs read-increment-write under an exclusive flock plus an
// in-process mutex, so no two callers (threads or processes) observe the
// same pre-increment cursor.
type KeyRotator struct {
	provider string
	keys     []string

	mu        sync.Mutex
	lockPath  string
	indexPath string
}

// NewKeyRotator builds a rotator for the given provider. stateDir is where
// the shared cursor and lock files live; keys may be empty, in which case
// Credential reports no credential.
func NewKeyRotator(provider string, keys []string, stateDir string) *KeyRotator {
	clean := make([]string, 0, len(keys))
	for _, k := range keys {
		if k = strings.TrimSpace(k); k != "" {
			clean = append(clean, k)
		}
	}
	r := &KeyRotator{
		provider:  provider,
		keys:      clean,
		lockPath:  filepath.Join(stateDir, fmt.Sprintf("key_rotator_%s.lock", provider)),
		indexPath: filepath.Join(stateDir, fmt.Sprintf("key_rotator_%s.index", provider)),
	}
	if len(clean) == 0 {
		log.Warn().Str("provider", provider).Msg("no API keys configured")
	} else {
		log.Info().Str("provider", provider).Int("keys", len(clean)).Msg("key rotator ready")
	}
	return r
}

// Provider implements Store.
func (r *KeyRotator) Provider() string { return r.provider }

// Len returns the number of configured keys.
func (r *KeyRotator) Len() int { return len(r.keys) }

// Credential implements Store: it returns the next key in rotation.
func (r *KeyRotator) Credential() (string, bool) {
	return r.Next()
}

// Recover implements Store. A rotating key set has no refresh step; a 401
// is absorbed by advancing to the next key on the retry.
func (r *KeyRotator) Recover(context.Context, string) bool { return false }

// Next advances the shared cursor and returns the key it lands on.
// ok is false when no keys are configured.
func (r *KeyRotator) Next() (string, bool) {
	if len(r.keys) == 0 {
		return "", false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	lock, err := acquireFileLock(r.lockPath)
	if err != nil {
		// Lock failure degrades to in-process rotation rather than refusing
		// the request; the mutex above still covers a single process.
		log.Error().Err(err).Str("provider", r.provider).Msg("cursor lock failed, rotating without cross-process guard")
		next := (r.readIndex() + 1) % len(r.keys)
		r.writeIndex(next)
		return r.keys[next], true
	}
	defer lock.release()

	next := (r.readIndex() + 1) % len(r.keys)
	r.writeIndex(next)

	key := r.keys[next]
	log.Debug().
		Str("provider", r.provider).
		Str("key", utils.MaskKey(key)).
		Int("index", next).
		Int("pid", os.Getpid()).
		Msg("api key selected")
	return key, true
}

// readIndex returns the persisted cursor, or -1 when absent or unreadable
// so the first advance lands on the first key.
func (r *KeyRotator) readIndex() int {
	data, err := os.ReadFile(r.indexPath)
	if err != nil {
		return -1
	}
	idx, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || idx < -1 || idx >= len(r.keys) {
		log.Error().Str("provider", r.provider).Msg("cursor file out of range, resetting")
		return -1
	}
	return idx
}

func (r *KeyRotator) writeIndex(idx int) {
	if err := os.WriteFile(r.indexPath, []byte(strconv.Itoa(idx)), 0o644); err != nil {
		log.Error().Err(err).Str("provider", r.provider).Msg("cursor write failed")
	}
}

var _ Store = (*KeyRotator)(nil)
