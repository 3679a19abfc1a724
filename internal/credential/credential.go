package credential

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"strings"
	"sync"
)

// ErrEmptyCredential is returned when a blank API key is stored.
var ErrEmptyCredential = errors.New("credential must not be empty")

// Store holds the single user-supplied API key.
type Store interface {
	// Get returns the stored key; the bool is false when none was set.
	Get(ctx context.Context) (string, bool, error)
	// Set persists value, replacing any previous key.
	Set(ctx context.Context, value string) error
}

// KeyValue is the persistence a SettingsStore writes through.
type KeyValue interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Put(ctx context.Context, key, value string) error
}

// SettingsStore keeps the key in one named row of a KeyValue backend.
type SettingsStore struct {
	kv  KeyValue
	key string
}

// NewSettingsStore creates a store persisting under the given setting name.
func NewSettingsStore(kv KeyValue, key string) *SettingsStore {
	return &SettingsStore{kv: kv, key: key}
}

// Get reads the persisted key.
func (s *SettingsStore) Get(ctx context.Context) (string, bool, error) {
	value, ok, err := s.kv.Get(ctx, s.key)
	if err != nil {
		return "", false, fmt.Errorf("failed to read credential: %w", err)
	}
	if !ok || value == "" {
		return "", false, nil
	}
	return value, true, nil
}

// Set persists value.
func (s *SettingsStore) Set(ctx context.Context, value string) error {
	if strings.TrimSpace(value) == "" {
		return ErrEmptyCredential
	}
	if err := s.kv.Put(ctx, s.key, value); err != nil {
		return fmt.Errorf("failed to store credential: %w", err)
	}
	return nil
}

// MemoryStore keeps the key for the lifetime of the process only.
type MemoryStore struct {
	mu    sync.RWMutex
	value string
}

// NewMemoryStore returns a store seeded with value; pass "" for none.
func NewMemoryStore(value string) *MemoryStore {
	return &MemoryStore{value: value}
}

func (m *MemoryStore) Get(_ context.Context) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.value, m.value != "", nil
}

func (m *MemoryStore) Set(_ context.Context, value string) error {
	if strings.TrimSpace(value) == "" {
		return ErrEmptyCredential
	}
	m.mu.Lock()
	m.value = value
	m.mu.Unlock()
	return nil
}

// Fingerprint identifies a key in logs and status output without revealing it.
func Fingerprint(value string) string {
	sum := sha256.Sum256([]byte(value))
	return fmt.Sprintf("%x", sum[:6])
}
