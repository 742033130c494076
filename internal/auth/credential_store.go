// EVP Stream - Event Ingestion and Processing Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/evp-stream/ingestor

// Package auth implements the ingest API's authentication surface: a
// reference CredentialStore backed by BadgerDB, and the x-api-key
// middleware that authenticates producers against it.
package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
)

// APIKeyPrefix is prepended to every issued credential.
const APIKeyPrefix = "evp_"

// ErrNotFound is returned when a hash has no matching credential.
var ErrNotFound = errors.New("auth: credential not found")

// Credential is the master-data record a CredentialStore returns for a
// hashed API key.
type Credential struct {
	UserID    string     `json:"user_id"`
	Role      string     `json:"role"`
	RevokedAt *time.Time `json:"revoked_at,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// Valid reports whether the credential is usable at time now: neither
// revoked nor expired.
func (c Credential) Valid(now time.Time) bool {
	if c.RevokedAt != nil && !c.RevokedAt.After(now) {
		return false
	}
	if c.ExpiresAt != nil && !c.ExpiresAt.After(now) {
		return false
	}
	return true
}

// CredentialStore looks up master data for a hashed API key. The store
// never sees a plaintext key, only its SHA-256 hash.
type CredentialStore interface {
	LookupByHash(ctx context.Context, apiKeyHash string) (Credential, error)
	Close() error
}

// HashAPIKey returns the hex-encoded SHA-256 hash of a plaintext API key.
func HashAPIKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

// GenerateAPIKey creates a new evp_-prefixed key: the prefix followed by
// 32 random bytes, base64url-encoded. The hash of the returned key is what
// callers persist via a store's provisioning path (not part of this
// interface, which is read-only by design).
func GenerateAPIKey() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return APIKeyPrefix + base64.RawURLEncoding.EncodeToString(buf), nil
}

// BadgerCredentialStore is the reference, swappable CredentialStore
// implementation. Keys are stored as sha256(api_key) -> Credential JSON.
type BadgerCredentialStore struct {
	db     *badger.DB
	prefix []byte
	mu     sync.RWMutex
	closed bool
}

// NewBadgerCredentialStore wraps an already-open BadgerDB handle.
func NewBadgerCredentialStore(db *badger.DB, prefix string) *BadgerCredentialStore {
	if prefix == "" {
		prefix = "cred:"
	}
	return &BadgerCredentialStore{db: db, prefix: []byte(prefix)}
}

func (s *BadgerCredentialStore) key(hash string) []byte {
	return append(append([]byte{}, s.prefix...), []byte(hash)...)
}

// Put provisions or updates a credential. Not part of the CredentialStore
// interface (master-data management is out of scope), but needed by tests
// and operator tooling to seed the store.
func (s *BadgerCredentialStore) Put(ctx context.Context, apiKeyHash string, cred Credential) error {
	data, err := json.Marshal(cred)
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(s.key(apiKeyHash), data)
	})
}

func (s *BadgerCredentialStore) LookupByHash(ctx context.Context, apiKeyHash string) (Credential, error) {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return Credential{}, errors.New("auth: store closed")
	}
	s.mu.RUnlock()

	var cred Credential
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(s.key(apiKeyHash))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &cred)
		})
	})
	if err != nil {
		return Credential{}, err
	}
	return cred, nil
}

func (s *BadgerCredentialStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// MemoryCredentialStore is an in-memory CredentialStore for tests.
type MemoryCredentialStore struct {
	mu    sync.RWMutex
	creds map[string]Credential
}

// NewMemoryCredentialStore creates an empty store.
func NewMemoryCredentialStore() *MemoryCredentialStore {
	return &MemoryCredentialStore{creds: make(map[string]Credential)}
}

// Put provisions a credential for tests.
func (s *MemoryCredentialStore) Put(apiKeyHash string, cred Credential) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creds[apiKeyHash] = cred
}

func (s *MemoryCredentialStore) LookupByHash(ctx context.Context, apiKeyHash string) (Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cred, ok := s.creds[apiKeyHash]
	if !ok {
		return Credential{}, ErrNotFound
	}
	return cred, nil
}

func (s *MemoryCredentialStore) Close() error { return nil }

var (
	_ CredentialStore = (*BadgerCredentialStore)(nil)
	_ CredentialStore = (*MemoryCredentialStore)(nil)
)
