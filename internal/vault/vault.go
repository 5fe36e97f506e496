// Package vault persists a small set of secrets in a single encrypted file.
// Values are sealed with AES-256-GCM under a machine-local key; the whole
// store is rewritten atomically on every mutation so a partial write can
// never leave orphaned entries behind.
package vault

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/natefinch/atomic"
	"github.com/rs/zerolog"

	"streamhostd/internal/common/fsutil"
)

const keySize = 32 // AES-256

// Vault encrypts, persists and retrieves key/value secrets.
type Vault struct {
	path string
	key  []byte // keySize bytes, or nil when encryption is unavailable
	mu   sync.Mutex
	log  zerolog.Logger
}

// Open prepares a vault backed by the store file at path, encrypting with
// the machine key at keyPath. A missing key file is created on first use;
// when no usable key can be obtained the vault opens in an unavailable
// state and every mutating call fails closed.
func Open(path, keyPath string, log zerolog.Logger) *Vault {
	v := &Vault{path: path, log: log.With().Str("component", "vault").Logger()}
	key, err := loadOrCreateKey(keyPath)
	if err != nil {
		v.log.Error().Err(err).Str("key_path", keyPath).Msg("machine key unavailable, vault disabled")
		return v
	}
	v.key = key
	return v
}

// IsAvailable reports whether the encryption key is usable.
func (v *Vault) IsAvailable() bool { return len(v.key) == keySize }

// Save encrypts plaintext and merges it into the store under key,
// preserving all other entries. The updated store is written atomically.
func (v *Vault) Save(key, plaintext string) error {
	if !v.IsAvailable() {
		return ErrUnavailable()
	}
	v.mu.Lock()
	defer v.mu.Unlock()

	store, err := v.readStore()
	if err != nil {
		return err
	}
	sealed, err := v.seal(plaintext)
	if err != nil {
		return err
	}
	store[key] = sealed
	return v.writeStore(store)
}

// Load decrypts and returns the value stored under key. The second return
// is false when the backing file or the key does not exist; any other I/O
// or decryption failure is returned as an error.
func (v *Vault) Load(key string) (string, bool, error) {
	if !v.IsAvailable() {
		return "", false, ErrUnavailable()
	}
	v.mu.Lock()
	defer v.mu.Unlock()

	store, err := v.readStore()
	if err != nil {
		return "", false, err
	}
	sealed, ok := store[key]
	if !ok {
		return "", false, nil
	}
	plain, err := v.open(sealed)
	if err != nil {
		return "", false, fmt.Errorf("decrypt %q: %w", key, err)
	}
	return plain, true, nil
}

// Delete removes key from the store. Missing file or key is a no-op.
func (v *Vault) Delete(key string) error {
	if !v.IsAvailable() {
		return ErrUnavailable()
	}
	v.mu.Lock()
	defer v.mu.Unlock()

	store, err := v.readStore()
	if err != nil {
		return err
	}
	if _, ok := store[key]; !ok {
		return nil
	}
	delete(store, key)
	return v.writeStore(store)
}

// Has reports whether key exists without decrypting it.
func (v *Vault) Has(key string) (bool, error) {
	if !v.IsAvailable() {
		return false, ErrUnavailable()
	}
	v.mu.Lock()
	defer v.mu.Unlock()

	store, err := v.readStore()
	if err != nil {
		return false, err
	}
	_, ok := store[key]
	return ok, nil
}

// readStore loads the whole store file; a missing file yields an empty map.
func (v *Vault) readStore() (map[string]string, error) {
	b, err := os.ReadFile(v.path)
	if errors.Is(err, os.ErrNotExist) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, err
	}
	store := map[string]string{}
	if err := json.Unmarshal(b, &store); err != nil {
		return nil, fmt.Errorf("parse vault store: %w", err)
	}
	return store, nil
}

func (v *Vault) writeStore(store map[string]string) error {
	if err := fsutil.EnsureDir(filepath.Dir(v.path)); err != nil {
		return err
	}
	b, err := json.MarshalIndent(store, "", "  ")
	if err != nil {
		return err
	}
	return atomic.WriteFile(v.path, bytes.NewReader(b))
}

// seal encrypts plaintext and returns base64(nonce || ciphertext || tag).
func (v *Vault) seal(plaintext string) (string, error) {
	block, err := aes.NewCipher(v.key)
	if err != nil {
		return "", fmt.Errorf("aes.NewCipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("cipher.NewGCM: %w", err)
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("rand nonce: %w", err)
	}
	return base64.StdEncoding.EncodeToString(gcm.Seal(nonce, nonce, []byte(plaintext), nil)), nil
}

func (v *Vault) open(encoded string) (string, error) {
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("base64 decode: %w", err)
	}
	block, err := aes.NewCipher(v.key)
	if err != nil {
		return "", fmt.Errorf("aes.NewCipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("cipher.NewGCM: %w", err)
	}
	if len(data) < gcm.NonceSize() {
		return "", errors.New("ciphertext too short")
	}
	nonce, ciphertext := data[:gcm.NonceSize()], data[gcm.NonceSize():]
	plain, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("gcm.Open: %w", err)
	}
	return string(plain), nil
}

// loadOrCreateKey reads the machine key, generating one on first use.
func loadOrCreateKey(keyPath string) ([]byte, error) {
	if keyPath == "" {
		return nil, errors.New("empty key path")
	}
	b, err := os.ReadFile(keyPath)
	if err == nil {
		key, decErr := base64.StdEncoding.DecodeString(string(bytes.TrimSpace(b)))
		if decErr != nil || len(key) != keySize {
			return nil, fmt.Errorf("key file %s is not a valid %d-byte key", keyPath, keySize)
		}
		return key, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	key := make([]byte, keySize)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	if err := fsutil.EnsureDir(filepath.Dir(keyPath)); err != nil {
		return nil, err
	}
	if err := os.WriteFile(keyPath, []byte(base64.StdEncoding.EncodeToString(key)), 0o600); err != nil {
		return nil, fmt.Errorf("persist key: %w", err)
	}
	return key, nil
}

// unavailableError signals that the encryption primitive cannot be used.
type unavailableError struct{}

func (unavailableError) Error() string { return "encryption unavailable" }

// ErrUnavailable constructs the error returned by every vault operation
// when no usable encryption key exists.
func ErrUnavailable() error { return unavailableError{} }

// IsUnavailable reports whether err indicates the vault cannot encrypt.
func IsUnavailable(err error) bool {
	_, ok := err.(unavailableError)
	return ok
}
