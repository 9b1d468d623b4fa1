// Package keyring supplies raw database key material to the adapter.
// Keys are always generated and rotated here; the adapter itself never
// creates or persists key material.
package keyring

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/a2f0/tearleads-securedb/internal/crypto"
)

var (
	ErrInvalidKeyMaterial = errors.New("invalid key material")
	ErrKeyFileMissing     = errors.New("key file missing")
)

// Provider supplies the current database key and rotates it in place.
type Provider interface {
	DatabaseKey() ([]byte, error)
	Rotate() ([]byte, error)
}

// GenerateKey returns fresh random key material of the required length.
func GenerateKey() ([]byte, error) {
	key := make([]byte, crypto.KeySize)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	return key, nil
}

// StaticProvider serves a fixed key. Rotation swaps the key in memory
// only; it is meant for tests and embedded callers that manage
// persistence themselves.
type StaticProvider struct {
	key []byte
}

func NewStaticProvider(key []byte) (*StaticProvider, error) {
	if len(key) != crypto.KeySize {
		return nil, fmt.Errorf("%w: key must be %d bytes", ErrInvalidKeyMaterial, crypto.KeySize)
	}
	return &StaticProvider{key: append([]byte(nil), key...)}, nil
}

func (p *StaticProvider) DatabaseKey() ([]byte, error) {
	return append([]byte(nil), p.key...), nil
}

func (p *StaticProvider) Rotate() ([]byte, error) {
	key, err := GenerateKey()
	if err != nil {
		return nil, err
	}
	p.key = key
	return append([]byte(nil), key...), nil
}

// FileProvider reads and writes hex-encoded key material in a 0600
// file, the way the CLI host stores its database key.
type FileProvider struct {
	path string
}

func NewFileProvider(path string) *FileProvider {
	return &FileProvider{path: path}
}

func (p *FileProvider) DatabaseKey() ([]byte, error) {
	raw, err := os.ReadFile(p.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrKeyFileMissing, p.path)
		}
		return nil, fmt.Errorf("read key file: %w", err)
	}

	key, err := hex.DecodeString(strings.TrimSpace(string(raw)))
	if err != nil {
		return nil, fmt.Errorf("%w: key file is not hex: %v", ErrInvalidKeyMaterial, err)
	}
	if len(key) != crypto.KeySize {
		return nil, fmt.Errorf("%w: key must be %d bytes, got %d", ErrInvalidKeyMaterial, crypto.KeySize, len(key))
	}
	return key, nil
}

func (p *FileProvider) Rotate() ([]byte, error) {
	key, err := GenerateKey()
	if err != nil {
		return nil, err
	}
	if err := p.Write(key); err != nil {
		return nil, err
	}
	return key, nil
}

// Write persists key material to the key file, creating it 0600.
func (p *FileProvider) Write(key []byte) error {
	if len(key) != crypto.KeySize {
		return fmt.Errorf("%w: key must be %d bytes", ErrInvalidKeyMaterial, crypto.KeySize)
	}
	if err := os.WriteFile(p.path, []byte(hex.EncodeToString(key)+"\n"), 0o600); err != nil {
		return fmt.Errorf("write key file: %w", err)
	}
	return nil
}
