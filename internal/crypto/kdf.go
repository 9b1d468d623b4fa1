package crypto

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

const containerKeyInfo = "tearleads-container-key-v1"

var ErrInvalidHKDFInput = errors.New("invalid hkdf input")

func DeriveHKDFSHA256(ikm, salt, info []byte, length int) ([]byte, error) {
	if len(ikm) == 0 {
		return nil, fmt.Errorf("%w: ikm must not be empty", ErrInvalidHKDFInput)
	}
	if length <= 0 {
		return nil, fmt.Errorf("%w: length must be > 0", ErrInvalidHKDFInput)
	}

	r := hkdf.New(sha256.New, ikm, salt, info)
	out := make([]byte, length)
	if _, err := io.ReadFull(r, out); err != nil {
		return nil, fmt.Errorf("derive hkdf-sha256 output: %w", err)
	}
	return out, nil
}

// deriveContainerKey binds the sealing key to the container salt so that
// reusing the same raw key across databases never reuses a cipher key.
func deriveContainerKey(rawKey, salt []byte) ([]byte, error) {
	key, err := DeriveHKDFSHA256(rawKey, salt, []byte(containerKeyInfo), KeySize)
	if err != nil {
		return nil, fmt.Errorf("derive container key: %w", err)
	}
	return key, nil
}
