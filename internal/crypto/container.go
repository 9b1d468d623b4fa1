package crypto

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/awnumar/memguard"
	"golang.org/x/crypto/chacha20poly1305"
)

// Sealed container layout, all fields fixed-width before the ciphertext:
//
//	magic (5) | format version (1) | salt (16) | nonce (24) | ciphertext
//
// The ciphertext is the engine-native database image sealed with
// XChaCha20-Poly1305 under an HKDF subkey of the raw database key.
const (
	containerVersion = 1

	containerSaltLen = 16
)

var containerMagic = []byte("TLSDB")

var (
	ErrInvalidKey                 = errors.New("invalid database key")
	ErrInvalidContainer           = errors.New("invalid sealed container")
	ErrUnsupportedContainerFormat = errors.New("unsupported sealed container format")
)

// SealContainer encrypts an engine-native database image under rawKey.
func SealContainer(rawKey *memguard.LockedBuffer, image []byte) ([]byte, error) {
	if rawKey == nil || !rawKey.IsAlive() {
		return nil, fmt.Errorf("%w: key buffer is nil or destroyed", ErrInvalidKey)
	}
	if rawKey.Size() != KeySize {
		return nil, fmt.Errorf("%w: key must be %d bytes", ErrInvalidKey, KeySize)
	}

	salt, err := randomBytes(containerSaltLen)
	if err != nil {
		return nil, err
	}
	nonce, err := randomBytes(chacha20poly1305.NonceSizeX)
	if err != nil {
		return nil, err
	}

	sealKey, err := deriveContainerKey(rawKey.Bytes(), salt)
	if err != nil {
		return nil, err
	}
	defer memguard.WipeBytes(sealKey)

	header := containerHeader(salt, nonce)
	ciphertext, err := SealXChaCha20Poly1305(sealKey, nonce, image, header)
	if err != nil {
		return nil, fmt.Errorf("seal container: %w", err)
	}
	return append(header, ciphertext...), nil
}

// OpenContainer decrypts a sealed container back into the database image.
func OpenContainer(rawKey *memguard.LockedBuffer, sealed []byte) ([]byte, error) {
	if rawKey == nil || !rawKey.IsAlive() {
		return nil, fmt.Errorf("%w: key buffer is nil or destroyed", ErrInvalidKey)
	}
	if rawKey.Size() != KeySize {
		return nil, fmt.Errorf("%w: key must be %d bytes", ErrInvalidKey, KeySize)
	}

	headerLen := len(containerMagic) + 1 + containerSaltLen + chacha20poly1305.NonceSizeX
	if len(sealed) < headerLen {
		return nil, fmt.Errorf("%w: truncated header", ErrInvalidContainer)
	}
	if !bytes.Equal(sealed[:len(containerMagic)], containerMagic) {
		return nil, fmt.Errorf("%w: bad magic", ErrInvalidContainer)
	}
	if sealed[len(containerMagic)] != containerVersion {
		return nil, fmt.Errorf("%w: version %d", ErrUnsupportedContainerFormat, sealed[len(containerMagic)])
	}

	saltStart := len(containerMagic) + 1
	salt := sealed[saltStart : saltStart+containerSaltLen]
	nonce := sealed[saltStart+containerSaltLen : headerLen]

	sealKey, err := deriveContainerKey(rawKey.Bytes(), salt)
	if err != nil {
		return nil, err
	}
	defer memguard.WipeBytes(sealKey)

	image, err := OpenXChaCha20Poly1305(sealKey, nonce, sealed[headerLen:], sealed[:headerLen])
	if err != nil {
		return nil, fmt.Errorf("open container: %w", err)
	}
	return image, nil
}

// IsSealedContainer reports whether data begins with the container magic.
func IsSealedContainer(data []byte) bool {
	return len(data) >= len(containerMagic) && bytes.Equal(data[:len(containerMagic)], containerMagic)
}

func containerHeader(salt, nonce []byte) []byte {
	header := make([]byte, 0, len(containerMagic)+1+len(salt)+len(nonce))
	header = append(header, containerMagic...)
	header = append(header, containerVersion)
	header = append(header, salt...)
	header = append(header, nonce...)
	return header
}
