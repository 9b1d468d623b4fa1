package engine

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// DescriptorFileName is the engine bundle's module descriptor, expected
// next to the engine's compiled binary asset.
const DescriptorFileName = "engine.json"

var ErrInvalidDescriptor = errors.New("invalid engine descriptor")

// Descriptor describes an engine bundle on disk: which registered module
// implements it, where its binary asset lives, and the capability names
// the module must advertise.
type Descriptor struct {
	Name         string   `json:"name"`
	Version      string   `json:"version"`
	Binary       string   `json:"binary"`
	SHA256       string   `json:"sha256"`
	Capabilities []string `json:"capabilities"`
}

func ParseDescriptor(data []byte) (Descriptor, error) {
	var desc Descriptor
	if err := json.Unmarshal(data, &desc); err != nil {
		return Descriptor{}, fmt.Errorf("%w: %v", ErrInvalidDescriptor, err)
	}
	if strings.TrimSpace(desc.Name) == "" {
		return Descriptor{}, fmt.Errorf("%w: name is required", ErrInvalidDescriptor)
	}
	if strings.TrimSpace(desc.Binary) == "" {
		return Descriptor{}, fmt.Errorf("%w: binary is required", ErrInvalidDescriptor)
	}
	if strings.Contains(desc.Binary, "/") || strings.Contains(desc.Binary, "\\") {
		return Descriptor{}, fmt.Errorf("%w: binary must be a bare file name", ErrInvalidDescriptor)
	}
	return desc, nil
}
