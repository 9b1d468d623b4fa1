package engine

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

var (
	ErrModuleNotFound    = errors.New("engine module descriptor not found")
	ErrBinaryNotFound    = errors.New("engine binary asset not found")
	ErrInterfaceMissing  = errors.New("engine module missing required interface")
	ErrChecksumMismatch  = errors.New("engine binary checksum mismatch")
	ErrModuleUnavailable = errors.New("engine module not registered")
)

// Loader validates and loads one engine bundle. Loading is performed at
// most once per Loader; every subsequent Load returns the same handle.
type Loader struct {
	bundleDir string
	fetcher   Fetcher
	log       *slog.Logger

	once   sync.Once
	handle *Handle
	err    error
}

type LoaderOption func(*Loader)

// WithFetcher overrides the asset fetcher, e.g. for hosts that serve
// engine binaries over the network instead of local disk.
func WithFetcher(f Fetcher) LoaderOption {
	return func(l *Loader) { l.fetcher = f }
}

func WithLogger(logger *slog.Logger) LoaderOption {
	return func(l *Loader) { l.log = logger }
}

func NewLoader(bundleDir string, opts ...LoaderOption) *Loader {
	l := &Loader{bundleDir: bundleDir}
	for _, opt := range opts {
		opt(l)
	}
	if l.fetcher == nil {
		client := &http.Client{}
		InstallFileTransport(client)
		l.fetcher = ClientFetcher{Client: client}
	}
	if l.log == nil {
		l.log = slog.Default()
	}
	return l
}

// Load validates the bundle and resolves the engine module. The
// descriptor file and the binary asset are both checked before anything
// is loaded so a broken install fails with a named error instead of an
// opaque one from deeper in the stack.
func (l *Loader) Load(ctx context.Context) (*Handle, error) {
	l.once.Do(func() {
		l.handle, l.err = l.load(ctx)
	})
	return l.handle, l.err
}

func (l *Loader) load(ctx context.Context) (*Handle, error) {
	descriptorPath := filepath.Join(l.bundleDir, DescriptorFileName)
	if _, err := os.Stat(descriptorPath); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrModuleNotFound, descriptorPath)
	}

	raw, err := os.ReadFile(descriptorPath)
	if err != nil {
		return nil, fmt.Errorf("read engine descriptor: %w", err)
	}
	desc, err := ParseDescriptor(raw)
	if err != nil {
		return nil, err
	}

	binaryPath := filepath.Join(l.bundleDir, desc.Binary)
	if _, err := os.Stat(binaryPath); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrBinaryNotFound, binaryPath)
	}

	binary, err := l.fetcher.Fetch(ctx, fileURL(binaryPath))
	if err != nil {
		return nil, fmt.Errorf("load engine binary: %w", err)
	}
	if desc.SHA256 != "" {
		sum := sha256.Sum256(binary)
		if !strings.EqualFold(hex.EncodeToString(sum[:]), desc.SHA256) {
			return nil, fmt.Errorf("%w: %s", ErrChecksumMismatch, desc.Binary)
		}
	}

	value, ok := lookupModule(desc.Name)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrModuleUnavailable, desc.Name)
	}
	module, ok := value.(Module)
	if !ok {
		return nil, fmt.Errorf("%w: %q does not expose the open-database factory", ErrInterfaceMissing, desc.Name)
	}
	caps := module.Capabilities()
	if !caps.Has(CapOpenDatabase) {
		return nil, fmt.Errorf("%w: %q does not advertise %s", ErrInterfaceMissing, desc.Name, CapOpenDatabase)
	}

	l.log.Debug("engine loaded",
		slog.String("engine", desc.Name),
		slog.String("version", desc.Version),
		slog.Int("binary_bytes", len(binary)))

	return &Handle{descriptor: desc, module: module}, nil
}

func fileURL(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	return "file://" + filepath.ToSlash(abs)
}

// Handle is the process-wide view of a loaded engine. Adapter instances
// hold their own Session over the shared handle.
type Handle struct {
	descriptor Descriptor
	module     Module
}

func (h *Handle) Descriptor() Descriptor {
	return h.descriptor
}

func (h *Handle) Session() *Session {
	return &Session{module: h.module, descriptor: h.descriptor}
}

// Session is one adapter's logical view of the engine.
type Session struct {
	module     Module
	descriptor Descriptor
}

func (s *Session) OpenDatabase(path string) (*sql.DB, error) {
	return s.module.OpenDatabase(path)
}

func (s *Session) Capabilities() Capabilities {
	return s.module.Capabilities()
}

func (s *Session) EngineName() string {
	return s.descriptor.Name
}
