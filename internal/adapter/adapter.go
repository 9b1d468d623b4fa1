// Package adapter is the local encrypted embedded database adapter: it
// owns one connection to the embedded engine, executes statements and
// multi-statement transactions, rotates the at-rest encryption key, and
// speaks the versioned JSON backup format.
package adapter

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/awnumar/memguard"
	"github.com/google/uuid"

	"github.com/a2f0/tearleads-securedb/internal/crypto"
	"github.com/a2f0/tearleads-securedb/internal/engine"
)

const (
	plainDBSuffix  = ".db"
	sealedDBSuffix = ".db.sealed"
)

// Config names the database and carries its key material. The key is a
// pass-through from the key manager; the adapter never generates one.
type Config struct {
	// Name is the logical database name; it becomes the on-disk file
	// name under Dir.
	Name string
	// Dir is where the sealed container (or the plain database when
	// SkipEncryption is set) lives. Defaults to the current directory.
	Dir string
	// EncryptionKey is the raw symmetric key. Required unless
	// SkipEncryption is set.
	EncryptionKey []byte
	// SkipEncryption opens the database file directly with no sealed
	// container around it.
	SkipEncryption bool
}

// Adapter holds at most one open connection. It assumes a single
// logical caller; operations are not fenced against concurrent use of
// the same instance.
type Adapter struct {
	session *engine.Session
	log     *slog.Logger

	cfg         Config
	initialized bool

	db  *sql.DB
	tx  *sql.Tx
	key *memguard.LockedBuffer

	// workPath is the live engine-native image. In encrypted mode it is
	// a private scratch file that gets resealed into containerPath
	// after every mutation boundary; otherwise it is the database
	// itself.
	workPath      string
	workDir       string
	containerPath string
}

type Option func(*Adapter)

func WithLogger(logger *slog.Logger) Option {
	return func(a *Adapter) { a.log = logger }
}

func New(session *engine.Session, opts ...Option) *Adapter {
	a := &Adapter{session: session}
	for _, opt := range opts {
		opt(a)
	}
	if a.log == nil {
		a.log = slog.Default()
	}
	return a
}

// Initialize opens the database exactly once per instance. A second
// call fails regardless of the config it carries, and a closed instance
// stays closed; construct a new Adapter instead.
func (a *Adapter) Initialize(ctx context.Context, cfg Config) error {
	if a.initialized {
		return ErrAlreadyInitialized
	}
	if cfg.Name == "" {
		return fmt.Errorf("%w: database name is required", ErrFailedToOpen)
	}
	if cfg.Dir == "" {
		cfg.Dir = "."
	}

	if err := a.open(ctx, cfg); err != nil {
		return err
	}
	a.initialized = true
	a.log.Info("database opened",
		slog.String("name", cfg.Name),
		slog.String("engine", a.session.EngineName()),
		slog.Bool("encrypted", !cfg.SkipEncryption))
	return nil
}

func (a *Adapter) open(ctx context.Context, cfg Config) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: engine panic: %v", ErrFailedToOpen, r)
		}
		if err != nil {
			a.discardWorkspace()
		}
	}()

	if cfg.SkipEncryption {
		a.workPath = filepath.Join(cfg.Dir, cfg.Name+plainDBSuffix)
	} else {
		if len(cfg.EncryptionKey) != crypto.KeySize {
			return fmt.Errorf("%w: key must be %d bytes", ErrFailedToOpen, crypto.KeySize)
		}
		a.key = memguard.NewBufferFromBytes(append([]byte(nil), cfg.EncryptionKey...))
		a.containerPath = filepath.Join(cfg.Dir, cfg.Name+sealedDBSuffix)

		workDir, mkErr := os.MkdirTemp("", "securedb-"+uuid.NewString())
		if mkErr != nil {
			return fmt.Errorf("%w: %w", ErrFailedToOpen, mkErr)
		}
		a.workDir = workDir
		a.workPath = filepath.Join(workDir, cfg.Name+plainDBSuffix)

		if unsealErr := a.unsealExistingContainer(); unsealErr != nil {
			return fmt.Errorf("%w: %w", ErrFailedToOpen, unsealErr)
		}
	}

	db, openErr := a.session.OpenDatabase(a.workPath)
	if openErr != nil {
		return fmt.Errorf("%w: %w", ErrFailedToOpen, openErr)
	}

	a.db = db
	a.cfg = cfg
	return nil
}

func (a *Adapter) unsealExistingContainer() error {
	sealed, err := os.ReadFile(a.containerPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read sealed container: %w", err)
	}

	image, err := crypto.OpenContainer(a.key, sealed)
	if err != nil {
		return err
	}
	defer memguard.WipeBytes(image)

	if err := os.WriteFile(a.workPath, image, 0o600); err != nil {
		return fmt.Errorf("write working image: %w", err)
	}
	return nil
}

// IsOpen reports whether the adapter currently holds a live connection.
func (a *Adapter) IsOpen() bool {
	return a.db != nil
}

// Close releases the connection and the scratch image. It is safe to
// call from any state, including after a failed Initialize or a failed
// import.
func (a *Adapter) Close() error {
	if a.db == nil {
		a.discardWorkspace()
		return nil
	}

	if a.tx != nil {
		_ = a.tx.Rollback()
		a.tx = nil
	}

	err := a.db.Close()
	a.db = nil
	a.discardWorkspace()
	if err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	a.log.Info("database closed", slog.String("name", a.cfg.Name))
	return nil
}

func (a *Adapter) discardWorkspace() {
	if a.workDir != "" {
		_ = os.RemoveAll(a.workDir)
		a.workDir = ""
	}
	if a.key != nil {
		a.key.Destroy()
		a.key = nil
	}
	a.workPath = ""
	a.containerPath = ""
}

// Rekey reseals the database under new key material. The previous key
// can no longer open it afterwards. On an unencrypted instance this is
// a permitted no-op: there is nothing to rekey.
func (a *Adapter) Rekey(ctx context.Context, newKey []byte) error {
	if !a.IsOpen() {
		return ErrNotInitialized
	}
	if a.tx != nil {
		return ErrTransactionActive
	}
	if a.cfg.SkipEncryption {
		return nil
	}
	if len(newKey) != crypto.KeySize {
		return fmt.Errorf("%w: key must be %d bytes", crypto.ErrInvalidKey, crypto.KeySize)
	}

	replacement := memguard.NewBufferFromBytes(append([]byte(nil), newKey...))
	previous := a.key
	a.key = replacement

	if err := a.seal(ctx); err != nil {
		a.key = previous
		replacement.Destroy()
		return err
	}

	previous.Destroy()
	a.log.Info("database rekeyed", slog.String("name", a.cfg.Name))
	return nil
}

// ExportRaw returns the engine-native snapshot of the live database
// image.
func (a *Adapter) ExportRaw(ctx context.Context) ([]byte, error) {
	if !a.IsOpen() {
		return nil, ErrNotInitialized
	}
	// The checkpoint needs the single pooled connection, which an
	// active transaction holds; running it now would block forever.
	if a.tx != nil {
		return nil, ErrTransactionActive
	}
	if err := a.checkpoint(ctx); err != nil {
		return nil, err
	}
	image, err := os.ReadFile(a.workPath)
	if err != nil {
		return nil, fmt.Errorf("read database image: %w", err)
	}
	return image, nil
}

// seal flushes the working image into the sealed container. No-op for
// unencrypted instances.
func (a *Adapter) seal(ctx context.Context) error {
	if a.cfg.SkipEncryption || a.db == nil {
		return nil
	}

	if err := a.checkpoint(ctx); err != nil {
		return err
	}
	image, err := os.ReadFile(a.workPath)
	if err != nil {
		return fmt.Errorf("read working image: %w", err)
	}
	defer memguard.WipeBytes(image)

	sealed, err := crypto.SealContainer(a.key, image)
	if err != nil {
		return err
	}

	tmp := a.containerPath + ".tmp"
	if err := os.WriteFile(tmp, sealed, 0o600); err != nil {
		return fmt.Errorf("write sealed container: %w", err)
	}
	if err := os.Rename(tmp, a.containerPath); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("replace sealed container: %w", err)
	}
	return nil
}

func (a *Adapter) checkpoint(ctx context.Context) error {
	if _, err := a.db.ExecContext(ctx, `PRAGMA wal_checkpoint(TRUNCATE)`); err != nil {
		return fmt.Errorf("wal checkpoint: %w", err)
	}
	return nil
}
