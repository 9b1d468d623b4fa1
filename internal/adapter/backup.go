package adapter

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"

	"github.com/awnumar/memguard"

	"github.com/a2f0/tearleads-securedb/internal/crypto"
)

// BackupVersion is the only backup document version this adapter reads
// or writes. Anything else is rejected outright, never migrated.
const BackupVersion = 1

// SchemaEntry is one table or index in a backup document, carrying its
// original creation statement verbatim.
type SchemaEntry struct {
	Name string `json:"name"`
	SQL  string `json:"sql"`
}

// BackupDocument is the versioned JSON schema-plus-data snapshot.
type BackupDocument struct {
	Version int              `json:"version"`
	Tables  []SchemaEntry    `json:"tables"`
	Indexes []SchemaEntry    `json:"indexes"`
	Data    map[string][]Row `json:"data"`
}

// ExportAsJSON walks the live schema catalog and emits the version 1
// backup document. Catalog rows that do not have the expected shape
// (non-text name, absent sql) are skipped silently; the export is
// best-effort complete rather than strict.
func (a *Adapter) ExportAsJSON(ctx context.Context) (string, error) {
	if !a.IsOpen() {
		return "", ErrNotInitialized
	}

	doc := BackupDocument{
		Version: BackupVersion,
		Tables:  []SchemaEntry{},
		Indexes: []SchemaEntry{},
		Data:    map[string][]Row{},
	}

	rows, err := a.runner().QueryContext(ctx,
		`SELECT name, sql, type FROM sqlite_master WHERE type IN ('table', 'index') ORDER BY rowid`)
	if err != nil {
		return "", fmt.Errorf("walk schema catalog: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var name, createSQL, kind any
		if err := rows.Scan(&name, &createSQL, &kind); err != nil {
			return "", fmt.Errorf("scan catalog row: %w", err)
		}

		entry, ok := catalogEntry(name, createSQL)
		if !ok {
			continue
		}
		switch kind {
		case "table":
			doc.Tables = append(doc.Tables, entry)
		case "index":
			doc.Indexes = append(doc.Indexes, entry)
		}
	}
	if err := rows.Err(); err != nil {
		return "", fmt.Errorf("iterate schema catalog: %w", err)
	}

	for _, table := range doc.Tables {
		_, data, err := a.queryRows(ctx, `SELECT * FROM `+quoteIdent(table.Name))
		if err != nil {
			return "", fmt.Errorf("export table %s: %w", table.Name, err)
		}
		doc.Data[table.Name] = data
	}

	out, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("encode backup document: %w", err)
	}
	return string(out), nil
}

// catalogEntry validates the shape of one sqlite_master row. System
// tables and rows whose name is not text are skipped; an absent
// creation statement becomes an empty sql string, which import treats
// as structurally absent.
func catalogEntry(name, createSQL any) (SchemaEntry, bool) {
	text, ok := name.(string)
	if !ok || strings.HasPrefix(text, "sqlite_") {
		return SchemaEntry{}, false
	}
	stmt, _ := createSQL.(string)
	return SchemaEntry{Name: text, SQL: stmt}, true
}

// ImportFromJSON restores a backup document into a fresh database. The
// document is validated in full before any mutation. Replay runs inside
// one transaction; on any failure the transaction is rolled back and
// the connection is closed so no partially-populated database is left
// open.
func (a *Adapter) ImportFromJSON(ctx context.Context, document string, key []byte) error {
	if !a.IsOpen() {
		return ErrNotInitialized
	}
	if a.tx != nil {
		return ErrTransactionActive
	}

	doc, err := parseBackupDocument([]byte(document))
	if err != nil {
		return err
	}
	if doc.Version != BackupVersion {
		return fmt.Errorf("%w: got %d, want %d", ErrUnsupportedBackupVersion, doc.Version, BackupVersion)
	}

	if len(key) > 0 && !a.cfg.SkipEncryption {
		if len(key) != crypto.KeySize {
			return fmt.Errorf("%w: key must be %d bytes", ErrFailedToImport, crypto.KeySize)
		}
		replacement := memguard.NewBufferFromBytes(append([]byte(nil), key...))
		a.key.Destroy()
		a.key = replacement
	}

	if err := a.replaceWithFreshDatabase(ctx, doc); err != nil {
		_ = a.Close()
		return fmt.Errorf("%w: %w", ErrFailedToImport, err)
	}

	a.log.Info("database imported from backup",
		slog.String("name", a.cfg.Name),
		slog.Int("tables", len(doc.Tables)),
		slog.Int("indexes", len(doc.Indexes)))
	return nil
}

func (a *Adapter) replaceWithFreshDatabase(ctx context.Context, doc BackupDocument) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("replay panic: %v", r)
		}
	}()

	if err := a.db.Close(); err != nil {
		return fmt.Errorf("close previous database: %w", err)
	}
	a.db = nil

	for _, suffix := range []string{"", "-wal", "-shm"} {
		if err := os.Remove(a.workPath + suffix); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("reset database image: %w", err)
		}
	}

	db, err := a.session.OpenDatabase(a.workPath)
	if err != nil {
		return fmt.Errorf("open fresh database: %w", err)
	}
	a.db = db

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin restore: %w", err)
	}
	if err := replayDocument(ctx, tx, doc); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit restore: %w", err)
	}
	return a.seal(ctx)
}

func replayDocument(ctx context.Context, tx *sql.Tx, doc BackupDocument) error {
	for _, table := range doc.Tables {
		if table.SQL == "" {
			continue
		}
		if _, err := tx.ExecContext(ctx, table.SQL); err != nil {
			return fmt.Errorf("replay table %s: %w", table.Name, err)
		}
	}
	for _, index := range doc.Indexes {
		if index.SQL == "" {
			continue
		}
		if _, err := tx.ExecContext(ctx, index.SQL); err != nil {
			return fmt.Errorf("replay index %s: %w", index.Name, err)
		}
	}

	for _, name := range dataTableOrder(doc) {
		for _, row := range doc.Data[name] {
			if len(row) == 0 {
				continue
			}
			if err := insertRow(ctx, tx, name, row); err != nil {
				return err
			}
		}
	}
	return nil
}

// dataTableOrder replays data in table-creation order first, then any
// data-only keys in sorted order so restores are deterministic.
func dataTableOrder(doc BackupDocument) []string {
	seen := map[string]bool{}
	order := []string{}
	for _, table := range doc.Tables {
		if _, ok := doc.Data[table.Name]; ok && !seen[table.Name] {
			seen[table.Name] = true
			order = append(order, table.Name)
		}
	}

	rest := []string{}
	for name := range doc.Data {
		if !seen[name] {
			rest = append(rest, name)
		}
	}
	sort.Strings(rest)
	return append(order, rest...)
}

func insertRow(ctx context.Context, tx *sql.Tx, table string, row Row) error {
	columns := make([]string, 0, len(row))
	for column := range row {
		columns = append(columns, column)
	}
	sort.Strings(columns)

	quoted := make([]string, len(columns))
	holders := make([]string, len(columns))
	values := make([]any, len(columns))
	for i, column := range columns {
		quoted[i] = quoteIdent(column)
		holders[i] = "?"
		values[i] = row[column]
	}

	stmt := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		quoteIdent(table), strings.Join(quoted, ", "), strings.Join(holders, ", "))
	if _, err := tx.ExecContext(ctx, stmt, values...); err != nil {
		return fmt.Errorf("restore row into %s: %w", table, err)
	}
	return nil
}

// Import inspects the payload and delegates JSON backup documents to
// ImportFromJSON. Raw engine-native database files are not supported:
// restore is backup-format-only so the adapter never couples to a
// binary on-disk layout across engine versions.
func (a *Adapter) Import(ctx context.Context, payload []byte, key []byte) error {
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 || !json.Valid(trimmed) {
		return ErrBinaryImportUnsupported
	}
	return a.ImportFromJSON(ctx, string(trimmed), key)
}

// parseBackupDocument validates the document structurally before any
// database mutation: version must be an integer, tables and indexes
// sequences of {name, sql} string pairs, and data a mapping of row
// sequences.
func parseBackupDocument(raw []byte) (BackupDocument, error) {
	var probe struct {
		Version *json.RawMessage `json:"version"`
		Tables  *json.RawMessage `json:"tables"`
		Indexes *json.RawMessage `json:"indexes"`
		Data    *json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return BackupDocument{}, fmt.Errorf("%w: %v", ErrInvalidBackupFormat, err)
	}
	if probe.Version == nil || probe.Tables == nil || probe.Indexes == nil || probe.Data == nil {
		return BackupDocument{}, fmt.Errorf("%w: version, tables, indexes and data are required", ErrInvalidBackupFormat)
	}

	doc := BackupDocument{}
	if err := json.Unmarshal(*probe.Version, &doc.Version); err != nil {
		return BackupDocument{}, fmt.Errorf("%w: version must be an integer", ErrInvalidBackupFormat)
	}
	if err := json.Unmarshal(*probe.Tables, &doc.Tables); err != nil {
		return BackupDocument{}, fmt.Errorf("%w: tables must be a sequence of name/sql entries", ErrInvalidBackupFormat)
	}
	if err := json.Unmarshal(*probe.Indexes, &doc.Indexes); err != nil {
		return BackupDocument{}, fmt.Errorf("%w: indexes must be a sequence of name/sql entries", ErrInvalidBackupFormat)
	}
	if err := json.Unmarshal(*probe.Data, &doc.Data); err != nil {
		return BackupDocument{}, fmt.Errorf("%w: data must map table names to row sequences", ErrInvalidBackupFormat)
	}
	return doc, nil
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
