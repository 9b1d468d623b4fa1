package adapter

import (
	"bytes"
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/a2f0/tearleads-securedb/internal/crypto"
	"github.com/a2f0/tearleads-securedb/internal/engine"
)

func newTestSession(t *testing.T) *engine.Session {
	t.Helper()
	return newSessionForModule(t, engine.SQLiteModuleName)
}

func newSessionForModule(t *testing.T, moduleName string) *engine.Session {
	t.Helper()

	dir := t.TempDir()
	binary := []byte("test engine binary")
	sum := sha256.Sum256(binary)

	desc, err := json.Marshal(engine.Descriptor{
		Name:    moduleName,
		Version: "test",
		Binary:  "engine.bin",
		SHA256:  hex.EncodeToString(sum[:]),
	})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, engine.DescriptorFileName), desc, 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "engine.bin"), binary, 0o600))

	handle, err := engine.NewLoader(dir).Load(context.Background())
	require.NoError(t, err)
	return handle.Session()
}

func testKey(fill byte) []byte {
	return bytes.Repeat([]byte{fill}, crypto.KeySize)
}

func openTestAdapter(t *testing.T, name string) (*Adapter, string) {
	t.Helper()

	dir := t.TempDir()
	a := New(newTestSession(t))
	err := a.Initialize(context.Background(), Config{
		Name:          name,
		Dir:           dir,
		EncryptionKey: testKey(0x24),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	return a, dir
}

func TestInitializeTwiceFails(t *testing.T) {
	t.Parallel()

	a, dir := openTestAdapter(t, "twice")

	err := a.Initialize(context.Background(), Config{
		Name:          "different",
		Dir:           dir,
		EncryptionKey: testKey(0x42),
	})
	require.ErrorIs(t, err, ErrAlreadyInitialized)
	require.True(t, a.IsOpen())
}

func TestInitializeAfterCloseStillFails(t *testing.T) {
	t.Parallel()

	a, dir := openTestAdapter(t, "reinit")
	require.NoError(t, a.Close())

	err := a.Initialize(context.Background(), Config{
		Name:          "reinit",
		Dir:           dir,
		EncryptionKey: testKey(0x24),
	})
	require.ErrorIs(t, err, ErrAlreadyInitialized)
}

func TestOperationsBeforeInitializeFail(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	a := New(newTestSession(t))

	_, err := a.Execute(ctx, `SELECT 1`)
	require.ErrorIs(t, err, ErrNotInitialized)
	require.ErrorIs(t, a.ExecuteMany(ctx, []string{`SELECT 1`}), ErrNotInitialized)
	require.ErrorIs(t, a.BeginTransaction(ctx), ErrNotInitialized)
	require.ErrorIs(t, a.Rekey(ctx, testKey(0x01)), ErrNotInitialized)
	_, err = a.ExportAsJSON(ctx)
	require.ErrorIs(t, err, ErrNotInitialized)
	_, err = a.ExportRaw(ctx)
	require.ErrorIs(t, err, ErrNotInitialized)
}

func TestInitializeWithBadKeyLengthFailsAndCloseIsSafe(t *testing.T) {
	t.Parallel()

	a := New(newTestSession(t))
	err := a.Initialize(context.Background(), Config{
		Name:          "badkey",
		Dir:           t.TempDir(),
		EncryptionKey: []byte("short"),
	})
	require.ErrorIs(t, err, ErrFailedToOpen)
	require.False(t, a.IsOpen())
	require.NoError(t, a.Close())
}

func TestExecuteInsertAndSelect(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	a, _ := openTestAdapter(t, "t1")

	_, err := a.Execute(ctx, `CREATE TABLE t(id INTEGER PRIMARY KEY, v TEXT)`)
	require.NoError(t, err)

	res, err := a.Execute(ctx, `INSERT INTO t(v) VALUES ('x')`)
	require.NoError(t, err)
	require.Equal(t, int64(1), res.Changes)
	require.Greater(t, res.LastInsertRowID, int64(0))

	sel, err := a.Execute(ctx, `SELECT v FROM t WHERE id = ?`, res.LastInsertRowID)
	require.NoError(t, err)
	require.Len(t, sel.Rows, 1)
	require.Equal(t, "x", sel.Rows[0]["v"])
	require.Zero(t, sel.Changes)
}

func TestEncryptedDatabaseSurvivesReopenAndRejectsWrongKey(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	dir := t.TempDir()
	session := newTestSession(t)

	first := New(session)
	require.NoError(t, first.Initialize(ctx, Config{Name: "vault", Dir: dir, EncryptionKey: testKey(0x24)}))
	_, err := first.Execute(ctx, `CREATE TABLE notes(id INTEGER PRIMARY KEY, body TEXT)`)
	require.NoError(t, err)
	_, err = first.Execute(ctx, `INSERT INTO notes(body) VALUES ('sealed')`)
	require.NoError(t, err)
	require.NoError(t, first.Close())

	wrong := New(session)
	err = wrong.Initialize(ctx, Config{Name: "vault", Dir: dir, EncryptionKey: testKey(0x42)})
	require.ErrorIs(t, err, ErrFailedToOpen)
	require.False(t, wrong.IsOpen())

	second := New(session)
	require.NoError(t, second.Initialize(ctx, Config{Name: "vault", Dir: dir, EncryptionKey: testKey(0x24)}))
	defer func() { require.NoError(t, second.Close()) }()

	res, err := second.Execute(ctx, `SELECT body FROM notes`)
	require.NoError(t, err)
	require.Len(t, res.Rows, 1)
	require.Equal(t, "sealed", res.Rows[0]["body"])
}

func TestSealedContainerIsNotPlaintext(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	a, dir := openTestAdapter(t, "opaque")

	_, err := a.Execute(ctx, `CREATE TABLE t(v TEXT)`)
	require.NoError(t, err)
	_, err = a.Execute(ctx, `INSERT INTO t(v) VALUES ('visible-marker')`)
	require.NoError(t, err)

	sealed, err := os.ReadFile(filepath.Join(dir, "opaque.db.sealed"))
	require.NoError(t, err)
	require.True(t, crypto.IsSealedContainer(sealed))
	require.NotContains(t, string(sealed), "visible-marker")
	require.False(t, bytes.HasPrefix(sealed, []byte("SQLite format 3")))
}

func TestSkipEncryptionOpensPlainFile(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	dir := t.TempDir()
	a := New(newTestSession(t))
	require.NoError(t, a.Initialize(ctx, Config{Name: "plain", Dir: dir, SkipEncryption: true}))
	defer func() { require.NoError(t, a.Close()) }()

	_, err := a.Execute(ctx, `CREATE TABLE t(v TEXT)`)
	require.NoError(t, err)

	_, err = os.Stat(filepath.Join(dir, "plain.db"))
	require.NoError(t, err)
}

func TestRekeyRotatesContainerKey(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	dir := t.TempDir()
	session := newTestSession(t)

	a := New(session)
	require.NoError(t, a.Initialize(ctx, Config{Name: "rotate", Dir: dir, EncryptionKey: testKey(0x01)}))
	_, err := a.Execute(ctx, `CREATE TABLE t(v TEXT)`)
	require.NoError(t, err)
	_, err = a.Execute(ctx, `INSERT INTO t(v) VALUES ('kept')`)
	require.NoError(t, err)

	require.NoError(t, a.Rekey(ctx, testKey(0x02)))
	require.NoError(t, a.Close())

	old := New(session)
	err = old.Initialize(ctx, Config{Name: "rotate", Dir: dir, EncryptionKey: testKey(0x01)})
	require.ErrorIs(t, err, ErrFailedToOpen)

	rotated := New(session)
	require.NoError(t, rotated.Initialize(ctx, Config{Name: "rotate", Dir: dir, EncryptionKey: testKey(0x02)}))
	defer func() { require.NoError(t, rotated.Close()) }()

	res, err := rotated.Execute(ctx, `SELECT v FROM t`)
	require.NoError(t, err)
	require.Len(t, res.Rows, 1)
	require.Equal(t, "kept", res.Rows[0]["v"])
}

func TestRekeyOnUnencryptedInstanceIsNoOp(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	a := New(newTestSession(t))
	require.NoError(t, a.Initialize(ctx, Config{Name: "plain", Dir: t.TempDir(), SkipEncryption: true}))
	defer func() { require.NoError(t, a.Close()) }()

	require.NoError(t, a.Rekey(ctx, testKey(0x7f)))
	require.True(t, a.IsOpen())
}

func TestExecuteManyIsAtomic(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	a, _ := openTestAdapter(t, "batch")

	err := a.ExecuteMany(ctx, []string{
		`CREATE TABLE batch_a(id INTEGER PRIMARY KEY)`,
		`INSERT INTO batch_a(id) VALUES (1)`,
		`THIS IS NOT SQL`,
	})
	require.Error(t, err)

	res, err := a.Execute(ctx,
		`SELECT name FROM sqlite_master WHERE type = 'table' AND name = 'batch_a'`)
	require.NoError(t, err)
	require.Empty(t, res.Rows)
}

func TestExecuteManyCommitsWholeBatch(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	a, _ := openTestAdapter(t, "batchok")

	require.NoError(t, a.ExecuteMany(ctx, []string{
		`CREATE TABLE batch_b(id INTEGER PRIMARY KEY, v TEXT)`,
		`INSERT INTO batch_b(v) VALUES ('one')`,
		`INSERT INTO batch_b(v) VALUES ('two')`,
	}))

	res, err := a.Execute(ctx, `SELECT v FROM batch_b ORDER BY id`)
	require.NoError(t, err)
	require.Len(t, res.Rows, 2)
}

func TestTransactionStateMachine(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	a, _ := openTestAdapter(t, "txn")

	require.ErrorIs(t, a.CommitTransaction(ctx), ErrNoTransaction)
	require.ErrorIs(t, a.RollbackTransaction(ctx), ErrNoTransaction)

	require.NoError(t, a.BeginTransaction(ctx))
	require.True(t, a.InTransaction())
	require.ErrorIs(t, a.BeginTransaction(ctx), ErrTransactionActive)

	require.NoError(t, a.CommitTransaction(ctx))
	require.False(t, a.InTransaction())
}

func TestTransactionRollbackDiscardsWrites(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	a, _ := openTestAdapter(t, "rollback")

	_, err := a.Execute(ctx, `CREATE TABLE t(v TEXT)`)
	require.NoError(t, err)

	require.NoError(t, a.BeginTransaction(ctx))
	_, err = a.Execute(ctx, `INSERT INTO t(v) VALUES ('discarded')`)
	require.NoError(t, err)
	require.NoError(t, a.RollbackTransaction(ctx))

	res, err := a.Execute(ctx, `SELECT v FROM t`)
	require.NoError(t, err)
	require.Empty(t, res.Rows)
}

func TestTransactionCommitKeepsWrites(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	a, _ := openTestAdapter(t, "commit")

	_, err := a.Execute(ctx, `CREATE TABLE t(v TEXT)`)
	require.NoError(t, err)

	require.NoError(t, a.BeginTransaction(ctx))
	_, err = a.Execute(ctx, `INSERT INTO t(v) VALUES ('kept')`)
	require.NoError(t, err)
	require.NoError(t, a.CommitTransaction(ctx))

	res, err := a.Execute(ctx, `SELECT v FROM t`)
	require.NoError(t, err)
	require.Len(t, res.Rows, 1)
}

func TestExportRawAndRekeyRejectedDuringTransaction(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	a, _ := openTestAdapter(t, "txguard")

	require.NoError(t, a.BeginTransaction(ctx))
	_, err := a.ExportRaw(ctx)
	require.ErrorIs(t, err, ErrTransactionActive)
	require.ErrorIs(t, a.Rekey(ctx, testKey(0x33)), ErrTransactionActive)
	require.NoError(t, a.CommitTransaction(ctx))

	_, err = a.ExportRaw(ctx)
	require.NoError(t, err)
	require.NoError(t, a.Rekey(ctx, testKey(0x33)))
}

// panicOnOpenModule stands in for an engine whose open factory throws
// instead of returning an error.
type panicOnOpenModule struct{}

func (panicOnOpenModule) OpenDatabase(path string) (*sql.DB, error) {
	panic("engine open exploded")
}

func (panicOnOpenModule) Capabilities() engine.Capabilities {
	return engine.Capabilities{engine.CapOpenDatabase: "always panics"}
}

func TestInitializeWrapsEnginePanic(t *testing.T) {
	t.Parallel()

	engine.Register("open-panics", panicOnOpenModule{})
	a := New(newSessionForModule(t, "open-panics"))

	err := a.Initialize(context.Background(), Config{
		Name:          "doomed",
		Dir:           t.TempDir(),
		EncryptionKey: testKey(0x24),
	})
	require.ErrorIs(t, err, ErrFailedToOpen)
	require.Contains(t, err.Error(), "engine open exploded")
	require.False(t, a.IsOpen())
	require.NoError(t, a.Close())
}

func TestCommentLeadingSelectReturnsRows(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	a, _ := openTestAdapter(t, "comments")
	seedBackupFixture(t, a)

	res, err := a.Execute(ctx, "-- contacts by id\nSELECT name FROM contacts ORDER BY id")
	require.NoError(t, err)
	require.Len(t, res.Rows, 2)
	require.Equal(t, "ada", res.Rows[0]["name"])

	res, err = a.Execute(ctx, "/* leading\n   block comment */ SELECT name FROM contacts WHERE id = 2")
	require.NoError(t, err)
	require.Len(t, res.Rows, 1)
	require.Equal(t, "brin", res.Rows[0]["name"])
}

func TestStripLeadingComments(t *testing.T) {
	t.Parallel()

	require.Equal(t, "SELECT 1", stripLeadingComments("  -- a\n/* b */ SELECT 1"))
	require.Equal(t, "", stripLeadingComments("-- only a comment"))
	require.Equal(t, "", stripLeadingComments("/* unterminated"))
	require.True(t, isReadStatement("-- note\nselect 1"))
	require.False(t, isReadStatement("-- note\nINSERT INTO t VALUES (1)"))
}

func TestExportRawReturnsEngineNativeImage(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	a, _ := openTestAdapter(t, "raw")

	_, err := a.Execute(ctx, `CREATE TABLE t(v TEXT)`)
	require.NoError(t, err)

	image, err := a.ExportRaw(ctx)
	require.NoError(t, err)
	require.True(t, bytes.HasPrefix(image, []byte("SQLite format 3\x00")))
}
