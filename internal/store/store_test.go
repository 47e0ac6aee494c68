package store

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/govkit/internal/dao"
	"github.com/roach88/govkit/internal/ir"
	"github.com/roach88/govkit/internal/ledger"
	"github.com/roach88/govkit/internal/permission"
)

var (
	deployer = ir.LabelAddress("deployer")
	owner    = ir.LabelAddress("owner")
	alice    = ir.LabelAddress("alice")
)

// createTestStore creates a new store in a temporary directory.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// TestOpen_CreatesNewDatabase tests that Open creates the file and tables.
func TestOpen_CreatesNewDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()

	_, err = os.Stat(path)
	require.NoError(t, err)

	for _, table := range []string{"transactions", "events"} {
		var name string
		err := s.db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		assert.NoError(t, err, "table %q", table)
	}
}

// TestOpen_Idempotent tests that reopening keeps the schema and version.
func TestOpen_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	for i := 0; i < 3; i++ {
		s, err := Open(path)
		require.NoError(t, err, "iteration %d", i)
		require.NoError(t, s.Close())
	}

	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()

	var version int
	require.NoError(t, s.db.QueryRow("PRAGMA user_version").Scan(&version))
	assert.Equal(t, currentSchemaVersion, version)
}

// TestOpen_Pragmas tests the connection configuration.
func TestOpen_Pragmas(t *testing.T) {
	s := createTestStore(t)
	assert.NoError(t, s.verifyPragma("journal_mode", "wal"))
	assert.NoError(t, s.verifyPragma("synchronous", "1"))
	assert.NoError(t, s.verifyPragma("busy_timeout", "5000"))
	assert.NoError(t, s.verifyPragma("foreign_keys", "1"))
}

// TestOpen_InvalidPath tests that an unreachable path fails.
func TestOpen_InvalidPath(t *testing.T) {
	_, err := Open("/nonexistent/dir/test.db")
	assert.Error(t, err)
}

// TestRecordTransaction tests committed and reverted receipts.
func TestRecordTransaction(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	committed := ledger.Receipt{
		Seq:    1,
		ID:     "tx-0001",
		Sender: alice,
		Label:  "grant",
		Events: []ir.Event{
			{Emitter: owner, Name: "Ping", Fields: ir.Fields{"n": 1, "who": alice.String()}},
			{Emitter: alice, Name: "Pong"},
		},
	}
	reverted := ledger.Receipt{
		Seq:    2,
		ID:     "tx-0002",
		Sender: alice,
		Label:  "revoke",
		Err:    ir.NewError(ir.ErrCodeAlreadyRevoked, "permission is not granted"),
	}
	require.NoError(t, s.RecordTransaction(ctx, committed))
	require.NoError(t, s.RecordTransaction(ctx, reverted))
	require.NoError(t, s.RecordTransaction(ctx, committed), "re-recording is a no-op")

	txs, err := s.ReadTransactions(ctx)
	require.NoError(t, err)
	require.Len(t, txs, 2)
	assert.Equal(t, "committed", txs[0].Status)
	assert.Equal(t, alice.String(), txs[0].Sender)
	assert.Equal(t, "reverted", txs[1].Status)
	assert.Equal(t, "ALREADY_REVOKED", txs[1].ErrorCode)
	assert.Contains(t, txs[1].Error, "permission is not granted")

	events, err := s.ReadEvents(ctx, EventFilter{})
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "Ping", events[0].Name)
	assert.Equal(t, 0, events[0].Index)
	assert.Equal(t, alice.String(), events[0].Fields["who"])
	assert.Equal(t, json.Number("1"), events[0].Fields["n"])
	assert.Equal(t, ir.Fields{}, events[1].Fields)

	filtered, err := s.ReadEvents(ctx, EventFilter{Emitter: alice})
	require.NoError(t, err)
	require.Len(t, filtered, 1)
	assert.Equal(t, "Pong", filtered[0].Name)

	last, err := s.LastSeq(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), last)

	tx, err := s.ReadTransaction(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, "revoke", tx.Label)
}

// TestRecordTransaction_UnsupportedField tests that a field canonical JSON
// cannot encode fails the write and leaves nothing behind.
func TestRecordTransaction_UnsupportedField(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	err := s.RecordTransaction(ctx, ledger.Receipt{
		Seq:    1,
		ID:     "tx-0001",
		Events: []ir.Event{{Emitter: owner, Name: "Bad", Fields: ir.Fields{"x": 1.5}}},
	})
	require.Error(t, err)

	txs, err := s.ReadTransactions(ctx)
	require.NoError(t, err)
	assert.Empty(t, txs)
}

// TestReplayPermissions tests rebuilding a DAO's permission table from a
// ledger journaled into the store.
func TestReplayPermissions(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	l := ledger.New(ledger.WithRecorder(s), ledger.WithIDGenerator(ledger.NewSequentialGenerator("tx")))

	d, err := dao.Deploy(l, deployer, owner)
	require.NoError(t, err)
	daoAddr := d.Address()

	submit := func(label string, fn func() error) error {
		_, err := l.Submit(ctx, owner, label, func(context.Context) error { return fn() })
		return err
	}

	require.NoError(t, submit("grant", func() error {
		return d.Grant(owner, daoAddr, alice, dao.ExecutePermissionID)
	}))
	require.NoError(t, submit("grant", func() error {
		return d.Grant(owner, daoAddr, alice, dao.SetMetadataPermissionID)
	}))
	require.NoError(t, submit("revoke", func() error {
		return d.Revoke(owner, daoAddr, alice, dao.SetMetadataPermissionID)
	}))
	require.NoError(t, submit("freeze", func() error {
		return d.Freeze(owner, daoAddr, dao.UpgradeDAOPermissionID)
	}))
	require.Error(t, submit("fail", func() error {
		if err := d.Grant(owner, daoAddr, alice, dao.SetSignatureValidatorPermissionID); err != nil {
			return err
		}
		return errors.New("abort")
	}))

	state, err := s.ReplayPermissions(ctx, daoAddr)
	require.NoError(t, err)
	assert.Equal(t, int64(4), state.LastSeq)
	assert.ElementsMatch(t, []PermissionEntry{
		{Where: daoAddr, Who: owner, PermissionID: permission.RootPermissionID},
		{Where: daoAddr, Who: alice, PermissionID: dao.ExecutePermissionID},
	}, state.Entries)
	assert.Equal(t, []FrozenEntry{{Where: daoAddr, PermissionID: dao.UpgradeDAOPermissionID}}, state.Frozen)

	// The replayed table matches the live one.
	live := d.Entries()
	assert.Len(t, live, len(state.Entries))

	txs, err := s.ReadTransactions(ctx)
	require.NoError(t, err)
	require.Len(t, txs, 5)
	assert.Equal(t, "tx-0005", txs[4].ID)
	assert.Equal(t, "reverted", txs[4].Status)
}
