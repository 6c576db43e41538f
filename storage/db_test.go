package storage

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func exerciseDatabase(t *testing.T, db Database) {
	t.Helper()
	_, err := db.Get([]byte("missing"))
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, db.Put([]byte("ledger/b"), []byte("2")))
	require.NoError(t, db.Put([]byte("ledger/a"), []byte("1")))
	require.NoError(t, db.Put([]byte("other"), []byte("x")))

	value, err := db.Get([]byte("ledger/a"))
	require.NoError(t, err)
	require.Equal(t, []byte("1"), value)

	keys, err := db.Keys([]byte("ledger/"))
	require.NoError(t, err)
	require.Equal(t, [][]byte{[]byte("ledger/a"), []byte("ledger/b")}, keys)

	require.NoError(t, db.Delete([]byte("ledger/a")))
	_, err = db.Get([]byte("ledger/a"))
	require.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, db.Delete([]byte("ledger/a")))
}

func TestMemDB(t *testing.T) {
	db := NewMemDB()
	defer db.Close()
	exerciseDatabase(t, db)
}

func TestLevelDB(t *testing.T) {
	db, err := NewLevelDB(filepath.Join(t.TempDir(), "db"))
	require.NoError(t, err)
	defer db.Close()
	exerciseDatabase(t, db)
}
