package main

import (
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestQueryLevelsAndDupes(t *testing.T) {
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "plots.db"))
	require.NoError(t, err)
	defer db.Close()

	_, err = db.Exec(`CREATE TABLE plots (id INTEGER PRIMARY KEY AUTOINCREMENT, level TEXT, x INTEGER, z INTEGER, owner TEXT)`)
	require.NoError(t, err)
	for _, r := range []struct {
		level string
		x, z  int
		owner string
	}{
		{"world", 0, 0, "alice"},
		{"world", 0, 0, "bob"},
		{"world", 2, -1, "alice"},
		{"nether", 0, 1, "carol"},
	} {
		_, err = db.Exec(`INSERT INTO plots (level, x, z, owner) VALUES (?, ?, ?, ?)`, r.level, r.x, r.z, r.owner)
		require.NoError(t, err)
	}

	levels, err := queryLevels(db, 10)
	require.NoError(t, err)
	require.Len(t, levels, 2)
	require.Equal(t, "nether", levels[0]["level"])
	require.Equal(t, int64(3), levels[1]["plots"])
	require.Equal(t, int64(2), levels[1]["owners"])
	require.Equal(t, int64(2), levels[1]["outermost_ring"])

	dupes, err := queryDupes(db, 10)
	require.NoError(t, err)
	require.Len(t, dupes, 1)
	require.Equal(t, int64(2), dupes[0]["rows"])
	require.ElementsMatch(t, []string{"1", "2"}, dupes[0]["ids"])
}
