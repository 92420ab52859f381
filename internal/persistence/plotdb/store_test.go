package plotdb

import (
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"plotkeeper.ai/internal/plot"
)

func openTestSQLite(t *testing.T, path string, opts Options) *Store {
	t.Helper()
	if opts.Workers == 0 {
		opts.Workers = 1
	}
	if opts.CacheSize == 0 {
		opts.CacheSize = 64
	}
	s, err := OpenSQLite(path, opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func await[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for callback")
	}
	var zero T
	return zero
}

func loadPlot(t *testing.T, s *Store, level string, x, z int) plot.Plot {
	t.Helper()
	ch := make(chan plot.Plot, 1)
	s.LoadPlot(level, x, z, func(p plot.Plot) { ch <- p })
	return await(t, ch)
}

func ownerPlots(t *testing.T, s *Store, owner, level string) []plot.Plot {
	t.Helper()
	ch := make(chan []plot.Plot, 1)
	s.GetPlotsByOwner(owner, level, func(ps []plot.Plot) { ch <- ps })
	return await(t, ch)
}

type nextResult struct {
	p  plot.Plot
	ok bool
}

func nextFree(t *testing.T, s *Store, level string, limit int) (plot.Plot, bool) {
	t.Helper()
	ch := make(chan nextResult, 1)
	s.GetNextFreePlot(level, limit, func(p plot.Plot, ok bool) { ch <- nextResult{p, ok} })
	r := await(t, ch)
	return r.p, r.ok
}

func TestSQLite_SaveThenGet(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plots.db")
	s := openTestSQLite(t, path, Options{})

	p := plot.Empty("world", 2, -3)
	p.Name = "home"
	p.Owner = "alice"
	p.Helpers = []string{"a", "b"}
	p.Denied = []string{}
	p.Biome = "PLAINS"
	p.PVP = plot.On
	require.True(t, s.SavePlot(p))

	// Served from the cache, no I/O.
	got := s.GetPlot("world", 2, -3)
	require.Equal(t, "alice", got.Owner)
	require.Equal(t, []string{"a", "b"}, got.Helpers)

	// A fresh store only sees what reached storage.
	require.NoError(t, s.Close())
	s2 := openTestSQLite(t, path, Options{})
	got = loadPlot(t, s2, "world", 2, -3)
	require.Greater(t, got.ID, int64(0))
	require.Equal(t, "home", got.Name)
	require.Equal(t, "alice", got.Owner)
	require.Equal(t, []string{"a", "b"}, got.Helpers)
	require.Equal(t, []string{}, got.Denied)
	require.Equal(t, "PLAINS", got.Biome)
	require.Equal(t, plot.On, got.PVP)

	// Cached after the load.
	require.Equal(t, got, s2.GetPlot("world", 2, -3))
}

func TestSQLite_UpsertKeepsOneRowPerCell(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plots.db")
	s := openTestSQLite(t, path, Options{})

	p := plot.Empty("world", 0, 0)
	p.Owner = "alice"
	s.SavePlot(p)
	p.Owner = "bob"
	s.SavePlot(p)
	require.NoError(t, s.Close())

	s2 := openTestSQLite(t, path, Options{})
	got := loadPlot(t, s2, "world", 0, 0)
	require.Equal(t, "bob", got.Owner)
	id := got.ID

	// Update by id touches the same row.
	got.Name = "renamed"
	s2.SavePlot(got)
	require.NoError(t, s2.Close())

	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	defer db.Close()
	var n int
	var name string
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM plots`).Scan(&n))
	require.NoError(t, db.QueryRow(`SELECT name FROM plots WHERE id = ?`, id).Scan(&name))
	require.Equal(t, 1, n)
	require.Equal(t, "renamed", name)
}

func TestSQLite_DeleteThenRead(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plots.db")
	s := openTestSQLite(t, path, Options{})

	p := plot.Empty("world", 4, 4)
	p.Owner = "alice"
	s.SavePlot(p)
	require.True(t, s.DeletePlot(p))

	got := s.GetPlot("world", 4, 4)
	require.True(t, got.IsEmpty())
	require.Equal(t, plot.Empty("world", 4, 4), got)

	require.NoError(t, s.Close())
	s2 := openTestSQLite(t, path, Options{})
	require.True(t, loadPlot(t, s2, "world", 4, 4).IsEmpty())
}

func TestSQLite_DeleteByID(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plots.db")
	s := openTestSQLite(t, path, Options{})
	p := plot.Empty("world", 1, 1)
	p.Owner = "alice"
	s.SavePlot(p)
	require.NoError(t, s.Close())

	s2 := openTestSQLite(t, path, Options{})
	saved := loadPlot(t, s2, "world", 1, 1)
	require.GreaterOrEqual(t, saved.ID, int64(0))
	s2.DeletePlot(saved)
	require.NoError(t, s2.Close())

	s3 := openTestSQLite(t, path, Options{})
	require.True(t, loadPlot(t, s3, "world", 1, 1).IsEmpty())
}

func TestSQLite_ListRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plots.db")
	s := openTestSQLite(t, path, Options{})

	a := plot.Empty("world", 0, 1)
	a.Owner = "alice"
	a.Helpers = []string{"a", "b"}
	b := plot.Empty("world", 0, 2)
	b.Owner = "alice"
	s.SavePlot(a)
	s.SavePlot(b)
	require.NoError(t, s.Close())

	s2 := openTestSQLite(t, path, Options{})
	require.Equal(t, []string{"a", "b"}, loadPlot(t, s2, "world", 0, 1).Helpers)
	got := loadPlot(t, s2, "world", 0, 2)
	require.NotNil(t, got.Helpers)
	require.Empty(t, got.Helpers)
	require.Empty(t, got.Denied)
}

func TestSQLite_NextFreeIsIdempotent(t *testing.T) {
	s := openTestSQLite(t, filepath.Join(t.TempDir(), "plots.db"), Options{})

	first, ok := nextFree(t, s, "world", 0)
	require.True(t, ok)
	require.Equal(t, 0, first.X)
	require.Equal(t, 0, first.Z)
	require.True(t, first.IsEmpty())

	second, ok := nextFree(t, s, "world", 0)
	require.True(t, ok)
	require.Equal(t, first, second)
}

func TestSQLite_NextFreeAfterOrigin(t *testing.T) {
	s := openTestSQLite(t, filepath.Join(t.TempDir(), "plots.db"), Options{})

	origin := plot.Empty("world", 0, 0)
	origin.Owner = "alice"
	s.SavePlot(origin)

	got, ok := nextFree(t, s, "world", 0)
	require.True(t, ok)
	require.Equal(t, 0, got.X)
	require.Equal(t, 1, got.Z)

	// Claims on another level do not count.
	other, ok := nextFree(t, s, "nether", 0)
	require.True(t, ok)
	require.Equal(t, 0, other.X)
	require.Equal(t, 0, other.Z)
}

func TestSQLite_NextFreeWalksRingOrder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plots.db")
	s := openTestSQLite(t, path, Options{})

	for _, c := range [][2]int{{0, 0}, {0, 1}, {1, 0}, {-1, 0}} {
		p := plot.Empty("world", c[0], c[1])
		p.Owner = "alice"
		s.SavePlot(p)
	}
	require.NoError(t, s.Close())

	// Fresh store, empty cache: answers come from storage alone.
	s2 := openTestSQLite(t, path, Options{})
	got, ok := nextFree(t, s2, "world", 0)
	require.True(t, ok)
	require.Equal(t, [2]int{0, -1}, [2]int{got.X, got.Z})

	// Ring 0 is full and limit 1 only allows ring 0.
	_, ok = nextFree(t, s2, "world", 1)
	require.False(t, ok)
}

func TestSQLite_OwnerListingFiltersLevels(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plots.db")
	s := openTestSQLite(t, path, Options{})

	for _, p := range []plot.Plot{
		{Level: "world2", X: 0, Z: 0, ID: plot.UnsavedID, Owner: "alice"},
		{Level: "world", X: 0, Z: 0, ID: plot.UnsavedID, Owner: "alice"},
		{Level: "world", X: 0, Z: 1, ID: plot.UnsavedID, Owner: "alice"},
		{Level: "nether", X: 0, Z: 0, ID: plot.UnsavedID, Owner: "alice"},
		{Level: "world", X: 1, Z: 0, ID: plot.UnsavedID, Owner: "bob"},
	} {
		s.SavePlot(p)
	}
	require.NoError(t, s.Close())

	loaded := map[string]bool{"world": true, "world2": true}
	s2 := openTestSQLite(t, path, Options{LevelLoaded: func(l string) bool { return loaded[l] }})

	got := ownerPlots(t, s2, "alice", "")
	levels := make([]string, 0, len(got))
	for _, p := range got {
		levels = append(levels, p.Level)
	}
	require.Equal(t, []string{"world", "world", "world2"}, levels)
	require.Equal(t, 0, got[0].Z)
	require.Equal(t, 1, got[1].Z)

	got = ownerPlots(t, s2, "alice", "world2")
	require.Len(t, got, 1)
	require.Equal(t, "world2", got[0].Level)

	require.Empty(t, ownerPlots(t, s2, "alice", "nether"))
	require.Empty(t, ownerPlots(t, s2, "nobody", ""))
}

func TestSQLite_MalformedRows(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plots.db")
	s := openTestSQLite(t, path, Options{})
	require.NoError(t, s.Close())

	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO plots (level, x, z, name, owner, helpers, denied, biome, pvp)
		VALUES ('world', 3, 4, NULL, 'carol', NULL, '', NULL, 'abc')`)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	s2 := openTestSQLite(t, path, Options{})
	got := loadPlot(t, s2, "world", 3, 4)
	require.Equal(t, "carol", got.Owner)
	require.Equal(t, "", got.Name)
	require.Equal(t, []string{}, got.Helpers)
	require.Equal(t, []string{}, got.Denied)
	require.Equal(t, plot.Unset, got.PVP)
	require.False(t, got.IsEmpty())
}

func TestSQLite_MigratesLegacyTable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plots.db")
	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	_, err = db.Exec(`CREATE TABLE plots (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		level TEXT, x INTEGER, z INTEGER,
		name TEXT, owner TEXT, helpers TEXT, denied TEXT, biome TEXT
	)`)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO plots (level, x, z, owner, helpers, denied) VALUES ('world', 0, 0, 'old', 'x,y', '')`)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	s := openTestSQLite(t, path, Options{})
	got := loadPlot(t, s, "world", 0, 0)
	require.Equal(t, "old", got.Owner)
	require.Equal(t, []string{"x", "y"}, got.Helpers)
	require.Equal(t, plot.Unset, got.PVP)
	require.NoError(t, s.Close())

	// Second open sees the column already there.
	s2 := openTestSQLite(t, path, Options{})
	require.Equal(t, "old", loadPlot(t, s2, "world", 0, 0).Owner)
}

func TestSQLite_CloseTwice(t *testing.T) {
	s := openTestSQLite(t, filepath.Join(t.TempDir(), "plots.db"), Options{})
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
}

func TestOpenSQLite_EmptyPath(t *testing.T) {
	_, err := OpenSQLite("", Options{})
	require.EqualError(t, err, "empty db path")
}

func TestSQLite_ExportLevel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plots.db")
	s := openTestSQLite(t, path, Options{})
	for _, c := range [][2]int{{0, 0}, {0, 1}, {5, 5}} {
		p := plot.Empty("world", c[0], c[1])
		p.Owner = "alice"
		s.SavePlot(p)
	}
	other := plot.Empty("nether", 0, 0)
	other.Owner = "bob"
	s.SavePlot(other)

	type export struct {
		plots []plot.Plot
		err   error
	}
	ch := make(chan export, 1)
	s.ExportLevel("world", func(ps []plot.Plot, err error) { ch <- export{ps, err} })
	got := await(t, ch)
	require.NoError(t, got.err)
	require.Len(t, got.plots, 3)
	require.Equal(t, [2]int{5, 5}, [2]int{got.plots[2].X, got.plots[2].Z})
	for i, p := range got.plots {
		require.Equal(t, "world", p.Level)
		require.Equal(t, int64(i+1), p.ID)
	}
}
