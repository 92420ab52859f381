package snapshot

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/require"

	"plotkeeper.ai/internal/plot"
)

func TestWriteReadLevel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "exports", "world.jsonl.zst")
	plots := []plot.Plot{
		{Level: "world", X: 0, Z: 0, ID: 1, Owner: "alice", Helpers: []string{"bob"}, PVP: plot.On},
		{Level: "world", X: 0, Z: 1, ID: 2, Owner: "carol"},
	}
	now := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

	hdr, err := WriteLevel(path, "world", plots, now)
	require.NoError(t, err)
	require.Equal(t, 2, hdr.Count)
	require.Len(t, hdr.Digest, 64)

	got, read, err := ReadLevel(path)
	require.NoError(t, err)
	require.Equal(t, hdr, got)
	require.Len(t, read, 2)
	require.Equal(t, "alice", read[0].Owner)
	require.Equal(t, []string{"bob"}, read[0].Helpers)
	require.Equal(t, plot.On, read[0].PVP)
	require.Equal(t, int64(2), read[1].ID)
}

func TestWriteReadEmptyLevel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.jsonl.zst")
	_, err := WriteLevel(path, "void", nil, time.Now())
	require.NoError(t, err)
	hdr, plots, err := ReadLevel(path)
	require.NoError(t, err)
	require.Equal(t, "void", hdr.Level)
	require.Empty(t, plots)
}

func writeRaw(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "raw.jsonl.zst")
	f, err := os.Create(path)
	require.NoError(t, err)
	enc, err := zstd.NewWriter(f)
	require.NoError(t, err)
	_, err = enc.Write([]byte(body))
	require.NoError(t, err)
	require.NoError(t, enc.Close())
	require.NoError(t, f.Close())
	return path
}

func TestReadLevel_DetectsTampering(t *testing.T) {
	path := writeRaw(t, `{"version":1,"level":"world","count":1,"digest":"00"}`+"\n"+
		`{"level":"world","x":0,"z":0,"id":1}`+"\n")

	_, _, err := ReadLevel(path)
	require.EqualError(t, err, "digest mismatch")
}

func TestReadLevel_RejectsNegativeCount(t *testing.T) {
	path := writeRaw(t, `{"version":1,"level":"world","count":-1,"digest":""}`+"\n")

	_, plots, err := ReadLevel(path)
	require.EqualError(t, err, "header: negative count -1")
	require.Nil(t, plots)
}

func TestReadLevel_HugeCountIsAMismatch(t *testing.T) {
	path := writeRaw(t, `{"version":1,"level":"world","count":9000000000000,"digest":""}`+"\n"+
		`{"level":"world","x":0,"z":0,"id":1}`+"\n")

	_, plots, err := ReadLevel(path)
	require.EqualError(t, err, "count mismatch: header=9000000000000 read=1")
	require.Len(t, plots, 1)
}
