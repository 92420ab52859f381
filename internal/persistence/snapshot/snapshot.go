// Package snapshot writes and reads level exports: one JSON header line
// followed by one JSON line per plot, zstd compressed.
package snapshot

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/zstd"

	"plotkeeper.ai/internal/plot"
)

const Version = 1

// maxPrealloc caps the slice sized from an unverified header count.
const maxPrealloc = 4096

type Header struct {
	Version   int       `json:"version"`
	Level     string    `json:"level"`
	Count     int       `json:"count"`
	CreatedAt time.Time `json:"created_at"`
	// Digest is the sha256 of the plot lines, newlines included.
	Digest string `json:"digest"`
}

// WriteLevel exports plots to path, replacing any existing file.
func WriteLevel(path, level string, plots []plot.Plot, now time.Time) (Header, error) {
	lines := make([][]byte, 0, len(plots))
	h := sha256.New()
	for _, p := range plots {
		b, err := json.Marshal(p)
		if err != nil {
			return Header{}, err
		}
		b = append(b, '\n')
		h.Write(b)
		lines = append(lines, b)
	}
	hdr := Header{
		Version:   Version,
		Level:     level,
		Count:     len(plots),
		CreatedAt: now.UTC(),
		Digest:    hex.EncodeToString(h.Sum(nil)),
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return hdr, err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return hdr, err
	}
	defer f.Close()

	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return hdr, err
	}
	bw := bufio.NewWriterSize(enc, 256*1024)

	hb, _ := json.Marshal(hdr)
	if _, err := bw.Write(append(hb, '\n')); err != nil {
		_ = enc.Close()
		return hdr, err
	}
	for _, b := range lines {
		if _, err := bw.Write(b); err != nil {
			_ = enc.Close()
			return hdr, err
		}
	}
	if err := bw.Flush(); err != nil {
		_ = enc.Close()
		return hdr, err
	}
	if err := enc.Close(); err != nil {
		return hdr, err
	}
	return hdr, f.Sync()
}

// ReadLevel reads an export and checks its count and digest.
func ReadLevel(path string) (Header, []plot.Plot, error) {
	var hdr Header
	f, err := os.Open(path)
	if err != nil {
		return hdr, nil, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return hdr, nil, err
	}
	defer dec.Close()

	br := bufio.NewReaderSize(dec, 256*1024)
	hb, err := br.ReadBytes('\n')
	if err != nil {
		return hdr, nil, fmt.Errorf("header: %w", err)
	}
	if err := json.Unmarshal(hb, &hdr); err != nil {
		return hdr, nil, fmt.Errorf("header: %w", err)
	}
	if hdr.Version != Version {
		return hdr, nil, fmt.Errorf("unsupported export version %d", hdr.Version)
	}
	if hdr.Count < 0 {
		return hdr, nil, fmt.Errorf("header: negative count %d", hdr.Count)
	}

	h := sha256.New()
	plots := make([]plot.Plot, 0, min(hdr.Count, maxPrealloc))
	for {
		line, err := br.ReadBytes('\n')
		if len(line) > 0 {
			h.Write(line)
			p := plot.Plot{ID: plot.UnsavedID}
			if uerr := json.Unmarshal(line, &p); uerr != nil {
				return hdr, plots, fmt.Errorf("plot %d: %w", len(plots)+1, uerr)
			}
			plots = append(plots, p)
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return hdr, plots, err
		}
	}
	if len(plots) != hdr.Count {
		return hdr, plots, fmt.Errorf("count mismatch: header=%d read=%d", hdr.Count, len(plots))
	}
	if got := hex.EncodeToString(h.Sum(nil)); got != hdr.Digest {
		return hdr, plots, fmt.Errorf("digest mismatch")
	}
	return hdr, plots, nil
}
