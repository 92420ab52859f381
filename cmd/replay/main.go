package main

import (
	"flag"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"plotkeeper.ai/internal/config"
	persistlog "plotkeeper.ai/internal/persistence/log"
	"plotkeeper.ai/internal/persistence/plotdb"
	"plotkeeper.ai/internal/persistence/snapshot"
	"plotkeeper.ai/internal/plot"
)

func main() {
	var (
		snapPath   = flag.String("snapshot", "", "level export to start from (optional)")
		claimsDir  = flag.String("claims", "./data/audit", "claim audit directory")
		since      = flag.String("since", "", "only replay claims at or after this RFC3339 time (optional)")
		level      = flag.String("level", "", "only replay this level (optional)")
		apply      = flag.Bool("apply", false, "write the replayed state to the configured store")
		configPath = flag.String("config", "./configs/plots.yaml", "plot store config path (with -apply)")
	)
	flag.Parse()

	var sinceT time.Time
	if s := strings.TrimSpace(*since); s != "" {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			fmt.Fprintln(os.Stderr, "bad -since:", err)
			os.Exit(2)
		}
		sinceT = t
	}

	var base []plot.Plot
	if *snapPath != "" {
		hdr, plots, err := snapshot.ReadLevel(*snapPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, "read snapshot:", err)
			os.Exit(1)
		}
		fmt.Printf("snapshot v%d level=%s plots=%d created=%s\n", hdr.Version, hdr.Level, hdr.Count, hdr.CreatedAt.Format(time.RFC3339))
		base = plots
	}

	entries, err := persistlog.ReadClaims(*claimsDir)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read claims:", err)
		os.Exit(1)
	}

	st := fold(base, entries, sinceT, strings.TrimSpace(*level))
	fmt.Printf("replayed saves=%d deletes=%d skipped=%d cells=%d claimed=%d\n",
		st.saves, st.deletes, st.skipped, len(st.cells), st.claimed())

	if !*apply {
		for _, p := range st.sorted() {
			if !p.IsEmpty() {
				fmt.Printf("%s owner=%s\n", p.String(), p.Owner)
			}
		}
		return
	}

	path := strings.TrimSpace(*configPath)
	if _, err := os.Stat(path); err != nil {
		path = ""
	}
	cfg, err := config.Load(path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(2)
	}
	s, err := plotdb.Open(cfg, plotdb.Options{Logger: zap.NewNop().Sugar(), Workers: 1})
	if err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}
	for _, p := range st.sorted() {
		p.ID = plot.UnsavedID
		if p.IsEmpty() {
			s.DeletePlot(p)
		} else {
			s.SavePlot(p)
		}
	}
	if err := s.Close(); err != nil {
		fmt.Fprintln(os.Stderr, "close:", err)
		os.Exit(1)
	}
	fmt.Printf("applied %d cells to %s\n", len(st.cells), cfg.Backend)
}

type state struct {
	cells                   map[plot.Key]plot.Plot
	saves, deletes, skipped int
}

// fold applies claim entries in log order on top of base. A delete leaves the
// cell's sentinel so that -apply clears it in the target store.
func fold(base []plot.Plot, entries []persistlog.ClaimEntry, since time.Time, level string) *state {
	st := &state{cells: make(map[plot.Key]plot.Plot)}
	for _, p := range base {
		if level != "" && p.Level != level {
			continue
		}
		st.cells[p.Key()] = p
	}
	for _, e := range entries {
		if (!since.IsZero() && e.Time.Before(since)) || (level != "" && e.Plot.Level != level) {
			st.skipped++
			continue
		}
		switch e.Action {
		case plotdb.AuditSave:
			st.cells[e.Plot.Key()] = e.Plot
			st.saves++
		case plotdb.AuditDelete:
			st.cells[e.Plot.Key()] = plot.Empty(e.Plot.Level, e.Plot.X, e.Plot.Z)
			st.deletes++
		default:
			st.skipped++
		}
	}
	return st
}

func (s *state) claimed() int {
	n := 0
	for _, p := range s.cells {
		if !p.IsEmpty() {
			n++
		}
	}
	return n
}

func (s *state) sorted() []plot.Plot {
	out := make([]plot.Plot, 0, len(s.cells))
	for _, p := range s.cells {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Level != b.Level {
			return a.Level < b.Level
		}
		if a.X != b.X {
			return a.X < b.X
		}
		return a.Z < b.Z
	})
	return out
}
