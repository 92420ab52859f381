package main

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"plotkeeper.ai/internal/persistence/snapshot"
	"plotkeeper.ai/internal/plot"
)

func exportCmd(args []string) {
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	sf := addStoreFlags(fs)
	level := fs.String("level", "", "level to export")
	out := fs.String("out", "", "output path (default: ./data/exports/<level>-<unix>.jsonl.zst)")
	_ = fs.Parse(args)
	requireLevel(*level)

	path := strings.TrimSpace(*out)
	now := time.Now()
	if path == "" {
		path = fmt.Sprintf("./data/exports/%s-%d.jsonl.zst", *level, now.Unix())
	}

	s, _ := sf.open()
	defer closeAll(s)
	type result struct {
		plots []plot.Plot
		err   error
	}
	ch := make(chan result, 1)
	s.ExportLevel(*level, func(ps []plot.Plot, err error) { ch <- result{ps, err} })
	res := wait(ch, *sf.timeout)
	if res.err != nil {
		fmt.Fprintln(os.Stderr, "export:", res.err)
		closeAll(s)
		os.Exit(1)
	}
	hdr, err := snapshot.WriteLevel(path, *level, res.plots, now)
	if err != nil {
		fmt.Fprintln(os.Stderr, "write:", err)
		closeAll(s)
		os.Exit(1)
	}
	printJSON(map[string]any{"path": path, "header": hdr})
}

// importCmd saves every plot of an export, keyed by cell; row ids from the
// export are not reused.
func importCmd(args []string) {
	fs := flag.NewFlagSet("import", flag.ExitOnError)
	sf := addStoreFlags(fs)
	in := fs.String("in", "", "export file")
	level := fs.String("level", "", "import into this level instead of the exported one (optional)")
	_ = fs.Parse(args)
	if strings.TrimSpace(*in) == "" {
		fmt.Fprintln(os.Stderr, "missing -in")
		os.Exit(2)
	}

	hdr, plots, err := snapshot.ReadLevel(*in)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read:", err)
		os.Exit(1)
	}
	target := hdr.Level
	if strings.TrimSpace(*level) != "" {
		target = strings.TrimSpace(*level)
	}
	for i := range plots {
		plots[i].Level = target
		plots[i].ID = plot.UnsavedID
		if err := plots[i].Validate(); err != nil {
			fmt.Fprintf(os.Stderr, "plot %s: %v\n", plots[i].String(), err)
			os.Exit(1)
		}
	}

	s, _ := sf.open()
	defer closeAll(s)
	for _, p := range plots {
		s.SavePlot(p)
	}
	printJSON(map[string]any{"level": target, "imported": len(plots), "digest": hdr.Digest})
}
