package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"plotkeeper.ai/internal/config"
	persistlog "plotkeeper.ai/internal/persistence/log"
	"plotkeeper.ai/internal/persistence/plotdb"
	"plotkeeper.ai/internal/plot"
)

const usage = `usage: admin <command> [flags]

commands:
  get     -level L -x X -z Z          print the stored plot of a cell
  next    -level L [-limit N]         print the next free plot
  owner   -owner O [-level L]         list an owner's plots on loaded levels
  claim   -level L -x X -z Z -owner O claim a cell
  delete  -level L -x X -z Z [-id N]  remove a claim
  claims  [-dir D]                    dump the claim audit log
  export  -level L [-out PATH]        write a level to a compressed export
  import  -in PATH [-level L]         load an export into the store
  db      [-db PATH] levels|dupes     inspect a sqlite plot table
  health  [-url U]                    query a running server
  metrics [-url U]                    dump a running server's metrics`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}
	args := os.Args[2:]
	switch os.Args[1] {
	case "get":
		getCmd(args)
	case "next":
		nextCmd(args)
	case "owner":
		ownerCmd(args)
	case "claim":
		claimCmd(args)
	case "delete":
		deleteCmd(args)
	case "claims":
		claimsCmd(args)
	case "export":
		exportCmd(args)
	case "import":
		importCmd(args)
	case "db":
		dbCmd(args)
	case "health":
		healthCmd(args)
	case "metrics":
		metricsCmd(args)
	default:
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}
}

type storeFlags struct {
	config  *string
	timeout *time.Duration
}

func addStoreFlags(fs *flag.FlagSet) storeFlags {
	return storeFlags{
		config:  fs.String("config", "./configs/plots.yaml", "plot store config path (optional)"),
		timeout: fs.Duration("timeout", 10*time.Second, "max wait for the store"),
	}
}

// open loads the config and opens the store with a single worker so that
// queued writes complete in order before Close returns.
func (f storeFlags) open() (*plotdb.Store, config.Config) {
	path := strings.TrimSpace(*f.config)
	if _, err := os.Stat(path); err != nil {
		path = ""
	}
	cfg, err := config.Load(path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(2)
	}
	var audit plotdb.AuditLogger
	if cfg.AuditDir != "" {
		audit = persistlog.NewClaimLogger(cfg.AuditDir)
	}
	s, err := plotdb.Open(cfg, plotdb.Options{
		Logger:  zap.NewNop().Sugar(),
		Workers: 1,
		Audit:   audit,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}
	if cl, ok := audit.(*persistlog.ClaimLogger); ok {
		closers = append(closers, cl.Close)
	}
	return s, cfg
}

var closers []func() error

func closeAll(s *plotdb.Store) {
	if err := s.Close(); err != nil {
		fmt.Fprintln(os.Stderr, "close:", err)
	}
	for _, c := range closers {
		_ = c()
	}
}

func wait[T any](ch <-chan T, timeout time.Duration) T {
	select {
	case v := <-ch:
		return v
	case <-time.After(timeout):
		fmt.Fprintln(os.Stderr, "timed out waiting for the store")
		os.Exit(1)
	}
	var zero T
	return zero
}

func printJSON(v any) {
	_ = json.NewEncoder(os.Stdout).Encode(v)
}

func cellFlags(fs *flag.FlagSet) (*string, *int, *int) {
	return fs.String("level", "", "level name"), fs.Int("x", 0, "plot x"), fs.Int("z", 0, "plot z")
}

func requireLevel(level string) {
	if strings.TrimSpace(level) == "" {
		fmt.Fprintln(os.Stderr, "missing -level")
		os.Exit(2)
	}
}

func getCmd(args []string) {
	fs := flag.NewFlagSet("get", flag.ExitOnError)
	sf := addStoreFlags(fs)
	level, x, z := cellFlags(fs)
	_ = fs.Parse(args)
	requireLevel(*level)

	s, _ := sf.open()
	defer closeAll(s)
	ch := make(chan plot.Plot, 1)
	s.LoadPlot(*level, *x, *z, func(p plot.Plot) { ch <- p })
	printJSON(wait(ch, *sf.timeout))
}

func nextCmd(args []string) {
	fs := flag.NewFlagSet("next", flag.ExitOnError)
	sf := addStoreFlags(fs)
	level := fs.String("level", "", "level name")
	limit := fs.Int("limit", 0, "max rings to search (0 = unlimited)")
	_ = fs.Parse(args)
	requireLevel(*level)

	s, _ := sf.open()
	defer closeAll(s)
	type result struct {
		Found bool      `json:"found"`
		Plot  plot.Plot `json:"plot"`
	}
	ch := make(chan result, 1)
	s.GetNextFreePlot(*level, *limit, func(p plot.Plot, ok bool) { ch <- result{Found: ok, Plot: p} })
	res := wait(ch, *sf.timeout)
	printJSON(res)
	if !res.Found {
		closeAll(s)
		os.Exit(1)
	}
}

func ownerCmd(args []string) {
	fs := flag.NewFlagSet("owner", flag.ExitOnError)
	sf := addStoreFlags(fs)
	owner := fs.String("owner", "", "owner name")
	level := fs.String("level", "", "level filter (optional)")
	_ = fs.Parse(args)
	if strings.TrimSpace(*owner) == "" {
		fmt.Fprintln(os.Stderr, "missing -owner")
		os.Exit(2)
	}

	s, _ := sf.open()
	defer closeAll(s)
	ch := make(chan []plot.Plot, 1)
	s.GetPlotsByOwner(*owner, *level, func(ps []plot.Plot) { ch <- ps })
	for _, p := range wait(ch, *sf.timeout) {
		printJSON(p)
	}
}

func claimCmd(args []string) {
	fs := flag.NewFlagSet("claim", flag.ExitOnError)
	sf := addStoreFlags(fs)
	level, x, z := cellFlags(fs)
	owner := fs.String("owner", "", "new owner")
	name := fs.String("name", "", "plot name (optional)")
	helpers := fs.String("helpers", "", "comma separated helpers (optional)")
	_ = fs.Parse(args)
	requireLevel(*level)
	if strings.TrimSpace(*owner) == "" {
		fmt.Fprintln(os.Stderr, "missing -owner")
		os.Exit(2)
	}

	p := plot.Empty(*level, *x, *z)
	p.Owner = *owner
	p.Name = *name
	p.Helpers = plot.SplitList(*helpers)
	p.Denied = []string{}
	if err := p.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, "invalid plot:", err)
		os.Exit(2)
	}

	s, _ := sf.open()
	defer closeAll(s)
	s.SavePlot(p)
	printJSON(p)
}

func deleteCmd(args []string) {
	fs := flag.NewFlagSet("delete", flag.ExitOnError)
	sf := addStoreFlags(fs)
	level, x, z := cellFlags(fs)
	id := fs.Int64("id", plot.UnsavedID, "row id (optional; deletes by cell when absent)")
	_ = fs.Parse(args)
	requireLevel(*level)

	p := plot.Empty(*level, *x, *z)
	p.ID = *id

	s, _ := sf.open()
	defer closeAll(s)
	s.DeletePlot(p)
	printJSON(p)
}

func claimsCmd(args []string) {
	fs := flag.NewFlagSet("claims", flag.ExitOnError)
	dir := fs.String("dir", "./data/audit", "claim audit directory")
	_ = fs.Parse(args)

	entries, err := persistlog.ReadClaims(*dir)
	for _, e := range entries {
		printJSON(e)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "read claims:", err)
		os.Exit(1)
	}
}
