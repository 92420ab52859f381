package main

import (
	"database/sql"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"

	_ "modernc.org/sqlite"
)

// dbCmd inspects a sqlite plot table directly, without the store.
func dbCmd(args []string) {
	fs := flag.NewFlagSet("db", flag.ExitOnError)
	dbPath := fs.String("db", "./data/plots.db", "sqlite db path")
	limit := fs.Int("limit", 20, "result limit")
	_ = fs.Parse(args)

	q := "levels"
	if fs.NArg() > 0 {
		q = strings.TrimSpace(fs.Arg(0))
	}
	if *limit <= 0 {
		*limit = 20
	}

	db, err := sql.Open("sqlite", *dbPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}
	defer db.Close()

	var rows []map[string]any
	switch q {
	case "levels":
		rows, err = queryLevels(db, *limit)
	case "dupes":
		rows, err = queryDupes(db, *limit)
	default:
		fmt.Fprintln(os.Stderr, "unknown query:", q, "(want levels|dupes)")
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "query:", err)
		os.Exit(1)
	}
	enc := json.NewEncoder(os.Stdout)
	for _, r := range rows {
		_ = enc.Encode(r)
	}
}

// queryLevels counts claimed cells and owners per level.
func queryLevels(db *sql.DB, limit int) ([]map[string]any, error) {
	rs, err := db.Query(`SELECT level, COUNT(*), COUNT(DISTINCT owner), MAX(MAX(abs(x)), MAX(abs(z)))
		FROM plots GROUP BY level ORDER BY level LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rs.Close()
	var out []map[string]any
	for rs.Next() {
		var (
			level         string
			plots, owners int64
			outermost     sql.NullInt64
		)
		if err := rs.Scan(&level, &plots, &owners, &outermost); err != nil {
			return out, err
		}
		out = append(out, map[string]any{
			"level":          level,
			"plots":          plots,
			"owners":         owners,
			"outermost_ring": outermost.Int64,
		})
	}
	return out, rs.Err()
}

// queryDupes lists cells stored more than once, which older tables without a
// unique key can contain.
func queryDupes(db *sql.DB, limit int) ([]map[string]any, error) {
	rs, err := db.Query(`SELECT level, x, z, COUNT(*), GROUP_CONCAT(id)
		FROM plots GROUP BY level, x, z HAVING COUNT(*) > 1
		ORDER BY level, x, z LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rs.Close()
	var out []map[string]any
	for rs.Next() {
		var (
			level string
			x, z  int64
			n     int64
			ids   string
		)
		if err := rs.Scan(&level, &x, &z, &n, &ids); err != nil {
			return out, err
		}
		out = append(out, map[string]any{
			"level": level,
			"x":     x,
			"z":     z,
			"rows":  n,
			"ids":   strings.Split(ids, ","),
		})
	}
	return out, rs.Err()
}
