package plotdb

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"plotkeeper.ai/internal/config"
	"plotkeeper.ai/internal/persistence/plotcache"
	"plotkeeper.ai/internal/persistence/sqlexec"
)

// Open builds the backend selected by cfg. Options left zero are filled from
// cfg.
func Open(cfg config.Config, opts Options) (*Store, error) {
	if opts.CacheSize == 0 {
		opts.CacheSize = cfg.CacheSize
	}
	if opts.Workers == 0 {
		opts.Workers = cfg.Workers
	}
	if opts.LevelLoaded == nil {
		opts.LevelLoaded = cfg.LevelLoaded()
	}
	switch cfg.Backend {
	case config.BackendSQLite:
		return OpenSQLite(cfg.SQLite.Path, opts)
	case config.BackendPostgres:
		return OpenPostgres(cfg.Postgres.DSN(), opts)
	default:
		return nil, fmt.Errorf("unknown plot backend: %q", cfg.Backend)
	}
}

// OpenSQLite opens (creating if needed) the embedded database file at path.
func OpenSQLite(path string, opts Options) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite pragmas: %w", err)
	}
	return open(db, SQLite{}, opts)
}

// OpenPostgres connects to a database server through pgx.
func OpenPostgres(dsn string, opts Options) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres connect: %w", err)
	}
	return open(db, Postgres{}, opts)
}

func open(db *sql.DB, d Dialect, opts Options) (*Store, error) {
	opts = opts.withDefaults()
	if err := initSchema(db, d); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%s schema: %w", d.Name(), err)
	}

	var cacheObs plotcache.Observer
	var execObs sqlexec.Observer
	if opts.Metrics != nil {
		cacheObs = opts.Metrics
		execObs = opts.Metrics
	}
	cache, err := plotcache.New(opts.CacheSize, cacheObs)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	exec := sqlexec.New(db, sqlexec.Options{
		Workers:  opts.Workers,
		Logger:   opts.Logger,
		Dispatch: opts.Dispatch,
		Observer: execObs,
	})
	s := newStore(d, exec, cache, opts)
	s.log.Debugw(d.Name()+" plot provider registered", "cache_size", opts.CacheSize, "workers", opts.Workers)
	return s, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

// initSchema runs before the worker pool starts so the first queued
// statement always finds the table.
func initSchema(db *sql.DB, d Dialect) error {
	for _, s := range d.Schema() {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	for _, m := range d.Migrations() {
		if _, err := db.Exec(m); err != nil && !isAlreadyExists(err) {
			return err
		}
	}
	return nil
}

func isAlreadyExists(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "duplicate column") || strings.Contains(msg, "already exists")
}
