package plotdb

import (
	"database/sql"

	"plotkeeper.ai/internal/plot"
)

// Dialect builds the statements a backend runs. Everything backend specific
// (binding style, upsert syntax, DDL) lives behind it.
type Dialect interface {
	Name() string
	// Schema is run once at open; every statement must be idempotent.
	Schema() []string
	// Migrations are additive changes for tables created by older versions.
	// A "column already exists" failure counts as applied.
	Migrations() []string

	GetPlot(level string, x, z int) (string, []any)
	SaveByID(p plot.Plot) (string, []any)
	Upsert(p plot.Plot) (string, []any)
	DeleteByID(id int64) (string, []any)
	DeleteByXZ(level string, x, z int) (string, []any)
	PlotsByOwner(owner, level string) (string, []any)
	// PlotsByLevel selects every row of a level in id order.
	PlotsByLevel(level string) (string, []any)
	// ExistingXZ selects (x, z) of every claimed cell on ring i of a level.
	ExistingXZ(level string, ring int) (string, []any)
}

func pvpArg(t plot.TriState) any {
	switch t {
	case plot.On:
		return int64(1)
	case plot.Off:
		return int64(0)
	default:
		return nil
	}
}

// SQLite binds named parameters (:name).
type SQLite struct{}

func (SQLite) Name() string { return "sqlite" }

func (SQLite) Schema() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS plots (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			level TEXT,
			x INTEGER,
			z INTEGER,
			name TEXT,
			owner TEXT,
			helpers TEXT,
			denied TEXT,
			biome TEXT,
			pvp INTEGER
		);`,
		`CREATE INDEX IF NOT EXISTS idx_plots_level_xz ON plots(level, x, z);`,
		`CREATE INDEX IF NOT EXISTS idx_plots_owner ON plots(owner, level);`,
	}
}

func (SQLite) Migrations() []string {
	return []string{
		`ALTER TABLE plots ADD COLUMN pvp INTEGER;`,
	}
}

func (SQLite) GetPlot(level string, x, z int) (string, []any) {
	return `SELECT id, name, owner, helpers, denied, biome, pvp FROM plots WHERE level = :level AND x = :x AND z = :z;`,
		[]any{sql.Named("level", level), sql.Named("x", x), sql.Named("z", z)}
}

func (SQLite) SaveByID(p plot.Plot) (string, []any) {
	return `UPDATE plots SET name = :name, owner = :owner, helpers = :helpers, denied = :denied, biome = :biome, pvp = :pvp WHERE id = :id;`,
		[]any{
			sql.Named("id", p.ID),
			sql.Named("name", p.Name),
			sql.Named("owner", p.Owner),
			sql.Named("helpers", plot.JoinList(p.Helpers)),
			sql.Named("denied", plot.JoinList(p.Denied)),
			sql.Named("biome", p.Biome),
			sql.Named("pvp", pvpArg(p.PVP)),
		}
}

// Upsert keeps the id of an existing row for the cell: INSERT OR REPLACE
// conflicts on the primary key picked by the subselect.
func (SQLite) Upsert(p plot.Plot) (string, []any) {
	return `INSERT OR REPLACE INTO plots (id, level, x, z, name, owner, helpers, denied, biome, pvp) VALUES
			((SELECT id FROM plots WHERE level = :level AND x = :x AND z = :z),
			 :level, :x, :z, :name, :owner, :helpers, :denied, :biome, :pvp);`,
		[]any{
			sql.Named("level", p.Level),
			sql.Named("x", p.X),
			sql.Named("z", p.Z),
			sql.Named("name", p.Name),
			sql.Named("owner", p.Owner),
			sql.Named("helpers", plot.JoinList(p.Helpers)),
			sql.Named("denied", plot.JoinList(p.Denied)),
			sql.Named("biome", p.Biome),
			sql.Named("pvp", pvpArg(p.PVP)),
		}
}

func (SQLite) DeleteByID(id int64) (string, []any) {
	return `DELETE FROM plots WHERE id = :id;`, []any{sql.Named("id", id)}
}

func (SQLite) DeleteByXZ(level string, x, z int) (string, []any) {
	return `DELETE FROM plots WHERE level = :level AND x = :x AND z = :z;`,
		[]any{sql.Named("level", level), sql.Named("x", x), sql.Named("z", z)}
}

func (SQLite) PlotsByOwner(owner, level string) (string, []any) {
	if level == "" {
		return `SELECT id, level, x, z, name, owner, helpers, denied, biome, pvp FROM plots WHERE owner = :owner;`,
			[]any{sql.Named("owner", owner)}
	}
	return `SELECT id, level, x, z, name, owner, helpers, denied, biome, pvp FROM plots WHERE owner = :owner AND level = :level;`,
		[]any{sql.Named("owner", owner), sql.Named("level", level)}
}

func (SQLite) PlotsByLevel(level string) (string, []any) {
	return `SELECT id, level, x, z, name, owner, helpers, denied, biome, pvp FROM plots WHERE level = :level ORDER BY id;`,
		[]any{sql.Named("level", level)}
}

func (SQLite) ExistingXZ(level string, ring int) (string, []any) {
	return `SELECT x, z FROM plots WHERE (
				level = :level
				AND (
					(abs(x) = :number AND abs(z) <= :number) OR
					(abs(z) = :number AND abs(x) <= :number)
				)
			);`,
		[]any{sql.Named("level", level), sql.Named("number", ring)}
}

// Postgres binds positional parameters ($n).
type Postgres struct{}

func (Postgres) Name() string { return "postgres" }

func (Postgres) Schema() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS plots (
			id SERIAL PRIMARY KEY,
			level TEXT,
			x INTEGER,
			z INTEGER,
			name TEXT,
			owner TEXT,
			helpers TEXT,
			denied TEXT,
			biome TEXT,
			pvp INTEGER
		);`,
		`CREATE INDEX IF NOT EXISTS idx_plots_level_xz ON plots(level, x, z);`,
		`CREATE INDEX IF NOT EXISTS idx_plots_owner ON plots(owner, level);`,
	}
}

func (Postgres) Migrations() []string {
	return []string{
		`ALTER TABLE plots ADD COLUMN IF NOT EXISTS pvp INTEGER;`,
	}
}

func (Postgres) GetPlot(level string, x, z int) (string, []any) {
	return `SELECT id, name, owner, helpers, denied, biome, pvp FROM plots WHERE level = $1 AND x = $2 AND z = $3;`,
		[]any{level, x, z}
}

func (Postgres) SaveByID(p plot.Plot) (string, []any) {
	return `UPDATE plots SET name = $2, owner = $3, helpers = $4, denied = $5, biome = $6, pvp = $7 WHERE id = $1;`,
		[]any{p.ID, p.Name, p.Owner, plot.JoinList(p.Helpers), plot.JoinList(p.Denied), p.Biome, pvpArg(p.PVP)}
}

// Upsert reuses the id of an existing row for the cell, otherwise draws a new
// one from the serial sequence, and resolves the conflict on the primary key.
func (Postgres) Upsert(p plot.Plot) (string, []any) {
	return `INSERT INTO plots (id, level, x, z, name, owner, helpers, denied, biome, pvp) VALUES
			(COALESCE((SELECT id FROM plots WHERE level = $1 AND x = $2 AND z = $3 LIMIT 1), nextval(pg_get_serial_sequence('plots', 'id'))),
			 $1, $2, $3, $4, $5, $6, $7, $8, $9)
			ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name, owner = EXCLUDED.owner, helpers = EXCLUDED.helpers,
			denied = EXCLUDED.denied, biome = EXCLUDED.biome, pvp = EXCLUDED.pvp;`,
		[]any{p.Level, p.X, p.Z, p.Name, p.Owner, plot.JoinList(p.Helpers), plot.JoinList(p.Denied), p.Biome, pvpArg(p.PVP)}
}

func (Postgres) DeleteByID(id int64) (string, []any) {
	return `DELETE FROM plots WHERE id = $1;`, []any{id}
}

func (Postgres) DeleteByXZ(level string, x, z int) (string, []any) {
	return `DELETE FROM plots WHERE level = $1 AND x = $2 AND z = $3;`, []any{level, x, z}
}

func (Postgres) PlotsByOwner(owner, level string) (string, []any) {
	if level == "" {
		return `SELECT id, level, x, z, name, owner, helpers, denied, biome, pvp FROM plots WHERE owner = $1;`,
			[]any{owner}
	}
	return `SELECT id, level, x, z, name, owner, helpers, denied, biome, pvp FROM plots WHERE owner = $1 AND level = $2;`,
		[]any{owner, level}
}

func (Postgres) PlotsByLevel(level string) (string, []any) {
	return `SELECT id, level, x, z, name, owner, helpers, denied, biome, pvp FROM plots WHERE level = $1 ORDER BY id;`,
		[]any{level}
}

func (Postgres) ExistingXZ(level string, ring int) (string, []any) {
	return `SELECT x, z FROM plots WHERE (
				level = $1
				AND (
					(abs(x) = $2 AND abs(z) <= $2) OR
					(abs(z) = $2 AND abs(x) <= $2)
				)
			);`,
		[]any{level, ring}
}
