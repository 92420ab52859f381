// Package plotdb stores plots in SQL and hands out free ones.
//
// Reads are asynchronous: GetPlot answers from the cache or returns the
// unclaimed sentinel immediately, and the row, once it arrives, replaces the
// cache entry. Writes are fire-and-forget and refresh the cache right away.
package plotdb

import (
	"sort"
	"sync"

	"go.uber.org/zap"

	"plotkeeper.ai/internal/metrics"
	"plotkeeper.ai/internal/persistence/plotcache"
	"plotkeeper.ai/internal/persistence/sqlexec"
	"plotkeeper.ai/internal/plot"
)

// Backend is the operation set shared by every storage variant.
type Backend interface {
	SavePlot(p plot.Plot) bool
	DeletePlot(p plot.Plot) bool
	GetPlot(level string, x, z int) plot.Plot
	LoadPlot(level string, x, z int, done func(plot.Plot))
	GetPlotsByOwner(owner, level string, done func([]plot.Plot))
	GetNextFreePlot(level string, limitXZ int, done func(plot.Plot, bool))
	Close() error
}

// Executor is the query engine the store submits statements to.
type Executor interface {
	ExecuteGeneric(query string)
	ExecuteChange(query string, args ...any)
	ExecuteInsert(query string, args ...any)
	ExecuteSelect(query string, args []any, onRow func(sqlexec.Row), onDone func(error))
	Close() error
}

// AuditLogger records accepted writes.
type AuditLogger interface {
	WriteClaim(action string, p plot.Plot) error
}

const (
	AuditSave   = "save"
	AuditDelete = "delete"
)

// TeeAudit sends every claim to each non-nil sink. All sinks are tried; the
// first error is returned.
func TeeAudit(sinks ...AuditLogger) AuditLogger {
	var out teeAudit
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	return out
}

type teeAudit []AuditLogger

func (t teeAudit) WriteClaim(action string, p plot.Plot) error {
	var first error
	for _, s := range t {
		if err := s.WriteClaim(action, p); err != nil && first == nil {
			first = err
		}
	}
	return first
}

type Store struct {
	dialect     Dialect
	exec        Executor
	cache       *plotcache.Cache
	log         *zap.SugaredLogger
	levelLoaded func(string) bool
	metrics     *metrics.Store
	audit       AuditLogger

	mu    sync.Mutex
	reads map[plot.Key][]*pendingRead

	once sync.Once
}

var _ Backend = (*Store)(nil)

// pendingRead is a point query in flight. A write to the same cell while it
// is in flight makes its row stale.
type pendingRead struct {
	stale bool
}

func newStore(d Dialect, exec Executor, cache *plotcache.Cache, opts Options) *Store {
	opts = opts.withDefaults()
	return &Store{
		dialect:     d,
		exec:        exec,
		cache:       cache,
		log:         opts.Logger,
		levelLoaded: opts.LevelLoaded,
		metrics:     opts.Metrics,
		audit:       opts.Audit,
		reads:       make(map[plot.Key][]*pendingRead),
	}
}

func (s *Store) Dialect() string { return s.dialect.Name() }

// SavePlot writes p: an update by id when p has one, otherwise an upsert on
// (level, x, z). The cache is refreshed immediately. Always true: the write is
// submitted, not confirmed.
func (s *Store) SavePlot(p plot.Plot) bool {
	var (
		q    string
		args []any
	)
	if p.ID >= 0 {
		q, args = s.dialect.SaveByID(p)
		s.exec.ExecuteChange(q, args...)
	} else {
		q, args = s.dialect.Upsert(p)
		s.exec.ExecuteInsert(q, args...)
	}
	s.mu.Lock()
	s.invalidateReadsLocked(p.Key())
	s.cache.Put(p)
	s.mu.Unlock()
	s.writeAudit(AuditSave, p)
	return true
}

// DeletePlot removes the row by id when known, else by cell, and caches the
// unclaimed sentinel for the cell.
func (s *Store) DeletePlot(p plot.Plot) bool {
	var (
		q    string
		args []any
	)
	if p.ID >= 0 {
		q, args = s.dialect.DeleteByID(p.ID)
	} else {
		q, args = s.dialect.DeleteByXZ(p.Level, p.X, p.Z)
	}
	s.exec.ExecuteChange(q, args...)
	s.mu.Lock()
	s.invalidateReadsLocked(p.Key())
	s.cache.Put(plot.Empty(p.Level, p.X, p.Z))
	s.mu.Unlock()
	s.writeAudit(AuditDelete, p)
	return true
}

// GetPlot never waits for storage. On a cache miss it returns the unclaimed
// sentinel (and caches it) and loads the row in the background.
func (s *Store) GetPlot(level string, x, z int) plot.Plot {
	if p, ok := s.cache.Get(level, x, z); ok {
		return p
	}
	p, pr := s.beginMiss(level, x, z)
	if pr != nil {
		s.fetch(level, x, z, pr, nil)
	}
	return p
}

// LoadPlot is GetPlot with a completion: done receives the resolved plot,
// the sentinel when no row exists.
func (s *Store) LoadPlot(level string, x, z int, done func(plot.Plot)) {
	if p, ok := s.cache.Get(level, x, z); ok {
		if !s.hasPendingRead(p.Key()) {
			done(p)
			return
		}
		s.fetch(level, x, z, s.beginRead(p.Key()), done)
		return
	}
	p, pr := s.beginMiss(level, x, z)
	if pr == nil {
		done(p)
		return
	}
	s.fetch(level, x, z, pr, done)
}

// beginMiss caches the sentinel for a missed cell and registers the read that
// will resolve it. When a write filled the cell since the miss, that plot is
// returned with a nil read.
func (s *Store) beginMiss(level string, x, z int) (plot.Plot, *pendingRead) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.cache.Peek(level, x, z); ok {
		return p, nil
	}
	empty := plot.Empty(level, x, z)
	s.cache.Put(empty)
	return empty, s.beginReadLocked(empty.Key())
}

func (s *Store) fetch(level string, x, z int, pr *pendingRead, done func(plot.Plot)) {
	key := plot.Key{Level: level, X: x, Z: z}
	found := plot.Empty(level, x, z)
	q, args := s.dialect.GetPlot(level, x, z)
	s.exec.ExecuteSelect(q, args, func(r sqlexec.Row) {
		found = plotFromRow(level, x, z, r)
	}, func(err error) {
		if err != nil {
			s.log.Warnw("plot lookup failed", "level", level, "x", x, "z", z, "err", err)
		}
		// Stale check and Put are atomic with respect to writes.
		s.mu.Lock()
		if s.finishReadLocked(key, pr) {
			if cur, ok := s.cache.Peek(level, x, z); ok {
				found = cur
			}
		} else if err == nil {
			s.cache.Put(found)
		}
		s.mu.Unlock()
		if done != nil {
			done(found)
		}
	})
}

// GetPlotsByOwner delivers the owner's plots on loaded levels, sorted by
// level name. level == "" means every level.
func (s *Store) GetPlotsByOwner(owner, level string, done func([]plot.Plot)) {
	var plots []plot.Plot
	q, args := s.dialect.PlotsByOwner(owner, level)
	s.exec.ExecuteSelect(q, args, func(r sqlexec.Row) {
		lx, _ := r.Int64("x")
		lz, _ := r.Int64("z")
		plots = append(plots, plotFromRow(r.String("level"), int(lx), int(lz), r))
	}, func(err error) {
		if err != nil {
			s.log.Warnw("owner lookup failed", "owner", owner, "level", level, "err", err)
		}
		out := make([]plot.Plot, 0, len(plots))
		for _, p := range plots {
			if s.levelLoaded(p.Level) {
				out = append(out, p)
			}
		}
		sort.SliceStable(out, func(i, j int) bool { return out[i].Level < out[j].Level })
		if done != nil {
			done(out)
		}
	})
}

// ExportLevel delivers every stored plot of a level in id order. Unlike the
// other reads it reports storage errors, since a partial export is useless.
func (s *Store) ExportLevel(level string, done func([]plot.Plot, error)) {
	var plots []plot.Plot
	q, args := s.dialect.PlotsByLevel(level)
	s.exec.ExecuteSelect(q, args, func(r sqlexec.Row) {
		lx, _ := r.Int64("x")
		lz, _ := r.Int64("z")
		plots = append(plots, plotFromRow(level, int(lx), int(lz), r))
	}, func(err error) {
		if err != nil {
			s.log.Warnw("level export failed", "level", level, "err", err)
		}
		done(plots, err)
	})
}

// Close stops the worker pool and closes the connection.
func (s *Store) Close() error {
	var err error
	s.once.Do(func() {
		err = s.exec.Close()
		s.log.Debugw("plot provider closed", "backend", s.dialect.Name())
	})
	return err
}

func (s *Store) writeAudit(action string, p plot.Plot) {
	if s.audit == nil {
		return
	}
	if err := s.audit.WriteClaim(action, p); err != nil {
		s.log.Warnw("audit write failed", "action", action, "plot", p.String(), "err", err)
	}
}

func (s *Store) beginRead(key plot.Key) *pendingRead {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.beginReadLocked(key)
}

func (s *Store) beginReadLocked(key plot.Key) *pendingRead {
	pr := &pendingRead{}
	s.reads[key] = append(s.reads[key], pr)
	return pr
}

func (s *Store) finishReadLocked(key plot.Key, pr *pendingRead) bool {
	list := s.reads[key]
	for i, cur := range list {
		if cur == pr {
			list = append(list[:i], list[i+1:]...)
			break
		}
	}
	if len(list) == 0 {
		delete(s.reads, key)
	} else {
		s.reads[key] = list
	}
	return pr.stale
}

func (s *Store) invalidateReadsLocked(key plot.Key) {
	for _, pr := range s.reads[key] {
		pr.stale = true
	}
}

func (s *Store) hasPendingRead(key plot.Key) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.reads[key]) > 0
}

// plotFromRow decodes a row leniently: blank lists become empty lists and a
// pvp value that is not a number is left unset.
func plotFromRow(level string, x, z int, r sqlexec.Row) plot.Plot {
	p := plot.Plot{
		Level:   level,
		X:       x,
		Z:       z,
		ID:      plot.UnsavedID,
		Name:    r.String("name"),
		Owner:   r.String("owner"),
		Helpers: plot.SplitList(r.String("helpers")),
		Denied:  plot.SplitList(r.String("denied")),
		Biome:   r.String("biome"),
	}
	if id, ok := r.Int64("id"); ok {
		p.ID = id
	}
	if v, ok := r.Int64("pvp"); ok {
		p.PVP = plot.TriStateOf(v != 0)
	}
	return p
}
