// Package sqlexec runs parameterized SQL on a small fixed pool of worker
// goroutines and reports results through callbacks. Submitting never waits
// for the database.
package sqlexec

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ErrClosed is reported to select callbacks submitted after Close.
var ErrClosed = errors.New("sqlexec: executor closed")

const DefaultWorkers = 2

// Statement kinds, as reported to the Observer.
const (
	KindGeneric = "generic"
	KindChange  = "change"
	KindInsert  = "insert"
	KindSelect  = "select"
)

// Observer is told about every statement that ran.
type Observer interface {
	Statement(kind string, err error)
}

type Options struct {
	// Workers is the number of statements in flight at once. Completion
	// order only matches submission order when Workers is 1.
	Workers int
	Logger  *zap.SugaredLogger
	// Dispatch runs result callbacks. Defaults to calling them directly on
	// the worker goroutine.
	Dispatch func(func())
	Observer Observer
}

type job struct {
	kind   string
	query  string
	args   []any
	onRow  func(Row)
	onDone func(error)
}

type Executor struct {
	db       *sql.DB
	log      *zap.SugaredLogger
	dispatch func(func())
	obs      Observer

	mu      sync.Mutex
	cond    *sync.Cond
	pending []job

	g      errgroup.Group
	once   sync.Once
	closed atomic.Bool
}

func New(db *sql.DB, opts Options) *Executor {
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop().Sugar()
	}
	if opts.Dispatch == nil {
		opts.Dispatch = func(f func()) { f() }
	}
	e := &Executor{
		db:       db,
		log:      opts.Logger,
		dispatch: opts.Dispatch,
		obs:      opts.Observer,
	}
	e.cond = sync.NewCond(&e.mu)
	for i := 0; i < opts.Workers; i++ {
		e.g.Go(e.loop)
	}
	return e
}

// ExecuteGeneric submits a statement without parameters, typically DDL.
func (e *Executor) ExecuteGeneric(query string) {
	e.submit(job{kind: KindGeneric, query: query})
}

func (e *Executor) ExecuteChange(query string, args ...any) {
	e.submit(job{kind: KindChange, query: query, args: args})
}

func (e *Executor) ExecuteInsert(query string, args ...any) {
	e.submit(job{kind: KindInsert, query: query, args: args})
}

// ExecuteSelect submits a query. onRow is called once per result row and
// onDone once afterwards, both through the dispatcher and in that order.
// Either may be nil.
func (e *Executor) ExecuteSelect(query string, args []any, onRow func(Row), onDone func(error)) {
	e.submit(job{kind: KindSelect, query: query, args: args, onRow: onRow, onDone: onDone})
}

func (e *Executor) submit(j job) {
	e.mu.Lock()
	if e.closed.Load() {
		e.mu.Unlock()
		e.log.Warnw("statement submitted after close", "kind", j.kind)
		if j.onDone != nil {
			e.dispatch(func() { j.onDone(ErrClosed) })
		}
		return
	}
	e.pending = append(e.pending, j)
	e.mu.Unlock()
	e.cond.Signal()
}

// Pending is the number of statements queued but not yet picked up.
func (e *Executor) Pending() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.pending)
}

// Close stops accepting work, waits for queued statements to finish and
// closes the database.
func (e *Executor) Close() error {
	var err error
	e.once.Do(func() {
		e.mu.Lock()
		e.closed.Store(true)
		e.mu.Unlock()
		e.cond.Broadcast()
		_ = e.g.Wait()
		err = e.db.Close()
	})
	return err
}

func (e *Executor) next() (job, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for len(e.pending) == 0 {
		if e.closed.Load() {
			return job{}, false
		}
		e.cond.Wait()
	}
	j := e.pending[0]
	e.pending[0] = job{}
	e.pending = e.pending[1:]
	return j, true
}

func (e *Executor) loop() error {
	ctx := context.Background()
	for {
		j, ok := e.next()
		if !ok {
			return nil
		}
		e.run(ctx, j)
	}
}

func (e *Executor) run(ctx context.Context, j job) {
	if j.kind != KindSelect {
		_, err := e.db.ExecContext(ctx, j.query, j.args...)
		e.observe(j.kind, err)
		if err != nil {
			e.log.Warnw("statement failed", "kind", j.kind, "err", err)
		}
		return
	}

	rows, err := e.query(ctx, j.query, j.args)
	e.observe(j.kind, err)
	if err != nil {
		e.log.Warnw("select failed", "err", err)
	}
	e.dispatch(func() {
		if j.onRow != nil {
			for _, r := range rows {
				j.onRow(r)
			}
		}
		if j.onDone != nil {
			j.onDone(err)
		}
	})
}

func (e *Executor) query(ctx context.Context, query string, args []any) ([]Row, error) {
	rs, err := e.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rs.Close()

	cols, err := rs.Columns()
	if err != nil {
		return nil, err
	}
	var out []Row
	for rs.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rs.Scan(ptrs...); err != nil {
			return out, err
		}
		out = append(out, newRow(cols, vals))
	}
	return out, rs.Err()
}

func (e *Executor) observe(kind string, err error) {
	if e.obs != nil {
		e.obs.Statement(kind, err)
	}
}
