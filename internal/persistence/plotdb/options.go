package plotdb

import (
	"go.uber.org/zap"

	"plotkeeper.ai/internal/metrics"
)

// Options configures a Store regardless of backend.
type Options struct {
	Logger *zap.SugaredLogger
	// CacheSize bounds the plot cache; 0 disables caching.
	CacheSize int
	// Workers is the size of the statement pool. Defaults to 2.
	Workers int
	// LevelLoaded filters GetPlotsByOwner results. Defaults to every level.
	LevelLoaded func(level string) bool
	// Dispatch runs completion callbacks, e.g. on a game loop goroutine.
	Dispatch func(func())
	Metrics  *metrics.Store
	Audit    AuditLogger
}

func (o Options) withDefaults() Options {
	if o.Logger == nil {
		o.Logger = zap.NewNop().Sugar()
	}
	if o.LevelLoaded == nil {
		o.LevelLoaded = func(string) bool { return true }
	}
	return o
}
