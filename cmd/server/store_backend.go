package main

import (
	"fmt"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"plotkeeper.ai/internal/config"
	"plotkeeper.ai/internal/metrics"
	persistlog "plotkeeper.ai/internal/persistence/log"
	"plotkeeper.ai/internal/persistence/plotdb"
	"plotkeeper.ai/internal/transport/observer"
)

type runtimeStore struct {
	store  *plotdb.Store
	claims *persistlog.ClaimLogger
	feed   *observer.Server
}

func (r *runtimeStore) Close() error {
	err := r.store.Close()
	if r.claims != nil {
		if cerr := r.claims.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}

// openRuntimeStore opens the configured backend with the claim log and feed
// attached as audit sinks.
func openRuntimeStore(cfg config.Config, reg prometheus.Registerer, logger *zap.SugaredLogger) (*runtimeStore, error) {
	m, err := metrics.NewStore(reg, cfg.Backend)
	if err != nil {
		return nil, fmt.Errorf("metrics: %w", err)
	}

	rt := &runtimeStore{feed: observer.NewServer(logger.Named("feed"))}
	sinks := []plotdb.AuditLogger{rt.feed}
	if dir := strings.TrimSpace(cfg.AuditDir); dir != "" {
		rt.claims = persistlog.NewClaimLogger(dir)
		sinks = append(sinks, rt.claims)
	}

	rt.store, err = plotdb.Open(cfg, plotdb.Options{
		Logger:  logger.Named("plots"),
		Metrics: m,
		Audit:   plotdb.TeeAudit(sinks...),
	})
	if err != nil {
		if rt.claims != nil {
			_ = rt.claims.Close()
		}
		return nil, err
	}
	return rt, nil
}

func newLogger(level string) (*zap.SugaredLogger, error) {
	zcfg := zap.NewProductionConfig()
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		lvl = zapcore.InfoLevel
	}
	zcfg.Level = zap.NewAtomicLevelAt(lvl)
	l, err := zcfg.Build()
	if err != nil {
		return nil, err
	}
	return l.Sugar(), nil
}
