package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestStoreCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := NewStore(reg, "sqlite")
	require.NoError(t, err)

	m.CacheHit()
	m.CacheHit()
	m.CacheMiss()
	m.Statement("select", nil)
	m.Statement("select", errors.New("boom"))
	m.RingScanned(true)
	m.RingScanned(false)
	m.Allocation("found")

	require.Equal(t, 2.0, testutil.ToFloat64(m.cacheHits))
	require.Equal(t, 1.0, testutil.ToFloat64(m.cacheMisses))
	require.Equal(t, 2.0, testutil.ToFloat64(m.statements.WithLabelValues("select")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.statementErrs.WithLabelValues("select")))
	require.Equal(t, 2.0, testutil.ToFloat64(m.ringsScanned))
	require.Equal(t, 1.0, testutil.ToFloat64(m.ringsSkipped))
	require.Equal(t, 1.0, testutil.ToFloat64(m.allocations.WithLabelValues("found")))

	_, err = NewStore(reg, "sqlite")
	require.Error(t, err, "registering twice on one registry must fail")
}

func TestNilStoreIsNoop(t *testing.T) {
	var m *Store
	m.CacheHit()
	m.CacheMiss()
	m.Statement("insert", errors.New("x"))
	m.RingScanned(true)
	m.Allocation("error")
}
