package plotdb

import (
	"plotkeeper.ai/internal/persistence/sqlexec"
	"plotkeeper.ai/internal/plot"
	"plotkeeper.ai/internal/plot/spiral"
)

// Allocation results reported to metrics.
const (
	allocFound     = "found"
	allocExhausted = "exhausted"
	allocError     = "error"
)

// GetNextFreePlot walks the rings of level outward from the origin and
// delivers the first unclaimed cell, already cached, or false when limitXZ
// rings (limitXZ > 0) are all claimed or storage fails. One occupancy query
// is issued per ring; the next ring's query is only submitted once the
// previous ring has been scanned.
func (s *Store) GetNextFreePlot(level string, limitXZ int, done func(plot.Plot, bool)) {
	if limitXZ < 0 {
		limitXZ = 0
	}
	s.searchRing(level, 0, limitXZ, done)
}

func (s *Store) searchRing(level string, ring, limitXZ int, done func(plot.Plot, bool)) {
	if limitXZ > 0 && ring >= limitXZ {
		s.metrics.Allocation(allocExhausted)
		done(plot.Plot{}, false)
		return
	}

	occ := spiral.NewOccupancy(ring)
	q, args := s.dialect.ExistingXZ(level, ring)
	s.exec.ExecuteSelect(q, args, func(r sqlexec.Row) {
		x, okX := r.Int64At(0)
		z, okZ := r.Int64At(1)
		if okX && okZ {
			occ.Add(int(x), int(z))
		}
	}, func(err error) {
		if err != nil {
			s.log.Warnw("ring lookup failed", "level", level, "ring", ring, "err", err)
			s.metrics.Allocation(allocError)
			done(plot.Plot{}, false)
			return
		}
		if occ.Stray() > 0 {
			s.log.Debugw("ring lookup returned cells off the ring", "level", level, "ring", ring, "stray", occ.Stray())
		}

		full := occ.Full()
		s.metrics.RingScanned(full)
		if !full {
			if c, ok := s.firstUnclaimed(level, occ); ok {
				p := plot.Empty(level, c.X, c.Z)
				s.cache.Put(p)
				s.metrics.Allocation(allocFound)
				done(p, true)
				return
			}
			s.log.Debugw("ring has no free cell after scan", "level", level, "ring", ring, "claimed", occ.Len())
		}
		s.searchRing(level, ring+1, limitXZ, done)
	})
}

// firstUnclaimed scans the ring, also skipping cells this store has claimed
// in the cache whose write may not have reached storage yet.
func (s *Store) firstUnclaimed(level string, occ *spiral.Occupancy) (spiral.Cell, bool) {
	for {
		c, ok := spiral.FindFree(occ)
		if !ok {
			return spiral.Cell{}, false
		}
		cached, hit := s.cache.Peek(level, c.X, c.Z)
		if !hit || cached.IsEmpty() {
			return c, true
		}
		occ.Add(c.X, c.Z)
	}
}
