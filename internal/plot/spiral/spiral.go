// Package spiral defines the canonical expanding-ring scan used to hand out
// the next unclaimed plot of a level.
//
// Ring i is every cell with max(|x|, |z|) == i. Ring 0 is the origin; ring
// i > 0 has 8*i cells. Rings are scanned one at a time, and inside a ring the
// order is a fixed function of the ring index, so repeated scans over the same
// occupancy pick the same cell.
package spiral

// Cell is one grid coordinate.
type Cell struct {
	X int `json:"x"`
	Z int `json:"z"`
}

// RingSize is the number of cells in ring i (1 for the origin).
func RingSize(i int) int {
	if i <= 0 {
		return 1
	}
	return 8 * i
}

// InRing reports whether (x, z) lies on ring i.
func InRing(i, x, z int) bool {
	ax, az := abs(x), abs(z)
	return (ax == i && az <= i) || (az == i && ax <= i)
}

// Occupancy is the set of claimed cells observed on one ring.
type Occupancy struct {
	ring  int
	cells map[Cell]struct{}
	// stray counts rows that were not on the ring.
	stray int
}

func NewOccupancy(ring int) *Occupancy {
	return &Occupancy{ring: ring, cells: make(map[Cell]struct{})}
}

// Add records a claimed cell. Duplicate rows collapse; cells off the ring are
// counted as stray and ignored.
func (o *Occupancy) Add(x, z int) {
	if !InRing(o.ring, x, z) {
		o.stray++
		return
	}
	o.cells[Cell{X: x, Z: z}] = struct{}{}
}

func (o *Occupancy) Has(c Cell) bool {
	_, ok := o.cells[c]
	return ok
}

// Len is the number of distinct claimed cells on the ring.
func (o *Occupancy) Len() int { return len(o.cells) }

func (o *Occupancy) Stray() int { return o.stray }

func (o *Occupancy) Ring() int { return o.ring }

// Full reports whether every cell of the ring is claimed.
func (o *Occupancy) Full() bool { return o.Len() >= RingSize(o.ring) }

// Candidates returns the cells tested for sub-order a of ring i, in order:
// (a,i) (i,a) (-a,i) (i,-a) (-i,a) (a,-i) (-a,-i) (-i,-a), duplicates removed.
func Candidates(a, i int) []Cell {
	raw := [8]Cell{
		{a, i}, {i, a},
		{-a, i}, {i, -a},
		{-i, a}, {a, -i},
		{-a, -i}, {-i, -a},
	}
	out := make([]Cell, 0, len(raw))
	for _, c := range raw {
		dup := false
		for _, seen := range out {
			if seen == c {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, c)
		}
	}
	return out
}

// Order returns every cell of ring i in scan order: the axis anchors (a=0)
// first, then a = 1..i-1, then the corners (a=i).
func Order(i int) []Cell {
	if i <= 0 {
		return []Cell{{0, 0}}
	}
	out := make([]Cell, 0, RingSize(i))
	out = append(out, Candidates(0, i)...)
	for a := 1; a < i; a++ {
		out = append(out, Candidates(a, i)...)
	}
	out = append(out, Candidates(i, i)...)
	return out
}

// FindFree returns the first unclaimed cell of the ring in scan order.
// It short-circuits on the first hit and never allocates the full order.
func FindFree(occ *Occupancy) (Cell, bool) {
	i := occ.Ring()
	if i <= 0 {
		c := Cell{0, 0}
		return c, !occ.Has(c)
	}
	try := func(a int) (Cell, bool) {
		for _, c := range Candidates(a, i) {
			if !occ.Has(c) {
				return c, true
			}
		}
		return Cell{}, false
	}
	if c, ok := try(0); ok {
		return c, true
	}
	for a := 1; a < i; a++ {
		if c, ok := try(a); ok {
			return c, true
		}
	}
	return try(i)
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
