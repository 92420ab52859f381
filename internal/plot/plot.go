package plot

import (
	"fmt"
	"strings"
)

// UnsavedID marks a plot that has no storage row (or whose row id is unknown).
const UnsavedID int64 = -1

// ListSeparator joins helper/denied entries in storage.
const ListSeparator = ","

// TriState is an optional boolean. Unset inherits the level default.
type TriState int8

const (
	Unset TriState = iota
	Off
	On
)

func TriStateOf(v bool) TriState {
	if v {
		return On
	}
	return Off
}

// Bool returns the value and whether it is set.
func (t TriState) Bool() (value bool, ok bool) {
	switch t {
	case On:
		return true, true
	case Off:
		return false, true
	default:
		return false, false
	}
}

func (t TriState) String() string {
	switch t {
	case On:
		return "on"
	case Off:
		return "off"
	default:
		return "unset"
	}
}

// Plot is one grid cell of a level and its claim state.
// (Level, X, Z) is the identity; ID only aliases it once a row exists.
type Plot struct {
	Level   string   `json:"level"`
	X       int      `json:"x"`
	Z       int      `json:"z"`
	ID      int64    `json:"id"`
	Name    string   `json:"name,omitempty"`
	Owner   string   `json:"owner,omitempty"`
	Helpers []string `json:"helpers,omitempty"`
	Denied  []string `json:"denied,omitempty"`
	Biome   string   `json:"biome,omitempty"`
	PVP     TriState `json:"pvp,omitempty"`
}

// Empty returns the unclaimed sentinel for a cell.
func Empty(level string, x, z int) Plot {
	return Plot{Level: level, X: x, Z: z, ID: UnsavedID}
}

// IsEmpty reports whether p has the sentinel shape: no row, no metadata.
func (p Plot) IsEmpty() bool {
	return p.ID == UnsavedID &&
		p.Name == "" &&
		p.Owner == "" &&
		len(p.Helpers) == 0 &&
		len(p.Denied) == 0 &&
		p.Biome == "" &&
		p.PVP == Unset
}

func (p Plot) Key() Key { return Key{Level: p.Level, X: p.X, Z: p.Z} }

// Clone deep-copies the list fields.
func (p Plot) Clone() Plot {
	out := p
	if p.Helpers != nil {
		out.Helpers = append(make([]string, 0, len(p.Helpers)), p.Helpers...)
	}
	if p.Denied != nil {
		out.Denied = append(make([]string, 0, len(p.Denied)), p.Denied...)
	}
	return out
}

func (p Plot) String() string {
	return fmt.Sprintf("%s;%d;%d", p.Level, p.X, p.Z)
}

// Validate checks that list entries survive the comma-joined storage encoding.
func (p Plot) Validate() error {
	if strings.TrimSpace(p.Level) == "" {
		return fmt.Errorf("plot level must not be empty")
	}
	if err := validateList("helpers", p.Helpers); err != nil {
		return err
	}
	return validateList("denied", p.Denied)
}

func validateList(field string, entries []string) error {
	for i, e := range entries {
		if e == "" {
			return fmt.Errorf("%s[%d] must not be empty", field, i)
		}
		if strings.Contains(e, ListSeparator) {
			return fmt.Errorf("%s[%d] %q must not contain %q", field, i, e, ListSeparator)
		}
	}
	return nil
}

func (p Plot) IsHelper(name string) bool { return containsFold(p.Helpers, name) }
func (p Plot) IsDenied(name string) bool { return containsFold(p.Denied, name) }

// AddHelper appends name unless it is already a helper. Reports whether p changed.
func (p *Plot) AddHelper(name string) bool {
	if p.IsHelper(name) {
		return false
	}
	p.Helpers = append(p.Helpers, name)
	return true
}

func (p *Plot) RemoveHelper(name string) bool {
	var ok bool
	p.Helpers, ok = removeFold(p.Helpers, name)
	return ok
}

func (p *Plot) AddDenied(name string) bool {
	if p.IsDenied(name) {
		return false
	}
	p.Denied = append(p.Denied, name)
	return true
}

func (p *Plot) RemoveDenied(name string) bool {
	var ok bool
	p.Denied, ok = removeFold(p.Denied, name)
	return ok
}

func containsFold(list []string, name string) bool {
	for _, e := range list {
		if strings.EqualFold(e, name) {
			return true
		}
	}
	return false
}

func removeFold(list []string, name string) ([]string, bool) {
	out := list[:0:0]
	removed := false
	for _, e := range list {
		if strings.EqualFold(e, name) {
			removed = true
			continue
		}
		out = append(out, e)
	}
	if !removed {
		return list, false
	}
	return out, true
}

// JoinList encodes a list for storage. An empty list encodes as "".
func JoinList(list []string) string {
	return strings.Join(list, ListSeparator)
}

// SplitList decodes a stored list. Blank text decodes as an empty list, never [""].
func SplitList(s string) []string {
	if strings.TrimSpace(s) == "" {
		return []string{}
	}
	return strings.Split(s, ListSeparator)
}

// Key identifies a cell across levels.
type Key struct {
	Level string
	X     int
	Z     int
}

func (t TriState) MarshalJSON() ([]byte, error) {
	switch t {
	case On:
		return []byte("true"), nil
	case Off:
		return []byte("false"), nil
	default:
		return []byte("null"), nil
	}
}

func (t *TriState) UnmarshalJSON(b []byte) error {
	switch strings.TrimSpace(string(b)) {
	case "true":
		*t = On
	case "false":
		*t = Off
	case "null", "":
		*t = Unset
	default:
		return fmt.Errorf("pvp: want true, false or null, got %s", b)
	}
	return nil
}
