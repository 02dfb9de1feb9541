package placement

import (
	"fmt"
	"strings"
)

// Kind distinguishes individually transformed instances from clustered ones.
type Kind int

const (
	Static Kind = iota
	Clustered
)

func (k Kind) String() string {
	switch k {
	case Static:
		return "static"
	case Clustered:
		return "clustered"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// MarshalText encodes the kind by name.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Instance is one object in the scene.
type Instance struct {
	ID   string `json:"instance_id"`
	Type string `json:"type"`

	Translation [3]float64 `json:"translation"`
	Rotation    [3]float64 `json:"rotation"`
	Scale       [3]float64 `json:"scale"`

	// Anchor names the frame a clustered instance is positioned relative
	// to. It is a name only.
	Anchor string `json:"anchor,omitempty"`
	Kind   Kind   `json:"kind"`

	// ClusterFile is the batched placement file of a clustered instance.
	ClusterFile string `json:"cluster_file,omitempty"`

	// MatchSlope asks ConformToTerrain to tilt this instance onto the
	// terrain surface.
	MatchSlope bool `json:"match_slope,omitempty"`
}

// Move offsets the translation by dt (meters) and the rotation by dr
// (degrees).
func (i *Instance) Move(dt, dr [3]float64) {
	for k := 0; k < 3; k++ {
		i.Translation[k] += dt[k]
		i.Rotation[k] += dr[k]
	}
}

// ScaleBy multiplies the scale factors component-wise.
func (i *Instance) ScaleBy(f [3]float64) {
	for k := 0; k < 3; k++ {
		i.Scale[k] *= f[k]
	}
}

// IDAllocator hands out sequential instance ids of the form "<Type>_<n>",
// counting separately per type. Spaces are removed from the type name.
// One allocator belongs to one assembly run.
type IDAllocator struct {
	next map[string]int
}

// NewIDAllocator returns an allocator whose counters all start at zero.
func NewIDAllocator() *IDAllocator {
	return &IDAllocator{next: make(map[string]int)}
}

// Next returns the next id for typ.
func (a *IDAllocator) Next(typ string) string {
	name := strings.ReplaceAll(typ, " ", "")
	n := a.next[name]
	a.next[name] = n + 1
	return fmt.Sprintf("%s_%d", name, n)
}
