package terrain

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/paulmach/orb"
)

// ErrNoIntersection is returned when the downward ray at a point misses the
// terrain.
var ErrNoIntersection = errors.New("no terrain intersection")

// ExternalToolError reports a failed or misbehaving external program.
type ExternalToolError struct {
	// Command is the program and its arguments.
	Command []string

	// ExitCode is the process exit status, or -1 when the process did not
	// run or exited cleanly with unusable output.
	ExitCode int

	// Stderr holds whatever the program wrote to standard error.
	Stderr string

	// Err is the underlying cause.
	Err error
}

func (e *ExternalToolError) Error() string {
	msg := fmt.Sprintf("external tool %q failed", strings.Join(e.Command, " "))
	if e.ExitCode >= 0 {
		msg += fmt.Sprintf(" (exit %d)", e.ExitCode)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if s := strings.TrimSpace(e.Stderr); s != "" {
		msg += ": " + s
	}
	return msg
}

func (e *ExternalToolError) Unwrap() error { return e.Err }

// Handle identifies a compiled height field.
type Handle struct {
	// Path is the compiled artifact (or, for MeshService, the source mesh).
	Path string `json:"path"`

	// MaxElevation is the highest terrain z, read once at compile time.
	MaxElevation float64 `json:"max_elevation"`
}

// RayOrigin is the altitude downward rays start from: one unit above the
// integer part of the terrain's maximum elevation.
func (h Handle) RayOrigin() float64 {
	return float64(int(h.MaxElevation)) + 1
}

// HeightQueryResult is the first ray hit at a point.
type HeightQueryResult struct {
	Elevation float64    `json:"elevation"`
	Normal    mgl64.Vec3 `json:"normal"`
}

// BatchResult is one slot of a batched query. Exactly one of Result and Err
// is meaningful.
type BatchResult struct {
	Result HeightQueryResult
	Err    error
}

// Service compiles height fields and answers elevation queries.
//
// QueryBatch must return, for every point, exactly what Query would return for
// it alone. A per-point ErrNoIntersection lands in that point's slot; a
// returned error means the whole batch failed.
type Service interface {
	Compile(ctx context.Context, baseGeometryPath string) (Handle, error)
	Query(ctx context.Context, h Handle, x, y float64) (HeightQueryResult, error)
	QueryBatch(ctx context.Context, h Handle, points []orb.Point) ([]BatchResult, error)
}

// unitNormal normalises n, reporting false for a zero or non-finite vector.
func unitNormal(n mgl64.Vec3) (mgl64.Vec3, bool) {
	l := n.Len()
	if l == 0 || math.IsNaN(l) || math.IsInf(l, 0) {
		return mgl64.Vec3{}, false
	}
	return n.Mul(1 / l), true
}

// queryEach implements QueryBatch on top of a per-point query.
func queryEach(ctx context.Context, points []orb.Point, query func(x, y float64) (HeightQueryResult, error)) ([]BatchResult, error) {
	out := make([]BatchResult, len(points))
	for i, p := range points {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		r, err := query(p[0], p[1])
		if err != nil && !errors.Is(err, ErrNoIntersection) {
			return nil, err
		}
		out[i] = BatchResult{Result: r, Err: err}
	}
	return out, nil
}
