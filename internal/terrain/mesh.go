package terrain

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/paulmach/orb"

	"github.com/ironsheep/scene-tools-mcp/internal/logging"
)

// MeshService is an in-process Service over Wavefront OBJ terrain meshes.
//
// Only vertex ("v") and face ("f") records are read; faces with more than
// three corners are fanned into triangles. A query picks the highest
// triangle whose XY footprint contains the point, which is what a downward
// ray from above the terrain would hit first.
type MeshService struct {
	mu     sync.RWMutex
	meshes map[string]*mesh
}

// NewMeshService creates an empty MeshService.
func NewMeshService() *MeshService {
	return &MeshService{meshes: make(map[string]*mesh)}
}

type meshTriangle struct {
	a, b, c mgl64.Vec3
	bound   orb.Bound
	normal  mgl64.Vec3
	denom   float64
}

type mesh struct {
	triangles []meshTriangle
	maxZ      float64
}

// Compile loads the OBJ mesh at baseGeometryPath.
func (s *MeshService) Compile(ctx context.Context, baseGeometryPath string) (Handle, error) {
	f, err := os.Open(baseGeometryPath)
	if err != nil {
		return Handle{}, fmt.Errorf("failed to open mesh: %w", err)
	}
	defer f.Close()

	m, err := parseOBJ(f)
	if err != nil {
		return Handle{}, fmt.Errorf("failed to parse mesh %s: %w", baseGeometryPath, err)
	}

	s.mu.Lock()
	s.meshes[baseGeometryPath] = m
	s.mu.Unlock()

	logging.Logger().Info("loaded terrain mesh", "path", baseGeometryPath, "triangles", len(m.triangles), "max_z", m.maxZ)
	return Handle{Path: baseGeometryPath, MaxElevation: m.maxZ}, nil
}

// Query returns the elevation and upward normal of the top surface at (x, y).
func (s *MeshService) Query(ctx context.Context, h Handle, x, y float64) (HeightQueryResult, error) {
	m, err := s.lookup(h)
	if err != nil {
		return HeightQueryResult{}, err
	}
	return m.query(x, y)
}

// QueryBatch answers each point against the same loaded mesh.
func (s *MeshService) QueryBatch(ctx context.Context, h Handle, points []orb.Point) ([]BatchResult, error) {
	m, err := s.lookup(h)
	if err != nil {
		return nil, err
	}
	return queryEach(ctx, points, m.query)
}

func (s *MeshService) lookup(h Handle) (*mesh, error) {
	s.mu.RLock()
	m, ok := s.meshes[h.Path]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("terrain %q has not been compiled", h.Path)
	}
	return m, nil
}

func (m *mesh) query(x, y float64) (HeightQueryResult, error) {
	pt := orb.Point{x, y}
	best := -1
	bestZ := math.Inf(-1)
	for i := range m.triangles {
		t := &m.triangles[i]
		if !t.bound.Contains(pt) {
			continue
		}
		wa, wb, wc, ok := t.barycentric(x, y)
		if !ok {
			continue
		}
		z := wa*t.a[2] + wb*t.b[2] + wc*t.c[2]
		if z > bestZ {
			best, bestZ = i, z
		}
	}
	if best < 0 {
		return HeightQueryResult{}, fmt.Errorf("query (%g, %g): %w", x, y, ErrNoIntersection)
	}
	return HeightQueryResult{Elevation: bestZ, Normal: m.triangles[best].normal}, nil
}

const barycentricTolerance = 1e-12

// barycentric returns the weights of (x, y) against the triangle's XY
// projection, or ok=false when the point is outside or the triangle is
// vertical.
func (t *meshTriangle) barycentric(x, y float64) (wa, wb, wc float64, ok bool) {
	if t.denom == 0 {
		return 0, 0, 0, false
	}
	wa = ((t.b[1]-t.c[1])*(x-t.c[0]) + (t.c[0]-t.b[0])*(y-t.c[1])) / t.denom
	wb = ((t.c[1]-t.a[1])*(x-t.c[0]) + (t.a[0]-t.c[0])*(y-t.c[1])) / t.denom
	wc = 1 - wa - wb
	if wa < -barycentricTolerance || wb < -barycentricTolerance || wc < -barycentricTolerance {
		return 0, 0, 0, false
	}
	return wa, wb, wc, true
}

func newMeshTriangle(a, b, c mgl64.Vec3) (meshTriangle, bool) {
	denom := (b[1]-c[1])*(a[0]-c[0]) + (c[0]-b[0])*(a[1]-c[1])
	if math.Abs(denom) < 1e-12 {
		return meshTriangle{}, false
	}
	n, ok := unitNormal(b.Sub(a).Cross(c.Sub(a)))
	if !ok {
		return meshTriangle{}, false
	}
	if n[2] < 0 {
		n = n.Mul(-1)
	}
	bound := orb.MultiPoint{{a[0], a[1]}, {b[0], b[1]}, {c[0], c[1]}}.Bound()
	return meshTriangle{a: a, b: b, c: c, bound: bound, normal: n, denom: denom}, true
}

// parseOBJ reads v and f records. Face indices may be negative (relative)
// and may carry texture/normal references ("3/1/2"), which are ignored.
func parseOBJ(r io.Reader) (*mesh, error) {
	var verts []mgl64.Vec3
	m := &mesh{maxZ: math.Inf(-1)}

	sc := bufio.NewScanner(r)
	line := 0
	for sc.Scan() {
		line++
		fields := strings.Fields(sc.Text())
		if len(fields) == 0 || strings.HasPrefix(fields[0], "#") {
			continue
		}
		switch fields[0] {
		case "v":
			if len(fields) < 4 {
				return nil, fmt.Errorf("line %d: vertex needs 3 coordinates", line)
			}
			var v mgl64.Vec3
			for i := 0; i < 3; i++ {
				f, err := strconv.ParseFloat(fields[i+1], 64)
				if err != nil {
					return nil, fmt.Errorf("line %d: %w", line, err)
				}
				v[i] = f
			}
			verts = append(verts, v)
		case "f":
			if len(fields) < 4 {
				return nil, fmt.Errorf("line %d: face needs at least 3 vertices", line)
			}
			corners := make([]mgl64.Vec3, 0, len(fields)-1)
			for _, ref := range fields[1:] {
				idx, err := faceIndex(ref, len(verts))
				if err != nil {
					return nil, fmt.Errorf("line %d: %w", line, err)
				}
				corners = append(corners, verts[idx])
			}
			for i := 1; i+1 < len(corners); i++ {
				t, ok := newMeshTriangle(corners[0], corners[i], corners[i+1])
				if !ok {
					continue
				}
				m.triangles = append(m.triangles, t)
				m.maxZ = math.Max(m.maxZ, math.Max(t.a[2], math.Max(t.b[2], t.c[2])))
			}
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if len(m.triangles) == 0 {
		return nil, fmt.Errorf("mesh has no usable triangles")
	}
	return m, nil
}

func faceIndex(ref string, n int) (int, error) {
	if i := strings.IndexByte(ref, '/'); i >= 0 {
		ref = ref[:i]
	}
	idx, err := strconv.Atoi(ref)
	if err != nil {
		return 0, fmt.Errorf("bad face index %q", ref)
	}
	switch {
	case idx > 0:
		idx--
	case idx < 0:
		idx += n
	default:
		return 0, fmt.Errorf("face index 0 is invalid")
	}
	if idx < 0 || idx >= n {
		return 0, fmt.Errorf("face index %s out of range", ref)
	}
	return idx, nil
}

func vec3(v []float64) mgl64.Vec3 {
	return mgl64.Vec3{v[0], v[1], v[2]}
}
