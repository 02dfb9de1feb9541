package annotate

import (
	"errors"
	"fmt"
	"image"

	"github.com/ironsheep/scene-tools-mcp/internal/geometry"
	"github.com/ironsheep/scene-tools-mcp/internal/imaging"
)

var (
	// ErrEmptyRegion means no pixel exceeded the threshold.
	ErrEmptyRegion = errors.New("empty region")

	// ErrDegenerateHull means the region's pixels are all collinear, so it
	// has no area.
	ErrDegenerateHull = errors.New("degenerate hull")
)

// Mask is the annotation geometry of one object region.
type Mask struct {
	// BBox is [x, y, w, h] where w and h are the hull's extent
	// (max - min), so a single-pixel-wide region has width 0.
	BBox [4]int `json:"bbox"`

	// Hull holds the convex hull vertices in traversal order.
	Hull []image.Point `json:"-"`

	// Filled holds every pixel of the region in row-major scan order.
	Filled []image.Point `json:"-"`
}

// Extract builds the mask of the pixels in b whose value is greater than
// threshold.
//
// The band should contain a single connected region; Components can check
// that. Extract itself hulls whatever it finds.
func Extract(b *imaging.Band, threshold float64) (*Mask, error) {
	if err := b.Validate(); err != nil {
		return nil, err
	}

	var filled []image.Point
	for y := 0; y < b.Height; y++ {
		row := b.Pix[y*b.Width : (y+1)*b.Width]
		for x, v := range row {
			if v > threshold {
				filled = append(filled, image.Point{X: x, Y: y})
			}
		}
	}
	if len(filled) == 0 {
		return nil, fmt.Errorf("band %q: %w", b.Name, ErrEmptyRegion)
	}

	hull := geometry.ConvexHull(filled)
	if len(hull) < 3 {
		return nil, fmt.Errorf("band %q: %d pixel(s) span no area: %w", b.Name, len(filled), ErrDegenerateHull)
	}

	minX, minY := hull[0].X, hull[0].Y
	maxX, maxY := minX, minY
	for _, p := range hull[1:] {
		minX = min(minX, p.X)
		minY = min(minY, p.Y)
		maxX = max(maxX, p.X)
		maxY = max(maxY, p.Y)
	}

	return &Mask{
		BBox:   [4]int{minX, minY, maxX - minX, maxY - minY},
		Hull:   hull,
		Filled: filled,
	}, nil
}

// Segmentation returns the hull as flat x, y pairs.
func (m *Mask) Segmentation() []int {
	return flatten(m.Hull)
}

// SegmentationFill returns every filled pixel as flat x, y pairs.
func (m *Mask) SegmentationFill() []int {
	return flatten(m.Filled)
}

func flatten(pts []image.Point) []int {
	out := make([]int, 0, 2*len(pts))
	for _, p := range pts {
		out = append(out, p.X, p.Y)
	}
	return out
}
