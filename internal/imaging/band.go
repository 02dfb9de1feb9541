package imaging

import (
	"fmt"
	"image"
	"image/color"
	"math"
)

// Band is one single-channel raster plane, stored row-major.
type Band struct {
	// Name is the band label, e.g. "Abundance of 'Truck_3'".
	Name string

	Width  int
	Height int

	// Pix holds Width*Height samples; the sample at (x, y) is Pix[y*Width+x].
	Pix []float64
}

// NewBand allocates a zero-filled band.
func NewBand(name string, width, height int) *Band {
	return &Band{
		Name:   name,
		Width:  width,
		Height: height,
		Pix:    make([]float64, width*height),
	}
}

// At returns the sample at (x, y). Out of range coordinates read as 0.
func (b *Band) At(x, y int) float64 {
	if x < 0 || y < 0 || x >= b.Width || y >= b.Height {
		return 0
	}
	return b.Pix[y*b.Width+x]
}

// Set stores v at (x, y). Out of range coordinates are ignored.
func (b *Band) Set(x, y int, v float64) {
	if x < 0 || y < 0 || x >= b.Width || y >= b.Height {
		return
	}
	b.Pix[y*b.Width+x] = v
}

// Bounds returns the band rectangle with its origin at (0, 0).
func (b *Band) Bounds() image.Rectangle {
	return image.Rect(0, 0, b.Width, b.Height)
}

// Validate checks the sample count against the dimensions.
func (b *Band) Validate() error {
	if b.Width <= 0 || b.Height <= 0 {
		return fmt.Errorf("band %q has invalid size %dx%d", b.Name, b.Width, b.Height)
	}
	if len(b.Pix) != b.Width*b.Height {
		return fmt.Errorf("band %q has %d samples, want %d", b.Name, len(b.Pix), b.Width*b.Height)
	}
	return nil
}

// BandFromImage converts img to a band of 16-bit luminance scaled to [0, 1].
func BandFromImage(name string, img image.Image) *Band {
	bounds := img.Bounds()
	b := NewBand(name, bounds.Dx(), bounds.Dy())
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			g := color.Gray16Model.Convert(img.At(x, y)).(color.Gray16)
			b.Pix[(y-bounds.Min.Y)*b.Width+(x-bounds.Min.X)] = float64(g.Y) / 0xffff
		}
	}
	return b
}

// Gray renders the band as an 8-bit image, stretching [min, max] to
// [0, 255]. A constant band renders black.
func (b *Band) Gray() *image.Gray {
	img := image.NewGray(b.Bounds())
	lo, hi := b.Range()
	span := hi - lo
	for i, v := range b.Pix {
		if span <= 0 || math.IsNaN(v) {
			continue
		}
		img.Pix[i] = uint8(math.Round((v - lo) / span * 255))
	}
	return img
}

// Range returns the smallest and largest finite samples.
func (b *Band) Range() (lo, hi float64) {
	lo, hi = math.Inf(1), math.Inf(-1)
	for _, v := range b.Pix {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	if lo > hi {
		return 0, 0
	}
	return lo, hi
}
