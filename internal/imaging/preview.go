package imaging

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math"
	"strconv"

	"github.com/anthonynsimon/bild/clone"
	"github.com/anthonynsimon/bild/imgio"
	"github.com/disintegration/imaging"
	"github.com/lucasb-eyer/go-colorful"
)

// Overlay is one annotated region to draw on a preview.
type Overlay struct {
	Hull   []image.Point
	Filled []image.Point
}

// PreviewOptions controls how overlays are drawn.
type PreviewOptions struct {
	// OutlineHex fixes the hull outline color ("#RRGGBB"). Empty means each
	// overlay's outline uses its own fill color.
	OutlineHex string

	// FillOpacity is how strongly filled pixels are tinted, in [0, 1].
	FillOpacity float64

	// Labels draws each overlay's index above its top-left corner.
	Labels bool
}

// DefaultPreviewOptions returns the options the preview tool uses.
func DefaultPreviewOptions() PreviewOptions {
	return PreviewOptions{FillOpacity: 0.45, Labels: true}
}

// OverlayColor returns the tint for overlay i. Hues advance by the golden
// angle so neighbouring indices stay distinguishable.
func OverlayColor(i int) colorful.Color {
	return colorful.Hsv(math.Mod(float64(i)*137.508, 360), 0.85, 1)
}

// RenderPreview draws overlays over a contrast-stretched rendering of b.
func RenderPreview(b *Band, overlays []Overlay, opts PreviewOptions) (*image.RGBA, error) {
	var outline *colorful.Color
	if opts.OutlineHex != "" {
		c, err := colorful.Hex(opts.OutlineHex)
		if err != nil {
			return nil, fmt.Errorf("invalid outline color %q: %w", opts.OutlineHex, err)
		}
		outline = &c
	}
	opacity := math.Max(0, math.Min(1, opts.FillOpacity))

	img := clone.AsRGBA(b.Gray())
	for i, o := range overlays {
		tint := OverlayColor(i)
		for _, p := range o.Filled {
			if !p.In(img.Rect) {
				continue
			}
			base, _ := colorful.MakeColor(img.At(p.X, p.Y))
			img.Set(p.X, p.Y, base.BlendRgb(tint, opacity).Clamped())
		}

		line := tint
		if outline != nil {
			line = *outline
		}
		drawLoop(img, o.Hull, line)

		if opts.Labels && len(o.Hull) > 0 {
			r := image.Rectangle{Min: o.Hull[0], Max: o.Hull[0]}
			for _, p := range o.Hull {
				r = r.Union(image.Rectangle{Min: p, Max: p.Add(image.Pt(1, 1))})
			}
			drawLabel(img, r.Min.X, r.Min.Y-8, strconv.Itoa(i), color.RGBA{255, 255, 255, 255}, color.RGBA{0, 0, 0, 180})
		}
	}
	return img, nil
}

// SavePreview writes img as a PNG file.
func SavePreview(path string, img image.Image) error {
	if err := imgio.Save(path, img, imgio.PNGEncoder()); err != nil {
		return fmt.Errorf("failed to save preview: %w", err)
	}
	return nil
}

// PreviewResult contains an encoded preview image.
type PreviewResult struct {
	Width       int    `json:"width"`
	Height      int    `json:"height"`
	ImageBase64 string `json:"image_base64"`
	MimeType    string `json:"mime_type"`
}

// EncodePreview crops img to region (the whole image when region is empty),
// scales it and returns it as base64 PNG.
func EncodePreview(img image.Image, region image.Rectangle, scale float64) (*PreviewResult, error) {
	bounds := img.Bounds()
	if region.Empty() {
		region = bounds
	}
	if !region.In(bounds) {
		return nil, fmt.Errorf("preview region %v outside image bounds %v", region, bounds)
	}

	var out image.Image = imaging.Crop(img, region)
	if scale != 1.0 && scale > 0 {
		newWidth := int(float64(region.Dx()) * scale)
		newHeight := int(float64(region.Dy()) * scale)
		if newWidth < 1 || newHeight < 1 {
			return nil, fmt.Errorf("scale %g leaves an empty preview", scale)
		}
		out = imaging.Resize(out, newWidth, newHeight, imaging.NearestNeighbor)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, out); err != nil {
		return nil, fmt.Errorf("failed to encode preview: %w", err)
	}

	return &PreviewResult{
		Width:       out.Bounds().Dx(),
		Height:      out.Bounds().Dy(),
		ImageBase64: base64.StdEncoding.EncodeToString(buf.Bytes()),
		MimeType:    "image/png",
	}, nil
}

// drawLoop strokes the closed polygon through pts.
func drawLoop(img *image.RGBA, pts []image.Point, c color.Color) {
	for i := range pts {
		drawLine(img, pts[i], pts[(i+1)%len(pts)], c)
	}
}

// drawLine is Bresenham's line between a and b, both ends included.
func drawLine(img *image.RGBA, a, b image.Point, c color.Color) {
	dx := abs(b.X - a.X)
	dy := -abs(b.Y - a.Y)
	sx, sy := 1, 1
	if a.X > b.X {
		sx = -1
	}
	if a.Y > b.Y {
		sy = -1
	}
	err := dx + dy
	x, y := a.X, a.Y
	for {
		if image.Pt(x, y).In(img.Rect) {
			img.Set(x, y, c)
		}
		if x == b.X && y == b.Y {
			return
		}
		e2 := 2 * err
		if e2 >= dy {
			err += dy
			x += sx
		}
		if e2 <= dx {
			err += dx
			y += sy
		}
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// drawLabel draws digits in a 3x5 pixel font on a filled background.
func drawLabel(img *image.RGBA, x, y int, text string, fg, bg color.RGBA) {
	glyphs := map[rune][]string{
		'0': {"111", "101", "101", "101", "111"},
		'1': {"010", "110", "010", "010", "111"},
		'2': {"111", "001", "111", "100", "111"},
		'3': {"111", "001", "111", "001", "111"},
		'4': {"101", "101", "111", "001", "001"},
		'5': {"111", "100", "111", "001", "111"},
		'6': {"111", "100", "111", "101", "111"},
		'7': {"111", "001", "001", "001", "001"},
		'8': {"111", "101", "111", "101", "111"},
		'9': {"111", "101", "111", "001", "111"},
	}

	bounds := img.Bounds()
	charWidth := 4
	labelWidth := len(text) * charWidth
	labelHeight := 7

	for dy := -1; dy < labelHeight; dy++ {
		for dx := -1; dx < labelWidth; dx++ {
			if p := image.Pt(x+dx, y+dy); p.In(bounds) {
				img.Set(p.X, p.Y, bg)
			}
		}
	}

	cx := x
	for _, ch := range text {
		for row, line := range glyphs[ch] {
			for col, pixel := range line {
				if pixel != '1' {
					continue
				}
				if p := image.Pt(cx+col, y+row); p.In(bounds) {
					img.Set(p.X, p.Y, fg)
				}
			}
		}
		cx += charWidth
	}
}
