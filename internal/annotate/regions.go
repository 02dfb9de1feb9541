package annotate

import (
	"image"

	"github.com/ironsheep/scene-tools-mcp/internal/imaging"
)

// Regions groups the pixels above threshold into 8-connected regions, in
// order of each region's first pixel in a row-major scan. A malformed band
// has no regions.
func Regions(b *imaging.Band, threshold float64) [][]image.Point {
	if b.Validate() != nil {
		return nil
	}
	visited := make([]bool, len(b.Pix))
	var regions [][]image.Point

	for y := 0; y < b.Height; y++ {
		for x := 0; x < b.Width; x++ {
			i := y*b.Width + x
			if visited[i] || !(b.Pix[i] > threshold) {
				continue
			}
			var region []image.Point
			floodFill(b, threshold, visited, x, y, &region)
			regions = append(regions, region)
		}
	}
	return regions
}

// Components counts the 8-connected regions above threshold.
func Components(b *imaging.Band, threshold float64) int {
	return len(Regions(b, threshold))
}

// floodFill collects the region containing (startX, startY) with an explicit
// stack.
func floodFill(b *imaging.Band, threshold float64, visited []bool, startX, startY int, region *[]image.Point) {
	stack := []image.Point{{X: startX, Y: startY}}

	for len(stack) > 0 {
		p := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if p.X < 0 || p.X >= b.Width || p.Y < 0 || p.Y >= b.Height {
			continue
		}
		i := p.Y*b.Width + p.X
		if visited[i] || !(b.Pix[i] > threshold) {
			continue
		}

		visited[i] = true
		*region = append(*region, p)

		for dy := -1; dy <= 1; dy++ {
			for dx := -1; dx <= 1; dx++ {
				if dx == 0 && dy == 0 {
					continue
				}
				stack = append(stack, image.Point{X: p.X + dx, Y: p.Y + dy})
			}
		}
	}
}
