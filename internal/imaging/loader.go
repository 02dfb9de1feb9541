package imaging

import (
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/disintegration/imaging"
	"github.com/dustin/go-humanize"
	"golang.org/x/image/tiff"
)

// RasterCache provides thread-safe caching of decoded truth rasters.
//
// A raster file decodes to one or more bands: ENVI cubes keep every band,
// PNG, JPEG and TIFF files produce a single luminance band named after the
// file. Entries are keyed by the exact path string given to Load.
//
// # Example Usage
//
//	cache := imaging.NewRasterCache()
//	bands, err := cache.Load("/out/capture-truth.img.hdr")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	cache.Evict("/out/capture-truth.img.hdr") // Optional: free memory
type RasterCache struct {
	mu      sync.RWMutex
	rasters map[string][]*Band
}

// NewRasterCache creates and initializes a new empty raster cache.
func NewRasterCache() *RasterCache {
	return &RasterCache{
		rasters: make(map[string][]*Band),
	}
}

// Load retrieves the bands of a raster from the cache or decodes them from
// disk.
//
// The format is chosen by extension:
//   - ".hdr": ENVI cube (see ReadENVI)
//   - ".tif", ".tiff": TIFF, decoded at full 16-bit depth
//   - anything else: any format the imaging library opens (PNG, JPEG, GIF, BMP)
//
// Callers must not modify the returned bands.
func (c *RasterCache) Load(path string) ([]*Band, error) {
	c.mu.RLock()
	if bands, ok := c.rasters[path]; ok {
		c.mu.RUnlock()
		return bands, nil
	}
	c.mu.RUnlock()

	bands, err := decodeRaster(path)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.rasters[path] = bands
	c.mu.Unlock()

	return bands, nil
}

// LoadBand returns the band at index from the raster at path.
func (c *RasterCache) LoadBand(path string, index int) (*Band, error) {
	bands, err := c.Load(path)
	if err != nil {
		return nil, err
	}
	if index < 0 || index >= len(bands) {
		return nil, fmt.Errorf("band %d out of range: %s has %d band(s)", index, path, len(bands))
	}
	return bands[index], nil
}

// Clear removes all rasters from the cache.
func (c *RasterCache) Clear() {
	c.mu.Lock()
	c.rasters = make(map[string][]*Band)
	c.mu.Unlock()
}

// Evict removes a specific raster from the cache by its path.
func (c *RasterCache) Evict(path string) {
	c.mu.Lock()
	delete(c.rasters, path)
	c.mu.Unlock()
}

func decodeRaster(path string) ([]*Band, error) {
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))

	switch strings.ToLower(filepath.Ext(path)) {
	case ".hdr":
		return ReadENVI(path)
	case ".tif", ".tiff":
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open raster: %w", err)
		}
		defer f.Close()
		img, err := tiff.Decode(f)
		if err != nil {
			return nil, fmt.Errorf("failed to decode raster: %w", err)
		}
		return []*Band{BandFromImage(name, img)}, nil
	default:
		img, err := imaging.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to decode raster: %w", err)
		}
		return []*Band{BandFromImage(name, img)}, nil
	}
}

// RasterInfo contains metadata about a loaded raster file.
type RasterInfo struct {
	// Width is the raster width in pixels.
	Width int `json:"width"`

	// Height is the raster height in pixels.
	Height int `json:"height"`

	// Format is "envi", "tiff", "png", "jpeg", "gif" or "unknown", taken from
	// the file extension.
	Format string `json:"format"`

	// BandNames lists every band in file order.
	BandNames []string `json:"band_names"`

	// FileSizeBytes is the size of the file on disk. For ENVI this is the
	// data file, not the header.
	FileSizeBytes int64 `json:"file_size_bytes"`

	// FileSize is FileSizeBytes in human-readable form.
	FileSize string `json:"file_size"`
}

// LoadRasterInfo loads a raster into the cache (if not already cached) and
// describes it.
func LoadRasterInfo(cache *RasterCache, path string) (*RasterInfo, error) {
	bands, err := cache.Load(path)
	if err != nil {
		return nil, err
	}

	format := "unknown"
	sizePath := path
	switch strings.ToLower(filepath.Ext(path)) {
	case ".hdr":
		format = "envi"
		sizePath = strings.TrimSuffix(path, filepath.Ext(path))
	case ".tif", ".tiff":
		format = "tiff"
	case ".png":
		format = "png"
	case ".jpg", ".jpeg":
		format = "jpeg"
	case ".gif":
		format = "gif"
	}

	stat, err := os.Stat(sizePath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}

	names := make([]string, len(bands))
	for i, b := range bands {
		names[i] = b.Name
	}

	var bounds image.Rectangle
	if len(bands) > 0 {
		bounds = bands[0].Bounds()
	}
	return &RasterInfo{
		Width:         bounds.Dx(),
		Height:        bounds.Dy(),
		Format:        format,
		BandNames:     names,
		FileSizeBytes: stat.Size(),
		FileSize:      humanize.Bytes(uint64(stat.Size())),
	}, nil
}
