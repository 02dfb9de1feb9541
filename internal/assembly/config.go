package assembly

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ironsheep/scene-tools-mcp/internal/terrain"
)

// Config describes one scene assembly.
type Config struct {
	Seed int64 `yaml:"seed"`

	// Catalog is the object catalog file.
	Catalog string `yaml:"catalog"`

	// OutputDir receives cluster files, the transform journal and
	// annotations.
	OutputDir string `yaml:"output_dir"`

	// MatchSlope tilts every static instance onto the terrain, in addition
	// to the instances whose catalog entry or spec asks for it.
	MatchSlope bool `yaml:"match_slope"`

	// OnMiss is "skip" (drop instances with no terrain below them) or
	// "abort".
	OnMiss string `yaml:"on_miss"`

	Terrain  TerrainConfig `yaml:"terrain"`
	Objects  []ObjectSpec  `yaml:"objects"`
	Clusters []ClusterSpec `yaml:"clusters"`
	Annotate *AnnotateSpec `yaml:"annotate,omitempty"`
}

// TerrainConfig selects the terrain geometry and the backend that queries
// it. An empty Geometry leaves every instance at its configured height.
type TerrainConfig struct {
	Geometry string `yaml:"geometry"`

	// Backend is "mesh" (in-process OBJ) or "tool" (external scene tools).
	Backend string                 `yaml:"backend"`
	WorkDir string                 `yaml:"work_dir"`
	Origin  terrain.GeodeticOrigin `yaml:"origin"`
}

// ObjectSpec places one catalog object.
type ObjectSpec struct {
	Type        string      `yaml:"type"`
	Translation [3]float64  `yaml:"translation"`
	Rotation    [3]float64  `yaml:"rotation"`
	Scale       *[3]float64 `yaml:"scale,omitempty"`
	MatchSlope  *bool       `yaml:"match_slope,omitempty"`
}

// ClusterSpec scatters copies of one catalog object over an area: a polygon
// when Polygon is set, otherwise the hexagon of Radius around Center.
type ClusterSpec struct {
	Type    string       `yaml:"type"`
	Count   int          `yaml:"count"`
	Center  [2]float64   `yaml:"center"`
	Radius  float64      `yaml:"radius"`
	Polygon [][2]float64 `yaml:"polygon,omitempty"`

	// MinDistance switches to a spaced layout; Count is then ignored.
	MinDistance float64 `yaml:"min_distance,omitempty"`
}

// AnnotateSpec turns a rendered truth cube into annotation files.
type AnnotateSpec struct {
	// Truth is the ENVI header of the truth cube.
	Truth     string  `yaml:"truth"`
	Image     string  `yaml:"image"`
	Threshold float64 `yaml:"threshold"`

	// Index, when set, is a SQLite database the annotations are recorded in.
	Index string `yaml:"index,omitempty"`
}

// LoadConfig reads an assembly config. Relative paths inside it are taken
// relative to the file's directory.
func LoadConfig(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg, err := ParseConfig(b)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	cfg.resolve(filepath.Dir(path))
	return cfg, nil
}

// ParseConfig decodes config YAML, fills defaults and validates it.
func ParseConfig(b []byte) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(b, cfg); err != nil {
		return nil, err
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Normalize fills defaults.
func (c *Config) Normalize() {
	if c.OutputDir == "" {
		c.OutputDir = "out"
	}
	c.OnMiss = strings.ToLower(strings.TrimSpace(c.OnMiss))
	if c.OnMiss == "" {
		c.OnMiss = "skip"
	}
	c.Terrain.Backend = strings.ToLower(strings.TrimSpace(c.Terrain.Backend))
	if c.Terrain.Backend == "" {
		c.Terrain.Backend = "mesh"
	}
}

// Validate checks the config for values a run cannot use.
func (c *Config) Validate() error {
	if c.Catalog == "" {
		return fmt.Errorf("catalog is required")
	}
	switch c.OnMiss {
	case "skip", "abort":
	default:
		return fmt.Errorf("on_miss must be skip or abort, got %q", c.OnMiss)
	}
	switch c.Terrain.Backend {
	case "mesh", "tool":
	default:
		return fmt.Errorf("terrain backend must be mesh or tool, got %q", c.Terrain.Backend)
	}
	for i, o := range c.Objects {
		if o.Type == "" {
			return fmt.Errorf("objects[%d]: type is required", i)
		}
	}
	for i, cl := range c.Clusters {
		if cl.Type == "" {
			return fmt.Errorf("clusters[%d]: type is required", i)
		}
		if cl.Count < 0 {
			return fmt.Errorf("clusters[%d]: count must not be negative", i)
		}
		if cl.MinDistance < 0 {
			return fmt.Errorf("clusters[%d]: min_distance must not be negative", i)
		}
		if len(cl.Polygon) == 0 && cl.Radius <= 0 {
			return fmt.Errorf("clusters[%d]: radius must be positive without a polygon", i)
		}
	}
	if c.Annotate != nil && (c.Annotate.Truth == "" || c.Annotate.Image == "") {
		return fmt.Errorf("annotate: truth and image are required")
	}
	return nil
}

func (c *Config) resolve(dir string) {
	abs := func(p *string) {
		if *p != "" && !filepath.IsAbs(*p) {
			*p = filepath.Join(dir, *p)
		}
	}
	abs(&c.Catalog)
	abs(&c.OutputDir)
	abs(&c.Terrain.Geometry)
	abs(&c.Terrain.WorkDir)
	if c.Annotate != nil {
		abs(&c.Annotate.Truth)
		abs(&c.Annotate.Index)
	}
}
