// Package catalog maps object type names to their asset files and placement
// defaults, loaded from a YAML catalog.
package catalog

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ironsheep/scene-tools-mcp/internal/placement"
)

// ErrUnknownType is returned by Instantiate for a type the catalog lacks.
var ErrUnknownType = errors.New("unknown object type")

// Catalog is the set of object types a scene may use.
type Catalog struct {
	// Root is the directory asset paths are resolved against.
	Root    string            `yaml:"root"`
	Objects map[string]Object `yaml:"objects"`
}

// Object describes one object type.
type Object struct {
	// Asset is the base geometry file, relative to Catalog.Root unless
	// absolute.
	Asset string `yaml:"asset"`

	Scale      *[3]float64 `yaml:"scale,omitempty"`
	Rotation   [3]float64  `yaml:"rotation"`
	MatchSlope bool        `yaml:"match_slope"`
}

// Load reads a catalog file. A relative Root is taken relative to the file's
// directory; an empty one means the file's directory.
func Load(path string) (*Catalog, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	c, err := Parse(b)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	if !filepath.IsAbs(c.Root) {
		c.Root = filepath.Join(filepath.Dir(path), c.Root)
	}
	return c, nil
}

// Parse decodes and validates catalog YAML.
func Parse(b []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate checks that every entry names an asset and has usable scale
// factors.
func (c *Catalog) Validate() error {
	if len(c.Objects) == 0 {
		return fmt.Errorf("catalog has no objects")
	}
	for _, name := range c.Types() {
		o := c.Objects[name]
		if strings.TrimSpace(name) == "" {
			return fmt.Errorf("object with empty type name")
		}
		if strings.TrimSpace(o.Asset) == "" {
			return fmt.Errorf("object %q: missing asset", name)
		}
		if o.Scale != nil {
			for _, f := range o.Scale {
				if f <= 0 {
					return fmt.Errorf("object %q: scale factors must be positive, got %v", name, *o.Scale)
				}
			}
		}
	}
	return nil
}

// Types returns the catalog's type names in sorted order.
func (c *Catalog) Types() []string {
	names := make([]string, 0, len(c.Objects))
	for name := range c.Objects {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// AssetPath resolves the asset of typ.
func (c *Catalog) AssetPath(typ string) (string, error) {
	o, ok := c.Objects[typ]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownType, typ)
	}
	if filepath.IsAbs(o.Asset) {
		return o.Asset, nil
	}
	return filepath.Join(c.Root, o.Asset), nil
}

// Instantiate creates a static instance of typ at the origin carrying the
// type's default rotation, scale and slope matching. The id comes from ids.
func (c *Catalog) Instantiate(typ string, ids *placement.IDAllocator) (*placement.Instance, error) {
	o, ok := c.Objects[typ]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, typ)
	}

	scale := [3]float64{1, 1, 1}
	if o.Scale != nil {
		scale = *o.Scale
	}
	return &placement.Instance{
		ID:         ids.Next(typ),
		Type:       typ,
		Rotation:   o.Rotation,
		Scale:      scale,
		Kind:       placement.Static,
		MatchSlope: o.MatchSlope,
	}, nil
}
