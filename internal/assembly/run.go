package assembly

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/paulmach/orb"
	"gopkg.in/yaml.v3"

	"github.com/ironsheep/scene-tools-mcp/internal/annotate"
	"github.com/ironsheep/scene-tools-mcp/internal/catalog"
	"github.com/ironsheep/scene-tools-mcp/internal/geometry"
	"github.com/ironsheep/scene-tools-mcp/internal/imaging"
	"github.com/ironsheep/scene-tools-mcp/internal/logging"
	"github.com/ironsheep/scene-tools-mcp/internal/placement"
	"github.com/ironsheep/scene-tools-mcp/internal/terrain"
)

// TerrainAnchor is the anchor name given to clustered instances; their
// batched placements are positioned relative to the terrain object.
const TerrainAnchor = "terrain"

// JournalName is the transform journal's file name inside the output dir.
const JournalName = "transforms.jsonl.zst"

// State is what the steps of one run share. After Run returns it holds the
// run's results.
type State struct {
	Config  *Config
	Catalog *catalog.Catalog
	Terrain terrain.Service

	RunID string
	Rand  *rand.Rand
	IDs   *placement.IDAllocator

	Handle    terrain.Handle
	Instances []*placement.Instance

	// Missed lists instances dropped because no terrain lay below them.
	Missed []string

	ClusterFiles    []string
	JournalPath     string
	AnnotationsPath string
}

// RunID derives the id of a run from its seed and config, so the same
// inputs always name the same run.
func RunID(cfg *Config) (string, error) {
	b, err := yaml.Marshal(cfg)
	if err != nil {
		return "", err
	}
	data := append([]byte(fmt.Sprintf("seed=%d\n", cfg.Seed)), b...)
	return uuid.NewSHA1(uuid.NameSpaceOID, data).String(), nil
}

// NewTerrainService builds the backend named by tc.
func NewTerrainService(tc TerrainConfig) (terrain.Service, error) {
	switch tc.Backend {
	case "", "mesh":
		return terrain.NewMeshService(), nil
	case "tool":
		svc := terrain.NewToolService(terrain.ExecRunner{}, tc.WorkDir)
		svc.Origin = tc.Origin
		return svc, nil
	default:
		return nil, fmt.Errorf("unknown terrain backend %q", tc.Backend)
	}
}

// Run assembles the scene described by cfg. When cat is nil the catalog is
// loaded from cfg.Catalog; when svc is nil the terrain backend is built from
// cfg.Terrain.
func Run(ctx context.Context, cfg *Config, cat *catalog.Catalog, svc terrain.Service) (*State, error) {
	var err error
	if cat == nil {
		if cat, err = catalog.Load(cfg.Catalog); err != nil {
			return nil, fmt.Errorf("load catalog: %w", err)
		}
	}
	if svc == nil && cfg.Terrain.Geometry != "" {
		if svc, err = NewTerrainService(cfg.Terrain); err != nil {
			return nil, err
		}
	}
	runID, err := RunID(cfg)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(cfg.OutputDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output dir: %w", err)
	}

	st := &State{
		Config:  cfg,
		Catalog: cat,
		Terrain: svc,
		RunID:   runID,
		Rand:    rand.New(rand.NewSource(cfg.Seed)),
		IDs:     placement.NewIDAllocator(),
	}

	g := NewGraph()
	steps := []struct {
		name string
		step Step
		deps []string
	}{
		{"objects", placeObjects, nil},
		{"clusters", placeClusters, []string{"objects"}},
		{"terrain", compileTerrain, nil},
		{"conform", conform, []string{"objects", "clusters", "terrain"}},
		{"journal", writeJournal, []string{"conform"}},
		{"annotate", annotateTruth, []string{"journal"}},
	}
	for _, s := range steps {
		if err := g.Add(s.name, s.step, s.deps...); err != nil {
			return nil, err
		}
	}

	log := logging.Logger()
	log.Info("assembly started", "run_id", runID, "seed", cfg.Seed, "objects", len(cfg.Objects), "clusters", len(cfg.Clusters))
	if err := g.Run(ctx, st); err != nil {
		return st, err
	}
	log.Info("assembly finished", "run_id", runID, "instances", len(st.Instances), "missed", len(st.Missed))
	return st, nil
}

func placeObjects(_ context.Context, st *State) error {
	for _, spec := range st.Config.Objects {
		inst, err := st.Catalog.Instantiate(spec.Type, st.IDs)
		if err != nil {
			return err
		}
		inst.Move(spec.Translation, spec.Rotation)
		if spec.Scale != nil {
			inst.ScaleBy(*spec.Scale)
		}
		if spec.MatchSlope != nil {
			inst.MatchSlope = *spec.MatchSlope
		}
		st.Instances = append(st.Instances, inst)
	}
	return nil
}

func placeClusters(_ context.Context, st *State) error {
	if len(st.Config.Clusters) == 0 {
		return nil
	}
	dir := filepath.Join(st.Config.OutputDir, "clusters")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create cluster dir: %w", err)
	}

	for i, spec := range st.Config.Clusters {
		area, err := clusterArea(spec)
		if err != nil {
			return fmt.Errorf("clusters[%d]: %w", i, err)
		}

		var placements []placement.Placement
		if spec.MinDistance > 0 {
			placements, err = placement.PlaceSpaced(area, spec.MinDistance, st.Rand)
		} else {
			placements, err = placement.PlaceCluster(area, spec.Count, st.Rand)
		}
		if err != nil {
			return fmt.Errorf("clusters[%d]: %w", i, err)
		}

		inst, err := st.Catalog.Instantiate(spec.Type, st.IDs)
		if err != nil {
			return err
		}
		inst.Kind = placement.Clustered
		inst.Anchor = TerrainAnchor
		inst.ClusterFile = filepath.Join(dir, inst.ID+".bin")

		n, err := placement.WriteClusterFile(inst.ClusterFile, placements)
		if err != nil {
			return err
		}
		logging.Logger().Info("wrote cluster", "id", inst.ID, "placements", len(placements), "size", humanize.Bytes(uint64(n)))

		st.ClusterFiles = append(st.ClusterFiles, inst.ClusterFile)
		st.Instances = append(st.Instances, inst)
	}
	return nil
}

func clusterArea(spec ClusterSpec) (geometry.Polygon, error) {
	if len(spec.Polygon) == 0 {
		return geometry.Hexagon(orb.Point(spec.Center), spec.Radius)
	}
	pts := make([]orb.Point, len(spec.Polygon))
	for i, v := range spec.Polygon {
		pts[i] = orb.Point(v)
	}
	return geometry.NewPolygon(pts)
}

func compileTerrain(ctx context.Context, st *State) error {
	if st.Config.Terrain.Geometry == "" || st.Terrain == nil {
		return nil
	}
	h, err := st.Terrain.Compile(ctx, st.Config.Terrain.Geometry)
	if err != nil {
		return err
	}
	st.Handle = h
	return nil
}

func conform(ctx context.Context, st *State) error {
	if st.Handle.Path == "" {
		return nil
	}
	err := placement.ConformToTerrain(ctx, st.Instances, st.Terrain, st.Handle, st.Config.MatchSlope)

	var missed *placement.ConformError
	if !errors.As(err, &missed) {
		return err
	}
	if st.Config.OnMiss == "abort" {
		return err
	}

	drop := make(map[string]bool, len(missed.Failed))
	for _, id := range missed.Failed {
		drop[id] = true
	}
	kept := st.Instances[:0]
	for _, inst := range st.Instances {
		if !drop[inst.ID] {
			kept = append(kept, inst)
		}
	}
	st.Instances = kept
	st.Missed = append(st.Missed, missed.Failed...)
	logging.Logger().Warn("dropped instances off terrain", "count", len(missed.Failed))
	return nil
}

func writeJournal(_ context.Context, st *State) error {
	path := filepath.Join(st.Config.OutputDir, JournalName)
	j, err := CreateJournal(path)
	if err != nil {
		return fmt.Errorf("failed to create journal: %w", err)
	}
	for _, inst := range st.Instances {
		if err := j.Write(inst); err != nil {
			_ = j.Close()
			return fmt.Errorf("failed to write journal: %w", err)
		}
	}
	if err := j.Close(); err != nil {
		return fmt.Errorf("failed to close journal: %w", err)
	}
	st.JournalPath = path

	var size uint64
	if fi, err := os.Stat(path); err == nil {
		size = uint64(fi.Size())
	}
	logging.Logger().Info("wrote journal", "path", path, "records", j.Len(), "size", humanize.Bytes(size))
	return nil
}

func annotateTruth(ctx context.Context, st *State) error {
	spec := st.Config.Annotate
	if spec == nil {
		return nil
	}
	bands, err := imaging.ReadENVI(spec.Truth)
	if err != nil {
		return fmt.Errorf("read truth: %w", err)
	}

	scene := map[string]interface{}{
		"seed":      st.Config.Seed,
		"instances": len(st.Instances),
	}
	w := annotate.NewWriter(spec.Image, st.RunID, scene)
	if _, err := annotate.AnnotateBands(w, bands, spec.Threshold); err != nil {
		return err
	}
	annPath, _, err := w.WriteDir(st.Config.OutputDir)
	if err != nil {
		return err
	}
	st.AnnotationsPath = annPath

	if spec.Index == "" {
		return nil
	}
	ix, err := annotate.OpenIndex(spec.Index)
	if err != nil {
		return fmt.Errorf("open index: %w", err)
	}
	defer ix.Close()
	return ix.Record(ctx, w)
}
