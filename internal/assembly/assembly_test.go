package assembly

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ironsheep/scene-tools-mcp/internal/annotate"
	"github.com/ironsheep/scene-tools-mcp/internal/placement"
)

func noop(context.Context, *State) error { return nil }

func TestGraph_Order(t *testing.T) {
	g := NewGraph()
	must := func(err error) {
		t.Helper()
		if err != nil {
			t.Fatal(err)
		}
	}
	must(g.Add("journal", noop, "conform"))
	must(g.Add("conform", noop, "objects", "terrain", "clusters"))
	must(g.Add("terrain", noop))
	must(g.Add("clusters", noop, "objects"))
	must(g.Add("objects", noop))

	got, err := g.Order()
	if err != nil {
		t.Fatalf("Order failed: %v", err)
	}
	want := []string{"objects", "clusters", "terrain", "conform", "journal"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("order: got %v, want %v", got, want)
	}
}

func TestGraph_Errors(t *testing.T) {
	t.Run("cycle", func(t *testing.T) {
		g := NewGraph()
		_ = g.Add("a", noop, "c")
		_ = g.Add("b", noop, "a")
		_ = g.Add("c", noop, "b")
		_ = g.Add("d", noop)
		if _, err := g.Order(); !errors.Is(err, ErrCycle) {
			t.Errorf("error: got %v, want ErrCycle", err)
		}
	})

	t.Run("unknown dependency", func(t *testing.T) {
		g := NewGraph()
		_ = g.Add("a", noop, "missing")
		if _, err := g.Order(); err == nil {
			t.Error("Order should fail for an unknown dependency")
		}
	})

	t.Run("duplicate", func(t *testing.T) {
		g := NewGraph()
		_ = g.Add("a", noop)
		if err := g.Add("a", noop); err == nil {
			t.Error("Add should reject a duplicate name")
		}
	})

	t.Run("step failure stops run", func(t *testing.T) {
		g := NewGraph()
		ran := false
		_ = g.Add("a", func(context.Context, *State) error { return errors.New("boom") })
		_ = g.Add("b", func(context.Context, *State) error { ran = true; return nil }, "a")
		err := g.Run(context.Background(), &State{})
		if err == nil || !strings.Contains(err.Error(), "step a") {
			t.Errorf("error: got %v", err)
		}
		if ran {
			t.Error("dependent step should not run")
		}
	})
}

func TestJournal_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), JournalName)
	j, err := CreateJournal(path)
	if err != nil {
		t.Fatalf("CreateJournal failed: %v", err)
	}
	instances := []*placement.Instance{
		{ID: "Tree_0", Translation: [3]float64{1, 2, 3}, Rotation: [3]float64{0, 0, 45}, Scale: [3]float64{1, 1, 1}},
		{ID: "Rock_0", Translation: [3]float64{-4, 5.5, 0}, Scale: [3]float64{2, 2, 2}},
	}
	for _, inst := range instances {
		if err := j.Write(inst); err != nil {
			t.Fatalf("Write failed: %v", err)
		}
	}
	if j.Len() != 2 {
		t.Errorf("Len: got %d, want 2", j.Len())
	}
	if err := j.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	raw, _ := os.ReadFile(path)
	if bytes.Contains(raw, []byte("Tree_0")) {
		t.Error("journal should be compressed")
	}

	recs, err := ReadJournal(path)
	if err != nil {
		t.Fatalf("ReadJournal failed: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("records: got %d, want 2", len(recs))
	}
	if recs[0].InstanceID != "Tree_0" || recs[0].Rotation[2] != 45 || recs[1].Scale[0] != 2 {
		t.Errorf("records: got %+v", recs)
	}
}

func TestParseConfig(t *testing.T) {
	cfg, err := ParseConfig([]byte("seed: 3\ncatalog: c.yaml\n"))
	if err != nil {
		t.Fatalf("ParseConfig failed: %v", err)
	}
	if cfg.OutputDir != "out" || cfg.OnMiss != "skip" || cfg.Terrain.Backend != "mesh" {
		t.Errorf("defaults: got %+v", cfg)
	}

	tests := []struct {
		name    string
		content string
	}{
		{"no catalog", "seed: 1\n"},
		{"bad on_miss", "catalog: c\non_miss: retry\n"},
		{"bad backend", "catalog: c\nterrain:\n  backend: lidar\n"},
		{"object without type", "catalog: c\nobjects:\n  - translation: [0, 0, 0]\n"},
		{"cluster without area", "catalog: c\nclusters:\n  - type: Bench\n    count: 3\n"},
		{"negative count", "catalog: c\nclusters:\n  - type: Bench\n    count: -1\n    radius: 2\n"},
		{"annotate without image", "catalog: c\nannotate:\n  truth: t.hdr\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseConfig([]byte(tt.content)); err == nil {
				t.Error("ParseConfig should fail")
			}
		})
	}
}

func TestRunID(t *testing.T) {
	a, _ := ParseConfig([]byte("seed: 1\ncatalog: c.yaml\n"))
	b, _ := ParseConfig([]byte("seed: 1\ncatalog: c.yaml\n"))
	c, _ := ParseConfig([]byte("seed: 2\ncatalog: c.yaml\n"))

	idA, err := RunID(a)
	if err != nil {
		t.Fatalf("RunID failed: %v", err)
	}
	idB, _ := RunID(b)
	idC, _ := RunID(c)
	if idA != idB {
		t.Errorf("same inputs gave %s and %s", idA, idB)
	}
	if idA == idC {
		t.Error("different seeds gave the same run id")
	}
}

// sceneFixture writes a catalog, a tilted terrain plane z = 0.1x + 5 over
// [-50, 50]^2 and a one-band truth cube, and returns the config file path.
func sceneFixture(t *testing.T, extra string) string {
	t.Helper()
	dir := t.TempDir()
	write := func(name string, data []byte) {
		t.Helper()
		if err := os.WriteFile(filepath.Join(dir, name), data, 0o644); err != nil {
			t.Fatal(err)
		}
	}

	write("catalog.yaml", []byte(`
objects:
  Fuel Tank:
    asset: fuel_tank.glist
  Bench:
    asset: bench.glist
    scale: [1, 1, 1]
`))
	write("terrain.obj", []byte(`v -50 -50 0
v 50 -50 10
v 50 50 10
v -50 50 0
f 1 2 3
f 1 3 4
`))

	const w, h = 8, 8
	var cube bytes.Buffer
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := float32(0)
			if x >= 2 && x < 5 && y >= 1 && y < 4 {
				v = 1
			}
			_ = binary.Write(&cube, binary.LittleEndian, v)
		}
	}
	write("truth.img", cube.Bytes())
	write("truth.img.hdr", []byte(fmt.Sprintf("ENVI\nsamples = %d\nlines = %d\nbands = 1\ndata type = 4\ninterleave = bsq\nbyte order = 0\nband names = {Abundance 'FuelTank_0'}\n", w, h)))

	write("scene.yaml", []byte(`
seed: 42
catalog: catalog.yaml
output_dir: out
terrain:
  geometry: terrain.obj
objects:
  - type: Fuel Tank
    translation: [10, 0, 0]
    rotation: [0, 0, 30]
    match_slope: true
  - type: Fuel Tank
    translation: [100, 100, 0]
clusters:
  - type: Bench
    count: 5
    center: [0, 0]
    radius: 3
annotate:
  truth: truth.img.hdr
  image: scene.png
  index: out/index.sqlite
`+extra))
	return filepath.Join(dir, "scene.yaml")
}

func TestRun(t *testing.T) {
	cfgPath := sceneFixture(t, "")
	cfg, err := LoadConfig(cfgPath)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	st, err := Run(context.Background(), cfg, nil, nil)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if len(st.Missed) != 1 || st.Missed[0] != "FuelTank_1" {
		t.Errorf("missed: got %v, want [FuelTank_1]", st.Missed)
	}
	if len(st.Instances) != 2 {
		t.Fatalf("instances: got %d, want 2", len(st.Instances))
	}

	tank := st.Instances[0]
	if tank.ID != "FuelTank_0" {
		t.Fatalf("first instance: got %s", tank.ID)
	}
	if math.Abs(tank.Translation[2]-6) > 1e-9 {
		t.Errorf("tank z: got %v, want 6", tank.Translation[2])
	}
	wantPitch := -math.Atan(0.1) * 180 / math.Pi
	if math.Abs(tank.Rotation[0]) > 1e-6 || math.Abs(tank.Rotation[1]-wantPitch) > 1e-6 || tank.Rotation[2] != 30 {
		t.Errorf("tank rotation: got %v, want (0, %.4f, 30)", tank.Rotation, wantPitch)
	}

	bench := st.Instances[1]
	if bench.Kind != placement.Clustered || bench.Anchor != TerrainAnchor {
		t.Errorf("bench: got kind %v anchor %q", bench.Kind, bench.Anchor)
	}
	if bench.Translation != [3]float64{} {
		t.Errorf("clustered instance should not be draped, got %v", bench.Translation)
	}
	info, err := os.Stat(bench.ClusterFile)
	if err != nil {
		t.Fatalf("cluster file: %v", err)
	}
	if info.Size() != 5*48 {
		t.Errorf("cluster file size: got %d, want 240", info.Size())
	}

	recs, err := ReadJournal(st.JournalPath)
	if err != nil {
		t.Fatalf("ReadJournal failed: %v", err)
	}
	if len(recs) != 2 || recs[0].InstanceID != "FuelTank_0" || recs[1].InstanceID != "Bench_0" {
		t.Errorf("journal: got %+v", recs)
	}

	if filepath.Base(st.AnnotationsPath) != "scene-annotations.json" {
		t.Errorf("annotations path: got %s", st.AnnotationsPath)
	}
	ix, err := annotate.OpenIndex(cfg.Annotate.Index)
	if err != nil {
		t.Fatalf("OpenIndex failed: %v", err)
	}
	defer ix.Close()
	rows, err := ix.ByImage(context.Background(), "scene.png")
	if err != nil {
		t.Fatalf("ByImage failed: %v", err)
	}
	if len(rows) != 1 || rows[0].Type != "FuelTank" || rows[0].BBox != [4]int{2, 1, 2, 2} || rows[0].RunID != st.RunID {
		t.Errorf("index rows: got %+v", rows)
	}
}

func TestRun_Reproducible(t *testing.T) {
	cfgPath := sceneFixture(t, "")
	cfg, err := LoadConfig(cfgPath)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	first, err := Run(context.Background(), cfg, nil, nil)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	a, _ := os.ReadFile(first.ClusterFiles[0])

	second, err := Run(context.Background(), cfg, nil, nil)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	b, _ := os.ReadFile(second.ClusterFiles[0])

	if first.RunID != second.RunID {
		t.Errorf("run ids differ: %s vs %s", first.RunID, second.RunID)
	}
	if !bytes.Equal(a, b) {
		t.Error("cluster files differ between identical runs")
	}
}

func TestRun_AbortOnMiss(t *testing.T) {
	cfg, err := LoadConfig(sceneFixture(t, "on_miss: abort\n"))
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	_, err = Run(context.Background(), cfg, nil, nil)
	var missed *placement.ConformError
	if !errors.As(err, &missed) {
		t.Fatalf("error: got %v, want *placement.ConformError", err)
	}
	if len(missed.Failed) != 1 || missed.Failed[0] != "FuelTank_1" {
		t.Errorf("failed: got %v", missed.Failed)
	}
}
