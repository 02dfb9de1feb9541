package server

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// createMaskFile writes a black PNG that is white inside block and returns
// its path.
func createMaskFile(t *testing.T, width, height int, block image.Rectangle) string {
	t.Helper()

	img := image.NewGray(image.Rect(0, 0, width, height))
	for y := block.Min.Y; y < block.Max.Y; y++ {
		for x := block.Min.X; x < block.Max.X; x++ {
			img.SetGray(x, y, color.Gray{Y: 255})
		}
	}

	path := filepath.Join(t.TempDir(), "mask.png")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("failed to create mask file: %v", err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatalf("failed to encode mask: %v", err)
	}
	return path
}

// createTruthCube writes a two-band float32 ENVI cube: one abundance band
// holding block, one unrelated band. It returns the header path.
func createTruthCube(t *testing.T, width, height int, block image.Rectangle) string {
	t.Helper()
	dir := t.TempDir()

	var data bytes.Buffer
	for band := 0; band < 2; band++ {
		for y := 0; y < height; y++ {
			for x := 0; x < width; x++ {
				v := float32(0)
				if band == 0 && image.Pt(x, y).In(block) {
					v = 0.8
				}
				_ = binary.Write(&data, binary.LittleEndian, v)
			}
		}
	}
	dataPath := filepath.Join(dir, "truth.img")
	if err := os.WriteFile(dataPath, data.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}
	hdr := fmt.Sprintf("ENVI\nsamples = %d\nlines = %d\nbands = 2\ndata type = 4\ninterleave = bsq\nband names = {\n Abundance 'Crate_0',\n Range}\n", width, height)
	if err := os.WriteFile(dataPath+".hdr", []byte(hdr), 0o644); err != nil {
		t.Fatal(err)
	}
	return dataPath + ".hdr"
}

// createTerrainFile writes a flat 20x20 OBJ plane at z = 3.
func createTerrainFile(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "terrain.obj")
	obj := "v -10 -10 3\nv 10 -10 3\nv 10 10 3\nv -10 10 3\nf 1 2 3 4\n"
	if err := os.WriteFile(path, []byte(obj), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

// callTool runs a tool through tools/call and decodes its text result into out.
func callTool(t *testing.T, s *Server, name string, args map[string]interface{}, out interface{}) {
	t.Helper()

	params := map[string]interface{}{"name": name, "arguments": args}
	paramsJSON, _ := json.Marshal(params)

	resp := s.handleToolsCall(context.Background(), &MCPRequest{
		JSONRPC: "2.0",
		ID:      1,
		Params:  paramsJSON,
	})
	if resp.Error != nil {
		t.Fatalf("%s failed: %s: %v", name, resp.Error.Message, resp.Error.Data)
	}

	result := resp.Result.(map[string]interface{})
	content := result["content"].([]map[string]interface{})
	text := content[0]["text"].(string)
	if out != nil {
		if err := json.Unmarshal([]byte(text), out); err != nil {
			t.Fatalf("%s: result is not JSON: %v", name, err)
		}
	}
}

func callToolErr(s *Server, name string, args map[string]interface{}) *MCPError {
	params := map[string]interface{}{"name": name, "arguments": args}
	paramsJSON, _ := json.Marshal(params)
	resp := s.handleToolsCall(context.Background(), &MCPRequest{JSONRPC: "2.0", ID: 1, Params: paramsJSON})
	return resp.Error
}

func TestHandleToolsCall_PolygonSample(t *testing.T) {
	s := New()
	square := [][]float64{{0, 0}, {4, 0}, {4, 4}, {0, 4}}

	var first, second PolygonSampleResult
	callTool(t, s, "polygon_sample", map[string]interface{}{"polygon": square, "count": 25, "seed": 9}, &first)
	callTool(t, s, "polygon_sample", map[string]interface{}{"polygon": square, "count": 25, "seed": 9}, &second)

	if len(first.Points) != 25 {
		t.Fatalf("points: got %d, want 25", len(first.Points))
	}
	if first.Area != 16 || first.Triangles != 2 {
		t.Errorf("area/triangles: got %v/%d, want 16/2", first.Area, first.Triangles)
	}
	for i, p := range first.Points {
		if p[0] < 0 || p[0] > 4 || p[1] < 0 || p[1] > 4 {
			t.Errorf("point %v outside square", p)
		}
		if p != second.Points[i] {
			t.Fatalf("point %d differs between identical calls", i)
		}
	}
}

func TestHandleToolsCall_PolygonSample_Spaced(t *testing.T) {
	s := New()
	var res PolygonSampleResult
	callTool(t, s, "polygon_sample", map[string]interface{}{
		"polygon":      [][]float64{{0, 0}, {10, 0}, {10, 10}, {0, 10}},
		"min_distance": 2,
		"seed":         1,
	}, &res)

	if len(res.Points) < 4 {
		t.Fatalf("points: got %d, want several", len(res.Points))
	}
	for i, a := range res.Points {
		for _, b := range res.Points[i+1:] {
			if math.Hypot(a[0]-b[0], a[1]-b[1]) < 2-1e-9 {
				t.Errorf("points %v and %v closer than 2", a, b)
			}
		}
	}
}

func TestHandleToolsCall_PolygonSample_Invalid(t *testing.T) {
	s := New()
	tests := []struct {
		name string
		args map[string]interface{}
	}{
		{"too few vertices", map[string]interface{}{"polygon": [][]float64{{0, 0}, {1, 1}}, "count": 1}},
		{"collinear", map[string]interface{}{"polygon": [][]float64{{0, 0}, {1, 1}, {2, 2}}, "count": 1}},
		{"negative count", map[string]interface{}{"polygon": [][]float64{{0, 0}, {1, 0}, {0, 1}}, "count": -2}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := callToolErr(s, "polygon_sample", tt.args); err == nil || err.Code != -32000 {
				t.Errorf("expected tool error, got %v", err)
			}
		})
	}
}

func TestHandleToolsCall_ClusterPlace(t *testing.T) {
	s := New()
	out := filepath.Join(t.TempDir(), "parcel0.bin")

	var res ClusterPlaceResult
	callTool(t, s, "cluster_place", map[string]interface{}{
		"center": []float64{5, 5},
		"radius": 2,
		"count":  7,
		"seed":   3,
		"output": out,
	}, &res)

	if len(res.Placements) != 7 {
		t.Fatalf("placements: got %d, want 7", len(res.Placements))
	}
	for _, p := range res.Placements {
		if math.Hypot(p.X-5, p.Y-5) > 2+1e-9 {
			t.Errorf("placement (%v, %v) outside hexagon", p.X, p.Y)
		}
	}
	if res.Bytes != 7*48 || res.Size != "336 B" {
		t.Errorf("size: got %d (%s), want 336 B", res.Bytes, res.Size)
	}
	if info, err := os.Stat(out); err != nil || info.Size() != 336 {
		t.Errorf("placement file: %v", err)
	}

	if err := callToolErr(s, "cluster_place", map[string]interface{}{"count": 3}); err == nil {
		t.Error("cluster_place without area should fail")
	}
}

func TestHandleToolsCall_SlopeAlign(t *testing.T) {
	s := New()
	tests := []struct {
		name string
		args map[string]interface{}
		want [3]float64
	}{
		{"parallel", map[string]interface{}{"normal": []float64{0, 0, 5}}, [3]float64{0, 0, 0}},
		{"antiparallel", map[string]interface{}{"normal": []float64{0, 0, -1}}, [3]float64{180, 0, 0}},
		{"tilt about x", map[string]interface{}{"normal": []float64{0, -math.Sin(math.Pi / 6), math.Cos(math.Pi / 6)}}, [3]float64{30, 0, 0}},
		{"radians", map[string]interface{}{"normal": []float64{0, 0, -1}, "units": "radians"}, [3]float64{math.Pi, 0, 0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var res SlopeAlignResult
			callTool(t, s, "slope_align", tt.args, &res)
			for i := range tt.want {
				if math.Abs(math.Abs(res.Rotation[i])-math.Abs(tt.want[i])) > 1e-6 {
					t.Errorf("rotation: got %v, want %v", res.Rotation, tt.want)
					break
				}
			}
			if res.Order != "xyz" {
				t.Errorf("order: got %s", res.Order)
			}
		})
	}

	bad := []map[string]interface{}{
		{"normal": []float64{0, 0}},
		{"normal": []float64{0, 0, 0}},
		{"normal": []float64{0, 0, 1}, "units": "gradians"},
	}
	for _, args := range bad {
		if err := callToolErr(s, "slope_align", args); err == nil {
			t.Errorf("slope_align(%v) should fail", args)
		}
	}
}

func TestHandleToolsCall_TerrainQuery(t *testing.T) {
	s := New()
	geometry := createTerrainFile(t)

	var res struct {
		MaxElevation float64         `json:"max_elevation"`
		Samples      []TerrainSample `json:"samples"`
	}
	callTool(t, s, "terrain_query", map[string]interface{}{
		"geometry": geometry,
		"points":   [][]float64{{0, 0}, {50, 50}, {-5, 9}},
	}, &res)

	near := func(a, b float64) bool { return math.Abs(a-b) < 1e-9 }
	if res.MaxElevation != 3 {
		t.Errorf("max elevation: got %v, want 3", res.MaxElevation)
	}
	if len(res.Samples) != 3 {
		t.Fatalf("samples: got %d, want 3", len(res.Samples))
	}
	if !near(res.Samples[0].Elevation, 3) || res.Samples[0].Normal == nil || !near(res.Samples[0].Normal[2], 1) {
		t.Errorf("sample 0: got %+v", res.Samples[0])
	}
	if !strings.Contains(res.Samples[1].Error, "no terrain intersection") {
		t.Errorf("sample 1 should miss, got %+v", res.Samples[1])
	}
	if res.Samples[2].Error != "" || !near(res.Samples[2].Elevation, 3) {
		t.Errorf("sample 2: got %+v", res.Samples[2])
	}

	// compiled once and reused
	if len(s.handles) != 1 {
		t.Errorf("handles: got %d, want 1", len(s.handles))
	}

	if err := callToolErr(s, "terrain_query", map[string]interface{}{"geometry": "/nonexistent/terrain.obj", "points": [][]float64{{0, 0}}}); err == nil {
		t.Error("terrain_query should fail for missing geometry")
	}
}

func TestHandleToolsCall_RasterInfo(t *testing.T) {
	s := New()
	hdr := createTruthCube(t, 6, 5, image.Rect(1, 1, 3, 3))

	var info struct {
		Width     int      `json:"width"`
		Height    int      `json:"height"`
		Format    string   `json:"format"`
		BandNames []string `json:"band_names"`
		FileSize  string   `json:"file_size"`
	}
	callTool(t, s, "raster_info", map[string]interface{}{"path": hdr}, &info)

	if info.Width != 6 || info.Height != 5 || info.Format != "envi" {
		t.Errorf("info: got %+v", info)
	}
	if len(info.BandNames) != 2 || info.BandNames[0] != "Abundance 'Crate_0'" || info.BandNames[1] != "Range" {
		t.Errorf("band names: got %v", info.BandNames)
	}
	if info.FileSize != "240 B" {
		t.Errorf("file size: got %s, want 240 B", info.FileSize)
	}
}

func TestHandleToolsCall_MaskExtract(t *testing.T) {
	s := New()
	path := createMaskFile(t, 20, 20, image.Rect(4, 6, 10, 9))

	var res MaskResult
	callTool(t, s, "mask_extract", map[string]interface{}{"path": path, "threshold": 0.5, "include_fill": true}, &res)

	if res.BBox != [4]int{4, 6, 5, 2} {
		t.Errorf("bbox: got %v, want [4 6 5 2]", res.BBox)
	}
	if len(res.Segmentation) != 8 {
		t.Errorf("segmentation: got %v, want 4 corners", res.Segmentation)
	}
	if res.Pixels != 18 || len(res.SegmentationFill) != 36 {
		t.Errorf("fill: got %d pixels, %d values", res.Pixels, len(res.SegmentationFill))
	}
	if res.Components != 1 {
		t.Errorf("components: got %d, want 1", res.Components)
	}

	empty := createMaskFile(t, 8, 8, image.Rectangle{})
	err := callToolErr(s, "mask_extract", map[string]interface{}{"path": empty})
	if err == nil || !strings.Contains(fmt.Sprint(err.Data), "empty region") {
		t.Errorf("empty mask: got %v", err)
	}

	if err := callToolErr(s, "mask_extract", map[string]interface{}{"path": path, "band": 3}); err == nil {
		t.Error("mask_extract should fail for a missing band")
	}
}

func TestHandleToolsCall_AnnotateBands(t *testing.T) {
	s := New()
	hdr := createTruthCube(t, 10, 10, image.Rect(2, 2, 6, 5))
	outDir := t.TempDir()
	index := filepath.Join(outDir, "index.sqlite")

	var res AnnotateResult
	callTool(t, s, "annotate_bands", map[string]interface{}{
		"path":       hdr,
		"image":      "capture-0001.png",
		"output_dir": outDir,
		"index":      index,
	}, &res)

	if len(res.Entries) != 1 {
		t.Fatalf("entries: got %d, want 1", len(res.Entries))
	}
	e := res.Entries[0]
	if e.Name != "Crate_0" || e.Type != "Crate" || e.BBox != [4]int{2, 2, 3, 2} {
		t.Errorf("entry: got %+v", e)
	}
	if res.AnnotationsPath != filepath.Join(outDir, "annotations", "capture-0001-annotations.json") {
		t.Errorf("annotations path: got %s", res.AnnotationsPath)
	}
	for _, p := range []string{res.AnnotationsPath, res.MetadataPath, index} {
		if _, err := os.Stat(p); err != nil {
			t.Errorf("expected file %s: %v", p, err)
		}
	}

	if err := callToolErr(s, "annotate_bands", map[string]interface{}{"path": hdr}); err == nil {
		t.Error("annotate_bands without image should fail")
	}
}

func TestHandleToolsCall_AnnotationPreview(t *testing.T) {
	s := New()
	path := createMaskFile(t, 16, 12, image.Rect(3, 3, 8, 8))
	saved := filepath.Join(t.TempDir(), "preview.png")

	var res struct {
		Width       int    `json:"width"`
		Height      int    `json:"height"`
		ImageBase64 string `json:"image_base64"`
		MimeType    string `json:"mime_type"`
	}
	callTool(t, s, "annotation_preview", map[string]interface{}{
		"path":      path,
		"threshold": 0.5,
		"scale":     2,
		"output":    saved,
	}, &res)

	if res.Width != 32 || res.Height != 24 || res.MimeType != "image/png" || res.ImageBase64 == "" {
		t.Errorf("preview: got %dx%d %s", res.Width, res.Height, res.MimeType)
	}
	if _, err := os.Stat(saved); err != nil {
		t.Errorf("saved preview: %v", err)
	}

	if err := callToolErr(s, "annotation_preview", map[string]interface{}{"path": path, "outline_color": "teal"}); err == nil {
		t.Error("annotation_preview should reject a malformed color")
	}
}

func TestHandleToolsCall_SceneAssemble(t *testing.T) {
	s := New()
	dir := t.TempDir()
	terrainPath := createTerrainFile(t)

	files := map[string]string{
		"catalog.yaml": "objects:\n  Crate:\n    asset: crate.glist\n",
		"scene.yaml": fmt.Sprintf(`seed: 5
catalog: catalog.yaml
output_dir: out
terrain:
  geometry: %s
objects:
  - type: Crate
    translation: [1, 2, 0.5]
clusters:
  - type: Crate
    count: 4
    center: [0, 0]
    radius: 2
`, terrainPath),
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	var res struct {
		RunID     string `json:"run_id"`
		Instances []struct {
			ID          string     `json:"instance_id"`
			Translation [3]float64 `json:"translation"`
			Kind        string     `json:"kind"`
		} `json:"instances"`
		ClusterFiles []string `json:"cluster_files"`
		Journal      string   `json:"journal"`
	}
	callTool(t, s, "scene_assemble", map[string]interface{}{"config": filepath.Join(dir, "scene.yaml")}, &res)

	if res.RunID == "" || res.Journal == "" {
		t.Errorf("result: got %+v", res)
	}
	if len(res.Instances) != 2 {
		t.Fatalf("instances: got %d, want 2", len(res.Instances))
	}
	if res.Instances[0].ID != "Crate_0" || math.Abs(res.Instances[0].Translation[2]-3.5) > 1e-9 || res.Instances[0].Kind != "static" {
		t.Errorf("static instance: got %+v", res.Instances[0])
	}
	if res.Instances[1].ID != "Crate_1" || res.Instances[1].Kind != "clustered" {
		t.Errorf("clustered instance: got %+v", res.Instances[1])
	}
	if len(res.ClusterFiles) != 1 {
		t.Errorf("cluster files: got %v", res.ClusterFiles)
	}
}

func TestHandleToolsCall_InvalidTool(t *testing.T) {
	s := New()
	err := callToolErr(s, "nonexistent_tool", map[string]interface{}{})
	if err == nil {
		t.Fatal("Expected error for unknown tool")
	}
	if err.Code != -32000 {
		t.Errorf("Error code: got %d, want -32000", err.Code)
	}
}

func TestHandleToolsCall_InvalidParams(t *testing.T) {
	s := New()
	resp := s.handleToolsCall(context.Background(), &MCPRequest{
		JSONRPC: "2.0",
		ID:      1,
		Params:  json.RawMessage(`{invalid`),
	})
	if resp.Error == nil || resp.Error.Code != -32602 {
		t.Errorf("expected -32602, got %v", resp.Error)
	}
}

func TestExecuteTool_UnknownTool(t *testing.T) {
	s := New()

	_, err := s.executeTool(context.Background(), "unknown_tool", json.RawMessage(`{}`))
	if err == nil {
		t.Error("executeTool should fail for unknown tool")
	}
}

func TestExecuteTool_InvalidJSON(t *testing.T) {
	s := New()

	for _, tool := range GetToolDefinitions() {
		t.Run(tool.Name, func(t *testing.T) {
			_, err := s.executeTool(context.Background(), tool.Name, json.RawMessage(`{invalid`))
			if err == nil {
				t.Errorf("%s should fail for invalid JSON", tool.Name)
			}
		})
	}
}
