package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"math/rand"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/go-gl/mathgl/mgl64"
	"github.com/paulmach/orb"

	"github.com/ironsheep/scene-tools-mcp/internal/annotate"
	"github.com/ironsheep/scene-tools-mcp/internal/assembly"
	"github.com/ironsheep/scene-tools-mcp/internal/geometry"
	"github.com/ironsheep/scene-tools-mcp/internal/imaging"
	"github.com/ironsheep/scene-tools-mcp/internal/placement"
	"github.com/ironsheep/scene-tools-mcp/internal/slope"
	"github.com/ironsheep/scene-tools-mcp/internal/terrain"
)

// ToolCallParams represents the parameters for a tools/call MCP request.
type ToolCallParams struct {
	// Name is the tool to invoke (e.g., "polygon_sample", "mask_extract").
	Name string `json:"name"`

	// Arguments contains the tool-specific parameters as JSON.
	Arguments json.RawMessage `json:"arguments"`
}

// handleToolsCall processes a tools/call request and executes the specified tool.
//
// The response wraps the tool result in MCP's content format:
//
//	{
//	  "content": [{"type": "text", "text": "<JSON result>"}]
//	}
//
// Tool execution errors return a JSON-RPC error response with code -32000.
func (s *Server) handleToolsCall(ctx context.Context, req *MCPRequest) *MCPResponse {
	var params ToolCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return s.errorResponse(req.ID, -32602, "Invalid params", err.Error())
	}

	result, err := s.executeTool(ctx, params.Name, params.Arguments)
	if err != nil {
		return s.errorResponse(req.ID, -32000, "Tool execution failed", err.Error())
	}

	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: map[string]interface{}{
			"content": []map[string]interface{}{
				{
					"type": "text",
					"text": mustMarshalJSON(result),
				},
			},
		},
	}
}

// executeTool dispatches tool execution to the appropriate handler function.
//
// Each tool handler:
//  1. Unmarshals arguments from JSON
//  2. Applies default values for optional parameters
//  3. Loads rasters from cache or compiles terrain as needed
//  4. Calls the placement, terrain or annotation function
//  5. Returns the result or error
func (s *Server) executeTool(ctx context.Context, name string, args json.RawMessage) (interface{}, error) {
	switch name {
	// Placement
	case "polygon_sample":
		return s.handlePolygonSample(args)
	case "cluster_place":
		return s.handleClusterPlace(args)
	case "slope_align":
		return s.handleSlopeAlign(args)

	// Terrain
	case "terrain_query":
		return s.handleTerrainQuery(ctx, args)

	// Annotation
	case "raster_info":
		return s.handleRasterInfo(args)
	case "mask_extract":
		return s.handleMaskExtract(args)
	case "annotate_bands":
		return s.handleAnnotateBands(ctx, args)
	case "annotation_preview":
		return s.handleAnnotationPreview(args)

	// Assembly
	case "scene_assemble":
		return s.handleSceneAssemble(ctx, args)

	default:
		return nil, fmt.Errorf("unknown tool: %s", name)
	}
}

// errorResponse creates a JSON-RPC error response with the given details.
func (s *Server) errorResponse(id interface{}, code int, message, data string) *MCPResponse {
	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      id,
		Error: &MCPError{
			Code:    code,
			Message: message,
			Data:    data,
		},
	}
}

// mustMarshalJSON converts a value to pretty-printed JSON string.
// Panics are suppressed; on marshal failure, returns an empty string.
func mustMarshalJSON(v interface{}) string {
	b, _ := json.MarshalIndent(v, "", "  ")
	return string(b)
}

func toPolygon(pts [][2]float64) (geometry.Polygon, error) {
	ring := make([]orb.Point, len(pts))
	for i, p := range pts {
		ring[i] = orb.Point(p)
	}
	return geometry.NewPolygon(ring)
}

// === Placement Handlers ===

type polygonSampleArgs struct {
	Polygon     [][2]float64 `json:"polygon"`
	Count       int          `json:"count"`
	Seed        int64        `json:"seed"`
	MinDistance float64      `json:"min_distance"`
}

// PolygonSampleResult lists sampled points.
type PolygonSampleResult struct {
	Points    [][2]float64 `json:"points"`
	Area      float64      `json:"area"`
	Triangles int          `json:"triangles"`
}

func (s *Server) handlePolygonSample(args json.RawMessage) (interface{}, error) {
	var a polygonSampleArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	p, err := toPolygon(a.Polygon)
	if err != nil {
		return nil, err
	}
	sampler, err := geometry.NewSampler(p)
	if err != nil {
		return nil, err
	}

	rng := rand.New(rand.NewSource(a.Seed))
	var points []orb.Point
	if a.MinDistance > 0 {
		points, err = geometry.PoissonLayout(p, a.MinDistance, rng)
	} else {
		points, err = geometry.SampleK(p, a.Count, rng)
	}
	if err != nil {
		return nil, err
	}

	out := &PolygonSampleResult{
		Points:    make([][2]float64, len(points)),
		Area:      p.Area(),
		Triangles: len(sampler.Triangles()),
	}
	for i, pt := range points {
		out.Points[i] = [2]float64(pt)
	}
	return out, nil
}

type clusterPlaceArgs struct {
	Polygon [][2]float64 `json:"polygon"`
	Center  [2]float64   `json:"center"`
	Radius  float64      `json:"radius"`
	Count   int          `json:"count"`
	Seed    int64        `json:"seed"`
	Output  string       `json:"output"`
}

// ClusterPlaceResult lists the placements of a cluster.
type ClusterPlaceResult struct {
	Placements []placement.Placement `json:"placements"`
	Output     string                `json:"output,omitempty"`
	Bytes      int64                 `json:"bytes,omitempty"`
	Size       string                `json:"size,omitempty"`
}

func (s *Server) handleClusterPlace(args json.RawMessage) (interface{}, error) {
	var a clusterPlaceArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}

	var area geometry.Polygon
	var err error
	if len(a.Polygon) > 0 {
		area, err = toPolygon(a.Polygon)
	} else {
		if a.Radius <= 0 {
			return nil, fmt.Errorf("radius must be positive when no polygon is given")
		}
		area, err = geometry.Hexagon(orb.Point(a.Center), a.Radius)
	}
	if err != nil {
		return nil, err
	}

	placements, err := placement.PlaceCluster(area, a.Count, rand.New(rand.NewSource(a.Seed)))
	if err != nil {
		return nil, err
	}
	out := &ClusterPlaceResult{Placements: placements}
	if a.Output != "" {
		n, err := placement.WriteClusterFile(a.Output, placements)
		if err != nil {
			return nil, err
		}
		out.Output = a.Output
		out.Bytes = n
		out.Size = humanize.Bytes(uint64(n))
	}
	return out, nil
}

type slopeAlignArgs struct {
	Normal    []float64 `json:"normal"`
	Reference []float64 `json:"reference"`
	Units     string    `json:"units"`
}

// SlopeAlignResult is an Euler rotation.
type SlopeAlignResult struct {
	Rotation [3]float64 `json:"rotation"`
	Units    string     `json:"units"`
	Order    string     `json:"order"`
}

func (s *Server) handleSlopeAlign(args json.RawMessage) (interface{}, error) {
	var a slopeAlignArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	normal, err := toVec3(a.Normal)
	if err != nil {
		return nil, fmt.Errorf("normal: %w", err)
	}
	reference := slope.Up
	if len(a.Reference) > 0 {
		if reference, err = toVec3(a.Reference); err != nil {
			return nil, fmt.Errorf("reference: %w", err)
		}
	}

	units := slope.Degrees
	switch strings.ToLower(a.Units) {
	case "", "degrees":
	case "radians":
		units = slope.Radians
	default:
		return nil, fmt.Errorf("unknown units %q", a.Units)
	}

	e, err := slope.AlignNormalToAxis(normal, reference, units)
	if err != nil {
		return nil, err
	}
	return &SlopeAlignResult{Rotation: e, Units: units.String(), Order: "xyz"}, nil
}

func toVec3(v []float64) (mgl64.Vec3, error) {
	if len(v) != 3 {
		return mgl64.Vec3{}, fmt.Errorf("want 3 components, got %d", len(v))
	}
	return mgl64.Vec3{v[0], v[1], v[2]}, nil
}

// === Terrain Handlers ===

type terrainQueryArgs struct {
	Geometry string       `json:"geometry"`
	Points   [][2]float64 `json:"points"`
}

// TerrainSample is the terrain answer at one point.
type TerrainSample struct {
	X         float64     `json:"x"`
	Y         float64     `json:"y"`
	Elevation float64     `json:"elevation,omitempty"`
	Normal    *[3]float64 `json:"normal,omitempty"`
	Error     string      `json:"error,omitempty"`
}

func (s *Server) handleTerrainQuery(ctx context.Context, args json.RawMessage) (interface{}, error) {
	var a terrainQueryArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	h, err := s.terrainHandle(ctx, a.Geometry)
	if err != nil {
		return nil, err
	}

	points := make([]orb.Point, len(a.Points))
	for i, p := range a.Points {
		points[i] = orb.Point(p)
	}
	results, err := s.terrain.QueryBatch(ctx, h, points)
	if err != nil {
		return nil, err
	}

	out := make([]TerrainSample, len(results))
	for i, r := range results {
		out[i] = TerrainSample{X: points[i][0], Y: points[i][1]}
		if r.Err != nil {
			out[i].Error = r.Err.Error()
			continue
		}
		n := [3]float64(r.Result.Normal)
		out[i].Elevation = r.Result.Elevation
		out[i].Normal = &n
	}
	return map[string]interface{}{
		"max_elevation": h.MaxElevation,
		"samples":       out,
	}, nil
}

// terrainHandle compiles geometry once per server.
func (s *Server) terrainHandle(ctx context.Context, geometry string) (terrain.Handle, error) {
	if geometry == "" {
		return terrain.Handle{}, errors.New("geometry path is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if h, ok := s.handles[geometry]; ok {
		return h, nil
	}
	h, err := s.terrain.Compile(ctx, geometry)
	if err != nil {
		return terrain.Handle{}, err
	}
	s.handles[geometry] = h
	return h, nil
}

// === Annotation Handlers ===

type rasterPathArgs struct {
	Path string `json:"path"`
}

func (s *Server) handleRasterInfo(args json.RawMessage) (interface{}, error) {
	var a rasterPathArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	return imaging.LoadRasterInfo(s.cache, a.Path)
}

type maskExtractArgs struct {
	Path        string  `json:"path"`
	Band        int     `json:"band"`
	Threshold   float64 `json:"threshold"`
	IncludeFill bool    `json:"include_fill"`
}

// MaskResult describes the region of one band.
type MaskResult struct {
	Band             string `json:"band"`
	BBox             [4]int `json:"bbox"`
	Segmentation     []int  `json:"segmentation"`
	SegmentationFill []int  `json:"segmentation_fill,omitempty"`
	Pixels           int    `json:"pixels"`
	Components       int    `json:"components"`
}

func (s *Server) handleMaskExtract(args json.RawMessage) (interface{}, error) {
	var a maskExtractArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	b, err := s.cache.LoadBand(a.Path, a.Band)
	if err != nil {
		return nil, err
	}
	m, err := annotate.Extract(b, a.Threshold)
	if err != nil {
		return nil, err
	}

	out := &MaskResult{
		Band:         b.Name,
		BBox:         m.BBox,
		Segmentation: m.Segmentation(),
		Pixels:       len(m.Filled),
		Components:   annotate.Components(b, a.Threshold),
	}
	if a.IncludeFill {
		out.SegmentationFill = m.SegmentationFill()
	}
	return out, nil
}

type annotateBandsArgs struct {
	Path      string  `json:"path"`
	Image     string  `json:"image"`
	OutputDir string  `json:"output_dir"`
	Threshold float64 `json:"threshold"`
	Index     string  `json:"index"`
}

// AnnotateResult reports the files written for one image.
type AnnotateResult struct {
	AnnotationsPath string           `json:"annotations_path"`
	MetadataPath    string           `json:"metadata_path"`
	Entries         []annotate.Entry `json:"entries"`
}

func (s *Server) handleAnnotateBands(ctx context.Context, args json.RawMessage) (interface{}, error) {
	var a annotateBandsArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	if a.Image == "" || a.OutputDir == "" {
		return nil, errors.New("image and output_dir are required")
	}
	bands, err := s.cache.Load(a.Path)
	if err != nil {
		return nil, err
	}

	w := annotate.NewWriter(a.Image, "", nil)
	if _, err := annotate.AnnotateBands(w, bands, a.Threshold); err != nil {
		return nil, err
	}
	annPath, metaPath, err := w.WriteDir(a.OutputDir)
	if err != nil {
		return nil, err
	}

	if a.Index != "" {
		ix, err := annotate.OpenIndex(a.Index)
		if err != nil {
			return nil, err
		}
		defer ix.Close()
		if err := ix.Record(ctx, w); err != nil {
			return nil, err
		}
	}
	return &AnnotateResult{AnnotationsPath: annPath, MetadataPath: metaPath, Entries: w.Entries()}, nil
}

type annotationPreviewArgs struct {
	Path         string  `json:"path"`
	Band         int     `json:"band"`
	Threshold    float64 `json:"threshold"`
	Scale        float64 `json:"scale"`
	OutlineColor string  `json:"outline_color"`
	Output       string  `json:"output"`
}

func (s *Server) handleAnnotationPreview(args json.RawMessage) (interface{}, error) {
	var a annotationPreviewArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	if a.Scale == 0 {
		a.Scale = 1.0
	}
	b, err := s.cache.LoadBand(a.Path, a.Band)
	if err != nil {
		return nil, err
	}

	var overlays []imaging.Overlay
	for _, region := range annotate.Regions(b, a.Threshold) {
		overlays = append(overlays, imaging.Overlay{
			Hull:   geometry.ConvexHull(region),
			Filled: region,
		})
	}

	opts := imaging.DefaultPreviewOptions()
	opts.OutlineHex = a.OutlineColor
	img, err := imaging.RenderPreview(b, overlays, opts)
	if err != nil {
		return nil, err
	}
	if a.Output != "" {
		if err := imaging.SavePreview(a.Output, img); err != nil {
			return nil, err
		}
	}
	return imaging.EncodePreview(img, image.Rectangle{}, a.Scale)
}

// === Assembly Handlers ===

type sceneAssembleArgs struct {
	Config string `json:"config"`
}

// AssembleResult summarises one assembly run.
type AssembleResult struct {
	RunID           string                `json:"run_id"`
	Instances       []*placement.Instance `json:"instances"`
	Missed          []string              `json:"missed,omitempty"`
	ClusterFiles    []string              `json:"cluster_files,omitempty"`
	Journal         string                `json:"journal"`
	AnnotationsPath string                `json:"annotations_path,omitempty"`
}

func (s *Server) handleSceneAssemble(ctx context.Context, args json.RawMessage) (interface{}, error) {
	var a sceneAssembleArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	cfg, err := assembly.LoadConfig(a.Config)
	if err != nil {
		return nil, err
	}
	st, err := assembly.Run(ctx, cfg, nil, nil)
	if err != nil {
		return nil, err
	}
	return &AssembleResult{
		RunID:           st.RunID,
		Instances:       st.Instances,
		Missed:          st.Missed,
		ClusterFiles:    st.ClusterFiles,
		Journal:         st.JournalPath,
		AnnotationsPath: st.AnnotationsPath,
	}, nil
}
