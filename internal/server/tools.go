package server

// Tool represents an MCP tool definition
type Tool struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"inputSchema"`
}

var pointListSchema = map[string]interface{}{
	"type": "array",
	"items": map[string]interface{}{
		"type":     "array",
		"items":    map[string]interface{}{"type": "number"},
		"minItems": 2,
		"maxItems": 2,
	},
}

// GetToolDefinitions returns all available tools
func GetToolDefinitions() []Tool {
	return []Tool{
		// Placement
		{
			Name:        "polygon_sample",
			Description: "Draw points uniformly at random inside a polygon. The same seed always gives the same points. With min_distance set, returns a spaced layout instead of count random points.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"polygon": withDescription(pointListSchema, "Polygon vertices as [x, y] pairs, in either winding order"),
					"count": map[string]interface{}{
						"type":        "integer",
						"description": "Number of points to draw",
					},
					"seed": map[string]interface{}{
						"type":        "integer",
						"description": "Random seed. Default 0",
						"default":     0,
					},
					"min_distance": map[string]interface{}{
						"type":        "number",
						"description": "Optional minimum spacing between points; replaces count when set",
					},
				},
				"required": []string{"polygon"},
			},
		},
		{
			Name:        "cluster_place",
			Description: "Scatter a cluster of placements with random headings over a polygon, or over the hexagon of a radius around a center. Optionally writes the binary placement file a renderer reads.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"polygon": withDescription(pointListSchema, "Cluster area as [x, y] pairs; overrides center and radius"),
					"center": map[string]interface{}{
						"type":        "array",
						"items":       map[string]interface{}{"type": "number"},
						"description": "Hexagon center [x, y]. Default [0, 0]",
					},
					"radius": map[string]interface{}{
						"type":        "number",
						"description": "Hexagon circumradius in meters",
					},
					"count": map[string]interface{}{
						"type":        "integer",
						"description": "Number of placements",
					},
					"seed": map[string]interface{}{
						"type":        "integer",
						"description": "Random seed. Default 0",
						"default":     0,
					},
					"output": map[string]interface{}{
						"type":        "string",
						"description": "Optional path of the binary placement file to write",
					},
				},
				"required": []string{"count"},
			},
		},
		{
			Name:        "slope_align",
			Description: "Compute the Euler rotation (intrinsic X-Y-Z) that turns the reference axis onto a surface normal.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"normal": map[string]interface{}{
						"type":        "array",
						"items":       map[string]interface{}{"type": "number"},
						"description": "Target normal [x, y, z]",
					},
					"reference": map[string]interface{}{
						"type":        "array",
						"items":       map[string]interface{}{"type": "number"},
						"description": "Reference axis [x, y, z]. Default [0, 0, 1]",
					},
					"units": map[string]interface{}{
						"type":        "string",
						"enum":        []string{"degrees", "radians"},
						"description": "Angle units of the result. Default degrees",
						"default":     "degrees",
					},
				},
				"required": []string{"normal"},
			},
		},

		// Terrain
		{
			Name:        "terrain_query",
			Description: "Cast vertical rays onto terrain geometry and return the elevation and upward normal at each point. Points with no terrain below report an error instead of a result.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"geometry": map[string]interface{}{
						"type":        "string",
						"description": "Absolute path to the terrain geometry",
					},
					"points": withDescription(pointListSchema, "Query locations as [x, y] pairs"),
				},
				"required": []string{"geometry", "points"},
			},
		},

		// Annotation
		{
			Name:        "raster_info",
			Description: "Load a truth raster (ENVI cube, TIFF or image) and list its size, format and band names.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path": map[string]interface{}{
						"type":        "string",
						"description": "Absolute path to the raster (ENVI .hdr header for cubes)",
					},
				},
				"required": []string{"path"},
			},
		},
		{
			Name:        "mask_extract",
			Description: "Extract the bounding box, convex hull and filled pixels of the region above a threshold in one raster band.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path": map[string]interface{}{
						"type":        "string",
						"description": "Absolute path to the raster",
					},
					"band": map[string]interface{}{
						"type":        "integer",
						"description": "Band index (0-based). Default 0",
						"default":     0,
					},
					"threshold": map[string]interface{}{
						"type":        "number",
						"description": "Pixels strictly above this value belong to the region. Default 0",
						"default":     0,
					},
					"include_fill": map[string]interface{}{
						"type":        "boolean",
						"description": "Include every filled pixel in the result. Default false",
						"default":     false,
					},
				},
				"required": []string{"path"},
			},
		},
		{
			Name:        "annotate_bands",
			Description: "Annotate every abundance band of an ENVI truth cube and write the annotation and metadata JSON files for the rendered image.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path": map[string]interface{}{
						"type":        "string",
						"description": "Absolute path to the truth cube's .hdr header",
					},
					"image": map[string]interface{}{
						"type":        "string",
						"description": "File name of the rendered image the annotations describe",
					},
					"output_dir": map[string]interface{}{
						"type":        "string",
						"description": "Directory receiving annotations/ and metadata/",
					},
					"threshold": map[string]interface{}{
						"type":        "number",
						"description": "Abundance threshold. Default 0",
						"default":     0,
					},
					"index": map[string]interface{}{
						"type":        "string",
						"description": "Optional SQLite index database to record the annotations in",
					},
				},
				"required": []string{"path", "image", "output_dir"},
			},
		},
		{
			Name:        "annotation_preview",
			Description: "Render a band with the hull and fill of each of its regions drawn over it, returned as base64-encoded PNG.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path": map[string]interface{}{
						"type":        "string",
						"description": "Absolute path to the raster",
					},
					"band": map[string]interface{}{
						"type":        "integer",
						"description": "Band index (0-based). Default 0",
						"default":     0,
					},
					"threshold": map[string]interface{}{
						"type":        "number",
						"description": "Region threshold. Default 0",
						"default":     0,
					},
					"scale": map[string]interface{}{
						"type":        "number",
						"description": "Optional scale factor. Default 1.0",
						"default":     1.0,
					},
					"outline_color": map[string]interface{}{
						"type":        "string",
						"description": "Optional hull outline color as #RRGGBB",
					},
					"output": map[string]interface{}{
						"type":        "string",
						"description": "Optional path to also save the full-size preview PNG",
					},
				},
				"required": []string{"path"},
			},
		},

		// Assembly
		{
			Name:        "scene_assemble",
			Description: "Run a full scene assembly from a YAML config: catalog objects, clusters, terrain draping, transform journal and optional annotation.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"config": map[string]interface{}{
						"type":        "string",
						"description": "Absolute path to the assembly config",
					},
				},
				"required": []string{"config"},
			},
		},
	}
}

// withDescription copies schema and sets its description.
func withDescription(schema map[string]interface{}, desc string) map[string]interface{} {
	out := make(map[string]interface{}, len(schema)+1)
	for k, v := range schema {
		out[k] = v
	}
	out["description"] = desc
	return out
}

// handleToolsList returns the list of available tools
func (s *Server) handleToolsList(req *MCPRequest) *MCPResponse {
	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: map[string]interface{}{
			"tools": GetToolDefinitions(),
		},
	}
}
