// Package server implements the MCP (Model Context Protocol) server for scene
// placement and annotation tools.
//
// This package provides a JSON-RPC 2.0 server that exposes the placement,
// terrain and annotation packages through the MCP protocol, so an MCP client
// can lay out objects, drape them on terrain and turn rendered truth cubes
// into annotation files.
//
// # Protocol
//
// The server communicates over stdio using JSON-RPC 2.0:
//   - Input: JSON-RPC requests on stdin (one per line)
//   - Output: JSON-RPC responses on stdout
//
// Supported MCP methods:
//   - initialize: Protocol handshake
//   - tools/list: Enumerate available tools
//   - tools/call: Execute a tool with arguments
//   - ping: Health check
//
// # Available Tools
//
// Placement:
//   - polygon_sample: Uniform or spaced points inside a polygon
//   - cluster_place: Headed placements inside a polygon or hexagon
//   - slope_align: Euler rotation that aligns a normal with a reference axis
//
// Terrain:
//   - terrain_query: Elevation and normal under a batch of points
//
// Annotation:
//   - raster_info: Size, format and band names of a raster
//   - mask_extract: Bounding box and hull of one band's region
//   - annotate_bands: Annotation and metadata files for a truth cube
//   - annotation_preview: Band rendering with region overlays
//
// Assembly:
//   - scene_assemble: Run a full scene configuration
//
// # Caching
//
// Rasters are cached by path in an imaging.RasterCache. Terrain geometry is
// compiled once per path and the handle is reused for later queries. Both
// live for the lifetime of the server process.
//
// # Error Handling
//
// Tool execution errors are returned as JSON-RPC error responses with:
//   - code: -32000 (tool execution failure) or standard JSON-RPC codes
//   - message: Human-readable error description
//   - data: The Go error string
//
// A point that misses the terrain is not a tool error; terrain_query reports
// it in that point's "error" field and answers the rest.
//
// # Usage
//
//	srv := server.New()
//	if err := srv.Run(ctx); err != nil {
//	    log.Fatal(err)
//	}
package server
