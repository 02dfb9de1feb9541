// Package terrain answers "how high is the ground here, and which way does it
// face" for a compiled height field.
//
// A Service compiles base geometry once into a Handle and then answers point
// queries against it. Each query casts a ray straight down from just above
// the terrain's highest point and reports the first hit.
//
// # Implementations
//
//   - ToolService shells out to the external scene2hdf and scene_tool
//     programs through a Runner. The terrain summary is read once, at compile
//     time, and cached on the Handle.
//   - MeshService loads a Wavefront OBJ triangle mesh in process. It needs no
//     external tools and is what the tests and small scenes use.
//
// # Errors
//
// A point outside the compiled extent yields ErrNoIntersection, which callers
// may treat as recoverable per point. Any failure of an external program,
// including output that cannot be parsed, is reported as *ExternalToolError
// and should abort the run; the programs are deterministic so retrying does
// not help.
package terrain
