// Package geometry provides the planar primitives used to lay out object
// instances: polygons, ear-clipping triangulation, area-weighted random point
// sampling, minimum-spacing layouts and convex hulls.
//
// # Coordinate System
//
// Polygon coordinates are scene ENU meters: X increases east, Y increases
// north. Polygons are normalised to counter-clockwise winding on construction.
// ConvexHull works on integer pixel coordinates (X right, Y down) and returns
// vertices in the same rotational sense as the monotone chain produces them.
//
// # Determinism
//
// Every random draw is taken from the *rand.Rand passed in by the caller, in a
// fixed order (triangle choice, then u, then v for each point). Two runs that
// share a seed and the same call sequence produce bit-identical output.
//
// # Error Handling
//
// ErrInvalidPolygon is returned (wrapped) for polygons with fewer than three
// distinct vertices, zero area, or no triangle with positive weight.
package geometry
