// Package slope turns terrain surface normals into orientation corrections.
//
// Rotations are expressed as intrinsic X-Y-Z Euler triples, so the rotation
// matrix is Rx(e[0]) * Ry(e[1]) * Rz(e[2]). Only the first two components
// (pitch and roll) of an alignment are ever merged into an instance; its yaw
// is left alone.
//
// When the normal points exactly away from the reference axis the rotation
// axis is undefined. AlignNormalToAxis then rotates 180 degrees about the
// world X axis made orthogonal to the reference, or world Y when the
// reference itself lies along X. For the usual +Z reference the result is
// (180, 0, 0) in degrees.
package slope
