// Package placement creates and updates object instance transforms.
//
// Clusters are laid out with PlaceCluster and handed to the renderer as one
// flat binary file (WriteClusterFile); their instances are never draped here
// because the renderer positions them relative to their anchor. Individually
// placed (Static) instances are draped onto terrain with ConformToTerrain.
//
// Rotations are intrinsic X-Y-Z Euler angles in degrees.
package placement
