// Package assembly runs one scene assembly: it instantiates catalog objects,
// poses them, lays out clusters, drapes everything on the terrain and records
// the final transforms.
//
// The work is expressed as a small dependency graph of steps. Steps run one at
// a time in a fixed order, and every random draw of a run comes from a single
// generator seeded from the configuration, so a configuration and seed always
// produce the same scene.
package assembly
