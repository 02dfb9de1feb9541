// Package annotate derives ground-truth annotations from rendered truth
// bands.
//
// Each truth band is expected to hold exactly one object: the pixels whose
// value exceeds a threshold. Extract turns that region into a Mask (bounding
// box, convex hull, and every filled pixel). A Writer collects masks for one
// rendered image and writes the annotation and metadata JSON documents;
// AnnotateBands drives the whole step for a cube, logging and skipping bands
// that cannot be masked. Index records written annotations in SQLite so a
// dataset can be queried across runs.
//
// Output documents use flat interleaved pixel coordinates:
//
//	{"name": "Truck_0", "type": "Truck", "bbox": [x, y, w, h],
//	 "segmentation": [x0, y0, x1, y1, ...], "segmentation_fill": [x, y, ...]}
package annotate
