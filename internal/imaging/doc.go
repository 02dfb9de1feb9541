// Package imaging loads rendered truth rasters as single-channel bands and
// draws annotation previews over them.
//
// # Coordinate System
//
// All pixel coordinates in this package are 0-based:
//   - X: horizontal position (0 = leftmost pixel)
//   - Y: vertical position (0 = topmost pixel)
//   - Band samples are stored row-major, so (x, y) lives at Pix[y*Width+x]
//
// # Formats
//
// ENVI cubes (.hdr plus data file) are read band by band with every
// interleave and the common integer and float sample types. PNG, JPEG, GIF,
// BMP and TIFF files load as one luminance band scaled to [0, 1]; TIFF is
// decoded at its full 16-bit depth.
//
// # Thread Safety
//
// The RasterCache type is safe for concurrent use. Bands returned from the
// cache are shared and must be treated as read-only.
//
// # Previews
//
// RenderPreview tints each annotated region with its own hue and outlines
// its hull. SavePreview writes the result as PNG; EncodePreview returns it as
// base64 for tool responses.
package imaging
