// Package imaging is the pixel layer behind image-flow operations.
//
// It wraps the bitmap libraries the operations rely on: cropping, resizing
// and compositing through disintegration/imaging, tonal adjustments and
// blur through bild, and color parsing through go-colorful. It also probes
// encoded images for their dimensions and draws small text labels onto
// debug frames.
//
// # Coordinate System
//
// All pixel coordinates in this package are 0-based and relative to the
// image origin:
//   - X: horizontal position (0 = leftmost pixel)
//   - Y: vertical position (0 = topmost pixel)
//   - For regions, (x1,y1) is inclusive (top-left), (x2,y2) is exclusive (bottom-right)
//
// # Thread Safety
//
// ProbeCache is safe for concurrent use. Every other function is stateless
// and returns a new image, never modifying its input.
package imaging
