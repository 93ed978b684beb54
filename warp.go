package geosample

import (
	"errors"
	"fmt"
	"math"
)

// edgeSteps is the number of intervals along each edge of the source bounds
// that are transformed when computing the destination extent.
const edgeSteps = 20

var errNoValidPoints = errors.New("no valid points")

// CalculateDefaultTransform returns the transform and size of a raster in
// dstCRS that covers srcBounds in srcCRS. If dstWidth and dstHeight are both
// positive then they are used as the destination size and the pixel size is
// derived from them. Otherwise square pixels are chosen so that the diagonal
// of the destination raster has the same number of pixels as that of the
// width by height source raster.
func CalculateDefaultTransform(projection Projection, srcCRS, dstCRS string, width, height int, srcBounds Bounds, dstWidth, dstHeight int) (Affine, int, int, error) {
	transformer, err := projection.NewTransformer(srcCRS, dstCRS)
	if err != nil {
		return Affine{}, 0, 0, err
	}
	return calculateDefaultTransform(transformer, srcCRS, dstCRS, width, height, srcBounds, dstWidth, dstHeight)
}

// calculateDefaultTransform implements CalculateDefaultTransform with an
// existing transformer. srcCRS and dstCRS are only used in errors.
func calculateDefaultTransform(transformer Transformer, srcCRS, dstCRS string, width, height int, srcBounds Bounds, dstWidth, dstHeight int) (Affine, int, int, error) {
	dst := Bounds{
		Left:   math.Inf(1),
		Bottom: math.Inf(1),
		Right:  math.Inf(-1),
		Top:    math.Inf(-1),
	}
	valid := 0
	for i := 0; i <= edgeSteps; i++ {
		t := float64(i) / edgeSteps
		x := srcBounds.Left + t*(srcBounds.Right-srcBounds.Left)
		y := srcBounds.Bottom + t*(srcBounds.Top-srcBounds.Bottom)
		for _, point := range [4][2]float64{
			{x, srcBounds.Bottom},
			{x, srcBounds.Top},
			{srcBounds.Left, y},
			{srcBounds.Right, y},
		} {
			dstX, dstY, err := transformer.Forward(point[0], point[1])
			if err != nil || !isFinite(dstX) || !isFinite(dstY) {
				continue
			}
			dst.Left = min(dst.Left, dstX)
			dst.Right = max(dst.Right, dstX)
			dst.Bottom = min(dst.Bottom, dstY)
			dst.Top = max(dst.Top, dstY)
			valid++
		}
	}
	if valid == 0 {
		return Affine{}, 0, 0, fmt.Errorf("%s to %s: %w", srcCRS, dstCRS, errNoValidPoints)
	}

	extentX := dst.Right - dst.Left
	extentY := dst.Top - dst.Bottom
	if dstWidth > 0 && dstHeight > 0 {
		transform := NewAffineFromOrigin(dst.Left, dst.Top, extentX/float64(dstWidth), extentY/float64(dstHeight))
		return transform, dstWidth, dstHeight, nil
	}

	if width <= 0 || height <= 0 {
		return Affine{}, 0, 0, fmt.Errorf("%dx%d: invalid source size", width, height)
	}
	resolution := math.Hypot(extentX, extentY) / math.Hypot(float64(width), float64(height))
	if resolution == 0 {
		return Affine{}, 0, 0, fmt.Errorf("%s to %s: empty extent", srcCRS, dstCRS)
	}
	dstWidth = max(int(math.Ceil(extentX/resolution-0.01)), 1)
	dstHeight = max(int(math.Ceil(extentY/resolution-0.01)), 1)
	transform := NewAffineFromOrigin(dst.Left, dst.Top, resolution, resolution)
	return transform, dstWidth, dstHeight, nil
}
