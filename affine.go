package geosample

import (
	"errors"
	"math"
)

var errSingularTransform = errors.New("singular transform")

// An Affine maps pixel coordinates (col, row) to CRS coordinates (x, y):
//
//	x = A*col + B*row + C
//	y = D*col + E*row + F
type Affine struct {
	A, B, C float64
	D, E, F float64
}

// NewAffineFromOrigin returns the north-up Affine with its top left corner at
// (west, north) and the given pixel sizes.
func NewAffineFromOrigin(west, north, xSize, ySize float64) Affine {
	return Affine{
		A: xSize, C: west,
		E: -ySize, F: north,
	}
}

// Apply returns the CRS coordinates of the fractional pixel (col, row).
func (a Affine) Apply(col, row float64) (float64, float64) {
	return a.A*col + a.B*row + a.C, a.D*col + a.E*row + a.F
}

func (a Affine) Determinant() float64 {
	return a.A*a.E - a.B*a.D
}

// Invert returns the inverse of a, which maps CRS coordinates to fractional
// pixel coordinates.
func (a Affine) Invert() (Affine, error) {
	det := a.Determinant()
	if det == 0 || math.IsNaN(det) || math.IsInf(det, 0) {
		return Affine{}, errSingularTransform
	}
	idet := 1 / det
	ra := a.E * idet
	rb := -a.B * idet
	rd := -a.D * idet
	re := a.A * idet
	return Affine{
		A: ra, B: rb, C: -a.C*ra - a.F*rb,
		D: rd, E: re, F: -a.C*rd - a.F*re,
	}, nil
}

// Index returns the (row, col) of the pixel containing (x, y). Fractional
// pixel coordinates are floored.
func (a Affine) Index(x, y float64) (int, int, error) {
	inv, err := a.Invert()
	if err != nil {
		return 0, 0, err
	}
	col, row := inv.Apply(x, y)
	if !isFinite(col) || !isFinite(row) {
		return 0, 0, ErrOutOfBounds
	}
	return int(math.Floor(row)), int(math.Floor(col)), nil
}

// BoundsFor returns the bounds of a width by height raster with transform a.
func (a Affine) BoundsFor(width, height int) Bounds {
	w, h := float64(width), float64(height)
	b := Bounds{
		Left:   math.Inf(1),
		Bottom: math.Inf(1),
		Right:  math.Inf(-1),
		Top:    math.Inf(-1),
	}
	for _, corner := range [][2]float64{{0, 0}, {w, 0}, {0, h}, {w, h}} {
		x, y := a.Apply(corner[0], corner[1])
		b.Left = min(b.Left, x)
		b.Right = max(b.Right, x)
		b.Bottom = min(b.Bottom, y)
		b.Top = max(b.Top, y)
	}
	return b
}

func isFinite(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0)
}
