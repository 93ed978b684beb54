// Package geosample extracts and denoises values from single-band
// georeferenced rasters at geographic coordinates.
package geosample

import (
	"context"
	"errors"
	"math"
)

var (
	// ErrOutOfBounds is returned when a point falls outside a raster.
	ErrOutOfBounds = errors.New("out of bounds")

	// ErrNoData is returned when a pixel is missing or NaN.
	ErrNoData = errors.New("no data")

	// ErrInvalidResolution is returned when a resolution is not a positive
	// finite number.
	ErrInvalidResolution = errors.New("invalid resolution")

	// ErrInvalidWindowSize is returned when a Lee filter window size is less
	// than one.
	ErrInvalidWindowSize = errors.New("invalid window size")
)

// A LatLon is a geographic point in decimal degrees. WGS84 is implied.
type LatLon struct {
	Lat float64
	Lon float64
}

// Bounds are the extent of a raster in its own CRS.
type Bounds struct {
	Left   float64
	Bottom float64
	Right  float64
	Top    float64
}

// Contains returns whether (x, y) is inside b, edges included.
func (b Bounds) Contains(x, y float64) bool {
	return b.Left <= x && x <= b.Right && b.Bottom <= y && y <= b.Top
}

// A Window is a half-open rectangle of pixels.
type Window struct {
	Row    int
	Col    int
	Height int
	Width  int
}

// Empty returns whether w contains no pixels.
func (w Window) Empty() bool {
	return w.Height <= 0 || w.Width <= 0
}

// Intersect returns the intersection of w and other.
func (w Window) Intersect(other Window) Window {
	row0 := max(w.Row, other.Row)
	col0 := max(w.Col, other.Col)
	row1 := min(w.Row+w.Height, other.Row+other.Height)
	col1 := min(w.Col+w.Width, other.Col+other.Width)
	if row1 <= row0 || col1 <= col0 {
		return Window{Row: row0, Col: col0}
	}
	return Window{
		Row:    row0,
		Col:    col0,
		Height: row1 - row0,
		Width:  col1 - col0,
	}
}

// A Grid is a row-major two dimensional grid of samples.
type Grid struct {
	Width  int
	Height int
	Data   []float64
}

// NewGrid returns a new Grid of the given size filled with zeros.
func NewGrid(width, height int) *Grid {
	return &Grid{
		Width:  width,
		Height: height,
		Data:   make([]float64, width*height),
	}
}

// NewGridFilled returns a new Grid of the given size filled with value.
func NewGridFilled(width, height int, value float64) *Grid {
	g := NewGrid(width, height)
	for i := range g.Data {
		g.Data[i] = value
	}
	return g
}

// Contains returns whether (row, col) is a valid index into g.
func (g *Grid) Contains(row, col int) bool {
	return 0 <= row && row < g.Height && 0 <= col && col < g.Width
}

// At returns the sample at (row, col). It panics if (row, col) is outside g.
func (g *Grid) At(row, col int) float64 {
	return g.Data[row*g.Width+col]
}

func (g *Grid) Set(row, col int, value float64) {
	g.Data[row*g.Width+col] = value
}

// Sample returns the sample at (row, col), or ErrOutOfBounds or ErrNoData.
func (g *Grid) Sample(row, col int) (float64, error) {
	if !g.Contains(row, col) {
		return 0, ErrOutOfBounds
	}
	value := g.At(row, col)
	if math.IsNaN(value) {
		return 0, ErrNoData
	}
	return value, nil
}

// A Dataset is an open georeferenced raster. Only band 1 is used.
type Dataset interface {
	CRS() string
	Transform() Affine
	Width() int
	Height() int
	Bounds() Bounds
	Index(x, y float64) (int, int)
	Read(ctx context.Context, band int, window Window) (*Grid, error)
	Close() error
}
