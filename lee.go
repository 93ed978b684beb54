package geosample

import (
	"context"
	"fmt"
)

// LeeFilter applies a Lee speckle filter to the windowSize by windowSize
// window of band 1 of the raster name whose top left pixel contains p.
//
// The window extends down and to the right of p's pixel; it is not centered
// on it. The whole filtered window is returned and the filtered value at p is
// its (0, 0) element. Windows that extend beyond the raster are clipped.
//
// p is compared against the raster's bounds and converted to a pixel without
// reprojection, so the raster's CRS must be geographic (longitude, latitude).
// If p is outside the raster then a nil Grid is returned with a nil error.
//
// Filtered values are always float64, even for integer rasters.
func (s *Sampler) LeeFilter(ctx context.Context, windowSize int, name string, p LatLon) (*Grid, error) {
	if windowSize < 1 {
		return nil, fmt.Errorf("%d: %w", windowSize, ErrInvalidWindowSize)
	}
	var filtered *Grid
	err := s.withDataset(name, func(ds Dataset) error {
		var err error
		filtered, err = leeFilterDataset(ctx, ds, windowSize, p)
		return err
	})
	if _, err := s.collapse(ctx, "lee_filter", 0, err); err != nil {
		return nil, err
	}
	return filtered, nil
}

// leeFilterDataset implements LeeFilter on an open dataset. It returns
// ErrOutOfBounds or ErrNoData when there is no window.
func leeFilterDataset(ctx context.Context, ds Dataset, windowSize int, p LatLon) (*Grid, error) {
	if !ds.Bounds().Contains(p.Lon, p.Lat) {
		return nil, ErrOutOfBounds
	}
	row, col := ds.Index(p.Lon, p.Lat)
	window, err := ds.Read(ctx, 1, Window{
		Row:    row,
		Col:    col,
		Height: min(windowSize, ds.Height()),
		Width:  min(windowSize, ds.Width()),
	})
	if err != nil {
		return nil, err
	}
	if window.Width == 0 || window.Height == 0 {
		return nil, ErrNoData
	}
	return LeeFilterGrid(window, windowSize), nil
}

// LeeFilterGrid returns g filtered with a simplified Lee filter.
//
// Each output pixel is computed from the size by size neighborhood around
// the input pixel, starting size/2 pixels above and to the left of it.
// Neighbors outside g are zero. If the neighborhood's variance is zero then
// the output is the neighborhood's mean, otherwise it is the input pixel
// scaled by variance/(variance+1). The noise variance of the classical Lee
// filter is fixed at one.
//
// Only neighbors inside g are visited, so the cost does not depend on size
// once the neighborhood covers g.
func LeeFilterGrid(g *Grid, size int) *Grid {
	result := NewGrid(g.Width, g.Height)
	offset := size / 2
	// The neighborhood's cell count can exceed the range of int.
	count := float64(size) * float64(size)
	for row := range g.Height {
		row0, row1 := neighborhoodRange(row, offset, size, g.Height)
		for col := range g.Width {
			col0, col1 := neighborhoodRange(col, offset, size, g.Width)
			mean, variance := meanVariance(g, row0, row1, col0, col1, count)
			if variance == 0 {
				result.Set(row, col, mean)
				continue
			}
			result.Set(row, col, g.At(row, col)*variance/(variance+1))
		}
	}
	return result
}

// neighborhoodRange returns the half-open range of indexes in [0, n) covered
// by the size-wide neighborhood of i that starts offset before it.
func neighborhoodRange(i, offset, size, n int) (int, int) {
	start := i - offset
	// start+size is at most i+size/2+1.
	return max(start, 0), min(start+size, n)
}

// meanVariance returns the mean and population variance of count samples,
// of which those in rows [row0, row1) and columns [col0, col1) of g are
// taken from g and the remainder are zero.
func meanVariance(g *Grid, row0, row1, col0, col1 int, count float64) (float64, float64) {
	var sum float64
	for row := row0; row < row1; row++ {
		for col := col0; col < col1; col++ {
			sum += g.At(row, col)
		}
	}
	mean := sum / count
	var sumSquares float64
	for row := row0; row < row1; row++ {
		for col := col0; col < col1; col++ {
			sumSquares += (g.At(row, col) - mean) * (g.At(row, col) - mean)
		}
	}
	inside := float64(max(row1-row0, 0)) * float64(max(col1-col0, 0))
	sumSquares += (count - inside) * mean * mean
	return mean, sumSquares / count
}
