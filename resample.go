package geosample

import (
	"context"
	"fmt"
	"math"
)

// A Resampling is a resampling method.
type Resampling int

const (
	Nearest Resampling = iota
	Bilinear
)

func (r Resampling) String() string {
	switch r {
	case Nearest:
		return "nearest"
	case Bilinear:
		return "bilinear"
	default:
		return fmt.Sprintf("Resampling(%d)", int(r))
	}
}

// InterpolateBilinear returns the bilinear interpolation of g at the
// fractional pixel position (col, row), where integer positions are pixel
// centers. Positions outside g are clamped to its edges. NaN neighbors are
// ignored and the remaining weights renormalized; if all four neighbors are
// NaN the result is NaN.
func InterpolateBilinear(g *Grid, col, row float64) float64 {
	x0 := int(math.Floor(col))
	y0 := int(math.Floor(row))
	dx := col - float64(x0)
	dy := row - float64(y0)
	x1 := clamp(x0+1, 0, g.Width-1)
	y1 := clamp(y0+1, 0, g.Height-1)
	x0 = clamp(x0, 0, g.Width-1)
	y0 = clamp(y0, 0, g.Height-1)

	var sum, weights float64
	for _, neighbor := range [4]struct {
		row, col int
		weight   float64
	}{
		{y0, x0, (1 - dx) * (1 - dy)},
		{y0, x1, dx * (1 - dy)},
		{y1, x0, (1 - dx) * dy},
		{y1, x1, dx * dy},
	} {
		if neighbor.weight == 0 {
			continue
		}
		sample := g.At(neighbor.row, neighbor.col)
		if math.IsNaN(sample) {
			continue
		}
		sum += sample * neighbor.weight
		weights += neighbor.weight
	}
	if weights == 0 {
		return math.NaN()
	}
	return sum / weights
}

// Resample returns g resampled to width by height. Output pixel centers are
// mapped onto g's pixel centers so that resampling to the same size is the
// identity.
func Resample(g *Grid, width, height int, resampling Resampling) (*Grid, error) {
	if width < 0 || height < 0 {
		return nil, fmt.Errorf("%dx%d: invalid size", width, height)
	}
	result := NewGrid(width, height)
	if g.Width == 0 || g.Height == 0 {
		for i := range result.Data {
			result.Data[i] = math.NaN()
		}
		return result, nil
	}

	scaleX := float64(g.Width) / float64(max(width, 1))
	scaleY := float64(g.Height) / float64(max(height, 1))
	for row := range height {
		srcRow := (float64(row)+0.5)*scaleY - 0.5
		for col := range width {
			srcCol := (float64(col)+0.5)*scaleX - 0.5
			var sample float64
			switch resampling {
			case Nearest:
				sample = g.At(
					clamp(int(math.Floor(srcRow+0.5)), 0, g.Height-1),
					clamp(int(math.Floor(srcCol+0.5)), 0, g.Width-1),
				)
			case Bilinear:
				sample = InterpolateBilinear(g, srcCol, srcRow)
			default:
				return nil, fmt.Errorf("%s: unsupported resampling", resampling)
			}
			result.Set(row, col, sample)
		}
	}
	return result, nil
}

// ReadResampled reads band of window from ds and resamples it to width by
// height.
func ReadResampled(ctx context.Context, ds Dataset, band int, window Window, width, height int, resampling Resampling) (*Grid, error) {
	g, err := ds.Read(ctx, band, window)
	if err != nil {
		return nil, err
	}
	if g.Width == width && g.Height == height {
		return g, nil
	}
	return Resample(g, width, height, resampling)
}

func clamp(x, lo, hi int) int {
	return max(lo, min(x, hi))
}
