package geosample

import (
	"context"
	"fmt"
	"log/slog"
	"math"
)

// maxPixel bounds pixel coordinates that are converted to ints.
const maxPixel = 1 << 30

// ResampleAndExtractValue returns the value at p of band 1 of the raster
// name after resampling it from oldResolution to newResolution meters.
//
// p is transformed into the UTM zone that contains it, the raster is
// resampled with bilinear interpolation to its size scaled by
// newResolution/oldResolution over the extent of its bounds in that zone,
// and the value of the pixel containing the transformed point is returned.
// The whole raster is resampled, so this is expensive for large rasters.
//
// If p is outside the resampled raster or the value is missing then NaN is
// returned with a nil error. Errors opening or reading the raster are
// returned.
func (s *Sampler) ResampleAndExtractValue(ctx context.Context, name string, p LatLon, oldResolution, newResolution float64) (float64, error) {
	var value float64
	err := s.withDataset(name, func(ds Dataset) error {
		var err error
		value, err = s.resampleAndExtract(ctx, ds, p, oldResolution, newResolution)
		return err
	})
	return s.collapse(ctx, "resample_and_extract_value", value, err)
}

// resampleAndExtract implements ResampleAndExtractValue on an open dataset.
// It returns ErrOutOfBounds or ErrNoData when there is no value.
func (s *Sampler) resampleAndExtract(ctx context.Context, ds Dataset, p LatLon, oldResolution, newResolution float64) (float64, error) {
	if !(oldResolution > 0) || !(newResolution > 0) || math.IsInf(oldResolution, 0) || math.IsInf(newResolution, 0) {
		return 0, fmt.Errorf("%g to %g: %w", oldResolution, newResolution, ErrInvalidResolution)
	}
	if !isFinite(p.Lat) || !isFinite(p.Lon) || p.Lat < -90 || 90 < p.Lat {
		return 0, ErrOutOfBounds
	}

	srcCRS := s.sourceCRS(ds)
	zone := UTMZone(p.Lon)
	if zone < 1 || 60 < zone {
		return 0, ErrOutOfBounds
	}
	epsgCode, err := EPSGCode(zone, HemisphereOf(p.Lat))
	if err != nil {
		return 0, err
	}
	dstCRS := epsgCRS(epsgCode)

	transformer, err := s.projection.NewTransformer(srcCRS, dstCRS)
	if err != nil {
		return 0, err
	}
	easting, northing, err := transformer.Forward(p.Lon, p.Lat)
	if err != nil || !isFinite(easting) || !isFinite(northing) {
		return 0, ErrOutOfBounds
	}

	scaleFactor := newResolution / oldResolution
	dstWidth := int(float64(ds.Width()) * scaleFactor)
	dstHeight := int(float64(ds.Height()) * scaleFactor)
	if dstWidth < 1 || dstHeight < 1 {
		return 0, ErrOutOfBounds
	}

	dstTransform, dstWidth, dstHeight, err := calculateDefaultTransform(transformer, srcCRS, dstCRS, ds.Width(), ds.Height(), ds.Bounds(), dstWidth, dstHeight)
	if err != nil {
		return 0, err
	}

	s.logger.DebugContext(ctx, "resampling",
		slog.String("src_crs", srcCRS),
		slog.String("dst_crs", dstCRS),
		slog.Float64("scale_factor", scaleFactor),
		slog.Int("dst_width", dstWidth),
		slog.Int("dst_height", dstHeight),
	)

	data, err := ReadResampled(ctx, ds, 1, Window{Width: ds.Width(), Height: ds.Height()}, dstWidth, dstHeight, Bilinear)
	if err != nil {
		return 0, err
	}

	inverse, err := dstTransform.Invert()
	if err != nil {
		return 0, ErrOutOfBounds
	}
	pixelCol, pixelRow := inverse.Apply(easting, northing)
	if !isFinite(pixelCol) || !isFinite(pixelRow) || math.Abs(pixelCol) > maxPixel || math.Abs(pixelRow) > maxPixel {
		return 0, ErrOutOfBounds
	}
	// Truncate toward zero, so fractional positions just outside the top or
	// left edges select the first row or column.
	return data.Sample(int(pixelRow), int(pixelCol))
}
