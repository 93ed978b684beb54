package geosample

import "context"

// ExtractValuesAtCoordinates returns the value of the pixel of band 1 of the
// raster name that contains p. The result always has one element, which is
// NaN if p is outside the raster. Nodata pixels are also NaN.
//
// Like LeeFilter, p is used directly in the raster's CRS.
func (s *Sampler) ExtractValuesAtCoordinates(ctx context.Context, name string, p LatLon) ([]float64, error) {
	var value float64
	err := s.withDataset(name, func(ds Dataset) error {
		var err error
		value, err = extractValue(ctx, ds, p)
		return err
	})
	value, err = s.collapse(ctx, "extract_values_at_coordinates", value, err)
	if err != nil {
		return nil, err
	}
	return []float64{value}, nil
}

// extractValue returns the value of the pixel of ds containing p, or
// ErrOutOfBounds. NaN pixels are returned as they are.
func extractValue(ctx context.Context, ds Dataset, p LatLon) (float64, error) {
	if !ds.Bounds().Contains(p.Lon, p.Lat) {
		return 0, ErrOutOfBounds
	}
	row, col := ds.Index(p.Lon, p.Lat)
	g, err := ds.Read(ctx, 1, Window{Row: row, Col: col, Height: 1, Width: 1})
	if err != nil {
		return 0, err
	}
	if !g.Contains(0, 0) {
		return 0, ErrOutOfBounds
	}
	return g.At(0, 0), nil
}
