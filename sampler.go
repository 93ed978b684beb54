package geosample

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"math"
	"os"
)

// DefaultCRS is the CRS assumed for rasters that do not declare one.
const DefaultCRS = "EPSG:4326"

// An OpenFunc opens the raster name in fsys.
type OpenFunc func(fsys fs.FS, name string) (Dataset, error)

// A Sampler samples rasters. Every call opens the raster, and closes it before
// returning, so a Sampler holds no state between calls and is safe for
// concurrent use.
type Sampler struct {
	fsys           fs.FS
	defaultCRS     string
	projection     Projection
	openFunc       OpenFunc
	geoTIFFOptions []GeoTIFFOption
	logger         *slog.Logger
}

// A SamplerOption sets an option on a Sampler.
type SamplerOption func(*Sampler)

// NewSampler returns a new Sampler with the given options. By default, names
// are resolved relative to the current directory, rasters are opened as
// GeoTIFFs, rasters without a CRS are assumed to be in DefaultCRS, and
// coordinates are transformed with PROJ.
func NewSampler(options ...SamplerOption) *Sampler {
	s := &Sampler{
		fsys:       os.DirFS("."),
		defaultCRS: DefaultCRS,
		projection: PROJ{},
		logger:     slog.New(slog.DiscardHandler),
	}
	for _, option := range options {
		option(s)
	}
	if s.openFunc == nil {
		s.openFunc = func(fsys fs.FS, name string) (Dataset, error) {
			return OpenGeoTIFF(fsys, name, s.geoTIFFOptions...)
		}
	}
	return s
}

// WithDefaultCRS sets the CRS assumed for rasters that do not declare one.
func WithDefaultCRS(defaultCRS string) SamplerOption {
	return func(s *Sampler) {
		s.defaultCRS = defaultCRS
	}
}

func WithFS(fsys fs.FS) SamplerOption {
	return func(s *Sampler) {
		s.fsys = fsys
	}
}

func WithGeoTIFFOptions(geoTIFFOptions ...GeoTIFFOption) SamplerOption {
	return func(s *Sampler) {
		s.geoTIFFOptions = geoTIFFOptions
	}
}

func WithLogger(logger *slog.Logger) SamplerOption {
	return func(s *Sampler) {
		s.logger = logger
	}
}

func WithOpenFunc(openFunc OpenFunc) SamplerOption {
	return func(s *Sampler) {
		s.openFunc = openFunc
	}
}

func WithProjection(projection Projection) SamplerOption {
	return func(s *Sampler) {
		s.projection = projection
	}
}

// withDataset opens name, calls f, and closes the dataset.
func (s *Sampler) withDataset(name string, f func(Dataset) error) (err error) {
	ds, err := s.openFunc(s.fsys, name)
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, ds.Close())
	}()
	return f(ds)
}

// sourceCRS returns the CRS of ds, falling back to s's default CRS.
func (s *Sampler) sourceCRS(ds Dataset) string {
	if crs := ds.CRS(); crs != "" {
		return crs
	}
	return s.defaultCRS
}

// collapse converts ErrOutOfBounds and ErrNoData into a NaN value and records
// the result.
func (s *Sampler) collapse(ctx context.Context, operation string, value float64, err error) (float64, error) {
	samples.WithLabelValues(operation, resultLabel(err)).Inc()
	switch {
	case err == nil:
		return value, nil
	case errors.Is(err, ErrOutOfBounds), errors.Is(err, ErrNoData):
		s.logger.DebugContext(ctx, "no value", slog.String("operation", operation), slog.Any("reason", err))
		return math.NaN(), nil
	default:
		return 0, err
	}
}
