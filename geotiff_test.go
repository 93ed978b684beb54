package geosample

import (
	"encoding/binary"
	"errors"
	"io/fs"
	"math"
	"testing"
	"testing/fstest"

	"github.com/alecthomas/assert/v2"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/twpayne/go-geosample/internal/geotifftest"
)

func TestOpenGeoTIFF(t *testing.T) {
	uniform := func(f func(*geotifftest.GeoTIFF)) *geotifftest.GeoTIFF {
		g := geotifftest.Uniform(100, 100, 0, 0, 10, 10, 5)
		f(g)
		return g
	}
	for _, tc := range []struct {
		name    string
		geoTIFF *geotifftest.GeoTIFF
	}{
		{
			name:    "short_tags",
			geoTIFF: uniform(func(g *geotifftest.GeoTIFF) {}),
		},
		{
			name: "long_tags",
			geoTIFF: uniform(func(g *geotifftest.GeoTIFF) {
				g.LongTags = true
			}),
		},
		{
			name: "long_tags_multi_row_strips",
			geoTIFF: uniform(func(g *geotifftest.GeoTIFF) {
				g.LongTags = true
				g.RowsPerStrip = 8
				g.Compression = 8
			}),
		},
		{
			name: "long_tags_tiles",
			geoTIFF: uniform(func(g *geotifftest.GeoTIFF) {
				g.LongTags = true
				g.TileWidth = 16
				g.TileLength = 16
			}),
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			fsys := geotifftest.FS(t, map[string]*geotifftest.GeoTIFF{
				"uniform.tif": tc.geoTIFF,
			})

			g, err := OpenGeoTIFF(fsys, "uniform.tif")
			assert.NoError(t, err)
			defer func() {
				assert.NoError(t, g.Close())
			}()

			assert.Equal(t, 100, g.Width())
			assert.Equal(t, 100, g.Height())
			assert.Equal(t, "EPSG:4326", g.CRS())
			assert.Equal(t, NewAffineFromOrigin(0, 10, 0.1, 0.1), g.Transform())
			assert.Equal(t, Bounds{Left: 0, Bottom: 0, Right: 10, Top: 10}, g.Bounds())

			row, col := g.Index(5.05, 4.95)
			assert.Equal(t, [2]int{50, 50}, [2]int{row, col})
			row, col = g.Index(math.Inf(1), 5)
			assert.Equal(t, [2]int{-1, -1}, [2]int{row, col})

			window, err := g.Read(t.Context(), 1, Window{Row: 10, Col: 20, Height: 3, Width: 4})
			assert.NoError(t, err)
			assert.Equal(t, NewGridFilled(4, 3, 5), window)
		})
	}
}

func TestOpenGeoTIFFWide(t *testing.T) {
	geoTIFF := geotifftest.Gradient(70000, 2, 0, 2)
	geoTIFF.LongTags = true
	fsys := geotifftest.FS(t, map[string]*geotifftest.GeoTIFF{
		"wide.tif": geoTIFF,
	})

	g, err := OpenGeoTIFF(fsys, "wide.tif")
	assert.NoError(t, err)
	defer func() {
		assert.NoError(t, g.Close())
	}()

	assert.Equal(t, 70000, g.Width())
	window, err := g.Read(t.Context(), 1, Window{Row: 0, Col: 69998, Height: 2, Width: 5})
	assert.NoError(t, err)
	assert.Equal(t, &Grid{
		Width:  2,
		Height: 2,
		Data: []float64{
			69998, 69999,
			70098, 70099,
		},
	}, window)
}

func TestGeoTIFFRead(t *testing.T) {
	modified := func(g *geotifftest.GeoTIFF, f func(*geotifftest.GeoTIFF)) *geotifftest.GeoTIFF {
		f(g)
		return g
	}
	for _, tc := range []struct {
		name    string
		geoTIFF *geotifftest.GeoTIFF
	}{
		{
			name:    "strips",
			geoTIFF: geotifftest.Gradient(13, 11, 0, 11),
		},
		{
			name: "multi_row_strips",
			geoTIFF: modified(geotifftest.Gradient(13, 11, 0, 11), func(g *geotifftest.GeoTIFF) {
				g.RowsPerStrip = 4
			}),
		},
		{
			name: "tiles",
			geoTIFF: modified(geotifftest.Gradient(13, 11, 0, 11), func(g *geotifftest.GeoTIFF) {
				g.TileWidth = 8
				g.TileLength = 8
			}),
		},
		{
			name: "big_endian",
			geoTIFF: modified(geotifftest.Gradient(13, 11, 0, 11), func(g *geotifftest.GeoTIFF) {
				g.ByteOrder = binary.BigEndian
			}),
		},
		{
			name: "deflate",
			geoTIFF: modified(geotifftest.Gradient(13, 11, 0, 11), func(g *geotifftest.GeoTIFF) {
				g.Compression = 8
				g.RowsPerStrip = 3
			}),
		},
		{
			name: "deflate_tiles",
			geoTIFF: modified(geotifftest.Gradient(13, 11, 0, 11), func(g *geotifftest.GeoTIFF) {
				g.Compression = 8
				g.TileWidth = 16
				g.TileLength = 16
			}),
		},
		{
			name: "long_tags_tiles",
			geoTIFF: modified(geotifftest.Gradient(13, 11, 0, 11), func(g *geotifftest.GeoTIFF) {
				g.LongTags = true
				g.TileWidth = 8
				g.TileLength = 8
			}),
		},
		{
			name: "long_tags_strips",
			geoTIFF: modified(geotifftest.Gradient(13, 11, 0, 11), func(g *geotifftest.GeoTIFF) {
				g.LongTags = true
				g.RowsPerStrip = 4
			}),
		},
		{
			name: "float64",
			geoTIFF: modified(geotifftest.Gradient(13, 11, 0, 11), func(g *geotifftest.GeoTIFF) {
				g.BitsPerSample = 64
			}),
		},
		{
			name: "int16_predictor",
			geoTIFF: modified(geotifftest.Gradient(13, 11, 0, 11), func(g *geotifftest.GeoTIFF) {
				g.SampleFormat = 2
				g.BitsPerSample = 16
				g.Predictor = 2
				g.Compression = 8
			}),
		},
		{
			name: "uint32_predictor",
			geoTIFF: modified(geotifftest.Gradient(13, 11, 0, 11), func(g *geotifftest.GeoTIFF) {
				g.SampleFormat = 1
				g.BitsPerSample = 32
				g.Predictor = 2
			}),
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			fsys := geotifftest.FS(t, map[string]*geotifftest.GeoTIFF{
				"test.tif": tc.geoTIFF,
			})
			g, err := OpenGeoTIFF(fsys, "test.tif", WithBlockCacheSize(2))
			assert.NoError(t, err)
			defer func() {
				assert.NoError(t, g.Close())
			}()

			all, err := g.Read(t.Context(), 1, Window{Width: 13, Height: 11})
			assert.NoError(t, err)
			assert.Equal(t, &Grid{Width: 13, Height: 11, Data: tc.geoTIFF.Samples}, all)

			window, err := g.Read(t.Context(), 1, Window{Row: 7, Col: 9, Height: 3, Width: 3})
			assert.NoError(t, err)
			assert.Equal(t, &Grid{
				Width:  3,
				Height: 3,
				Data: []float64{
					709, 710, 711,
					809, 810, 811,
					909, 910, 911,
				},
			}, window)

			clipped, err := g.Read(t.Context(), 1, Window{Row: 9, Col: 11, Height: 5, Width: 5})
			assert.NoError(t, err)
			assert.Equal(t, &Grid{
				Width:  2,
				Height: 2,
				Data: []float64{
					911, 912,
					1011, 1012,
				},
			}, clipped)

			empty, err := g.Read(t.Context(), 1, Window{Row: 11, Col: 0, Height: 1, Width: 1})
			assert.NoError(t, err)
			assert.Equal(t, NewGrid(0, 0), empty)
		})
	}
}

func TestGeoTIFFNoData(t *testing.T) {
	geoTIFF := geotifftest.Gradient(3, 2, 0, 2)
	geoTIFF.Samples[1] = -9999
	fsys := geotifftest.FS(t, map[string]*geotifftest.GeoTIFF{
		"nodata.tif": geoTIFF,
	})

	g, err := OpenGeoTIFF(fsys, "nodata.tif")
	assert.NoError(t, err)
	defer func() {
		assert.NoError(t, g.Close())
	}()
	window, err := g.Read(t.Context(), 1, Window{Width: 3, Height: 1})
	assert.NoError(t, err)
	assert.Equal(t, []float64{0, -9999, 2}, window.Data)

	geoTIFF.NoData = "-9999"
	fsys = geotifftest.FS(t, map[string]*geotifftest.GeoTIFF{
		"nodata.tif": geoTIFF,
	})
	g2, err := OpenGeoTIFF(fsys, "nodata.tif")
	assert.NoError(t, err)
	defer func() {
		assert.NoError(t, g2.Close())
	}()
	window, err = g2.Read(t.Context(), 1, Window{Width: 3, Height: 1})
	assert.NoError(t, err)
	assert.Equal(t, 0.0, window.Data[0])
	assert.True(t, math.IsNaN(window.Data[1]))
	assert.Equal(t, 2.0, window.Data[2])

	g3, err := OpenGeoTIFF(fsys, "nodata.tif", WithNoData(2))
	assert.NoError(t, err)
	defer func() {
		assert.NoError(t, g3.Close())
	}()
	window, err = g3.Read(t.Context(), 1, Window{Width: 3, Height: 1})
	assert.NoError(t, err)
	assert.Equal(t, -9999.0, window.Data[1])
	assert.True(t, math.IsNaN(window.Data[2]))
}

func TestGeoTIFFPixelIsPoint(t *testing.T) {
	geoTIFF := geotifftest.Gradient(4, 4, 10, 50)
	geoTIFF.PixelIsPoint = true
	g, err := OpenGeoTIFF(geotifftest.FS(t, map[string]*geotifftest.GeoTIFF{"point.tif": geoTIFF}), "point.tif")
	assert.NoError(t, err)
	defer func() {
		assert.NoError(t, g.Close())
	}()
	assert.Equal(t, Bounds{Left: 9.5, Bottom: 46.5, Right: 13.5, Top: 50.5}, g.Bounds())
}

func TestGeoTIFFNoCRS(t *testing.T) {
	geoTIFF := geotifftest.Gradient(2, 2, 0, 2)
	geoTIFF.NoCRS = true
	g, err := OpenGeoTIFF(geotifftest.FS(t, map[string]*geotifftest.GeoTIFF{"nocrs.tif": geoTIFF}), "nocrs.tif")
	assert.NoError(t, err)
	defer func() {
		assert.NoError(t, g.Close())
	}()
	assert.Equal(t, "", g.CRS())
	assert.Zero(t, g.GeoKeys())
}

func TestGeoTIFFBlockCache(t *testing.T) {
	fsys := geotifftest.FS(t, map[string]*geotifftest.GeoTIFF{
		"gradient.tif": geotifftest.Gradient(4, 4, 0, 4),
	})
	g, err := OpenGeoTIFF(fsys, "gradient.tif")
	assert.NoError(t, err)
	defer func() {
		assert.NoError(t, g.Close())
	}()

	blocksDecodedBefore := testutil.ToFloat64(blocksDecoded)
	blockCacheHitsBefore := testutil.ToFloat64(blockCacheHits)
	for range 3 {
		_, err := g.Read(t.Context(), 1, Window{Width: 4, Height: 4})
		assert.NoError(t, err)
	}
	assert.Equal(t, 4.0, testutil.ToFloat64(blocksDecoded)-blocksDecodedBefore)
	assert.Equal(t, 8.0, testutil.ToFloat64(blockCacheHits)-blockCacheHitsBefore)
}

func TestGeoTIFFErrors(t *testing.T) {
	fsys := fstest.MapFS{
		"empty.tif":    &fstest.MapFile{},
		"not_tiff.tif": &fstest.MapFile{Data: []byte("PK\x03\x04 this is not a TIFF file")},
	}

	_, err := OpenGeoTIFF(fsys, "missing.tif")
	assert.IsError(t, err, fs.ErrNotExist)

	_, err = OpenGeoTIFF(fsys, "empty.tif")
	assert.Error(t, err)

	_, err = OpenGeoTIFF(fsys, "not_tiff.tif")
	assert.IsError(t, err, errParse)

	g, err := OpenGeoTIFF(geotifftest.FS(t, map[string]*geotifftest.GeoTIFF{
		"gradient.tif": geotifftest.Gradient(2, 2, 0, 2),
	}), "gradient.tif")
	assert.NoError(t, err)
	defer func() {
		assert.NoError(t, g.Close())
	}()
	_, err = g.Read(t.Context(), 2, Window{Width: 1, Height: 1})
	assert.True(t, errors.Is(err, errors.ErrUnsupported))
}
