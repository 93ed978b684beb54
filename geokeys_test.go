package geosample

import (
	"errors"
	"testing"

	"github.com/alecthomas/assert/v2"
)

func TestParseGeoKeys(t *testing.T) {
	directory := []uint16{
		1, 1, 0, 22,
		1024, 0, 1, 1,
		1025, 0, 1, 1,
		1026, 34737, 28, 0,
		2048, 0, 1, 4258,
		2049, 34737, 86, 28,
		2050, 0, 1, 6258,
		2051, 0, 1, 8901,
		2054, 0, 1, 9102,
		2055, 34736, 1, 4,
		2056, 0, 1, 7019,
		2057, 34736, 1, 5,
		2059, 34736, 1, 6,
		2061, 34736, 1, 7,
		3072, 0, 1, 32767,
		3073, 34737, 400, 114,
		3074, 0, 1, 32767,
		3075, 0, 1, 10,
		3076, 0, 1, 9001,
		3082, 34736, 1, 2,
		3083, 34736, 1, 3,
		3088, 34736, 1, 1,
		3089, 34736, 1, 0,
	}
	doubleParams := []float64{
		52,
		10,
		4321000,
		3210000,
		0.0174532925199433,
		6378137, 298.257222101,
		0,
	}
	asciiParams := []byte("" +
		"PCS Name = ETRS89_ETRS_LAEA|" +
		"GCS Name = GCS_ETRS_1989|Datum = D_ETRS_1989|Ellipsoid = GRS_1980|Primem = Greenwich||" +
		"ESRI PE String = PROJCS[\"ETRS89_ETRS_LAEA\",GEOGCS[\"GCS_ETRS_1989\",DATUM[\"D_ETRS_1989\",SPHEROID[\"GRS_1980\",6378137.0,298.257222101]],PRIMEM[\"Greenwich\",0.0],UNIT[\"Degree\",0.0174532925199433]],PROJECTION[\"Lambert_Azimuthal_Equal_Area\"],PARAMETER[\"false_easting\",4321000.0],PARAMETER[\"false_northing\",3210000.0],PARAMETER[\"central_meridian\",10.0],PARAMETER[\"latitude_of_origin\",52.0],UNIT[\"Meter\",1.0]]|",
	)

	actual, err := ParseGeoKeys(directory, doubleParams, asciiParams)
	assert.NoError(t, err)

	assert.Equal(t, map[GeoKey]int{
		GeoKeyGTModelType:   1,
		GeoKeyGTRasterType:  1,
		GeoKeyGeodeticCRS:   4258,
		2050:                6258,
		2051:                8901,
		2054:                9102,
		2056:                7019,
		3074:                32767,
		3075:                10,
		3076:                9001,
		GeoKeyProjectedCRS:  32767,
	}, actual.Params)
	assert.Equal(t, map[GeoKey]float64{
		2055: 0.0174532925199433,
		2057: 6378137,
		2059: 298.257222101,
		2061: 0,
		3082: 4321000,
		3083: 3210000,
		3088: 10,
		3089: 52,
	}, actual.DoubleParams)
	assert.Equal(t, "PCS Name = ETRS89_ETRS_LAEA|", actual.ASCIIParams[GeoKeyGTCitation])

	// The projected CRS is user defined, so fall back to the geodetic CRS.
	assert.Equal(t, "EPSG:4258", actual.CRS())
	assert.False(t, actual.PixelIsPoint())
	assert.Equal(t, "ESRI PE String = PROJCS[\"ETRS89_ETRS_LAEA\",GEOGCS[\"GCS_ETRS_1989\",DATUM[\"D_ETRS_1989\",SPHEROID[\"GRS_1980\",6378137.0,298.257222101]],PRIMEM[\"Greenwich\",0.0],UNIT[\"Degree\",0.0174532925199433]],PROJECTION[\"Lambert_Azimuthal_Equal_Area\"],PARAMETER[\"false_easting\",4321000.0],PARAMETER[\"false_northing\",3210000.0],PARAMETER[\"central_meridian\",10.0],PARAMETER[\"latitude_of_origin\",52.0],UNIT[\"Meter\",1.0]]", actual.Citation())
}

func TestParsedGeoKeysCRS(t *testing.T) {
	for _, tc := range []struct {
		name         string
		directory    []uint16
		expectedCRS  string
		pixelIsPoint bool
	}{
		{
			name: "wgs84",
			directory: []uint16{
				1, 1, 0, 3,
				1024, 0, 1, 2,
				1025, 0, 1, 1,
				2048, 0, 1, 4326,
			},
			expectedCRS: "EPSG:4326",
		},
		{
			name: "utm_31n_pixel_is_point",
			directory: []uint16{
				1, 1, 1, 3,
				1024, 0, 1, 1,
				1025, 0, 1, 2,
				3072, 0, 1, 32631,
			},
			expectedCRS:  "EPSG:32631",
			pixelIsPoint: true,
		},
		{
			name: "geographic_ignores_projected",
			directory: []uint16{
				1, 1, 0, 3,
				1024, 0, 1, 2,
				2048, 0, 1, 4326,
				3072, 0, 1, 32631,
			},
			expectedCRS: "EPSG:4326",
		},
		{
			name: "user_defined",
			directory: []uint16{
				1, 1, 0, 2,
				1024, 0, 1, 2,
				2048, 0, 1, 32767,
			},
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			actual, err := ParseGeoKeys(tc.directory, nil, nil)
			assert.NoError(t, err)
			assert.Equal(t, tc.expectedCRS, actual.CRS())
			assert.Equal(t, tc.pixelIsPoint, actual.PixelIsPoint())
		})
	}
}

func TestParseGeoKeysErrors(t *testing.T) {
	for _, tc := range []struct {
		name        string
		directory   []uint16
		expectedErr error
	}{
		{
			name:        "short",
			directory:   []uint16{1, 1, 0},
			expectedErr: errParse,
		},
		{
			name:        "version",
			directory:   []uint16{2, 1, 0, 0},
			expectedErr: errParse,
		},
		{
			name:        "truncated",
			directory:   []uint16{1, 1, 0, 2, 1024, 0, 1, 1},
			expectedErr: errParse,
		},
		{
			name:        "double_index",
			directory:   []uint16{1, 1, 0, 1, 2057, 34736, 1, 3},
			expectedErr: errParse,
		},
		{
			name:        "ascii_range",
			directory:   []uint16{1, 1, 0, 1, 1026, 34737, 10, 0},
			expectedErr: errParse,
		},
		{
			name:        "location",
			directory:   []uint16{1, 1, 0, 1, 1026, 1234, 1, 0},
			expectedErr: errors.ErrUnsupported,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseGeoKeys(tc.directory, []float64{1}, []byte("abc"))
			assert.IsError(t, err, tc.expectedErr)
		})
	}
}

func TestNilParsedGeoKeys(t *testing.T) {
	var geoKeys *ParsedGeoKeys
	assert.Equal(t, "", geoKeys.CRS())
	assert.False(t, geoKeys.PixelIsPoint())
	assert.Equal(t, "", geoKeys.Citation())
}
