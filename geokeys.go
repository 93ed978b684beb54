package geosample

import (
	"errors"
	"fmt"
	"strings"
)

var errParse = errors.New("parse error")

type GeoKey uint16

const (
	GeoKeyGTModelType  GeoKey = 1024
	GeoKeyGTRasterType GeoKey = 1025
	GeoKeyGTCitation   GeoKey = 1026

	GeoKeyGeodeticCRS  GeoKey = 2048
	GeoKeyGeogCitation GeoKey = 2049

	GeoKeyProjectedCRS GeoKey = 3072
	GeoKeyPCSCitation  GeoKey = 3073
)

const (
	modelTypeProjected  = 1
	modelTypeGeographic = 2

	rasterTypePixelIsArea  = 1
	rasterTypePixelIsPoint = 2

	userDefined = 32767
)

const (
	geoKeyLocationShort  = 0
	geoKeyLocationDouble = 34736 // GeoDoubleParamsTag.
	geoKeyLocationASCII  = 34737 // GeoASCIIParamsTag.
)

// ParsedGeoKeys are the keys of a GeoKeyDirectoryTag, split by value type.
type ParsedGeoKeys struct {
	Params       map[GeoKey]int
	DoubleParams map[GeoKey]float64
	ASCIIParams  map[GeoKey]string
}

// ParseGeoKeys parses a GeoKeyDirectoryTag and its associated
// GeoDoubleParamsTag and GeoASCIIParamsTag.
func ParseGeoKeys(directory []uint16, doubleParams []float64, asciiParams []byte) (*ParsedGeoKeys, error) {
	if len(directory) < 4 {
		return nil, fmt.Errorf("geokey directory: %w", errParse)
	}

	if keyDirectoryVersion := directory[0]; keyDirectoryVersion != 1 {
		return nil, fmt.Errorf("geokey directory version %d: %w", keyDirectoryVersion, errParse)
	}
	if keyRevision := directory[1]; keyRevision != 1 {
		return nil, fmt.Errorf("geokey revision %d: %w", keyRevision, errParse)
	}
	if minorRevision := directory[2]; minorRevision > 1 {
		return nil, fmt.Errorf("geokey minor revision %d: %w", minorRevision, errParse)
	}
	numberOfKeys := int(directory[3])
	if len(directory) < 4+4*numberOfKeys {
		return nil, fmt.Errorf("geokey directory truncated: %w", errParse)
	}

	parsedGeoKeys := &ParsedGeoKeys{
		Params:       make(map[GeoKey]int),
		DoubleParams: make(map[GeoKey]float64),
		ASCIIParams:  make(map[GeoKey]string),
	}
	for i := range numberOfKeys {
		entry := directory[4+4*i : 4+4*(i+1)]
		key := GeoKey(entry[0])
		count := int(entry[2])
		valueOffset := int(entry[3])
		switch location := entry[1]; location {
		case geoKeyLocationShort:
			if count != 1 {
				return nil, fmt.Errorf("geokey %d: count %d: %w", key, count, errParse)
			}
			parsedGeoKeys.Params[key] = valueOffset
		case geoKeyLocationDouble:
			if count != 1 {
				return nil, fmt.Errorf("geokey %d: %w", key, errors.ErrUnsupported)
			}
			if valueOffset >= len(doubleParams) {
				return nil, fmt.Errorf("geokey %d: double index %d: %w", key, valueOffset, errParse)
			}
			parsedGeoKeys.DoubleParams[key] = doubleParams[valueOffset]
		case geoKeyLocationASCII:
			if valueOffset+count > len(asciiParams) {
				return nil, fmt.Errorf("geokey %d: ascii range %d+%d: %w", key, valueOffset, count, errParse)
			}
			parsedGeoKeys.ASCIIParams[key] = string(asciiParams[valueOffset : valueOffset+count])
		default:
			return nil, fmt.Errorf("geokey %d: location %d: %w", key, location, errors.ErrUnsupported)
		}
	}
	return parsedGeoKeys, nil
}

// CRS returns the CRS identified by k as an "EPSG:<code>" string. It returns
// the empty string if k does not identify a registered CRS.
func (k *ParsedGeoKeys) CRS() string {
	if k == nil {
		return ""
	}
	if modelType, ok := k.Params[GeoKeyGTModelType]; !ok || modelType == modelTypeProjected {
		if code, ok := k.Params[GeoKeyProjectedCRS]; ok && code != userDefined {
			return epsgCRS(code)
		}
	}
	if code, ok := k.Params[GeoKeyGeodeticCRS]; ok && code != userDefined {
		return epsgCRS(code)
	}
	return ""
}

// PixelIsPoint returns whether the raster type is PixelIsPoint.
func (k *ParsedGeoKeys) PixelIsPoint() bool {
	return k != nil && k.Params[GeoKeyGTRasterType] == rasterTypePixelIsPoint
}

// Citation returns the first non-empty citation, without its trailing '|'.
func (k *ParsedGeoKeys) Citation() string {
	if k == nil {
		return ""
	}
	for _, key := range []GeoKey{GeoKeyPCSCitation, GeoKeyGTCitation, GeoKeyGeogCitation} {
		if citation := strings.TrimRight(k.ASCIIParams[key], "|\x00"); citation != "" {
			return citation
		}
	}
	return ""
}
