package geosample

import (
	"fmt"
	"math"
)

// A Hemisphere is a UTM hemisphere.
type Hemisphere byte

const (
	North Hemisphere = 'N'
	South Hemisphere = 'S'
)

func (h Hemisphere) String() string {
	return string(rune(h))
}

// An UnsupportedHemisphereError is returned when a hemisphere is neither
// North nor South.
type UnsupportedHemisphereError struct {
	Hemisphere Hemisphere
}

func (e *UnsupportedHemisphereError) Error() string {
	return fmt.Sprintf("%q: unsupported hemisphere", byte(e.Hemisphere))
}

// UTMZone returns the UTM zone number of longitude. Longitudes at or beyond
// 180 wrap around to zone 1.
func UTMZone(longitude float64) int {
	zone := int(math.Floor((longitude+180)/6)) + 1
	if zone > 60 {
		zone = 1
	}
	return zone
}

// HemisphereOf returns the hemisphere of latitude. The equator is North.
func HemisphereOf(latitude float64) Hemisphere {
	if latitude >= 0 {
		return North
	}
	return South
}

// EPSGCode returns the EPSG code of the WGS84 UTM zone in hemisphere.
func EPSGCode(zone int, hemisphere Hemisphere) (int, error) {
	switch hemisphere {
	case North:
		return 32600 + zone, nil
	case South:
		return 32700 + zone, nil
	default:
		return 0, &UnsupportedHemisphereError{Hemisphere: hemisphere}
	}
}

// UTMCRS returns the UTM CRS containing p, e.g. "EPSG:32631".
func UTMCRS(p LatLon) (string, error) {
	epsgCode, err := EPSGCode(UTMZone(p.Lon), HemisphereOf(p.Lat))
	if err != nil {
		return "", err
	}
	return epsgCRS(epsgCode), nil
}

func epsgCRS(code int) string {
	return fmt.Sprintf("EPSG:%d", code)
}
