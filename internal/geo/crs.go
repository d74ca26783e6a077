// Package geo provides CRS-tagged geometry values and the projections needed
// to move areas of interest between geographic and projected grids.
package geo

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrUnsupportedCRS is returned when no projection is available for an EPSG code.
var ErrUnsupportedCRS = errors.New("unsupported CRS")

// CRS identifies a coordinate reference system by its EPSG code.
type CRS struct {
	EPSG int
}

// Well-known coordinate reference systems.
var (
	WGS84       = CRS{EPSG: 4326}
	WebMercator = CRS{EPSG: 3857}
)

// EPSG returns a CRS for the given EPSG code.
func EPSG(code int) CRS {
	return CRS{EPSG: code}
}

// ParseCRS parses identifiers such as "EPSG:32631", "epsg:4326" or "4326".
func ParseCRS(s string) (CRS, error) {
	s = strings.TrimSpace(s)
	if i := strings.LastIndex(s, ":"); i >= 0 {
		if !strings.EqualFold(s[:i], "EPSG") {
			return CRS{}, fmt.Errorf("%w: %q", ErrUnsupportedCRS, s)
		}
		s = s[i+1:]
	}

	code, err := strconv.Atoi(s)
	if err != nil || code <= 0 {
		return CRS{}, fmt.Errorf("%w: %q", ErrUnsupportedCRS, s)
	}

	return CRS{EPSG: code}, nil
}

// String returns the "EPSG:<code>" form used by WMS and OGC services.
func (c CRS) String() string {
	return "EPSG:" + strconv.Itoa(c.EPSG)
}

// IsZero reports whether the CRS is unset.
func (c CRS) IsZero() bool {
	return c.EPSG == 0
}

// IsGeographic reports whether coordinates are longitude/latitude degrees.
func (c CRS) IsGeographic() bool {
	return c.EPSG == 4326
}

// UTMZoneFor returns the WGS84 UTM CRS covering the given longitude/latitude.
func UTMZoneFor(lon, lat float64) CRS {
	zone := int((lon+180)/6) + 1
	if zone > 60 {
		zone = 60
	}
	if lat < 0 {
		return CRS{EPSG: 32700 + zone}
	}
	return CRS{EPSG: 32600 + zone}
}
