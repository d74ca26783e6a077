package geo

import (
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/project"
)

// Projection converts between a source CRS and WGS84 longitude/latitude.
type Projection interface {
	// ToWGS84 converts source CRS coordinates to WGS84 longitude/latitude (degrees).
	ToWGS84(x, y float64) (lon, lat float64)

	// FromWGS84 converts WGS84 longitude/latitude (degrees) to source CRS coordinates.
	FromWGS84(lon, lat float64) (x, y float64)

	// EPSG returns the EPSG code for this projection.
	EPSG() int
}

// ForEPSG returns a Projection for the given EPSG code.
// WGS84, Web Mercator and the WGS84 UTM zones (326xx north, 327xx south) are supported.
func ForEPSG(epsg int) (Projection, error) {
	switch {
	case epsg == 4326:
		return wgs84Identity{}, nil
	case epsg == 3857 || epsg == 900913:
		return webMercator{}, nil
	case epsg > 32600 && epsg <= 32660:
		return NewUTM(epsg-32600, false), nil
	case epsg > 32700 && epsg <= 32760:
		return NewUTM(epsg-32700, true), nil
	default:
		return nil, fmt.Errorf("%w: EPSG:%d", ErrUnsupportedCRS, epsg)
	}
}

// Transformer returns an orb.Projection mapping points from one CRS to another.
func Transformer(from, to CRS) (orb.Projection, error) {
	if from == to {
		return func(p orb.Point) orb.Point { return p }, nil
	}

	src, err := ForEPSG(from.EPSG)
	if err != nil {
		return nil, err
	}
	dst, err := ForEPSG(to.EPSG)
	if err != nil {
		return nil, err
	}

	return func(p orb.Point) orb.Point {
		lon, lat := src.ToWGS84(p[0], p[1])
		x, y := dst.FromWGS84(lon, lat)
		return orb.Point{x, y}
	}, nil
}

type wgs84Identity struct{}

func (wgs84Identity) ToWGS84(x, y float64) (lon, lat float64)   { return x, y }
func (wgs84Identity) FromWGS84(lon, lat float64) (x, y float64) { return lon, lat }
func (wgs84Identity) EPSG() int                                 { return 4326 }

// webMercator wraps the spherical pseudo-Mercator formulas from orb/project.
type webMercator struct{}

func (webMercator) ToWGS84(x, y float64) (lon, lat float64) {
	p := project.Mercator.ToWGS84(orb.Point{x, y})
	return p[0], p[1]
}

func (webMercator) FromWGS84(lon, lat float64) (x, y float64) {
	p := project.WGS84.ToMercator(orb.Point{lon, lat})
	return p[0], p[1]
}

func (webMercator) EPSG() int { return 3857 }
