package geo

import "math"

// WGS84 ellipsoid and UTM grid constants.
const (
	wgs84A     = 6378137.0
	wgs84F     = 1 / 298.257223563
	utmK0      = 0.9996
	utmEasting = 500000.0
	utmSouthFN = 10000000.0
)

// UTM implements the transverse Mercator projection for one WGS84 UTM zone.
// Uses the USGS series expansions (Snyder, Map Projections: A Working Manual,
// pp. 61-64), accurate to well under a metre within the zone.
type UTM struct {
	Zone  int
	South bool

	lon0 float64
	e2   float64
	ep2  float64
}

// NewUTM returns the projection for the given zone (1-60) and hemisphere.
func NewUTM(zone int, south bool) *UTM {
	e2 := wgs84F * (2 - wgs84F)
	return &UTM{
		Zone:  zone,
		South: south,
		lon0:  float64((zone-1)*6-180+3) * math.Pi / 180,
		e2:    e2,
		ep2:   e2 / (1 - e2),
	}
}

// EPSG returns 326xx for northern zones and 327xx for southern ones.
func (u *UTM) EPSG() int {
	if u.South {
		return 32700 + u.Zone
	}
	return 32600 + u.Zone
}

// meridianArc returns the distance along the central meridian from the
// equator to latitude phi (radians).
func (u *UTM) meridianArc(phi float64) float64 {
	e2 := u.e2
	e4 := e2 * e2
	e6 := e4 * e2
	return wgs84A * ((1-e2/4-3*e4/64-5*e6/256)*phi -
		(3*e2/8+3*e4/32+45*e6/1024)*math.Sin(2*phi) +
		(15*e4/256+45*e6/1024)*math.Sin(4*phi) -
		(35*e6/3072)*math.Sin(6*phi))
}

// FromWGS84 converts longitude/latitude (degrees) to easting/northing (metres).
func (u *UTM) FromWGS84(lon, lat float64) (x, y float64) {
	phi := lat * math.Pi / 180
	lambda := lon * math.Pi / 180

	sinPhi := math.Sin(phi)
	cosPhi := math.Cos(phi)
	tanPhi := math.Tan(phi)

	n := wgs84A / math.Sqrt(1-u.e2*sinPhi*sinPhi)
	t := tanPhi * tanPhi
	c := u.ep2 * cosPhi * cosPhi
	a := cosPhi * (lambda - u.lon0)
	m := u.meridianArc(phi)

	a2 := a * a
	a3 := a2 * a
	a4 := a3 * a
	a5 := a4 * a
	a6 := a5 * a

	x = utmK0*n*(a+(1-t+c)*a3/6+(5-18*t+t*t+72*c-58*u.ep2)*a5/120) + utmEasting
	y = utmK0 * (m + n*tanPhi*(a2/2+(5-t+9*c+4*c*c)*a4/24+(61-58*t+t*t+600*c-330*u.ep2)*a6/720))
	if u.South {
		y += utmSouthFN
	}
	return x, y
}

// ToWGS84 converts easting/northing (metres) to longitude/latitude (degrees).
func (u *UTM) ToWGS84(x, y float64) (lon, lat float64) {
	if u.South {
		y -= utmSouthFN
	}
	x -= utmEasting

	e2 := u.e2
	e4 := e2 * e2
	e6 := e4 * e2

	m := y / utmK0
	mu := m / (wgs84A * (1 - e2/4 - 3*e4/64 - 5*e6/256))

	sq := math.Sqrt(1 - e2)
	e1 := (1 - sq) / (1 + sq)

	phi1 := mu +
		(3*e1/2-27*e1*e1*e1/32)*math.Sin(2*mu) +
		(21*e1*e1/16-55*e1*e1*e1*e1/32)*math.Sin(4*mu) +
		(151*e1*e1*e1/96)*math.Sin(6*mu) +
		(1097*e1*e1*e1*e1/512)*math.Sin(8*mu)

	sinPhi1 := math.Sin(phi1)
	cosPhi1 := math.Cos(phi1)
	tanPhi1 := math.Tan(phi1)

	c1 := u.ep2 * cosPhi1 * cosPhi1
	t1 := tanPhi1 * tanPhi1
	w := 1 - e2*sinPhi1*sinPhi1
	n1 := wgs84A / math.Sqrt(w)
	r1 := wgs84A * (1 - e2) / (w * math.Sqrt(w))
	d := x / (n1 * utmK0)

	d2 := d * d
	d3 := d2 * d
	d4 := d3 * d
	d5 := d4 * d
	d6 := d5 * d

	phi := phi1 - (n1*tanPhi1/r1)*(d2/2-
		(5+3*t1+10*c1-4*c1*c1-9*u.ep2)*d4/24+
		(61+90*t1+298*c1+45*t1*t1-252*u.ep2-3*c1*c1)*d6/720)

	lambda := u.lon0 + (d-
		(1+2*t1+c1)*d3/6+
		(5-2*c1+28*t1-3*c1*c1+8*u.ep2+24*t1*t1)*d5/120)/cosPhi1

	return lambda * 180 / math.Pi, phi * 180 / math.Pi
}
