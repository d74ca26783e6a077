package cog

import (
	"fmt"

	"github.com/robert-malhotra/imagery-check/internal/raster"
)

// GeoTIFF GeoKey IDs.
const (
	gkGeographicTypeGeoKey  = 2048
	gkProjectedCSTypeGeoKey = 3072
)

// GeoInfo holds parsed GeoTIFF metadata.
type GeoInfo struct {
	EPSG      int           // EPSG code (e.g. 32631), 0 when not declared
	Transform raster.Affine // pixel to CRS transform of the upper-left corners
}

// parseGeoInfo extracts geographic metadata from an IFD. Files without
// georeferencing tags get the identity transform.
func parseGeoInfo(ifd *IFD) (GeoInfo, error) {
	info := GeoInfo{EPSG: parseEPSG(ifd.GeoKeys), Transform: raster.Identity()}

	switch {
	case len(ifd.ModelTransform) >= 16:
		m := ifd.ModelTransform
		info.Transform = raster.Affine{A: m[0], B: m[1], C: m[3], D: m[4], E: m[5], F: m[7]}

	case len(ifd.ModelPixelScale) >= 2 && len(ifd.ModelTiepoint) >= 6:
		sx, sy := ifd.ModelPixelScale[0], ifd.ModelPixelScale[1]
		if sx == 0 || sy == 0 {
			return GeoInfo{}, fmt.Errorf("%w: zero pixel scale", ErrUnsupportedTIFF)
		}
		// The tiepoint maps pixel (I,J) to world coordinate (X,Y).
		i, j := ifd.ModelTiepoint[0], ifd.ModelTiepoint[1]
		x, y := ifd.ModelTiepoint[3], ifd.ModelTiepoint[4]
		info.Transform = raster.Affine{A: sx, C: x - i*sx, E: -sy, F: y + j*sy}
	}

	return info, nil
}

// parseEPSG extracts the EPSG code from GeoKey directory entries.
func parseEPSG(geoKeys []uint16) int {
	if len(geoKeys) < 4 {
		return 0
	}

	// GeoKey directory header: [KeyDirectoryVersion, KeyRevision, MinorRevision, NumberOfKeys]
	numKeys := int(geoKeys[3])

	var geographic int
	for i := 0; i < numKeys; i++ {
		base := 4 + i*4
		if base+3 >= len(geoKeys) {
			break
		}
		keyID := geoKeys[base]
		location := geoKeys[base+1]
		valueOffset := geoKeys[base+3]

		// Only inline SHORT values carry codes.
		if location != 0 || valueOffset == 0 || valueOffset == 32767 {
			continue
		}

		switch keyID {
		case gkProjectedCSTypeGeoKey:
			return int(valueOffset)
		case gkGeographicTypeGeoKey:
			geographic = int(valueOffset)
		}
	}

	return geographic
}
