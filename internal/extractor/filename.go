package extractor

import (
	"regexp"

	"github.com/road-engineering/dem-elevation/internal/geo"
)

// Filename grid recognition. When a raster header cannot be read, most
// Australian DEM tiles still encode their UTM grid cell in the filename.
// Each pattern decodes to the center of a 1 km tile which is then
// reprojected to WGS84.

const gridTileSize = 1000.0

// utmGridCell is the decoded result of one filename pattern.
type utmGridCell struct {
	Easting  float64
	Northing float64
	Zone     int
}

var (
	// WaggaWaggaLidar2009-DTM-GRID-001_4806126_55_0002_0002.tif
	dtmGridPattern = regexp.MustCompile(`DTM-GRID-\d+_(\d{7})_(\d{2})_\d+_\d+`)
	// ACT2015_4ppm_6586070_55_0002_0002_1m.tif
	sevenDigitPattern = regexp.MustCompile(`_(\d{7})_(\d{2})_\d+_\d+`)
	// Brisbane_2019_Prj_SW_465000_6970000_1k_DEM_1m.tif
	swOriginPattern = regexp.MustCompile(`SW_(\d+)_(\d+)_1[kK]?_DEM_1m\.tif`)
	// Clarence2019-DEM-1m_5275257_GDA2020_55.tif
	clarencePattern = regexp.MustCompile(`Clarence\d{4}-DEM-1m_(\d{7})_GDA2020_(\d{2})\.tif`)
)

// Central-band northings per Australian UTM zone, used when a pattern
// encodes only the easting.
var zoneNorthings = map[int]float64{
	54: 7_200_000, // central Australia
	55: 6_200_000, // ACT, VIC, TAS
	56: 6_800_000, // NSW, QLD coast
}

const defaultZoneNorthing = 6_500_000

func estimateNorthing(zone int) float64 {
	if n, ok := zoneNorthings[zone]; ok {
		return n
	}
	return defaultZoneNorthing
}

// parseUTMFromFilename decodes a filename into a UTM grid cell. The
// DTM-GRID form must be tried before the generic seven-digit form, which
// would otherwise match it with the wrong digit split.
func parseUTMFromFilename(filename string) (utmGridCell, bool) {
	if m := dtmGridPattern.FindStringSubmatch(filename); m != nil {
		coord, zone := m[1], atoi(m[2])
		// EEENNMM: EEE easting km, NN northing km offset, MM ten-meter step.
		eastingKm := atoi(coord[:3])
		easting := float64(eastingKm*1000) + 500
		var northing float64
		if zone == 55 {
			northingOffset := atoi(coord[3:5])
			tens := atoi(coord[5:7])
			northing = 6_100_000 + float64(northingOffset*1000) + float64(tens*10)
		} else {
			northing = estimateNorthing(zone)
		}
		return utmGridCell{Easting: easting, Northing: northing, Zone: zone}, true
	}

	if m := clarencePattern.FindStringSubmatch(filename); m != nil {
		ref, zone := m[1], atoi(m[2])
		eastingKm := atoi(ref[:3])
		easting := float64(eastingKm*1000) + 500
		northingPart := atoi(ref[3:])
		var northing float64
		switch zone {
		case 55:
			if northingPart < 3000 {
				northing = 6_700_000 + float64(northingPart*100) + 50
			} else {
				northing = 6_700_000 + float64(northingPart*10) + 500
			}
		case 56:
			northing = 6_900_000 + float64(northingPart*10) + 500
		default:
			northing = estimateNorthing(zone)
		}
		return utmGridCell{Easting: easting, Northing: northing, Zone: zone}, true
	}

	if m := sevenDigitPattern.FindStringSubmatch(filename); m != nil {
		eastingStr, zone := m[1], atoi(m[2])
		// The seven-digit field is read as an easting in meters with its
		// last digit zeroed: the first six digits times ten.
		eastingBase := atoi(eastingStr[:6]) * 10
		return utmGridCell{
			Easting:  float64(eastingBase) + 500,
			Northing: estimateNorthing(zone),
			Zone:     zone,
		}, true
	}

	if m := swOriginPattern.FindStringSubmatch(filename); m != nil {
		easting, northing := atoi(m[1]), atoi(m[2])
		// SW corner of a 1 km tile; zone picked by easting range
		// (Queensland coast sits in z56).
		zone := 55
		if easting >= 400_000 && easting <= 599_999 {
			zone = 56
		}
		return utmGridCell{
			Easting:  float64(easting) + 500,
			Northing: float64(northing) + 500,
			Zone:     zone,
		}, true
	}

	return utmGridCell{}, false
}

// boundsFromFilename converts a recognized filename to a WGS84 box for
// its 1 km tile.
func boundsFromFilename(filename string) (geo.Bounds, bool) {
	cell, ok := parseUTMFromFilename(filename)
	if !ok {
		return geo.Bounds{}, false
	}
	return geo.TileBounds(cell.Easting, cell.Northing, cell.Zone, gridTileSize), true
}

func atoi(s string) int {
	n := 0
	for _, c := range s {
		n = n*10 + int(c-'0')
	}
	return n
}
