package geo

import "math"

// WGS84 ellipsoid.
const (
	semiMajor  = 6378137.0
	flattening = 1 / 298.257223563
	utmScale   = 0.9996
)

var eccSq = 2*flattening - flattening*flattening

// UTMToLatLon converts a UTM easting/northing in the given zone to
// geographic degrees. southern selects the southern-hemisphere false
// northing. This is the inverse transverse Mercator series used for
// filename-derived tiles; raster bounds go through GDAL instead.
func UTMToLatLon(easting, northing float64, zone int, southern bool) (lat, lon float64) {
	lon0 := deg2rad(float64((zone-1)*6 - 180 + 3))

	if southern {
		northing -= 10_000_000.0
	}
	x := easting - 500_000.0
	y := northing

	e1 := (1 - math.Sqrt(1-eccSq)) / (1 + math.Sqrt(1-eccSq))

	m := y / utmScale
	mu := m / (semiMajor * (1 - eccSq/4 - 3*eccSq*eccSq/64 - 5*eccSq*eccSq*eccSq/256))

	phi1 := mu +
		(3*e1/2-27*math.Pow(e1, 3)/32)*math.Sin(2*mu) +
		(21*e1*e1/16-55*math.Pow(e1, 4)/32)*math.Sin(4*mu) +
		(151*math.Pow(e1, 3)/96)*math.Sin(6*mu)

	sinPhi1, cosPhi1 := math.Sin(phi1), math.Cos(phi1)
	n1 := semiMajor / math.Sqrt(1-eccSq*sinPhi1*sinPhi1)
	t1 := math.Tan(phi1) * math.Tan(phi1)
	c1 := eccSq * cosPhi1 * cosPhi1 / (1 - eccSq)
	r1 := semiMajor * (1 - eccSq) / math.Pow(1-eccSq*sinPhi1*sinPhi1, 1.5)
	d := x / (n1 * utmScale)

	latRad := phi1 - (n1*math.Tan(phi1)/r1)*
		(d*d/2-
			(5+3*t1+10*c1-4*c1*c1-9*eccSq)*math.Pow(d, 4)/24+
			(61+90*t1+298*c1+45*t1*t1-252*eccSq-3*c1*c1)*math.Pow(d, 6)/720)

	lonRad := lon0 + (d-
		(1+2*t1+c1)*math.Pow(d, 3)/6+
		(5-2*c1+28*t1-3*c1*c1+8*eccSq+24*t1*t1)*math.Pow(d, 5)/120)/cosPhi1

	return rad2deg(latRad), rad2deg(lonRad)
}

// LatLonToUTM converts geographic degrees to UTM easting/northing within
// the given zone. Used by ReprojectBBoxToUTM and by tests to verify the
// inverse within 1 m.
func LatLonToUTM(lat, lon float64, zone int) (easting, northing float64) {
	latRad := deg2rad(lat)
	lonRad := deg2rad(lon)
	lon0 := deg2rad(float64((zone-1)*6 - 180 + 3))

	sinLat, cosLat := math.Sin(latRad), math.Cos(latRad)
	n := semiMajor / math.Sqrt(1-eccSq*sinLat*sinLat)
	t := math.Tan(latRad) * math.Tan(latRad)
	c := eccSq * cosLat * cosLat / (1 - eccSq)
	a := cosLat * (lonRad - lon0)

	m := semiMajor * ((1-eccSq/4-3*eccSq*eccSq/64-5*math.Pow(eccSq, 3)/256)*latRad -
		(3*eccSq/8+3*eccSq*eccSq/32+45*math.Pow(eccSq, 3)/1024)*math.Sin(2*latRad) +
		(15*eccSq*eccSq/256+45*math.Pow(eccSq, 3)/1024)*math.Sin(4*latRad) -
		(35*math.Pow(eccSq, 3)/3072)*math.Sin(6*latRad))

	easting = utmScale*n*(a+(1-t+c)*math.Pow(a, 3)/6+
		(5-18*t+t*t+72*c-58*eccSq)*math.Pow(a, 5)/120) + 500_000.0

	northing = utmScale * (m + n*math.Tan(latRad)*
		(a*a/2+(5-t+9*c+4*c*c)*math.Pow(a, 4)/24+
			(61-58*t+t*t+600*c-330*eccSq)*math.Pow(a, 6)/720))

	if lat < 0 {
		northing += 10_000_000.0
	}
	return easting, northing
}

// ReprojectBBoxToWGS84 transforms a UTM envelope into the axis-aligned
// WGS84 box covering it: all four corners are converted and their
// envelope returned.
func ReprojectBBoxToWGS84(minEasting, minNorthing, maxEasting, maxNorthing float64, zone int, southern bool) Bounds {
	corners := [4][2]float64{
		{minEasting, minNorthing},
		{maxEasting, minNorthing},
		{maxEasting, maxNorthing},
		{minEasting, maxNorthing},
	}
	lats := make([]float64, 4)
	lons := make([]float64, 4)
	for i, c := range corners {
		lats[i], lons[i] = UTMToLatLon(c[0], c[1], zone, southern)
	}
	return FromCorners(lats, lons)
}

// ReprojectBBoxToUTM is the inverse: the UTM envelope covering a WGS84
// box within one zone.
func ReprojectBBoxToUTM(b Bounds, zone int) (minEasting, minNorthing, maxEasting, maxNorthing float64) {
	corners := [4][2]float64{
		{b.MinLat, b.MinLon},
		{b.MinLat, b.MaxLon},
		{b.MaxLat, b.MaxLon},
		{b.MaxLat, b.MinLon},
	}
	for i, c := range corners {
		e, n := LatLonToUTM(c[0], c[1], zone)
		if i == 0 {
			minEasting, maxEasting = e, e
			minNorthing, maxNorthing = n, n
			continue
		}
		minEasting = math.Min(minEasting, e)
		maxEasting = math.Max(maxEasting, e)
		minNorthing = math.Min(minNorthing, n)
		maxNorthing = math.Max(maxNorthing, n)
	}
	return minEasting, minNorthing, maxEasting, maxNorthing
}

// TileBounds returns the WGS84 box covering a square UTM tile centered
// on (easting, northing).
func TileBounds(easting, northing float64, zone int, tileSize float64) Bounds {
	half := tileSize / 2
	return ReprojectBBoxToWGS84(easting-half, northing-half, easting+half, northing+half, zone, true)
}

func deg2rad(d float64) float64 { return d * math.Pi / 180 }
func rad2deg(r float64) float64 { return r * 180 / math.Pi }
