package geometry

import "math"

// WGS84 ellipsoid parameters.
const (
	SemiMajorAxis = 6378137.0
	Flattening    = 1 / 298.257223563
)

var eccentricitySq = Flattening * (2 - Flattening)

// IntersectGround intersects a unit ENU ray cast from a camera at the local
// origin with the flat ground plane elevationM below it. It returns the
// intersection point and the slant range.
func IntersectGround(dir Vec3, elevationM, maxRange float64) (Vec3, float64, error) {
	if !(dir.Z < 0) {
		return Vec3{}, 0, ErrAboveHorizon
	}

	t := -elevationM / dir.Z
	if !(t > 0) {
		return Vec3{}, 0, ErrBehindCamera
	}
	if t > maxRange {
		return Vec3{}, 0, ErrOutOfRange
	}

	return dir.Scale(t), t, nil
}

// Offset moves the geodetic anchor (lat, lon) by east and north metres on
// the local tangent plane, using the WGS84 meridional and prime-vertical
// radii of curvature at the anchor latitude.
func Offset(lat, lon, east, north float64) (float64, float64, error) {
	phi := lat * deg2rad
	sin := math.Sin(phi)
	cos := math.Cos(phi)
	if math.Abs(cos) < 1e-9 {
		return 0, 0, ErrPolarAnchor
	}

	w := math.Sqrt(1 - eccentricitySq*sin*sin)
	primeVertical := SemiMajorAxis / w
	meridional := SemiMajorAxis * (1 - eccentricitySq) / (w * w * w)

	outLat := lat + (north/meridional)/deg2rad
	if math.Abs(outLat) > 90 {
		return 0, 0, ErrPolarAnchor
	}
	outLon := lon + (east/(primeVertical*cos))/deg2rad

	return outLat, NormalizeLongitude(outLon), nil
}

// NormalizeLongitude wraps lon into [-180, 180).
func NormalizeLongitude(lon float64) float64 {
	l := math.Mod(lon+180, 360)
	if l < 0 {
		l += 360
	}
	return l - 180
}
