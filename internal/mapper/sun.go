package mapper

import "math"

// Window of sun elevations that actually move the filters.
const (
	SunLow  = -20.0
	SunHigh = 70.0
)

// SunElevation returns the solar elevation in degrees for a latitude and a
// local time-of-day fraction, treating declination as zero (equinox).
// Solar noon is at 0.5.
func SunElevation(latitude, timeOfDay float64) float64 {
	latRad := latitude * math.Pi / 180
	hourAngle := (timeOfDay - 0.5) * 2 * math.Pi
	const decl = 0.0
	s := math.Sin(latRad)*math.Sin(decl) + math.Cos(latRad)*math.Cos(decl)*math.Cos(hourAngle)
	el := math.Asin(clamp(s, -1, 1)) * 180 / math.Pi
	return clamp(el, -90, 90)
}

// SunNorm maps an elevation onto [0,1] across the SunLow..SunHigh window.
func SunNorm(elevation float64) float64 {
	return (clamp(elevation, SunLow, SunHigh) - SunLow) / (SunHigh - SunLow)
}

// LowpassCutoff: a low sun muffles the root voice, a high sun opens it up.
// Higher latitudes add a little extra brightness.
func LowpassCutoff(elevation, latitude float64) float64 {
	n := SunNorm(elevation)
	return ClampFrequency(500 + 4500*n + 500*math.Abs(latitude)/90)
}

// HighpassCutoff moves inversely to the low-pass: more bass is cut when the
// sun is down. Longitude adds a small offset.
func HighpassCutoff(elevation, longitude float64) float64 {
	n := SunNorm(elevation)
	return ClampFrequency(20 + 280*(1-n) + 40*(longitude+180)/360)
}
