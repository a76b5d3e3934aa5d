// Package sun computes sunrise and sunset times for a geographic location
// on a given date. No corpus example wires a sunrise/sunset crate (the
// original source has no such dependency either; the Rust project's own
// sun-event code is a hand-rolled implementation it, too, does not import
// from a library), so this is one of the few genuinely justified
// standard-library-only packages in the module — see DESIGN.md.
package sun

import (
	"math"
	"time"
)

// Location is a geographic position used for sun-event scheduling and
// IsDaytime/IsNighttime expressions (spec.md §4.2/§6).
type Location struct {
	Latitude  float64
	Longitude float64
	Altitude  float64 // meters; applied as a small horizon-dip correction
}

const zenithOfficial = 90.8333 // degrees: 90° + atmospheric refraction + solar radius

// Sunrise returns the UTC instant of sunrise on date's calendar day at loc.
func Sunrise(date time.Time, loc Location) (time.Time, bool) {
	return calculate(date, loc, true)
}

// Sunset returns the UTC instant of sunset on date's calendar day at loc.
func Sunset(date time.Time, loc Location) (time.Time, bool) {
	return calculate(date, loc, false)
}

// calculate implements the "Sunrise/Sunset Algorithm" (Almanac for
// Computers, 1990, Nautical Almanac Office, US Naval Observatory), the
// same formula in general circulation among sun-event calculators. ok is
// false for the polar-day/polar-night case where the event does not occur.
func calculate(date time.Time, loc Location, rise bool) (result time.Time, ok bool) {
	date = date.UTC()
	dayOfYear := date.YearDay()
	lngHour := loc.Longitude / 15.0

	var t float64
	if rise {
		t = float64(dayOfYear) + ((6 - lngHour) / 24)
	} else {
		t = float64(dayOfYear) + ((18 - lngHour) / 24)
	}

	meanAnomaly := (0.9856 * t) - 3.289

	sunTrueLongitude := meanAnomaly +
		(1.916 * sinDeg(meanAnomaly)) +
		(0.020 * sinDeg(2*meanAnomaly)) +
		282.634
	sunTrueLongitude = normalize360(sunTrueLongitude)

	rightAscension := normalize360(atanDeg(0.91764 * tanDeg(sunTrueLongitude)))
	lQuadrant := math.Floor(sunTrueLongitude/90) * 90
	raQuadrant := math.Floor(rightAscension/90) * 90
	rightAscension += lQuadrant - raQuadrant
	rightAscension /= 15

	sinDeclination := 0.39782 * sinDeg(sunTrueLongitude)
	cosDeclination := math.Cos(math.Asin(sinDeclination))

	zenith := zenithOfficial + horizonDip(loc.Altitude)
	cosHourAngle := (cosDeg(zenith) - (sinDeclination * sinDeg(loc.Latitude))) / (cosDeclination * cosDeg(loc.Latitude))
	if cosHourAngle > 1 || cosHourAngle < -1 {
		return time.Time{}, false // sun never rises / never sets on this day at this latitude
	}

	var hourAngle float64
	if rise {
		hourAngle = 360 - acosDeg(cosHourAngle)
	} else {
		hourAngle = acosDeg(cosHourAngle)
	}
	hourAngle /= 15

	localMeanTime := hourAngle + rightAscension - (0.06571 * t) - 6.622
	utcHour := normalize24(localMeanTime - lngHour)

	midnight := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, time.UTC)
	return midnight.Add(time.Duration(utcHour * float64(time.Hour))), true
}

// horizonDip approximates the extra dip of the horizon, in degrees,
// visible from altitude meters above sea level.
func horizonDip(altitudeMeters float64) float64 {
	if altitudeMeters <= 0 {
		return 0
	}
	return 0.0353 * math.Sqrt(altitudeMeters)
}

func normalize360(deg float64) float64 {
	deg = math.Mod(deg, 360)
	if deg < 0 {
		deg += 360
	}
	return deg
}

func normalize24(hour float64) float64 {
	hour = math.Mod(hour, 24)
	if hour < 0 {
		hour += 24
	}
	return hour
}

func sinDeg(deg float64) float64  { return math.Sin(deg * math.Pi / 180) }
func cosDeg(deg float64) float64  { return math.Cos(deg * math.Pi / 180) }
func tanDeg(deg float64) float64  { return math.Tan(deg * math.Pi / 180) }
func atanDeg(x float64) float64   { return math.Atan(x) * 180 / math.Pi }
func acosDeg(x float64) float64   { return math.Acos(x) * 180 / math.Pi }
