package geo

import (
	"math"
	"time"

	"github.com/westphae/geomag/pkg/egm96"
	"github.com/westphae/geomag/pkg/wmm"
)

const (
	// Mean Earth radius in nautical miles.
	EarthRadiusNM = 3440.065

	KMPerNM     = 1.852
	MetersPerFt = 0.3048
	DegToRad    = math.Pi / 180.0
)

// HaversineNM returns the great-circle distance between two coordinates in
// nautical miles.
func HaversineNM(lat1, lon1, lat2, lon2 float64) float64 {
	phi1 := lat1 * DegToRad
	phi2 := lat2 * DegToRad
	dPhi := (lat2 - lat1) * DegToRad
	dLambda := (lon2 - lon1) * DegToRad

	a := math.Sin(dPhi/2)*math.Sin(dPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(dLambda/2)*math.Sin(dLambda/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return EarthRadiusNM * c
}

// NMToKM converts nautical miles to kilometers.
func NMToKM(nm float64) float64 {
	return nm * KMPerNM
}

// MagneticTrack converts a true track to a magnetic track using the WMM
// declination at the given position and time. Falls back to the true track
// when the model cannot be evaluated.
func MagneticTrack(lat, lon, altFt, trueTrack float64, at time.Time) float64 {
	loc := egm96.NewLocationGeodetic(lat, lon, altFt*MetersPerFt)
	mag, err := wmm.CalculateWMMMagneticField(loc, at)
	if err != nil {
		return trueTrack
	}
	track := trueTrack - mag.D()
	for track < 0 {
		track += 360
	}
	for track >= 360 {
		track -= 360
	}
	return track
}
