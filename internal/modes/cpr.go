package modes

import (
	"math"
	"time"
)

// nlThresholds[i] is the upper latitude bound in degrees of the band with
// 59-i longitude zones; the encoding is symmetric about the equator.
var nlThresholds = []float64{
	10.47047130, 14.82817437, 18.18626357, 21.02939493, 23.54504487,
	25.82924707, 27.93898710, 29.91135686, 31.77209708, 33.53993436,
	35.22899598, 36.85025108, 38.41241892, 39.92256684, 41.38651832,
	42.80914012, 44.19454951, 45.54626723, 46.86733252, 48.16039128,
	49.42776439, 50.67150166, 51.89342469, 53.09516153, 54.27817472,
	55.44378444, 56.59318756, 57.72747354, 58.84763776, 59.95459277,
	61.04917774, 62.13216659, 63.20427479, 64.26616523, 65.31845310,
	66.36171008, 67.39646774, 68.42322022, 69.44242631, 70.45451075,
	71.45986473, 72.45884545, 73.45177442, 74.43893416, 75.42056257,
	76.39684391, 77.36789461, 78.33374083, 79.29428225, 80.24923213,
	81.19801349, 82.13956981, 83.07199445, 83.99173563, 84.89166191,
	85.75541621, 86.53536998, 87.00000000,
}

// cprMod is the always-positive modulo used by the CPR equations.
func cprMod(a, b int) int {
	res := a % b
	if res < 0 {
		res += b
	}
	return res
}

// cprNL returns the longitude zone count at the given latitude.
func cprNL(lat float64) int {
	if lat < 0 {
		lat = -lat
	}
	for i, bound := range nlThresholds {
		if lat < bound {
			return 59 - i
		}
	}
	return 1
}

// cprN returns the zone count adjusted for frame parity, at least 1.
func cprN(lat float64, odd bool) int {
	nl := cprNL(lat)
	if odd {
		nl--
	}
	if nl < 1 {
		return 1
	}
	return nl
}

// cprDLon returns the width in degrees of one longitude zone.
func cprDLon(lat float64, odd bool) float64 {
	return 360.0 / float64(cprN(lat, odd))
}

// ResolvePosition computes a globally-unambiguous coordinate from one even-
// and one odd-parity airborne position frame. It returns ok=false when the
// frames are not an airborne even/odd pair or when the pair is inconsistent
// (the two frames fall in different latitude zones), which callers treat as
// "position not yet known" rather than an error.
func ResolvePosition(even, odd Message, evenTS, oddTS time.Time) (float64, float64, bool) {
	if tc := even.Typecode(); tc < 9 || tc > 18 {
		return 0, 0, false
	}
	if tc := odd.Typecode(); tc < 9 || tc > 18 {
		return 0, 0, false
	}
	evenLat, evenLon, evenOdd, ok := even.CPR()
	if !ok || evenOdd {
		return 0, 0, false
	}
	oddLat, oddLon, oddOdd, ok := odd.CPR()
	if !ok || !oddOdd {
		return 0, 0, false
	}
	return resolveGlobalCPR(evenLat, evenLon, oddLat, oddLon, oddTS.After(evenTS))
}

// resolveGlobalCPR implements the globally-unambiguous CPR decode over the
// raw 17-bit fields. lastOdd selects which frame's zone the final coordinate
// is computed in (the more recent one).
func resolveGlobalCPR(evenLat, evenLon, oddLat, oddLon uint32, lastOdd bool) (float64, float64, bool) {
	const dLat0 = 360.0 / 60.0
	const dLat1 = 360.0 / 59.0

	rlat0 := float64(evenLat) / 131072.0
	rlat1 := float64(oddLat) / 131072.0
	rlon0 := float64(evenLon) / 131072.0
	rlon1 := float64(oddLon) / 131072.0

	// Latitude zone index.
	j := int(math.Floor(59.0*rlat0 - 60.0*rlat1 + 0.5))

	lat0 := dLat0 * (float64(cprMod(j, 60)) + rlat0)
	lat1 := dLat1 * (float64(cprMod(j, 59)) + rlat1)
	if lat0 >= 270 {
		lat0 -= 360
	}
	if lat1 >= 270 {
		lat1 -= 360
	}

	// Both frames must fall in the same latitude zone, otherwise the pair
	// spans a zone boundary and cannot be trusted.
	if cprNL(lat0) != cprNL(lat1) {
		return 0, 0, false
	}

	lat := lat0
	if lastOdd {
		lat = lat1
	}
	if lat < -90 || lat > 90 {
		return 0, 0, false
	}

	// Longitude zone index from both frames, final longitude from the
	// newer one.
	m := int(math.Floor(rlon0*float64(cprNL(lat)-1) - rlon1*float64(cprNL(lat)) + 0.5))

	var lon float64
	if lastOdd {
		ni := cprN(lat, true)
		lon = cprDLon(lat, true) * (float64(cprMod(m, ni)) + rlon1)
	} else {
		ni := cprN(lat, false)
		lon = cprDLon(lat, false) * (float64(cprMod(m, ni)) + rlon0)
	}
	if lon > 180 {
		lon -= 360
	}
	return lat, lon, true
}
