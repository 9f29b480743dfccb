package modes

import (
	"math"
	"testing"
	"time"
)

func TestCPRFieldExtraction(t *testing.T) {
	latCPR, lonCPR, odd, ok := frame(t, evenPosFrame).CPR()
	if !ok {
		t.Fatal("expected CPR fields from a position frame")
	}
	if odd {
		t.Error("frame should carry even parity")
	}
	if latCPR != 93000 || lonCPR != 51372 {
		t.Errorf("CPR fields = (%d, %d), want (93000, 51372)", latCPR, lonCPR)
	}

	latCPR, lonCPR, odd, ok = frame(t, oddPosFrame).CPR()
	if !ok || !odd {
		t.Fatal("expected odd-parity CPR fields")
	}
	if latCPR != 74158 || lonCPR != 50194 {
		t.Errorf("CPR fields = (%d, %d), want (74158, 50194)", latCPR, lonCPR)
	}

	if _, _, _, ok := frame(t, identFrame).CPR(); ok {
		t.Error("identification frame should not carry CPR fields")
	}
}

func TestResolvePositionEvenNewer(t *testing.T) {
	even := frame(t, evenPosFrame)
	odd := frame(t, oddPosFrame)
	now := time.Now()

	lat, lon, ok := ResolvePosition(even, odd, now, now.Add(-2*time.Second))
	if !ok {
		t.Fatal("expected the pair to resolve")
	}
	if math.Abs(lat-52.2572021484375) > 1e-9 {
		t.Errorf("lat = %f, want 52.2572021484375", lat)
	}
	if math.Abs(lon-3.91937255859375) > 1e-9 {
		t.Errorf("lon = %f, want 3.91937255859375", lon)
	}
}

func TestResolvePositionOddNewer(t *testing.T) {
	even := frame(t, evenPosFrame)
	odd := frame(t, oddPosFrame)
	now := time.Now()

	lat, lon, ok := ResolvePosition(even, odd, now.Add(-2*time.Second), now)
	if !ok {
		t.Fatal("expected the pair to resolve")
	}
	if math.Abs(lat-52.2657801741) > 1e-5 {
		t.Errorf("lat = %f, want 52.2657801741", lat)
	}
	if math.Abs(lon-3.9389125279) > 1e-5 {
		t.Errorf("lon = %f, want 3.9389125279", lon)
	}
}

func TestResolvePositionRejectsSameParity(t *testing.T) {
	even := frame(t, evenPosFrame)
	odd := frame(t, oddPosFrame)
	now := time.Now()

	if _, _, ok := ResolvePosition(even, even, now, now); ok {
		t.Error("two even frames should not resolve")
	}
	if _, _, ok := ResolvePosition(odd, odd, now, now); ok {
		t.Error("two odd frames should not resolve")
	}
	if _, _, ok := ResolvePosition(frame(t, identFrame), odd, now, now); ok {
		t.Error("a non-position frame should not resolve")
	}
}

func TestResolveGlobalCPRRejectsZoneStraddlingPair(t *testing.T) {
	// lat0 sits just below the 59-zone boundary, lat1 just above it.
	if _, _, ok := resolveGlobalCPR(97658, 0, 93848, 0, false); ok {
		t.Error("frames in different latitude zones should not resolve")
	}
}

func TestCPRNL(t *testing.T) {
	cases := []struct {
		lat  float64
		want int
	}{
		{0, 59},
		{43.65, 43},
		{-43.65, 43},
		{89, 1},
	}
	for _, c := range cases {
		if got := cprNL(c.lat); got != c.want {
			t.Errorf("cprNL(%f) = %d, want %d", c.lat, got, c.want)
		}
	}
}
