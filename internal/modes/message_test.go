package modes

import (
	"encoding/hex"
	"math"
	"testing"
)

// Reference frames with well-known decoded values.
const (
	identFrame   = "8D4840D6202CC371C32CE0576098" // KLM1023
	evenPosFrame = "8D40621D58C382D690C8AC2863A7" // even parity position, 38000 ft
	oddPosFrame  = "8D40621D58C386435CC412692AD6" // odd parity position
	gsVelFrame   = "8D485020994409940838175B284F" // velocity subtype 1, ground speed
	tasVelFrame  = "8DA05F219B06B6AF189400CBC33F" // velocity subtype 3, airspeed
)

func frame(t *testing.T, hexStr string) Message {
	t.Helper()
	raw, err := hex.DecodeString(hexStr)
	if err != nil {
		t.Fatalf("bad test frame %s: %v", hexStr, err)
	}
	return Message(raw)
}

func TestMessageFields(t *testing.T) {
	m := frame(t, identFrame)

	if df := m.DF(); df != 17 {
		t.Errorf("DF = %d, want 17", df)
	}
	if ca := m.CA(); ca != 5 {
		t.Errorf("CA = %d, want 5", ca)
	}
	if icao := m.ICAO(); icao != "4840d6" {
		t.Errorf("ICAO = %q, want 4840d6", icao)
	}
	if tc := m.Typecode(); tc != 4 {
		t.Errorf("Typecode = %d, want 4", tc)
	}
}

func TestTypecodeRequiresDF17(t *testing.T) {
	m := frame(t, identFrame)
	m[0] = 0x20 // DF 4

	if tc := m.Typecode(); tc != 0 {
		t.Errorf("Typecode on DF 4 frame = %d, want 0", tc)
	}
}

func TestChecksumOK(t *testing.T) {
	for _, hexStr := range []string{identFrame, evenPosFrame, oddPosFrame, gsVelFrame, tasVelFrame} {
		if !frame(t, hexStr).ChecksumOK() {
			t.Errorf("frame %s should pass the CRC", hexStr)
		}
	}

	corrupted := frame(t, identFrame)
	corrupted[7] ^= 0x10
	if corrupted.ChecksumOK() {
		t.Error("corrupted frame should fail the CRC")
	}

	if Message([]byte{0x8D, 0x48}).ChecksumOK() {
		t.Error("truncated frame should fail the CRC")
	}
}

func TestCallsign(t *testing.T) {
	cs, ok := frame(t, identFrame).Callsign()
	if !ok {
		t.Fatal("expected a callsign from a TC 4 frame")
	}
	if cs != "KLM1023" {
		t.Errorf("callsign = %q, want KLM1023", cs)
	}

	if _, ok := frame(t, evenPosFrame).Callsign(); ok {
		t.Error("position frame should not decode a callsign")
	}
}

func TestAltitude(t *testing.T) {
	alt, ok := frame(t, evenPosFrame).Altitude()
	if !ok {
		t.Fatal("expected an altitude from a TC 11 frame")
	}
	if alt != 38000 {
		t.Errorf("altitude = %d, want 38000", alt)
	}

	if _, ok := frame(t, identFrame).Altitude(); ok {
		t.Error("identification frame should not decode an altitude")
	}
}

func TestAltitudeRejectsGillhamEncoding(t *testing.T) {
	m := frame(t, evenPosFrame)
	m[5], m[6] = 0xC2, 0x80 // Q bit clear

	if _, ok := m.Altitude(); ok {
		t.Error("Gillham-coded altitude should be reported unavailable")
	}
}

func TestVelocityGroundSpeed(t *testing.T) {
	speed, track, vr, vtype, ok := frame(t, gsVelFrame).Velocity()
	if !ok {
		t.Fatal("expected a velocity from a TC 19 frame")
	}
	if math.Abs(speed-159.20) > 0.01 {
		t.Errorf("speed = %f, want 159.20", speed)
	}
	if math.Abs(track-182.88) > 0.01 {
		t.Errorf("track = %f, want 182.88", track)
	}
	if vr != -832 {
		t.Errorf("vertical rate = %d, want -832", vr)
	}
	if vtype != "GS" {
		t.Errorf("velocity type = %q, want GS", vtype)
	}
}

func TestVelocityAirspeed(t *testing.T) {
	speed, track, vr, vtype, ok := frame(t, tasVelFrame).Velocity()
	if !ok {
		t.Fatal("expected a velocity from a TC 19 frame")
	}
	if speed != 375 {
		t.Errorf("speed = %f, want 375", speed)
	}
	if math.Abs(track-243.984375) > 1e-9 {
		t.Errorf("heading = %f, want 243.984375", track)
	}
	if vr != -2304 {
		t.Errorf("vertical rate = %d, want -2304", vr)
	}
	if vtype != "TAS" {
		t.Errorf("velocity type = %q, want TAS", vtype)
	}
}

func TestVelocityWrongTypecode(t *testing.T) {
	if _, _, _, _, ok := frame(t, evenPosFrame).Velocity(); ok {
		t.Error("position frame should not decode a velocity")
	}
}

func TestSurfaceVelocity(t *testing.T) {
	// TC 7, movement code 42, track status set, 7-bit track 33.
	m := Message{0x8C, 0x48, 0x41, 0x75, 0x3A, 0xAA, 0x10, 0, 0, 0, 0, 0, 0, 0}

	speed, track, ok := m.SurfaceVelocity()
	if !ok {
		t.Fatal("expected a surface velocity from a TC 7 frame")
	}
	if speed != 18 {
		t.Errorf("speed = %f, want 18", speed)
	}
	if track != 92.8125 {
		t.Errorf("track = %f, want 92.8125", track)
	}

	// Track status cleared: speed stands, track reads zero.
	m[5] = 0xA2
	speed, track, ok = m.SurfaceVelocity()
	if !ok || speed != 18 || track != 0 {
		t.Errorf("got (%f, %f, %v), want (18, 0, true)", speed, track, ok)
	}

	if _, _, ok := frame(t, evenPosFrame).SurfaceVelocity(); ok {
		t.Error("airborne frame should not decode a surface velocity")
	}
}

func TestMovementToKt(t *testing.T) {
	cases := []struct {
		mv   int
		want float64
		ok   bool
	}{
		{0, 0, false},
		{1, 0, true},
		{2, 0.125, true},
		{8, 0.875, true},
		{9, 1, true},
		{12, 1.75, true},
		{13, 2, true},
		{38, 14.5, true},
		{39, 15, true},
		{93, 69, true},
		{94, 70, true},
		{108, 98, true},
		{109, 100, true},
		{123, 170, true},
		{124, 175, true},
		{125, 0, false},
	}
	for _, c := range cases {
		got, ok := movementToKt(c.mv)
		if ok != c.ok || got != c.want {
			t.Errorf("movementToKt(%d) = (%f, %v), want (%f, %v)", c.mv, got, ok, c.want, c.ok)
		}
	}
}
