// Package modes decodes 112-bit Mode S extended squitter frames: integrity
// check, address and typecode extraction, callsign, barometric altitude,
// velocity, and split-frame (CPR) position resolution.
package modes

import (
	"fmt"
	"math"
)

// DF17 is the downlink format carrying ADS-B extended squitter payloads.
const DF17 = 17

// frameLen is the byte length of an extended squitter frame (112 bits).
const frameLen = 14

// icaoCharset maps 6-bit callsign codes to characters. '?' marks codes that
// never appear in a valid callsign.
const icaoCharset = "?ABCDEFGHIJKLMNOPQRSTUVWXYZ????? ???????????????0123456789??????"

// Message is one raw 112-bit Mode S frame.
type Message []byte

// DF returns the downlink format.
func (m Message) DF() int {
	if len(m) < 1 {
		return -1
	}
	return int(m[0]>>3) & 0x1F
}

// CA returns the capability field.
func (m Message) CA() int {
	if len(m) < 1 {
		return 0
	}
	return int(m[0]) & 0x07
}

// ICAO returns the 24-bit aircraft address as a lowercase hex string.
func (m Message) ICAO() string {
	if len(m) < 4 {
		return ""
	}
	return fmt.Sprintf("%02x%02x%02x", m[1], m[2], m[3])
}

// Typecode returns the extended squitter format type code, or 0 for frames
// that do not carry one.
func (m Message) Typecode() int {
	if len(m) != frameLen {
		return 0
	}
	if df := m.DF(); df != DF17 && df != 18 {
		return 0
	}
	return int(m[4]>>3) & 0x1F
}

// crcGenerator is the 25-bit Mode S CRC polynomial, MSB first.
var crcGenerator = [25]byte{
	1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1,
	0, 1, 0, 0, 0, 0, 0, 0, 1, 0, 0, 1,
}

// ChecksumOK reports whether the frame's CRC remainder is zero. The parity
// field of a DF17 frame is XORed over the checksum by the transmitter, so a
// clean frame divides out exactly.
func (m Message) ChecksumOK() bool {
	if len(m) != frameLen {
		return false
	}
	bits := make([]byte, frameLen*8)
	for i := range bits {
		bits[i] = (m[i/8] >> (7 - i%8)) & 1
	}
	for i := 0; i <= len(bits)-len(crcGenerator); i++ {
		if bits[i] == 0 {
			continue
		}
		for j, g := range crcGenerator {
			bits[i+j] ^= g
		}
	}
	for _, b := range bits[len(bits)-24:] {
		if b != 0 {
			return false
		}
	}
	return true
}

// Callsign decodes the 8-character identification from a TC 1-4 frame.
// Trailing spaces are trimmed; garbled characters reject the whole field.
func (m Message) Callsign() (string, bool) {
	tc := m.Typecode()
	if tc < 1 || tc > 4 {
		return "", false
	}
	chars := make([]byte, 8)
	bits := uint32(m[5])<<16 | uint32(m[6])<<8 | uint32(m[7])
	chars[0] = icaoCharset[bits>>18&0x3F]
	chars[1] = icaoCharset[bits>>12&0x3F]
	chars[2] = icaoCharset[bits>>6&0x3F]
	chars[3] = icaoCharset[bits&0x3F]
	bits = uint32(m[8])<<16 | uint32(m[9])<<8 | uint32(m[10])
	chars[4] = icaoCharset[bits>>18&0x3F]
	chars[5] = icaoCharset[bits>>12&0x3F]
	chars[6] = icaoCharset[bits>>6&0x3F]
	chars[7] = icaoCharset[bits&0x3F]

	end := 7
	for end >= 0 && chars[end] == ' ' {
		end--
	}
	cs := string(chars[:end+1])
	if cs == "" {
		return "", false
	}
	for i := 0; i < len(cs); i++ {
		if cs[i] == '?' {
			return "", false
		}
	}
	return cs, true
}

// Altitude decodes the barometric altitude in feet from a TC 9-18 frame.
// Only the 25 ft encoding (Q bit set) is supported; Gillham-coded altitudes
// are reported as unavailable.
func (m Message) Altitude() (int, bool) {
	tc := m.Typecode()
	if tc < 9 || tc > 18 {
		return 0, false
	}
	ac12 := (uint16(m[5])<<4 | uint16(m[6])>>4) & 0x0FFF
	if ac12&0x10 == 0 {
		return 0, false
	}
	n := int(ac12&0x0FE0)>>1 | int(ac12&0x000F)
	return n*25 - 1000, true
}

// CPR extracts the 17-bit split-position fields and the parity flag from a
// TC 5-18 position frame.
func (m Message) CPR() (latCPR, lonCPR uint32, odd bool, ok bool) {
	tc := m.Typecode()
	if tc < 5 || tc > 18 {
		return 0, 0, false, false
	}
	odd = m[6]&0x04 != 0
	latCPR = uint32(m[6]&0x03)<<15 | uint32(m[7])<<7 | uint32(m[8])>>1
	lonCPR = uint32(m[8]&0x01)<<16 | uint32(m[9])<<8 | uint32(m[10])
	return latCPR, lonCPR, odd, true
}

// verticalRate decodes the signed vertical rate in ft/min from a TC 19 frame.
func (m Message) verticalRate() int {
	raw := int(m[8]&0x07)<<6 | int(m[9])>>2
	if raw == 0 {
		return 0
	}
	raw--
	if m[8]&0x08 != 0 {
		raw = -raw
	}
	return raw * 64
}

// Velocity decodes an airborne velocity (TC 19, subtypes 1-4). Subtypes 1-2
// carry ground speed as east-west and north-south components; subtypes 3-4
// carry airspeed and heading. Supersonic subtypes scale by four.
func (m Message) Velocity() (speed, track float64, verticalRate int, vtype string, ok bool) {
	if m.Typecode() != 19 {
		return 0, 0, 0, "", false
	}
	subtype := int(m[4]) & 0x07
	if subtype < 1 || subtype > 4 {
		return 0, 0, 0, "", false
	}
	verticalRate = m.verticalRate()

	if subtype == 1 || subtype == 2 {
		ewRaw := int(m[5]&0x03)<<8 | int(m[6])
		nsRaw := int(m[7]&0x7F)<<3 | int(m[8])>>5
		if ewRaw == 0 || nsRaw == 0 {
			return 0, 0, 0, "", false
		}
		ew := ewRaw - 1
		if m[5]&0x04 != 0 {
			ew = -ew
		}
		ns := nsRaw - 1
		if m[7]&0x80 != 0 {
			ns = -ns
		}
		if subtype == 2 {
			ew *= 4
			ns *= 4
		}
		speed = math.Sqrt(float64(ew*ew + ns*ns))
		if speed > 0 {
			track = math.Atan2(float64(ew), float64(ns)) * 180 / math.Pi
			if track < 0 {
				track += 360
			}
		}
		return speed, track, verticalRate, "GS", true
	}

	// Subtypes 3-4: airspeed and magnetic heading.
	airspeed := int(m[7]&0x7F)<<3 | int(m[8])>>5
	if airspeed == 0 {
		return 0, 0, 0, "", false
	}
	airspeed--
	if subtype == 4 {
		airspeed *= 4
	}
	speed = float64(airspeed)
	if m[5]&0x04 != 0 {
		hdgRaw := int(m[5]&0x03)<<8 | int(m[6])
		track = float64(hdgRaw) * 360 / 1024
	}
	vtype = "IAS"
	if m[7]&0x80 != 0 {
		vtype = "TAS"
	}
	return speed, track, verticalRate, vtype, true
}

// SurfaceVelocity decodes ground movement from a TC 5-8 surface position
// frame. The 7-bit movement field encodes banded, variable-resolution speeds.
func (m Message) SurfaceVelocity() (speed, track float64, ok bool) {
	tc := m.Typecode()
	if tc < 5 || tc > 8 {
		return 0, 0, false
	}
	movement := int(m[4]&0x07)<<4 | int(m[5])>>4
	speed, ok = movementToKt(movement)
	if !ok {
		return 0, 0, false
	}
	if m[5]&0x08 != 0 {
		trackRaw := int(m[5]&0x07)<<4 | int(m[6])>>4
		track = float64(trackRaw) * 360 / 128
	}
	return speed, track, true
}

// movementToKt maps the surface movement code to knots.
func movementToKt(mv int) (float64, bool) {
	switch {
	case mv == 0 || mv > 124:
		return 0, false // no information / reserved
	case mv == 1:
		return 0, true
	case mv <= 8:
		return 0.125 + float64(mv-2)*0.125, true
	case mv <= 12:
		return 1 + float64(mv-9)*0.25, true
	case mv <= 38:
		return 2 + float64(mv-13)*0.5, true
	case mv <= 93:
		return 15 + float64(mv-39), true
	case mv <= 108:
		return 70 + float64(mv-94)*2, true
	case mv <= 123:
		return 100 + float64(mv-109)*5, true
	default: // mv == 124
		return 175, true
	}
}
