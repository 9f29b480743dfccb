package modes

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// ParseAVR parses one line of dump1090 raw output, e.g.
// "*8D4840D6202CC371C32CE0576098;". Short frames (Mode A/C replies, 56-bit
// squitters) and timestamped MLAT lines are rejected.
func ParseAVR(line string) (Message, error) {
	s := strings.TrimSpace(line)
	if s == "" {
		return nil, fmt.Errorf("empty line")
	}
	if s[0] == '@' {
		return nil, fmt.Errorf("timestamped MLAT frame not supported")
	}
	s = strings.TrimPrefix(s, "*")
	s = strings.TrimSuffix(s, ";")
	if len(s) != frameLen*2 {
		return nil, fmt.Errorf("frame is %d hex chars, want %d", len(s), frameLen*2)
	}
	raw, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("decoding frame hex: %w", err)
	}
	return Message(raw), nil
}
