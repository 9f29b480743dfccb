package modes

import "testing"

func TestParseAVR(t *testing.T) {
	m, err := ParseAVR("*" + identFrame + ";\r\n")
	if err != nil {
		t.Fatalf("ParseAVR: %v", err)
	}
	if icao := m.ICAO(); icao != "4840d6" {
		t.Errorf("ICAO = %q, want 4840d6", icao)
	}
}

func TestParseAVRRejects(t *testing.T) {
	cases := []struct {
		name string
		line string
	}{
		{"empty", ""},
		{"whitespace only", "  \r\n"},
		{"mlat frame", "@0000006E2B828D4840D6202CC371C32CE0576098;"},
		{"short frame", "*02E197B00179C3;"},
		{"truncated hex", "*8D4840D6202CC371C32CE057609;"},
		{"bad hex", "*ZZ4840D6202CC371C32CE0576098;"},
	}
	for _, c := range cases {
		if _, err := ParseAVR(c.line); err == nil {
			t.Errorf("%s: expected an error for %q", c.name, c.line)
		}
	}
}
