package pipeline

import "testing"

func TestParseSample_CommaSeparated(t *testing.T) {
	tests := []struct {
		line string
		want Sample
	}{
		{"12.5,-3.2", Sample{12.5, -3.2}},
		{"12.5,", Sample{12.5, 0}},
		{"0,0", Sample{0, 0}},
		{"  7.1 , 2.0 ", Sample{7.1, 2.0}},
		// noisy tokens fall back to numeric extraction
		{"12.5uT,-3.2uT", Sample{12.5, -3.2}},
		{"a,b", Sample{0, 0}},
		// extra fields ignored
		{"1,2,3", Sample{1, 2}},
	}
	for _, tt := range tests {
		got, ok := ParseSample(tt.line)
		if !ok {
			t.Errorf("ParseSample(%q) discarded, want sample", tt.line)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseSample(%q) = %+v, want %+v", tt.line, got, tt.want)
		}
	}
}

func TestParseSample_KeyValue(t *testing.T) {
	tests := []struct {
		line string
		want Sample
	}{
		{"ch1:4.0,ch2:-1.0", Sample{4.0, -1.0}},
		{"CH1:4.0,CH2:-1.0", Sample{4.0, -1.0}},
		{"s2:-1.5,s1:3", Sample{3, -1.5}},
		// unmatched keys are ignored
		{"ch1:2.5,temp:40", Sample{2.5, 0}},
		{"b2:7", Sample{0, 7}},
	}
	for _, tt := range tests {
		got, ok := ParseSample(tt.line)
		if !ok {
			t.Errorf("ParseSample(%q) discarded, want sample", tt.line)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseSample(%q) = %+v, want %+v", tt.line, got, tt.want)
		}
	}
}

func TestParseSample_BareNumber(t *testing.T) {
	got, ok := ParseSample("  -42.25 ")
	if !ok {
		t.Fatal("bare number discarded")
	}
	if got != (Sample{-42.25, 0}) {
		t.Errorf("got %+v, want {-42.25 0}", got)
	}
}

func TestParseSample_Discards(t *testing.T) {
	for _, line := range []string{
		"",
		"   ",
		"bad!!",
		"status:ok", // key:value line with no channel key
		"\x01\x02",
	} {
		if s, ok := ParseSample(line); ok {
			t.Errorf("ParseSample(%q) = %+v, want discard", line, s)
		}
	}
}

func TestParseSample_ControlCharactersStripped(t *testing.T) {
	got, ok := ParseSample("12.5,-3.2\r")
	if !ok {
		t.Fatal("CR-terminated line discarded")
	}
	if got != (Sample{12.5, -3.2}) {
		t.Errorf("got %+v, want {12.5 -3.2}", got)
	}
}

func TestNumericToken(t *testing.T) {
	tests := []struct {
		tok  string
		want float64
	}{
		{"12.5", 12.5},
		{"-3.2uT", -3.2},
		{"+4", 4},
		{"", 0},
		{"junk", 0},
		{"--", 0},
	}
	for _, tt := range tests {
		if got := numericToken(tt.tok); got != tt.want {
			t.Errorf("numericToken(%q) = %v, want %v", tt.tok, got, tt.want)
		}
	}
}
