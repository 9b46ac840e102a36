package domain

import "testing"

func TestMaxUrgency(t *testing.T) {
	cases := []struct {
		a, b, want UrgencyLevel
	}{
		{UrgencyNone, UrgencyNone, UrgencyNone},
		{UrgencyNone, UrgencyLow, UrgencyLow},
		{UrgencyCritical, UrgencyNone, UrgencyCritical},
		{UrgencyMedium, UrgencyHigh, UrgencyHigh},
		{UrgencyCritical, UrgencyHigh, UrgencyCritical},
	}

	for _, tc := range cases {
		if got := MaxUrgency(tc.a, tc.b); got != tc.want {
			t.Errorf("MaxUrgency(%s, %s) = %s, want %s", tc.a, tc.b, got, tc.want)
		}
	}
}

// A keyword match must yield CRITICAL regardless of what the model later says.
func TestKeywordMatchIsNeverLowered(t *testing.T) {
	scanner := NewKeywordScanner([]string{"sangrando", "emergência"})

	keyword := scanner.Scan("sangrando muito há 2 horas")
	if keyword != UrgencyCritical {
		t.Fatalf("Scan() = %s, want CRITICAL", keyword)
	}

	for _, model := range []UrgencyLevel{UrgencyNone, UrgencyLow, UrgencyMedium, UrgencyHigh} {
		if got := MaxUrgency(keyword, model); got != UrgencyCritical {
			t.Errorf("MaxUrgency(CRITICAL, %s) = %s, want CRITICAL", model, got)
		}
	}
}

func TestKeywordScanner(t *testing.T) {
	scanner := NewKeywordScanner([]string{"emergência", "dor muito forte", "não consigo respirar"})

	cases := []struct {
		name string
		text string
		want UrgencyLevel
	}{
		{"plain match", "isso é uma emergência", UrgencyCritical},
		{"case insensitive", "EMERGÊNCIA agora", UrgencyCritical},
		{"diacritic insensitive", "isso e uma emergencia", UrgencyCritical},
		{"multi word phrase", "estou com dor muito forte no peito", UrgencyCritical},
		{"no match", "quanto custa a consulta", UrgencyNone},
		{"empty text", "", UrgencyNone},
	}

	for _, tc := range cases {
		if got := scanner.Scan(tc.text); got != tc.want {
			t.Errorf("%s: Scan(%q) = %s, want %s", tc.name, tc.text, got, tc.want)
		}
	}
}

func TestKeywordScannerEmptyList(t *testing.T) {
	scanner := NewKeywordScanner(nil)
	if got := scanner.Scan("sangrando"); got != UrgencyNone {
		t.Errorf("empty scanner Scan() = %s, want NONE", got)
	}
}

func TestParseUrgency(t *testing.T) {
	cases := []struct {
		raw  string
		want UrgencyLevel
	}{
		{"CRITICAL", UrgencyCritical},
		{"HIGH", UrgencyHigh},
		{"NONE", UrgencyNone},
		{"critical", UrgencyNone}, // taxonomy is uppercase; anything else degrades
		{"PANIC", UrgencyNone},
		{"", UrgencyNone},
	}

	for _, tc := range cases {
		if got := ParseUrgency(tc.raw); got != tc.want {
			t.Errorf("ParseUrgency(%q) = %s, want %s", tc.raw, got, tc.want)
		}
	}
}
