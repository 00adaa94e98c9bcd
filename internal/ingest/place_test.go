package ingest

import "testing"

func TestParsePlace(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"New York,NY,US", "New York,NY,US"},
		{"New York , NY , US", "New York,NY,US"},
		{"Louisville,KY", "Louisville,KY,US"},
		{"London,GB", "London,GB"},
		{"Paris,fr", "Paris,FR"},
		{"Tokyo, JP", "Tokyo,JP"},
		{"Paris, France", "Paris,France,US"},
		{"Chicago", "Chicago,US"},
		{"louisville", "Louisville,US"},
		{"McAllen,TX", "McAllen,TX,US"},
		{"Sydney,NSW,au", "Sydney,NSW,AU"},
		{"", DefaultPlace},
		{"   ", DefaultPlace},
		{",,,", DefaultPlace},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := ParsePlace(tt.input).String(); got != tt.want {
				t.Errorf("ParsePlace(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestParsePlaceFields(t *testing.T) {
	p := ParsePlace(DefaultPlace)
	if p.City != "Louisville" || p.State != "KY" || p.Country != "US" {
		t.Errorf("ParsePlace(DefaultPlace) = %+v", p)
	}
}
