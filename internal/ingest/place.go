package ingest

import (
	"regexp"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const DefaultPlace = "Louisville,KY,US"

// Place is a "City,State,Country" query as accepted by the OpenWeatherMap
// q= parameter. State is optional.
type Place struct {
	City    string
	State   string
	Country string
}

var (
	commaSpace = regexp.MustCompile(`\s*,\s*`)
	titleCaser = cases.Title(language.English)

	usStates = map[string]bool{
		"AL": true, "AK": true, "AZ": true, "AR": true, "CA": true, "CO": true, "CT": true, "DE": true,
		"FL": true, "GA": true, "HI": true, "ID": true, "IL": true, "IN": true, "IA": true, "KS": true,
		"KY": true, "LA": true, "ME": true, "MD": true, "MA": true, "MI": true, "MN": true, "MS": true,
		"MO": true, "MT": true, "NE": true, "NV": true, "NH": true, "NJ": true, "NM": true, "NY": true,
		"NC": true, "ND": true, "OH": true, "OK": true, "OR": true, "PA": true, "RI": true, "SC": true,
		"SD": true, "TN": true, "TX": true, "UT": true, "VT": true, "VA": true, "WA": true, "WV": true,
		"WI": true, "WY": true, "DC": true,
	}
)

// ParsePlace normalizes free-form input such as "louisville, kentucky" into a
// Place. Empty input yields DefaultPlace. A lone city is assumed to be in
// the US, as is a city followed by a US state code or a state name.
func ParsePlace(s string) Place {
	normalized := commaSpace.ReplaceAllString(strings.TrimSpace(s), ",")
	parts := strings.Split(normalized, ",")
	if normalized == "" || parts[0] == "" {
		return ParsePlace(DefaultPlace)
	}

	city := normalizeCity(parts[0])
	switch len(parts) {
	case 1:
		return Place{City: city, Country: "US"}
	case 2:
		second := parts[1]
		if usStates[second] {
			return Place{City: city, State: second, Country: "US"}
		}
		if len(second) == 2 {
			return Place{City: city, Country: strings.ToUpper(second)}
		}
		return Place{City: city, State: second, Country: "US"}
	default:
		country := parts[2]
		if len(country) <= 3 && isAlpha(country) {
			country = strings.ToUpper(country)
		}
		return Place{City: city, State: parts[1], Country: country}
	}
}

func (p Place) String() string {
	if p.State != "" {
		return p.City + "," + p.State + "," + p.Country
	}
	return p.City + "," + p.Country
}

// normalizeCity title-cases names typed entirely in lower case and leaves
// anything with capitals alone, so "McAllen" survives.
func normalizeCity(city string) string {
	if city == strings.ToLower(city) {
		return titleCaser.String(city)
	}
	return city
}

func isAlpha(s string) bool {
	for _, r := range s {
		if (r < 'a' || r > 'z') && (r < 'A' || r > 'Z') {
			return false
		}
	}
	return s != ""
}
