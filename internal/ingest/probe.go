package ingest

import (
	"database/sql"

	"github.com/tidwall/gjson"

	"github.com/lox/wxetl/internal/models"
)

// Candidate paths for location fields, tried in order. Upstream shapes
// disagree on where these live; adding a shape means adding a path here.
var (
	coordinatePaths = []string{"", "coord", "city.coord"}
	timezonePaths   = []string{"timezone", "timezone_offset", "city.timezone"}
	cityNamePaths   = []string{"city.name", "name"}
	countryPaths    = []string{"city.country", "sys.country", "country"}
	populationPaths = []string{"city.population", "population"}
)

// firstPresent returns the first path that exists in doc and is not null.
func firstPresent(doc gjson.Result, paths []string) (gjson.Result, bool) {
	for _, p := range paths {
		v := doc.Get(p)
		if v.Exists() && v.Type != gjson.Null {
			return v, true
		}
	}
	return gjson.Result{}, false
}

func joinPath(prefix, field string) string {
	if prefix == "" {
		return field
	}
	return prefix + "." + field
}

// probeCoordinates finds the first container holding both lat and lon.
func probeCoordinates(doc gjson.Result) (lat, lon sql.NullFloat64) {
	for _, prefix := range coordinatePaths {
		la := doc.Get(joinPath(prefix, "lat"))
		lo := doc.Get(joinPath(prefix, "lon"))
		if la.Type == gjson.Number && lo.Type == gjson.Number {
			return sql.NullFloat64{Float64: la.Float(), Valid: true}, sql.NullFloat64{Float64: lo.Float(), Valid: true}
		}
	}
	return sql.NullFloat64{}, sql.NullFloat64{}
}

func probeTimezone(doc gjson.Result) sql.NullString {
	if v, ok := firstPresent(doc, timezonePaths); ok {
		return sql.NullString{String: v.String(), Valid: v.String() != ""}
	}
	return sql.NullString{}
}

func probeString(doc gjson.Result, paths []string, fallback string) string {
	if v, ok := firstPresent(doc, paths); ok && v.String() != "" {
		return v.String()
	}
	return fallback
}

// ProbeLocation extracts the location a payload describes, falling back to
// the configured place for name and country.
func ProbeLocation(raw []byte, fallback Place) models.Location {
	doc := gjson.ParseBytes(raw)

	loc := models.Location{
		Name:        probeString(doc, cityNamePaths, fallback.City),
		CountryCode: probeString(doc, countryPaths, fallback.Country),
		Timezone:    probeTimezone(doc),
	}
	loc.Latitude, loc.Longitude = probeCoordinates(doc)
	if v, ok := firstPresent(doc, populationPaths); ok && v.Type == gjson.Number {
		loc.Population = sql.NullInt64{Int64: v.Int(), Valid: true}
	}
	return loc
}
