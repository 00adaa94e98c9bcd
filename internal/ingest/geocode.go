package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
)

const (
	sourceGeocoding = "geocoding"
	geocodeEndpoint = "geo/1.0/direct"
)

// Coordinates is the first geocoding match for a place.
type Coordinates struct {
	Name    string  `json:"name"`
	Country string  `json:"country"`
	State   string  `json:"state,omitempty"`
	Lat     float64 `json:"lat"`
	Lon     float64 `json:"lon"`
}

// ResolveCoordinates looks a place up with the direct geocoding API.
// An empty result set is ErrLocationNotFound; anything else that goes
// wrong is an *UpstreamError.
func (c *Client) ResolveCoordinates(ctx context.Context, place string) (Coordinates, error) {
	params := url.Values{}
	params.Set("q", place)
	params.Set("limit", "1")

	res, err := c.get(ctx, sourceGeocoding, geocodeEndpoint, params)
	if err != nil {
		return Coordinates{}, err
	}

	var matches []Coordinates
	if err := json.Unmarshal(res.Body, &matches); err != nil {
		return Coordinates{}, &UpstreamError{
			Source:     sourceGeocoding,
			Endpoint:   geocodeEndpoint,
			StatusCode: res.HTTPStatus,
			Err:        fmt.Errorf("%w: %v", ErrUnrecognizedPayload, err),
		}
	}
	if len(matches) == 0 {
		return Coordinates{}, fmt.Errorf("%w: %q", ErrLocationNotFound, place)
	}
	return matches[0], nil
}
