package ingest

import (
	"context"
	"net/url"
)

const (
	sourceCurrent   = "current"
	currentEndpoint = "data/2.5/weather"
)

// FetchCurrent returns the raw current-conditions payload for place.
func (c *Client) FetchCurrent(ctx context.Context, place string) (*FetchResult, error) {
	params := url.Values{}
	params.Set("q", place)
	params.Set("units", "metric")
	return c.get(ctx, sourceCurrent, currentEndpoint, params)
}
