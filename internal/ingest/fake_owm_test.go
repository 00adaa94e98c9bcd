package ingest

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/lox/wxetl/internal/config"
)

const (
	geocodeOK = `[{"name": "Louisville", "lat": 38.2542, "lon": -85.7594, "country": "US", "state": "Kentucky"}]`

	currentOK = `{
		"coord": {"lon": -85.7594, "lat": 38.2542},
		"weather": [{"id": 800, "main": "Clear", "description": "clear sky"}],
		"main": {"temp": 23.5, "feels_like": 22.8, "pressure": 1015, "humidity": 45},
		"visibility": 10000,
		"wind": {"speed": 3.6, "deg": 270},
		"clouds": {"all": 0},
		"dt": 1719856800,
		"sys": {"country": "US"},
		"timezone": -14400,
		"name": "Louisville"
	}`

	oneCallOK = `{"lat": 38.2542, "lon": -85.7594, "timezone": "America/Kentucky/Louisville",
		"daily": [{"dt": 1719853200, "temp": {"day": 29, "min": 21, "max": 31}, "humidity": 50, "pop": 0.3}]}`

	dailyOK = `{"city": {"name": "Louisville", "country": "US", "coord": {"lat": 38.2542, "lon": -85.7594}, "timezone": -14400},
		"list": [{"dt": 1719853200, "temp": {"day": 28, "min": 20, "max": 30}, "speed": 2.5}]}`
)

// fiveDayOK has two days of 3-hour steps starting at now's UTC midnight so
// collected rows fall inside the accuracy window.
func fiveDayOK() string {
	start := time.Now().UTC().Truncate(24 * time.Hour).Unix()
	return fmt.Sprintf(`{"cod": "200", "list": [
		{"dt": %d, "main": {"temp": 20, "temp_min": 18, "temp_max": 20, "humidity": 60}, "weather": [{"main": "Clouds", "description": "few clouds"}]},
		{"dt": %d, "main": {"temp": 24, "temp_min": 23, "temp_max": 24, "humidity": 50}, "weather": [{"main": "Clear", "description": "clear sky"}]},
		{"dt": %d, "main": {"temp": 19, "humidity": 70}, "rain": {"3h": 2}}
	], "city": {"name": "Louisville", "country": "US", "coord": {"lat": 38.2542, "lon": -85.7594}, "timezone": 0}}`,
		start, start+3*3600, start+24*3600)
}

type fakeResponse struct {
	status int
	body   string
	delay  time.Duration
}

// fakeOWM serves canned OpenWeatherMap responses by path and counts calls.
type fakeOWM struct {
	srv *httptest.Server

	mu        sync.Mutex
	responses map[string]fakeResponse
	hits      map[string]int
	queries   map[string]url.Values
}

func newFakeOWM(t *testing.T) *fakeOWM {
	t.Helper()
	f := &fakeOWM{
		responses: map[string]fakeResponse{},
		hits:      map[string]int{},
		queries:   map[string]url.Values{},
	}
	f.srv = httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeOWM) serve(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/")

	f.mu.Lock()
	f.hits[path]++
	f.queries[path] = r.URL.Query()
	resp, ok := f.responses[path]
	f.mu.Unlock()

	if !ok {
		http.Error(w, `{"cod": 404, "message": "not found"}`, http.StatusNotFound)
		return
	}
	if resp.delay > 0 {
		select {
		case <-time.After(resp.delay):
		case <-r.Context().Done():
			return
		}
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(resp.status)
	_, _ = w.Write([]byte(resp.body))
}

func (f *fakeOWM) respond(path string, status int, body string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses[path] = fakeResponse{status: status, body: body}
}

func (f *fakeOWM) respondSlowly(path string, delay time.Duration, body string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses[path] = fakeResponse{status: http.StatusOK, body: body, delay: delay}
}

func (f *fakeOWM) calls(path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.hits[path]
}

func (f *fakeOWM) query(path string) url.Values {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.queries[path]
}

func (f *fakeOWM) config() config.Config {
	return config.Config{
		APIKey:         "test-key",
		BaseURL:        f.srv.URL,
		DefaultPlace:   DefaultPlace,
		Timezone:       "UTC",
		RequestTimeout: 2 * time.Second,
		ForecastDays:   5,
	}
}
