package ask

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/openai/openai-go/v3/option"

	"github.com/lox/wxetl/internal/models"
)

type fakeData struct {
	locations []models.Location
	obs       *models.CurrentObservation
	report    *models.DailyReport
	forecasts []models.ForecastEntry
}

func (f *fakeData) GetLocation(_ context.Context, id int64) (*models.Location, error) {
	for i := range f.locations {
		if f.locations[i].ID == id {
			return &f.locations[i], nil
		}
	}
	return nil, nil
}

func (f *fakeData) ListLocations(context.Context) ([]models.Location, error) {
	return f.locations, nil
}

func (f *fakeData) GetLatestObservation(context.Context, int64) (*models.CurrentObservation, error) {
	return f.obs, nil
}

func (f *fakeData) GetLatestForecasts(context.Context, int64) ([]models.ForecastEntry, error) {
	return f.forecasts, nil
}

func (f *fakeData) GetDailyReport(context.Context, int64, time.Time) (*models.DailyReport, error) {
	return f.report, nil
}

var now = time.Date(2024, 7, 1, 15, 0, 0, 0, time.UTC)

func sampleData() *fakeData {
	return &fakeData{
		locations: []models.Location{{ID: 7, Name: "Louisville", CountryCode: "US"}},
		obs: &models.CurrentObservation{
			LocationID:    7,
			ObservedAt:    now.Add(-10 * time.Minute),
			TemperatureC:  sql.NullFloat64{Float64: 31.2, Valid: true},
			HumidityPct:   sql.NullInt64{Int64: 62, Valid: true},
			HeatIndexC:    sql.NullFloat64{Float64: 35.4, Valid: true},
			ConditionText: sql.NullString{String: "few clouds", Valid: true},
			Flags:         `["high_wind"]`,
		},
		report: &models.DailyReport{Summary: "Weather summary for July 01, 2024: Clouds."},
		forecasts: []models.ForecastEntry{
			{
				Source:                      "forecast_5day",
				ValidAt:                     now.Add(24 * time.Hour),
				TempMinC:                    sql.NullFloat64{Float64: 21, Valid: true},
				TempMaxC:                    sql.NullFloat64{Float64: 33, Valid: true},
				ConditionText:               sql.NullString{String: "light rain", Valid: true},
				PrecipitationProbabilityPct: sql.NullFloat64{Float64: 40, Valid: true},
			},
		},
	}
}

func TestBuildContext(t *testing.T) {
	data := sampleData()
	got, err := BuildContext(t.Context(), data, &data.locations[0], now)
	if err != nil {
		t.Fatalf("BuildContext: %v", err)
	}

	for _, want := range []string{
		"Location: Louisville, US",
		"- temperature: 31.2°C",
		"- heat index: 35.4°C",
		"- humidity: 62.0%",
		"- condition: few clouds",
		`- flags: ["high_wind"]`,
		"Today so far: Weather summary for July 01, 2024",
		"Forecast (forecast_5day):",
		"- Tue 2 Jul: light rain, 21.0 to 33.0°C, 40% chance of rain",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("context missing %q:\n%s", want, got)
		}
	}
	if strings.Contains(got, "wind chill") {
		t.Error("null wind chill should be omitted")
	}
}

func TestBuildContextNoData(t *testing.T) {
	data := &fakeData{locations: []models.Location{{ID: 1, Name: "Nowhere"}}}
	if _, err := BuildContext(t.Context(), data, &data.locations[0], now); !errors.Is(err, ErrNoData) {
		t.Errorf("err = %v, want ErrNoData", err)
	}
}

// chatServer answers every chat completion with reply and records requests.
type chatServer struct {
	mu       sync.Mutex
	requests []map[string]any
}

func (c *chatServer) handler(reply string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			http.NotFound(w, r)
			return
		}
		body, _ := io.ReadAll(r.Body)
		var req map[string]any
		_ = json.Unmarshal(body, &req)
		c.mu.Lock()
		c.requests = append(c.requests, req)
		c.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":      "chatcmpl-test",
			"object":  "chat.completion",
			"created": 1719846000,
			"model":   "gpt-4o-mini",
			"choices": []map[string]any{{
				"index":         0,
				"finish_reason": "stop",
				"message":       map[string]any{"role": "assistant", "content": reply},
			}},
		})
	}
}

func newTestAssistant(t *testing.T, data DataSource, h http.Handler) *Assistant {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	a, err := New("test-key", "", data, time.UTC, nil,
		option.WithBaseURL(srv.URL+"/"),
		option.WithMaxRetries(0))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	a.now = func() time.Time { return now }
	return a
}

func TestAsk(t *testing.T) {
	chat := &chatServer{}
	a := newTestAssistant(t, sampleData(), chat.handler("  It is 31.2°C and feels like 35.4°C.  "))

	answer, err := a.Ask(t.Context(), "  How hot is it?  ", 0)
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if answer.Answer != "It is 31.2°C and feels like 35.4°C." {
		t.Errorf("answer = %q", answer.Answer)
	}
	if answer.Question != "How hot is it?" || answer.LocationID != 7 || answer.Model != DefaultModel {
		t.Errorf("answer = %+v", answer)
	}

	if len(chat.requests) != 1 {
		t.Fatalf("requests = %d, want 1", len(chat.requests))
	}
	req := chat.requests[0]
	if req["model"] != DefaultModel {
		t.Errorf("model = %v", req["model"])
	}
	messages, _ := req["messages"].([]any)
	if len(messages) != 2 {
		t.Fatalf("messages = %d, want 2", len(messages))
	}
	user, _ := messages[1].(map[string]any)
	content, _ := user["content"].(string)
	if !strings.Contains(content, "Question: How hot is it?") || !strings.Contains(content, "temperature: 31.2°C") {
		t.Errorf("user message = %q", content)
	}
}

func TestAskErrors(t *testing.T) {
	chat := &chatServer{}

	t.Run("empty question", func(t *testing.T) {
		a := newTestAssistant(t, sampleData(), chat.handler("x"))
		if _, err := a.Ask(t.Context(), "   ", 0); !errors.Is(err, ErrEmptyQuestion) {
			t.Errorf("err = %v, want ErrEmptyQuestion", err)
		}
	})

	t.Run("unknown location", func(t *testing.T) {
		a := newTestAssistant(t, sampleData(), chat.handler("x"))
		if _, err := a.Ask(t.Context(), "rain?", 99); !errors.Is(err, ErrUnknownLocation) {
			t.Errorf("err = %v, want ErrUnknownLocation", err)
		}
	})

	t.Run("nothing stored", func(t *testing.T) {
		a := newTestAssistant(t, &fakeData{}, chat.handler("x"))
		if _, err := a.Ask(t.Context(), "rain?", 0); !errors.Is(err, ErrNoData) {
			t.Errorf("err = %v, want ErrNoData", err)
		}
	})

	t.Run("upstream failure", func(t *testing.T) {
		a := newTestAssistant(t, sampleData(), http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, `{"error": {"message": "rate limited"}}`, http.StatusTooManyRequests)
		}))
		if _, err := a.Ask(t.Context(), "rain?", 0); err == nil {
			t.Error("expected error")
		}
	})

	if len(chat.requests) != 0 {
		t.Errorf("model called %d times for invalid requests", len(chat.requests))
	}
}

func TestNewRequiresKey(t *testing.T) {
	if _, err := New(" ", "", &fakeData{}, nil, nil); !errors.Is(err, ErrNoAPIKey) {
		t.Errorf("err = %v, want ErrNoAPIKey", err)
	}
}
