package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Config is the runtime configuration shared by every command. Fields are
// populated by kong from flags, the environment, or a .env file.
type Config struct {
	APIKey       string `name:"api-key" env:"OPENWEATHERMAP_API_KEY" help:"OpenWeatherMap API key."`
	BaseURL      string `name:"base-url" env:"OPENWEATHERMAP_BASE_URL" default:"https://api.openweathermap.org" help:"OpenWeatherMap API base URL."`
	DefaultPlace string `name:"city" env:"WEATHER_CITY" default:"Louisville,KY,US" help:"Place to collect, as City,State,Country."`
	Timezone     string `name:"tz" env:"WEATHER_TZ" default:"America/Kentucky/Louisville" help:"Timezone used for daily reports."`

	CollectionInterval time.Duration `name:"interval" env:"COLLECTION_INTERVAL" default:"1h" help:"Time between collection cycles."`
	RequestTimeout     time.Duration `name:"request-timeout" env:"REQUEST_TIMEOUT" default:"10s" help:"Timeout for each upstream call."`
	ForecastDays       int           `name:"forecast-days" env:"FORECAST_DAYS" default:"5" help:"Days of forecast to request."`

	EnableOneCallV3     bool `name:"onecall-v3" env:"USE_ONECALL_V3" help:"Try the OneCall 3.0 forecast."`
	EnableOneCallV25    bool `name:"onecall-v25" env:"USE_ONECALL_V25" help:"Try the legacy OneCall 2.5 forecast."`
	EnableDailyForecast bool `name:"daily-forecast" env:"USE_DAILY_FORECAST" help:"Try the 16 day daily forecast."`

	DBPath          string        `name:"db" env:"DB_PATH" default:"data/wxetl.db" help:"Path to SQLite database."`
	DBMaxAttempts   int           `name:"db-max-attempts" env:"DB_MAX_ATTEMPTS" default:"5" help:"Attempts for transient database failures."`
	DBRetryInterval time.Duration `name:"db-retry-interval" env:"DB_RETRY_INTERVAL" default:"200ms" help:"Initial backoff for database retries."`

	LogLevel    string `name:"log-level" env:"LOG_LEVEL" default:"info" enum:"debug,info,warn,error" help:"Log level."`
	OpenAIKey   string `name:"openai-api-key" env:"OPENAI_API_KEY" help:"OpenAI API key for questions."`
	OpenAIModel string `name:"openai-model" env:"OPENAI_MODEL" default:"gpt-4o-mini" help:"Chat model for questions."`
	Port        string `name:"port" env:"PORT" default:"8080" help:"HTTP port for the ops server."`
}

var ErrMissingAPIKey = errors.New("OPENWEATHERMAP_API_KEY is required")

// Validate checks the settings needed to talk to the weather API.
func (c Config) Validate() error {
	if strings.TrimSpace(c.APIKey) == "" {
		return ErrMissingAPIKey
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("request timeout must be positive, got %s", c.RequestTimeout)
	}
	if c.CollectionInterval < time.Minute {
		return fmt.Errorf("collection interval must be at least 1m, got %s", c.CollectionInterval)
	}
	if c.ForecastDays < 1 {
		return fmt.Errorf("forecast days must be at least 1, got %d", c.ForecastDays)
	}
	return nil
}

// Location loads the report timezone, falling back to UTC.
func (c Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
