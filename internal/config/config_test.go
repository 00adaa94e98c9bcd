package config

import (
	"errors"
	"testing"
	"time"
)

func validConfig() Config {
	return Config{
		APIKey:             "key",
		DefaultPlace:       "Louisville,KY,US",
		Timezone:           "America/Kentucky/Louisville",
		CollectionInterval: time.Hour,
		RequestTimeout:     10 * time.Second,
		ForecastDays:       5,
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "missing key", mutate: func(c *Config) { c.APIKey = "  " }, wantErr: true},
		{name: "zero timeout", mutate: func(c *Config) { c.RequestTimeout = 0 }, wantErr: true},
		{name: "interval too short", mutate: func(c *Config) { c.CollectionInterval = time.Second }, wantErr: true},
		{name: "no days", mutate: func(c *Config) { c.ForecastDays = 0 }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := validConfig()
			tt.mutate(&c)
			err := c.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}

	c := validConfig()
	c.APIKey = ""
	if err := c.Validate(); !errors.Is(err, ErrMissingAPIKey) {
		t.Errorf("Validate() = %v, want ErrMissingAPIKey", err)
	}
}

func TestLocationFallsBackToUTC(t *testing.T) {
	c := validConfig()
	c.Timezone = "Not/AZone"
	if got := c.Location(); got != time.UTC {
		t.Errorf("Location() = %v, want UTC", got)
	}
}
