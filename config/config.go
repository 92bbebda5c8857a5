// Package config reads the HEMS controller's JSON configuration file: a
// single encoding/json-decoded struct for structural configuration, with
// secrets (API tokens, bus credentials, TSDB credentials) kept out of the
// file and instead named by an env-var-name field that main.go resolves
// with os.LookupEnv.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// CoreAPIConfig configures the HTTP client used to talk to the building's
// Core API.
type CoreAPIConfig struct {
	BaseURL string `json:"baseUrl"`
	// TokenEnvVar names the environment variable holding the bearer
	// token, if the Core API requires authentication.
	TokenEnvVar string `json:"tokenEnvVar"`
}

// BusConfig configures the kafka-backed message bus.
type BusConfig struct {
	Brokers []string `json:"brokers"`
	GroupID string   `json:"groupId"`
}

// TSDBConfig configures the local sqlite buffer and the remote
// Postgrest-fronted upload target.
type TSDBConfig struct {
	LocalPath string `json:"localPath"`

	RemoteURL    string `json:"remoteUrl"`
	RemoteSchema string `json:"remoteSchema"`
	RemoteTable  string `json:"remoteTable"`
	// AnonKeyEnvVar and UserKeyEnvVar name the environment variables
	// holding the remote store's credentials.
	AnonKeyEnvVar string `json:"anonKeyEnvVar"`
	UserKeyEnvVar string `json:"userKeyEnvVar"`
}

// ThermalModelConfig configures the thermal-model learner's persisted
// artifact and refresh cadence.
type ThermalModelConfig struct {
	Path        string `json:"path"`
	TTLHours    int    `json:"ttlHours"`
	Zones       int    `json:"zones"`
	Heaters     int    `json:"heaters"`
	WeatherDims int    `json:"weatherDims"`
}

// RTLConfig configures the Real-Time Limiter's timing parameters.
type RTLConfig struct {
	TickPeriodSecs         float64 `json:"tickPeriodSecs"`
	SafetyMarginKW         float64 `json:"safetyMarginKw"`
	AntiReboundDefaultSecs float64 `json:"antiReboundDefaultSecs"`
	AntiReboundBatterySecs float64 `json:"antiReboundBatterySecs"`
}

// TickPeriod returns the RTL tick period as a time.Duration, or zero if
// unset (letting internal/rtl apply its own default).
func (c RTLConfig) TickPeriod() time.Duration {
	return secondsToDuration(c.TickPeriodSecs)
}

// AntiReboundDefault returns the default anti-rebound window.
func (c RTLConfig) AntiReboundDefault() time.Duration {
	return secondsToDuration(c.AntiReboundDefaultSecs)
}

// AntiReboundBattery returns the battery-specific anti-rebound window.
func (c RTLConfig) AntiReboundBattery() time.Duration {
	return secondsToDuration(c.AntiReboundBatterySecs)
}

// SafetyMarginW returns the safety margin in watts.
func (c RTLConfig) SafetyMarginW() float64 {
	return c.SafetyMarginKW * 1000
}

func secondsToDuration(s float64) time.Duration {
	if s <= 0 {
		return 0
	}
	return time.Duration(s * float64(time.Second))
}

// Config is the top-level JSON configuration document.
type Config struct {
	LogLevel    string `json:"logLevel"`
	MPCPriority int    `json:"mpcPriority"`

	CoreAPI      CoreAPIConfig      `json:"coreApi"`
	Bus          BusConfig          `json:"bus"`
	TSDB         TSDBConfig         `json:"tsdb"`
	ThermalModel ThermalModelConfig `json:"thermalModel"`
	RTL          RTLConfig          `json:"rtl"`
}

// Read loads and decodes the JSON config file at path.
func Read(path string) (Config, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(content, &cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.LogLevel == "" {
		cfg.LogLevel = "INFO"
	}
	if cfg.ThermalModel.TTLHours <= 0 {
		cfg.ThermalModel.TTLHours = 24
	}

	return cfg, nil
}

// ThermalModelTTL returns the thermal model's freshness TTL as a
// time.Duration.
func (c Config) ThermalModelTTL() time.Duration {
	return time.Duration(c.ThermalModel.TTLHours) * time.Hour
}
