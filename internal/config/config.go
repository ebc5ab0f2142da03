package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultBaseURL      = "https://utilitybilling.lawrenceks.gov"
	DefaultRequestDelay = 1.0
	DefaultTimeout      = 30
	DefaultOutputDir    = "./data"
)

// Config holds the application configuration
type Config struct {
	Username            string  `yaml:"username,omitempty"`
	Password            string  `yaml:"password,omitempty"`
	BaseURL             string  `yaml:"base_url,omitempty"`
	RequestDelaySeconds float64 `yaml:"request_delay_seconds,omitempty"`
	TimeoutSeconds      int     `yaml:"timeout_seconds,omitempty"`
	OutputDirectory     string  `yaml:"output_directory,omitempty"`

	HomeAssistant HAConfig   `yaml:"home_assistant,omitempty"`
	MQTT          MQTTConfig `yaml:"mqtt,omitempty"`
}

// HAConfig holds Home Assistant HTTP API configuration
type HAConfig struct {
	Enabled  bool   `yaml:"enabled"`
	URL      string `yaml:"url"`       // e.g., "http://homeassistant.local:8123"
	Token    string `yaml:"token"`     // Long-lived access token
	EntityID string `yaml:"entity_id"` // e.g., "sensor.water_meter_usage"
}

// MQTTConfig holds MQTT broker configuration for MQTT-sensor setups
type MQTTConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Broker      string `yaml:"broker"` // host:port
	Username    string `yaml:"username,omitempty"`
	Password    string `yaml:"password,omitempty"`
	TopicPrefix string `yaml:"topic_prefix,omitempty"`
}

// Load reads the config file and applies environment overrides for
// credentials (UTILITY_USERNAME / UTILITY_PASSWORD).
func Load(configPath string) (*Config, error) {
	var cfg Config

	data, err := os.ReadFile(configPath)
	switch {
	case os.IsNotExist(err):
		// Empty config plus env vars is a valid setup
	case err != nil:
		return nil, fmt.Errorf("reading config file: %w", err)
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if v := os.Getenv("UTILITY_USERNAME"); v != "" {
		cfg.Username = v
	}
	if v := os.Getenv("UTILITY_PASSWORD"); v != "" {
		cfg.Password = v
	}
	if v := os.Getenv("BASE_URL"); v != "" {
		cfg.BaseURL = v
	}

	return &cfg, nil
}

// Save writes the config to file
func Save(configPath string, cfg *Config) error {
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	return nil
}

// DefaultConfigPath returns the default config file path (local directory)
func DefaultConfigPath() string {
	return "config.yaml"
}

// GetBaseURL returns the portal base URL with the default applied
func (c *Config) GetBaseURL() string {
	if c.BaseURL == "" {
		return DefaultBaseURL
	}
	return c.BaseURL
}

// GetRequestDelay returns the fixed inter-request delay
func (c *Config) GetRequestDelay() time.Duration {
	d := c.RequestDelaySeconds
	if d <= 0 {
		d = DefaultRequestDelay
	}
	return time.Duration(d * float64(time.Second))
}

// GetTimeout returns the per-request timeout ceiling
func (c *Config) GetTimeout() time.Duration {
	t := c.TimeoutSeconds
	if t <= 0 {
		t = DefaultTimeout
	}
	return time.Duration(t) * time.Second
}

// GetOutputDirectory returns where CSV exports are written
func (c *Config) GetOutputDirectory() string {
	if c.OutputDirectory == "" {
		return DefaultOutputDir
	}
	return c.OutputDirectory
}
