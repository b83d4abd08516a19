package config

import (
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/samber/oops"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Log      Log      `yaml:"log"`
	Server   Server   `yaml:"server"`
	OpenAI   OpenAI   `yaml:"openai"`
	Pipeline Pipeline `yaml:"pipeline"`
	Weather  Weather  `yaml:"weather"`
	Geocode  Geocode  `yaml:"geocode"`
	Memory   Memory   `yaml:"memory"`
	Reports  Reports  `yaml:"reports"`
	MCP      []MCP    `yaml:"mcp"`
}

type OpenAI struct {
	// Worker model runs the structured pipeline stages (location, data, risk)
	Worker ModelConfig `yaml:"worker" validate:"required"`
	// Writer model produces the final user-facing report
	Writer ModelConfig `yaml:"writer" validate:"required"`
}

type ModelConfig struct {
	// OpenAI base url
	BaseURL string `yaml:"base_url" example:"https://openrouter.ai/api/v1" validate:"required"`
	// OpenAI token
	Token string `yaml:"token" example:"sk-proj-abc123456789DEF789ghi012JKL345mno678PQR901stu234VWX" validate:"required"`
	// OpenAI model
	Model string `yaml:"model" example:"google/gemini-2.5-flash" validate:"required"`
}

type Pipeline struct {
	// Max attempts of a stage before its retry loop gives up
	MaxIterations int `yaml:"max_iterations" example:"2" validate:"min=1,max=10"`
	// Location used when the user never names one
	DefaultLocation string `yaml:"default_location" example:"Ciudad de México, México" validate:"required"`
}

type Weather struct {
	// Open-Meteo forecast endpoint
	BaseURL string `yaml:"base_url" validate:"required,url"`
}

type Geocode struct {
	// Open-Meteo geocoding endpoint
	BaseURL string `yaml:"base_url" validate:"required,url"`
	// Max candidates requested per query
	MaxResults int `yaml:"max_results" validate:"min=1,max=10"`
}

type Memory struct {
	// Path of the persisted memory bank file
	Path string `yaml:"path" validate:"required"`
}

type Reports struct {
	// Directory exported reports are written to
	Dir string `yaml:"dir" validate:"required"`
}

// MCP describes an external stdio toolserver whose tools are added
// to the context tool registry.
type MCP struct {
	Name    string   `yaml:"name" validate:"required"`
	Command string   `yaml:"command" validate:"required"`
	Args    []string `yaml:"args"`
}

type Server struct {
	// HTTP listen address
	Listen string `yaml:"listen" example:":8080"`
}

type Log struct {
	// Telegram logging config
	Telegram TelegramLog `yaml:"telegram"`
}

type TelegramLog struct {
	// Chat bot token, obtain it via BotFather
	Token string `yaml:"token" example:"1234567890:ABCdefGHIjklMNopQRstUVwxyZ-123456789"`
	// Chat ID to send messages to
	ChatID string `yaml:"chat_id" example:"1001234567890"`
}

func Load() (*Config, error) {
	var result Config

	data, err := os.ReadFile("config.yaml")
	if err != nil {
		return nil, oops.Errorf("failed to read config file: %w", err)
	}

	if err = yaml.Unmarshal(data, &result); err != nil {
		return nil, oops.Errorf("failed to parse YAML config: %w", err)
	}

	result.applyDefaults()

	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := validate.Struct(result); err != nil {
		return nil, oops.Errorf("failed to validate config: %w", err)
	}

	return &result, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Listen == "" {
		c.Server.Listen = ":8080"
	}
	if c.Pipeline.MaxIterations == 0 {
		c.Pipeline.MaxIterations = 2
	}
	if c.Pipeline.DefaultLocation == "" {
		c.Pipeline.DefaultLocation = "Ciudad de México, México"
	}
	if c.Weather.BaseURL == "" {
		c.Weather.BaseURL = "https://api.open-meteo.com/v1/forecast"
	}
	if c.Geocode.BaseURL == "" {
		c.Geocode.BaseURL = "https://geocoding-api.open-meteo.com/v1/search"
	}
	if c.Geocode.MaxResults == 0 {
		c.Geocode.MaxResults = 3
	}
	if c.Memory.Path == "" {
		c.Memory.Path = "data/memory.json"
	}
	if c.Reports.Dir == "" {
		c.Reports.Dir = "reports"
	}
}
