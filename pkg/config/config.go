package config

import (
	"fmt"
	"time"

	"github.com/Tsahi-Elkayam/sphinx/pkg/models"
)

// Config represents the main application configuration
type Config struct {
	Prometheus PrometheusConfig `yaml:"prometheus" json:"prometheus"`
	Rules      RulesConfig      `yaml:"rules" json:"rules"`
	Plugins    PluginsConfig    `yaml:"plugins" json:"plugins"`
	Analysis   AnalysisConfig   `yaml:"analysis" json:"analysis"`
	Terraform  TerraformConfig  `yaml:"terraform" json:"terraform"`
	AWS        AWSConfig        `yaml:"aws" json:"aws"`
	LLM        LLMConfig        `yaml:"llm" json:"llm"`
	Storage    StorageConfig    `yaml:"storage" json:"storage"`
	Cache      CacheConfig      `yaml:"cache" json:"cache"`
	Server     ServerConfig     `yaml:"server" json:"server"`
	Output     OutputConfig     `yaml:"output" json:"output"`
	Logging    LoggingConfig    `yaml:"logging" json:"logging"`
}

// PrometheusConfig represents the metric backend configuration
type PrometheusConfig struct {
	URL  string        `yaml:"url" json:"url"`
	Step time.Duration `yaml:"step" json:"step"`
}

// RulesConfig locates the declarative rules document
type RulesConfig struct {
	File string `yaml:"file" json:"file"`
}

// PluginsConfig controls analyzer discovery
type PluginsConfig struct {
	Dir     string `yaml:"dir" json:"dir"`
	Builtin bool   `yaml:"builtin" json:"builtin"`
}

// AnalysisConfig tunes the analysis cycle
type AnalysisConfig struct {
	Window                    time.Duration `yaml:"window" json:"window"`
	IsolateEnrichmentFailures bool          `yaml:"isolate_enrichment_failures" json:"isolate_enrichment_failures"`
	// MockData serves fixture opportunities, history and workspaces instead of live data
	MockData                  bool          `yaml:"mock_data" json:"mock_data"`
}

// BackendConfig is the default remote-state backend
type BackendConfig struct {
	Bucket string `yaml:"bucket" json:"bucket"`
	Key    string `yaml:"key" json:"key"`
	Region string `yaml:"region" json:"region"`
}

// Descriptor converts the configured backend into the domain type
func (b BackendConfig) Descriptor() models.BackendDescriptor {
	return models.BackendDescriptor{Bucket: b.Bucket, Key: b.Key, Region: b.Region}
}

// TerraformConfig represents the IaC tool configuration
type TerraformConfig struct {
	Binary        string        `yaml:"binary" json:"binary"`
	TempDir       string        `yaml:"temp_dir" json:"temp_dir"`
	VerifyBackend bool          `yaml:"verify_backend" json:"verify_backend"`
	Backend       BackendConfig `yaml:"backend" json:"backend"`
}

// AWSConfig represents AWS access used by the inventory source and backend checks
type AWSConfig struct {
	Enabled         bool     `yaml:"enabled" json:"enabled"`
	Regions         []string `yaml:"regions" json:"regions"`
	Profile         string   `yaml:"profile" json:"profile"`
	Region          string   `yaml:"region" json:"region"`
	AccessKeyID     string   `yaml:"access_key_id" json:"access_key_id"`
	SecretAccessKey string   `yaml:"secret_access_key" json:"secret_access_key"`
	SessionToken    string   `yaml:"session_token" json:"session_token"`
	RoleARN         string   `yaml:"role_arn" json:"role_arn"`
	ExternalID      string   `yaml:"external_id" json:"external_id"`
	MFASerial       string   `yaml:"mfa_serial" json:"mfa_serial"`
	DurationSeconds int32    `yaml:"duration_seconds" json:"duration_seconds"`
}

// GetRegions returns the configured regions
func (c *AWSConfig) GetRegions() []string {
	if len(c.Regions) > 0 {
		return c.Regions
	}
	if c.Region != "" {
		return []string{c.Region}
	}
	return nil
}

// Validate validates the AWS configuration
func (c *AWSConfig) Validate() error {
	if !c.Enabled {
		return nil
	}

	if c.Region == "" && len(c.Regions) == 0 {
		return NewValidationError("aws.region", c.Region, "at least one region must be specified")
	}

	if c.Region == "" && len(c.Regions) > 0 {
		c.Region = c.Regions[0]
	}

	if c.Region != "" && len(c.Regions) == 0 {
		c.Regions = []string{c.Region}
	}

	if c.RoleARN != "" {
		if c.DurationSeconds <= 0 {
			c.DurationSeconds = 3600
		}
		if c.DurationSeconds < 900 || c.DurationSeconds > 43200 {
			return NewValidationError("aws.duration_seconds", c.DurationSeconds, "must be between 900 and 43200 seconds")
		}
	}

	return nil
}

// LLMConfig represents the solution enrichment configuration
type LLMConfig struct {
	Provider string        `yaml:"provider" json:"provider"` // gemini, static, none
	APIKey   string        `yaml:"api_key" json:"-"`
	Model    string        `yaml:"model" json:"model"`
	Endpoint string        `yaml:"endpoint" json:"endpoint"` // empty uses the Gemini API default
	Timeout  time.Duration `yaml:"timeout" json:"timeout"`
}

// StorageConfig represents history and workspace persistence
type StorageConfig struct {
	SQLitePath string `yaml:"sqlite_path" json:"sqlite_path"`
}

// CacheConfig represents the redis metric cache configuration
type CacheConfig struct {
	Enabled   bool          `yaml:"enabled" json:"enabled"`
	TTL       time.Duration `yaml:"ttl" json:"ttl"`
	Address   string        `yaml:"address" json:"address"`
	Password  string        `yaml:"password" json:"-"`
	DB        int           `yaml:"db" json:"db"`
	KeyPrefix string        `yaml:"key_prefix" json:"key_prefix"`
}

// ServerConfig represents the HTTP API configuration
type ServerConfig struct {
	Address      string        `yaml:"address" json:"address"`
	ReadTimeout  time.Duration `yaml:"read_timeout" json:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout" json:"write_timeout"`
}

// OutputConfig represents output configuration
type OutputConfig struct {
	Format   string `yaml:"format" json:"format"` // table, json, yaml
	Colors   bool   `yaml:"colors" json:"colors"`
	NoHeader bool   `yaml:"no_header" json:"no_header"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" json:"level"`   // trace, debug, info, warn, error, fatal, panic
	Format string `yaml:"format" json:"format"` // text, json
	Color  bool   `yaml:"color" json:"color"`
	File   string `yaml:"file" json:"file"`
}

// DefaultConfig returns a default configuration that works against a local Prometheus
func DefaultConfig() *Config {
	return &Config{
		Prometheus: PrometheusConfig{
			URL:  "http://localhost:9090",
			Step: 15 * time.Second,
		},
		Rules: RulesConfig{
			File: "rules.yml",
		},
		Plugins: PluginsConfig{
			Dir:     "plugins",
			Builtin: true,
		},
		Analysis: AnalysisConfig{
			Window:                    15 * time.Minute,
			IsolateEnrichmentFailures: false,
		},
		Terraform: TerraformConfig{
			Binary: "terraform",
		},
		AWS: AWSConfig{
			Enabled:         false,
			Region:          "us-east-1",
			DurationSeconds: 3600,
		},
		LLM: LLMConfig{
			Provider: "gemini",
			Model:    "gemini-2.5-flash",
			Timeout:  60 * time.Second,
		},
		Storage: StorageConfig{
			SQLitePath: "sphinx.db",
		},
		Cache: CacheConfig{
			Enabled:   false,
			TTL:       time.Minute,
			Address:   "localhost:6379",
			KeyPrefix: "sphinx:metrics",
		},
		Server: ServerConfig{
			Address:      ":8080",
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 5 * time.Minute,
		},
		Output: OutputConfig{
			Format: "table",
			Colors: true,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Color:  true,
		},
	}
}

// Validate validates the entire configuration
func (c *Config) Validate() error {
	if c.Prometheus.URL == "" && !c.AWS.Enabled {
		return NewValidationError("prometheus.url", c.Prometheus.URL, "a metric source is required: set prometheus.url or enable aws")
	}

	if err := c.AWS.Validate(); err != nil {
		return fmt.Errorf("invalid aws configuration: %w", err)
	}

	if c.Analysis.Window <= 0 {
		return NewValidationError("analysis.window", c.Analysis.Window, "must be positive")
	}

	if !contains([]string{"gemini", "static", "none"}, c.LLM.Provider) {
		return NewValidationError("llm.provider", c.LLM.Provider, "must be one of gemini, static, none")
	}

	if c.Cache.Enabled {
		if c.Cache.Address == "" {
			return NewValidationError("cache.address", c.Cache.Address, "required when the cache is enabled")
		}
		if c.Cache.TTL <= 0 {
			return NewValidationError("cache.ttl", c.Cache.TTL, "must be positive")
		}
	}

	if c.Storage.SQLitePath == "" {
		return NewValidationError("storage.sqlite_path", c.Storage.SQLitePath, "cannot be empty")
	}

	validFormats := []string{"table", "json", "yaml"}
	if !contains(validFormats, c.Output.Format) {
		return fmt.Errorf("output format must be one of: %v", validFormats)
	}

	validLevels := []string{"trace", "debug", "info", "warn", "error", "fatal", "panic"}
	if !contains(validLevels, c.Logging.Level) {
		return fmt.Errorf("logging level must be one of: %v", validLevels)
	}

	return nil
}

// SettingsBackend returns the default backend from settings
func (c *Config) SettingsBackend() models.BackendDescriptor {
	return c.Terraform.Backend.Descriptor()
}

// GetSummary returns a human-readable summary of the configuration
func (c *Config) GetSummary() map[string]interface{} {
	summary := make(map[string]interface{})

	summary["prometheus"] = map[string]interface{}{
		"url":  c.Prometheus.URL,
		"step": c.Prometheus.Step.String(),
	}

	summary["analysis"] = map[string]interface{}{
		"rules_file":  c.Rules.File,
		"plugins_dir": c.Plugins.Dir,
		"builtin":     c.Plugins.Builtin,
		"window":      c.Analysis.Window.String(),
		"mock_data":   c.Analysis.MockData,
	}

	summary["terraform"] = map[string]interface{}{
		"binary":          c.Terraform.Binary,
		"backend_enabled": c.SettingsBackend().IsComplete(),
	}

	summary["aws"] = map[string]interface{}{
		"enabled": c.AWS.Enabled,
		"regions": len(c.AWS.GetRegions()),
	}

	summary["llm"] = map[string]interface{}{
		"provider":   c.LLM.Provider,
		"model":      c.LLM.Model,
		"configured": c.LLM.APIKey != "",
	}

	summary["cache"] = map[string]interface{}{
		"enabled": c.Cache.Enabled,
		"ttl":     c.Cache.TTL.String(),
	}

	summary["logging"] = map[string]interface{}{
		"level":  c.Logging.Level,
		"format": c.Logging.Format,
	}

	return summary
}

func contains(values []string, value string) bool {
	for _, v := range values {
		if v == value {
			return true
		}
	}
	return false
}
