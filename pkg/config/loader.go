package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// sections merged from user configuration into the defaults
var sections = []string{
	"prometheus", "rules", "plugins", "analysis", "terraform", "aws",
	"llm", "storage", "cache", "server", "output", "logging",
}

// envBindings maps configuration keys to the environment variables that set them.
// The unprefixed names are kept for existing deployments.
var envBindings = map[string][]string{
	"prometheus.url":                       {"SPHINX_PROMETHEUS_URL", "PROMETHEUS_URL"},
	"prometheus.step":                      {"SPHINX_PROMETHEUS_STEP"},
	"rules.file":                           {"SPHINX_RULES_FILE", "RULES_FILE_PATH"},
	"plugins.dir":                          {"SPHINX_PLUGINS_DIR", "PLUGINS_DIR"},
	"plugins.builtin":                      {"SPHINX_PLUGINS_BUILTIN"},
	"analysis.window":                      {"SPHINX_ANALYSIS_WINDOW"},
	"analysis.isolate_enrichment_failures": {"SPHINX_ANALYSIS_ISOLATE_ENRICHMENT_FAILURES"},
	"analysis.mock_data":                   {"SPHINX_MOCK_DATA", "MOCK_DATA"},
	"terraform.binary":                     {"SPHINX_TERRAFORM_BINARY"},
	"terraform.temp_dir":                   {"SPHINX_TERRAFORM_TEMP_DIR"},
	"terraform.verify_backend":             {"SPHINX_TERRAFORM_VERIFY_BACKEND"},
	"terraform.backend.bucket":             {"SPHINX_TF_BACKEND_S3_BUCKET", "TF_BACKEND_S3_BUCKET"},
	"terraform.backend.key":                {"SPHINX_TF_BACKEND_S3_KEY", "TF_BACKEND_S3_KEY"},
	"terraform.backend.region":             {"SPHINX_TF_BACKEND_S3_REGION", "TF_BACKEND_S3_REGION"},
	"aws.enabled":                          {"SPHINX_AWS_ENABLED"},
	"aws.profile":                          {"SPHINX_AWS_PROFILE", "AWS_PROFILE"},
	"aws.region":                           {"SPHINX_AWS_REGION", "AWS_REGION", "AWS_DEFAULT_REGION"},
	"aws.access_key_id":                    {"SPHINX_AWS_ACCESS_KEY_ID", "AWS_ACCESS_KEY_ID"},
	"aws.secret_access_key":                {"SPHINX_AWS_SECRET_ACCESS_KEY", "AWS_SECRET_ACCESS_KEY"},
	"aws.session_token":                    {"SPHINX_AWS_SESSION_TOKEN", "AWS_SESSION_TOKEN"},
	"aws.role_arn":                         {"SPHINX_AWS_ROLE_ARN"},
	"aws.external_id":                      {"SPHINX_AWS_EXTERNAL_ID"},
	"aws.mfa_serial":                       {"SPHINX_AWS_MFA_SERIAL"},
	"aws.duration_seconds":                 {"SPHINX_AWS_DURATION_SECONDS"},
	"llm.provider":                         {"SPHINX_LLM_PROVIDER"},
	"llm.api_key":                          {"SPHINX_LLM_API_KEY", "GOOGLE_API_KEY"},
	"llm.model":                            {"SPHINX_LLM_MODEL"},
	"llm.endpoint":                         {"SPHINX_LLM_ENDPOINT"},
	"llm.timeout":                          {"SPHINX_LLM_TIMEOUT"},
	"storage.sqlite_path":                  {"SPHINX_SQLITE_DB_PATH", "SQLITE_DB_PATH"},
	"cache.enabled":                        {"SPHINX_CACHE_ENABLED"},
	"cache.ttl":                            {"SPHINX_CACHE_TTL"},
	"cache.address":                        {"SPHINX_CACHE_ADDRESS", "REDIS_ADDR"},
	"cache.password":                       {"SPHINX_CACHE_PASSWORD", "REDIS_PASSWORD"},
	"cache.db":                             {"SPHINX_CACHE_DB"},
	"cache.key_prefix":                     {"SPHINX_CACHE_KEY_PREFIX"},
	"server.address":                       {"SPHINX_SERVER_ADDRESS"},
	"server.read_timeout":                  {"SPHINX_SERVER_READ_TIMEOUT"},
	"server.write_timeout":                 {"SPHINX_SERVER_WRITE_TIMEOUT"},
	"output.format":                        {"SPHINX_OUTPUT_FORMAT"},
	"output.colors":                        {"SPHINX_OUTPUT_COLORS"},
	"output.no_header":                     {"SPHINX_OUTPUT_NO_HEADER"},
	"logging.level":                        {"SPHINX_LOG_LEVEL"},
	"logging.format":                       {"SPHINX_LOG_FORMAT"},
	"logging.color":                        {"SPHINX_LOG_COLOR"},
	"logging.file":                         {"SPHINX_LOG_FILE"},
}

// Loader handles configuration loading from various sources
type Loader struct {
	configPaths []string
	configName  string
	configType  string
	logger      *logrus.Logger
}

// NewLoader creates a new configuration loader
func NewLoader() *Loader {
	homeDir, _ := os.UserHomeDir()
	return &Loader{
		configPaths: []string{
			".",
			homeDir,
			"/etc/sphinx",
		},
		configName: ".sphinx",
		configType: "yaml",
		logger:     logrus.StandardLogger(),
	}
}

// WithLogger sets the logger used to report where configuration came from
func (l *Loader) WithLogger(logger *logrus.Logger) *Loader {
	if logger != nil {
		l.logger = logger
	}
	return l
}

// LoadConfig loads configuration with proper merging of defaults and user config
func (l *Loader) LoadConfig(configFile string) (*Config, error) {
	config := DefaultConfig()

	v := viper.New()
	v.SetConfigType(l.configType)

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName(l.configName)
		for _, path := range l.configPaths {
			v.AddConfigPath(path)
		}
	}

	v.SetEnvPrefix("SPHINX")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if err := l.bindEnvironmentVariables(v); err != nil {
		return nil, err
	}

	configFileExists := false
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		l.logger.Debug("No config file found, using built-in defaults")
	} else {
		configFileExists = true
		l.logger.Debugf("Using config file: %s", v.ConfigFileUsed())
	}

	if configFileExists || l.hasRelevantEnvVars() {
		if err := l.mergeWithDefaults(v, config); err != nil {
			return nil, fmt.Errorf("failed to merge configuration: %w", err)
		}
		if l.hasRelevantEnvVars() {
			l.logger.Debug("Environment variable overrides applied")
		}
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}

// mergeWithDefaults merges user configuration with defaults, preserving defaults unless explicitly overridden
func (l *Loader) mergeWithDefaults(v *viper.Viper, defaultConfig *Config) error {
	userConfig := v.AllSettings()

	targets := map[string]interface{}{
		"prometheus": &defaultConfig.Prometheus,
		"rules":      &defaultConfig.Rules,
		"plugins":    &defaultConfig.Plugins,
		"analysis":   &defaultConfig.Analysis,
		"terraform":  &defaultConfig.Terraform,
		"aws":        &defaultConfig.AWS,
		"llm":        &defaultConfig.LLM,
		"storage":    &defaultConfig.Storage,
		"cache":      &defaultConfig.Cache,
		"server":     &defaultConfig.Server,
		"output":     &defaultConfig.Output,
		"logging":    &defaultConfig.Logging,
	}

	for _, section := range sections {
		data, exists := userConfig[section]
		if !exists {
			continue
		}
		if err := l.mergeStruct(normalizeScalars(data), targets[section]); err != nil {
			return fmt.Errorf("failed to merge %s config: %w", section, err)
		}
	}

	return nil
}

// mergeStruct merges data into a target struct, preserving existing values unless explicitly overridden
func (l *Loader) mergeStruct(data interface{}, target interface{}) error {
	dataBytes, err := yaml.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal data: %w", err)
	}

	return yaml.Unmarshal(dataBytes, target)
}

// hasRelevantEnvVars checks if any bound environment variable is set
func (l *Loader) hasRelevantEnvVars() bool {
	return len(l.setEnvVars()) > 0
}

func (l *Loader) setEnvVars() []string {
	set := []string{}
	for _, key := range sortedKeys(envBindings) {
		for _, envVar := range envBindings[key] {
			if os.Getenv(envVar) != "" {
				set = append(set, envVar)
			}
		}
	}
	return set
}

// bindEnvironmentVariables binds environment variables to viper
func (l *Loader) bindEnvironmentVariables(v *viper.Viper) error {
	for key, envVars := range envBindings {
		args := append([]string{key}, envVars...)
		if err := v.BindEnv(args...); err != nil {
			return fmt.Errorf("failed to bind environment for %s: %w", key, err)
		}
	}
	return nil
}

// SaveConfig saves configuration to a file
func (l *Loader) SaveConfig(config *Config, filePath string) error {
	dir := filepath.Dir(filePath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filePath, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// GenerateExampleConfig generates an example configuration file with comments
func (l *Loader) GenerateExampleConfig(filePath string) error {
	yamlContent := `# Sphinx Configuration File
# Only specify the settings you want to change; everything else uses built-in defaults.

prometheus:
  url: "http://localhost:9090"
  step: "15s"

rules:
  file: "rules.yml"

plugins:
  dir: "plugins"   # directory of *.so analyzer units
  builtin: true    # register the compiled-in analyzers

analysis:
  window: "15m"
  # Keep opportunities whose enrichment failed instead of aborting the cycle
  isolate_enrichment_failures: false
  # Serve demo opportunities, history and workspaces (or --mock-data)
  mock_data: false

terraform:
  binary: "terraform"
  verify_backend: false
  # Default remote state, used when no workspace is selected
  # backend:
  #   bucket: "my-terraform-state"
  #   key: "sphinx/terraform.tfstate"
  #   region: "us-east-1"

# AWS inventory metrics (aws_ebs_volume_info, aws_rds_instance_info)
aws:
  enabled: false
  profile: "default"
  region: "us-east-1"
  # regions: ["us-east-1", "eu-west-1"]
  # role_arn: "arn:aws:iam::123456789012:role/SphinxRole"

llm:
  provider: "gemini"   # gemini, static, none
  model: "gemini-2.5-flash"
  # api_key: "..."     # or GOOGLE_API_KEY

storage:
  sqlite_path: "sphinx.db"

# Optional: Redis cache for fetched metrics
# cache:
#   enabled: true
#   address: "localhost:6379"
#   ttl: "1m"

# server:
#   address: ":8080"

# output:
#   format: "table"  # table, json, yaml

# logging:
#   level: "info"   # trace, debug, info, warn, error
#   format: "text"  # text, json

# Environment Variable Examples:
# export PROMETHEUS_URL=http://prometheus:9090
# export GOOGLE_API_KEY=...
# export TF_BACKEND_S3_BUCKET=my-terraform-state
# export SPHINX_LOG_LEVEL=debug
`

	dir := filepath.Dir(filePath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	return os.WriteFile(filePath, []byte(yamlContent), 0644)
}

// GetConfigPath returns the default path to the configuration file
func (l *Loader) GetConfigPath() string {
	homeDir, _ := os.UserHomeDir()
	return filepath.Join(homeDir, l.configName+".yaml")
}

// ConfigExists checks if a configuration file exists
func (l *Loader) ConfigExists(configFile string) bool {
	if configFile != "" {
		_, err := os.Stat(configFile)
		return err == nil
	}

	for _, path := range l.configPaths {
		for _, ext := range []string{".yaml", ".yml"} {
			if _, err := os.Stat(filepath.Join(path, l.configName+ext)); err == nil {
				return true
			}
		}
	}

	return false
}

// GetEffectiveConfigSource returns information about where configuration is coming from
func (l *Loader) GetEffectiveConfigSource() map[string]interface{} {
	source := make(map[string]interface{})

	if l.ConfigExists("") {
		source["config_file"] = true
		source["config_path"] = l.GetConfigPath()
	} else {
		source["config_file"] = false
	}

	source["env_vars"] = l.hasRelevantEnvVars()
	source["set_env_vars"] = l.setEnvVars()

	return source
}

// DefaultLoader is the global configuration loader
var DefaultLoader = NewLoader()

func sortedKeys(m map[string][]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// normalizeScalars converts string values read from the environment into the
// booleans and integers the yaml decoder expects.
func normalizeScalars(data interface{}) interface{} {
	switch value := data.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(value))
		for k, v := range value {
			out[k] = normalizeScalars(v)
		}
		return out
	case string:
		if b, err := strconv.ParseBool(value); err == nil && (value == "true" || value == "false") {
			return b
		}
		if i, err := strconv.ParseInt(value, 10, 64); err == nil {
			return i
		}
		return value
	default:
		return data
	}
}
