package sphinx

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/Tsahi-Elkayam/sphinx/pkg/config"
	"github.com/Tsahi-Elkayam/sphinx/pkg/rules"
)

// NewConfigCommand creates the config management command
func NewConfigCommand(logger *logrus.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage Sphinx configuration",
		Long: `Manage Sphinx configuration files and settings.

Sphinx works against a local Prometheus out of the box. You only need a config
file to point it at other metric sources, a state backend or a model provider.

Configuration priority (highest to lowest):
  1. Command line flags
  2. Environment variables (SPHINX_* or PROMETHEUS_URL, GOOGLE_API_KEY, TF_BACKEND_S3_*, ...)
  3. Configuration file (~/.sphinx.yaml)
  4. Built-in defaults

Examples:
  sphinx config show
  sphinx config path
  sphinx config init
  sphinx config validate`,
	}

	cmd.AddCommand(NewConfigShowCommand(logger))
	cmd.AddCommand(NewConfigInitCommand(logger))
	cmd.AddCommand(NewConfigPathCommand(logger))
	cmd.AddCommand(NewConfigValidateCommand(logger))

	return cmd
}

// NewConfigShowCommand shows the current effective configuration
func NewConfigShowCommand(logger *logrus.Logger) *cobra.Command {
	var format string
	var showSources bool
	var summary bool

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show current effective configuration",
		Long: `Show the configuration Sphinx is using after merging built-in defaults,
the config file and environment variables. Secrets are never printed.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := GetGlobalConfig()
			if cfg == nil {
				var err error
				if cfg, err = config.DefaultLoader.WithLogger(logger).LoadConfig(cfgFile); err != nil {
					return fmt.Errorf("failed to load configuration: %w", err)
				}
			}

			if showSources {
				printConfigSources()
				fmt.Printf("\n")
			}

			if summary {
				return encodeTo(strings.ToLower(format), cfg.GetSummary())
			}

			switch strings.ToLower(format) {
			case "yaml", "json":
				return encodeTo(strings.ToLower(format), redacted(cfg))
			default:
				return showConfigTable(cfg)
			}
		},
	}

	cmd.Flags().StringVar(&format, "format", "table", "Output format (table, yaml, json)")
	cmd.Flags().BoolVar(&showSources, "show-sources", false, "Show where configuration values come from")
	cmd.Flags().BoolVar(&summary, "summary", false, "Print a condensed summary")

	return cmd
}

// NewConfigInitCommand creates a new configuration file
func NewConfigInitCommand(logger *logrus.Logger) *cobra.Command {
	var configFile string
	var rulesFile string
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Generate an example configuration file",
		Long: `Generate an example configuration file with the commonly changed settings
commented in place. Everything not specified keeps its built-in default.

A starter rules file is written to --rules-file unless one already exists.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if configFile == "" {
				configFile = config.DefaultLoader.GetConfigPath()
			}

			if !force && fileExists(configFile) {
				fmt.Printf("⚠️  Config file already exists: %s\n", configFile)
				fmt.Printf("Use --force to overwrite, or specify a different path with --file\n")
				return nil
			}

			if err := config.DefaultLoader.GenerateExampleConfig(configFile); err != nil {
				return fmt.Errorf("failed to generate config file: %w", err)
			}

			fmt.Printf("✅ Generated example configuration file: %s\n", configFile)

			if rulesFile != "" {
				written, err := writeExampleRules(rulesFile, force)
				if err != nil {
					return err
				}
				if written {
					fmt.Printf("✅ Generated starter rules file: %s\n", rulesFile)
				} else {
					fmt.Printf("📜 Keeping existing rules file: %s\n", rulesFile)
				}
			}
			fmt.Println()

			fmt.Printf("🎯 NEXT STEPS:\n")
			fmt.Printf("   1. Point prometheus.url at your Prometheus\n")
			fmt.Printf("   2. Set terraform.backend if you keep state in S3\n")
			fmt.Printf("   3. Export GOOGLE_API_KEY to get generated Terraform suggestions\n\n")

			fmt.Printf("💡 TIPS:\n")
			fmt.Printf("   • Use 'sphinx config show' to see your effective configuration\n")
			fmt.Printf("   • Use 'sphinx config validate' to check for errors\n")

			return nil
		},
	}

	cmd.Flags().StringVarP(&configFile, "file", "f", "", "Config file path (default: ~/.sphinx.yaml)")
	cmd.Flags().StringVar(&rulesFile, "rules-file", config.DefaultConfig().Rules.File, "Starter rules file path (empty to skip)")
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite existing config and rules files")

	return cmd
}

// writeExampleRules writes the starter rules to path. An existing file is kept unless force is set.
func writeExampleRules(path string, force bool) (bool, error) {
	if !force && fileExists(path) {
		return false, nil
	}

	data, err := rules.Marshal(rules.ExampleRules())
	if err != nil {
		return false, err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return false, fmt.Errorf("failed to create rules directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return false, fmt.Errorf("failed to write rules file: %w", err)
	}
	return true, nil
}

// NewConfigPathCommand shows configuration file paths and search locations
func NewConfigPathCommand(logger *logrus.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "path",
		Short: "Show configuration file locations",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Printf("🗂️  Sphinx Configuration Paths\n")
			fmt.Printf("=============================\n\n")

			fmt.Printf("📝 Default config path: %s\n\n", config.DefaultLoader.GetConfigPath())

			fmt.Printf("🔍 Search locations (in order of priority):\n")
			foundAny := false
			for i, location := range configSearchLocations() {
				status := "❌ not found"
				if fileExists(location.path) {
					status = "✅ found"
					foundAny = true
				}
				fmt.Printf("   %d. %s (%s)\n", i+1, location.path, location.description)
				fmt.Printf("      %s\n", status)
			}

			fmt.Printf("\n")
			if !foundAny {
				fmt.Printf("💡 No config file found - Sphinx is using built-in defaults.\n")
				fmt.Printf("   Run 'sphinx config init' to create one.\n")
			} else {
				fmt.Printf("✅ Sphinx uses the first file found in the order above.\n")
			}

			fmt.Printf("\n🔧 Environment variables that override config:\n")
			for _, env := range overrideEnvVars {
				status := "not set"
				if value := os.Getenv(env.name); value != "" {
					status = "set"
					if !env.secret {
						status = fmt.Sprintf("= %s", value)
					}
				}
				fmt.Printf("   %-28s %s (%s)\n", env.name, env.description, status)
			}

			return nil
		},
	}

	return cmd
}

// NewConfigValidateCommand validates the configuration
func NewConfigValidateCommand(logger *logrus.Logger) *cobra.Command {
	var configFile string

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.NewLoader().WithLogger(logger).LoadConfig(configFile)
			if err != nil {
				fmt.Printf("❌ Configuration validation failed:\n")
				fmt.Printf("   %v\n", err)
				return err
			}

			fmt.Printf("✅ Configuration is valid!\n\n")

			fmt.Printf("⚙️  Configuration Summary:\n")
			fmt.Printf("   📈 Prometheus: %s (step %v)\n", cfg.Prometheus.URL, cfg.Prometheus.Step)
			fmt.Printf("   ☁️  AWS inventory: %v %v\n", cfg.AWS.Enabled, cfg.AWS.GetRegions())
			fmt.Printf("   🔍 Analysis window: %v\n", cfg.Analysis.Window)
			fmt.Printf("   🤖 Enrichment: %s\n", cfg.LLM.Provider)
			fmt.Printf("   💾 Cache: %v (%s, %v TTL)\n", cfg.Cache.Enabled, cfg.Cache.Address, cfg.Cache.TTL)
			fmt.Printf("   📝 Logging: %s level, %s format\n", cfg.Logging.Level, cfg.Logging.Format)

			if warnings := validateConfigWarnings(cfg); len(warnings) > 0 {
				fmt.Printf("\n⚠️  Warnings:\n")
				for _, warning := range warnings {
					fmt.Printf("   • %s\n", warning)
				}
			}

			if recommendations := getConfigRecommendations(cfg); len(recommendations) > 0 {
				fmt.Printf("\n💡 Recommendations:\n")
				for _, rec := range recommendations {
					fmt.Printf("   • %s\n", rec)
				}
			}

			return nil
		},
	}

	cmd.Flags().StringVarP(&configFile, "file", "f", "", "Config file to validate (default: auto-detect)")

	return cmd
}

type configLocation struct {
	path        string
	description string
}

func configSearchLocations() []configLocation {
	homeDir, _ := os.UserHomeDir()
	return []configLocation{
		{".sphinx.yaml", "Current directory"},
		{".sphinx.yml", "Current directory (alternative)"},
		{filepath.Join(homeDir, ".sphinx.yaml"), "Home directory"},
		{filepath.Join(homeDir, ".sphinx.yml"), "Home directory (alternative)"},
		{"/etc/sphinx/.sphinx.yaml", "System-wide configuration"},
	}
}

var overrideEnvVars = []struct {
	name        string
	description string
	secret      bool
}{
	{"PROMETHEUS_URL", "Prometheus base URL", false},
	{"GOOGLE_API_KEY", "Gemini API key", true},
	{"TF_BACKEND_S3_BUCKET", "Default state bucket", false},
	{"TF_BACKEND_S3_KEY", "Default state key", false},
	{"TF_BACKEND_S3_REGION", "Default state region", false},
	{"SQLITE_DB_PATH", "History and workspace database", false},
	{"RULES_FILE_PATH", "Rules document", false},
	{"PLUGINS_DIR", "Analyzer units directory", false},
	{"SPHINX_OUTPUT_FORMAT", "Output format (table/json/yaml)", false},
	{"SPHINX_LOG_LEVEL", "Log level (debug/info/warn/error)", false},
}

// redacted returns a copy of cfg without secrets
func redacted(cfg *config.Config) config.Config {
	out := *cfg
	if out.LLM.APIKey != "" {
		out.LLM.APIKey = "********"
	}
	if out.Cache.Password != "" {
		out.Cache.Password = "********"
	}
	if out.AWS.SecretAccessKey != "" {
		out.AWS.SecretAccessKey = "********"
	}
	if out.AWS.SessionToken != "" {
		out.AWS.SessionToken = "********"
	}
	return out
}

// showConfigTable displays configuration in a readable table format
func showConfigTable(cfg *config.Config) error {
	fmt.Printf("🦁 Sphinx Configuration\n")
	fmt.Printf("=======================\n\n")

	fmt.Printf("📈 Metrics:\n")
	fmt.Printf("   Prometheus: %s (step %v)\n", cfg.Prometheus.URL, cfg.Prometheus.Step)
	fmt.Printf("   AWS inventory: %v\n", cfg.AWS.Enabled)
	if cfg.AWS.Enabled {
		fmt.Printf("      Profile: %s\n", cfg.AWS.Profile)
		fmt.Printf("      Regions: %v\n", cfg.AWS.GetRegions())
		if cfg.AWS.RoleARN != "" {
			fmt.Printf("      Role ARN: %s\n", cfg.AWS.RoleARN)
		}
	}
	fmt.Printf("\n")

	fmt.Printf("🔍 Analysis:\n")
	fmt.Printf("   Rules file: %s\n", cfg.Rules.File)
	fmt.Printf("   Plugins dir: %s (builtin: %v)\n", cfg.Plugins.Dir, cfg.Plugins.Builtin)
	fmt.Printf("   Window: %v\n", cfg.Analysis.Window)
	fmt.Printf("   Isolate enrichment failures: %v\n", cfg.Analysis.IsolateEnrichmentFailures)
	fmt.Printf("\n")

	fmt.Printf("🤖 Enrichment:\n")
	fmt.Printf("   Provider: %s\n", cfg.LLM.Provider)
	if cfg.LLM.Provider == "gemini" {
		fmt.Printf("   Model: %s\n", cfg.LLM.Model)
		fmt.Printf("   API key: %s\n", configuredLabel(cfg.LLM.APIKey != ""))
	}
	fmt.Printf("\n")

	fmt.Printf("🏗️  Terraform:\n")
	fmt.Printf("   Binary: %s\n", cfg.Terraform.Binary)
	backend := cfg.SettingsBackend()
	if backend.IsComplete() {
		fmt.Printf("   Default backend: s3://%s/%s (%s)\n", backend.Bucket, backend.Key, backend.Region)
	} else {
		fmt.Printf("   Default backend: none (local state)\n")
	}
	fmt.Printf("   Verify backend: %v\n", cfg.Terraform.VerifyBackend)
	fmt.Printf("\n")

	fmt.Printf("💾 Storage and cache:\n")
	fmt.Printf("   SQLite: %s\n", cfg.Storage.SQLitePath)
	fmt.Printf("   Redis cache: %v", cfg.Cache.Enabled)
	if cfg.Cache.Enabled {
		fmt.Printf(" (%s, %v TTL)", cfg.Cache.Address, cfg.Cache.TTL)
	}
	fmt.Printf("\n\n")

	fmt.Printf("📝 Logging:\n")
	fmt.Printf("   Level: %s\n", cfg.Logging.Level)
	fmt.Printf("   Format: %s\n", cfg.Logging.Format)
	if cfg.Logging.File != "" {
		fmt.Printf("   File: %s\n", cfg.Logging.File)
	}

	return nil
}

func configuredLabel(ok bool) string {
	if ok {
		return "configured"
	}
	return "not set"
}

// printConfigSources shows where configuration values come from
func printConfigSources() {
	fmt.Printf("📋 Configuration Sources:\n")

	source := config.DefaultLoader.GetEffectiveConfigSource()

	if hasConfigFile, ok := source["config_file"].(bool); ok {
		if hasConfigFile {
			if configPath, ok := source["config_path"].(string); ok {
				fmt.Printf("   📄 Config file: %s (found)\n", configPath)
			}
		} else {
			fmt.Printf("   📄 Config file: none (using defaults)\n")
		}
	}

	if hasEnvVars, ok := source["env_vars"].(bool); ok {
		if hasEnvVars {
			if setVars, ok := source["set_env_vars"].([]string); ok {
				sort.Strings(setVars)
				fmt.Printf("   🔧 Environment variables: %v\n", setVars)
			}
		} else {
			fmt.Printf("   🔧 Environment variables: none set\n")
		}
	}

	fmt.Printf("   🏗️  Built-in defaults: always active as base\n")
}

// validateConfigWarnings returns configuration warnings
func validateConfigWarnings(cfg *config.Config) []string {
	var warnings []string

	if cfg.LLM.Provider == "gemini" && cfg.LLM.APIKey == "" {
		warnings = append(warnings, "llm.provider is gemini but no API key is set - opportunities get static suggestions")
	}

	if cfg.AWS.Enabled && cfg.AWS.AccessKeyID != "" && cfg.AWS.SecretAccessKey != "" {
		warnings = append(warnings, "Static AWS credentials found in config - consider using AWS profiles or IAM roles for better security")
	}

	backend := cfg.Terraform.Backend
	if (backend.Bucket != "" || backend.Key != "" || backend.Region != "") && !cfg.SettingsBackend().IsComplete() {
		warnings = append(warnings, "terraform.backend is partially set - it is ignored until bucket, key and region are all set")
	}

	if cfg.Terraform.VerifyBackend && !cfg.AWS.Enabled && cfg.AWS.Profile == "" && cfg.AWS.AccessKeyID == "" {
		warnings = append(warnings, "terraform.verify_backend needs AWS credentials - set aws.profile or AWS_* variables")
	}

	return warnings
}

// getConfigRecommendations returns configuration recommendations
func getConfigRecommendations(cfg *config.Config) []string {
	var recommendations []string

	if cfg.Analysis.Window < 5*time.Minute {
		recommendations = append(recommendations, "Analysis window is very short - rules with duration_minutes above it can never match")
	}

	if !cfg.Analysis.IsolateEnrichmentFailures && cfg.LLM.Provider == "gemini" {
		recommendations = append(recommendations, "Set analysis.isolate_enrichment_failures to keep findings when the model call fails")
	}

	if cfg.Cache.Enabled && cfg.Cache.TTL < 10*time.Second {
		recommendations = append(recommendations, "Cache TTL is very short - consider increasing it for better performance")
	}

	return recommendations
}

// fileExists checks if a file exists
func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
