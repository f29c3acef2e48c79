package sphinx

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/Tsahi-Elkayam/sphinx/pkg/config"
	"github.com/Tsahi-Elkayam/sphinx/pkg/utils"
)

var (
	cfgFile  string
	verbose  bool
	mockData bool
	version = "dev" // This will be set during build

	// Global configuration instance
	globalConfig *config.Config
)

// NewRootCommand creates the root command for the Sphinx CLI
func NewRootCommand(logger *logrus.Logger) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "sphinx",
		Short: "Metric-driven infrastructure optimization",
		Long: `Sphinx watches your metrics, finds cost and performance optimization
opportunities, and drives Terraform through an isolated plan/apply lifecycle.

🔍  Declarative YAML rules and compiled analyzers evaluate Prometheus and AWS inventory metrics
🤖  Opportunities are enriched with a complete, ready-to-plan Terraform file
🏗️  Plans and applies run in throwaway workspaces against your S3 remote state

Configuration priority (highest to lowest):
  1. Command line flags
  2. Environment variables (SPHINX_* or PROMETHEUS_URL, GOOGLE_API_KEY, TF_BACKEND_S3_*, ...)
  3. Configuration file (~/.sphinx.yaml)
  4. Built-in defaults`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			globalConfig, err = config.DefaultLoader.WithLogger(logger).LoadConfig(cfgFile)
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}

			if err := utils.ApplyConfig(logger, globalConfig.Logging); err != nil {
				logger.Warnf("Failed to apply logging configuration: %v", err)
			}

			// --verbose overrides both the environment and the config file
			if verbose {
				logger.SetLevel(logrus.DebugLevel)
			}
			if mockData {
				globalConfig.Analysis.MockData = true
			}
			return nil
		},
		Run: func(cmd *cobra.Command, args []string) {
			printWelcomeMessage()
		},
	}

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"config file (default: searches for .sphinx.yaml in ., ~, /etc/sphinx)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false,
		"verbose output (overrides config log level)")
	rootCmd.PersistentFlags().BoolVar(&mockData, "mock-data", false,
		"serve demo opportunities, history and workspaces instead of live data")

	rootCmd.AddCommand(NewAnalyzeCommand(logger))
	rootCmd.AddCommand(NewPlanCommand(logger))
	rootCmd.AddCommand(NewApplyCommand(logger))
	rootCmd.AddCommand(NewGenerateCommand(logger))
	rootCmd.AddCommand(NewWorkspaceCommand(logger))
	rootCmd.AddCommand(NewHistoryCommand(logger))
	rootCmd.AddCommand(NewAnalyzersCommand(logger))
	rootCmd.AddCommand(NewServeCommand(logger))
	rootCmd.AddCommand(NewConfigCommand(logger))

	return rootCmd
}

// printWelcomeMessage prints a helpful welcome message
func printWelcomeMessage() {
	fmt.Printf(`
┌─────────────────────────────────────────┐
│              🦁  Sphinx                  │
│   Metric-driven infrastructure tuning   │
└─────────────────────────────────────────┘

🔍 ANALYZE:
   sphinx analyze                         # Run one analysis cycle
   sphinx analyze --source ebs-gp2        # Only opportunities from one rule or analyzer
   sphinx analyze --output json           # Machine-readable output

🏗️  TERRAFORM:
   sphinx plan main.tf                    # Preview a change
   sphinx apply main.tf --title "..."     # Apply and record it in the history
   sphinx workspace add prod --bucket my-state --key prod.tfstate --region us-east-1

📚 MORE:
   sphinx history                         # Applied changes, newest first
   sphinx analyzers                       # Loaded rules and analyzers
   sphinx serve                           # HTTP API and /metrics
   sphinx config show                     # Effective configuration

Version: %s
For help: sphinx --help
`, version)

	if globalConfig != nil {
		fmt.Printf("\n📊 CURRENT STATUS:\n")
		fmt.Printf("   📈 Prometheus: %s\n", globalConfig.Prometheus.URL)
		if globalConfig.AWS.Enabled {
			fmt.Printf("   ☁️  AWS inventory: enabled %v\n", globalConfig.AWS.GetRegions())
		}
		fmt.Printf("   🤖 Enrichment: %s\n", globalConfig.LLM.Provider)
		if globalConfig.Analysis.MockData {
			fmt.Printf("   🎭 Mock data: on\n")
		}
		if globalConfig.SettingsBackend().IsComplete() {
			fmt.Printf("   🗄️  Default backend: s3://%s/%s\n", globalConfig.Terraform.Backend.Bucket, globalConfig.Terraform.Backend.Key)
		}

		source := config.DefaultLoader.GetEffectiveConfigSource()
		if hasConfigFile, ok := source["config_file"].(bool); ok && hasConfigFile {
			if configPath, ok := source["config_path"].(string); ok {
				fmt.Printf("   📄 Config file: %s\n", configPath)
			}
		} else {
			fmt.Printf("   📄 Using built-in defaults (no config file)\n")
		}
	}

	fmt.Printf("\n")
}

// GetGlobalConfig returns the global configuration instance
func GetGlobalConfig() *config.Config {
	return globalConfig
}

// JSONEncoder provides JSON encoding
type JSONEncoder struct {
	encoder *json.Encoder
}

// NewJSONEncoder creates a new JSON encoder
func NewJSONEncoder(w io.Writer) *JSONEncoder {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return &JSONEncoder{encoder: encoder}
}

// Encode encodes the given value as JSON
func (e *JSONEncoder) Encode(v interface{}) error {
	return e.encoder.Encode(v)
}

// YAMLEncoder provides YAML encoding
type YAMLEncoder struct {
	encoder *yaml.Encoder
}

// NewYAMLEncoder creates a new YAML encoder
func NewYAMLEncoder(w io.Writer) *YAMLEncoder {
	encoder := yaml.NewEncoder(w)
	encoder.SetIndent(2)
	return &YAMLEncoder{encoder: encoder}
}

// Encode encodes the given value as YAML
func (e *YAMLEncoder) Encode(v interface{}) error {
	return e.encoder.Encode(v)
}

// encodeTo writes v to stdout in the json or yaml format
func encodeTo(format string, v interface{}) error {
	if format == "yaml" {
		return NewYAMLEncoder(os.Stdout).Encode(v)
	}
	return NewJSONEncoder(os.Stdout).Encode(v)
}
