package rules

import (
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/Tsahi-Elkayam/sphinx/pkg/models"
)

// Document is the on-disk layout of a rules file
type Document struct {
	Rules []models.AnalysisRule `yaml:"rules"`
}

// YAMLRepository loads analysis rules from a YAML document.
// Load problems are logged and produce an empty rule set; they never propagate.
type YAMLRepository struct {
	path   string
	logger *logrus.Logger

	mu     sync.Mutex
	cached []models.AnalysisRule
}

// NewYAMLRepository creates a repository backed by the file at path
func NewYAMLRepository(path string, logger *logrus.Logger) *YAMLRepository {
	if logger == nil {
		logger = logrus.New()
	}
	return &YAMLRepository{
		path:   path,
		logger: logger,
	}
}

// Path returns the rules file location
func (r *YAMLRepository) Path() string {
	return r.path
}

// LoadAll returns every rule in the document. A successful load is cached.
func (r *YAMLRepository) LoadAll() []models.AnalysisRule {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.cached) > 0 {
		return r.cached
	}

	data, err := os.ReadFile(r.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			r.logger.Warnf("Rules file %s not found", r.path)
		} else {
			r.logger.Errorf("Failed to read rules file %s: %v", r.path, err)
		}
		return []models.AnalysisRule{}
	}

	rules, err := Parse(data)
	if err != nil {
		r.logger.Errorf("Failed to load rules file %s: %v", r.path, err)
		return []models.AnalysisRule{}
	}
	if rules == nil {
		r.logger.Warnf("Rules file %s is empty or has no rules key", r.path)
		return []models.AnalysisRule{}
	}

	r.cached = rules
	r.logger.Infof("Loaded %d analysis rule(s) from %s", len(rules), r.path)
	return rules
}

// Reload drops the cached rules so the next LoadAll reads the file again
func (r *YAMLRepository) Reload() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cached = nil
}

// Parse decodes and validates a rules document. It returns nil rules when the
// document is empty or lacks a rules key.
func Parse(data []byte) ([]models.AnalysisRule, error) {
	var raw map[string]yaml.Node
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse rules document: %w", err)
	}

	node, ok := raw["rules"]
	if !ok {
		return nil, nil
	}

	var rules []models.AnalysisRule
	if err := node.Decode(&rules); err != nil {
		return nil, fmt.Errorf("failed to decode rules: %w", err)
	}

	names := make(map[string]bool, len(rules))
	for _, rule := range rules {
		if err := rule.Validate(); err != nil {
			return nil, fmt.Errorf("invalid rule: %w", err)
		}
		if names[rule.Name] {
			return nil, fmt.Errorf("duplicate rule name %s", rule.Name)
		}
		names[rule.Name] = true
	}

	if rules == nil {
		rules = []models.AnalysisRule{}
	}
	return rules, nil
}

// Marshal encodes rules into a rules document
func Marshal(rules []models.AnalysisRule) ([]byte, error) {
	data, err := yaml.Marshal(Document{Rules: rules})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal rules: %w", err)
	}
	return data, nil
}

// ExampleRules returns the starter rules written by "sphinx config init"
func ExampleRules() []models.AnalysisRule {
	return []models.AnalysisRule{
		{
			Name:       "idle-cpu",
			MetricName: "instance_cpu_utilization_ratio",
			Condition: models.RuleCondition{
				Operator:        models.OperatorLessThan,
				Threshold:       0.1,
				DurationMinutes: 10,
			},
			OpportunityTitleTemplate:       "Idle compute on {resource_id}",
			OpportunityDescriptionTemplate: "CPU usage of {resource_id} stayed below {threshold}% for {duration_minutes} minutes. Consider downsizing the instance.",
		},
		{
			Name:       "saturated-memory",
			MetricName: "instance_memory_utilization_ratio",
			Condition: models.RuleCondition{
				Operator:        models.OperatorGreaterThan,
				Threshold:       0.9,
				DurationMinutes: 15,
			},
			OpportunityTitleTemplate:       "Memory pressure on {resource_id}",
			OpportunityDescriptionTemplate: "Memory usage of {resource_id} stayed above {threshold}% for {duration_minutes} minutes. Consider a larger instance class.",
		},
	}
}
