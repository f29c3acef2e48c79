package models

import (
	"fmt"
	"strings"
	"time"
)

// Operator is the comparison applied between a sample and a rule threshold
type Operator string

const (
	OperatorLessThan    Operator = "less_than"
	OperatorGreaterThan Operator = "greater_than"
	OperatorEqualTo     Operator = "equal_to"
)

// GetOperatorFromString converts a string to Operator
func GetOperatorFromString(s string) (Operator, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "less_than", "lt", "<":
		return OperatorLessThan, nil
	case "greater_than", "gt", ">":
		return OperatorGreaterThan, nil
	case "equal_to", "eq", "==":
		return OperatorEqualTo, nil
	default:
		return "", fmt.Errorf("unknown operator %q", s)
	}
}

// String returns the string representation of Operator
func (o Operator) String() string {
	return string(o)
}

// Valid reports whether the operator is one of the supported tokens
func (o Operator) Valid() bool {
	switch o {
	case OperatorLessThan, OperatorGreaterThan, OperatorEqualTo:
		return true
	default:
		return false
	}
}

// Compare applies the operator to value and threshold
func (o Operator) Compare(value, threshold float64) bool {
	switch o {
	case OperatorLessThan:
		return value < threshold
	case OperatorGreaterThan:
		return value > threshold
	case OperatorEqualTo:
		return value == threshold
	default:
		return false
	}
}

// RuleCondition declares that all samples in the last DurationMinutes must satisfy Operator against Threshold
type RuleCondition struct {
	Operator        Operator `json:"operator" yaml:"operator"`
	Threshold       float64  `json:"threshold" yaml:"threshold"`
	DurationMinutes int      `json:"duration_minutes" yaml:"duration_minutes"`
}

// Duration returns the condition window as a time.Duration
func (c RuleCondition) Duration() time.Duration {
	return time.Duration(c.DurationMinutes) * time.Minute
}

// AnalysisRule is a declarative rule loaded from the rules document
type AnalysisRule struct {
	Name                           string        `json:"name" yaml:"name"`
	MetricName                     string        `json:"metric_name" yaml:"metric_name"`
	Condition                      RuleCondition `json:"condition" yaml:"condition"`
	OpportunityTitleTemplate       string        `json:"opportunity_title_template" yaml:"opportunity_title_template"`
	OpportunityDescriptionTemplate string        `json:"opportunity_description_template" yaml:"opportunity_description_template"`
}

// Validate checks that the rule is complete
func (r AnalysisRule) Validate() error {
	if strings.TrimSpace(r.Name) == "" {
		return fmt.Errorf("rule name cannot be empty")
	}
	if strings.TrimSpace(r.MetricName) == "" {
		return fmt.Errorf("rule %s: metric_name cannot be empty", r.Name)
	}
	if !r.Condition.Operator.Valid() {
		return fmt.Errorf("rule %s: invalid operator %q (must be less_than, greater_than or equal_to)", r.Name, r.Condition.Operator)
	}
	if r.Condition.DurationMinutes < 0 {
		return fmt.Errorf("rule %s: duration_minutes cannot be negative", r.Name)
	}
	if r.OpportunityTitleTemplate == "" {
		return fmt.Errorf("rule %s: opportunity_title_template cannot be empty", r.Name)
	}
	if r.OpportunityDescriptionTemplate == "" {
		return fmt.Errorf("rule %s: opportunity_description_template cannot be empty", r.Name)
	}
	return nil
}
