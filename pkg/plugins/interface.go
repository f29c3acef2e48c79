package plugins

import (
	"github.com/Tsahi-Elkayam/sphinx/pkg/models"
)

// ABIVersion is the contract version a shared-library unit must export
const ABIVersion = "sphinx.analyzer/v1"

// Analyzer defines the interface that all programmatic analyzers must implement
type Analyzer interface {
	// Name is the human-readable analyzer name
	Name() string

	// Author is the owner of the analyzer
	Author() string

	// Analyze inspects the fetched metric set and returns any findings.
	// It must not mutate the metrics.
	Analyze(metrics []models.Metric) []models.OptimizationOpportunity
}

// QueryProvider is implemented by analyzers that need metric queries of their own.
// Their queries are fetched in the same window as the rule queries.
type QueryProvider interface {
	Queries() []string
}

// Factory builds the analyzers of one compiled-in unit
type Factory func() ([]Analyzer, error)

// AnalyzerInfo holds information about a registered analyzer
type AnalyzerInfo struct {
	Name    string   `json:"name" yaml:"name"`
	Author  string   `json:"author" yaml:"author"`
	Origin  string   `json:"origin" yaml:"origin"`
	Queries []string `json:"queries,omitempty" yaml:"queries,omitempty"`
}
