package builtin

import (
	"fmt"
	"strings"

	"github.com/Tsahi-Elkayam/sphinx/pkg/models"
)

// VirtualMemoryMetric is matched as a substring of the series name
const VirtualMemoryMetric = "process_virtual_memory_bytes"

// DefaultMemoryThresholdBytes is 100 MiB
const DefaultMemoryThresholdBytes = 100 * 1024 * 1024

// HighMemoryAnalyzer flags processes whose latest virtual memory sample exceeds a threshold
type HighMemoryAnalyzer struct {
	ThresholdBytes float64
}

// NewHighMemoryAnalyzer creates the analyzer with the default threshold
func NewHighMemoryAnalyzer() *HighMemoryAnalyzer {
	return &HighMemoryAnalyzer{ThresholdBytes: DefaultMemoryThresholdBytes}
}

func (a *HighMemoryAnalyzer) Name() string   { return "High Memory Usage Rule" }
func (a *HighMemoryAnalyzer) Author() string { return "Sphinx Team" }

func (a *HighMemoryAnalyzer) Queries() []string {
	return []string{VirtualMemoryMetric}
}

// Analyze checks the most recent sample of every matching series
func (a *HighMemoryAnalyzer) Analyze(metrics []models.Metric) []models.OptimizationOpportunity {
	opportunities := make([]models.OptimizationOpportunity, 0)

	for _, metric := range metrics {
		if !strings.Contains(metric.Name, VirtualMemoryMetric) {
			continue
		}

		latest, ok := metric.Latest()
		if !ok || latest.Value <= a.ThresholdBytes {
			continue
		}

		resourceID, _ := metric.GetLabel(models.LabelJob)
		if resourceID == "" {
			resourceID = models.UnknownResource
		}

		opportunity := models.NewOpportunity(
			fmt.Sprintf("High memory usage detected for '%s'", resourceID),
			fmt.Sprintf("Memory usage of '%s' exceeded %.2fMB. Investigate possible leaks or raise the memory allocation.",
				resourceID, a.ThresholdBytes/(1024*1024)),
			resourceID,
			metric,
		)
		opportunity.Source = a.Name()
		opportunities = append(opportunities, opportunity)
	}

	return opportunities
}
