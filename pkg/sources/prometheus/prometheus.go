package prometheus

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/api"
	v1 "github.com/prometheus/client_golang/api/prometheus/v1"
	"github.com/prometheus/common/model"
	"github.com/sirupsen/logrus"

	"github.com/Tsahi-Elkayam/sphinx/pkg/models"
)

// DefaultStep is the range query resolution
const DefaultStep = 15 * time.Second

// Source fetches metric series through the Prometheus HTTP API
type Source struct {
	api    v1.API
	step   time.Duration
	logger *logrus.Logger
}

// NewSource creates a source for the Prometheus server at address
func NewSource(address string, step time.Duration, logger *logrus.Logger) (*Source, error) {
	if address == "" {
		return nil, fmt.Errorf("prometheus address cannot be empty")
	}

	client, err := api.NewClient(api.Config{Address: address})
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus client: %w", err)
	}

	return NewSourceFromAPI(v1.NewAPI(client), step, logger), nil
}

// NewSourceFromAPI wraps an existing API client
func NewSourceFromAPI(promAPI v1.API, step time.Duration, logger *logrus.Logger) *Source {
	if step <= 0 {
		step = DefaultStep
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &Source{
		api:    promAPI,
		step:   step,
		logger: logger,
	}
}

// Name identifies the source
func (s *Source) Name() string {
	return "prometheus"
}

// Supports reports that any PromQL query can be served
func (s *Source) Supports(query string) bool {
	return true
}

// Fetch runs a range query and converts the result into metrics
func (s *Source) Fetch(ctx context.Context, query string, start, end time.Time) ([]models.Metric, error) {
	result, warnings, err := s.api.QueryRange(ctx, query, v1.Range{
		Start: start,
		End:   end,
		Step:  s.step,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query prometheus for %q: %w", query, err)
	}

	for _, warning := range warnings {
		s.logger.Warnf("Prometheus warning for %q: %s", query, warning)
	}

	switch value := result.(type) {
	case model.Matrix:
		return ConvertMatrix(query, value), nil
	case model.Vector:
		return ConvertVector(query, value), nil
	default:
		return nil, fmt.Errorf("unsupported prometheus result type %s for %q", result.Type(), query)
	}
}

// ConvertMatrix turns range query streams into metrics. The series name is
// the __name__ label, or the query when the label is absent.
func ConvertMatrix(query string, matrix model.Matrix) []models.Metric {
	metrics := make([]models.Metric, 0, len(matrix))
	for _, stream := range matrix {
		points := make([]models.DataPoint, 0, len(stream.Values))
		for _, pair := range stream.Values {
			points = append(points, models.DataPoint{
				Timestamp: pair.Timestamp.Time().UTC(),
				Value:     float64(pair.Value),
			})
		}
		metrics = append(metrics, models.NewMetric(seriesName(query, stream.Metric), convertLabels(stream.Metric), points...))
	}
	return metrics
}

// ConvertVector turns instant samples into single-point metrics
func ConvertVector(query string, vector model.Vector) []models.Metric {
	metrics := make([]models.Metric, 0, len(vector))
	for _, sample := range vector {
		point := models.DataPoint{
			Timestamp: sample.Timestamp.Time().UTC(),
			Value:     float64(sample.Value),
		}
		metrics = append(metrics, models.NewMetric(seriesName(query, sample.Metric), convertLabels(sample.Metric), point))
	}
	return metrics
}

func seriesName(query string, metric model.Metric) string {
	if name, ok := metric[model.MetricNameLabel]; ok && name != "" {
		return string(name)
	}
	return query
}

func convertLabels(metric model.Metric) map[string]string {
	labels := make(map[string]string, len(metric))
	for name, value := range metric {
		labels[string(name)] = string(value)
	}
	return labels
}
