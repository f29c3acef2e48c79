package models

import (
	"sort"
	"time"
)

// DataPoint is a single immutable sample of a time series
type DataPoint struct {
	Timestamp time.Time `json:"timestamp" yaml:"timestamp"`
	Value     float64   `json:"value" yaml:"value"`
}

// Metric represents one named time series identified by its label set
type Metric struct {
	Name       string            `json:"name" yaml:"name"`
	Labels     map[string]string `json:"labels" yaml:"labels"`
	DataPoints []DataPoint       `json:"datapoints" yaml:"datapoints"`
}

// Well-known label names used to identify the resource behind a series
const (
	LabelJob      = "job"
	LabelInstance = "instance"
	LabelName     = "__name__"
)

// UnknownResource is used when a series carries no identifying label
const UnknownResource = "unknown_resource"

// NewMetric creates a metric with an initialized label set
func NewMetric(name string, labels map[string]string, points ...DataPoint) Metric {
	if labels == nil {
		labels = make(map[string]string)
	}
	return Metric{
		Name:       name,
		Labels:     labels,
		DataPoints: points,
	}
}

// SortedCopy returns a copy of the metric whose datapoints are ordered by timestamp.
// The receiver is left untouched.
func (m Metric) SortedCopy() Metric {
	points := make([]DataPoint, len(m.DataPoints))
	copy(points, m.DataPoints)
	sort.SliceStable(points, func(i, j int) bool {
		return points[i].Timestamp.Before(points[j].Timestamp)
	})

	labels := make(map[string]string, len(m.Labels))
	for k, v := range m.Labels {
		labels[k] = v
	}

	return Metric{
		Name:       m.Name,
		Labels:     labels,
		DataPoints: points,
	}
}

// Span returns the distance between the first and last datapoint.
// It assumes the datapoints are sorted.
func (m Metric) Span() time.Duration {
	if len(m.DataPoints) < 2 {
		return 0
	}
	return m.DataPoints[len(m.DataPoints)-1].Timestamp.Sub(m.DataPoints[0].Timestamp)
}

// Latest returns the most recent datapoint, if any
func (m Metric) Latest() (DataPoint, bool) {
	if len(m.DataPoints) == 0 {
		return DataPoint{}, false
	}
	latest := m.DataPoints[0]
	for _, dp := range m.DataPoints[1:] {
		if !dp.Timestamp.Before(latest.Timestamp) {
			latest = dp
		}
	}
	return latest, true
}

// GetLabel gets a label value from the metric
func (m Metric) GetLabel(key string) (string, bool) {
	if m.Labels == nil {
		return "", false
	}
	value, exists := m.Labels[key]
	return value, exists
}

// ResourceID derives the resource identifier of the series:
// the job label, else the instance label, else UnknownResource.
func (m Metric) ResourceID() string {
	if job, ok := m.GetLabel(LabelJob); ok && job != "" {
		return job
	}
	if instance, ok := m.GetLabel(LabelInstance); ok && instance != "" {
		return instance
	}
	return UnknownResource
}
