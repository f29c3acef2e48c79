package builtin

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tsahi-Elkayam/sphinx/pkg/models"
	"github.com/Tsahi-Elkayam/sphinx/pkg/plugins"
)

func TestEBSGp2Analyzer(t *testing.T) {
	now := time.Now()
	point := models.DataPoint{Timestamp: now, Value: 100}

	metrics := []models.Metric{
		models.NewMetric(EBSVolumeInfoMetric, map[string]string{"volume_id": "vol-1", "volume_type": "gp2"}, point),
		models.NewMetric(EBSVolumeInfoMetric, map[string]string{"volume_id": "vol-2", "volume_type": "gp3"}, point),
		models.NewMetric(EBSVolumeInfoMetric, map[string]string{"volume_type": "gp2"}, point),
		models.NewMetric("other", map[string]string{"volume_id": "vol-3", "volume_type": "gp2"}, point),
	}

	got := NewEBSGp2Analyzer(nil).Analyze(metrics)
	require.Len(t, got, 1)
	assert.Equal(t, "vol-1", got[0].ResourceAddress)
	assert.Contains(t, got[0].Description, "vol-1")
	assert.Equal(t, "AWS EBS gp2 to gp3 Optimizer", got[0].Source)
	require.Len(t, got[0].Evidence, 1)
}

func TestHighMemoryAnalyzer(t *testing.T) {
	now := time.Now()
	high := float64(DefaultMemoryThresholdBytes + 1)

	metrics := []models.Metric{
		models.NewMetric("process_virtual_memory_bytes", map[string]string{"job": "api"},
			models.DataPoint{Timestamp: now.Add(-time.Minute), Value: 10},
			models.DataPoint{Timestamp: now, Value: high},
		),
		models.NewMetric("go_process_virtual_memory_bytes", map[string]string{},
			models.DataPoint{Timestamp: now, Value: high},
		),
		// latest sample is below the threshold
		models.NewMetric("process_virtual_memory_bytes", map[string]string{"job": "worker"},
			models.DataPoint{Timestamp: now.Add(-time.Minute), Value: high},
			models.DataPoint{Timestamp: now, Value: 10},
		),
		models.NewMetric("process_virtual_memory_bytes", map[string]string{"job": "empty"}),
	}

	got := NewHighMemoryAnalyzer().Analyze(metrics)
	require.Len(t, got, 2)
	assert.Equal(t, "api", got[0].ResourceAddress)
	assert.Equal(t, models.UnknownResource, got[1].ResourceAddress)
	assert.Contains(t, got[0].Description, "100.00MB")
}

func TestRegister(t *testing.T) {
	registry := plugins.NewRegistry(nil)

	assert.Equal(t, 2, Register(registry, nil))
	assert.Equal(t, []string{"AWS EBS gp2 to gp3 Optimizer", "High Memory Usage Rule"}, registry.List())

	for _, analyzer := range registry.Analyzers() {
		_, ok := analyzer.(plugins.QueryProvider)
		assert.True(t, ok, analyzer.Name())
	}
}
