package cache

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tsahi-Elkayam/sphinx/pkg/models"
)

type fakeRedis struct {
	mu      sync.Mutex
	values  map[string]string
	ttls    map[string]time.Duration
	getErr  error
	setErr  error
	closed  bool
	pingErr error
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{values: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (f *fakeRedis) Get(ctx context.Context, key string) *redis.StringCmd {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.getErr != nil {
		return redis.NewStringResult("", f.getErr)
	}
	value, ok := f.values[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(value, nil)
}

func (f *fakeRedis) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.setErr != nil {
		return redis.NewStatusResult("", f.setErr)
	}
	f.values[key] = string(value.([]byte))
	f.ttls[key] = expiration
	return redis.NewStatusResult("OK", nil)
}

func (f *fakeRedis) Ping(ctx context.Context) *redis.StatusCmd {
	return redis.NewStatusResult("PONG", f.pingErr)
}

func (f *fakeRedis) Close() error {
	f.closed = true
	return nil
}

type countingSource struct {
	calls int
	err   error
}

func (s *countingSource) Fetch(ctx context.Context, query string, start, end time.Time) ([]models.Metric, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return []models.Metric{
		models.NewMetric(query, map[string]string{"job": "api"},
			models.DataPoint{Timestamp: end.UTC(), Value: 0.05}),
	}, nil
}

var window = struct{ start, end time.Time }{
	start: time.Date(2024, 5, 1, 11, 45, 10, 0, time.UTC),
	end:   time.Date(2024, 5, 1, 12, 0, 10, 0, time.UTC),
}

func TestMetricCacheReadThrough(t *testing.T) {
	logger, _ := test.NewNullLogger()
	client := newFakeRedis()
	source := &countingSource{}
	cache := NewMetricCache(client, source, Options{TTL: 2 * time.Minute}, logger)

	first, err := cache.Fetch(context.Background(), "cpu_usage", window.start, window.end)
	require.NoError(t, err)

	second, err := cache.Fetch(context.Background(), "cpu_usage", window.start.Add(20*time.Second), window.end.Add(20*time.Second))
	require.NoError(t, err)

	assert.Equal(t, 1, source.calls, "second fetch in the same minute is served from redis")
	require.Len(t, second, 1)
	assert.Equal(t, first[0].Name, second[0].Name)
	assert.Equal(t, first[0].DataPoints[0].Value, second[0].DataPoints[0].Value)
	assert.True(t, first[0].DataPoints[0].Timestamp.Equal(second[0].DataPoints[0].Timestamp))

	key := cache.Key("cpu_usage", window.start, window.end)
	assert.Equal(t, 2*time.Minute, client.ttls[key])
}

func TestMetricCacheKey(t *testing.T) {
	cache := NewMetricCache(newFakeRedis(), &countingSource{}, Options{}, nil)

	key := cache.Key("up", window.start, window.end)
	assert.Equal(t, "sphinx:metrics:up:1714563900:1714564800", key)
	assert.NotEqual(t, key, cache.Key("up", window.start, window.end.Add(time.Minute)))
}

func TestMetricCacheRedisFailuresFallThrough(t *testing.T) {
	logger, hook := test.NewNullLogger()
	client := newFakeRedis()
	client.getErr = errors.New("connection reset")
	client.setErr = errors.New("read only replica")
	source := &countingSource{}
	cache := NewMetricCache(client, source, Options{}, logger)

	metrics, err := cache.Fetch(context.Background(), "up", window.start, window.end)
	require.NoError(t, err)
	assert.Len(t, metrics, 1)
	assert.Equal(t, 1, source.calls)
	assert.Len(t, hook.AllEntries(), 2)
}

func TestMetricCacheCorruptEntry(t *testing.T) {
	logger, _ := test.NewNullLogger()
	client := newFakeRedis()
	source := &countingSource{}
	cache := NewMetricCache(client, source, Options{}, logger)

	key := cache.Key("up", window.start, window.end)
	client.values[key] = "{not json"

	metrics, err := cache.Fetch(context.Background(), "up", window.start, window.end)
	require.NoError(t, err)
	assert.Len(t, metrics, 1)
	assert.Equal(t, 1, source.calls)

	var stored []models.Metric
	require.NoError(t, json.Unmarshal([]byte(client.values[key]), &stored))
	assert.Len(t, stored, 1)
}

func TestMetricCacheSourceErrorNotCached(t *testing.T) {
	client := newFakeRedis()
	source := &countingSource{err: errors.New("prometheus down")}
	cache := NewMetricCache(client, source, Options{}, nil)

	_, err := cache.Fetch(context.Background(), "up", window.start, window.end)
	require.Error(t, err)
	assert.Empty(t, client.values)
}

func TestMetricCacheEmptyResultCached(t *testing.T) {
	client := newFakeRedis()
	cache := NewMetricCache(client, sourceFunc(func() []models.Metric { return nil }), Options{}, nil)

	metrics, err := cache.Fetch(context.Background(), "absent", window.start, window.end)
	require.NoError(t, err)
	assert.Empty(t, metrics)
	assert.Equal(t, "[]", client.values[cache.Key("absent", window.start, window.end)])
}

func TestMetricCachePingAndClose(t *testing.T) {
	client := newFakeRedis()
	cache := NewMetricCache(client, &countingSource{}, Options{}, nil)

	assert.NoError(t, cache.Ping(context.Background()))
	require.NoError(t, cache.Close())
	assert.True(t, client.closed)
}

type sourceFunc func() []models.Metric

func (f sourceFunc) Fetch(ctx context.Context, query string, start, end time.Time) ([]models.Metric, error) {
	return f(), nil
}
