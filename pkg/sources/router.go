package sources

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Tsahi-Elkayam/sphinx/pkg/models"
)

// Common router errors
var (
	// ErrSourceNotFound is returned when no source is registered under a name
	ErrSourceNotFound = errors.New("metric source not found")

	// ErrNoRoute is returned when no source claims a query and there is no default
	ErrNoRoute = errors.New("no metric source for query")
)

// Source is a named metric backend that can tell which queries it serves
type Source interface {
	Name() string
	Supports(query string) bool
	Fetch(ctx context.Context, query string, start, end time.Time) ([]models.Metric, error)
}

// FetchError records which source failed a query
type FetchError struct {
	Source string
	Query  string
	Cause  error
}

// Error implements the error interface
func (e *FetchError) Error() string {
	return fmt.Sprintf("source %s failed to fetch %q: %v", e.Source, e.Query, e.Cause)
}

// Unwrap returns the underlying error
func (e *FetchError) Unwrap() error {
	return e.Cause
}

// IsFetchError checks if an error came from a routed fetch
func IsFetchError(err error) bool {
	var fetchErr *FetchError
	return errors.As(err, &fetchErr)
}

// Router sends each query to the first registered source claiming it,
// falling back to the default source
type Router struct {
	sources  []Source
	fallback Source
	mu       sync.RWMutex
	logger   *logrus.Logger
}

// NewRouter creates a router whose unclaimed queries go to fallback
func NewRouter(fallback Source, logger *logrus.Logger) *Router {
	if logger == nil {
		logger = logrus.New()
	}
	return &Router{
		fallback: fallback,
		logger:   logger,
	}
}

// Register appends a source; earlier registrations take precedence
func (r *Router) Register(source Source) error {
	if source == nil {
		return fmt.Errorf("source cannot be nil")
	}

	name := source.Name()
	if name == "" {
		return fmt.Errorf("source name cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.fallback != nil && r.fallback.Name() == name {
		return fmt.Errorf("source %s already registered", name)
	}
	for _, existing := range r.sources {
		if existing.Name() == name {
			return fmt.Errorf("source %s already registered", name)
		}
	}

	r.sources = append(r.sources, source)
	r.logger.Debugf("Registered metric source: %s", name)
	return nil
}

// Route returns the source that will serve query
func (r *Router) Route(query string) (Source, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, source := range r.sources {
		if source.Supports(query) {
			return source, nil
		}
	}

	if r.fallback == nil {
		return nil, fmt.Errorf("%w: %q", ErrNoRoute, query)
	}
	return r.fallback, nil
}

// Fetch implements the metric source port
func (r *Router) Fetch(ctx context.Context, query string, start, end time.Time) ([]models.Metric, error) {
	source, err := r.Route(query)
	if err != nil {
		return nil, err
	}

	r.logger.Debugf("Routing %q to %s", query, source.Name())
	metrics, err := source.Fetch(ctx, query, start, end)
	if err != nil {
		return nil, &FetchError{Source: source.Name(), Query: query, Cause: err}
	}
	return metrics, nil
}

// Get retrieves a source by name, including the default
func (r *Router) Get(name string) (Source, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.fallback != nil && r.fallback.Name() == name {
		return r.fallback, nil
	}
	for _, source := range r.sources {
		if source.Name() == name {
			return source, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrSourceNotFound, name)
}

// List returns source names in routing order, default last
func (r *Router) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.sources)+1)
	for _, source := range r.sources {
		names = append(names, source.Name())
	}
	if r.fallback != nil {
		names = append(names, r.fallback.Name())
	}
	return names
}

// Count returns the number of sources including the default
func (r *Router) Count() int {
	return len(r.List())
}
