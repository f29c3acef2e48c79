package plugins

import (
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
)

type registration struct {
	analyzer Analyzer
	info     AnalyzerInfo
}

// Registry holds analyzers in registration order
type Registry struct {
	entries []registration
	mu      sync.RWMutex
	logger  *logrus.Logger
}

// NewRegistry creates a new analyzer registry
func NewRegistry(logger *logrus.Logger) *Registry {
	if logger == nil {
		logger = logrus.New()
	}
	return &Registry{
		logger: logger,
	}
}

// Register adds an analyzer. origin names where it came from (a unit path or "builtin").
// Analyzers sharing a name may coexist as long as they come from different origins.
func (r *Registry) Register(analyzer Analyzer, origin string) error {
	if analyzer == nil {
		return ErrNilAnalyzer
	}

	info, err := describe(analyzer, origin)
	if err != nil {
		return err
	}
	if info.Name == "" {
		return fmt.Errorf("analyzer name cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, entry := range r.entries {
		if entry.info.Name == info.Name && entry.info.Origin == origin {
			return fmt.Errorf("%w: %s (%s)", ErrDuplicateAnalyzer, info.Name, origin)
		}
	}

	r.entries = append(r.entries, registration{analyzer: analyzer, info: info})
	r.logger.Debugf("Registered analyzer: %s (%s)", info.Name, origin)

	return nil
}

// describe reads the analyzer's identity once. Panics from a typed-nil or
// broken analyzer come back as ErrBrokenAnalyzer.
func describe(analyzer Analyzer, origin string) (info AnalyzerInfo, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("%w: %v", ErrBrokenAnalyzer, rec)
		}
	}()

	info = AnalyzerInfo{
		Name:   analyzer.Name(),
		Author: analyzer.Author(),
		Origin: origin,
	}
	if qp, ok := analyzer.(QueryProvider); ok {
		info.Queries = qp.Queries()
	}
	return info, nil
}

// RegisterFactories builds and registers the analyzers of each compiled-in factory.
// A failing or panicking factory is logged and skipped. Returns the number of analyzers added.
func (r *Registry) RegisterFactories(origin string, factories ...Factory) int {
	added := 0
	for i, factory := range factories {
		unit := fmt.Sprintf("%s#%d", origin, i)
		analyzers, err := safeBuild(factory)
		if err != nil {
			r.logger.Errorf("%v", NewLoadError(unit, err))
			continue
		}
		added += r.registerAll(unit, analyzers)
	}
	return added
}

func (r *Registry) registerAll(origin string, analyzers []Analyzer) int {
	added := 0
	for _, analyzer := range analyzers {
		if analyzer == nil {
			r.logger.Debugf("Unit %s returned a nil analyzer, skipping", origin)
			continue
		}
		if err := r.Register(analyzer, origin); err != nil {
			if errors.Is(err, ErrBrokenAnalyzer) {
				r.logger.Errorf("%v", NewLoadError(origin, err))
			} else {
				r.logger.Warnf("Skipping analyzer from %s: %v", origin, err)
			}
			continue
		}
		added++
	}
	if added == 0 {
		r.logger.Debugf("Unit %s contributed no analyzers", origin)
	}
	return added
}

func safeBuild(factory Factory) (analyzers []Analyzer, err error) {
	if factory == nil {
		return nil, ErrNoFactory
	}
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic during instantiation: %v", rec)
		}
	}()
	return factory()
}

// Get retrieves the first analyzer registered under name
func (r *Registry) Get(name string) (Analyzer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, entry := range r.entries {
		if entry.info.Name == name {
			return entry.analyzer, nil
		}
	}

	return nil, fmt.Errorf("%w: %s", ErrAnalyzerNotFound, name)
}

// Analyzers returns all registered analyzers in registration order
func (r *Registry) Analyzers() []Analyzer {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Analyzer, 0, len(r.entries))
	for _, entry := range r.entries {
		result = append(result, entry.analyzer)
	}

	return result
}

// List returns the names of all registered analyzers in registration order
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.entries))
	for _, entry := range r.entries {
		names = append(names, entry.info.Name)
	}

	return names
}

// Count returns the number of registered analyzers
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.entries)
}

// Info returns detailed information about all analyzers
func (r *Registry) Info() []AnalyzerInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	info := make([]AnalyzerInfo, 0, len(r.entries))
	for _, entry := range r.entries {
		item := entry.info
		item.Queries = append([]string(nil), entry.info.Queries...)
		info = append(info, item)
	}

	return info
}
