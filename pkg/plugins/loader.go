package plugins

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"plugin"
	"strings"
)

// Symbols a shared-library unit must export
const (
	SymbolABIVersion   = "SphinxPluginABI"
	SymbolNewAnalyzers = "NewAnalyzers"
)

// UnitExtension is the file extension of loadable units
const UnitExtension = ".so"

// UnitLoader loads the analyzers of one unit file
type UnitLoader interface {
	Load(path string) ([]Analyzer, error)
}

// SharedObjectLoader loads units built with -buildmode=plugin
type SharedObjectLoader struct{}

// Load opens the shared object, checks its ABI version and calls its constructor
func (SharedObjectLoader) Load(path string) ([]Analyzer, error) {
	p, err := plugin.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open shared object: %w", err)
	}

	abiSym, err := p.Lookup(SymbolABIVersion)
	if err != nil {
		return nil, fmt.Errorf("%w: missing %s", ErrABIMismatch, SymbolABIVersion)
	}
	version, ok := abiSym.(*string)
	if !ok || *version != ABIVersion {
		return nil, fmt.Errorf("%w: want %s", ErrABIMismatch, ABIVersion)
	}

	ctorSym, err := p.Lookup(SymbolNewAnalyzers)
	if err != nil {
		return nil, ErrNoFactory
	}

	switch ctor := ctorSym.(type) {
	case func() []Analyzer:
		return ctor(), nil
	case *func() []Analyzer:
		return (*ctor)(), nil
	case func() ([]Analyzer, error):
		return ctor()
	default:
		return nil, fmt.Errorf("%w: %s has type %T", ErrNoFactory, SymbolNewAnalyzers, ctorSym)
	}
}

// Discover scans dir for loadable units and registers the analyzers of each.
// Failures are isolated per unit: they are logged and the unit is skipped.
// A missing directory is logged and contributes nothing.
func (r *Registry) Discover(dir string, loader UnitLoader) int {
	if loader == nil {
		loader = SharedObjectLoader{}
	}

	r.logger.Infof("Searching for analyzer units in %s", dir)

	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			r.logger.Warnf("Plugins directory %s not found", dir)
		} else {
			r.logger.Errorf("Failed to read plugins directory %s: %v", dir, err)
		}
		return 0
	}

	added := 0
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), UnitExtension) {
			continue
		}

		path := filepath.Join(dir, entry.Name())
		analyzers, err := safeLoad(loader, path)
		if err != nil {
			r.logger.Errorf("%v", NewLoadError(entry.Name(), err))
			continue
		}

		added += r.registerAll(path, analyzers)
	}

	r.logger.Infof("Plugin discovery finished: %d analyzer(s) registered from %s", added, dir)
	return added
}

func safeLoad(loader UnitLoader, path string) (analyzers []Analyzer, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic during load: %v", rec)
		}
	}()
	return loader.Load(path)
}
