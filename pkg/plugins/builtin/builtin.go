// Package builtin contains the analyzers compiled into the binary.
package builtin

import (
	"github.com/sirupsen/logrus"

	"github.com/Tsahi-Elkayam/sphinx/pkg/plugins"
)

// Origin is the registry origin of compiled-in analyzers
const Origin = "builtin"

// Factories returns the compiled-in analyzer factories
func Factories(logger *logrus.Logger) []plugins.Factory {
	return []plugins.Factory{
		func() ([]plugins.Analyzer, error) {
			return []plugins.Analyzer{NewEBSGp2Analyzer(logger)}, nil
		},
		func() ([]plugins.Analyzer, error) {
			return []plugins.Analyzer{NewHighMemoryAnalyzer()}, nil
		},
	}
}

// Register adds every compiled-in analyzer to the registry
func Register(registry *plugins.Registry, logger *logrus.Logger) int {
	return registry.RegisterFactories(Origin, Factories(logger)...)
}
