package main

import (
	"os"

	"github.com/Tsahi-Elkayam/sphinx/cmd/sphinx"
	"github.com/Tsahi-Elkayam/sphinx/pkg/utils"
)

func main() {
	logger := utils.NewLogger()

	rootCmd := sphinx.NewRootCommand(logger)

	if err := rootCmd.Execute(); err != nil {
		logger.Error(err)
		os.Exit(1)
	}
}
