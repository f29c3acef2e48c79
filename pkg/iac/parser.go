package iac

import (
	"regexp"
	"strings"

	"github.com/Tsahi-Elkayam/sphinx/pkg/models"
)

var changeLinePattern = regexp.MustCompile(`^\s*(?:#|~|-)\s+([\w.\-\[\]"]+)\s+(?:will be|must be|\{|~)`)

// ParsePlanOutput extracts resource changes from human-readable plan output.
// The first occurrence of an address wins; later duplicates are dropped.
func ParsePlanOutput(output string) []models.ResourceChange {
	changes := make([]models.ResourceChange, 0)
	seen := make(map[string]bool)

	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSuffix(line, "\r")
		match := changeLinePattern.FindStringSubmatch(line)
		if match == nil {
			continue
		}

		address := strings.ReplaceAll(match[1], `"`, "")
		if seen[address] {
			continue
		}
		seen[address] = true

		changes = append(changes, models.ResourceChange{
			Address: address,
			Action:  classifyLine(line),
		})
	}

	return changes
}

func classifyLine(line string) models.ChangeAction {
	action := models.ActionUpdate
	if strings.Contains(line, "will be created") || strings.HasPrefix(strings.TrimSpace(line), "#") {
		action = models.ActionCreate
	}
	if strings.Contains(line, "will be destroyed") {
		action = models.ActionDelete
	}
	if strings.Contains(line, "must be replaced") {
		action = models.ActionReplace
	}
	return action
}
