package types

import (
	"strings"
	"time"

	"github.com/Tsahi-Elkayam/sphinx/pkg/models"
)

// DefaultPerPage is the page size used when none is requested
const DefaultPerPage = 50

// OpportunityFilters narrows a list of opportunities
type OpportunityFilters struct {
	Sources   []string `json:"sources,omitempty"`
	Resources []string `json:"resources,omitempty"`
	Search    string   `json:"search,omitempty"`
	Enriched  *bool    `json:"enriched,omitempty"`
}

// IsEmpty reports whether the filters let everything through
func (f OpportunityFilters) IsEmpty() bool {
	return len(f.Sources) == 0 && len(f.Resources) == 0 && f.Search == "" && f.Enriched == nil
}

// Matches reports whether an opportunity passes every filter
func (f OpportunityFilters) Matches(opportunity models.OptimizationOpportunity) bool {
	if len(f.Sources) > 0 && !containsFold(f.Sources, opportunity.Source) {
		return false
	}
	if len(f.Resources) > 0 && !containsFold(f.Resources, opportunity.ResourceAddress) {
		return false
	}
	if f.Search != "" {
		needle := strings.ToLower(f.Search)
		if !strings.Contains(strings.ToLower(opportunity.Title), needle) &&
			!strings.Contains(strings.ToLower(opportunity.Description), needle) {
			return false
		}
	}
	if f.Enriched != nil && opportunity.IsEnriched() != *f.Enriched {
		return false
	}
	return true
}

// Apply returns the opportunities that match, preserving order
func (f OpportunityFilters) Apply(opportunities []models.OptimizationOpportunity) []models.OptimizationOpportunity {
	if f.IsEmpty() {
		return opportunities
	}

	filtered := make([]models.OptimizationOpportunity, 0, len(opportunities))
	for _, opportunity := range opportunities {
		if f.Matches(opportunity) {
			filtered = append(filtered, opportunity)
		}
	}
	return filtered
}

// HistoryFilters narrows the apply history
type HistoryFilters struct {
	Resource     string     `json:"resource,omitempty"`
	AppliedAfter *time.Time `json:"applied_after,omitempty"`
}

// Apply returns the records that match, preserving order
func (f HistoryFilters) Apply(records []models.ActionRecord) []models.ActionRecord {
	filtered := make([]models.ActionRecord, 0, len(records))
	for _, record := range records {
		if f.Resource != "" && !strings.EqualFold(record.ResourceAddress, f.Resource) {
			continue
		}
		if f.AppliedAfter != nil && !record.AppliedAt.After(*f.AppliedAfter) {
			continue
		}
		filtered = append(filtered, record)
	}
	return filtered
}

// Paginate returns the [start, end) slice bounds for a page along with its metadata.
// Pages are 1-based; out-of-range pages yield an empty range.
func Paginate(total, page, perPage int) (int, int, models.PaginationInfo) {
	if perPage <= 0 {
		perPage = DefaultPerPage
	}
	if page <= 0 {
		page = 1
	}

	start := (page - 1) * perPage
	if start > total {
		start = total
	}
	end := start + perPage
	if end > total {
		end = total
	}

	return start, end, models.PaginationInfo{
		Page:    page,
		PerPage: perPage,
		Total:   total,
		HasNext: end < total,
		HasPrev: page > 1,
	}
}

func containsFold(values []string, value string) bool {
	for _, v := range values {
		if strings.EqualFold(v, value) {
			return true
		}
	}
	return false
}
