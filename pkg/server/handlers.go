package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/Tsahi-Elkayam/sphinx/pkg/models"
	"github.com/Tsahi-Elkayam/sphinx/pkg/service"
	"github.com/Tsahi-Elkayam/sphinx/pkg/storage"
	"github.com/Tsahi-Elkayam/sphinx/pkg/types"
)

// maxBodyBytes caps request bodies; IaC files are small
const maxBodyBytes = 1 << 20

type planRequest struct {
	File      models.IaCFile `json:"file"`
	Workspace string         `json:"workspace,omitempty"`
}

type workspaceRequest struct {
	Name    string                   `json:"name"`
	Backend models.BackendDescriptor `json:"backend_config"`
}

type generateRequest struct {
	Request string `json:"request"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, map[string]string{"status": "ok"}, http.StatusOK)
}

// handleOpportunities runs a cycle, or serves the last one with ?cached=true
func (s *Server) handleOpportunities(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filters, err := opportunityFilters(query.Get)
	if err != nil {
		respondError(w, err.Error(), http.StatusBadRequest)
		return
	}

	var opportunities []models.OptimizationOpportunity
	var generatedAt time.Time
	if query.Get("cached") == "true" {
		var last []models.OptimizationOpportunity
		last, generatedAt = s.svc.LastCycle()
		opportunities = filters.Apply(last)
	} else {
		opportunities, err = s.svc.Analyze(r.Context(), filters)
		if err != nil {
			s.respondServiceError(w, err)
			return
		}
		_, generatedAt = s.svc.LastCycle()
	}
	if opportunities == nil {
		opportunities = []models.OptimizationOpportunity{}
	}

	page, perPage := pageParams(query.Get)
	start, end, pagination := types.Paginate(len(opportunities), page, perPage)
	respondJSON(w, models.Result{
		Data:       opportunities[start:end],
		Pagination: &pagination,
		Metadata:   map[string]interface{}{"generated_at": generatedAt},
	}, http.StatusOK)
}

func (s *Server) handleOpportunity(w http.ResponseWriter, r *http.Request) {
	opportunity, err := s.svc.FindOpportunity(mux.Vars(r)["id"])
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	respondJSON(w, opportunity, http.StatusOK)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filters := types.HistoryFilters{Resource: query.Get("resource")}
	if after := query.Get("after"); after != "" {
		t, err := time.Parse(time.RFC3339, after)
		if err != nil {
			respondError(w, fmt.Sprintf("invalid after timestamp %q: expected RFC3339", after), http.StatusBadRequest)
			return
		}
		filters.AppliedAfter = &t
	}

	records, err := s.svc.History(r.Context(), filters)
	if err != nil {
		s.respondServiceError(w, err)
		return
	}

	page, perPage := pageParams(query.Get)
	start, end, pagination := types.Paginate(len(records), page, perPage)
	respondJSON(w, models.Result{
		Data:       records[start:end],
		Pagination: &pagination,
	}, http.StatusOK)
}

func (s *Server) handleListWorkspaces(w http.ResponseWriter, r *http.Request) {
	workspaces, err := s.svc.Workspaces(r.Context())
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	respondJSON(w, models.Result{Data: workspaces}, http.StatusOK)
}

func (s *Server) handleAddWorkspace(w http.ResponseWriter, r *http.Request) {
	var req workspaceRequest
	if !decodeBody(w, r, &req) {
		return
	}

	workspace, err := s.svc.AddWorkspace(r.Context(), req.Name, req.Backend)
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	respondJSON(w, workspace, http.StatusCreated)
}

func (s *Server) handlePlan(w http.ResponseWriter, r *http.Request) {
	var req planRequest
	if !decodeBody(w, r, &req) {
		return
	}

	plan, err := s.svc.Plan(r.Context(), req.File, req.Workspace)
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	respondJSON(w, plan, http.StatusOK)
}

func (s *Server) handleApply(w http.ResponseWriter, r *http.Request) {
	var req service.ApplyRequest
	if !decodeBody(w, r, &req) {
		return
	}

	result, err := s.svc.Apply(r.Context(), req)
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	respondJSON(w, result, http.StatusOK)
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if !decodeBody(w, r, &req) {
		return
	}

	file, err := s.svc.Generate(r.Context(), req.Request)
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	respondJSON(w, file, http.StatusOK)
}

func opportunityFilters(get func(string) string) (types.OpportunityFilters, error) {
	filters := types.OpportunityFilters{
		Sources:   splitList(get("source")),
		Resources: splitList(get("resource")),
		Search:    get("search"),
	}
	if raw := get("enriched"); raw != "" {
		enriched, err := strconv.ParseBool(raw)
		if err != nil {
			return filters, fmt.Errorf("invalid enriched value %q", raw)
		}
		filters.Enriched = &enriched
	}
	return filters, nil
}

func pageParams(get func(string) string) (int, int) {
	page, _ := strconv.Atoi(get("page"))
	perPage, _ := strconv.Atoi(get("per_page"))
	return page, perPage
}

func splitList(raw string) []string {
	if raw == "" {
		return nil
	}
	var values []string
	for _, v := range strings.Split(raw, ",") {
		if v = strings.TrimSpace(v); v != "" {
			values = append(values, v)
		}
	}
	return values
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		respondError(w, "Invalid JSON: "+err.Error(), http.StatusBadRequest)
		return false
	}
	return true
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrOpportunityNotFound), errors.Is(err, service.ErrNoCycle),
		errors.Is(err, storage.ErrWorkspaceNotFound):
		return http.StatusNotFound
	case errors.Is(err, storage.ErrAlreadyExists):
		return http.StatusConflict
	case errors.Is(err, service.ErrGeneratorUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) respondServiceError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Errorf("Request failed: %v", err)
	}
	respondError(w, err.Error(), status)
}

func respondJSON(w http.ResponseWriter, data interface{}, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, message string, status int) {
	respondJSON(w, map[string]string{"error": message}, status)
}
