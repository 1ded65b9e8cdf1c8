package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"overture/internal/directive"
	"overture/internal/graph"
	"overture/internal/logging"
	"overture/internal/metrics"
	"overture/internal/supervisor"
	"overture/internal/template"
)

const defaultStatusLines = 100

// RestHandler serves the control surface. Every route maps 1:1 onto a
// supervisor or template-store operation.
type RestHandler struct {
	Supervisor *supervisor.Supervisor
	Templates  *template.Store
	Metrics    *metrics.Registry
	Logger     *logging.Logger
}

type statusResponse struct {
	EnvironmentCount int       `json:"environment_count"`
	TemplateCount    int       `json:"template_count"`
	ServerTime       time.Time `json:"server_time"`
}

type launchRequest struct {
	Directives     []string `json:"directives"`
	TimeoutSeconds float64  `json:"timeout_seconds"`
}

type launchResponse struct {
	ID string `json:"id"`
}

type terminateResponse struct {
	ID         string `json:"id"`
	Terminated bool   `json:"terminated"`
}

type templateLaunchRequest struct {
	Values         map[string]string `json:"values"`
	TimeoutSeconds float64           `json:"timeout_seconds"`
}

type expandResponse struct {
	Template   string   `json:"template"`
	Directives []string `json:"directives"`
}

func (h *RestHandler) requireSupervisor() *apiError {
	if h.Supervisor == nil {
		return &apiError{Status: http.StatusInternalServerError, Message: "supervisor unavailable"}
	}
	return nil
}

func (h *RestHandler) requireTemplates() *apiError {
	if h.Templates == nil {
		return &apiError{Status: http.StatusInternalServerError, Message: "template store unavailable"}
	}
	return nil
}

func (h *RestHandler) handleStatus(w http.ResponseWriter, r *http.Request) *apiError {
	if err := h.requireSupervisor(); err != nil {
		return err
	}
	if r.Method != http.MethodGet {
		return methodNotAllowed(w, "GET")
	}

	templateCount := 0
	if h.Templates != nil {
		templateCount = len(h.Templates.List())
	}
	writeJSON(w, http.StatusOK, statusResponse{
		EnvironmentCount: len(h.Supervisor.List()),
		TemplateCount:    templateCount,
		ServerTime:       time.Now().UTC(),
	})
	return nil
}

func (h *RestHandler) handleEnvironments(w http.ResponseWriter, r *http.Request) *apiError {
	if err := h.requireSupervisor(); err != nil {
		return err
	}

	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, h.Supervisor.Summaries())
		return nil
	case http.MethodPost:
		return h.launchEnvironment(w, r)
	default:
		return methodNotAllowed(w, "GET, POST")
	}
}

func (h *RestHandler) launchEnvironment(w http.ResponseWriter, r *http.Request) *apiError {
	var request launchRequest
	if err := decodeJSON(r.Body, &request); err != nil {
		return err
	}
	if len(request.Directives) == 0 {
		return &apiError{Status: http.StatusBadRequest, Message: "directives required"}
	}

	id, err := h.Supervisor.Launch(supervisor.LaunchSpec{
		Directives: request.Directives,
		Timeout:    secondsToDuration(request.TimeoutSeconds),
	})
	if err != nil {
		return launchError(err)
	}

	writeJSON(w, http.StatusCreated, launchResponse{ID: id})
	return nil
}

func (h *RestHandler) handleEnvironment(w http.ResponseWriter, r *http.Request) *apiError {
	if err := h.requireSupervisor(); err != nil {
		return err
	}

	id := strings.TrimPrefix(r.URL.Path, "/api/environments/")
	if id == "" || strings.Contains(id, "/") {
		return &apiError{Status: http.StatusBadRequest, Message: "invalid environment id"}
	}

	switch r.Method {
	case http.MethodGet:
		return h.environmentStatus(w, r, id)
	case http.MethodDelete:
		h.Supervisor.Terminate(id)
		writeJSON(w, http.StatusOK, terminateResponse{ID: id, Terminated: true})
		return nil
	default:
		return methodNotAllowed(w, "GET, DELETE")
	}
}

func (h *RestHandler) environmentStatus(w http.ResponseWriter, r *http.Request, id string) *apiError {
	lines := defaultStatusLines
	if raw := r.URL.Query().Get("lines"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			return &apiError{Status: http.StatusBadRequest, Message: "invalid lines parameter"}
		}
		lines = parsed
	}

	snap, err := h.Supervisor.Status(id, lines)
	if err != nil {
		var notFound *supervisor.NotFoundError
		if errors.As(err, &notFound) {
			return &apiError{Status: http.StatusNotFound, Message: err.Error()}
		}
		return &apiError{Status: http.StatusInternalServerError, Message: err.Error()}
	}

	writeJSON(w, http.StatusOK, snap)
	return nil
}

func (h *RestHandler) handleTemplates(w http.ResponseWriter, r *http.Request) *apiError {
	if err := h.requireTemplates(); err != nil {
		return err
	}
	if r.Method != http.MethodGet {
		return methodNotAllowed(w, "GET")
	}
	writeJSON(w, http.StatusOK, h.Templates.List())
	return nil
}

// handleTemplate serves /api/templates/{name}/expand and
// /api/templates/{name}/launch.
func (h *RestHandler) handleTemplate(w http.ResponseWriter, r *http.Request) *apiError {
	if err := h.requireTemplates(); err != nil {
		return err
	}

	rest := strings.TrimPrefix(r.URL.Path, "/api/templates/")
	name, verb, found := strings.Cut(rest, "/")
	if !found || name == "" {
		return &apiError{Status: http.StatusBadRequest, Message: "invalid template path"}
	}
	if r.Method != http.MethodPost {
		return methodNotAllowed(w, "POST")
	}

	var request templateLaunchRequest
	if err := decodeJSON(r.Body, &request); err != nil {
		return err
	}

	directives, err := h.Templates.Expand(name, request.Values)
	if err != nil {
		return templateError(err)
	}

	switch verb {
	case "expand":
		writeJSON(w, http.StatusOK, expandResponse{Template: name, Directives: directives})
		return nil
	case "launch":
		if err := h.requireSupervisor(); err != nil {
			return err
		}
		id, err := h.Supervisor.Launch(supervisor.LaunchSpec{
			Directives: directives,
			Timeout:    secondsToDuration(request.TimeoutSeconds),
			Template:   name,
		})
		if err != nil {
			return launchError(err)
		}
		writeJSON(w, http.StatusCreated, launchResponse{ID: id})
		return nil
	default:
		return &apiError{Status: http.StatusNotFound, Message: "unknown template operation"}
	}
}

func (h *RestHandler) handleLogs(w http.ResponseWriter, r *http.Request) *apiError {
	if h.Logger == nil || h.Logger.Buffer() == nil {
		return &apiError{Status: http.StatusInternalServerError, Message: "log buffer unavailable"}
	}
	if r.Method != http.MethodGet {
		return methodNotAllowed(w, "GET")
	}

	entries := h.Logger.Buffer().List()

	if raw := r.URL.Query().Get("level"); raw != "" {
		level, ok := logging.ParseLevel(raw)
		if !ok {
			return &apiError{Status: http.StatusBadRequest, Message: "invalid level parameter"}
		}
		filtered := entries[:0:0]
		for _, entry := range entries {
			if logging.LevelAtLeast(entry.Level, level) {
				filtered = append(filtered, entry)
			}
		}
		entries = filtered
	}

	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			return &apiError{Status: http.StatusBadRequest, Message: "invalid limit parameter"}
		}
		if limit < len(entries) {
			entries = entries[len(entries)-limit:]
		}
	}

	writeJSON(w, http.StatusOK, entries)
	return nil
}

func (h *RestHandler) handleMetrics(w http.ResponseWriter, r *http.Request) *apiError {
	if r.Method != http.MethodGet {
		return methodNotAllowed(w, "GET")
	}
	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
	_ = h.Metrics.WritePrometheus(w)
	return nil
}

// decodeJSON tolerates an empty body; required fields are validated by
// the callers.
func decodeJSON(body io.Reader, target any) *apiError {
	decoder := json.NewDecoder(body)
	if err := decoder.Decode(target); err != nil && !errors.Is(err, io.EOF) {
		return &apiError{Status: http.StatusBadRequest, Message: "invalid json body"}
	}
	return nil
}

func secondsToDuration(seconds float64) time.Duration {
	if seconds <= 0 {
		return 0
	}
	return time.Duration(seconds * float64(time.Second))
}

// launchError maps batch validation failures onto 400s with stable
// codes; everything in them happened before any process was spawned.
func launchError(err error) *apiError {
	var malformed *directive.MalformedError
	if errors.As(err, &malformed) {
		return &apiError{Status: http.StatusBadRequest, Message: err.Error(), Code: "malformed_directive"}
	}
	var duplicate *graph.DuplicateNameError
	if errors.As(err, &duplicate) {
		return &apiError{Status: http.StatusBadRequest, Message: err.Error(), Code: "duplicate_name"}
	}
	var unknown *graph.UnknownReferenceError
	if errors.As(err, &unknown) {
		return &apiError{Status: http.StatusBadRequest, Message: err.Error(), Code: "unknown_reference"}
	}
	var cycle *graph.CycleError
	if errors.As(err, &cycle) {
		return &apiError{Status: http.StatusBadRequest, Message: err.Error(), Code: "cycle_detected"}
	}
	return &apiError{Status: http.StatusInternalServerError, Message: err.Error()}
}

func templateError(err error) *apiError {
	var unknown *template.UnknownTemplateError
	if errors.As(err, &unknown) {
		return &apiError{Status: http.StatusNotFound, Message: err.Error(), Code: "unknown_template"}
	}
	var missing *template.MissingSubstitutionError
	if errors.As(err, &missing) {
		return &apiError{Status: http.StatusBadRequest, Message: err.Error(), Code: "missing_substitution"}
	}
	return &apiError{Status: http.StatusInternalServerError, Message: err.Error()}
}
