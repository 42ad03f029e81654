// internal/server/handlers.go
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/RudraKhare/DeadClickCrawler/api/schemas"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// defaultWaitSeconds is applied when a run request omits wait_time.
const defaultWaitSeconds = 5

// Auditor runs click audits and retains the most recently published
// report. *orchestrator.Orchestrator satisfies it.
type Auditor interface {
	Run(ctx context.Context, req schemas.RunRequest) (*schemas.Report, error)
	LastReport() (*schemas.Report, error)
}

// errorResponse is the JSON envelope for every non-2xx response.
type errorResponse struct {
	Detail string `json:"detail"`
}

// Handlers manages the HTTP request handling for the audit API.
type Handlers struct {
	log        *zap.Logger
	auditor    Auditor
	defaultURL string
}

// NewHandlers creates a new Handlers instance. defaultURL is the audit
// target used when a run request does not name one.
func NewHandlers(logger *zap.Logger, auditor Auditor, defaultURL string) *Handlers {
	return &Handlers{
		log:        logger.Named("api_handlers"),
		auditor:    auditor,
		defaultURL: defaultURL,
	}
}

// RegisterRoutes sets up the routing for the audit API.
// This is called by the Server in internal/server/server.go.
func (h *Handlers) RegisterRoutes(r chi.Router) {
	r.Post("/run-test", h.HandleRunTest)
	r.Get("/results", h.HandleResults)
	r.Get("/status", h.HandleStatus)
}

// HandleRunTest runs a full audit of the requested page. The call is
// synchronous; the response carries the report the run published.
func (h *Handlers) HandleRunTest(w http.ResponseWriter, r *http.Request) {
	req, err := h.parseRunRequest(r)
	if err != nil {
		h.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := req.Validate(); err != nil {
		h.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	h.log.Info("Received run request.",
		zap.String("url", req.URL),
		zap.Int("wait_time", req.WaitTime),
		zap.String("strictness", string(req.Strictness)))

	report, err := h.auditor.Run(r.Context(), req)
	if err != nil {
		h.respondRunError(w, err)
		return
	}

	h.respondJSON(w, http.StatusOK, schemas.RunResponse{
		Status:  "success",
		Summary: report.Summary,
		Report:  report,
	})
}

// HandleResults returns the most recently published report.
func (h *Handlers) HandleResults(w http.ResponseWriter, r *http.Request) {
	report, err := h.auditor.LastReport()
	if err != nil {
		if errors.Is(err, schemas.ErrNoReport) {
			h.respondError(w, http.StatusNotFound, "No results available. Run a test first.")
			return
		}
		h.log.Error("Failed to load last report.", zap.Error(err))
		h.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	h.respondJSON(w, http.StatusOK, report)
}

// HandleStatus is a simple handler to confirm the server is responsive.
func (h *Handlers) HandleStatus(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// parseRunRequest merges an optional JSON body with the query string.
// Query parameters take precedence over body fields.
func (h *Handlers) parseRunRequest(r *http.Request) (schemas.RunRequest, error) {
	req := schemas.RunRequest{
		WaitTime:   defaultWaitSeconds,
		Strictness: schemas.StrictnessNormal,
	}

	if r.ContentLength != 0 && strings.Contains(r.Header.Get("Content-Type"), "application/json") {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			return req, fmt.Errorf("invalid request body: %v", err)
		}
	}

	q := r.URL.Query()
	if v := q.Get("url"); v != "" {
		req.URL = v
	}
	if v := q.Get("wait_time"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return req, fmt.Errorf("invalid wait_time %q: must be an integer number of seconds", v)
		}
		req.WaitTime = n
	}
	if v := q.Get("strictness"); v != "" {
		req.Strictness = schemas.Strictness(v)
	}

	if req.URL == "" {
		req.URL = h.defaultURL
	}
	return req, nil
}

// respondRunError maps run failures onto HTTP status codes. A rejected
// concurrent run is the caller's fault, an aborted run means the target
// environment failed, everything else is internal.
func (h *Handlers) respondRunError(w http.ResponseWriter, err error) {
	var aborted *schemas.RunAbortedError
	switch {
	case errors.Is(err, schemas.ErrRunInProgress):
		h.respondError(w, http.StatusConflict, err.Error())
	case errors.As(err, &aborted):
		h.log.Error("Run aborted.", zap.Error(err))
		h.respondError(w, http.StatusBadGateway, err.Error())
	default:
		h.log.Error("Run failed.", zap.Error(err))
		h.respondError(w, http.StatusInternalServerError, err.Error())
	}
}

// respondJSON writes payload with the given status code.
func (h *Handlers) respondJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.log.Error("Failed to encode response.", zap.Error(err))
	}
}

// respondError sends a standardized JSON error response.
func (h *Handlers) respondError(w http.ResponseWriter, statusCode int, detail string) {
	h.respondJSON(w, statusCode, errorResponse{Detail: detail})
}
