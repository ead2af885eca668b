package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/nl2sql-gateway/sqlgate/internal/audit"
	"github.com/nl2sql-gateway/sqlgate/internal/core/pipeline"
	"github.com/nl2sql-gateway/sqlgate/internal/core/schema"
	"github.com/nl2sql-gateway/sqlgate/internal/core/sqlerr"
	"github.com/nl2sql-gateway/sqlgate/internal/logutil"
	"github.com/nl2sql-gateway/sqlgate/internal/modelclient"
	"github.com/nl2sql-gateway/sqlgate/internal/schemareg"
)

// TenantHeader is the request header carrying the caller's tenant ID,
// standing in for whatever upstream auth system supplies it.
const TenantHeader = "X-Tenant-Id"

// Handler holds every dependency the HTTP surface needs to serve
// requests. It carries no package-level state; everything is injected
// at construction time.
type Handler struct {
	Pipeline        *pipeline.Pipeline
	Model           modelclient.Client
	Schema          *schemareg.Registry
	AuditHub        *audit.Hub
	Log             *zap.Logger
	HardRowCap      int
	DefaultPageSize int
}

type queryBody struct {
	Question string `json:"question"`
	Page     int    `json:"page"`
	PageSize int    `json:"pageSize"`
}

type queryResponse struct {
	RequestID        string           `json:"requestId"`
	Rows             []map[string]any `json:"rows"`
	HasMore          bool             `json:"hasMore"`
	DisplayLimit     int              `json:"displayLimit"`
	ReferencedTables []string         `json:"referencedTables"`
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, err *sqlerr.Error) {
	writeJSON(w, statusFor(err.Code), errorResponse{Code: string(err.Code), Message: err.Message})
}

// HandleQuery answers a natural-language question: it asks the model
// client for candidate SQL, runs it through the safety pipeline, and
// executes the rewritten statement read-only against the tenant's data.
func (h *Handler) HandleQuery(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	tenantID := r.Header.Get(TenantHeader)
	if tenantID == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Code: "BAD_REQUEST", Message: TenantHeader + " header is required"})
		return
	}

	var body queryBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Code: "BAD_REQUEST", Message: "invalid JSON body"})
		return
	}
	if body.Page <= 0 {
		body.Page = 1
	}
	if body.PageSize <= 0 {
		body.PageSize = h.DefaultPageSize
	}

	snap := h.Schema.Current()
	if snap == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{
			Code: "SCHEMA_NOT_READY", Message: "schema snapshot has not been loaded yet",
		})
		return
	}

	event := audit.Event{RequestID: uuid.NewString(), TenantID: tenantID, At: start}
	defer func() {
		event.DurationMs = durationMs(start)
		h.AuditHub.Publish(event)
	}()

	candidateSQL, err := h.Model.GenerateCandidateSQL(r.Context(), body.Question, schema.FormatForPrompt(snap))
	if err != nil {
		event.ErrorCode = "MODEL_ERROR"
		h.Log.Warn("model_error", logutil.Values(zap.Error(err)))
		writeJSON(w, http.StatusBadGateway, errorResponse{Code: "MODEL_ERROR", Message: "candidate generation failed"})
		return
	}

	out, rerr := pipeline.ValidateAndRewrite(pipeline.Request{
		CandidateSQL: candidateSQL,
		Snapshot:     snap,
		TenantID:     tenantID,
		Page:         body.Page,
		PageSize:     body.PageSize,
		HardCap:      h.HardRowCap,
	})
	if rerr != nil {
		event.ErrorCode = string(rerr.Code)
		writeError(w, rerr)
		return
	}
	event.ReferencedTables = out.ReferencedTables
	event.DisplayLimit = out.DisplayLimit
	event.FetchLimit = out.FetchLimit

	rows, hasMore, rerr := h.Pipeline.Execute(r.Context(), out)
	if rerr != nil {
		event.ErrorCode = string(rerr.Code)
		writeError(w, rerr)
		return
	}

	asMaps := make([]map[string]any, len(rows))
	for i, row := range rows {
		asMaps[i] = row
	}

	writeJSON(w, http.StatusOK, queryResponse{
		RequestID:        event.RequestID,
		Rows:             asMaps,
		HasMore:          hasMore,
		DisplayLimit:     out.DisplayLimit,
		ReferencedTables: out.ReferencedTables,
	})
}

// HandleHealthz reports process liveness.
func (h *Handler) HandleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// HandleSchema renders the current schema snapshot in the same prompt
// format the model client receives, mainly for operator debugging.
func (h *Handler) HandleSchema(w http.ResponseWriter, _ *http.Request) {
	snap := h.Schema.Current()
	if snap == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{
			Code: "SCHEMA_NOT_READY", Message: "schema snapshot has not been loaded yet",
		})
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(schema.FormatForPrompt(snap)))
}

func durationMs(start time.Time) int64 {
	return time.Since(start).Milliseconds()
}
