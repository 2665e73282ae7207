package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/shannon-run/shannon/workflow"
	"github.com/shannon-run/shannon/workflow/eventlog"
)

// submitRequest is the wire shape of POST /api/v1/tasks (spec §6).
type submitRequest struct {
	Query     string         `json:"query"`
	SessionID string         `json:"session_id,omitempty"`
	Mode      string         `json:"mode,omitempty"`
	Context   map[string]any `json:"context,omitempty"`
}

type submitResponse struct {
	TaskID  string `json:"task_id"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

// submitTask handles POST /api/v1/tasks.
func (s *Server) submitTask(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, newError(KindInvalidInput, "malformed request body: "+err.Error()))
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		writeError(w, newError(KindInvalidInput, "query must not be empty"))
		return
	}
	patternType := req.Mode
	if patternType == "" {
		patternType = s.defaultPattern
	}

	handle, err := s.svc.Submit(r.Context(), workflow.SubmitRequest{
		SessionID:   req.SessionID,
		PatternType: patternType,
		Query:       req.Query,
		Config:      req.Context,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, submitResponse{
		TaskID:  handle.WorkflowID,
		Status:  string(eventlog.StatusPending),
		Message: "task accepted",
	})
}

// getTaskResponse is the wire shape of GET /api/v1/tasks/{id} (spec §6).
type getTaskResponse struct {
	TaskID    string `json:"task_id"`
	Status    string `json:"status"`
	Progress  string `json:"progress,omitempty"`
	CreatedAt int64  `json:"created_at"`
	UpdatedAt int64  `json:"updated_at"`
}

func metaToResponse(meta eventlog.Metadata) getTaskResponse {
	updatedAt := meta.CreatedAt
	if meta.CompletedAt != 0 {
		updatedAt = meta.CompletedAt
	}
	return getTaskResponse{
		TaskID:    meta.WorkflowID,
		Status:    string(meta.Status),
		CreatedAt: meta.CreatedAt,
		UpdatedAt: updatedAt,
	}
}

// getTask handles GET /api/v1/tasks/{id}.
func (s *Server) getTask(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	meta, err := s.svc.Metadata(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, metaToResponse(meta))
}

type listTasksResponse struct {
	Tasks  []getTaskResponse `json:"tasks"`
	Limit  int               `json:"limit"`
	Offset int               `json:"offset"`
}

// listTasks handles GET /api/v1/tasks, paginated and filterable by
// status and session_id (spec §6).
func (s *Server) listTasks(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit := intOrDefault(q.Get("limit"), 20)
	offset := intOrDefault(q.Get("offset"), 0)
	status := eventlog.Status(q.Get("status"))

	rows, err := s.svc.ListTasks(r.Context(), status, q.Get("session_id"), limit, offset)
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]getTaskResponse, len(rows))
	for i, meta := range rows {
		out[i] = metaToResponse(meta)
	}
	writeJSON(w, http.StatusOK, listTasksResponse{Tasks: out, Limit: limit, Offset: offset})
}

func intOrDefault(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return def
	}
	return n
}

// streamTask handles GET /api/v1/tasks/{id}/stream, relaying the
// workflow's NormalizedEvent bus as Server-Sent Events, one event per
// normalized event, until the bus closes or the client disconnects
// (spec §6).
func (s *Server) streamTask(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	bus, ok := s.svc.Bus(id)
	if !ok {
		writeError(w, newError(KindNotFound, fmt.Sprintf("no active stream for task %q", id)))
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, newError(KindInternal, "streaming not supported"))
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch, unsubscribe := bus.Subscribe()
	defer unsubscribe()

	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case ev, open := <-ch:
			if !open {
				return
			}
			data, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Kind, data)
			flusher.Flush()
		case <-r.Context().Done():
			return
		}
	}
}

type controlRequest struct {
	Reason string `json:"reason,omitempty"`
}

// pauseTask, resumeTask, cancelTask handle POST
// /api/v1/tasks/{id}/{pause,resume,cancel} (spec §6). Reason is
// accepted but not persisted beyond logging; the durable record is
// the status transition itself.
func (s *Server) pauseTask(w http.ResponseWriter, r *http.Request)  { s.control(w, r, s.svc.Pause) }
func (s *Server) resumeTask(w http.ResponseWriter, r *http.Request) { s.control(w, r, s.svc.Resume) }
func (s *Server) cancelTask(w http.ResponseWriter, r *http.Request) { s.control(w, r, s.svc.Cancel) }

func (s *Server) control(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, workflowID string) error) {
	id := chi.URLParam(r, "id")
	var req controlRequest
	_ = json.NewDecoder(r.Body).Decode(&req) // body is optional

	if err := op(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// apiKeyRedactions are the known API-key patterns export must scrub
// from any exported text field before emission (spec §6).
var apiKeyRedactions = []*regexp.Regexp{
	regexp.MustCompile(`sk-[A-Za-z0-9]{48}`),
	regexp.MustCompile(`sk-ant-[A-Za-z0-9\-_]+`),
	regexp.MustCompile(`gsk_[A-Za-z0-9]{52}`),
	regexp.MustCompile(`AIza[A-Za-z0-9\-_]{35}`),
	regexp.MustCompile(`xai-[A-Za-z0-9]{48}`),
)

const redactedPlaceholder = "***REDACTED***"

func redact(s string) string {
	for _, re := range apiKeyRedactions {
		s = re.ReplaceAllString(s, redactedPlaceholder)
	}
	return s
}

// exportEnvelope is the JSON export format (spec §6): {version,
// workflow, exported_at, sanitized:true}.
type exportEnvelope struct {
	Version    string           `json:"version"`
	Workflow   eventlog.Metadata `json:"workflow"`
	ExportedAt time.Time        `json:"exported_at"`
	Sanitized  bool             `json:"sanitized"`
}

const exportVersion = "1.0"

func sanitizeMetadata(meta eventlog.Metadata) eventlog.Metadata {
	meta.Input = []byte(redact(string(meta.Input)))
	meta.Output = []byte(redact(string(meta.Output)))
	meta.SessionID = redact(meta.SessionID)
	return meta
}

// exportTask handles GET /api/v1/tasks/{id}/export?format=json|markdown
// (spec §6: "Export emits {version, workflow, exported_at, sanitized}").
func (s *Server) exportTask(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	meta, err := s.svc.Metadata(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	meta = sanitizeMetadata(meta)

	if r.URL.Query().Get("format") == "markdown" {
		w.Header().Set("Content-Type", "text/markdown")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(renderMarkdown(meta)))
		return
	}

	writeJSON(w, http.StatusOK, exportEnvelope{
		Version:    exportVersion,
		Workflow:   meta,
		ExportedAt: time.Now(),
		Sanitized:  true,
	})
}

// renderMarkdown produces the human report layout mined from the
// original implementation (Workflow Information / Input / Output /
// footer timestamp, SPEC_FULL.md §D.2).
func renderMarkdown(meta eventlog.Metadata) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Workflow Export\n\n")
	fmt.Fprintf(&b, "## Workflow Information\n\n")
	fmt.Fprintf(&b, "- **ID:** %s\n", meta.WorkflowID)
	fmt.Fprintf(&b, "- **Pattern:** %s\n", meta.PatternType)
	fmt.Fprintf(&b, "- **Status:** %s\n", meta.Status)
	fmt.Fprintf(&b, "- **Session:** %s\n\n", meta.SessionID)
	fmt.Fprintf(&b, "## Input\n\n```json\n%s\n```\n\n", meta.Input)
	fmt.Fprintf(&b, "## Output\n\n```json\n%s\n```\n\n", meta.Output)
	fmt.Fprintf(&b, "---\n_Exported %s_\n", time.Now().Format(time.RFC3339))
	return b.String()
}

// importTask handles POST /api/v1/tasks/import. A single envelope or a
// JSON array of envelopes of a compatible major version is accepted
// (spec §6: "Import accepts exports of compatible major version; batch
// import is an array").
func (s *Server) importTask(w http.ResponseWriter, r *http.Request) {
	var raw json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		writeError(w, newError(KindInvalidInput, "malformed request body: "+err.Error()))
		return
	}

	var envelopes []exportEnvelope
	if err := json.Unmarshal(raw, &envelopes); err != nil {
		var single exportEnvelope
		if err := json.Unmarshal(raw, &single); err != nil {
			writeError(w, newError(KindInvalidInput, "not a valid export envelope or array of envelopes"))
			return
		}
		envelopes = []exportEnvelope{single}
	}

	imported := 0
	for _, env := range envelopes {
		if majorVersion(env.Version) != majorVersion(exportVersion) {
			writeError(w, newError(KindInvalidInput, fmt.Sprintf("incompatible export version %q", env.Version)))
			return
		}
		if err := s.svc.ImportMetadata(r.Context(), env.Workflow); err != nil {
			writeError(w, err)
			return
		}
		imported++
	}
	writeJSON(w, http.StatusOK, map[string]int{"imported": imported})
}

func majorVersion(v string) string {
	parts := strings.SplitN(v, ".", 2)
	return parts[0]
}
