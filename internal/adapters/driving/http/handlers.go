package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/sfdxb7/oc-hub/internal/core/domain"
)

// maxRequestBody bounds JSON request bodies (news articles are the largest)
const maxRequestBody = 2 << 20

// ErrorResponse represents an API error response
// @Description API error response
type ErrorResponse struct {
	Error string `json:"error" example:"folder is required"`
}

// StatusResponse represents a simple status response
// @Description Simple status response
type StatusResponse struct {
	Status string `json:"status" example:"ok"`
}

// ReadyResponse reports the state of each dependency
// @Description Readiness response
type ReadyResponse struct {
	Status     string            `json:"status" example:"ready"`
	Components map[string]string `json:"components,omitempty"`
}

// VersionResponse represents the API version response
// @Description API version response
type VersionResponse struct {
	Version string `json:"version" example:"1.0.0"`
}

// IngestRequest asks for one source folder to be ingested
// @Description Ingest request
type IngestRequest struct {
	Folder string `json:"folder" example:"BCG_AI_Banking_2024"`
	Force  bool   `json:"force"`
	Audit  bool   `json:"audit"`
}

// BatchRequest asks for every folder under a root to be ingested
// @Description Batch request
type BatchRequest struct {
	Root        string   `json:"root,omitempty" example:"/data/library"`
	Concurrency int      `json:"concurrency,omitempty" example:"5"`
	Force       bool     `json:"force"`
	Audit       bool     `json:"audit"`
	Filters     []string `json:"filters,omitempty"`
	Limit       int      `json:"limit,omitempty"`
}

// TaskResponse describes a queued or finished background task
// @Description Task status
type TaskResponse struct {
	ID          string            `json:"id"`
	Type        domain.TaskType   `json:"type"`
	Status      domain.TaskStatus `json:"status"`
	Payload     map[string]string `json:"payload,omitempty"`
	Attempts    int               `json:"attempts"`
	Error       string            `json:"error,omitempty"`
	Result      json.RawMessage   `json:"result,omitempty" swaggertype:"object"`
	CreatedAt   time.Time         `json:"created_at"`
	CompletedAt *time.Time        `json:"completed_at,omitempty"`
}

// RetrieveRequest is a question for the knowledge base
// @Description Retrieval request
type RetrieveRequest struct {
	Question  string   `json:"question" example:"What share of banks use generative AI?"`
	TopK      int      `json:"top_k,omitempty" example:"8"`
	ReportIDs []string `json:"report_ids,omitempty"`
}

// RetrieveResponse holds the passages that answer a question
// @Description Retrieval response
type RetrieveResponse struct {
	Chunks []*domain.RetrievedChunk `json:"chunks"`
}

// ReportListResponse is one page of reports
// @Description Report list
type ReportListResponse struct {
	Reports []*domain.Report `json:"reports"`
	Total   int              `json:"total"`
	Limit   int              `json:"limit"`
	Offset  int              `json:"offset"`
}

// DataBankResponse lists the atomic facts of one report
// @Description Data bank items
type DataBankResponse struct {
	ReportID string                 `json:"report_id"`
	Items    []*domain.DataBankItem `json:"items"`
}

// Health endpoints

// handleHealth godoc
// @Summary      Health check
// @Description  Returns the health status of the API
// @Tags         Health
// @Produce      json
// @Success      200  {object}  StatusResponse
// @Router       /health [get]
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, StatusResponse{Status: "ok"})
}

// handleReady godoc
// @Summary      Readiness check
// @Description  Pings the database, Redis and the task queue
// @Tags         Health
// @Produce      json
// @Success      200  {object}  ReadyResponse
// @Failure      503  {object}  ReadyResponse
// @Router       /ready [get]
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	checks := map[string]Pinger{}
	if s.db != nil {
		checks["database"] = s.db
	}
	if s.redisClient != nil {
		checks["redis"] = s.redisClient
	}
	if s.taskQueue != nil {
		checks["queue"] = s.taskQueue
	}

	resp := ReadyResponse{Status: "ready", Components: make(map[string]string, len(checks))}
	status := http.StatusOK
	for name, p := range checks {
		if err := p.Ping(r.Context()); err != nil {
			s.logger.Warn("readiness check failed", "component", name, "error", err)
			resp.Components[name] = "unavailable"
			resp.Status = "not_ready"
			status = http.StatusServiceUnavailable
			continue
		}
		resp.Components[name] = "ok"
	}
	writeJSON(w, status, resp)
}

// handleVersion godoc
// @Summary      Get API version
// @Description  Returns the current API version
// @Tags         Health
// @Produce      json
// @Success      200  {object}  VersionResponse
// @Router       /version [get]
func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, VersionResponse{Version: s.version})
}

// Ingestion endpoints

// handleIngest godoc
// @Summary      Ingest one report
// @Description  Queues a source folder for ingestion. Relative folders resolve against the library root.
// @Tags         Ingestion
// @Accept       json
// @Produce      json
// @Param        request  body      IngestRequest  true  "Folder to ingest"
// @Success      202      {object}  TaskResponse
// @Failure      400      {object}  ErrorResponse  "Invalid request body"
// @Failure      503      {object}  ErrorResponse  "Queue unavailable"
// @Router       /ingest [post]
func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	var req IngestRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Folder) == "" {
		writeError(w, http.StatusBadRequest, "folder is required")
		return
	}

	folder, ok := s.resolvePath(req.Folder)
	if !ok {
		writeError(w, http.StatusBadRequest, "folder must stay inside the library root")
		return
	}

	task := domain.NewIngestTask(folder, domain.IngestOptions{ForceReprocess: req.Force, Audit: req.Audit})
	s.enqueue(w, r, task)
}

// handleCreateBatch godoc
// @Summary      Ingest a library
// @Description  Queues a batch over every folder under root (the library root when omitted)
// @Tags         Ingestion
// @Accept       json
// @Produce      json
// @Param        request  body      BatchRequest  true  "Batch parameters"
// @Success      202      {object}  TaskResponse
// @Failure      400      {object}  ErrorResponse  "Invalid request body"
// @Failure      503      {object}  ErrorResponse  "Queue unavailable"
// @Router       /batches [post]
func (s *Server) handleCreateBatch(w http.ResponseWriter, r *http.Request) {
	var req BatchRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Concurrency < 0 {
		writeError(w, http.StatusBadRequest, "concurrency must not be negative")
		return
	}
	if req.Limit < 0 {
		writeError(w, http.StatusBadRequest, "limit must not be negative")
		return
	}

	root := s.libraryRoot
	if strings.TrimSpace(req.Root) != "" {
		var ok bool
		if root, ok = s.resolvePath(req.Root); !ok {
			writeError(w, http.StatusBadRequest, "root must stay inside the library root")
			return
		}
	}
	if root == "" {
		writeError(w, http.StatusBadRequest, "root is required")
		return
	}

	task := domain.NewBatchTask(root, domain.BatchRequest{
		MaxConcurrency: req.Concurrency,
		ForceReprocess: req.Force,
		Audit:          req.Audit,
		Filters:        req.Filters,
		Limit:          req.Limit,
	})
	s.enqueue(w, r, task)
}

// handleGetTask godoc
// @Summary      Get task status
// @Description  Returns the state of a queued ingestion or batch task, with its result once finished
// @Tags         Ingestion
// @Produce      json
// @Param        id   path      string  true  "Task ID"
// @Success      200  {object}  TaskResponse
// @Failure      404  {object}  ErrorResponse  "Task not found"
// @Router       /tasks/{id} [get]
func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	if s.taskQueue == nil {
		writeError(w, http.StatusServiceUnavailable, "task queue not configured")
		return
	}

	task, err := s.taskQueue.GetTask(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toTaskResponse(task))
}

func (s *Server) enqueue(w http.ResponseWriter, r *http.Request, task *domain.Task) {
	if s.taskQueue == nil {
		writeError(w, http.StatusServiceUnavailable, "task queue not configured")
		return
	}
	if err := s.taskQueue.Enqueue(r.Context(), task); err != nil {
		s.logger.Error("failed to enqueue task", "type", task.Type, "error", err)
		writeError(w, http.StatusServiceUnavailable, "failed to enqueue task")
		return
	}
	s.logger.Info("task enqueued", "task_id", task.ID, "type", task.Type)
	writeJSON(w, http.StatusAccepted, toTaskResponse(task))
}

// resolvePath makes p absolute. Relative paths are joined to the library
// root and may not climb out of it.
func (s *Server) resolvePath(p string) (string, bool) {
	p = strings.TrimSpace(p)
	if filepath.IsAbs(p) {
		return filepath.Clean(p), true
	}
	if !filepath.IsLocal(p) {
		return "", false
	}
	return filepath.Join(s.libraryRoot, p), true
}

// Report endpoints

// handleListReports godoc
// @Summary      List reports
// @Description  Lists ingested reports, newest first
// @Tags         Reports
// @Produce      json
// @Param        organization  query     string  false  "Exact organization"
// @Param        category      query     string  false  "Exact category"
// @Param        year          query     int     false  "Publication year"
// @Param        status        query     string  false  "Processing status"
// @Param        q             query     string  false  "Title or summary text"
// @Param        limit         query     int     false  "Page size"
// @Param        offset        query     int     false  "Page offset"
// @Success      200           {object}  ReportListResponse
// @Failure      400           {object}  ErrorResponse  "Invalid query parameter"
// @Router       /reports [get]
func (s *Server) handleListReports(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := domain.ReportFilter{
		Organization: q.Get("organization"),
		Category:     q.Get("category"),
		Status:       domain.ReportStatus(q.Get("status")),
		Query:        q.Get("q"),
	}

	if v := q.Get("year"); v != "" {
		year, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "year must be an integer")
			return
		}
		filter.Year = &year
	}
	var err error
	if filter.Limit, err = intParam(q.Get("limit")); err != nil {
		writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
		return
	}
	if filter.Offset, err = intParam(q.Get("offset")); err != nil {
		writeError(w, http.StatusBadRequest, "offset must be a non-negative integer")
		return
	}

	reports, err := s.reportService.List(r.Context(), filter)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	total, err := s.reportService.Count(r.Context())
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	if reports == nil {
		reports = []*domain.Report{}
	}

	limit := filter.Limit
	if limit == 0 {
		limit = domain.DefaultReportListLimit
	}
	writeJSON(w, http.StatusOK, ReportListResponse{
		Reports: reports,
		Total:   total,
		Limit:   limit,
		Offset:  filter.Offset,
	})
}

// handleGetReport godoc
// @Summary      Get report
// @Description  Returns one report with its extraction and audit summary
// @Tags         Reports
// @Produce      json
// @Param        id   path      string  true  "Report ID"
// @Success      200  {object}  domain.Report
// @Failure      404  {object}  ErrorResponse  "Report not found"
// @Router       /reports/{id} [get]
func (s *Server) handleGetReport(w http.ResponseWriter, r *http.Request) {
	report, err := s.reportService.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// handleDeleteReport godoc
// @Summary      Delete report
// @Description  Deletes a report and its data bank items
// @Tags         Reports
// @Param        id   path      string  true  "Report ID"
// @Success      204
// @Failure      404  {object}  ErrorResponse  "Report not found"
// @Router       /reports/{id} [delete]
func (s *Server) handleDeleteReport(w http.ResponseWriter, r *http.Request) {
	if err := s.reportService.Delete(r.Context(), r.PathValue("id")); err != nil {
		s.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleGetDataBank godoc
// @Summary      Get report data bank
// @Description  Returns the statistics, quotes, findings and insights derived from a report
// @Tags         Reports
// @Produce      json
// @Param        id   path      string  true  "Report ID"
// @Success      200  {object}  DataBankResponse
// @Failure      404  {object}  ErrorResponse  "Report not found"
// @Router       /reports/{id}/databank [get]
func (s *Server) handleGetDataBank(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	items, err := s.reportService.DataBank(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	if items == nil {
		items = []*domain.DataBankItem{}
	}
	writeJSON(w, http.StatusOK, DataBankResponse{ReportID: id, Items: items})
}

// Retrieval and analysis endpoints

// handleRetrieve godoc
// @Summary      Retrieve passages
// @Description  Searches the knowledge base, optionally restricted to some reports
// @Tags         Retrieval
// @Accept       json
// @Produce      json
// @Param        request  body      RetrieveRequest  true  "Question"
// @Success      200      {object}  RetrieveResponse
// @Failure      400      {object}  ErrorResponse  "Invalid request"
// @Failure      503      {object}  ErrorResponse  "Knowledge base unavailable"
// @Router       /retrieve [post]
func (s *Server) handleRetrieve(w http.ResponseWriter, r *http.Request) {
	var req RetrieveRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.TopK < 0 {
		writeError(w, http.StatusBadRequest, "top_k must not be negative")
		return
	}

	chunks, err := s.retrievalService.Retrieve(r.Context(), req.Question, req.TopK, req.ReportIDs)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	if chunks == nil {
		chunks = []*domain.RetrievedChunk{}
	}
	writeJSON(w, http.StatusOK, RetrieveResponse{Chunks: chunks})
}

// handleAnalyzeNews godoc
// @Summary      Analyze news article
// @Description  Produces a ministerial briefing for a news article
// @Tags         News
// @Accept       json
// @Produce      json
// @Param        request  body      domain.NewsArticle  true  "Article"
// @Success      200      {object}  domain.NewsAnalysis
// @Failure      400      {object}  ErrorResponse  "Invalid request"
// @Failure      503      {object}  ErrorResponse  "Completion service unavailable"
// @Router       /news/analyze [post]
func (s *Server) handleAnalyzeNews(w http.ResponseWriter, r *http.Request) {
	var article domain.NewsArticle
	if !decodeJSON(w, r, &article) {
		return
	}

	analysis, err := s.newsService.Analyze(r.Context(), article)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, analysis)
}

// Helpers

// writeServiceError maps domain errors onto status codes. Server-side
// failures are logged and reported without detail.
func (s *Server) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound), errors.Is(err, domain.ErrTaskNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, domain.ErrInvalidInput), errors.Is(err, domain.ErrEmptySource):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrAlreadyExists):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrServiceUnavailable), errors.Is(err, domain.ErrCompletionTimeout):
		s.logger.Warn("dependency unavailable", "error", err)
		writeError(w, http.StatusServiceUnavailable, "service unavailable")
	default:
		s.logger.Error("request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

func toTaskResponse(t *domain.Task) TaskResponse {
	resp := TaskResponse{
		ID:          t.ID,
		Type:        t.Type,
		Status:      t.Status,
		Payload:     t.Payload,
		Attempts:    t.Attempts,
		Error:       t.Error,
		CreatedAt:   t.CreatedAt,
		CompletedAt: t.CompletedAt,
	}
	if t.Result != "" && json.Valid([]byte(t.Result)) {
		resp.Result = json.RawMessage(t.Result)
	}
	return resp
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

func intParam(v string) (int, error) {
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, errors.New("negative value")
	}
	return n, nil
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{Error: message})
}
