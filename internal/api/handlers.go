package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kraklabs/repoanalyzer/internal/apperror"
	"github.com/kraklabs/repoanalyzer/internal/fetcher"
	"github.com/kraklabs/repoanalyzer/internal/ids"
	"github.com/kraklabs/repoanalyzer/internal/model"
	"github.com/kraklabs/repoanalyzer/internal/store"
)

// analyzeRequest is the POST /analyze body.
type analyzeRequest struct {
	RepositoryURL string          `json:"repository_url"`
	Branch        string          `json:"branch"`
	Options       *analyzeOptions `json:"options"`
}

type analyzeOptions struct {
	IncludeTests    *bool    `json:"includeTests"`
	MaxFileSizeKB   *int     `json:"maxFileSizeKB"`
	Languages       []string `json:"languages"`
	ExcludePatterns []string `json:"excludePatterns"`
	DeepAnalysis    *bool    `json:"deepAnalysis"`
}

func (o *analyzeOptions) toModel() (model.Options, error) {
	opts := model.DefaultOptions()
	if o == nil {
		return opts, nil
	}
	if o.IncludeTests != nil {
		opts.IncludeTests = *o.IncludeTests
	}
	if o.MaxFileSizeKB != nil {
		if *o.MaxFileSizeKB < 1 || *o.MaxFileSizeKB > 10000 {
			return opts, apperror.NewValidation("options.maxFileSizeKB must be between 1 and 10000", nil)
		}
		opts.MaxFileSizeKB = *o.MaxFileSizeKB
	}
	opts.Languages = o.Languages
	opts.ExcludePatterns = o.ExcludePatterns
	if o.DeepAnalysis != nil {
		opts.DeepAnalysis = *o.DeepAnalysis
	}
	return opts, nil
}

type analyzeResponse struct {
	AnalysisID    string    `json:"analysis_id"`
	Status        string    `json:"status"`
	CreatedAt     time.Time `json:"created_at"`
	EstimatedTime string    `json:"estimated_time"`
}

// handleAnalyze validates and enqueues a new analysis job, per the intake
// operation's contract: validate the repository URL, persist a queued
// record, and hand it to the job queue before returning 201.
func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	var req analyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperror.NewValidation("request body must be valid JSON", err), s.env)
		return
	}

	validated, err := fetcher.ValidateURL(req.RepositoryURL)
	if err != nil {
		writeError(w, err, s.env)
		return
	}

	opts, err := req.Options.toModel()
	if err != nil {
		writeError(w, err, s.env)
		return
	}

	rec := model.AnalysisRecord{
		ID:            ids.NewAnalysisID(),
		RepositoryURL: validated.NormalizedURL,
		Owner:         validated.Owner,
		Name:          validated.Name,
		Branch:        req.Branch,
		Status:        model.StatusQueued,
		Options:       opts,
		CreatedAt:     time.Now().UTC(),
	}

	if err := s.records.Create(r.Context(), rec); err != nil {
		writeError(w, apperror.NewInternal("create analysis record", err), s.env)
		return
	}

	if err := s.queue.Enqueue(r.Context(), rec.ID); err != nil {
		writeError(w, apperror.NewInternal("enqueue analysis", err), s.env)
		return
	}

	writeJSON(w, http.StatusCreated, analyzeResponse{
		AnalysisID:    rec.ID,
		Status:        string(model.StatusQueued),
		CreatedAt:     rec.CreatedAt,
		EstimatedTime: "1-5 minutes",
	})
}

type statusResponse struct {
	AnalysisID  string         `json:"analysis_id"`
	Status      string         `json:"status"`
	Progress    model.Progress `json:"progress"`
	Error       string         `json:"error,omitempty"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
}

// handleStatus reports an analysis's status, error and completion time from
// the record store, together with the live progress record read from the
// job queue.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	rec, _, _, err := s.records.FindByID(r.Context(), id)
	if err != nil {
		writeError(w, apperror.NewNotFound("analysis not found", err), s.env)
		return
	}

	qs, err := s.queue.Status(r.Context(), id)
	if err != nil {
		writeError(w, apperror.NewInternal("read job status", err), s.env)
		return
	}

	resp := statusResponse{
		AnalysisID:  rec.ID,
		Status:      string(rec.Status),
		Progress:    qs.Progress,
		Error:       rec.Error,
		CompletedAt: rec.CompletedAt,
	}
	writeJSON(w, http.StatusOK, resp)
}

type treeResponse struct {
	AnalysisID string                   `json:"analysisId"`
	Root       *model.Node              `json:"root"`
	Statistics model.FileTreeStatistics `json:"statistics"`
}

// handleTree returns the completed file tree artifact. A record that exists
// but hasn't finished processing yet (or failed before reaching the tree
// step) has no artifact, which is reported as 404.
func (s *Server) handleTree(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	rec, artifact, _, err := s.records.FindByID(r.Context(), id)
	if err != nil {
		writeError(w, apperror.NewNotFound("analysis not found", err), s.env)
		return
	}
	if artifact == nil {
		writeError(w, apperror.NewNotFound("file tree not yet available for this analysis", nil), s.env)
		return
	}

	writeJSON(w, http.StatusOK, treeResponse{
		AnalysisID: rec.ID,
		Root:       artifact.Root,
		Statistics: artifact.Statistics,
	})
}

type listResponse struct {
	Analyses []model.AnalysisRecord `json:"analyses"`
	Total    int                    `json:"total"`
	Limit    int                    `json:"limit"`
	Offset   int                    `json:"offset"`
}

// handleList paginates the analysis records, optionally filtered by status.
func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", 20)
	if err != nil {
		writeError(w, err, s.env)
		return
	}
	offset, err := queryInt(r, "offset", 0)
	if err != nil {
		writeError(w, err, s.env)
		return
	}
	status := model.Status(r.URL.Query().Get("status"))

	result, err := s.records.List(r.Context(), store.ListFilter{Limit: limit, Offset: offset, Status: status})
	if err != nil {
		writeError(w, apperror.NewInternal("list analyses", err), s.env)
		return
	}

	writeJSON(w, http.StatusOK, listResponse{
		Analyses: result.Analyses,
		Total:    result.Total,
		Limit:    limit,
		Offset:   offset,
	})
}

type deleteResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// handleDelete cancels a pending job (if any) and removes the record along
// with its artifacts.
func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if _, err := s.queue.Cancel(r.Context(), id); err != nil {
		s.logger.Warn("api.delete.cancel_error", "id", id, "err", err)
	}

	if err := s.records.Delete(r.Context(), id); err != nil {
		writeError(w, apperror.NewNotFound("analysis not found", err), s.env)
		return
	}

	writeJSON(w, http.StatusOK, deleteResponse{Success: true, Message: "analysis deleted"})
}

type healthResponse struct {
	Status    string          `json:"status"`
	Timestamp time.Time       `json:"timestamp"`
	Services  map[string]bool `json:"services"`
}

// handleHealth pings every service dependency and reports 503 the moment any
// of them is down, per the health check's contract.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	dbUp := s.records.Ping(r.Context()) == nil
	redisUp := s.queue.Ping(r.Context()) == nil

	resp := healthResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC(),
		Services: map[string]bool{
			"database": dbUp,
			"redis":    redisUp,
			"queue":    redisUp,
		},
	}

	status := http.StatusOK
	if !dbUp || !redisUp {
		resp.Status = "degraded"
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}

type pingResponse struct {
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

func (s *Server) handlePing(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, pingResponse{Message: "pong", Timestamp: time.Now().UTC()})
}

// queryInt parses an optional integer query parameter, returning def when
// the parameter is absent. A present-but-unparseable value is a validation
// error, not a silent fallback.
func queryInt(r *http.Request, key string, def int) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apperror.NewValidation(key+" must be an integer", err)
	}
	return n, nil
}
