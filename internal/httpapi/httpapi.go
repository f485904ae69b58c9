// Package httpapi wires thin gin handlers over the internal ingestion,
// capture, release, batch, and retrieval collaborators: parse/validate the
// request, call into internal/*, marshal the response. No business logic
// lives here.
package httpapi

import (
	"errors"
	"net/http"
	"os"
	"path/filepath"

	"github.com/gin-gonic/gin"

	"github.com/tas-ingestion/ingestion/internal/batch"
	"github.com/tas-ingestion/ingestion/internal/capture"
	"github.com/tas-ingestion/ingestion/internal/ingesterr"
	"github.com/tas-ingestion/ingestion/internal/observability"
	"github.com/tas-ingestion/ingestion/internal/pipeline"
	"github.com/tas-ingestion/ingestion/internal/release"
	"github.com/tas-ingestion/ingestion/internal/retrieval"
)

// Server bundles the collaborators every handler needs.
type Server struct {
	Pipeline      *pipeline.Pipeline
	Releases      *release.Manager
	Captures      *capture.Store
	Batch         *batch.Service
	Retrieval     *retrieval.Service
	Observability *observability.Store
}

func statusForError(err error) int {
	switch {
	case errors.Is(err, ingesterr.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ingesterr.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ingesterr.ErrIntegrity):
		return http.StatusBadRequest
	default:
		return http.StatusBadRequest
	}
}

func fail(c *gin.Context, err error) {
	c.JSON(statusForError(err), gin.H{"error": err.Error()})
}

// Routes registers every handler on router.
func (s *Server) Routes(router gin.IRouter, requireAdmin gin.HandlerFunc) {
	router.GET("/health", s.handleHealth)

	router.POST("/ingestion/run", s.handleIngestionRun)
	router.GET("/ingestion/:domain/events", s.handleIngestionEvents)
	router.GET("/ingestion/:domain/metrics", s.handleIngestionMetrics)

	router.POST("/retrieve", s.handleRetrieve)
	router.POST("/retrieval/query", s.handleRetrieve)

	router.GET("/releases/:domain", s.handleListReleases)
	router.GET("/releases/:domain/audit", s.handleReleaseAudit)

	admin := router.Group("")
	admin.Use(requireAdmin)
	{
		admin.POST("/ingestion/raw-capture", s.handleRawCapture)
		admin.POST("/ingestion/quarantine", s.handleQuarantine)
		admin.POST("/releases/:domain/promote", s.handlePromoteCompat)
		admin.POST("/releases/:domain/:release_id/promote", s.handlePromote)
		admin.POST("/releases/:domain/merge", s.handleMerge)
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy", "service": "ingestion"})
}

type ingestionRunRequest struct {
	Domain       string `json:"domain" binding:"required"`
	SourceID     string `json:"source_id" binding:"required"`
	ReleaseID    string `json:"release_id" binding:"required"`
	RawHTML      string `json:"raw_html"`
	RawHTMLPath  string `json:"raw_html_path"`
	CaptureID    string `json:"capture_id"`
	CreatedBy    string `json:"created_by"`
	WriteRelease *bool  `json:"write_release"`
}

func (s *Server) resolveRawHTML(domain string, req ingestionRunRequest) (string, error) {
	if req.RawHTML != "" {
		return req.RawHTML, nil
	}
	if req.RawHTMLPath != "" {
		path, err := filepath.Abs(req.RawHTMLPath)
		if err != nil {
			return "", ingesterr.NewValidation("raw_html_path", "could not resolve path")
		}
		raw, err := os.ReadFile(path)
		if err != nil {
			return "", ingesterr.NewNotFound("raw_html_path", req.RawHTMLPath)
		}
		return string(raw), nil
	}
	if req.CaptureID != "" {
		rec, err := s.Captures.Load(domain, req.CaptureID)
		if err != nil {
			return "", err
		}
		raw, err := os.ReadFile(rec.RawHTMLPath)
		if err != nil {
			return "", ingesterr.NewNotFound("capture raw_html_path", rec.RawHTMLPath)
		}
		return string(raw), nil
	}
	return "", ingesterr.NewValidation("raw_html", "raw_html, raw_html_path, or capture_id is required")
}

func (s *Server) handleIngestionRun(c *gin.Context) {
	var req ingestionRunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	rawHTML, err := s.resolveRawHTML(req.Domain, req)
	if err != nil {
		fail(c, err)
		return
	}

	writeRelease := true
	if req.WriteRelease != nil {
		writeRelease = *req.WriteRelease
	}

	result, err := s.Pipeline.Run(c.Request.Context(), pipeline.RunInput{
		Domain:       req.Domain,
		SourceID:     req.SourceID,
		ReleaseID:    req.ReleaseID,
		RawHTML:      rawHTML,
		CreatedBy:    req.CreatedBy,
		WriteRelease: writeRelease,
	})
	if err != nil {
		if s.Observability != nil {
			_, _ = s.Observability.RecordEvent(req.Domain, "ingestion_run", "error", "ERROR", map[string]any{
				"source_id": req.SourceID, "release_id": req.ReleaseID, "error": err.Error(),
			})
		}
		fail(c, err)
		return
	}

	if s.Observability != nil {
		_, _ = s.Observability.RecordEvent(req.Domain, "ingestion_run", "success", "INFO", map[string]any{
			"source_id": req.SourceID, "release_id": req.ReleaseID,
		})
	}
	c.JSON(http.StatusOK, gin.H{
		"status":     result.Status,
		"domain":     result.Domain,
		"release_id": result.ReleaseID,
		"release":    result.Release,
		"counts": gin.H{
			"sections_total":    result.Stats.SectionsTotal,
			"sections_kept":     result.Stats.SectionsKept,
			"canonical_objects": result.Stats.CanonicalObjects,
			"chunks":            result.Stats.Chunks,
			"embeddings":        result.Stats.Embeddings,
		},
	})
}

type rawCaptureRequest struct {
	SourceID             string `json:"source_id" binding:"required"`
	Domain               string `json:"domain" binding:"required"`
	URL                  string `json:"url" binding:"required"`
	Timeout              int    `json:"timeout"`
	Clean                bool   `json:"clean"`
	QuarantineSuspicious *bool  `json:"quarantine_suspicious"`
}

func (s *Server) handleRawCapture(c *gin.Context) {
	var req rawCaptureRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	quarantineSuspicious := true
	if req.QuarantineSuspicious != nil {
		quarantineSuspicious = *req.QuarantineSuspicious
	}

	rec, err := s.Captures.RawCapture(c.Request.Context(), capture.RawCaptureInput{
		SourceID: req.SourceID, Domain: req.Domain, URL: req.URL,
		TimeoutSeconds: req.Timeout, Clean: req.Clean, QuarantineSuspicious: quarantineSuspicious,
	})
	if err != nil {
		if s.Observability != nil {
			_, _ = s.Observability.RecordEvent(req.Domain, "ingestion_raw_capture", "error", "ERROR", map[string]any{
				"source_id": req.SourceID, "url": req.URL, "error": err.Error(),
			})
		}
		fail(c, err)
		return
	}

	status := "success"
	if !rec.CaptureOK {
		status = "failed"
	}
	if s.Observability != nil {
		_, _ = s.Observability.RecordEvent(req.Domain, "ingestion_raw_capture", status, "INFO", map[string]any{
			"source_id": req.SourceID, "url": req.URL, "http_status": rec.HTTPStatus, "quarantined": rec.Quarantined,
		})
	}
	c.JSON(http.StatusOK, rec)
}

type quarantineRequest struct {
	Domain    string `json:"domain" binding:"required"`
	CaptureID string `json:"capture_id" binding:"required"`
	Reason    string `json:"reason"`
}

func (s *Server) handleQuarantine(c *gin.Context) {
	var req quarantineRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	rec, err := s.Captures.Quarantine(req.Domain, req.CaptureID, req.Reason)
	if err != nil {
		fail(c, err)
		return
	}
	if s.Observability != nil {
		_, _ = s.Observability.RecordEvent(req.Domain, "ingestion_quarantine", "success", "INFO", map[string]any{
			"source_id": req.CaptureID, "reason": rec.QuarantineReason,
		})
	}
	c.JSON(http.StatusOK, rec)
}

func (s *Server) handleIngestionEvents(c *gin.Context) {
	domain := c.Param("domain")
	limit := queryInt(c, "limit", 100)
	events, err := s.Observability.ListEvents(domain, limit)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"domain": domain, "events": events})
}

func (s *Server) handleIngestionMetrics(c *gin.Context) {
	domain := c.Param("domain")
	hours := queryInt(c, "hours", 24)
	summary, err := s.Observability.Summarize(domain, hours)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

func (s *Server) handleListReleases(c *gin.Context) {
	domain := c.Param("domain")
	active, err := s.Releases.GetActiveRelease(domain)
	if err != nil {
		fail(c, err)
		return
	}
	ids, err := s.Releases.ListReleases(domain)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"domain": domain, "active_release": active, "releases": ids})
}

func (s *Server) handleReleaseAudit(c *gin.Context) {
	domain := c.Param("domain")
	limit := queryInt(c, "limit", 100)
	events, err := s.Releases.ListAudit(domain, limit)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"domain": domain, "events": events})
}

type promoteBody struct {
	ReleaseID   string `json:"release_id"`
	PromotedBy  string `json:"promoted_by"`
	Reason      string `json:"reason"`
}

func (s *Server) promote(c *gin.Context, domain, releaseID, promotedBy, reason string) {
	event, err := s.Releases.PromoteRelease(domain, releaseID, promotedBy, reason)
	if err != nil {
		fail(c, err)
		return
	}
	if s.Observability != nil {
		_, _ = s.Observability.RecordEvent(domain, "release_promoted", "success", "INFO", map[string]any{
			"release_id": releaseID, "previous_release_id": event.PreviousReleaseID,
		})
	}
	c.JSON(http.StatusOK, gin.H{
		"domain":               domain,
		"active_release_id":    releaseID,
		"previous_release_id":  event.PreviousReleaseID,
		"audit_event":          event,
	})
}

func (s *Server) handlePromoteCompat(c *gin.Context) {
	domain := c.Param("domain")
	var body promoteBody
	_ = c.ShouldBindJSON(&body)
	if body.ReleaseID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "release_id is required"})
		return
	}
	s.promote(c, domain, body.ReleaseID, body.PromotedBy, body.Reason)
}

func (s *Server) handlePromote(c *gin.Context) {
	domain := c.Param("domain")
	releaseID := c.Param("release_id")
	var body promoteBody
	_ = c.ShouldBindJSON(&body)
	s.promote(c, domain, releaseID, body.PromotedBy, body.Reason)
}

type mergeRequest struct {
	SourceReleaseIDs []string `json:"source_release_ids" binding:"required"`
	TargetReleaseID  string   `json:"target_release_id"`
	CreatedBy        string   `json:"created_by"`
}

func (s *Server) handleMerge(c *gin.Context) {
	domain := c.Param("domain")
	var req mergeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	result, err := s.Batch.Merge(c.Request.Context(), batch.MergeInput{
		Domain: domain, SourceReleaseIDs: req.SourceReleaseIDs,
		TargetReleaseID: req.TargetReleaseID, CreatedBy: req.CreatedBy,
	})
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

type retrieveRequest struct {
	Domain    string            `json:"domain" binding:"required"`
	Query     string            `json:"query" binding:"required"`
	TopK      int               `json:"top_k"`
	Filters   map[string]string `json:"filters"`
	ReleaseID string            `json:"release_id"`
}

func (s *Server) handleRetrieve(c *gin.Context) {
	var req retrieveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	topK := req.TopK
	if topK <= 0 {
		topK = 5
	}
	result, err := s.Retrieval.Query(c.Request.Context(), req.Domain, req.Query, req.Filters, topK, req.ReleaseID)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func queryInt(c *gin.Context, key string, fallback int) int {
	v := c.Query(key)
	if v == "" {
		return fallback
	}
	n, err := parsePositiveInt(v)
	if err != nil {
		return fallback
	}
	return n
}

func parsePositiveInt(v string) (int, error) {
	n := 0
	for _, r := range v {
		if r < '0' || r > '9' {
			return 0, ingesterr.NewValidation("limit", "must be a non-negative integer")
		}
		n = n*10 + int(r-'0')
	}
	return n, nil
}
