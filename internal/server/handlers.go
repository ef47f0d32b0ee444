package server

import (
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tubescribe/tubescribe/internal/fetch"
	"github.com/tubescribe/tubescribe/internal/history"
	"github.com/tubescribe/tubescribe/internal/jobs"
	"github.com/tubescribe/tubescribe/internal/version"
	"github.com/tubescribe/tubescribe/internal/whisper"
)

// submitRequest is the POST /api/jobs body. Boolean fields are pointers so
// an absent field falls back to the server default instead of false.
type submitRequest struct {
	URL        string `json:"url" binding:"required"`
	Transcribe *bool  `json:"transcribe,omitempty"`
	WriteTxt   *bool  `json:"writeTxt,omitempty"`
	Language   string `json:"language,omitempty"`
	Format     string `json:"format,omitempty"`
	Quality    string `json:"quality,omitempty"`
	DestDir    string `json:"destDir,omitempty"`
}

func (s *Server) submitJob(c *gin.Context) {
	var body submitRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	req := s.cfg.Defaults
	req.URL = strings.TrimSpace(body.URL)
	if body.Transcribe != nil {
		req.Transcribe = *body.Transcribe
	}
	if body.WriteTxt != nil {
		req.WriteTxt = *body.WriteTxt
	}
	if body.Language != "" {
		req.Language = body.Language
	}
	if body.Format != "" {
		req.Format = body.Format
	}
	if body.Quality != "" {
		req.Quality = body.Quality
	}
	if body.DestDir != "" {
		req.DestDir = body.DestDir
	}

	job, err := s.manager.Submit(req)
	switch {
	case errors.Is(err, fetch.ErrInvalidURL):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	case errors.Is(err, jobs.ErrTooManyJobs):
		c.JSON(http.StatusTooManyRequests, gin.H{"error": err.Error()})
		return
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusAccepted, job)
}

func (s *Server) listJobs(c *gin.Context) {
	list := s.manager.List()

	if raw := c.Query("state"); raw != "" {
		state, err := jobs.ParseState(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		filtered := make([]jobs.Job, 0, len(list))
		for _, job := range list {
			if job.State == state {
				filtered = append(filtered, job)
			}
		}
		list = filtered
	}

	c.JSON(http.StatusOK, gin.H{"jobs": list})
}

func (s *Server) getJob(c *gin.Context) {
	job, err := s.manager.Get(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
		return
	}
	c.JSON(http.StatusOK, job)
}

func (s *Server) jobEvents(c *gin.Context) {
	after := int64(0)
	if raw := c.Query("after"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "after must be an integer"})
			return
		}
		after = parsed
	}

	events, err := s.manager.EventsSince(c.Param("id"), after)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": events})
}

func (s *Server) jobTranscript(c *gin.Context) {
	id := c.Param("id")

	job, err := s.manager.Get(id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
		return
	}
	if !job.Terminal() {
		c.JSON(http.StatusConflict, gin.H{"error": "job is not finished"})
		return
	}

	text, err := s.manager.Transcript(id)
	if err != nil || text == "" {
		c.JSON(http.StatusNotFound, gin.H{"error": "no transcript for this job"})
		return
	}
	c.String(http.StatusOK, text)
}

func (s *Server) jobAudio(c *gin.Context) {
	job, err := s.manager.Get(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
		return
	}
	if job.AudioPath == "" {
		c.JSON(http.StatusNotFound, gin.H{"error": "no audio artifact for this job"})
		return
	}
	if _, statErr := os.Stat(job.AudioPath); statErr != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "audio file is missing on disk"})
		return
	}
	c.FileAttachment(job.AudioPath, filepath.Base(job.AudioPath))
}

func (s *Server) cancelJob(c *gin.Context) {
	id := c.Param("id")

	err := s.manager.Cancel(id)
	switch {
	case errors.Is(err, jobs.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
		return
	case errors.Is(err, jobs.ErrJobFinished):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	job, _ := s.manager.Get(id)
	c.JSON(http.StatusAccepted, job)
}

func (s *Server) deleteJob(c *gin.Context) {
	err := s.manager.Delete(c.Param("id"))
	switch {
	case errors.Is(err, jobs.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
		return
	case errors.Is(err, jobs.ErrJobActive):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.Status(http.StatusNoContent)
}

type modelInfo struct {
	Name       string `json:"name"`
	SizeLabel  string `json:"sizeLabel"`
	Downloaded bool   `json:"downloaded"`
}

func (s *Server) listModels(c *gin.Context) {
	names := whisper.ModelNames()
	models := make([]modelInfo, 0, len(names))
	for _, name := range names {
		model, ok := whisper.LookupModel(name)
		if !ok {
			continue
		}

		downloaded := false
		if resolved, err := whisper.ResolveModel(name, s.cfg.ModelDir); err == nil {
			downloaded = !resolved.NeedsDownload
		}

		models = append(models, modelInfo{
			Name:       model.Name,
			SizeLabel:  model.SizeLabel,
			Downloaded: downloaded,
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"default": whisper.DefaultModel,
		"models":  models,
	})
}

func (s *Server) listHistory(c *gin.Context) {
	if s.history == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "history is disabled"})
		return
	}

	limit := 0
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be an integer"})
			return
		}
		limit = parsed
	}

	var status history.Status
	if raw := c.Query("status"); raw != "" {
		parsed, err := history.ParseStatus(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		status = parsed
	}

	entries, err := s.history.List(c.Request.Context(), limit, status)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries})
}

func (s *Server) clearHistory(c *gin.Context) {
	if s.history == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "history is disabled"})
		return
	}

	removed, err := s.history.Clear(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"removed": removed})
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":     "ok",
		"version":    version.Resolve(),
		"activeJobs": s.manager.ActiveCount(),
	})
}
