package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/gin-gonic/gin"

	"WeeklyDigest/internal/domain"
	"WeeklyDigest/internal/usecase"
)

const defaultListLimit = 50

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"state":  string(s.scheduler.State()),
	})
}

// handleListPosts returns stored posts, optionally filtered by status.
// GET /v1/posts?status=draft&limit=20
func (s *Server) handleListPosts(c *gin.Context) {
	status := domain.PostStatus(c.Query("status"))
	if status != "" && !validStatus(status) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown status: " + string(status)})
		return
	}

	limit := defaultListLimit
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = parsed
	}

	records, err := s.store.List(c.Request.Context(), status, limit)
	if err != nil {
		s.fail(c, "list posts", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"posts": records, "count": len(records)})
}

type createPostRequest struct {
	WeekKey string `json:"week_key"`
	Content string `json:"content"`
}

// handleCreatePost stores operator-written content for a week, replacing
// any existing draft. The record enters the normal lifecycle: it can be
// approved and published through the idempotent publish path like a
// pipeline-composed post. Published weeks are immutable.
func (s *Server) handleCreatePost(c *gin.Context) {
	var req createPostRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON body: " + err.Error()})
		return
	}
	if !domain.ValidWeekKey(req.WeekKey) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid week key: " + req.WeekKey})
		return
	}
	if strings.TrimSpace(req.Content) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "content must not be empty"})
		return
	}

	now := time.Now().UTC()
	record := domain.PostRecord{
		WeekKey:   req.WeekKey,
		Content:   req.Content,
		Status:    domain.PostDraft,
		CreatedAt: now,
		UpdatedAt: now,
		Metadata: domain.PostMetadata{
			CharCount: utf8.RuneCountInString(req.Content),
		},
	}

	existing, found, err := s.store.Load(c.Request.Context(), req.WeekKey)
	if err != nil {
		s.fail(c, "load post", err)
		return
	}
	if found {
		if existing.Status == domain.PostPublished {
			c.JSON(http.StatusConflict, gin.H{"error": "week " + req.WeekKey + " is already published"})
			return
		}
		record.CreatedAt = existing.CreatedAt
		record.RetryCount = existing.RetryCount
	}

	if err := s.store.Save(c.Request.Context(), record); err != nil {
		s.fail(c, "save post", err)
		return
	}
	c.JSON(http.StatusCreated, record)
}

func (s *Server) handleGetPost(c *gin.Context) {
	record, ok := s.loadPost(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, record)
}

// handleApprovePost marks a draft ready for publishing.
func (s *Server) handleApprovePost(c *gin.Context) {
	record, ok := s.loadPost(c)
	if !ok {
		return
	}
	if record.Status == domain.PostPublished {
		c.JSON(http.StatusBadRequest, gin.H{"error": "post already published"})
		return
	}

	now := time.Now().UTC()
	record.Status = domain.PostApproved
	record.ApprovedAt = &now
	record.UpdatedAt = now

	if err := s.store.Save(c.Request.Context(), record); err != nil {
		s.fail(c, "save post", err)
		return
	}
	c.JSON(http.StatusOK, record)
}

// handlePublishPost publishes a stored draft through the pipeline so the
// idempotency and retry rules apply to manual publishes too.
func (s *Server) handlePublishPost(c *gin.Context) {
	weekKey := c.Param("week_key")
	if !domain.ValidWeekKey(weekKey) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid week key: " + weekKey})
		return
	}

	outcome, err := s.publisher.PublishStored(c.Request.Context(), weekKey)
	if errors.Is(err, usecase.ErrPostNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "no post for week " + weekKey})
		return
	}
	if err != nil {
		s.fail(c, "publish post", err)
		return
	}
	if !outcome.Success && !outcome.Skipped {
		c.JSON(http.StatusBadGateway, outcome)
		return
	}
	c.JSON(http.StatusOK, outcome)
}

func (s *Server) handleDeletePost(c *gin.Context) {
	record, ok := s.loadPost(c)
	if !ok {
		return
	}
	if record.Status == domain.PostPublished {
		c.JSON(http.StatusBadRequest, gin.H{"error": "refusing to delete a published post"})
		return
	}

	if err := s.store.Delete(c.Request.Context(), record.WeekKey); err != nil {
		s.fail(c, "delete post", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": record.WeekKey})
}

type jobView struct {
	Type       domain.JobType         `json:"type"`
	Day        string                 `json:"day"`
	Time       string                 `json:"time"`
	Timezone   string                 `json:"timezone"`
	LastResult *domain.PipelineResult `json:"last_result,omitempty"`
}

func (s *Server) handleListJobs(c *gin.Context) {
	specs := s.scheduler.Jobs()
	views := make([]jobView, 0, len(specs))
	for _, spec := range specs {
		view := jobView{
			Type:     spec.Type,
			Day:      spec.Day.String(),
			Time:     spec.TimeOfDay(),
			Timezone: spec.Timezone,
		}
		if last, ok := s.scheduler.LastResult(spec.Type); ok {
			view.LastResult = &last
		}
		views = append(views, view)
	}
	c.JSON(http.StatusOK, gin.H{
		"state": string(s.scheduler.State()),
		"jobs":  views,
	})
}

// handleTriggerJob runs a pipeline job immediately. Concurrent triggers of
// the same job type are rejected with 409.
func (s *Server) handleTriggerJob(c *gin.Context) {
	var (
		result domain.PipelineResult
		err    error
	)
	switch c.Param("type") {
	case string(domain.JobPreview):
		result, err = s.scheduler.TriggerPreview(c.Request.Context())
	case string(domain.JobPublish):
		result, err = s.scheduler.TriggerPublish(c.Request.Context())
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown job type: " + c.Param("type")})
		return
	}

	if errors.Is(err, usecase.ErrJobAlreadyRunning) {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		s.fail(c, "trigger job", err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// handleStats aggregates post counts by status plus the most recent posts.
func (s *Server) handleStats(c *gin.Context) {
	records, err := s.store.List(c.Request.Context(), "", 0)
	if err != nil {
		s.fail(c, "list posts", err)
		return
	}

	counts := map[string]int{}
	for _, record := range records {
		counts[string(record.Status)]++
	}

	recent := records
	if len(recent) > 10 {
		recent = recent[:10]
	}

	c.JSON(http.StatusOK, gin.H{
		"total":     len(records),
		"by_status": counts,
		"recent":    recent,
	})
}

// handleDiscoverSources scans an HTML page for candidate feed URLs.
// GET /v1/sources/discover?url=https://site.example&limit=10
func (s *Server) handleDiscoverSources(c *gin.Context) {
	pageURL := c.Query("url")
	if pageURL == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "url query parameter is required"})
		return
	}

	limit := 0
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = parsed
	}

	feeds, err := s.scout.DiscoverFeeds(c.Request.Context(), pageURL, limit)
	if err != nil {
		s.fail(c, "discover feeds", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"page": pageURL, "feeds": feeds, "count": len(feeds)})
}

// handleEvaluateSource scores one candidate feed.
// GET /v1/sources/evaluate?feed=https://site.example/rss
func (s *Server) handleEvaluateSource(c *gin.Context) {
	feedURL := c.Query("feed")
	if feedURL == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "feed query parameter is required"})
		return
	}

	candidate, err := s.scout.Evaluate(c.Request.Context(), feedURL)
	if err != nil {
		s.fail(c, "evaluate feed", err)
		return
	}
	c.JSON(http.StatusOK, candidate)
}

// handleOAuthLogin redirects the operator to the LinkedIn consent page.
func (s *Server) handleOAuthLogin(c *gin.Context) {
	url, err := s.broker.AuthURL("weekly-digest")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.Redirect(http.StatusFound, url)
}

// handleOAuthCallback completes the authorization code flow.
func (s *Server) handleOAuthCallback(c *gin.Context) {
	if errParam := c.Query("error"); errParam != "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":       errParam,
			"description": c.Query("error_description"),
		})
		return
	}
	code := c.Query("code")
	if code == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing authorization code"})
		return
	}

	if err := s.broker.Exchange(c.Request.Context(), code); err != nil {
		s.fail(c, "exchange code", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "authenticated"})
}

// loadPost resolves the :week_key parameter to a stored record, writing the
// error response itself when the key is invalid or absent.
func (s *Server) loadPost(c *gin.Context) (domain.PostRecord, bool) {
	weekKey := c.Param("week_key")
	if !domain.ValidWeekKey(weekKey) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid week key: " + weekKey})
		return domain.PostRecord{}, false
	}

	record, found, err := s.store.Load(c.Request.Context(), weekKey)
	if err != nil {
		s.fail(c, "load post", err)
		return domain.PostRecord{}, false
	}
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "no post for week " + weekKey})
		return domain.PostRecord{}, false
	}
	return record, true
}

func (s *Server) fail(c *gin.Context, action string, err error) {
	if s.logger != nil {
		s.logger.Error(action+" failed", "error", err)
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": action + ": " + err.Error()})
}

func validStatus(status domain.PostStatus) bool {
	switch status {
	case domain.PostDraft, domain.PostApproved, domain.PostPublished, domain.PostFailed:
		return true
	}
	return false
}
