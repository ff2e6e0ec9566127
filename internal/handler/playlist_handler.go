package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"playlistfetch/internal/model"
	"playlistfetch/internal/service"
	"playlistfetch/internal/storage"
	"playlistfetch/pkg/logger"
	"playlistfetch/pkg/validator"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Enumerator lists the videos behind a URL
type Enumerator interface {
	Enumerate(ctx context.Context, url string) (*model.Listing, error)
}

// PlaylistHandler exposes resolution sessions and download runs
type PlaylistHandler struct {
	enumerator   Enumerator
	fanout       *service.Fanout
	filter       *service.FormatFilter
	orchestrator *service.Orchestrator
	sessions     *storage.SessionStore
	files        *storage.Manager
	cfg          *model.Config
}

// NewPlaylistHandler creates a new playlist handler
func NewPlaylistHandler(
	enumerator Enumerator,
	fanout *service.Fanout,
	filter *service.FormatFilter,
	orchestrator *service.Orchestrator,
	sessions *storage.SessionStore,
	files *storage.Manager,
	cfg *model.Config,
) *PlaylistHandler {
	return &PlaylistHandler{
		enumerator:   enumerator,
		fanout:       fanout,
		filter:       filter,
		orchestrator: orchestrator,
		sessions:     sessions,
		files:        files,
		cfg:          cfg,
	}
}

type resolveRequest struct {
	URL string `json:"url" binding:"required"`
}

type runRequest struct {
	FormatID string `json:"format_id" binding:"required"`
	Indices  []int  `json:"indices"`
}

type retryRequest struct {
	Replacements map[int]string `json:"replacements"`
}

type entryResponse struct {
	Index   int                    `json:"index"`
	Title   string                 `json:"title"`
	URL     string                 `json:"url"`
	Status  model.ResolutionStatus `json:"status"`
	Reason  string                 `json:"reason,omitempty"`
	Formats []service.FormatOption `json:"formats,omitempty"`
}

type sessionResponse struct {
	ID         string          `json:"id"`
	Title      string          `json:"title"`
	IsPlaylist bool            `json:"is_playlist"`
	ExpiresAt  int64           `json:"expires_at"`
	Entries    []entryResponse `json:"entries"`
}

type runResponse struct {
	RunID          string                  `json:"run_id"`
	FormatID       string                  `json:"format_id"`
	Attempts       []model.DownloadAttempt `json:"attempts"`
	RetryAttempts  []model.DownloadAttempt `json:"retry_attempts,omitempty"`
	Skipped        []int                   `json:"skipped"`
	RetryAvailable bool                    `json:"retry_available"`
}

// Resolve handles POST /api/playlists
func (h *PlaylistHandler) Resolve(c *gin.Context) {
	var req resolveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "invalid_request", "Invalid request format")
		return
	}

	// The resolver validates again; checking here keeps foreign URLs away from
	// whatever Enumerator is wired in.
	if !validator.ValidateURL(req.URL, h.cfg.Security.AllowedDomains) {
		logger.Logger.Warn("Invalid URL", zap.String("url", req.URL))
		respondError(c, http.StatusBadRequest, "invalid_url", "URL is malformed or its domain is not allowed")
		return
	}

	listing, err := h.enumerator.Enumerate(c.Request.Context(), req.URL)
	if err != nil {
		status, code := resolveErrorStatus(err)
		logger.Logger.Warn("Failed to enumerate URL", zap.Error(err), zap.String("url", req.URL))
		respondError(c, status, code, err.Error())
		return
	}

	var outcomes []model.ResolutionOutcome
	if listing.Single != nil {
		outcomes = []model.ResolutionOutcome{model.Resolved(listing.Refs[0], listing.Single)}
	} else {
		outcomes = h.fanout.ResolveAll(c.Request.Context(), listing.Refs, h.cfg.Fanout.ConcurrencyLimit)
	}

	session := h.sessions.Create(&model.PlaylistSession{
		SourceURL:  req.URL,
		Title:      listing.Title,
		IsPlaylist: listing.IsPlaylist,
		Outcomes:   outcomes,
	})

	c.JSON(http.StatusCreated, h.sessionView(storage.SnapshotOf(session)))
}

// Get handles GET /api/playlists/:id
func (h *PlaylistHandler) Get(c *gin.Context) {
	snapshot, err := h.sessions.Snapshot(c.Param("id"))
	if err != nil {
		respondError(c, http.StatusNotFound, "not_found", "Session not found or has expired")
		return
	}
	c.JSON(http.StatusOK, h.sessionView(snapshot))
}

// StartRun handles POST /api/playlists/:id/runs. Downloads run sequentially
// and the response is sent once the run is over.
func (h *PlaylistHandler) StartRun(c *gin.Context) {
	var req runRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "invalid_request", "Invalid request format")
		return
	}
	if !validator.ValidateFormatID(req.FormatID) {
		respondError(c, http.StatusBadRequest, "invalid_format", "Invalid format ID")
		return
	}

	var resp runResponse
	err := h.sessions.With(c.Param("id"), func(s *model.PlaylistSession) error {
		videos, err := selectVideos(s.Outcomes, req.Indices)
		if err != nil {
			return err
		}
		dir, err := h.files.CollectionDir(s.Title, s.IsPlaylist)
		if err != nil {
			return err
		}

		run, err := h.orchestrator.Run(c.Request.Context(), req.FormatID, videos, dir)
		if err != nil {
			return err
		}
		s.Runs[run.ID] = run
		resp = h.runView(run)
		return nil
	})
	if err != nil {
		h.respondRunError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// Retry handles POST /api/playlists/:id/runs/:run/retry
func (h *PlaylistHandler) Retry(c *gin.Context) {
	var req retryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "invalid_request", "Invalid request format")
		return
	}
	for index, formatID := range req.Replacements {
		if !validator.ValidateFormatID(formatID) {
			respondError(c, http.StatusBadRequest, "invalid_format", fmt.Sprintf("Invalid format ID for video %d", index))
			return
		}
	}

	var resp runResponse
	err := h.sessions.With(c.Param("id"), func(s *model.PlaylistSession) error {
		run, ok := s.Runs[c.Param("run")]
		if !ok {
			return errRunNotFound
		}
		dir, err := h.files.CollectionDir(s.Title, s.IsPlaylist)
		if err != nil {
			return err
		}
		if _, err := h.orchestrator.Retry(c.Request.Context(), run, req.Replacements, dir); err != nil {
			return err
		}
		resp = h.runView(run)
		return nil
	})
	if err != nil {
		h.respondRunError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// HealthCheck handles GET /api/health
func (h *PlaylistHandler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "playlistfetch",
	})
}

var (
	errRunNotFound   = errors.New("run not found")
	errBadSelection  = errors.New("invalid selection")
	errNotResolvable = errors.New("selected video was not resolved")
)

// selectVideos picks resolved videos by index; no indices means every
// resolved entry
func selectVideos(outcomes []model.ResolutionOutcome, indices []int) ([]model.ResolvedVideo, error) {
	byIndex := make(map[int]model.ResolutionOutcome, len(outcomes))
	for _, o := range outcomes {
		byIndex[o.Ref.Index] = o
	}

	if len(indices) == 0 {
		var videos []model.ResolvedVideo
		for _, o := range outcomes {
			if o.OK() {
				videos = append(videos, model.ResolvedVideo{Ref: o.Ref, Metadata: o.Metadata})
			}
		}
		if len(videos) == 0 {
			return nil, errNotResolvable
		}
		return videos, nil
	}

	seen := make(map[int]bool, len(indices))
	videos := make([]model.ResolvedVideo, 0, len(indices))
	for _, index := range indices {
		o, ok := byIndex[index]
		if !ok || seen[index] {
			return nil, fmt.Errorf("%w: index %d", errBadSelection, index)
		}
		if !o.OK() {
			return nil, fmt.Errorf("%w: index %d: %s", errNotResolvable, index, o.Reason)
		}
		seen[index] = true
		videos = append(videos, model.ResolvedVideo{Ref: o.Ref, Metadata: o.Metadata})
	}
	return videos, nil
}

func (h *PlaylistHandler) sessionView(s storage.SessionSnapshot) sessionResponse {
	entries := make([]entryResponse, 0, len(s.Outcomes))
	for _, o := range s.Outcomes {
		entry := entryResponse{
			Index:  o.Ref.Index,
			Title:  o.Ref.Title,
			URL:    o.Ref.SourceURL,
			Status: o.Status,
			Reason: o.Reason,
		}
		if o.OK() {
			entry.Formats = h.filter.Options(o.Metadata.Formats)
		}
		entries = append(entries, entry)
	}
	return sessionResponse{
		ID:         s.ID,
		Title:      s.Title,
		IsPlaylist: s.IsPlaylist,
		ExpiresAt:  s.ExpiresAt.Unix(),
		Entries:    entries,
	}
}

func (h *PlaylistHandler) runView(run *model.DownloadRun) runResponse {
	return runResponse{
		RunID:          run.ID,
		FormatID:       run.FormatID,
		Attempts:       run.Attempts,
		RetryAttempts:  run.RetryAttempts,
		Skipped:        run.SkippedIndices(),
		RetryAvailable: !run.Retried && len(run.Skipped) > 0 && h.cfg.Orchestrator.RetryRounds > 0,
	}
}

func (h *PlaylistHandler) respondRunError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, storage.ErrSessionNotFound), errors.Is(err, errRunNotFound):
		respondError(c, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, errBadSelection), errors.Is(err, service.ErrNotSkipped),
		errors.Is(err, service.ErrEmptyFormat), errors.Is(err, service.ErrDuplicateIndex):
		respondError(c, http.StatusBadRequest, "invalid_selection", err.Error())
	case errors.Is(err, errNotResolvable):
		respondError(c, http.StatusUnprocessableEntity, "not_resolved", err.Error())
	case errors.Is(err, service.ErrRetryExhausted), errors.Is(err, service.ErrNothingToRetry):
		respondError(c, http.StatusConflict, "retry_unavailable", err.Error())
	default:
		logger.Logger.Error("Download run failed", zap.Error(err))
		respondError(c, http.StatusInternalServerError, "run_failed", err.Error())
	}
}

// resolveErrorStatus maps a resolution error kind onto an HTTP status
func resolveErrorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, model.ErrInvalidURL):
		return http.StatusBadRequest, "invalid_url"
	case errors.Is(err, model.ErrUnsupported):
		return http.StatusUnprocessableEntity, "unsupported"
	default:
		return http.StatusBadGateway, "fetch_failed"
	}
}

func respondError(c *gin.Context, status int, code, message string) {
	c.JSON(status, model.ErrorResponse{
		Error:   code,
		Message: message,
		Code:    status,
	})
}
