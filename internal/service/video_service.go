package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"playlistfetch/internal/model"
	"playlistfetch/pkg/logger"
	"playlistfetch/pkg/validator"

	"go.uber.org/zap"
)

// Resolver resolves a single video URL into its metadata
type Resolver interface {
	Resolve(ctx context.Context, url string) (*model.VideoMetadata, error)
}

// VideoService handles metadata extraction through the worker's /api/info
type VideoService struct {
	workerURL      string
	httpClient     *http.Client
	allowedDomains []string
}

// NewVideoService creates a new video service
func NewVideoService(host string, port int, timeout int, allowedDomains []string) *VideoService {
	return &VideoService{
		workerURL: fmt.Sprintf("http://%s:%d", host, port),
		httpClient: &http.Client{
			Timeout: time.Duration(timeout) * time.Second,
		},
		allowedDomains: allowedDomains,
	}
}

// rawInfo mirrors the subset of yt-dlp's info dict the worker returns
type rawInfo struct {
	ID          string      `json:"id"`
	Title       string      `json:"title"`
	WebpageURL  string      `json:"webpage_url"`
	OriginalURL string      `json:"original_url"`
	URL         string      `json:"url"`
	Formats     []rawFormat `json:"formats"`
	Entries     []rawInfo   `json:"entries"`
}

type rawFormat struct {
	FormatID       string   `json:"format_id"`
	Ext            string   `json:"ext"`
	Height         *float64 `json:"height"`
	Resolution     string   `json:"resolution"`
	VCodec         string   `json:"vcodec"`
	ACodec         string   `json:"acodec"`
	FileSize       *float64 `json:"filesize"`
	FileSizeApprox *float64 `json:"filesize_approx"`
}

// Resolve fetches metadata for one video. Every failure is a *model.ResolveError.
func (s *VideoService) Resolve(ctx context.Context, videoURL string) (*model.VideoMetadata, error) {
	ext, err := s.Extract(ctx, videoURL)
	if err != nil {
		return nil, err
	}
	if ext.IsPlaylist() {
		return nil, model.NewResolveError(model.ErrUnsupported, videoURL, errors.New("url is a playlist, not a video"))
	}
	return &model.VideoMetadata{
		Title:        ext.Title,
		CanonicalURL: ext.CanonicalURL,
		Formats:      ext.Formats,
	}, nil
}

// Extract performs a single /api/info call and normalises the response
func (s *VideoService) Extract(ctx context.Context, videoURL string) (*model.Extraction, error) {
	if !validator.ValidateURL(videoURL, s.allowedDomains) {
		return nil, model.NewResolveError(model.ErrInvalidURL, videoURL, nil)
	}

	bodyBytes, err := json.Marshal(map[string]string{"url": videoURL})
	if err != nil {
		return nil, model.NewResolveError(model.ErrInvalidURL, videoURL, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.workerURL+"/api/info", bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, model.NewResolveError(model.ErrInvalidURL, videoURL, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		logger.Logger.Warn("Failed to reach extraction worker", zap.Error(err), zap.String("url", videoURL))
		return nil, model.NewResolveError(model.ErrNetworkFailure, videoURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		kind := classifyStatus(resp.StatusCode)
		logger.Logger.Warn("Non-OK status from extraction worker",
			zap.Int("status", resp.StatusCode),
			zap.String("url", videoURL),
			zap.String("kind", kind.Error()))
		return nil, model.NewResolveError(kind, videoURL,
			fmt.Errorf("worker returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg))))
	}

	var info rawInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		if ctx.Err() != nil {
			return nil, model.NewResolveError(model.ErrNetworkFailure, videoURL, ctx.Err())
		}
		return nil, model.NewResolveError(model.ErrUnsupported, videoURL, fmt.Errorf("decode worker response: %w", err))
	}

	extraction := s.parseInfo(info, videoURL)
	logger.Logger.Debug("Extraction complete",
		zap.String("title", extraction.Title),
		zap.Int("formats", len(extraction.Formats)),
		zap.Int("entries", len(extraction.Entries)))
	return extraction, nil
}

// Enumerate turns a URL into numbered refs. A single video becomes one ref
// whose metadata is returned directly, so it needs no second resolution.
func (s *VideoService) Enumerate(ctx context.Context, videoURL string) (*model.Listing, error) {
	ext, err := s.Extract(ctx, videoURL)
	if err != nil {
		return nil, err
	}

	if !ext.IsPlaylist() {
		return &model.Listing{
			Title: ext.Title,
			Refs:  []model.VideoRef{{Index: 1, SourceURL: ext.CanonicalURL, Title: ext.Title}},
			Single: &model.VideoMetadata{
				Title:        ext.Title,
				CanonicalURL: ext.CanonicalURL,
				Formats:      ext.Formats,
			},
		}, nil
	}

	refs := make([]model.VideoRef, len(ext.Entries))
	for i, entry := range ext.Entries {
		refs[i] = model.VideoRef{Index: i + 1, SourceURL: entry.URL, Title: entry.Title}
	}
	logger.Logger.Info("Playlist enumerated", zap.String("title", ext.Title), zap.Int("entries", len(refs)))

	return &model.Listing{Title: ext.Title, IsPlaylist: true, Refs: refs}, nil
}

// parseInfo converts the raw worker payload to an Extraction
func (s *VideoService) parseInfo(info rawInfo, requested string) *model.Extraction {
	ext := &model.Extraction{
		Title:        info.Title,
		CanonicalURL: firstNonEmpty(info.WebpageURL, info.OriginalURL, info.URL, requested),
		Formats:      make([]model.FormatDescriptor, 0, len(info.Formats)),
	}

	for _, raw := range info.Formats {
		if f, ok := parseFormat(raw); ok {
			ext.Formats = append(ext.Formats, f)
		}
	}

	if info.Entries != nil {
		ext.Entries = make([]model.PlaylistEntry, 0, len(info.Entries))
		for _, e := range info.Entries {
			ext.Entries = append(ext.Entries, model.PlaylistEntry{
				Title: e.Title,
				URL:   firstNonEmpty(e.OriginalURL, e.WebpageURL, e.URL, watchURL(e.ID)),
			})
		}
	}

	return ext
}

// parseFormat converts one raw format. Formats without a container are not
// downloadable and are dropped.
func parseFormat(raw rawFormat) (model.FormatDescriptor, bool) {
	if raw.Ext == "" || raw.FormatID == "" {
		return model.FormatDescriptor{}, false
	}

	f := model.FormatDescriptor{
		FormatID:   raw.FormatID,
		Container:  raw.Ext,
		Resolution: raw.Resolution,
		VideoCodec: raw.VCodec,
		AudioCodec: raw.ACodec,
	}

	if raw.Height != nil && *raw.Height > 0 {
		h := int(*raw.Height)
		f.Height = &h
	} else if h := parseResolutionHeight(raw.Resolution); h > 0 {
		f.Height = &h
	}

	switch {
	case raw.FileSize != nil && *raw.FileSize > 0:
		size := int64(*raw.FileSize)
		f.ApproxSizeBytes = &size
	case raw.FileSizeApprox != nil && *raw.FileSizeApprox > 0:
		size := int64(*raw.FileSizeApprox)
		f.ApproxSizeBytes = &size
	}

	f.Quality = determineQuality(f)
	return f, true
}

// determineQuality maps a format onto the Audio/FD/SD/HD/FHD categories
func determineQuality(f model.FormatDescriptor) string {
	if f.VideoCodec == "none" {
		return "Audio"
	}
	if f.Height == nil {
		return "Unknown"
	}

	switch h := *f.Height; {
	case h >= 1080:
		return "FHD"
	case h >= 720:
		return "HD"
	case h >= 480:
		return "SD"
	default:
		return "FD"
	}
}

// parseResolutionHeight extracts the height from "1920x1080"
func parseResolutionHeight(resolution string) int {
	_, height, ok := strings.Cut(resolution, "x")
	if !ok {
		return 0
	}
	h, err := strconv.Atoi(strings.TrimSpace(height))
	if err != nil {
		return 0
	}
	return h
}

// classifyStatus maps a worker status code onto a resolution error kind
func classifyStatus(code int) error {
	switch {
	case code == http.StatusBadRequest:
		return model.ErrInvalidURL
	case code == http.StatusTooManyRequests, code >= 500:
		return model.ErrNetworkFailure
	default:
		return model.ErrUnsupported
	}
}

func watchURL(id string) string {
	if id == "" {
		return ""
	}
	return "https://www.youtube.com/watch?v=" + id
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
