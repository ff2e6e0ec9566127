package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"playlistfetch/internal/model"
	"playlistfetch/pkg/logger"

	"go.uber.org/zap"
)

// Fetcher transfers one video in one format to destPath and returns the
// number of bytes written
type Fetcher interface {
	Fetch(ctx context.Context, url, formatID, destPath string) (int64, error)
}

// DownloadService asks the worker to download and merge a format, then
// streams the merged file to disk
type DownloadService struct {
	workerURL    string
	httpClient   *http.Client
	maxSizeBytes int64
}

// NewDownloadService creates a new download service. maxSizeMB <= 0 disables
// the size limit.
func NewDownloadService(host string, port int, timeout int, maxSizeMB int) *DownloadService {
	return &DownloadService{
		workerURL: fmt.Sprintf("http://%s:%d", host, port),
		httpClient: &http.Client{
			Timeout: time.Duration(timeout) * time.Second,
		},
		maxSizeBytes: int64(maxSizeMB) * 1024 * 1024,
	}
}

type workerError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// Fetch requests "<formatID>+bestaudio" merged into mp4. A worker answer of
// format_unavailable yields model.ErrFormatUnavailable.
func (s *DownloadService) Fetch(ctx context.Context, videoURL, formatID, destPath string) (int64, error) {
	bodyBytes, err := json.Marshal(map[string]string{
		"url":                 videoURL,
		"format_id":           formatID + "+bestaudio",
		"merge_output_format": "mp4",
	})
	if err != nil {
		return 0, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.workerURL+"/api/download", bytes.NewReader(bodyBytes))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		logger.Logger.Error("Download request failed", zap.Error(err), zap.String("url", videoURL))
		return 0, fmt.Errorf("%w: %v", model.ErrTransferFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, s.statusError(resp, videoURL, formatID)
	}

	if s.maxSizeBytes > 0 && resp.ContentLength > s.maxSizeBytes {
		return 0, fmt.Errorf("%w: %d bytes", model.ErrFileTooLarge, resp.ContentLength)
	}

	written, err := s.writeFile(resp.Body, destPath)
	if err != nil {
		logger.Logger.Error("Failed to write download", zap.Error(err), zap.String("path", destPath))
		return 0, err
	}

	logger.Logger.Info("File downloaded",
		zap.String("path", destPath),
		zap.String("format_id", formatID),
		zap.Int64("bytes", written))
	return written, nil
}

// statusError classifies a non-OK worker response
func (s *DownloadService) statusError(resp *http.Response, videoURL, formatID string) error {
	var werr workerError
	_ = json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(&werr)

	logger.Logger.Warn("Failed download response",
		zap.Int("status", resp.StatusCode),
		zap.String("url", videoURL),
		zap.String("format_id", formatID),
		zap.String("error", werr.Error))

	if werr.Error == "format_unavailable" ||
		(resp.StatusCode == http.StatusUnprocessableEntity && werr.Error == "") {
		return fmt.Errorf("%w: %s", model.ErrFormatUnavailable, formatID)
	}

	detail := werr.Message
	if detail == "" {
		detail = werr.Error
	}
	return fmt.Errorf("%w: worker returned status %d: %s", model.ErrTransferFailed, resp.StatusCode, detail)
}

// writeFile streams body into a temp file next to destPath and renames it
// into place, so a partial transfer never leaves a file at destPath
func (s *DownloadService) writeFile(body io.Reader, destPath string) (int64, error) {
	if err := os.MkdirAll(filepath.Dir(destPath), 0755); err != nil {
		return 0, err
	}

	tmp, err := os.CreateTemp(filepath.Dir(destPath), ".part-*")
	if err != nil {
		return 0, err
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	reader := body
	if s.maxSizeBytes > 0 {
		reader = io.LimitReader(body, s.maxSizeBytes+1)
	}

	written, copyErr := io.Copy(tmp, reader)
	closeErr := tmp.Close()
	if copyErr != nil {
		return 0, fmt.Errorf("%w: %v", model.ErrTransferFailed, copyErr)
	}
	if closeErr != nil {
		return 0, closeErr
	}
	if s.maxSizeBytes > 0 && written > s.maxSizeBytes {
		return 0, fmt.Errorf("%w: more than %d bytes", model.ErrFileTooLarge, s.maxSizeBytes)
	}

	if err := os.Rename(tmpPath, destPath); err != nil {
		return 0, err
	}
	return written, nil
}

// IsFormatUnavailable reports whether a fetch error means the format is gone
func IsFormatUnavailable(err error) bool {
	return errors.Is(err, model.ErrFormatUnavailable)
}
