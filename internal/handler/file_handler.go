package handler

import (
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"

	"playlistfetch/internal/storage"
	"playlistfetch/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// FileHandler serves files produced by download runs
type FileHandler struct {
	files *storage.Manager
}

// NewFileHandler creates a new file handler
func NewFileHandler(files *storage.Manager) *FileHandler {
	return &FileHandler{files: files}
}

// GetFile handles GET /api/files/:id
func (h *FileHandler) GetFile(c *gin.Context) {
	fileID := c.Param("id")

	file := h.files.GetFile(fileID)
	if file == nil {
		logger.Logger.Warn("File not found", zap.String("file_id", fileID))
		respondError(c, http.StatusNotFound, "not_found", "File not found or has expired")
		return
	}

	if _, err := os.Stat(file.FilePath); err != nil {
		logger.Logger.Warn("File does not exist", zap.String("path", file.FilePath))
		respondError(c, http.StatusNotFound, "not_found", "File no longer available")
		return
	}

	c.Header("Content-Disposition", contentDisposition(file.Filename))
	c.Header("Content-Type", "application/octet-stream")
	c.File(file.FilePath)

	logger.Logger.Info("File served",
		zap.String("file_id", fileID),
		zap.String("filename", file.Filename))
}

// contentDisposition quotes plain ASCII names and falls back to RFC 5987
// encoding for anything else
func contentDisposition(filename string) string {
	plain := !strings.ContainsAny(filename, "\"\\;,\t\r\n")
	for _, r := range filename {
		if r > 127 {
			plain = false
			break
		}
	}
	if plain {
		return fmt.Sprintf(`attachment; filename="%s"`, filename)
	}
	return fmt.Sprintf(`attachment; filename*=UTF-8''%s`, url.PathEscape(filename))
}
