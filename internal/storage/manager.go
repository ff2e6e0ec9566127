package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"playlistfetch/internal/model"
	"playlistfetch/pkg/logger"
	"playlistfetch/pkg/validator"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const maxFilenameLen = 180

// room kept for the extension and a " (NN)" collision suffix
const suffixReserve = 12

// Manager lays out download destinations and tracks finished files until
// they expire
type Manager struct {
	cfg      *model.StorageConfig
	files    map[string]*model.DownloadedFile
	paths    map[string]int      // tracked records per path
	reserved map[string]struct{} // handed out by Destination, not yet tracked
	mu       sync.RWMutex
	quit     chan struct{}
	stopOnce sync.Once
}

// NewManager creates a new storage manager
func NewManager(cfg *model.StorageConfig) *Manager {
	return &Manager{
		cfg:   cfg,
		files:    make(map[string]*model.DownloadedFile),
		paths:    make(map[string]int),
		reserved: make(map[string]struct{}),
		quit:     make(chan struct{}),
	}
}

// Start starts the cleanup routine
func (m *Manager) Start() {
	if m.cfg.CleanupInterval <= 0 {
		return
	}
	go m.cleanupRoutine()
}

// Stop stops the cleanup routine. Safe to call more than once.
func (m *Manager) Stop() {
	m.stopOnce.Do(func() { close(m.quit) })
}

// EnsureDownloadDir ensures download directory exists
func (m *Manager) EnsureDownloadDir() error {
	return os.MkdirAll(m.cfg.DownloadDir, 0755)
}

// CollectionDir returns the directory downloads of a resolution go to: a
// sub-directory named after the playlist, or the download root for a single
// video. The directory is created.
func (m *Manager) CollectionDir(title string, isPlaylist bool) (string, error) {
	dir := m.cfg.DownloadDir
	if isPlaylist {
		if title == "" {
			title = "Playlist"
		}
		dir = filepath.Join(dir, validator.TruncateFilename(validator.SanitizeFilename(title), maxFilenameLen))
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}
	return dir, nil
}

// Destination reserves the file for one video: "<dir>/07_<title>.mp4", or
// "<dir>/07_<title> (2).mp4" when that path is already tracked, reserved or
// present on disk. The reservation lasts until TrackFile or Release.
func (m *Manager) Destination(dir string, ref model.VideoRef) string {
	title := ref.Title
	if title == "" {
		title = fmt.Sprintf("video_%d", ref.Index)
	}
	stem := validator.TruncateFilename(
		fmt.Sprintf("%02d_%s", ref.Index, validator.SanitizeFilename(title)),
		maxFilenameLen-suffixReserve)

	m.mu.Lock()
	defer m.mu.Unlock()

	path := filepath.Join(dir, stem+".mp4")
	for n := 2; m.pathTaken(path); n++ {
		path = filepath.Join(dir, fmt.Sprintf("%s (%d).mp4", stem, n))
	}
	m.reserved[path] = struct{}{}
	return path
}

// pathTaken must be called with m.mu held
func (m *Manager) pathTaken(path string) bool {
	if _, ok := m.reserved[path]; ok {
		return true
	}
	if m.paths[path] > 0 {
		return true
	}
	_, err := os.Lstat(path)
	return err == nil
}

// Release drops a reservation whose download did not produce a file
func (m *Manager) Release(path string) {
	m.mu.Lock()
	delete(m.reserved, path)
	m.mu.Unlock()
}

// TrackFile registers a finished download and returns its record
func (m *Manager) TrackFile(path, sourceURL string, size int64) *model.DownloadedFile {
	now := time.Now()
	file := &model.DownloadedFile{
		ID:        uuid.NewString(),
		Filename:  filepath.Base(path),
		FilePath:  path,
		Size:      size,
		CreatedAt: now,
		ExpiresAt: now.Add(time.Duration(m.cfg.FileTTLSeconds) * time.Second),
		URL:       sourceURL,
	}

	m.mu.Lock()
	delete(m.reserved, path)
	m.files[file.ID] = file
	m.paths[path]++
	m.mu.Unlock()

	logger.Logger.Info("File tracked", zap.String("id", file.ID), zap.String("filename", file.Filename))
	return file
}

// GetFile gets file info by ID
func (m *Manager) GetFile(id string) *model.DownloadedFile {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.files[id]
}

// TrackedFilesCount returns the number of files currently being tracked
func (m *Manager) TrackedFilesCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.files)
}

func (m *Manager) cleanupRoutine() {
	ticker := time.NewTicker(time.Duration(m.cfg.CleanupInterval) * time.Second)
	defer ticker.Stop()

	logger.Logger.Info("Storage cleanup routine started",
		zap.Int("cleanup_interval_seconds", m.cfg.CleanupInterval),
		zap.Int("file_ttl_seconds", m.cfg.FileTTLSeconds))

	for {
		select {
		case <-m.quit:
			logger.Logger.Info("Storage cleanup routine stopped")
			return
		case <-ticker.C:
			m.cleanupExpired(time.Now())
		}
	}
}

// cleanupExpired deletes expired files from disk and stops tracking them.
// A file already gone from disk is only untracked, and a file another record
// still points to stays on disk.
func (m *Manager) cleanupExpired(now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	deleted, failed := 0, 0
	for id, file := range m.files {
		if !now.After(file.ExpiresAt) {
			continue
		}
		delete(m.files, id)
		if m.paths[file.FilePath]--; m.paths[file.FilePath] > 0 {
			continue
		}
		delete(m.paths, file.FilePath)

		if err := os.Remove(file.FilePath); err != nil && !os.IsNotExist(err) {
			logger.Logger.Error("Failed to remove file",
				zap.String("id", id),
				zap.String("path", file.FilePath),
				zap.Error(err))
			failed++
		} else {
			deleted++
		}
	}

	if deleted > 0 || failed > 0 {
		logger.Logger.Info("Storage cleanup completed",
			zap.Int("deleted_count", deleted),
			zap.Int("error_count", failed),
			zap.Int("remaining_tracked_files", len(m.files)))
	}
}
