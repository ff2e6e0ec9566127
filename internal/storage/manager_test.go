package storage

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"playlistfetch/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	return NewManager(&model.StorageConfig{
		DownloadDir:    t.TempDir(),
		FileTTLSeconds: 60,
	})
}

func TestDestination(t *testing.T) {
	m := newTestManager(t)

	tests := []struct {
		name string
		ref  model.VideoRef
		want string
	}{
		{"padded index", model.VideoRef{Index: 7, Title: "Intro"}, "07_Intro.mp4"},
		{"three digits", model.VideoRef{Index: 123, Title: "Outro"}, "123_Outro.mp4"},
		{"unsafe characters", model.VideoRef{Index: 1, Title: "What? Why*"}, "01_What_ Why_.mp4"},
		{"missing title", model.VideoRef{Index: 4}, "04_video_4.mp4"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, filepath.Join("/out", tt.want), m.Destination("/out", tt.ref))
		})
	}
}

func TestDestinationTruncatesLongTitles(t *testing.T) {
	m := newTestManager(t)

	got := filepath.Base(m.Destination("/out", model.VideoRef{Index: 1, Title: strings.Repeat("a", 400)}))

	assert.LessOrEqual(t, len([]rune(got)), maxFilenameLen)
	assert.True(t, strings.HasPrefix(got, "01_aaa"))
	assert.True(t, strings.HasSuffix(got, ".mp4"))
}

func TestCollectionDir(t *testing.T) {
	m := newTestManager(t)

	single, err := m.CollectionDir("Some Video", false)
	require.NoError(t, err)
	assert.Equal(t, m.cfg.DownloadDir, single)

	dir, err := m.CollectionDir("Talks: 2024/25", true)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(m.cfg.DownloadDir, "Talks_ 2024_25"), dir)
	assert.DirExists(t, dir)

	untitled, err := m.CollectionDir("", true)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(m.cfg.DownloadDir, "Playlist"), untitled)
}

func TestTrackFile(t *testing.T) {
	m := newTestManager(t)
	path := filepath.Join(m.cfg.DownloadDir, "01_Intro.mp4")

	file := m.TrackFile(path, "https://www.youtube.com/watch?v=abc", 42)

	assert.NotEmpty(t, file.ID)
	assert.Equal(t, "01_Intro.mp4", file.Filename)
	assert.Equal(t, int64(42), file.Size)
	assert.WithinDuration(t, time.Now().Add(time.Minute), file.ExpiresAt, 5*time.Second)
	assert.Same(t, file, m.GetFile(file.ID))
	assert.Nil(t, m.GetFile("missing"))
	assert.Equal(t, 1, m.TrackedFilesCount())
}

func TestCleanupExpired(t *testing.T) {
	m := newTestManager(t)

	expiredPath := filepath.Join(m.cfg.DownloadDir, "old.mp4")
	freshPath := filepath.Join(m.cfg.DownloadDir, "new.mp4")
	require.NoError(t, os.WriteFile(expiredPath, []byte("old"), 0644))
	require.NoError(t, os.WriteFile(freshPath, []byte("new"), 0644))

	expired := m.TrackFile(expiredPath, "", 3)
	fresh := m.TrackFile(freshPath, "", 3)
	gone := m.TrackFile(filepath.Join(m.cfg.DownloadDir, "gone.mp4"), "", 0)

	expired.ExpiresAt = time.Now().Add(-time.Second)
	gone.ExpiresAt = time.Now().Add(-time.Second)

	m.cleanupExpired(time.Now())

	assert.NoFileExists(t, expiredPath)
	assert.FileExists(t, freshPath)
	assert.Nil(t, m.GetFile(expired.ID))
	assert.Nil(t, m.GetFile(gone.ID))
	assert.NotNil(t, m.GetFile(fresh.ID))
	assert.Equal(t, 1, m.TrackedFilesCount())
}

func TestManagerStopIsIdempotent(t *testing.T) {
	m := NewManager(&model.StorageConfig{DownloadDir: t.TempDir(), CleanupInterval: 1})
	m.Start()
	m.Stop()
	m.Stop()
}

func TestDestinationIsUniquePerAttempt(t *testing.T) {
	m := newTestManager(t)
	dir, err := m.CollectionDir("PL", true)
	require.NoError(t, err)
	ref := model.VideoRef{Index: 1, Title: "clip"}

	// two runs on the same entry, e.g. format 22 then 137
	first := m.Destination(dir, ref)
	second := m.Destination(dir, ref)

	assert.Equal(t, filepath.Join(dir, "01_clip.mp4"), first)
	assert.Equal(t, filepath.Join(dir, "01_clip (2).mp4"), second)

	require.NoError(t, os.WriteFile(first, []byte("format 22"), 0644))
	require.NoError(t, os.WriteFile(second, []byte("format 137"), 0644))
	firstFile := m.TrackFile(first, "", 9)
	secondFile := m.TrackFile(second, "", 10)

	// a third run must not reuse either tracked path
	assert.Equal(t, filepath.Join(dir, "01_clip (3).mp4"), m.Destination(dir, ref))

	firstFile.ExpiresAt = time.Now().Add(-time.Second)
	m.cleanupExpired(time.Now())

	assert.NoFileExists(t, first)
	content, err := os.ReadFile(m.GetFile(secondFile.ID).FilePath)
	require.NoError(t, err)
	assert.Equal(t, "format 137", string(content))
}

func TestDestinationSkipsFilesOnDiskAndReusesReleasedPaths(t *testing.T) {
	m := newTestManager(t)
	dir := m.cfg.DownloadDir
	ref := model.VideoRef{Index: 2, Title: "song"}

	require.NoError(t, os.WriteFile(filepath.Join(dir, "02_song.mp4"), []byte("old"), 0644))

	reserved := m.Destination(dir, ref)
	assert.Equal(t, filepath.Join(dir, "02_song (2).mp4"), reserved)

	m.Release(reserved)
	assert.Equal(t, reserved, m.Destination(dir, ref))
}

func TestCleanupKeepsPathsStillTracked(t *testing.T) {
	m := newTestManager(t)
	path := filepath.Join(m.cfg.DownloadDir, "shared.mp4")
	require.NoError(t, os.WriteFile(path, []byte("data"), 0644))

	older := m.TrackFile(path, "", 4)
	newer := m.TrackFile(path, "", 4)

	older.ExpiresAt = time.Now().Add(-time.Second)
	m.cleanupExpired(time.Now())

	assert.FileExists(t, path)
	assert.Nil(t, m.GetFile(older.ID))
	assert.NotNil(t, m.GetFile(newer.ID))

	newer.ExpiresAt = time.Now().Add(-time.Second)
	m.cleanupExpired(time.Now())

	assert.NoFileExists(t, path)
	assert.Zero(t, m.TrackedFilesCount())
}
