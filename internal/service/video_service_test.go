package service

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"playlistfetch/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var youtubeOnly = []string{"youtube.com", "youtu.be"}

// newWorker serves /api/info with the given status and payload and counts hits
func newWorker(t *testing.T, status int, payload any) (*VideoService, *atomic.Int32) {
	t.Helper()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		assert.Equal(t, "/api/info", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)

		var body map[string]string
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.NotEmpty(t, body["url"])

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(payload)
	}))
	t.Cleanup(srv.Close)

	svc := NewVideoService("127.0.0.1", 0, 5, youtubeOnly)
	svc.workerURL = srv.URL
	return svc, &hits
}

var singleVideo = map[string]any{
	"id":          "abc",
	"title":       "Some Talk",
	"webpage_url": "https://www.youtube.com/watch?v=abc",
	"formats": []map[string]any{
		{"format_id": "137", "ext": "mp4", "height": 1080, "resolution": "1920x1080", "vcodec": "avc1", "acodec": "none", "filesize": 1048576},
		{"format_id": "136", "ext": "mp4", "resolution": "1280x720", "vcodec": "avc1", "filesize_approx": 524288},
		{"format_id": "140", "ext": "m4a", "vcodec": "none", "acodec": "mp4a"},
		{"format_id": "sb0", "ext": ""},
	},
}

func TestResolveParsesFormats(t *testing.T) {
	svc, hits := newWorker(t, http.StatusOK, singleVideo)

	meta, err := svc.Resolve(context.Background(), "https://youtu.be/abc")
	require.NoError(t, err)

	assert.Equal(t, int32(1), hits.Load())
	assert.Equal(t, "Some Talk", meta.Title)
	assert.Equal(t, "https://www.youtube.com/watch?v=abc", meta.CanonicalURL)
	require.Len(t, meta.Formats, 3)

	fhd := meta.Formats[0]
	require.NotNil(t, fhd.Height)
	assert.Equal(t, 1080, *fhd.Height)
	require.NotNil(t, fhd.ApproxSizeBytes)
	assert.Equal(t, int64(1048576), *fhd.ApproxSizeBytes)
	assert.Equal(t, "FHD", fhd.Quality)

	hd := meta.Formats[1]
	require.NotNil(t, hd.Height)
	assert.Equal(t, 720, *hd.Height)
	assert.Equal(t, int64(524288), *hd.ApproxSizeBytes)
	assert.Equal(t, "HD", hd.Quality)

	audio := meta.Formats[2]
	assert.Nil(t, audio.Height)
	assert.Nil(t, audio.ApproxSizeBytes)
	assert.Equal(t, "Audio", audio.Quality)

	assert.True(t, meta.HasFormat("136"))
	assert.False(t, meta.HasFormat("sb0"))
}

func TestResolveClassifiesWorkerStatus(t *testing.T) {
	tests := []struct {
		name   string
		status int
		kind   error
	}{
		{"bad request", http.StatusBadRequest, model.ErrInvalidURL},
		{"not found", http.StatusNotFound, model.ErrUnsupported},
		{"unprocessable", http.StatusUnprocessableEntity, model.ErrUnsupported},
		{"throttled", http.StatusTooManyRequests, model.ErrNetworkFailure},
		{"worker error", http.StatusInternalServerError, model.ErrNetworkFailure},
		{"bad gateway", http.StatusBadGateway, model.ErrNetworkFailure},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, _ := newWorker(t, tt.status, map[string]string{"error": "nope"})

			meta, err := svc.Resolve(context.Background(), "https://www.youtube.com/watch?v=abc")

			assert.Nil(t, meta)
			assert.ErrorIs(t, err, tt.kind)
			var rerr *model.ResolveError
			require.ErrorAs(t, err, &rerr)
			assert.Equal(t, "https://www.youtube.com/watch?v=abc", rerr.URL)
		})
	}
}

func TestResolveInvalidURLNeverReachesWorker(t *testing.T) {
	svc, hits := newWorker(t, http.StatusOK, singleVideo)

	for _, url := range []string{"", "not a url", "ftp://youtube.com/x", "https://vimeo.com/123"} {
		_, err := svc.Resolve(context.Background(), url)
		assert.ErrorIs(t, err, model.ErrInvalidURL, url)
	}
	assert.Zero(t, hits.Load())
}

func TestResolveUnreachableWorker(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()

	svc := NewVideoService("127.0.0.1", 0, 1, nil)
	svc.workerURL = srv.URL

	_, err := svc.Resolve(context.Background(), "https://www.youtube.com/watch?v=abc")
	assert.ErrorIs(t, err, model.ErrNetworkFailure)
}

func TestResolveUndecodableResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<html>oops</html>"))
	}))
	t.Cleanup(srv.Close)

	svc := NewVideoService("127.0.0.1", 0, 5, nil)
	svc.workerURL = srv.URL

	_, err := svc.Resolve(context.Background(), "https://www.youtube.com/watch?v=abc")
	assert.ErrorIs(t, err, model.ErrUnsupported)
}

var playlist = map[string]any{
	"title": "Conference 2024",
	"entries": []map[string]any{
		{"title": "Keynote", "original_url": "https://www.youtube.com/watch?v=k1", "url": "k1"},
		{"title": "Panel", "url": "https://www.youtube.com/watch?v=p1"},
		{"id": "x9"},
	},
}

func TestEnumeratePlaylist(t *testing.T) {
	svc, _ := newWorker(t, http.StatusOK, playlist)

	listing, err := svc.Enumerate(context.Background(), "https://www.youtube.com/playlist?list=PL1")
	require.NoError(t, err)

	assert.True(t, listing.IsPlaylist)
	assert.Equal(t, "Conference 2024", listing.Title)
	assert.Nil(t, listing.Single)
	assert.Equal(t, []model.VideoRef{
		{Index: 1, SourceURL: "https://www.youtube.com/watch?v=k1", Title: "Keynote"},
		{Index: 2, SourceURL: "https://www.youtube.com/watch?v=p1", Title: "Panel"},
		{Index: 3, SourceURL: "https://www.youtube.com/watch?v=x9"},
	}, listing.Refs)
}

func TestEnumerateSingleVideo(t *testing.T) {
	svc, hits := newWorker(t, http.StatusOK, singleVideo)

	listing, err := svc.Enumerate(context.Background(), "https://youtu.be/abc")
	require.NoError(t, err)

	assert.False(t, listing.IsPlaylist)
	require.Len(t, listing.Refs, 1)
	assert.Equal(t, 1, listing.Refs[0].Index)
	assert.Equal(t, "https://www.youtube.com/watch?v=abc", listing.Refs[0].SourceURL)
	require.NotNil(t, listing.Single)
	assert.Len(t, listing.Single.Formats, 3)
	assert.Equal(t, int32(1), hits.Load())
}

func TestResolveRejectsPlaylistURL(t *testing.T) {
	svc, _ := newWorker(t, http.StatusOK, playlist)

	_, err := svc.Resolve(context.Background(), "https://www.youtube.com/playlist?list=PL1")
	assert.ErrorIs(t, err, model.ErrUnsupported)
}

func TestDetermineQuality(t *testing.T) {
	assert.Equal(t, "SD", determineQuality(model.FormatDescriptor{Height: height(480)}))
	assert.Equal(t, "FD", determineQuality(model.FormatDescriptor{Height: height(360)}))
	assert.Equal(t, "Unknown", determineQuality(model.FormatDescriptor{}))
	assert.Equal(t, 0, parseResolutionHeight("audio only"))
}
