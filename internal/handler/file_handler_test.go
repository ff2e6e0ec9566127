package handler

import (
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContentDisposition(t *testing.T) {
	assert.Equal(t, `attachment; filename="01_Intro.mp4"`, contentDisposition("01_Intro.mp4"))
	assert.Equal(t, `attachment; filename*=UTF-8''01_%E6%97%A5%E6%9C%AC.mp4`, contentDisposition("01_日本.mp4"))
	assert.Equal(t, `attachment; filename*=UTF-8''a%3Bb.mp4`, contentDisposition("a;b.mp4"))
}

func TestGetFileNotFound(t *testing.T) {
	srv := newTestServer(t)

	w := srv.do(t, http.MethodGet, "/api/files/unknown", nil)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetFileRemovedFromDisk(t *testing.T) {
	srv := newTestServer(t)
	session := srv.resolve(t, "https://youtu.be/solo")

	w := srv.do(t, http.MethodPost, "/api/playlists/"+session.ID+"/runs", `{"format_id":"22"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	run := decode[runResponse](t, w)
	require.Len(t, run.Attempts, 1)

	// single videos land directly in the download root
	assert.Equal(t, filepath.Join(srv.cfg.Storage.DownloadDir, "01_Solo.mp4"), run.Attempts[0].Path)
	require.NoError(t, os.Remove(run.Attempts[0].Path))

	w = srv.do(t, http.MethodGet, "/api/files/"+run.Attempts[0].FileID, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRepeatedRunsKeepSeparateFiles(t *testing.T) {
	srv := newTestServer(t)
	session := srv.resolve(t, playlistURL)
	runsPath := "/api/playlists/" + session.ID + "/runs"

	var attempts []runResponse
	for i := 0; i < 2; i++ {
		w := srv.do(t, http.MethodPost, runsPath, `{"format_id":"22","indices":[3]}`)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		attempts = append(attempts, decode[runResponse](t, w))
	}

	first, second := attempts[0].Attempts[0], attempts[1].Attempts[0]
	dir := filepath.Join(srv.cfg.Storage.DownloadDir, "Conference")
	assert.Equal(t, filepath.Join(dir, "03_Panel.mp4"), first.Path)
	assert.Equal(t, filepath.Join(dir, "03_Panel (2).mp4"), second.Path)

	for _, a := range []struct{ id, name string }{{first.FileID, "03_Panel.mp4"}, {second.FileID, "03_Panel (2).mp4"}} {
		w := srv.do(t, http.MethodGet, "/api/files/"+a.id, nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, `attachment; filename="`+a.name+`"`, w.Header().Get("Content-Disposition"))
	}
}
