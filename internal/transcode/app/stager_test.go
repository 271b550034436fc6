package app

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	errprocess "hls_transcode_service/pkg/err"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStager_HTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/video.mp4":
			_, _ = w.Write([]byte("media-bytes"))
		case "/private.mp4":
			w.WriteHeader(http.StatusForbidden)
		default:
			w.WriteHeader(http.StatusBadGateway)
		}
	}))
	defer srv.Close()

	ws, err := NewWorkspace(t.TempDir(), "job", 1)
	require.NoError(t, err)
	stager := NewSourceStager(nil, srv.Client())

	p, err := stager.Stage(context.Background(), srv.URL+"/video.mp4", ws)
	require.NoError(t, err)
	assert.Equal(t, ws.SourcePath(".mp4"), p)
	data, err := os.ReadFile(p)
	require.NoError(t, err)
	assert.Equal(t, "media-bytes", string(data))

	_, err = stager.Stage(context.Background(), srv.URL+"/private.mp4", ws)
	assert.True(t, errors.Is(err, errprocess.ErrAccessDenied))

	_, err = stager.Stage(context.Background(), srv.URL+"/flaky.mp4", ws)
	assert.True(t, errors.Is(err, errprocess.ErrStorageUnavailable))
}

func TestStager_ObjectStore(t *testing.T) {
	store := newMemStore()
	_, err := store.PutBytes(context.Background(), "uploads/raw.mov", []byte("raw"), "video/quicktime")
	require.NoError(t, err)

	ws, err := NewWorkspace(t.TempDir(), "job", 1)
	require.NoError(t, err)
	stager := NewSourceStager(store, nil)

	for _, src := range []string{"s3://media/uploads/raw.mov", "minio://media/uploads/raw.mov", "uploads/raw.mov"} {
		p, err := stager.Stage(context.Background(), src, ws)
		require.NoError(t, err, src)
		assert.Equal(t, ws.SourcePath(".mov"), p)
	}

	_, err = stager.Stage(context.Background(), "s3://media", ws)
	assert.True(t, errors.Is(err, errprocess.ErrInvalidInput))
}

func TestStager_Local(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "input.mp4")
	require.NoError(t, os.WriteFile(src, []byte("x"), 0o644))

	ws, err := NewWorkspace(t.TempDir(), "job", 1)
	require.NoError(t, err)
	stager := NewSourceStager(nil, nil)

	p, err := stager.Stage(context.Background(), src, ws)
	require.NoError(t, err)
	assert.Equal(t, src, p)

	p, err = stager.Stage(context.Background(), "file://"+src, ws)
	require.NoError(t, err)
	assert.Equal(t, src, p)

	_, err = stager.Stage(context.Background(), filepath.Join(dir, "missing.mp4"), ws)
	assert.True(t, errors.Is(err, errprocess.ErrWorkspace))

	_, err = stager.Stage(context.Background(), "ftp://host/video.mp4", ws)
	assert.True(t, errors.Is(err, errprocess.ErrInvalidInput))
}
