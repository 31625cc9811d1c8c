package generation

import (
	"context"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testRequestID = "16fd2706-8baf-433b-82eb-8c7fada847da"

func newTestResolver(t *testing.T) *Resolver {
	t.Helper()
	r, err := NewResolver(t.TempDir(), nil, 0, zap.NewNop())
	require.NoError(t, err)
	return r
}

func TestResolver_MaterializeDataURI(t *testing.T) {
	t.Parallel()

	payload := []byte{0x89, 'P', 'N', 'G', 0x0d, 0x0a, 0x1a, 0x0a, 1, 2, 3}
	ref := "data:image/png;base64," + base64.StdEncoding.EncodeToString(payload)
	r := newTestResolver(t)

	path, data, err := r.Materialize(context.Background(), testRequestID, ref)
	require.NoError(t, err)
	require.Equal(t, payload, data)
	require.Equal(t, testRequestID+".png", filepath.Base(path))

	stored, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, payload, stored)
}

func TestResolver_MaterializeRemoteURL(t *testing.T) {
	t.Parallel()

	payload := []byte("remote image bytes")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write(payload)
	}))
	defer srv.Close()

	r := newTestResolver(t)
	path, data, err := r.Materialize(context.Background(), testRequestID, srv.URL+"/out.png")
	require.NoError(t, err)
	require.Equal(t, payload, data)
	require.FileExists(t, path)
}

func TestResolver_RemoteErrorStatus(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	r := newTestResolver(t)
	_, _, err := r.Materialize(context.Background(), testRequestID, srv.URL)
	require.Error(t, err)
	require.Contains(t, err.Error(), "unexpected status 404")
}

func TestResolver_UnrecognizedReference(t *testing.T) {
	t.Parallel()

	r := newTestResolver(t)
	for _, ref := range []string{
		"ftp://example.com/a.png",
		"just some text",
		"file:///etc/passwd",
	} {
		_, _, err := r.Materialize(context.Background(), testRequestID, ref)
		require.ErrorIs(t, err, ErrUnrecognizedReference, "reference %q", ref)
	}
}

func TestResolver_MalformedDataURI(t *testing.T) {
	t.Parallel()

	r := newTestResolver(t)

	_, _, err := r.Materialize(context.Background(), testRequestID, "data:image/png;base64")
	require.ErrorIs(t, err, ErrUnrecognizedReference)

	_, _, err = r.Materialize(context.Background(), testRequestID, "data:image/png,rawdata")
	require.ErrorIs(t, err, ErrUnrecognizedReference)

	_, _, err = r.Materialize(context.Background(), testRequestID, "data:image/png;base64,!!!not-base64!!!")
	require.ErrorIs(t, err, ErrUnrecognizedReference)
}

func TestResolver_EnforcesMaxBytes(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write(make([]byte, 64))
	}))
	defer srv.Close()

	r, err := NewResolver(t.TempDir(), nil, 16, zap.NewNop())
	require.NoError(t, err)

	_, _, err = r.Materialize(context.Background(), testRequestID, srv.URL)
	require.Error(t, err)
	require.Contains(t, err.Error(), "exceeds max")
}
