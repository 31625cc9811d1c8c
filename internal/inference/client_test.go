package inference

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/pixelforge/imagesvc/internal/generation"
)

func TestNewRequiresBaseURL(t *testing.T) {
	t.Parallel()

	_, err := New(Config{}, zap.NewNop())
	require.Error(t, err)
}

func TestSubmitJobPostsInputEnvelope(t *testing.T) {
	t.Parallel()

	var gotBody map[string]map[string]any
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/run", r.URL.Path)
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		_ = json.NewEncoder(w).Encode(map[string]string{"id": "job-123", "status": "IN_QUEUE"})
	}))
	defer srv.Close()

	client, err := New(Config{BaseURL: srv.URL, APIKey: "secret"}, zap.NewNop())
	require.NoError(t, err)

	id, err := client.SubmitJob(context.Background(), generation.Request{
		Prompt: "a red barn",
		Width:  512,
		Height: 512,
	})
	require.NoError(t, err)
	require.Equal(t, "job-123", id)
	require.Equal(t, "Bearer secret", gotAuth)
	require.Equal(t, "a red barn", gotBody["input"]["prompt"])
	require.Equal(t, float64(512), gotBody["input"]["width"])
}

func TestSubmitJobSurfacesUpstreamError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":"rate limited"}`))
	}))
	defer srv.Close()

	client, err := New(Config{BaseURL: srv.URL}, zap.NewNop())
	require.NoError(t, err)

	_, err = client.SubmitJob(context.Background(), generation.Request{Prompt: "p"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "429")
	require.Contains(t, err.Error(), "rate limited")
}

func TestJobStatusDecodesStateAndNormalizesStatus(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/status/job-123", r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":     "job-123",
			"status": "completed",
			"output": map[string]string{"image_url": "https://cdn.example.com/a.png"},
		})
	}))
	defer srv.Close()

	client, err := New(Config{BaseURL: srv.URL + "/"}, zap.NewNop())
	require.NoError(t, err)

	state, err := client.JobStatus(context.Background(), "job-123")
	require.NoError(t, err)
	require.Equal(t, generation.JobStatusCompleted, state.Status)

	ref, err := generation.ExtractReference(state.Output)
	require.NoError(t, err)
	require.Equal(t, "https://cdn.example.com/a.png", ref)
}

func TestJobStatusCarriesUpstreamErrorDetail(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":     "job-9",
			"status": "FAILED",
			"error":  "worker crashed",
		})
	}))
	defer srv.Close()

	client, err := New(Config{BaseURL: srv.URL}, zap.NewNop())
	require.NoError(t, err)

	state, err := client.JobStatus(context.Background(), "job-9")
	require.NoError(t, err)
	require.Equal(t, generation.JobStatusFailed, state.Status)
	require.Equal(t, "worker crashed", state.Error)
}

func TestJobStatusNonOKIsError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	client, err := New(Config{BaseURL: srv.URL}, zap.NewNop())
	require.NoError(t, err)

	_, err = client.JobStatus(context.Background(), "missing")
	require.Error(t, err)
	require.Contains(t, err.Error(), "404")
}
