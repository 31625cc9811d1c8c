package generation

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Unix(1700000000, 0).UTC()}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fakeInferenceClient struct {
	submitID    string
	submitErr   error
	submitCalls int

	states      []JobState
	statusErr   error
	statusCalls int
}

func (c *fakeInferenceClient) SubmitJob(_ context.Context, _ Request) (string, error) {
	c.submitCalls++
	return c.submitID, c.submitErr
}

func (c *fakeInferenceClient) JobStatus(_ context.Context, _ string) (JobState, error) {
	c.statusCalls++
	if c.statusErr != nil {
		return JobState{}, c.statusErr
	}
	idx := c.statusCalls - 1
	if idx >= len(c.states) {
		idx = len(c.states) - 1
	}
	return c.states[idx], nil
}

// newTestPoller wires a poller whose sleep advances the fake clock instead of
// blocking.
func newTestPoller(client *fakeInferenceClient, clock *fakeClock, cfg PollerConfig) *Poller {
	p := NewPoller(client, clock, cfg, zap.NewNop())
	p.sleep = func(_ context.Context, d time.Duration) error {
		clock.Advance(d)
		return nil
	}
	return p
}

func TestPoller_CompletedAfterIntermediateStates(t *testing.T) {
	t.Parallel()

	client := &fakeInferenceClient{
		submitID: "job-1",
		states: []JobState{
			{Status: "IN_QUEUE"},
			{Status: "IN_PROGRESS"},
			{Status: JobStatusCompleted, Output: json.RawMessage(`{"image_url":"https://cdn.example.com/out.png"}`)},
		},
	}
	p := newTestPoller(client, newFakeClock(), PollerConfig{})

	ref, err := p.Run(context.Background(), Request{RequestID: "r", Prompt: "p"})
	require.NoError(t, err)
	require.Equal(t, "https://cdn.example.com/out.png", ref)
	require.Equal(t, 1, client.submitCalls)
	require.Equal(t, 3, client.statusCalls)
}

func TestPoller_SubmitErrorIsSubmissionError(t *testing.T) {
	t.Parallel()

	client := &fakeInferenceClient{submitErr: errors.New("upstream 500")}
	p := newTestPoller(client, newFakeClock(), PollerConfig{})

	_, err := p.Run(context.Background(), Request{RequestID: "r", Prompt: "p"})
	require.ErrorIs(t, err, ErrSubmission)
	require.Contains(t, err.Error(), "upstream 500")
	require.Zero(t, client.statusCalls)
}

func TestPoller_MissingJobIDIsSubmissionError(t *testing.T) {
	t.Parallel()

	client := &fakeInferenceClient{submitID: ""}
	p := newTestPoller(client, newFakeClock(), PollerConfig{})

	_, err := p.Run(context.Background(), Request{RequestID: "r", Prompt: "p"})
	require.ErrorIs(t, err, ErrSubmission)
	require.Zero(t, client.statusCalls)
}

func TestPoller_FailedCarriesUpstreamDetail(t *testing.T) {
	t.Parallel()

	client := &fakeInferenceClient{
		submitID: "job-2",
		states:   []JobState{{Status: JobStatusFailed, Error: "prompt rejected by safety filter"}},
	}
	p := newTestPoller(client, newFakeClock(), PollerConfig{})

	_, err := p.Run(context.Background(), Request{RequestID: "r", Prompt: "p"})
	require.ErrorIs(t, err, ErrGenerationFailed)
	require.Contains(t, err.Error(), "prompt rejected by safety filter")
}

func TestPoller_CancelledIsGenerationFailed(t *testing.T) {
	t.Parallel()

	client := &fakeInferenceClient{
		submitID: "job-3",
		states:   []JobState{{Status: JobStatusCancelled}},
	}
	p := newTestPoller(client, newFakeClock(), PollerConfig{})

	_, err := p.Run(context.Background(), Request{RequestID: "r", Prompt: "p"})
	require.ErrorIs(t, err, ErrGenerationFailed)
	require.Contains(t, err.Error(), string(JobStatusCancelled))
}

func TestPoller_TimesOutAfterCeilingNotBefore(t *testing.T) {
	t.Parallel()

	client := &fakeInferenceClient{
		submitID: "job-4",
		states:   []JobState{{Status: "IN_PROGRESS"}},
	}
	clock := newFakeClock()
	start := clock.Now()
	p := newTestPoller(client, clock, PollerConfig{
		Interval: 2 * time.Second,
		Timeout:  120 * time.Second,
	})

	_, err := p.Run(context.Background(), Request{RequestID: "r", Prompt: "p"})
	require.ErrorIs(t, err, ErrTimeout)
	// Polls run at t=0,2,...,120 before the ceiling trips on the next pass.
	require.Equal(t, 62, client.statusCalls)
	require.GreaterOrEqual(t, clock.Now().Sub(start), 120*time.Second)
}

func TestPoller_PollTransportErrorPropagatesImmediately(t *testing.T) {
	t.Parallel()

	client := &fakeInferenceClient{
		submitID:  "job-5",
		statusErr: errors.New("connection reset"),
	}
	p := newTestPoller(client, newFakeClock(), PollerConfig{})

	_, err := p.Run(context.Background(), Request{RequestID: "r", Prompt: "p"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "poll job job-5")
	require.Contains(t, err.Error(), "connection reset")
	require.Equal(t, 1, client.statusCalls)
}

func TestPoller_SleepCancellationStopsLoop(t *testing.T) {
	t.Parallel()

	client := &fakeInferenceClient{
		submitID: "job-6",
		states:   []JobState{{Status: "IN_QUEUE"}},
	}
	p := NewPoller(client, newFakeClock(), PollerConfig{}, zap.NewNop())
	p.sleep = func(ctx context.Context, _ time.Duration) error {
		return context.Canceled
	}

	_, err := p.Run(context.Background(), Request{RequestID: "r", Prompt: "p"})
	require.ErrorIs(t, err, context.Canceled)
}
