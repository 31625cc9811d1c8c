package generation

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Poll loop defaults: one status query every 2s, abandon after 120s.
const (
	DefaultPollInterval = 2 * time.Second
	DefaultPollTimeout  = 120 * time.Second
)

// PollerConfig controls the poll loop cadence and ceiling.
type PollerConfig struct {
	Interval time.Duration
	Timeout  time.Duration
}

// Poller owns one job's lifecycle against the inference API: submit, then
// poll to a terminal state or the timeout ceiling. The clock and sleep
// function are injected so tests never depend on the wall clock.
type Poller struct {
	client   InferenceClient
	clock    Clock
	sleep    SleepFunc
	interval time.Duration
	timeout  time.Duration
	logger   *zap.Logger
}

// NewPoller constructs a Poller. Zero config values fall back to the defaults.
func NewPoller(client InferenceClient, clock Clock, cfg PollerConfig, logger *zap.Logger) *Poller {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultPollInterval
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultPollTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Poller{
		client:   client,
		clock:    clock,
		sleep:    contextSleep,
		interval: cfg.Interval,
		timeout:  cfg.Timeout,
		logger:   logger,
	}
}

// Run submits the request and blocks until the job reaches a terminal state
// or the timeout ceiling elapses. On COMPLETED it returns the extracted image
// reference. Submission and polling transport errors propagate immediately;
// the loop does not retry them. On timeout the upstream job is abandoned
// without a cancellation attempt.
func (p *Poller) Run(ctx context.Context, req Request) (string, error) {
	jobID, err := p.client.SubmitJob(ctx, req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrSubmission, err)
	}
	if jobID == "" {
		return "", fmt.Errorf("%w: no job id in submission response", ErrSubmission)
	}
	p.logger.Info("job submitted",
		zap.String("request_id", req.RequestID),
		zap.String("job_id", jobID),
	)

	deadline := p.clock.Now().Add(p.timeout)
	for {
		state, err := p.client.JobStatus(ctx, jobID)
		if err != nil {
			return "", fmt.Errorf("poll job %s: %w", jobID, err)
		}

		switch state.Status {
		case JobStatusCompleted:
			p.logger.Info("job completed", zap.String("job_id", jobID))
			return ExtractReference(state.Output)
		case JobStatusFailed, JobStatusCancelled:
			if state.Error != "" {
				return "", fmt.Errorf("%w: %s", ErrGenerationFailed, state.Error)
			}
			return "", fmt.Errorf("%w: job %s reported %s", ErrGenerationFailed, jobID, state.Status)
		}

		if p.clock.Now().After(deadline) {
			return "", fmt.Errorf("%w: job %s still %s after %s", ErrTimeout, jobID, state.Status, p.timeout)
		}
		if err := p.sleep(ctx, p.interval); err != nil {
			return "", fmt.Errorf("wait between polls: %w", err)
		}
	}
}

// contextSleep waits for d unless the context finishes first.
func contextSleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
