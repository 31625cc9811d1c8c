package generation

import (
	"context"
	"time"
)

// InferenceClient talks to the external asynchronous inference API.
type InferenceClient interface {
	// SubmitJob sends the generation payload and returns the issued job id.
	SubmitJob(ctx context.Context, req Request) (string, error)
	// JobStatus queries the status endpoint for a previously issued job id.
	JobStatus(ctx context.Context, jobID string) (JobState, error)
}

// BlobStore uploads an artifact and returns its public URL.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data []byte) (string, error)
}

// RecordStore persists generation request metadata.
type RecordStore interface {
	CreateRecord(ctx context.Context, rec Record) error
	FinishRecord(ctx context.Context, requestID string, status JobStatus, imageURL, blobURL, errText string, finishedAt time.Time) error
}

// Publisher pushes completion events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// SleepFunc waits for d or until the context finishes, whichever comes first.
type SleepFunc func(ctx context.Context, d time.Duration) error
