package generation

import (
	"encoding/json"
	"fmt"
	"regexp"
	"time"
)

// JobStatus is the lifecycle state reported by the inference API for one job.
type JobStatus string

// Job status values. The inference API may report additional intermediate
// states (IN_QUEUE, IN_PROGRESS, ...); anything that is not terminal keeps the
// poll loop running.
const (
	JobStatusSubmitted JobStatus = "SUBMITTED"
	JobStatusCompleted JobStatus = "COMPLETED"
	JobStatusFailed    JobStatus = "FAILED"
	JobStatusCancelled JobStatus = "CANCELLED"
)

// Terminal reports whether no further polling should occur for this status.
func (s JobStatus) Terminal() bool {
	switch s {
	case JobStatusCompleted, JobStatusFailed, JobStatusCancelled:
		return true
	default:
		return false
	}
}

// Default image dimensions applied when the client omits them.
const (
	DefaultWidth  = 512
	DefaultHeight = 512
)

// guidPattern is the canonical GUID textual form: 8-4-4-4-12 hexadecimal
// groups, version 1-5, RFC 4122 variant.
var guidPattern = regexp.MustCompile(
	`^(?i)[0-9a-f]{8}-[0-9a-f]{4}-[1-5][0-9a-f]{3}-[89ab][0-9a-f]{3}-[0-9a-f]{12}$`,
)

// ValidRequestID reports whether id matches the canonical GUID textual form.
// uuid.Parse is deliberately not used here: it accepts braced and URN forms,
// while the API contract requires the canonical layout only.
func ValidRequestID(id string) bool {
	return guidPattern.MatchString(id)
}

// Request is one inbound image-generation request. It lives for the duration
// of the request only.
type Request struct {
	RequestID string `json:"request_id"`
	Prompt    string `json:"prompt"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
}

// ApplyDefaults fills zero dimensions with the service defaults.
func (r *Request) ApplyDefaults() {
	if r.Width <= 0 {
		r.Width = DefaultWidth
	}
	if r.Height <= 0 {
		r.Height = DefaultHeight
	}
}

// Validate enforces the request contract before any external call is made.
func (r Request) Validate() error {
	if r.RequestID == "" || r.Prompt == "" {
		return fmt.Errorf("%w: missing request_id or prompt", ErrValidation)
	}
	if !ValidRequestID(r.RequestID) {
		return fmt.Errorf("%w: request_id must be a valid GUID", ErrValidation)
	}
	return nil
}

// JobState is one status-endpoint response for a submitted job.
type JobState struct {
	ID     string          `json:"id"`
	Status JobStatus       `json:"status"`
	Output json.RawMessage `json:"output,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// Record is the row persisted per generation request.
type Record struct {
	RequestID  string     `json:"request_id"`
	Prompt     string     `json:"prompt"`
	Width      int        `json:"width"`
	Height     int        `json:"height"`
	Status     JobStatus  `json:"status"`
	ImageURL   string     `json:"image_url,omitempty"`
	BlobURL    string     `json:"blob_url,omitempty"`
	ErrorText  string     `json:"error_text,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// Result is returned by the pipeline on success.
type Result struct {
	RequestID string `json:"request_id"`
	LocalPath string `json:"local_path"`
	ImageURL  string `json:"image_url"`
	BlobURL   string `json:"blob_url,omitempty"`
}

// ImageFileName derives the stored image file name from the request id.
func ImageFileName(requestID string) string {
	return requestID + ".png"
}
