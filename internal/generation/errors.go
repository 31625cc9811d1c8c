package generation

import "errors"

// Sentinel errors for the generation pipeline. Handlers map these onto HTTP
// status codes; everything else surfaces as an internal error.
var (
	// ErrValidation marks a bad or missing request field.
	ErrValidation = errors.New("validation failed")

	// ErrConfiguration marks missing external credentials or configuration.
	ErrConfiguration = errors.New("service configuration incomplete")

	// ErrSubmission marks a failed job submission, including responses that
	// carry no job identifier.
	ErrSubmission = errors.New("job submission failed")

	// ErrGenerationFailed marks a job that reached FAILED or CANCELLED.
	ErrGenerationFailed = errors.New("generation failed")

	// ErrTimeout marks a job abandoned after the poll ceiling elapsed.
	ErrTimeout = errors.New("generation timed out")

	// ErrOutputFormat marks a terminal payload whose output field has an
	// unrecognized shape or is empty.
	ErrOutputFormat = errors.New("unrecognized output format")

	// ErrUnrecognizedReference marks an extracted image reference that is
	// neither a data URI nor a remote address.
	ErrUnrecognizedReference = errors.New("unrecognized image reference")

	// ErrUpload marks a failed blob upload. Non-fatal: the pipeline degrades
	// to serving the locally stored image.
	ErrUpload = errors.New("blob upload failed")
)
