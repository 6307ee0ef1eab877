package domain

import "errors"

// Error kinds produced by the edit pipeline. Callers classify with
// errors.Is; the wrapped message carries the human-readable detail.
var (
	// ErrConfiguration means a required credential or setting is absent.
	// Detected before any network activity.
	ErrConfiguration = errors.New("configuration error")

	// ErrNetwork is a transport-level failure on an upload or submission
	// call. It is not retried automatically.
	ErrNetwork = errors.New("network failure")

	// ErrProtocol means a response body could not be interpreted as the
	// expected structured data.
	ErrProtocol = errors.New("unexpected response format")

	// ErrUploadRejected means the hosting service explicitly reported a
	// failed upload.
	ErrUploadRejected = errors.New("upload rejected")

	// ErrSubmission means the job service accepted the HTTP call but did
	// not return a usable job id.
	ErrSubmission = errors.New("job submission failed")

	// ErrJobFailed means the remote job reached FAILED or CANCELED.
	ErrJobFailed = errors.New("job failed")

	// ErrMalformedResult means the remote job completed but its output did
	// not contain the result URL.
	ErrMalformedResult = errors.New("malformed job result")

	// ErrTimeout means the poll budget ran out before a terminal status
	// was observed; the remote outcome is unknown.
	ErrTimeout = errors.New("job polling timed out")
)
