package analysis

import "errors"

// Error taxonomy for the orchestration state machine. Signal errors
// ([quality.ErrInsufficientSignalLevel], [quality.ErrInvalidDuration]) pass
// through unwrapped from the quality package.
var (
	// ErrAnalysisInProgress rejects a second submission for a recording ID
	// whose analysis has not reached a terminal state. Duplicates are
	// rejected synchronously, never queued.
	ErrAnalysisInProgress = errors.New("analysis: already in progress for this recording")

	// ErrUnknownRecording is returned when querying or cancelling a
	// recording the orchestrator has never seen.
	ErrUnknownRecording = errors.New("analysis: unknown recording")

	// ErrUploadFailed is the terminal error after the upload retry budget
	// is exhausted. Distinguishable from processing failures.
	ErrUploadFailed = errors.New("analysis: engine upload failed")

	// ErrProcessingFailed is the terminal error when the engine reports a
	// processing failure or delivers a malformed feature map. Not retried.
	ErrProcessingFailed = errors.New("analysis: engine processing failed")

	// ErrResultTimeout is the terminal error when no engine result arrives
	// within the configured bound. A stall is surfaced, never silent.
	ErrResultTimeout = errors.New("analysis: timed out waiting for engine result")

	// ErrCancelled is the terminal error for a caller-cancelled analysis.
	ErrCancelled = errors.New("analysis: cancelled")
)
