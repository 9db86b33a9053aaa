// Package engine defines the contracts for the external acoustic analysis
// engine: uploading a recording's audio blob plus sample metadata, and
// subscribing to the asynchronous result stream that delivers the computed
// feature map.
//
// The engine is an opaque collaborator. This package deliberately knows
// nothing about how features are computed; it only moves blobs out and
// results in. Concrete transports live in subpackages (cloud for the
// HTTP + WebSocket production client, mock for tests).
//
// This package lives under internal/ because it encapsulates
// application-private transport contracts and is not intended to be imported
// by external code.
package engine

import (
	"context"

	"github.com/PoisonIvory/sagevoice/pkg/voice"
)

// SampleMetadata accompanies an uploaded audio blob so the engine can decode
// and frame it correctly.
type SampleMetadata struct {
	// RecordingID keys the upload and the eventual result.
	RecordingID string

	// UserID identifies the owner of the recording.
	UserID string

	// DurationSeconds is the recording length.
	DurationSeconds float64

	// SampleRate in Hz.
	SampleRate int

	// BitDepth of the encoded audio.
	BitDepth int

	// ChannelCount of the encoded audio.
	ChannelCount int
}

// Result is one engine delivery for a recording. Either Features is a
// complete feature map, or Failed is set with the engine's failure reason.
type Result struct {
	// RecordingID identifies which recording this result belongs to.
	RecordingID string

	// Features is the flat numeric feature map. Nil when Failed is set.
	Features voice.FeatureMap

	// Failed reports that the engine could not process the recording.
	Failed bool

	// FailureReason is the engine's description of the processing failure.
	FailureReason string
}

// Uploader sends a recording's audio blob to the engine for analysis.
// Transport failures are retryable; the caller owns the retry policy.
type Uploader interface {
	// Upload transmits the blob and its metadata. It returns once the
	// engine has accepted the recording for processing, not once the
	// analysis is done — results arrive via a [Subscription].
	Upload(ctx context.Context, meta SampleMetadata, blob []byte) error
}

// Subscription is a live result feed for a single recording. It must be
// released when no longer needed; an unreleased subscription is a resource
// leak, not a missed optimisation.
type Subscription interface {
	// Results returns the channel results are delivered on. The channel is
	// closed after Release or when the underlying transport ends. The
	// transport may redeliver; callers needing at-most-once semantics must
	// deduplicate (see the analysis package).
	Results() <-chan Result

	// Release tears down the feed and closes the Results channel. It is
	// idempotent and safe to call from any goroutine; once it returns the
	// feed delivers no further results.
	Release()
}

// ResultStream creates result subscriptions. Multiple recordings may be in
// flight concurrently, each with an independent subscription.
type ResultStream interface {
	// Subscribe opens a result feed for recordingID. The feed is lazy: no
	// work happens until the engine emits a result for that recording.
	Subscribe(ctx context.Context, recordingID string) (Subscription, error)
}

// Engine is the full external-engine contract consumed by the orchestrator.
type Engine interface {
	Uploader
	ResultStream
}
