// Package analysis implements the two-phase analysis orchestration for a
// voice recording: a fast local estimate published within seconds, followed
// by the external engine's high-precision result delivered asynchronously.
//
// The orchestrator is a per-recording state machine:
//
//	idle → localAnalyzing → localComplete → cloudAnalyzing → complete | error
//
// complete and error are terminal for a given recording. For a single
// recording ID, observers see transitions strictly in this order; across
// recording IDs there is no ordering guarantee.
package analysis

import (
	"github.com/PoisonIvory/sagevoice/pkg/voice"
)

// Phase is the tag of the orchestration state machine.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseLocalAnalyzing
	PhaseLocalComplete
	PhaseCloudAnalyzing
	PhaseComplete
	PhaseError
)

// String returns the camel-case phase name used in API payloads and logs.
func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseLocalAnalyzing:
		return "localAnalyzing"
	case PhaseLocalComplete:
		return "localComplete"
	case PhaseCloudAnalyzing:
		return "cloudAnalyzing"
	case PhaseComplete:
		return "complete"
	case PhaseError:
		return "error"
	default:
		return "unknown"
	}
}

// Terminal reports whether the phase ends the state machine.
func (p Phase) Terminal() bool {
	return p == PhaseComplete || p == PhaseError
}

// State is a tagged value describing one observed point of a recording's
// analysis. Which payload fields are meaningful depends on Phase:
//
//   - PhaseLocalComplete and later: Local holds the published local metrics.
//   - PhaseComplete: Biomarkers holds the final result.
//   - PhaseError: Err holds the terminal failure.
//
// Degraded and Warnings accumulate monotonically and are valid from
// PhaseLocalComplete onward. States are snapshots; the orchestrator never
// mutates a State after publishing it.
type State struct {
	RecordingID string
	Phase       Phase

	Local      voice.BasicVoiceMetrics
	Biomarkers voice.VocalBiomarkers
	Err        error

	// Degraded records that the quality gate discounted confidence scores
	// for this recording.
	Degraded bool

	// Warnings lists non-fatal conditions attached to a completed analysis
	// (e.g. "degraded_signal_quality").
	Warnings []string
}

// Terminal reports whether s is a terminal state.
func (s State) Terminal() bool { return s.Phase.Terminal() }

// State constructors. Each produces a fresh snapshot so observers can hold
// on to values without aliasing orchestrator internals.

func stateLocalAnalyzing(recordingID string) State {
	return State{RecordingID: recordingID, Phase: PhaseLocalAnalyzing}
}

func stateLocalComplete(recordingID string, metrics voice.BasicVoiceMetrics, degraded bool, warnings []string) State {
	return State{
		RecordingID: recordingID,
		Phase:       PhaseLocalComplete,
		Local:       metrics,
		Degraded:    degraded,
		Warnings:    warnings,
	}
}

func stateCloudAnalyzing(prev State) State {
	next := prev
	next.Phase = PhaseCloudAnalyzing
	return next
}

func stateComplete(prev State, biomarkers voice.VocalBiomarkers) State {
	next := prev
	next.Phase = PhaseComplete
	next.Biomarkers = biomarkers
	return next
}

func stateError(prev State, err error) State {
	next := prev
	next.Phase = PhaseError
	next.Err = err
	return next
}
