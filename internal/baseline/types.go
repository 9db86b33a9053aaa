// Package baseline owns the vocal baseline aggregate and its lifecycle:
// establishing a baseline from validated biomarkers, archiving the previous
// one on replacement, and deriving personalized thresholds.
//
// Baselines follow an append-only model: a baseline's validation status is
// computed once at construction and never changes in place; replacement
// creates a new aggregate and archives the old one. Archived baselines are
// never deleted.
package baseline

import (
	"time"

	"github.com/PoisonIvory/sagevoice/pkg/voice"
)

// AnalysisVersion is stamped on every persisted baseline so downstream
// consumers can account for scoring changes across releases.
const AnalysisVersion = "1.0"

// RecordingContext describes why the recording behind a baseline was made.
type RecordingContext string

const (
	ContextOnboarding    RecordingContext = "onboarding"
	ContextFollowUp      RecordingContext = "follow_up"
	ContextRecalibration RecordingContext = "recalibration"
)

// IsValid reports whether c is a recognised recording context.
func (c RecordingContext) IsValid() bool {
	switch c {
	case ContextOnboarding, ContextFollowUp, ContextRecalibration:
		return true
	}
	return false
}

// ValidationStatus records the clinical validation verdict computed when the
// baseline was constructed. Immutable.
type ValidationStatus struct {
	// Accepted is always true for a stored baseline; the struct also
	// carries rejection details when embedded in API responses.
	Accepted bool

	// Confidence is the validation confidence score (0–100).
	Confidence float64

	// FailedChecks names the failed clinical checks. Empty when Accepted.
	FailedChecks []string

	// Reason is the human-readable rejection summary. Empty when Accepted.
	Reason string
}

// Replacement records one historical replacement of an active baseline.
type Replacement struct {
	// ArchivedID is the ID of the baseline that was archived.
	ArchivedID string

	// ReplacedAt is when the replacement happened.
	ReplacedAt time.Time
}

// Baseline is the aggregate root: a user's reference biomarker set. At most
// one active (non-archived) baseline exists per user at any time — enforced
// by the lifecycle manager and the store, not by the aggregate itself.
type Baseline struct {
	ID            string
	UserID        string
	EstablishedAt time.Time

	Biomarkers  voice.VocalBiomarkers
	Demographic voice.Demographic
	Context     RecordingContext
	Status      ValidationStatus

	// AnalysisVersion identifies the scoring pipeline version.
	AnalysisVersion string

	// ReplacementHistory lists prior replacements carried forward from the
	// baseline this one replaced, oldest first. Grows monotonically.
	ReplacementHistory []Replacement
}

// Archived is a baseline that has been replaced. It keeps the full aggregate
// plus archival bookkeeping.
type Archived struct {
	Baseline

	// ArchivedAt is when the baseline stopped being active.
	ArchivedAt time.Time

	// ReplacedBy is the ID of the baseline that superseded this one.
	ReplacedBy string
}
