package baseline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/PoisonIvory/sagevoice/internal/clinical"
	"github.com/PoisonIvory/sagevoice/internal/observe"
	"github.com/PoisonIvory/sagevoice/pkg/voice"
)

// ErrEstablishInProgress rejects a concurrent establishment for the same
// user. The caller is rejected synchronously, never queued; retry once the
// first establishment finishes.
var ErrEstablishInProgress = errors.New("baseline: establishment already in progress for this user")

// Manager owns the baseline lifecycle: validation, establishment with
// archive-then-install replacement, history, and personalized threshold
// derivation. All exported methods are safe for concurrent use; Establish is
// serialized per user.
type Manager struct {
	store     Store
	validator *clinical.Validator
	metrics   *observe.Metrics

	mu    sync.Mutex
	users map[string]*sync.Mutex
}

// NewManager creates a Manager. metrics may be nil, in which case the
// package-level default metrics are used.
func NewManager(store Store, validator *clinical.Validator, metrics *observe.Metrics) *Manager {
	if metrics == nil {
		metrics = observe.DefaultMetrics()
	}
	return &Manager{
		store:     store,
		validator: validator,
		metrics:   metrics,
		users:     make(map[string]*sync.Mutex),
	}
}

// Establish validates the biomarkers against the demographic thresholds and,
// on acceptance, installs a new active baseline for the user, archiving any
// existing one. The archive and install steps are atomic from the caller's
// perspective (delegated to [Store.Install]).
//
// A validation rejection is not an error: Establish returns a nil baseline
// with the outcome describing every failed check.
//
// At most one establishment may be in flight per user; a concurrent call
// returns [ErrEstablishInProgress] immediately.
func (m *Manager) Establish(ctx context.Context, userID string, biomarkers voice.VocalBiomarkers, demographic voice.Demographic, recCtx RecordingContext) (*Baseline, clinical.Outcome, error) {
	if userID == "" {
		return nil, clinical.Outcome{}, errors.New("baseline: userID must not be empty")
	}
	if !recCtx.IsValid() {
		return nil, clinical.Outcome{}, fmt.Errorf("baseline: invalid recording context %q", recCtx)
	}

	lock := m.userLock(userID)
	if !lock.TryLock() {
		return nil, clinical.Outcome{}, fmt.Errorf("%w: %s", ErrEstablishInProgress, userID)
	}
	defer lock.Unlock()

	log := observe.Logger(ctx).With("user_id", userID, "demographic", string(demographic))

	outcome := m.validator.Validate(biomarkers, demographic)
	m.recordValidation(ctx, outcome)
	if !outcome.Accepted {
		log.Info("baseline validation rejected",
			"failed_checks", outcome.FailedChecks,
			"confidence", outcome.Confidence,
		)
		return nil, outcome, nil
	}

	now := time.Now().UTC()
	b := Baseline{
		ID:            uuid.NewString(),
		UserID:        userID,
		EstablishedAt: now,
		Biomarkers:    biomarkers,
		Demographic:   demographic,
		Context:       recCtx,
		Status: ValidationStatus{
			Accepted:   true,
			Confidence: outcome.Confidence,
		},
		AnalysisVersion: AnalysisVersion,
	}

	// Carry the replacement chain forward from the baseline being replaced.
	prev, err := m.store.Active(ctx, userID)
	switch {
	case err == nil:
		b.ReplacementHistory = append(
			append([]Replacement(nil), prev.ReplacementHistory...),
			Replacement{ArchivedID: prev.ID, ReplacedAt: now},
		)
		m.metrics.BaselineReplacements.Add(ctx, 1)
	case errors.Is(err, ErrNoActiveBaseline):
		// First baseline for this user.
	default:
		return nil, outcome, fmt.Errorf("baseline: load active: %w", err)
	}

	if err := m.store.Install(ctx, b, now); err != nil {
		return nil, outcome, fmt.Errorf("baseline: install: %w", err)
	}

	log.Info("baseline established",
		"baseline_id", b.ID,
		"context", string(recCtx),
		"replaced", len(b.ReplacementHistory) > 0,
	)
	return &b, outcome, nil
}

// Active returns the user's active baseline, or [ErrNoActiveBaseline].
func (m *Manager) Active(ctx context.Context, userID string) (Baseline, error) {
	return m.store.Active(ctx, userID)
}

// History returns the user's archived baselines, most recent first.
func (m *Manager) History(ctx context.Context, userID string) ([]Archived, error) {
	return m.store.History(ctx, userID)
}

// PersonalizedThresholds derives follow-up thresholds from a baseline. Pure
// derivation; nothing is persisted.
func (m *Manager) PersonalizedThresholds(b Baseline) clinical.PersonalizedThresholds {
	return clinical.Personalize(b.Biomarkers)
}

// userLock returns the per-user establishment mutex, creating it on first
// use. Lock entries are never removed; the map grows with the user set,
// which is bounded in practice.
func (m *Manager) userLock(userID string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	lock, ok := m.users[userID]
	if !ok {
		lock = &sync.Mutex{}
		m.users[userID] = lock
	}
	return lock
}

// recordValidation emits validation outcome metrics, including one counter
// increment per failed check.
func (m *Manager) recordValidation(ctx context.Context, outcome clinical.Outcome) {
	status := "accepted"
	if !outcome.Accepted {
		status = "rejected"
	}
	m.metrics.ValidationOutcomes.Add(ctx, 1,
		metric.WithAttributes(attribute.String("status", status)))
	for _, name := range outcome.FailedChecks {
		m.metrics.ValidationCheckFailures.Add(ctx, 1,
			metric.WithAttributes(attribute.String("check", name)))
	}
}
