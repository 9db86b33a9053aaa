package analysis

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/PoisonIvory/sagevoice/internal/engine"
	"github.com/PoisonIvory/sagevoice/internal/observe"
	"github.com/PoisonIvory/sagevoice/pkg/quality"
	"github.com/PoisonIvory/sagevoice/pkg/voice"
)

// Default orchestration policy values.
const (
	defaultUploadMaxAttempts = 3
	defaultUploadBackoff     = 500 * time.Millisecond
	defaultUploadMaxBackoff  = 10 * time.Second
	defaultResultTimeout     = 2 * time.Minute

	// updateBuffer exceeds the maximum number of transitions a single run
	// can emit, so publishing never blocks on a slow observer.
	updateBuffer = 8
)

// WarningDegradedSignal is attached to results computed from a recording the
// quality gate flagged as degraded.
const WarningDegradedSignal = "degraded_signal_quality"

// Config holds the dependencies and policy for an [Orchestrator].
type Config struct {
	// Estimator runs the local analysis phase. Required.
	Estimator *quality.Estimator

	// Engine is the external analysis engine. Required.
	Engine engine.Engine

	// Metrics receives orchestration telemetry. Defaults to
	// [observe.DefaultMetrics].
	Metrics *observe.Metrics

	// UploadMaxAttempts bounds upload tries (first attempt included).
	// Defaults to 3.
	UploadMaxAttempts int

	// UploadBackoff is the initial retry backoff; it doubles per attempt up
	// to UploadMaxBackoff. Defaults to 500 ms / 10 s.
	UploadBackoff    time.Duration
	UploadMaxBackoff time.Duration

	// ResultTimeout bounds the wait for the engine result after a
	// successful upload. Defaults to 2 minutes.
	ResultTimeout time.Duration
}

// Submission describes one recording to analyse.
type Submission struct {
	// UserID identifies the owner of the recording.
	UserID string

	// Sample carries the capture statistics, including the recording ID.
	Sample voice.AudioSample

	// Capture selects the quality-gate floors.
	Capture quality.CaptureContext

	// Pitch supplies the coarse pitch track for the local phase.
	Pitch quality.PitchSource

	// Audio is the encoded blob uploaded to the external engine.
	Audio []byte
}

// Orchestrator runs the two-phase analysis state machine, one independent
// task per recording. All exported methods are safe for concurrent use.
type Orchestrator struct {
	cfg Config

	mu   sync.Mutex
	runs map[string]*run
}

// run is the in-flight (or finished) execution for one recording.
type run struct {
	recordingID string
	cancel      context.CancelFunc
	updates     chan State
	done        chan struct{}

	mu    sync.Mutex
	state State
	sub   *dedupSubscription
}

// New creates an Orchestrator, applying defaults for unset policy fields.
func New(cfg Config) (*Orchestrator, error) {
	if cfg.Estimator == nil {
		return nil, errors.New("analysis: Config.Estimator is required")
	}
	if cfg.Engine == nil {
		return nil, errors.New("analysis: Config.Engine is required")
	}
	if cfg.Metrics == nil {
		cfg.Metrics = observe.DefaultMetrics()
	}
	if cfg.UploadMaxAttempts <= 0 {
		cfg.UploadMaxAttempts = defaultUploadMaxAttempts
	}
	if cfg.UploadBackoff <= 0 {
		cfg.UploadBackoff = defaultUploadBackoff
	}
	if cfg.UploadMaxBackoff <= 0 {
		cfg.UploadMaxBackoff = defaultUploadMaxBackoff
	}
	if cfg.ResultTimeout <= 0 {
		cfg.ResultTimeout = defaultResultTimeout
	}
	return &Orchestrator{cfg: cfg, runs: make(map[string]*run)}, nil
}

// Submit starts the analysis for the submitted recording and returns the
// channel its state transitions are published on. The channel is closed
// after the terminal state.
//
// Only one in-flight analysis is permitted per recording ID: submitting
// while a previous analysis for the same ID is non-terminal returns
// [ErrAnalysisInProgress]. Once the previous analysis is terminal the ID may
// be resubmitted, starting a fresh run.
func (o *Orchestrator) Submit(ctx context.Context, sub Submission) (<-chan State, error) {
	recordingID := sub.Sample.RecordingID
	if recordingID == "" {
		return nil, errors.New("analysis: submission has no recording ID")
	}
	if sub.Pitch == nil {
		return nil, errors.New("analysis: submission has no pitch source")
	}

	o.mu.Lock()
	if existing, ok := o.runs[recordingID]; ok {
		existing.mu.Lock()
		terminal := existing.state.Terminal()
		existing.mu.Unlock()
		if !terminal {
			o.mu.Unlock()
			o.cfg.Metrics.AnalysisSubmissions.Add(ctx, 1,
				metric.WithAttributes(attribute.String("status", "duplicate")))
			return nil, fmt.Errorf("%w: %s", ErrAnalysisInProgress, recordingID)
		}
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	r := &run{
		recordingID: recordingID,
		cancel:      cancel,
		updates:     make(chan State, updateBuffer),
		done:        make(chan struct{}),
		state:       State{RecordingID: recordingID, Phase: PhaseIdle},
	}
	o.runs[recordingID] = r
	o.mu.Unlock()

	o.cfg.Metrics.AnalysisSubmissions.Add(ctx, 1,
		metric.WithAttributes(attribute.String("status", "accepted")))
	o.cfg.Metrics.ActiveAnalyses.Add(ctx, 1)

	go o.execute(runCtx, r, sub)
	return r.updates, nil
}

// State returns the last published state for a recording.
func (o *Orchestrator) State(recordingID string) (State, error) {
	o.mu.Lock()
	r, ok := o.runs[recordingID]
	o.mu.Unlock()
	if !ok {
		return State{}, fmt.Errorf("%w: %s", ErrUnknownRecording, recordingID)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state, nil
}

// Cancel stops a non-terminal analysis. The result subscription, if any, is
// released before Cancel returns; pending retry backoff is interrupted. The
// run then terminates in the error state with [ErrCancelled]. Cancelling a
// terminal analysis is a no-op; cancelling an unknown recording returns
// [ErrUnknownRecording].
func (o *Orchestrator) Cancel(recordingID string) error {
	o.mu.Lock()
	r, ok := o.runs[recordingID]
	o.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownRecording, recordingID)
	}

	r.mu.Lock()
	if r.state.Terminal() {
		r.mu.Unlock()
		return nil
	}
	sub := r.sub
	r.mu.Unlock()

	r.cancel()
	if sub != nil {
		// Synchronous with Cancel returning: no dangling subscription.
		sub.Release()
	}
	return nil
}

// Close cancels every non-terminal run and waits for all run goroutines to
// finish. The orchestrator must not be used afterwards.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	runs := make([]*run, 0, len(o.runs))
	for _, r := range o.runs {
		runs = append(runs, r)
	}
	o.mu.Unlock()

	for _, r := range runs {
		_ = o.Cancel(r.recordingID)
	}
	for _, r := range runs {
		<-r.done
	}
}

// ─── Run execution ───────────────────────────────────────────────────────────

// execute drives one recording through the state machine. It owns all state
// transitions for the run; Cancel only requests cancellation and releases
// the subscription.
func (o *Orchestrator) execute(ctx context.Context, r *run, sub Submission) {
	defer close(r.done)

	ctx, span := observe.StartSpan(ctx, "analysis.run",
		trace.WithAttributes(
			attribute.String("recording_id", r.recordingID),
			attribute.String("capture_context", string(sub.Capture)),
		),
	)
	defer span.End()
	log := observe.Logger(ctx).With("recording_id", r.recordingID)

	// ── Local phase ──────────────────────────────────────────────────────
	o.publish(r, stateLocalAnalyzing(r.recordingID))
	log.Info("local analysis started", "duration_s", sub.Sample.DurationSeconds, "rms", sub.Sample.RMS)

	localStart := time.Now()
	est, err := o.cfg.Estimator.Estimate(ctx, sub.Sample, sub.Capture, sub.Pitch)
	if err != nil {
		o.recordGate(ctx, err, sub.Capture)
		o.fail(ctx, r, err, "local")
		return
	}
	o.cfg.Metrics.LocalAnalysisDuration.Record(ctx, time.Since(localStart).Seconds())
	gateOutcome := "normal"
	if est.Degraded {
		gateOutcome = "degraded"
	}
	o.cfg.Metrics.RecordGateOutcome(ctx, gateOutcome, string(sub.Capture))

	var warnings []string
	if est.Degraded {
		warnings = []string{WarningDegradedSignal}
	}

	// Publish the intermediate result immediately; the cloud phase must
	// not delay it.
	o.publish(r, stateLocalComplete(r.recordingID, est.Metrics, est.Degraded, warnings))
	log.Info("local analysis complete",
		"f0_mean", est.Metrics.F0Mean,
		"confidence", est.Metrics.ConfidenceRatio,
		"degraded", est.Degraded,
	)

	if err := ctx.Err(); err != nil {
		o.fail(ctx, r, ErrCancelled, "cancelled")
		return
	}

	// ── Cloud phase ──────────────────────────────────────────────────────
	// Subscribe before uploading so a fast engine cannot slip its result
	// past us.
	inner, err := o.cfg.Engine.Subscribe(ctx, r.recordingID)
	if err != nil {
		o.cfg.Metrics.EngineErrors.Add(ctx, 1,
			metric.WithAttributes(attribute.String("kind", "transport")))
		o.fail(ctx, r, fmt.Errorf("%w: subscribe: %v", ErrUploadFailed, err), "transport")
		return
	}
	dsub := newDedupSubscription(inner)
	r.mu.Lock()
	r.sub = dsub
	r.mu.Unlock()
	defer dsub.Release()

	cloudStart := time.Now()
	if err := o.uploadWithRetry(ctx, r, sub); err != nil {
		if errors.Is(err, context.Canceled) {
			o.fail(ctx, r, ErrCancelled, "cancelled")
			return
		}
		o.cfg.Metrics.EngineErrors.Add(ctx, 1,
			metric.WithAttributes(attribute.String("kind", "transport")))
		o.fail(ctx, r, err, "transport")
		return
	}

	o.publish(r, stateCloudAnalyzing(r.snapshot()))
	log.Info("uploaded to analysis engine, awaiting result")

	timeout := time.NewTimer(o.cfg.ResultTimeout)
	defer timeout.Stop()

	select {
	case <-ctx.Done():
		o.fail(ctx, r, ErrCancelled, "cancelled")

	case <-timeout.C:
		o.cfg.Metrics.EngineErrors.Add(ctx, 1,
			metric.WithAttributes(attribute.String("kind", "timeout")))
		o.fail(ctx, r, fmt.Errorf("%w after %s", ErrResultTimeout, o.cfg.ResultTimeout), "timeout")

	case res, ok := <-dsub.Results():
		if !ok {
			// Feed ended without a result; treat as cancellation if
			// requested, otherwise as a transport stall.
			if ctx.Err() != nil {
				o.fail(ctx, r, ErrCancelled, "cancelled")
				return
			}
			o.cfg.Metrics.EngineErrors.Add(ctx, 1,
				metric.WithAttributes(attribute.String("kind", "transport")))
			o.fail(ctx, r, fmt.Errorf("%w: result stream closed", ErrUploadFailed), "transport")
			return
		}
		if res.Failed {
			o.cfg.Metrics.EngineErrors.Add(ctx, 1,
				metric.WithAttributes(attribute.String("kind", "processing")))
			o.fail(ctx, r, fmt.Errorf("%w: %s", ErrProcessingFailed, res.FailureReason), "processing")
			return
		}

		biomarkers, err := voice.ParseFeatureMap(res.Features)
		if err != nil {
			o.cfg.Metrics.EngineErrors.Add(ctx, 1,
				metric.WithAttributes(attribute.String("kind", "processing")))
			o.fail(ctx, r, fmt.Errorf("%w: %w", ErrProcessingFailed, err), "processing")
			return
		}

		o.cfg.Metrics.CloudAnalysisDuration.Record(ctx, time.Since(cloudStart).Seconds())
		o.cfg.Metrics.AnalysisOutcomes.Add(ctx, 1, metric.WithAttributes(
			attribute.String("outcome", "complete"),
			attribute.String("reason", ""),
		))
		o.cfg.Metrics.ActiveAnalyses.Add(ctx, -1)
		o.publish(r, stateComplete(r.snapshot(), biomarkers))
		log.Info("analysis complete",
			"f0_mean", biomarkers.F0.Mean,
			"stability_score", biomarkers.StabilityScore,
		)
	}
}

// uploadWithRetry attempts the engine upload with exponential backoff,
// honouring cancellation during the waits.
func (o *Orchestrator) uploadWithRetry(ctx context.Context, r *run, sub Submission) error {
	meta := engine.SampleMetadata{
		RecordingID:     r.recordingID,
		UserID:          sub.UserID,
		DurationSeconds: sub.Sample.DurationSeconds,
		SampleRate:      sub.Sample.SampleRate,
		BitDepth:        sub.Sample.BitDepth,
		ChannelCount:    sub.Sample.ChannelCount,
	}
	log := observe.Logger(ctx).With("recording_id", r.recordingID)

	backoff := o.cfg.UploadBackoff
	var lastErr error
	for attempt := 1; attempt <= o.cfg.UploadMaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		lastErr = o.cfg.Engine.Upload(ctx, meta, sub.Audio)
		if lastErr == nil {
			return nil
		}
		if errors.Is(lastErr, context.Canceled) {
			return lastErr
		}
		if attempt == o.cfg.UploadMaxAttempts {
			break
		}

		o.cfg.Metrics.UploadRetries.Add(ctx, 1)
		log.Warn("engine upload failed, retrying",
			"attempt", attempt, "backoff", backoff, "error", lastErr)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > o.cfg.UploadMaxBackoff {
			backoff = o.cfg.UploadMaxBackoff
		}
	}
	return fmt.Errorf("%w after %d attempts: %v", ErrUploadFailed, o.cfg.UploadMaxAttempts, lastErr)
}

// fail moves the run to the terminal error state.
func (o *Orchestrator) fail(ctx context.Context, r *run, err error, reason string) {
	o.cfg.Metrics.AnalysisOutcomes.Add(ctx, 1, metric.WithAttributes(
		attribute.String("outcome", "error"),
		attribute.String("reason", reason),
	))
	o.cfg.Metrics.ActiveAnalyses.Add(ctx, -1)
	observe.Logger(ctx).Warn("analysis failed",
		"recording_id", r.recordingID, "reason", reason, "error", err)
	o.publish(r, stateError(r.snapshot(), err))
}

// recordGate maps a local-phase error to a gate outcome metric where the
// error is gate-originated.
func (o *Orchestrator) recordGate(ctx context.Context, err error, capture quality.CaptureContext) {
	if errors.Is(err, quality.ErrInsufficientSignalLevel) {
		o.cfg.Metrics.RecordGateOutcome(ctx, quality.OutcomeReject.String(), string(capture))
	}
}

// publish records the new state and delivers it to observers. Terminal
// states close the updates channel. Transitions after a terminal state are
// dropped, which makes Cancel racing a natural completion safe.
func (o *Orchestrator) publish(r *run, s State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state.Terminal() {
		return
	}
	r.state = s
	r.updates <- s
	if s.Terminal() {
		close(r.updates)
	}
}

// snapshot returns the current state under the run lock.
func (r *run) snapshot() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}
