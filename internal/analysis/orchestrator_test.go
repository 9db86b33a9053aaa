package analysis

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/PoisonIvory/sagevoice/internal/engine"
	"github.com/PoisonIvory/sagevoice/internal/engine/mock"
	"github.com/PoisonIvory/sagevoice/pkg/quality"
	"github.com/PoisonIvory/sagevoice/pkg/voice"
)

const testTimeout = 5 * time.Second

func testConfig(eng engine.Engine) Config {
	return Config{
		Estimator:         quality.NewEstimator(nil),
		Engine:            eng,
		UploadMaxAttempts: 3,
		UploadBackoff:     time.Millisecond,
		UploadMaxBackoff:  5 * time.Millisecond,
		ResultTimeout:     testTimeout,
	}
}

func testSubmission(recordingID string) Submission {
	return Submission{
		UserID: "user-1",
		Sample: voice.AudioSample{
			RecordingID:     recordingID,
			DurationSeconds: 5,
			SampleRate:      16000,
			BitDepth:        16,
			ChannelCount:    1,
			RMS:             0.05,
		},
		Capture: quality.CaptureDevice,
		Pitch:   quality.TrackSource{200, 210, 205, 215},
		Audio:   []byte("audio-bytes"),
	}
}

func goodResult(recordingID string) engine.Result {
	return engine.Result{
		RecordingID: recordingID,
		Features: voice.FeatureMap{
			voice.KeyF0Mean: 210, voice.KeyF0Std: 12, voice.KeyF0Confidence: 85,
			voice.KeyJitterLocal: 0.8, voice.KeyJitterAbs: 0.00004,
			voice.KeyJitterRAP: 0.4, voice.KeyJitterPPQ5: 0.5,
			voice.KeyShimmerLocal: 3.0, voice.KeyShimmerDB: 0.28,
			voice.KeyShimmerAPQ3: 1.8, voice.KeyShimmerAPQ5: 2.2,
			voice.KeyHNRMean: 21, voice.KeyHNRStd: 2.5,
			voice.KeyVoicedRatio: 0.82, voice.KeyAudioDuration: 5.2,
			voice.KeyTotalFrames: 520, voice.KeyVoicedFrames: 426,
		},
	}
}

// nextState reads one state with a timeout so a stuck test fails instead of
// hanging.
func nextState(t *testing.T, updates <-chan State) (State, bool) {
	t.Helper()
	select {
	case s, ok := <-updates:
		return s, ok
	case <-time.After(testTimeout):
		t.Fatal("timed out waiting for state transition")
		return State{}, false
	}
}

func TestSubmitHappyPath(t *testing.T) {
	eng := &mock.Engine{}
	o, err := New(testConfig(eng))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer o.Close()

	updates, err := o.Submit(context.Background(), testSubmission("rec-1"))
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	s, _ := nextState(t, updates)
	if s.Phase != PhaseLocalAnalyzing {
		t.Fatalf("first phase = %s, want localAnalyzing", s.Phase)
	}

	s, _ = nextState(t, updates)
	if s.Phase != PhaseLocalComplete {
		t.Fatalf("second phase = %s, want localComplete", s.Phase)
	}
	if s.Local.F0Mean == 0 {
		t.Error("localComplete has no F0 estimate")
	}
	if s.Degraded {
		t.Error("localComplete degraded for a normal-quality sample")
	}

	s, _ = nextState(t, updates)
	if s.Phase != PhaseCloudAnalyzing {
		t.Fatalf("third phase = %s, want cloudAnalyzing", s.Phase)
	}

	eng.Deliver(goodResult("rec-1"))

	s, _ = nextState(t, updates)
	if s.Phase != PhaseComplete {
		t.Fatalf("final phase = %s, want complete", s.Phase)
	}
	if s.Biomarkers.F0.Mean != 210 {
		t.Errorf("Biomarkers.F0.Mean = %v, want 210", s.Biomarkers.F0.Mean)
	}
	// Intermediate local metrics are still carried in the terminal state.
	if s.Local.F0Mean == 0 {
		t.Error("complete state lost the local estimate")
	}

	if _, ok := nextState(t, updates); ok {
		t.Error("updates channel still open after terminal state")
	}

	uploads := eng.Uploads()
	if len(uploads) != 1 {
		t.Fatalf("uploads = %d, want 1", len(uploads))
	}
	if uploads[0].UserID != "user-1" || uploads[0].RecordingID != "rec-1" {
		t.Errorf("upload metadata = %+v", uploads[0])
	}
	if eng.Released("rec-1") == 0 {
		t.Error("subscription not released after completion")
	}
}

func TestSubmitDegradedCarriesWarning(t *testing.T) {
	eng := &mock.Engine{}
	o, _ := New(testConfig(eng))
	defer o.Close()

	sub := testSubmission("rec-1")
	sub.Capture = quality.CaptureSimulator
	sub.Sample.RMS = 0.004 // degraded band on the simulator

	updates, err := o.Submit(context.Background(), sub)
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	var final State
	go func() {
		// Deliver once the run reaches the cloud phase.
		for {
			s, err := o.State("rec-1")
			if err == nil && s.Phase == PhaseCloudAnalyzing {
				eng.Deliver(goodResult("rec-1"))
				return
			}
			time.Sleep(time.Millisecond)
		}
	}()
	for s := range updates {
		if s.Phase == PhaseLocalComplete && !s.Degraded {
			t.Error("localComplete not marked degraded")
		}
		final = s
	}

	if final.Phase != PhaseComplete {
		t.Fatalf("final phase = %s, want complete", final.Phase)
	}
	if !final.Degraded {
		t.Error("final state not marked degraded")
	}
	found := false
	for _, w := range final.Warnings {
		if w == WarningDegradedSignal {
			found = true
		}
	}
	if !found {
		t.Errorf("Warnings = %v, want to contain %q", final.Warnings, WarningDegradedSignal)
	}
}

func TestSubmitDuplicateRejected(t *testing.T) {
	eng := &mock.Engine{}
	o, _ := New(testConfig(eng))
	defer o.Close()

	updates, err := o.Submit(context.Background(), testSubmission("rec-1"))
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	// Wait until the run is demonstrably in flight.
	s, _ := nextState(t, updates)
	if s.Phase != PhaseLocalAnalyzing {
		t.Fatalf("phase = %s", s.Phase)
	}

	if _, err := o.Submit(context.Background(), testSubmission("rec-1")); !errors.Is(err, ErrAnalysisInProgress) {
		t.Fatalf("duplicate Submit() error = %v, want ErrAnalysisInProgress", err)
	}

	// Finish the first run, then resubmission is allowed.
	for s := range updates {
		if s.Phase == PhaseCloudAnalyzing {
			eng.Deliver(goodResult("rec-1"))
		}
	}

	if _, err := o.Submit(context.Background(), testSubmission("rec-1")); err != nil {
		t.Fatalf("resubmit after terminal state error = %v", err)
	}
	eng.Deliver(goodResult("rec-1"))
}

func TestSubmitGateRejection(t *testing.T) {
	eng := &mock.Engine{}
	o, _ := New(testConfig(eng))
	defer o.Close()

	sub := testSubmission("rec-1")
	sub.Sample.RMS = 0.001

	updates, err := o.Submit(context.Background(), sub)
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	var final State
	for s := range updates {
		final = s
	}
	if final.Phase != PhaseError {
		t.Fatalf("final phase = %s, want error", final.Phase)
	}
	if !errors.Is(final.Err, quality.ErrInsufficientSignalLevel) {
		t.Errorf("Err = %v, want ErrInsufficientSignalLevel", final.Err)
	}
	if len(eng.Uploads()) != 0 {
		t.Error("rejected recording was uploaded")
	}
}

func TestSubmitUploadRetryThenSuccess(t *testing.T) {
	eng := &mock.Engine{
		UploadErrs: []error{errors.New("503"), errors.New("503"), nil},
	}
	o, _ := New(testConfig(eng))
	defer o.Close()

	updates, err := o.Submit(context.Background(), testSubmission("rec-1"))
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	var final State
	for s := range updates {
		if s.Phase == PhaseCloudAnalyzing {
			eng.Deliver(goodResult("rec-1"))
		}
		final = s
	}

	if final.Phase != PhaseComplete {
		t.Fatalf("final phase = %s, want complete (err: %v)", final.Phase, final.Err)
	}
	if got := len(eng.Uploads()); got != 3 {
		t.Errorf("upload attempts = %d, want 3", got)
	}
}

func TestSubmitUploadExhaustion(t *testing.T) {
	eng := &mock.Engine{
		UploadErrs: []error{errors.New("503"), errors.New("503"), errors.New("503")},
	}
	o, _ := New(testConfig(eng))
	defer o.Close()

	updates, err := o.Submit(context.Background(), testSubmission("rec-1"))
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	var final State
	for s := range updates {
		final = s
	}
	if final.Phase != PhaseError {
		t.Fatalf("final phase = %s, want error", final.Phase)
	}
	if !errors.Is(final.Err, ErrUploadFailed) {
		t.Errorf("Err = %v, want ErrUploadFailed", final.Err)
	}
	if got := len(eng.Uploads()); got != 3 {
		t.Errorf("upload attempts = %d, want 3", got)
	}
	if eng.Released("rec-1") == 0 {
		t.Error("subscription not released after upload exhaustion")
	}
}

func TestSubmitProcessingFailure(t *testing.T) {
	eng := &mock.Engine{}
	o, _ := New(testConfig(eng))
	defer o.Close()

	updates, err := o.Submit(context.Background(), testSubmission("rec-1"))
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	var final State
	for s := range updates {
		if s.Phase == PhaseCloudAnalyzing {
			eng.Deliver(engine.Result{
				RecordingID:   "rec-1",
				Failed:        true,
				FailureReason: "clipping detected",
			})
		}
		final = s
	}

	if !errors.Is(final.Err, ErrProcessingFailed) {
		t.Fatalf("Err = %v, want ErrProcessingFailed", final.Err)
	}
	if !strings.Contains(final.Err.Error(), "clipping detected") {
		t.Errorf("Err = %v, does not carry the engine failure reason", final.Err)
	}
}

func TestSubmitIncompleteResultNamesField(t *testing.T) {
	eng := &mock.Engine{}
	o, _ := New(testConfig(eng))
	defer o.Close()

	res := goodResult("rec-1")
	delete(res.Features, voice.KeyShimmerAPQ3)

	updates, err := o.Submit(context.Background(), testSubmission("rec-1"))
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	var final State
	for s := range updates {
		if s.Phase == PhaseCloudAnalyzing {
			eng.Deliver(res)
		}
		final = s
	}

	if !errors.Is(final.Err, ErrProcessingFailed) {
		t.Fatalf("Err = %v, want ErrProcessingFailed", final.Err)
	}
	if !errors.Is(final.Err, voice.ErrIncompleteFeatureMap) {
		t.Errorf("Err = %v, want wrapped ErrIncompleteFeatureMap", final.Err)
	}
	if !strings.Contains(final.Err.Error(), voice.KeyShimmerAPQ3) {
		t.Errorf("Err = %v, does not name the missing field", final.Err)
	}
}

func TestSubmitResultTimeout(t *testing.T) {
	eng := &mock.Engine{}
	cfg := testConfig(eng)
	cfg.ResultTimeout = 10 * time.Millisecond
	o, _ := New(cfg)
	defer o.Close()

	updates, err := o.Submit(context.Background(), testSubmission("rec-1"))
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	var final State
	for s := range updates {
		final = s
	}
	if !errors.Is(final.Err, ErrResultTimeout) {
		t.Fatalf("Err = %v, want ErrResultTimeout", final.Err)
	}
	if eng.Released("rec-1") == 0 {
		t.Error("subscription not released after timeout")
	}
}

func TestCancelReleasesSubscription(t *testing.T) {
	eng := &mock.Engine{}
	o, _ := New(testConfig(eng))
	defer o.Close()

	updates, err := o.Submit(context.Background(), testSubmission("rec-1"))
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	// Advance to the cloud phase so a subscription exists.
	for {
		s, ok := nextState(t, updates)
		if !ok {
			t.Fatal("run terminated before reaching cloudAnalyzing")
		}
		if s.Phase == PhaseCloudAnalyzing {
			break
		}
	}

	if err := o.Cancel("rec-1"); err != nil {
		t.Fatalf("Cancel() error = %v", err)
	}
	// The release is synchronous with Cancel returning.
	if eng.OpenSubscriptions("rec-1") != 0 {
		t.Error("subscription still open after Cancel returned")
	}

	var final State
	for s := range updates {
		final = s
	}
	if !errors.Is(final.Err, ErrCancelled) {
		t.Errorf("Err = %v, want ErrCancelled", final.Err)
	}

	// Terminal runs ignore further cancels.
	if err := o.Cancel("rec-1"); err != nil {
		t.Errorf("Cancel() on terminal run error = %v, want nil", err)
	}
}

func TestCancelUnknownRecording(t *testing.T) {
	o, _ := New(testConfig(&mock.Engine{}))
	defer o.Close()

	if err := o.Cancel("nope"); !errors.Is(err, ErrUnknownRecording) {
		t.Fatalf("Cancel() error = %v, want ErrUnknownRecording", err)
	}
	if _, err := o.State("nope"); !errors.Is(err, ErrUnknownRecording) {
		t.Fatalf("State() error = %v, want ErrUnknownRecording", err)
	}
}

func TestDuplicateDeliveryIgnored(t *testing.T) {
	eng := &mock.Engine{}
	o, _ := New(testConfig(eng))
	defer o.Close()

	updates, err := o.Submit(context.Background(), testSubmission("rec-1"))
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	completes := 0
	for s := range updates {
		if s.Phase == PhaseCloudAnalyzing {
			// Transport-level duplicate: same result twice.
			eng.Deliver(goodResult("rec-1"))
			eng.Deliver(goodResult("rec-1"))
		}
		if s.Phase == PhaseComplete {
			completes++
		}
	}
	if completes != 1 {
		t.Errorf("complete transitions = %d, want exactly 1", completes)
	}
}

// Transitions must arrive in machine order and localComplete must precede
// complete even when the engine result is already waiting.
func TestTransitionOrdering(t *testing.T) {
	eng := &mock.Engine{}
	o, _ := New(testConfig(eng))
	defer o.Close()

	updates, err := o.Submit(context.Background(), testSubmission("rec-1"))
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	var phases []Phase
	for s := range updates {
		if s.Phase == PhaseCloudAnalyzing {
			eng.Deliver(goodResult("rec-1"))
		}
		phases = append(phases, s.Phase)
	}

	want := []Phase{PhaseLocalAnalyzing, PhaseLocalComplete, PhaseCloudAnalyzing, PhaseComplete}
	if len(phases) != len(want) {
		t.Fatalf("phases = %v, want %v", phases, want)
	}
	for i := range want {
		if phases[i] != want[i] {
			t.Fatalf("phases = %v, want %v", phases, want)
		}
	}
}

func TestSubmitValidation(t *testing.T) {
	o, _ := New(testConfig(&mock.Engine{}))
	defer o.Close()

	sub := testSubmission("")
	if _, err := o.Submit(context.Background(), sub); err == nil {
		t.Error("Submit() with empty recording ID succeeded")
	}

	sub = testSubmission("rec-1")
	sub.Pitch = nil
	if _, err := o.Submit(context.Background(), sub); err == nil {
		t.Error("Submit() with nil pitch source succeeded")
	}
}

func TestNewRequiresDependencies(t *testing.T) {
	if _, err := New(Config{Engine: &mock.Engine{}}); err == nil {
		t.Error("New() without estimator succeeded")
	}
	if _, err := New(Config{Estimator: quality.NewEstimator(nil)}); err == nil {
		t.Error("New() without engine succeeded")
	}
}
