// Package api exposes the voice analysis and baseline lifecycle over HTTP.
//
// Routes:
//
//	POST   /v1/users/{userID}/recordings/{recordingID}/analysis
//	GET    /v1/recordings/{recordingID}/analysis
//	DELETE /v1/recordings/{recordingID}/analysis
//	POST   /v1/users/{userID}/baseline
//	GET    /v1/users/{userID}/baseline
//	GET    /v1/users/{userID}/baseline/history
//	GET    /v1/users/{userID}/baseline/thresholds
//
// Analysis submission is asynchronous: the submit handler returns 202 with
// the initial state snapshot and clients poll the GET endpoint (or subscribe
// out of band) for progression.
package api

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/PoisonIvory/sagevoice/internal/analysis"
	"github.com/PoisonIvory/sagevoice/internal/baseline"
	"github.com/PoisonIvory/sagevoice/pkg/quality"
	"github.com/PoisonIvory/sagevoice/pkg/voice"
)

// Server holds the handlers for the analysis and baseline endpoints.
type Server struct {
	orchestrator *analysis.Orchestrator
	baselines    *baseline.Manager
	log          *slog.Logger
}

// NewServer creates a Server. log may be nil, in which case [slog.Default]
// is used.
func NewServer(orchestrator *analysis.Orchestrator, baselines *baseline.Manager, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{orchestrator: orchestrator, baselines: baselines, log: log}
}

// Register adds all API routes to mux.
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /v1/users/{userID}/recordings/{recordingID}/analysis", s.submitAnalysis)
	mux.HandleFunc("GET /v1/recordings/{recordingID}/analysis", s.analysisState)
	mux.HandleFunc("DELETE /v1/recordings/{recordingID}/analysis", s.cancelAnalysis)
	mux.HandleFunc("POST /v1/users/{userID}/baseline", s.establishBaseline)
	mux.HandleFunc("GET /v1/users/{userID}/baseline", s.activeBaseline)
	mux.HandleFunc("GET /v1/users/{userID}/baseline/history", s.baselineHistory)
	mux.HandleFunc("GET /v1/users/{userID}/baseline/thresholds", s.baselineThresholds)
}

// errorBody is the uniform JSON error response.
type errorBody struct {
	Error string `json:"error"`
}

func (s *Server) submitAnalysis(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("userID")
	recordingID := r.PathValue("recordingID")

	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid JSON body: " + err.Error()})
		return
	}
	capture := quality.CaptureContext(req.CaptureContext)
	if !capture.IsValid() {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "capture_context must be \"device\" or \"simulator\""})
		return
	}
	if len(req.FramePitches) == 0 {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "frame_pitches must not be empty"})
		return
	}
	audio, err := base64.StdEncoding.DecodeString(req.AudioBase64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "audio_base64 is not valid base64: " + err.Error()})
		return
	}

	_, err = s.orchestrator.Submit(r.Context(), analysis.Submission{
		UserID:  userID,
		Sample:  req.Sample.toSample(recordingID),
		Capture: capture,
		Pitch:   quality.TrackSource(req.FramePitches),
		Audio:   audio,
	})
	switch {
	case errors.Is(err, analysis.ErrAnalysisInProgress):
		writeJSON(w, http.StatusConflict, errorBody{Error: err.Error()})
		return
	case err != nil:
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
		return
	}

	state, err := s.orchestrator.State(recordingID)
	if err != nil {
		// The run finished and was observed terminal between Submit and
		// State; report the submission as accepted anyway.
		state = analysis.State{RecordingID: recordingID, Phase: analysis.PhaseLocalAnalyzing}
	}
	writeJSON(w, http.StatusAccepted, toStateBody(state))
}

func (s *Server) analysisState(w http.ResponseWriter, r *http.Request) {
	recordingID := r.PathValue("recordingID")

	state, err := s.orchestrator.State(recordingID)
	if errors.Is(err, analysis.ErrUnknownRecording) {
		writeJSON(w, http.StatusNotFound, errorBody{Error: err.Error()})
		return
	}
	if err != nil {
		s.internalError(w, r, "analysis state", err)
		return
	}
	writeJSON(w, http.StatusOK, toStateBody(state))
}

func (s *Server) cancelAnalysis(w http.ResponseWriter, r *http.Request) {
	recordingID := r.PathValue("recordingID")

	err := s.orchestrator.Cancel(recordingID)
	if errors.Is(err, analysis.ErrUnknownRecording) {
		writeJSON(w, http.StatusNotFound, errorBody{Error: err.Error()})
		return
	}
	if err != nil {
		s.internalError(w, r, "cancel analysis", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) establishBaseline(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("userID")

	var req establishRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid JSON body: " + err.Error()})
		return
	}
	if req.RecordingID == "" {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "recording_id is required"})
		return
	}
	recCtx := baseline.RecordingContext(req.Context)
	if !recCtx.IsValid() {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "context must be \"onboarding\", \"follow_up\" or \"recalibration\""})
		return
	}

	state, err := s.orchestrator.State(req.RecordingID)
	if errors.Is(err, analysis.ErrUnknownRecording) {
		writeJSON(w, http.StatusNotFound, errorBody{Error: err.Error()})
		return
	}
	if err != nil {
		s.internalError(w, r, "establish baseline", err)
		return
	}
	if state.Phase != analysis.PhaseComplete {
		writeJSON(w, http.StatusConflict, errorBody{Error: "recording analysis is not complete (phase " + state.Phase.String() + ")"})
		return
	}

	demographic := voice.DemographicFor(req.Age, voice.GenderIdentity(req.GenderIdentity))

	b, outcome, err := s.baselines.Establish(r.Context(), userID, state.Biomarkers, demographic, recCtx)
	switch {
	case errors.Is(err, baseline.ErrEstablishInProgress):
		writeJSON(w, http.StatusConflict, errorBody{Error: err.Error()})
		return
	case err != nil:
		s.internalError(w, r, "establish baseline", err)
		return
	}

	if b == nil {
		// Clinical rejection: report the outcome, nothing was stored.
		writeJSON(w, http.StatusOK, toValidationBody(outcome))
		return
	}
	writeJSON(w, http.StatusCreated, toBaselineBody(*b))
}

func (s *Server) activeBaseline(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("userID")

	b, err := s.baselines.Active(r.Context(), userID)
	if errors.Is(err, baseline.ErrNoActiveBaseline) {
		writeJSON(w, http.StatusNotFound, errorBody{Error: err.Error()})
		return
	}
	if err != nil {
		s.internalError(w, r, "active baseline", err)
		return
	}
	writeJSON(w, http.StatusOK, toBaselineBody(b))
}

func (s *Server) baselineHistory(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("userID")

	archived, err := s.baselines.History(r.Context(), userID)
	if err != nil {
		s.internalError(w, r, "baseline history", err)
		return
	}

	bodies := make([]archivedBody, 0, len(archived))
	for _, a := range archived {
		bodies = append(bodies, archivedBody{
			baselineBody: toBaselineBody(a.Baseline),
			ArchivedAt:   a.ArchivedAt,
			ReplacedBy:   a.ReplacedBy,
		})
	}
	writeJSON(w, http.StatusOK, bodies)
}

func (s *Server) baselineThresholds(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("userID")

	b, err := s.baselines.Active(r.Context(), userID)
	if errors.Is(err, baseline.ErrNoActiveBaseline) {
		writeJSON(w, http.StatusNotFound, errorBody{Error: err.Error()})
		return
	}
	if err != nil {
		s.internalError(w, r, "baseline thresholds", err)
		return
	}
	writeJSON(w, http.StatusOK, toThresholdsBody(s.baselines.PersonalizedThresholds(b)))
}

func (s *Server) internalError(w http.ResponseWriter, r *http.Request, op string, err error) {
	s.log.Error("request failed", "op", op, "path", r.URL.Path, "error", err)
	writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal error"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error":"encode response"}`, http.StatusInternalServerError)
	}
}
