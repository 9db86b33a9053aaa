// Package cloud implements [engine.Engine] against the hosted acoustic
// analysis service: audio blobs are uploaded over HTTP and results arrive on
// a per-recording WebSocket feed.
package cloud

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/PoisonIvory/sagevoice/internal/engine"
	"github.com/PoisonIvory/sagevoice/pkg/voice"
)

// Compile-time interface check.
var _ engine.Engine = (*Client)(nil)

const (
	defaultUploadTimeout = 30 * time.Second
	resultBuffer         = 8
)

// Option is a functional option for configuring the Client.
type Option func(*Client)

// WithHTTPClient sets the HTTP client used for uploads. Defaults to a client
// with a 30 s timeout.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithResultURL overrides the WebSocket result-stream endpoint. By default it
// is derived from the base URL (http→ws scheme, /v1/results path).
func WithResultURL(u string) Option {
	return func(c *Client) { c.resultURL = u }
}

// Client talks to the hosted analysis engine. Safe for concurrent use;
// each subscription owns its own WebSocket connection.
type Client struct {
	baseURL   string
	resultURL string
	apiKey    string
	http      *http.Client
}

// New creates a Client for the engine at baseURL. apiKey may be empty for
// unauthenticated deployments (local engine containers).
func New(baseURL, apiKey string, opts ...Option) (*Client, error) {
	if baseURL == "" {
		return nil, errors.New("cloud: baseURL must not be empty")
	}
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http:    &http.Client{Timeout: defaultUploadTimeout},
	}
	for _, o := range opts {
		o(c)
	}
	if c.resultURL == "" {
		derived, err := deriveResultURL(c.baseURL)
		if err != nil {
			return nil, err
		}
		c.resultURL = derived
	}
	return c, nil
}

// deriveResultURL turns the HTTP base URL into the WebSocket results endpoint.
func deriveResultURL(baseURL string) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("cloud: parse base URL: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/v1/results"
	return u.String(), nil
}

// Upload implements [engine.Uploader]. The blob is sent as an octet-stream
// body with sample metadata in query parameters. A non-2xx response is a
// transport error and may be retried by the caller.
func (c *Client) Upload(ctx context.Context, meta engine.SampleMetadata, blob []byte) error {
	q := url.Values{}
	q.Set("recording_id", meta.RecordingID)
	q.Set("user_id", meta.UserID)
	q.Set("duration", strconv.FormatFloat(meta.DurationSeconds, 'f', -1, 64))
	q.Set("sample_rate", strconv.Itoa(meta.SampleRate))
	q.Set("bit_depth", strconv.Itoa(meta.BitDepth))
	q.Set("channels", strconv.Itoa(meta.ChannelCount))

	uploadURL := c.baseURL + "/v1/recordings/" + url.PathEscape(meta.RecordingID) + "/audio?" + q.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, uploadURL, bytes.NewReader(blob))
	if err != nil {
		return fmt.Errorf("cloud: build upload request: %w", err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("cloud: upload: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("cloud: upload: engine returned %s", resp.Status)
	}
	return nil
}

// resultEnvelope is the JSON message format on the results feed.
type resultEnvelope struct {
	RecordingID string             `json:"recording_id"`
	Status      string             `json:"status"`
	Features    map[string]float64 `json:"features,omitempty"`
	Error       string             `json:"error,omitempty"`
}

// Subscribe implements [engine.ResultStream]. Each call dials a dedicated
// WebSocket filtered to recordingID; the engine redelivers unacknowledged
// results on reconnect, so consumers must deduplicate.
func (c *Client) Subscribe(ctx context.Context, recordingID string) (engine.Subscription, error) {
	wsURL := c.resultURL + "?recording_id=" + url.QueryEscape(recordingID)

	headers := http.Header{}
	if c.apiKey != "" {
		headers.Set("Authorization", "Bearer "+c.apiKey)
	}

	conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{HTTPHeader: headers})
	if err != nil {
		return nil, fmt.Errorf("cloud: dial result stream: %w", err)
	}

	sub := &subscription{
		conn:        conn,
		recordingID: recordingID,
		results:     make(chan engine.Result, resultBuffer),
		done:        make(chan struct{}),
	}
	sub.wg.Add(1)
	go sub.readLoop(ctx)
	return sub, nil
}

// subscription is a live result feed backed by one WebSocket connection.
type subscription struct {
	conn        *websocket.Conn
	recordingID string
	results     chan engine.Result

	done chan struct{}
	once sync.Once
	wg   sync.WaitGroup
}

// Results implements [engine.Subscription].
func (s *subscription) Results() <-chan engine.Result { return s.results }

// Release implements [engine.Subscription]. It closes the connection, waits
// for the read loop to drain, and closes the results channel.
func (s *subscription) Release() {
	s.once.Do(func() {
		close(s.done)
		s.conn.Close(websocket.StatusNormalClosure, "subscription released")
		s.wg.Wait()
	})
}

// readLoop receives JSON envelopes and forwards those matching the
// subscribed recording ID.
func (s *subscription) readLoop(ctx context.Context) {
	defer s.wg.Done()
	defer close(s.results)

	for {
		select {
		case <-s.done:
			return
		default:
		}

		_, data, err := s.conn.Read(ctx)
		if err != nil {
			// Normal teardown or transport death; the orchestrator's
			// timeout covers the silent-stall case.
			return
		}

		var env resultEnvelope
		if err := json.Unmarshal(data, &env); err != nil {
			continue
		}
		if env.RecordingID != s.recordingID {
			continue
		}

		res := engine.Result{RecordingID: env.RecordingID}
		if env.Status == "failed" {
			res.Failed = true
			res.FailureReason = env.Error
		} else {
			res.Features = voice.FeatureMap(env.Features)
		}

		select {
		case s.results <- res:
		case <-s.done:
			return
		}
	}
}
