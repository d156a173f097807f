package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// TranscriptEvent is one transcript update from the transcription backend.
type TranscriptEvent struct {
	Transcript string `json:"transcript"`
	IsFinal    bool   `json:"is_final"`
}

// StreamConfig describes the audio the transcription stream will receive.
type StreamConfig struct {
	Language   string
	Encoding   string
	SampleRate int
}

// Transcriber dials the transcription backend's bidirectional websocket.
type Transcriber struct {
	baseWSURL string
	apiKey    string
	dialer    *websocket.Dialer
}

// NewTranscriber creates a transcriber for the given websocket base URL
// (ws:// or wss://).
func NewTranscriber(baseWSURL, apiKey string) *Transcriber {
	return &Transcriber{
		baseWSURL: baseWSURL,
		apiKey:    apiKey,
		dialer: &websocket.Dialer{
			HandshakeTimeout: 10 * time.Second,
		},
	}
}

// NewStream opens a streaming transcription session. Audio is sent as
// binary frames via SendAudio; transcript events arrive on Events.
func (t *Transcriber) NewStream(ctx context.Context, cfg StreamConfig) (*TranscriptionStream, error) {
	u, err := url.Parse(t.baseWSURL)
	if err != nil {
		return nil, fmt.Errorf("parse transcription URL: %w", err)
	}

	q := u.Query()
	if cfg.Language != "" {
		q.Set("language", cfg.Language)
	}
	encoding := cfg.Encoding
	if encoding == "" {
		encoding = "pcm_s16le"
	}
	q.Set("encoding", encoding)
	sampleRate := cfg.SampleRate
	if sampleRate <= 0 {
		sampleRate = 16000
	}
	q.Set("sample_rate", fmt.Sprintf("%d", sampleRate))
	u.RawQuery = q.Encode()

	headers := http.Header{}
	if t.apiKey != "" {
		headers.Set("Authorization", "Bearer "+t.apiKey)
	}

	conn, resp, err := t.dialer.DialContext(ctx, u.String(), headers)
	if err != nil {
		if resp != nil {
			defer resp.Body.Close()
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
			if len(body) > 0 {
				return nil, fmt.Errorf("transcription connect (status %d): %s", resp.StatusCode, string(body))
			}
		}
		return nil, fmt.Errorf("transcription connect: %w", err)
	}

	streamCtx, cancel := context.WithCancel(ctx)
	s := &TranscriptionStream{
		conn:   conn,
		events: make(chan TranscriptEvent, 64),
		done:   make(chan struct{}),
		ctx:    streamCtx,
		cancel: cancel,
	}
	go s.readLoop()
	return s, nil
}

// TranscriptionStream is one live transcription session. It is safe for one
// writer and one reader of Events.
type TranscriptionStream struct {
	conn    *websocket.Conn
	events  chan TranscriptEvent
	done    chan struct{}
	closed  atomic.Bool
	writeMu sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
}

func (s *TranscriptionStream) readLoop() {
	defer func() {
		close(s.events)
		close(s.done)
	}()

	for {
		select {
		case <-s.ctx.Done():
			return
		default:
		}

		_, data, err := s.conn.ReadMessage()
		if err != nil {
			return
		}

		var ev TranscriptEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			// Malformed frames from the backend are skipped, never fatal.
			continue
		}
		select {
		case s.events <- ev:
		case <-s.ctx.Done():
			return
		}
	}
}

// SendAudio forwards one binary audio frame to the transcription backend.
func (s *TranscriptionStream) SendAudio(data []byte) error {
	if s.closed.Load() {
		return fmt.Errorf("transcription stream closed")
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteMessage(websocket.BinaryMessage, data)
}

// Finalize asks the backend to flush any pending partial transcript.
func (s *TranscriptionStream) Finalize() error {
	if s.closed.Load() {
		return fmt.Errorf("transcription stream closed")
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"finalize"}`))
}

// Events returns the transcript event channel. It is closed when the
// session ends.
func (s *TranscriptionStream) Events() <-chan TranscriptEvent {
	return s.events
}

// Done is closed when the session ends for any reason.
func (s *TranscriptionStream) Done() <-chan struct{} {
	return s.done
}

// Close tears the session down. Idempotent.
func (s *TranscriptionStream) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	s.cancel()

	s.writeMu.Lock()
	_ = s.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	s.writeMu.Unlock()

	return s.conn.Close()
}
