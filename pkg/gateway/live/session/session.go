// Package session implements the duplex voice bridge behind /v1/voice.
// Inbound binary audio fans into a transcription stream; finalized
// transcripts queue as exchanges, one at a time in arrival order; the
// assistant's output flows back as phrase-sized text frames.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/voxhall/answer-gateway/pkg/gateway/backend"
	"github.com/voxhall/answer-gateway/pkg/gateway/live/protocol"
	"github.com/voxhall/answer-gateway/pkg/gateway/orchestrator"
	"github.com/voxhall/answer-gateway/pkg/gateway/phrase"
)

// Orchestrator runs one exchange and emits its lifecycle events.
type Orchestrator interface {
	Answer(ctx context.Context, req orchestrator.Request, emit orchestrator.EmitFunc) (*orchestrator.Result, error)
}

// AudioStream is a live transcription stream for one session.
type AudioStream interface {
	SendAudio(data []byte) error
	Events() <-chan backend.TranscriptEvent
	Done() <-chan struct{}
	Close() error
}

// StreamDialer opens transcription streams.
type StreamDialer interface {
	NewStream(ctx context.Context, cfg backend.StreamConfig) (AudioStream, error)
}

type Config struct {
	// QueueDepth bounds the number of finalized transcripts waiting for an
	// exchange; a full queue applies backpressure to the transcript feed.
	QueueDepth int

	MaxTextFrameBytes  int64
	MaxAudioFrameBytes int

	PingInterval     time.Duration
	WriteTimeout     time.Duration
	HandshakeTimeout time.Duration

	PhraseMinWords int
	PhraseMaxWords int
}

// Bridge owns one voice websocket connection from handshake to teardown.
type Bridge struct {
	ws     Conn
	orch   Orchestrator
	dialer StreamDialer
	cfg    Config
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	sessionID string
	agentID   string

	frames chan []byte
	queue  chan string

	teardownOnce sync.Once
	wg           sync.WaitGroup
}

func New(ws Conn, orch Orchestrator, dialer StreamDialer, cfg Config, logger *slog.Logger) *Bridge {
	if logger == nil {
		logger = slog.Default()
	}
	depth := cfg.QueueDepth
	if depth <= 0 {
		depth = 32
	}
	return &Bridge{
		ws:     ws,
		orch:   orch,
		dialer: dialer,
		cfg:    cfg,
		logger: logger,
		frames: make(chan []byte, depth),
		queue:  make(chan string, depth),
	}
}

// SessionID is valid once Run has completed the handshake.
func (b *Bridge) SessionID() string { return b.sessionID }

// Cancel tears the session down. Safe to call from any goroutine.
func (b *Bridge) Cancel() { b.teardown() }

// Warn sends a non-terminal error frame to the client.
func (b *Bridge) Warn(code, message string) error {
	return b.enqueueJSON(protocol.ServerError{Type: "error", Code: code, Message: message})
}

// Run drives the session until the client stops, the connection fails, or
// the context is cancelled.
func (b *Bridge) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	b.ctx = ctx
	b.cancel = cancel
	defer b.teardown()

	if b.cfg.MaxTextFrameBytes > 0 {
		// Oversized text frames fail the read; gorilla answers with close
		// code 1009 before surfacing the error.
		b.ws.SetReadLimit(b.cfg.MaxTextFrameBytes)
	}

	start, err := b.handshake()
	if err != nil {
		return err
	}
	b.agentID = start.AgentID
	b.sessionID = strings.TrimSpace(start.SessionID)
	if b.sessionID == "" {
		b.sessionID = uuid.NewString()
	}

	stream, err := b.dialer.NewStream(ctx, backend.StreamConfig{
		Language:   start.Language,
		Encoding:   start.Audio.Encoding,
		SampleRate: start.Audio.SampleRateHz,
	})
	if err != nil {
		b.logger.Error("transcription stream dial failed", "session_id", b.sessionID, "error", err)
		b.writeDirect(protocol.ServerError{Type: "error", Code: "transcribe_unavailable", Message: "transcription unavailable", Close: true})
		return err
	}
	defer stream.Close()

	writer := &outboundWriter{
		ws:           b.ws,
		ctx:          ctx,
		frames:       b.frames,
		pingInterval: b.cfg.PingInterval,
		writeTimeout: b.cfg.WriteTimeout,
	}
	writerDone := make(chan error, 1)
	go func() { writerDone <- writer.Run() }()

	if err := b.enqueueJSON(protocol.ServerReady{
		Type:            "ready",
		ProtocolVersion: protocol.ProtocolVersion1,
		SessionID:       b.sessionID,
		Audio:           start.Audio,
	}); err != nil {
		return err
	}

	b.wg.Add(2)
	go b.transcriptLoop(stream)
	go b.exchangeLoop()

	readErr := b.readLoop(stream)

	b.teardown()
	b.wg.Wait()
	<-writerDone

	if readErr != nil && !isExpectedClose(readErr) && ctx.Err() == nil {
		return readErr
	}
	return nil
}

// handshake reads and validates the opening start frame.
func (b *Bridge) handshake() (protocol.ClientStart, error) {
	if b.cfg.HandshakeTimeout > 0 {
		_ = b.ws.SetReadDeadline(time.Now().Add(b.cfg.HandshakeTimeout))
		defer func() { _ = b.ws.SetReadDeadline(time.Time{}) }()
	}

	mt, data, err := b.ws.ReadMessage()
	if err != nil {
		return protocol.ClientStart{}, err
	}
	if mt != websocket.TextMessage {
		derr := &protocol.DecodeError{Code: "bad_request", Message: "first frame must be a start message"}
		b.writeDirect(protocol.ServerError{Type: "error", Code: derr.Code, Message: derr.Message, Close: true})
		return protocol.ClientStart{}, derr
	}

	msg, derr := protocol.DecodeClientMessage(data)
	if derr != nil {
		var de *protocol.DecodeError
		errors.As(derr, &de)
		b.writeDirect(protocol.ServerError{Type: "error", Code: de.Code, Message: de.Message, Param: de.Param, Close: true})
		return protocol.ClientStart{}, derr
	}
	start, ok := msg.(protocol.ClientStart)
	if !ok {
		de := &protocol.DecodeError{Code: "bad_request", Message: "first frame must be a start message"}
		b.writeDirect(protocol.ServerError{Type: "error", Code: de.Code, Message: de.Message, Close: true})
		return protocol.ClientStart{}, de
	}
	return start, nil
}

// readLoop consumes inbound frames until stop, error, or teardown.
func (b *Bridge) readLoop(stream AudioStream) error {
	for {
		mt, data, err := b.ws.ReadMessage()
		if err != nil {
			return err
		}

		switch mt {
		case websocket.BinaryMessage:
			if b.cfg.MaxAudioFrameBytes > 0 && len(data) > b.cfg.MaxAudioFrameBytes {
				// Oversized audio frames are dropped, not fatal.
				continue
			}
			if err := stream.SendAudio(data); err != nil {
				b.logger.Warn("transcription stream write failed", "session_id", b.sessionID, "error", err)
				_ = b.enqueueJSON(protocol.ServerError{Type: "error", Code: "transcribe_unavailable", Message: "transcription unavailable", Close: true})
				return err
			}
		case websocket.TextMessage:
			msg, derr := protocol.DecodeClientMessage(data)
			if derr != nil {
				var de *protocol.DecodeError
				errors.As(derr, &de)
				_ = b.enqueueJSON(protocol.ServerError{Type: "error", Code: de.Code, Message: de.Message, Param: de.Param})
				continue
			}
			switch msg.(type) {
			case protocol.ClientStop:
				return nil
			case protocol.ClientStart:
				_ = b.enqueueJSON(protocol.ServerError{Type: "error", Code: "bad_request", Message: "session already started"})
			}
		}
	}
}

// transcriptLoop forwards transcription events to the client and queues
// finalized transcripts for the exchange worker. A transcription stream
// that ends on its own tears the whole session down: without transcripts
// the bridge cannot make progress.
func (b *Bridge) transcriptLoop(stream AudioStream) {
	defer b.wg.Done()
	defer close(b.queue)

	for {
		select {
		case <-b.ctx.Done():
			return
		case <-stream.Done():
			b.streamEnded()
			return
		case ev, ok := <-stream.Events():
			if !ok {
				b.streamEnded()
				return
			}
			if !ev.IsFinal {
				if strings.TrimSpace(ev.Transcript) != "" {
					_ = b.enqueueJSON(protocol.ServerTranscript{Type: "transcript_partial", Text: ev.Transcript})
				}
				continue
			}
			text := strings.TrimSpace(ev.Transcript)
			if text == "" {
				continue
			}
			_ = b.enqueueJSON(protocol.ServerTranscript{Type: "transcript_final", Text: text})
			select {
			case b.queue <- text:
			case <-b.ctx.Done():
				return
			}
		}
	}
}

// exchangeLoop runs queued exchanges strictly one at a time, in order.
func (b *Bridge) exchangeLoop() {
	defer b.wg.Done()
	for query := range b.queue {
		if b.ctx.Err() != nil {
			return
		}
		b.runExchange(query)
	}
}

func (b *Bridge) runExchange(query string) {
	buf := phrase.NewBufferWithThresholds(b.cfg.PhraseMinWords, b.cfg.PhraseMaxWords)

	emit := func(ev orchestrator.Event) error {
		switch e := ev.(type) {
		case orchestrator.RetrievalEvent:
			return b.enqueueJSON(protocol.ServerAssistantRetrieval{
				Type:      "assistant_retrieval",
				Status:    e.Status,
				Citations: wireCitations(e.Citations),
			})
		case orchestrator.TokenEvent:
			for _, chunk := range buf.Push(e.Text) {
				if err := b.enqueueJSON(protocol.ServerAssistantToken{Type: "assistant_token", Text: chunk}); err != nil {
					return err
				}
			}
			return nil
		case orchestrator.FinalEvent:
			if rest := buf.Flush(); rest != "" {
				if err := b.enqueueJSON(protocol.ServerAssistantToken{Type: "assistant_token", Text: rest}); err != nil {
					return err
				}
			}
			return b.enqueueJSON(protocol.ServerAssistantResponse{
				Type:      "assistant_response",
				Decision:  string(e.Decision),
				Text:      e.Text,
				Citations: wireCitations(e.Citations),
			})
		case orchestrator.MetricsEvent:
			return b.enqueueJSON(protocol.ServerAssistantMetrics{
				Type:         "assistant_metrics",
				RetrievalMS:  e.RetrievalMS,
				FirstTokenMS: e.FirstTokenMS,
				TotalMS:      e.TotalMS,
			})
		default:
			// Meta is implicit for a connected voice client.
			return nil
		}
	}

	_, err := b.orch.Answer(b.ctx, orchestrator.Request{
		SessionID: b.sessionID,
		AgentID:   b.agentID,
		Query:     query,
	}, emit)
	if err != nil && b.ctx.Err() == nil {
		b.logger.Error("voice exchange failed", "session_id", b.sessionID, "error", err)
		_ = b.enqueueJSON(protocol.ServerError{Type: "error", Code: "exchange_failed", Message: "exchange failed"})
	}
}

func (b *Bridge) streamEnded() {
	b.logger.Info("transcription stream ended", "session_id", b.sessionID)
	b.teardown()
}

func (b *Bridge) teardown() {
	b.teardownOnce.Do(func() {
		if b.cancel != nil {
			b.cancel()
		}
	})
}

func (b *Bridge) enqueueJSON(v any) error {
	if b.ctx == nil {
		return errors.New("session not started")
	}
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	select {
	case b.frames <- data:
		return nil
	case <-b.ctx.Done():
		return b.ctx.Err()
	}
}

// writeDirect writes a frame before the outbound writer exists (handshake
// failures) and follows it with a close message.
func (b *Bridge) writeDirect(v any) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	timeout := b.cfg.WriteTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	deadline := time.Now().Add(timeout)
	_ = b.ws.SetWriteDeadline(deadline)
	_ = b.ws.WriteMessage(websocket.TextMessage, data)
	_ = b.ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, ""), deadline)
}

func wireCitations(citations []backend.Citation) []protocol.Citation {
	out := make([]protocol.Citation, len(citations))
	for i, c := range citations {
		out[i] = protocol.Citation{ID: c.ID, Title: c.Title}
	}
	return out
}

func isExpectedClose(err error) bool {
	return websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseNoStatusReceived,
	)
}
