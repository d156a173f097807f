package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/voxhall/answer-gateway/pkg/gateway/apierror"
	"github.com/voxhall/answer-gateway/pkg/gateway/backend"
	"github.com/voxhall/answer-gateway/pkg/gateway/config"
	"github.com/voxhall/answer-gateway/pkg/gateway/lifecycle"
	livesession "github.com/voxhall/answer-gateway/pkg/gateway/live/session"
	"github.com/voxhall/answer-gateway/pkg/gateway/live/sessions"
	"github.com/voxhall/answer-gateway/pkg/gateway/mw"
)

// VoiceHandler handles /v1/voice websocket sessions.
type VoiceHandler struct {
	Config        config.Config
	Orchestrator  Orchestrator
	Transcriber   *backend.Transcriber
	Logger        *slog.Logger
	Lifecycle     *lifecycle.Lifecycle
	VoiceSessions *sessions.Tracker
}

func (h VoiceHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	reqID, _ := mw.RequestIDFrom(r.Context())

	if r.Method != http.MethodGet {
		writeErrorJSON(w, reqID, &apierror.Error{
			Type: apierror.ErrInvalidRequest, Message: "method not allowed", Code: "method_not_allowed",
		}, http.StatusMethodNotAllowed)
		return
	}
	if h.Lifecycle.IsDraining() {
		writeErrorJSON(w, reqID, &apierror.Error{
			Type: apierror.ErrAPI, Message: "gateway is draining", Code: "draining",
		}, http.StatusServiceUnavailable)
		return
	}
	if h.Transcriber == nil {
		writeErrorJSON(w, reqID, &apierror.Error{
			Type: apierror.ErrInvalidRequest, Message: "voice mode is not configured", Code: "voice_disabled",
		}, http.StatusNotImplemented)
		return
	}
	if !h.originAllowed(r) {
		writeErrorJSON(w, reqID, &apierror.Error{
			Type: apierror.ErrAuthentication, Message: "origin is not allowed", Param: "Origin",
		}, http.StatusForbidden)
		return
	}

	upgrader := websocket.Upgrader{
		CheckOrigin: func(*http.Request) bool { return true },
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	bridge := livesession.New(conn, h.Orchestrator, transcriberDialer{h.Transcriber}, livesession.Config{
		QueueDepth:         h.Config.LiveQueueDepth,
		MaxTextFrameBytes:  h.Config.LiveMaxTextFrameBytes,
		MaxAudioFrameBytes: h.Config.LiveMaxAudioFrameBytes,
		PingInterval:       h.Config.LiveWSPingInterval,
		WriteTimeout:       h.Config.LiveWSWriteTimeout,
		HandshakeTimeout:   h.Config.LiveHandshakeTimeout,
		PhraseMinWords:     h.Config.PhraseMinWords,
		PhraseMaxWords:     h.Config.PhraseMaxWords,
	}, h.Logger)

	unregister := h.VoiceSessions.Register("voice_"+uuid.NewString(), sessions.Handle{
		Cancel: bridge.Cancel,
		Warn:   bridge.Warn,
	})
	defer unregister()

	if err := bridge.Run(r.Context()); err != nil && h.Logger != nil {
		h.Logger.Info("voice session ended with error",
			"request_id", reqID, "session_id", bridge.SessionID(), "error", err)
	}
}

// originAllowed applies the CORS allowlist to browser websocket upgrades.
// Non-browser clients (no Origin header) are always allowed.
func (h VoiceHandler) originAllowed(r *http.Request) bool {
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		return true
	}
	if len(h.Config.CORSAllowedOrigins) == 0 {
		return false
	}
	_, ok := h.Config.CORSAllowedOrigins[origin]
	return ok
}

// transcriberDialer adapts the concrete websocket transcription client to
// the bridge's dialer interface.
type transcriberDialer struct {
	t *backend.Transcriber
}

func (d transcriberDialer) NewStream(ctx context.Context, cfg backend.StreamConfig) (livesession.AudioStream, error) {
	stream, err := d.t.NewStream(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return stream, nil
}
