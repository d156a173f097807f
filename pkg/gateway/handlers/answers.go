package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/voxhall/answer-gateway/pkg/gateway/apierror"
	"github.com/voxhall/answer-gateway/pkg/gateway/backend"
	"github.com/voxhall/answer-gateway/pkg/gateway/config"
	"github.com/voxhall/answer-gateway/pkg/gateway/lifecycle"
	"github.com/voxhall/answer-gateway/pkg/gateway/mw"
	"github.com/voxhall/answer-gateway/pkg/gateway/orchestrator"
	"github.com/voxhall/answer-gateway/pkg/gateway/sse"
)

// Orchestrator runs one exchange. Satisfied by *orchestrator.Controller.
type Orchestrator interface {
	Answer(ctx context.Context, req orchestrator.Request, emit orchestrator.EmitFunc) (*orchestrator.Result, error)
}

type AnswerRequest struct {
	SessionID   string `json:"session_id,omitempty"`
	AgentID     string `json:"agent_id"`
	Query       string `json:"query"`
	BypassCache bool   `json:"bypass_cache,omitempty"`
}

type AnswerResponse struct {
	SessionID string               `json:"session_id"`
	Answer    *backend.Answer      `json:"answer"`
	Metrics   orchestrator.Metrics `json:"metrics"`
	Cached    bool                 `json:"cached"`
}

type pingEvent struct {
	Type string `json:"type"`
}

// AnswersHandler handles /v1/answers and /v1/answers:stream requests.
type AnswersHandler struct {
	Config       config.Config
	Orchestrator Orchestrator
	Logger       *slog.Logger
	Lifecycle    *lifecycle.Lifecycle
	Stream       bool
}

func (h AnswersHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	reqID, _ := mw.RequestIDFrom(r.Context())

	if r.Method != http.MethodPost {
		writeErrorJSON(w, reqID, &apierror.Error{
			Type: apierror.ErrInvalidRequest, Message: "method not allowed", Code: "method_not_allowed",
		}, http.StatusMethodNotAllowed)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.Config.MaxBodyBytes)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeErrorJSON(w, reqID, &apierror.Error{
			Type: apierror.ErrInvalidRequest, Message: "failed to read request body",
		}, http.StatusBadRequest)
		return
	}

	var req AnswerRequest
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeErrorJSON(w, reqID, &apierror.Error{
			Type: apierror.ErrInvalidRequest, Message: "invalid request body",
		}, http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.AgentID) == "" {
		writeErrorJSON(w, reqID, &apierror.Error{
			Type: apierror.ErrInvalidRequest, Message: "agent_id is required", Param: "agent_id",
		}, http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		writeErrorJSON(w, reqID, &apierror.Error{
			Type: apierror.ErrInvalidRequest, Message: "query is required", Param: "query",
		}, http.StatusBadRequest)
		return
	}

	sessionID := strings.TrimSpace(req.SessionID)
	if sessionID == "" {
		sessionID = "sess_" + uuid.NewString()
	}

	oreq := orchestrator.Request{
		SessionID:   sessionID,
		AgentID:     req.AgentID,
		Query:       req.Query,
		BypassCache: req.BypassCache,
		RequestID:   reqID,
	}

	if h.Stream {
		h.serveStream(w, r, reqID, oreq)
		return
	}

	result, err := h.Orchestrator.Answer(r.Context(), oreq, nil)
	if err != nil {
		writeErrFrom(w, reqID, err)
		return
	}

	if result.Cached {
		w.Header().Set("X-Cache", "hit")
	} else {
		w.Header().Set("X-Cache", "miss")
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	_ = json.NewEncoder(w).Encode(AnswerResponse{
		SessionID: sessionID,
		Answer:    result.Answer,
		Metrics:   result.Metrics,
		Cached:    result.Cached,
	})
}

func (h AnswersHandler) serveStream(w http.ResponseWriter, r *http.Request, reqID string, oreq orchestrator.Request) {
	if h.Lifecycle.IsDraining() {
		writeErrorJSON(w, reqID, &apierror.Error{
			Type: apierror.ErrAPI, Message: "gateway is draining", Code: "draining",
		}, http.StatusServiceUnavailable)
		return
	}

	sw, err := sse.New(w)
	if err != nil {
		writeErrFrom(w, reqID, err)
		return
	}

	ctx := r.Context()
	if h.Config.SSEPingInterval > 0 {
		ticker := time.NewTicker(h.Config.SSEPingInterval)
		defer ticker.Stop()
		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					_ = sw.Ping()
				}
			}
		}()
	}

	_, err = h.Orchestrator.Answer(ctx, oreq, func(event orchestrator.Event) error {
		return sw.Send(event.EventType(), event)
	})
	if err == nil {
		return
	}
	if ctx.Err() != nil {
		// Client went away or cancelled; nothing further to write.
		return
	}

	e, _ := apierror.FromError(err, reqID)
	_ = sw.Send("error", apierror.Envelope{Error: e})
}
