// Package orchestrator drives one user query through input cleaning,
// retrieval, generation, and policy finalization, emitting ordered
// lifecycle events to an abstract sink.
package orchestrator

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/voxhall/answer-gateway/pkg/gateway/backend"
	"github.com/voxhall/answer-gateway/pkg/gateway/cache"
	"github.com/voxhall/answer-gateway/pkg/gateway/directory"
	"github.com/voxhall/answer-gateway/pkg/gateway/session"
)

// Pipeline is the retrieval+generation capability at the backend boundary.
type Pipeline interface {
	Retrieve(ctx context.Context, query, scope string, topK int) ([]backend.Document, error)
	Generate(ctx context.Context, req backend.GenerateRequest) (*backend.Answer, error)
	GenerateStream(ctx context.Context, req backend.GenerateRequest, onRetrievalDone func([]backend.Citation), onToken func(string)) (*backend.Answer, error)
}

// HandoffNotifier receives fire-and-forget handoff notifications.
type HandoffNotifier interface {
	Notify(sessionID, reason, text string)
}

// ScopeResolver maps agent ids to knowledge scopes.
type ScopeResolver interface {
	Lookup(agentID string) (directory.Entry, bool)
}

// Handoff reasons reported to the notifier.
const (
	ReasonEmptyInput      = "empty_input"
	ReasonRestrictedTopic = "restricted_topic"
	ReasonNoScope         = "no_scope"
	ReasonBackendFailure  = "backend_failure"
	ReasonPolicyFilter    = "policy_filter"
)

// Config tunes per-exchange behavior.
type Config struct {
	// CallTimeout bounds each backend computation; it is merged with the
	// caller's context, whichever fires first.
	CallTimeout time.Duration
	TopK        int
	MaxInputLen int
}

// Controller orchestrates exchanges. All fields except Backend are
// optional; nil collaborators degrade to no-ops.
type Controller struct {
	Backend   Pipeline
	Cache     *cache.Cache
	Sessions  *session.Store
	Directory ScopeResolver
	Notifier  HandoffNotifier
	Logger    *slog.Logger
	Config    Config
	Now       func() time.Time
}

// Request is one inbound query.
type Request struct {
	SessionID   string
	AgentID     string
	Query       string
	BypassCache bool
	RequestID   string
}

// Metrics carries exchange timing. Zero values mean the phase never ran.
type Metrics struct {
	RetrievalMS  int64 `json:"retrieval_ms"`
	FirstTokenMS int64 `json:"first_token_ms"`
	TotalMS      int64 `json:"total_ms"`
}

// Result is the terminal outcome of a completed (non-cancelled) exchange.
type Result struct {
	Answer  *backend.Answer
	Metrics Metrics
	Cached  bool
}

// Answer runs one exchange. With a nil emit it uses the blocking backend
// variant; otherwise it streams, delivering events in the fixed order
// meta, retrieval(start), retrieval(done), token*, final, metrics.
//
// Caller-initiated cancellation propagates as the context error: no final
// event, no session mutation, no handoff notification. Any other backend
// failure resolves to a handoff outcome.
func (c *Controller) Answer(ctx context.Context, req Request, emit EmitFunc) (*Result, error) {
	logger := c.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := c.Now
	if now == nil {
		now = time.Now
	}
	start := now()

	clean := CleanInput(req.Query, c.Config.MaxInputLen)
	lang := DetectLanguage(req.Query)

	var scope string
	scopeOK := false
	if c.Directory != nil && strings.TrimSpace(req.AgentID) != "" {
		if entry, ok := c.Directory.Lookup(req.AgentID); ok {
			scope = entry.Scope
			scopeOK = true
			if entry.Language != "" {
				lang = entry.Language
			}
		}
	}

	send := func(ev Event) error {
		if emit == nil {
			return nil
		}
		return emit(ev)
	}

	if err := send(MetaEvent{Type: "meta", SessionID: req.SessionID, Scope: scope, RequestID: req.RequestID}); err != nil {
		return nil, err
	}
	if err := send(RetrievalEvent{Type: "retrieval", Status: RetrievalStart}); err != nil {
		return nil, err
	}

	var (
		emittedDone  bool
		emitErr      error
		retrievalAt  time.Time
		firstTokenAt time.Time
	)
	markRetrievalDone := func(citations []backend.Citation) {
		if emittedDone {
			return
		}
		emittedDone = true
		retrievalAt = now()
		if emitErr == nil {
			emitErr = send(RetrievalEvent{Type: "retrieval", Status: RetrievalDone, Citations: citations})
		}
	}

	var (
		answer *backend.Answer
		cached bool
		reason string
	)

	switch {
	case clean == "":
		reason = ReasonEmptyInput
	case IsRestrictedTopic(clean):
		reason = ReasonRestrictedTopic
	case !scopeOK:
		reason = ReasonNoScope
	}

	if reason != "" {
		answer = handoffAnswer(lang)
	} else {
		history := historyMessages(c.Sessions, req.SessionID)

		compute := func(cctx context.Context) (*backend.Answer, error) {
			callCtx := cctx
			if c.Config.CallTimeout > 0 {
				var cancel context.CancelFunc
				callCtx, cancel = context.WithTimeout(cctx, c.Config.CallTimeout)
				defer cancel()
			}

			genReq := backend.GenerateRequest{Query: clean, History: history, Scope: scope}

			var ans *backend.Answer
			var err error
			if emit != nil {
				ans, err = c.Backend.GenerateStream(callCtx, genReq,
					func(citations []backend.Citation) {
						markRetrievalDone(citations)
					},
					func(text string) {
						// A token before the retrieval signal forces the
						// retrieval(done) event with an empty citation list.
						markRetrievalDone(nil)
						if firstTokenAt.IsZero() {
							firstTokenAt = now()
						}
						if emitErr == nil {
							emitErr = send(TokenEvent{Type: "token", Text: text})
						}
					})
			} else {
				docs, rerr := c.Backend.Retrieve(callCtx, clean, scope, c.topK())
				if rerr != nil {
					return nil, rerr
				}
				markRetrievalDone(backend.CitationsFromDocuments(docs))
				ans, err = c.Backend.Generate(callCtx, genReq)
			}
			if err != nil {
				return nil, err
			}
			return c.finalize(ans, lang), nil
		}

		var err error
		if c.Cache != nil {
			answer, cached, err = c.Cache.Resolve(ctx, cache.Key(scope, clean), req.BypassCache, compute)
		} else {
			answer, err = compute(ctx)
		}
		if err != nil {
			if ctx.Err() != nil {
				logger.Info("exchange cancelled",
					"session_id", req.SessionID, "request_id", req.RequestID)
				return nil, ctx.Err()
			}
			logger.Error("backend call failed",
				"session_id", req.SessionID, "request_id", req.RequestID, "error", err)
			reason = ReasonBackendFailure
			answer = handoffAnswer(lang)
		} else if answer.Decision == backend.DecisionHandoff {
			reason = ReasonPolicyFilter
		}
	}

	if emitErr != nil {
		return nil, emitErr
	}
	if emit != nil && ctx.Err() != nil {
		// The transport is gone; stop before the terminal events.
		return nil, ctx.Err()
	}

	markRetrievalDone(answer.Citations)
	if emitErr != nil {
		return nil, emitErr
	}
	if err := send(FinalEvent{Type: "final", Decision: answer.Decision, Text: answer.Text, Citations: answer.Citations}); err != nil {
		return nil, err
	}

	metrics := Metrics{TotalMS: now().Sub(start).Milliseconds()}
	if !retrievalAt.IsZero() {
		metrics.RetrievalMS = retrievalAt.Sub(start).Milliseconds()
	}
	if !firstTokenAt.IsZero() {
		metrics.FirstTokenMS = firstTokenAt.Sub(start).Milliseconds()
	}
	if err := send(MetricsEvent{Type: "metrics", RetrievalMS: metrics.RetrievalMS, FirstTokenMS: metrics.FirstTokenMS, TotalMS: metrics.TotalMS}); err != nil {
		return nil, err
	}

	if c.Sessions != nil && req.SessionID != "" {
		c.Sessions.AddTurn(req.SessionID, "user", clean)
		c.Sessions.AddTurn(req.SessionID, "assistant", answer.Text)
	}
	if answer.Decision == backend.DecisionHandoff && c.Notifier != nil {
		c.Notifier.Notify(req.SessionID, reason, answer.Text)
	}

	return &Result{Answer: answer, Metrics: metrics, Cached: cached}, nil
}

// finalize applies the post-generation policy filters. Anything the
// backend disclaims, deflects, or free-forms as a transfer statement is
// replaced by the fixed localized handoff outcome.
func (c *Controller) finalize(ans *backend.Answer, lang string) *backend.Answer {
	text := strings.TrimSpace(ans.Text)
	if ans.Decision != backend.DecisionAnswer ||
		text == "" ||
		IsRestrictedTopic(text) ||
		ReadsAsNoContext(text) ||
		ReadsAsTransfer(text) {
		return handoffAnswer(lang)
	}
	citations := ans.Citations
	if citations == nil {
		citations = []backend.Citation{}
	}
	return &backend.Answer{Decision: backend.DecisionAnswer, Text: text, Citations: citations}
}

func (c *Controller) topK() int {
	if c.Config.TopK > 0 {
		return c.Config.TopK
	}
	return 5
}

func handoffAnswer(lang string) *backend.Answer {
	return &backend.Answer{
		Decision:  backend.DecisionHandoff,
		Text:      HandoffMessage(lang),
		Citations: []backend.Citation{},
	}
}

func historyMessages(store *session.Store, sessionID string) []backend.Message {
	if store == nil || sessionID == "" {
		return nil
	}
	turns := store.Get(sessionID)
	if len(turns) == 0 {
		return nil
	}
	out := make([]backend.Message, len(turns))
	for i, t := range turns {
		out[i] = backend.Message{Role: t.Role, Content: t.Text}
	}
	return out
}
