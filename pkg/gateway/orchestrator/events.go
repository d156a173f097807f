package orchestrator

import "github.com/voxhall/answer-gateway/pkg/gateway/backend"

// Event is one lifecycle event of an exchange. Within an exchange events
// are delivered in the order meta, retrieval(start), retrieval(done),
// token*, final, metrics.
type Event interface {
	EventType() string
}

// EmitFunc receives ordered events. A non-nil error aborts the exchange.
type EmitFunc func(Event) error

const (
	RetrievalStart = "start"
	RetrievalDone  = "done"
)

// MetaEvent opens every exchange.
type MetaEvent struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
	Scope     string `json:"scope,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

func (MetaEvent) EventType() string { return "meta" }

// RetrievalEvent signals retrieval progress. Status "done" fires exactly
// once per exchange and always before the first token.
type RetrievalEvent struct {
	Type      string             `json:"type"`
	Status    string             `json:"status"`
	Citations []backend.Citation `json:"citations,omitempty"`
}

func (RetrievalEvent) EventType() string { return "retrieval" }

// TokenEvent carries one generated text fragment.
type TokenEvent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

func (TokenEvent) EventType() string { return "token" }

// FinalEvent is the single terminal event of a completed exchange.
type FinalEvent struct {
	Type      string             `json:"type"`
	Decision  backend.Decision   `json:"decision"`
	Text      string             `json:"text"`
	Citations []backend.Citation `json:"citations"`
}

func (FinalEvent) EventType() string { return "final" }

// MetricsEvent closes the exchange with timing data.
type MetricsEvent struct {
	Type         string `json:"type"`
	RetrievalMS  int64  `json:"retrieval_ms"`
	FirstTokenMS int64  `json:"first_token_ms"`
	TotalMS      int64  `json:"total_ms"`
}

func (MetricsEvent) EventType() string { return "metrics" }
