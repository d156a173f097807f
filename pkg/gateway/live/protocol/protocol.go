// Package protocol defines the client/server frames of the /v1/voice
// WebSocket protocol.
package protocol

import (
	"encoding/json"
	"fmt"
	"strings"
)

const (
	ProtocolVersion1 = "1"

	DefaultAudioEncoding = "pcm_s16le"
	DefaultSampleRateHz  = 16000
	DefaultChannels      = 1
)

type DecodeError struct {
	Code    string
	Message string
	Param   string
}

func (e *DecodeError) Error() string {
	if e == nil {
		return ""
	}
	if strings.TrimSpace(e.Param) == "" {
		return e.Message
	}
	return fmt.Sprintf("%s (%s)", e.Message, e.Param)
}

func badRequest(message, param string) *DecodeError {
	return &DecodeError{Code: "bad_request", Message: message, Param: param}
}

func unsupported(message, param string) *DecodeError {
	return &DecodeError{Code: "unsupported", Message: message, Param: param}
}

// AudioFormat describes the inbound audio shape for a voice session.
type AudioFormat struct {
	Encoding     string `json:"encoding"`
	SampleRateHz int    `json:"sample_rate_hz"`
	Channels     int    `json:"channels"`
}

// ClientStart opens a voice session. It must be the first text frame on
// the connection.
type ClientStart struct {
	Type            string      `json:"type"`
	ProtocolVersion string      `json:"protocol_version"`
	AgentID         string      `json:"agent_id"`
	SessionID       string      `json:"session_id,omitempty"`
	Language        string      `json:"language,omitempty"`
	Audio           AudioFormat `json:"audio"`
}

// ClientStop requests a graceful session end.
type ClientStop struct {
	Type string `json:"type"`
}

// DecodeClientMessage parses one client text frame. Returned values are
// ClientStart or ClientStop; errors are always *DecodeError.
func DecodeClientMessage(data []byte) (any, error) {
	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, badRequest("invalid json frame", "")
	}
	typ := strings.TrimSpace(envelope.Type)
	if typ == "" {
		return nil, badRequest("missing type", "type")
	}

	switch typ {
	case "start":
		var msg ClientStart
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badRequest("invalid start frame", "")
		}
		if err := validateStart(&msg); err != nil {
			return nil, err
		}
		return msg, nil
	case "stop":
		var msg ClientStop
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badRequest("invalid stop frame", "")
		}
		return msg, nil
	default:
		return nil, badRequest("unsupported message type", "type")
	}
}

func validateStart(msg *ClientStart) error {
	if strings.TrimSpace(msg.ProtocolVersion) == "" {
		return badRequest("start.protocol_version is required", "protocol_version")
	}
	if msg.ProtocolVersion != ProtocolVersion1 {
		return unsupported("unsupported protocol version", "protocol_version")
	}
	if strings.TrimSpace(msg.AgentID) == "" {
		return badRequest("start.agent_id is required", "agent_id")
	}

	if strings.TrimSpace(msg.Audio.Encoding) == "" {
		msg.Audio.Encoding = DefaultAudioEncoding
	}
	if msg.Audio.SampleRateHz == 0 {
		msg.Audio.SampleRateHz = DefaultSampleRateHz
	}
	if msg.Audio.Channels == 0 {
		msg.Audio.Channels = DefaultChannels
	}
	if msg.Audio.SampleRateHz < 0 {
		return badRequest("start.audio.sample_rate_hz must be > 0", "audio.sample_rate_hz")
	}
	if msg.Audio.Channels < 0 {
		return badRequest("start.audio.channels must be > 0", "audio.channels")
	}
	return nil
}

// Citation mirrors the retrieval citation shape on the wire.
type Citation struct {
	ID    string `json:"id"`
	Title string `json:"title,omitempty"`
}

// ServerReady acknowledges a start frame.
type ServerReady struct {
	Type            string      `json:"type"`
	ProtocolVersion string      `json:"protocol_version"`
	SessionID       string      `json:"session_id"`
	Audio           AudioFormat `json:"audio"`
}

// ServerTranscript carries transcription text. Type is
// "transcript_partial" or "transcript_final".
type ServerTranscript struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// ServerAssistantRetrieval mirrors the retrieval lifecycle of the current
// exchange. Status is "start" or "done".
type ServerAssistantRetrieval struct {
	Type      string     `json:"type"`
	Status    string     `json:"status"`
	Citations []Citation `json:"citations,omitempty"`
}

// ServerAssistantToken carries one phrase-sized chunk of assistant text.
type ServerAssistantToken struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// ServerAssistantResponse is the terminal frame of one exchange.
type ServerAssistantResponse struct {
	Type      string     `json:"type"`
	Decision  string     `json:"decision"`
	Text      string     `json:"text"`
	Citations []Citation `json:"citations"`
}

// ServerAssistantMetrics closes an exchange with timing data.
type ServerAssistantMetrics struct {
	Type         string `json:"type"`
	RetrievalMS  int64  `json:"retrieval_ms"`
	FirstTokenMS int64  `json:"first_token_ms"`
	TotalMS      int64  `json:"total_ms"`
}

// ServerError reports a protocol or session error. Close signals that the
// server will terminate the connection.
type ServerError struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Param   string `json:"param,omitempty"`
	Close   bool   `json:"close,omitempty"`
}
