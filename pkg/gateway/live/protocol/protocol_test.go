package protocol

import (
	"errors"
	"testing"
)

func decodeErr(t *testing.T, data string) *DecodeError {
	t.Helper()
	_, err := DecodeClientMessage([]byte(data))
	if err == nil {
		t.Fatalf("DecodeClientMessage(%s) succeeded, want error", data)
	}
	var de *DecodeError
	if !errors.As(err, &de) {
		t.Fatalf("error is %T, want *DecodeError", err)
	}
	return de
}

func TestDecodeClientMessage_StartAppliesAudioDefaults(t *testing.T) {
	msg, err := DecodeClientMessage([]byte(`{"type":"start","protocol_version":"1","agent_id":"agent1"}`))
	if err != nil {
		t.Fatal(err)
	}
	start, ok := msg.(ClientStart)
	if !ok {
		t.Fatalf("got %T, want ClientStart", msg)
	}
	if start.AgentID != "agent1" {
		t.Fatalf("agent_id=%q", start.AgentID)
	}
	if start.Audio.Encoding != DefaultAudioEncoding ||
		start.Audio.SampleRateHz != DefaultSampleRateHz ||
		start.Audio.Channels != DefaultChannels {
		t.Fatalf("audio defaults not applied: %+v", start.Audio)
	}
}

func TestDecodeClientMessage_StartKeepsExplicitAudio(t *testing.T) {
	msg, err := DecodeClientMessage([]byte(`{"type":"start","protocol_version":"1","agent_id":"a","audio":{"encoding":"pcm_s16le","sample_rate_hz":8000,"channels":1}}`))
	if err != nil {
		t.Fatal(err)
	}
	start := msg.(ClientStart)
	if start.Audio.SampleRateHz != 8000 {
		t.Fatalf("sample_rate_hz=%d, want 8000", start.Audio.SampleRateHz)
	}
}

func TestDecodeClientMessage_StartValidation(t *testing.T) {
	tests := []struct {
		name      string
		data      string
		wantCode  string
		wantParam string
	}{
		{"missing version", `{"type":"start","agent_id":"a"}`, "bad_request", "protocol_version"},
		{"wrong version", `{"type":"start","protocol_version":"2","agent_id":"a"}`, "unsupported", "protocol_version"},
		{"missing agent", `{"type":"start","protocol_version":"1"}`, "bad_request", "agent_id"},
		{"negative rate", `{"type":"start","protocol_version":"1","agent_id":"a","audio":{"sample_rate_hz":-1}}`, "bad_request", "audio.sample_rate_hz"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			de := decodeErr(t, tt.data)
			if de.Code != tt.wantCode || de.Param != tt.wantParam {
				t.Fatalf("got code=%q param=%q, want code=%q param=%q", de.Code, de.Param, tt.wantCode, tt.wantParam)
			}
		})
	}
}

func TestDecodeClientMessage_Stop(t *testing.T) {
	msg, err := DecodeClientMessage([]byte(`{"type":"stop"}`))
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := msg.(ClientStop); !ok {
		t.Fatalf("got %T, want ClientStop", msg)
	}
}

func TestDecodeClientMessage_Rejections(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"invalid json", `{"type":`},
		{"missing type", `{"agent_id":"a"}`},
		{"unknown type", `{"type":"pause"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			de := decodeErr(t, tt.data)
			if de.Code != "bad_request" {
				t.Fatalf("code=%q, want bad_request", de.Code)
			}
		})
	}
}

func TestDecodeError_ErrorIncludesParam(t *testing.T) {
	de := badRequest("bad thing", "field")
	if got := de.Error(); got != "bad thing (field)" {
		t.Fatalf("Error()=%q", got)
	}
	if got := badRequest("bad thing", "").Error(); got != "bad thing" {
		t.Fatalf("Error()=%q", got)
	}
}
