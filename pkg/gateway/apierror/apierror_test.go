package apierror

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestFromError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantType   Type
		wantMsg    string
	}{
		{"deadline", context.DeadlineExceeded, http.StatusGatewayTimeout, ErrAPI, "request timeout"},
		{"cancelled", context.Canceled, http.StatusRequestTimeout, ErrAPI, "request cancelled"},
		{
			"canonical",
			&Error{Type: ErrInvalidRequest, Message: "bad field", Param: "query"},
			http.StatusBadRequest, ErrInvalidRequest, "bad field",
		},
		{
			"wrapped canonical",
			fmt.Errorf("handler: %w", &Error{Type: ErrAuthentication, Message: "nope"}),
			http.StatusUnauthorized, ErrAuthentication, "nope",
		},
		{"opaque", errors.New("disk on fire"), http.StatusInternalServerError, ErrAPI, "internal error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, status := FromError(tt.err, "req_1")
			if status != tt.wantStatus {
				t.Fatalf("status=%d, want %d", status, tt.wantStatus)
			}
			if e.Type != tt.wantType || e.Message != tt.wantMsg {
				t.Fatalf("error=%+v", e)
			}
			if e.RequestID != "req_1" {
				t.Fatalf("request id=%q", e.RequestID)
			}
		})
	}
}

func TestFromError_NilIsOK(t *testing.T) {
	e, status := FromError(nil, "req_1")
	if e != nil || status != http.StatusOK {
		t.Fatalf("e=%v status=%d", e, status)
	}
}

func TestFromError_DoesNotMutateOriginal(t *testing.T) {
	orig := &Error{Type: ErrNotFound, Message: "gone"}
	e, _ := FromError(orig, "req_9")
	if orig.RequestID != "" {
		t.Fatal("original error mutated")
	}
	if e.RequestID != "req_9" {
		t.Fatalf("copy request id=%q", e.RequestID)
	}
}

func TestWrite_EncodesEnvelope(t *testing.T) {
	rec := httptest.NewRecorder()
	Write(rec, http.StatusBadRequest, &Error{Type: ErrInvalidRequest, Message: "bad", Param: "query"})

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status=%d", rec.Code)
	}
	var env Envelope
	if err := json.NewDecoder(rec.Body).Decode(&env); err != nil {
		t.Fatal(err)
	}
	if env.Error == nil || env.Error.Param != "query" {
		t.Fatalf("envelope=%+v", env)
	}
}
