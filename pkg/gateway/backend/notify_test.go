package backend

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestNotify_PostsHandoffPayload(t *testing.T) {
	received := make(chan HandoffNotification, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("content-type=%q", r.Header.Get("Content-Type"))
		}
		var payload HandoffNotification
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Error(err)
		}
		received <- payload
	}))
	defer srv.Close()

	n := NewNotifier(srv.URL, srv.Client(), nil)
	n.Notify("sess-1", "backend_failure", "please hold")

	select {
	case payload := <-received:
		if payload.SessionID != "sess-1" || payload.Reason != "backend_failure" || payload.Text != "please hold" {
			t.Fatalf("payload=%+v", payload)
		}
		if _, err := time.Parse(time.RFC3339, payload.Timestamp); err != nil {
			t.Fatalf("timestamp %q: %v", payload.Timestamp, err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("webhook never called")
	}
}

func TestNotify_DisabledAndNilAreNoOps(t *testing.T) {
	NewNotifier("", nil, nil).Notify("sess-1", "no_scope", "text")

	var n *Notifier
	n.Notify("sess-1", "no_scope", "text")
}
