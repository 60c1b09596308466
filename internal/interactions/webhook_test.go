package interactions

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestWebhookDeliver(t *testing.T) {
	var got OutgoingPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("content type = %s", ct)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode payload: %v", err)
		}
		json.NewEncoder(w).Encode(BotResponse{Content: "done"})
	}))
	defer srv.Close()

	c := NewWebhookClient(2 * time.Second)
	resp, err := c.Deliver(context.Background(), srv.URL, OutgoingPayload{
		Type:          TypeCommandInvocation,
		Command:       "deploy",
		Arguments:     map[string]any{"env": "prod"},
		InteractionID: "int-1",
		User:          UserRef{ID: "u1", Email: "a@b.c", Name: "Ada"},
	})
	if err != nil {
		t.Fatalf("Deliver: %v", err)
	}
	if resp == nil || resp.Content != "done" {
		t.Fatalf("response = %+v, want content done", resp)
	}
	if got.Command != "deploy" || got.InteractionID != "int-1" {
		t.Errorf("bot received %+v", got)
	}
	if got.User.Name != "Ada" {
		t.Errorf("user ref = %+v", got.User)
	}
}

func TestWebhookDeliverEmptyBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := NewWebhookClient(2 * time.Second)
	resp, err := c.Deliver(context.Background(), srv.URL, OutgoingPayload{InteractionID: "int-2"})
	if err != nil {
		t.Fatalf("Deliver: %v", err)
	}
	if resp != nil {
		t.Fatalf("resp = %+v, want nil for empty ack", resp)
	}
}

func TestWebhookDeliverServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewWebhookClient(2 * time.Second)
	if _, err := c.Deliver(context.Background(), srv.URL, OutgoingPayload{}); err == nil {
		t.Fatal("want error for 500 response")
	}
}

func TestHandlerRegistry(t *testing.T) {
	r := NewHandlerRegistry()
	if _, ok := r.Lookup("b1"); ok {
		t.Fatal("empty registry should miss")
	}
	r.Register("b1", func(ctx context.Context, in Interaction) (*BotResponse, error) {
		return &BotResponse{Content: "hi " + in.UserID}, nil
	})
	fn, ok := r.Lookup("b1")
	if !ok {
		t.Fatal("registered handler not found")
	}
	resp, err := fn(context.Background(), Interaction{UserID: "u9"})
	if err != nil {
		t.Fatalf("handler: %v", err)
	}
	if resp.Content != "hi u9" {
		t.Fatalf("content = %q", resp.Content)
	}
}
