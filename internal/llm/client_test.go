package llm

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		wantKey string
		wantErr bool
	}{
		{"bare object", `{"analysis": "ok"}`, "analysis", false},
		{"fenced object", "```json\n{\"plan\": []}\n```", "plan", false},
		{"prose around object", "Here you go:\n{\"a\": 1}\nHope that helps.", "a", false},
		{"nested braces", `{"a": {"b": "}"}, "c": 2}`, "c", false},
		{"brace inside string", `{"text": "if { then }"}`, "text", false},
		{"no object", "sorry, I cannot answer", "", true},
		{"unterminated", `{"a": 1`, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			obj, err := ExtractJSON(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %v", obj)
				}
				return
			}
			if err != nil {
				t.Fatalf("ExtractJSON: %v", err)
			}
			if _, ok := obj[tt.wantKey]; !ok {
				t.Errorf("key %q missing from %v", tt.wantKey, obj)
			}
		})
	}
}

func TestNewRequiresKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	if _, err := New("test-model"); err != ErrNoAPIKey {
		t.Errorf("New without key = %v, want ErrNoAPIKey", err)
	}
}

func TestCompleteJSONAgainstStubServer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Errorf("missing bearer token")
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"choices":[{"message":{"content":"{\"confidence\": 0.9}"}}]}`))
	}))
	defer srv.Close()

	t.Setenv("OPENAI_API_KEY", "test-key")
	t.Setenv("OPENAI_BASE_URL", srv.URL)

	c, err := New("test-model")
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	obj, err := c.CompleteJSON(ctx, "system", "user")
	if err != nil {
		t.Fatalf("CompleteJSON: %v", err)
	}
	if obj["confidence"] != 0.9 {
		t.Errorf("confidence = %v, want 0.9", obj["confidence"])
	}
}

func TestCompleteSurfacesAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":{"message":"rate limited","type":"rate_limit"}}`))
	}))
	defer srv.Close()

	t.Setenv("OPENAI_API_KEY", "test-key")
	t.Setenv("OPENAI_BASE_URL", srv.URL)

	c, err := New("test-model")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := c.Complete(context.Background(), "s", "u"); err == nil {
		t.Error("expected error for 429 response")
	}
}
