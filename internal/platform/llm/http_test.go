package llm

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
)

func TestHTTPGenerator_OK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		w.Write([]byte(`{"text":"  hello  "}`))
	}))
	defer srv.Close()

	g := NewHTTPGenerator(srv.URL, zerolog.Nop(), WithHTTPClient(srv.Client()))
	text, ok := g.Generate(context.Background(), "p")
	if !ok || text != "hello" {
		t.Fatalf("Generate = %q, %v", text, ok)
	}
}

func TestHTTPGenerator_EmptyAndErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"text":""}`))
	}))
	defer srv.Close()

	g := NewHTTPGenerator(srv.URL, zerolog.Nop(), WithHTTPClient(srv.Client()))
	if _, ok := g.Generate(context.Background(), "p"); ok {
		t.Error("empty completion should report ok=false")
	}

	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer bad.Close()

	g = NewHTTPGenerator(bad.URL, zerolog.Nop(), WithHTTPClient(bad.Client()))
	if _, ok := g.Generate(context.Background(), "p"); ok {
		t.Error("non-200 should report ok=false")
	}
}

func TestDisabled(t *testing.T) {
	if _, ok := (Disabled{}).Generate(context.Background(), "p"); ok {
		t.Error("Disabled generator must never produce output")
	}
}
