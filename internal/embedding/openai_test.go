package embedding

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

type embedRequest struct {
	Input []string `json:"input"`
	Model string   `json:"model"`
}

func embedResponse(t *testing.T, w http.ResponseWriter, rows map[int][]float32) {
	t.Helper()
	type row struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	}
	var out struct {
		Data []row `json:"data"`
	}
	for i, v := range rows {
		out.Data = append(out.Data, row{Index: i, Embedding: v})
	}
	if err := json.NewEncoder(w).Encode(out); err != nil {
		t.Errorf("encode response: %v", err)
	}
}

func TestOpenAIClientEmbedBatch(t *testing.T) {
	var gotReq embedRequest
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Errorf("decode request: %v", err)
		}
		// Rows intentionally out of order; the index field decides placement.
		embedResponse(t, w, map[int][]float32{
			1: {3, 4, 5},
			0: {0, 1, 2},
		})
	}))
	defer srv.Close()

	c, err := NewOpenAIClient(OpenAIConfig{
		BaseURL:   srv.URL,
		Model:     "test-model",
		Dimension: 3,
	})
	if err != nil {
		t.Fatalf("NewOpenAIClient failed: %v", err)
	}

	vecs, err := c.EmbedBatch(context.Background(), []string{"first", "second"})
	if err != nil {
		t.Fatalf("EmbedBatch failed: %v", err)
	}
	if gotReq.Model != "test-model" || len(gotReq.Input) != 2 || gotReq.Input[0] != "first" {
		t.Errorf("request body = %+v", gotReq)
	}
	if gotAuth != "" {
		t.Errorf("keyless client sent Authorization %q", gotAuth)
	}
	if len(vecs) != 2 {
		t.Fatalf("got %d vectors, want 2", len(vecs))
	}
	if vecs[0][0] != 0 || vecs[1][0] != 3 {
		t.Errorf("vectors not reordered by index: %v", vecs)
	}
}

func TestOpenAIClientSendsBearerToken(t *testing.T) {
	t.Setenv("TEST_EMBED_KEY", "sekrit")

	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		embedResponse(t, w, map[int][]float32{0: {1, 2}})
	}))
	defer srv.Close()

	c, err := NewOpenAIClient(OpenAIConfig{
		BaseURL:   srv.URL,
		APIKeyEnv: "TEST_EMBED_KEY",
		Model:     "m",
		Dimension: 2,
	})
	if err != nil {
		t.Fatalf("NewOpenAIClient failed: %v", err)
	}
	if _, err := c.Embed(context.Background(), "hello"); err != nil {
		t.Fatalf("Embed failed: %v", err)
	}
	if gotAuth != "Bearer sekrit" {
		t.Errorf("Authorization = %q, want Bearer sekrit", gotAuth)
	}
}

func TestOpenAIClientConfigErrors(t *testing.T) {
	t.Setenv("TEST_EMBED_KEY_UNSET", "")

	cases := []struct {
		name string
		cfg  OpenAIConfig
	}{
		{"no base url", OpenAIConfig{Model: "m", Dimension: 4}},
		{"no model", OpenAIConfig{BaseURL: "http://x", Dimension: 4}},
		{"zero dimension", OpenAIConfig{BaseURL: "http://x", Model: "m"}},
		{"key env set but empty", OpenAIConfig{BaseURL: "http://x", Model: "m", Dimension: 4, APIKeyEnv: "TEST_EMBED_KEY_UNSET"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := NewOpenAIClient(tc.cfg); err == nil {
				t.Error("NewOpenAIClient succeeded, want error")
			}
		})
	}
}

func TestOpenAIClientRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, "overloaded", http.StatusServiceUnavailable)
			return
		}
		embedResponse(t, w, map[int][]float32{0: {1, 2}})
	}))
	defer srv.Close()

	c, err := NewOpenAIClient(OpenAIConfig{
		BaseURL:    srv.URL,
		Model:      "m",
		Dimension:  2,
		MaxRetries: 2,
	})
	if err != nil {
		t.Fatalf("NewOpenAIClient failed: %v", err)
	}
	if _, err := c.Embed(context.Background(), "hello"); err != nil {
		t.Fatalf("Embed after retry failed: %v", err)
	}
	if got := calls.Load(); got != 2 {
		t.Errorf("server called %d times, want 2", got)
	}
}

func TestOpenAIClientExhaustsRetries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c, err := NewOpenAIClient(OpenAIConfig{
		BaseURL:    srv.URL,
		Model:      "m",
		Dimension:  2,
		MaxRetries: 1,
	})
	if err != nil {
		t.Fatalf("NewOpenAIClient failed: %v", err)
	}
	if _, err := c.Embed(context.Background(), "hello"); !errors.Is(err, ErrUnavailable) {
		t.Errorf("Embed = %v, want ErrUnavailable", err)
	}
}

func TestOpenAIClientClientErrorDoesNotRetry(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "bad input", http.StatusBadRequest)
	}))
	defer srv.Close()

	c, err := NewOpenAIClient(OpenAIConfig{
		BaseURL:    srv.URL,
		Model:      "m",
		Dimension:  2,
		MaxRetries: 3,
	})
	if err != nil {
		t.Fatalf("NewOpenAIClient failed: %v", err)
	}
	if _, err := c.Embed(context.Background(), "hello"); !errors.Is(err, ErrUnavailable) {
		t.Errorf("Embed = %v, want ErrUnavailable", err)
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("server called %d times, want 1", got)
	}
}

func TestOpenAIClientRejectsWrongDimension(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		embedResponse(t, w, map[int][]float32{0: {1, 2}})
	}))
	defer srv.Close()

	c, err := NewOpenAIClient(OpenAIConfig{
		BaseURL:   srv.URL,
		Model:     "m",
		Dimension: 3,
	})
	if err != nil {
		t.Fatalf("NewOpenAIClient failed: %v", err)
	}
	if _, err := c.Embed(context.Background(), "hello"); !errors.Is(err, ErrUnavailable) {
		t.Errorf("Embed with short vector = %v, want ErrUnavailable", err)
	}
}

func TestOpenAIClientRejectsCountMismatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		embedResponse(t, w, map[int][]float32{0: {1, 2}})
	}))
	defer srv.Close()

	c, err := NewOpenAIClient(OpenAIConfig{
		BaseURL:   srv.URL,
		Model:     "m",
		Dimension: 2,
	})
	if err != nil {
		t.Fatalf("NewOpenAIClient failed: %v", err)
	}
	if _, err := c.EmbedBatch(context.Background(), []string{"a", "b"}); !errors.Is(err, ErrUnavailable) {
		t.Errorf("EmbedBatch = %v, want ErrUnavailable", err)
	}
}

func TestOpenAIClientHonorsContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		embedResponse(t, w, map[int][]float32{0: {1, 2}})
	}))
	defer srv.Close()

	c, err := NewOpenAIClient(OpenAIConfig{
		BaseURL:   srv.URL,
		Model:     "m",
		Dimension: 2,
	})
	if err != nil {
		t.Fatalf("NewOpenAIClient failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := c.Embed(ctx, "hello"); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Embed = %v, want context.DeadlineExceeded", err)
	}
}

func TestOpenAIClientEmptyBatch(t *testing.T) {
	c, err := NewOpenAIClient(OpenAIConfig{BaseURL: "http://unused", Model: "m", Dimension: 2})
	if err != nil {
		t.Fatalf("NewOpenAIClient failed: %v", err)
	}
	vecs, err := c.EmbedBatch(context.Background(), nil)
	if err != nil {
		t.Fatalf("EmbedBatch(nil) failed: %v", err)
	}
	if vecs != nil {
		t.Errorf("EmbedBatch(nil) = %v, want nil", vecs)
	}
}
