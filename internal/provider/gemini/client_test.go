package gemini

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hl-fury/xai-narrative-service/internal/domain"
	"github.com/hl-fury/xai-narrative-service/internal/testutil"
)

func defaultParams() domain.GenerationParams {
	return domain.GenerationParams{
		Temperature: domain.DefaultTemperature,
		TopP:        domain.DefaultTopP,
		MaxTokens:   domain.DefaultMaxTokens,
	}
}

func TestGenerateReplayed(t *testing.T) {
	r := testutil.NewVCRRecorder(t, "generate_content")

	c := NewClient("test-key", WithHTTPClient(testutil.VCRHTTPClient(r)))
	text, err := c.Generate(context.Background(), "gemini-2.0-flash-exp", "Explain the counterfactual.", defaultParams())
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if !strings.Contains(text, "income boundary") {
		t.Errorf("Generate() = %q, want the recorded narrative", text)
	}
	if !strings.Contains(text, "```json") {
		t.Error("Generate() lost the fenced JSON block")
	}
}

func TestGenerateSendsRequest(t *testing.T) {
	var gotPath, gotKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get("x-goog-api-key")
		w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"hello"}]},"finishReason":"STOP"}]}`))
	}))
	defer srv.Close()

	c := NewClient("secret", WithBaseURL(srv.URL))
	text, err := c.Generate(context.Background(), "gemini-2.0-flash-exp", "hi", defaultParams())
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if text != "hello" {
		t.Errorf("Generate() = %q", text)
	}
	if gotPath != "/models/gemini-2.0-flash-exp:generateContent" {
		t.Errorf("path = %q", gotPath)
	}
	if gotKey != "secret" {
		t.Errorf("x-goog-api-key = %q", gotKey)
	}
}

func TestGenerateFallsBackToDefaultModel(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"ok"}]}}]}`))
	}))
	defer srv.Close()

	c := NewClient("k", WithBaseURL(srv.URL), WithDefaultModel("gemini-1.5-pro"))
	if _, err := c.Generate(context.Background(), "not-a-gemini-model", "hi", defaultParams()); err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if gotPath != "/models/gemini-1.5-pro:generateContent" {
		t.Errorf("path = %q, want the default model", gotPath)
	}
}

func TestGenerateAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"code":400,"message":"API key not valid","status":"INVALID_ARGUMENT"}}`))
	}))
	defer srv.Close()

	c := NewClient("bad", WithBaseURL(srv.URL))
	_, err := c.Generate(context.Background(), "gemini-2.0-flash-exp", "hi", defaultParams())

	var apiErr *domain.APIError
	if !errors.As(err, &apiErr) || apiErr.Type != domain.ErrorTypeProvider {
		t.Fatalf("error = %v, want provider APIError", err)
	}
	if apiErr.Message != "API key not valid" {
		t.Errorf("Message = %q", apiErr.Message)
	}
}

func TestGenerateEmptyResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"candidates":[]}`))
	}))
	defer srv.Close()

	c := NewClient("k", WithBaseURL(srv.URL))
	_, err := c.Generate(context.Background(), "gemini-2.0-flash-exp", "hi", defaultParams())

	var apiErr *domain.APIError
	if !errors.As(err, &apiErr) || apiErr.Type != domain.ErrorTypeProvider {
		t.Fatalf("error = %v, want provider APIError for empty candidates", err)
	}
}
