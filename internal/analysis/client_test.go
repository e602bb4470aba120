package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/soundeck/go-spotify-rewind/internal/wrapped"
)

func testTracks(n int) []wrapped.Track {
	names := []string{"One", "Two", "Three", "Four", "Five", "Six", "Seven"}
	tracks := make([]wrapped.Track, n)
	for i := range tracks {
		tracks[i] = wrapped.Track{
			SpotifyID: "t" + names[i],
			Name:      names[i],
			Artist:    "Artist " + names[i],
		}
	}
	return tracks
}

func generateResponseBody(text string) string {
	body, _ := json.Marshal(generateResponse{
		Candidates: []struct {
			Content content `json:"content"`
		}{
			{Content: content{Parts: []part{{Text: text}}}},
		},
	})
	return string(body)
}

func TestAnalyze(t *testing.T) {
	var calls atomic.Int32
	var lastPrompt string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)

		var req generateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decoding request: %v", err)
		}
		if len(req.Contents) != 1 || len(req.Contents[0].Parts) != 1 {
			t.Fatalf("unexpected request shape: %+v", req)
		}
		lastPrompt = req.Contents[0].Parts[0].Text

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(generateResponseBody("You have eclectic taste.")))
	}))
	defer server.Close()

	client := NewClient("test-key", nil)
	client.baseURL = server.URL

	got, err := client.Analyze(context.Background(), testTracks(3))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "You have eclectic taste." {
		t.Errorf("analysis = %q", got)
	}
	if !strings.Contains(lastPrompt, "One by Artist One") {
		t.Errorf("prompt missing track line: %q", lastPrompt)
	}

	// Same tracks again: served from cache, no second API call.
	got, err = client.Analyze(context.Background(), testTracks(3))
	if err != nil {
		t.Fatalf("unexpected error on cached call: %v", err)
	}
	if got != "You have eclectic taste." {
		t.Errorf("cached analysis = %q", got)
	}
	if n := calls.Load(); n != 1 {
		t.Errorf("API calls = %d, want 1", n)
	}
}

func TestAnalyzeTruncatesTracks(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req generateRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		prompt := req.Contents[0].Parts[0].Text
		if strings.Contains(prompt, "Six by") {
			t.Errorf("prompt contains more than five tracks: %q", prompt)
		}
		_, _ = w.Write([]byte(generateResponseBody("ok")))
	}))
	defer server.Close()

	client := NewClient("test-key", nil)
	client.baseURL = server.URL

	if _, err := client.Analyze(context.Background(), testTracks(7)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestAnalyzeNoTracks(t *testing.T) {
	client := NewClient("test-key", nil)

	_, err := client.Analyze(context.Background(), nil)
	if !errors.Is(err, ErrNoTracks) {
		t.Fatalf("error = %v, want ErrNoTracks", err)
	}
}

func TestAnalyzeAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error": {"code": 400, "message": "API key not valid"}}`))
	}))
	defer server.Close()

	client := NewClient("bad-key", nil)
	client.baseURL = server.URL

	_, err := client.Analyze(context.Background(), testTracks(1))
	if err == nil || !strings.Contains(err.Error(), "API key not valid") {
		t.Fatalf("error = %v, want API error message", err)
	}
}

func TestAnalyzeEmptyCandidates(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"candidates": []}`))
	}))
	defer server.Close()

	client := NewClient("test-key", nil)
	client.baseURL = server.URL

	_, err := client.Analyze(context.Background(), testTracks(1))
	if !errors.Is(err, ErrEmptyAnalysis) {
		t.Fatalf("error = %v, want ErrEmptyAnalysis", err)
	}
}

func TestMemoryCacheExpiry(t *testing.T) {
	cache := NewMemoryCache()
	ctx := context.Background()

	cache.Set(ctx, "k", "v", 10*time.Millisecond)
	if got, ok := cache.Get(ctx, "k"); !ok || got != "v" {
		t.Fatalf("Get = %q, %v; want v, true", got, ok)
	}

	time.Sleep(20 * time.Millisecond)
	if _, ok := cache.Get(ctx, "k"); ok {
		t.Error("entry should have expired")
	}
}

func TestCacheKeyDependsOnTracks(t *testing.T) {
	a := cacheKey(testTracks(2))
	b := cacheKey(testTracks(3))
	if a == b {
		t.Errorf("distinct track sets share cache key %q", a)
	}
}
