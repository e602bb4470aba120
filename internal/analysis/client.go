// Package analysis generates a playful listening personality write-up from
// a user's top tracks, using the Gemini text generation API. Results are
// cached for a day keyed on the exact track set.
package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/soundeck/go-spotify-rewind/internal/wrapped"
)

const (
	geminiBaseURL = "https://generativelanguage.googleapis.com/v1beta"
	geminiModel   = "gemini-pro"

	// cacheTTL is how long one analysis stays valid for the same tracks.
	cacheTTL = 24 * time.Hour

	// maxTracks bounds how many tracks feed the prompt.
	maxTracks = 5
)

// Sentinel errors.
var (
	// ErrNoTracks is returned when there is nothing to analyze.
	ErrNoTracks = errors.New("no tracks to analyze")

	// ErrEmptyAnalysis is returned when the model produced no text.
	ErrEmptyAnalysis = errors.New("model returned no analysis")
)

const promptTemplate = `Based on these songs:
%s

Generate a fun 3-paragraph personality analysis about someone who likes these songs.
Paragraph 1: Their likely personality traits and how they might think
Paragraph 2: Their potential style and fashion preferences
Paragraph 3: Their probable hobbies and interests

Keep it positive and playful, focusing on the overall vibe rather than specific songs.`

// Client calls the Gemini generateContent endpoint.
type Client struct {
	apiKey     string
	httpClient *http.Client
	baseURL    string
	cache      Cache
}

// NewClient creates an analysis client. A nil cache falls back to an
// in-memory one.
func NewClient(apiKey string, cache Cache) *Client {
	if cache == nil {
		cache = NewMemoryCache()
	}
	return &Client{
		apiKey: apiKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		baseURL: geminiBaseURL,
		cache:   cache,
	}
}

// Analyze produces the personality write-up for the given tracks. Only the
// first five tracks are considered, matching the prompt size the model
// handles well. Identical track sets are served from cache.
func (c *Client) Analyze(ctx context.Context, tracks []wrapped.Track) (string, error) {
	if len(tracks) == 0 {
		return "", ErrNoTracks
	}
	if len(tracks) > maxTracks {
		tracks = tracks[:maxTracks]
	}

	key := cacheKey(tracks)
	if cached, ok := c.cache.Get(ctx, key); ok {
		return cached, nil
	}

	var lines []string
	for _, t := range tracks {
		lines = append(lines, fmt.Sprintf("%s by %s", t.Name, t.Artist))
	}
	prompt := fmt.Sprintf(promptTemplate, strings.Join(lines, "\n"))

	text, err := c.generate(ctx, prompt)
	if err != nil {
		return "", err
	}

	c.cache.Set(ctx, key, text, cacheTTL)
	return text, nil
}

// cacheKey derives the cache entry name from the track identifiers.
func cacheKey(tracks []wrapped.Track) string {
	ids := make([]string, len(tracks))
	for i, t := range tracks {
		ids[i] = t.SpotifyID
	}
	return "music_analysis_" + strings.Join(ids, "_")
}

// Request/response shapes for the generateContent endpoint.
type generateRequest struct {
	Contents []content `json:"contents"`
}

type content struct {
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

type generateResponse struct {
	Candidates []struct {
		Content content `json:"content"`
	} `json:"candidates"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (c *Client) generate(ctx context.Context, prompt string) (string, error) {
	payload, err := json.Marshal(generateRequest{
		Contents: []content{{Parts: []part{{Text: prompt}}}},
	})
	if err != nil {
		return "", fmt.Errorf("encoding request: %w", err)
	}

	reqURL := fmt.Sprintf("%s/models/%s:generateContent?key=%s", c.baseURL, geminiModel, c.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("reading response body: %w", err)
	}

	var parsed generateResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("parsing response: %w", err)
	}
	if parsed.Error != nil {
		return "", fmt.Errorf("generation failed: %s (code %d)", parsed.Error.Message, parsed.Error.Code)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("generation failed: unexpected status %d", resp.StatusCode)
	}

	for _, cand := range parsed.Candidates {
		for _, p := range cand.Content.Parts {
			if p.Text != "" {
				return p.Text, nil
			}
		}
	}
	return "", ErrEmptyAnalysis
}
