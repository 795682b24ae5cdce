// Cadenza - Library Reconciliation for Subsonic Music Servers
// Copyright 2026 The Cadenza Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/cadenza-music/cadenza

package sources

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/goccy/go-json"

	"github.com/cadenza-music/cadenza/internal/config"
	"github.com/cadenza-music/cadenza/internal/metrics"
)

// Provider endpoints and default models.
const (
	geminiBase             = "https://generativelanguage.googleapis.com"
	openRouterBase         = "https://openrouter.ai"
	defaultGeminiModel     = "gemini-2.5-flash"
	defaultOpenRouterModel = "tngtech/deepseek-r1t2-chimera:free"
)

// jsonArray pulls the first JSON array out of a chatty model response.
var jsonArray = regexp.MustCompile(`(?s)\[.*\]`)

// promptTemplate asks for strict-JSON recommendations seeded by listening
// history.
const promptTemplate = `You are a music expert assistant. Based on the following list of recently listened tracks in JSON format, please recommend 25 new songs that this listener might like.
The recommendations should be for a user who enjoys the artists and genres represented in the listening history. Only recommend tracks that are not already in the listening history.

My listening history:
%s

Please provide your response as a single JSON array of objects, where each object represents a recommended track and has the keys "artist", "title", and "album". Do not include any other text or explanations in your response, only the JSON array.

Example response format:
[
  {"artist": "Example Artist 1", "title": "Example Song 1", "album": "Example Album 1"},
  {"artist": "Example Artist 2", "title": "Example Song 2", "album": "Example Album 2"}
]`

// ScrobbleSource supplies the listening history the prompt is seeded with.
type ScrobbleSource interface {
	WeeklyScrobbles(ctx context.Context, count int) ([]Scrobble, error)
}

// LLM asks a language model for recommendations based on the user's recent
// listens.
type LLM struct {
	client    *resty.Client
	provider  string
	apiKey    string
	model     string
	scrobbles ScrobbleSource
}

// NewLLM creates the provider. cfg.Provider selects gemini or openrouter.
func NewLLM(cfg config.LLMConfig, scrobbles ScrobbleSource) *LLM {
	l := &LLM{
		client:    resty.New().SetTimeout(2 * time.Minute),
		provider:  cfg.Provider,
		apiKey:    cfg.APIKey,
		model:     cfg.Model,
		scrobbles: scrobbles,
	}
	switch cfg.Provider {
	case "openrouter":
		l.client.SetBaseURL(openRouterBase).SetAuthToken(cfg.APIKey)
		if l.model == "" {
			l.model = defaultOpenRouterModel
		}
	default:
		l.client.SetBaseURL(geminiBase)
		if l.model == "" {
			l.model = defaultGeminiModel
		}
	}
	return l
}

// Source implements Provider.
func (l *LLM) Source() Source { return SourceLLM }

// Fetch implements Provider: gather a week of scrobbles, prompt the model,
// and parse the JSON array out of its reply. No scrobbles means nothing to
// seed with, which is not an error.
func (l *LLM) Fetch(ctx context.Context) ([]Recommendation, error) {
	scrobbles, err := l.scrobbles.WeeklyScrobbles(ctx, 100)
	if err != nil {
		return nil, fmt.Errorf("llm: %w", err)
	}
	if len(scrobbles) == 0 {
		return nil, nil
	}

	history, err := json.MarshalIndent(scrobbles, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("llm: %w", err)
	}
	prompt := fmt.Sprintf(promptTemplate, history)

	var text string
	switch l.provider {
	case "openrouter":
		text, err = l.completeOpenRouter(ctx, prompt)
	default:
		text, err = l.completeGemini(ctx, prompt)
	}
	if err != nil {
		return nil, err
	}

	raw := jsonArray.FindString(text)
	if raw == "" {
		return nil, fmt.Errorf("llm: no JSON array in %s response", l.provider)
	}

	var parsed []struct {
		Artist string `json:"artist"`
		Title  string `json:"title"`
		Album  string `json:"album"`
	}
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return nil, fmt.Errorf("llm: malformed recommendation array: %w", err)
	}

	var recs []Recommendation
	for _, p := range parsed {
		if p.Artist == "" || p.Title == "" {
			continue
		}
		recs = append(recs, Recommendation{
			Artist: p.Artist,
			Title:  p.Title,
			Album:  p.Album,
			Source: SourceLLM,
		})
	}

	metrics.SourceRecommendations.WithLabelValues(string(SourceLLM)).Add(float64(len(recs)))
	return recs, nil
}

func (l *LLM) completeGemini(ctx context.Context, prompt string) (string, error) {
	var payload struct {
		Candidates []struct {
			Content struct {
				Parts []struct {
					Text string `json:"text"`
				} `json:"parts"`
			} `json:"content"`
		} `json:"candidates"`
	}

	resp, err := l.client.R().
		SetContext(ctx).
		SetQueryParam("key", l.apiKey).
		SetBody(map[string]any{
			"contents": []map[string]any{
				{"parts": []map[string]string{{"text": prompt}}},
			},
		}).
		SetResult(&payload).
		Post("/v1beta/models/" + l.model + ":generateContent")
	if err != nil {
		return "", fmt.Errorf("gemini: %w", err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("gemini: HTTP %d", resp.StatusCode())
	}
	if len(payload.Candidates) == 0 || len(payload.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("gemini: empty response")
	}
	return payload.Candidates[0].Content.Parts[0].Text, nil
}

func (l *LLM) completeOpenRouter(ctx context.Context, prompt string) (string, error) {
	var payload struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}

	resp, err := l.client.R().
		SetContext(ctx).
		SetBody(map[string]any{
			"model":    l.model,
			"messages": []map[string]string{{"role": "user", "content": prompt}},
		}).
		SetResult(&payload).
		Post("/api/v1/chat/completions")
	if err != nil {
		return "", fmt.Errorf("openrouter: %w", err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("openrouter: HTTP %d", resp.StatusCode())
	}
	if len(payload.Choices) == 0 {
		return "", fmt.Errorf("openrouter: empty response")
	}
	return payload.Choices[0].Message.Content, nil
}
