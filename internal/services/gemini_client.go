package services

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ahmetcoskunkizilkaya/plainnow-backend/internal/config"
	"github.com/ahmetcoskunkizilkaya/plainnow-backend/internal/metrics"
)

// Explanation styles accepted alongside a submission.
const (
	StyleSummary    = "30_second_summary"
	StyleELI5       = "explain_like_im_5"
	StyleActionOnly = "action_items_only"
)

var styleDirectives = map[string]string{
	StyleSummary:    "Provide a concise 30-second summary. Be brief and professional.",
	StyleELI5:       "Explain it like I am 5 years old. Use very simple analogies and language.",
	StyleActionOnly: "Focus heavily on what the reader should do next. Keep the meaning very brief.",
}

const analysisInstruction = `You are PlainNow's clarity engine. You turn confusing real-world documents (bank emails, college notices, insurance text, government letters) into plain language.

Rules:
1. Translate jargon into simple human language.
2. Be objective and calm.
3. This is NOT legal or medical advice.
4. Return ONLY a raw JSON object, no markdown, matching exactly:
{"meaning":"plain explanation of what the document says","actions":["next step", "..."],"riskLevel":"Low" | "Medium" | "High","riskReason":"short reason for the risk level"}`

const analysisClosingPrompt = "Please analyze the provided content and return the meaning, action items and risk assessment as instructed."

// GenerateRequest is one multimodal analysis call. At least one of Text or
// File must be set.
type GenerateRequest struct {
	Text     string
	File     []byte
	MimeType string
	Style    string
}

// Generator is the AI Provider boundary: it returns the model's raw text.
type Generator interface {
	Generate(ctx context.Context, req GenerateRequest) (string, error)
}

type GeminiClient struct {
	apiKey  string
	baseURL string
	model   string
	client  *http.Client
}

func NewGeminiClient(cfg *config.Config, httpClient *http.Client) *GeminiClient {
	if httpClient == nil {
		timeout := cfg.AITimeout
		if timeout <= 0 {
			timeout = 60 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	baseURL := strings.TrimRight(cfg.GeminiAPIURL, "/")
	if baseURL == "" {
		baseURL = "https://generativelanguage.googleapis.com/v1beta"
	}
	model := strings.TrimSpace(cfg.GeminiModel)
	if model == "" {
		model = "gemini-2.0-flash"
	}

	return &GeminiClient{
		apiKey:  strings.TrimSpace(cfg.GeminiAPIKey),
		baseURL: baseURL,
		model:   model,
		client:  httpClient,
	}
}

type geminiRequest struct {
	SystemInstruction *geminiContent          `json:"systemInstruction,omitempty"`
	Contents          []geminiContent         `json:"contents"`
	GenerationConfig  *geminiGenerationConfig `json:"generationConfig,omitempty"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text       string            `json:"text,omitempty"`
	InlineData *geminiInlineData `json:"inlineData,omitempty"`
}

type geminiInlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type geminiGenerationConfig struct {
	Temperature      float64 `json:"temperature,omitempty"`
	CandidateCount   int     `json:"candidateCount,omitempty"`
	ResponseMimeType string  `json:"responseMimeType,omitempty"`
}

type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
}

// Generate performs a single generateContent call. Failures are returned
// immediately; there is no retry.
func (g *GeminiClient) Generate(ctx context.Context, req GenerateRequest) (string, error) {
	if g.apiKey == "" {
		return "", ErrProviderConfig
	}
	if strings.TrimSpace(req.Text) == "" && len(req.File) == 0 {
		return "", ErrNoContent
	}

	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(buildGeminiRequest(req)); err != nil {
		return "", fmt.Errorf("failed to encode ai request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.endpoint(), &buf)
	if err != nil {
		return "", fmt.Errorf("failed to build ai request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", g.apiKey)

	start := time.Now()
	resp, err := g.client.Do(httpReq)
	metrics.AIRequestDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.AIRequestsTotal.WithLabelValues("transport_error").Inc()
		return "", &ProviderError{Err: err}
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		metrics.AIRequestsTotal.WithLabelValues("transport_error").Inc()
		return "", &ProviderError{Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		metrics.AIRequestsTotal.WithLabelValues("http_error").Inc()
		return "", &ProviderError{StatusCode: resp.StatusCode, Details: strings.TrimSpace(string(body))}
	}

	var out geminiResponse
	if err := json.Unmarshal(body, &out); err != nil {
		metrics.AIRequestsTotal.WithLabelValues("bad_response").Inc()
		return "", &ProviderError{StatusCode: resp.StatusCode, Details: "undecodable response body", Err: err}
	}
	if len(out.Candidates) == 0 {
		metrics.AIRequestsTotal.WithLabelValues("empty").Inc()
		return "", &ProviderError{Details: "no candidates returned", Err: errors.New("empty response")}
	}

	metrics.AIRequestsTotal.WithLabelValues("ok").Inc()
	return extractCandidateText(out), nil
}

func (g *GeminiClient) endpoint() string {
	return fmt.Sprintf("%s/models/%s:generateContent", g.baseURL, url.PathEscape(g.model))
}

func buildGeminiRequest(req GenerateRequest) geminiRequest {
	instruction := analysisInstruction
	if directive, ok := styleDirectives[req.Style]; ok {
		instruction += "\n\nStyle: " + directive
	}

	var parts []geminiPart
	if text := strings.TrimSpace(req.Text); text != "" {
		parts = append(parts, geminiPart{Text: "Document text:\n" + text})
	}
	if len(req.File) > 0 {
		parts = append(parts, geminiPart{InlineData: &geminiInlineData{
			MimeType: req.MimeType,
			Data:     base64.StdEncoding.EncodeToString(req.File),
		}})
	}
	parts = append(parts, geminiPart{Text: analysisClosingPrompt})

	return geminiRequest{
		SystemInstruction: &geminiContent{Parts: []geminiPart{{Text: instruction}}},
		Contents:          []geminiContent{{Role: "user", Parts: parts}},
		GenerationConfig: &geminiGenerationConfig{
			Temperature:      0.1,
			CandidateCount:   1,
			ResponseMimeType: "application/json",
		},
	}
}

func extractCandidateText(resp geminiResponse) string {
	for _, cand := range resp.Candidates {
		var sb strings.Builder
		for _, part := range cand.Content.Parts {
			sb.WriteString(part.Text)
		}
		if text := strings.TrimSpace(sb.String()); text != "" {
			return text
		}
	}
	return ""
}
