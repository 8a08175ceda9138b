// Package assist generates writing prompts that help keep a journal entry
// going. It talks to a local Ollama server and is independent of storage.
package assist

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Fallback is shown when no prompt could be generated.
const Fallback = "I'm sorry, I couldn't generate a response at this time."

// Generator produces a writing prompt for the text written so far.
type Generator interface {
	GeneratePrompt(ctx context.Context, text string) (string, error)
}

// OllamaClient calls Ollama's /api/generate endpoint without streaming.
type OllamaClient struct {
	baseURL string
	model   string
	http    *http.Client
}

// NewOllamaClient creates a client for the server at baseURL.
// A zero timeout means no client-side timeout beyond ctx.
func NewOllamaClient(baseURL, model string, timeout time.Duration) *OllamaClient {
	return &OllamaClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
		http:    &http.Client{Timeout: timeout},
	}
}

type generateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

type generateResponse struct {
	Response string `json:"response"`
}

// GeneratePrompt asks the model for a short question or prompt that helps
// the writer continue. Non-200 responses, transport failures and empty
// responses are errors.
func (c *OllamaClient) GeneratePrompt(ctx context.Context, text string) (string, error) {
	body, err := json.Marshal(generateRequest{
		Model:  c.model,
		Prompt: BuildPrompt(text),
		Stream: false,
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("ollama request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("ollama returned %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var out generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode ollama response: %w", err)
	}
	if strings.TrimSpace(out.Response) == "" {
		return "", fmt.Errorf("ollama returned an empty response")
	}
	return out.Response, nil
}

// BuildPrompt wraps the entry text in the assistant instructions.
func BuildPrompt(text string) string {
	var b strings.Builder
	b.WriteString("As a gentle writing assistant, provide a brief prompt or question to help the user continue their journal entry. ")
	b.WriteString("Be supportive, non-judgmental, and focus on maintaining the user's writing momentum.\n\n")
	b.WriteString("Here's what they've written so far:\n\n")
	b.WriteString(text)
	b.WriteString("\n\nRespond with a short, encouraging question or prompt to help them continue writing.\n")
	return b.String()
}
