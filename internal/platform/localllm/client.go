package localllm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

const (
	DefaultURL   = "http://localhost:1234/v1/chat/completions"
	DefaultModel = "gemma-3-12b-it:2"
)

type Options struct {
	URL         string
	Model       string
	Temperature float64
	MaxTokens   int
	HTTPClient  *http.Client
}

// Client talks to a local OpenAI-compatible chat completions server.
type Client struct {
	httpClient  *http.Client
	apiURL      string
	model       string
	temperature float64
	maxTokens   int
}

// NewClient creates a new client for the local LLM.
func NewClient(opts Options) *Client {
	c := &Client{
		httpClient:  opts.HTTPClient,
		apiURL:      opts.URL,
		model:       opts.Model,
		temperature: opts.Temperature,
		maxTokens:   opts.MaxTokens,
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{}
	}
	if c.apiURL == "" {
		c.apiURL = DefaultURL
	}
	if c.model == "" {
		c.model = DefaultModel
	}
	if c.maxTokens <= 0 {
		c.maxTokens = 1024
	}
	return c
}

// Request represents the request body for the local LLM.
type Request struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens"`
}

type Message struct {
	Role    string    `json:"role"`
	Content []Content `json:"content"`
}

type Content struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// Response represents the response from the local LLM.
type Response struct {
	Choices []Choice `json:"choices"`
}

type Choice struct {
	Message ResponseMessage `json:"message"`
}

type ResponseMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// GenerateText sends prompt as a single user message and returns the first
// choice.
func (c *Client) GenerateText(ctx context.Context, prompt string) (string, error) {
	reqBody := Request{
		Model: c.model,
		Messages: []Message{
			{
				Role:    "user",
				Content: []Content{{Type: "text", Text: prompt}},
			},
		},
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
	}

	reqBytes, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL, bytes.NewBuffer(reqBytes))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("received non-OK status code: %d", resp.StatusCode)
	}

	var llmResp Response
	if err := json.NewDecoder(resp.Body).Decode(&llmResp); err != nil {
		return "", fmt.Errorf("failed to decode response body: %w", err)
	}

	if len(llmResp.Choices) == 0 || strings.TrimSpace(llmResp.Choices[0].Message.Content) == "" {
		return "", fmt.Errorf("no content found in response")
	}
	return llmResp.Choices[0].Message.Content, nil
}
