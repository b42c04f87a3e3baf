// Package completion rewrites a code fragment according to a natural-language
// instruction using the Anthropic Messages API.
package completion

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const (
	// DefaultModel is used when no model is configured.
	DefaultModel = "claude-3-5-sonnet-20241022"
	// DefaultBaseURL is the public API endpoint.
	DefaultBaseURL = "https://api.anthropic.com"
	// DefaultMaxTokens caps the length of a rewrite.
	DefaultMaxTokens = 4096
	// DefaultTemperature keeps rewrites close to deterministic.
	DefaultTemperature = 0.05

	apiVersion   = "2023-06-01"
	messagesPath = "/v1/messages"
	fence        = "```"
)

const systemPrompt = "You are a code modification assistant. Your task is to rewrite code " +
	"according to given instructions. Always return only the modified code, " +
	"wrapped in triple backticks. Do not include any explanations or " +
	"additional text. Keep the same indent levels as in the original code."

// Config holds the resolved settings for a Client.
type Config struct {
	APIKey      string
	Model       string
	BaseURL     string
	MaxTokens   int
	// Temperature is sent as given, zero included; nil means the default.
	Temperature *float64
	// Timeout bounds a single request; zero means no timeout.
	Timeout time.Duration
	// HTTPClient overrides the transport. Timeout is ignored when set.
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Client performs one messages request per Complete call. It holds no
// per-call state and is safe for concurrent use.
type Client struct {
	apiKey      string
	model       string
	endpoint    string
	maxTokens   int
	temperature float64
	http        *http.Client
	log         *slog.Logger
}

// New creates a client from cfg, filling unset fields with defaults.
// A missing API key is reported by Complete, not here.
func New(cfg Config) *Client {
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}
	temperature := DefaultTemperature
	if cfg.Temperature != nil {
		temperature = *cfg.Temperature
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		apiKey:      cfg.APIKey,
		model:       cfg.Model,
		endpoint:    strings.TrimRight(cfg.BaseURL, "/") + messagesPath,
		maxTokens:   cfg.MaxTokens,
		temperature: temperature,
		http:        httpClient,
		log:         logger,
	}
}

// Model returns the model identifier sent with every request.
func (c *Client) Model() string { return c.model }

type messagesRequest struct {
	Model         string    `json:"model"`
	MaxTokens     int       `json:"max_tokens"`
	Temperature   float64   `json:"temperature"`
	System        string    `json:"system"`
	StopSequences []string  `json:"stop_sequences"`
	Messages      []message `json:"messages"`
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type messagesResponse struct {
	Type    string            `json:"type"`
	Content []json.RawMessage `json:"content"`
	Error   *apiErrorBody     `json:"error,omitempty"`
}

type apiErrorBody struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// Complete asks the model to rewrite fragment according to instruction and
// returns the cleaned rewrite.
func (c *Client) Complete(ctx context.Context, instruction, fragment string) (string, error) {
	if c.apiKey == "" {
		return "", ErrMissingCredential
	}

	data, err := json.Marshal(c.buildRequest(instruction, fragment))
	if err != nil {
		return "", fmt.Errorf("encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrNetwork, err)
	}
	c.setHeaders(httpReq)

	start := time.Now()
	resp, err := c.http.Do(httpReq)
	if err != nil {
		c.log.Warn("completion request failed", "error", err)
		return "", fmt.Errorf("%w: %w", ErrNetwork, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: read response: %w", ErrNetwork, err)
	}

	c.log.Debug("completion response",
		"model", c.model,
		"status", resp.StatusCode,
		"fragment_bytes", len(fragment),
		"elapsed", time.Since(start),
	)

	raw, err := parseResponse(resp.StatusCode, body)
	if err != nil {
		c.log.Warn("completion rejected", "status", resp.StatusCode, "error", err)
		return "", err
	}
	return Clean(raw), nil
}

func (c *Client) buildRequest(instruction, fragment string) messagesRequest {
	return messagesRequest{
		Model:         c.model,
		MaxTokens:     c.maxTokens,
		Temperature:   c.temperature,
		System:        systemPrompt,
		StopSequences: []string{"\n" + fence},
		Messages: []message{
			{Role: "user", Content: userPrompt(instruction, fragment)},
			{Role: "assistant", Content: fence},
		},
	}
}

func userPrompt(instruction, fragment string) string {
	var sb strings.Builder
	sb.WriteString("Instructions for code modification:\n")
	sb.WriteString(instruction)
	sb.WriteString("\n\nOriginal code:\n")
	sb.WriteString(fence + "\n")
	sb.WriteString(fragment)
	sb.WriteString("\n" + fence + "\n\n")
	sb.WriteString("Provide only the modified code wrapped in triple backticks. No explanations needed. ")
	sb.WriteString("Keep the same indent levels as in the original code.")
	return sb.String()
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-API-Key", c.apiKey)
	req.Header.Set("anthropic-version", apiVersion)
}

// parseResponse extracts the text of the first content block.
func parseResponse(status int, body []byte) (string, error) {
	var result messagesResponse
	decodeErr := json.Unmarshal(body, &result)

	if status < 200 || status >= 300 {
		apiErr := &APIError{StatusCode: status, Message: truncate(string(body), 512)}
		if decodeErr == nil && result.Error != nil {
			apiErr.Type = result.Error.Type
			apiErr.Message = result.Error.Message
		}
		return "", apiErr
	}
	if decodeErr != nil {
		return "", fmt.Errorf("%w: failed to parse response: %w (body: %s)", ErrRemote, decodeErr, truncate(string(body), 512))
	}
	if result.Error != nil || result.Type == "error" {
		apiErr := &APIError{StatusCode: status}
		if result.Error != nil {
			apiErr.Type = result.Error.Type
			apiErr.Message = result.Error.Message
		}
		return "", apiErr
	}

	if len(result.Content) == 0 {
		return "", fmt.Errorf("%w: no content in response: %s", ErrMalformedResponse, truncate(string(body), 512))
	}
	var first struct {
		Text *string `json:"text"`
	}
	if err := json.Unmarshal(result.Content[0], &first); err != nil || first.Text == nil {
		return "", fmt.Errorf("%w: failed to get completion text from response: %s", ErrMalformedResponse, truncate(string(body), 512))
	}
	return *first.Text, nil
}

// Clean strips up to three backticks from each end of raw, then a single
// leading newline. Nothing else about the text is touched.
func Clean(raw string) string {
	for i := 0; i < len(fence) && strings.HasPrefix(raw, "`"); i++ {
		raw = raw[1:]
	}
	for i := 0; i < len(fence) && strings.HasSuffix(raw, "`"); i++ {
		raw = raw[:len(raw)-1]
	}
	return strings.TrimPrefix(raw, "\n")
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
