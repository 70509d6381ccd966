// Package llm provides the anomaly classifier client and the keyword-based
// response classification.
//
// The client performs exactly one bounded request per call and never retries;
// retry policy, if any, belongs to the caller across scan sessions. Every
// failure mode (network, timeout, HTTP error status, malformed or empty
// body) folds into an erred ClassificationResult rather than an error, so
// classifier unavailability can never crash a scan.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ptnguyen/devsentry/internal/model"
)

const systemPrompt = `You are an expert at analyzing operating-system event logs for hardware problems: device disconnects, driver errors, and failure patterns. Base your judgment only on the data provided, call a pattern abnormal only when it is clear, and recommend further monitoring when uncertain. Answer with a one-sentence verdict first, then the pattern you found, the most likely cause, and a recommendation.`

const promptHeader = `Analyze the following event log digest for abnormal hardware behavior. Repeated occurrences of the same event in a short window, chains of related events around one point in time, and unexpected device removals all count as abnormal.

`

// Config holds the settings for one classifier client.
type Config struct {
	APIURL      string
	APIKey      string
	Model       string
	Temperature float64
	Timeout     time.Duration
	// Keywords whose presence in the response marks the verdict abnormal.
	// Matched case-insensitively as substrings, reported in this order.
	AbnormalKeywords []string
}

// Client sends digests to an OpenAI-compatible chat completions endpoint.
type Client struct {
	cfg        Config
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient creates a classifier client. The per-request timeout comes from
// cfg.Timeout; the caller's context can cancel earlier.
func NewClient(cfg Config, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{},
		logger:     logger,
	}
}

// chat completions wire types, request side.
type chatRequest struct {
	Messages    []chatMessage `json:"messages"`
	Model       string        `json:"model"`
	Stream      bool          `json:"stream"`
	Temperature float64       `json:"temperature"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Classify runs one classification attempt for the given digest text and
// returns the terminal result. It never returns a Go error: unreachable or
// unusable responses yield Erred=true with IsAbnormal=false, the fail-safe
// "no verdict" default.
//
// Cancellation of ctx (for example an outer shutdown) produces a complete
// erred result, never a partial one.
func (c *Client) Classify(ctx context.Context, digestText string) model.ClassificationResult {
	raw, err := c.request(ctx, digestText)
	if err != nil {
		c.logger.Warn("classifier call failed", zap.Error(err))
		return model.ClassificationResult{Erred: true, ErrorDetail: err.Error()}
	}

	abnormal, matched := ClassifyResponse(raw, c.cfg.AbnormalKeywords)
	return model.ClassificationResult{
		RawResponse:     raw,
		IsAbnormal:      abnormal,
		MatchedKeywords: matched,
	}
}

// request performs the single bounded HTTP call and returns the raw response
// text. An empty or structurally invalid body is an error, treated the same
// as a network failure.
func (c *Client) request(ctx context.Context, digestText string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	payload := chatRequest{
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: promptHeader + digestText},
		},
		Model:       c.cfg.Model,
		Stream:      false,
		Temperature: c.cfg.Temperature,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.APIURL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	c.logger.Debug("sending classification request", zap.String("model", c.cfg.Model))
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("classifier request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("reading classifier response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("classifier returned status %d: %s", resp.StatusCode, firstBytes(respBody, 256))
	}

	var parsed chatResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", fmt.Errorf("decoding classifier response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("classifier response has no choices")
	}
	content := parsed.Choices[0].Message.Content
	if strings.TrimSpace(content) == "" {
		return "", fmt.Errorf("classifier response content is empty")
	}

	return content, nil
}

func firstBytes(b []byte, n int) string {
	if len(b) > n {
		b = b[:n]
	}
	return string(b)
}
