// Package drafting consumes the external Drafting Service that turns a raw
// meeting summary into a broadcast script with highlights, reflections and
// sharp questions. The result is an untrusted draft requiring human review.
package drafting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/anchordesk/backend/internal/models"
)

// Request is the input to one drafting call.
type Request struct {
	Title           string `json:"title"`
	Speaker         string `json:"speaker"`
	SummaryRaw      string `json:"summary_raw"`
	QuestionPersona string `json:"question_persona"`
}

// Result is the drafted content pack.
type Result struct {
	Script      string   `json:"script"`
	Highlights  []string `json:"highlights"`
	Reflections []string `json:"reflections"`
	Questions   []string `json:"questions"`
}

// Service produces draft content from a raw summary.
type Service interface {
	Draft(ctx context.Context, req Request) (*Result, error)
}

// Client is the HTTP implementation of Service.
type Client struct {
	endpoint string
	apiKey   string
	http     *http.Client
	retries  int
	backoff  time.Duration
	logger   *zap.Logger
}

// NewClient creates a drafting client.
func NewClient(endpoint, apiKey string, timeout time.Duration, retries int, backoff time.Duration, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if retries < 1 {
		retries = 1
	}
	return &Client{
		endpoint: endpoint,
		apiKey:   apiKey,
		http:     &http.Client{Timeout: timeout},
		retries:  retries,
		backoff:  backoff,
		logger:   logger,
	}
}

// Draft calls the drafting endpoint with bounded retries.
func (c *Client) Draft(ctx context.Context, req Request) (*Result, error) {
	if req.SummaryRaw == "" {
		return nil, fmt.Errorf("%w: empty summary", models.ErrValidation)
	}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("%w: marshal request: %v", models.ErrGeneration, err)
	}

	var lastErr error
	for attempt := 0; attempt < c.retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("%w: %v", models.ErrGeneration, ctx.Err())
			case <-time.After(c.backoff * time.Duration(attempt)):
			}
		}
		result, err := c.call(ctx, body)
		if err == nil {
			return result, nil
		}
		lastErr = err
		c.logger.Warn("drafting call failed", zap.Int("attempt", attempt+1), zap.Error(err))
	}
	return nil, fmt.Errorf("%w: %v", models.ErrGeneration, lastErr)
}

func (c *Client) call(ctx context.Context, body []byte) (*Result, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("drafting status %d", resp.StatusCode)
	}
	var result Result
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if result.Script == "" {
		return nil, fmt.Errorf("drafting returned empty script")
	}
	return &result, nil
}
