// Package synthesizer consumes the external TTS capability, producing raw
// 16 kHz 16-bit mono PCM from finalized text.
package synthesizer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/anchordesk/backend/internal/models"
)

type synthesizeRequest struct {
	Text        string `json:"text"`
	LanguageKey string `json:"language_key"`
}

// Service synthesizes speech audio for a language.
type Service interface {
	Synthesize(ctx context.Context, text, languageKey string) ([]byte, error)
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

// NewClient creates a synthesizer client.
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

// Synthesize returns the PCM payload for text in the given language.
func (c *Client) Synthesize(ctx context.Context, text, languageKey string) ([]byte, error) {
	if text == "" {
		return nil, fmt.Errorf("%w: empty text", models.ErrValidation)
	}
	body, err := json.Marshal(synthesizeRequest{Text: text, LanguageKey: languageKey})
	if err != nil {
		return nil, fmt.Errorf("%w: marshal request: %v", models.ErrSynthesis, err)
	}

	var lastErr error
	for attempt := 0; attempt < c.retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("%w: %v", models.ErrSynthesis, ctx.Err())
			case <-time.After(c.backoff * time.Duration(attempt)):
			}
		}
		pcm, err := c.call(ctx, body)
		if err == nil {
			return pcm, nil
		}
		lastErr = err
		c.logger.Warn("synthesizer call failed", zap.Int("attempt", attempt+1), zap.Error(err))
	}
	return nil, fmt.Errorf("%w: %v", models.ErrSynthesis, lastErr)
}

func (c *Client) call(ctx context.Context, body []byte) ([]byte, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "audio/L16")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("synthesizer status %d", resp.StatusCode)
	}
	pcm, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read audio: %w", err)
	}
	if len(pcm) == 0 {
		return nil, fmt.Errorf("empty audio payload")
	}
	return pcm, nil
}
