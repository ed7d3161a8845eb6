// Package translator consumes the external Translator capability. The
// backend treats it as opaque: text in, translated text out.
package translator

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

// Package-level request/response shapes for the package endpoint, which
// translates a report's title, script and highlights in one call so the
// pieces stay terminologically consistent.
type packageRequest struct {
	Title          string   `json:"title"`
	Script         string   `json:"script"`
	Highlights     []string `json:"highlights"`
	TargetLanguage string   `json:"target_language"`
}

// PackageResult is a consistently translated report bundle.
type PackageResult struct {
	Title      string   `json:"title"`
	Script     string   `json:"script"`
	Highlights []string `json:"highlights"`
}

type textRequest struct {
	Text           string `json:"text"`
	TargetLanguage string `json:"target_language"`
}

type textResponse struct {
	Text string `json:"text"`
}

// Service translates report content into a target language.
type Service interface {
	Translate(ctx context.Context, text, targetLanguage string) (string, error)
	TranslatePackage(ctx context.Context, title, script string, highlights []string, targetLanguage string) (*PackageResult, error)
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

// NewClient creates a translator client.
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

// Translate translates a single text into the target language.
func (c *Client) Translate(ctx context.Context, text, targetLanguage string) (string, error) {
	if text == "" {
		return "", nil
	}
	var out textResponse
	if err := c.post(ctx, c.endpoint+"/translate", textRequest{Text: text, TargetLanguage: targetLanguage}, &out); err != nil {
		return "", fmt.Errorf("%w: %v", models.ErrTranslation, err)
	}
	if out.Text == "" {
		return "", fmt.Errorf("%w: empty translation", models.ErrTranslation)
	}
	return out.Text, nil
}

// TranslatePackage translates title, script and highlights together.
func (c *Client) TranslatePackage(ctx context.Context, title, script string, highlights []string, targetLanguage string) (*PackageResult, error) {
	req := packageRequest{Title: title, Script: script, Highlights: highlights, TargetLanguage: targetLanguage}
	var out PackageResult
	if err := c.post(ctx, c.endpoint+"/translate-package", req, &out); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrTranslation, err)
	}
	if out.Script == "" {
		return nil, fmt.Errorf("%w: empty translated script", models.ErrTranslation)
	}
	return &out, nil
}

func (c *Client) post(ctx context.Context, url string, in, out interface{}) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	var lastErr error
	for attempt := 0; attempt < c.retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(c.backoff * time.Duration(attempt)):
			}
		}
		lastErr = c.doOnce(ctx, url, body, out)
		if lastErr == nil {
			return nil
		}
		c.logger.Warn("translator call failed", zap.Int("attempt", attempt+1), zap.Error(lastErr))
	}
	return lastErr
}

func (c *Client) doOnce(ctx context.Context, url string, body []byte, out interface{}) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	resp, err := c.http.Do(httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("translator status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
