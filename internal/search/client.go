// Package search adapts the external search engine and interaction
// recorder over HTTP.
package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/homewatch/homewatch/internal/domain"
)

// Config holds search engine connection settings.
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// Client calls the search engine's HTTP API. An empty base URL makes
// every search return no results; useful for local bring-up without an
// engine.
type Client struct {
	cfg    Config
	http   *http.Client
	logger *zap.Logger
}

// NewClient creates a search engine client.
func NewClient(cfg Config, logger *zap.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Client{
		cfg:    cfg,
		http:   &http.Client{Timeout: cfg.Timeout},
		logger: logger,
	}
}

// Search runs one ranked search.
func (c *Client) Search(ctx context.Context, req domain.SearchRequest) ([]domain.MatchResult, error) {
	if c.cfg.BaseURL == "" {
		c.logger.Debug("search engine not configured, returning empty results",
			zap.String("user_id", req.UserID))
		return nil, nil
	}

	var resp struct {
		Results []domain.MatchResult `json:"results"`
	}
	if err := c.post(ctx, "/v1/search", req, &resp); err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	return resp.Results, nil
}

// Record forwards one user-action record for offline learning.
func (c *Client) Record(ctx context.Context, userID string, action domain.ActionRecord) error {
	if c.cfg.BaseURL == "" {
		return nil
	}

	payload := struct {
		UserID string              `json:"user_id"`
		Action domain.ActionRecord `json:"action"`
	}{UserID: userID, Action: action}

	if err := c.post(ctx, "/v1/interactions", payload, nil); err != nil {
		return fmt.Errorf("record interaction: %w", err)
	}
	return nil
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("engine returned %d: %s", resp.StatusCode, string(body))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
