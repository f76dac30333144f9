package updatecheck

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// httpTimeout is the timeout for feed requests
const httpTimeout = 10 * time.Second

// FeedClient reads a GitHub-style releases feed. The feed may be a single
// release object (".../releases/latest") or a list of releases.
type FeedClient struct {
	logger     *zap.Logger
	httpClient *http.Client
	url        string
}

// NewFeedClient creates a client for feedURL
func NewFeedClient(logger *zap.Logger, feedURL string) *FeedClient {
	return &FeedClient{
		logger:     logger,
		httpClient: &http.Client{Timeout: httpTimeout},
		url:        feedURL,
	}
}

// GetRelease fetches the newest release. Drafts are always skipped and
// prereleases only count when includePrereleases is set.
func (c *FeedClient) GetRelease(ctx context.Context, includePrereleases bool) (*Release, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build feed request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Debug("Failed to fetch release feed", zap.Error(err))
		return nil, fmt.Errorf("failed to fetch release feed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.logger.Debug("Release feed returned non-200 status",
			zap.Int("status_code", resp.StatusCode),
			zap.String("url", c.url))
		return nil, fmt.Errorf("release feed returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read release feed: %w", err)
	}

	body = bytes.TrimSpace(body)
	if len(body) > 0 && body[0] == '[' {
		var releases []Release
		if err := json.Unmarshal(body, &releases); err != nil {
			return nil, fmt.Errorf("failed to decode releases: %w", err)
		}
		// feeds list newest first
		for i := range releases {
			r := releases[i]
			if r.Draft || (r.Prerelease && !includePrereleases) {
				continue
			}
			return &r, nil
		}
		return nil, fmt.Errorf("no releases found")
	}

	var release Release
	if err := json.Unmarshal(body, &release); err != nil {
		return nil, fmt.Errorf("failed to decode release: %w", err)
	}
	if release.TagName == "" {
		return nil, fmt.Errorf("release has no tag")
	}
	return &release, nil
}
