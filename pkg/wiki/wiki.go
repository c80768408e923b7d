// Package wiki fetches short encyclopedia summaries for predicted crop
// labels. Lookups are strictly best effort: any failure collapses to the zero
// Summary so an upload never fails because the knowledge source is down.
package wiki

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

// DefaultBaseURL is the Wikipedia REST API root.
const DefaultBaseURL = "https://en.wikipedia.org/api/rest_v1"

// Summary is what a lookup resolved. A zero Title means nothing was found;
// that is not an error.
type Summary struct {
	Title   string
	Extract string
	URL     string
}

type summaryResponse struct {
	Title       string `json:"title"`
	Extract     string `json:"extract"`
	ContentURLs struct {
		Desktop struct {
			Page string `json:"page"`
		} `json:"desktop"`
	} `json:"content_urls"`
}

// Client queries the summary endpoint with a bounded timeout.
type Client struct {
	base string
	http *http.Client
	log  *zap.Logger
}

func New(base string, timeout time.Duration, log *zap.Logger) *Client {
	if base == "" {
		base = DefaultBaseURL
	}
	return &Client{
		base: strings.TrimRight(base, "/"),
		http: &http.Client{Timeout: timeout},
		log:  log,
	}
}

// Resolve looks up the summary page for a class label. It never returns an
// error; timeouts, non-200 responses and malformed payloads all degrade to
// the zero Summary.
func (c *Client) Resolve(ctx context.Context, label string) Summary {
	title := strings.ReplaceAll(strings.TrimSpace(label), " ", "_")
	if title == "" {
		return Summary{}
	}
	endpoint := fmt.Sprintf("%s/page/summary/%s", c.base, url.PathEscape(title))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		c.log.Debug("wiki request build failed", zap.String("label", label), zap.Error(err))
		return Summary{}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Debug("wiki lookup failed", zap.String("label", label), zap.Error(err))
		return Summary{}
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		c.log.Debug("wiki lookup non-200", zap.String("label", label), zap.Int("status", resp.StatusCode))
		return Summary{}
	}

	var body summaryResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		c.log.Debug("wiki response decode failed", zap.String("label", label), zap.Error(err))
		return Summary{}
	}
	return Summary{
		Title:   body.Title,
		Extract: body.Extract,
		URL:     body.ContentURLs.Desktop.Page,
	}
}
