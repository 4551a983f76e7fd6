// Package capture loads a post page in a browser and hands back the post
// result carried by the page's own background data call.
package capture

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"xharvest/internal/logging"
	"xharvest/internal/metrics"
)

var (
	ErrCaptureTimeout     = errors.New("capture timed out")
	ErrCapture            = errors.New("capture failed")
	ErrNoMatchingResponse = errors.New("no matching response")
	ErrEmptyResult        = errors.New("matching response carried no result")
)

// Response is one background response recorded during a page load.
type Response struct {
	URL          string
	ResourceType string
	Status       int64
	Body         []byte
}

// IsDataFetch reports whether the response came from an XHR or fetch call.
func (r Response) IsDataFetch() bool {
	return r.ResourceType == "XHR" || r.ResourceType == "Fetch"
}

// Page describes one page load.
type Page struct {
	URL      string
	Selector string
	Wait     time.Duration
	// Keep selects the responses whose bodies must be retained.
	Keep func(url string) bool
}

// Browser loads a page in an isolated session that is torn down before Load
// returns. It returns every data-fetch response recorded, even when the load
// itself failed or timed out.
type Browser interface {
	Load(ctx context.Context, page Page) ([]Response, error)
}

type Options struct {
	SiteRoot    string
	StatusPath  string // "{id}" is replaced by the post id
	Endpoint    string // substring of the matched request URL
	ResultPath  string // gjson path of the post result inside the body
	Selector    string
	ContentWait time.Duration
}

// Capturer implements the per-id lookup on top of a Browser.
type Capturer struct {
	browser Browser
	opts    Options
}

func New(b Browser, opts Options) *Capturer {
	return &Capturer{browser: b, opts: opts}
}

// URL builds the lookup URL for a post id.
func (c *Capturer) URL(id string) string {
	root := strings.TrimRight(c.opts.SiteRoot, "/")
	path := strings.TrimLeft(strings.ReplaceAll(c.opts.StatusPath, "{id}", id), "/")
	return root + "/" + path
}

// Capture returns the raw JSON of the post result for id. A timeout waiting
// for the content marker is only an error when nothing matched.
func (c *Capturer) Capture(ctx context.Context, id string) ([]byte, error) {
	if strings.TrimSpace(id) == "" {
		return nil, fmt.Errorf("%w: empty id", ErrCapture)
	}
	start := time.Now()
	defer metrics.ObserveCaptureDuration(start)

	page := Page{
		URL:      c.URL(id),
		Selector: c.opts.Selector,
		Wait:     c.opts.ContentWait,
		Keep:     func(u string) bool { return strings.Contains(u, c.opts.Endpoint) },
	}
	resps, loadErr := c.browser.Load(ctx, page)
	if loadErr != nil {
		logging.Info("capture_load_incomplete", map[string]any{"id": id, "url": page.URL, "error": loadErr.Error(), "recorded": len(resps)})
	}

	matched := false
	for _, r := range resps {
		if !r.IsDataFetch() || !strings.Contains(r.URL, c.opts.Endpoint) {
			continue
		}
		matched = true
		if result := gjson.GetBytes(r.Body, c.opts.ResultPath); result.IsObject() {
			return []byte(result.Raw), nil
		}
	}

	switch {
	case matched:
		return nil, fmt.Errorf("%w: %s", ErrEmptyResult, c.opts.ResultPath)
	case loadErr != nil && errors.Is(loadErr, context.DeadlineExceeded):
		return nil, fmt.Errorf("%w: %v", ErrCaptureTimeout, loadErr)
	case loadErr != nil:
		return nil, fmt.Errorf("%w: %v", ErrCapture, loadErr)
	}
	return nil, fmt.Errorf("%w: %s", ErrNoMatchingResponse, c.opts.Endpoint)
}
