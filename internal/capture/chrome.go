package capture

import (
	"context"
	"errors"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"

	"xharvest/internal/logging"
)

// Chrome is a Browser backed by a fresh headless Chrome process per Load.
type Chrome struct {
	Headless  bool
	NoSandbox bool
	Width     int
	Height    int
	ExecPath  string
	UserAgent string
	// NavigateTimeout bounds the page load; zero means defaultNavigateTimeout.
	NavigateTimeout time.Duration
	// Linger keeps the session open after the content wait so that late
	// background responses are still recorded.
	Linger time.Duration

	// released, when set, receives the allocator context once Load has torn
	// the session down.
	released func(allocCtx context.Context)
}

const defaultNavigateTimeout = 30 * time.Second

func (c *Chrome) allocatorOptions() []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	opts = append(opts, chromedp.Flag("headless", c.Headless))
	if c.NoSandbox {
		opts = append(opts, chromedp.NoSandbox)
	}
	if c.Width > 0 && c.Height > 0 {
		opts = append(opts, chromedp.WindowSize(c.Width, c.Height))
	}
	if c.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(c.ExecPath))
	}
	if c.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(c.UserAgent))
	}
	return opts
}

// Load runs one isolated session: its own browser process and profile
// directory, both released by the deferred cancels on every return path.
func (c *Chrome) Load(ctx context.Context, page Page) ([]Response, error) {
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, c.allocatorOptions()...)
	if c.released != nil {
		defer c.released(allocCtx)
	}
	defer cancelAlloc()
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)
	defer cancelBrowser()

	rec := newRecorder()
	chromedp.ListenTarget(browserCtx, rec.observe)

	// The first Run starts the browser; it must not carry a deadline,
	// or the deadline would tear the browser down with it.
	if err := chromedp.Run(browserCtx, network.Enable()); err != nil {
		return nil, err
	}

	navTimeout := c.NavigateTimeout
	if navTimeout <= 0 {
		navTimeout = defaultNavigateTimeout
	}
	loadErr := runBounded(browserCtx, navTimeout, chromedp.Navigate(page.URL))
	if loadErr == nil {
		loadErr = runBounded(browserCtx, page.Wait, chromedp.WaitVisible(page.Selector, chromedp.ByQuery))
	}

	if c.Linger > 0 {
		select {
		case <-time.After(c.Linger):
		case <-ctx.Done():
		}
	}
	return c.collect(browserCtx, rec, page.Keep), loadErr
}

// runBounded runs actions under timeout d, reporting an expired bound as
// context.DeadlineExceeded.
func runBounded(browserCtx context.Context, d time.Duration, actions ...chromedp.Action) error {
	ctx, cancel := context.WithTimeout(browserCtx, d)
	defer cancel()
	err := chromedp.Run(ctx, actions...)
	if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return context.DeadlineExceeded
	}
	return err
}

// collect fetches bodies for the kept responses while the session is alive.
func (c *Chrome) collect(browserCtx context.Context, rec *recorder, keep func(string) bool) []Response {
	entries := rec.snapshot()
	out := make([]Response, 0, len(entries))
	for _, e := range entries {
		resp := e.resp
		if keep != nil && keep(resp.URL) {
			var body []byte
			err := chromedp.Run(browserCtx, chromedp.ActionFunc(func(ctx context.Context) error {
				b, err := network.GetResponseBody(e.requestID).Do(ctx)
				body = b
				return err
			}))
			if err != nil {
				logging.Error("capture_body_unavailable", map[string]any{"url": resp.URL, "finished": e.finished, "error": err.Error()})
			}
			resp.Body = body
		}
		out = append(out, resp)
	}
	return out
}
