package capture

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// chromePath finds a Chrome binary or skips the test.
func chromePath(t *testing.T) string {
	t.Helper()
	if p := os.Getenv("XHARVEST_CHROME_PATH"); p != "" {
		return p
	}
	for _, name := range []string{"google-chrome", "google-chrome-stable", "chromium", "chromium-browser", "headless-shell"} {
		if p, err := exec.LookPath(name); err == nil {
			return p
		}
	}
	t.Skip("no Chrome binary found; set XHARVEST_CHROME_PATH")
	return ""
}

const detailBody = `{"data":{"tweetResult":{"result":{"rest_id":"5","legacy":{"id_str":"5","full_text":"hello"}}}}}`

// statusPage serves a page that fetches the post detail in the background
// but never renders the content marker.
func statusPage(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/users/status/5", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, `<!doctype html><html><body><div id="app">loading</div>
<script>fetch("/graphql/x/TweetResultByRestId?variables=5").then(r => r.text()).then(() => { document.title = "fetched"; });</script>
</body></html>`)
	})
	mux.HandleFunc("/graphql/x/TweetResultByRestId", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, detailBody)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestChromeLoadRecordsFetchDespiteContentTimeout(t *testing.T) {
	exe := chromePath(t)
	srv := statusPage(t)

	var allocCtx context.Context
	b := &Chrome{
		Headless:  true,
		NoSandbox: os.Geteuid() == 0,
		ExecPath:  exe,
		Linger:    500 * time.Millisecond,
		released:  func(ctx context.Context) { allocCtx = ctx },
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	resps, err := b.Load(ctx, Page{
		URL:      srv.URL + "/users/status/5",
		Selector: "[data-testid='tweet']",
		Wait:     2 * time.Second,
		Keep:     func(u string) bool { return strings.Contains(u, "TweetResultByRestId") },
	})
	require.ErrorIs(t, err, context.DeadlineExceeded)

	var found *Response
	for i := range resps {
		if strings.Contains(resps[i].URL, "TweetResultByRestId") {
			found = &resps[i]
		}
	}
	require.NotNil(t, found, "detail response not recorded: %+v", resps)
	require.Equal(t, "Fetch", found.ResourceType)
	require.True(t, found.IsDataFetch())
	require.EqualValues(t, http.StatusOK, found.Status)
	require.JSONEq(t, detailBody, string(found.Body))

	require.NotNil(t, allocCtx)
	require.Error(t, allocCtx.Err(), "session still alive after Load returned")
	require.NoError(t, ctx.Err())
}

func TestChromeCaptureEndToEnd(t *testing.T) {
	exe := chromePath(t)
	srv := statusPage(t)

	c := New(&Chrome{Headless: true, NoSandbox: os.Geteuid() == 0, ExecPath: exe, Linger: 300 * time.Millisecond}, Options{
		SiteRoot:    srv.URL,
		StatusPath:  "users/status/{id}",
		Endpoint:    "TweetResultByRestId",
		ResultPath:  "data.tweetResult.result",
		Selector:    "[data-testid='tweet']",
		ContentWait: time.Second,
	})
	got, err := c.Capture(context.Background(), "5")
	require.NoError(t, err)
	require.JSONEq(t, `{"rest_id":"5","legacy":{"id_str":"5","full_text":"hello"}}`, string(got))
}
