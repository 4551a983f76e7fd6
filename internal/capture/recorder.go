package capture

import (
	"sync"

	"github.com/chromedp/cdproto/network"
)

type recorded struct {
	requestID network.RequestID
	resp      Response
	finished  bool
}

// recorder collects data-fetch responses from browser network events. It is
// fed from the browser's event goroutine and read after the load settles.
type recorder struct {
	mu    sync.Mutex
	order []*recorded
	byID  map[network.RequestID]*recorded
}

func newRecorder() *recorder {
	return &recorder{byID: make(map[network.RequestID]*recorded)}
}

func (r *recorder) observe(ev any) {
	switch e := ev.(type) {
	case *network.EventResponseReceived:
		if e.Type != network.ResourceTypeXHR && e.Type != network.ResourceTypeFetch {
			return
		}
		if e.Response == nil {
			return
		}
		r.mu.Lock()
		defer r.mu.Unlock()
		rec := &recorded{
			requestID: e.RequestID,
			resp: Response{
				URL:          e.Response.URL,
				ResourceType: string(e.Type),
				Status:       e.Response.Status,
			},
		}
		r.order = append(r.order, rec)
		r.byID[e.RequestID] = rec
	case *network.EventLoadingFinished:
		r.mu.Lock()
		defer r.mu.Unlock()
		if rec, ok := r.byID[e.RequestID]; ok {
			rec.finished = true
		}
	}
}

// snapshot returns copies of the recorded responses in arrival order.
func (r *recorder) snapshot() []recorded {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]recorded, 0, len(r.order))
	for _, rec := range r.order {
		out = append(out, *rec)
	}
	return out
}
