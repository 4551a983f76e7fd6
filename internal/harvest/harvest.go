// Package harvest drives post lookups through a primary pass and a single
// retry pass restricted to the primary failures.
package harvest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"xharvest/internal/capture"
	"xharvest/internal/extract"
	"xharvest/internal/logging"
	"xharvest/internal/metrics"
	"xharvest/internal/model"
)

type Pass string

const (
	PassPrimary Pass = "primary"
	PassRetry   Pass = "retry"
)

// Capturer returns the raw post result for an id.
type Capturer interface {
	Capture(ctx context.Context, id string) ([]byte, error)
}

// ExtractFunc turns a raw post result into a record.
type ExtractFunc func(payload []byte) (model.PostRecord, error)

// Store persists records and failure ids.
type Store interface {
	WriteAll(path string, records []model.PostRecord) error
	AppendRows(path string, records []model.PostRecord) error
	AppendIDs(path string, ids []string) error
}

// Ledger mirrors lookup progress. Ledger errors are logged, never fatal.
type Ledger interface {
	Track(ctx context.Context, postID, state string, attempts int, lastErr string) error
	PutRecord(ctx context.Context, postID, pass string, record any) error
}

// Outputs names the three tables a run writes.
type Outputs struct {
	Records      string
	Failures     string
	RetryRecords string
}

type Harvester struct {
	capture Capturer
	extract ExtractFunc
	store   Store
	out     Outputs
	ledger  Ledger
	limiter *rate.Limiter
}

type Option func(*Harvester)

func WithLedger(l Ledger) Option { return func(h *Harvester) { h.ledger = l } }

// WithMinInterval spaces browser sessions at least d apart.
func WithMinInterval(d time.Duration) Option {
	return func(h *Harvester) {
		if d > 0 {
			h.limiter = rate.NewLimiter(rate.Every(d), 1)
		}
	}
}

func New(c Capturer, x ExtractFunc, s Store, out Outputs, opts ...Option) *Harvester {
	if x == nil {
		x = extract.Extract
	}
	h := &Harvester{capture: c, extract: x, store: s, out: out}
	for _, o := range opts {
		o(h)
	}
	return h
}

// Summary reports how a run's lookups ended.
type Summary struct {
	Total     int
	Succeeded int // primary pass
	Failed    int // primary pass
	Recovered int // retry pass
	Lookups   []*Lookup
}

// Abandoned is the number of ids that failed both passes.
func (s Summary) Abandoned() int { return s.Failed - s.Recovered }

// Run processes ids in order: primary pass, write successes and failure
// ids, then one retry pass over exactly the failures. Per-id errors never
// stop the run; only table writes do.
func (h *Harvester) Run(ctx context.Context, ids []string) (Summary, error) {
	sum := Summary{Total: len(ids)}
	lookups := make([]*Lookup, len(ids))
	for i, id := range ids {
		lookups[i] = &Lookup{ID: id}
	}
	sum.Lookups = lookups

	done, failed := h.pass(ctx, PassPrimary, lookups)
	sum.Succeeded, sum.Failed = len(done), len(failed)
	if err := h.persist(ctx, done, h.out.Records, h.store.WriteAll); err != nil {
		return sum, err
	}
	if err := h.store.AppendIDs(h.out.Failures, lookupIDs(failed)); err != nil {
		return sum, fmt.Errorf("write failure ids: %w", err)
	}
	metrics.AddRows(h.out.Failures, len(failed))
	logging.Info("primary_pass_done", map[string]any{"total": sum.Total, "succeeded": sum.Succeeded, "failed": sum.Failed})

	recovered, err := h.retry(ctx, failed)
	sum.Recovered = recovered
	return sum, err
}

// RetryOnly runs the retry pass over ids that failed in an earlier run.
func (h *Harvester) RetryOnly(ctx context.Context, ids []string) (Summary, error) {
	lookups := make([]*Lookup, len(ids))
	for i, id := range ids {
		lookups[i] = &Lookup{ID: id, State: Failed, Attempts: 1}
	}
	sum := Summary{Total: len(ids), Failed: len(ids), Lookups: lookups}
	recovered, err := h.retry(ctx, lookups)
	sum.Recovered = recovered
	return sum, err
}

func (h *Harvester) retry(ctx context.Context, failed []*Lookup) (int, error) {
	done, still := h.pass(ctx, PassRetry, failed)
	if err := h.persist(ctx, done, h.out.RetryRecords, h.store.AppendRows); err != nil {
		return 0, err
	}
	logging.Info("retry_pass_done", map[string]any{"attempted": len(failed), "recovered": len(done), "abandoned": len(still)})
	return len(done), nil
}

// pass attempts every lookup once, in order, and splits them into
// extracted and failed.
func (h *Harvester) pass(ctx context.Context, pass Pass, lookups []*Lookup) (done, failed []*Lookup) {
	for _, l := range lookups {
		if err := l.begin(); err != nil {
			l.Err = err
			metrics.IncLookup(string(pass), Reason(err))
			logging.Error("lookup_skipped", map[string]any{"id": l.ID, "pass": string(pass), "error": err.Error()})
			failed = append(failed, l)
			continue
		}
		h.track(ctx, l)
		h.attempt(ctx, l)
		if l.State == Extracted {
			metrics.IncLookup(string(pass), "ok")
			done = append(done, l)
		} else {
			reason := Reason(l.Err)
			metrics.IncLookup(string(pass), reason)
			logging.Error("lookup_failed", map[string]any{"id": l.ID, "pass": string(pass), "reason": reason, "error": l.Err.Error()})
			failed = append(failed, l)
		}
		h.track(ctx, l)
	}
	return done, failed
}

var errPanic = errors.New("lookup panicked")

func (h *Harvester) attempt(ctx context.Context, l *Lookup) {
	defer func() {
		if r := recover(); r != nil {
			l.fail(fmt.Errorf("%w: %v", errPanic, r))
		}
	}()
	if h.limiter != nil {
		if err := h.limiter.Wait(ctx); err != nil {
			l.fail(err)
			return
		}
	}
	payload, err := h.capture.Capture(ctx, l.ID)
	if err != nil {
		l.fail(err)
		return
	}
	if err := l.to(Captured); err != nil {
		l.fail(err)
		return
	}
	rec, err := h.extract(payload)
	if err != nil {
		l.fail(err)
		return
	}
	if err := l.extracted(rec); err != nil {
		l.fail(err)
	}
}

// persist writes the records of done with write, then marks them Persisted.
func (h *Harvester) persist(ctx context.Context, done []*Lookup, path string, write func(string, []model.PostRecord) error) error {
	recs := make([]model.PostRecord, 0, len(done))
	for _, l := range done {
		recs = append(recs, l.Record)
	}
	if err := write(path, recs); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	metrics.AddRows(path, len(recs))
	for _, l := range done {
		if err := l.to(Persisted); err != nil {
			return err
		}
		h.track(ctx, l)
	}
	return nil
}

func (h *Harvester) track(ctx context.Context, l *Lookup) {
	if h.ledger == nil {
		return
	}
	var errStr string
	if l.Err != nil {
		errStr = l.Err.Error()
	}
	if err := h.ledger.Track(ctx, l.ID, l.State.String(), l.Attempts, errStr); err != nil {
		logging.Warn("ledger_track_failed", map[string]any{"id": l.ID, "error": err.Error()})
	}
	if l.State == Persisted {
		pass := PassPrimary
		if l.Attempts > 1 {
			pass = PassRetry
		}
		if err := h.ledger.PutRecord(ctx, l.ID, string(pass), l.Record.Document()); err != nil {
			logging.Warn("ledger_record_failed", map[string]any{"id": l.ID, "error": err.Error()})
		}
	}
}

func lookupIDs(ls []*Lookup) []string {
	ids := make([]string, len(ls))
	for i, l := range ls {
		ids[i] = l.ID
	}
	return ids
}

// Reason classifies a lookup error into a short label for logs and metrics.
func Reason(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, capture.ErrCaptureTimeout):
		return "timeout"
	case errors.Is(err, capture.ErrCapture):
		return "session"
	case errors.Is(err, capture.ErrNoMatchingResponse):
		return "no_match"
	case errors.Is(err, capture.ErrEmptyResult):
		return "empty_result"
	case errors.Is(err, extract.ErrMalformedPayload):
		return "malformed"
	case errors.Is(err, errPanic):
		return "panic"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	}
	return "other"
}
