package harvest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"xharvest/internal/capture"
	"xharvest/internal/extract"
	"xharvest/internal/model"
	"xharvest/internal/store/ledger"
	"xharvest/internal/store/table"
)

// scriptedCapturer answers each id from a queue of outcomes; nil means success.
type scriptedCapturer struct {
	script map[string][]error
	calls  []string
}

func (s *scriptedCapturer) Capture(ctx context.Context, id string) ([]byte, error) {
	s.calls = append(s.calls, id)
	var err error
	if q := s.script[id]; len(q) > 0 {
		err = q[0]
		s.script[id] = q[1:]
	}
	if err != nil {
		return nil, err
	}
	return []byte(fmt.Sprintf(`{"rest_id":%q,"legacy":{"id_str":%q,"full_text":"post %s"}}`, id, id, id)), nil
}

func outputs(dir string) Outputs {
	return Outputs{
		Records:      filepath.Join(dir, "tweet_data.csv"),
		Failures:     filepath.Join(dir, "retry.csv"),
		RetryRecords: filepath.Join(dir, "tweet_data1.csv"),
	}
}

func firstColumn(t *testing.T, path string, headed bool) []string {
	t.Helper()
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimRight(string(b), "\n"), "\n")
	if headed {
		lines = lines[1:]
	}
	var out []string
	for _, l := range lines {
		out = append(out, strings.SplitN(l, ",", 2)[0])
	}
	return out
}

func TestRunPrimaryFailureRecoveredOnRetry(t *testing.T) {
	dir := t.TempDir()
	fake := &scriptedCapturer{script: map[string][]error{"2": {capture.ErrCaptureTimeout}}}
	h := New(fake, extract.Extract, table.Store{}, outputs(dir))

	sum, err := h.Run(context.Background(), []string{"1", "2", "3"})
	require.NoError(t, err)
	require.Equal(t, 3, sum.Total)
	require.Equal(t, 2, sum.Succeeded)
	require.Equal(t, 1, sum.Failed)
	require.Equal(t, 1, sum.Recovered)
	require.Zero(t, sum.Abandoned())

	out := outputs(dir)
	require.Equal(t, []string{"1", "3"}, firstColumn(t, out.Records, true))
	require.Equal(t, []string{"2"}, firstColumn(t, out.Failures, false))
	require.Equal(t, []string{"2"}, firstColumn(t, out.RetryRecords, true))
	require.Equal(t, []string{"1", "2", "3", "2"}, fake.calls)

	for _, l := range sum.Lookups {
		require.Equal(t, Persisted, l.State, l.ID)
	}
}

func TestRunRetriesOnlyOnceAndOnlyFailures(t *testing.T) {
	dir := t.TempDir()
	boom := errors.New("boom")
	fake := &scriptedCapturer{script: map[string][]error{
		"a": {capture.ErrNoMatchingResponse, capture.ErrNoMatchingResponse, nil},
		"c": {boom, nil},
	}}
	h := New(fake, extract.Extract, table.Store{}, outputs(dir))

	sum, err := h.Run(context.Background(), []string{"a", "b", "c", "d"})
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b", "c", "d", "a", "c"}, fake.calls)
	require.Equal(t, 2, sum.Succeeded)
	require.Equal(t, 2, sum.Failed)
	require.Equal(t, 1, sum.Recovered)
	require.Equal(t, 1, sum.Abandoned())

	// the failure log holds only the primary failures
	out := outputs(dir)
	require.Equal(t, []string{"a", "c"}, firstColumn(t, out.Failures, false))
	require.Equal(t, []string{"c"}, firstColumn(t, out.RetryRecords, true))

	states := map[string]State{}
	for _, l := range sum.Lookups {
		states[l.ID] = l.State
	}
	require.Equal(t, FailedAfterRetry, states["a"])
	require.Equal(t, Persisted, states["c"])

	// an abandoned lookup cannot be started again
	var a *Lookup
	for _, l := range sum.Lookups {
		if l.ID == "a" {
			a = l
		}
	}
	require.Error(t, a.begin())
}

func TestRunBucketsEveryID(t *testing.T) {
	dir := t.TempDir()
	ids := []string{"1", "2", "3", "4", "5", "6", "7"}
	fake := &scriptedCapturer{script: map[string][]error{
		"2": {capture.ErrCapture, capture.ErrCapture},
		"5": {capture.ErrEmptyResult, capture.ErrEmptyResult},
		"6": {capture.ErrCaptureTimeout, capture.ErrCaptureTimeout},
	}}
	sum, err := New(fake, nil, table.Store{}, outputs(dir)).Run(context.Background(), ids)
	require.NoError(t, err)

	out := outputs(dir)
	ok := firstColumn(t, out.Records, true)
	failed := firstColumn(t, out.Failures, false)
	require.Equal(t, len(ids), len(ok)+len(failed))
	require.Equal(t, []string{"1", "3", "4", "7"}, ok)
	require.Equal(t, []string{"2", "5", "6"}, failed)
	require.Zero(t, sum.Recovered)
	_, statErr := os.Stat(out.RetryRecords)
	require.True(t, os.IsNotExist(statErr), "no recovered rows means no retry table")
}

func TestRunAllSucceedWritesNoFailureLog(t *testing.T) {
	dir := t.TempDir()
	fake := &scriptedCapturer{script: map[string][]error{}}
	sum, err := New(fake, nil, table.Store{}, outputs(dir)).Run(context.Background(), []string{"1"})
	require.NoError(t, err)
	require.Equal(t, 1, sum.Succeeded)
	_, statErr := os.Stat(outputs(dir).Failures)
	require.True(t, os.IsNotExist(statErr))
}

func TestRunTreatsExtractionErrorsAndPanicsAsFailures(t *testing.T) {
	dir := t.TempDir()
	fake := &scriptedCapturer{script: map[string][]error{}}
	calls := 0
	x := func(payload []byte) (model.PostRecord, error) {
		calls++
		switch calls {
		case 1:
			return model.PostRecord{}, fmt.Errorf("%w: no id", extract.ErrMalformedPayload)
		case 2:
			panic("unexpected shape")
		}
		return extract.Extract(payload)
	}
	sum, err := New(fake, x, table.Store{}, outputs(dir)).Run(context.Background(), []string{"1", "2", "3"})
	require.NoError(t, err)
	require.Equal(t, 1, sum.Succeeded)
	require.Equal(t, 2, sum.Failed)
	require.Equal(t, 2, sum.Recovered)
	require.Equal(t, []string{"3"}, firstColumn(t, outputs(dir).Records, true))
	require.Equal(t, []string{"1", "2"}, firstColumn(t, outputs(dir).RetryRecords, true))
}

func TestPassCountsUnstartableLookupAsFailed(t *testing.T) {
	fake := &scriptedCapturer{script: map[string][]error{}}
	h := New(fake, nil, table.Store{}, outputs(t.TempDir()))
	spent := &Lookup{ID: "x", State: Failed, Attempts: maxAttempts}

	done, failed := h.pass(context.Background(), PassRetry, []*Lookup{{ID: "y"}, spent})
	require.Len(t, done, 1)
	require.Equal(t, []*Lookup{spent}, failed)
	require.Error(t, spent.Err)
	require.Equal(t, []string{"y"}, fake.calls)
}

type failingStore struct{ table.Store }

func (failingStore) WriteAll(string, []model.PostRecord) error { return errors.New("disk full") }

func TestRunStopsOnWriteError(t *testing.T) {
	fake := &scriptedCapturer{script: map[string][]error{"2": {capture.ErrCapture}}}
	_, err := New(fake, nil, failingStore{}, outputs(t.TempDir())).Run(context.Background(), []string{"1", "2"})
	require.ErrorContains(t, err, "disk full")
	require.Equal(t, []string{"1", "2"}, fake.calls)
}

func TestRetryOnly(t *testing.T) {
	dir := t.TempDir()
	fake := &scriptedCapturer{script: map[string][]error{"9": {capture.ErrCapture}}}
	sum, err := New(fake, nil, table.Store{}, outputs(dir)).RetryOnly(context.Background(), []string{"8", "9"})
	require.NoError(t, err)
	require.Equal(t, 1, sum.Recovered)
	require.Equal(t, 1, sum.Abandoned())
	require.Equal(t, []string{"8"}, firstColumn(t, outputs(dir).RetryRecords, true))
	_, statErr := os.Stat(outputs(dir).Failures)
	require.True(t, os.IsNotExist(statErr), "retry-only never extends the failure log")
}

func TestRunMirrorsIntoLedger(t *testing.T) {
	db, err := ledger.Open(":memory:")
	require.NoError(t, err)
	defer db.Close()
	ctx := context.Background()

	fake := &scriptedCapturer{script: map[string][]error{
		"2": {capture.ErrCaptureTimeout, capture.ErrCaptureTimeout},
	}}
	_, err = New(fake, nil, table.Store{}, outputs(t.TempDir()), WithLedger(db)).Run(ctx, []string{"1", "2"})
	require.NoError(t, err)

	counts, err := db.CountByState(ctx)
	require.NoError(t, err)
	require.Equal(t, map[string]int{"persisted": 1, "failed_after_retry": 1}, counts)

	l, err := db.LoadLookup(ctx, "2")
	require.NoError(t, err)
	require.Equal(t, 2, l.Attempts)
	require.Contains(t, l.LastError, "timed out")

	body, err := db.LoadRecord(ctx, "1")
	require.NoError(t, err)
	require.Contains(t, body, `"id":"1"`)
}

func TestReason(t *testing.T) {
	require.Equal(t, "ok", Reason(nil))
	require.Equal(t, "timeout", Reason(fmt.Errorf("%w: x", capture.ErrCaptureTimeout)))
	require.Equal(t, "session", Reason(capture.ErrCapture))
	require.Equal(t, "no_match", Reason(capture.ErrNoMatchingResponse))
	require.Equal(t, "empty_result", Reason(capture.ErrEmptyResult))
	require.Equal(t, "malformed", Reason(extract.ErrMalformedPayload))
	require.Equal(t, "panic", Reason(errPanic))
	require.Equal(t, "canceled", Reason(context.Canceled))
	require.Equal(t, "other", Reason(errors.New("x")))
}
