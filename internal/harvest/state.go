package harvest

import (
	"fmt"
	"slices"

	"xharvest/internal/model"
)

// State is the position of one lookup in its lifecycle.
type State int

const (
	Pending State = iota
	Captured
	Extracted
	Persisted
	Failed
	FailedAfterRetry
)

func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case Captured:
		return "captured"
	case Extracted:
		return "extracted"
	case Persisted:
		return "persisted"
	case Failed:
		return "failed"
	case FailedAfterRetry:
		return "failed_after_retry"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool { return s == Persisted || s == FailedAfterRetry }

// maxAttempts bounds every lookup to the primary attempt plus one retry.
const maxAttempts = 2

var transitions = map[State][]State{
	Pending:   {Captured, Failed, FailedAfterRetry},
	Captured:  {Extracted, Failed, FailedAfterRetry},
	Extracted: {Persisted, Failed, FailedAfterRetry},
	Failed:    {Pending},
}

// Lookup tracks one post id through capture, extraction and persistence.
type Lookup struct {
	ID       string
	State    State
	Attempts int
	Record   model.PostRecord
	Err      error
}

func (l *Lookup) to(next State) error {
	if !slices.Contains(transitions[l.State], next) {
		return fmt.Errorf("lookup %s: illegal transition %s -> %s", l.ID, l.State, next)
	}
	l.State = next
	return nil
}

// begin starts an attempt. A failed lookup is re-armed only while it has
// attempts left, which is what limits the retry pass to a single try.
func (l *Lookup) begin() error {
	if l.Attempts >= maxAttempts {
		return fmt.Errorf("lookup %s: %d attempts used", l.ID, l.Attempts)
	}
	if l.State == Failed {
		if err := l.to(Pending); err != nil {
			return err
		}
	}
	if l.State != Pending {
		return fmt.Errorf("lookup %s: cannot start from %s", l.ID, l.State)
	}
	l.Attempts++
	l.Err = nil
	return nil
}

func (l *Lookup) extracted(rec model.PostRecord) error {
	if err := l.to(Extracted); err != nil {
		return err
	}
	l.Record = rec
	return nil
}

// fail records err and moves to Failed, or to FailedAfterRetry once the
// attempts are used up.
func (l *Lookup) fail(err error) {
	l.Err = err
	next := Failed
	if l.Attempts >= maxAttempts {
		next = FailedAfterRetry
	}
	if l.to(next) != nil {
		l.State = next
	}
}
