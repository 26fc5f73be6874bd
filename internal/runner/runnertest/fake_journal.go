package runnertest

import (
	"context"
	"sync"

	"github.com/arenadata/report-poster/internal/storage/sqlite"
)

type FakeJournal struct {
	mu       sync.Mutex
	Attempts []sqlite.Attempt
	Err      error
}

func (f *FakeJournal) RecordAttempt(_ context.Context, a sqlite.Attempt) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return 0, f.Err
	}
	f.Attempts = append(f.Attempts, a)
	return int64(len(f.Attempts)), nil
}

func (f *FakeJournal) Snapshot() []sqlite.Attempt {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sqlite.Attempt(nil), f.Attempts...)
}
