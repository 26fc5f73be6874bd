package sqlite

import (
	"testing"
	"time"
)

func TestRecordAndRecent(t *testing.T) {
	s, ctx := newTestDB(t)
	base := time.Unix(1_700_000_000, 0)

	rows := []Attempt{
		{DispatchID: "d1", Reporter: "post", Target: "http://a/", Kind: "ok", Status: 200, Message: "first", CreatedAt: base},
		{DispatchID: "d2", Reporter: "post", Target: "http://a/", Kind: "transport", Error: "connection refused", Message: "second", CreatedAt: base.Add(time.Second)},
		{DispatchID: "d2", Reporter: "sentry", Kind: "not_configured", Message: "second", CreatedAt: base.Add(time.Second)},
	}
	for _, a := range rows {
		id, err := s.RecordAttempt(ctx, a)
		if err != nil {
			t.Fatalf("RecordAttempt: %v", err)
		}
		if id == 0 {
			t.Fatalf("RecordAttempt returned id 0")
		}
	}

	got, err := s.RecentAttempts(ctx, 10)
	if err != nil {
		t.Fatalf("RecentAttempts: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d rows, want 3", len(got))
	}
	// same second: higher id first
	if got[0].Reporter != "sentry" || got[1].Reporter != "post" || got[2].Message != "first" {
		t.Fatalf("bad order: %+v", got)
	}
	if got[0].Target != "" || got[1].Error != "connection refused" || got[2].Status != 200 {
		t.Fatalf("bad values: %+v", got)
	}
	if !got[2].CreatedAt.Equal(base) {
		t.Fatalf("CreatedAt = %v, want %v", got[2].CreatedAt, base)
	}

	limited, err := s.RecentAttempts(ctx, 1)
	if err != nil || len(limited) != 1 {
		t.Fatalf("limit: got %d err=%v", len(limited), err)
	}
}

func TestRecordDefaultsTime(t *testing.T) {
	s, ctx := newTestDB(t)
	before := time.Now().Add(-time.Second)

	if _, err := s.RecordAttempt(ctx, Attempt{DispatchID: "d", Reporter: "post", Kind: "ok"}); err != nil {
		t.Fatalf("RecordAttempt: %v", err)
	}
	got, err := s.RecentAttempts(ctx, 0)
	if err != nil || len(got) != 1 {
		t.Fatalf("RecentAttempts: %d rows err=%v", len(got), err)
	}
	if got[0].CreatedAt.Before(before) {
		t.Fatalf("CreatedAt not defaulted: %v", got[0].CreatedAt)
	}
}
