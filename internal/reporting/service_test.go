package reporting

import (
	"context"
	"errors"
	"testing"
	"time"

	"ai-call-gateway/internal/session"
)

func seedSession(t *testing.T, store *session.MemoryStore, s session.CallSession) {
	t.Helper()
	if s.UpdatedAt.IsZero() {
		s.UpdatedAt = s.CreatedAt
	}
	if err := store.Create(context.Background(), s); err != nil {
		t.Fatalf("create %s: %v", s.ID, err)
	}
}

func TestCallsSummary_OwnerIsolation(t *testing.T) {
	store := session.NewMemoryStore()
	now := time.Unix(1700000000, 0).UTC()
	seedSession(t, store, session.CallSession{ID: "s1", OwnerID: "o1", Status: session.StatusCompleted, DurationSeconds: 30, CreatedAt: now})
	seedSession(t, store, session.CallSession{ID: "s2", OwnerID: "o2", Status: session.StatusCompleted, DurationSeconds: 50, CreatedAt: now})
	svc := NewService(NewStoreRepository(store))

	out, err := svc.CallsSummary(context.Background(), CallsSummaryRequest{
		OwnerID: "o1",
		Range:   TimeRange{From: now.Add(-time.Hour), To: now.Add(time.Hour)},
	})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if out.TotalCalls != 1 || out.TotalDurationSeconds != 30 {
		t.Fatalf("expected only o1's call counted, got %+v", out)
	}
}

func TestCallsSummary_Aggregates(t *testing.T) {
	store := session.NewMemoryStore()
	now := time.Unix(1700000000, 0).UTC()
	seedSession(t, store, session.CallSession{ID: "s1", OwnerID: "o", Status: session.StatusCompleted, DurationSeconds: 30, RecordingRef: "https://rec/1.mp3", Transcript: "hi", CreatedAt: now})
	seedSession(t, store, session.CallSession{ID: "s2", OwnerID: "o", Status: session.StatusCompleted, DurationSeconds: 90, CreatedAt: now.Add(time.Minute)})
	seedSession(t, store, session.CallSession{ID: "s3", OwnerID: "o", Status: session.StatusFailed, CreatedAt: now.Add(2 * time.Minute)})
	seedSession(t, store, session.CallSession{ID: "s4", OwnerID: "o", Status: session.StatusInProgress, CreatedAt: now.Add(3 * time.Minute)})
	svc := NewService(NewStoreRepository(store))

	out, err := svc.CallsSummary(context.Background(), CallsSummaryRequest{
		OwnerID: "o",
		Range:   TimeRange{From: now.Add(-time.Hour), To: now.Add(time.Hour)},
	})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if out.TotalCalls != 4 || out.CompletedCalls != 2 || out.FailedCalls != 1 || out.InProgressCalls != 1 {
		t.Fatalf("unexpected status counts: %+v", out)
	}
	if out.TotalDurationSeconds != 120 || out.AverageDurationSeconds != 30 {
		t.Fatalf("unexpected durations: %+v", out)
	}
	if out.RecordedCalls != 1 || out.TranscribedCalls != 1 {
		t.Fatalf("unexpected artifact counts: %+v", out)
	}
}

func TestCallsSummary_RangeIsHalfOpen(t *testing.T) {
	store := session.NewMemoryStore()
	now := time.Unix(1700000000, 0).UTC()
	seedSession(t, store, session.CallSession{ID: "before", OwnerID: "o", Status: session.StatusCompleted, CreatedAt: now.Add(-time.Minute)})
	seedSession(t, store, session.CallSession{ID: "at-from", OwnerID: "o", Status: session.StatusCompleted, CreatedAt: now})
	seedSession(t, store, session.CallSession{ID: "at-to", OwnerID: "o", Status: session.StatusCompleted, CreatedAt: now.Add(time.Hour)})
	svc := NewService(NewStoreRepository(store))

	out, err := svc.CallsSummary(context.Background(), CallsSummaryRequest{
		OwnerID: "o",
		Range:   TimeRange{From: now, To: now.Add(time.Hour)},
	})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if out.TotalCalls != 1 {
		t.Fatalf("expected [from, to) inclusion, got %+v", out)
	}
}

func TestCallsSummary_Validation(t *testing.T) {
	svc := NewService(NewStoreRepository(session.NewMemoryStore()))
	now := time.Unix(1700000000, 0).UTC()

	cases := []CallsSummaryRequest{
		{OwnerID: "", Range: TimeRange{From: now, To: now.Add(time.Hour)}},
		{OwnerID: "o"},
		{OwnerID: "o", Range: TimeRange{From: now.Add(time.Hour), To: now}},
		{OwnerID: "o", Range: TimeRange{From: now, To: now}},
	}
	for i, req := range cases {
		if _, err := svc.CallsSummary(context.Background(), req); !errors.Is(err, ErrInvalidRequest) {
			t.Fatalf("case %d: expected ErrInvalidRequest, got %v", i, err)
		}
	}
}
