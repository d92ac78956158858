package scheduling

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"conductor/internal/domain"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeStore struct {
	pruned int
	cutoff time.Time
	err    error
}

func (f *fakeStore) Write(ctx context.Context, entry domain.KnowledgeEntry) error { return nil }

func (f *fakeStore) Search(ctx context.Context, query, knowledgeDomain string, limit int) ([]domain.KnowledgeEntry, error) {
	return nil, nil
}

func (f *fakeStore) Prune(ctx context.Context, cutoff time.Time) (int, error) {
	f.pruned++
	f.cutoff = cutoff
	return 3, f.err
}

func (f *fakeStore) Close() error { return nil }

func TestSweepPrunesWithRetentionCutoff(t *testing.T) {
	store := &fakeStore{}
	s := NewSweeper(store, 48*time.Hour, discard())

	if err := s.Sweep(context.Background()); err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if store.pruned != 1 {
		t.Fatalf("Prune calls = %d, want 1", store.pruned)
	}

	wantCutoff := time.Now().UTC().Add(-48 * time.Hour)
	if diff := store.cutoff.Sub(wantCutoff); diff < -time.Minute || diff > time.Minute {
		t.Errorf("cutoff = %v, want about %v", store.cutoff, wantCutoff)
	}
}

func TestSweepPropagatesStoreError(t *testing.T) {
	store := &fakeStore{err: errors.New("locked")}
	s := NewSweeper(store, time.Hour, discard())

	if err := s.Sweep(context.Background()); err == nil {
		t.Fatal("Sweep returned nil, want error")
	}
}

func TestStartDisabledWhenRetentionZero(t *testing.T) {
	store := &fakeStore{}
	s := NewSweeper(store, 0, discard())

	if err := s.Start(context.Background(), "@every 1ms"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	time.Sleep(10 * time.Millisecond)
	if store.pruned != 0 {
		t.Errorf("Prune calls = %d, want 0 with retention disabled", store.pruned)
	}
}

func TestStartRejectsBadSchedule(t *testing.T) {
	s := NewSweeper(&fakeStore{}, time.Hour, discard())
	if err := s.Start(context.Background(), "not a schedule"); err == nil {
		t.Fatal("Start accepted an invalid cron expression")
	}
	s.Stop()
}
