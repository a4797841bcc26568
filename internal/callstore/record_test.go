package callstore

import (
	"context"
	"testing"
	"time"

	"github.com/rotarycore/phonecore/internal/events"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return NewStore(db)
}

func TestCreateAssignsID(t *testing.T) {
	s := openTestStore(t)
	r := &Record{
		Timestamp: time.Now(),
		Direction: events.Outbound,
		Status:    events.StatusInProgress,
		DialedNumber: "1",
		SpeedDialCode: "1",
		Destination: "+15551234567",
	}
	if err := s.Create(context.Background(), r); err != nil {
		t.Fatal(err)
	}
	if r.ID == 0 {
		t.Fatal("expected a non-zero assigned ID")
	}
}

func TestCloseUpdatesStatusAndDuration(t *testing.T) {
	s := openTestStore(t)
	r := &Record{Timestamp: time.Now(), Direction: events.Outbound, Status: events.StatusInProgress, Destination: "+15551234567"}
	if err := s.Create(context.Background(), r); err != nil {
		t.Fatal(err)
	}

	if err := s.Close(context.Background(), r.ID, events.StatusCompleted, 42, ""); err != nil {
		t.Fatal(err)
	}

	got, err := s.Get(context.Background(), r.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != events.StatusCompleted || got.DurationSeconds != 42 {
		t.Fatalf("unexpected record after close: %+v", got)
	}
}

func TestListFiltersByDirection(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	out := &Record{Timestamp: time.Now(), Direction: events.Outbound, Status: events.StatusCompleted, Destination: "+15551234567"}
	in := &Record{Timestamp: time.Now(), Direction: events.Inbound, Status: events.StatusCompleted, CallerID: "+15559999999"}
	if err := s.Create(ctx, out); err != nil {
		t.Fatal(err)
	}
	if err := s.Create(ctx, in); err != nil {
		t.Fatal(err)
	}

	got, err := s.List(ctx, ListFilter{Direction: events.Inbound})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].CallerID != "+15559999999" {
		t.Fatalf("expected exactly the inbound record, got %+v", got)
	}
}

func TestDeleteRemovesRecord(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	r := &Record{Timestamp: time.Now(), Direction: events.Outbound, Status: events.StatusCompleted, Destination: "+15551234567"}
	if err := s.Create(ctx, r); err != nil {
		t.Fatal(err)
	}
	if err := s.Delete(ctx, r.ID); err != nil {
		t.Fatal(err)
	}
	got, err := s.Get(ctx, r.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got != nil {
		t.Fatal("expected record to be gone after delete")
	}
}
