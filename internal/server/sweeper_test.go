package server

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/talkdrop/talkdrop/internal/protocol"
)

func seedMessage(st *fakeStore, roomID, msgID string, created time.Time, retention time.Duration) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.msgs[roomID] = append(st.msgs[roomID], protocol.Message{
		ID:        msgID,
		RoomID:    roomID,
		Seq:       int64(len(st.msgs[roomID]) + 1),
		Text:      "seeded",
		CreatedAt: created,
		ExpiresAt: created.Add(retention),
	})
}

func TestSweepPurgesExpired(t *testing.T) {
	st := newFakeStore()
	hub := NewHub(st, testConfig())
	sw := NewSweeper(st, hub, testConfig())

	created := time.UnixMilli(1000).UTC()
	seedMessage(st, "r1", "old", created, 24*time.Hour)
	seedMessage(st, "r1", "fresh", created.Add(time.Hour), 24*time.Hour)

	// Just before expiry: nothing to purge.
	sw.now = func() time.Time { return created.Add(24*time.Hour - time.Millisecond) }
	if purged, _ := sw.SweepOnce(context.Background()); purged != 0 {
		t.Errorf("purged %d before expiry, want 0", purged)
	}

	// At expiry, the old message goes; the fresh one stays.
	sw.now = func() time.Time { return created.Add(24*time.Hour + time.Millisecond) }
	purged, _ := sw.SweepOnce(context.Background())
	if purged != 1 {
		t.Fatalf("purged = %d, want 1", purged)
	}
	msgs, _ := st.Messages(context.Background(), "r1")
	if len(msgs) != 1 || msgs[0].ID != "fresh" {
		t.Errorf("remaining = %+v, want only %q", msgs, "fresh")
	}
}

func TestSweepUpdatesLiveSession(t *testing.T) {
	st := newFakeStore()
	hub := NewHub(st, testConfig())
	sw := NewSweeper(st, hub, testConfig())

	created := time.Now().UTC().Add(-48 * time.Hour)
	seedMessage(st, "r1", "old", created, 24*time.Hour)

	s, err := hub.GetOrCreateSession(context.Background(), "r1")
	if err != nil {
		t.Fatalf("GetOrCreateSession() error = %v", err)
	}
	if len(s.Messages()) != 1 {
		t.Fatal("session not primed with the seeded message")
	}

	sw.SweepOnce(context.Background())
	if len(s.Messages()) != 0 {
		t.Error("sweep did not drop the expired message from the live snapshot")
	}
}

func TestSweepIsolatesFailures(t *testing.T) {
	st := newFakeStore()
	hub := NewHub(st, testConfig())
	sw := NewSweeper(st, hub, testConfig())

	created := time.UnixMilli(1000).UTC()
	seedMessage(st, "r1", "bad", created, time.Hour)
	seedMessage(st, "r2", "good", created, time.Hour)
	st.deleteErr["bad"] = errors.New("storage unavailable")

	sw.now = func() time.Time { return created.Add(2 * time.Hour) }
	purged, _ := sw.SweepOnce(context.Background())
	if purged != 1 {
		t.Errorf("purged = %d, want 1 (the good one despite the bad one failing)", purged)
	}
	msgs, _ := st.Messages(context.Background(), "r2")
	if len(msgs) != 0 {
		t.Error("good message not purged when sibling delete failed")
	}
}

func TestSweepInactiveRooms(t *testing.T) {
	cfg := testConfig()
	cfg.AutoDeleteInactiveRooms = true
	cfg.InactiveThreshold = 7 * 24 * time.Hour

	st := newFakeStore()
	hub := NewHub(st, cfg)
	sw := NewSweeper(st, hub, cfg)

	now := time.Now().UTC()
	st.EnsureRoom(context.Background(), "stale", "stale", "u1")
	st.EnsureRoom(context.Background(), "busy", "busy", "u2")
	seedMessage(st, "stale", "m1", now.Add(-8*24*time.Hour), 30*24*time.Hour)
	seedMessage(st, "busy", "m2", now.Add(-time.Hour), 30*24*time.Hour)

	sw.now = func() time.Time { return now }
	_, deleted := sw.SweepOnce(context.Background())
	if deleted != 1 {
		t.Fatalf("deleted = %d rooms, want 1", deleted)
	}
	rooms, _ := st.ListRooms(context.Background())
	if len(rooms) != 1 || rooms[0].ID != "busy" {
		t.Errorf("remaining rooms = %+v, want only %q", rooms, "busy")
	}
}

func TestSweepSparesRoomsWithOnlineUsers(t *testing.T) {
	cfg := testConfig()
	cfg.AutoDeleteInactiveRooms = true
	cfg.InactiveThreshold = time.Hour

	st := newFakeStore()
	hub := NewHub(st, cfg)
	sw := NewSweeper(st, hub, cfg)

	now := time.Now().UTC()
	st.EnsureRoom(context.Background(), "quiet", "quiet", "u1")
	seedMessage(st, "quiet", "m1", now.Add(-2*time.Hour), 30*24*time.Hour)

	s, _ := hub.GetOrCreateSession(context.Background(), "quiet")
	if err := s.Join(context.Background(), "u1", "Alice"); err != nil {
		t.Fatalf("Join() error = %v", err)
	}

	sw.now = func() time.Time { return now }
	if _, deleted := sw.SweepOnce(context.Background()); deleted != 0 {
		t.Errorf("deleted = %d, want 0: room has an online user", deleted)
	}
}
