package store

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/talkdrop/talkdrop/internal/protocol"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) error = %v", err)
	}
	return s
}

func msg(roomID, id string, seq int64, created time.Time) protocol.Message {
	return protocol.Message{
		ID:         id,
		RoomID:     roomID,
		Seq:        seq,
		SenderID:   "u1",
		SenderName: "Alice",
		Text:       "text " + id,
		CreatedAt:  created,
		ExpiresAt:  created.Add(24 * time.Hour),
	}
}

func TestEnsureRoomFirstWriterWins(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	first, err := s.EnsureRoom(ctx, "r1", "General", "u1")
	if err != nil {
		t.Fatalf("EnsureRoom() error = %v", err)
	}
	second, err := s.EnsureRoom(ctx, "r1", "Renamed", "u2")
	if err != nil {
		t.Fatalf("EnsureRoom() second call error = %v", err)
	}
	if second.Name != "General" || second.CreatedBy != "u1" {
		t.Errorf("second EnsureRoom returned %+v, want the original %+v", second, first)
	}

	rooms, err := s.ListRooms(ctx)
	if err != nil {
		t.Fatalf("ListRooms() error = %v", err)
	}
	if len(rooms) != 1 {
		t.Errorf("room count = %d, want 1", len(rooms))
	}
}

func TestEnsureRoomConcurrentFirstWrite(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "race.db"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	ctx := context.Background()

	// Many writers racing to create the same fresh room: nobody may see an
	// error, and exactly one row wins.
	for round := 0; round < 20; round++ {
		roomID := fmt.Sprintf("race-%d", round)
		var g errgroup.Group
		for i := 0; i < 16; i++ {
			creator := fmt.Sprintf("u%d", i)
			g.Go(func() error {
				_, err := s.EnsureRoom(ctx, roomID, roomID, creator)
				return err
			})
		}
		if err := g.Wait(); err != nil {
			t.Fatalf("round %d: concurrent EnsureRoom error = %v", round, err)
		}
	}

	rooms, err := s.ListRooms(ctx)
	if err != nil {
		t.Fatalf("ListRooms() error = %v", err)
	}
	if len(rooms) != 20 {
		t.Errorf("room count = %d, want 20 (one row per raced id)", len(rooms))
	}
}

func TestMessagesOrderedByTimeThenSeq(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	base := time.UnixMilli(1000).UTC()
	// Inserted out of order; two share the same timestamp.
	for _, m := range []protocol.Message{
		msg("r1", "m3", 3, base.Add(time.Second)),
		msg("r1", "m2", 2, base),
		msg("r1", "m1", 1, base),
	} {
		if err := s.AppendMessage(ctx, m); err != nil {
			t.Fatalf("AppendMessage(%s) error = %v", m.ID, err)
		}
	}

	got, err := s.Messages(ctx, "r1")
	if err != nil {
		t.Fatalf("Messages() error = %v", err)
	}
	want := []string{"m1", "m2", "m3"}
	if len(got) != len(want) {
		t.Fatalf("message count = %d, want %d", len(got), len(want))
	}
	for i, id := range want {
		if got[i].ID != id {
			t.Errorf("messages[%d].ID = %q, want %q", i, got[i].ID, id)
		}
	}
}

func TestLastSeq(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	seq, err := s.LastSeq(ctx, "empty")
	if err != nil {
		t.Fatalf("LastSeq() error = %v", err)
	}
	if seq != 0 {
		t.Errorf("LastSeq(empty) = %d, want 0", seq)
	}

	now := time.Now().UTC()
	s.AppendMessage(ctx, msg("r1", "m1", 1, now))
	s.AppendMessage(ctx, msg("r1", "m2", 2, now))
	s.AppendMessage(ctx, msg("r2", "m9", 9, now))

	seq, err = s.LastSeq(ctx, "r1")
	if err != nil {
		t.Fatalf("LastSeq() error = %v", err)
	}
	if seq != 2 {
		t.Errorf("LastSeq(r1) = %d, want 2", seq)
	}
}

func TestListExpiredBoundary(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	created := time.UnixMilli(1000).UTC()
	if err := s.AppendMessage(ctx, msg("r1", "m1", 1, created)); err != nil {
		t.Fatalf("AppendMessage() error = %v", err)
	}
	expiry := created.Add(24 * time.Hour)

	refs, err := s.ListExpired(ctx, expiry.Add(-time.Millisecond))
	if err != nil {
		t.Fatalf("ListExpired() error = %v", err)
	}
	if len(refs) != 0 {
		t.Errorf("before expiry: got %d refs, want 0", len(refs))
	}

	refs, err = s.ListExpired(ctx, expiry)
	if err != nil {
		t.Fatalf("ListExpired() error = %v", err)
	}
	if len(refs) != 1 || refs[0].MessageID != "m1" || refs[0].RoomID != "r1" {
		t.Errorf("at expiry: refs = %+v, want [{r1 m1}]", refs)
	}
}

func TestDeleteMessageIdempotent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	s.AppendMessage(ctx, msg("r1", "m1", 1, time.Now().UTC()))

	for i := 0; i < 2; i++ {
		if err := s.DeleteMessage(ctx, "r1", "m1"); err != nil {
			t.Fatalf("DeleteMessage() #%d error = %v", i+1, err)
		}
	}
	n, err := s.CountRoomMessages(ctx, "r1")
	if err != nil {
		t.Fatalf("CountRoomMessages() error = %v", err)
	}
	if n != 0 {
		t.Errorf("count after delete = %d, want 0", n)
	}
}

func TestDeleteRoomCascades(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	now := time.Now().UTC()
	s.EnsureRoom(ctx, "r1", "r1", "u1")
	s.EnsureRoom(ctx, "r2", "r2", "u1")
	s.AppendMessage(ctx, msg("r1", "m1", 1, now))
	s.AppendMessage(ctx, msg("r2", "m2", 1, now))

	if err := s.DeleteRoom(ctx, "r1"); err != nil {
		t.Fatalf("DeleteRoom() error = %v", err)
	}

	rooms, _ := s.ListRooms(ctx)
	if len(rooms) != 1 || rooms[0].ID != "r2" {
		t.Errorf("rooms after delete = %+v, want only r2", rooms)
	}
	msgs, _ := s.Messages(ctx, "r1")
	if len(msgs) != 0 {
		t.Errorf("r1 messages survived room delete: %+v", msgs)
	}
	msgs, _ = s.Messages(ctx, "r2")
	if len(msgs) != 1 {
		t.Errorf("r2 messages affected by r1 delete: %+v", msgs)
	}
}

func TestCountMessagesSince(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	now := time.Now().UTC()
	s.AppendMessage(ctx, msg("r1", "old", 1, now.Add(-48*time.Hour)))
	s.AppendMessage(ctx, msg("r1", "recent", 2, now.Add(-time.Hour)))
	s.AppendMessage(ctx, msg("r2", "other", 1, now.Add(-time.Minute)))

	total, err := s.CountMessages(ctx, time.Time{})
	if err != nil {
		t.Fatalf("CountMessages() error = %v", err)
	}
	if total != 3 {
		t.Errorf("total = %d, want 3", total)
	}

	recent, err := s.CountMessages(ctx, now.Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("CountMessages(since) error = %v", err)
	}
	if recent != 2 {
		t.Errorf("last 24h = %d, want 2", recent)
	}
}

func TestAllMessagesNewestFirst(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	base := time.UnixMilli(1000).UTC()
	s.AppendMessage(ctx, msg("r1", "m1", 1, base))
	s.AppendMessage(ctx, msg("r2", "m2", 1, base.Add(time.Second)))
	s.AppendMessage(ctx, msg("r1", "m3", 2, base.Add(2*time.Second)))

	got, err := s.AllMessages(ctx, 2)
	if err != nil {
		t.Fatalf("AllMessages() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("count = %d, want 2", len(got))
	}
	if got[0].ID != "m3" || got[1].ID != "m2" {
		t.Errorf("order = [%s %s], want [m3 m2]", got[0].ID, got[1].ID)
	}
}

func TestLastActivity(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	last, err := s.LastActivity(ctx, "missing")
	if err != nil {
		t.Fatalf("LastActivity(missing) error = %v", err)
	}
	if !last.IsZero() {
		t.Errorf("LastActivity(missing) = %v, want zero", last)
	}

	meta, err := s.EnsureRoom(ctx, "r1", "r1", "u1")
	if err != nil {
		t.Fatalf("EnsureRoom() error = %v", err)
	}
	last, err = s.LastActivity(ctx, "r1")
	if err != nil {
		t.Fatalf("LastActivity() error = %v", err)
	}
	if !last.Equal(meta.CreatedAt) {
		t.Errorf("empty room activity = %v, want creation time %v", last, meta.CreatedAt)
	}

	sent := time.Now().UTC().Add(time.Hour).Truncate(time.Millisecond)
	s.AppendMessage(ctx, msg("r1", "m1", 1, sent))
	last, err = s.LastActivity(ctx, "r1")
	if err != nil {
		t.Fatalf("LastActivity() error = %v", err)
	}
	if !last.Equal(sent) {
		t.Errorf("activity = %v, want latest message time %v", last, sent)
	}
}

func TestUninitializedStore(t *testing.T) {
	var s *Store
	if _, err := s.Messages(context.Background(), "r1"); err != ErrNotInitialized {
		t.Errorf("Messages() on nil store error = %v, want ErrNotInitialized", err)
	}
	if err := s.AppendMessage(context.Background(), protocol.Message{}); err != ErrNotInitialized {
		t.Errorf("AppendMessage() on nil store error = %v, want ErrNotInitialized", err)
	}
}
