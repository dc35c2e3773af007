package server

import (
	"context"
	"sync"
	"time"

	"github.com/talkdrop/talkdrop/internal/config"
	"github.com/talkdrop/talkdrop/internal/protocol"
	"github.com/talkdrop/talkdrop/internal/store"
)

// fakeStore is an in-memory Store for tests. Error fields inject failures.
type fakeStore struct {
	mu    sync.Mutex
	rooms map[string]protocol.RoomMetadata
	msgs  map[string][]protocol.Message

	appendErr error
	countErr  error
	deleteErr map[string]error // messageID -> error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		rooms:     make(map[string]protocol.RoomMetadata),
		msgs:      make(map[string][]protocol.Message),
		deleteErr: make(map[string]error),
	}
}

func (f *fakeStore) EnsureRoom(_ context.Context, roomID, name, createdBy string) (protocol.RoomMetadata, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if m, ok := f.rooms[roomID]; ok {
		return m, nil
	}
	m := protocol.RoomMetadata{ID: roomID, Name: name, CreatedAt: time.Now().UTC(), CreatedBy: createdBy}
	f.rooms[roomID] = m
	return m, nil
}

func (f *fakeStore) ListRooms(context.Context) ([]protocol.RoomMetadata, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]protocol.RoomMetadata, 0, len(f.rooms))
	for _, m := range f.rooms {
		out = append(out, m)
	}
	return out, nil
}

func (f *fakeStore) DeleteRoom(_ context.Context, roomID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.rooms, roomID)
	delete(f.msgs, roomID)
	return nil
}

func (f *fakeStore) AppendMessage(_ context.Context, msg protocol.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.appendErr != nil {
		return f.appendErr
	}
	f.msgs[msg.RoomID] = append(f.msgs[msg.RoomID], msg)
	return nil
}

func (f *fakeStore) Messages(_ context.Context, roomID string) ([]protocol.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]protocol.Message, len(f.msgs[roomID]))
	copy(out, f.msgs[roomID])
	return out, nil
}

func (f *fakeStore) LastSeq(_ context.Context, roomID string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var max int64
	for _, m := range f.msgs[roomID] {
		if m.Seq > max {
			max = m.Seq
		}
	}
	return max, nil
}

func (f *fakeStore) DeleteMessage(_ context.Context, roomID, messageID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.deleteErr[messageID]; err != nil {
		return err
	}
	msgs := f.msgs[roomID]
	for i, m := range msgs {
		if m.ID == messageID {
			f.msgs[roomID] = append(msgs[:i], msgs[i+1:]...)
			break
		}
	}
	return nil
}

func (f *fakeStore) DeleteRoomMessages(_ context.Context, roomID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.msgs, roomID)
	return nil
}

func (f *fakeStore) ListExpired(_ context.Context, before time.Time) ([]store.ExpiredRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []store.ExpiredRef
	for roomID, msgs := range f.msgs {
		for _, m := range msgs {
			if !m.ExpiresAt.After(before) {
				out = append(out, store.ExpiredRef{RoomID: roomID, MessageID: m.ID})
			}
		}
	}
	return out, nil
}

func (f *fakeStore) AllMessages(_ context.Context, limit int) ([]protocol.AdminMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []protocol.AdminMessage
	for roomID, msgs := range f.msgs {
		for _, m := range msgs {
			out = append(out, protocol.AdminMessage{
				ID: m.ID, RoomID: roomID, SenderID: m.SenderID, SenderName: m.SenderName,
				Text: m.Text, CreatedAt: m.CreatedAt, ExpiresAt: m.ExpiresAt,
			})
			if limit > 0 && len(out) >= limit {
				return out, nil
			}
		}
	}
	return out, nil
}

func (f *fakeStore) CountMessages(_ context.Context, since time.Time) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, msgs := range f.msgs {
		for _, m := range msgs {
			if since.IsZero() || !m.CreatedAt.Before(since) {
				n++
			}
		}
	}
	return n, nil
}

func (f *fakeStore) CountRoomMessages(_ context.Context, roomID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.countErr != nil {
		return 0, f.countErr
	}
	return len(f.msgs[roomID]), nil
}

func (f *fakeStore) LastActivity(_ context.Context, roomID string) (time.Time, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var last time.Time
	for _, m := range f.msgs[roomID] {
		if m.CreatedAt.After(last) {
			last = m.CreatedAt
		}
	}
	if !last.IsZero() {
		return last, nil
	}
	if room, ok := f.rooms[roomID]; ok {
		return room.CreatedAt, nil
	}
	return time.Time{}, nil
}

// testConfig returns a config tuned for fast tests.
func testConfig() config.Config {
	return config.Config{
		ServerPort:        "0",
		AdminToken:        "secret",
		AllowedOrigins:    []string{"*"},
		MessageRetention:  24 * time.Hour,
		InactiveThreshold: 7 * 24 * time.Hour,
		MaxRoomSize:       50,
		MaxMessageLength:  2000,
		AllowAnonymous:    true,
		TypingWindow:      30 * time.Millisecond,
		SweepInterval:     time.Minute,
	}
}

// drain reads events from a subscription until one matching the given type
// arrives or the timeout elapses. Returns the matching event and true.
func drain(ch <-chan protocol.ServerEvent, event string, timeout time.Duration) (protocol.ServerEvent, bool) {
	deadline := time.After(timeout)
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return protocol.ServerEvent{}, false
			}
			if ev.Event == event {
				return ev, true
			}
		case <-deadline:
			return protocol.ServerEvent{}, false
		}
	}
}
