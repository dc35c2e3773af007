package server

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/talkdrop/talkdrop/internal/config"
	"github.com/talkdrop/talkdrop/internal/protocol"
	"github.com/talkdrop/talkdrop/internal/store"
)

// Store is the durable collaborator the hub, admin handlers, and sweeper
// depend on. *store.Store satisfies it; tests substitute fakes.
type Store interface {
	EnsureRoom(ctx context.Context, roomID, name, createdBy string) (protocol.RoomMetadata, error)
	ListRooms(ctx context.Context) ([]protocol.RoomMetadata, error)
	DeleteRoom(ctx context.Context, roomID string) error
	AppendMessage(ctx context.Context, msg protocol.Message) error
	Messages(ctx context.Context, roomID string) ([]protocol.Message, error)
	LastSeq(ctx context.Context, roomID string) (int64, error)
	DeleteMessage(ctx context.Context, roomID, messageID string) error
	DeleteRoomMessages(ctx context.Context, roomID string) error
	ListExpired(ctx context.Context, before time.Time) ([]store.ExpiredRef, error)
	AllMessages(ctx context.Context, limit int) ([]protocol.AdminMessage, error)
	CountMessages(ctx context.Context, since time.Time) (int, error)
	CountRoomMessages(ctx context.Context, roomID string) (int, error)
	LastActivity(ctx context.Context, roomID string) (time.Time, error)
}

// Hub manages all live room sessions.
type Hub struct {
	store Store
	cfg   config.Config

	mu       sync.RWMutex
	sessions map[string]*Session
	userRoom map[string]string // userID -> roomID, one active room per user
}

// NewHub creates a hub backed by the given store.
func NewHub(st Store, cfg config.Config) *Hub {
	return &Hub{
		store:    st,
		cfg:      cfg,
		sessions: make(map[string]*Session),
		userRoom: make(map[string]string),
	}
}

// GetOrCreateSession returns the live session for a room, creating and
// priming it from the durable log if needed.
func (h *Hub) GetOrCreateSession(ctx context.Context, roomID string) (*Session, error) {
	if err := ValidateRoomID(roomID); err != nil {
		return nil, err
	}

	h.mu.RLock()
	s, ok := h.sessions[roomID]
	h.mu.RUnlock()
	if ok {
		return s, nil
	}

	// Prime outside the hub lock; the store call can block.
	s = newSession(roomID, h.store, h.cfg)
	if err := s.load(ctx); err != nil {
		return nil, err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	// Double-check after acquiring write lock.
	if existing, ok := h.sessions[roomID]; ok {
		return existing, nil
	}
	h.sessions[roomID] = s
	return s, nil
}

// Session returns a live session or nil if the room has none.
func (h *Hub) Session(roomID string) *Session {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.sessions[roomID]
}

// Sessions returns all live sessions keyed by room id.
func (h *Hub) Sessions() map[string]*Session {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make(map[string]*Session, len(h.sessions))
	for id, s := range h.sessions {
		out[id] = s
	}
	return out
}

// SessionCount returns the number of live sessions.
func (h *Hub) SessionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

// TrackUser records a user's active room. A user holds one room session at
// a time: joining a new room marks them offline in the previous one.
func (h *Hub) TrackUser(userID, roomID string) {
	h.mu.Lock()
	prev, ok := h.userRoom[userID]
	h.userRoom[userID] = roomID
	var prevSession *Session
	if ok && prev != roomID {
		prevSession = h.sessions[prev]
	}
	h.mu.Unlock()

	if prevSession != nil {
		prevSession.MarkOffline(userID)
	}
}

// UntrackUser forgets a user's active room if it still points at roomID.
func (h *Hub) UntrackUser(userID, roomID string) {
	h.mu.Lock()
	if h.userRoom[userID] == roomID {
		delete(h.userRoom, userID)
	}
	h.mu.Unlock()
}

// TearDown removes a room's live session, closing all subscriber channels.
// Used when an admin or the sweeper deletes the room itself.
func (h *Hub) TearDown(roomID string) {
	h.mu.Lock()
	s, ok := h.sessions[roomID]
	delete(h.sessions, roomID)
	h.mu.Unlock()

	if !ok {
		return
	}
	s.mu.Lock()
	for id, ch := range s.subs {
		delete(s.subs, id)
		close(ch)
	}
	for u := range s.typing {
		s.clearTypingLocked(u)
	}
	s.mu.Unlock()
}

// ValidateRoomID rejects empty, oversized, or path-breaking room ids.
func ValidateRoomID(roomID string) error {
	if roomID == "" || len(roomID) > 100 {
		return ErrInvalidRoomID
	}
	if strings.ContainsAny(roomID, "/\\ \t\n") {
		return ErrInvalidRoomID
	}
	return nil
}
