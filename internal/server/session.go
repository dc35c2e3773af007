package server

import (
	"context"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/talkdrop/talkdrop/internal/config"
	"github.com/talkdrop/talkdrop/internal/protocol"
)

// presenceEntry is one user's live presence in a room.
type presenceEntry struct {
	name     string
	online   bool
	lastSeen time.Time
}

// typingState holds the auto-revert timer for one typing user. gen guards
// against a fired timer clobbering a newer typing signal: the revert only
// applies if no SetTyping call superseded it in the meantime.
type typingState struct {
	timer *time.Timer
	gen   uint64
}

// Session owns one room's live state: the cached ordered message history,
// the presence map, the typing map, and the set of subscribers. All writes
// targeting the room serialize through its mutex; different rooms proceed
// in parallel.
type Session struct {
	roomID string
	store  Store
	cfg    config.Config
	now    func() time.Time

	mu       sync.Mutex
	messages []protocol.Message
	seq      int64
	presence map[string]*presenceEntry
	typing   map[string]*typingState
	typeGen  uint64
	subs     map[int]chan protocol.ServerEvent
	nextSub  int
	conns    int
}

func newSession(roomID string, st Store, cfg config.Config) *Session {
	return &Session{
		roomID:   roomID,
		store:    st,
		cfg:      cfg,
		now:      time.Now,
		presence: make(map[string]*presenceEntry),
		typing:   make(map[string]*typingState),
		subs:     make(map[int]chan protocol.ServerEvent),
	}
}

// load primes the message cache and sequence counter from the durable log.
// Called once by the hub before the session is published.
func (s *Session) load(ctx context.Context) error {
	msgs, err := s.store.Messages(ctx, s.roomID)
	if err != nil {
		return err
	}
	seq, err := s.store.LastSeq(ctx, s.roomID)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.messages = msgs
	s.seq = seq
	s.mu.Unlock()
	return nil
}

// Join registers a user as online and counts the connection. The room
// metadata write happens first; if it fails the join fails and no live
// state changes.
func (s *Session) Join(ctx context.Context, userID, displayName string) error {
	if _, err := s.store.EnsureRoom(ctx, s.roomID, s.roomID, userID); err != nil {
		return err
	}

	s.mu.Lock()
	if s.cfg.MaxRoomSize > 0 {
		if _, rejoining := s.presence[userID]; !rejoining && s.onlineLocked() >= s.cfg.MaxRoomSize {
			s.mu.Unlock()
			return ErrRoomFull
		}
	}
	s.presence[userID] = &presenceEntry{name: displayName, online: true, lastSeen: s.now().UTC()}
	s.conns++
	s.publishPresenceLocked()
	s.mu.Unlock()
	return nil
}

// Heartbeat refreshes a user's lastSeen without changing flags.
func (s *Session) Heartbeat(userID string) {
	s.mu.Lock()
	if p, ok := s.presence[userID]; ok {
		p.lastSeen = s.now().UTC()
	}
	s.mu.Unlock()
}

// MarkOffline flips a user's presence to offline with lastSeen = now.
// Idempotent; unknown users are ignored.
func (s *Session) MarkOffline(userID string) {
	s.mu.Lock()
	p, ok := s.presence[userID]
	if ok && p.online {
		p.online = false
		p.lastSeen = s.now().UTC()
		s.publishPresenceLocked()
	}
	s.mu.Unlock()
}

// Disconnect is the transport close callback: it marks the user offline,
// clears their typing flag, and releases the connection slot. When the
// last connection drops the room goes inactive and the typing map clears;
// room state itself is retained for the sweeper to judge.
func (s *Session) Disconnect(userID string) {
	s.mu.Lock()
	if p, ok := s.presence[userID]; ok && p.online {
		p.online = false
		p.lastSeen = s.now().UTC()
		s.publishPresenceLocked()
	}
	s.clearTypingLocked(userID)
	if s.conns > 0 {
		s.conns--
	}
	if s.conns == 0 {
		for u := range s.typing {
			s.clearTypingLocked(u)
		}
	}
	s.mu.Unlock()
}

// Append validates, persists, and fans out a new message. The server
// assigns id, timestamp, sequence number, and expiry. On a store failure
// nothing is published: the cached snapshot other subscribers see is
// untouched and the error goes back to the sender only.
func (s *Session) Append(ctx context.Context, senderID, senderName, text string) (protocol.Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return protocol.Message{}, ErrEmptyMessage
	}
	if s.cfg.MaxMessageLength > 0 && utf8.RuneCountInString(text) > s.cfg.MaxMessageLength {
		return protocol.Message{}, ErrMessageTooLong
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	created := s.now().UTC()
	msg := protocol.Message{
		ID:         uuid.New().String(),
		RoomID:     s.roomID,
		SenderID:   senderID,
		SenderName: senderName,
		Text:       text,
		Seq:        s.seq + 1,
		CreatedAt:  created,
		ExpiresAt:  created.Add(s.cfg.MessageRetention),
	}
	if err := s.store.AppendMessage(ctx, msg); err != nil {
		return protocol.Message{}, err
	}
	s.seq = msg.Seq
	s.messages = append(s.messages, msg)
	s.publishMessagesLocked()
	return msg, nil
}

// SetTyping updates a user's typing flag. Setting it true arms an
// auto-revert after the configured window; every call cancels the prior
// timer first, so the last writer always wins.
func (s *Session) SetTyping(userID string, isTyping bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !isTyping {
		if s.clearTypingLocked(userID) {
			s.publishTypingLocked()
		}
		return
	}

	if st, ok := s.typing[userID]; ok {
		st.timer.Stop()
	}
	s.typeGen++
	gen := s.typeGen
	st := &typingState{gen: gen}
	st.timer = time.AfterFunc(s.cfg.TypingWindow, func() {
		s.revertTyping(userID, gen)
	})
	_, wasTyping := s.typing[userID]
	s.typing[userID] = st
	if !wasTyping {
		s.publishTypingLocked()
	}
}

// revertTyping is the timer callback. It only clears the flag if no newer
// SetTyping call replaced this timer's generation.
func (s *Session) revertTyping(userID string, gen uint64) {
	s.mu.Lock()
	if st, ok := s.typing[userID]; ok && st.gen == gen {
		delete(s.typing, userID)
		s.publishTypingLocked()
	}
	s.mu.Unlock()
}

// clearTypingLocked stops and removes a user's typing timer. Returns true
// if a flag was actually cleared. Caller holds s.mu.
func (s *Session) clearTypingLocked(userID string) bool {
	st, ok := s.typing[userID]
	if !ok {
		return false
	}
	st.timer.Stop()
	delete(s.typing, userID)
	return true
}

// Subscribe registers a snapshot consumer. The current message, presence,
// and typing snapshots are queued immediately, then one full snapshot per
// change. The returned channel is closed on Unsubscribe.
func (s *Session) Subscribe() (int, <-chan protocol.ServerEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch := make(chan protocol.ServerEvent, 16)
	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch

	ch <- protocol.ServerEvent{Event: protocol.EventMessages, Room: s.roomID, Messages: s.messagesCopyLocked()}
	ch <- protocol.ServerEvent{Event: protocol.EventPresence, Room: s.roomID, Presence: s.presenceCopyLocked()}
	ch <- protocol.ServerEvent{Event: protocol.EventTyping, Room: s.roomID, Typing: s.typingCopyLocked()}
	return id, ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (s *Session) Unsubscribe(id int) {
	s.mu.Lock()
	if ch, ok := s.subs[id]; ok {
		delete(s.subs, id)
		close(ch)
	}
	s.mu.Unlock()
}

// DropMessage removes a message from the cached history (after the durable
// delete has already happened) and republishes. No-op if absent.
func (s *Session) DropMessage(messageID string) {
	s.mu.Lock()
	for i, m := range s.messages {
		if m.ID == messageID {
			s.messages = append(s.messages[:i], s.messages[i+1:]...)
			s.publishMessagesLocked()
			break
		}
	}
	s.mu.Unlock()
}

// ClearMessages empties the cached history and republishes.
func (s *Session) ClearMessages() {
	s.mu.Lock()
	if len(s.messages) > 0 {
		s.messages = nil
		s.publishMessagesLocked()
	}
	s.mu.Unlock()
}

// Messages returns a copy of the current ordered history snapshot.
func (s *Session) Messages() []protocol.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.messagesCopyLocked()
}

// Presence returns a copy of the current presence map.
func (s *Session) Presence() map[string]protocol.PresenceEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.presenceCopyLocked()
}

// Typing returns the set of currently typing user ids.
func (s *Session) Typing() map[string]bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.typingCopyLocked()
}

// OnlineCount returns the number of online presence entries.
func (s *Session) OnlineCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.onlineLocked()
}

// Active reports whether the room has at least one live connection.
func (s *Session) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conns > 0
}

// Stats returns connection count, cached message count, and last sequence.
func (s *Session) Stats() (conns, msgs int, lastSeq int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conns, len(s.messages), s.seq
}

func (s *Session) onlineLocked() int {
	n := 0
	for _, p := range s.presence {
		if p.online {
			n++
		}
	}
	return n
}

func (s *Session) messagesCopyLocked() []protocol.Message {
	out := make([]protocol.Message, len(s.messages))
	copy(out, s.messages)
	return out
}

func (s *Session) presenceCopyLocked() map[string]protocol.PresenceEntry {
	out := make(map[string]protocol.PresenceEntry, len(s.presence))
	for id, p := range s.presence {
		out[id] = protocol.PresenceEntry{DisplayName: p.name, Online: p.online, LastSeen: p.lastSeen}
	}
	return out
}

func (s *Session) typingCopyLocked() map[string]bool {
	out := make(map[string]bool, len(s.typing))
	for id := range s.typing {
		out[id] = true
	}
	return out
}

func (s *Session) publishMessagesLocked() {
	s.publishLocked(protocol.ServerEvent{Event: protocol.EventMessages, Room: s.roomID, Messages: s.messagesCopyLocked()})
}

func (s *Session) publishPresenceLocked() {
	s.publishLocked(protocol.ServerEvent{Event: protocol.EventPresence, Room: s.roomID, Presence: s.presenceCopyLocked()})
}

func (s *Session) publishTypingLocked() {
	s.publishLocked(protocol.ServerEvent{Event: protocol.EventTyping, Room: s.roomID, Typing: s.typingCopyLocked()})
}

func (s *Session) publishLocked(ev protocol.ServerEvent) {
	for _, ch := range s.subs {
		select {
		case ch <- ev:
		default:
			// Subscriber too slow; drop this snapshot. A later one
			// carries the complete state anyway.
		}
	}
}
