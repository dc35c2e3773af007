package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/talkdrop/talkdrop/internal/protocol"
	"github.com/talkdrop/talkdrop/internal/store"
)

// Handlers holds references needed by HTTP handlers.
type Handlers struct {
	Hub        *Hub
	Store      Store
	AdminToken string
	StartTime  time.Time
}

// Health handles GET /api/health.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	uptime := time.Since(h.StartTime)
	resp := protocol.HealthResponse{
		Status:    "ok",
		Uptime:    uptime.Round(time.Second).String(),
		UptimeSec: uptime.Seconds(),
		Rooms:     h.Hub.SessionCount(),
	}
	writeJSON(w, http.StatusOK, resp)
}

// ListRooms handles GET /api/rooms. Registered rooms come from the durable
// registry; live connection and message stats from the hub where a session
// exists.
func (h *Handlers) ListRooms(w http.ResponseWriter, r *http.Request) {
	metas, err := h.Store.ListRooms(r.Context())
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	rooms := make([]protocol.RoomInfo, 0, len(metas))
	for _, m := range metas {
		info := protocol.RoomInfo{ID: m.ID, Name: m.Name}
		if s := h.Hub.Session(m.ID); s != nil {
			conns, msgs, lastSeq := s.Stats()
			info.Clients = conns
			info.Online = s.OnlineCount()
			info.MessageCount = msgs
			info.LastSeq = lastSeq
		} else {
			n, err := h.Store.CountRoomMessages(r.Context(), m.ID)
			if err != nil {
				log.Printf("list rooms: count messages for %s: %v", m.ID, err)
			} else {
				info.MessageCount = n
			}
		}
		rooms = append(rooms, info)
	}
	writeJSON(w, http.StatusOK, protocol.RoomList{Rooms: rooms})
}

// SendMessage handles POST /api/rooms/{room}/messages.
func (h *Handlers) SendMessage(w http.ResponseWriter, r *http.Request) {
	roomID := r.PathValue("room")
	if err := ValidateRoomID(roomID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req protocol.SendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %v", err))
		return
	}
	senderID, senderName, err := h.resolveSender(req.SenderID, req.SenderName)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}

	// A room exists from the first message send onward.
	if _, err := h.Store.EnsureRoom(r.Context(), roomID, roomID, senderID); err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}

	session, err := h.Hub.GetOrCreateSession(r.Context(), roomID)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	msg, err := session.Append(r.Context(), senderID, senderName, req.Text)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	session.SetTyping(senderID, false)
	writeJSON(w, http.StatusCreated, msg)
}

// GetMessages handles GET /api/rooms/{room}/messages. The full ordered
// history snapshot, same shape the WebSocket fan-out delivers.
func (h *Handlers) GetMessages(w http.ResponseWriter, r *http.Request) {
	roomID := r.PathValue("room")
	if err := ValidateRoomID(roomID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var msgs []protocol.Message
	if s := h.Hub.Session(roomID); s != nil {
		msgs = s.Messages()
	} else {
		var err error
		msgs, err = h.Store.Messages(r.Context(), roomID)
		if err != nil {
			writeError(w, statusFor(err), err.Error())
			return
		}
	}
	if msgs == nil {
		msgs = []protocol.Message{}
	}
	writeJSON(w, http.StatusOK, protocol.MessageList{Room: roomID, Messages: msgs, Count: len(msgs)})
}

// GetPresence handles GET /api/rooms/{room}/presence.
func (h *Handlers) GetPresence(w http.ResponseWriter, r *http.Request) {
	roomID := r.PathValue("room")
	if err := ValidateRoomID(roomID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	presence := map[string]protocol.PresenceEntry{}
	if s := h.Hub.Session(roomID); s != nil {
		presence = s.Presence()
	}
	writeJSON(w, http.StatusOK, protocol.PresenceMap{Room: roomID, Presence: presence})
}

// HandleWS handles WS /ws/{room}?user_id={id}&name={name}.
func (h *Handlers) HandleWS(w http.ResponseWriter, r *http.Request) {
	roomID := r.PathValue("room")
	if err := ValidateRoomID(roomID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	userID, name, err := h.resolveSender(r.URL.Query().Get("user_id"), r.URL.Query().Get("name"))
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	ServeWS(h.Hub, w, r, roomID, userID, name)
}

// resolveSender applies the anonymous-access policy. With anonymous access
// enabled, a missing identity gets a generated id and placeholder name; with
// it disabled, both fields are required.
func (h *Handlers) resolveSender(userID, name string) (string, string, error) {
	if userID == "" || name == "" {
		if !h.Hub.cfg.AllowAnonymous {
			return "", "", ErrAnonymous
		}
		if userID == "" {
			userID = uuid.New().String()
		}
		if name == "" {
			name = "anonymous"
		}
	}
	return userID, name, nil
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrEmptyMessage),
		errors.Is(err, ErrMessageTooLong),
		errors.Is(err, ErrInvalidRoomID):
		return http.StatusBadRequest
	case errors.Is(err, ErrAnonymous), errors.Is(err, ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, ErrRoomFull):
		return http.StatusConflict
	case errors.Is(err, store.ErrNotInitialized):
		return http.StatusServiceUnavailable
	default:
		// Collaborator I/O failure; the caller may retry.
		return http.StatusServiceUnavailable
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, protocol.ErrorResponse{Error: msg})
}
