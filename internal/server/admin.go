package server

import (
	"crypto/subtle"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/talkdrop/talkdrop/internal/protocol"
)

// requireAdmin wraps an admin handler with token authentication. Rejection
// happens before any mutation. With no token configured, the admin surface
// is disabled entirely.
func (h *Handlers) requireAdmin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if h.AdminToken == "" {
			writeError(w, http.StatusForbidden, "admin interface disabled")
			return
		}
		token := r.Header.Get("X-Admin-Token")
		if token == "" {
			token = strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		}
		if subtle.ConstantTimeCompare([]byte(token), []byte(h.AdminToken)) != 1 {
			writeError(w, http.StatusForbidden, ErrUnauthorized.Error())
			return
		}
		next(w, r)
	}
}

// AdminMessages handles GET /api/admin/messages?limit={n}. Messages across
// all rooms, newest first.
func (h *Handlers) AdminMessages(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "invalid limit parameter")
			return
		}
		limit = n
	}
	msgs, err := h.Store.AllMessages(r.Context(), limit)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	if msgs == nil {
		msgs = []protocol.AdminMessage{}
	}
	writeJSON(w, http.StatusOK, protocol.AdminMessageList{Messages: msgs, Count: len(msgs)})
}

// AdminStats handles GET /api/admin/stats. Computed on demand by scanning
// the registry, the message log, and live presence; nothing is cached.
func (h *Handlers) AdminStats(w http.ResponseWriter, r *http.Request) {
	rooms, err := h.Store.ListRooms(r.Context())
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	total, err := h.Store.CountMessages(r.Context(), time.Time{})
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	last24h, err := h.Store.CountMessages(r.Context(), time.Now().Add(-24*time.Hour))
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}

	stats := protocol.DashboardStats{
		TotalRooms:      len(rooms),
		TotalMessages:   total,
		MessagesLast24h: last24h,
	}
	for _, s := range h.Hub.Sessions() {
		if online := s.OnlineCount(); online > 0 {
			stats.ActiveRooms++
			stats.ActiveUsers += online
		}
	}
	writeJSON(w, http.StatusOK, stats)
}

// AdminDeleteMessage handles DELETE /api/admin/rooms/{room}/messages/{id}.
// Idempotent: deleting an absent message succeeds.
func (h *Handlers) AdminDeleteMessage(w http.ResponseWriter, r *http.Request) {
	roomID := r.PathValue("room")
	messageID := r.PathValue("id")
	if err := ValidateRoomID(roomID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.Store.DeleteMessage(r.Context(), roomID, messageID); err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	if s := h.Hub.Session(roomID); s != nil {
		s.DropMessage(messageID)
	}
	w.WriteHeader(http.StatusNoContent)
}

// AdminDeleteRoomMessages handles DELETE /api/admin/rooms/{room}/messages.
func (h *Handlers) AdminDeleteRoomMessages(w http.ResponseWriter, r *http.Request) {
	roomID := r.PathValue("room")
	if err := ValidateRoomID(roomID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.Store.DeleteRoomMessages(r.Context(), roomID); err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	if s := h.Hub.Session(roomID); s != nil {
		s.ClearMessages()
	}
	w.WriteHeader(http.StatusNoContent)
}

// AdminDeleteRoom handles DELETE /api/admin/rooms/{room}. Removes metadata,
// messages, and the live session with its subscribers.
func (h *Handlers) AdminDeleteRoom(w http.ResponseWriter, r *http.Request) {
	roomID := r.PathValue("room")
	if err := ValidateRoomID(roomID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.Store.DeleteRoom(r.Context(), roomID); err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	h.Hub.TearDown(roomID)
	w.WriteHeader(http.StatusNoContent)
}
