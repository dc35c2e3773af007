package protocol

import "time"

// Message is a chat message as stored and delivered to clients.
// CreatedAt and Seq are assigned by the server; together they give the
// total order within a room (CreatedAt first, Seq as tiebreak).
type Message struct {
	ID         string    `json:"id"`
	RoomID     string    `json:"room_id"`
	SenderID   string    `json:"sender_id"`
	SenderName string    `json:"sender_name"`
	Text       string    `json:"text"`
	Seq        int64     `json:"seq"`
	CreatedAt  time.Time `json:"created_at"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// PresenceEntry describes one user's presence within a room.
type PresenceEntry struct {
	DisplayName string    `json:"display_name"`
	Online      bool      `json:"online"`
	LastSeen    time.Time `json:"last_seen"`
}

// RoomMetadata describes a registered room.
type RoomMetadata struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	CreatedBy string    `json:"created_by"`
}

// SendRequest is the JSON body for POST /api/rooms/{room}/messages.
type SendRequest struct {
	SenderID   string `json:"sender_id"`
	SenderName string `json:"sender_name"`
	Text       string `json:"text"`
}

// MessageList is the response for message list endpoints.
type MessageList struct {
	Room     string    `json:"room"`
	Messages []Message `json:"messages"`
	Count    int       `json:"count"`
}

// RoomInfo describes an active room for listing.
type RoomInfo struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Clients      int    `json:"clients"`
	Online       int    `json:"online"`
	MessageCount int    `json:"message_count"`
	LastSeq      int64  `json:"last_seq"`
}

// RoomList is the response for GET /api/rooms.
type RoomList struct {
	Rooms []RoomInfo `json:"rooms"`
}

// PresenceMap is the response for GET /api/rooms/{room}/presence.
type PresenceMap struct {
	Room     string                   `json:"room"`
	Presence map[string]PresenceEntry `json:"presence"`
}

// HealthResponse is the response for GET /api/health.
type HealthResponse struct {
	Status    string  `json:"status"`
	Uptime    string  `json:"uptime"`
	UptimeSec float64 `json:"uptime_seconds"`
	Rooms     int     `json:"rooms"`
}

// AdminMessage is a message row in the admin view, tagged with its room.
type AdminMessage struct {
	ID         string    `json:"id"`
	RoomID     string    `json:"room_id"`
	SenderID   string    `json:"sender_id"`
	SenderName string    `json:"sender_name"`
	Text       string    `json:"text"`
	CreatedAt  time.Time `json:"created_at"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// AdminMessageList is the response for GET /api/admin/messages.
type AdminMessageList struct {
	Messages []AdminMessage `json:"messages"`
	Count    int            `json:"count"`
}

// DashboardStats is the response for GET /api/admin/stats.
type DashboardStats struct {
	TotalRooms      int `json:"total_rooms"`
	ActiveRooms     int `json:"active_rooms"`
	TotalMessages   int `json:"total_messages"`
	MessagesLast24h int `json:"messages_last_24h"`
	ActiveUsers     int `json:"active_users"`
}

// ErrorResponse is the JSON error body for failed requests.
type ErrorResponse struct {
	Error string `json:"error"`
}
