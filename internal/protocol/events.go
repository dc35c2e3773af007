package protocol

// Client frame types, sent by a connected client over the WebSocket.
const (
	FrameMessage   = "message"
	FrameTyping    = "typing"
	FrameHeartbeat = "heartbeat"
)

// ClientFrame is the discriminated union read from a room WebSocket.
type ClientFrame struct {
	Type     string `json:"type"`
	Text     string `json:"text,omitempty"`
	IsTyping bool   `json:"is_typing,omitempty"`
}

// Server event types, pushed to subscribed clients.
const (
	EventMessages = "messages"
	EventPresence = "presence"
	EventTyping   = "typing"
	EventError    = "error"
)

// ServerEvent is the discriminated union pushed to room subscribers.
// Each event carries a full snapshot of one channel, never a delta:
// the complete ordered message list, the complete presence map, or the
// complete set of typing flags.
type ServerEvent struct {
	Event    string                   `json:"event"`
	Room     string                   `json:"room,omitempty"`
	Messages []Message                `json:"messages,omitempty"`
	Presence map[string]PresenceEntry `json:"presence,omitempty"`
	Typing   map[string]bool          `json:"typing,omitempty"`
	Error    string                   `json:"error,omitempty"`
}
