package mcp

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/talkdrop/talkdrop/internal/protocol"
)

// HTTPClient talks to the TalkDrop server REST API.
type HTTPClient struct {
	BaseURL    string
	Room       string
	UserID     string
	Name       string
	AdminToken string
	client     *http.Client
}

// NewHTTPClient creates a new HTTP client for the MCP tools.
func NewHTTPClient(baseURL, room, userID, name, adminToken string) *HTTPClient {
	return &HTTPClient{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		Room:       room,
		UserID:     userID,
		Name:       name,
		AdminToken: adminToken,
		client:     &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *HTTPClient) url(path string) string {
	return c.BaseURL + path
}

// SendMessage posts a message to the configured room.
func (c *HTTPClient) SendMessage(text string) (*protocol.Message, error) {
	req := protocol.SendRequest{
		SenderID:   c.UserID,
		SenderName: c.Name,
		Text:       text,
	}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal: %w", err)
	}

	resp, err := c.client.Post(c.url(fmt.Sprintf("/api/rooms/%s/messages", c.Room)), "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("POST: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, string(b))
	}

	var msg protocol.Message
	if err := json.NewDecoder(resp.Body).Decode(&msg); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	return &msg, nil
}

// GetMessages fetches the room's full ordered history.
func (c *HTTPClient) GetMessages() (*protocol.MessageList, error) {
	resp, err := c.client.Get(c.url(fmt.Sprintf("/api/rooms/%s/messages", c.Room)))
	if err != nil {
		return nil, fmt.Errorf("GET: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, string(b))
	}

	var list protocol.MessageList
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	return &list, nil
}

// ListRooms fetches all rooms.
func (c *HTTPClient) ListRooms() (*protocol.RoomList, error) {
	resp, err := c.client.Get(c.url("/api/rooms"))
	if err != nil {
		return nil, fmt.Errorf("GET: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, string(b))
	}

	var list protocol.RoomList
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	return &list, nil
}

// GetStats fetches the admin dashboard statistics.
func (c *HTTPClient) GetStats() (*protocol.DashboardStats, error) {
	req, err := http.NewRequest(http.MethodGet, c.url("/api/admin/stats"), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-Admin-Token", c.AdminToken)
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("GET: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, string(b))
	}

	var stats protocol.DashboardStats
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	return &stats, nil
}
