package cli

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

var httpClient = &http.Client{Timeout: 10 * time.Second}

func apiURL(base, path string) string {
	return strings.TrimRight(base, "/") + path
}

func postMessage(server, room string, req protocol.SendRequest) (*protocol.Message, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal: %w", err)
	}

	url := apiURL(server, fmt.Sprintf("/api/rooms/%s/messages", room))
	resp, err := httpClient.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("POST %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, string(b))
	}

	var msg protocol.Message
	if err := json.NewDecoder(resp.Body).Decode(&msg); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &msg, nil
}

func getRooms(server string) (*protocol.RoomList, error) {
	url := apiURL(server, "/api/rooms")
	resp, err := httpClient.Get(url)
	if err != nil {
		return nil, fmt.Errorf("GET %s: %w", url, err)
	}
	defer resp.Body.Close()

	var list protocol.RoomList
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &list, nil
}

func getMessages(server, room string) (*protocol.MessageList, error) {
	url := apiURL(server, fmt.Sprintf("/api/rooms/%s/messages", room))
	resp, err := httpClient.Get(url)
	if err != nil {
		return nil, fmt.Errorf("GET %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, string(b))
	}

	var list protocol.MessageList
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &list, nil
}

func getStats(server, token string) (*protocol.DashboardStats, error) {
	url := apiURL(server, "/api/admin/stats")
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-Admin-Token", token)
	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("GET %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, string(b))
	}

	var stats protocol.DashboardStats
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &stats, nil
}

// formatMessage renders a message for terminal output.
func formatMessage(m protocol.Message) string {
	ts := m.CreatedAt.Local().Format("15:04:05")
	return fmt.Sprintf("[#%d %s] %s: %s", m.Seq, ts, m.SenderName, m.Text)
}
