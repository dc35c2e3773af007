package mcp

import (
	"context"
	"fmt"
	"strings"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
)

// prop is a shorthand for building a JSON Schema property.
func prop(typ, desc string) any {
	return map[string]any{
		"type":        typ,
		"description": desc,
	}
}

// RegisterTools adds all TalkDrop tools to the MCP server.
func RegisterTools(srv *mcpserver.MCPServer, client *HTTPClient) {
	srv.AddTool(mcplib.Tool{
		Name:        "send_message",
		Description: "Send a chat message to the configured room.",
		InputSchema: mcplib.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"text": prop("string", "The message text to send"),
			},
			Required: []string{"text"},
		},
	}, makeSendMessageHandler(client))

	srv.AddTool(mcplib.Tool{
		Name:        "get_messages",
		Description: "Read the room's message history, oldest first.",
		InputSchema: mcplib.ToolInputSchema{
			Type:       "object",
			Properties: map[string]any{},
		},
	}, makeGetMessagesHandler(client))

	srv.AddTool(mcplib.Tool{
		Name:        "list_rooms",
		Description: "List all rooms on the server with their live stats.",
		InputSchema: mcplib.ToolInputSchema{
			Type:       "object",
			Properties: map[string]any{},
		},
	}, makeListRoomsHandler(client))

	srv.AddTool(mcplib.Tool{
		Name:        "get_stats",
		Description: "Fetch admin dashboard statistics (requires admin token).",
		InputSchema: mcplib.ToolInputSchema{
			Type:       "object",
			Properties: map[string]any{},
		},
	}, makeGetStatsHandler(client))
}

func makeSendMessageHandler(client *HTTPClient) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
		text := request.GetString("text", "")
		if text == "" {
			return mcplib.NewToolResultError("text is required"), nil
		}

		msg, err := client.SendMessage(text)
		if err != nil {
			return mcplib.NewToolResultError(fmt.Sprintf("failed to send: %v", err)), nil
		}
		return mcplib.NewToolResultText(fmt.Sprintf("Message sent (seq #%d)", msg.Seq)), nil
	}
}

func makeGetMessagesHandler(client *HTTPClient) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
		list, err := client.GetMessages()
		if err != nil {
			return mcplib.NewToolResultError(fmt.Sprintf("failed to get messages: %v", err)), nil
		}

		if len(list.Messages) == 0 {
			return mcplib.NewToolResultText("No messages found."), nil
		}

		var sb strings.Builder
		for _, m := range list.Messages {
			ts := m.CreatedAt.Local().Format("15:04:05")
			fmt.Fprintf(&sb, "[#%d %s] %s: %s\n", m.Seq, ts, m.SenderName, m.Text)
		}
		return mcplib.NewToolResultText(sb.String()), nil
	}
}

func makeListRoomsHandler(client *HTTPClient) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
		list, err := client.ListRooms()
		if err != nil {
			return mcplib.NewToolResultError(fmt.Sprintf("failed to list rooms: %v", err)), nil
		}

		if len(list.Rooms) == 0 {
			return mcplib.NewToolResultText("No rooms."), nil
		}

		var sb strings.Builder
		for _, r := range list.Rooms {
			fmt.Fprintf(&sb, "%s: %d online, %d messages (last seq %d)\n", r.ID, r.Online, r.MessageCount, r.LastSeq)
		}
		return mcplib.NewToolResultText(sb.String()), nil
	}
}

func makeGetStatsHandler(client *HTTPClient) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
		stats, err := client.GetStats()
		if err != nil {
			return mcplib.NewToolResultError(fmt.Sprintf("failed to get stats: %v", err)), nil
		}
		return mcplib.NewToolResultText(fmt.Sprintf(
			"rooms: %d total, %d active\nmessages: %d total, %d in last 24h\nactive users: %d",
			stats.TotalRooms, stats.ActiveRooms, stats.TotalMessages, stats.MessagesLast24h, stats.ActiveUsers,
		)), nil
	}
}
