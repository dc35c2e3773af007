package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/talkdrop/talkdrop/internal/mcp"
)

func newMCPServeCmd() *cobra.Command {
	var token string

	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Run an MCP stdio server exposing TalkDrop tools",
		RunE: func(cmd *cobra.Command, args []string) error {
			if flagRoom == "" {
				return fmt.Errorf("room is required (use -r or TALKDROP_ROOM)")
			}
			if token == "" {
				token = os.Getenv("TALKDROP_ADMIN_TOKEN")
			}
			return mcp.Serve(mcp.Config{
				ServerURL:  flagServer,
				Room:       flagRoom,
				UserID:     flagUserID,
				Name:       flagName,
				AdminToken: token,
			})
		},
	}

	cmd.Flags().StringVar(&token, "token", "", "admin token for the get_stats tool")
	return cmd
}
