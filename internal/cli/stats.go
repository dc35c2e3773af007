package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func newStatsCmd() *cobra.Command {
	var token string

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show admin dashboard statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			if token == "" {
				token = os.Getenv("TALKDROP_ADMIN_TOKEN")
			}
			if token == "" {
				return fmt.Errorf("admin token required (use --token or TALKDROP_ADMIN_TOKEN)")
			}

			stats, err := getStats(flagServer, token)
			if err != nil {
				return err
			}

			fmt.Printf("total rooms:       %d\n", stats.TotalRooms)
			fmt.Printf("active rooms:      %d\n", stats.ActiveRooms)
			fmt.Printf("total messages:    %d\n", stats.TotalMessages)
			fmt.Printf("messages last 24h: %d\n", stats.MessagesLast24h)
			fmt.Printf("active users:      %d\n", stats.ActiveUsers)
			return nil
		},
	}

	cmd.Flags().StringVar(&token, "token", "", "admin token")
	return cmd
}
