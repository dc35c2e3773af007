package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	flagServer string
	flagRoom   string
	flagUserID string
	flagName   string
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "talkdrop",
		Short: "TalkDrop - instant chat rooms for quick conversations",
	}

	root.PersistentFlags().StringVarP(&flagServer, "server", "s", envOrDefault("TALKDROP_SERVER", "http://localhost:8080"), "server URL")
	root.PersistentFlags().StringVarP(&flagRoom, "room", "r", envOrDefault("TALKDROP_ROOM", ""), "room id")
	root.PersistentFlags().StringVarP(&flagUserID, "user", "u", envOrDefault("TALKDROP_USER_ID", ""), "user id")
	root.PersistentFlags().StringVarP(&flagName, "name", "n", envOrDefault("TALKDROP_NAME", ""), "display name")

	root.AddCommand(
		newServeCmd(),
		newSendCmd(),
		newRoomsCmd(),
		newWatchCmd(),
		newStatsCmd(),
		newMCPServeCmd(),
	)

	return root
}

// Execute runs the CLI.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
