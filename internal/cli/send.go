package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/talkdrop/talkdrop/internal/protocol"
)

func newSendCmd() *cobra.Command {
	var body string

	cmd := &cobra.Command{
		Use:   "send [message]",
		Short: "Send a message to a room",
		Long: `Send a message to a room. Message content can come from:
  - Positional arguments (joined with spaces)
  - The --body flag
  - Stdin (if no args and no --body)`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if flagRoom == "" {
				return fmt.Errorf("room is required (use -r or TALKDROP_ROOM)")
			}

			var content string
			switch {
			case body != "":
				content = body
			case len(args) > 0:
				content = strings.Join(args, " ")
			default:
				stat, _ := os.Stdin.Stat()
				if (stat.Mode() & os.ModeCharDevice) == 0 {
					b, err := io.ReadAll(os.Stdin)
					if err != nil {
						return fmt.Errorf("read stdin: %w", err)
					}
					content = string(b)
				} else {
					return fmt.Errorf("no message provided (use args, --body, or pipe to stdin)")
				}
			}

			req := protocol.SendRequest{
				SenderID:   flagUserID,
				SenderName: flagName,
				Text:       strings.TrimRight(content, "\n"),
			}
			msg, err := postMessage(flagServer, flagRoom, req)
			if err != nil {
				return err
			}
			fmt.Fprintf(os.Stderr, "sent message #%d to room %q\n", msg.Seq, msg.RoomID)
			return nil
		},
	}

	cmd.Flags().StringVar(&body, "body", "", "message body (alternative to args/stdin)")
	return cmd
}
