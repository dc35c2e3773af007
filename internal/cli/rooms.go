package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newRoomsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rooms",
		Short: "List rooms on the server",
		RunE: func(cmd *cobra.Command, args []string) error {
			list, err := getRooms(flagServer)
			if err != nil {
				return err
			}

			if len(list.Rooms) == 0 {
				fmt.Println("no rooms")
				return nil
			}

			fmt.Printf("%-20s %8s %8s %8s %8s\n", "ROOM", "CLIENTS", "ONLINE", "MSGS", "LAST SEQ")
			for _, r := range list.Rooms {
				fmt.Printf("%-20s %8d %8d %8d %8d\n", r.ID, r.Clients, r.Online, r.MessageCount, r.LastSeq)
			}
			return nil
		},
	}
}
