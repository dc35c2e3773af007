package cli

import (
	"fmt"
	"log"
	"net/url"
	"os"
	"os/signal"
	"sort"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	"github.com/talkdrop/talkdrop/internal/protocol"
)

func newWatchCmd() *cobra.Command {
	var showPresence bool

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Join a room and watch it live via WebSocket",
		RunE: func(cmd *cobra.Command, args []string) error {
			if flagRoom == "" {
				return fmt.Errorf("room is required (use -r or TALKDROP_ROOM)")
			}
			name := flagName
			if name == "" {
				name = "watcher"
			}

			wsURL := buildWSURL(flagServer, flagRoom, flagUserID, name)
			fmt.Fprintf(os.Stderr, "connecting to %s ...\n", wsURL)
			conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
			if err != nil {
				return fmt.Errorf("connect: %w", err)
			}
			defer conn.Close()
			fmt.Fprintf(os.Stderr, "connected to room %q as %q\n", flagRoom, name)

			interrupt := make(chan os.Signal, 1)
			signal.Notify(interrupt, os.Interrupt)

			done := make(chan struct{})
			go func() {
				defer close(done)
				var lastSeq int64
				for {
					var ev protocol.ServerEvent
					if err := conn.ReadJSON(&ev); err != nil {
						if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
							log.Printf("read error: %v", err)
						}
						return
					}

					switch ev.Event {
					case protocol.EventMessages:
						// Snapshots carry the whole history; print only
						// what is new since the last one.
						for _, m := range ev.Messages {
							if m.Seq > lastSeq {
								fmt.Println(formatMessage(m))
								lastSeq = m.Seq
							}
						}
					case protocol.EventPresence:
						if showPresence {
							fmt.Printf("-- online: %s\n", onlineNames(ev.Presence))
						}
					case protocol.EventTyping:
						if showPresence && len(ev.Typing) > 0 {
							fmt.Printf("-- typing: %d user(s)\n", len(ev.Typing))
						}
					case protocol.EventError:
						fmt.Fprintf(os.Stderr, "server error: %s\n", ev.Error)
					}
				}
			}()

			select {
			case <-done:
				return nil
			case <-interrupt:
				fmt.Fprintln(os.Stderr, "\ndisconnecting...")
				return conn.WriteMessage(
					websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				)
			}
		},
	}

	cmd.Flags().BoolVar(&showPresence, "presence", false, "also print presence and typing updates")
	return cmd
}

func onlineNames(presence map[string]protocol.PresenceEntry) string {
	var names []string
	for _, p := range presence {
		if p.Online {
			names = append(names, p.DisplayName)
		}
	}
	sort.Strings(names)
	if len(names) == 0 {
		return "(nobody)"
	}
	return strings.Join(names, ", ")
}

func buildWSURL(server, room, userID, name string) string {
	// Convert http(s) to ws(s).
	u := strings.TrimRight(server, "/")
	u = strings.Replace(u, "https://", "wss://", 1)
	u = strings.Replace(u, "http://", "ws://", 1)
	return fmt.Sprintf("%s/ws/%s?user_id=%s&name=%s", u, room, url.QueryEscape(userID), url.QueryEscape(name))
}
