package cli

import (
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"
)

var tailBacklog int

var tailCmd = &cobra.Command{
	Use:   "tail <filename>",
	Short: "Stream a log file live over a websocket",
	Args:  cobra.ExactArgs(1),
	RunE:  runTail,
}

func init() {
	tailCmd.Flags().IntVar(&tailBacklog, "backlog", 10, "Recent entries to print before streaming")
}

func runTail(cmd *cobra.Command, args []string) error {
	u, err := url.Parse(serverURL)
	if err != nil {
		return fmt.Errorf("invalid server URL: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	u.Path = "/v1/logs/" + url.PathEscape(args[0]) + "/tail"
	q := url.Values{}
	if tailBacklog > 0 {
		q.Set("backlog", strconv.Itoa(tailBacklog))
	}
	u.RawQuery = q.Encode()

	header := http.Header{}
	if apiKey != "" {
		header.Set("X-API-Key", apiKey)
	}

	conn, resp, err := websocket.DefaultDialer.Dial(u.String(), header)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("tail failed: %s", resp.Status)
		}
		return fmt.Errorf("server unreachable: %w", err)
	}
	defer conn.Close()

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)
	defer signal.Stop(interrupt)

	done := make(chan error, 1)
	go func() {
		for {
			_, line, err := conn.ReadMessage()
			if err != nil {
				done <- err
				return
			}
			fmt.Println(string(line))
		}
	}()

	select {
	case err := <-done:
		if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
			fmt.Fprintln(os.Stderr, "server closed the stream")
			return nil
		}
		return err
	case <-interrupt:
		// Ask the server to close cleanly, then give the read loop a
		// moment to see the close frame.
		conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		select {
		case <-done:
		case <-time.After(time.Second):
		}
		return nil
	}
}
