package cli

import (
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"

	"github.com/spf13/cobra"
)

var (
	replayLimit int
	replayLevel string
)

var replayCmd = &cobra.Command{
	Use:   "replay <filename>",
	Short: "Print the last entries of a stored log file",
	Args:  cobra.ExactArgs(1),
	RunE:  runReplay,
}

func init() {
	replayCmd.Flags().IntVar(&replayLimit, "limit", 100, "Maximum number of entries")
	replayCmd.Flags().StringVar(&replayLevel, "level", "", "Only entries at or above this level (debug, info, warn, error)")
}

func runReplay(cmd *cobra.Command, args []string) error {
	q := url.Values{}
	q.Set("limit", strconv.Itoa(replayLimit))
	if replayLevel != "" {
		q.Set("level", replayLevel)
	}

	resp, err := apiGet("/v1/logs/" + url.PathEscape(args[0]) + "?" + q.Encode())
	if err != nil {
		return fmt.Errorf("server unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("replay failed: %s", string(body))
	}

	// Entries arrive as NDJSON, one per line, already in storage order.
	_, err = io.Copy(os.Stdout, resp.Body)
	return err
}
