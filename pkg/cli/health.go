package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/DeBrosOfficial/logfan/pkg/monitor"
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Show ingest server health",
	RunE:  runHealth,
}

func runHealth(cmd *cobra.Command, args []string) error {
	resp, err := apiGet("/health")
	if err != nil {
		return fmt.Errorf("server unreachable: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if format == "json" {
		fmt.Println(string(body))
		if resp.StatusCode == http.StatusServiceUnavailable {
			return fmt.Errorf("server is unhealthy")
		}
		return nil
	}

	var h monitor.Health
	if err := json.Unmarshal(body, &h); err != nil {
		return fmt.Errorf("unexpected response: %s", string(body))
	}

	// A server running without the monitoring component answers with a
	// plain ok body, which decodes to an empty state.
	if h.State == "" {
		fmt.Println("✅ Server is up (monitoring disabled)")
		return nil
	}

	switch h.State {
	case monitor.StateHealthy:
		fmt.Printf("✅ %s\n", h.State)
	case monitor.StateDegraded:
		fmt.Printf("⚠️  %s\n", h.State)
	default:
		fmt.Printf("❌ %s\n", h.State)
	}

	for _, p := range h.Problems {
		fmt.Printf("   - %s\n", p)
	}

	fmt.Println()
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
	fmt.Fprintf(w, "Entries seen:\t%d\n", h.Stats.Total)
	fmt.Fprintf(w, "Error rate:\t%.0f%% (last %d entries)\n", h.Stats.ErrorRate*100, h.Stats.WindowSize)
	fmt.Fprintf(w, "Avg entry size:\t%s\n", formatBytes(int64(h.Stats.AvgEntrySize)))
	fmt.Fprintf(w, "Forwarded to tracking:\t%d\n", h.Stats.Forwarded)
	fmt.Fprintf(w, "Uptime:\t%ds\n", h.Stats.UptimeSeconds)
	if !h.Stats.LastEntry.IsZero() {
		fmt.Fprintf(w, "Last entry:\t%s\n", h.Stats.LastEntry.Format("2006-01-02 15:04:05 MST"))
	}
	if h.Memory != nil {
		fmt.Fprintf(w, "Host memory:\t%s / %s (%.0f%%)\n",
			formatBytes(int64(h.Memory.Used)), formatBytes(int64(h.Memory.Total)), h.Memory.UsedPercent)
	}

	levels := make([]string, 0, len(h.Stats.ByLevel))
	for lvl := range h.Stats.ByLevel {
		levels = append(levels, lvl)
	}
	sort.Strings(levels)
	for _, lvl := range levels {
		fmt.Fprintf(w, "  %s:\t%d\n", lvl, h.Stats.ByLevel[lvl])
	}
	w.Flush()

	if resp.StatusCode == http.StatusServiceUnavailable {
		return fmt.Errorf("server is unhealthy")
	}
	return nil
}
