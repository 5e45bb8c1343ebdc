package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/DeBrosOfficial/logfan/pkg/config"
	"github.com/DeBrosOfficial/logfan/pkg/logging"
	"github.com/DeBrosOfficial/logfan/pkg/pipeline"
)

var (
	sendLevel     string
	sendComponent string
	sendData      []string
	sendFile      string
	sendCount     int
	sendConfig    string
	sendEnv       string
	sendUser      string
)

var sendCmd = &cobra.Command{
	Use:   "send <message>",
	Short: "Push one entry through the client pipeline and verify it arrived",
	Long:  "Builds the real client pipeline (config, redaction, batching) pointed at --server, logs one entry, then reads it back to confirm end-to-end delivery.",
	Args:  cobra.ExactArgs(1),
	RunE:  runSend,
}

func init() {
	sendCmd.Flags().StringVar(&sendLevel, "level", "info", "Entry level (debug, info, warn, error)")
	sendCmd.Flags().StringVar(&sendComponent, "component", "cli", "Entry component")
	sendCmd.Flags().StringArrayVar(&sendData, "data", nil, "Context field as key=value, repeatable")
	sendCmd.Flags().StringVar(&sendFile, "file", "cli-test.log", "Server-side log file to write to")
	sendCmd.Flags().IntVar(&sendCount, "count", 1, "Number of entries to send")
	sendCmd.Flags().StringVar(&sendConfig, "config", "", "Pipeline config file")
	sendCmd.Flags().StringVar(&sendEnv, "environment", "", "Environment tier (development, staging, production)")
	sendCmd.Flags().StringVar(&sendUser, "user", "", "User ID to attribute the entry to")
}

func runSend(cmd *cobra.Command, args []string) error {
	lvl, err := logging.ParseLevel(sendLevel)
	if err != nil {
		return err
	}
	if sendCount < 1 {
		return fmt.Errorf("--count must be at least 1")
	}

	fields := map[string]any{}
	for _, kv := range sendData {
		key, val, ok := strings.Cut(kv, "=")
		if !ok {
			return fmt.Errorf("--data wants key=value, got %q", kv)
		}
		fields[key] = val
	}
	// The marker survives redaction and batching untouched, so finding
	// it on the server proves these exact entries made the trip.
	marker := uuid.NewString()

	httpSection := map[string]any{
		"endpoint": strings.TrimRight(serverURL, "/"),
		"filename": sendFile,
	}
	if apiKey != "" {
		httpSection["api_key"] = apiKey
	}
	opts := []pipeline.Option{
		pipeline.WithOverrides(map[string]any{
			"role":     config.RoleClient,
			"features": map[string]any{"file": true},
			// The floor is forced down so the probe is never filtered
			// before it leaves.
			"levels": map[string]any{"client": "debug"},
			"http":   httpSection,
		}),
	}
	if sendConfig != "" {
		opts = append(opts, pipeline.WithConfigFile(sendConfig))
	}
	if sendEnv != "" {
		opts = append(opts, pipeline.WithEnvironment(sendEnv))
	}
	if sendUser != "" {
		opts = append(opts, pipeline.WithUserID(sendUser))
	}

	logger, report := pipeline.New(opts...)
	for _, p := range report.Problems {
		fmt.Fprintf(cmd.ErrOrStderr(), "⚠️  %v\n", p)
	}

	attached := false
	for _, name := range report.Sinks {
		if name == "http" {
			attached = true
		}
	}
	if !attached {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		logger.Close(ctx)
		return fmt.Errorf("http sink did not attach (sinks: %s), check features and rollout", strings.Join(report.Sinks, ", "))
	}

	for i := 0; i < sendCount; i++ {
		entryFields := make(map[string]any, len(fields)+2)
		for k, v := range fields {
			entryFields[k] = v
		}
		entryFields["probe"] = marker
		entryFields["seq"] = i
		logger.Emit(logging.Entry{
			Level:     lvl,
			Message:   args[0],
			Component: sendComponent,
			Context:   entryFields,
		})
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := logger.Flush(ctx); err != nil {
		logger.Close(ctx)
		return fmt.Errorf("flush: %w", err)
	}
	if err := logger.Close(ctx); err != nil {
		return fmt.Errorf("close: %w", err)
	}

	arrived, err := probeCount(sendFile, marker, sendCount)
	if err != nil {
		return fmt.Errorf("entries sent but read-back failed: %w", err)
	}
	if arrived < sendCount {
		return fmt.Errorf("only %d of %d entries arrived in %s, check the server logs", arrived, sendCount, sendFile)
	}

	if sendCount == 1 {
		fmt.Printf("✅ Delivered %s entry to %s (file %s)\n", lvl, serverURL, sendFile)
	} else {
		fmt.Printf("✅ Delivered %d %s entries to %s (file %s)\n", sendCount, lvl, serverURL, sendFile)
	}
	return nil
}

// probeCount replays the tail of the target file and counts entries
// carrying the marker.
func probeCount(filename, marker string, sent int) (int, error) {
	limit := sent + 50
	resp, err := apiGet("/v1/logs/" + url.PathEscape(filename) + "?limit=" + strconv.Itoa(limit))
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("replay returned %s", resp.Status)
	}

	found := 0
	sc := bufio.NewScanner(resp.Body)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for sc.Scan() {
		var probe struct {
			Context map[string]any `json:"context"`
		}
		if err := json.Unmarshal(sc.Bytes(), &probe); err != nil {
			continue
		}
		if probe.Context["probe"] == marker {
			found++
		}
	}
	return found, sc.Err()
}
