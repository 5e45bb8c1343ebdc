// Package cli implements the logfan command line tool: inspecting an
// ingest server, tailing stored files and exercising the local
// pipeline end to end.
package cli

import (
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

var (
	serverURL string
	apiKey    string
	timeout   time.Duration
	format    string
)

// Version metadata populated via -ldflags at build time.
var (
	buildVersion = "dev"
	buildCommit  = ""
	buildDate    = ""
)

// SetVersionInfo records build metadata for the version command.
func SetVersionInfo(version, commit, date string) {
	if version != "" {
		buildVersion = version
	}
	buildCommit = commit
	buildDate = date
}

var rootCmd = &cobra.Command{
	Use:           "logfan",
	Short:         "Structured logging pipeline tool",
	Long:          "Inspect a logfan ingest server, tail stored log files and exercise the local logging pipeline.",
	SilenceUsage:  true,
	SilenceErrors: false,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("logfan %s", buildVersion)
		if buildCommit != "" {
			fmt.Printf(" (commit %s)", buildCommit)
		}
		if buildDate != "" {
			fmt.Printf(" built %s", buildDate)
		}
		fmt.Println()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", envDefault("LOGFAN_SERVER", "http://localhost:7430"), "Ingest server base URL")
	rootCmd.PersistentFlags().StringVar(&apiKey, "api-key", envDefault("LOGFAN_INGEST_API_KEY", ""), "API key for the ingest server")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 30*time.Second, "Request timeout")
	rootCmd.PersistentFlags().StringVarP(&format, "format", "f", "table", "Output format: table, json")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(healthCmd)
	rootCmd.AddCommand(filesCmd)
	rootCmd.AddCommand(replayCmd)
	rootCmd.AddCommand(tailCmd)
	rootCmd.AddCommand(sendCmd)
	rootCmd.AddCommand(selftestCmd)
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func envDefault(key, def string) string {
	if v := os.Getenv(key); strings.TrimSpace(v) != "" {
		return v
	}
	return def
}

// apiGet performs an authenticated GET against the ingest server.
func apiGet(path string) (*http.Response, error) {
	req, err := http.NewRequest(http.MethodGet, strings.TrimRight(serverURL, "/")+path, nil)
	if err != nil {
		return nil, err
	}
	if apiKey != "" {
		req.Header.Set("X-API-Key", apiKey)
	}
	client := &http.Client{Timeout: timeout}
	return client.Do(req)
}

func formatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
