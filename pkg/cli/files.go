package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/DeBrosOfficial/logfan/pkg/ingest"
)

var filesCmd = &cobra.Command{
	Use:   "files",
	Short: "List log files stored on the server",
	RunE:  runFiles,
}

func runFiles(cmd *cobra.Command, args []string) error {
	resp, err := apiGet("/v1/logs")
	if err != nil {
		return fmt.Errorf("server unreachable: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("failed to list files: %s", string(body))
	}

	if format == "json" {
		fmt.Println(string(body))
		return nil
	}

	var result struct {
		Files []ingest.FileInfo `json:"files"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return err
	}

	if len(result.Files) == 0 {
		fmt.Println("No log files found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "NAME\tSIZE\tMODIFIED")
	for _, f := range result.Files {
		fmt.Fprintf(w, "%s\t%s\t%s\n", f.Name, formatBytes(f.Size), f.Modified.Format("2006-01-02 15:04:05"))
	}
	w.Flush()

	fmt.Printf("\nFiles: %d\n", len(result.Files))
	return nil
}
