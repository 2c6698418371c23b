package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/vietddude/resilience/internal/app"
	"github.com/vietddude/resilience/internal/core/config"
	"github.com/vietddude/resilience/internal/infra/httpapi"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the health of the backing stores",
	Run:   runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	client, err := httpapi.NewClient()
	if err != nil {
		slog.Error("Failed to build HTTP client", "error", err)
		os.Exit(1)
	}

	url := fmt.Sprintf("http://localhost:%d/health/detailed", cfg.Server.Port)
	resp, err := client.Get(context.Background(), url)
	if err != nil {
		slog.Error("Failed to query health endpoint", "url", url, "error", err)
		os.Exit(1)
	}

	var snap app.HealthSnapshot
	if err := json.Unmarshal(resp.Body, &snap); err != nil {
		slog.Error("Failed to parse health response", "error", err)
		os.Exit(1)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.Debug)
	_, _ = fmt.Fprintln(w, "COMPONENT\tHEALTHY\tCHECKED")
	_, _ = fmt.Fprintf(w, "database\t%t\t%s\n", snap.Database, snap.Timestamp.Format("15:04:05"))
	_, _ = fmt.Fprintf(w, "redis\t%t\t%s\n", snap.Redis, snap.Timestamp.Format("15:04:05"))
	_ = w.Flush()
}
