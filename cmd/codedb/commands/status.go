package commands

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/codescope/codedb/internal/cli/output"
	"github.com/codescope/codedb/pkg/dbclient"
)

var (
	statusSocket string
	statusFormat string
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show daemon health and queue statistics",
	Long: `Probe a running daemon and print its queue statistics.

Examples:
  codedb status
  codedb status --socket /tmp/codedb.sock
  codedb status -o json`,
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().StringVar(&statusSocket, "socket", "", "daemon socket path (default: from config)")
	statusCmd.Flags().StringVarP(&statusFormat, "output", "o", "table", "output format (table, json, yaml)")
}

func runStatus(cmd *cobra.Command, args []string) error {
	format, err := output.ParseFormat(statusFormat)
	if err != nil {
		return err
	}

	socket, err := resolveSocket(statusSocket)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	db, err := dbclient.Connect(ctx, socket)
	if err != nil {
		return fmt.Errorf("daemon at %q is not reachable: %w", socket, err)
	}
	defer func() { _ = db.Close() }()

	stats, err := db.QueueStats(ctx)
	if err != nil {
		return fmt.Errorf("fetch queue stats: %w", err)
	}

	printer := output.NewPrinter(os.Stdout, format)
	if format != output.FormatTable {
		return printer.Print(map[string]any{
			"socket": socket,
			"status": "ok",
			"queue":  stats,
		})
	}

	printer.Printf("Daemon at %s is healthy\n\n", socket)

	table := output.NewTableData("STAT", "VALUE")
	for _, key := range []string{
		"current_size", "pending", "max_size",
		"total_enqueued", "processed", "expired", "rejected",
	} {
		table.AddRow(key, formatStat(stats[key]))
	}
	return output.PrintTable(os.Stdout, table)
}

func formatStat(v any) string {
	switch n := v.(type) {
	case float64:
		return fmt.Sprintf("%.0f", n)
	case nil:
		return "-"
	default:
		return fmt.Sprintf("%v", n)
	}
}

// resolveSocket returns the explicit socket path or falls back to the
// configured one.
func resolveSocket(explicit string) (string, error) {
	if explicit != "" {
		return explicit, nil
	}
	cfg, err := loadConfigQuiet()
	if err != nil {
		return "", err
	}
	return cfg.Server.SocketPath, nil
}
