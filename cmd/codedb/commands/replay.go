package commands

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/codescope/codedb/internal/cli/output"
	"github.com/codescope/codedb/internal/logger"
	"github.com/codescope/codedb/pkg/driver"
	"github.com/codescope/codedb/pkg/driver/sqlite"
	"github.com/codescope/codedb/pkg/journal"
)

var (
	replayDatabase    string
	replayOnlySuccess bool
	replayLimit       int
)

var replayCmd = &cobra.Command{
	Use:   "replay <journal_file>",
	Short: "Replay a query journal into a database",
	Long: `Replay a query journal against a database, re-executing each journaled
statement in append order. The target database is opened directly; stop
the daemon first so the two do not compete for the file.

Replay is meant for crash recovery: restore a schema-compatible empty
database, then replay the journal (oldest rotated sibling first).

Examples:
  codedb replay queries.jsonl --database restored.sqlite
  codedb replay queries.jsonl.1 --database restored.sqlite --only-success`,
	Args: cobra.ExactArgs(1),
	RunE: runReplay,
}

func init() {
	replayCmd.Flags().StringVar(&replayDatabase, "database", "", "target database file (required)")
	replayCmd.Flags().BoolVar(&replayOnlySuccess, "only-success", true, "skip statements journaled as failed")
	replayCmd.Flags().IntVar(&replayLimit, "limit", 0, "stop after this many statements (0 = all)")
	_ = replayCmd.MarkFlagRequired("database")
}

func runReplay(cmd *cobra.Command, args []string) error {
	if err := logger.Init(logger.Config{Level: "WARN", Format: "text", Output: "stderr"}); err != nil {
		return err
	}

	drv := sqlite.New(driver.Config{Path: replayDatabase}, journal.NewNullJournal(), nil)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	err := drv.Connect(ctx)
	cancel()
	if err != nil {
		return fmt.Errorf("open database %q: %w", replayDatabase, err)
	}
	defer func() { _ = drv.Disconnect() }()

	result, err := journal.Replay(args[0], func(sql string, params any) error {
		_, execErr := drv.Execute(context.Background(), sql, params, "")
		return execErr
	}, journal.ReplayOptions{
		OnlySuccess: replayOnlySuccess,
		Limit:       replayLimit,
	})
	if err != nil {
		return err
	}

	table := output.NewTableData("RESULT", "COUNT")
	table.AddRow("replayed", fmt.Sprintf("%d", result.Replayed))
	table.AddRow("failed", fmt.Sprintf("%d", result.Failed))
	if err := output.PrintTable(os.Stdout, table); err != nil {
		return err
	}

	for _, msg := range result.Errors {
		PrintErr("  %s", msg)
	}
	if result.Failed > 0 {
		return fmt.Errorf("%d statements failed during replay", result.Failed)
	}
	return nil
}
