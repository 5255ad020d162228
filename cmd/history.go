package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"rmcli/internal/model"
	"rmcli/internal/storage"
)

func init() {
	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "View the journal of recent API calls",
		Long: `View the journal of recent API calls.

Only the method, path, status and timing of each call are kept; bodies,
query strings and tokens are never recorded.`,
		Args: cobra.NoArgs,
		Run:  runHistoryList,
	}

	historyCmd.Flags().IntP("limit", "n", 10, "Number of calls to show")

	showCmd := &cobra.Command{
		Use:   "show <id or index>",
		Short: "Show full details of a call",
		Args:  cobra.ExactArgs(1),
		Run:   runHistoryShow,
	}

	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Clear all history",
		Args:  cobra.NoArgs,
		Run:   runHistoryClear,
	}

	historyCmd.AddCommand(showCmd, clearCmd)
	rootCmd.AddCommand(historyCmd)
}

func loadJournal() *storage.Journal {
	j, err := storage.OpenJournal(storage.JournalPath(rt.store.DataDir()))
	if err != nil {
		fail(fmt.Errorf("%w: failed to open history: %w", storage.ErrIOFailure, err))
	}
	rt.closers = append(rt.closers, j)
	return j
}

func runHistoryList(cmd *cobra.Command, args []string) {
	journal := loadJournal()

	records, err := journal.List(0)
	if err != nil {
		fail(fmt.Errorf("%w: failed to load history: %w", storage.ErrIOFailure, err))
	}

	limit, _ := cmd.Flags().GetInt("limit")
	if structuredOutput(cmd) {
		if limit > 0 && limit < len(records) {
			records = records[:limit]
		}
		if err := printer().PrintValue(records); err != nil {
			fail(err)
		}
		return
	}
	printer().PrintHistoryList(records, limit)
}

func runHistoryShow(cmd *cobra.Command, args []string) {
	journal := loadJournal()
	identifier := args[0]

	var rec *model.CallRecord

	// Try to parse as index first (1-based)
	if index, err := strconv.Atoi(identifier); err == nil && index > 0 {
		records, err := journal.List(index)
		if err != nil {
			fail(fmt.Errorf("%w: failed to load history: %w", storage.ErrIOFailure, err))
		}
		if index <= len(records) {
			rec = &records[index-1]
		}
	}

	// Try to find by ID
	if rec == nil {
		found, err := journal.Get(identifier)
		if err != nil {
			fail(fmt.Errorf("%w: failed to load history: %w", storage.ErrIOFailure, err))
		}
		rec = found
	}

	if rec == nil {
		fail(fmt.Errorf("%w: call not found: %s", errUsage, identifier))
	}

	if structuredOutput(cmd) {
		if err := printer().PrintValue(rec); err != nil {
			fail(err)
		}
		return
	}
	printer().PrintCallRecord(rec)
}

func runHistoryClear(cmd *cobra.Command, args []string) {
	journal := loadJournal()

	if err := journal.Clear(); err != nil {
		fail(fmt.Errorf("%w: failed to clear history: %w", storage.ErrIOFailure, err))
	}

	printer().PrintSuccess("History cleared")
}
