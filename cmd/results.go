package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/cwbudde/crabalign/internal/report"
	"github.com/cwbudde/crabalign/internal/store"
	"github.com/spf13/cobra"
)

var (
	keepLast      int
	olderThanDays int
	forceClean    bool
	showJSON      bool
	showTrace     bool
)

var resultsCmd = &cobra.Command{
	Use:   "results",
	Short: "Manage stored alignment results",
	Long: `Manage results saved with "solve --save" or by the job server:
list them, show one in detail, or clean old ones.`,
}

var listResultsCmd = &cobra.Command{
	Use:   "list",
	Short: "List all stored results",
	Long:  `Display all results with metadata including ID, timestamp, crab count, best position, fuel and size.`,
	Args:  cobra.NoArgs,
	RunE:  runListResults,
}

var showResultCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show one result with every crab's move",
	Args:  cobra.ExactArgs(1),
	RunE:  runShowResult,
}

var cleanResultsCmd = &cobra.Command{
	Use:   "clean",
	Short: "Clean old results",
	Long: `Delete old results based on retention policy.
You can keep only the newest N results or delete results older than N days.`,
	Args: cobra.NoArgs,
	RunE: runCleanResults,
}

func init() {
	rootCmd.AddCommand(resultsCmd)

	resultsCmd.AddCommand(listResultsCmd)
	resultsCmd.AddCommand(showResultCmd)
	resultsCmd.AddCommand(cleanResultsCmd)

	showResultCmd.Flags().BoolVar(&showJSON, "json", false, "Print the full record as JSON")
	showResultCmd.Flags().BoolVar(&showTrace, "trace", false, "Also print every candidate's total from the saved trace")

	cleanResultsCmd.Flags().IntVar(&keepLast, "keep-last", 0, "Keep only the newest N results (0 = keep all)")
	cleanResultsCmd.Flags().IntVar(&olderThanDays, "older-than", 0, "Delete results older than N days (0 = no age limit)")
	cleanResultsCmd.Flags().BoolVarP(&forceClean, "force", "f", false, "Skip confirmation prompt")
}

func runListResults(cmd *cobra.Command, args []string) error {
	st, err := openStore(cmd.Context())
	if err != nil {
		return err
	}
	defer st.Close()

	infos, err := st.ListResults(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to list results: %w", err)
	}

	return writeResultTable(cmd.OutOrStdout(), st, infos)
}

// writeResultTable prints infos; the size column is only known for the fs store
func writeResultTable(out io.Writer, st store.Store, infos []store.RecordInfo) error {
	if len(infos) == 0 {
		fmt.Fprintln(out, "No results found.")
		return nil
	}

	fsStore, _ := st.(*store.FSStore)

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tCREATED\tCRABS\tCOST MODEL\tTARGET\tFUEL\tSIZE")
	fmt.Fprintln(w, "--\t-------\t-----\t----------\t------\t----\t----")

	for _, info := range infos {
		sizeStr := "-"
		if fsStore != nil {
			if size, err := getDirSize(fsStore.JobDir(info.ID)); err == nil {
				sizeStr = formatBytes(size)
			}
		}

		fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%d\t%d\t%s\n",
			shortID(info.ID),
			info.CreatedAt.Format("2006-01-02 15:04:05"),
			info.Crabs,
			info.CostModel,
			info.Target,
			info.Total,
			sizeStr,
		)
	}

	if err := w.Flush(); err != nil {
		return err
	}

	fmt.Fprintf(out, "\nTotal results: %d\n", len(infos))
	return nil
}

func runShowResult(cmd *cobra.Command, args []string) error {
	st, err := openStore(cmd.Context())
	if err != nil {
		return err
	}
	defer st.Close()

	return showResult(cmd.Context(), cmd.OutOrStdout(), st, cfg.Store.DataDir, args[0], showJSON, showTrace)
}

func showResult(ctx context.Context, out io.Writer, st store.Store, dataDir, id string, asJSON, withTrace bool) error {
	rec, err := st.LoadResult(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to load result: %w", err)
	}

	if asJSON {
		if err := report.WriteJSON(out, rec.Solution()); err != nil {
			return err
		}
	} else {
		fmt.Fprintf(out, "Result: %s\n", rec.ID)
		fmt.Fprintf(out, "Created: %s\n", rec.CreatedAt.Format(time.RFC3339))
		fmt.Fprintf(out, "Cost model: %s, strategy: %s, elapsed: %s\n\n", rec.CostModel, rec.Strategy, rec.Elapsed)
		if err := report.Write(out, rec.Solution(), report.Options{Verbose: true}); err != nil {
			return err
		}
	}

	if !withTrace {
		return nil
	}
	return printTrace(out, dataDir, id)
}

// printTrace prints the saved candidate totals, marking the winner
func printTrace(out io.Writer, dataDir, id string) error {
	tr, err := store.NewTraceReader(dataDir, id)
	if err != nil {
		return fmt.Errorf("failed to open trace: %w", err)
	}
	defer tr.Close()

	entries, err := tr.ReadAll()
	if err != nil {
		return fmt.Errorf("failed to read trace: %w", err)
	}

	fmt.Fprintln(out, "\nCandidates:")
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TARGET\tFUEL\t")
	for _, e := range entries {
		mark := ""
		if e.Best {
			mark = "<- best"
		}
		fmt.Fprintf(w, "%d\t%d\t%s\n", e.Target, e.Total, mark)
	}
	return w.Flush()
}

func runCleanResults(cmd *cobra.Command, args []string) error {
	if keepLast == 0 && olderThanDays == 0 {
		return fmt.Errorf("must specify either --keep-last or --older-than")
	}

	ctx := cmd.Context()
	st, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	infos, err := st.ListResults(ctx)
	if err != nil {
		return fmt.Errorf("failed to list results: %w", err)
	}

	out := cmd.OutOrStdout()
	if len(infos) == 0 {
		fmt.Fprintln(out, "No results to clean.")
		return nil
	}

	toDelete := selectResultsForDeletion(infos, keepLast, olderThanDays, time.Now())
	if len(toDelete) == 0 {
		fmt.Fprintln(out, "No results match deletion criteria.")
		return nil
	}

	fmt.Fprintf(out, "Found %d result(s) to delete:\n", len(toDelete))
	for _, info := range toDelete {
		fmt.Fprintf(out, "  - %s (%d crabs, %s)\n",
			shortID(info.ID),
			info.Crabs,
			info.CreatedAt.Format("2006-01-02 15:04:05"),
		)
	}

	if !forceClean && !confirm(cmd.InOrStdin(), out, "\nProceed with deletion? [y/N]: ") {
		fmt.Fprintln(out, "Aborted.")
		return nil
	}

	deleted, failed := deleteResults(ctx, st, cfg.Store.DataDir, toDelete)
	fmt.Fprintf(out, "\nDeleted %d result(s), %d failed.\n", deleted, failed)
	return nil
}

// deleteResults removes each record and its trace
func deleteResults(ctx context.Context, st store.Store, dataDir string, infos []store.RecordInfo) (deleted, failed int) {
	for _, info := range infos {
		if err := st.DeleteResult(ctx, info.ID); err != nil {
			slog.Error("Failed to delete result", "id", info.ID, "error", err)
			failed++
			continue
		}
		// Traces stay on the local disk whatever the backend
		if err := store.RemoveTrace(dataDir, info.ID); err != nil {
			slog.Warn("Failed to delete trace", "id", info.ID, "error", err)
		}
		slog.Info("Deleted result", "id", info.ID)
		deleted++
	}
	return deleted, failed
}

// selectResultsForDeletion applies the retention policy. A result is
// selected when it is older than olderThanDays or falls outside the newest
// keepLast; the returned list is oldest first with no duplicates.
func selectResultsForDeletion(infos []store.RecordInfo, keepLast int, olderThanDays int, now time.Time) []store.RecordInfo {
	sorted := slices.Clone(infos)
	slices.SortStableFunc(sorted, func(a, b store.RecordInfo) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})

	// Oldest entries beyond the newest keepLast
	excess := 0
	if keepLast > 0 && len(sorted) > keepLast {
		excess = len(sorted) - keepLast
	}

	var cutoff time.Time
	if olderThanDays > 0 {
		cutoff = now.AddDate(0, 0, -olderThanDays)
	}

	var toDelete []store.RecordInfo
	for i, info := range sorted {
		if i < excess || (olderThanDays > 0 && info.CreatedAt.Before(cutoff)) {
			toDelete = append(toDelete, info)
		}
	}
	return toDelete
}

// confirm reads a y/N answer
func confirm(in io.Reader, out io.Writer, prompt string) bool {
	fmt.Fprint(out, prompt)
	line, _ := bufio.NewReader(in).ReadString('\n')
	answer := strings.TrimSpace(line)
	return answer == "y" || answer == "Y"
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12] + "..."
	}
	return id
}

// getDirSize calculates the total size of a directory
func getDirSize(path string) (int64, error) {
	var size int64
	err := filepath.Walk(path, func(_ string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			size += info.Size()
		}
		return nil
	})
	return size, err
}

// formatBytes formats bytes as human-readable string
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
