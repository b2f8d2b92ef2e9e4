package app

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/voidstore/internal/operations"
	"github.com/blackwell-systems/voidstore/internal/output"
	"github.com/blackwell-systems/voidstore/internal/store"
)

var (
	historyLimit   int
	historyPackage string
	historyID      int64
	historyPrune   int
	historyClear   bool
	historyYes     bool

	historyCmd = &cobra.Command{
		Use:   "history",
		Short: "Show the operation history",
		Long: `Show recorded install, remove and update operations, newest first.

Examples:
  # Last 20 operations
  voidstore history

  # Everything done to one package
  voidstore history --package firefox

  # Full output of one operation
  voidstore history --id 42

  # Keep only the newest 100 rows
  voidstore history --prune 100`,
		Args: cobra.NoArgs,
		RunE: runHistory,
	}
)

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "number of operations to show (0 for all)")
	historyCmd.Flags().StringVar(&historyPackage, "package", "", "only show operations on this package")
	historyCmd.Flags().Int64Var(&historyID, "id", 0, "show one operation with its full output")
	historyCmd.Flags().IntVar(&historyPrune, "prune", -1, "delete all but the newest N operations")
	historyCmd.Flags().BoolVar(&historyClear, "clear", false, "delete every recorded operation")
	historyCmd.Flags().BoolVarP(&historyYes, "yes", "y", false, "skip the confirmation prompt for --clear")
}

func runHistory(cmd *cobra.Command, args []string) error {
	st, err := openStore(cfg.DB.Path)
	if err != nil {
		return fmt.Errorf("failed to open history database: %w", err)
	}
	defer st.Close()

	switch {
	case historyClear:
		if !historyYes && !confirm(stdin, "Delete the entire operation history?") {
			fmt.Println("Clear cancelled.")
			return nil
		}
		if err := st.DeleteOperations(); err != nil {
			return err
		}
		fmt.Println("Operation history cleared.")
		return nil

	case historyPrune >= 0:
		removed, err := st.PruneOperations(historyPrune)
		if err != nil {
			return err
		}
		fmt.Printf("Pruned %d %s.\n", removed, operationWord(int(removed)))
		return nil

	case historyID > 0:
		op, err := st.GetOperation(historyID)
		if err != nil {
			return err
		}
		printOperation(op)
		return nil
	}

	var ops []operations.PackageOperation
	if historyPackage != "" {
		ops, err = st.ListPackageOperations(historyPackage)
		if err == nil && historyLimit > 0 && len(ops) > historyLimit {
			ops = ops[:historyLimit]
		}
	} else {
		ops, err = st.ListOperations(historyLimit)
	}
	if err != nil {
		return err
	}

	fmt.Print(output.RenderOperationsTable(ops))
	return printHistorySummary(st)
}

func printHistorySummary(st *store.Store) error {
	counts, err := st.CountOperations()
	if err != nil {
		if errors.Is(err, store.ErrNotInitialized) {
			return nil
		}
		return err
	}
	total := 0
	for _, n := range counts {
		total += n
	}
	if total == 0 {
		return nil
	}
	fmt.Printf("\n%d recorded: %d succeeded, %d with warnings, %d failed\n",
		total,
		counts[operations.StatusSuccess],
		counts[operations.StatusWarning],
		counts[operations.StatusFailed])
	return nil
}

func printOperation(op operations.PackageOperation) {
	fmt.Printf("Operation %d: %s %s\n", op.ID, op.Type, op.Package)
	fmt.Printf("Status:    %s\n", op.Status)
	fmt.Printf("Command:   %s\n", op.Command)
	fmt.Printf("Started:   %s\n", op.StartedAt.Format("2006-01-02 15:04:05"))
	if op.Finalized() {
		fmt.Printf("Took:      %s\n", op.Duration())
	}
	if op.HasExitCode {
		fmt.Printf("Exit code: %d\n", op.ExitCode)
	}
	if op.Error != "" {
		fmt.Printf("Error:     %s\n", op.Error)
	}
	for _, section := range []struct{ label, body string }{
		{"stdout", op.Stdout},
		{"stderr", op.Stderr},
	} {
		if body := strings.TrimSpace(section.body); body != "" {
			fmt.Printf("\n--- %s ---\n%s\n", section.label, body)
		}
	}
}
