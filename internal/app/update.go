package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/voidstore/internal/agent"
	"github.com/blackwell-systems/voidstore/internal/output"
)

var (
	updateAll bool
	updateYes bool

	updateCmd = &cobra.Command{
		Use:   "update [package...]",
		Short: "Update packages",
		Long: `Update the named packages, or the whole system with --all, as one
xbps-install transaction. Progress is shown per package as xbps reports it.

Examples:
  voidstore update firefox
  voidstore update --all --yes`,
		RunE: runUpdate,
	}

	updatesCmd = &cobra.Command{
		Use:   "updates",
		Short: "List available updates",
		Args:  cobra.NoArgs,
		RunE:  runUpdates,
	}
)

func init() {
	updateCmd.Flags().BoolVar(&updateAll, "all", false, "update every installed package")
	updateCmd.Flags().BoolVarP(&updateYes, "yes", "y", false, "skip the confirmation prompt")
}

// checkUpdates runs an update check and waits for it.
func checkUpdates(ctx context.Context, sess *session) error {
	if err := sess.agent.CheckUpdates(); err != nil {
		return err
	}
	err := sess.wait(ctx, output.NewSpinner("Checking for updates..."), func(s *agent.State) bool {
		return !s.UpdatesChecking
	})
	if err != nil {
		return err
	}
	if msg := sess.agent.State().UpdatesError; msg != "" {
		return fmt.Errorf("update check failed: %s", msg)
	}
	return nil
}

func runUpdates(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	sess, err := openSession(nil, nil)
	if err != nil {
		return err
	}
	defer sess.Close()

	if err := checkUpdates(ctx, sess); err != nil {
		return err
	}
	fmt.Print(output.RenderUpdatesTable(sess.agent.State().Updates))
	return nil
}

func runUpdate(cmd *cobra.Command, args []string) error {
	if !updateAll && len(args) == 0 {
		return errors.New("specify packages to update or pass --all")
	}
	if updateAll && len(args) > 0 {
		return errors.New("--all cannot be combined with package names")
	}

	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	sess, err := openSession(nil, nil)
	if err != nil {
		return err
	}
	defer sess.Close()
	a := sess.agent

	// The check supplies the from/to versions recorded in the history and,
	// for --all, the set of packages to track.
	if err := checkUpdates(ctx, sess); err != nil {
		return err
	}
	s := a.State()

	names := args
	if updateAll {
		names = nil
		for _, rec := range s.Updates {
			names = append(names, rec.Name)
		}
		if len(names) == 0 {
			fmt.Println("System is up to date.")
			return nil
		}
		fmt.Print(output.RenderUpdatesTable(s.Updates))
		fmt.Println()
	}

	if !updateYes && !confirm(stdin, fmt.Sprintf("Update %d %s?", len(names), packageWord(len(names)))) {
		fmt.Println("Update cancelled.")
		return nil
	}

	if updateAll {
		err = a.SubmitUpdateAll()
	} else {
		err = a.SubmitUpdate(names...)
	}
	if err != nil {
		return err
	}

	progress := output.NewUpdateProgress(len(names))
	seq := a.LastEventSeq()
	for s.UpdateRunning {
		if err := a.Pump(ctx); err != nil {
			return err
		}
		changed := ""
		for _, e := range a.Events(seq) {
			seq = e.Seq
			if e.Kind == "update_status" {
				changed = e.Package
			}
		}
		if changed != "" {
			progress.Update(s.UpdateStatus.Snapshot(), changed)
		}
	}
	progress.Finish()

	if s.UpdateError != "" {
		fmt.Println()
		fmt.Print(output.RenderUpdateStatus(s.UpdateStatus.Snapshot()))
		return fmt.Errorf("update failed: %s", firstLine(s.UpdateError))
	}
	fmt.Printf("Updated %d %s.\n", len(names), packageWord(len(names)))
	return nil
}
