package app

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/voidstore/internal/agent"
	"github.com/blackwell-systems/voidstore/internal/operations"
	"github.com/blackwell-systems/voidstore/internal/output"
)

var (
	installYes bool

	installCmd = &cobra.Command{
		Use:   "install <package>",
		Short: "Install a package",
		Long: `Install a package from the configured repositories with xbps-install.

The command runs through the privilege wrapper and is recorded in the
operation history. Set confirm_install to false in the settings, or pass
--yes, to skip the confirmation prompt.`,
		Args: cobra.ExactArgs(1),
		RunE: runInstall,
	}

	removeYes bool

	removeCmd = &cobra.Command{
		Use:   "remove <package>...",
		Short: "Remove one or more packages",
		Long: `Remove packages with xbps-remove. Several packages are removed in a
single transaction and share its outcome.`,
		Args: cobra.MinimumNArgs(1),
		RunE: runRemove,
	}
)

func init() {
	installCmd.Flags().BoolVarP(&installYes, "yes", "y", false, "skip the confirmation prompt")
	removeCmd.Flags().BoolVarP(&removeYes, "yes", "y", false, "skip the confirmation prompt")
}

func runInstall(cmd *cobra.Command, args []string) error {
	name := strings.TrimSpace(args[0])

	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	sess, err := openSession(nil, nil)
	if err != nil {
		return err
	}
	defer sess.Close()

	if sess.settings.ConfirmInstall && !installYes {
		if !confirm(stdin, fmt.Sprintf("Install %s?", name)) {
			fmt.Println("Install cancelled.")
			return nil
		}
	}

	a := sess.agent
	if err := a.SubmitInstall(name); err != nil {
		return err
	}
	err = sess.wait(ctx, output.NewSpinner(fmt.Sprintf("Installing %s...", name)), pendingDone(name))
	if err != nil {
		return err
	}
	return reportOperations(a.State(), []string{name})
}

func runRemove(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	sess, err := openSession(nil, nil)
	if err != nil {
		return err
	}
	defer sess.Close()

	if sess.settings.ConfirmRemove && !removeYes {
		fmt.Println("Packages to remove:")
		for _, name := range args {
			fmt.Printf("  %s\n", name)
		}
		if !confirm(stdin, fmt.Sprintf("Remove %d %s?", len(args), packageWord(len(args)))) {
			fmt.Println("Removal cancelled.")
			return nil
		}
	}

	a := sess.agent
	if err := a.SubmitRemove(args...); err != nil {
		return err
	}
	spinner := output.NewSpinner(fmt.Sprintf("Removing %d %s...", len(args), packageWord(len(args))))
	if err := sess.wait(ctx, spinner, pendingDone(args...)); err != nil {
		return err
	}
	return reportOperations(a.State(), args)
}

// pendingDone reports when none of names is pending any more.
func pendingDone(names ...string) func(*agent.State) bool {
	return func(s *agent.State) bool {
		for _, name := range names {
			if _, ok := s.Pending[strings.TrimSpace(name)]; ok {
				return false
			}
		}
		return true
	}
}

// reportOperations prints the latest operation of each package and returns
// an error if any of them failed.
func reportOperations(s *agent.State, names []string) error {
	failed := 0
	for _, name := range names {
		name = strings.TrimSpace(name)
		op, ok := s.History.Recent(name)
		if !ok {
			continue
		}
		switch op.Status {
		case operations.StatusSuccess:
			fmt.Printf("✓ %s %s\n", op.Type, name)
		case operations.StatusWarning:
			fmt.Printf("! %s %s: %s\n", op.Type, name, firstLine(op.Stderr))
		default:
			failed++
			fmt.Printf("✗ %s %s failed: %s\n", op.Type, name, firstLine(op.Error))
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d %s failed", failed, len(names), operationWord(len(names)))
	}
	return nil
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

func packageWord(n int) string {
	if n == 1 {
		return "package"
	}
	return "packages"
}

func operationWord(n int) string {
	if n == 1 {
		return "operation"
	}
	return "operations"
}
