package app

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/voidstore/internal/agent"
	"github.com/blackwell-systems/voidstore/internal/logger"
	"github.com/blackwell-systems/voidstore/internal/output"
	"github.com/blackwell-systems/voidstore/internal/xbps"
)

var (
	mirrorsYes bool

	mirrorsCmd = &cobra.Command{
		Use:   "mirrors",
		Short: "List repository mirrors",
		Long: `List the known Void Linux mirrors. The selected mirrors are marked
with an asterisk; mirrors found in the system repository configuration
are marked active. When the system uses different known mirrors than the
selection, the selection follows the system and is saved.`,
		Args: cobra.NoArgs,
		RunE: runMirrors,
	}

	mirrorsSetCmd = &cobra.Command{
		Use:   "set <mirror>...",
		Short: "Select mirrors and rewrite the repository configuration",
		Long: `Select one or more mirrors by id, save the selection and replace
xbps.repository_config with one repository line per mirror. Update
commands pass the selected mirrors to xbps-install with -R.`,
		Args: cobra.MinimumNArgs(1),
		RunE: runMirrorsSet,
	}
)

func init() {
	mirrorsSetCmd.Flags().BoolVarP(&mirrorsYes, "yes", "y", false, "skip the confirmation prompt")
	mirrorsCmd.AddCommand(mirrorsSetCmd)
}

func runMirrors(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	sess, err := openSession(nil, nil)
	if err != nil {
		return err
	}
	defer sess.Close()
	a := sess.agent

	if err := a.DetectMirrors(); err != nil {
		return err
	}
	err = sess.wait(ctx, nil, func(s *agent.State) bool { return !s.Mirrors.Detecting })
	if err != nil {
		return err
	}

	s := a.State()
	if s.Mirrors.Error != "" {
		logger.Warn("could not read the repository configuration: %s", s.Mirrors.Error)
	}
	fmt.Print(output.RenderMirrors(xbps.Mirrors(), s.Settings.MirrorSelection, s.Mirrors.Detected))
	return nil
}

func runMirrorsSet(cmd *cobra.Command, args []string) error {
	for _, id := range args {
		if _, ok := xbps.FindMirror(id); !ok {
			return fmt.Errorf("unknown mirror %q (see 'voidstore mirrors')", id)
		}
	}
	ids := xbps.KnownMirrorIDs(args)

	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	if !mirrorsYes {
		if !confirm(stdin, fmt.Sprintf("Switch the repository configuration to %s?", strings.Join(ids, ", "))) {
			fmt.Println("Cancelled.")
			return nil
		}
	}

	sess, err := openSession(nil, nil)
	if err != nil {
		return err
	}
	defer sess.Close()
	a := sess.agent

	if err := a.SetMirrors(ids...); err != nil {
		return err
	}
	spinner := output.NewSpinner("Writing repository configuration...")
	err = sess.wait(ctx, spinner, func(s *agent.State) bool { return !s.Mirrors.Applying })
	if err != nil {
		return err
	}

	if msg := a.State().Mirrors.Error; msg != "" {
		return fmt.Errorf("failed to write repository configuration: %s", msg)
	}
	fmt.Printf("Using %s.\n", strings.Join(ids, ", "))
	return nil
}
