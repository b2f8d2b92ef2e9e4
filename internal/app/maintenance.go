package app

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/voidstore/internal/agent"
	"github.com/blackwell-systems/voidstore/internal/output"
)

var (
	maintenanceYes bool

	maintenanceCmd = &cobra.Command{
		Use:   "maintenance <orphans|pkgdb|reconfigure|alternatives|cache>",
		Short: "Run an xbps maintenance task",
		Long: `Run one of the xbps maintenance tasks:

  orphans       remove orphaned packages (xbps-remove -O)
  pkgdb         check the package database (xbps-pkgdb -a)
  reconfigure   reconfigure every installed package (xbps-reconfigure -a)
  alternatives  list the registered alternatives (xbps-alternatives -l)
  cache         delete old package files from /var/cache/xbps, keeping
                the newest xbps.cache_keep versions of each package

Every task except alternatives runs through the privilege wrapper. The
cache task refuses to run while another xbps process is active.`,
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"orphans", "pkgdb", "reconfigure", "alternatives", "cache"},
		RunE:      runMaintenance,
	}
)

// maintenancePrompts holds the confirmation asked before destructive tasks.
var maintenancePrompts = map[agent.MaintenanceTask]string{
	agent.TaskRemoveOrphans: "Remove every orphaned package?",
	agent.TaskCacheClean:    "Delete old package files from the cache?",
}

func init() {
	maintenanceCmd.Flags().BoolVarP(&maintenanceYes, "yes", "y", false, "skip the confirmation prompt for orphans and cache")
}

func runMaintenance(cmd *cobra.Command, args []string) error {
	task, err := agent.ParseMaintenanceTask(args[0])
	if err != nil {
		return err
	}

	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	sess, err := openSession(nil, nil)
	if err != nil {
		return err
	}
	defer sess.Close()

	if prompt, ok := maintenancePrompts[task]; ok && !maintenanceYes {
		if !confirm(stdin, prompt) {
			fmt.Println("Cancelled.")
			return nil
		}
	}

	a := sess.agent
	if err := a.RunMaintenance(task); err != nil {
		return err
	}
	spinner := output.NewSpinner(fmt.Sprintf("Running %s...", task))
	err = sess.wait(ctx, spinner, func(s *agent.State) bool {
		return !s.Maintenance[task].Running
	})
	if err != nil {
		return err
	}

	res := a.State().Maintenance[task]
	fmt.Print(output.RenderMaintenance(task, res))
	if res.Error != "" {
		return fmt.Errorf("%s failed", task)
	}
	return nil
}
