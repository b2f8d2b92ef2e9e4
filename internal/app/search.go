package app

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/voidstore/internal/agent"
	"github.com/blackwell-systems/voidstore/internal/output"
)

var (
	searchLocal bool

	searchCmd = &cobra.Command{
		Use:   "search <term>",
		Short: "Search the repositories for packages",
		Long: `Search the configured repositories for packages whose name or
description matches the term. Installed packages are marked with *.

With --local no xbps command is run for the search itself: the term is
ranked fuzzily against the installed list and the spotlight cache.`,
		Args: cobra.MinimumNArgs(1),
		RunE: runSearch,
	}

	installedFilter string

	installedCmd = &cobra.Command{
		Use:   "installed [filter]",
		Short: "List installed packages",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runInstalled,
	}

	infoRemote bool

	infoCmd = &cobra.Command{
		Use:   "info <package>",
		Short: "Show details of a package",
		Long: `Show the details of an installed package: version, size, license,
dependencies and reverse dependencies.

With --remote the repository view is shown instead, which works for
packages that are not installed.`,
		Args: cobra.ExactArgs(1),
		RunE: runInfo,
	}
)

func init() {
	searchCmd.Flags().BoolVar(&searchLocal, "local", false, "rank installed and cached packages instead of querying repositories")
	installedCmd.Flags().StringVar(&installedFilter, "filter", "", "only list packages matching this substring")
	infoCmd.Flags().BoolVar(&infoRemote, "remote", false, "show the repository view of the package")
}

func runSearch(cmd *cobra.Command, args []string) error {
	term := strings.TrimSpace(strings.Join(args, " "))
	if term == "" {
		return errors.New("search term must not be empty")
	}

	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	sess, err := openSession(nil, nil)
	if err != nil {
		return err
	}
	defer sess.Close()
	a := sess.agent

	// The installed list is needed either way to mark results.
	a.RefreshInstalled()
	if !searchLocal {
		a.SubmitSearch(term)
	}

	spinner := output.NewSpinner(fmt.Sprintf("Searching for %q...", term))
	err = sess.wait(ctx, spinner, func(s *agent.State) bool {
		return !s.Searching && !s.InstalledLoading
	})
	if err != nil {
		return err
	}

	s := a.State()
	results := s.SearchResults
	if searchLocal {
		if s.InstalledError != "" {
			return fmt.Errorf("failed to list installed packages: %s", s.InstalledError)
		}
		results = a.SearchLocal(term)
	} else if s.SearchError != "" {
		return fmt.Errorf("search failed: %s", s.SearchError)
	}

	if len(results) == 0 {
		fmt.Printf("No packages found for %q.\n", term)
		return nil
	}
	fmt.Print(output.RenderPackageTable(results))
	return nil
}

func runInstalled(cmd *cobra.Command, args []string) error {
	filter := installedFilter
	if len(args) == 1 {
		filter = args[0]
	}

	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	sess, err := openSession(nil, nil)
	if err != nil {
		return err
	}
	defer sess.Close()
	a := sess.agent

	a.RefreshInstalled()
	err = sess.wait(ctx, output.NewSpinner("Reading installed packages..."), func(s *agent.State) bool {
		return !s.InstalledLoading
	})
	if err != nil {
		return err
	}
	if msg := a.State().InstalledError; msg != "" {
		return fmt.Errorf("failed to list installed packages: %s", msg)
	}

	records := a.FilterInstalled(filter)
	if len(records) == 0 {
		if filter != "" {
			fmt.Printf("No installed packages match %q.\n", filter)
		} else {
			fmt.Println("No packages installed.")
		}
		return nil
	}
	fmt.Print(output.RenderPackageTable(records))
	fmt.Printf("\n%d of %d installed packages\n", len(records), len(a.State().Installed))
	return nil
}

func runInfo(cmd *cobra.Command, args []string) error {
	name := strings.TrimSpace(args[0])
	if name == "" {
		return errors.New("package name must not be empty")
	}

	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	sess, err := openSession(nil, nil)
	if err != nil {
		return err
	}
	defer sess.Close()
	a := sess.agent

	a.RequestDetail(name, infoRemote)
	err = sess.wait(ctx, output.NewSpinner(fmt.Sprintf("Loading %s...", name)), func(s *agent.State) bool {
		return !s.DetailLoading
	})
	if err != nil {
		return err
	}

	s := a.State()
	switch {
	case s.DetailError != "":
		return fmt.Errorf("failed to load %s: %s", name, s.DetailError)
	case s.DiscoverDetail != nil:
		fmt.Print(output.RenderDiscoverDetail(*s.DiscoverDetail))
	case s.InstalledDetail != nil:
		fmt.Print(output.RenderInstalledDetail(*s.InstalledDetail))
	}
	return nil
}
