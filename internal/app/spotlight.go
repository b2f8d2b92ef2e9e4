package app

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/blackwell-systems/voidstore/internal/agent"
	"github.com/blackwell-systems/voidstore/internal/logger"
	"github.com/blackwell-systems/voidstore/internal/output"
	"github.com/blackwell-systems/voidstore/internal/spotlight"
)

var (
	spotlightForce    bool
	spotlightCategory string

	spotlightCmd = &cobra.Command{
		Use:   "spotlight",
		Short: "Show recently built packages",
		Long: `Show packages built recently in the configured repositories, or the
curated picks of one category with --category.

The listing comes from a local cache that is refreshed when it is older
than spotlight.refresh_hours, or on demand with --force. A failed refresh
keeps showing the previous cache.

Categories: ` + categoryTags(),
		Args: cobra.NoArgs,
		RunE: runSpotlight,
	}
)

func init() {
	spotlightCmd.Flags().BoolVar(&spotlightForce, "force", false, "refresh the cache even if it is current")
	spotlightCmd.Flags().StringVar(&spotlightCategory, "category", "", "show one category instead of recent builds")
}

func categoryTags() string {
	var tags []string
	for _, c := range spotlight.AllCategories() {
		tags = append(tags, c.String())
	}
	return strings.Join(tags, ", ")
}

func runSpotlight(cmd *cobra.Command, args []string) error {
	var (
		category    spotlight.Category
		hasCategory bool
	)
	if spotlightCategory != "" {
		c, ok := spotlight.ParseCategory(spotlightCategory)
		if !ok {
			return fmt.Errorf("unknown category %q (valid: %s)", spotlightCategory, categoryTags())
		}
		category, hasCategory = c, true
	}

	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	sess, err := openSession(nil, nil)
	if err != nil {
		return err
	}
	defer sess.Close()
	a := sess.agent
	mgr := a.State().Spotlight

	a.RefreshInstalled()
	if a.TriggerSpotlightRefresh(spotlightForce) {
		logger.Info("spotlight cache is stale, refreshing")
	}
	spinner := output.NewSpinner("Refreshing spotlight...")
	err = sess.wait(ctx, spinner, func(s *agent.State) bool {
		return s.Spotlight.State() != spotlight.Refreshing && !s.InstalledLoading
	})
	if err != nil {
		return err
	}

	if mgr.State() == spotlight.Failed {
		fmt.Printf("Warning: spotlight refresh failed: %v\n", mgr.LastError())
		if mgr.Len() == 0 {
			return fmt.Errorf("no cached spotlight data")
		}
		fmt.Println("Showing cached data.")
		fmt.Println()
	}

	if hasCategory {
		fmt.Printf("%s\n\n", category.DisplayName())
		fmt.Print(output.RenderSpotlight(mgr.Category(category)))
	} else {
		fmt.Print(output.RenderSpotlight(mgr.Recent()))
	}

	if generated := mgr.GeneratedAt(); !generated.IsZero() {
		fmt.Printf("\n%s cached, generated %s\n",
			humanize.Comma(int64(mgr.Len()))+" "+packageWord(mgr.Len()),
			humanize.Time(generated))
	}
	return nil
}
