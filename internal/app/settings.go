package app

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/voidstore/internal/config"
	"github.com/blackwell-systems/voidstore/internal/xbps"
)

var (
	settingsCmd = &cobra.Command{
		Use:   "settings",
		Short: "Show or change user settings",
		Long: `Show the user settings stored in settings.json in the config
directory. A running 'voidstore serve' picks up changes immediately.`,
		Args: cobra.NoArgs,
		RunE: runSettingsShow,
	}

	settingsSetCmd = &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Change one setting",
		Long: `Change one setting and save the file.

Keys: ` + strings.Join(settingKeys(), ", "),
		Args: cobra.ExactArgs(2),
		RunE: runSettingsSet,
	}
)

func init() {
	settingsCmd.AddCommand(settingsSetCmd)
}

// settingSetters apply a string value to one settings field.
var settingSetters = map[string]func(*config.Settings, string) error{
	"auto_check_enabled": func(s *config.Settings, v string) error {
		return setBool(&s.AutoCheckEnabled, v)
	},
	"auto_check_frequency": func(s *config.Settings, v string) error {
		switch f := config.CheckFrequency(v); f {
		case config.CheckDaily, config.CheckWeekly:
			s.AutoCheckFrequency = f
			return nil
		}
		return fmt.Errorf("frequency must be daily or weekly, got %q", v)
	},
	"confirm_install": func(s *config.Settings, v string) error {
		return setBool(&s.ConfirmInstall, v)
	},
	"confirm_remove": func(s *config.Settings, v string) error {
		return setBool(&s.ConfirmRemove, v)
	},
	"notify_updates": func(s *config.Settings, v string) error {
		return setBool(&s.NotifyUpdates, v)
	},
	"theme_preference": func(s *config.Settings, v string) error {
		switch t := config.Theme(v); t {
		case config.ThemeSystem, config.ThemeLight, config.ThemeDark:
			s.ThemePreference = t
			return nil
		}
		return fmt.Errorf("theme must be system, light or dark, got %q", v)
	},
	"start_page": func(s *config.Settings, v string) error {
		switch p := config.StartPage(v); p {
		case config.StartDiscover, config.StartLastVisited:
			s.StartPage = p
			return nil
		}
		return fmt.Errorf("start page must be discover or last_visited, got %q", v)
	},
	"mirror_selection": func(s *config.Settings, v string) error {
		var ids []string
		for _, id := range strings.Split(v, ",") {
			if id = strings.TrimSpace(id); id == "" {
				continue
			}
			if _, ok := xbps.FindMirror(id); !ok {
				return fmt.Errorf("unknown mirror %q (see 'voidstore mirrors')", id)
			}
			ids = append(ids, id)
		}
		s.MirrorSelection = append([]string{}, xbps.KnownMirrorIDs(ids)...)
		return nil
	},
}

func settingKeys() []string {
	keys := make([]string, 0, len(settingSetters))
	for k := range settingSetters {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func setBool(dst *bool, v string) error {
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fmt.Errorf("expected true or false, got %q", v)
	}
	*dst = b
	return nil
}

func runSettingsShow(cmd *cobra.Command, args []string) error {
	path := cfg.SettingsPath()
	s := config.LoadSettings(path)
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize settings: %w", err)
	}
	fmt.Printf("# %s\n%s\n", path, data)
	return nil
}

func runSettingsSet(cmd *cobra.Command, args []string) error {
	key, value := args[0], args[1]
	set, ok := settingSetters[key]
	if !ok {
		return fmt.Errorf("unknown setting %q (valid: %s)", key, strings.Join(settingKeys(), ", "))
	}

	path := cfg.SettingsPath()
	s := config.LoadSettings(path)
	if err := set(&s, value); err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	if err := config.SaveSettings(path, s); err != nil {
		return err
	}
	fmt.Printf("%s = %s\n", key, value)
	return nil
}
