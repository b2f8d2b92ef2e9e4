package spotlight

import (
	"fmt"
	"strings"
)

// Category is a curated spotlight category.
type Category int

const (
	Browsers Category = iota
	Chat
	Email
	Games
	Graphics
	Music
	Productivity
	Utilities
	Video
)

type categoryInfo struct {
	tag       string
	display   string
	allowlist []string
}

var categories = [...]categoryInfo{
	Browsers:     {"browsers", "Browsers", []string{"firefox", "chromium", "ungoogled-chromium", "falkon", "surf"}},
	Chat:         {"chat", "Chat", []string{"element-desktop", "signal-desktop", "fractal", "weechat", "discord"}},
	Email:        {"email", "E-mail", []string{"thunderbird", "geary", "claws-mail", "mutt", "kmail"}},
	Games:        {"games", "Games", []string{"steam", "lutris", "minetest", "supertuxkart", "0ad"}},
	Graphics:     {"graphics", "Graphics", []string{"gimp", "inkscape", "krita", "blender", "darktable"}},
	Music:        {"music", "Music", []string{"audacity", "ardour", "lmms", "hydrogen", "mpd"}},
	Productivity: {"productivity", "Productivity", []string{"libreoffice", "onlyoffice-desktopeditors", "gnumeric", "abiword", "zim"}},
	Utilities:    {"utilities", "Utilities", []string{"htop", "ripgrep", "tmux", "neovim", "git"}},
	Video:        {"video", "Video", []string{"vlc", "mpv", "kdenlive", "obs-studio", "handbrake"}},
}

// AllCategories returns every category in display order.
func AllCategories() []Category {
	out := make([]Category, len(categories))
	for i := range categories {
		out[i] = Category(i)
	}
	return out
}

func (c Category) valid() bool {
	return c >= Browsers && c <= Video
}

// String returns the category tag, e.g. "email".
func (c Category) String() string {
	if !c.valid() {
		return "unknown"
	}
	return categories[c].tag
}

// DisplayName returns the human readable category name.
func (c Category) DisplayName() string {
	if !c.valid() {
		return ""
	}
	return categories[c].display
}

// Allowlist returns the package names curated for c.
func (c Category) Allowlist() []string {
	if !c.valid() {
		return nil
	}
	return append([]string(nil), categories[c].allowlist...)
}

// MarshalText encodes the category by tag.
func (c Category) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText decodes a category tag or display name.
func (c *Category) UnmarshalText(b []byte) error {
	parsed, ok := ParseCategory(string(b))
	if !ok {
		return fmt.Errorf("unknown category %q", b)
	}
	*c = parsed
	return nil
}

// ParseCategory resolves a tag or display name, case-insensitively.
func ParseCategory(s string) (Category, bool) {
	s = strings.TrimSpace(s)
	for i, info := range categories {
		if strings.EqualFold(s, info.tag) || strings.EqualFold(s, info.display) {
			return Category(i), true
		}
	}
	return 0, false
}
