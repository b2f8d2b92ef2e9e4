package xbps

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// RepositoryConfigFile is the default xbps.d file naming the main
// repository.
const RepositoryConfigFile = "/etc/xbps.d/00-repository-main.conf"

// mainRepository is the path of the main repository below a mirror.
const mainRepository = "current"

// ErrNoMirror is returned when a selection names no known mirror.
var ErrNoMirror = errors.New("select at least one known mirror")

// Mirror is a Void Linux repository mirror.
type Mirror struct {
	ID      string `json:"id"`
	Region  string `json:"region"`
	BaseURL string `json:"base_url"`
	Tor     bool   `json:"tor"`
}

var mirrors = []Mirror{
	{ID: "repo-default", Region: "Global", BaseURL: "https://repo-default.voidlinux.org"},
	{ID: "repo-fi", Region: "Finland", BaseURL: "https://repo-fi.voidlinux.org"},
	{ID: "repo-de", Region: "Germany", BaseURL: "https://repo-de.voidlinux.org"},
	{ID: "repo-fastly", Region: "Global CDN", BaseURL: "https://repo-fastly.voidlinux.org"},
	{ID: "repo-us", Region: "USA", BaseURL: "https://mirrors.servercentral.com/voidlinux"},
	{ID: "tor-se", Region: "Sweden", BaseURL: "http://lysator7eknrfl47rlyxvgeamrv7ucefgrrlhk7rouv3sna25asetwid.onion/pub/voidlinux", Tor: true},
	{ID: "tor-dk", Region: "Denmark", BaseURL: "http://dotsrccccbidkzg7oc7oj4ugxrlfbt64qebyunxbrgqhxiwj3nl6vcad.onion", Tor: true},
}

// Mirrors returns every known mirror, regular mirrors before Tor ones.
func Mirrors() []Mirror {
	return append([]Mirror(nil), mirrors...)
}

// FindMirror looks a mirror up by id.
func FindMirror(id string) (Mirror, bool) {
	for _, m := range mirrors {
		if m.ID == id {
			return m, true
		}
	}
	return Mirror{}, false
}

// DefaultMirrorID is the mirror used when nothing else is selected.
func DefaultMirrorID() string {
	return mirrors[0].ID
}

// Host returns the base URL without scheme or trailing slash.
func (m Mirror) Host() string {
	host := strings.TrimPrefix(m.BaseURL, "https://")
	host = strings.TrimPrefix(host, "http://")
	return strings.TrimRight(host, "/")
}

// RepositoryURL returns the URL of the main repository on m.
func (m Mirror) RepositoryURL() string {
	return strings.TrimRight(m.BaseURL, "/") + "/" + mainRepository
}

// KnownMirrorIDs keeps the ids that name a known mirror, in order and
// without duplicates.
func KnownMirrorIDs(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if _, ok := FindMirror(id); !ok || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

// RepositoryURLs maps mirror ids to their main repository URLs. Unknown
// ids are skipped.
func RepositoryURLs(ids []string) []string {
	var urls []string
	for _, id := range KnownMirrorIDs(ids) {
		m, _ := FindMirror(id)
		urls = append(urls, m.RepositoryURL())
	}
	return urls
}

// ParseRepositoryList extracts the repository URLs from xbps-query -L
// output, e.g. " 14219 https://repo-default.voidlinux.org/current (RSA signed)".
func ParseRepositoryList(raw string) []string {
	var urls []string
	for _, line := range strings.Split(raw, "\n") {
		for _, field := range strings.Fields(line) {
			if strings.HasPrefix(field, "http") {
				urls = append(urls, strings.TrimRight(field, "/"))
				break
			}
		}
	}
	return urls
}

// MirrorIDsForURLs returns the ids of the known mirrors serving any of
// urls, in mirror table order.
func MirrorIDsForURLs(urls []string) []string {
	var ids []string
	for _, m := range mirrors {
		base := strings.TrimRight(m.BaseURL, "/")
		for _, url := range urls {
			if strings.HasPrefix(strings.TrimRight(url, "/"), base) {
				ids = append(ids, m.ID)
				break
			}
		}
	}
	return ids
}

// RepositoryConfig renders the repository configuration for the selected
// mirrors, one repository= line each.
func RepositoryConfig(ids []string) (string, error) {
	urls := RepositoryURLs(ids)
	if len(urls) == 0 {
		return "", ErrNoMirror
	}
	var sb strings.Builder
	for _, url := range urls {
		fmt.Fprintf(&sb, "repository=%s\n", url)
	}
	return sb.String(), nil
}

// SetRepositories makes update commands use urls instead of the system
// repositories. An empty list restores the system configuration.
func (c *Client) SetRepositories(urls []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.repos = append([]string(nil), urls...)
}

// Repositories returns the repositories passed to update commands.
func (c *Client) Repositories() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]string(nil), c.repos...)
}

func (c *Client) repositoryArgs() []string {
	repos := c.Repositories()
	args := make([]string, 0, 2*len(repos))
	for _, url := range repos {
		args = append(args, "-R", url)
	}
	return args
}

// ActiveRepositories lists the repositories xbps is configured with.
func (c *Client) ActiveRepositories(ctx context.Context) ([]string, error) {
	out, err := c.query(ctx, "-L")
	if err != nil {
		return nil, fmt.Errorf("list repositories: %w", err)
	}
	return ParseRepositoryList(out), nil
}

// WriteRepositoryConfig replaces the main repository configuration with
// the selected mirrors. The file is written through the privilege wrapper.
func (c *Client) WriteRepositoryConfig(ctx context.Context, ids []string) (CommandResult, error) {
	content, err := RepositoryConfig(ids)
	if err != nil {
		return CommandResult{}, err
	}
	path := c.tools.RepositoryConfig
	if path == "" {
		path = RepositoryConfigFile
	}
	script := fmt.Sprintf("cat <<'EOF' > '%s'\n%sEOF\n", path, content)
	return c.privileged(ctx, "sh", "-c", script)
}
