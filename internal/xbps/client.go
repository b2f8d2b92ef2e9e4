package xbps

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"
)

// ErrNotFound is returned when the repository output does not mention the
// requested package.
var ErrNotFound = errors.New("package not found")

// Tools names the xbps binaries and the privilege-escalation wrapper used
// for mutating commands. An empty Privilege runs mutating commands directly.
type Tools struct {
	Query        string
	Install      string
	Remove       string
	Pkgdb        string
	Reconfigure  string
	Alternatives string
	Privilege    string

	// PackageCache is the directory CleanCache prunes; CacheKeep is how
	// many versions of each package it leaves behind.
	PackageCache string
	CacheKeep    int

	// RepositoryConfig is the xbps.d file WriteRepositoryConfig replaces.
	RepositoryConfig string
}

// DefaultTools returns the stock binary names with pkexec as the wrapper.
func DefaultTools() Tools {
	return Tools{
		Query:        "xbps-query",
		Install:      "xbps-install",
		Remove:       "xbps-remove",
		Pkgdb:        "xbps-pkgdb",
		Reconfigure:  "xbps-reconfigure",
		Alternatives: "xbps-alternatives",
		Privilege:    "pkexec",
		PackageCache: DefaultPackageCache,
		CacheKeep:    DefaultCacheKeep,

		RepositoryConfig: RepositoryConfigFile,
	}
}

// quietEnv keeps xbps-install output free of color and verbose enough to
// carry per-package progress lines.
var quietEnv = []string{"NO_COLOR=1", "XBPS_INSTALL_VERBOSE=2"}

// Client invokes the xbps tools and parses their output. Every method
// blocks until the underlying program exits.
type Client struct {
	tools  Tools
	runner Runner

	mu    sync.RWMutex
	repos []string
}

// NewClient creates a client. A nil runner uses ExecRunner.
func NewClient(tools Tools, runner Runner) *Client {
	if runner == nil {
		runner = ExecRunner{}
	}
	return &Client{tools: tools, runner: runner}
}

// Tools returns the configured binaries.
func (c *Client) Tools() Tools {
	return c.tools
}

// query runs xbps-query and returns stdout, treating a non-zero exit as an
// error carrying stderr.
func (c *Client) query(ctx context.Context, args ...string) (string, error) {
	result, err := c.runner.Output(ctx, nil, c.tools.Query, args...)
	if err != nil {
		return "", err
	}
	if err := CheckResult(c.tools.Query, result); err != nil {
		return "", err
	}
	return result.Stdout, nil
}

// Search queries the remote repositories with a regular expression.
func (c *Client) Search(ctx context.Context, pattern string) ([]PackageRecord, error) {
	out, err := c.query(ctx, "-R", "--regex", "-s", pattern)
	if err != nil {
		return nil, fmt.Errorf("search %q: %w", pattern, err)
	}
	return ParseQueryOutput(out), nil
}

// ListInstalled lists installed packages.
func (c *Client) ListInstalled(ctx context.Context) ([]PackageRecord, error) {
	out, err := c.query(ctx, "-l")
	if err != nil {
		return nil, fmt.Errorf("list installed: %w", err)
	}
	return ParseInstalledOutput(out), nil
}

// Dependencies returns the run-time dependencies of a repository package.
func (c *Client) Dependencies(ctx context.Context, pkg string) ([]DependencyInfo, error) {
	out, err := c.query(ctx, "-R", "--show", pkg)
	if err != nil {
		return nil, fmt.Errorf("dependencies of %s: %w", pkg, err)
	}
	return ParseRunDependencies(out), nil
}

// RequiredBy returns the installed packages depending on pkg.
func (c *Client) RequiredBy(ctx context.Context, pkg string) ([]string, error) {
	out, err := c.query(ctx, "-X", pkg)
	if err != nil {
		return nil, fmt.Errorf("reverse dependencies of %s: %w", pkg, err)
	}
	return ParseRequiredBy(out), nil
}

// PackageSize returns the installed size of pkg, falling back to the
// package file size. ok is false when neither property could be parsed.
func (c *Client) PackageSize(ctx context.Context, pkg string) (size uint64, ok bool, err error) {
	for _, property := range []string{"installed_size", "pkgsize"} {
		out, err := c.query(ctx, "-p", property, pkg)
		if err != nil {
			return 0, false, fmt.Errorf("%s of %s: %w", property, pkg, err)
		}
		if n, ok := ParseSizeProperty(out, property); ok {
			return n, true, nil
		}
	}
	return 0, false, nil
}

var metadataKeys = []string{"long_desc", "homepage", "maintainer", "license", "repository"}

// Metadata gathers descriptive properties, preferring the local package
// database and filling the gaps from the remote repositories. Lookup
// failures leave fields empty.
func (c *Client) Metadata(ctx context.Context, pkg string) PackageMetadata {
	var meta PackageMetadata
	for _, source := range []string{"-S", "-R"} {
		out, err := c.query(ctx, source, "--show", pkg)
		if err != nil {
			continue
		}
		applyMetadata(&meta, ParseProperties(out, metadataKeys...))
		if meta.LongDesc != "" && meta.Homepage != "" && meta.Maintainer != "" &&
			meta.License != "" && meta.Repository != "" {
			break
		}
	}
	return meta
}

func applyMetadata(meta *PackageMetadata, values map[string]string) {
	fill := func(dst *string, v string) {
		if *dst == "" {
			*dst = v
		}
	}
	fill(&meta.LongDesc, ParseLongDescription(values["long_desc"]))
	fill(&meta.Homepage, CleanProperty(values["homepage"]))
	fill(&meta.Maintainer, SanitizeContact(CleanProperty(values["maintainer"])))
	fill(&meta.License, CleanProperty(values["license"]))
	fill(&meta.Repository, CleanProperty(values["repository"]))
}

// RepoPackageInfo returns what the repositories report for name.
func (c *Client) RepoPackageInfo(ctx context.Context, name string) (PackageRecord, error) {
	out, err := c.query(ctx, "-R", name)
	if err != nil {
		return PackageRecord{}, fmt.Errorf("repository info for %s: %w", name, err)
	}
	if strings.TrimSpace(out) == "" {
		return PackageRecord{}, fmt.Errorf("repository info for %s: %w", name, ErrNotFound)
	}
	return ParseRepoPackageInfo(name, out), nil
}

// InstalledVersion returns the installed version of name, or "".
func (c *Client) InstalledVersion(ctx context.Context, name string) string {
	out, err := c.query(ctx, "-p", "pkgver", name)
	if err != nil {
		return ""
	}
	return ParseInstalledVersion(out)
}

// CheckUpdates syncs the repository index in dry-run mode and reports
// pending updates. Each entry is enriched with repository information and
// the installed version when those lookups succeed.
func (c *Client) CheckUpdates(ctx context.Context) ([]PackageRecord, error) {
	result, err := c.runner.Output(ctx, quietEnv, c.tools.Install, "-Sun")
	if err != nil {
		return nil, err
	}
	if err := CheckResult(c.tools.Install, result); err != nil {
		return nil, fmt.Errorf("check updates: %w", err)
	}

	updates := ParseUpdatesOutput(StripANSI(result.Stdout))
	for i := range updates {
		updates[i] = c.enrichUpdate(ctx, updates[i])
	}
	return updates, nil
}

// enrichUpdate fills entry from the repository and the package database.
// When the repository lookup fails the report entry itself is kept.
func (c *Client) enrichUpdate(ctx context.Context, entry PackageRecord) PackageRecord {
	rec, err := c.RepoPackageInfo(ctx, entry.Name)
	if err != nil {
		rec = entry
	} else if LooksLikeVersion(entry.Version) {
		rec.SetVersion(entry.Version)
	}
	rec.Installed = true
	if installed := c.InstalledVersion(ctx, entry.Name); installed != "" {
		rec.PreviousVersion = installed
	} else {
		rec.PreviousVersion = entry.PreviousVersion
	}
	return rec
}

// privileged runs a mutating command through the privilege wrapper.
func (c *Client) privileged(ctx context.Context, program string, args ...string) (CommandResult, error) {
	name, full := c.privilegedArgs(program, args)
	return c.runner.Output(ctx, nil, name, full...)
}

func (c *Client) privilegedArgs(program string, args []string) (string, []string) {
	if c.tools.Privilege == "" {
		return program, args
	}
	return c.tools.Privilege, append([]string{program}, args...)
}

// CommandLine renders the command a mutating operation runs, for display
// and for the operation history.
func (c *Client) CommandLine(program string, args ...string) string {
	name, full := c.privilegedArgs(program, args)
	return strings.Join(append([]string{name}, full...), " ")
}

// InstallArgs returns the program and arguments used to install pkg.
func (c *Client) InstallArgs(pkg string) (string, []string) {
	return c.tools.Install, []string{"-y", pkg}
}

// RemoveArgs returns the program and arguments used to remove pkgs.
func (c *Client) RemoveArgs(pkgs ...string) (string, []string) {
	return c.tools.Remove, append([]string{"-y"}, pkgs...)
}

// UpdateArgs returns the program and arguments for an update batch. With
// all set the whole system is updated and names is ignored. Selected
// mirrors are passed as -R repositories.
func (c *Client) UpdateArgs(all bool, names []string) (string, []string) {
	args := c.repositoryArgs()
	if all {
		return c.tools.Install, append(args, "-y", "-Su")
	}
	args = append(args, "-y", "-u")
	return c.tools.Install, append(args, names...)
}

// Install installs pkg. A non-zero exit is reported in the result.
func (c *Client) Install(ctx context.Context, pkg string) (CommandResult, error) {
	program, args := c.InstallArgs(pkg)
	return c.privileged(ctx, program, args...)
}

// Remove removes pkgs in a single transaction.
func (c *Client) Remove(ctx context.Context, pkgs ...string) (CommandResult, error) {
	if len(pkgs) == 0 {
		return CommandResult{}, nil
	}
	program, args := c.RemoveArgs(pkgs...)
	return c.privileged(ctx, program, args...)
}

// Update runs an update batch to completion without streaming.
func (c *Client) Update(ctx context.Context, all bool, names []string) (CommandResult, error) {
	if !all && len(names) == 0 {
		return CommandResult{}, nil
	}
	program, args := c.UpdateArgs(all, names)
	return c.privileged(ctx, program, args...)
}

// UpdateCommand prepares an update batch for streaming execution.
func (c *Client) UpdateCommand(ctx context.Context, all bool, names []string) *exec.Cmd {
	program, args := c.UpdateArgs(all, names)
	name, full := c.privilegedArgs(program, args)
	return c.runner.Command(ctx, quietEnv, name, full...)
}

// RemoveOrphans removes packages no longer required by anything.
func (c *Client) RemoveOrphans(ctx context.Context) (CommandResult, error) {
	return c.privileged(ctx, c.tools.Remove, "-O")
}

// PkgdbCheck verifies the package database.
func (c *Client) PkgdbCheck(ctx context.Context) (CommandResult, error) {
	return c.privileged(ctx, c.tools.Pkgdb, "-a")
}

// ReconfigureAll reruns the configure step of every installed package.
func (c *Client) ReconfigureAll(ctx context.Context) (CommandResult, error) {
	return c.privileged(ctx, c.tools.Reconfigure, "-a")
}

// AlternativesList lists the registered alternatives groups.
func (c *Client) AlternativesList(ctx context.Context) (CommandResult, error) {
	return c.runner.Output(ctx, nil, c.tools.Alternatives, "-l")
}

// SearchListing returns the raw repository-wide listing used by the
// spotlight cache.
func (c *Client) SearchListing(ctx context.Context) (string, error) {
	return c.query(ctx, "-R", "--regex", "-s", ".")
}

// BuildDateListing returns the raw build-date listing used by the
// spotlight cache.
func (c *Client) BuildDateListing(ctx context.Context) (string, error) {
	return c.query(ctx, "-R", "--regex", "-p", "build-date", "-s", ".")
}

// InstalledDetail gathers the detail view of an installed package. Size
// and reverse-dependency failures are reported in the detail rather than
// failing the whole lookup.
func (c *Client) InstalledDetail(ctx context.Context, name string) InstalledDetail {
	detail := InstalledDetail{Name: name}
	var meta PackageMetadata

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		size, ok, err := c.PackageSize(gctx, name)
		switch {
		case err != nil:
			detail.SizeError = err.Error()
		case ok:
			detail.SizeBytes = size
			detail.Size = FormatSize(size)
		}
		return nil
	})
	g.Go(func() error {
		required, err := c.RequiredBy(gctx, name)
		if err != nil {
			detail.RequiredByError = err.Error()
			return nil
		}
		detail.RequiredBy = required
		return nil
	})
	g.Go(func() error {
		meta = c.Metadata(gctx, name)
		return nil
	})
	_ = g.Wait()

	detail.LongDescription = meta.LongDesc
	detail.Homepage = meta.Homepage
	detail.Maintainer = meta.Maintainer
	detail.License = meta.License
	return detail
}

// DiscoverDetail gathers the detail view of a repository package.
func (c *Client) DiscoverDetail(ctx context.Context, name string) (DiscoverDetail, error) {
	var (
		rec  PackageRecord
		deps []DependencyInfo
		meta PackageMetadata
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		rec, err = c.RepoPackageInfo(gctx, name)
		return err
	})
	g.Go(func() error {
		var err error
		deps, err = c.Dependencies(gctx, name)
		return err
	})
	g.Go(func() error {
		meta = c.Metadata(gctx, name)
		return nil
	})
	if err := g.Wait(); err != nil {
		return DiscoverDetail{}, err
	}

	detail := DiscoverDetail{
		Name:          name,
		Version:       rec.Version,
		Description:   rec.Description,
		DownloadBytes: rec.DownloadBytes,
		Download:      rec.DownloadSize,
		Repository:    meta.Repository,
		Homepage:      meta.Homepage,
		Maintainer:    meta.Maintainer,
		License:       meta.License,
		Changelog:     rec.Changelog,
		Dependencies:  deps,
	}
	if rec.DownloadBytes > 0 {
		detail.Download = FormatDownloadSize(rec.DownloadBytes)
	}
	return detail, nil
}
