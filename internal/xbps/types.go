package xbps

import (
	"strings"
	"time"
)

// PackageRecord is the normalized view of a single package as reported by
// the xbps tools. Optional fields use their zero value for "absent".
type PackageRecord struct {
	Name        string
	Version     string
	Description string
	Installed   bool

	PreviousVersion string // set when an update or a version change is known
	DownloadSize    string // human readable, as reported or formatted
	DownloadBytes   uint64 // 0 when unknown
	Repository      string
	Changelog       string
	BuildDate       time.Time
	FirstSeen       time.Time

	nameLower        lowerShadow
	versionLower     lowerShadow
	descriptionLower lowerShadow
}

// lowerShadow caches the lowercase form of a field. The source it was
// computed from is kept so a direct assignment to the field is detected on
// the next read.
type lowerShadow struct {
	src   string
	lower string
	set   bool
}

func (s *lowerShadow) of(v string) string {
	if !s.set || s.src != v {
		s.src = v
		s.lower = strings.ToLower(v)
		s.set = true
	}
	return s.lower
}

// NewPackageRecord builds a record with its lowercase shadows populated.
func NewPackageRecord(name, version, description string) PackageRecord {
	r := PackageRecord{Name: name, Version: version, Description: description}
	r.nameLower.of(name)
	r.versionLower.of(version)
	r.descriptionLower.of(description)
	return r
}

// SetName updates the name and its shadow.
func (r *PackageRecord) SetName(name string) {
	r.Name = name
	r.nameLower.of(name)
}

// SetVersion updates the version and its shadow.
func (r *PackageRecord) SetVersion(version string) {
	r.Version = version
	r.versionLower.of(version)
}

// SetDescription updates the description and its shadow.
func (r *PackageRecord) SetDescription(description string) {
	r.Description = description
	r.descriptionLower.of(description)
}

// NameLower returns the lowercase name.
func (r *PackageRecord) NameLower() string { return r.nameLower.of(r.Name) }

// VersionLower returns the lowercase version.
func (r *PackageRecord) VersionLower() string { return r.versionLower.of(r.Version) }

// DescriptionLower returns the lowercase description.
func (r *PackageRecord) DescriptionLower() string {
	return r.descriptionLower.of(r.Description)
}

// CommandResult captures the outcome of an external command that ran to
// completion. A non-zero ExitCode is not an error at this level.
type CommandResult struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// Success reports whether the command exited with status 0.
func (r CommandResult) Success() bool {
	return r.ExitCode == 0
}

// DependencyInfo names a package another package depends on.
type DependencyInfo struct {
	Name string
}

// PackageMetadata holds the descriptive properties shown in detail views.
type PackageMetadata struct {
	LongDesc   string
	Homepage   string
	Maintainer string
	License    string
	Repository string
}

// InstalledDetail is the detail view of an installed package.
type InstalledDetail struct {
	Name            string
	LongDescription string
	Size            string
	SizeBytes       uint64
	SizeError       string
	Homepage        string
	Maintainer      string
	License         string
	RequiredBy      []string
	RequiredByError string
}

// DiscoverDetail is the detail view of a repository package.
type DiscoverDetail struct {
	Name          string
	Version       string
	Description   string
	Download      string
	DownloadBytes uint64
	Repository    string
	Homepage      string
	Maintainer    string
	License       string
	Changelog     string
	Dependencies  []DependencyInfo
}
