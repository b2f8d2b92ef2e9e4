package xbps

import (
	"reflect"
	"strings"
	"testing"
)

// Sample `xbps-query -R --regex -s fire` output
const mockSearchOutput = `[*] firefox-121.0_1                  Mozilla Firefox web browser
[-] firefox-esr-115.6.0_1            Mozilla Firefox web browser (Extended Support Release)
[-] firefox-i18n-de-121.0_1          Firefox German language pack

[-]
`

// Sample `xbps-query -l` output
const mockInstalledOutput = `ii base-system-0.114_1   Void Linux base system meta package
ii git-2.43.0_1           Git Tree History Storage Tool
uu  zlib-1.3_1  Compression/decompression Library
`

// Sample `xbps-query -R --show firefox` output
const mockShowOutput = `architecture: x86_64
build-date: 2024-01-02 10:30 UTC
homepage: https://www.mozilla.org/firefox/
license: MPL-2.0, GPL-2.0-or-later
long_desc:
	The Mozilla Firefox browser.

	Fast and private.
maintainer: Jane Doe <jane@example.org>
pkgver: firefox-121.0_1
repository: https://repo-default.voidlinux.org/current
run_depends:
	nss>=3.95_1
	libfoo?
	gtk+3>=3.24.0_1
	nss>=3.90_1
	'dbus-glib'
shlib-requires:
	libc.so.6
`

func TestSplitPackageIdentifier(t *testing.T) {
	tests := []struct {
		in          string
		wantName    string
		wantVersion string
	}{
		{"foo-1.0_1", "foo", "1.0_1"},
		{"firefox-esr-115.6.0_1", "firefox-esr", "115.6.0_1"},
		{"gtk+3-3.24.38_1", "gtk+3", "3.24.38_1"},
		{"noversion", "noversion", ""},
		{"trailing-", "trailing", ""},
		{"", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			name, version := SplitPackageIdentifier(tt.in)
			if name != tt.wantName || version != tt.wantVersion {
				t.Errorf("SplitPackageIdentifier(%q) = (%q, %q), want (%q, %q)",
					tt.in, name, version, tt.wantName, tt.wantVersion)
			}
		})
	}
}

func TestParseQueryOutput(t *testing.T) {
	records := ParseQueryOutput(mockSearchOutput)
	if len(records) != 3 {
		t.Fatalf("expected 3 records, got %d", len(records))
	}

	tests := []struct {
		name        string
		version     string
		description string
		installed   bool
	}{
		{"firefox", "121.0_1", "Mozilla Firefox web browser", true},
		{"firefox-esr", "115.6.0_1", "Mozilla Firefox web browser (Extended Support Release)", false},
		{"firefox-i18n-de", "121.0_1", "Firefox German language pack", false},
	}
	for i, tt := range tests {
		got := records[i]
		if got.Name != tt.name || got.Version != tt.version {
			t.Errorf("record %d = %s/%s, want %s/%s", i, got.Name, got.Version, tt.name, tt.version)
		}
		if got.Description != tt.description {
			t.Errorf("record %d description = %q, want %q", i, got.Description, tt.description)
		}
		if got.Installed != tt.installed {
			t.Errorf("record %d installed = %v, want %v", i, got.Installed, tt.installed)
		}
	}
}

func TestParseQueryOutput_MarkerVariants(t *testing.T) {
	tests := []struct {
		line      string
		installed bool
	}{
		{"[*] foo-1.0_1 desc", true},
		{"[x] foo-1.0_1 desc", true},
		{"[X] foo-1.0_1 desc", true},
		{"[-] foo-1.0_1 desc", false},
		{"foo-1.0_1 desc", false},
	}
	for _, tt := range tests {
		records := ParseQueryOutput(tt.line)
		if len(records) != 1 {
			t.Fatalf("%q: expected 1 record, got %d", tt.line, len(records))
		}
		if records[0].Installed != tt.installed {
			t.Errorf("%q: installed = %v, want %v", tt.line, records[0].Installed, tt.installed)
		}
		if records[0].Name != "foo" {
			t.Errorf("%q: name = %q, want foo", tt.line, records[0].Name)
		}
	}
}

func TestParseInstalledOutput(t *testing.T) {
	records := ParseInstalledOutput(mockInstalledOutput)
	if len(records) != 3 {
		t.Fatalf("expected 3 records, got %d", len(records))
	}
	if records[0].Name != "base-system" || records[0].Version != "0.114_1" {
		t.Errorf("first record = %s-%s", records[0].Name, records[0].Version)
	}
	if records[1].Description != "Git Tree History Storage Tool" {
		t.Errorf("git description = %q", records[1].Description)
	}
	for _, r := range records {
		if !r.Installed {
			t.Errorf("%s should be marked installed", r.Name)
		}
	}
}

func TestLowercaseShadowsFollowMutation(t *testing.T) {
	records := ParseQueryOutput("[-] LibreOffice-7.6.4_1 Office SUITE")
	rec := records[0]

	check := func(stage string) {
		t.Helper()
		if rec.NameLower() != strings.ToLower(rec.Name) {
			t.Errorf("%s: NameLower() = %q, want %q", stage, rec.NameLower(), strings.ToLower(rec.Name))
		}
		if rec.VersionLower() != strings.ToLower(rec.Version) {
			t.Errorf("%s: VersionLower() = %q", stage, rec.VersionLower())
		}
		if rec.DescriptionLower() != strings.ToLower(rec.Description) {
			t.Errorf("%s: DescriptionLower() = %q", stage, rec.DescriptionLower())
		}
	}

	check("parsed")
	rec.SetName("GIMP")
	rec.SetVersion("2.10.36_1RC")
	rec.SetDescription("GNU Image Manipulation Program")
	check("setters")

	// Direct assignment is picked up on the next read.
	rec.Description = "Now In CAPS"
	rec.Version = "9.9_9X"
	check("direct assignment")
}

func TestParseRunDependencies(t *testing.T) {
	deps := ParseRunDependencies(mockShowOutput)
	want := []DependencyInfo{{"dbus-glib"}, {"gtk+3"}, {"libfoo"}, {"nss"}}
	if !reflect.DeepEqual(deps, want) {
		t.Errorf("ParseRunDependencies() = %v, want %v", deps, want)
	}
}

func TestParseRunDependencies_InlineValue(t *testing.T) {
	out := "run_depends: glibc>=2.36_1\npkgver: foo-1.0_1\n"
	deps := ParseRunDependencies(out)
	if len(deps) != 1 || deps[0].Name != "glibc" {
		t.Errorf("ParseRunDependencies() = %v, want [glibc]", deps)
	}
}

func TestParseRequiredBy(t *testing.T) {
	out := "xfce4-panel-4.18.5_1\ngtk+3-3.24.38_1\n\nxfce4-panel-4.18.5_1\n"
	got := ParseRequiredBy(out)
	want := []string{"gtk+3", "xfce4-panel"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ParseRequiredBy() = %v, want %v", got, want)
	}
	if got := ParseRequiredBy(""); len(got) != 0 {
		t.Errorf("ParseRequiredBy(\"\") = %v, want empty", got)
	}
}

func TestParseProperties(t *testing.T) {
	props := ParseProperties(mockShowOutput, "long_desc", "homepage", "maintainer", "license", "missing")

	if props["homepage"] != "https://www.mozilla.org/firefox/" {
		t.Errorf("homepage = %q", props["homepage"])
	}
	if props["license"] != "MPL-2.0, GPL-2.0-or-later" {
		t.Errorf("license = %q", props["license"])
	}
	if props["long_desc"] != "The Mozilla Firefox browser." {
		t.Errorf("long_desc = %q, want value to end at blank line", props["long_desc"])
	}
	if _, ok := props["missing"]; ok {
		t.Error("missing key should not be present")
	}
}

func TestParseProperties_ContinuationAndQuotes(t *testing.T) {
	out := "long_desc: \"first line\n  second line\"\nlicense: 'MIT'\nlicense: BSD\n"
	props := ParseProperties(out, "long_desc", "license")
	if props["long_desc"] != "first line\nsecond line" {
		t.Errorf("long_desc = %q", props["long_desc"])
	}
	if props["license"] != "MIT" {
		t.Errorf("license = %q, want first occurrence MIT", props["license"])
	}
}

func TestCleanPropertyAndLongDescription(t *testing.T) {
	if got := CleanProperty(` "-" `); got != "" {
		t.Errorf("CleanProperty(-) = %q, want empty", got)
	}
	if got := CleanProperty(` 'GPL-3.0' `); got != "GPL-3.0" {
		t.Errorf("CleanProperty = %q", got)
	}
	if got := ParseLongDescription("  a \n\n   b  \n"); got != "a\nb" {
		t.Errorf("ParseLongDescription = %q", got)
	}
}

func TestParseRepoPackageInfo(t *testing.T) {
	out := `pkgver: ripgrep-14.1.0_1
short_desc: Fast line-oriented search tool
pkgsize: 1.5MB
filename-size: 2000000
changelog:
  https://github.com/BurntSushi/ripgrep/blob/master/CHANGELOG.md
`
	rec := ParseRepoPackageInfo("ripgrep", out)
	if rec.Version != "14.1.0_1" {
		t.Errorf("version = %q", rec.Version)
	}
	if rec.Description != "Fast line-oriented search tool" {
		t.Errorf("description = %q", rec.Description)
	}
	if rec.DownloadBytes != 1572864 {
		t.Errorf("download bytes = %d, want 1572864", rec.DownloadBytes)
	}
	if rec.DownloadSize != "1.5 MiB" {
		t.Errorf("download size = %q", rec.DownloadSize)
	}
	if rec.Changelog != "https://github.com/BurntSushi/ripgrep/blob/master/CHANGELOG.md" {
		t.Errorf("changelog = %q", rec.Changelog)
	}

	empty := ParseRepoPackageInfo("ghost", "")
	if empty.Description != "Update available" || empty.Version != "" {
		t.Errorf("empty info = %+v", empty)
	}
}

func TestParseSizePropertyAndInstalledVersion(t *testing.T) {
	if n, ok := ParseSizeProperty("installed_size: 12 MB\n", "installed_size"); !ok || n != 12*1024*1024 {
		t.Errorf("ParseSizeProperty = %d, %v", n, ok)
	}
	if _, ok := ParseSizeProperty("\n", "pkgsize"); ok {
		t.Error("ParseSizeProperty should fail on empty output")
	}
	if v := ParseInstalledVersion("pkgver: git-2.43.0_1\n"); v != "2.43.0_1" {
		t.Errorf("ParseInstalledVersion = %q", v)
	}
	if v := ParseInstalledVersion("git-2.43.0_1\n"); v != "2.43.0_1" {
		t.Errorf("ParseInstalledVersion without key = %q", v)
	}
}

func TestSanitizeContact(t *testing.T) {
	tests := []struct{ in, want string }{
		{"Jane Doe <jane@example.org>", "Jane Doe (jane@example.org)"},
		{"<orphan@voidlinux.org>", "orphan@voidlinux.org"},
		{"Plain Name", "Plain Name"},
	}
	for _, tt := range tests {
		if got := SanitizeContact(tt.in); got != tt.want {
			t.Errorf("SanitizeContact(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSummarizeOutputLine(t *testing.T) {
	if got := SummarizeOutputLine("\n\n  first line  \nsecond"); got != "first line" {
		t.Errorf("SummarizeOutputLine = %q", got)
	}
	long := strings.Repeat("x", 120)
	got := SummarizeOutputLine(long)
	if len(got) != 99 || !strings.HasSuffix(got, "...") {
		t.Errorf("long line summary = %q (len %d)", got, len(got))
	}
	if got := SummarizeOutputLine("  \n"); got != "" {
		t.Errorf("blank summary = %q", got)
	}
}

func TestStripANSI(t *testing.T) {
	tests := []struct{ in, want string }{
		{"plain", "plain"},
		{"\x1b[1;32mgreen\x1b[0m text", "green text"},
		{"line\r\n", "line\n"},
		{"progress 50%\r\x1b[Kdone", "progress 50%done"},
		{"\x1b[", ""},
	}
	for _, tt := range tests {
		if got := StripANSI(tt.in); got != tt.want {
			t.Errorf("StripANSI(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestParseSearchListingLine(t *testing.T) {
	name, version, desc, ok := ParseSearchListingLine("[-] gimp-2.10.36_1    GNU image manipulation program")
	if !ok || name != "gimp" || version != "2.10.36_1" || desc != "GNU image manipulation program" {
		t.Errorf("got (%q, %q, %q, %v)", name, version, desc, ok)
	}
	for _, bad := range []string{"", "gimp-2.10 desc", "[-] lonely"} {
		if _, _, _, ok := ParseSearchListingLine(bad); ok {
			t.Errorf("ParseSearchListingLine(%q) should fail", bad)
		}
	}
}

func TestParseBuildDateListingLine(t *testing.T) {
	entry, ok := ParseBuildDateListingLine("gimp-2.10.36_1: 2024-01-02 10:30 CET (https://repo.example/current)")
	if !ok {
		t.Fatal("expected line to parse")
	}
	if entry.Name != "gimp" || entry.Version != "2.10.36_1" {
		t.Errorf("identifier = %s/%s", entry.Name, entry.Version)
	}
	if entry.Repository != "https://repo.example/current" {
		t.Errorf("repository = %q", entry.Repository)
	}
	if got := entry.BuildDate.Format("2006-01-02 15:04"); got != "2024-01-02 09:30" {
		t.Errorf("build date = %s, want 2024-01-02 09:30 UTC", got)
	}

	if _, ok := ParseBuildDateListingLine("no colon here"); ok {
		t.Error("line without identifier separator should fail")
	}
}
