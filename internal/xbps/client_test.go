package xbps

import (
	"context"
	"errors"
	"os/exec"
	"reflect"
	"strings"
	"sync"
	"testing"
)

// fakeRunner answers commands from a table keyed by the joined command line.
type fakeRunner struct {
	mu        sync.Mutex
	responses map[string]CommandResult
	failures  map[string]error
	calls     []string
	envs      map[string][]string
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{
		responses: make(map[string]CommandResult),
		failures:  make(map[string]error),
		envs:      make(map[string][]string),
	}
}

func (f *fakeRunner) on(cmdline string, result CommandResult) {
	f.responses[cmdline] = result
}

func (f *fakeRunner) Output(_ context.Context, env []string, name string, args ...string) (CommandResult, error) {
	key := strings.Join(append([]string{name}, args...), " ")
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, key)
	f.envs[key] = env
	if err, ok := f.failures[key]; ok {
		return CommandResult{}, err
	}
	if res, ok := f.responses[key]; ok {
		return res, nil
	}
	return CommandResult{ExitCode: 2, Stderr: "unexpected command: " + key}, nil
}

func (f *fakeRunner) Command(ctx context.Context, env []string, name string, args ...string) *exec.Cmd {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Env = env
	return cmd
}

func TestClient_Search(t *testing.T) {
	fr := newFakeRunner()
	fr.on("xbps-query -R --regex -s fire", CommandResult{Stdout: mockSearchOutput})
	c := NewClient(DefaultTools(), fr)

	records, err := c.Search(context.Background(), "fire")
	if err != nil {
		t.Fatalf("Search() error: %v", err)
	}
	if len(records) != 3 {
		t.Errorf("Search() returned %d records, want 3", len(records))
	}
}

func TestClient_QueryFailureCarriesStderr(t *testing.T) {
	fr := newFakeRunner()
	fr.on("xbps-query -R --show ghost", CommandResult{ExitCode: 2, Stderr: "  Package 'ghost' not found in repository pool.\n"})
	c := NewClient(DefaultTools(), fr)

	_, err := c.Dependencies(context.Background(), "ghost")
	if err == nil {
		t.Fatal("expected error for non-zero exit")
	}
	var exitErr *ExitError
	if !errors.As(err, &exitErr) {
		t.Fatalf("error %v is not an *ExitError", err)
	}
	if exitErr.Code != 2 || exitErr.Detail != "Package 'ghost' not found in repository pool." {
		t.Errorf("ExitError = %+v", exitErr)
	}
}

func TestClient_SpawnFailure(t *testing.T) {
	fr := newFakeRunner()
	fr.failures["xbps-query -l"] = errors.New("failed to launch xbps-query: executable file not found")
	c := NewClient(DefaultTools(), fr)

	if _, err := c.ListInstalled(context.Background()); err == nil ||
		!strings.Contains(err.Error(), "executable file not found") {
		t.Errorf("ListInstalled() error = %v, want launch failure", err)
	}
}

func TestClient_MutatingCommandsUsePrivilegeWrapper(t *testing.T) {
	fr := newFakeRunner()
	fr.on("pkexec xbps-install -y gimp", CommandResult{Stdout: "gimp installed"})
	fr.on("pkexec xbps-remove -y gimp krita", CommandResult{ExitCode: 1, Stderr: "in use"})
	c := NewClient(DefaultTools(), fr)

	res, err := c.Install(context.Background(), "gimp")
	if err != nil || !res.Success() {
		t.Errorf("Install() = %+v, %v", res, err)
	}

	res, err = c.Remove(context.Background(), "gimp", "krita")
	if err != nil {
		t.Fatalf("Remove() error: %v", err)
	}
	if res.ExitCode != 1 || res.Stderr != "in use" {
		t.Errorf("Remove() result = %+v, want exit 1 with stderr", res)
	}

	program, args := c.UpdateArgs(true, nil)
	if got := c.CommandLine(program, args...); got != "pkexec xbps-install -y -Su" {
		t.Errorf("CommandLine(update all) = %q", got)
	}

	tools := DefaultTools()
	tools.Privilege = ""
	direct := NewClient(tools, fr)
	program, args = direct.UpdateArgs(false, []string{"a", "b"})
	if got := direct.CommandLine(program, args...); got != "xbps-install -y -u a b" {
		t.Errorf("CommandLine without wrapper = %q", got)
	}
}

func TestClient_CheckUpdatesEnriches(t *testing.T) {
	fr := newFakeRunner()
	fr.on("xbps-install -Sun", CommandResult{Stdout: "\x1b[1mfoo-1.0_1 -> 1.1_1\x1b[0m\nbar-2.0_1 -> 2.1_1\n"})
	fr.on("xbps-query -R foo", CommandResult{Stdout: "pkgver: foo-1.1_1\nshort_desc: The foo tool\npkgsize: 2048\n"})
	fr.on("xbps-query -p pkgver foo", CommandResult{Stdout: "foo-1.0_2\n"})
	c := NewClient(DefaultTools(), fr)

	updates, err := c.CheckUpdates(context.Background())
	if err != nil {
		t.Fatalf("CheckUpdates() error: %v", err)
	}
	if len(updates) != 2 {
		t.Fatalf("expected 2 updates, got %d", len(updates))
	}

	bar, foo := updates[0], updates[1]
	if bar.Description != "Update available" || bar.PreviousVersion != "2.0_1" {
		t.Errorf("unenriched bar = %+v", bar)
	}
	if foo.Description != "The foo tool" || foo.Version != "1.1_1" || foo.PreviousVersion != "1.0_2" {
		t.Errorf("enriched foo = %q %q (from %q)", foo.Description, foo.Version, foo.PreviousVersion)
	}
	if foo.DownloadBytes != 2048 {
		t.Errorf("foo download bytes = %d", foo.DownloadBytes)
	}

	env := fr.envs["xbps-install -Sun"]
	if !reflect.DeepEqual(env, quietEnv) {
		t.Errorf("check-updates env = %v, want %v", env, quietEnv)
	}
}

func TestClient_CheckUpdatesQueriesInstalledVersionWithoutRepoInfo(t *testing.T) {
	fr := newFakeRunner()
	fr.on("xbps-install -Sun", CommandResult{Stdout: "bar-2.0_1 -> 2.1_1\n"})
	fr.on("xbps-query -p pkgver bar", CommandResult{Stdout: "bar-2.0_3\n"})
	c := NewClient(DefaultTools(), fr)

	updates, err := c.CheckUpdates(context.Background())
	if err != nil {
		t.Fatalf("CheckUpdates() error: %v", err)
	}
	if len(updates) != 1 {
		t.Fatalf("expected 1 update, got %d", len(updates))
	}
	bar := updates[0]
	if bar.Version != "2.1_1" || bar.PreviousVersion != "2.0_3" || !bar.Installed {
		t.Errorf("bar = %q (from %q), installed %v", bar.Version, bar.PreviousVersion, bar.Installed)
	}
}

func TestClient_PackageSizeFallsBack(t *testing.T) {
	fr := newFakeRunner()
	fr.on("xbps-query -p installed_size vim", CommandResult{Stdout: "\n"})
	fr.on("xbps-query -p pkgsize vim", CommandResult{Stdout: "pkgsize: 3 MB\n"})
	c := NewClient(DefaultTools(), fr)

	size, ok, err := c.PackageSize(context.Background(), "vim")
	if err != nil || !ok || size != 3*1024*1024 {
		t.Errorf("PackageSize() = %d, %v, %v", size, ok, err)
	}
}

func TestClient_Details(t *testing.T) {
	fr := newFakeRunner()
	fr.on("xbps-query -R firefox", CommandResult{Stdout: "pkgver: firefox-121.0_1\nshort_desc: Mozilla Firefox web browser\nfilename-size: 60000000\n"})
	fr.on("xbps-query -R --show firefox", CommandResult{Stdout: mockShowOutput})
	fr.on("xbps-query -S --show firefox", CommandResult{ExitCode: 2})
	fr.on("xbps-query -p installed_size firefox", CommandResult{Stdout: "230 MB\n"})
	fr.on("xbps-query -X firefox", CommandResult{Stdout: ""})
	c := NewClient(DefaultTools(), fr)

	d, err := c.DiscoverDetail(context.Background(), "firefox")
	if err != nil {
		t.Fatalf("DiscoverDetail() error: %v", err)
	}
	if d.Version != "121.0_1" || d.Download != "60 MB" {
		t.Errorf("discover detail version=%q download=%q", d.Version, d.Download)
	}
	if d.Maintainer != "Jane Doe (jane@example.org)" {
		t.Errorf("maintainer = %q", d.Maintainer)
	}
	if len(d.Dependencies) != 4 {
		t.Errorf("dependencies = %v", d.Dependencies)
	}

	inst := c.InstalledDetail(context.Background(), "firefox")
	if inst.Size != "230 MiB" || inst.SizeError != "" {
		t.Errorf("installed size = %q (err %q)", inst.Size, inst.SizeError)
	}
	if inst.RequiredByError != "" || len(inst.RequiredBy) != 0 {
		t.Errorf("required-by = %v (err %q)", inst.RequiredBy, inst.RequiredByError)
	}
	if inst.License != "MPL-2.0, GPL-2.0-or-later" {
		t.Errorf("license = %q", inst.License)
	}
}
