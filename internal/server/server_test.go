package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os/exec"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/blackwell-systems/voidstore/internal/agent"
	"github.com/blackwell-systems/voidstore/internal/metrics"
	"github.com/blackwell-systems/voidstore/internal/xbps"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// fakeRunner answers from a table. Commands listed in hold block until
// released.
type fakeRunner struct {
	mu        sync.Mutex
	responses map[string]xbps.CommandResult
	hold      map[string]chan struct{}
}

func (f *fakeRunner) Output(ctx context.Context, _ []string, name string, args ...string) (xbps.CommandResult, error) {
	key := strings.Join(append([]string{name}, args...), " ")
	f.mu.Lock()
	wait := f.hold[key]
	res, ok := f.responses[key]
	f.mu.Unlock()
	if wait != nil {
		select {
		case <-wait:
		case <-ctx.Done():
			return xbps.CommandResult{}, ctx.Err()
		}
	}
	if !ok {
		return xbps.CommandResult{ExitCode: 2, Stderr: "unexpected command: " + key}, nil
	}
	return res, nil
}

func (f *fakeRunner) Command(ctx context.Context, _ []string, name string, args ...string) *exec.Cmd {
	return exec.CommandContext(ctx, "/bin/sh", "-c", "echo ok")
}

type fixture struct {
	server *Server
	runner *fakeRunner
	agent  *agent.Agent
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	fr := &fakeRunner{
		responses: map[string]xbps.CommandResult{
			"xbps-query -R --regex -s fire": {Stdout: "[-] firefox-128.0_1  Mozilla Firefox\n"},
			"xbps-query -l":                 {Stdout: "ii zsh-5.9_1  Z shell\n"},
			"xbps-install -y firefox":       {},
		},
		hold: map[string]chan struct{}{},
	}
	tools := xbps.DefaultTools()
	tools.Privilege = ""

	reg := prometheus.NewRegistry()
	col := metrics.New(reg)
	a, err := agent.New(agent.Options{
		Client:   xbps.NewClient(tools, fr),
		Observer: col,
		Recorder: col,
	})
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = a.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
		a.Close()
	})
	return &fixture{server: New(a, reg), runner: fr, agent: a}
}

func (f *fixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(w, req)
	return w
}

func (f *fixture) snapshot(t *testing.T) agent.Snapshot {
	t.Helper()
	w := f.do(t, http.MethodGet, "/api/status", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body)
	}
	var snap agent.Snapshot
	if err := json.Unmarshal(w.Body.Bytes(), &snap); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	return snap
}

func (f *fixture) waitFor(t *testing.T, cond func(agent.Snapshot) bool) agent.Snapshot {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if snap := f.snapshot(t); cond(snap) {
			return snap
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
	return agent.Snapshot{}
}

func TestHealthz(t *testing.T) {
	f := newFixture(t)
	if w := f.do(t, http.MethodGet, "/healthz", nil); w.Code != http.StatusOK {
		t.Errorf("healthz = %d", w.Code)
	}
}

func TestSearchFlow(t *testing.T) {
	f := newFixture(t)
	if w := f.do(t, http.MethodGet, "/api/search?q=fire", nil); w.Code != http.StatusAccepted {
		t.Fatalf("search = %d: %s", w.Code, w.Body)
	}
	snap := f.waitFor(t, func(s agent.Snapshot) bool { return !s.Searching && len(s.SearchResults) > 0 })
	if snap.SearchResults[0].Name != "firefox" {
		t.Errorf("results = %+v", snap.SearchResults)
	}
}

func TestInstalledAndLocalSearch(t *testing.T) {
	f := newFixture(t)
	if w := f.do(t, http.MethodPost, "/api/installed/refresh", nil); w.Code != http.StatusAccepted {
		t.Fatalf("refresh = %d", w.Code)
	}
	f.waitFor(t, func(s agent.Snapshot) bool { return len(s.Installed) == 1 })

	w := f.do(t, http.MethodGet, "/api/installed?q=shell", nil)
	var resp struct {
		Packages []xbps.PackageRecord `json:"packages"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Packages) != 1 || resp.Packages[0].Name != "zsh" {
		t.Errorf("installed = %s", w.Body)
	}

	w = f.do(t, http.MethodGet, "/api/search?q=zsh&local=true", nil)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"Name":"zsh"`) {
		t.Errorf("local search = %d: %s", w.Code, w.Body)
	}
}

func TestInstallConflictAndCompletion(t *testing.T) {
	f := newFixture(t)
	release := make(chan struct{})
	f.runner.mu.Lock()
	f.runner.hold["xbps-install -y firefox"] = release
	f.runner.mu.Unlock()

	if w := f.do(t, http.MethodPost, "/api/install/firefox", nil); w.Code != http.StatusAccepted {
		t.Fatalf("install = %d: %s", w.Code, w.Body)
	}
	if w := f.do(t, http.MethodPost, "/api/install/firefox", nil); w.Code != http.StatusConflict {
		t.Errorf("second install = %d, want 409", w.Code)
	}
	close(release)

	f.waitFor(t, func(s agent.Snapshot) bool { return len(s.Pending) == 0 })
	w := f.do(t, http.MethodGet, "/api/operations?limit=1", nil)
	if !strings.Contains(w.Body.String(), `"status":"success"`) {
		t.Errorf("operations = %s", w.Body)
	}

	w = f.do(t, http.MethodGet, "/metrics", nil)
	if !strings.Contains(w.Body.String(), `voidstore_operations_total{status="success",type="install"} 1`) {
		t.Errorf("metrics missing operation counter:\n%s", w.Body)
	}
}

func TestBadRequests(t *testing.T) {
	f := newFixture(t)
	tests := []struct {
		method, path string
		body         any
		want         int
	}{
		{http.MethodPost, "/api/remove", packagesRequest{}, http.StatusBadRequest},
		{http.MethodPost, "/api/update", packagesRequest{}, http.StatusBadRequest},
		{http.MethodPost, "/api/update", packagesRequest{All: true}, http.StatusBadRequest},
		{http.MethodGet, "/api/events?since=abc", nil, http.StatusBadRequest},
		{http.MethodGet, "/api/operations?limit=-1", nil, http.StatusBadRequest},
		{http.MethodGet, "/api/spotlight/category/nope", nil, http.StatusNotFound},
		{http.MethodPost, "/api/maintenance/defrag", nil, http.StatusNotFound},
	}
	for _, tt := range tests {
		if w := f.do(t, tt.method, tt.path, tt.body); w.Code != tt.want {
			t.Errorf("%s %s = %d, want %d (%s)", tt.method, tt.path, w.Code, tt.want, w.Body)
		}
	}
}

func TestSpotlightEndpoints(t *testing.T) {
	f := newFixture(t)
	w := f.do(t, http.MethodGet, "/api/spotlight/category/browsers", nil)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"category":"browsers"`) {
		t.Errorf("category = %d: %s", w.Code, w.Body)
	}
	w = f.do(t, http.MethodPost, "/api/spotlight/refresh?force=true", nil)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"started":true`) {
		t.Errorf("refresh = %d: %s", w.Code, w.Body)
	}
	// The fake runner has no listing, so the refresh fails.
	f.waitFor(t, func(s agent.Snapshot) bool { return s.SpotlightError != "" })
}

func TestDetailPolling(t *testing.T) {
	f := newFixture(t)
	if w := f.do(t, http.MethodGet, "/api/detail/ghost?remote=true", nil); w.Code != http.StatusAccepted {
		t.Fatalf("first detail = %d", w.Code)
	}
	f.waitFor(t, func(s agent.Snapshot) bool { return !s.DetailLoading })
	if w := f.do(t, http.MethodGet, "/api/detail/ghost?remote=true", nil); w.Code != http.StatusNotFound {
		t.Errorf("loaded detail = %d: %s", w.Code, w.Body)
	}
}

func TestEvents(t *testing.T) {
	f := newFixture(t)
	f.do(t, http.MethodPost, "/api/maintenance/orphans", nil)
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		w := f.do(t, http.MethodGet, "/api/events?since=0", nil)
		if strings.Contains(w.Body.String(), "orphans failed") {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Error("no failure event for orphans task")
}

func TestMaintenanceCacheAccepted(t *testing.T) {
	f := newFixture(t)
	w := f.do(t, http.MethodPost, "/api/maintenance/cache", nil)
	if w.Code != http.StatusAccepted || !strings.Contains(w.Body.String(), `"task":"cache"`) {
		t.Errorf("cache task = %d: %s", w.Code, w.Body)
	}
}

func TestMirrorEndpoints(t *testing.T) {
	f := newFixture(t)
	script := "cat <<'EOF' > '" + xbps.RepositoryConfigFile + "'\nrepository=https://repo-de.voidlinux.org/current\nEOF\n"
	f.runner.mu.Lock()
	f.runner.responses["sh -c "+script] = xbps.CommandResult{}
	f.runner.responses["xbps-query -L"] = xbps.CommandResult{Stdout: " 14219 https://repo-fi.voidlinux.org/current (RSA signed)\n"}
	f.runner.mu.Unlock()

	if w := f.do(t, http.MethodPost, "/api/mirrors", mirrorsRequest{IDs: []string{"nope"}}); w.Code != http.StatusBadRequest {
		t.Errorf("unknown mirror = %d, want 400", w.Code)
	}
	w := f.do(t, http.MethodPost, "/api/mirrors", mirrorsRequest{IDs: []string{"repo-de"}})
	if w.Code != http.StatusAccepted || !strings.Contains(w.Body.String(), `"ids":["repo-de"]`) {
		t.Fatalf("set mirrors = %d: %s", w.Code, w.Body)
	}
	snap := f.waitFor(t, func(s agent.Snapshot) bool { return !s.Mirrors.Applying })
	if snap.Mirrors.Error != "" {
		t.Errorf("Mirrors.Error = %q", snap.Mirrors.Error)
	}

	w = f.do(t, http.MethodGet, "/api/mirrors", nil)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"selected":["repo-de"]`) || !strings.Contains(w.Body.String(), `"id":"tor-dk"`) {
		t.Errorf("mirrors = %d: %s", w.Code, w.Body)
	}

	if w := f.do(t, http.MethodPost, "/api/mirrors/detect", nil); w.Code != http.StatusAccepted {
		t.Fatalf("detect = %d: %s", w.Code, w.Body)
	}
	snap = f.waitFor(t, func(s agent.Snapshot) bool { return !s.Mirrors.Detecting })
	if len(snap.Settings.MirrorSelection) != 1 || snap.Settings.MirrorSelection[0] != "repo-fi" {
		t.Errorf("selection after detect = %v, want [repo-fi]", snap.Settings.MirrorSelection)
	}
}
