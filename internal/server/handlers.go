package server

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/blackwell-systems/voidstore/internal/agent"
	"github.com/blackwell-systems/voidstore/internal/operations"
	"github.com/blackwell-systems/voidstore/internal/spotlight"
	"github.com/blackwell-systems/voidstore/internal/status"
	"github.com/blackwell-systems/voidstore/internal/xbps"
)

type packagesRequest struct {
	Names []string `json:"names"`
	All   bool     `json:"all"`
}

func (s *Server) healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) status(c *gin.Context) {
	var snap agent.Snapshot
	if err := s.onOwner(c, func() { snap = s.agent.State().Snapshot() }); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

func (s *Server) events(c *gin.Context) {
	since, err := strconv.ParseUint(c.DefaultQuery("since", "0"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "since must be a sequence number"})
		return
	}
	var events []agent.Event
	if err := s.onOwner(c, func() { events = s.agent.Events(since) }); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": events})
}

// search runs a repository search in the background, or ranks cached and
// installed packages right away when local is set.
func (s *Server) search(c *gin.Context) {
	query := c.Query("q")
	local, _ := strconv.ParseBool(c.DefaultQuery("local", "false"))

	var results []xbps.PackageRecord
	err := s.onOwner(c, func() {
		if local {
			results = s.agent.SearchLocal(query)
			return
		}
		s.agent.SubmitSearch(query)
	})
	if err != nil {
		writeError(c, err)
		return
	}
	if local {
		c.JSON(http.StatusOK, gin.H{"query": query, "results": results})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"query": query})
}

func (s *Server) installed(c *gin.Context) {
	query := c.Query("q")
	var (
		pkgs    []xbps.PackageRecord
		loadErr string
	)
	err := s.onOwner(c, func() {
		pkgs = s.agent.FilterInstalled(query)
		loadErr = s.agent.State().InstalledError
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"packages": pkgs, "error": loadErr})
}

func (s *Server) refreshInstalled(c *gin.Context) {
	if err := s.onOwner(c, s.agent.RefreshInstalled); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusAccepted)
}

func (s *Server) install(c *gin.Context) {
	name := c.Param("name")
	var submitErr error
	if err := s.onOwner(c, func() { submitErr = s.agent.SubmitInstall(name) }); err != nil {
		writeError(c, err)
		return
	}
	if submitErr != nil {
		writeError(c, submitErr)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"package": name})
}

func (s *Server) remove(c *gin.Context) {
	var req packagesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	var submitErr error
	if err := s.onOwner(c, func() { submitErr = s.agent.SubmitRemove(req.Names...) }); err != nil {
		writeError(c, err)
		return
	}
	if submitErr != nil {
		writeError(c, submitErr)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"packages": req.Names})
}

func (s *Server) update(c *gin.Context) {
	var req packagesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	var submitErr error
	err := s.onOwner(c, func() {
		if req.All {
			submitErr = s.agent.SubmitUpdateAll()
			return
		}
		submitErr = s.agent.SubmitUpdate(req.Names...)
	})
	if err != nil {
		writeError(c, err)
		return
	}
	if submitErr != nil {
		writeError(c, submitErr)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"packages": req.Names, "all": req.All})
}

type updatesResponse struct {
	Updates  []xbps.PackageRecord           `json:"updates"`
	Checking bool                           `json:"checking"`
	Error    string                         `json:"error,omitempty"`
	Running  bool                           `json:"running"`
	Status   map[string]status.UpdateStatus `json:"status"`
	Log      []string                       `json:"log"`
}

func (s *Server) updates(c *gin.Context) {
	var resp updatesResponse
	err := s.onOwner(c, func() {
		st := s.agent.State()
		resp = updatesResponse{
			Updates:  append([]xbps.PackageRecord(nil), st.Updates...),
			Checking: st.UpdatesChecking,
			Error:    st.UpdatesError,
			Running:  st.UpdateRunning,
			Status:   st.UpdateStatus.Snapshot(),
			Log:      append([]string(nil), st.UpdateLog...),
		}
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) checkUpdates(c *gin.Context) {
	var submitErr error
	if err := s.onOwner(c, func() { submitErr = s.agent.CheckUpdates() }); err != nil {
		writeError(c, err)
		return
	}
	if submitErr != nil {
		writeError(c, submitErr)
		return
	}
	c.Status(http.StatusAccepted)
}

// detail returns the loaded detail of name if it is the current
// selection, otherwise it selects name and starts loading.
func (s *Server) detail(c *gin.Context) {
	name := c.Param("name")
	remote, _ := strconv.ParseBool(c.DefaultQuery("remote", "false"))

	var (
		snap  agent.Snapshot
		ready bool
	)
	err := s.onOwner(c, func() {
		st := s.agent.State()
		if st.Selected == name && st.SelectedRemote == remote {
			if !st.DetailLoading {
				ready = true
				snap = st.Snapshot()
			}
			return
		}
		s.agent.RequestDetail(name, remote)
	})
	if err != nil {
		writeError(c, err)
		return
	}
	if !ready {
		c.JSON(http.StatusAccepted, gin.H{"name": name, "loading": true})
		return
	}
	if snap.DetailError != "" {
		c.JSON(http.StatusNotFound, gin.H{"name": name, "error": snap.DetailError})
		return
	}
	if remote {
		c.JSON(http.StatusOK, snap.DiscoverDetail)
		return
	}
	c.JSON(http.StatusOK, snap.InstalledDetail)
}

func (s *Server) refreshSpotlight(c *gin.Context) {
	force, _ := strconv.ParseBool(c.DefaultQuery("force", "false"))
	var started bool
	if err := s.onOwner(c, func() { started = s.agent.TriggerSpotlightRefresh(force) }); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"started": started})
}

func (s *Server) spotlightRecent(c *gin.Context) {
	var recent []xbps.PackageRecord
	if err := s.onOwner(c, func() { recent = s.agent.State().Spotlight.Recent() }); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"packages": recent})
}

func (s *Server) spotlightCategory(c *gin.Context) {
	cat, ok := spotlight.ParseCategory(c.Param("tag"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown category " + c.Param("tag")})
		return
	}
	var pkgs []xbps.PackageRecord
	if err := s.onOwner(c, func() { pkgs = s.agent.State().Spotlight.Category(cat) }); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"category": cat, "name": cat.DisplayName(), "packages": pkgs})
}

func (s *Server) operations(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "0"))
	if err != nil || limit < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a non-negative integer"})
		return
	}
	var ops []operations.PackageOperation
	if err := s.onOwner(c, func() { ops = s.agent.State().History.All() }); err != nil {
		writeError(c, err)
		return
	}
	if limit > 0 && len(ops) > limit {
		ops = ops[:limit]
	}
	c.JSON(http.StatusOK, gin.H{"operations": ops})
}

func (s *Server) maintenance(c *gin.Context) {
	task, err := agent.ParseMaintenanceTask(c.Param("task"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	var submitErr error
	if err := s.onOwner(c, func() { submitErr = s.agent.RunMaintenance(task) }); err != nil {
		writeError(c, err)
		return
	}
	if submitErr != nil {
		writeError(c, submitErr)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"task": task})
}

type mirrorsResponse struct {
	Mirrors  []xbps.Mirror     `json:"mirrors"`
	Selected []string          `json:"selected"`
	State    agent.MirrorState `json:"state"`
}

func (s *Server) mirrors(c *gin.Context) {
	var resp mirrorsResponse
	err := s.onOwner(c, func() {
		snap := s.agent.State().Snapshot()
		resp = mirrorsResponse{
			Mirrors:  xbps.Mirrors(),
			Selected: snap.Settings.MirrorSelection,
			State:    snap.Mirrors,
		}
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

type mirrorsRequest struct {
	IDs []string `json:"ids"`
}

func (s *Server) setMirrors(c *gin.Context) {
	var req mirrorsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	var submitErr error
	if err := s.onOwner(c, func() { submitErr = s.agent.SetMirrors(req.IDs...) }); err != nil {
		writeError(c, err)
		return
	}
	if submitErr != nil {
		writeError(c, submitErr)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"ids": xbps.KnownMirrorIDs(req.IDs)})
}

func (s *Server) detectMirrors(c *gin.Context) {
	var submitErr error
	if err := s.onOwner(c, func() { submitErr = s.agent.DetectMirrors() }); err != nil {
		writeError(c, err)
		return
	}
	if submitErr != nil {
		writeError(c, submitErr)
		return
	}
	c.Status(http.StatusAccepted)
}
