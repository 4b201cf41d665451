package httpserver

import (
	"context"
	"net"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tinytelemetry/feedwatch/internal/model"
	"github.com/tinytelemetry/feedwatch/internal/stats"
)

// defaultEventLimit caps /api/events when no limit is given.
const defaultEventLimit = 50

// Server provides an HTTP API over the live stats windows.
type Server struct {
	addr      string
	store     model.StatsAPI
	metrics   http.Handler
	server    *http.Server
	ctx       context.Context
	cancel    context.CancelFunc
	startTime time.Time
}

// NewServer creates a new HTTP API server. When metrics is non-nil it is
// mounted at /metrics.
func NewServer(addr string, store model.StatsAPI, metrics http.Handler) *Server {
	if addr == "" {
		addr = "0.0.0.0:3100"
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		addr:    addr,
		store:   store,
		metrics: metrics,
		ctx:     ctx,
		cancel:  cancel,
	}
}

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/api/health", s.handleHealth)
	r.GET("/api/stats/general", s.handleGeneral)
	r.GET("/api/stats/entities", s.handleEntities)
	r.GET("/api/stats/entities/:id", s.handleEntity)
	r.POST("/api/stats/reset", s.handleReset)
	r.GET("/api/snapshots", s.handleSnapshotNames)
	r.GET("/api/snapshots/:name", s.handleSnapshot)
	r.GET("/api/events", s.handleEvents)
	if s.metrics != nil {
		r.GET("/metrics", gin.WrapH(s.metrics))
	}
	return r
}

// Start begins serving HTTP requests.
func (s *Server) Start() error {
	gin.SetMode(gin.ReleaseMode)

	s.server = &http.Server{
		Handler:           s.routes(),
		BaseContext:       func(_ net.Listener) context.Context { return s.ctx },
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
	}

	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	s.addr = listener.Addr().String()

	s.startTime = time.Now()

	go s.server.Serve(listener)
	return nil
}

// Addr returns the listen address; after Start it holds the bound port.
func (s *Server) Addr() string {
	return s.addr
}

// Stop gracefully shuts down the HTTP server.
func (s *Server) Stop() error {
	s.cancel()
	if s.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth(c *gin.Context) {
	st := s.store.FeedStatus()
	status := "ok"
	if !st.Alive {
		status = "degraded"
	}

	c.JSON(http.StatusOK, gin.H{
		"status":   status,
		"uptime":   time.Since(s.startTime).String(),
		"feed":     st,
		"entities": len(s.store.EntityIDs()),
	})
}

func (s *Server) handleGeneral(c *gin.Context) {
	c.JSON(http.StatusOK, renderView(s.store.GeneralStats(), wantFormatted(c)))
}

func (s *Server) handleEntities(c *gin.Context) {
	formatted := wantFormatted(c)
	out := make(map[string]gin.H)
	for _, id := range s.store.EntityIDs() {
		if view, ok := s.store.EntityStats(id); ok {
			out[strconv.Itoa(id)] = renderView(view, formatted)
		}
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) handleEntity(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "entity id must be a non-negative integer"})
		return
	}
	view, ok := s.store.EntityStats(id)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "entity not found"})
		return
	}
	c.JSON(http.StatusOK, renderView(view, wantFormatted(c)))
}

func (s *Server) handleReset(c *gin.Context) {
	s.store.ResetBaselines()
	c.JSON(http.StatusOK, gin.H{"status": "reset"})
}

func (s *Server) handleSnapshotNames(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"names": s.store.RawSnapshotNames()})
}

func (s *Server) handleSnapshot(c *gin.Context) {
	raw, ok := s.store.RawSnapshot(c.Param("name"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "snapshot not found"})
		return
	}
	c.Data(http.StatusOK, "application/json; charset=utf-8", raw)
}

func (s *Server) handleEvents(c *gin.Context) {
	limit := defaultEventLimit
	if q := c.Query("limit"); q != "" {
		n, err := strconv.Atoi(q)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a non-negative integer"})
			return
		}
		limit = n
	}
	events := s.store.RecentEvents(limit)
	c.JSON(http.StatusOK, gin.H{"events": events, "count": len(events)})
}

func wantFormatted(c *gin.Context) bool {
	v, _ := strconv.ParseBool(c.DefaultQuery("formatted", "false"))
	return v
}

// renderView adds human-readable values when formatted is set.
func renderView(v model.WindowView, formatted bool) gin.H {
	out := gin.H{
		"current":     v.Current,
		"baseline":    v.Baseline,
		"relative":    v.Relative,
		"last_update": v.LastUpdate,
		"online":      v.Online,
	}
	if !formatted {
		return out
	}

	fields := make([]string, 0, len(v.Current))
	for f := range v.Current {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	human := make(map[string]gin.H, len(fields))
	for _, f := range fields {
		rel := model.NotAvailable
		if d, ok := v.Relative[f]; ok {
			rel = stats.FormatMagnitude(d, "")
		}
		human[f] = gin.H{
			"value":    stats.FormatMagnitude(v.Current[f], ""),
			"relative": rel,
		}
	}
	out["formatted"] = human
	return out
}
