// Package api provides the dashboard's HTTP and websocket surface.
package api

import (
	"fmt"
	"net/http"
	"net/http/pprof"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/Tanguille/p2pool-dashboard/internal/analytics"
	"github.com/Tanguille/p2pool-dashboard/internal/config"
	"github.com/Tanguille/p2pool-dashboard/internal/rpc"
	"github.com/Tanguille/p2pool-dashboard/internal/storage"
	"github.com/Tanguille/p2pool-dashboard/internal/tracker"
	"github.com/Tanguille/p2pool-dashboard/internal/util"
)

const (
	defaultHistoryHours = 24
	maxPayoutsLimit     = 100
)

// ObserverStateFunc is a callback to get ledger observer states
type ObserverStateFunc func() []rpc.ObserverState

// Server is the API server
type Server struct {
	cfg     *config.Config
	tracker *tracker.Tracker
	redis   *storage.RedisClient
	router  *gin.Engine
	server  *http.Server

	observerStateFunc ObserverStateFunc

	// websocket clients
	upgrader  websocket.Upgrader
	clients   sync.Map // id -> *wsClient
	clientSeq uint64
	quit      chan struct{}
	wg        sync.WaitGroup
}

// NewServer creates a new API server. redis may be nil.
func NewServer(cfg *config.Config, t *tracker.Tracker, redis *storage.RedisClient) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	s := &Server{
		cfg:     cfg,
		tracker: t,
		redis:   redis,
		router:  router,
		quit:    make(chan struct{}),
	}
	s.upgrader = newUpgrader(s.checkOrigin)

	s.setupRoutes()
	return s
}

// Handler returns the router, for tests and embedding
func (s *Server) Handler() http.Handler {
	return s.router
}

// setupRoutes configures API endpoints
func (s *Server) setupRoutes() {
	s.router.Use(s.corsMiddleware())

	api := s.router.Group("/api")
	{
		api.GET("/stats", s.handleStats)
		api.GET("/earnings", s.handleEarnings)
		api.GET("/history", s.handleHistory)
		api.GET("/payouts", s.handlePayouts)
		api.GET("/observers", s.handleObservers)
		api.GET("/ticks", s.handleTicks)
		api.GET("/ws", s.handleWebSocket)
	}

	// Root paths fetched by the dashboard page
	s.router.GET("/stats_log.json", s.handleStatsLog)
	s.router.GET("/observer_config", s.handleObserverConfig)
	s.router.GET("/min_payment_threshold", s.handleThreshold)

	s.router.GET("/health", s.handleHealth)

	if s.cfg.Profiling.Enabled {
		s.setupProfiling()
	}
}

// corsMiddleware allows the configured origins, or any origin when none
// are configured
func (s *Server) corsMiddleware() gin.HandlerFunc {
	allowed := make(map[string]bool, len(s.cfg.API.CORSOrigins))
	for _, o := range s.cfg.API.CORSOrigins {
		allowed[o] = true
	}

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		switch {
		case len(allowed) == 0 || allowed["*"]:
			c.Header("Access-Control-Allow-Origin", "*")
		case allowed[origin]:
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Vary", "Origin")
		}
		c.Header("Access-Control-Allow-Methods", "GET, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// setupProfiling mounts the pprof handlers under /debug/pprof
func (s *Server) setupProfiling() {
	debug := s.router.Group("/debug/pprof")
	{
		debug.GET("/", gin.WrapF(pprof.Index))
		debug.GET("/cmdline", gin.WrapF(pprof.Cmdline))
		debug.GET("/profile", gin.WrapF(pprof.Profile))
		debug.GET("/symbol", gin.WrapF(pprof.Symbol))
		debug.GET("/trace", gin.WrapF(pprof.Trace))
		for _, name := range []string{"goroutine", "heap", "allocs", "threadcreate", "block", "mutex"} {
			debug.GET("/"+name, gin.WrapH(pprof.Handler(name)))
		}
	}
	util.Info("pprof profiling enabled under /debug/pprof/")
}

// Start begins the API server
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:              s.cfg.API.Bind,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	util.Infof("API server listening on %s", s.cfg.API.Bind)

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			util.Errorf("API server error: %v", err)
		}
	}()

	return nil
}

// Stop shuts down the API server and disconnects websocket clients
func (s *Server) Stop() error {
	close(s.quit)

	var err error
	if s.server != nil {
		err = s.server.Close()
	}

	s.clients.Range(func(key, value interface{}) bool {
		value.(*wsClient).conn.Close()
		return true
	})
	s.wg.Wait()
	return err
}

// SetObserverStateFunc sets the callback for getting observer states
func (s *Server) SetObserverStateFunc(fn ObserverStateFunc) {
	s.observerStateFunc = fn
}

func (s *Server) observerStates() []rpc.ObserverState {
	if s.observerStateFunc == nil {
		return []rpc.ObserverState{}
	}
	return s.observerStateFunc()
}

// handleHealth reports liveness along with tick and observer health
func (s *Server) handleHealth(c *gin.Context) {
	stats := s.tracker.Stats()

	healthy := 0
	states := s.observerStates()
	for _, st := range states {
		if st.Healthy {
			healthy++
		}
	}

	status := "ok"
	if stats.LastTick == 0 {
		status = "starting"
	}

	c.JSON(http.StatusOK, gin.H{
		"status":            status,
		"tracker":           stats,
		"observers":         len(states),
		"healthy_observers": healthy,
	})
}

// handleStats returns the latest dashboard report
func (s *Server) handleStats(c *gin.Context) {
	rep := s.tracker.Report()
	if rep == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "No data yet"})
		return
	}
	c.JSON(http.StatusOK, rep)
}

// handleEarnings projects earnings for the requested period from the latest
// smoothed values
func (s *Server) handleEarnings(c *gin.Context) {
	period, err := analytics.ParsePeriod(c.DefaultQuery("period", string(analytics.PeriodDay)))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	est, ok := s.tracker.Earnings(period)
	if !ok {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "No data yet"})
		return
	}
	c.JSON(http.StatusOK, est)
}

// handleHistory returns the samples of the last hours, capped at the
// retention horizon
func (s *Server) handleHistory(c *gin.Context) {
	hours := defaultHistoryHours
	if h, err := parsePositive(c.DefaultQuery("hours", "24")); err == nil {
		hours = h
	}

	maxHours := int(s.cfg.History.Retention / time.Hour)
	if maxHours > 0 && hours > maxHours {
		hours = maxHours
	}

	view := s.tracker.History(time.Duration(hours) * time.Hour)
	c.JSON(http.StatusOK, gin.H{
		"hours":  hours,
		"points": view,
	})
}

// handleStatsLog returns the full history in the parallel-array log form
func (s *Server) handleStatsLog(c *gin.Context) {
	c.JSON(http.StatusOK, s.tracker.HistoryLog())
}

// handleObserverConfig returns the ledger selection. An empty wallet means
// ledger features are disabled.
func (s *Server) handleObserverConfig(c *gin.Context) {
	observers := s.cfg.Ledger.Observers
	if observers == nil {
		observers = []string{}
	}

	// Before the first health check the first configured observer is used
	active := s.cfg.ObserverBase()
	for _, st := range s.observerStates() {
		if st.Active {
			active = st.URL
			break
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"enabled":   s.cfg.LedgerEnabled(),
		"wallet":    s.cfg.Ledger.Wallet,
		"observers": observers,
		"active":    active,
	})
}

// handleThreshold returns the payout threshold in XMR
func (s *Server) handleThreshold(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"minPaymentThreshold": s.tracker.Threshold()})
}

// handlePayouts returns payouts newest first, from the Redis archive when
// available and the latest report otherwise
func (s *Server) handlePayouts(c *gin.Context) {
	limit := s.cfg.Analytics.RecentPayments
	if v, err := parsePositive(c.DefaultQuery("limit", "")); err == nil {
		limit = min(v, maxPayoutsLimit)
	}

	wallet := s.cfg.Ledger.Wallet
	if wallet == "" {
		c.JSON(http.StatusOK, gin.H{"enabled": false, "payouts": []analytics.Payout{}})
		return
	}

	if s.redis != nil {
		payouts, err := s.redis.GetPayouts(wallet, int64(limit))
		if err != nil {
			util.Warnf("Read archived payouts: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get payouts"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"enabled": true, "payouts": payouts})
		return
	}

	payouts := []analytics.Payout{}
	if rep := s.tracker.Report(); rep != nil && rep.Payouts != nil {
		payouts = rep.Payouts.Recent
		if len(payouts) > limit {
			payouts = payouts[:limit]
		}
	}
	c.JSON(http.StatusOK, gin.H{"enabled": true, "payouts": payouts})
}

// handleObservers returns ledger observer status
func (s *Server) handleObservers(c *gin.Context) {
	states := s.observerStates()

	healthy := 0
	var active string
	for _, st := range states {
		if st.Healthy {
			healthy++
		}
		if st.Active {
			active = st.Name
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"observers": states,
		"total":     len(states),
		"healthy":   healthy,
		"active":    active,
	})
}

// handleTicks returns poller counters, shared across instances when Redis
// is configured
func (s *Server) handleTicks(c *gin.Context) {
	local := s.tracker.Stats()
	if s.redis == nil {
		c.JSON(http.StatusOK, gin.H{"local": local})
		return
	}

	shared, err := s.redis.GetTickStats()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get tick stats"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"local": local, "shared": shared})
}

// parsePositive parses a positive integer query value
func parsePositive(s string) (int, error) {
	var n int
	if _, err := fmt.Sscanf(s, "%d", &n); err != nil {
		return 0, err
	}
	if n < 1 {
		return 0, fmt.Errorf("value must be positive: %d", n)
	}
	return n, nil
}
