package metrics

import (
	"expvar"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

const (
	// Local diagnostics endpoints
	StatsPath     = "/stats"
	DebugVarsPath = "/debug/vars"
	EnvPath       = "/admin/env"

	envPrefix = "GULFER_"
)

var (
	reloadMu       sync.Mutex
	reloadCallback func() error
	st             = newState()
	publishOnce    sync.Once
)

// Init publishes expvar variables. Safe to call more than once.
func Init() {
	publishOnce.Do(func() {
		expvar.Publish("gulfer_started_at", expvar.Func(func() any {
			return st.startedAt.Format(time.RFC3339)
		}))
		expvar.Publish("gulfer_uptime_seconds", expvar.Func(func() any {
			return int64(time.Since(st.startedAt).Seconds())
		}))
		expvar.Publish("gulfer_requests", expvar.Func(func() any {
			return st.snapshot(time.Now())
		}))
	})
}

// SetReloadCallback sets the function to call after environment updates.
func SetReloadCallback(callback func() error) {
	reloadMu.Lock()
	defer reloadMu.Unlock()
	reloadCallback = callback
}

// Middleware records request counts per route and status, latency buckets,
// requests per minute and active devices over 5 minutes.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		st.record(c.Request, route, c.Writer.Status(), time.Since(start))
	}
}

// StatsHandler returns a compact JSON snapshot for quick inspection.
func StatsHandler(c *gin.Context) {
	c.JSON(http.StatusOK, st.snapshot(time.Now()))
}

type stats struct {
	StartedAt                string                      `json:"started_at"`
	UptimeSeconds            int64                       `json:"uptime_seconds"`
	TotalRequests            int64                       `json:"total_requests"`
	TotalErrors              int64                       `json:"total_errors"`
	AverageLatencyMs         float64                     `json:"avg_latency_ms"`
	RequestsPerMinuteLast10m []int64                     `json:"requests_last_10m_newest_first"`
	ActiveDevices5m          int64                       `json:"active_devices_5m"`
	RequestsByRouteAndStatus map[string]map[string]int64 `json:"requests_by_route_status"`
	LatencyBuckets           map[string]int64            `json:"latency_buckets"`
}

type metricsState struct {
	mu sync.Mutex

	startedAt time.Time

	totalReq     int64
	totalErr     int64
	totalLatency time.Duration

	// "METHOD route" -> status -> count
	byRouteStatus map[string]map[int]int64
	// bucket label -> count
	durationBuckets map[string]int64

	// newest minute first
	perMinute  [10]int64
	lastMinute time.Time

	active map[string]time.Time
}

func newState() *metricsState {
	return &metricsState{
		startedAt:       time.Now(),
		byRouteStatus:   make(map[string]map[int]int64),
		durationBuckets: make(map[string]int64),
		active:          make(map[string]time.Time),
	}
}

func (s *metricsState) record(r *http.Request, route string, status int, d time.Duration) {
	now := time.Now()
	key := r.Method + " " + route

	s.mu.Lock()
	defer s.mu.Unlock()

	s.totalReq++
	if status >= 400 {
		s.totalErr++
	}
	s.totalLatency += d

	if _, ok := s.byRouteStatus[key]; !ok {
		s.byRouteStatus[key] = make(map[int]int64)
	}
	s.byRouteStatus[key][status]++
	s.durationBuckets[bucketLabel(d)]++

	s.advanceLocked(now)
	s.perMinute[0]++

	s.active[deviceKey(r)] = now
	s.pruneLocked(now)
}

// advanceLocked shifts the per-minute ring so perMinute[0] is the current
// minute.
func (s *metricsState) advanceLocked(now time.Time) {
	curr := now.Truncate(time.Minute)
	if s.lastMinute.IsZero() {
		s.lastMinute = curr
		return
	}
	delta := int(curr.Sub(s.lastMinute) / time.Minute)
	if delta <= 0 {
		return
	}
	if delta > len(s.perMinute) {
		delta = len(s.perMinute)
	}
	copy(s.perMinute[delta:], s.perMinute[:len(s.perMinute)-delta])
	for i := 0; i < delta; i++ {
		s.perMinute[i] = 0
	}
	s.lastMinute = curr
}

func (s *metricsState) pruneLocked(now time.Time) {
	cutoff := now.Add(-5 * time.Minute)
	for k, t := range s.active {
		if t.Before(cutoff) {
			delete(s.active, k)
		}
	}
}

func (s *metricsState) snapshot(now time.Time) stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pruneLocked(now)
	avg := float64(0)
	if s.totalReq > 0 {
		avg = float64(s.totalLatency.Milliseconds()) / float64(s.totalReq)
	}
	rpm := make([]int64, len(s.perMinute))
	copy(rpm, s.perMinute[:])

	routes := make(map[string]map[string]int64, len(s.byRouteStatus))
	for k, inner := range s.byRouteStatus {
		o := make(map[string]int64, len(inner))
		for code, c := range inner {
			o[strconv.Itoa(code)] = c
		}
		routes[k] = o
	}
	buckets := make(map[string]int64, len(s.durationBuckets))
	for k, v := range s.durationBuckets {
		buckets[k] = v
	}

	return stats{
		StartedAt:                s.startedAt.Format(time.RFC3339),
		UptimeSeconds:            int64(now.Sub(s.startedAt).Seconds()),
		TotalRequests:            s.totalReq,
		TotalErrors:              s.totalErr,
		AverageLatencyMs:         avg,
		RequestsPerMinuteLast10m: rpm,
		ActiveDevices5m:          int64(len(s.active)),
		RequestsByRouteAndStatus: routes,
		LatencyBuckets:           buckets,
	}
}

var bucketBounds = []time.Duration{
	10 * time.Millisecond,
	25 * time.Millisecond,
	50 * time.Millisecond,
	100 * time.Millisecond,
	250 * time.Millisecond,
	500 * time.Millisecond,
	1000 * time.Millisecond,
}

func bucketLabel(d time.Duration) string {
	for _, b := range bucketBounds {
		if d <= b {
			return "le_" + strconv.FormatInt(b.Milliseconds(), 10) + "ms"
		}
	}
	return "gt_1000ms"
}

// deviceKey identifies a client by its storage id header, else by address.
func deviceKey(r *http.Request) string {
	if id := strings.TrimSpace(r.Header.Get("X-Storage-ID")); id != "" {
		return "storage:" + id
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil && host != "" {
		return "ip:" + host
	}
	return "ip:" + r.RemoteAddr
}

// GetEnvHandler lists the GULFER_* environment variables.
func GetEnvHandler(c *gin.Context) {
	envVars := make(map[string]string)
	for _, env := range os.Environ() {
		pair := strings.SplitN(env, "=", 2)
		if len(pair) == 2 && strings.HasPrefix(pair[0], envPrefix) {
			envVars[pair[0]] = pair[1]
		}
	}
	c.JSON(http.StatusOK, gin.H{
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"env_vars":  envVars,
	})
}

// SetEnvHandler updates GULFER_* variables from a JSON object and triggers
// the reload callback.
func SetEnvHandler(c *gin.Context) {
	var request map[string]string
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON request body"})
		return
	}

	updated := make(map[string]string)
	errs := make(map[string]string)
	for key, value := range request {
		if !strings.HasPrefix(key, envPrefix) {
			errs[key] = "only " + envPrefix + "* variables are allowed"
			continue
		}
		if !isValidEnvVarName(key) {
			errs[key] = "invalid environment variable name"
			continue
		}
		if err := os.Setenv(key, value); err != nil {
			errs[key] = "failed to set: " + err.Error()
			continue
		}
		updated[key] = value
	}

	message := "Environment variables updated."
	reloadMu.Lock()
	cb := reloadCallback
	reloadMu.Unlock()
	if len(updated) > 0 && cb != nil {
		if err := cb(); err != nil {
			errs["reload"] = "reload failed: " + err.Error()
			message = "Environment variables updated, but reload failed."
		} else {
			message = "Environment variables updated and components reloaded."
		}
	}

	status := http.StatusOK
	if len(errs) > 0 && len(updated) == 0 {
		status = http.StatusBadRequest
	}
	c.JSON(status, gin.H{
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"updated":   updated,
		"errors":    errs,
		"message":   message,
	})
}

func isValidEnvVarName(name string) bool {
	if name == "" {
		return false
	}
	for _, ch := range name {
		if !((ch >= 'A' && ch <= 'Z') || (ch >= '0' && ch <= '9') || ch == '_') {
			return false
		}
	}
	return true
}
