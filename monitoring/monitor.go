// Package monitoring serves a live view of a running session over HTTP.
//
// The monitor never touches the latency recorders of running actors. What it
// knows about actors comes from the hook contexts the actors hand out.
package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"runtime/pprof"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/google/pprof/profile"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/sarchlab/locktel/actor"
	"github.com/sarchlab/locktel/hooking"
	"github.com/sarchlab/locktel/sharedstate"
	"github.com/shirou/gopsutil/process"
	"github.com/syifan/goseth"
)

// Monitor turns a session into an HTTP server.
type Monitor struct {
	state      *sharedstate.State
	config     any
	portNumber int
	logger     zerolog.Logger

	registry *prometheus.Registry
	metrics  *actorMetrics

	progressBarsLock sync.Mutex
	progressBars     map[string]*ProgressBar

	server   *http.Server
	listener net.Listener
}

// NewMonitor creates a Monitor with its own Prometheus registry.
func NewMonitor() *Monitor {
	reg := prometheus.NewRegistry()

	return &Monitor{
		logger:       zerolog.Nop(),
		registry:     reg,
		metrics:      newActorMetrics(reg),
		progressBars: make(map[string]*ProgressBar),
	}
}

// WithPortNumber sets the port number of the monitor. Port numbers below
// 1000 select a random port.
func (m *Monitor) WithPortNumber(portNumber int) *Monitor {
	if portNumber < 1000 {
		m.logger.Warn().
			Int("port", portNumber).
			Msg("port not allowed for monitoring, using a random port")
		portNumber = 0
	}

	m.portNumber = portNumber

	return m
}

// WithLogger sets the logger of the monitor.
func (m *Monitor) WithLogger(l zerolog.Logger) *Monitor {
	m.logger = l
	return m
}

// RegisterState registers the shared state to expose.
func (m *Monitor) RegisterState(s *sharedstate.State) {
	m.state = s
	m.registry.MustRegister(newSharedCollector(s))
}

// RegisterConfig registers the configuration to expose.
func (m *Monitor) RegisterConfig(c any) {
	m.config = c
}

// Registry returns the Prometheus registry of the monitor.
func (m *Monitor) Registry() *prometheus.Registry {
	return m.registry
}

// CreateProgressBar creates a progress bar for an actor.
func (m *Monitor) CreateProgressBar(name string, total uint64) *ProgressBar {
	m.progressBarsLock.Lock()
	defer m.progressBarsLock.Unlock()

	bar, ok := m.progressBars[name]
	if !ok {
		bar = newProgressBar(name, total)
		m.progressBars[name] = bar
	}

	return bar
}

// Func updates progress bars and metrics from actor hooks. It implements
// hooking.Hook and may be called from several actors at once.
func (m *Monitor) Func(ctx hooking.HookCtx) {
	switch ctx.Pos {
	case actor.HookPosWorkerProgress:
		p, ok := ctx.Item.(actor.Progress)
		if !ok {
			return
		}

		m.CreateProgressBar(p.Actor, p.Total).SetFinished(p.Done)
		m.metrics.progress.WithLabelValues(p.Actor).Set(float64(p.Done))

	case actor.HookPosProducerSummary:
		s, ok := ctx.Item.(actor.ProducerSummary)
		if !ok {
			return
		}

		name := domainName(ctx)
		m.metrics.summaries.WithLabelValues(name).Inc()
		m.metrics.producerMax.WithLabelValues(name).Set(float64(s.Stats.MaxNs))
		m.metrics.producerAvg.WithLabelValues(name).Set(float64(s.Stats.AverageNs()))

	case actor.HookPosActorStopped:
		f, ok := ctx.Item.(actor.Final)
		if !ok {
			return
		}

		kind := string(f.Kind)
		m.metrics.samples.WithLabelValues(f.Name, kind).Set(float64(f.Stats.Samples))
		m.metrics.lockFailures.WithLabelValues(f.Name, kind).Set(float64(f.Stats.LockFailures))
		m.metrics.finalMax.WithLabelValues(f.Name, kind).Set(float64(f.Stats.MaxNs))

		m.progressBarsLock.Lock()
		bar, ok := m.progressBars[f.Name]
		m.progressBarsLock.Unlock()

		if ok {
			bar.Complete()
		}
	}
}

func domainName(ctx hooking.HookCtx) string {
	if ctx.Domain == nil {
		return ""
	}

	return ctx.Domain.Name()
}

// Router returns the HTTP routes of the monitor.
func (m *Monitor) Router() *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/api/state", m.sharedState).Methods(http.MethodGet)
	r.HandleFunc("/api/progress", m.listProgressBars).Methods(http.MethodGet)
	r.HandleFunc("/api/progress/{name}", m.progressBar).Methods(http.MethodGet)
	r.HandleFunc("/api/config", m.configuration).Methods(http.MethodGet)
	r.HandleFunc("/api/resource", m.listResources).Methods(http.MethodGet)
	r.HandleFunc("/api/profile", m.collectProfile).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))

	return r
}

// StartServer starts serving in the background and returns the URL of the
// monitor.
func (m *Monitor) StartServer() (string, error) {
	actualPort := ":0"
	if m.portNumber > 1000 {
		actualPort = ":" + strconv.Itoa(m.portNumber)
	}

	listener, err := net.Listen("tcp", actualPort)
	if err != nil {
		return "", fmt.Errorf("starting monitor: %w", err)
	}

	m.listener = listener
	m.server = &http.Server{
		Handler:           m.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	url := fmt.Sprintf("http://localhost:%d",
		listener.Addr().(*net.TCPAddr).Port)

	m.logger.Info().Str("url", url).Msg("monitoring session")

	go func() {
		err := m.server.Serve(listener)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			m.logger.Error().Err(err).Msg("monitor stopped")
		}
	}()

	return url, nil
}

// Shutdown stops the server, if it is running.
func (m *Monitor) Shutdown(ctx context.Context) error {
	if m.server == nil {
		return nil
	}

	return m.server.Shutdown(ctx)
}

func writeJSON(w http.ResponseWriter, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(data)
}

func (m *Monitor) sharedState(w http.ResponseWriter, _ *http.Request) {
	if m.state == nil {
		http.Error(w, "no shared state registered", http.StatusNotFound)
		return
	}

	writeJSON(w, m.state.Snapshot())
}

func (m *Monitor) sortedBars() []progressBarView {
	m.progressBarsLock.Lock()
	bars := make([]progressBarView, 0, len(m.progressBars))
	for _, b := range m.progressBars {
		bars = append(bars, b.view())
	}
	m.progressBarsLock.Unlock()

	sort.Slice(bars, func(i, j int) bool {
		return bars[i].Name < bars[j].Name
	})

	return bars
}

func (m *Monitor) listProgressBars(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, m.sortedBars())
}

func (m *Monitor) progressBar(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]

	m.progressBarsLock.Lock()
	bar, ok := m.progressBars[name]
	m.progressBarsLock.Unlock()

	if !ok {
		http.Error(w, "Progress bar not found", http.StatusNotFound)
		return
	}

	writeJSON(w, bar.view())
}

func (m *Monitor) configuration(w http.ResponseWriter, _ *http.Request) {
	if m.config == nil {
		http.Error(w, "no configuration registered", http.StatusNotFound)
		return
	}

	serializer := goseth.NewSerializer()
	serializer.SetRoot(m.config)
	serializer.SetMaxDepth(1)

	buf := bytes.NewBuffer(nil)
	if err := serializer.Serialize(buf); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(buf.Bytes())
}

type resourceRsp struct {
	CPUPercent float64 `json:"cpu_percent"`
	MemorySize uint64  `json:"memory_size"`
}

func (m *Monitor) listResources(w http.ResponseWriter, _ *http.Request) {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	cpuPercent, err := proc.CPUPercent()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	memoryInfo, err := proc.MemoryInfo()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, resourceRsp{
		CPUPercent: cpuPercent,
		MemorySize: memoryInfo.RSS,
	})
}

func (m *Monitor) collectProfile(w http.ResponseWriter, _ *http.Request) {
	buf := bytes.NewBuffer(nil)

	if err := pprof.StartCPUProfile(buf); err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}

	time.Sleep(time.Second)

	pprof.StopCPUProfile()

	prof, err := profile.ParseData(buf.Bytes())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, prof)
}
