package monitor

import (
	"ViewfinderOverlay/logger"
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shirou/gopsutil/v4/process"
	"go.uber.org/zap"
)

// Reasons a frame produced no overlay update.
const (
	DropDegraded   = "degraded"
	DropGated      = "gated"
	DropStale      = "stale"
	DropFailed     = "failed"
	DropEmpty      = "empty"
	DropDegenerate = "degenerate"
)

var (
	PID      process.Process
	Registry = prometheus.NewRegistry()

	memUsage = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "memory_usage_Megabytes",
		Help: "Memory usage in Megabytes",
	})
	cpuUsage = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "cpu_usage_percent",
		Help: "CPU usage in percent",
	})

	FramesReceived = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "frames_received_total",
		Help: "Frames handed to a pipeline controller",
	})
	FramesDropped = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "frames_dropped_total",
		Help: "Frames that did not lead to an overlay update, by reason",
	}, []string{"reason"})
	DetectionsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "detections_total",
		Help: "Detected objects accepted by the detector adapter",
	})
	OverlayUpdates = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "overlay_updates_total",
		Help: "Overlay sets installed on render surfaces",
	})
	InFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "detections_in_flight",
		Help: "Detections submitted and not yet completed",
	})
	DetectLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "detect_latency_seconds",
		Help:    "Time spent in the detection backend per frame",
		Buckets: prometheus.ExponentialBuckets(0.005, 2, 10),
	})
	APIRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "api_requests_total",
		Help: "Requests served, by surface",
	}, []string{"surface"})
)

func init() {
	Registry.MustRegister(memUsage, cpuUsage, FramesReceived, FramesDropped, DetectionsTotal,
		OverlayUpdates, InFlight, DetectLatency, APIRequests)
}

var srv *http.Server

// Handler serves the registry in the prometheus text format.
func Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(Registry, promhttp.HandlerOpts{Registry: Registry}))
	return mux
}

func prom(port int) {
	srv = &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: Handler(),
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Log().Error("Prometheus server ListenAndServe error", zap.Error(err))
		}
	}()
}

func CheckProcessInfo() {
	memInfo, err := PID.MemoryInfo()
	if err == nil {
		memUsage.Set(float64(memInfo.RSS / 1024 / 1024))
	}
	cpuPercent, err := PID.CPUPercent()
	if err == nil {
		cpuUsage.Set(math.Round(cpuPercent*100) / 100)
	}
}

func GotPID() {
	PID.Pid = int32(os.Getpid())
}

// StartMon serves /metrics on port and samples process usage until ctx is done.
func StartMon(port int, ctx context.Context) {
	PID = process.Process{}
	GotPID()
	prom(port)
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()
checkPcs:
	for {
		select {
		case <-ctx.Done():
			break checkPcs
		case <-ticker.C:
			CheckProcessInfo()
		}
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Log().Error("Prometheus server Shutdown error", zap.Error(err))
	}
}
