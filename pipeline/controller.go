package pipeline

import (
	"ViewfinderOverlay/engine"
	iface "ViewfinderOverlay/interface"
	"ViewfinderOverlay/logger"
	"ViewfinderOverlay/monitor"
	"ViewfinderOverlay/overlay"
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Ordering decides what happens to a completion that arrives after the
// completion of a newer frame.
type Ordering int

const (
	// OrderDropStale discards completions older than the newest installed one.
	OrderDropStale Ordering = iota
	// OrderAcceptAny installs every completion in arrival order, so an older
	// frame's overlays may replace a newer frame's.
	OrderAcceptAny
)

func (o Ordering) String() string {
	if o == OrderAcceptAny {
		return "acceptAny"
	}
	return "dropStale"
}

// ParseOrdering reads a config value. The empty string selects
// OrderDropStale, which unlike plain arrival order never lets an older
// frame's overlays replace a newer frame's; "acceptAny" keeps arrival order.
func ParseOrdering(s string) (Ordering, error) {
	switch s {
	case "", "dropStale":
		return OrderDropStale, nil
	case "acceptAny":
		return OrderAcceptAny, nil
	default:
		return OrderDropStale, fmt.Errorf("unknown ordering %q", s)
	}
}

type Option func(*Controller)

func WithOrdering(o Ordering) Option {
	return func(c *Controller) { c.ordering = o }
}

// WithMaxInFlight drops incoming frames while n detections are outstanding.
// n <= 0 leaves the number of outstanding detections unbounded.
func WithMaxInFlight(n int) Option {
	return func(c *Controller) { c.maxInFlight = n }
}

type Stats struct {
	Submitted  uint64 `json:"submitted"`
	Completed  uint64 `json:"completed"`
	Installed  uint64 `json:"installed"`
	Stale      uint64 `json:"stale"`
	Gated      uint64 `json:"gated"`
	Failed     uint64 `json:"failed"`
	Empty      uint64 `json:"empty"`
	Degenerate uint64 `json:"degenerate"`
	Degraded   uint64 `json:"degraded"`
	InFlight   int64  `json:"inFlight"`
}

// Controller moves frames from a frame source through a Detector and a
// Projector onto a render surface. It owns no detection logic and keeps no
// frame after its detection completes.
type Controller struct {
	ID          string
	detector    *engine.Detector
	projector   *overlay.Projector
	surface     iface.RenderSurface
	ordering    Ordering
	maxInFlight int
	log         *zap.Logger

	seq           atomic.Uint64
	inFlight      atomic.Int64
	closeMu       sync.Mutex
	closed        bool
	wg            sync.WaitGroup
	installMu     sync.Mutex
	lastInstalled uint64

	submitted, completed, installed atomic.Uint64
	stale, gated, failed, empty     atomic.Uint64
	degenerate, degraded            atomic.Uint64
}

// New builds a controller. A nil detector gives a controller that accepts
// frames and never detects anything.
func New(detector *engine.Detector, projector *overlay.Projector, surface iface.RenderSurface, opts ...Option) *Controller {
	c := &Controller{
		ID:        uuid.NewString(),
		detector:  detector,
		projector: projector,
		surface:   surface,
		ordering:  OrderDropStale,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.log = logger.Named("pipeline").With(zap.String("ID", c.ID))
	if detector == nil {
		c.log.Warn("No detector available, running without detection")
	}
	return c
}

func (c *Controller) Degraded() bool {
	return c.detector == nil
}

func (c *Controller) Ordering() Ordering {
	return c.ordering
}

// OnFrame hands frame to the detector and returns at once with the sequence
// number given to it, or 0 when the frame was not submitted. It does not
// wait for earlier frames.
func (c *Controller) OnFrame(frame iface.Frame) uint64 {
	monitor.FramesReceived.Inc()
	// wg.Add must not race Close's wg.Wait, so it happens under closeMu.
	c.closeMu.Lock()
	if c.closed {
		c.closeMu.Unlock()
		return 0
	}
	if c.detector == nil {
		c.closeMu.Unlock()
		c.degraded.Add(1)
		monitor.FramesDropped.WithLabelValues(monitor.DropDegraded).Inc()
		return 0
	}
	if n := c.inFlight.Add(1); c.maxInFlight > 0 && n > int64(c.maxInFlight) {
		c.closeMu.Unlock()
		c.inFlight.Add(-1)
		c.gated.Add(1)
		monitor.FramesDropped.WithLabelValues(monitor.DropGated).Inc()
		return 0
	}
	frame.Seq = c.seq.Add(1)
	c.submitted.Add(1)
	monitor.InFlight.Inc()
	c.wg.Add(1)
	c.closeMu.Unlock()
	go c.complete(c.detector.Submit(context.Background(), frame))
	return frame.Seq
}

func (c *Controller) complete(f *engine.Future) {
	defer c.wg.Done()
	objs, err := f.Result()
	c.inFlight.Add(-1)
	c.completed.Add(1)
	monitor.InFlight.Dec()
	monitor.DetectLatency.Observe(f.Elapsed().Seconds())
	if err != nil {
		if errors.Is(err, engine.ErrNoDetections) {
			c.empty.Add(1)
			monitor.FramesDropped.WithLabelValues(monitor.DropEmpty).Inc()
			return
		}
		c.failed.Add(1)
		monitor.FramesDropped.WithLabelValues(monitor.DropFailed).Inc()
		c.log.Warn("Detection dropped", zap.Uint64("Seq", f.Frame.Seq), zap.Error(err))
		return
	}
	monitor.DetectionsTotal.Add(float64(len(objs)))
	c.install(f.Frame, objs)
}

func (c *Controller) install(frame iface.Frame, objs []iface.DetectedObject) {
	overlays, err := c.projector.Project(objs, frame.Size(), c.surface.Viewport())
	if err != nil {
		c.degenerate.Add(1)
		monitor.FramesDropped.WithLabelValues(monitor.DropDegenerate).Inc()
		c.log.Debug("Projection skipped", zap.Uint64("Seq", frame.Seq), zap.Error(err))
		return
	}

	c.installMu.Lock()
	defer c.installMu.Unlock()
	if c.ordering == OrderDropStale && frame.Seq < c.lastInstalled {
		c.stale.Add(1)
		monitor.FramesDropped.WithLabelValues(monitor.DropStale).Inc()
		c.log.Debug("Stale completion dropped", zap.Uint64("Seq", frame.Seq), zap.Uint64("Installed", c.lastInstalled))
		return
	}
	c.lastInstalled = max(c.lastInstalled, frame.Seq)
	c.surface.Replace(overlays)
	c.installed.Add(1)
	monitor.OverlayUpdates.Inc()
	c.log.Debug("Overlays installed", zap.Uint64("Seq", frame.Seq), zap.Int("Overlays", len(overlays)))
}

// Wait blocks until every submitted frame has completed.
func (c *Controller) Wait() {
	c.wg.Wait()
}

// Close stops accepting frames and waits for outstanding detections. No frame
// is submitted once Close has begun. The detector is not destroyed; it may be
// shared with other controllers.
func (c *Controller) Close() {
	c.closeMu.Lock()
	c.closed = true
	c.closeMu.Unlock()
	c.wg.Wait()
}

func (c *Controller) Stats() Stats {
	return Stats{
		Submitted:  c.submitted.Load(),
		Completed:  c.completed.Load(),
		Installed:  c.installed.Load(),
		Stale:      c.stale.Load(),
		Gated:      c.gated.Load(),
		Failed:     c.failed.Load(),
		Empty:      c.empty.Load(),
		Degenerate: c.degenerate.Load(),
		Degraded:   c.degraded.Load(),
		InFlight:   c.inFlight.Load(),
	}
}
