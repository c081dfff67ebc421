package engine

import (
	iface "ViewfinderOverlay/interface"
	"ViewfinderOverlay/logger"
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Detector fronts a Backend, owns its handle and filters what it reports.
// A Detector is safe for use from several goroutines; the handle is created
// once in New and reused for every frame until Destroy.
type Detector struct {
	ModelPath string
	Names     []string

	opts    Options
	backend iface.Backend
	mu      sync.RWMutex
	state   int
}

// New loads modelPath into backend with DefaultOptions. Every failure wraps
// ErrDetectorInit.
func New(backend iface.Backend, modelPath string, names iface.NamesConf) (*Detector, error) {
	d := &Detector{opts: DefaultOptions(), state: UNREGISTERED}
	if backend == nil {
		return nil, fmt.Errorf("%w: no backend", ErrDetectorInit)
	}
	d.backend = backend
	d.state = REGISTERED
	if modelPath == "" {
		return nil, fmt.Errorf("%w: model path cannot be empty", ErrDetectorInit)
	}
	resolved, err := resolveNames(names)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDetectorInit, err)
	}
	if err := backend.LoadModel(d.opts.engineConfig(modelPath, resolved)); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDetectorInit, err)
	}
	d.ModelPath = modelPath
	d.Names = resolved
	d.state = READY
	logger.Log().Info("Detector ready",
		zap.String("ModelPath", modelPath),
		zap.Int("Classes", len(resolved)),
		zap.String("Mode", d.opts.Mode.String()),
		zap.Float32("Confidence", d.opts.ConfidenceThreshold),
		zap.Int("MaxLabels", d.opts.MaxLabelsPerObject))
	return d, nil
}

func (d *Detector) Options() Options {
	return d.opts
}

func (d *Detector) State() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.state
}

func (d *Detector) CheckConfig() iface.EngineConfig {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.backend == nil {
		return iface.EngineConfig{}
	}
	return d.backend.CheckConfig()
}

// Detect runs the backend on one frame and returns the accepted objects.
// It fails with ErrDetection when the backend errors and ErrNoDetections when
// the backend found nothing. When raw detections exist but none survive the
// filter the result is an empty slice and a nil error.
func (d *Detector) Detect(ctx context.Context, frame iface.Frame) ([]iface.DetectedObject, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.state != READY {
		return nil, ErrDetectorClosed
	}
	raw, err := d.backend.Detect(ctx, frame)
	if err != nil {
		return nil, fmt.Errorf("%w: frame %d: %w", ErrDetection, frame.Seq, err)
	}
	if len(raw) == 0 {
		return nil, ErrNoDetections
	}
	return d.opts.Accept(raw), nil
}

// DetectAsync runs Detect on its own goroutine and calls completion only when
// Detect succeeded. Failed and empty frames produce no callback.
func (d *Detector) DetectAsync(ctx context.Context, frame iface.Frame, completion func([]iface.DetectedObject)) *Future {
	f := d.Submit(ctx, frame)
	go func() {
		<-f.Done()
		if f.err == nil {
			completion(f.objects)
		}
	}()
	return f
}

// Destroy releases the backend handle. Calls to Detect after Destroy fail
// with ErrDetectorClosed.
func (d *Detector) Destroy() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.state == CLOSED {
		return
	}
	if d.backend != nil {
		d.backend.Destroy()
	}
	d.ModelPath = ""
	d.state = CLOSED
}

// Accept normalises each detection's labels and drops the ones that must not
// be shown. Labels under the confidence threshold are removed and the rest are
// capped at MaxLabelsPerObject, keeping backend order. An object that is left
// without labels, or that carries an EntityLabel, is dropped whole even when
// its other labels are meaningful.
func (o Options) Accept(raw []iface.RawDetection) []iface.DetectedObject {
	if !o.EnableMultipleObjects && len(raw) > 1 {
		raw = raw[:1]
	}
	out := make([]iface.DetectedObject, 0, len(raw))
	for _, r := range raw {
		labels := o.normalize(r.Labels)
		if len(labels) == 0 || hasEntity(labels) {
			continue
		}
		out = append(out, iface.DetectedObject{
			FrameRect:  r.Rect,
			Labels:     labels,
			TrackingID: r.TrackingID,
		})
	}
	return out
}

func (o Options) normalize(labels []iface.Label) []iface.Label {
	out := make([]iface.Label, 0, min(len(labels), o.MaxLabelsPerObject))
	for _, l := range labels {
		if len(out) == o.MaxLabelsPerObject {
			break
		}
		if o.EnableClassification && l.Confidence < o.ConfidenceThreshold {
			continue
		}
		out = append(out, l)
	}
	return out
}

func hasEntity(labels []iface.Label) bool {
	for _, l := range labels {
		if l.Text == EntityLabel {
			return true
		}
	}
	return false
}
