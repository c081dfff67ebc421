// Package cvdnn runs an SSD-style detection network through OpenCV's dnn
// module.
//
// The network must emit the usual [1, 1, N, 7] detection blob where each row
// is (batch, classId, confidence, x1, y1, x2, y2) with corners normalised to
// [0, 1]. Rows of different classes that cover the same box are merged into
// one detection with several labels, best first.
package cvdnn

import (
	"ViewfinderOverlay/imageio"
	iface "ViewfinderOverlay/interface"
	"ViewfinderOverlay/logger"
	"context"
	"errors"
	"fmt"
	"image"
	"os"
	"sort"
	"sync"

	"go.uber.org/zap"
	"gocv.io/x/gocv"
)

// SameObjectIOU is the overlap above which two rows describe one object.
const SameObjectIOU = 0.85

var ErrNotLoaded = errors.New("model not loaded")

type Backend struct {
	InputSize image.Point
	Scale     float64
	Mean      gocv.Scalar
	SwapRB    bool
	UseGPU    bool

	mu     sync.Mutex
	net    gocv.Net
	loaded bool
	cfg    iface.EngineConfig
	names  []string
}

// New returns a backend with MobileNet-SSD preprocessing defaults.
func New() *Backend {
	return &Backend{
		InputSize: image.Pt(300, 300),
		Scale:     1.0 / 127.5,
		Mean:      gocv.NewScalar(127.5, 127.5, 127.5, 0),
		SwapRB:    true,
	}
}

func (b *Backend) LoadModel(cfg iface.EngineConfig) error {
	if _, err := os.Stat(cfg.ModelPath); err != nil {
		return fmt.Errorf("model artifact: %w", err)
	}
	net := gocv.ReadNet(cfg.ModelPath, "")
	if net.Empty() {
		return fmt.Errorf("model artifact %s could not be parsed", cfg.ModelPath)
	}
	if cfg.UseGPU || b.UseGPU {
		if err := net.SetPreferableBackend(gocv.NetBackendCUDA); err != nil {
			logger.Log().Warn("CUDA backend unavailable", zap.Error(err))
		}
		if err := net.SetPreferableTarget(gocv.NetTargetCUDA); err != nil {
			logger.Log().Warn("CUDA target unavailable", zap.Error(err))
		}
	}
	names, _ := cfg.Names.Data.([]string)

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.loaded {
		_ = b.net.Close()
	}
	b.net = net
	b.cfg = cfg
	b.names = names
	b.loaded = true
	return nil
}

// Detect runs the network on frame. Calls are serialised; a gocv.Net must not
// be used from two goroutines at once.
func (b *Backend) Detect(ctx context.Context, frame iface.Frame) ([]iface.RawDetection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.loaded {
		return nil, ErrNotLoaded
	}
	mat, err := imageio.FrameToMat(frame)
	if err != nil {
		return nil, err
	}
	defer mat.Close()
	blob := gocv.BlobFromImage(mat, b.Scale, b.InputSize, b.Mean, b.SwapRB, false)
	defer blob.Close()

	b.net.SetInput(blob, "")
	prob := b.net.Forward("")
	defer prob.Close()

	total := prob.Total()
	if total%7 != 0 {
		return nil, fmt.Errorf("unexpected detection blob of %d values", total)
	}
	rows := make([]Row, 0, total/7)
	flat := prob.Reshape(1, total/7)
	defer flat.Close()
	for i := 0; i < total/7; i++ {
		rows = append(rows, Row{
			ClassID:    int(flat.GetFloatAt(i, 1)),
			Confidence: flat.GetFloatAt(i, 2),
			X1:         flat.GetFloatAt(i, 3),
			Y1:         flat.GetFloatAt(i, 4),
			X2:         flat.GetFloatAt(i, 5),
			Y2:         flat.GetFloatAt(i, 6),
		})
	}
	return Group(rows, frame.Width, frame.Height, b.names, b.cfg), nil
}

func (b *Backend) Destroy() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.loaded {
		_ = b.net.Close()
	}
	b.loaded = false
	b.cfg = iface.EngineConfig{}
	b.names = nil
}

func (b *Backend) CheckConfig() iface.EngineConfig {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.cfg
}

// Row is one line of the detection blob.
type Row struct {
	ClassID        int
	Confidence     float32
	X1, Y1, X2, Y2 float32
}

// Group turns rows into detections in frame pixels. Rows under the configured
// threshold are skipped. With classification enabled, rows covering the same
// box are merged into one detection with up to MaxLabelsPerObject labels;
// without it every detection carries a single label. When multiple objects
// are disabled only the best detection is returned.
func Group(rows []Row, width, height int, names []string, cfg iface.EngineConfig) []iface.RawDetection {
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].Confidence > rows[j].Confidence })
	var out []iface.RawDetection
	for _, r := range rows {
		if r.Confidence < cfg.ConfidenceThreshold {
			continue
		}
		rect := iface.Rect{
			X:      float64(r.X1) * float64(width),
			Y:      float64(r.Y1) * float64(height),
			Width:  float64(r.X2-r.X1) * float64(width),
			Height: float64(r.Y2-r.Y1) * float64(height),
		}
		label := iface.Label{Text: className(names, r.ClassID), Confidence: r.Confidence, Index: r.ClassID}
		if cfg.EnableClassification && mergeLabel(out, rect, label, cfg.MaxLabelsPerObject) {
			continue
		}
		out = append(out, iface.RawDetection{Rect: rect, Labels: []iface.Label{label}})
	}
	if !cfg.EnableMultipleObjects && len(out) > 1 {
		out = out[:1]
	}
	return out
}

func mergeLabel(dets []iface.RawDetection, rect iface.Rect, label iface.Label, maxLabels int) bool {
	for i := range dets {
		if dets[i].Rect.IOU(rect) < SameObjectIOU {
			continue
		}
		for _, l := range dets[i].Labels {
			if l.Index == label.Index {
				return true
			}
		}
		if maxLabels <= 0 || len(dets[i].Labels) < maxLabels {
			dets[i].Labels = append(dets[i].Labels, label)
		}
		return true
	}
	return false
}

func className(names []string, id int) string {
	if id >= 0 && id < len(names) {
		return names[id]
	}
	return fmt.Sprintf("class %d", id)
}
