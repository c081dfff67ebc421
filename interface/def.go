package iface

import "context"

// Frame is one camera image. Data holds Height rows of Width*Channels bytes.
// A frame is owned by its producer and must not be modified once submitted.
type Frame struct {
	Seq      uint64 `json:"seq"`
	Data     []byte `json:"-"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
	Channels int    `json:"channels"`
}

// Size is the frame extent in pixels.
func (f Frame) Size() Size {
	return Size{Width: float64(f.Width), Height: float64(f.Height)}
}

// Size is a width and height in pixels of a frame or a viewport.
type Size struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Degenerate reports whether the size has no area.
func (s Size) Degenerate() bool {
	return s.Width <= 0 || s.Height <= 0
}

// Rect is an axis-aligned box with its origin at the top-left corner.
type Rect struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Edges of the box.
func (r Rect) MinX() float64 { return r.X }
func (r Rect) MinY() float64 { return r.Y }
func (r Rect) MaxX() float64 { return r.X + r.Width }
func (r Rect) MaxY() float64 { return r.Y + r.Height }

// Scale multiplies origin and size by independent horizontal and vertical factors.
func (r Rect) Scale(sx, sy float64) Rect {
	return Rect{X: r.X * sx, Y: r.Y * sy, Width: r.Width * sx, Height: r.Height * sy}
}

// Area is zero for empty or negative sizes.
func (r Rect) Area() float64 {
	if r.Width <= 0 || r.Height <= 0 {
		return 0
	}
	return r.Width * r.Height
}

// Intersection is the overlap of r and b; it has zero size when they do not meet.
func (r Rect) Intersection(b Rect) Rect {
	x1 := max(r.X, b.X)
	y1 := max(r.Y, b.Y)
	x2 := min(r.MaxX(), b.MaxX())
	y2 := min(r.MaxY(), b.MaxY())
	return Rect{X: x1, Y: y1, Width: max(0, x2-x1), Height: max(0, y2-y1)}
}

// IOU is intersection over union; zero when both rects are empty.
func (r Rect) IOU(b Rect) float64 {
	inter := r.Intersection(b).Area()
	union := r.Area() + b.Area() - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}

// Label is one classification of an object. Index is the class index, -1 when unknown.
type Label struct {
	Text       string  `json:"text"`
	Confidence float32 `json:"confidence"`
	Index      int     `json:"index"`
}

// RawDetection is a detection exactly as a Backend reports it, in frame pixels.
type RawDetection struct {
	Rect       Rect    `json:"rect"`
	Labels     []Label `json:"labels"`
	TrackingID int64   `json:"trackingID,omitempty"`
}

// DetectedObject is a detection accepted by the detector adapter. It always has
// between one and MaxLabelsPerObject labels.
type DetectedObject struct {
	FrameRect  Rect    `json:"frameRect"`
	Labels     []Label `json:"labels"`
	TrackingID int64   `json:"trackingID,omitempty"`
}

type FontDescriptor struct {
	Family string  `json:"family"`
	Weight string  `json:"weight"`
	Size   float64 `json:"size"`
}

type OverlayPrimitive struct {
	DisplayRect   Rect           `json:"displayRect"`
	LabelText     string         `json:"labelText"`
	LabelTextSize Size           `json:"labelTextSize"`
	Color         string         `json:"color"`
	Font          FontDescriptor `json:"font"`
}

type DetectorMode int

const (
	SingleImage DetectorMode = iota
	Stream
)

func (m DetectorMode) String() string {
	if m == Stream {
		return "stream"
	}
	return "singleImage"
}

type NamesConf struct {
	IsFile bool
	Data   any
}

type EngineConfig struct {
	ModelPath             string
	Names                 NamesConf
	Mode                  DetectorMode
	EnableClassification  bool
	EnableMultipleObjects bool
	ConfidenceThreshold   float32
	MaxLabelsPerObject    int
	UseGPU                bool
}

// Backend is an opaque single-image object detection capability.
// Detect may be called from several goroutines at once.
type Backend interface {
	LoadModel(cfg EngineConfig) error
	Detect(ctx context.Context, frame Frame) ([]RawDetection, error)
	Destroy()
	CheckConfig() EngineConfig
}

// RenderSurface receives complete overlay sets. Each Replace call is
// authoritative for the current frame and discards whatever was shown before.
type RenderSurface interface {
	Viewport() Size
	Replace(overlays []OverlayPrimitive)
}
