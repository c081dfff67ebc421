package overlay

import (
	iface "ViewfinderOverlay/interface"
	"errors"
	"sync"

	"github.com/lucasb-eyer/go-colorful"
	"golang.org/x/image/font"
)

// EdgeMargin is the gap kept between a clipped box and the viewport edge.
const EdgeMargin = 2.0

var ErrDegenerateInput = errors.New("frame or viewport has no area")

// DisplayColor is the stroke and label plate color of every overlay.
var DisplayColor = colorful.Color{R: 1, G: 0, B: 0}

type Projector struct {
	mu    sync.Mutex
	face  font.Face
	Font  iface.FontDescriptor
	Color colorful.Color
}

func NewProjector() *Projector {
	return &Projector{
		face:  newLabelFace(),
		Font:  LabelFont,
		Color: DisplayColor,
	}
}

// MeasureLabel returns the rendered size of text in the label font.
func (p *Projector) MeasureLabel(text string) iface.Size {
	p.mu.Lock()
	defer p.mu.Unlock()
	return measure(p.face, text)
}

// Project maps detections from frame pixels to viewport pixels, one primitive
// per detection that has a label. A degenerate frame or viewport yields no
// primitives and ErrDegenerateInput.
func (p *Projector) Project(detections []iface.DetectedObject, frameSize, viewport iface.Size) ([]iface.OverlayPrimitive, error) {
	if frameSize.Degenerate() || viewport.Degenerate() {
		return nil, ErrDegenerateInput
	}
	sx := viewport.Width / frameSize.Width
	sy := viewport.Height / frameSize.Height

	p.mu.Lock()
	defer p.mu.Unlock()
	overlays := make([]iface.OverlayPrimitive, 0, len(detections))
	for _, det := range detections {
		if len(det.Labels) == 0 {
			continue
		}
		text := det.Labels[0].Text
		overlays = append(overlays, iface.OverlayPrimitive{
			DisplayRect:   Clip(det.FrameRect.Scale(sx, sy), viewport),
			LabelText:     text,
			LabelTextSize: measure(p.face, text),
			Color:         p.Color.Hex(),
			Font:          p.Font,
		})
	}
	return overlays, nil
}

// Clip pulls r back inside a viewport anchored at the origin.
func Clip(r iface.Rect, viewport iface.Size) iface.Rect {
	if r.X < 0 {
		r.X = EdgeMargin
	}
	if r.Y < 0 {
		r.Y = EdgeMargin
	}
	if r.MaxY() > viewport.Height {
		r.Height = viewport.Height - r.Y - EdgeMargin
	}
	if r.MaxX() > viewport.Width {
		r.Width = viewport.Width - r.X - EdgeMargin
	}
	return r
}
