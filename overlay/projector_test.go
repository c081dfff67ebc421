package overlay

import (
	iface "ViewfinderOverlay/interface"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func detection(x, y, w, h float64, labels ...string) iface.DetectedObject {
	d := iface.DetectedObject{FrameRect: iface.Rect{X: x, Y: y, Width: w, Height: h}}
	for _, l := range labels {
		d.Labels = append(d.Labels, iface.Label{Text: l, Confidence: 0.9})
	}
	return d
}

var (
	frame640  = iface.Size{Width: 640, Height: 480}
	viewport  = iface.Size{Width: 320, Height: 240}
	projector = NewProjector()
)

func TestProject_NoClipping(t *testing.T) {
	overlays, err := projector.Project([]iface.DetectedObject{detection(100, 100, 50, 50, "Cereal Box")}, frame640, viewport)
	require.NoError(t, err)
	require.Len(t, overlays, 1)
	o := overlays[0]
	assert.Equal(t, iface.Rect{X: 50, Y: 50, Width: 25, Height: 25}, o.DisplayRect)
	assert.Equal(t, "Cereal Box", o.LabelText)
	assert.Equal(t, "#ff0000", o.Color)
	assert.Equal(t, LabelFont, o.Font)
	assert.Greater(t, o.LabelTextSize.Width, 0.0)
	assert.Greater(t, o.LabelTextSize.Height, 0.0)
}

func TestProject_LeftEdgeClamped(t *testing.T) {
	overlays, err := projector.Project([]iface.DetectedObject{detection(-10, 300, 50, 50, "Cereal Box")}, frame640, viewport)
	require.NoError(t, err)
	require.Len(t, overlays, 1)
	assert.Equal(t, iface.Rect{X: 2, Y: 150, Width: 25, Height: 25}, overlays[0].DisplayRect)
}

func TestProject_Scaling(t *testing.T) {
	tests := []struct {
		frame, view iface.Size
		in, want    iface.Rect
	}{
		{iface.Size{Width: 100, Height: 100}, iface.Size{Width: 200, Height: 50}, iface.Rect{X: 10, Y: 20, Width: 30, Height: 40}, iface.Rect{X: 20, Y: 10, Width: 60, Height: 20}},
		{iface.Size{Width: 1920, Height: 1080}, iface.Size{Width: 1920, Height: 1080}, iface.Rect{X: 1, Y: 2, Width: 3, Height: 4}, iface.Rect{X: 1, Y: 2, Width: 3, Height: 4}},
		{iface.Size{Width: 400, Height: 300}, iface.Size{Width: 100, Height: 150}, iface.Rect{X: 40, Y: 30, Width: 80, Height: 60}, iface.Rect{X: 10, Y: 15, Width: 20, Height: 30}},
	}
	for i, tt := range tests {
		t.Run(fmt.Sprint(i), func(t *testing.T) {
			overlays, err := projector.Project([]iface.DetectedObject{{FrameRect: tt.in, Labels: []iface.Label{{Text: "x"}}}}, tt.frame, tt.view)
			require.NoError(t, err)
			require.Len(t, overlays, 1)
			assert.InDeltaMapValues(t,
				map[string]float64{"x": tt.want.X, "y": tt.want.Y, "w": tt.want.Width, "h": tt.want.Height},
				map[string]float64{"x": overlays[0].DisplayRect.X, "y": overlays[0].DisplayRect.Y, "w": overlays[0].DisplayRect.Width, "h": overlays[0].DisplayRect.Height},
				1e-9)
		})
	}
}

func TestClip(t *testing.T) {
	tests := []struct {
		name string
		in   iface.Rect
		want iface.Rect
	}{
		{"inside", iface.Rect{X: 10, Y: 10, Width: 20, Height: 20}, iface.Rect{X: 10, Y: 10, Width: 20, Height: 20}},
		{"top", iface.Rect{X: 10, Y: -4, Width: 20, Height: 20}, iface.Rect{X: 10, Y: 2, Width: 20, Height: 20}},
		{"bottom right", iface.Rect{X: 300, Y: 230, Width: 50, Height: 50}, iface.Rect{X: 300, Y: 230, Width: 18, Height: 8}},
		{"shrink from clamped origin", iface.Rect{X: -10, Y: -10, Width: 400, Height: 300}, iface.Rect{X: 2, Y: 2, Width: 316, Height: 236}},
		{"touching edges", iface.Rect{X: 0, Y: 0, Width: 320, Height: 240}, iface.Rect{X: 0, Y: 0, Width: 320, Height: 240}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Clip(tt.in, viewport)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestClip_Bounds(t *testing.T) {
	for x := -100.0; x <= 400; x += 37 {
		for y := -100.0; y <= 300; y += 29 {
			in := iface.Rect{X: x, Y: y, Width: 90, Height: 70}
			got := Clip(in, viewport)
			assert.GreaterOrEqual(t, got.X, 0.0)
			assert.GreaterOrEqual(t, got.Y, 0.0)
			if in.X < 0 {
				assert.Equal(t, EdgeMargin, got.X)
			}
			if in.Y < 0 {
				assert.Equal(t, EdgeMargin, got.Y)
			}
			if got.X+in.Width > viewport.Width {
				assert.InDelta(t, viewport.Width-EdgeMargin, got.MaxX(), 1e-9)
			}
			if got.Y+in.Height > viewport.Height {
				assert.InDelta(t, viewport.Height-EdgeMargin, got.MaxY(), 1e-9)
			}
		}
	}
}

func TestProject_SkipsUnlabeled(t *testing.T) {
	overlays, err := projector.Project([]iface.DetectedObject{
		detection(0, 0, 10, 10),
		detection(0, 0, 10, 10, "Soup Can", "Can"),
	}, frame640, viewport)
	require.NoError(t, err)
	require.Len(t, overlays, 1)
	assert.Equal(t, "Soup Can", overlays[0].LabelText)
}

func TestProject_Degenerate(t *testing.T) {
	dets := []iface.DetectedObject{detection(1, 1, 1, 1, "a")}
	for _, tt := range []struct{ frame, view iface.Size }{
		{iface.Size{Width: 0, Height: 480}, viewport},
		{iface.Size{Width: 640, Height: 0}, viewport},
		{frame640, iface.Size{Width: 0, Height: 240}},
		{frame640, iface.Size{}},
	} {
		overlays, err := projector.Project(dets, tt.frame, tt.view)
		assert.ErrorIs(t, err, ErrDegenerateInput)
		assert.Empty(t, overlays)
	}
}

func TestProject_CountNeverExceedsDetections(t *testing.T) {
	dets := []iface.DetectedObject{detection(0, 0, 1, 1, "a"), detection(0, 0, 1, 1), detection(5, 5, 1, 1, "b")}
	overlays, err := projector.Project(dets, frame640, viewport)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(overlays), len(dets))
}

func TestMeasureLabel(t *testing.T) {
	empty := projector.MeasureLabel("")
	short := projector.MeasureLabel("Can")
	long := projector.MeasureLabel("Cereal Box Family Size")
	assert.Equal(t, 0.0, empty.Width)
	assert.Greater(t, long.Width, short.Width)
	assert.Equal(t, short.Height, long.Height)
	assert.InDelta(t, LabelFontSize, short.Height, 8)
}

func TestLabelFont_ReadyAtPackageInit(t *testing.T) {
	require.NotNil(t, labelFont)
	size := projector.MeasureLabel("Soup Can")
	assert.Greater(t, size.Width, 0.0)
	assert.Greater(t, size.Height, 0.0)
}
