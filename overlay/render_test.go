package overlay

import (
	iface "ViewfinderOverlay/interface"
	"image"
	"image/color"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rgb8(c color.Color) (uint8, uint8, uint8) {
	r, g, b, _ := c.RGBA()
	return uint8(r >> 8), uint8(g >> 8), uint8(b >> 8)
}

func TestAnnotate(t *testing.T) {
	src := imaging.New(100, 100, color.Black)
	overlays, err := NewProjector().Project([]iface.DetectedObject{detection(10, 10, 50, 50, "Cereal Box")},
		iface.Size{Width: 100, Height: 100}, iface.Size{Width: 100, Height: 100})
	require.NoError(t, err)

	out := Annotate(src, overlays)
	assert.Equal(t, image.Rect(0, 0, 100, 100), out.Bounds())

	r, g, _ := rgb8(out.At(60, 55))
	assert.Greater(t, r, uint8(200), "border stroke")
	assert.Less(t, g, uint8(50))

	r, g, _ = rgb8(out.At(15, 35))
	assert.InDelta(t, 178, int(r), 25, "translucent label plate")
	assert.Less(t, g, uint8(30))

	r, g, _ = rgb8(out.At(90, 90))
	assert.Equal(t, uint8(0), r, "untouched area")
	assert.Equal(t, uint8(0), g)

	r, _, _ = rgb8(src.At(60, 55))
	assert.Equal(t, uint8(0), r, "source is not modified")
}

func TestAnnotateFrame_ResizesToViewport(t *testing.T) {
	src := imaging.New(200, 100, color.Black)
	out := AnnotateFrame(src, iface.Size{Width: 100, Height: 100}, nil)
	assert.Equal(t, image.Rect(0, 0, 100, 100), out.Bounds())

	out = AnnotateFrame(src, iface.Size{}, nil)
	assert.Equal(t, image.Rect(0, 0, 200, 100), out.Bounds())
}

func TestPlateAlpha(t *testing.T) {
	assert.Equal(t, uint8(179), plateAlpha)

	src := imaging.New(40, 40, color.Black)
	out := Annotate(src, []iface.OverlayPrimitive{{
		DisplayRect:   iface.Rect{X: 0, Y: 0, Width: 40, Height: 40},
		LabelTextSize: iface.Size{Width: 4, Height: 4},
		Color:         "#ff0000",
	}})
	r, g, b := rgb8(out.At(20, 15))
	assert.InDelta(t, 179, int(r), 2)
	assert.Equal(t, uint8(0), g)
	assert.Equal(t, uint8(0), b)
}
