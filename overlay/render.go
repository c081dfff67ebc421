package overlay

import (
	iface "ViewfinderOverlay/interface"
	"image"
	"image/color"
	"math"

	"github.com/disintegration/imaging"
	"github.com/fogleman/gg"
	"github.com/lucasb-eyer/go-colorful"
)

const (
	lineWidth              = 3.0
	labelBackgroundAlpha   = 0.7
	labelHorizontalSpacing = 13.0
	labelVerticalSpacing   = 7.0
)

var (
	labelTextColor = color.White
	plateAlpha     = uint8(math.Round(labelBackgroundAlpha * 255))
)

// Annotate draws overlays onto a copy of img: the box outline, a translucent
// plate at the box origin and the label text on top of it.
func Annotate(img image.Image, overlays []iface.OverlayPrimitive) *image.RGBA {
	dc := gg.NewContextForImage(img)
	dc.SetFontFace(newLabelFace())
	for _, o := range overlays {
		drawBorder(dc, o)
		drawBackground(dc, o)
		drawName(dc, o)
	}
	return dc.Image().(*image.RGBA)
}

// AnnotateFrame stretches img to the viewport, the same way Project maps
// boxes, and then draws overlays on it.
func AnnotateFrame(img image.Image, viewport iface.Size, overlays []iface.OverlayPrimitive) *image.RGBA {
	if viewport.Degenerate() {
		return Annotate(img, nil)
	}
	resized := imaging.Resize(img, int(viewport.Width), int(viewport.Height), imaging.Linear)
	return Annotate(resized, overlays)
}

func drawBorder(dc *gg.Context, o iface.OverlayPrimitive) {
	r := o.DisplayRect
	dc.SetColor(overlayColor(o.Color))
	dc.SetLineWidth(lineWidth)
	dc.DrawRectangle(r.X, r.Y, r.Width, r.Height)
	dc.Stroke()
}

func drawBackground(dc *gg.Context, o iface.OverlayPrimitive) {
	r := o.DisplayRect
	cr, cg, cb := overlayColor(o.Color).RGB255()
	dc.SetColor(color.NRGBA{R: cr, G: cg, B: cb, A: plateAlpha})
	dc.DrawRectangle(r.X, r.Y,
		2*labelHorizontalSpacing+o.LabelTextSize.Width,
		2*labelVerticalSpacing+o.LabelTextSize.Height)
	dc.Fill()
}

func drawName(dc *gg.Context, o iface.OverlayPrimitive) {
	r := o.DisplayRect
	dc.SetColor(labelTextColor)
	dc.DrawStringAnchored(o.LabelText, r.X+labelHorizontalSpacing, r.Y+labelVerticalSpacing, 0, 1)
}

func overlayColor(hex string) colorful.Color {
	c, err := colorful.Hex(hex)
	if err != nil {
		return DisplayColor
	}
	return c
}
