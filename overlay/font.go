package overlay

import (
	iface "ViewfinderOverlay/interface"

	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gomedium"
)

const (
	LabelFontSize = 14.0
	labelFontDPI  = 72
)

// Parsed in the var initializer: package-level NewProjector calls run before
// any init function.
var labelFont = mustParseFont(gomedium.TTF)

func mustParseFont(ttf []byte) *truetype.Font {
	f, err := truetype.Parse(ttf)
	if err != nil {
		panic(err)
	}
	return f
}

// LabelFont describes the face every label is measured and drawn with.
var LabelFont = iface.FontDescriptor{Family: "Go Medium", Weight: "medium", Size: LabelFontSize}

// newLabelFace returns a fresh face; faces cache glyphs and are not safe for
// concurrent use.
func newLabelFace() font.Face {
	return truetype.NewFace(labelFont, &truetype.Options{
		Size:    LabelFontSize,
		DPI:     labelFontDPI,
		Hinting: font.HintingNone,
	})
}

func measure(face font.Face, text string) iface.Size {
	m := face.Metrics()
	return iface.Size{
		Width:  float64(font.MeasureString(face, text)) / 64,
		Height: float64(m.Ascent+m.Descent) / 64,
	}
}
