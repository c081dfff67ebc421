package imageio

import (
	iface "ViewfinderOverlay/interface"
	"encoding/base64"
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"
)

func encodedTestImage(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: 200, G: 10, B: 10, A: 255})
		}
	}
	data, err := EncodeImage(gocv.PNGFileExt, img)
	require.NoError(t, err)
	return data
}

func TestDecodeFrame(t *testing.T) {
	frame, err := DecodeFrame(encodedTestImage(t, 64, 48))
	require.NoError(t, err)
	assert.Equal(t, 64, frame.Width)
	assert.Equal(t, 48, frame.Height)
	assert.Equal(t, 3, frame.Channels)
	assert.Len(t, frame.Data, 64*48*3)
	// BGR order
	assert.Equal(t, []byte{10, 10, 200}, frame.Data[:3])
}

func TestDecodeFrame_Invalid(t *testing.T) {
	_, err := DecodeFrame(nil)
	assert.ErrorIs(t, err, ErrEmptyImage)
	_, err = DecodeFrame([]byte("not an image"))
	assert.Error(t, err)
}

func TestBase64ToFrame(t *testing.T) {
	b64 := base64.StdEncoding.EncodeToString(encodedTestImage(t, 8, 4))
	for _, in := range []string{b64, "data:image/png;base64," + b64} {
		frame, err := Base64ToFrame(in)
		require.NoError(t, err)
		assert.Equal(t, 8, frame.Width)
		assert.Equal(t, 4, frame.Height)
	}
	_, err := Base64ToFrame("%%%")
	assert.Error(t, err)
}

func TestFrameToImage(t *testing.T) {
	frame, err := DecodeFrame(encodedTestImage(t, 16, 16))
	require.NoError(t, err)
	img, err := FrameToImage(frame)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 16, 16), img.Bounds())
	r, g, _, _ := img.At(3, 3).RGBA()
	assert.Equal(t, uint32(200), r>>8)
	assert.Equal(t, uint32(10), g>>8)

	_, err = FrameToImage(iface.Frame{Width: 2, Height: 2, Channels: 3, Data: []byte{1}})
	assert.Error(t, err)
	_, err = FrameToImage(iface.Frame{Width: 2, Height: 2, Channels: 2, Data: make([]byte, 8)})
	assert.Error(t, err)
}
