package imageio

import (
	iface "ViewfinderOverlay/interface"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"strings"

	"gocv.io/x/gocv"
)

var ErrEmptyImage = errors.New("decoded image is empty or unsupported format")

// DecodeFrame decodes an encoded image (JPEG, PNG, ...) into a BGR frame.
func DecodeFrame(data []byte) (iface.Frame, error) {
	if len(data) == 0 {
		return iface.Frame{}, ErrEmptyImage
	}
	mat, err := gocv.IMDecode(data, gocv.IMReadColor)
	if err != nil {
		return iface.Frame{}, err
	}
	defer mat.Close()
	if mat.Empty() {
		return iface.Frame{}, ErrEmptyImage
	}
	return MatToFrame(mat), nil
}

// Base64ToFrame accepts plain base64 or a data URL such as
// "data:image/jpeg;base64,...".
func Base64ToFrame(b64 string) (iface.Frame, error) {
	if i := strings.Index(b64, ","); i != -1 && strings.HasPrefix(b64, "data:") {
		b64 = b64[i+1:]
	}
	data, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return iface.Frame{}, err
	}
	return DecodeFrame(data)
}

func MatToFrame(mat gocv.Mat) iface.Frame {
	return iface.Frame{
		Data:     mat.ToBytes(),
		Width:    mat.Cols(),
		Height:   mat.Rows(),
		Channels: mat.Channels(),
	}
}

// FrameToMat wraps the frame pixels in a Mat. The caller closes it.
func FrameToMat(f iface.Frame) (gocv.Mat, error) {
	var mt gocv.MatType
	switch f.Channels {
	case 1:
		mt = gocv.MatTypeCV8UC1
	case 3:
		mt = gocv.MatTypeCV8UC3
	case 4:
		mt = gocv.MatTypeCV8UC4
	default:
		return gocv.NewMat(), fmt.Errorf("unsupported channel count %d", f.Channels)
	}
	if len(f.Data) != f.Width*f.Height*f.Channels {
		return gocv.NewMat(), fmt.Errorf("frame data is %d bytes, want %d", len(f.Data), f.Width*f.Height*f.Channels)
	}
	return gocv.NewMatFromBytes(f.Height, f.Width, mt, f.Data)
}

func FrameToImage(f iface.Frame) (image.Image, error) {
	mat, err := FrameToMat(f)
	if err != nil {
		return nil, err
	}
	defer mat.Close()
	return mat.ToImage()
}

// EncodeImage encodes img with the codec for ext, e.g. gocv.PNGFileExt.
func EncodeImage(ext gocv.FileExt, img image.Image) ([]byte, error) {
	mat, err := gocv.ImageToMatRGB(img)
	if err != nil {
		return nil, err
	}
	defer mat.Close()
	buf, err := gocv.IMEncode(ext, mat)
	if err != nil {
		return nil, err
	}
	defer buf.Close()
	return append([]byte(nil), buf.GetBytes()...), nil
}
