package cvdnn

import (
	iface "ViewfinderOverlay/interface"
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var cfg = iface.EngineConfig{
	EnableClassification:  true,
	EnableMultipleObjects: true,
	ConfidenceThreshold:   0.5,
	MaxLabelsPerObject:    3,
}

var names = []string{"background", "Cereal Box", "Soup Can", "Entity"}

func TestGroup_MergesSameBox(t *testing.T) {
	rows := []Row{
		{ClassID: 3, Confidence: 0.6, X1: 0.1, Y1: 0.1, X2: 0.5, Y2: 0.5},
		{ClassID: 1, Confidence: 0.9, X1: 0.1, Y1: 0.1, X2: 0.5, Y2: 0.5},
		{ClassID: 2, Confidence: 0.8, X1: 0.6, Y1: 0.6, X2: 0.9, Y2: 0.9},
		{ClassID: 2, Confidence: 0.3, X1: 0.0, Y1: 0.0, X2: 0.1, Y2: 0.1},
	}
	dets := Group(rows, 640, 480, names, cfg)
	require.Len(t, dets, 2)

	assert.Equal(t, "Cereal Box", dets[0].Labels[0].Text)
	assert.Equal(t, "Entity", dets[0].Labels[1].Text)
	assert.InDelta(t, 64.0, dets[0].Rect.X, 1e-3)
	assert.InDelta(t, 48.0, dets[0].Rect.Y, 1e-3)
	assert.InDelta(t, 256.0, dets[0].Rect.Width, 1e-3)
	assert.InDelta(t, 192.0, dets[0].Rect.Height, 1e-3)

	assert.Equal(t, "Soup Can", dets[1].Labels[0].Text)
	assert.Equal(t, 2, dets[1].Labels[0].Index)
}

func TestGroup_LabelCap(t *testing.T) {
	var rows []Row
	for id := 0; id < 5; id++ {
		rows = append(rows, Row{ClassID: id, Confidence: 0.9 - float32(id)*0.05, X1: 0.2, Y1: 0.2, X2: 0.4, Y2: 0.4})
	}
	dets := Group(rows, 100, 100, names, cfg)
	require.Len(t, dets, 1)
	assert.Len(t, dets[0].Labels, 3)
	assert.Equal(t, "class 4", className(names, 4))
}

func TestGroup_SingleObjectAndNoClassification(t *testing.T) {
	rows := []Row{
		{ClassID: 1, Confidence: 0.9, X1: 0.1, Y1: 0.1, X2: 0.5, Y2: 0.5},
		{ClassID: 2, Confidence: 0.8, X1: 0.1, Y1: 0.1, X2: 0.5, Y2: 0.5},
	}
	c := cfg
	c.EnableClassification = false
	assert.Len(t, Group(rows, 10, 10, names, c), 2)

	c.EnableMultipleObjects = false
	dets := Group(rows, 10, 10, names, c)
	require.Len(t, dets, 1)
	assert.Equal(t, "Cereal Box", dets[0].Labels[0].Text)
}

func TestLoadModel_MissingArtifact(t *testing.T) {
	b := New()
	err := b.LoadModel(iface.EngineConfig{ModelPath: filepath.Join(t.TempDir(), "missing.onnx")})
	assert.Error(t, err)

	_, err = b.Detect(context.Background(), iface.Frame{Width: 1, Height: 1, Channels: 3, Data: []byte{0, 0, 0}})
	assert.ErrorIs(t, err, ErrNotLoaded)
	b.Destroy()
	assert.Equal(t, iface.EngineConfig{}, b.CheckConfig())
}
