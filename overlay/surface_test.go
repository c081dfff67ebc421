package overlay

import (
	iface "ViewfinderOverlay/interface"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func prims(labels ...string) []iface.OverlayPrimitive {
	out := make([]iface.OverlayPrimitive, 0, len(labels))
	for _, l := range labels {
		out = append(out, iface.OverlayPrimitive{LabelText: l})
	}
	return out
}

func TestSurface_ReplaceLeavesNoResidue(t *testing.T) {
	s := NewSurface(viewport)
	assert.Equal(t, viewport, s.Viewport())
	assert.Empty(t, s.Current().Overlays)

	s.Replace(prims("a", "b", "c"))
	s.Replace(prims("d"))
	cur := s.Current()
	assert.Equal(t, uint64(2), cur.Version)
	assert.Equal(t, prims("d"), cur.Overlays)

	s.Replace(nil)
	assert.NotNil(t, s.Current().Overlays)
	assert.Empty(t, s.Current().Overlays)
}

func TestSurface_ReplaceCopiesInput(t *testing.T) {
	s := NewSurface(viewport)
	in := prims("a")
	s.Replace(in)
	in[0].LabelText = "mutated"
	assert.Equal(t, "a", s.Current().Overlays[0].LabelText)
}

func TestSurface_SubscriberSeesLatestOnly(t *testing.T) {
	s := NewSurface(viewport)
	ch := s.Subscribe("ws-1")
	assert.Equal(t, 1, s.Subscribers())

	s.Replace(prims("old"))
	s.Replace(prims("new"))
	snap := <-ch
	assert.Equal(t, uint64(2), snap.Version)
	assert.Equal(t, prims("new"), snap.Overlays)
	select {
	case <-ch:
		t.Fatal("stale set still queued")
	default:
	}

	s.Unsubscribe("ws-1")
	_, ok := <-ch
	assert.False(t, ok)
	assert.Equal(t, 0, s.Subscribers())
	s.Unsubscribe("ws-1")
}

func TestSurface_ResubscribeClosesOld(t *testing.T) {
	s := NewSurface(viewport)
	first := s.Subscribe("a")
	second := s.Subscribe("a")
	_, ok := <-first
	assert.False(t, ok)
	s.Replace(prims("x"))
	snap, ok := <-second
	require.True(t, ok)
	assert.Equal(t, "x", snap.Overlays[0].LabelText)
}

func TestSurface_SetViewport(t *testing.T) {
	s := NewSurface(viewport)
	s.SetViewport(iface.Size{Width: 10, Height: 20})
	assert.Equal(t, iface.Size{Width: 10, Height: 20}, s.Viewport())
}
