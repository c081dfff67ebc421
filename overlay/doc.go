// Package overlay turns accepted detections into screen-space overlay
// primitives and holds the set currently on screen.
//
// # Coordinate System
//
// Frame rectangles are in source-frame pixels, display rectangles in viewport
// pixels; both have their origin at the top-left corner. Projection scales the
// two axes independently, so a viewport with a different aspect ratio than the
// frame is filled completely and the boxes are stretched with it.
//
// # Clipping
//
// A projected box that crosses the viewport edge is pulled back inside with an
// EdgeMargin gap. The origin is clamped first and the width and height are
// shrunk from the clamped origin.
//
// # Thread Safety
//
// Projector and Surface are safe for concurrent use. A Surface installs each
// overlay set in one step; readers and subscribers never see a cleared set
// between two frames.
package overlay
