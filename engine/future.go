package engine

import (
	iface "ViewfinderOverlay/interface"
	"ViewfinderOverlay/logger"
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Future is one outstanding detection. It is completed exactly once.
type Future struct {
	Frame   iface.Frame
	done    chan struct{}
	objects []iface.DetectedObject
	err     error
	elapsed time.Duration
}

func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Result blocks until the detection has finished.
func (f *Future) Result() ([]iface.DetectedObject, error) {
	<-f.done
	return f.objects, f.err
}

// Wait is Result bounded by ctx. Giving up does not stop the detection.
func (f *Future) Wait(ctx context.Context) ([]iface.DetectedObject, error) {
	select {
	case <-f.done:
		return f.objects, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Elapsed is how long the backend took; zero until Done is closed.
func (f *Future) Elapsed() time.Duration {
	select {
	case <-f.done:
		return f.elapsed
	default:
		return 0
	}
}

// Submit starts Detect for frame without waiting for it. There is no limit on
// the number of outstanding futures and no timeout on any of them.
func (d *Detector) Submit(ctx context.Context, frame iface.Frame) *Future {
	f := &Future{Frame: frame, done: make(chan struct{})}
	go func() {
		start := time.Now()
		defer func() {
			if r := recover(); r != nil {
				logger.Log().Error("Detector panic recovered", zap.Uint64("Seq", frame.Seq), zap.Any("panic", r))
				f.objects = nil
				f.err = fmt.Errorf("%w: panic: %v", ErrDetection, r)
			}
			f.elapsed = time.Since(start)
			close(f.done)
		}()
		f.objects, f.err = d.Detect(ctx, frame)
	}()
	return f
}
