// Package rpc exposes the overlay pipeline over gRPC as
// viewfinder.OverlayService: one-shot detection, a stream of a session's
// overlay sets and node status.
package rpc

import (
	"ViewfinderOverlay/engine"
	iface "ViewfinderOverlay/interface"
	"ViewfinderOverlay/logger"
	"ViewfinderOverlay/monitor"
	"ViewfinderOverlay/overlay"
	"ViewfinderOverlay/web"
	"context"
	"errors"
	"fmt"
	"net"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
)

// Overlays is what the service needs from the session host.
type Overlays interface {
	DetectOverlays(ctx context.Context, data []byte, viewport iface.Size) (iface.Frame, []iface.OverlayPrimitive, error)
	Watch(sessionID string) (<-chan overlay.Snapshot, func(), error)
	Status() web.Status
}

type Server struct {
	overlays Overlays
}

func NewServer(overlays Overlays) *Server {
	return &Server{overlays: overlays}
}

func (s *Server) Detect(ctx context.Context, req *DetectRequest) (*OverlayReply, error) {
	viewport := iface.Size{Width: req.ViewportWidth, Height: req.ViewportHeight}
	if viewport.Degenerate() {
		return nil, status.Error(codes.InvalidArgument, web.ErrBadViewport.Error())
	}
	_, overlays, err := s.overlays.DetectOverlays(ctx, req.Image, viewport)
	if err != nil {
		return nil, toStatus(err)
	}
	return &OverlayReply{Overlays: overlays}, nil
}

// Watch streams every overlay set installed on the session until the client
// goes away or the session is released.
func (s *Server) Watch(req *WatchRequest, stream grpc.ServerStreamingServer[OverlayReply]) error {
	updates, cancel, err := s.overlays.Watch(req.SessionID)
	if err != nil {
		return toStatus(err)
	}
	defer cancel()
	logger.Log().Debug("Watch started", zap.String("Session", req.SessionID))
	for {
		select {
		case <-stream.Context().Done():
			return nil
		case snap, ok := <-updates:
			if !ok {
				return nil
			}
			if err := stream.Send(&OverlayReply{Version: snap.Version, Overlays: snap.Overlays}); err != nil {
				return err
			}
		}
	}
}

func (s *Server) Status(ctx context.Context, _ *emptypb.Empty) (*StatusReply, error) {
	st := s.overlays.Status()
	return &StatusReply{
		NodeID:   st.NodeID,
		Backend:  st.Backend,
		Degraded: st.Degraded,
		Sessions: st.Sessions,
	}, nil
}

func toStatus(err error) error {
	switch {
	case errors.Is(err, web.ErrSessionNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, web.ErrDegraded):
		return status.Error(codes.Unavailable, err.Error())
	case errors.Is(err, engine.ErrDetection), errors.Is(err, engine.ErrDetectorClosed):
		return status.Error(codes.Internal, err.Error())
	}
	// Anything else is an undecodable image or a degenerate size.
	return status.Error(codes.InvalidArgument, err.Error())
}

func countUnary(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	monitor.APIRequests.WithLabelValues("grpc").Inc()
	return handler(ctx, req)
}

func countStream(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
	monitor.APIRequests.WithLabelValues("grpc").Inc()
	return handler(srv, ss)
}

// NewGRPCServer returns a grpc.Server with OverlayService registered.
func NewGRPCServer(overlays Overlays) *grpc.Server {
	s := grpc.NewServer(
		grpc.ChainUnaryInterceptor(countUnary),
		grpc.ChainStreamInterceptor(countStream),
	)
	RegisterOverlayServiceServer(s, NewServer(overlays))
	return s
}

// StartGRPCServer listens on port and serves OverlayService in the
// background.
func StartGRPCServer(port int, overlays Overlays) (*grpc.Server, error) {
	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return nil, fmt.Errorf("listen on port %d: %w", port, err)
	}
	s := NewGRPCServer(overlays)
	go func() {
		logger.Log().Info("gRPC server listening", zap.Int("Port", port))
		if err := s.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			logger.Log().Error("gRPC server stopped", zap.Error(err))
		}
	}()
	return s, nil
}
