package rpc

import (
	iface "ViewfinderOverlay/interface"
	"ViewfinderOverlay/web"
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
)

type DetectRequest struct {
	Image          []byte  `json:"image"`
	ViewportWidth  float64 `json:"viewportWidth"`
	ViewportHeight float64 `json:"viewportHeight"`
}

type OverlayReply struct {
	Version  uint64                   `json:"version"`
	Overlays []iface.OverlayPrimitive `json:"overlays"`
}

type WatchRequest struct {
	SessionID string `json:"sessionID"`
}

type StatusReply struct {
	NodeID   string              `json:"nodeID"`
	Backend  string              `json:"backend"`
	Degraded bool                `json:"degraded"`
	Sessions []web.SessionStatus `json:"sessions"`
}

type OverlayServiceServer interface {
	Detect(context.Context, *DetectRequest) (*OverlayReply, error)
	Watch(*WatchRequest, grpc.ServerStreamingServer[OverlayReply]) error
	Status(context.Context, *emptypb.Empty) (*StatusReply, error)
}

const (
	detectMethod = "/viewfinder.OverlayService/Detect"
	watchMethod  = "/viewfinder.OverlayService/Watch"
	statusMethod = "/viewfinder.OverlayService/Status"
)

var OverlayServiceDesc = grpc.ServiceDesc{
	ServiceName: "viewfinder.OverlayService",
	HandlerType: (*OverlayServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Detect", Handler: detectHandler},
		{MethodName: "Status", Handler: statusHandler},
	},
	Streams: []grpc.StreamDesc{
		{StreamName: "Watch", Handler: watchHandler, ServerStreams: true},
	},
	Metadata: "viewfinder/overlay.proto",
}

func RegisterOverlayServiceServer(s grpc.ServiceRegistrar, srv OverlayServiceServer) {
	s.RegisterService(&OverlayServiceDesc, srv)
}

func detectHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(DetectRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(OverlayServiceServer).Detect(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: detectMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(OverlayServiceServer).Detect(ctx, req.(*DetectRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func statusHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(OverlayServiceServer).Status(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: statusMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(OverlayServiceServer).Status(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

func watchHandler(srv any, stream grpc.ServerStream) error {
	in := new(WatchRequest)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(OverlayServiceServer).Watch(in, &grpc.GenericServerStream[WatchRequest, OverlayReply]{ServerStream: stream})
}

// OverlayClient calls OverlayService with the JSON codec.
type OverlayClient struct {
	cc grpc.ClientConnInterface
}

func NewOverlayClient(cc grpc.ClientConnInterface) *OverlayClient {
	return &OverlayClient{cc: cc}
}

func withCodec(opts []grpc.CallOption) []grpc.CallOption {
	return append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
}

func (c *OverlayClient) Detect(ctx context.Context, in *DetectRequest, opts ...grpc.CallOption) (*OverlayReply, error) {
	out := new(OverlayReply)
	if err := c.cc.Invoke(ctx, detectMethod, in, out, withCodec(opts)...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *OverlayClient) Status(ctx context.Context, opts ...grpc.CallOption) (*StatusReply, error) {
	out := new(StatusReply)
	if err := c.cc.Invoke(ctx, statusMethod, &emptypb.Empty{}, out, withCodec(opts)...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *OverlayClient) Watch(ctx context.Context, in *WatchRequest, opts ...grpc.CallOption) (grpc.ServerStreamingClient[OverlayReply], error) {
	stream, err := c.cc.NewStream(ctx, &OverlayServiceDesc.Streams[0], watchMethod, withCodec(opts)...)
	if err != nil {
		return nil, err
	}
	x := &grpc.GenericClientStream[WatchRequest, OverlayReply]{ClientStream: stream}
	if err := x.ClientStream.SendMsg(in); err != nil {
		return nil, err
	}
	if err := x.ClientStream.CloseSend(); err != nil {
		return nil, err
	}
	return x, nil
}
