package api

import (
	"context"

	"google.golang.org/grpc"
)

// ControlServer is the server side of the Control service.
type ControlServer interface {
	Ping(context.Context, *Empty) (*Empty, error)
	GetNbCounters(context.Context, *Empty) (*CounterCount, error)
	GetCounter(context.Context, *CounterID) (*CounterValue, error)
	GetCounterByName(context.Context, *CounterName) (*CounterValue, error)
	GetCounterNames(context.Context, *Empty) (*CounterList, error)
	Snapshot(context.Context, *Empty) (*Snapshot, error)
	Load(context.Context, *LoadRequest) (*Empty, error)
	LoadAndAttach(context.Context, *LoadAttachRequest) (*Empty, error)
	Attach(context.Context, *AttachRequest) (*Empty, error)
	Detach(context.Context, *Empty) (*Empty, error)
	Unload(context.Context, *Empty) (*Empty, error)
	IsLoaded(context.Context, *Empty) (*LoadStatus, error)
	IsAttached(context.Context, *Empty) (*AttachStatus, error)
	GetInterface(context.Context, *Empty) (*InterfaceInfo, error)
}

func method[Req, Resp any](name string, call func(ControlServer, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}

			if interceptor == nil {
				return call(srv.(ControlServer), ctx, in)
			}

			info := &grpc.UnaryServerInfo{
				Server:     srv,
				FullMethod: fullMethod(name),
			}

			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(ControlServer), ctx, req.(*Req))
			}

			return interceptor(ctx, in, info, handler)
		},
	}
}

func fullMethod(name string) string {
	return "/" + ServiceName + "/" + name
}

// ServiceDesc describes the Control service for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ControlServer)(nil),
	Methods: []grpc.MethodDesc{
		method("Ping", ControlServer.Ping),
		method("GetNbCounters", ControlServer.GetNbCounters),
		method("GetCounter", ControlServer.GetCounter),
		method("GetCounterByName", ControlServer.GetCounterByName),
		method("GetCounterNames", ControlServer.GetCounterNames),
		method("Snapshot", ControlServer.Snapshot),
		method("Load", ControlServer.Load),
		method("LoadAndAttach", ControlServer.LoadAndAttach),
		method("Attach", ControlServer.Attach),
		method("Detach", ControlServer.Detach),
		method("Unload", ControlServer.Unload),
		method("IsLoaded", ControlServer.IsLoaded),
		method("IsAttached", ControlServer.IsAttached),
		method("GetInterface", ControlServer.GetInterface),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "xdpcount/control",
}

func RegisterControlServer(s grpc.ServiceRegistrar, srv ControlServer) {
	s.RegisterService(&ServiceDesc, srv)
}
