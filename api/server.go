package api

import (
	"context"
	"sync"

	"github.com/tcassar-diss/xdpcount/bpf"
	"github.com/tcassar-diss/xdpcount/bpf/probe"
	"go.uber.org/zap"
	"google.golang.org/grpc"
)

// Server implements ControlServer over a probe.Controller. Calls are
// serialised; the Controller is never used concurrently.
type Server struct {
	logger *zap.SugaredLogger
	mu     sync.Mutex
	ctrl   *probe.Controller
}

var _ ControlServer = (*Server)(nil)

func NewServer(logger *zap.SugaredLogger, ctrl *probe.Controller) *Server {
	return &Server{
		logger: logger,
		ctrl:   ctrl,
	}
}

// ServerOptions are the options grpc.NewServer needs to serve the Control service.
func ServerOptions(logger *zap.SugaredLogger) []grpc.ServerOption {
	return []grpc.ServerOption{
		grpc.ForceServerCodec(Codec{}),
		grpc.UnaryInterceptor(logCalls(logger)),
	}
}

func logCalls(logger *zap.SugaredLogger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		resp, err := handler(ctx, req)
		if err != nil {
			logger.Warnw("control call failed", "method", info.FullMethod, "error", err)
		} else {
			logger.Debugw("control call", "method", info.FullMethod)
		}

		return resp, err
	}
}

func (s *Server) Ping(context.Context, *Empty) (*Empty, error) {
	return &Empty{}, nil
}

func (s *Server) GetNbCounters(context.Context, *Empty) (*CounterCount, error) {
	return &CounterCount{NbCounters: bpf.NumCounters}, nil
}

func (s *Server) GetCounter(_ context.Context, in *CounterID) (*CounterValue, error) {
	if _, err := bpf.ReverseLookup(int(in.ID)); err != nil {
		return nil, toStatus(err)
	}

	return s.read(bpf.Counter(in.ID))
}

func (s *Server) GetCounterByName(_ context.Context, in *CounterName) (*CounterValue, error) {
	id, err := bpf.Lookup(in.Name)
	if err != nil {
		return nil, toStatus(err)
	}

	return s.read(id)
}

func (s *Server) read(id bpf.Counter) (*CounterValue, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, err := s.ctrl.Counters()
	if err != nil {
		return nil, toStatus(err)
	}

	v, err := r.Read(id)
	if err != nil {
		return nil, toStatus(err)
	}

	return &CounterValue{Name: id.String(), Value: v}, nil
}

func (s *Server) GetCounterNames(context.Context, *Empty) (*CounterList, error) {
	return &CounterList{Names: bpf.Names()}, nil
}

func (s *Server) Snapshot(context.Context, *Empty) (*Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, err := s.ctrl.Counters()
	if err != nil {
		return nil, toStatus(err)
	}

	snap := r.Snapshot()

	return &Snapshot{
		Sec:      snap.Time.Unix(),
		Nsec:     int64(snap.Time.Nanosecond()),
		Counters: snap.Named(),
	}, nil
}

func (s *Server) Load(_ context.Context, in *LoadRequest) (*Empty, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return &Empty{}, toStatus(s.ctrl.Load(in.Program))
}

func (s *Server) LoadAndAttach(_ context.Context, in *LoadAttachRequest) (*Empty, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return &Empty{}, toStatus(s.ctrl.LoadAndAttach(in.Program, in.Interface, bpf.HookMode(in.Flags)))
}

func (s *Server) Attach(_ context.Context, in *AttachRequest) (*Empty, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return &Empty{}, toStatus(s.ctrl.Attach(in.Interface, bpf.HookMode(in.Flags)))
}

func (s *Server) Detach(context.Context, *Empty) (*Empty, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return &Empty{}, toStatus(s.ctrl.Detach())
}

func (s *Server) Unload(context.Context, *Empty) (*Empty, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return &Empty{}, toStatus(s.ctrl.Unload())
}

func (s *Server) IsLoaded(context.Context, *Empty) (*LoadStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return &LoadStatus{Loaded: s.ctrl.IsLoaded()}, nil
}

func (s *Server) IsAttached(context.Context, *Empty) (*AttachStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return &AttachStatus{Attached: s.ctrl.IsAttached()}, nil
}

func (s *Server) GetInterface(context.Context, *Empty) (*InterfaceInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	iface, err := s.ctrl.Iface()
	if err != nil {
		return nil, toStatus(err)
	}

	mode := s.ctrl.Flags()

	return &InterfaceInfo{Interface: iface, Flags: uint32(mode), Mode: mode.String()}, nil
}
