package api

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/tcassar-diss/xdpcount/bpf"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// Client calls the Control service. Errors wrap the bpf sentinels the daemon
// reported, where they can be recovered.
type Client struct {
	conn *grpc.ClientConn
}

// DialOptions are the options a grpc.ClientConn needs to call the Control service.
func DialOptions() []grpc.DialOption {
	return []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.ForceCodec(Codec{})),
	}
}

// Dial connects to the daemon listening on the unix socket at path.
func Dial(path string) (*Client, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve socket path %s: %w", path, err)
	}

	conn, err := grpc.NewClient("unix://"+abs, DialOptions()...)
	if err != nil {
		return nil, fmt.Errorf("failed to create client for %s: %w", abs, err)
	}

	return NewClient(conn), nil
}

// NewClient wraps an existing connection, which must have been made with DialOptions.
func NewClient(conn *grpc.ClientConn) *Client {
	return &Client{conn: conn}
}

func (c *Client) Close() error {
	return c.conn.Close()
}

func (c *Client) invoke(ctx context.Context, method string, in, out any) error {
	return fromStatus(c.conn.Invoke(ctx, fullMethod(method), in, out))
}

func (c *Client) Ping(ctx context.Context) error {
	return c.invoke(ctx, "Ping", &Empty{}, &Empty{})
}

func (c *Client) NbCounters(ctx context.Context) (uint32, error) {
	var out CounterCount
	if err := c.invoke(ctx, "GetNbCounters", &Empty{}, &out); err != nil {
		return 0, err
	}

	return out.NbCounters, nil
}

func (c *Client) Counter(ctx context.Context, id bpf.Counter) (uint64, error) {
	var out CounterValue
	if err := c.invoke(ctx, "GetCounter", &CounterID{ID: uint32(id)}, &out); err != nil {
		return 0, err
	}

	return out.Value, nil
}

func (c *Client) CounterByName(ctx context.Context, name string) (uint64, error) {
	var out CounterValue
	if err := c.invoke(ctx, "GetCounterByName", &CounterName{Name: name}, &out); err != nil {
		return 0, err
	}

	return out.Value, nil
}

func (c *Client) CounterNames(ctx context.Context) ([]string, error) {
	var out CounterList
	if err := c.invoke(ctx, "GetCounterNames", &Empty{}, &out); err != nil {
		return nil, err
	}

	return out.Names, nil
}

func (c *Client) Snapshot(ctx context.Context) (*Snapshot, error) {
	var out Snapshot
	if err := c.invoke(ctx, "Snapshot", &Empty{}, &out); err != nil {
		return nil, err
	}

	return &out, nil
}

// Time is when the snapshot started reading.
func (s *Snapshot) Time() time.Time {
	return time.Unix(s.Sec, s.Nsec)
}

// Decode orders the snapshot's counters by id. Counters the daemon did not
// report read as zero.
func (s *Snapshot) Decode() *bpf.Snapshot {
	out := &bpf.Snapshot{
		Time:   s.Time(),
		Values: make([]uint64, bpf.NumCounters),
	}

	for i, name := range bpf.Names() {
		out.Values[i] = s.Counters[name]
	}

	return out
}

// SnapshotFunc adapts c for a bpf.Recorder.
func (c *Client) SnapshotFunc() bpf.SnapshotFunc {
	return func(ctx context.Context) (*bpf.Snapshot, error) {
		s, err := c.Snapshot(ctx)
		if err != nil {
			return nil, err
		}

		return s.Decode(), nil
	}
}

func (c *Client) Load(ctx context.Context, program string) error {
	return c.invoke(ctx, "Load", &LoadRequest{Program: program}, &Empty{})
}

func (c *Client) LoadAndAttach(ctx context.Context, program, iface string, mode bpf.HookMode) error {
	in := &LoadAttachRequest{Program: program, Interface: iface, Flags: uint32(mode)}
	return c.invoke(ctx, "LoadAndAttach", in, &Empty{})
}

func (c *Client) Attach(ctx context.Context, iface string, mode bpf.HookMode) error {
	return c.invoke(ctx, "Attach", &AttachRequest{Interface: iface, Flags: uint32(mode)}, &Empty{})
}

func (c *Client) Detach(ctx context.Context) error {
	return c.invoke(ctx, "Detach", &Empty{}, &Empty{})
}

func (c *Client) Unload(ctx context.Context) error {
	return c.invoke(ctx, "Unload", &Empty{}, &Empty{})
}

func (c *Client) IsLoaded(ctx context.Context) (bool, error) {
	var out LoadStatus
	if err := c.invoke(ctx, "IsLoaded", &Empty{}, &out); err != nil {
		return false, err
	}

	return out.Loaded, nil
}

func (c *Client) IsAttached(ctx context.Context) (bool, error) {
	var out AttachStatus
	if err := c.invoke(ctx, "IsAttached", &Empty{}, &out); err != nil {
		return false, err
	}

	return out.Attached, nil
}

func (c *Client) Interface(ctx context.Context) (*InterfaceInfo, error) {
	var out InterfaceInfo
	if err := c.invoke(ctx, "GetInterface", &Empty{}, &out); err != nil {
		return nil, err
	}

	return &out, nil
}
