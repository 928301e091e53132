// Package api exposes the probe controller over gRPC.
//
// Messages are plain Go structs carried by a JSON codec, so the service needs
// no generated code. Server and Client force the codec on both ends.
package api

const (
	// ServiceName is the fully qualified gRPC service name.
	ServiceName = "xdpcount.Control"
	// Socket is where the daemon listens unless configured otherwise.
	Socket = "/run/xdpcount.sock"
)

type Empty struct{}

type CounterCount struct {
	NbCounters uint32 `json:"nb_counters"`
}

type CounterID struct {
	ID uint32 `json:"id"`
}

type CounterName struct {
	Name string `json:"name"`
}

type CounterValue struct {
	Name  string `json:"name"`
	Value uint64 `json:"value"`
}

type CounterList struct {
	Names []string `json:"names"`
}

// Snapshot is every counter value, read after the recorded time.
type Snapshot struct {
	Sec      int64             `json:"sec"`
	Nsec     int64             `json:"nsec"`
	Counters map[string]uint64 `json:"counters"`
}

type LoadRequest struct {
	// Program is an ELF path. Empty selects the built-in classifier.
	Program string `json:"program"`
}

type AttachRequest struct {
	Interface string `json:"interface"`
	Flags     uint32 `json:"flags"`
}

type LoadAttachRequest struct {
	Program   string `json:"program"`
	Interface string `json:"interface"`
	Flags     uint32 `json:"flags"`
}

type LoadStatus struct {
	Loaded bool `json:"loaded"`
}

type AttachStatus struct {
	Attached bool `json:"attached"`
}

type InterfaceInfo struct {
	Interface string `json:"interface"`
	Flags     uint32 `json:"flags"`
	Mode      string `json:"mode"`
}
