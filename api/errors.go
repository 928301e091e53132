package api

import (
	"errors"

	"github.com/tcassar-diss/xdpcount/bpf"
	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// errorDomain scopes the ErrorInfo reasons attached to Control statuses.
const errorDomain = "xdpcount.Control"

// sentinels travel as ErrorInfo details; reasons are part of the wire format.
var sentinels = []struct {
	reason string
	err    error
}{
	{"LOAD", bpf.ErrLoad},
	{"INTERFACE_NOT_FOUND", bpf.ErrInterfaceNotFound},
	{"ATTACH", bpf.ErrAttach},
	{"DETACH", bpf.ErrDetach},
	{"PRECONDITION", bpf.ErrPrecondition},
	{"NOT_ATTACHED", bpf.ErrNotAttached},
	{"DIRECTORY", bpf.ErrDirectory},
	{"UNPIN", bpf.ErrUnpin},
	{"PIN", bpf.ErrPin},
	{"LOOKUP", bpf.ErrLookup},
	{"UNKNOWN_COUNTER", bpf.ErrUnknownCounter},
	{"BUFFER_TOO_SMALL", bpf.ErrBufferTooSmall},
	{"INVALID_HOOK_MODE", bpf.ErrInvalidHookMode},
	{"INVALID_INTERFACE", bpf.ErrInvalidInterface},
}

func code(err error) codes.Code {
	switch {
	case errors.Is(err, bpf.ErrPrecondition), errors.Is(err, bpf.ErrNotAttached):
		return codes.FailedPrecondition
	case errors.Is(err, bpf.ErrInterfaceNotFound):
		return codes.NotFound
	case errors.Is(err, bpf.ErrLoad),
		errors.Is(err, bpf.ErrUnknownCounter),
		errors.Is(err, bpf.ErrInvalidHookMode),
		errors.Is(err, bpf.ErrInvalidInterface):
		return codes.InvalidArgument
	default:
		return codes.Internal
	}
}

// toStatus converts err to a status carrying one ErrorInfo per sentinel err wraps.
func toStatus(err error) error {
	if err == nil {
		return nil
	}

	st := status.New(code(err), err.Error())

	for _, s := range sentinels {
		if !errors.Is(err, s.err) {
			continue
		}

		withInfo, derr := st.WithDetails(&errdetails.ErrorInfo{Reason: s.reason, Domain: errorDomain})
		if derr != nil {
			break
		}

		st = withInfo
	}

	return st.Err()
}

// RemoteError is an error returned by the daemon.
type RemoteError struct {
	Code      codes.Code
	Message   string
	st        *status.Status
	sentinels []error
}

func (e *RemoteError) Error() string {
	return e.Message
}

// Unwrap returns the sentinels the daemon reported.
func (e *RemoteError) Unwrap() []error {
	return e.sentinels
}

func (e *RemoteError) GRPCStatus() *status.Status {
	return e.st
}

// fromStatus maps a status back onto the sentinels it was built from, so
// callers can use errors.Is on either side of the socket.
func fromStatus(err error) error {
	if err == nil {
		return nil
	}

	st, ok := status.FromError(err)
	if !ok {
		return err
	}

	re := &RemoteError{Code: st.Code(), Message: st.Message(), st: st}

	for _, d := range st.Details() {
		info, ok := d.(*errdetails.ErrorInfo)
		if !ok || info.GetDomain() != errorDomain {
			continue
		}

		for _, s := range sentinels {
			if s.reason == info.GetReason() {
				re.sentinels = append(re.sentinels, s.err)
			}
		}
	}

	return re
}
