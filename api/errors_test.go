package api

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tcassar-diss/xdpcount/bpf"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestStatus_CarriesEverySentinel(t *testing.T) {
	err := fmt.Errorf("%w: eth0: %w", bpf.ErrAttach, bpf.ErrInvalidHookMode)

	got := fromStatus(toStatus(err))

	require.ErrorIs(t, got, bpf.ErrAttach)
	require.ErrorIs(t, got, bpf.ErrInvalidHookMode)
	assert.NotErrorIs(t, got, bpf.ErrUnknownCounter)
	assert.Equal(t, err.Error(), got.Error())
	assert.Equal(t, codes.InvalidArgument, status.Code(got))
}

func TestStatus_NoSentinel(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{name: "invalid argument", err: status.Error(codes.InvalidArgument, "unknown counter: decoded from nowhere")},
		{name: "not found", err: status.Error(codes.NotFound, "interface not found")},
		{name: "unavailable", err: status.Error(codes.Unavailable, "connection refused")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := fromStatus(tt.err)

			var re *RemoteError
			require.True(t, errors.As(got, &re))
			assert.Empty(t, re.Unwrap())
			assert.Equal(t, status.Code(tt.err), re.Code)

			for _, s := range sentinels {
				assert.NotErrorIs(t, got, s.err, s.reason)
			}
		})
	}
}

func TestStatus_Nil(t *testing.T) {
	assert.NoError(t, toStatus(nil))
	assert.NoError(t, fromStatus(nil))
}
