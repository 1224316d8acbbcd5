package tollglow

import (
	"context"
	"io"
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"libdb.so/tollglow/ledserial"
)

func startLinkReader(t *testing.T) (net.Conn, <-chan bool, <-chan error) {
	host, device := net.Pipe()
	t.Cleanup(func() {
		host.Close()
		device.Close()
	})

	link := newControllerLink(host, slog.New(slog.NewTextHandler(io.Discard, nil)))
	levels := make(chan bool, 4)
	done := make(chan error, 1)
	go func() { done <- link.readPackets(context.Background(), levels) }()

	return device, levels, done
}

func TestLinkForwardsButtonEdges(t *testing.T) {
	device, levels, _ := startLinkReader(t)

	require.NoError(t, ledserial.WriteOutgoingPacket(device, ledserial.ButtonPacket{Pressed: true}))
	require.NoError(t, ledserial.WriteOutgoingPacket(device, ledserial.AckPacket{IncomingPacketType: ledserial.TypeSetPacket}))
	require.NoError(t, ledserial.WriteOutgoingPacket(device, ledserial.ButtonPacket{Pressed: false}))

	for _, want := range []bool{false, true} {
		select {
		case up := <-levels:
			assert.Equal(t, want, up)
		case <-time.After(time.Second):
			t.Fatal("no level forwarded")
		}
	}
}

func TestLinkStopsWhenControllerDisconnects(t *testing.T) {
	device, levels, done := startLinkReader(t)
	require.NoError(t, device.Close())

	select {
	case err := <-done:
		assert.True(t, errors.Is(err, io.EOF), "got %v", err)
		assert.ErrorContains(t, err, "controller disconnected")
	case <-time.After(time.Second):
		t.Fatal("reader kept running after the controller went away")
	}

	_, open := <-levels
	assert.False(t, open, "levels must be closed")
}
