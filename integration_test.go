package netrt

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// startTestServer boots a Server on an ephemeral loopback port and
// returns its address plus a stop function.
func startTestServer(t *testing.T, cfg *Config) (Addr, func()) {
	t.Helper()

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	srv, err := NewServer(Addr{}, cfg, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = srv.Serve(ctx, l)
		close(done)
	}()

	tcpAddr := l.Addr().(*net.TCPAddr)
	addr := Addr{Host: "127.0.0.1", Port: tcpAddr.Port}

	return addr, func() {
		cancel()
		<-done
	}
}

func TestClassicHandshakeReachesActiveOnClient(t *testing.T) {
	cfg := NewDefaultConfig(map[string]interface{}{"net.compress.enabled": false}, nil)
	addr, stop := startTestServer(t, cfg)
	defer stop()

	client, err := NewClient(cfg, nil, ConnTypeClassic)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	require.NoError(t, client.Connect(ctx, addr))
	require.NoError(t, client.WaitForConnection(ctx))

	require.Equal(t, StateActive, client.connState(0, false))
}

func TestEchoApplicationPacketRoundTrip(t *testing.T) {
	cfg := NewDefaultConfig(map[string]interface{}{"net.compress.enabled": false}, nil)

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	srv, err := NewServer(Addr{}, cfg, nil)
	require.NoError(t, err)

	echoID := uint32(64)
	received := make(chan Value, 1)
	_, err = srv.Registry().Register("test.echo", echoHandler{out: received}, &echoID)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		_ = srv.Serve(ctx, l)
		close(done)
	}()
	defer func() { cancel(); <-done }()

	tcpAddr := l.Addr().(*net.TCPAddr)
	addr := Addr{Host: "127.0.0.1", Port: tcpAddr.Port}

	client, err := NewClient(cfg, nil, ConnTypeClassic)
	require.NoError(t, err)
	_, err = client.Registry().Register("test.echo", echoHandler{}, &echoID)
	require.NoError(t, err)

	connectCtx, connectCancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer connectCancel()
	require.NoError(t, client.Connect(connectCtx, addr))
	require.NoError(t, client.WaitForConnection(connectCtx))

	require.NoError(t, client.SendMessage(echoID, Map(map[string]Value{"ping": Bool(true)}), 0))

	select {
	case v := <-received:
		ok, _ := v.Field("ping")
		b, _ := ok.Bool()
		require.True(t, b)
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for echo packet")
	}
}

type echoHandler struct {
	BaseHandler
	out chan Value
}

func (h echoHandler) Receive(_ Peer, msg Value, _ uint64, _ bool) {
	if h.out != nil {
		select {
		case h.out <- msg:
		default:
		}
	}
}
