package netrt

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestServerShutdownClosesConnectedClients(t *testing.T) {
	cfg := NewDefaultConfig(map[string]interface{}{"net.compress.enabled": false}, nil)

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	srv, err := NewServer(Addr{}, cfg, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	serveDone := make(chan struct{})
	go func() {
		_ = srv.Serve(ctx, l)
		close(serveDone)
	}()
	defer cancel()

	tcpAddr := l.Addr().(*net.TCPAddr)
	addr := Addr{Host: "127.0.0.1", Port: tcpAddr.Port}

	client, err := NewClient(cfg, nil, ConnTypeClassic)
	require.NoError(t, err)

	connectCtx, connectCancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer connectCancel()
	require.NoError(t, client.Connect(connectCtx, addr))
	require.NoError(t, client.WaitForConnection(connectCtx))

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer shutdownCancel()
	require.NoError(t, srv.Shutdown(shutdownCtx))

	closeCtx, closeCancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer closeCancel()
	require.NoError(t, client.WaitForClose(closeCtx))
}
