package netrt

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPingBuildReplyMergeOrderDynamicWins(t *testing.T) {
	pct := NewPingConnectionType()
	pct.WriteBack = true
	pct.StaticInfo = map[string]Value{"version": String("static"), "motd": String("hi"), "load": Float(0.1)}
	pct.DynamicInfo = func() map[string]Value {
		return map[string]Value{"version": String("dynamic"), "load": Float(0.5)}
	}

	original := Map(map[string]Value{"version": String("fromclient"), "nonce": Int(7)})
	reply := pct.buildReply(nil, original)

	v, ok := reply.Field("version")
	require.True(t, ok)
	s, _ := v.StringVal()
	assert.Equal(t, Version, s, "the connection type's own version info must win over original/static/dynamic")

	nonce, ok := reply.Field("nonce")
	require.True(t, ok)
	n, _ := nonce.Int()
	assert.Equal(t, int64(7), n, "fields only the original carries should survive the merge")

	motd, ok := reply.Field("motd")
	require.True(t, ok)
	m, _ := motd.StringVal()
	assert.Equal(t, "hi", m, "StaticInfo fields not overridden by dynamic/version info should survive")

	load, ok := reply.Field("load")
	require.True(t, ok)
	l, _ := load.Float()
	assert.Equal(t, 0.5, l, "DynamicInfo must win over static info")
}

func TestPingBuildReplyWriteBackOffDropsOriginal(t *testing.T) {
	pct := NewPingConnectionType()

	original := Map(map[string]Value{"nonce": Int(7)})
	reply := pct.buildReply(nil, original)

	_, ok := reply.Field("nonce")
	assert.False(t, ok, "WriteBack defaults to off, so the original query must not be echoed back")
}

func TestPingEndToEnd(t *testing.T) {
	cfg := NewDefaultConfig(map[string]interface{}{"net.compress.enabled": false}, nil)

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	srv, err := NewServer(Addr{}, cfg, nil)
	require.NoError(t, err)
	serverPing := NewPingConnectionType()
	serverPing.WriteBack = true
	AddPingSupport(srv.ConnTypes(), serverPing)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = srv.Serve(ctx, l)
		close(done)
	}()
	defer func() { cancel(); <-done }()

	tcpAddr := l.Addr().(*net.TCPAddr)
	addr := Addr{Host: "127.0.0.1", Port: tcpAddr.Port}

	pingCtx, pingCancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer pingCancel()

	beforeSend := float64(time.Now().UnixNano()) / 1e9

	reply, err := Ping(pingCtx, addr, cfg, map[string]Value{"nonce": Int(42)})
	require.NoError(t, err)

	v, ok := reply.Field("version")
	require.True(t, ok)
	s, _ := v.StringVal()
	assert.Equal(t, Version, s)

	nonce, ok := reply.Field("nonce")
	require.True(t, ok)
	n, _ := nonce.Int()
	assert.Equal(t, int64(42), n)

	delayField, ok := reply.Field("delay")
	require.True(t, ok)
	delay, _ := delayField.Float()
	assert.GreaterOrEqual(t, delay, 0.0, "measured round-trip delay must be non-negative")

	recvtimeField, ok := reply.Field("recvtime")
	require.True(t, ok)
	recvtime, _ := recvtimeField.Float()
	assert.GreaterOrEqual(t, recvtime, beforeSend, "recvtime must be at or after when the request was sent")
}
