package netrt

import (
	"context"
	"sync"
	"time"
)

// PingConnectionType implements the lightweight availability/latency
// sub-protocol: a PingQuery (id 64) answered by a PingReply (id 65)
// carrying protocol/version info merged from four sources, in order so
// later sources win: the query's own payload (only if WriteBack is
// enabled), this server's StaticInfo, then any dynamically computed
// info a caller supplies via DynamicInfo, then the connection type's
// own version info last. WriteBack is off by default: echoing the
// client's own payload back to it is a deliberate opt-in, not the
// original peng3dnet default.
//
// Unlike ClassicConnectionType, Init jumps straight to ACTIVE without
// sending or waiting for Handshake/HandshakeAccept at all — spec.md
// §4.9 requires the registry-sync step to be skipped entirely so a
// ping client never needs to know the server's full packet table.
//
// Grounded on peng3dnet/ext/ping.py's PingableServerMixin /
// PingableClientMixin (init() there sets state/remote_state to
// STATE_ACTIVE directly, bypassing the handshake packets); Go
// composition (adding PingConnectionType to a Server's/Client's
// ConnTypeRegistry) replaces the mixin pattern.
type PingConnectionType struct {
	WriteBack bool
	// StaticInfo mirrors peng3dnet's overridable server.pingdata dict:
	// fixed fields (MOTD, server name, ...) merged into every reply.
	StaticInfo  map[string]Value
	DynamicInfo func() map[string]Value
	// OnReply, if set, is invoked synchronously for every observed
	// PingReply in addition to the WriteBack bookkeeping below — used
	// by Ping to collect the single reply it's waiting for.
	OnReply func(cid uint64, reply Value)

	mu        sync.RWMutex
	lastReply map[uint64]Value
}

func NewPingConnectionType() *PingConnectionType {
	return &PingConnectionType{lastReply: make(map[uint64]Value)}
}

func (p *PingConnectionType) Init(peer Peer, cid uint64, hasCID bool) {
	peer.setConnMode(cid, hasCID, ModePing)
	peer.setConnState(cid, hasCID, StateActive)
}

// Receive always returns true: spec.md §4.3 says a connection type's
// Receive fully owns application-packet dispatch for a connection
// using it, so no registered Handler is ever consulted for a ping
// connection — matching peng3dnet/ext/ping.py, which never registers
// packets 64/65 with either peer's PacketRegistry at all.
func (p *PingConnectionType) Receive(peer Peer, msg Value, id uint32, flags Flag, cid uint64, hasCID bool) bool {
	switch id {
	case PacketIDPingQuery:
		if !hasCID {
			// A client should never receive its own query back.
			peer.CloseConnection(cid, ReasonPingInvalidSide)
			return true
		}
		reply := p.buildReply(peer, msg)
		peer.SendMessage(PacketIDPingReply, reply, cid)
	case PacketIDPingReply:
		if hasCID {
			// A server should never receive a reply.
			peer.CloseConnection(cid, ReasonPingInvalidSide)
			return true
		}
		if p.WriteBack {
			p.mu.Lock()
			p.lastReply[cid] = msg
			p.mu.Unlock()
		}
		if p.OnReply != nil {
			p.OnReply(cid, msg)
		}
		peer.CloseConnection(cid, ReasonPingComplete)
	default:
		peer.CloseConnection(cid, ReasonInvalidPingPacket)
	}
	return true
}

// Send always returns true, suppressing any (nonexistent) registered
// Handler.Send for 64/65, and marks the connection's mode as Ping when
// a query goes out — matching peng3dnet/ext/ping.py's send().
func (p *PingConnectionType) Send(peer Peer, payload Value, id uint32, cid uint64, hasCID bool) bool {
	if id == PacketIDPingQuery {
		peer.setConnMode(cid, hasCID, ModePing)
	}
	return true
}

// buildReply merges, in order so each later source wins: the original
// query payload (only when WriteBack is enabled — off by default so a
// server never echoes client-supplied data without an explicit opt-in),
// StaticInfo, DynamicInfo, then this connection type's own version info
// last — the same precedence peng3dnet's ping extension documents.
func (p *PingConnectionType) buildReply(peer Peer, original Value) Value {
	merged := map[string]Value{}

	if p.WriteBack {
		if m, ok := original.MapVal(); ok {
			for k, v := range m {
				merged[k] = v
			}
		}
	}

	for k, v := range p.StaticInfo {
		merged[k] = v
	}

	if p.DynamicInfo != nil {
		for k, v := range p.DynamicInfo() {
			merged[k] = v
		}
	}

	merged["version"] = String(Version)
	merged["release"] = String(Release)
	merged["protoversion"] = Int(int64(ProtocolVersion))

	return Map(merged)
}

// LastReply returns the most recently observed PingReply payload for
// cid, populated only when WriteBack is enabled.
func (p *PingConnectionType) LastReply(cid uint64) (Value, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	v, ok := p.lastReply[cid]
	return v, ok
}

// AddPingSupport registers "ping" in reg so SetType can select it.
func AddPingSupport(reg *ConnTypeRegistry, pct *PingConnectionType) {
	reg.Add(ConnTypePing, pct)
}

// Ping dials addr, runs Hello/SetType requesting the "ping" connection
// type (skipping Handshake/HandshakeAccept entirely per spec.md §4.9),
// sends a single PingQuery carrying {time: <now>}, and on reply records
// recvtime and the measured round-trip delay into the returned value
// (merged on top of whatever the server sent back). It fails with a
// *PingTimeoutError if ctx is cancelled first. Mirrors
// peng3dnet/ext/ping.py's module-level pingServer() convenience
// function, including its recvtime/delay bookkeeping (there done in
// pingServer's on_pong closure, lines 266-283).
func Ping(ctx context.Context, addr Addr, cfg *Config, query map[string]Value) (Value, error) {
	client, err := NewClient(cfg, nil, ConnTypePing)
	if err != nil {
		return Value{}, err
	}

	replyCh := make(chan Value, 1)
	pct := NewPingConnectionType()
	pct.OnReply = func(_ uint64, reply Value) {
		select {
		case replyCh <- reply:
		default:
		}
	}
	AddPingSupport(client.ConnTypes(), pct)

	if err := client.Connect(ctx, addr); err != nil {
		return Value{}, err
	}
	if err := client.WaitForConnection(ctx); err != nil {
		return Value{}, err
	}

	fields := map[string]Value{}
	for k, v := range query {
		fields[k] = v
	}
	sentAt := time.Now()
	fields["time"] = Float(unixSeconds(sentAt))

	if err := client.SendMessage(PacketIDPingQuery, Map(fields), 0); err != nil {
		return Value{}, err
	}

	select {
	case reply := <-replyCh:
		recvAt := time.Now()
		merged := map[string]Value{}
		if m, ok := reply.MapVal(); ok {
			for k, v := range m {
				merged[k] = v
			}
		}
		merged["recvtime"] = Float(unixSeconds(recvAt))
		merged["delay"] = Float(recvAt.Sub(sentAt).Seconds())

		_ = client.Disconnect(ReasonPingComplete, 2*time.Second)
		return Map(merged), nil
	case <-ctx.Done():
		_ = client.Disconnect(ReasonPingComplete, 2*time.Second)
		return Value{}, &PingTimeoutError{Reason: "no reply before deadline"}
	}
}

// unixSeconds reports t as fractional seconds since the Unix epoch,
// matching peng3dnet's use of Python's time.time() for the ping
// extension's time/recvtime fields.
func unixSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}

