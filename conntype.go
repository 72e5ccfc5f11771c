package netrt

import "sync"

// ConnectionType parameterizes the handshake and per-packet dispatch
// hooks for a category of connections. Grounded on
// peng3dnet/conntypes.py's ConnectionType/ClassicConnectionType.
type ConnectionType interface {
	// Init is invoked once the peer knows which type to use: on the
	// server upon receipt of SetType, on the client upon receipt of
	// Hello.
	Init(peer Peer, cid uint64, hasCID bool)

	// Receive is called for every application packet (id >= 64) after
	// decode. Returning true marks the packet fully handled and
	// suppresses further dispatch to a registered Handler.
	Receive(peer Peer, msg Value, id uint32, flags Flag, cid uint64, hasCID bool) bool

	// Send is invoked during send. Returning true suppresses the
	// per-packet Handler.Send callback for that message.
	Send(peer Peer, payload Value, id uint32, cid uint64, hasCID bool) bool
}

// ClassicConnectionType drives the standard Hello/SetType/Handshake/
// HandshakeAccept flow. It never intercepts application packets.
type ClassicConnectionType struct{}

func (ClassicConnectionType) Init(peer Peer, cid uint64, hasCID bool) {
	peer.setConnState(cid, hasCID, StateHandshakeWait1)
	if !hasCID {
		// Client side: the server speaks Handshake first; the client
		// just waits in HANDSHAKE_WAIT1 for it.
		return
	}
	peer.SendMessage(PacketIDHandshake, handshakePayload(peer), cid)
}

func (ClassicConnectionType) Receive(Peer, Value, uint32, Flag, uint64, bool) bool {
	return false
}

func (ClassicConnectionType) Send(Peer, Value, uint32, uint64, bool) bool {
	return false
}

func handshakePayload(peer Peer) Value {
	names := peer.Registry().NameIDs()
	reg := make(map[string]Value, len(names))
	for name, id := range names {
		reg[name] = Int(int64(id))
	}
	return Map(map[string]Value{
		"version":      Int(int64(ProtocolVersion)),
		"protoversion": Int(int64(ProtocolVersion)),
		"registry":     Map(reg),
	})
}

// ConnTypeRegistry is a name -> ConnectionType map. "classic" is
// always present; "ping" is added by AddPingSupport. "_notset" is a
// placeholder meaning "not yet declared" and is never registered, so a
// lookup under it finds nothing.
type ConnTypeRegistry struct {
	mu    sync.RWMutex
	types map[ConnType]ConnectionType
}

func newConnTypeRegistry() *ConnTypeRegistry {
	r := &ConnTypeRegistry{types: make(map[ConnType]ConnectionType)}
	r.types[ConnTypeClassic] = ClassicConnectionType{}
	return r
}

func (r *ConnTypeRegistry) Add(name ConnType, t ConnectionType) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.types[name] = t
}

func (r *ConnTypeRegistry) Get(name ConnType) (ConnectionType, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.types[name]
	return t, ok
}
