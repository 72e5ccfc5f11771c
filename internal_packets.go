package netrt

// Internal packets drive the handshake state machine exactly as
// peng3dnet/packet/internal.py does. Each is wrapped in a SmartHandler
// carrying the gate spec.md §4.5 specifies for it; CloseConnection is
// deliberately ungated (it "must be accepted in any state").

// helloHandler — id 1, server->client.
type helloHandler struct{}

func (helloHandler) Receive(peer Peer, msg Value, cid uint64, hasCID bool) {
	proto, _ := fieldInt(msg, "protoversion")
	if proto != int64(ProtocolVersion) {
		peer.CloseConnection(cid, ReasonProtoVersionMismatch)
		return
	}

	target := ConnTypeClassic
	if s, ok := peer.(interface{ TargetConnType() ConnType }); ok {
		target = s.TargetConnType()
	}

	peer.SendMessage(PacketIDSetType, Map(map[string]Value{"conntype": String(string(target))}), cid)
	peer.setConnState(cid, hasCID, StateWaitType)
	peer.setConnConnType(cid, hasCID, target)

	if ct, ok := peer.ConnTypes().Get(target); ok {
		ct.Init(peer, cid, hasCID)
	}
}

func (helloHandler) Send(peer Peer, msg Value, cid uint64, hasCID bool) {
	peer.setConnState(cid, hasCID, StateWaitType)
}

func newHelloHandler() *SmartHandler {
	h, _ := NewSmartHandler(Gate{
		State: StateHelloWait, HasState: true,
		Side:          SideClient,
		ConnType:      ConnTypeNotSet,
		HasConnType:   true,
		InvalidAction: InvalidActionIgnore,
	}, helloHandler{})
	return h
}

// setTypeHandler — id 2, client->server.
type setTypeHandler struct{}

func (setTypeHandler) Receive(peer Peer, msg Value, cid uint64, hasCID bool) {
	name := "classic"
	if s, ok := fieldString(msg, "conntype"); ok {
		name = s
	}
	t := ConnType(name)

	ct, ok := peer.ConnTypes().Get(t)
	if !ok {
		peer.CloseConnection(cid, ReasonUnknownConnType)
		return
	}
	peer.setConnConnType(cid, hasCID, t)
	ct.Init(peer, cid, hasCID)
}

func (setTypeHandler) Send(Peer, Value, uint64, bool) {}

func newSetTypeHandler() *SmartHandler {
	h, _ := NewSmartHandler(Gate{
		State: StateWaitType, HasState: true,
		Side:          SideServer,
		InvalidAction: InvalidActionIgnore,
	}, setTypeHandler{})
	return h
}

// handshakeHandler — id 3, server->client.
type handshakeHandler struct{}

func (handshakeHandler) Receive(peer Peer, msg Value, cid uint64, hasCID bool) {
	proto, _ := fieldInt(msg, "protoversion")
	if proto != int64(ProtocolVersion) {
		peer.CloseConnection(cid, ReasonProtoVersionMismatch)
		return
	}

	if peer.Config().GetBool("net.registry.autosync", true) {
		remote := map[string]uint32{}
		if regVal, ok := msg.Field("registry"); ok {
			if m, ok := regVal.MapVal(); ok {
				for name, idVal := range m {
					if id, ok := idVal.Int(); ok {
						remote[name] = uint32(id)
					}
				}
			}
		}

		if !sameKeySet(remote, peer.Registry().NameIDs()) {
			if peer.Config().GetString("net.registry.missingpacketaction", "closeconnection") == "closeconnection" {
				peer.CloseConnection(cid, ReasonPacketRegMismatch)
				return
			}
			// "ignore": proceed despite the mismatch.
		}

		for name, id := range remote {
			if _, ok := peer.Registry().IDForName(name); ok {
				peer.Registry().Remap(name, id)
			}
		}
	}

	peer.SendMessage(PacketIDHandshakeAccept, Map(map[string]Value{"success": Bool(true)}), cid)
	peer.onHandshakeComplete(cid, hasCID)
}

func (handshakeHandler) Send(Peer, Value, uint64, bool) {}

func newHandshakeHandler() *SmartHandler {
	h, _ := NewSmartHandler(Gate{
		State: StateHandshakeWait1, HasState: true,
		Side:          SideClient,
		InvalidAction: InvalidActionClose,
	}, handshakeHandler{})
	return h
}

// handshakeAcceptHandler — id 4, client->server.
type handshakeAcceptHandler struct{}

func (handshakeAcceptHandler) Receive(peer Peer, msg Value, cid uint64, hasCID bool) {
	if ok, _ := fieldBool(msg, "success"); ok {
		peer.onHandshakeComplete(cid, hasCID)
	}
}

func (handshakeAcceptHandler) Send(Peer, Value, uint64, bool) {}

func newHandshakeAcceptHandler() *SmartHandler {
	h, _ := NewSmartHandler(Gate{
		State: StateHandshakeWait1, HasState: true,
		Side:          SideServer,
		InvalidAction: InvalidActionClose,
	}, handshakeAcceptHandler{})
	return h
}

// closeConnectionHandler — id 16, either direction, never gated.
type closeConnectionHandler struct{}

func (closeConnectionHandler) Receive(peer Peer, msg Value, cid uint64, hasCID bool) {
	reason := ""
	if r, ok := fieldString(msg, "reason"); ok {
		reason = r
	}
	peer.CloseConnection(cid, reason)
}

func (closeConnectionHandler) Send(Peer, Value, uint64, bool) {}

// --- small Value field helpers ---

func fieldInt(v Value, key string) (int64, bool) {
	f, ok := v.Field(key)
	if !ok {
		return 0, false
	}
	return f.Int()
}

func fieldString(v Value, key string) (string, bool) {
	f, ok := v.Field(key)
	if !ok {
		return "", false
	}
	return f.StringVal()
}

func fieldBool(v Value, key string) (bool, bool) {
	f, ok := v.Field(key)
	if !ok {
		return false, false
	}
	return f.Bool()
}

func sameKeySet(a map[string]uint32, b map[string]uint32) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if _, ok := b[k]; !ok {
			return false
		}
	}
	return true
}

// registerInternalPackets registers Hello/SetType/Handshake/
// HandshakeAccept/CloseConnection at their fixed ids, exactly as
// peng3dnet's Server/Client.initialize() does.
func registerInternalPackets(reg *PacketRegistry) {
	must := func(id uint32, name string, h Handler) {
		idCopy := id
		if _, err := reg.Register(name, h, &idCopy); err != nil {
			panic(err) // registering fixed internal ids never legitimately conflicts
		}
	}
	must(PacketIDHello, "netrt:internal.hello", newHelloHandler())
	must(PacketIDSetType, "netrt:internal.settype", newSetTypeHandler())
	must(PacketIDHandshake, "netrt:internal.handshake", newHandshakeHandler())
	must(PacketIDHandshakeAccept, "netrt:internal.handshake.accept", newHandshakeAcceptHandler())
	must(PacketIDCloseConnection, "netrt:internal.closeconn", closeConnectionHandler{})
}
