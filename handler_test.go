package netrt

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakePeer is a minimal in-memory Peer used to exercise Gate/SmartHandler
// logic without any real networking.
type fakePeer struct {
	side     Side
	cfg      *Config
	logger   zerolog.Logger
	registry *PacketRegistry
	ct       *ConnTypeRegistry

	state    State
	mode     Mode
	connType ConnType
	secLevel SecLevel

	closedReason string
	closedCID    uint64
	closeCalled  bool

	sent []sentMsg
}

type sentMsg struct {
	ptype   interface{}
	payload Value
	cid     uint64
}

func newFakePeer(side Side) *fakePeer {
	return &fakePeer{
		side:     side,
		cfg:      NewDefaultConfig(nil, nil),
		logger:   newLogger("test"),
		registry: NewPacketRegistry(),
		ct:       newConnTypeRegistry(),
		state:    StateHelloWait,
	}
}

func (p *fakePeer) Side() Side                  { return p.side }
func (p *fakePeer) Config() *Config             { return p.cfg }
func (p *fakePeer) Logger() *zerolog.Logger      { return &p.logger }
func (p *fakePeer) Registry() *PacketRegistry    { return p.registry }
func (p *fakePeer) ConnTypes() *ConnTypeRegistry { return p.ct }

func (p *fakePeer) SendMessage(ptype interface{}, payload Value, cid uint64) error {
	p.sent = append(p.sent, sentMsg{ptype, payload, cid})
	return nil
}

func (p *fakePeer) CloseConnection(cid uint64, reason string) {
	p.closeCalled = true
	p.closedCID = cid
	p.closedReason = reason
}

func (p *fakePeer) connState(uint64, bool) State       { return p.state }
func (p *fakePeer) connMode(uint64, bool) Mode          { return p.mode }
func (p *fakePeer) connConnType(uint64, bool) ConnType  { return p.connType }
func (p *fakePeer) connSecLevel(uint64, bool) SecLevel  { return p.secLevel }

func (p *fakePeer) setConnState(_ uint64, _ bool, s State)       { p.state = s }
func (p *fakePeer) setConnConnType(_ uint64, _ bool, t ConnType) { p.connType = t }
func (p *fakePeer) setConnMode(_ uint64, _ bool, m Mode)         { p.mode = m }

func (p *fakePeer) onHandshakeComplete(uint64, bool) { p.state = StateActive }

func TestGateChecksStateSideAndConnType(t *testing.T) {
	peer := newFakePeer(SideClient)
	peer.state = StateHelloWait
	peer.connType = ConnTypeNotSet

	h := newHelloHandler()

	// Receive on the client (hasCID=false) with matching state/conntype
	// should pass through to the inner handler, which advances the
	// state machine all the way to HANDSHAKE_WAIT1 via the chosen
	// connection type's Init (classic, by default).
	h.Receive(peer, Map(map[string]Value{"protoversion": Int(int64(ProtocolVersion))}), 0, false)
	assert.Equal(t, StateHandshakeWait1, peer.state)
	assert.False(t, peer.closeCalled)
}

func TestGateRejectsWrongSide(t *testing.T) {
	peer := newFakePeer(SideClient)
	peer.state = StateHelloWait

	h := newHelloHandler()
	// hasCID=true simulates the server side receiving its own Hello,
	// which the Side=SideClient gate must reject (ignored, not closed).
	h.Receive(peer, Nil(), 5, true)
	assert.False(t, peer.closeCalled)
	assert.Equal(t, StateHelloWait, peer.state) // unchanged: gate blocked it
}

func TestSmartHandlerCloseActionOnViolation(t *testing.T) {
	peer := newFakePeer(SideClient)
	peer.state = StateInit // handshake handler requires StateHandshakeWait1

	h := newHandshakeHandler()
	h.Receive(peer, Nil(), 1, false)

	require.True(t, peer.closeCalled)
	assert.Equal(t, ReasonSmartPacketInvalid, peer.closedReason)
}

func TestHelloHandlerClosesOnProtocolVersionMismatch(t *testing.T) {
	peer := newFakePeer(SideClient)
	peer.state = StateHelloWait
	peer.connType = ConnTypeNotSet

	h := newHelloHandler()
	h.Receive(peer, Map(map[string]Value{"protoversion": Int(999)}), 0, false)

	require.True(t, peer.closeCalled)
	assert.Equal(t, ReasonProtoVersionMismatch, peer.closedReason)
}

func TestHandshakeHandlerSendsAcceptAndCompletesOnMatchingRegistry(t *testing.T) {
	peer := newFakePeer(SideClient)
	peer.state = StateHandshakeWait1
	registerInternalPackets(peer.registry)

	h := newHandshakeHandler()
	reg := peer.registry.NameIDs()
	regVal := make(map[string]Value, len(reg))
	for name, id := range reg {
		regVal[name] = Int(int64(id))
	}

	h.Receive(peer, Map(map[string]Value{
		"protoversion": Int(int64(ProtocolVersion)),
		"registry":     Map(regVal),
	}), 0, false)

	require.False(t, peer.closeCalled)
	require.Len(t, peer.sent, 1)
	assert.Equal(t, PacketIDHandshakeAccept, peer.sent[0].ptype)
	assert.Equal(t, StateActive, peer.state)
}
