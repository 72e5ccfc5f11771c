package netrt

import (
	"crypto/tls"
	"net"
	"sync"
)

// clientRecord holds everything the server tracks about one accepted
// connection: its transport, outbound queue, and handshake/application
// state. Grounded on alejzeis-OJNet-go's per-connection bookkeeping in
// server.go (there keyed by net.Conn directly); adapted here into its
// own type because the goroutine-per-connection REDESIGN (DESIGN.md)
// needs a place to hang the outbound channel and close signal. Client
// uses the same type for its single connection.
type clientRecord struct {
	mu sync.RWMutex

	cid    uint64
	conn   net.Conn
	remote net.Addr

	state    State
	mode     Mode
	connType ConnType

	tlsWrapped  bool
	tlsState    *tls.ConnectionState
	tlsSecLevel SecLevel

	outbound chan []byte
	closed   chan struct{}
	closeOnce sync.Once

	markClose bool
}

func newClientRecord(cid uint64, conn net.Conn) *clientRecord {
	return &clientRecord{
		cid:      cid,
		conn:     conn,
		remote:   conn.RemoteAddr(),
		state:    StateHelloWait,
		mode:     ModeNotSet,
		connType: ConnTypeNotSet,
		outbound: make(chan []byte, 64),
		closed:   make(chan struct{}),
	}
}

func (c *clientRecord) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

func (c *clientRecord) setState(s State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = s
}

func (c *clientRecord) Mode() Mode {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.mode
}

func (c *clientRecord) setMode(m Mode) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.mode = m
}

func (c *clientRecord) ConnType() ConnType {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connType
}

func (c *clientRecord) setConnType(t ConnType) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connType = t
}

func (c *clientRecord) SecLevel() SecLevel {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.tlsSecLevel
}

// setTLSPending marks a connection as TLS-wrapped while its handshake
// is still in flight (tls_state == "handshake" in spec.md §3), giving
// it SecLevelWrapped until setTLSInfo reports handshake completion.
func (c *clientRecord) setTLSPending() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tlsWrapped = true
	c.tlsSecLevel = SecLevelWrapped
}

func (c *clientRecord) setTLSInfo(state *tls.ConnectionState, serverSide, serverRequiresClientAuth, clientVerifiesServer, clientPresentsCert bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tlsWrapped = true
	c.tlsState = state
	c.tlsSecLevel = secLevelForConnState(true, state.HandshakeComplete, serverSide, serverRequiresClientAuth, clientVerifiesServer, clientPresentsCert)
}

// requestClose marks the connection for teardown and is idempotent:
// repeated calls (e.g. from both the reader goroutine on EOF and an
// explicit CloseConnection) only close the channel once.
func (c *clientRecord) requestClose() {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.markClose = true
		c.mu.Unlock()
		close(c.closed)
	})
}

func (c *clientRecord) isClosing() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

// drainOutbound writes every frame already sitting in outbound without
// blocking, used right before a connection's transport is closed so a
// just-queued CloseConnection reply still reaches the wire.
func drainOutbound(outbound chan []byte, conn net.Conn) {
	for {
		select {
		case frame, ok := <-outbound:
			if !ok {
				return
			}
			_, _ = conn.Write(frame)
		default:
			return
		}
	}
}
