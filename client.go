package netrt

import (
	"context"
	"crypto/tls"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Client dials a Server and drives the same Hello/SetType/Handshake
// state machine from the opposite side. Unlike Server it tracks exactly
// one connection, so every Peer method ignores its cid/hasCID
// arguments and operates on that single clientRecord.
//
// Grounded on peng3dnet/net.py's Client (Connect/dispatch shape);
// WaitForConnection/WaitForClose replace the original's blocking
// condition-variable waits with context-aware channel waits, consistent
// with the REDESIGN noted for Server.
type Client struct {
	cfg       *Config
	logger    zerolog.Logger
	registry  *PacketRegistry
	connTypes *ConnTypeRegistry
	events    EventSink
	tlsConfig *tls.Config
	// tlsVerifiesServer/tlsPresentsCert mirror tlsConfig's
	// InsecureSkipVerify and client Certificates, read once at
	// construction and consulted by secLevelForConnState after Connect.
	tlsVerifiesServer bool
	tlsPresentsCert   bool

	targetConnType ConnType

	mu      sync.RWMutex
	rec     *clientRecord
	active  chan struct{}
	closed  chan struct{}
}

// NewClient builds a Client that will, once Connect succeeds, request
// targetConnType during the handshake (ConnTypeClassic if empty).
func NewClient(cfg *Config, events EventSink, targetConnType ConnType) (*Client, error) {
	if targetConnType == "" {
		targetConnType = ConnTypeClassic
	}
	c := &Client{
		cfg:            cfg,
		logger:         newLogger("client"),
		registry:       NewPacketRegistry(),
		connTypes:      newConnTypeRegistry(),
		events:         events,
		targetConnType: targetConnType,
		active:         make(chan struct{}),
		closed:         make(chan struct{}),
	}
	registerInternalPackets(c.registry)

	if cfg.GetBool("net.ssl.enabled", false) {
		tlsConf, err := buildClientTLSConfig(cfg)
		if err != nil {
			return nil, err
		}
		c.tlsConfig = tlsConf
		c.tlsVerifiesServer = !tlsConf.InsecureSkipVerify
		c.tlsPresentsCert = len(tlsConf.Certificates) > 0
	}

	return c, nil
}

// TargetConnType satisfies the optional interface helloHandler.Receive
// probes for, so the client's Hello reply advertises the conntype it
// was constructed with instead of always defaulting to "classic".
func (c *Client) TargetConnType() ConnType { return c.targetConnType }

// Peer interface

func (c *Client) Side() Side                  { return SideClient }
func (c *Client) Config() *Config             { return c.cfg }
func (c *Client) Logger() *zerolog.Logger      { return &c.logger }
func (c *Client) Registry() *PacketRegistry    { return c.registry }
func (c *Client) ConnTypes() *ConnTypeRegistry { return c.connTypes }

func (c *Client) connState(uint64, bool) State {
	if r := c.record(); r != nil {
		return r.State()
	}
	return StateClosed
}

func (c *Client) connMode(uint64, bool) Mode {
	if r := c.record(); r != nil {
		return r.Mode()
	}
	return ModeClosed
}

func (c *Client) connConnType(uint64, bool) ConnType {
	if r := c.record(); r != nil {
		return r.ConnType()
	}
	return ConnTypeNotSet
}

func (c *Client) connSecLevel(uint64, bool) SecLevel {
	if r := c.record(); r != nil {
		return r.SecLevel()
	}
	return SecLevelNone
}

func (c *Client) setConnState(_ uint64, _ bool, st State) {
	if r := c.record(); r != nil {
		r.setState(st)
		if st == StateActive {
			c.mu.Lock()
			select {
			case <-c.active:
			default:
				close(c.active)
			}
			c.mu.Unlock()
		}
	}
}

func (c *Client) setConnConnType(_ uint64, _ bool, t ConnType) {
	if r := c.record(); r != nil {
		r.setConnType(t)
	}
}

func (c *Client) setConnMode(_ uint64, _ bool, m Mode) {
	if r := c.record(); r != nil {
		r.setMode(m)
	}
}

func (c *Client) onHandshakeComplete(uint64, bool) {
	c.setConnState(0, false, StateActive)
	sendEvent(c.events, "net.client.handshakecomplete", nil)
}

func (c *Client) record() *clientRecord {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.rec
}

func (c *Client) resolvePacketID(ptype interface{}) (uint32, error) {
	switch t := ptype.(type) {
	case uint32:
		return t, nil
	case int:
		return uint32(t), nil
	case string:
		id, ok := c.registry.IDForName(t)
		if !ok {
			return 0, &RegistryError{Reason: "unknown packet name " + t}
		}
		return id, nil
	default:
		return 0, &RegistryError{Reason: fmt.Sprintf("invalid packet type identifier %v", ptype)}
	}
}

// SendMessage encodes payload under ptype and enqueues it for delivery
// to the server; cid is ignored (a client has exactly one peer).
func (c *Client) SendMessage(ptype interface{}, payload Value, _ uint64) error {
	id, err := c.resolvePacketID(ptype)
	if err != nil {
		return err
	}

	r := c.record()
	if r == nil {
		return &TransportError{Reason: "not connected"}
	}

	if id >= PacketIDReservedBelow {
		if ct, ok := c.connTypes.Get(r.ConnType()); ok {
			if ct.Send(c, payload, id, 0, false) {
				goto encode
			}
		}
	}
	if h, ok := c.registry.ByID(id); ok {
		h.Send(c, payload, 0, false)
	}

encode:
	cc := compressConfigFromConfig(c.cfg)
	frame, err := encodeFrame(id, payload, cc)
	if err != nil {
		return err
	}

	if c.cfg.GetBool("net.debug.print.send", false) {
		c.logger.Debug().Uint32("id", id).Msg("send")
	}

	select {
	case r.outbound <- frame:
		return nil
	case <-r.closed:
		return &TransportError{Reason: "connection closing"}
	}
}

// CloseConnection tears down the connection, optionally after sending
// a CloseConnection packet carrying reason; cid is ignored.
func (c *Client) CloseConnection(_ uint64, reason string) {
	r := c.record()
	if r == nil {
		return
	}
	if !r.isClosing() {
		_ = c.SendMessage(PacketIDCloseConnection, Map(map[string]Value{"reason": String(reason)}), 0)
	}
	r.requestClose()
}

// Connect dials addr, optionally wraps the connection in TLS, and
// spawns the reader/writer goroutines. It does not block for the
// handshake to complete — use WaitForConnection for that.
func (c *Client) Connect(ctx context.Context, addr Addr) error {
	dialer := net.Dialer{}
	conn, err := dialer.DialContext(ctx, "tcp", addr.String())
	if err != nil {
		return &TransportError{Reason: "dial failed", Err: err}
	}

	if c.tlsConfig != nil {
		tlsConn := tls.Client(conn, c.tlsConfig)
		if err := tlsConn.HandshakeContext(ctx); err != nil {
			_ = conn.Close()
			return &TransportError{Reason: "tls handshake failed", Err: err}
		}
		conn = tlsConn
	}

	r := newClientRecord(0, conn)
	if tlsConn, ok := conn.(*tls.Conn); ok {
		state := tlsConn.ConnectionState()
		r.setTLSInfo(&state, false, false, c.tlsVerifiesServer, c.tlsPresentsCert)
	}

	c.mu.Lock()
	c.rec = r
	c.mu.Unlock()

	sendEvent(c.events, "net.client.connect", map[string]interface{}{"remote": addr.String()})

	go c.writeLoop(r)
	go c.readLoop(ctx, r)

	return nil
}

// WaitForConnection blocks until the handshake completes (state
// reaches ACTIVE) or ctx is cancelled.
func (c *Client) WaitForConnection(ctx context.Context) error {
	select {
	case <-c.active:
		return nil
	case <-c.closed:
		return &TransportError{Reason: "connection closed before handshake completed"}
	case <-ctx.Done():
		return &TimeoutError{Reason: "WaitForConnection: " + ctx.Err().Error()}
	}
}

// WaitForClose blocks until the connection has fully torn down or ctx
// is cancelled.
func (c *Client) WaitForClose(ctx context.Context) error {
	select {
	case <-c.closed:
		return nil
	case <-ctx.Done():
		return &TimeoutError{Reason: "WaitForClose: " + ctx.Err().Error()}
	}
}

func (c *Client) writeLoop(r *clientRecord) {
	for {
		select {
		case frame, ok := <-r.outbound:
			if !ok {
				return
			}
			if _, err := r.conn.Write(frame); err != nil {
				r.requestClose()
				return
			}
		case <-r.closed:
			drainOutbound(r.outbound, r.conn)
			_ = r.conn.Close()
			return
		}
	}
}

func (c *Client) readLoop(ctx context.Context, r *clientRecord) {
	defer c.teardown(r)

	lenBuf := make([]byte, 4)
	for {
		select {
		case <-ctx.Done():
			return
		case <-r.closed:
			return
		default:
		}

		if _, err := io.ReadFull(r.conn, lenBuf); err != nil {
			return
		}
		n := binary.BigEndian.Uint32(lenBuf)
		if n > MaxPacketLength {
			return
		}
		body := make([]byte, n)
		if n > 0 {
			if _, err := io.ReadFull(r.conn, body); err != nil {
				return
			}
		}

		frame, err := decodeFrame(body)
		if err != nil {
			c.logger.Warn().Err(err).Msg("frame decode failed")
			c.CloseConnection(0, ReasonUnsupportedFlag)
			return
		}

		if c.cfg.GetBool("net.debug.print.recv", false) {
			c.logger.Debug().Uint32("id", frame.ID).Msg("recv")
		}

		c.dispatch(r, frame)
	}
}

func (c *Client) dispatch(r *clientRecord, frame decodedFrame) {
	defer func() {
		if p := recover(); p != nil {
			c.logger.Error().Uint32("id", frame.ID).Interface("panic", p).Msg("packet handler panicked")
		}
	}()
	if frame.ID >= PacketIDReservedBelow {
		if ct, ok := c.connTypes.Get(r.ConnType()); ok {
			if ct.Receive(c, frame.Msg, frame.ID, frame.Flags, 0, false) {
				return
			}
		}
	}

	h, ok := c.registry.ByID(frame.ID)
	if !ok {
		if c.cfg.GetString("net.registry.missingpacketaction", "closeconnection") == "closeconnection" {
			c.CloseConnection(0, ReasonPacketRegMismatch)
		}
		return
	}
	h.Receive(c, frame.Msg, 0, false)
}

func (c *Client) teardown(r *clientRecord) {
	previousState := r.State()
	r.setState(StateClosed)
	_ = r.conn.Close()

	if c.cfg.GetBool("net.debug.print.close", false) {
		c.logger.Debug().Str("previous_state", previousState.String()).Msg("close")
	}
	if previousState != StateClosed {
		sendEvent(c.events, "net.client.disconnect", map[string]interface{}{
			"previous_state": previousState.String(),
		})
	}

	c.mu.Lock()
	select {
	case <-c.closed:
	default:
		close(c.closed)
	}
	c.mu.Unlock()
}

// Disconnect requests a graceful close, then waits up to timeout for
// teardown to complete.
func (c *Client) Disconnect(reason string, timeout time.Duration) error {
	c.CloseConnection(0, reason)
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return c.WaitForClose(ctx)
}
