package netrt

import "fmt"

// AddressError indicates an invalid host, invalid port range, or an
// unsupported address form (e.g. IPv6).
type AddressError struct {
	Reason string
}

func (e *AddressError) Error() string { return "netrt: address: " + e.Reason }

// RegistryError indicates a packet or connection-type registry
// operation could not be completed.
type RegistryError struct {
	Reason string
	// AlreadyRegistered distinguishes a duplicate-registration conflict
	// from other registry failures (spec.md §7).
	AlreadyRegistered bool
}

func (e *RegistryError) Error() string { return "netrt: registry: " + e.Reason }

// ProtocolError indicates a protocol-level violation: unexpected
// state, unknown connection type, unknown flag bits, an oversize
// frame, or a version/registry mismatch. Reason is one of the close
// reason constants when the error also carries a CloseConnection.
type ProtocolError struct {
	Reason string
}

func (e *ProtocolError) Error() string { return "netrt: protocol: " + e.Reason }

// TimeoutError indicates a waiter (connection, close, pong) exceeded
// its deadline.
type TimeoutError struct {
	Reason string
}

func (e *TimeoutError) Error() string { return "netrt: timeout: " + e.Reason }

// PingTimeoutError is returned by Ping when no reply is observed
// before the deadline. It unwraps to a *TimeoutError so callers using
// errors.As against the general Timeout kind still match it, mirroring
// peng3dnet/errors.py's FailedPingError extending TimedOutError.
type PingTimeoutError struct {
	Reason string
}

func (e *PingTimeoutError) Error() string { return "netrt: ping timeout: " + e.Reason }
func (e *PingTimeoutError) Unwrap() error { return &TimeoutError{Reason: e.Reason} }

// TransportError indicates a socket or TLS failure during handshake
// or ordinary I/O.
type TransportError struct {
	Reason string
	Err    error
}

func (e *TransportError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("netrt: transport: %s: %v", e.Reason, e.Err)
	}
	return "netrt: transport: " + e.Reason
}

func (e *TransportError) Unwrap() error { return e.Err }

// ConfigError indicates an invalid enumerated configuration value,
// such as an invalid_action other than ignore|close.
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string { return "netrt: config: " + e.Reason }
