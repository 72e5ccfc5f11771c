// Package netrt implements a bidirectional, message-oriented network
// protocol runtime: framed, length-prefixed, typed messages between a
// server and many simultaneously connected clients over TCP, optionally
// wrapped in TLS.
//
// The runtime supplies a connection-lifecycle state machine, a symmetric
// handshake (version negotiation, connection-type selection, packet
// registry synchronization), multiplexed non-blocking-style I/O built on
// goroutines and channels, an extensible dispatch layer applications hook
// via packet types and connection types, and a ping sub-protocol for
// availability and latency measurement.
package netrt
