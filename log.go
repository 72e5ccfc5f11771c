package netrt

import (
	"os"

	"github.com/rs/zerolog"
)

// newLogger builds the structured logger every Server and Client uses
// (neither accepts a caller-supplied one). Every peng3dnet print()
// call (SEND/RECV/CLOSE/handshake debug prints) becomes a leveled
// zerolog call gated the same way the source gates them, on the
// net.debug.print.* config keys.
func newLogger(component string) zerolog.Logger {
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		With().
		Timestamp().
		Str("component", component).
		Logger()
}
