package netrt

// EventSink receives named lifecycle notifications the host application
// may want to react to (connection accepted, handshake complete,
// connection closed, server shutdown, ...). This mirrors peng3dnet's
// `sendEvent`, whose actual event-bus implementation spec.md §1
// delegates to the embedding application; a nil EventSink is a valid,
// inert default.
type EventSink interface {
	SendEvent(name string, data map[string]interface{})
}

// NoopEventSink discards every event; passing a nil EventSink has the
// same effect.
type NoopEventSink struct{}

func (NoopEventSink) SendEvent(string, map[string]interface{}) {}

func sendEvent(sink EventSink, name string, data map[string]interface{}) {
	if sink == nil {
		return
	}
	sink.SendEvent(name, data)
}
