package netrt

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/klauspost/compress/zlib"
	"github.com/vmihailenco/msgpack/v5"
)

// frameHeaderSize is the size in bytes of the id+flags header that
// follows the 4-byte length prefix (spec.md §6's wire frame layout).
const frameHeaderSize = 4 + 2

// decodedFrame is a fully parsed incoming frame: id, flags, and the
// decoded payload.
type decodedFrame struct {
	ID    uint32
	Flags Flag
	Msg   Value
}

// compressConfig carries the three compression-related config keys a
// codec call needs, read once by the caller to avoid threading *Config
// through every call.
type compressConfig struct {
	Enabled   bool
	Threshold int
	Level     int
}

func compressConfigFromConfig(cfg *Config) compressConfig {
	return compressConfig{
		Enabled:   cfg.GetBool("net.compress.enabled", true),
		Threshold: cfg.GetInt("net.compress.threshold", 8*1024),
		Level:     cfg.GetInt("net.compress.level", 6),
	}
}

// encodeFrame serializes (id, payload) into a complete wire frame:
// 4-byte BE length prefix, then a 6-byte header (id, flags), then the
// msgpack-encoded (optionally zlib-deflated) payload. This mirrors
// peng3dnet/net.py's send_message byte-for-byte, adapted into the
// big-endian buffer-write style of alejzeis-OJNet-go/bytes_utility.go.
func encodeFrame(id uint32, payload Value, cc compressConfig) ([]byte, error) {
	body, err := msgpack.Marshal(payload.toDecoded())
	if err != nil {
		return nil, &TransportError{Reason: "msgpack encode failed", Err: err}
	}

	var flags Flag
	if cc.Enabled && len(body) > cc.Threshold {
		var buf bytes.Buffer
		w, err := zlib.NewWriterLevel(&buf, cc.Level)
		if err != nil {
			return nil, &TransportError{Reason: "zlib writer init failed", Err: err}
		}
		if _, err := w.Write(body); err != nil {
			return nil, &TransportError{Reason: "zlib compress failed", Err: err}
		}
		if err := w.Close(); err != nil {
			return nil, &TransportError{Reason: "zlib compress failed", Err: err}
		}
		body = buf.Bytes()
		flags |= FlagCompressed
	}

	header := bytes.Buffer{}
	header.Grow(frameHeaderSize + len(body))
	writeUint32(&header, id)
	writeUint16(&header, uint16(flags))
	header.Write(body)

	frame := bytes.Buffer{}
	frame.Grow(4 + header.Len())
	writeUint32(&frame, uint32(header.Len()))
	frame.Write(header.Bytes())

	return frame.Bytes(), nil
}

// decodeFrame parses a single frame body (everything after the 4-byte
// length prefix has already been stripped off by the caller's read
// loop) into a decodedFrame. Unknown flag bits and the reserved
// ENCRYPTED_AES bit are rejected with a *ProtocolError.
func decodeFrame(body []byte) (decodedFrame, error) {
	if len(body) < frameHeaderSize {
		// A zero-length (or header-less) body decodes to an empty
		// frame rather than panicking — spec.md §8's "length prefix
		// of 0 is legal" boundary case.
		return decodedFrame{}, nil
	}

	id := binary.BigEndian.Uint32(body[0:4])
	flags := Flag(binary.BigEndian.Uint16(body[4:6]))
	payload := body[6:]

	if flags&^flagsKnownMask != 0 {
		return decodedFrame{}, &ProtocolError{Reason: ReasonUnsupportedFlag}
	}
	if flags&FlagEncryptedAES != 0 {
		return decodedFrame{}, &ProtocolError{Reason: ReasonUnsupportedFlag}
	}

	if flags&FlagCompressed != 0 {
		r, err := zlib.NewReader(bytes.NewReader(payload))
		if err != nil {
			return decodedFrame{}, &TransportError{Reason: "zlib reader init failed", Err: err}
		}
		defer r.Close()
		decompressed, err := io.ReadAll(r)
		if err != nil {
			return decodedFrame{}, &TransportError{Reason: "zlib decompress failed", Err: err}
		}
		payload = decompressed
	}

	var raw interface{}
	if len(payload) > 0 {
		if err := msgpack.Unmarshal(payload, &raw); err != nil {
			return decodedFrame{}, &TransportError{Reason: "msgpack decode failed", Err: err}
		}
	}

	return decodedFrame{ID: id, Flags: flags, Msg: valueFromDecoded(raw)}, nil
}
