package netrt

import (
	"bytes"
	"encoding/binary"
)

// writeUint16 appends val to buffer as 2 big-endian bytes.
func writeUint16(buffer *bytes.Buffer, val uint16) {
	temp := make([]byte, 2)
	binary.BigEndian.PutUint16(temp, val)
	buffer.Write(temp)
}

// writeUint32 appends val to buffer as 4 big-endian bytes.
func writeUint32(buffer *bytes.Buffer, val uint32) {
	temp := make([]byte, 4)
	binary.BigEndian.PutUint32(temp, val)
	buffer.Write(temp)
}
