package netsub

import (
	"encoding/binary"
	"errors"
	"net"
)

const (
	frameTagClose    uint16 = 2
	frameTagRawBlock uint16 = 3

	maxBlockSize = 65535
)

var ErrFrameTooLarge = errors.New("netsub: raw block exceeds 65535 bytes")

// WriteClose sends the Close message, signalling a clean end of
// stream; the caller closes the connection afterward.
func WriteClose(conn net.Conn) error {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], frameTagClose)
	_, err := conn.Write(b[:])
	return err
}

// WriteRawBlock sends one RawBlock frame, chunking data across
// multiple frames if it exceeds the 65535-byte block limit.
func WriteRawBlock(conn net.Conn, data []byte) error {
	for len(data) > 0 {
		chunk := data
		if len(chunk) > maxBlockSize {
			chunk = chunk[:maxBlockSize]
		}
		header := make([]byte, 4)
		binary.LittleEndian.PutUint16(header[0:2], frameTagRawBlock)
		binary.LittleEndian.PutUint16(header[2:4], uint16(len(chunk)))
		if _, err := conn.Write(header); err != nil {
			return err
		}
		if _, err := conn.Write(chunk); err != nil {
			return err
		}
		data = data[len(chunk):]
	}
	return nil
}

// ReadMessage reads one framed message, returning its tag and payload
// (empty for Close).
func ReadMessage(conn net.Conn) (tag uint16, payload []byte, err error) {
	head := make([]byte, 2)
	if _, err = readFull(conn, head); err != nil {
		return 0, nil, err
	}
	tag = leUint16(head)
	switch tag {
	case frameTagClose:
		return tag, nil, nil
	case frameTagRawBlock:
		lenBuf := make([]byte, 2)
		if _, err = readFull(conn, lenBuf); err != nil {
			return 0, nil, err
		}
		n := leUint16(lenBuf)
		payload = make([]byte, n)
		if _, err = readFull(conn, payload); err != nil {
			return 0, nil, err
		}
		return tag, payload, nil
	default:
		return tag, nil, errors.New("netsub: unknown frame tag")
	}
}
