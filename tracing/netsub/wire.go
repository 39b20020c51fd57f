// Package netsub implements the tracing network protocol: a
// length-prefixed TCP framing with a version-negotiating handshake,
// delivering batches of little-endian packed tracing events to a
// remote collector.
package netsub

import (
	"bytes"
	"encoding/binary"
	"errors"
)

// ErrShortRead is returned when a payload ends before a field can be
// fully decoded — a truncated or corrupt RawBlock.
var ErrShortRead = errors.New("netsub: payload too short")

type byteWriter struct {
	buf bytes.Buffer
}

func (w *byteWriter) u8(v uint8)   { w.buf.WriteByte(v) }
func (w *byteWriter) u16(v uint16) { var b [2]byte; binary.LittleEndian.PutUint16(b[:], v); w.buf.Write(b[:]) }
func (w *byteWriter) u32(v uint32) { var b [4]byte; binary.LittleEndian.PutUint32(b[:], v); w.buf.Write(b[:]) }
func (w *byteWriter) u64(v uint64) { var b [8]byte; binary.LittleEndian.PutUint64(b[:], v); w.buf.Write(b[:]) }
func (w *byteWriter) boolean(v bool) {
	if v {
		w.u8(1)
	} else {
		w.u8(0)
	}
}

// str writes a u16 length prefix followed by the raw (not
// null-terminated) string bytes.
func (w *byteWriter) str(s string) {
	w.u16(uint16(len(s)))
	w.buf.WriteString(s)
}

func (w *byteWriter) bytes() []byte { return w.buf.Bytes() }

type byteReader struct {
	b   []byte
	off int
}

func newByteReader(b []byte) *byteReader { return &byteReader{b: b} }

func (r *byteReader) need(n int) error {
	if r.off+n > len(r.b) {
		return ErrShortRead
	}
	return nil
}

func (r *byteReader) u8() (uint8, error) {
	if err := r.need(1); err != nil {
		return 0, err
	}
	v := r.b[r.off]
	r.off++
	return v, nil
}

func (r *byteReader) u16() (uint16, error) {
	if err := r.need(2); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint16(r.b[r.off:])
	r.off += 2
	return v, nil
}

func (r *byteReader) u32() (uint32, error) {
	if err := r.need(4); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint32(r.b[r.off:])
	r.off += 4
	return v, nil
}

func (r *byteReader) u64() (uint64, error) {
	if err := r.need(8); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint64(r.b[r.off:])
	r.off += 8
	return v, nil
}

func (r *byteReader) boolean() (bool, error) {
	v, err := r.u8()
	return v != 0, err
}

func (r *byteReader) str() (string, error) {
	n, err := r.u16()
	if err != nil {
		return "", err
	}
	if err := r.need(int(n)); err != nil {
		return "", err
	}
	s := string(r.b[r.off : r.off+int(n)])
	r.off += int(n)
	return s, nil
}

func (r *byteReader) done() bool { return r.off >= len(r.b) }
