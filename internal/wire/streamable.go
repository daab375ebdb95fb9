package wire

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// streamWriter and streamReader implement the subset of the target
// blockchain's streamable binary encoding (spec.md §6, GLOSSARY
// "Streamable") that the typed payloads in this package need: fixed-width
// big-endian integers, a 4-byte length prefix ahead of variable-length
// byte strings, a 1-byte presence flag ahead of optional fields, and a
// 4-byte element count ahead of lists. A production binding consumes the
// target chain's own protocol library for this instead of re-deriving
// it (see SPEC_FULL.md §11); this package stands in for that library for
// the payload shapes spec.md §3/§4.1 names.
type streamWriter struct {
	buf bytes.Buffer
}

func newStreamWriter() *streamWriter { return &streamWriter{} }

func (w *streamWriter) Bytes() []byte { return w.buf.Bytes() }

func (w *streamWriter) u8(v uint8)   { w.buf.WriteByte(v) }
func (w *streamWriter) u16(v uint16) { var b [2]byte; binary.BigEndian.PutUint16(b[:], v); w.buf.Write(b[:]) }
func (w *streamWriter) u32(v uint32) { var b [4]byte; binary.BigEndian.PutUint32(b[:], v); w.buf.Write(b[:]) }
func (w *streamWriter) u64(v uint64) { var b [8]byte; binary.BigEndian.PutUint64(b[:], v); w.buf.Write(b[:]) }

func (w *streamWriter) boolean(v bool) {
	if v {
		w.u8(1)
	} else {
		w.u8(0)
	}
}

func (w *streamWriter) bytesField(b []byte) {
	w.u32(uint32(len(b)))
	w.buf.Write(b)
}

func (w *streamWriter) str(s string) { w.bytesField([]byte(s)) }

func (w *streamWriter) hash32(h [32]byte) { w.buf.Write(h[:]) }

func (w *streamWriter) u32List(vals []uint32) {
	w.u32(uint32(len(vals)))
	for _, v := range vals {
		w.u32(v)
	}
}

type streamReader struct {
	b   []byte
	pos int
}

func newStreamReader(b []byte) *streamReader { return &streamReader{b: b} }

var errTruncated = fmt.Errorf("wire: truncated frame")

func (r *streamReader) need(n int) error {
	if r.pos+n > len(r.b) {
		return errTruncated
	}
	return nil
}

func (r *streamReader) u8() (uint8, error) {
	if err := r.need(1); err != nil {
		return 0, err
	}
	v := r.b[r.pos]
	r.pos++
	return v, nil
}

func (r *streamReader) u16() (uint16, error) {
	if err := r.need(2); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint16(r.b[r.pos:])
	r.pos += 2
	return v, nil
}

func (r *streamReader) u32() (uint32, error) {
	if err := r.need(4); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint32(r.b[r.pos:])
	r.pos += 4
	return v, nil
}

func (r *streamReader) u64() (uint64, error) {
	if err := r.need(8); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint64(r.b[r.pos:])
	r.pos += 8
	return v, nil
}

func (r *streamReader) boolean() (bool, error) {
	v, err := r.u8()
	if err != nil {
		return false, err
	}
	return v != 0, nil
}

func (r *streamReader) bytesField() ([]byte, error) {
	n, err := r.u32()
	if err != nil {
		return nil, err
	}
	if err := r.need(int(n)); err != nil {
		return nil, err
	}
	out := make([]byte, n)
	copy(out, r.b[r.pos:r.pos+int(n)])
	r.pos += int(n)
	return out, nil
}

func (r *streamReader) str() (string, error) {
	b, err := r.bytesField()
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (r *streamReader) hash32() ([32]byte, error) {
	var h [32]byte
	if err := r.need(32); err != nil {
		return h, err
	}
	copy(h[:], r.b[r.pos:r.pos+32])
	r.pos += 32
	return h, nil
}

func (r *streamReader) u32List() ([]uint32, error) {
	n, err := r.u32()
	if err != nil {
		return nil, err
	}
	out := make([]uint32, n)
	for i := range out {
		v, err := r.u32()
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (r *streamReader) remaining() []byte {
	return r.b[r.pos:]
}

func (r *streamReader) atEnd() bool { return r.pos == len(r.b) }
