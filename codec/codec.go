// Package codec implements the deterministic binary encoding every hash,
// signature, and wire message in nullspace is computed over. The format is
// intentionally small: fixed-width little-endian integers, ULEB128-length-
// prefixed byte strings, length-prefixed sequences, tuples (plain
// concatenation), and externally-tagged variants (ULEB128 tag then
// payload). Two independent implementations given the same values must
// produce byte-identical output.
package codec

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrTruncated is returned when a Reader runs out of bytes mid-value.
var ErrTruncated = errors.New("codec: truncated input")

// Encodable is implemented by every value with a canonical wire form.
type Encodable interface {
	Encode(w *Writer)
}

// Decodable is implemented by every value that can be read back from the
// wire form written by the corresponding Encodable.
type Decodable interface {
	Decode(r *Reader) error
}

// Writer accumulates a canonical encoding.
type Writer struct {
	buf []byte
}

// NewWriter returns an empty Writer.
func NewWriter() *Writer { return &Writer{} }

// Bytes returns the accumulated encoding.
func (w *Writer) Bytes() []byte { return w.buf }

// WriteUint8 appends a single byte.
func (w *Writer) WriteUint8(v uint8) { w.buf = append(w.buf, v) }

// WriteBool appends a single byte, 1 for true and 0 for false.
func (w *Writer) WriteBool(v bool) {
	if v {
		w.WriteUint8(1)
	} else {
		w.WriteUint8(0)
	}
}

// WriteUint32 appends a fixed-width 4-byte little-endian integer.
func (w *Writer) WriteUint32(v uint32) {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], v)
	w.buf = append(w.buf, tmp[:]...)
}

// WriteUint64 appends a fixed-width 8-byte little-endian integer.
func (w *Writer) WriteUint64(v uint64) {
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], v)
	w.buf = append(w.buf, tmp[:]...)
}

// WriteInt64 appends a fixed-width 8-byte little-endian signed integer.
func (w *Writer) WriteInt64(v int64) { w.WriteUint64(uint64(v)) }

// WriteULEB128 appends v as an unsigned LEB128 varint.
func (w *Writer) WriteULEB128(v uint64) {
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			w.buf = append(w.buf, b|0x80)
			continue
		}
		w.buf = append(w.buf, b)
		return
	}
}

// WriteBytes appends a ULEB128 u32 length prefix followed by raw bytes.
func (w *Writer) WriteBytes(b []byte) {
	w.WriteULEB128(uint64(len(b)))
	w.buf = append(w.buf, b...)
}

// WriteRaw appends raw bytes for fixed-size fields (e.g. a 32-byte key)
// where a length prefix is redundant because the size is part of the type.
func (w *Writer) WriteRaw(b []byte) { w.buf = append(w.buf, b...) }

// WriteString appends a UTF-8 string the same way as WriteBytes.
func (w *Writer) WriteString(s string) { w.WriteBytes([]byte(s)) }

// WriteSeqHeader appends the ULEB128 element count of a sequence; the
// caller then encodes each element in order.
func (w *Writer) WriteSeqHeader(n int) { w.WriteULEB128(uint64(n)) }

// WriteVariant appends an externally-tagged variant: a ULEB128 tag
// followed by the already-encoded payload.
func (w *Writer) WriteVariant(tag uint64, payload []byte) {
	w.WriteULEB128(tag)
	w.buf = append(w.buf, payload...)
}

// Encode is a convenience for Encodable values: allocate a Writer, encode,
// return the bytes.
func Encode(v Encodable) []byte {
	w := NewWriter()
	v.Encode(w)
	return w.Bytes()
}

// Reader consumes a canonical encoding produced by Writer.
type Reader struct {
	buf []byte
	pos int
}

// NewReader wraps b for sequential decoding.
func NewReader(b []byte) *Reader { return &Reader{buf: b} }

// Remaining reports how many bytes are left unread.
func (r *Reader) Remaining() int { return len(r.buf) - r.pos }

func (r *Reader) need(n int) error {
	if r.Remaining() < n {
		return ErrTruncated
	}
	return nil
}

// ReadUint8 reads a single byte.
func (r *Reader) ReadUint8() (uint8, error) {
	if err := r.need(1); err != nil {
		return 0, err
	}
	v := r.buf[r.pos]
	r.pos++
	return v, nil
}

// ReadBool reads a single byte and interprets it as a boolean; any nonzero
// byte is true.
func (r *Reader) ReadBool() (bool, error) {
	v, err := r.ReadUint8()
	if err != nil {
		return false, err
	}
	return v != 0, nil
}

// ReadUint32 reads a fixed-width 4-byte little-endian integer.
func (r *Reader) ReadUint32() (uint32, error) {
	if err := r.need(4); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint32(r.buf[r.pos:])
	r.pos += 4
	return v, nil
}

// ReadUint64 reads a fixed-width 8-byte little-endian integer.
func (r *Reader) ReadUint64() (uint64, error) {
	if err := r.need(8); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint64(r.buf[r.pos:])
	r.pos += 8
	return v, nil
}

// ReadInt64 reads a fixed-width 8-byte little-endian signed integer.
func (r *Reader) ReadInt64() (int64, error) {
	v, err := r.ReadUint64()
	return int64(v), err
}

// ReadULEB128 reads an unsigned LEB128 varint.
func (r *Reader) ReadULEB128() (uint64, error) {
	var result uint64
	var shift uint
	for {
		if shift >= 64 {
			return 0, fmt.Errorf("codec: uleb128 overflow")
		}
		b, err := r.ReadUint8()
		if err != nil {
			return 0, err
		}
		result |= uint64(b&0x7f) << shift
		if b&0x80 == 0 {
			return result, nil
		}
		shift += 7
	}
}

// ReadBytes reads a ULEB128-length-prefixed byte string.
func (r *Reader) ReadBytes() ([]byte, error) {
	n, err := r.ReadULEB128()
	if err != nil {
		return nil, err
	}
	if err := r.need(int(n)); err != nil {
		return nil, err
	}
	out := make([]byte, n)
	copy(out, r.buf[r.pos:r.pos+int(n)])
	r.pos += int(n)
	return out, nil
}

// ReadRaw reads exactly n raw bytes, for fields whose size is implied by
// the type rather than length-prefixed.
func (r *Reader) ReadRaw(n int) ([]byte, error) {
	if err := r.need(n); err != nil {
		return nil, err
	}
	out := make([]byte, n)
	copy(out, r.buf[r.pos:r.pos+n])
	r.pos += n
	return out, nil
}

// ReadString reads a UTF-8 string encoded the same way as ReadBytes.
func (r *Reader) ReadString() (string, error) {
	b, err := r.ReadBytes()
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// ReadSeqHeader reads the ULEB128 element count of a sequence.
func (r *Reader) ReadSeqHeader() (int, error) {
	n, err := r.ReadULEB128()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

// ReadVariantTag reads the ULEB128 tag of an externally-tagged variant;
// the caller then decodes the payload according to the tag.
func (r *Reader) ReadVariantTag() (uint64, error) { return r.ReadULEB128() }

// Decode is a convenience for Decodable values.
func Decode(b []byte, v Decodable) error {
	r := NewReader(b)
	return v.Decode(r)
}
