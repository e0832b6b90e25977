package codec

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type tupleFixture struct {
	A uint32
	B []byte
	C []string
}

func (t tupleFixture) Encode(w *Writer) {
	w.WriteUint32(t.A)
	w.WriteBytes(t.B)
	w.WriteSeqHeader(len(t.C))
	for _, s := range t.C {
		w.WriteString(s)
	}
}

func (t *tupleFixture) Decode(r *Reader) error {
	var err error
	if t.A, err = r.ReadUint32(); err != nil {
		return err
	}
	if t.B, err = r.ReadBytes(); err != nil {
		return err
	}
	n, err := r.ReadSeqHeader()
	if err != nil {
		return err
	}
	t.C = make([]string, n)
	for i := range t.C {
		if t.C[i], err = r.ReadString(); err != nil {
			return err
		}
	}
	return nil
}

func TestRoundTrip(t *testing.T) {
	orig := tupleFixture{A: 7, B: []byte("hello"), C: []string{"a", "bb", "ccc"}}
	enc := Encode(orig)

	var got tupleFixture
	require.NoError(t, Decode(enc, &got))
	require.Equal(t, orig, got)
}

func TestRoundTripEmpty(t *testing.T) {
	orig := tupleFixture{}
	enc := Encode(orig)
	var got tupleFixture
	require.NoError(t, Decode(enc, &got))
	require.Equal(t, orig.A, got.A)
	require.Empty(t, got.B)
	require.Empty(t, got.C)
}

func TestULEB128RoundTrip(t *testing.T) {
	vals := []uint64{0, 1, 127, 128, 300, 1 << 20, 1 << 40, ^uint64(0)}
	for _, v := range vals {
		w := NewWriter()
		w.WriteULEB128(v)
		r := NewReader(w.Bytes())
		got, err := r.ReadULEB128()
		require.NoError(t, err)
		require.Equal(t, v, got)
	}
}

func TestTruncatedInputFails(t *testing.T) {
	w := NewWriter()
	w.WriteBytes([]byte("hello world"))
	truncated := w.Bytes()[:len(w.Bytes())-2]
	r := NewReader(truncated)
	_, err := r.ReadBytes()
	require.ErrorIs(t, err, ErrTruncated)
}

func TestVariantTagRoundTrip(t *testing.T) {
	w := NewWriter()
	inner := NewWriter()
	inner.WriteString("payload")
	w.WriteVariant(42, inner.Bytes())

	r := NewReader(w.Bytes())
	tag, err := r.ReadVariantTag()
	require.NoError(t, err)
	require.EqualValues(t, 42, tag)
	s, err := r.ReadString()
	require.NoError(t, err)
	require.Equal(t, "payload", s)
}

func TestHashStability(t *testing.T) {
	orig := tupleFixture{A: 1, B: []byte("x"), C: []string{"y"}}
	h1 := ID(orig)
	h2 := ID(orig)
	require.Equal(t, h1, h2)
}

func TestKeyedHashDomainSeparated(t *testing.T) {
	data := []byte("group-id-bytes")
	a := KeyedHash("group-messages", data)
	b := KeyedHash("group-management", data)
	require.NotEqual(t, a, b)
}
