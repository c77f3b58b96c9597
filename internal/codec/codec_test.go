package codec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundTripScalars(t *testing.T) {
	w := NewWriter()
	w.FieldString(1, "hello")
	w.FieldUint64(2, 42)
	w.FieldInt64(3, -7)
	w.FieldRepeated(4, [][]byte{[]byte("a"), []byte("b")})

	fields, err := ReadAll(w.Bytes())
	require.NoError(t, err)
	require.Len(t, fields, 5)

	assert.Equal(t, 1, fields[0].Num)
	assert.Equal(t, "hello", string(fields[0].Payload))

	u, err := DecodeUint64(fields[1].Payload)
	require.NoError(t, err)
	assert.Equal(t, uint64(42), u)

	i, err := DecodeInt64(fields[2].Payload)
	require.NoError(t, err)
	assert.Equal(t, int64(-7), i)

	assert.Equal(t, 4, fields[3].Num)
	assert.Equal(t, "a", string(fields[3].Payload))
}

func TestEncodingIsDeterministic(t *testing.T) {
	build := func() []byte {
		w := NewWriter()
		w.FieldString(1, "x")
		w.FieldUint64(2, 7)
		return w.Bytes()
	}
	assert.Equal(t, build(), build())
}

func TestZeroValuedFieldsAreOmitted(t *testing.T) {
	w := NewWriter()
	w.FieldString(1, "")
	w.FieldUint64(2, 0)
	w.FieldInt64(3, 0)
	assert.Empty(t, w.Bytes())
}
