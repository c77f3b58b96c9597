// Package codec implements the stable, field-numbered binary encoding
// spec.md §6 requires for commit-log, global-log, and ref-log entries:
// deterministic byte order so that hash(serialize(E)) is reproducible
// and re-serializing round-trips byte-equal (spec.md §8 invariant 1).
//
// There is no off-the-shelf schema-driven codec in the example corpus
// (protobuf/flatbuffers toolchains need code generation we cannot run
// here), so this is a small hand-rolled tag-length-value writer/reader:
// each field is written as a varint field number, a varint length, and
// the raw payload. ReadAll returns every field it finds, known or not,
// so a reader can skip the ones it does not recognise.
package codec

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// Writer appends fields in the order they are written. Callers must
// write a record's fields in a fixed order for the output to be
// deterministic across runs of the same logical record.
type Writer struct {
	buf bytes.Buffer
}

// NewWriter returns an empty Writer.
func NewWriter() *Writer { return &Writer{} }

func (w *Writer) putVarint(v uint64) {
	var tmp [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(tmp[:], v)
	w.buf.Write(tmp[:n])
}

// Field writes field number n with raw payload b.
func (w *Writer) Field(n int, b []byte) {
	w.putVarint(uint64(n))
	w.putVarint(uint64(len(b)))
	w.buf.Write(b)
}

// FieldString writes a string-valued field.
func (w *Writer) FieldString(n int, s string) {
	if s == "" {
		return
	}
	w.Field(n, []byte(s))
}

// FieldUint64 writes a uint64-valued field using varint payload encoding.
func (w *Writer) FieldUint64(n int, v uint64) {
	if v == 0 {
		return
	}
	var tmp [binary.MaxVarintLen64]byte
	ln := binary.PutUvarint(tmp[:], v)
	w.Field(n, tmp[:ln])
}

// FieldInt64 writes an int64-valued field (zigzag-encoded so negatives
// stay compact).
func (w *Writer) FieldInt64(n int, v int64) {
	if v == 0 {
		return
	}
	zz := uint64((v << 1) ^ (v >> 63))
	w.FieldUint64(n, zz)
}

// FieldRepeated writes a repeated field as one entry per element, all
// under the same field number, preserving caller order.
func (w *Writer) FieldRepeated(n int, items [][]byte) {
	for _, item := range items {
		w.Field(n, item)
	}
}

// Bytes returns the accumulated encoding.
func (w *Writer) Bytes() []byte { return w.buf.Bytes() }

// RawField is a single decoded (field number, payload) pair, used by
// Reader.ReadAll for callers that want to walk the raw stream (repeated
// fields, unknown fields tolerated on read).
type RawField struct {
	Num     int
	Payload []byte
}

// ReadAll decodes a full Writer-produced byte stream into an ordered
// slice of RawField, preserving duplicates for repeated fields.
func ReadAll(data []byte) ([]RawField, error) {
	r := bytes.NewReader(data)
	var out []RawField
	for r.Len() > 0 {
		n, err := binary.ReadUvarint(r)
		if err != nil {
			return nil, fmt.Errorf("codec: read field number: %w", err)
		}
		ln, err := binary.ReadUvarint(r)
		if err != nil {
			return nil, fmt.Errorf("codec: read field length: %w", err)
		}
		payload := make([]byte, ln)
		if _, err := io.ReadFull(r, payload); err != nil {
			return nil, fmt.Errorf("codec: read field payload: %w", err)
		}
		out = append(out, RawField{Num: int(n), Payload: payload})
	}
	return out, nil
}

// DecodeUint64 decodes a varint-payload field value.
func DecodeUint64(payload []byte) (uint64, error) {
	v, n := binary.Uvarint(payload)
	if n <= 0 {
		return 0, fmt.Errorf("codec: invalid varint payload")
	}
	return v, nil
}

// DecodeInt64 decodes a zigzag varint-payload field value.
func DecodeInt64(payload []byte) (int64, error) {
	u, err := DecodeUint64(payload)
	if err != nil {
		return 0, err
	}
	return int64(u>>1) ^ -int64(u&1), nil
}
