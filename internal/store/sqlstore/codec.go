package sqlstore

import (
	"bytes"
	"encoding/gob"

	"github.com/newffy/nessie/internal/nesserr"
)

// encodeRow and decodeRow serialize records for the payload column of
// each table. This is deliberately not the deterministic wire codec
// from internal/codec: that format exists to make hash(entry) stable
// and has no general decoder, while rows round-trip here purely for
// this store's own storage, so the standard library's gob encoding is
// the right tool (see DESIGN.md).
func encodeRow(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, nesserr.Wrap(nesserr.Internal, err, "sqlstore: encoding row")
	}
	return buf.Bytes(), nil
}

func decodeRow(data []byte, v interface{}) error {
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(v); err != nil {
		return nesserr.Wrap(nesserr.Internal, err, "sqlstore: decoding row")
	}
	return nil
}
