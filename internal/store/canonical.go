package store

import (
	"crypto/sha256"
	"encoding/json"

	"github.com/ariarun/aria/pkg/types"
)

// canonicalizePayload re-serializes a JSON payload with sorted object keys
// and no insignificant whitespace. Go's encoding/json already sorts
// map[string]any keys and emits the shortest round-tripping float
// representation, so parsing into interface{} and re-marshaling is
// sufficient canonicalization.
func canonicalizePayload(raw []byte) (json.RawMessage, error) {
	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	out, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return json.RawMessage(out), nil
}

// recordHash computes the chain hash for one record: SHA-256 over a
// canonical serialization of session id, sequence, kind, scrubbed payload,
// and the previous record's hash. The timestamp is stored but deliberately
// excluded from the hashed fields.
func recordHash(sessionID string, seq int, kind types.EventKind, payload json.RawMessage, prevHash [32]byte) ([32]byte, error) {
	fields := map[string]interface{}{
		"session_id": sessionID,
		"seq":        seq,
		"kind":       string(kind),
		"payload":    payload,
		"prev_hash":  prevHash[:],
	}
	raw, err := json.Marshal(fields)
	if err != nil {
		return [32]byte{}, err
	}
	return sha256.Sum256(raw), nil
}
