package signals

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"github.com/Netflix/dispatch-sub003/internal/database"
)

// Fingerprint returns the payload's own "fingerprint" field when the
// detection source supplies one. Otherwise it hashes the canonical form
// of the payload: re-encoded with object keys sorted and no
// insignificant whitespace, so two payloads that differ only in key
// order or formatting produce the same fingerprint.
func Fingerprint(payload database.JSONB) string {
	if v, ok := payload["fingerprint"]; ok {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	canonical := canonicalize(map[string]interface{}(payload))
	encoded, err := json.Marshal(canonical)
	if err != nil {
		encoded = []byte("{}")
	}
	sum := sha256.Sum256(encoded)
	return hex.EncodeToString(sum[:])
}

// canonicalize rebuilds the value so json.Marshal emits a deterministic
// encoding. Maps already marshal key-sorted; this recurses so nested
// structures are normalized too, and numbers pass through as decoded.
func canonicalize(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, val := range t {
			out[k] = canonicalize(val)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, val := range t {
			out[i] = canonicalize(val)
		}
		return out
	default:
		return v
	}
}
