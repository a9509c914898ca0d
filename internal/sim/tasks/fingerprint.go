package tasks

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
)

// Fingerprint hashes salt and the JSON form of v. Object keys listed in omit are
// dropped at every depth before hashing, and nulls are skipped, so two values
// differing only in omitted or unset fields share an id. Keys are hashed in
// sorted order.
func Fingerprint(salt int64, v any, omit []string) string {
	raw, err := json.Marshal(v)
	if err != nil {
		raw = []byte("null")
	}
	var generic any
	if err := json.Unmarshal(raw, &generic); err == nil {
		generic = strip(generic, omitSet(omit))
		if b, err := json.Marshal(generic); err == nil {
			raw = b
		}
	}

	h := sha256.New()
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(salt))
	h.Write(buf[:])
	h.Write(raw)
	sum := h.Sum(nil)
	return hex.EncodeToString(sum[:12])
}

func omitSet(omit []string) map[string]struct{} {
	if len(omit) == 0 {
		return nil
	}
	m := make(map[string]struct{}, len(omit))
	for _, k := range omit {
		m[k] = struct{}{}
	}
	return m
}

func strip(v any, omit map[string]struct{}) any {
	switch x := v.(type) {
	case map[string]any:
		for k, child := range x {
			if _, drop := omit[k]; drop || child == nil {
				delete(x, k)
				continue
			}
			x[k] = strip(child, omit)
		}
		return x
	case []any:
		for i := range x {
			x[i] = strip(x[i], omit)
		}
		return x
	default:
		return v
	}
}
