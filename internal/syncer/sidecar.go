package syncer

import (
	"encoding/json"
)

// pollutionKeys are dropped at every nesting depth during sanitization.
var pollutionKeys = map[string]struct{}{
	"__proto__":   {},
	"constructor": {},
	"prototype":   {},
}

// SanitizeSidecar deep-clones a sidecar, stripping prototype-pollution keys at
// every nesting level, and returns the clean value alongside its canonical
// serialization. The serialized form is what the size accounting and the
// sidecar hash are computed over. maxBytes bounds the serialized length.
//
// The input must be a string-keyed mapping; scalars and lists are rejected.
// Idempotent: sanitizing an already-clean sidecar returns an equal value.
func SanitizeSidecar(v any, maxBytes int64) (map[string]any, []byte, error) {
	m, ok := v.(map[string]any)
	if !ok {
		return nil, nil, Errf(KindInvalidSidecar, "sidecar must be an object")
	}

	clean := cleanMap(m)

	serialized, err := json.Marshal(clean)
	if err != nil {
		return nil, nil, WrapErr(KindInvalidSidecar, err, "sidecar is not serializable")
	}
	if int64(len(serialized)) > maxBytes {
		return nil, nil, Errf(KindInvalidSidecar, "sidecar exceeds %d bytes", maxBytes)
	}
	return clean, serialized, nil
}

func cleanMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		if _, bad := pollutionKeys[k]; bad {
			continue
		}
		out[k] = cleanValue(v)
	}
	return out
}

func cleanValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return cleanMap(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = cleanValue(e)
		}
		return out
	default:
		return v
	}
}
