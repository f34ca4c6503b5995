package syncer_test

import (
	"encoding/json"
	"reflect"
	"testing"

	"docsync/internal/syncer"
)

func TestSanitizeSidecar(t *testing.T) {
	const maxBytes = 1 << 20

	t.Run("passes clean sidecar through", func(t *testing.T) {
		in := map[string]any{
			"title": "Meeting notes",
			"tags":  []any{"work", "q3"},
			"stats": map[string]any{"words": float64(120)},
		}
		clean, serialized, err := syncer.SanitizeSidecar(in, maxBytes)
		if err != nil {
			t.Fatalf("SanitizeSidecar() error = %v", err)
		}
		if !reflect.DeepEqual(clean, in) {
			t.Errorf("clean = %#v, want %#v", clean, in)
		}
		var roundtrip map[string]any
		if err := json.Unmarshal(serialized, &roundtrip); err != nil {
			t.Fatalf("serialized form not valid JSON: %v", err)
		}
	})

	t.Run("strips pollution keys at every depth", func(t *testing.T) {
		in := map[string]any{
			"__proto__":   map[string]any{"admin": true},
			"constructor": "x",
			"title":       "ok",
			"nested": map[string]any{
				"prototype": "bad",
				"keep":      "yes",
				"deeper": []any{
					map[string]any{"__proto__": "bad", "fine": float64(1)},
				},
			},
		}
		clean, _, err := syncer.SanitizeSidecar(in, maxBytes)
		if err != nil {
			t.Fatalf("SanitizeSidecar() error = %v", err)
		}

		want := map[string]any{
			"title": "ok",
			"nested": map[string]any{
				"keep": "yes",
				"deeper": []any{
					map[string]any{"fine": float64(1)},
				},
			},
		}
		if !reflect.DeepEqual(clean, want) {
			t.Errorf("clean = %#v, want %#v", clean, want)
		}
	})

	t.Run("does not mutate the input", func(t *testing.T) {
		in := map[string]any{
			"__proto__": "bad",
			"keep":      "yes",
		}
		if _, _, err := syncer.SanitizeSidecar(in, maxBytes); err != nil {
			t.Fatalf("SanitizeSidecar() error = %v", err)
		}
		if _, ok := in["__proto__"]; !ok {
			t.Error("input map was mutated")
		}
	})

	t.Run("idempotent", func(t *testing.T) {
		in := map[string]any{
			"__proto__": "bad",
			"a":         map[string]any{"constructor": "bad", "b": "c"},
		}
		once, _, err := syncer.SanitizeSidecar(in, maxBytes)
		if err != nil {
			t.Fatalf("first pass error = %v", err)
		}
		twice, _, err := syncer.SanitizeSidecar(once, maxBytes)
		if err != nil {
			t.Fatalf("second pass error = %v", err)
		}
		if !reflect.DeepEqual(once, twice) {
			t.Errorf("not idempotent: %#v vs %#v", once, twice)
		}
	})

	t.Run("rejects non-object sidecars", func(t *testing.T) {
		for _, in := range []any{"text", float64(3), []any{"a"}, nil} {
			if _, _, err := syncer.SanitizeSidecar(in, maxBytes); !syncer.IsKind(err, syncer.KindInvalidSidecar) {
				t.Errorf("SanitizeSidecar(%#v) error = %v, want invalid_sidecar", in, err)
			}
		}
	})

	t.Run("rejects oversized serialization", func(t *testing.T) {
		in := map[string]any{"note": string(make([]byte, 100))}
		if _, _, err := syncer.SanitizeSidecar(in, 50); !syncer.IsKind(err, syncer.KindInvalidSidecar) {
			t.Errorf("error = %v, want invalid_sidecar", err)
		}
	})
}
