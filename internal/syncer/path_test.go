package syncer_test

import (
	"testing"

	"docsync/internal/syncer"
)

func TestValidatePath(t *testing.T) {
	limits := syncer.DefaultPathLimits()

	t.Run("accepts and canonicalizes", func(t *testing.T) {
		tests := []struct {
			name string
			in   string
			want string
		}{
			{"plain relative path", "notes/meeting.md", "notes/meeting.md"},
			{"single segment", "readme.txt", "readme.txt"},
			{"dot segments dropped", "a/./b", "a/b"},
			{"empty segments collapsed", "docs//file.txt", "docs/file.txt"},
			{"outer whitespace trimmed", "  notes/a.md  ", "notes/a.md"},
			{"percent-encoded space decoded", "my%20notes/a.md", "my notes/a.md"},
			{"unicode kept", "ノート/メモ.md", "ノート/メモ.md"},
			{"trailing slash dropped", "notes/", "notes"},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				got, err := syncer.ValidatePath(tt.in, limits)
				if err != nil {
					t.Fatalf("ValidatePath(%q) error = %v", tt.in, err)
				}
				if got != tt.want {
					t.Errorf("ValidatePath(%q) = %q, want %q", tt.in, got, tt.want)
				}
			})
		}
	})

	t.Run("rejects", func(t *testing.T) {
		tests := []struct {
			name string
			in   string
		}{
			{"empty", ""},
			{"whitespace only", "   "},
			{"only dot segments", "././."},
			{"absolute slash", "/etc/passwd"},
			{"absolute backslash", `\windows`},
			{"drive letter", `C:\docs\a.txt`},
			{"drive letter forward", "c:/docs/a.txt"},
			{"backslash separator", `docs\file.txt`},
			{"parent traversal", "../secrets.txt"},
			{"embedded traversal", "a/../b"},
			{"encoded traversal", "%2e%2e%2fsecrets.txt"},
			{"nested percent-encoding", "a%2520b.txt"},
			{"decodes to a bare percent", "a%25b.txt"},
			{"nul byte", "a\x00b"},
			{"control character", "a\x01b"},
			{"delete character", "a\x7fb"},
			{"reserved name bare", "docs/CON"},
			{"reserved name with extension", "docs/con.txt"},
			{"reserved name lpt", "LPT1.log"},
			{"trailing dot", "docs/name."},
			{"trailing space segment", "docs/name /file"},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				_, err := syncer.ValidatePath(tt.in, limits)
				if !syncer.IsKind(err, syncer.KindInvalidPath) {
					t.Errorf("ValidatePath(%q) error = %v, want invalid_path", tt.in, err)
				}
			})
		}
	})

	t.Run("length limits", func(t *testing.T) {
		long := make([]rune, 1001)
		for i := range long {
			long[i] = 'a'
		}
		if _, err := syncer.ValidatePath(string(long), limits); !syncer.IsKind(err, syncer.KindInvalidPath) {
			t.Errorf("over-long path error = %v, want invalid_path", err)
		}

		seg := make([]rune, 256)
		for i := range seg {
			seg[i] = 'b'
		}
		if _, err := syncer.ValidatePath("d/"+string(seg), limits); !syncer.IsKind(err, syncer.KindInvalidPath) {
			t.Errorf("over-long segment error = %v, want invalid_path", err)
		}

		okSeg := make([]rune, 255)
		for i := range okSeg {
			okSeg[i] = 'c'
		}
		if _, err := syncer.ValidatePath("d/"+string(okSeg), limits); err != nil {
			t.Errorf("255-char segment rejected: %v", err)
		}
	})

	t.Run("idempotent", func(t *testing.T) {
		inputs := []string{
			"notes/meeting.md",
			"a/./b",
			"my%20notes/a.md",
			"docs//x.txt",
			"  spaced/path.md ",
			"ノート/メモ.md",
		}
		for _, in := range inputs {
			once, err := syncer.ValidatePath(in, limits)
			if err != nil {
				t.Fatalf("ValidatePath(%q) error = %v", in, err)
			}
			twice, err := syncer.ValidatePath(once, limits)
			if err != nil {
				t.Fatalf("ValidatePath(%q) second pass error = %v", once, err)
			}
			if once != twice {
				t.Errorf("not idempotent: %q -> %q -> %q", in, once, twice)
			}
		}
	})

	t.Run("nfc normalization unifies equivalent forms", func(t *testing.T) {
		composed := "caf\u00e9.md"
		decomposed := "cafe\u0301.md"
		a, err := syncer.ValidatePath(composed, limits)
		if err != nil {
			t.Fatalf("composed form error = %v", err)
		}
		b, err := syncer.ValidatePath(decomposed, limits)
		if err != nil {
			t.Fatalf("decomposed form error = %v", err)
		}
		if a != b {
			t.Errorf("equivalent forms canonicalize differently: %q vs %q", a, b)
		}
	})
}
