package syncer

import (
	"net/url"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// PathLimits bounds client-supplied document paths.
type PathLimits struct {
	MaxPathChars    int
	MaxSegmentChars int
}

// DefaultPathLimits matches the configuration defaults.
func DefaultPathLimits() PathLimits {
	return PathLimits{MaxPathChars: 1000, MaxSegmentChars: 255}
}

// reservedNames are Windows device names that must never be used as a base
// name, with or without an extension, in any case.
var reservedNames = map[string]struct{}{
	"con": {}, "prn": {}, "aux": {}, "nul": {},
	"com1": {}, "com2": {}, "com3": {}, "com4": {}, "com5": {},
	"com6": {}, "com7": {}, "com8": {}, "com9": {},
	"lpt1": {}, "lpt2": {}, "lpt3": {}, "lpt4": {}, "lpt5": {},
	"lpt6": {}, "lpt7": {}, "lpt8": {}, "lpt9": {},
}

// ValidatePath canonicalizes a client-supplied document path or rejects it
// with an invalid_path error. The canonical form uses forward slashes and is
// the uniqueness key the catalog stores, so the function is deterministic and
// idempotent: ValidatePath(ValidatePath(p)) == ValidatePath(p).
//
// Checks run in a fixed order and the first violation wins: character set and
// length, outer whitespace, one layer of percent-decoding, NFC normalization,
// absolute-path and drive-letter prefixes, traversal segments and backslashes,
// then per-segment length, reserved names, and trailing dot/space.
func ValidatePath(raw string, limits PathLimits) (string, error) {
	if err := checkPathChars(raw); err != nil {
		return "", err
	}
	if len([]rune(raw)) > limits.MaxPathChars {
		return "", Errf(KindInvalidPath, "path exceeds %d characters", limits.MaxPathChars)
	}

	p := strings.TrimSpace(raw)
	if p == "" {
		return "", Errf(KindInvalidPath, "path is empty")
	}

	decoded, err := url.PathUnescape(p)
	if err != nil {
		return "", WrapErr(KindInvalidPath, err, "malformed percent-encoding")
	}
	// The canonical form must survive a second pass unchanged, so a decoded
	// path that decodes differently again, or no longer decodes at all
	// (e.g. "a%25b.txt" leaves a bare "%"), is rejected outright.
	again, err := url.PathUnescape(decoded)
	if err != nil {
		return "", Errf(KindInvalidPath, "percent-encoding decodes to an invalid escape")
	}
	if again != decoded {
		return "", Errf(KindInvalidPath, "nested percent-encoding")
	}
	p = decoded
	if err := checkPathChars(p); err != nil {
		return "", err
	}

	p = norm.NFC.String(p)

	if strings.HasPrefix(p, "/") || strings.HasPrefix(p, "\\") {
		return "", Errf(KindInvalidPath, "absolute paths are not allowed")
	}
	if hasDrivePrefix(p) {
		return "", Errf(KindInvalidPath, "drive-letter paths are not allowed")
	}
	if strings.Contains(p, "\\") {
		return "", Errf(KindInvalidPath, "backslash separators are not allowed")
	}

	// Drop empty and "." segments, then refuse anything that still smells of
	// traversal.
	var segments []string
	for _, seg := range strings.Split(p, "/") {
		if seg == "" || seg == "." {
			continue
		}
		segments = append(segments, seg)
	}
	if len(segments) == 0 {
		return "", Errf(KindInvalidPath, "path is empty")
	}
	if strings.Contains(strings.Join(segments, "/"), "..") {
		return "", Errf(KindInvalidPath, "path traversal is not allowed")
	}

	for _, seg := range segments {
		if len([]rune(seg)) > limits.MaxSegmentChars {
			return "", Errf(KindInvalidPath, "path segment exceeds %d characters", limits.MaxSegmentChars)
		}
		if strings.HasSuffix(seg, ".") || strings.HasSuffix(seg, " ") {
			return "", Errf(KindInvalidPath, "path segment %q ends with a dot or space", seg)
		}
		base := seg
		if i := strings.IndexByte(seg, '.'); i >= 0 {
			base = seg[:i]
		}
		if _, ok := reservedNames[strings.ToLower(base)]; ok {
			return "", Errf(KindInvalidPath, "path segment %q uses a reserved name", seg)
		}
	}

	return strings.Join(segments, "/"), nil
}

// checkPathChars rejects NUL and control characters other than TAB and LF.
func checkPathChars(s string) error {
	for _, r := range s {
		if r == 0 {
			return Errf(KindInvalidPath, "path contains a NUL byte")
		}
		if r < 0x20 && r != '\t' && r != '\n' {
			return Errf(KindInvalidPath, "path contains control characters")
		}
		if r == 0x7f {
			return Errf(KindInvalidPath, "path contains control characters")
		}
	}
	return nil
}

func hasDrivePrefix(p string) bool {
	if len(p) < 2 || p[1] != ':' {
		return false
	}
	c := p[0]
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}
