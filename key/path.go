package key

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
)

// DefaultFanout is the number of hex digest characters used for the fanout
// directory when a caller passes 0. Two characters bound a flat keyspace to
// 256 subdirectories.
const DefaultFanout = 2

// EscapeSegment percent-escapes a segment so that path separators inside a
// segment cannot collide with segment boundaries.
func EscapeSegment(seg string) string { return url.PathEscape(seg) }

// UnescapeSegment reverses EscapeSegment.
func UnescapeSegment(s string) (string, error) { return url.PathUnescape(s) }

// Join encodes a key as a flat storage member: escaped segments joined by
// sep. The encoding is collision-resistant because sep cannot appear inside
// an escaped segment.
func Join(k Key, sep string) string {
	parts := make([]string, len(k.segs))
	for i, seg := range k.segs {
		parts[i] = EscapeSegment(seg)
	}
	return strings.Join(parts, sep)
}

// Split reverses Join.
func Split(s, sep string) (Key, error) {
	raw := strings.Split(s, sep)
	segs := make([]string, len(raw))
	for i, r := range raw {
		seg, err := UnescapeSegment(r)
		if err != nil {
			return Key{}, &ValidationError{Segment: r, Reason: "not a valid escaped segment"}
		}
		if err := CheckSegment(seg); err != nil {
			return Key{}, err
		}
		segs[i] = seg
	}
	if len(segs) == 0 {
		return Key{}, &ValidationError{Reason: "empty member"}
	}
	return Key{segs: segs}, nil
}

// Path maps a key to a location under root. The leading segment is fanned
// out under a directory named by a prefix of its SHA-256 digest so flat
// keyspaces do not pile up in one directory; the remaining segments nest as
// escaped path elements. An empty key resolves to root itself. The resolved
// path is verified to still be a descendant of root; anything else is
// rejected even though segment validation upstream should already make it
// impossible.
func Path(root string, k Key, fanout int) (string, error) {
	if k.Len() == 0 {
		return filepath.Clean(root), nil
	}
	parts := make([]string, 0, k.Len()+2)
	parts = append(parts, root, FanoutDir(k.segs[0], fanout))
	for _, seg := range k.segs {
		parts = append(parts, EscapeSegment(seg))
	}
	p := filepath.Join(parts...)
	if err := ensureUnder(root, p); err != nil {
		return "", err
	}
	return p, nil
}

// FanoutDir returns the fanout directory name for a leading segment.
func FanoutDir(seg string, fanout int) string {
	if fanout <= 0 {
		fanout = DefaultFanout
	}
	if fanout > 2*sha256.Size {
		fanout = 2 * sha256.Size
	}
	sum := sha256.Sum256([]byte(seg))
	return hex.EncodeToString(sum[:])[:fanout]
}

func ensureUnder(root, p string) error {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return fmt.Errorf("key: resolve root %q: %w", root, err)
	}
	absP, err := filepath.Abs(p)
	if err != nil {
		return fmt.Errorf("key: resolve path %q: %w", p, err)
	}
	rel, err := filepath.Rel(absRoot, absP)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return &ValidationError{Reason: fmt.Sprintf("path %q escapes root %q", p, root)}
	}
	return nil
}
