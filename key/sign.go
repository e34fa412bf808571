package key

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Signer appends a fixed-length hex HMAC-SHA256 digest to every segment of a
// key, producing a different but order-preserving key. Signing does not
// detect already-signed input; callers own the sign/unsign pairing.
type Signer struct {
	secret    []byte
	digestLen int
}

// NewSigner builds a Signer. digestLen is the number of hex characters kept
// from each segment digest, 1..64.
func NewSigner(secret []byte, digestLen int) (Signer, error) {
	if digestLen <= 0 || digestLen > 2*sha256.Size {
		return Signer{}, &ValidationError{Reason: fmt.Sprintf("digest length %d out of range [1,%d]", digestLen, 2*sha256.Size)}
	}
	s := make([]byte, len(secret))
	copy(s, secret)
	return Signer{secret: s, digestLen: digestLen}, nil
}

// DigestLen returns the configured digest length in hex characters.
func (s Signer) DigestLen() int { return s.digestLen }

// Sign returns a key with every segment suffixed by its digest.
func (s Signer) Sign(k Key) Key {
	segs := make([]string, len(k.segs))
	for i, seg := range k.segs {
		segs[i] = seg + s.digest(seg)
	}
	return Key{segs: segs}
}

// Unsign strips DigestLen trailing characters from every segment. The digest
// is not verified: unsigning a key that was not signed with the same length
// silently yields the wrong segments. That trade-off is the caller's; use
// Verify when in doubt. A segment too short to carry a digest is an error.
func (s Signer) Unsign(k Key) (Key, error) {
	segs := make([]string, len(k.segs))
	for i, seg := range k.segs {
		if len(seg) <= s.digestLen {
			return Key{}, &ValidationError{Segment: seg, Reason: "segment shorter than signature digest"}
		}
		segs[i] = seg[:len(seg)-s.digestLen]
	}
	return Key{segs: segs}, nil
}

// Verify reports whether every segment of k carries a valid digest suffix.
func (s Signer) Verify(k Key) bool {
	for _, seg := range k.segs {
		if len(seg) <= s.digestLen {
			return false
		}
		base := seg[:len(seg)-s.digestLen]
		if !hmac.Equal([]byte(seg[len(seg)-s.digestLen:]), []byte(s.digest(base))) {
			return false
		}
	}
	return true
}

func (s Signer) digest(seg string) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(seg))
	return hex.EncodeToString(mac.Sum(nil))[:s.digestLen]
}
