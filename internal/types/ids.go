package types

import (
	"encoding/hex"
	"fmt"
)

// Size is the byte length of identities and digests.
const Size = 32

// Identity is an opaque 32-byte handle for authorities, subjects and entities.
type Identity [Size]byte

// Digest is a 32-byte content hash supplied by callers.
type Digest [Size]byte

// NullDigest is the all-zero digest used as "no previous credential".
var NullDigest Digest

// IsZero reports whether the identity is the all-zero value.
func (id Identity) IsZero() bool {
	return id == Identity{}
}

// String returns the hex encoding of the identity.
func (id Identity) String() string {
	return hex.EncodeToString(id[:])
}

// Short returns the first 8 bytes in hex, for logging.
func (id Identity) Short() string {
	return hex.EncodeToString(id[:8])
}

// IsZero reports whether the digest is the null digest.
func (d Digest) IsZero() bool {
	return d == NullDigest
}

// String returns the hex encoding of the digest.
func (d Digest) String() string {
	return hex.EncodeToString(d[:])
}

// Short returns the first 8 bytes in hex, for logging.
func (d Digest) Short() string {
	return hex.EncodeToString(d[:8])
}

// ParseIdentity decodes a 64-character hex string.
func ParseIdentity(s string) (Identity, error) {
	var id Identity
	if err := decodeHex32(s, id[:]); err != nil {
		return Identity{}, fmt.Errorf("parse identity:\n%w", err)
	}
	return id, nil
}

// ParseDigest decodes a 64-character hex string.
func ParseDigest(s string) (Digest, error) {
	var d Digest
	if err := decodeHex32(s, d[:]); err != nil {
		return Digest{}, fmt.Errorf("parse digest:\n%w", err)
	}
	return d, nil
}

// IdentityFromBytes copies b into an Identity. Returns false if b is not 32 bytes.
func IdentityFromBytes(b []byte) (Identity, bool) {
	var id Identity
	if len(b) != Size {
		return id, false
	}
	copy(id[:], b)
	return id, true
}

// DigestFromBytes copies b into a Digest. Returns false if b is not 32 bytes.
func DigestFromBytes(b []byte) (Digest, bool) {
	var d Digest
	if len(b) != Size {
		return d, false
	}
	copy(d[:], b)
	return d, true
}

// JoinDigests concatenates digests into one flat byte slice.
func JoinDigests(digests []Digest) []byte {
	buf := make([]byte, len(digests)*Size)
	for i, d := range digests {
		copy(buf[i*Size:], d[:])
	}
	return buf
}

// SplitDigests splits a flat byte slice into digests.
// Trailing bytes that do not form a full digest are ignored.
func SplitDigests(b []byte) []Digest {
	if len(b) < Size {
		return nil
	}

	out := make([]Digest, len(b)/Size)
	for i := range out {
		copy(out[i][:], b[i*Size:(i+1)*Size])
	}
	return out
}

// JoinIdentities concatenates identities into one flat byte slice.
func JoinIdentities(ids []Identity) []byte {
	buf := make([]byte, len(ids)*Size)
	for i, id := range ids {
		copy(buf[i*Size:], id[:])
	}
	return buf
}

// SplitIdentities splits a flat byte slice into identities.
func SplitIdentities(b []byte) []Identity {
	if len(b) < Size {
		return nil
	}

	out := make([]Identity, len(b)/Size)
	for i := range out {
		copy(out[i][:], b[i*Size:(i+1)*Size])
	}
	return out
}

// decodeHex32 decodes a hex string into a 32-byte destination.
func decodeHex32(s string, dst []byte) error {
	if len(s) != 2*Size {
		return fmt.Errorf("expected %d hex characters, got %d", 2*Size, len(s))
	}

	if _, err := hex.Decode(dst, []byte(s)); err != nil {
		return err
	}

	return nil
}
