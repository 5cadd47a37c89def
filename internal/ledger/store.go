package ledger

import (
	"encoding/binary"
	"fmt"

	lru "github.com/hashicorp/golang-lru"

	"CredTree/internal/storage"
	"CredTree/internal/types"
)

// Key prefixes for ledger records. Every key continues with the 32-byte
// entity identity so several ledgers share one Pebble instance.
var (
	prefixProof      = []byte("p:") // p:<entity><digest> -> CredentialProof
	prefixRevocation = []byte("r:") // r:<entity><digest> -> RevocationRecord
	prefixAggregate  = []byte("a:") // a:<entity><subject> -> aggregate digest
	prefixIndex      = []byte("i:") // i:<entity><subject> -> SubjectIndex
	prefixIssued     = []byte("l:") // l:<entity><subject><seq><digest> -> empty
	prefixRevoked    = []byte("x:") // x:<entity><subject><seq><digest> -> empty
	prefixRoster     = []byte("n:") // n:<entity><student> -> {1}
)

// defaultCacheSize is the number of decoded proofs kept per ledger.
const defaultCacheSize = 1024

// store reads and writes one ledger's records.
// Callers serialize access through the ledger lock.
type store struct {
	db     *storage.Storage
	entity types.Identity
	proofs *lru.Cache // proofs caches decoded *CredentialProof by digest
}

// newStore creates a store for the given entity.
func newStore(db *storage.Storage, entity types.Identity, cacheSize int) (*store, error) {
	if cacheSize <= 0 {
		cacheSize = defaultCacheSize
	}

	cache, err := lru.New(cacheSize)
	if err != nil {
		return nil, fmt.Errorf("create proof cache:\n%w", err)
	}

	return &store{db: db, entity: entity, proofs: cache}, nil
}

// proof loads the credential proof for digest.
// The returned value is a private copy the caller may modify.
func (s *store) proof(digest types.Digest) (*CredentialProof, bool, error) {
	if cached, ok := s.proofs.Get(digest); ok {
		return cached.(*CredentialProof).clone(), true, nil
	}

	data, err := s.db.Get(s.key(prefixProof, digest[:]))
	if err != nil {
		return nil, false, fmt.Errorf("read proof:\n%w", err)
	}
	if data == nil {
		return nil, false, nil
	}

	p, err := decodeProof(digest, data)
	if err != nil {
		return nil, false, err
	}

	s.proofs.Add(digest, p.clone())

	return p, true, nil
}

// putProof queues a proof write and refreshes the cache after commit.
func (s *store) putProof(b *storage.Batch, p *CredentialProof) {
	b.Set(s.key(prefixProof, p.Digest[:]), encodeProof(p))
}

// deleteProof queues a proof removal.
func (s *store) deleteProof(b *storage.Batch, digest types.Digest) {
	b.Delete(s.key(prefixProof, digest[:]))
}

// cacheProof records the committed state of a proof.
func (s *store) cacheProof(p *CredentialProof) {
	s.proofs.Add(p.Digest, p.clone())
}

// evictProof drops a proof from the cache.
func (s *store) evictProof(digest types.Digest) {
	s.proofs.Remove(digest)
}

// revocation loads the revocation record for digest.
func (s *store) revocation(digest types.Digest) (*RevocationRecord, bool, error) {
	data, err := s.db.Get(s.key(prefixRevocation, digest[:]))
	if err != nil {
		return nil, false, fmt.Errorf("read revocation:\n%w", err)
	}
	if data == nil {
		return nil, false, nil
	}

	r, err := decodeRevocation(digest, data)
	if err != nil {
		return nil, false, err
	}

	return r, true, nil
}

// putRevocation queues a revocation write and its per-subject list entry.
func (s *store) putRevocation(b *storage.Batch, r *RevocationRecord) {
	b.Set(s.key(prefixRevocation, r.Digest[:]), encodeRevocation(r))
	b.Set(s.listKey(prefixRevoked, r.Subject, r.RevokedSequence, r.Digest), nil)
}

// aggregate loads the cached aggregate proof of a subject.
func (s *store) aggregate(subject types.Identity) (types.Digest, bool, error) {
	data, err := s.db.Get(s.key(prefixAggregate, subject[:]))
	if err != nil {
		return types.Digest{}, false, fmt.Errorf("read aggregate:\n%w", err)
	}

	d, ok := types.DigestFromBytes(data)
	return d, ok, nil
}

// putAggregate queues an aggregate proof write.
func (s *store) putAggregate(b *storage.Batch, subject types.Identity, d types.Digest) {
	b.Set(s.key(prefixAggregate, subject[:]), d[:])
}

// index loads the per-subject sequencing index.
func (s *store) index(subject types.Identity) (subjectIndex, error) {
	data, err := s.db.Get(s.key(prefixIndex, subject[:]))
	if err != nil {
		return subjectIndex{}, fmt.Errorf("read subject index:\n%w", err)
	}
	return decodeIndex(data), nil
}

// putIndex queues an index write.
func (s *store) putIndex(b *storage.Batch, subject types.Identity, idx subjectIndex) {
	b.Set(s.key(prefixIndex, subject[:]), encodeIndex(idx))
}

// addIssued queues the per-subject list entry of a new proof.
func (s *store) addIssued(b *storage.Batch, p *CredentialProof) {
	b.Set(s.listKey(prefixIssued, p.Subject, p.InsertedSequence, p.Digest), nil)
}

// removeIssued queues removal of a proof's list entry.
func (s *store) removeIssued(b *storage.Batch, p *CredentialProof) {
	b.Delete(s.listKey(prefixIssued, p.Subject, p.InsertedSequence, p.Digest))
}

// issued returns the subject's registered digests in insertion order.
func (s *store) issued(subject types.Identity) ([]types.Digest, error) {
	return s.list(prefixIssued, subject)
}

// revoked returns the subject's revoked digests in revocation order.
func (s *store) revoked(subject types.Identity) ([]types.Digest, error) {
	return s.list(prefixRevoked, subject)
}

// list scans a per-subject list and extracts the trailing digests.
func (s *store) list(prefix []byte, subject types.Identity) ([]types.Digest, error) {
	scan := s.key(prefix, subject[:])

	var out []types.Digest

	err := s.db.IteratePrefix(scan, func(key, _ []byte) error {
		if len(key) != len(scan)+8+types.Size {
			return nil
		}

		var d types.Digest
		copy(d[:], key[len(scan)+8:])
		out = append(out, d)

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan subject list:\n%w", err)
	}

	return out, nil
}

// enrolled reports whether a student is on the roster.
func (s *store) enrolled(student types.Identity) (bool, error) {
	return s.db.Has(s.key(prefixRoster, student[:]))
}

// students scans the roster.
func (s *store) students() ([]types.Identity, error) {
	var out []types.Identity

	err := s.db.IteratePrefix(s.key(prefixRoster, nil), func(key, _ []byte) error {
		if id, ok := types.IdentityFromBytes(key[len(key)-types.Size:]); ok {
			out = append(out, id)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan roster:\n%w", err)
	}

	return out, nil
}

// setEnrolled queues a roster change.
func (s *store) setEnrolled(b *storage.Batch, student types.Identity, enrolled bool) {
	key := s.key(prefixRoster, student[:])
	if enrolled {
		b.Set(key, []byte{1})
		return
	}
	b.Delete(key)
}

// key builds prefix + entity + suffix.
func (s *store) key(prefix []byte, suffix []byte) []byte {
	key := make([]byte, 0, len(prefix)+types.Size+len(suffix))
	key = append(key, prefix...)
	key = append(key, s.entity[:]...)
	key = append(key, suffix...)
	return key
}

// listKey builds prefix + entity + subject + big-endian seq + digest.
// The big-endian sequence keeps Pebble's lexicographic order equal to
// insertion order.
func (s *store) listKey(prefix []byte, subject types.Identity, seq uint64, d types.Digest) []byte {
	suffix := make([]byte, types.Size+8+types.Size)
	copy(suffix, subject[:])
	binary.BigEndian.PutUint64(suffix[types.Size:], seq)
	copy(suffix[types.Size+8:], d[:])

	return s.key(prefix, suffix)
}
