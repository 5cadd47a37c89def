// Package snapshot exports and restores the complete store. A snapshot is
// the sorted list of every key-value pair with a BLAKE3 checksum, encoded as
// a flatbuffer and compressed with zstd.
package snapshot

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"sort"

	flatbuffers "github.com/google/flatbuffers/go"
	"github.com/klauspost/compress/zstd"
	"github.com/zeebo/blake3"

	"CredTree/internal/storage"
	"CredTree/internal/types"
)

// version is the current snapshot format version.
const version = 1

var (
	// ErrChecksum is returned when the stored checksum does not match the content.
	ErrChecksum = errors.New("snapshot checksum mismatch")

	// ErrNotEmpty is returned when restoring into a store that already holds data.
	ErrNotEmpty = errors.New("store is not empty")

	// ErrMalformed is returned for undecodable snapshots.
	ErrMalformed = errors.New("malformed snapshot")
)

// Info describes a snapshot.
type Info struct {
	Version  uint32   // Version is the format version
	Sequence uint64   // Sequence is the counter value at export
	Pairs    int      // Pairs is the number of stored key-value pairs
	Checksum [32]byte // Checksum is the BLAKE3 checksum over the content
}

// pair is one stored key-value pair.
type pair struct {
	key   []byte
	value []byte
}

// Create exports every pair in db. seq is recorded for information.
func Create(db *storage.Storage, seq uint64) ([]byte, *Info, error) {
	pairs, err := collect(db)
	if err != nil {
		return nil, nil, fmt.Errorf("collect pairs:\n%w", err)
	}

	sortPairs(pairs)
	sum := checksum(version, seq, pairs)

	compressed, err := compress(build(seq, pairs, sum))
	if err != nil {
		return nil, nil, err
	}

	return compressed, &Info{Version: version, Sequence: seq, Pairs: len(pairs), Checksum: sum}, nil
}

// Inspect decodes and verifies a snapshot without writing it anywhere.
func Inspect(data []byte) (*Info, error) {
	info, _, err := decode(data)
	return info, err
}

// Restore verifies a snapshot and writes all its pairs into db atomically.
// db must be empty.
func Restore(db *storage.Storage, data []byte) (*Info, error) {
	empty, err := isEmpty(db)
	if err != nil {
		return nil, fmt.Errorf("check store:\n%w", err)
	}

	if !empty {
		return nil, ErrNotEmpty
	}

	info, pairs, err := decode(data)
	if err != nil {
		return nil, err
	}

	kvs := make([]storage.KeyValue, len(pairs))
	for i, p := range pairs {
		kvs[i] = storage.KeyValue{Key: p.key, Value: p.value}
	}

	if err := db.SetBatch(kvs); err != nil {
		return nil, fmt.Errorf("write pairs:\n%w", err)
	}

	return info, nil
}

// WriteFile exports db to path.
func WriteFile(db *storage.Storage, seq uint64, path string) (*Info, error) {
	data, info, err := Create(db, seq)
	if err != nil {
		return nil, err
	}

	if err := os.WriteFile(path, data, 0o600); err != nil {
		return nil, fmt.Errorf("write snapshot:\n%w", err)
	}

	return info, nil
}

// RestoreFile restores db from the snapshot at path.
func RestoreFile(db *storage.Storage, path string) (*Info, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read snapshot:\n%w", err)
	}

	return Restore(db, data)
}

// collect copies every pair out of the iterator.
func collect(db *storage.Storage) ([]pair, error) {
	var pairs []pair

	err := db.Iterate(func(key, value []byte) error {
		pairs = append(pairs, pair{
			key:   bytes.Clone(key),
			value: bytes.Clone(value),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	return pairs, nil
}

// errStop ends an iteration early.
var errStop = errors.New("stop")

func isEmpty(db *storage.Storage) (bool, error) {
	empty := true

	err := db.Iterate(func(_, _ []byte) error {
		empty = false
		return errStop
	})
	if err != nil && !errors.Is(err, errStop) {
		return false, err
	}

	return empty, nil
}

func sortPairs(pairs []pair) {
	sort.Slice(pairs, func(i, j int) bool {
		return bytes.Compare(pairs[i].key, pairs[j].key) < 0
	})
}

// checksum hashes version, sequence and the sorted pairs with length prefixes.
func checksum(ver uint32, seq uint64, pairs []pair) [32]byte {
	h := blake3.New()

	var buf [8]byte
	binary.BigEndian.PutUint32(buf[:4], ver)
	h.Write(buf[:4])

	binary.BigEndian.PutUint64(buf[:], seq)
	h.Write(buf[:])

	for _, p := range pairs {
		binary.BigEndian.PutUint32(buf[:4], uint32(len(p.key)))
		h.Write(buf[:4])
		h.Write(p.key)

		binary.BigEndian.PutUint32(buf[:4], uint32(len(p.value)))
		h.Write(buf[:4])
		h.Write(p.value)
	}

	var sum [32]byte
	h.Sum(sum[:0])

	return sum
}

// build encodes the snapshot flatbuffer.
func build(seq uint64, pairs []pair, sum [32]byte) []byte {
	b := flatbuffers.NewBuilder(1024)

	offsets := make([]flatbuffers.UOffsetT, len(pairs))
	for i, p := range pairs {
		k := b.CreateByteVector(p.key)
		v := b.CreateByteVector(p.value)

		types.SnapshotPairStart(b)
		types.SnapshotPairAddKey(b, k)
		types.SnapshotPairAddValue(b, v)
		offsets[i] = types.SnapshotPairEnd(b)
	}

	types.SnapshotStartPairsVector(b, len(offsets))
	for i := len(offsets) - 1; i >= 0; i-- {
		b.PrependUOffsetT(offsets[i])
	}
	vec := b.EndVector(len(offsets))

	sumOff := b.CreateByteVector(sum[:])

	types.SnapshotStart(b)
	types.SnapshotAddVersion(b, version)
	types.SnapshotAddSequence(b, seq)
	types.SnapshotAddPairs(b, vec)
	types.SnapshotAddChecksum(b, sumOff)
	b.Finish(types.SnapshotEnd(b))

	return b.FinishedBytes()
}

// decode decompresses, parses and verifies a snapshot.
func decode(data []byte) (info *Info, pairs []pair, err error) {
	raw, err := decompress(data)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	if len(raw) < 8 {
		return nil, nil, fmt.Errorf("%w: %d bytes", ErrMalformed, len(raw))
	}

	// Malformed offsets make the flatbuffers accessors panic.
	defer func() {
		if r := recover(); r != nil {
			info, pairs, err = nil, nil, fmt.Errorf("%w: %v", ErrMalformed, r)
		}
	}()

	fb := types.GetRootAsSnapshot(raw, 0)

	if fb.Version() != version {
		return nil, nil, fmt.Errorf("%w: unsupported version %d", ErrMalformed, fb.Version())
	}

	stored := fb.ChecksumBytes()
	if len(stored) != 32 {
		return nil, nil, fmt.Errorf("%w: checksum has %d bytes", ErrMalformed, len(stored))
	}

	n := fb.PairsLength()
	pairs = make([]pair, n)

	var p types.SnapshotPair
	for i := range n {
		if !fb.Pairs(&p, i) {
			return nil, nil, fmt.Errorf("%w: read pair %d", ErrMalformed, i)
		}

		pairs[i] = pair{key: bytes.Clone(p.KeyBytes()), value: bytes.Clone(p.ValueBytes())}
	}

	sortPairs(pairs)
	sum := checksum(fb.Version(), fb.Sequence(), pairs)

	if !bytes.Equal(sum[:], stored) {
		return nil, nil, ErrChecksum
	}

	return &Info{Version: fb.Version(), Sequence: fb.Sequence(), Pairs: n, Checksum: sum}, pairs, nil
}

// compress compresses data with zstd.
func compress(data []byte) ([]byte, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("create encoder:\n%w", err)
	}
	defer enc.Close()

	return enc.EncodeAll(data, nil), nil
}

// decompress reverses compress.
func decompress(data []byte) ([]byte, error) {
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("create decoder:\n%w", err)
	}
	defer dec.Close()

	return dec.DecodeAll(data, nil)
}
