package directory

import (
	"fmt"

	flatbuffers "github.com/google/flatbuffers/go"

	"CredTree/internal/ledger"
	"CredTree/internal/types"
)

// prefixEntity keys descriptors: e:<entity> -> Entity table.
var prefixEntity = []byte("e:")

// entityKey builds e:<entity>.
func entityKey(id types.Identity) []byte {
	key := make([]byte, 0, len(prefixEntity)+types.Size)
	key = append(key, prefixEntity...)
	key = append(key, id[:]...)
	return key
}

// encodeDescriptor serializes a descriptor as an Entity table.
func encodeDescriptor(d Descriptor) []byte {
	builder := flatbuffers.NewBuilder(128 + len(d.Authorities)*types.Size)

	idVec := builder.CreateByteVector(d.ID[:])
	authVec := builder.CreateByteVector(types.JoinIdentities(d.Authorities))

	var parentVec flatbuffers.UOffsetT
	if !d.Parent.IsZero() {
		parentVec = builder.CreateByteVector(d.Parent[:])
	}

	types.EntityStart(builder)
	types.EntityAddId(builder, idVec)
	types.EntityAddKind(builder, byte(d.Kind))
	types.EntityAddAuthorities(builder, authVec)
	types.EntityAddQuorum(builder, uint32(d.Quorum))
	types.EntityAddSequenced(builder, d.Config.Sequenced)
	types.EntityAddRoster(builder, d.Config.Roster)
	types.EntityAddPeriodStart(builder, d.Config.PeriodStart)
	types.EntityAddPeriodEnd(builder, d.Config.PeriodEnd)
	if parentVec != 0 {
		types.EntityAddParent(builder, parentVec)
	}
	builder.Finish(types.EntityEnd(builder))

	return builder.FinishedBytes()
}

// decodeDescriptor parses an Entity table.
func decodeDescriptor(data []byte) (Descriptor, error) {
	if len(data) < 8 {
		return Descriptor{}, fmt.Errorf("entity record too short: %d bytes", len(data))
	}

	fb := types.GetRootAsEntity(data, 0)

	id, ok := types.IdentityFromBytes(fb.IdBytes())
	if !ok {
		return Descriptor{}, fmt.Errorf("entity record has malformed id")
	}

	d := Descriptor{
		ID:          id,
		Kind:        Kind(fb.Kind()),
		Authorities: types.SplitIdentities(fb.AuthoritiesBytes()),
		Quorum:      int(fb.Quorum()),
		Config: ledger.Config{
			Sequenced:   fb.Sequenced(),
			Roster:      fb.Roster(),
			PeriodStart: fb.PeriodStart(),
			PeriodEnd:   fb.PeriodEnd(),
		},
	}
	d.Parent, _ = types.IdentityFromBytes(fb.ParentBytes())

	return d, nil
}
