package ledger

import (
	"fmt"

	flatbuffers "github.com/google/flatbuffers/go"

	"CredTree/internal/types"
)

// minRecordSize is the smallest buffer that can hold a flatbuffers root.
const minRecordSize = 8

// encodeProof serializes a credential proof as a CredentialProof table.
func encodeProof(p *CredentialProof) []byte {
	builder := flatbuffers.NewBuilder(128 + len(p.Signers)*types.Size)

	subjectVec := builder.CreateByteVector(p.Subject[:])
	signersVec := builder.CreateByteVector(types.JoinIdentities(p.Signers))

	var prevVec flatbuffers.UOffsetT
	if !p.PreviousDigest.IsZero() {
		prevVec = builder.CreateByteVector(p.PreviousDigest[:])
	}

	var witnessVec, rootVec flatbuffers.UOffsetT
	if len(p.Witnesses) > 0 {
		witnessVec = builder.CreateByteVector(types.JoinIdentities(p.Witnesses))
	}
	if !p.EvidenceRoot.IsZero() {
		rootVec = builder.CreateByteVector(p.EvidenceRoot[:])
	}

	types.CredentialProofStart(builder)
	types.CredentialProofAddSubject(builder, subjectVec)
	types.CredentialProofAddSigners(builder, signersVec)
	types.CredentialProofAddSubjectConfirmed(builder, p.SubjectConfirmed)
	types.CredentialProofAddInsertedSequence(builder, p.InsertedSequence)
	if prevVec != 0 {
		types.CredentialProofAddPreviousDigest(builder, prevVec)
	}
	if witnessVec != 0 {
		types.CredentialProofAddWitnesses(builder, witnessVec)
	}
	if rootVec != 0 {
		types.CredentialProofAddEvidenceRoot(builder, rootVec)
	}
	builder.Finish(types.CredentialProofEnd(builder))

	return builder.FinishedBytes()
}

// decodeProof parses a CredentialProof table stored under digest.
func decodeProof(digest types.Digest, data []byte) (*CredentialProof, error) {
	if len(data) < minRecordSize {
		return nil, fmt.Errorf("proof record too short: %d bytes", len(data))
	}

	fb := types.GetRootAsCredentialProof(data, 0)

	subject, ok := types.IdentityFromBytes(fb.SubjectBytes())
	if !ok {
		return nil, fmt.Errorf("proof record has malformed subject")
	}

	p := &CredentialProof{
		Digest:           digest,
		Subject:          subject,
		Signers:          types.SplitIdentities(fb.SignersBytes()),
		SubjectConfirmed: fb.SubjectConfirmed(),
		InsertedSequence: fb.InsertedSequence(),
	}

	if prev, ok := types.DigestFromBytes(fb.PreviousDigestBytes()); ok {
		p.PreviousDigest = prev
	}

	if fb.WitnessesLength() > 0 {
		p.Witnesses = types.SplitIdentities(fb.WitnessesBytes())
	}

	if root, ok := types.DigestFromBytes(fb.EvidenceRootBytes()); ok {
		p.EvidenceRoot = root
	}

	return p, nil
}

// encodeRevocation serializes a revocation record.
func encodeRevocation(r *RevocationRecord) []byte {
	builder := flatbuffers.NewBuilder(160)

	issuerVec := builder.CreateByteVector(r.Issuer[:])
	subjectVec := builder.CreateByteVector(r.Subject[:])
	reasonVec := builder.CreateByteVector(r.Reason[:])

	types.RevocationRecordStart(builder)
	types.RevocationRecordAddIssuer(builder, issuerVec)
	types.RevocationRecordAddSubject(builder, subjectVec)
	types.RevocationRecordAddReason(builder, reasonVec)
	types.RevocationRecordAddRevokedSequence(builder, r.RevokedSequence)
	builder.Finish(types.RevocationRecordEnd(builder))

	return builder.FinishedBytes()
}

// decodeRevocation parses a revocation record stored under digest.
func decodeRevocation(digest types.Digest, data []byte) (*RevocationRecord, error) {
	if len(data) < minRecordSize {
		return nil, fmt.Errorf("revocation record too short: %d bytes", len(data))
	}

	fb := types.GetRootAsRevocationRecord(data, 0)

	r := &RevocationRecord{
		Digest:          digest,
		RevokedSequence: fb.RevokedSequence(),
	}
	r.Issuer, _ = types.IdentityFromBytes(fb.IssuerBytes())
	r.Subject, _ = types.IdentityFromBytes(fb.SubjectBytes())
	r.Reason, _ = types.DigestFromBytes(fb.ReasonBytes())

	return r, nil
}

// encodeIndex serializes a subject index.
func encodeIndex(idx subjectIndex) []byte {
	builder := flatbuffers.NewBuilder(96)

	var lastVec, outVec flatbuffers.UOffsetT
	if !idx.lastConfirmed.IsZero() {
		lastVec = builder.CreateByteVector(idx.lastConfirmed[:])
	}
	if !idx.outstanding.IsZero() {
		outVec = builder.CreateByteVector(idx.outstanding[:])
	}

	types.SubjectIndexStart(builder)
	if lastVec != 0 {
		types.SubjectIndexAddLastConfirmed(builder, lastVec)
	}
	if outVec != 0 {
		types.SubjectIndexAddOutstanding(builder, outVec)
	}
	types.SubjectIndexAddNonce(builder, idx.nonce)
	builder.Finish(types.SubjectIndexEnd(builder))

	return builder.FinishedBytes()
}

// decodeIndex parses a subject index. Malformed data yields an empty index.
func decodeIndex(data []byte) subjectIndex {
	if len(data) < minRecordSize {
		return subjectIndex{}
	}

	fb := types.GetRootAsSubjectIndex(data, 0)

	idx := subjectIndex{nonce: fb.Nonce()}
	idx.lastConfirmed, _ = types.DigestFromBytes(fb.LastConfirmedBytes())
	idx.outstanding, _ = types.DigestFromBytes(fb.OutstandingBytes())

	return idx
}
