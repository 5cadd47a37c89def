package command

import (
	"fmt"

	flatbuffers "github.com/google/flatbuffers/go"

	"CredTree/internal/types"
)

// Response is the result of one command. Which fields are set depends on the op.
type Response struct {
	Code       Code
	Message    string
	Flag       bool             // Flag carries boolean query results
	Digest     types.Digest     // Digest carries a proof or aggregate
	Digests    []types.Digest   // Digests carries digest lists
	Sequence   uint64           // Sequence is the value drawn for a mutating command
	Number     uint64           // Number carries counts and sizes
	Identities []types.Identity // Identities carries identity lists
}

// Err returns the error carried by the response, nil on success.
func (r *Response) Err() error {
	if r.Code == CodeOK {
		return nil
	}
	return &RemoteError{Code: r.Code, Message: r.Message}
}

// EncodeResponse serializes a response.
func EncodeResponse(r *Response) []byte {
	builder := flatbuffers.NewBuilder(128 + (len(r.Digests)+len(r.Identities))*types.Size)

	var msg, digest, digests, ids flatbuffers.UOffsetT
	if r.Message != "" {
		msg = builder.CreateString(r.Message)
	}
	if !r.Digest.IsZero() {
		digest = builder.CreateByteVector(r.Digest[:])
	}
	if len(r.Digests) > 0 {
		digests = builder.CreateByteVector(types.JoinDigests(r.Digests))
	}
	if len(r.Identities) > 0 {
		ids = builder.CreateByteVector(types.JoinIdentities(r.Identities))
	}

	types.ResponseStart(builder)
	types.ResponseAddCode(builder, uint16(r.Code))
	addVec(builder, types.ResponseAddMessage, msg)
	types.ResponseAddFlag(builder, r.Flag)
	addVec(builder, types.ResponseAddDigest, digest)
	addVec(builder, types.ResponseAddDigests, digests)
	types.ResponseAddSequence(builder, r.Sequence)
	types.ResponseAddNumber(builder, r.Number)
	addVec(builder, types.ResponseAddIdentities, ids)
	builder.Finish(types.ResponseEnd(builder))

	return builder.FinishedBytes()
}

// DecodeResponse parses a response.
func DecodeResponse(data []byte) (r *Response, err error) {
	if len(data) < 8 {
		return nil, fmt.Errorf("response too short: %d bytes", len(data))
	}

	defer func() {
		if rec := recover(); rec != nil {
			r, err = nil, fmt.Errorf("malformed response: %v", rec)
		}
	}()

	fb := types.GetRootAsResponse(data, 0)

	r = &Response{
		Code:       Code(fb.Code()),
		Message:    string(fb.Message()),
		Flag:       fb.Flag(),
		Digests:    types.SplitDigests(fb.DigestsBytes()),
		Sequence:   fb.Sequence(),
		Number:     fb.Number(),
		Identities: types.SplitIdentities(fb.IdentitiesBytes()),
	}
	r.Digest, _ = types.DigestFromBytes(fb.DigestBytes())

	return r, nil
}
