package command

import (
	"errors"
	"fmt"
	"testing"

	"CredTree/internal/composite"
	"CredTree/internal/ledger"
	"CredTree/internal/types"
)

func ident(b byte) types.Identity {
	var id types.Identity
	for i := range id {
		id[i] = b
	}
	return id
}

func dig(b byte) types.Digest {
	var d types.Digest
	for i := range d {
		d[i] = b
	}
	return d
}

// TestEncodeDecode_Spawn exercises every field through a spawn command.
func TestEncodeDecode_Spawn(t *testing.T) {
	in := &Command{
		Op:          OpSpawn,
		Target:      ident(1),
		Identity:    ident(2),
		Authorities: []types.Identity{ident(3), ident(4)},
		Quorum:      2,
		Kind:        1,
		Sequenced:   true,
		Roster:      true,
		PeriodStart: 10,
		PeriodEnd:   20,
	}

	out, err := Decode(Encode(in))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}

	if out.Op != OpSpawn || out.Target != in.Target || out.Identity != in.Identity {
		t.Errorf("header fields lost: %+v", out)
	}
	if len(out.Authorities) != 2 || out.Authorities[1] != ident(4) || out.Quorum != 2 {
		t.Errorf("authority fields lost: %+v", out)
	}
	if out.Kind != 1 || !out.Sequenced || !out.Roster || out.PeriodStart != 10 || out.PeriodEnd != 20 {
		t.Errorf("options lost: %+v", out)
	}
}

func TestEncodeDecode_Verify(t *testing.T) {
	in := &Command{
		Op:       OpVerify,
		Target:   ident(1),
		Subject:  ident(5),
		Digests:  []types.Digest{dig(1), dig(2)},
		Children: []types.Identity{ident(7), ident(8)},
	}

	out, err := Decode(Encode(in))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}

	if len(out.Digests) != 2 || out.Digests[0] != dig(1) || out.Digests[1] != dig(2) {
		t.Errorf("digests lost: %v", out.Digests)
	}
	if len(out.Children) != 2 || out.Children[0] != ident(7) {
		t.Errorf("children lost: %v", out.Children)
	}
	if !out.Digest.IsZero() || !out.Root.IsZero() {
		t.Error("absent fields must decode as zero")
	}
}

// TestDecode_EmptyListIsNil verifies an empty aggregation list means "default".
func TestDecode_EmptyListIsNil(t *testing.T) {
	out, err := Decode(Encode(&Command{Op: OpAggregate, Target: ident(1), Subject: ident(2), Digests: []types.Digest{}}))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}

	if out.Digests != nil {
		t.Errorf("expected nil digests, got %v", out.Digests)
	}
}

func TestDecode_Invalid(t *testing.T) {
	if _, err := Decode([]byte{1, 2}); !errors.Is(err, ErrInvalidCommand) {
		t.Errorf("short buffer: expected ErrInvalidCommand, got %v", err)
	}

	if _, err := Decode(Encode(&Command{Op: 200})); !errors.Is(err, ErrInvalidCommand) {
		t.Errorf("unknown op: expected ErrInvalidCommand, got %v", err)
	}

	garbage := make([]byte, 64)
	for i := range garbage {
		garbage[i] = 0xFF
	}
	if _, err := Decode(garbage); !errors.Is(err, ErrInvalidCommand) {
		t.Errorf("garbage: expected ErrInvalidCommand, got %v", err)
	}
}

func TestResponse_RoundTrip(t *testing.T) {
	in := &Response{
		Code:       CodeNoAggregate,
		Message:    "no aggregate proof for subject",
		Flag:       true,
		Digest:     dig(9),
		Digests:    []types.Digest{dig(1)},
		Sequence:   77,
		Number:     3,
		Identities: []types.Identity{ident(1), ident(2)},
	}

	out, err := DecodeResponse(EncodeResponse(in))
	if err != nil {
		t.Fatalf("DecodeResponse: %v", err)
	}

	if out.Code != in.Code || out.Message != in.Message || !out.Flag || out.Digest != in.Digest {
		t.Errorf("scalar fields lost: %+v", out)
	}
	if out.Sequence != 77 || out.Number != 3 || len(out.Digests) != 1 || len(out.Identities) != 2 {
		t.Errorf("list fields lost: %+v", out)
	}
}

// TestErrorCodes verifies every sentinel survives the wire.
func TestErrorCodes(t *testing.T) {
	for _, c := range codes {
		wrapped := fmt.Errorf("context:\n%w", c.err)

		code := CodeOf(wrapped)
		if code != c.code {
			t.Errorf("%v: expected code %d, got %d", c.err, c.code, code)
			continue
		}

		resp := &Response{Code: code, Message: wrapped.Error()}
		if err := resp.Err(); !errors.Is(err, c.err) {
			t.Errorf("%v: decoded error does not match sentinel", c.err)
		}
	}

	if CodeOf(nil) != CodeOK {
		t.Error("nil must map to CodeOK")
	}

	if CodeOf(errors.New("disk on fire")) != CodeInternal {
		t.Error("unknown errors must map to CodeInternal")
	}

	if (&Response{}).Err() != nil {
		t.Error("CodeOK must not produce an error")
	}
}

func TestErrorCodes_Distinct(t *testing.T) {
	seen := make(map[Code]bool)
	for _, c := range codes {
		if seen[c.code] {
			t.Errorf("duplicate code %d", c.code)
		}
		seen[c.code] = true
	}

	if CodeOf(composite.ErrRootMismatch) == CodeOf(ledger.ErrNoAggregate) {
		t.Error("distinct sentinels share a code")
	}
}

func TestOp(t *testing.T) {
	if OpRegister.String() != "register" || Op(250).String() != "op(250)" {
		t.Error("unexpected op names")
	}

	if !OpSpawn.Mutating() || OpVerify.Mutating() || OpGetProof.Mutating() {
		t.Error("unexpected mutating classification")
	}

	if !OpRegisterSemester.Mutating() || OpSemester.Mutating() || OpStudents.Mutating() || OpEvidence.Mutating() {
		t.Error("unexpected mutating classification for semester and roster queries")
	}

	if CodeOf(ledger.ErrInvalidDigest) == CodeInternal {
		t.Error("invalid digest must have its own code")
	}
}
