package engine

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"testing"
	"time"

	"CredTree/internal/command"
	"CredTree/internal/ledger"
	"CredTree/internal/network"
	"CredTree/internal/types"
)

func TestHandle_Undecodable(t *testing.T) {
	e, _ := newTestEngine(t)

	resp, err := command.DecodeResponse(e.Handle(context.Background(), dean, []byte{1, 2, 3}))
	if err != nil {
		t.Fatalf("DecodeResponse: %v", err)
	}

	if !errors.Is(resp.Err(), command.ErrInvalidCommand) {
		t.Fatalf("expected ErrInvalidCommand, got %v", resp.Err())
	}
}

// TestTransport_CallerFromCertificate runs commands over QUIC and checks
// the caller is the key the client connected with.
func TestTransport_CallerFromCertificate(t *testing.T) {
	e, _ := newTestEngine(t)

	_, serverKey, _ := ed25519.GenerateKey(rand.Reader)
	_, authKey, _ := ed25519.GenerateKey(rand.Reader)
	_, otherKey, _ := ed25519.GenerateKey(rand.Reader)

	srv, err := network.NewServer(network.ServerConfig{PrivateKey: serverKey, ListenAddr: "127.0.0.1:0"}, e)
	if err != nil {
		t.Fatalf("create server: %v", err)
	}
	if err := srv.Start(); err != nil {
		t.Fatalf("start server: %v", err)
	}
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	send := func(key ed25519.PrivateKey, cmd *command.Command) *command.Response {
		t.Helper()

		c, err := network.Dial(ctx, srv.Addr(), key)
		if err != nil {
			t.Fatalf("dial: %v", err)
		}
		defer c.Close()

		raw, err := c.Request(ctx, command.Encode(cmd))
		if err != nil {
			t.Fatalf("request: %v", err)
		}

		resp, err := command.DecodeResponse(raw)
		if err != nil {
			t.Fatalf("decode response: %v", err)
		}
		return resp
	}

	auth := network.IdentityOf(authKey)
	registrar := ident(0x99)

	resp := send(authKey, &command.Command{
		Op:          command.OpCreate,
		Identity:    registrar,
		Authorities: []types.Identity{auth},
		Quorum:      1,
	})
	if err := resp.Err(); err != nil {
		t.Fatalf("create: %v", err)
	}

	resp = send(otherKey, &command.Command{Op: command.OpRegister, Target: registrar, Subject: student, Digest: dig(1)})
	if !errors.Is(resp.Err(), ledger.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized for foreign key, got %v", resp.Err())
	}

	resp = send(authKey, &command.Command{Op: command.OpRegister, Target: registrar, Subject: student, Digest: dig(1)})
	if err := resp.Err(); err != nil {
		t.Fatalf("register: %v", err)
	}
	if resp.Sequence == 0 {
		t.Error("expected a sequence value on mutation")
	}

	resp = send(otherKey, &command.Command{Op: command.OpProof, Target: registrar, Digest: dig(1)})
	if err := resp.Err(); err != nil {
		t.Fatalf("proof: %v", err)
	}
	if len(resp.Identities) != 2 || resp.Identities[1] != auth {
		t.Errorf("expected signer %s, got %v", auth.Short(), resp.Identities)
	}
}
