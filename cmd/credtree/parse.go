package main

import (
	"fmt"
	"io"
	"strings"

	"CredTree/internal/types"
)

func parseIdentity(name, s string) (types.Identity, error) {
	id, err := types.ParseIdentity(strings.TrimPrefix(s, "0x"))
	if err != nil {
		return types.Identity{}, fmt.Errorf("%s %q:\n%w", name, s, err)
	}
	return id, nil
}

// parseDigest parses a hex digest. "@path" hashes the file at path instead.
func parseDigest(name, s string) (types.Digest, error) {
	if path, ok := strings.CutPrefix(s, "@"); ok {
		return hashFile(path)
	}

	d, err := types.ParseDigest(strings.TrimPrefix(s, "0x"))
	if err != nil {
		return types.Digest{}, fmt.Errorf("%s %q:\n%w", name, s, err)
	}
	return d, nil
}

// parseIdentities parses every element of ss. An empty input gives nil.
func parseIdentities(name string, ss []string) ([]types.Identity, error) {
	if len(ss) == 0 {
		return nil, nil
	}

	out := make([]types.Identity, len(ss))
	for i, s := range ss {
		id, err := parseIdentity(name, s)
		if err != nil {
			return nil, err
		}
		out[i] = id
	}
	return out, nil
}

// parseDigests parses every element of ss. An empty input gives nil, which
// commands read as "use the default list".
func parseDigests(name string, ss []string) ([]types.Digest, error) {
	if len(ss) == 0 {
		return nil, nil
	}

	out := make([]types.Digest, len(ss))
	for i, s := range ss {
		d, err := parseDigest(name, s)
		if err != nil {
			return nil, err
		}
		out[i] = d
	}
	return out, nil
}

// printVerdict prints "valid" or "invalid".
func printVerdict(w io.Writer, ok bool) {
	if ok {
		fmt.Fprintln(w, "valid")
		return
	}
	fmt.Fprintln(w, "invalid")
}

// printApplied reports the sequence value a mutation drew.
func printApplied(w io.Writer, seq uint64) {
	fmt.Fprintf(w, "applied at sequence %d\n", seq)
}

func printList[T fmt.Stringer](w io.Writer, items []T) {
	for _, it := range items {
		fmt.Fprintln(w, it)
	}
}
