package main

import (
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/zeebo/blake3"

	"CredTree/internal/network"
	"CredTree/internal/types"
)

func keygenCommand() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "keygen <path>",
		Short: "Generate an Ed25519 key and print its identity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]

			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}

			_, priv, err := ed25519.GenerateKey(rand.Reader)
			if err != nil {
				return fmt.Errorf("generate key:\n%w", err)
			}

			if err := os.WriteFile(path, priv, 0600); err != nil {
				return fmt.Errorf("save key to %s:\n%w", path, err)
			}

			fmt.Fprintln(cmd.OutOrStdout(), network.IdentityOf(priv))
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing key file")

	return cmd
}

func identityCommand(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "identity",
		Short: "Print the identity of --key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			key, err := loadKey(g.keyPath)
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), network.IdentityOf(key))
			return nil
		},
	}
}

func digestCommand() *cobra.Command {
	var text string

	cmd := &cobra.Command{
		Use:   "digest [file]",
		Short: "Hash a credential document into a digest",
		Long:  "Hash a credential document with BLAKE3. Reads the file, --text, or stdin when neither is given.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				d   types.Digest
				err error
			)

			switch {
			case len(args) == 1 && text != "":
				return fmt.Errorf("give a file or --text, not both")
			case len(args) == 1:
				d, err = hashFile(args[0])
			case text != "":
				d = types.Digest(blake3.Sum256([]byte(text)))
			default:
				d, err = hashReader(cmd.InOrStdin())
			}

			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), d)
			return nil
		},
	}

	cmd.Flags().StringVar(&text, "text", "", "Hash this string instead of a file")

	return cmd
}

// loadKey reads a raw Ed25519 private key as written by keygen or the node.
func loadKey(path string) (ed25519.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("key file %s not found (create one with credtree keygen)", path)
	}
	if err != nil {
		return nil, fmt.Errorf("read key file:\n%w", err)
	}

	if len(data) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("invalid key size: got %d, want %d", len(data), ed25519.PrivateKeySize)
	}

	return ed25519.PrivateKey(data), nil
}

func hashFile(path string) (types.Digest, error) {
	f, err := os.Open(path)
	if err != nil {
		return types.Digest{}, fmt.Errorf("open %s:\n%w", path, err)
	}
	defer f.Close()

	return hashReader(f)
}

func hashReader(r io.Reader) (types.Digest, error) {
	h := blake3.New()
	if _, err := io.Copy(h, r); err != nil {
		return types.Digest{}, fmt.Errorf("hash document:\n%w", err)
	}

	var d types.Digest
	copy(d[:], h.Sum(nil))
	return d, nil
}
