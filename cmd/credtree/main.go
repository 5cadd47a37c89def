// Command credtree is the command-line client of a credtree node.
//
// Mutations and ledger queries travel over the node's authenticated QUIC
// transport as the identity of --key; node summaries come from its HTTP API.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := rootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
