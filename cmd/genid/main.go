package main

import (
	"flag"
	"fmt"

	"github.com/rs/xid"
)

// genid prints a fresh mesh identifier, optionally prefixed the way the node
// prefixes its own (peer-, task-, msg-). Handy for seeding config files.
func main() {
	prefix := flag.String("prefix", "peer-", "Prefix for the generated identifier")
	count := flag.Int("n", 1, "Number of identifiers to generate")
	flag.Parse()

	for i := 0; i < *count; i++ {
		fmt.Printf("%s%s\n", *prefix, xid.New().String())
	}
}
