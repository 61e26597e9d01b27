// Command jsondbctl inspects and edits a jsondb data file offline.
//
// It must not be used on a file while the server holding it runs: the server
// overwrites the file on its next save.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "jsondbctl: %v\n", err)
		os.Exit(1)
	}
}
