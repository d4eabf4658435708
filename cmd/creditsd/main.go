// Command creditsd serves the credits HTTP API and carries the operator
// commands that act on the same store.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
