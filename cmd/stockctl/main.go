// Command stockctl runs stock reads and heals directly against the database,
// without the HTTP server.
package main

import (
	"os"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
