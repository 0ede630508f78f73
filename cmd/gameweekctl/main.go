// Command gameweekctl administers a gameweek database directly: admin
// profiles, servers, events and week previews. Stop the server first or
// expect a lock timeout; both open the same bbolt file.
package main

import (
	"fmt"
	"os"

	"go.uber.org/automaxprocs/maxprocs"
)

func main() {
	if _, err := maxprocs.Set(); err != nil {
		fmt.Fprintf(os.Stderr, "warning: %v\n", err)
	}
	if err := execute(os.Stdout, os.Args[1:]); err != nil {
		os.Exit(1)
	}
}
