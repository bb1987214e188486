// Package cli handles maintenance subcommands dispatched before flag
// parsing, grounded on the teacher's RunCLI.
package cli

import "fmt"

// Version is the current binary version. Set at build time via -ldflags.
var Version = "0.1.0-dev"

// Run handles subcommand execution. Returns true if a subcommand was
// recognized and handled, in which case the caller should exit without
// parsing flags.
func Run(args []string) bool {
	if len(args) == 0 {
		return false
	}
	switch args[0] {
	case "version":
		fmt.Printf("lobbygame %s\n", Version)
		return true
	default:
		return false
	}
}
