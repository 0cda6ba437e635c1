// Command riddler runs a round-robin riddle tournament between text
// generation backends and reports how well each one answered.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/ahrav/go-riddler/internal/domain"
)

// Exit codes.
const (
	exitOK     = 0
	exitError  = 1
	exitConfig = 2
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	cmd := newRootCmd()
	cmd.SetArgs(args)
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "riddler:", err)
		return exitCode(err)
	}
	return exitOK
}

// exitCode maps configuration failures to exitConfig and everything else to
// exitError.
func exitCode(err error) int {
	if err == nil {
		return exitOK
	}
	if errors.Is(err, domain.ErrInvalidConfiguration) {
		return exitConfig
	}
	return exitError
}
