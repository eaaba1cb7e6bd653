// vestvault is a single-beneficiary asset custody vault with a lock-once
// vesting schedule.
package main

import (
	"fmt"
	"os"

	"github.com/vestvault/go-vestvault/cmd"
)

var version string

func main() {
	cmd.Version = version
	if err := cmd.Cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
