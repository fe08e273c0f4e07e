// Package main provides the entry point for the dtagent CLI.
package main

import (
	"os"

	"github.com/DayuGuo/DEVONthink-agent/cmd/dtagent/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
