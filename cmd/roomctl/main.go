// Package main is the entry point for roomctl.
// roomctl is the operator terminal tool for the roomplane admin API.
package main

import (
	"os"

	"roomplane/cmd/roomctl/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
