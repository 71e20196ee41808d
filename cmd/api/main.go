// Package main provides the entry point for the chatrelay server and client.
package main

import (
	"fmt"
	"os"

	"github.com/MobasirSarkar/chatrelay/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
