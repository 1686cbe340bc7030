// Package main is the entry point for the kotoba formant service.
//
// Usage:
//
//	server [--config configs/config.yaml] <command> [args]
//
// Commands:
//
//	serve       - Run the HTTP API and WebSocket streaming service
//	analyze     - Extract formants from a WAV file, frame by frame
//	references  - Print vowel reference formants for a speaker type
package main

import (
	"fmt"
	"os"

	"github.com/Indy1131/kotoba/cmd/server/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
