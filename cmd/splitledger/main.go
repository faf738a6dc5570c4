package main

import (
	"os"

	"github.com/mmynk/splitledger/cmd/splitledger/commands"
	"github.com/mmynk/splitledger/pkg/logging"
)

func main() {
	// Until a command has loaded its config, log at LOG_LEVEL.
	logging.Setup()

	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
