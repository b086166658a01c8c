package main

import (
	"os"

	"calfeed/cmd/calfeed/commands"
	appLog "calfeed/internal/log"
)

// Version information - set during build
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	commands.SetVersionInfo(version, commit, date)

	if err := commands.Execute(); err != nil {
		appLog.Error("calfeed failed", err)
		os.Exit(1)
	}
}
