package main

import (
	"os"

	_ "git.handmade.network/hmn/edu/src/admintools"
	"git.handmade.network/hmn/edu/src/commands"
	_ "git.handmade.network/hmn/edu/src/migration"
)

func main() {
	if err := commands.RootCommand.Execute(); err != nil {
		os.Exit(1)
	}
}
