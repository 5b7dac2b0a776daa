package main

import "github.com/strrl/opencode-sessions/cmd/opencode-sessions/commands"

func main() {
	commands.Execute()
}
