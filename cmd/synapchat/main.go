// Command synapchat runs the voice chat widget.
//
// Usage:
//
//	synapchat [flags] <command>
//
// Commands:
//
//	serve    - serve the browser widget and state websocket
//	console  - run the widget in the terminal
//	history  - list recorded sessions
//
// Configuration is read from the file given with --config and from
// SYNAPCHAT_* environment variables. ELEVENLABS_AGENT_ID sets the agent.
package main

import (
	"fmt"
	"os"

	"github.com/harunnryd/synapchat/cmd/synapchat/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
