// Command mathwalk serves step-by-step math tutorials whose example code
// runs in an embedded interpreter.
package main

import (
	"os"

	"github.com/livetemplate/mathwalk/cmd/mathwalk/commands"
)

func main() {
	os.Exit(commands.Main(os.Args[1:], os.Stdout, os.Stderr))
}
