// Command ocmt writes commit messages, branch names, changelogs and pull
// requests with a local OpenCode server.
package main

import "github.com/iHildy/ocmt/internal/cli"

func main() {
	cli.Execute()
}
