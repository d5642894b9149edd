// Command twin3 runs the twin3 onboarding assistant as a terminal chat,
// an HTTP API or an MCP server.
package main

func main() {
	Execute()
}
