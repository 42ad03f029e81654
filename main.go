// ./main.go
package main

import (
	"github.com/RudraKhare/DeadClickCrawler/cmd"
)

// main is the entry point for the deadclick CLI.
func main() {
	// Delegate to the cmd package, which owns command-line parsing,
	// configuration loading, signal handling and exit codes.
	cmd.Main()
}
