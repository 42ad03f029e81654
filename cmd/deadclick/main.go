// File: cmd/deadclick/main.go

// Command deadclick audits web pages for clickable elements that do
// nothing when clicked. It is the installable entrypoint:
//
//	go install github.com/RudraKhare/DeadClickCrawler/cmd/deadclick@latest
package main

import (
	"github.com/RudraKhare/DeadClickCrawler/cmd"
)

func main() {
	cmd.Main()
}
