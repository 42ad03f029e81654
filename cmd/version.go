// File: cmd/version.go
package cmd

// Version is stamped at build time through ldflags, for example:
// go build -ldflags "-X github.com/RudraKhare/DeadClickCrawler/cmd.Version=1.0.0"
var Version = "0.1.0"
