// Package main is the single-binary entrypoint for fanquest.
package main

import "github.com/stagelight/fanquest/internal/cli"

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	cli.Execute(version)
}
