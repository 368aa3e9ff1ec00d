// Package main is the single-binary entrypoint for Stipend.
package main

import "github.com/stipend-works/stipend/internal/cli"

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	cli.Execute(version)
}
