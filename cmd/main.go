package main

import "github.com/dyike/alphaagents/internal/cli"

func main() {
	cli.Run()
}
