package main

import "github.com/ehp-platform/authcore/cmd/authctl/cli"

func main() {
	cli.Execute()
}
