package main

import "github.com/chazu/blaze/cmd/blaze/cmd"

func main() {
	cmd.Execute()
}
