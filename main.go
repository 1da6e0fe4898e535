package main

import "github.com/wordgrove/groveapi/cmd"

func main() {
	cmd.Execute()
}
