package main

import "github.com/conorfennell/lexicard/cmd/lexicard/cmd"

func main() {
	cmd.Execute()
}
