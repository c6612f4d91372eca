package main

import "github.com/probkit/temper/cmd"

func main() {
	cmd.Execute()
}
