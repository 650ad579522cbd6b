package main

import "github.com/jmcleod/homly/cmd/homly/cmd"

func main() {
	cmd.Execute()
}
