package main

import "github.com/qobs-build/mgen/cmd"

func main() {
	cmd.Execute()
}
