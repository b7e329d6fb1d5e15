package main

import "github.com/sphagnumdb/sphagnum/cmd"

func main() {
	cmd.Execute()
}
