// Package main is the entry point of the locktel command.
package main

import "github.com/sarchlab/locktel/locktel/cmd"

func main() {
	cmd.Execute()
}
