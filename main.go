package main

import "stepsync/internal/cli"

func main() {
	cli.Execute()
}
