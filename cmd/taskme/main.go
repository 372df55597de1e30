package main

import "github.com/taskme-network/taskme/internal/cli"

func main() {
	cli.Execute()
}
