package main

import "github.com/dermesser/zbroker/cmd/zbroker/command"

func main() {
	command.Execute()
}
