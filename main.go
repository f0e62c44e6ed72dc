package main

import (
	"github.com/agentwa/wabridge/cmd"
)

func main() {
	cmd.Execute()
}
