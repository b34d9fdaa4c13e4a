package main

import (
	"github.com/sealkv/sealkv/cmd"
)

func main() {
	cmd.Execute()
}
